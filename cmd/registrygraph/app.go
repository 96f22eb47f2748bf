package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/c360studio/registrygraph/canonical"
	"github.com/c360studio/registrygraph/config"
	"github.com/c360studio/registrygraph/events"
	"github.com/c360studio/registrygraph/graph"
	"github.com/c360studio/registrygraph/metrics"
	"github.com/c360studio/registrygraph/pipeline"
	"github.com/c360studio/registrygraph/reader"
	"github.com/c360studio/registrygraph/schema"
	"github.com/c360studio/registrygraph/store"
)

// app bundles the wired infrastructure one command run needs.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	registry  *schema.Registry
	docs      store.DocumentStore
	sink      graph.Sink
	publisher *events.Publisher
	metrics   *metrics.Metrics
	mongo     *mongo.Client
	pipe      *pipeline.Pipeline
}

func loadConfig(configPath string, logger *slog.Logger) (*config.Config, error) {
	if configPath != "" {
		cfg, err := config.LoadFromFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		return cfg, nil
	}
	return config.NewLoader(logger).Load()
}

// newApp wires the full pipeline from configuration.
func newApp(ctx context.Context, configPath, logLevel string) (*app, error) {
	logger := setupLogging(logLevel)

	cfg, err := loadConfig(configPath, logger)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	a := &app{cfg: cfg, logger: logger}

	if err := a.connectMongo(ctx); err != nil {
		return nil, err
	}
	if err := a.buildRegistry(ctx); err != nil {
		a.close(ctx)
		return nil, err
	}
	if err := a.buildStore(ctx); err != nil {
		a.close(ctx)
		return nil, err
	}
	if err := a.buildSink(ctx); err != nil {
		a.close(ctx)
		return nil, err
	}

	a.publisher, err = events.Connect(cfg.NATS.URL, logger)
	if err != nil {
		// Eventing is optional; a missing broker must not block ingestion.
		logger.Warn("event publisher unavailable", "url", cfg.NATS.URL, "error", err)
	}

	if cfg.Metrics.Enabled {
		a.metrics = metrics.New()
		a.serveMetrics()
	}

	a.pipe, err = pipeline.New(pipeline.Options{
		Registry:        a.registry,
		Sink:            a.sink,
		Docs:            a.docs,
		Publisher:       a.publisher,
		Metrics:         a.metrics,
		Logger:          logger,
		Workers:         cfg.Pipeline.Workers,
		DocumentTimeout: cfg.Pipeline.DocumentTimeout,
	})
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	return a, nil
}

// connectMongo dials MongoDB when any backend needs it.
func (a *app) connectMongo(ctx context.Context) error {
	needed := a.cfg.DocumentStore.Backend == "mongo" || a.cfg.Schemas.Backend == "mongo"
	if !needed {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(a.cfg.DocumentStore.MongoURI))
	if err != nil {
		return fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return fmt.Errorf("ping mongodb: %w", err)
	}
	a.mongo = client
	return nil
}

func (a *app) mongoDatabase() *mongo.Database {
	return a.mongo.Database(a.cfg.DocumentStore.MongoDatabase)
}

func (a *app) buildRegistry(ctx context.Context) error {
	var err error
	switch a.cfg.Schemas.Backend {
	case "file":
		a.registry, err = schema.LoadFromDir(a.cfg.Schemas.Dir, a.logger)
	case "mongo":
		a.registry, err = schema.LoadFromMongo(ctx, a.mongoDatabase(), a.logger)
	default:
		a.registry, err = schema.NewBuiltinRegistry()
	}
	if err != nil {
		return fmt.Errorf("load schemas: %w", err)
	}
	return nil
}

func (a *app) buildStore(ctx context.Context) error {
	var err error
	switch a.cfg.DocumentStore.Backend {
	case "mongo":
		a.docs, err = store.NewMongoStore(ctx, a.mongoDatabase())
	default:
		a.docs, err = store.NewFileStore(a.cfg.DocumentStore.Dir)
	}
	if err != nil {
		return fmt.Errorf("open document store: %w", err)
	}
	return nil
}

func (a *app) buildSink(ctx context.Context) error {
	var err error
	switch a.cfg.GraphSink.Backend {
	case "neo4j":
		a.sink, err = graph.NewNeo4jSink(ctx, graph.Neo4jConfig{
			URI:      a.cfg.GraphSink.URI,
			Username: a.cfg.GraphSink.Username,
			Password: a.cfg.GraphSink.Password,
			Database: a.cfg.GraphSink.Database,
		})
	default:
		a.sink, err = graph.NewFileSink(a.cfg.GraphSink.Dir)
	}
	if err != nil {
		return fmt.Errorf("open graph sink: %w", err)
	}
	return nil
}

func (a *app) buildSource(ctx context.Context) (reader.Source, string, error) {
	if a.cfg.Source.Kind == "object" {
		src, err := reader.NewObjectSource(ctx, reader.ObjectStoreConfig{
			Endpoint:  a.cfg.Source.Endpoint,
			AccessKey: a.cfg.Source.AccessKey,
			SecretKey: a.cfg.Source.SecretKey,
			UseSSL:    a.cfg.Source.UseSSL,
			Bucket:    a.cfg.Source.Bucket,
			Prefix:    a.cfg.Source.Prefix,
		}, a.logger)
		if err != nil {
			return nil, "", err
		}
		return src, fmt.Sprintf("s3://%s/%s", a.cfg.Source.Bucket, a.cfg.Source.Prefix), nil
	}
	return reader.NewFileSource(a.cfg.Source.Root, a.cfg.Source.Patterns, a.logger), a.cfg.Source.Root, nil
}

func (a *app) serveMetrics() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	server := &http.Server{Addr: a.cfg.Metrics.Listen, Handler: mux}
	go func() {
		a.logger.Info("metrics endpoint listening", "addr", a.cfg.Metrics.Listen)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Warn("metrics endpoint failed", "error", err)
		}
	}()
}

func (a *app) close(ctx context.Context) {
	if a.sink != nil {
		if err := a.sink.Close(ctx); err != nil {
			a.logger.Warn("close graph sink failed", "error", err)
		}
	}
	if a.docs != nil {
		if err := a.docs.Close(ctx); err != nil {
			a.logger.Warn("close document store failed", "error", err)
		}
	}
	a.publisher.Close()
	if a.mongo != nil {
		if err := a.mongo.Disconnect(ctx); err != nil {
			a.logger.Warn("disconnect mongodb failed", "error", err)
		}
	}
}

func ingestCmd(configPath, logLevel *string) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Process every document in the configured source once",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, *configPath, *logLevel)
			if err != nil {
				return err
			}
			defer a.close(context.WithoutCancel(ctx))

			source, name, err := a.buildSource(ctx)
			if err != nil {
				return fmt.Errorf("open source: %w", err)
			}
			run, err := a.pipe.Run(ctx, source, name)
			if err != nil {
				return err
			}
			if run.NextAction != "" {
				fmt.Fprintf(os.Stderr, "next action: %s\n", run.NextAction)
			}
			return nil
		},
	}
}

func watchCmd(configPath, logLevel *string) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Watch the source directory and ingest files as they settle",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, *configPath, *logLevel)
			if err != nil {
				return err
			}
			defer a.close(context.WithoutCancel(ctx))

			if a.cfg.Source.Kind != "file" {
				return fmt.Errorf("watch mode needs a file source, got %q", a.cfg.Source.Kind)
			}

			watcher := reader.NewWatcher(a.cfg.Source.Root, a.cfg.Pipeline.SettleWindow, a.logger)
			err = watcher.Run(ctx, func(raw *canonical.RawDocument) error {
				return a.pipe.ProcessOne(ctx, raw)
			})
			if err == context.Canceled {
				return nil
			}
			return err
		},
	}
}

func initSchemasCmd(configPath, logLevel *string) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "init-schemas",
		Short: "Seed the schema backend with the builtin schema set",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger := setupLogging(*logLevel)
			cfg, err := loadConfig(*configPath, logger)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			set := schema.BuiltinSet()
			// Compile first so a broken builtin never reaches a backend.
			if _, err := schema.NewRegistry(schema.BuiltinSet()); err != nil {
				return fmt.Errorf("builtin schemas invalid: %w", err)
			}

			if dir != "" {
				if err := schema.WriteSetToDir(set, dir); err != nil {
					return err
				}
				logger.Info("schemas written", "dir", dir)
				return nil
			}

			if cfg.DocumentStore.MongoURI == "" {
				return fmt.Errorf("no target: pass --dir or configure document_store.mongo_uri")
			}
			connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.DocumentStore.MongoURI))
			if err != nil {
				return fmt.Errorf("connect mongodb: %w", err)
			}
			defer client.Disconnect(ctx)

			db := client.Database(cfg.DocumentStore.MongoDatabase)
			return schema.SeedMongo(ctx, db, set, logger)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Write schemas as JSON files to this directory instead of MongoDB")
	return cmd
}
