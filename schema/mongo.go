package schema

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	entityCollection       = "entity_schemas"
	registerCollection     = "register_schemas"
	relationshipCollection = "relationship_schemas"
)

// LoadFromMongo reads all active schemas from the three schema
// collections and compiles them into a registry.
func LoadFromMongo(ctx context.Context, db *mongo.Database, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var set SchemaSet

	if err := loadCollection(ctx, db.Collection(entityCollection), func(data []byte) error {
		var e EntitySchema
		if err := json.Unmarshal(data, &e); err != nil {
			return err
		}
		set.Entities = append(set.Entities, &e)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("load %s: %w", entityCollection, err)
	}

	if err := loadCollection(ctx, db.Collection(registerCollection), func(data []byte) error {
		var r RegisterSchema
		if err := json.Unmarshal(data, &r); err != nil {
			return err
		}
		set.Registers = append(set.Registers, &r)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("load %s: %w", registerCollection, err)
	}

	if err := loadCollection(ctx, db.Collection(relationshipCollection), func(data []byte) error {
		var r RelationshipSchema
		if err := json.Unmarshal(data, &r); err != nil {
			return err
		}
		set.Relationships = append(set.Relationships, &r)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("load %s: %w", relationshipCollection, err)
	}

	logger.Info("schemas loaded from mongodb",
		"database", db.Name(),
		"entities", len(set.Entities),
		"registers", len(set.Registers),
		"relationships", len(set.Relationships))
	return NewRegistry(set)
}

// loadCollection streams every non-retired document of a collection
// through the decode callback. BSON round-trips through relaxed
// extended JSON so the typed schema structs keep a single set of tags.
func loadCollection(ctx context.Context, coll *mongo.Collection, decode func([]byte) error) error {
	filter := bson.M{"status": bson.M{"$ne": "retired"}}
	cursor, err := coll.Find(ctx, filter)
	if err != nil {
		return err
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var raw bson.M
		if err := cursor.Decode(&raw); err != nil {
			return err
		}
		delete(raw, "_id")
		data, err := bson.MarshalExtJSON(raw, false, false)
		if err != nil {
			return err
		}
		if err := decode(data); err != nil {
			return err
		}
	}
	return cursor.Err()
}

// SeedMongo upserts a schema set into the schema collections, keyed by
// each schema's natural name. Existing documents are replaced, so
// re-running a seed is safe.
func SeedMongo(ctx context.Context, db *mongo.Database, set SchemaSet, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	opts := options.Replace().SetUpsert(true)

	for _, e := range set.Entities {
		doc, err := toBSON(e)
		if err != nil {
			return fmt.Errorf("entity %s: %w", e.EntityName, err)
		}
		filter := bson.M{"entity_name": e.EntityName}
		if _, err := db.Collection(entityCollection).ReplaceOne(ctx, filter, doc, opts); err != nil {
			return fmt.Errorf("seed entity %s: %w", e.EntityName, err)
		}
	}
	for _, r := range set.Registers {
		doc, err := toBSON(r)
		if err != nil {
			return fmt.Errorf("register %s: %w", r.RegistryCode, err)
		}
		filter := bson.M{"registry_code": r.RegistryCode, "service_code": r.ServiceCode}
		if _, err := db.Collection(registerCollection).ReplaceOne(ctx, filter, doc, opts); err != nil {
			return fmt.Errorf("seed register %s: %w", r.RegistryCode, err)
		}
	}
	for _, r := range set.Relationships {
		doc, err := toBSON(r)
		if err != nil {
			return fmt.Errorf("relationship %s: %w", r.RelationshipName, err)
		}
		filter := bson.M{"relationship_name": r.RelationshipName}
		if _, err := db.Collection(relationshipCollection).ReplaceOne(ctx, filter, doc, opts); err != nil {
			return fmt.Errorf("seed relationship %s: %w", r.RelationshipName, err)
		}
	}

	logger.Info("schemas seeded",
		"database", db.Name(),
		"entities", len(set.Entities),
		"registers", len(set.Registers),
		"relationships", len(set.Relationships))
	return nil
}

// toBSON converts a tagged schema struct to a BSON document via its
// JSON form, so field names match what the loader reads back.
func toBSON(v any) (bson.M, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc bson.M
	if err := bson.UnmarshalExtJSON(data, false, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
