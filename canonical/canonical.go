package canonical

import (
	"fmt"
	"log/slog"
)

// previewBytes is how much raw payload is retained for diagnostics when
// parsing fails.
const previewBytes = 500

// Adapter normalizes one content type into a canonical document.
type Adapter interface {
	// CanHandle reports whether this adapter decodes the content type.
	CanHandle(contentType string) bool

	// Decode normalizes the raw payload. Decode never returns an error:
	// structural failures are recorded on the document as a parse error
	// with a retained preview.
	Decode(raw *RawDocument) *Document
}

// Canonicalizer dispatches raw documents to format adapters.
type Canonicalizer struct {
	adapters []Adapter
	logger   *slog.Logger
}

// NewCanonicalizer builds a canonicalizer with the default JSON and XML
// adapters.
func NewCanonicalizer(logger *slog.Logger) *Canonicalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Canonicalizer{
		adapters: []Adapter{&JSONAdapter{}, &XMLAdapter{}},
		logger:   logger,
	}
}

// Register appends an adapter. Later adapters only see content types
// the defaults decline.
func (c *Canonicalizer) Register(a Adapter) {
	c.adapters = append(c.adapters, a)
}

// Canonicalize normalizes a raw document. Unsupported content types
// produce a document with a parse error and a raw preview, so every
// input yields a hashable canonical record.
func (c *Canonicalizer) Canonicalize(raw *RawDocument) *Document {
	for _, adapter := range c.adapters {
		if adapter.CanHandle(raw.ContentType) {
			doc := adapter.Decode(raw)
			if doc.ParseError != "" {
				c.logger.Warn("canonicalization failed",
					slog.String("file", raw.FilePath),
					slog.String("content_type", raw.ContentType),
					slog.String("error", doc.ParseError))
			}
			return doc
		}
	}

	doc := newDocument(raw)
	doc.ParseError = fmt.Sprintf("unsupported content type: %s", raw.ContentType)
	doc.Data = previewTree(raw.Bytes)
	doc.Seal()
	return doc
}

// newDocument starts a canonical document with the base metadata every
// adapter records.
func newDocument(raw *RawDocument) *Document {
	return &Document{
		FilePath:    raw.FilePath,
		ContentType: raw.ContentType,
		RawHash:     raw.ContentHash,
		Meta: map[string]string{
			"file_path":    raw.FilePath,
			"content_type": raw.ContentType,
		},
	}
}

// previewTree wraps a raw preview so failed documents still carry
// inspectable data.
func previewTree(data []byte) *Value {
	m := Mapping()
	m.Set("_raw_preview", String(preview(data, previewBytes)))
	return m
}
