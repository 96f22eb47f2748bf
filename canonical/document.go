package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"sort"
)

// Content types produced by sniffing. Anything else is passed through
// from the declared type.
const (
	ContentTypeJSON   = "application/json"
	ContentTypeXML    = "application/xml"
	ContentTypeBinary = "application/octet-stream"
)

// RawDocument is an immutable raw payload plus provenance. Created by a
// reader, consumed by the canonicalizer, never mutated.
type RawDocument struct {
	FilePath    string
	ContentType string
	Bytes       []byte
	Encoding    string
	ContentHash string
}

// NewRawDocument wraps raw bytes with sniffed content type and content
// hash. The file path is provenance only; it is never interpreted.
func NewRawDocument(filePath string, data []byte) *RawDocument {
	return &RawDocument{
		FilePath:    filePath,
		ContentType: DetectContentType(filePath, data),
		Bytes:       data,
		Encoding:    "utf-8",
		ContentHash: HashBytes(data),
	}
}

// ReadRawFile reads a file from disk into a RawDocument.
func ReadRawFile(filePath string) (*RawDocument, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return NewRawDocument(filePath, data), nil
}

// Document is the canonical form of one raw document: flat metadata
// plus a normalized data tree. ParseError is set when structural
// decoding failed; Data then holds a raw preview for diagnostics.
type Document struct {
	FilePath      string
	ContentType   string
	RawHash       string
	CanonicalHash string
	Meta          map[string]string
	Data          *Value
	ParseError    string
}

// Tree assembles the {meta, data} mapping that path and predicate
// evaluation run against.
func (d *Document) Tree() *Value {
	meta := Mapping()
	keys := make([]string, 0, len(d.Meta))
	for k := range d.Meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		meta.Set(k, String(d.Meta[k]))
	}
	root := Mapping()
	root.Set("meta", meta)
	data := d.Data
	if data == nil {
		data = Null()
	}
	root.Set("data", data)
	return root
}

// Seal computes the canonical hash over the deterministic serialization
// of {meta, data}. Call once after meta and data are final.
func (d *Document) Seal() {
	d.CanonicalHash = HashBytes(d.Tree().MarshalCanonical())
}

// HashBytes returns the lowercase hex SHA-256 of b.
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// preview returns the first n bytes decoded for diagnostics.
func preview(data []byte, n int) string {
	if len(data) > n {
		data = data[:n]
	}
	return decodeUTF8(data)
}
