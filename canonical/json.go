package canonical

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
)

// trailingCommaPattern matches trailing commas before ] or }. Registry
// exports are full of hand-assembled JSON with this defect.
var trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)

// logLinePattern matches one "KEY = value" line of the legacy header
// log format (HEADER_REGISTRY = DRFO, and so on).
var logLinePattern = regexp.MustCompile(`^\s*([A-Za-z_][A-Za-z0-9_]*)\s*=\s*(.*?)\s*$`)

// JSONAdapter normalizes JSON payloads, recovering from trailing
// commas, and falls back to form-encoded and header-log parsing for the
// non-JSON payloads that arrive with a JSON-ish declared type.
type JSONAdapter struct{}

// CanHandle accepts JSON and the binary fallback type (sniffing sends
// query-string logs there because they have no structural marker).
func (a *JSONAdapter) CanHandle(contentType string) bool {
	return contentType == ContentTypeJSON || contentType == ContentTypeBinary
}

// Decode parses the payload into a canonical tree. Failure order:
// strict JSON (after trailing-comma cleanup), then form-encoded, then
// "KEY = value" log lines, then a parse error with preview.
func (a *JSONAdapter) Decode(raw *RawDocument) *Document {
	doc := newDocument(raw)
	text := decodeUTF8(raw.Bytes)

	cleaned := trailingCommaPattern.ReplaceAllString(text, "$1")
	data, jsonErr := ParseJSON([]byte(cleaned))
	if jsonErr == nil {
		doc.Data = data
		applyJSONMetaHeuristics(doc)
		doc.Seal()
		return doc
	}

	if data, ok := parseFormEncoded(text); ok {
		doc.Data = data
		doc.Seal()
		return doc
	}
	if data, ok := parseHeaderLog(text); ok {
		doc.Data = data
		applyHeaderMeta(doc)
		doc.Seal()
		return doc
	}

	doc.ParseError = fmt.Sprintf("json parse error: %v", jsonErr)
	doc.Data = previewTree(raw.Bytes)
	doc.Seal()
	return doc
}

// parseFormEncoded interprets the payload as a query string. It only
// succeeds for single-line payloads with at least one key=value pair,
// so arbitrary text does not masquerade as form data.
func parseFormEncoded(text string) (*Value, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || strings.ContainsAny(trimmed, "\n\r") || !strings.Contains(trimmed, "=") {
		return nil, false
	}
	values, err := url.ParseQuery(trimmed)
	if err != nil || len(values) == 0 {
		return nil, false
	}
	nonEmpty := 0
	m := Mapping()
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		vs := values[k]
		for _, v := range vs {
			if v != "" {
				nonEmpty++
			}
		}
		if len(vs) == 1 {
			m.Set(k, String(vs[0]))
			continue
		}
		seq := Sequence()
		for _, v := range vs {
			seq.Append(String(v))
		}
		m.Set(k, seq)
	}
	if nonEmpty == 0 {
		return nil, false
	}
	return m, true
}

// parseHeaderLog interprets the payload as "KEY = value" lines. Every
// non-blank line must match for the parse to succeed.
func parseHeaderLog(text string) (*Value, bool) {
	m := Mapping()
	matched := 0
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		groups := logLinePattern.FindStringSubmatch(line)
		if groups == nil {
			return nil, false
		}
		m.Set(groups[1], String(groups[2]))
		matched++
	}
	if matched == 0 {
		return nil, false
	}
	return m, true
}

// applyJSONMetaHeuristics fills registry metadata for JSON shapes that
// carry no envelope. The EIS person extract is the only format in the
// corpus that needs this.
func applyJSONMetaHeuristics(doc *Document) {
	root, ok := doc.Data.Field("root")
	if !ok {
		return
	}
	result, ok := root.Field("result")
	if !ok || result.Kind() != KindMapping {
		return
	}
	for _, marker := range []string{"rnokpp", "unzr", "first_name", "last_name", "date_birth"} {
		if _, ok := result.Field(marker); ok {
			doc.Meta["registry_code"] = "EIS"
			doc.Meta["service_code"] = "PERSON"
			return
		}
	}
}

// applyHeaderMeta promotes HEADER_* log keys into canonical metadata.
func applyHeaderMeta(doc *Document) {
	promote := map[string]string{
		"HEADER_REGISTRY": "registry_code",
		"HEADER_SERVICE":  "service_code",
		"HEADER_METHOD":   "method_code",
	}
	for key, metaKey := range promote {
		if v, ok := doc.Data.Field(key); ok {
			if s, ok := v.Text(); ok && s != "" {
				doc.Meta[metaKey] = s
			}
		}
	}
}
