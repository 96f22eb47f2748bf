package canonical

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// XMLAdapter normalizes XML payloads. Element local names become
// mapping keys regardless of namespace; repeated siblings collapse
// into ordered sequences; text-only elements become string scalars.
type XMLAdapter struct{}

// CanHandle accepts XML.
func (a *XMLAdapter) CanHandle(contentType string) bool {
	return contentType == ContentTypeXML
}

// Decode parses the payload into a canonical tree and probes the
// X-Road envelope header for registry metadata.
func (a *XMLAdapter) Decode(raw *RawDocument) *Document {
	doc := newDocument(raw)

	root, rootName, err := parseXML(raw.Bytes)
	if err != nil {
		doc.ParseError = fmt.Sprintf("xml parse error: %v", err)
		doc.Data = previewTree(raw.Bytes)
		doc.Seal()
		return doc
	}

	data := Mapping()
	data.Set(rootName, root)
	doc.Data = data
	extractXRoadMeta(doc)
	doc.Seal()
	return doc
}

// parseXML builds the canonical tree for the document element and
// returns its local name.
func parseXML(data []byte) (*Value, string, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil, "", fmt.Errorf("no document element")
		}
		if err != nil {
			return nil, "", err
		}
		if start, ok := tok.(xml.StartElement); ok {
			v, err := parseElement(dec, start)
			if err != nil {
				return nil, "", err
			}
			return v, start.Name.Local, nil
		}
	}
}

// parseElement consumes one element and its subtree. Leaf elements
// yield their trimmed text (null when empty); branch elements yield a
// mapping of local name to child, with repeats collapsed into a
// sequence in document order.
func parseElement(dec *xml.Decoder, start xml.StartElement) (*Value, error) {
	var grouped *Value
	var text strings.Builder

	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			child, err := parseElement(dec, t)
			if err != nil {
				return nil, err
			}
			if grouped == nil {
				grouped = Mapping()
			}
			key := t.Name.Local
			if existing, ok := grouped.Field(key); ok {
				if existing.Kind() == KindSequence {
					existing.Append(child)
				} else {
					grouped.Set(key, Sequence(existing, child))
				}
			} else {
				grouped.Set(key, child)
			}
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			if grouped != nil {
				return grouped, nil
			}
			trimmed := strings.TrimSpace(text.String())
			if trimmed == "" {
				return Null(), nil
			}
			return String(trimmed), nil
		}
	}
}

// extractXRoadMeta probes the well-known X-Road envelope header path
// and promotes its codes into canonical metadata when present.
func extractXRoadMeta(doc *Document) {
	header := probe(doc.Data, "Envelope", "Header")
	if header == nil {
		return
	}
	set := func(metaKey string, keys ...string) {
		if v := probe(header, keys...); v != nil {
			if s, ok := v.Scalar(); ok && s != "" {
				doc.Meta[metaKey] = collapseSpaces(s)
			}
		}
	}
	set("registry_code", "client", "subsystemCode")
	set("service_code", "service", "subsystemCode")
	set("method_code", "service", "serviceCode")
	set("xroad_request_id", "id")
	set("xroad_user_id", "userId")
}

// probe walks nested mapping keys, unwrapping singleton sequences the
// way XML collapsing produces them.
func probe(v *Value, keys ...string) *Value {
	for _, key := range keys {
		if v == nil {
			return nil
		}
		if v.Kind() == KindSequence && v.Len() > 0 {
			v = v.Items()[0]
		}
		child, ok := v.Field(key)
		if !ok {
			return nil
		}
		v = child
	}
	if v != nil && v.IsNull() {
		return nil
	}
	return v
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
