package canonical

import (
	"bytes"
	"strings"
	"unicode/utf8"
)

// DetectContentType sniffs the payload: the first non-whitespace byte
// decides for JSON or XML, then the file extension, then octet-stream.
// Declared extensions are a weaker signal than bytes because registry
// exports routinely mislabel files.
func DetectContentType(filePath string, data []byte) string {
	head := bytes.TrimLeft(data, " \t\r\n\xef\xbb\xbf")
	if len(head) > 0 {
		switch head[0] {
		case '{', '[':
			return ContentTypeJSON
		case '<':
			return ContentTypeXML
		}
	}
	switch {
	case hasSuffixFold(filePath, ".json"):
		return ContentTypeJSON
	case hasSuffixFold(filePath, ".xml"):
		return ContentTypeXML
	}
	return ContentTypeBinary
}

func hasSuffixFold(s, suffix string) bool {
	return len(s) >= len(suffix) && strings.EqualFold(s[len(s)-len(suffix):], suffix)
}

// decodeUTF8 decodes bytes as UTF-8, replacing invalid sequences with
// the replacement rune so decoding never fails.
func decodeUTF8(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	return string(bytes.ToValidUTF8(data, []byte("�")))
}
