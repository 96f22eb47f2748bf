package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/c360studio/registrygraph/store"
)

func TestConnectWithoutURL(t *testing.T) {
	p, err := Connect("", nil)
	if err != nil {
		t.Fatalf("Connect(\"\") error = %v", err)
	}
	if p != nil {
		t.Fatal("empty URL should yield a nil publisher")
	}

	// Every method must tolerate the nil publisher.
	p.PublishDocument(&store.IngestedDocument{DocumentID: "doc-1"})
	p.PublishRun(&store.IngestionRun{RunID: "run-1"})
	p.Close()
}

func TestDocumentEventShape(t *testing.T) {
	event := DocumentEvent{
		DocumentID: "doc-1",
		RunID:      "run-1",
		FilePath:   "in/a.json",
		Status:     store.StatusQuarantined,
		Category:   store.CategoryMappingError,
		VariantID:  "eis_person_v1",
		At:         time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC),
	}
	data, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"document_id", "run_id", "file_path", "status", "category", "variant_id", "at"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("event missing %s: %s", key, data)
		}
	}

	// Successful documents omit the category entirely.
	event.Category = ""
	data, _ = json.Marshal(event)
	decoded = nil
	_ = json.Unmarshal(data, &decoded)
	if _, ok := decoded["category"]; ok {
		t.Errorf("empty category should be omitted: %s", data)
	}
}
