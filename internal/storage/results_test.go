package storage

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/dgnsrekt/menu_agent/internal/types"
)

func itemPayload(name string) json.RawMessage {
	return json.RawMessage(`{"data":{"itemPage":{"itemHeader":{"name":"` + name + `","price":"$9.40"}}}}`)
}

func TestWriteResultsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "results.json")
	records := []types.MenuItemRecord{
		{Name: "Orange Chicken", Payload: itemPayload("Orange Chicken")},
		{Name: "Chow Mein", Payload: itemPayload("Chow Mein")},
	}

	if err := WriteResults(path, records); err != nil {
		t.Fatalf("WriteResults() error = %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var generic []map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		t.Fatalf("output is not a JSON array of objects: %v", err)
	}
	if len(generic) != 2 {
		t.Fatalf("len = %d; want 2", len(generic))
	}

	back, err := ReadResults(path)
	if err != nil {
		t.Fatalf("ReadResults() error = %v", err)
	}
	for i, rec := range back {
		if rec.Name != records[i].Name {
			t.Fatalf("record %d name = %q; want %q", i, rec.Name, records[i].Name)
		}
		var header struct {
			Data struct {
				ItemPage struct {
					ItemHeader struct {
						Name string `json:"name"`
					} `json:"itemHeader"`
				} `json:"itemPage"`
			} `json:"data"`
		}
		if err := json.Unmarshal(rec.Payload, &header); err != nil {
			t.Fatalf("record %d payload: %v", i, err)
		}
		if header.Data.ItemPage.ItemHeader.Name != rec.Name {
			t.Fatalf("record %d key %q does not match itemHeader.name %q", i, rec.Name, header.Data.ItemPage.ItemHeader.Name)
		}
	}

	again, err := json.Marshal(back)
	if err != nil {
		t.Fatalf("re-encode: %v", err)
	}
	if !bytes.Equal(again, raw) {
		t.Fatalf("re-encoded output differs:\n got %s\nwant %s", again, raw)
	}
}

func TestWriteResultsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.json")
	if err := WriteResults(path, nil); err != nil {
		t.Fatalf("WriteResults() error = %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(raw) != "[]" {
		t.Fatalf("output = %s; want []", raw)
	}
}

func TestWriteResultsLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "results.json")
	if err := WriteResults(path, []types.MenuItemRecord{{Name: "Egg Roll", Payload: itemPayload("Egg Roll")}}); err != nil {
		t.Fatalf("WriteResults() error = %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "results.json" {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("dir entries = %v; want only results.json", names)
	}
}
