package snapshot

import (
	"bytes"
	"testing"
	"time"
)

const testID = "123e4567-e89b-12d3-a456-426614174000"

func TestSaveAndRead(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	img := []byte("\x89PNG fake")
	meta := Meta{
		ID:        testID,
		CreatedAt: time.Now().UTC(),
		StoreURL:  "https://www.doordash.com/store/x",
		ErrorCode: "UI_ELEMENT_NOT_FOUND",
		Error:     "close menu item 3",
	}
	if err := store.Save(meta, img); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Get(testID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Format != "png" || got.SizeBytes != len(img) || got.ErrorCode != meta.ErrorCode {
		t.Fatalf("Get() = %+v", got)
	}

	data, format, err := store.ReadImage(testID)
	if err != nil {
		t.Fatalf("ReadImage() error = %v", err)
	}
	if format != "png" || !bytes.Equal(data, img) {
		t.Fatalf("ReadImage() = %q, %q", data, format)
	}

	list, err := store.List()
	if err != nil || len(list) != 1 {
		t.Fatalf("List() = %v, %v; want one snapshot", list, err)
	}
}

func TestRejectsInvalidID(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	for _, id := range []string{"", "../etc/passwd", "not-a-uuid"} {
		if err := store.Save(Meta{ID: id}, []byte("x")); err == nil {
			t.Fatalf("Save(%q) = nil; want error", id)
		}
		if _, err := store.Get(id); err == nil {
			t.Fatalf("Get(%q) = nil; want error", id)
		}
	}
}

func TestGetMissing(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	if _, err := store.Get(testID); err == nil {
		t.Fatal("Get() = nil; want not found")
	}
}
