package storage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dgnsrekt/menu_agent/internal/types"
)

// WriteResults writes records as a JSON array of {name: payload} objects.
// The file is written to a temp sibling and renamed so a failed run never
// leaves a partial artifact behind.
func WriteResults(path string, records []types.MenuItemRecord) error {
	if records == nil {
		records = []types.MenuItemRecord{}
	}

	data, err := json.Marshal(records)
	if err != nil {
		return types.NewError(types.CodeOutputWrite, "marshal results", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return types.NewError(types.CodeOutputWrite, fmt.Sprintf("create output dir %s", dir), err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return types.NewError(types.CodeOutputWrite, "create temp file", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return types.NewError(types.CodeOutputWrite, "write temp file", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return types.NewError(types.CodeOutputWrite, "close temp file", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return types.NewError(types.CodeOutputWrite, "rename results file", err)
	}

	slog.Info("results written", "path", path, "items", len(records), "bytes", len(data))
	return nil
}

// ReadResults decodes a results file written by WriteResults.
func ReadResults(path string) ([]types.MenuItemRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read results: %w", err)
	}
	var records []types.MenuItemRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode results %s: %w", path, err)
	}
	return records, nil
}
