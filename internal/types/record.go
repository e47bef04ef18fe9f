package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// MenuItemRecord is one captured menu item keyed by its display name.
// Only Name and Payload are serialised; the remaining fields describe the capture.
type MenuItemRecord struct {
	Name    string
	Payload json.RawMessage

	RequestID  string
	URL        string
	ClickIndex int
	CapturedAt time.Time
}

// MarshalJSON encodes the record as a single-key object {name: payload}.
func (r MenuItemRecord) MarshalJSON() ([]byte, error) {
	payload := r.Payload
	if len(bytes.TrimSpace(payload)) == 0 {
		payload = json.RawMessage("null")
	}
	return json.Marshal(map[string]json.RawMessage{r.Name: payload})
}

// UnmarshalJSON decodes a single-key object {name: payload}.
func (r *MenuItemRecord) UnmarshalJSON(data []byte) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	if len(obj) != 1 {
		return fmt.Errorf("menu item record: want exactly one key, got %d", len(obj))
	}
	for name, payload := range obj {
		r.Name = name
		r.Payload = payload
	}
	return nil
}
