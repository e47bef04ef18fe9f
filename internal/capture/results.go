package capture

import (
	"sync"

	"github.com/dgnsrekt/menu_agent/internal/types"
)

// ResultSet is the append-only, insertion-ordered collection of captured items.
// The run owns it; the interceptor is its only writer.
type ResultSet struct {
	mu      sync.Mutex
	records []types.MenuItemRecord
}

func NewResultSet() *ResultSet {
	return &ResultSet{}
}

// Append adds a record at the end of the set.
func (r *ResultSet) Append(rec types.MenuItemRecord) {
	r.mu.Lock()
	r.records = append(r.records, rec)
	r.mu.Unlock()
}

// Len returns the number of records captured so far.
func (r *ResultSet) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// Records returns a copy of the records in insertion order.
func (r *ResultSet) Records() []types.MenuItemRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.MenuItemRecord, len(r.records))
	copy(out, r.records)
	return out
}
