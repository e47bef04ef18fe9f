package capture

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/dgnsrekt/menu_agent/internal/types"
)

const defaultBodyTimeout = 10 * time.Second

// Journal receives raw matched responses. storage.JSONLWriter satisfies it.
type Journal interface {
	Write(record any) error
}

// JournalEntry is one matched response as written to the journal.
type JournalEntry struct {
	Timestamp    time.Time `json:"timestamp"`
	RequestID    string    `json:"request_id"`
	URL          string    `json:"url"`
	Status       int       `json:"status"`
	ItemName     string    `json:"item_name,omitempty"`
	DecodeError  string    `json:"decode_error,omitempty"`
	Body         string    `json:"body,omitempty"`
	BodyBase64   string    `json:"body_base64,omitempty"`
	Truncated    bool      `json:"truncated,omitempty"`
	OriginalSize int       `json:"original_size,omitempty"`
	SHA256       string    `json:"sha256,omitempty"`
}

// Stats counts what the interceptor has seen.
type Stats struct {
	Observed int64 `json:"observed"`
	Matched  int64 `json:"matched"`
	Captured int64 `json:"captured"`
	Dropped  int64 `json:"dropped"`
	Orphaned int64 `json:"orphaned"`
}

// itemPageEnvelope is the part of the item-detail contract the interceptor reads.
type itemPageEnvelope struct {
	Data *struct {
		ItemPage *struct {
			ItemHeader *struct {
				Name *string `json:"name"`
			} `json:"itemHeader"`
		} `json:"itemPage"`
	} `json:"data"`
}

type armedClick struct {
	index int
	ch    chan types.MenuItemRecord
}

// Interceptor is the standing response listener for one page. It matches
// responses whose URL equals the item-detail endpoint exactly, decodes them off
// the event goroutine and appends one record per good payload.
type Interceptor struct {
	endpoint     string
	results      *ResultSet
	journal      Journal
	maxBodyBytes int
	bodyTimeout  time.Duration
	requireClick bool

	wg sync.WaitGroup

	armMu sync.Mutex
	armed []*armedClick

	observed atomic.Int64
	matched  atomic.Int64
	captured atomic.Int64
	dropped  atomic.Int64
	orphaned atomic.Int64
}

// Option configures an Interceptor.
type Option func(*Interceptor)

// WithJournal writes every matched response to j, body capped at maxBodyBytes.
func WithJournal(j Journal, maxBodyBytes int) Option {
	return func(i *Interceptor) {
		i.journal = j
		i.maxBodyBytes = maxBodyBytes
	}
}

// WithBodyTimeout bounds each lazy body fetch.
func WithBodyTimeout(d time.Duration) Option {
	return func(i *Interceptor) {
		if d > 0 {
			i.bodyTimeout = d
		}
	}
}

// WithRequireClick drops matching responses that arrive while no detail-view
// click is armed.
func WithRequireClick(require bool) Option {
	return func(i *Interceptor) {
		i.requireClick = require
	}
}

func NewInterceptor(endpoint string, results *ResultSet, opts ...Option) *Interceptor {
	i := &Interceptor{
		endpoint:    endpoint,
		results:     results,
		bodyTimeout: defaultBodyTimeout,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Endpoint returns the exact URL this interceptor matches.
func (i *Interceptor) Endpoint() string {
	return i.endpoint
}

// Observe is the response subscription callback. It never blocks: matching
// events are decoded on their own goroutine.
func (i *Interceptor) Observe(ev types.ResponseEvent) {
	i.observed.Add(1)
	if ev.URL != i.endpoint {
		return
	}
	i.matched.Add(1)
	slog.Debug("item response matched", "request_id", ev.RequestID, "status", ev.Status)

	claim := i.claim()
	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		i.capture(ev, claim)
	}()
}

// Arm registers an upcoming detail-view click. The next matching response
// claims it, whether or not that response decodes. The channel receives the
// record when it does. Release withdraws the arm if no response claimed it.
func (i *Interceptor) Arm(clickIndex int) (captured <-chan types.MenuItemRecord, release func()) {
	a := &armedClick{index: clickIndex, ch: make(chan types.MenuItemRecord, 1)}
	i.armMu.Lock()
	i.armed = append(i.armed, a)
	i.armMu.Unlock()
	return a.ch, func() { i.release(a) }
}

func (i *Interceptor) release(a *armedClick) {
	i.armMu.Lock()
	defer i.armMu.Unlock()
	for n, armed := range i.armed {
		if armed == a {
			i.armed = append(i.armed[:n], i.armed[n+1:]...)
			slog.Debug("armed click released without a response", "click_index", a.index)
			return
		}
	}
}

// Wait blocks until every in-flight decode has finished or ctx is done.
func (i *Interceptor) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		i.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns a snapshot of the counters.
func (i *Interceptor) Stats() Stats {
	return Stats{
		Observed: i.observed.Load(),
		Matched:  i.matched.Load(),
		Captured: i.captured.Load(),
		Dropped:  i.dropped.Load(),
		Orphaned: i.orphaned.Load(),
	}
}

func (i *Interceptor) capture(ev types.ResponseEvent, claim *armedClick) {
	ctx, cancel := context.WithTimeout(context.Background(), i.bodyTimeout)
	defer cancel()

	body, err := fetchBody(ctx, ev)
	if err != nil {
		i.drop(ev, nil, err)
		return
	}

	name, err := decodeItemName(body)
	if err != nil {
		i.drop(ev, body, err)
		return
	}
	i.writeJournal(ev, body, name, nil)

	if claim == nil && i.requireClick {
		i.orphaned.Add(1)
		slog.Warn("item response without a detail-view click, skipping", "request_id", ev.RequestID, "item", name)
		return
	}

	rec := types.MenuItemRecord{
		Name:       name,
		Payload:    json.RawMessage(body),
		RequestID:  ev.RequestID,
		URL:        ev.URL,
		ClickIndex: -1,
		CapturedAt: time.Now().UTC(),
	}
	if claim != nil {
		rec.ClickIndex = claim.index
	}

	i.results.Append(rec)
	i.captured.Add(1)
	slog.Info("menu item captured", "item", name, "click_index", rec.ClickIndex, "request_id", ev.RequestID, "bytes", len(body))

	if claim != nil {
		claim.ch <- rec
	}
}

func (i *Interceptor) claim() *armedClick {
	i.armMu.Lock()
	defer i.armMu.Unlock()
	if len(i.armed) == 0 {
		return nil
	}
	a := i.armed[0]
	i.armed = i.armed[1:]
	return a
}

// drop discards a matched response. Its armed click, if any, stays consumed.
func (i *Interceptor) drop(ev types.ResponseEvent, body []byte, err error) {
	i.dropped.Add(1)
	i.writeJournal(ev, body, "", err)
	slog.Warn("item response dropped", "request_id", ev.RequestID, "status", ev.Status, "error", err)
}

func (i *Interceptor) writeJournal(ev types.ResponseEvent, body []byte, name string, decodeErr error) {
	if i.journal == nil {
		return
	}
	entry := JournalEntry{
		Timestamp: time.Now().UTC(),
		RequestID: ev.RequestID,
		URL:       ev.URL,
		Status:    ev.Status,
		ItemName:  name,
	}
	if decodeErr != nil {
		entry.DecodeError = decodeErr.Error()
	}
	if len(body) > 0 {
		kept, truncated, originalSize, bodyHash := truncateBytes(body, i.maxBodyBytes)
		if utf8.Valid(kept) {
			entry.Body = string(kept)
		} else {
			entry.BodyBase64 = base64.StdEncoding.EncodeToString(kept)
		}
		if truncated {
			entry.Truncated = true
			entry.OriginalSize = originalSize
			entry.SHA256 = bodyHash
		}
	}
	if err := i.journal.Write(entry); err != nil {
		slog.Debug("journal write failed", "request_id", ev.RequestID, "error", err)
	}
}

func fetchBody(ctx context.Context, ev types.ResponseEvent) ([]byte, error) {
	if ev.Body == nil {
		return nil, types.NewResponseDecode("response has no body accessor", nil)
	}
	body, err := ev.Body(ctx)
	if err != nil {
		return nil, types.NewResponseDecode("fetch response body", err)
	}
	if len(body) == 0 {
		return nil, types.NewResponseDecode("empty response body", nil)
	}
	return body, nil
}

// decodeItemName extracts data.itemPage.itemHeader.name from an item-detail body.
func decodeItemName(body []byte) (string, error) {
	var env itemPageEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", types.NewResponseDecode("decode item page json", err)
	}
	if env.Data == nil || env.Data.ItemPage == nil || env.Data.ItemPage.ItemHeader == nil || env.Data.ItemPage.ItemHeader.Name == nil {
		return "", types.NewResponseDecode("missing data.itemPage.itemHeader.name", errors.New("field path absent"))
	}
	name := *env.Data.ItemPage.ItemHeader.Name
	if strings.TrimSpace(name) == "" {
		return "", types.NewResponseDecode("empty data.itemPage.itemHeader.name", nil)
	}
	return name, nil
}
