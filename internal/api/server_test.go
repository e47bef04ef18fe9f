package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgnsrekt/menu_agent/internal/snapshot"
	"github.com/dgnsrekt/menu_agent/internal/types"
)

const testSnapshotID = "123e4567-e89b-12d3-a456-426614174000"

type stubService struct {
	active   bool
	runs     map[string]types.CaptureRun
	items    []types.MenuItemRecord
	startURL string
}

func newStubService() *stubService {
	return &stubService{runs: map[string]types.CaptureRun{
		"run-1": {ID: "run-1", Status: types.RunSucceeded, StoreURL: "https://www.doordash.com/store/x", Items: 2, StartedAt: time.Unix(0, 0).UTC()},
	}}
}

func (s *stubService) StartCapture(ctx context.Context, storeURL string) (types.CaptureRun, error) {
	if s.active {
		return types.CaptureRun{}, types.NewError(types.CodeRunActive, "capture run-1 is still running", nil)
	}
	if storeURL == "bad" {
		return types.CaptureRun{}, types.NewError(types.CodeValidation, "store_url must be an absolute http(s) URL", nil)
	}
	s.startURL = storeURL
	return types.CaptureRun{ID: "run-2", Status: types.RunRunning, StoreURL: storeURL}, nil
}

func (s *stubService) ListCaptures(ctx context.Context) ([]types.CaptureRun, error) {
	out := make([]types.CaptureRun, 0, len(s.runs))
	for _, r := range s.runs {
		out = append(out, r)
	}
	return out, nil
}

func (s *stubService) GetCapture(ctx context.Context, id string) (types.CaptureRun, error) {
	run, ok := s.runs[id]
	if !ok {
		return types.CaptureRun{}, types.NewError(types.CodeRunNotFound, "capture "+id+" not found", nil)
	}
	return run, nil
}

func (s *stubService) GetCaptureItems(ctx context.Context, id string) ([]types.MenuItemRecord, error) {
	if _, err := s.GetCapture(ctx, id); err != nil {
		return nil, err
	}
	return s.items, nil
}

func (s *stubService) ListSnapshots(ctx context.Context) ([]snapshot.Meta, error) {
	return []snapshot.Meta{{ID: testSnapshotID, Format: "png", ErrorCode: types.CodeUIElementNotFound}}, nil
}

func (s *stubService) GetSnapshot(ctx context.Context, id string) (snapshot.Meta, error) {
	if id != testSnapshotID {
		return snapshot.Meta{}, types.NewError(types.CodeSnapshotNotFound, "snapshot "+id+" not found", nil)
	}
	return snapshot.Meta{ID: id, Format: "png", SizeBytes: 4}, nil
}

func (s *stubService) ReadSnapshotImage(ctx context.Context, id string) ([]byte, string, error) {
	if _, err := s.GetSnapshot(ctx, id); err != nil {
		return nil, "", err
	}
	return []byte("\x89PNG"), "png", nil
}

func serve(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestDocsDarkMode(t *testing.T) {
	w := serve(t, NewServer(newStubService()), http.MethodGet, "/docs", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), `data-theme="dark"`) {
		t.Fatalf("docs missing dark theme marker")
	}
}

func TestHealth(t *testing.T) {
	w := serve(t, NewServer(newStubService()), http.MethodGet, "/health", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"ok"`) {
		t.Fatalf("health = %d %s", w.Code, w.Body.String())
	}
}

func TestStartCapture(t *testing.T) {
	svc := newStubService()
	h := NewServer(svc)

	w := serve(t, h, http.MethodPost, "/api/v1/captures", `{"store_url":"https://www.doordash.com/store/y"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusAccepted, w.Body.String())
	}
	var run types.CaptureRun
	if err := json.Unmarshal(w.Body.Bytes(), &run); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if run.ID != "run-2" || svc.startURL != "https://www.doordash.com/store/y" {
		t.Fatalf("run = %+v, startURL = %q", run, svc.startURL)
	}

	svc.active = true
	if w := serve(t, h, http.MethodPost, "/api/v1/captures", `{}`); w.Code != http.StatusConflict {
		t.Fatalf("status while active = %d, want %d", w.Code, http.StatusConflict)
	}

	svc.active = false
	if w := serve(t, h, http.MethodPost, "/api/v1/captures", `{"store_url":"bad"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("status for bad url = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestGetCapture(t *testing.T) {
	h := NewServer(newStubService())

	if w := serve(t, h, http.MethodGet, "/api/v1/captures/run-1", ""); w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if w := serve(t, h, http.MethodGet, "/api/v1/captures/nope", ""); w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}

	w := serve(t, h, http.MethodGet, "/api/v1/captures", "")
	var list struct {
		Captures []types.CaptureRun `json:"captures"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Captures) != 1 {
		t.Fatalf("captures = %d, want 1", len(list.Captures))
	}
}

func TestGetCaptureItemsShape(t *testing.T) {
	svc := newStubService()
	svc.items = []types.MenuItemRecord{
		{Name: "Orange Chicken", Payload: json.RawMessage(`{"data":{"itemPage":{"itemHeader":{"name":"Orange Chicken"}}}}`)},
		{Name: "Chow Mein", Payload: json.RawMessage(`{"data":{"itemPage":{"itemHeader":{"name":"Chow Mein"}}}}`)},
	}

	w := serve(t, NewServer(svc), http.MethodGet, "/api/v1/captures/run-1/items", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var items []map[string]json.RawMessage
	if err := json.Unmarshal(w.Body.Bytes(), &items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2", len(items))
	}
	if _, ok := items[0]["Orange Chicken"]; !ok {
		t.Fatalf("first item keys = %v", items[0])
	}
}

func TestSnapshots(t *testing.T) {
	h := NewServer(newStubService())

	w := serve(t, h, http.MethodGet, "/api/v1/snapshots", "")
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d; body=%s", w.Code, w.Body.String())
	}
	var list struct {
		Snapshots []snapshot.Meta `json:"snapshots"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil || len(list.Snapshots) != 1 {
		t.Fatalf("list = %s (%v); want one snapshot", w.Body.String(), err)
	}

	w = serve(t, h, http.MethodGet, "/api/v1/snapshots/"+testSnapshotID+"/metadata", "")
	if w.Code != http.StatusOK {
		t.Fatalf("metadata status = %d; body=%s", w.Code, w.Body.String())
	}

	w = serve(t, h, http.MethodGet, "/api/v1/snapshots/"+testSnapshotID+"/image", "")
	if w.Code != http.StatusOK {
		t.Fatalf("image status = %d; body=%s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("Content-Type = %q; want image/png", ct)
	}
	if w.Body.String() != "\x89PNG" {
		t.Fatalf("image body = %q", w.Body.String())
	}

	w = serve(t, h, http.MethodGet, "/api/v1/snapshots/missing/image", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing image status = %d; want 404", w.Code)
	}
}
