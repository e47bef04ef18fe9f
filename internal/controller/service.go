package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dgnsrekt/menu_agent/internal/config"
	"github.com/dgnsrekt/menu_agent/internal/notify"
	"github.com/dgnsrekt/menu_agent/internal/runner"
	"github.com/dgnsrekt/menu_agent/internal/snapshot"
	"github.com/dgnsrekt/menu_agent/internal/storage"
	"github.com/dgnsrekt/menu_agent/internal/types"
	"github.com/google/uuid"
)

// RunFunc performs one capture with cfg.
type RunFunc func(ctx context.Context, cfg *config.Config) (*runner.Result, error)

// DefaultRunFunc provisions a session from cfg and runs a capture on it.
func DefaultRunFunc(ctx context.Context, cfg *config.Config) (*runner.Result, error) {
	provider, err := runner.NewProvider(cfg)
	if err != nil {
		return nil, err
	}
	var opts []runner.Option
	if cfg.JournalDir != "" {
		journal := storage.NewJSONLWriter(cfg.JournalDir, "item_responses", 256, cfg.JournalMaxSizeMB)
		defer func() { _ = journal.Close() }()
		opts = append(opts, runner.WithJournal(journal))
	}
	if cfg.SnapshotDir != "" {
		store, err := snapshot.NewStore(cfg.SnapshotDir)
		if err != nil {
			return nil, err
		}
		opts = append(opts, runner.WithSnapshots(store))
	}
	return runner.New(cfg, provider, opts...).Run(ctx)
}

// Service runs captures in the background, one at a time, and keeps their status.
type Service struct {
	base       *config.Config
	captureDir string
	run        RunFunc
	snaps      *snapshot.Store

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	runs   map[string]*types.CaptureRun
	active string
}

func NewService(base *config.Config, captureDir string, run RunFunc) *Service {
	if run == nil {
		run = DefaultRunFunc
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		base:       base,
		captureDir: captureDir,
		run:        run,
		ctx:        ctx,
		cancel:     cancel,
		runs:       make(map[string]*types.CaptureRun),
	}
	if base.SnapshotDir != "" {
		snaps, err := snapshot.NewStore(base.SnapshotDir)
		if err != nil {
			slog.Warn("snapshot store unavailable", "dir", base.SnapshotDir, "error", err)
		} else {
			s.snaps = snaps
		}
	}
	return s
}

// StartCapture launches a run against storeURL, or the configured store when empty.
func (s *Service) StartCapture(ctx context.Context, storeURL string) (types.CaptureRun, error) {
	storeURL = strings.TrimSpace(storeURL)
	if storeURL == "" {
		storeURL = s.base.StoreURL
	}
	if err := validateStoreURL(storeURL); err != nil {
		return types.CaptureRun{}, err
	}

	s.mu.Lock()
	if s.active != "" {
		active := s.active
		s.mu.Unlock()
		return types.CaptureRun{}, types.NewError(types.CodeRunActive, fmt.Sprintf("capture %s is still running", active), nil)
	}
	id := uuid.NewString()
	cfg := *s.base
	cfg.StoreURL = storeURL
	cfg.OutputFile = filepath.Join(s.captureDir, id+".json")
	run := &types.CaptureRun{
		ID:        id,
		Status:    types.RunRunning,
		StoreURL:  storeURL,
		StartedAt: time.Now().UTC(),
	}
	s.runs[id] = run
	s.active = id
	snapshot := *run
	s.mu.Unlock()

	slog.Info("capture started", "run_id", id, "store_url", storeURL)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		res, err := s.run(s.ctx, &cfg)
		s.finish(id, res, err)
	}()
	return snapshot, nil
}

func (s *Service) finish(id string, res *runner.Result, err error) {
	now := time.Now().UTC()

	s.mu.Lock()
	run := s.runs[id]
	run.FinishedAt = &now
	if err != nil {
		run.Status = types.RunFailed
		run.Error = err.Error()
		var coded *types.CodedError
		if errors.As(err, &coded) {
			run.ErrorCode = coded.Code
		}
	} else {
		run.Status = types.RunSucceeded
		run.Items = len(res.Records)
		run.Clicked = res.Loop.Clicked
		run.Dropped = res.Stats.Dropped
		run.OutputFile = res.OutputFile
	}
	s.active = ""
	s.mu.Unlock()

	if err != nil {
		slog.Error("capture failed", "run_id", id, "error", err)
	} else {
		slog.Info("capture finished", "run_id", id, "items", len(res.Records))
	}
	s.notify(id, res, err)
}

func (s *Service) notify(id string, res *runner.Result, err error) {
	if s.base.NotifyEndpoint == "" {
		return
	}
	msg := notify.RunFailed(id, err)
	if err == nil {
		msg = notify.RunCompleted(id, res.Summary())
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if sendErr := notify.Send(ctx, nil, s.base.NotifyEndpoint, msg); sendErr != nil {
		slog.Warn("notification failed", "run_id", id, "error", sendErr)
	}
}

// ListCaptures returns every known run, newest first.
func (s *Service) ListCaptures(ctx context.Context) ([]types.CaptureRun, error) {
	s.mu.Lock()
	out := make([]types.CaptureRun, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, *run)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

func (s *Service) GetCapture(ctx context.Context, id string) (types.CaptureRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[strings.TrimSpace(id)]
	if !ok {
		return types.CaptureRun{}, types.NewError(types.CodeRunNotFound, fmt.Sprintf("capture %s not found", id), nil)
	}
	return *run, nil
}

// GetCaptureItems reads back the output file of a succeeded run.
func (s *Service) GetCaptureItems(ctx context.Context, id string) ([]types.MenuItemRecord, error) {
	run, err := s.GetCapture(ctx, id)
	if err != nil {
		return nil, err
	}
	if run.Status != types.RunSucceeded {
		return nil, types.NewError(types.CodeValidation, fmt.Sprintf("capture %s has no items (status=%s)", run.ID, run.Status), nil)
	}
	return storage.ReadResults(run.OutputFile)
}

// ListSnapshots returns the failure screenshots of past runs, newest first.
func (s *Service) ListSnapshots(ctx context.Context) ([]snapshot.Meta, error) {
	if s.snaps == nil {
		return []snapshot.Meta{}, nil
	}
	return s.snaps.List()
}

func (s *Service) GetSnapshot(ctx context.Context, id string) (snapshot.Meta, error) {
	if s.snaps == nil {
		return snapshot.Meta{}, snapshotNotFound(id, nil)
	}
	meta, err := s.snaps.Get(strings.TrimSpace(id))
	if err != nil {
		return snapshot.Meta{}, snapshotNotFound(id, err)
	}
	return meta, nil
}

func (s *Service) ReadSnapshotImage(ctx context.Context, id string) ([]byte, string, error) {
	if s.snaps == nil {
		return nil, "", snapshotNotFound(id, nil)
	}
	data, format, err := s.snaps.ReadImage(strings.TrimSpace(id))
	if err != nil {
		return nil, "", snapshotNotFound(id, err)
	}
	return data, format, nil
}

func snapshotNotFound(id string, cause error) error {
	return types.NewError(types.CodeSnapshotNotFound, fmt.Sprintf("snapshot %s not found", id), cause)
}

// Shutdown cancels an active run and waits for it to stop.
func (s *Service) Shutdown(ctx context.Context) error {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func validateStoreURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return types.NewError(types.CodeValidation, fmt.Sprintf("store_url must be an absolute http(s) URL, got %q", raw), nil)
	}
	return nil
}
