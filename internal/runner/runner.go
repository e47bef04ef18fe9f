// Package runner executes one capture run end to end: session, page,
// address entry, menu loop, drain and output.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgnsrekt/menu_agent/internal/browserctl"
	"github.com/dgnsrekt/menu_agent/internal/capture"
	"github.com/dgnsrekt/menu_agent/internal/config"
	"github.com/dgnsrekt/menu_agent/internal/menu"
	"github.com/dgnsrekt/menu_agent/internal/session"
	"github.com/dgnsrekt/menu_agent/internal/snapshot"
	"github.com/dgnsrekt/menu_agent/internal/storage"
	"github.com/dgnsrekt/menu_agent/internal/types"
	"github.com/google/uuid"
)

const defaultDrainTimeout = 15 * time.Second

// Result is the outcome of a successful run.
type Result struct {
	Records    []types.MenuItemRecord
	Loop       menu.Result
	Stats      capture.Stats
	OutputFile string
	Duration   time.Duration
}

// Runner wires a session provider, a browser connector and the capture flow.
type Runner struct {
	cfg          *config.Config
	provider     session.Provider
	connect      Connector
	journal      capture.Journal
	snapshots    SnapshotSaver
	drainTimeout time.Duration
}

// SnapshotSaver stores failure screenshots. snapshot.Store satisfies it.
type SnapshotSaver interface {
	Save(meta snapshot.Meta, image []byte) error
}

// Option configures a Runner.
type Option func(*Runner)

// WithConnector replaces the chromedp connector.
func WithConnector(c Connector) Option {
	return func(r *Runner) { r.connect = c }
}

// WithJournal records every matched response to j.
func WithJournal(j capture.Journal) Option {
	return func(r *Runner) { r.journal = j }
}

// WithSnapshots saves a screenshot of the page when a UI step fails.
func WithSnapshots(s SnapshotSaver) Option {
	return func(r *Runner) { r.snapshots = s }
}

// WithDrainTimeout bounds the wait for in-flight captures after the loop.
func WithDrainTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.drainTimeout = d
		}
	}
}

func New(cfg *config.Config, provider session.Provider, opts ...Option) *Runner {
	r := &Runner{
		cfg:          cfg,
		provider:     provider,
		connect:      ConnectChromedp,
		drainTimeout: defaultDrainTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run performs one capture. The session is stopped exactly once whenever it
// was started, and the output file is only written when every step succeeded.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	slog.Info("capture run starting", "provider", r.provider.Name(), "store_url", r.cfg.StoreURL)

	handle, err := r.provider.Start(ctx)
	if err != nil {
		if !types.HasCode(err, types.CodeSessionProvision) {
			err = types.NewSessionProvision(r.provider.Name(), err)
		}
		return nil, err
	}
	defer func() {
		if err := handle.Stop(); err != nil {
			slog.Error("session stop failed", "error", err)
		}
	}()

	res, err := r.capture(ctx, handle.ControlEndpoint())
	if err != nil {
		slog.Error("capture run failed", "error", err, "elapsed", time.Since(start))
		return nil, err
	}

	if r.cfg.OutputFile != "" {
		if err := storage.WriteResults(r.cfg.OutputFile, res.Records); err != nil {
			return nil, err
		}
		res.OutputFile = r.cfg.OutputFile
	}
	res.Duration = time.Since(start)
	slog.Info("capture run complete",
		"items", len(res.Records),
		"clicked", res.Loop.Clicked,
		"dropped", res.Stats.Dropped,
		"elapsed", res.Duration)
	return res, nil
}

func (r *Runner) capture(ctx context.Context, endpoint string) (*Result, error) {
	browser, err := r.connect(ctx, endpoint)
	if err != nil {
		return nil, types.NewSessionProvision("connect "+endpoint, err)
	}
	defer func() { _ = browser.Close() }()

	page, err := browser.NewPage(ctx, browserctl.Viewport{
		Width:  int64(r.cfg.ViewportWidth),
		Height: int64(r.cfg.ViewportHeight),
	}, r.cfg.StepTimeout())
	if err != nil {
		return nil, types.NewSessionProvision("open page", err)
	}
	defer func() { _ = page.Close() }()

	results := capture.NewResultSet()
	opts := []capture.Option{
		capture.WithBodyTimeout(r.cfg.StepTimeout()),
		capture.WithRequireClick(r.cfg.RequireClick),
	}
	if r.journal != nil {
		opts = append(opts, capture.WithJournal(r.journal, r.cfg.JournalMaxBody))
	}
	interceptor := capture.NewInterceptor(r.cfg.TargetEndpoint, results, opts...)
	page.OnResponse(interceptor.Observe)
	slog.Info("response interceptor registered", "endpoint", interceptor.Endpoint(), "require_click", r.cfg.RequireClick)

	if err := page.Goto(ctx, r.cfg.StoreURL); err != nil {
		return nil, err
	}

	if err := menu.NewSequencer(page, r.cfg.Address).Run(ctx); err != nil {
		r.snapshotFailure(page, err)
		return nil, err
	}

	var arm menu.Arming
	if r.cfg.CaptureWait() > 0 || r.cfg.RequireClick {
		arm = interceptor
	}
	loop := menu.NewCaptureLoop(page, arm, menu.LoopConfig{
		ItemSelector: browserctl.CSS(r.cfg.MenuItemSelector),
		CloseButton:  r.cfg.CloseButtonName,
		CaptureWait:  r.cfg.CaptureWait(),
		Pause:        r.cfg.ClickPause(),
	})
	loopRes, err := loop.Run(ctx)
	if err != nil {
		r.snapshotFailure(page, err)
		return nil, err
	}

	drainCtx, cancel := context.WithTimeout(ctx, r.drainTimeout)
	defer cancel()
	if err := interceptor.Wait(drainCtx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.Warn("captures still in flight after drain timeout", "timeout", r.drainTimeout)
	}

	stats := interceptor.Stats()
	records := results.Records()
	if loopRes.Count > 0 && len(records) == 0 {
		slog.Warn("menu items clicked but nothing captured", "count", loopRes.Count, "matched", stats.Matched)
	}
	slog.Info("captures collected", "records", len(records), "matched", stats.Matched, "dropped", stats.Dropped)

	return &Result{Records: records, Loop: loopRes, Stats: stats}, nil
}

// snapshotFailure screenshots the page after a UI failure. It never changes
// the run's outcome.
func (r *Runner) snapshotFailure(page Page, runErr error) {
	if r.snapshots == nil || !types.HasCode(runErr, types.CodeUIElementNotFound) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	img, err := page.Screenshot(ctx)
	if err != nil {
		slog.Warn("failure screenshot failed", "error", err)
		return
	}
	meta := snapshot.Meta{
		ID:        uuid.NewString(),
		Format:    "png",
		CreatedAt: time.Now().UTC(),
		StoreURL:  r.cfg.StoreURL,
		ErrorCode: types.CodeUIElementNotFound,
		Error:     runErr.Error(),
	}
	if err := r.snapshots.Save(meta, img); err != nil {
		slog.Warn("failure snapshot not saved", "error", err)
	}
}

// Summary is a one-line description of res for notifications.
func (res *Result) Summary() string {
	return fmt.Sprintf("captured %d menu items (%d clicked, %d dropped) in %s",
		len(res.Records), res.Loop.Clicked, res.Stats.Dropped, res.Duration.Round(time.Second))
}
