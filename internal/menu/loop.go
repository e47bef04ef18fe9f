package menu

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgnsrekt/menu_agent/internal/browserctl"
	"github.com/dgnsrekt/menu_agent/internal/types"
)

// Arming is implemented by capture.Interceptor. A nil Arming disables
// click correlation. Release is called once the item's detail view is closed.
type Arming interface {
	Arm(clickIndex int) (captured <-chan types.MenuItemRecord, release func())
}

// LoopConfig configures a CaptureLoop.
type LoopConfig struct {
	ItemSelector browserctl.Selector
	CloseButton  string
	// CaptureWait bounds how long each click waits for its capture. Zero never waits.
	CaptureWait time.Duration
	Pause       time.Duration
}

// Result summarises one loop.
type Result struct {
	Count   int `json:"count"`
	Clicked int `json:"clicked"`
	Matched int `json:"matched"`
}

// CaptureLoop opens and closes the detail view of every rendered menu item.
// The item count is fixed once at the start and items are addressed by
// position.
type CaptureLoop struct {
	page  Page
	arm   Arming
	cfg   LoopConfig
	close browserctl.Selector
}

func NewCaptureLoop(page Page, arm Arming, cfg LoopConfig) *CaptureLoop {
	if cfg.CloseButton == "" {
		cfg.CloseButton = "Close"
	}
	return &CaptureLoop{
		page:  page,
		arm:   arm,
		cfg:   cfg,
		close: browserctl.ByRole("button", cfg.CloseButton),
	}
}

// Run clicks each item then its close button. Any failed click aborts the
// loop with an error carrying the item index.
func (l *CaptureLoop) Run(ctx context.Context) (Result, error) {
	count, err := l.page.Count(ctx, l.cfg.ItemSelector)
	if err != nil {
		return Result{}, fmt.Errorf("count menu items: %w", err)
	}
	slog.Info("menu items found", "count", count, "selector", l.cfg.ItemSelector.String())

	res := Result{Count: count}
	for i := 0; i < count; i++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		matched, err := l.visit(ctx, i)
		if err != nil {
			return res, err
		}
		if matched {
			res.Matched++
		}
		res.Clicked++
		slog.Debug("menu item visited", "index", i, "of", count)

		if l.cfg.Pause > 0 && i < count-1 {
			select {
			case <-ctx.Done():
				return res, ctx.Err()
			case <-time.After(l.cfg.Pause):
			}
		}
	}
	slog.Info("menu loop complete", "count", res.Count, "clicked", res.Clicked, "matched", res.Matched)
	return res, nil
}

// visit opens item i, waits for its capture when armed and closes it again.
// The arm never outlives the visit.
func (l *CaptureLoop) visit(ctx context.Context, i int) (bool, error) {
	var captured <-chan types.MenuItemRecord
	if l.arm != nil {
		var release func()
		captured, release = l.arm.Arm(i)
		defer release()
	}

	if err := l.page.Click(ctx, l.cfg.ItemSelector, i); err != nil {
		return false, types.NewUIElementNotFound(fmt.Sprintf("open menu item %d", i), err)
	}
	matched := l.awaitCapture(ctx, i, captured)
	if err := l.page.Click(ctx, l.close, 0); err != nil {
		return matched, types.NewUIElementNotFound(fmt.Sprintf("close menu item %d", i), err)
	}
	return matched, nil
}

// awaitCapture waits up to CaptureWait for the click's record. A timeout is
// logged and tolerated.
func (l *CaptureLoop) awaitCapture(ctx context.Context, index int, captured <-chan types.MenuItemRecord) bool {
	if captured == nil || l.cfg.CaptureWait <= 0 {
		return false
	}
	timer := time.NewTimer(l.cfg.CaptureWait)
	defer timer.Stop()
	select {
	case rec := <-captured:
		slog.Debug("click captured", "index", index, "item", rec.Name)
		return true
	case <-timer.C:
		slog.Warn("no item response for click", "index", index, "waited", l.cfg.CaptureWait)
	case <-ctx.Done():
	}
	return false
}
