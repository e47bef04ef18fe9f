package browserctl

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/dgnsrekt/menu_agent/internal/types"
)

const (
	defaultStepTimeout = 30 * time.Second
	bodyFetchTimeout   = 10 * time.Second
	pendingMaxAge      = 5 * time.Minute
)

// Viewport is the emulated window size of a new page.
type Viewport struct {
	Width  int64
	Height int64
}

// Browser is a chromedp connection to a remote browser's CDP endpoint.
type Browser struct {
	endpoint    string
	allocCtx    context.Context
	allocCancel context.CancelFunc
}

// Connect prepares a remote allocator for endpoint. The websocket is dialled
// lazily by the first page.
func Connect(ctx context.Context, endpoint string) (*Browser, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("browserctl: empty control endpoint")
	}
	slog.Info("connecting to browser", "endpoint", endpoint)
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(ctx, endpoint)
	return &Browser{endpoint: endpoint, allocCtx: allocCtx, allocCancel: allocCancel}, nil
}

// Close drops the connection. The remote browser itself keeps running; its
// owner stops it.
func (b *Browser) Close() error {
	if b.allocCancel != nil {
		b.allocCancel()
	}
	slog.Info("browser connection closed", "endpoint", b.endpoint)
	return nil
}

type pendingResponse struct {
	url      string
	status   int
	mimeType string
	seen     time.Time
}

// Page is one browser tab driven through chromedp.
type Page struct {
	ctx         context.Context
	cancel      context.CancelFunc
	stepTimeout time.Duration

	handlersMu sync.RWMutex
	handlers   []types.ResponseHandler

	pendingMu sync.Mutex
	pending   map[network.RequestID]*pendingResponse
}

// NewPage opens a new tab with the given viewport and enables network events.
func (b *Browser) NewPage(ctx context.Context, vp Viewport, stepTimeout time.Duration) (*Page, error) {
	if stepTimeout <= 0 {
		stepTimeout = defaultStepTimeout
	}
	tabCtx, tabCancel := chromedp.NewContext(b.allocCtx)
	p := &Page{
		ctx:         tabCtx,
		cancel:      tabCancel,
		stepTimeout: stepTimeout,
		pending:     make(map[network.RequestID]*pendingResponse),
	}

	// The first Run allocates the tab and binds its lifetime to tabCtx, so it
	// must not carry the step timeout.
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		return nil, fmt.Errorf("browserctl: attach page: %w", err)
	}
	chromedp.ListenTarget(tabCtx, p.handleEvent)

	runCtx, runCancel := p.stepContext(ctx)
	defer runCancel()
	if err := chromedp.Run(runCtx,
		network.Enable(),
		page.Enable(),
		chromedp.EmulateViewport(vp.Width, vp.Height),
	); err != nil {
		tabCancel()
		return nil, fmt.Errorf("browserctl: open page: %w", err)
	}

	go p.cleanupLoop()
	slog.Info("page opened", "viewport_width", vp.Width, "viewport_height", vp.Height)
	return p, nil
}

// OnResponse subscribes h to every finished response on the page.
func (p *Page) OnResponse(h types.ResponseHandler) {
	p.handlersMu.Lock()
	p.handlers = append(p.handlers, h)
	p.handlersMu.Unlock()
}

// Goto navigates the page and waits for the load event.
func (p *Page) Goto(ctx context.Context, url string) error {
	navCtx, cancel := p.stepContext(ctx)
	defer cancel()
	slog.Info("navigating", "url", url)
	if err := chromedp.Run(navCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("browserctl: navigate %s: %w", url, err)
	}
	return nil
}

// Count returns how many elements currently match sel without waiting.
func (p *Page) Count(ctx context.Context, sel Selector) (int, error) {
	runCtx, cancel := p.stepContext(ctx)
	defer cancel()
	var nodes []*cdp.Node
	if err := chromedp.Run(runCtx, chromedp.Nodes(sel.Query, &nodes, queryOpts(sel, chromedp.AtLeast(0))...)); err != nil {
		return 0, fmt.Errorf("browserctl: count %s: %w", sel, err)
	}
	return len(nodes), nil
}

// Click waits for the nth match of sel and clicks its centre.
func (p *Page) Click(ctx context.Context, sel Selector, nth int) error {
	return p.withNode(ctx, sel, nth, "click", func(ctx context.Context, node *cdp.Node) error {
		return chromedp.MouseClickNode(node).Do(ctx)
	})
}

// Fill waits for the nth match of sel, clears it and types value.
func (p *Page) Fill(ctx context.Context, sel Selector, nth int, value string) error {
	return p.withNode(ctx, sel, nth, "fill", func(ctx context.Context, node *cdp.Node) error {
		ids := []cdp.NodeID{node.NodeID}
		if err := chromedp.Clear(ids, chromedp.ByNodeID).Do(ctx); err != nil {
			return err
		}
		return chromedp.SendKeys(ids, value, chromedp.ByNodeID).Do(ctx)
	})
}

// SelectOption picks the option of the first matching <select> whose value or
// visible label equals value, then fires input and change events.
func (p *Page) SelectOption(ctx context.Context, sel Selector, value string) error {
	return p.withNode(ctx, sel, 0, "select", func(ctx context.Context, node *cdp.Node) error {
		obj, err := dom.ResolveNode().WithNodeID(node.NodeID).Do(ctx)
		if err != nil {
			return err
		}
		_, exc, err := runtime.CallFunctionOn(jsSelectOption(value)).
			WithObjectID(obj.ObjectID).
			WithAwaitPromise(false).
			Do(ctx)
		if err != nil {
			return err
		}
		if exc != nil {
			return fmt.Errorf("select option %q: %s", value, exc.Text)
		}
		return nil
	})
}

// Screenshot captures the current viewport as PNG.
func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	runCtx, cancel := p.stepContext(ctx)
	defer cancel()
	var buf []byte
	if err := chromedp.Run(runCtx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("browserctl: screenshot: %w", err)
	}
	return buf, nil
}

// Close closes the tab.
func (p *Page) Close() error {
	p.cancel()
	return nil
}

func (p *Page) withNode(ctx context.Context, sel Selector, nth int, verb string, fn func(context.Context, *cdp.Node) error) error {
	if nth < 0 {
		return types.NewError(types.CodeValidation, fmt.Sprintf("%s %s: negative index %d", verb, sel, nth), nil)
	}
	runCtx, cancel := p.stepContext(ctx)
	defer cancel()

	step := fmt.Sprintf("%s %s [%d]", verb, sel, nth)
	var nodes []*cdp.Node
	if err := chromedp.Run(runCtx, chromedp.Nodes(sel.Query, &nodes, queryOpts(sel, chromedp.AtLeast(nth+1))...)); err != nil {
		return types.NewUIElementNotFound(step, err)
	}
	if nth >= len(nodes) {
		return types.NewUIElementNotFound(step, fmt.Errorf("%d matches", len(nodes)))
	}

	slog.Debug("ui action", "action", verb, "selector", sel.String(), "index", nth)
	if err := chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		return fn(ctx, nodes[nth])
	})); err != nil {
		return types.NewUIElementNotFound(step, err)
	}
	return nil
}

// stepContext bounds a chromedp call by the step timeout and the caller's ctx.
func (p *Page) stepContext(ctx context.Context) (context.Context, context.CancelFunc) {
	stepCtx, cancel := context.WithTimeout(p.ctx, p.stepTimeout)
	stop := context.AfterFunc(ctx, cancel)
	return stepCtx, func() {
		stop()
		cancel()
	}
}

func queryOpts(sel Selector, extra ...chromedp.QueryOption) []chromedp.QueryOption {
	opts := make([]chromedp.QueryOption, 0, len(extra)+1)
	if sel.Kind == KindXPath {
		opts = append(opts, chromedp.BySearch)
	} else {
		opts = append(opts, chromedp.ByQueryAll)
	}
	return append(opts, extra...)
}

func (p *Page) handleEvent(ev interface{}) {
	switch e := ev.(type) {
	case *page.EventFrameNavigated:
		if e.Frame.ParentID == "" {
			slog.Debug("page navigated", "url", truncateURL(e.Frame.URL))
		}
	case *network.EventResponseReceived:
		p.pendingMu.Lock()
		p.pending[e.RequestID] = &pendingResponse{
			url:      e.Response.URL,
			status:   int(e.Response.Status),
			mimeType: e.Response.MimeType,
			seen:     time.Now(),
		}
		p.pendingMu.Unlock()
	case *network.EventLoadingFinished:
		p.pendingMu.Lock()
		resp, ok := p.pending[e.RequestID]
		delete(p.pending, e.RequestID)
		p.pendingMu.Unlock()
		if !ok {
			return
		}
		p.dispatch(types.ResponseEvent{
			RequestID: string(e.RequestID),
			URL:       resp.url,
			Status:    resp.status,
			MimeType:  resp.mimeType,
			Body:      p.bodyFetcher(e.RequestID),
		})
	case *network.EventLoadingFailed:
		p.pendingMu.Lock()
		delete(p.pending, e.RequestID)
		p.pendingMu.Unlock()
	}
}

func (p *Page) dispatch(ev types.ResponseEvent) {
	p.handlersMu.RLock()
	handlers := p.handlers
	p.handlersMu.RUnlock()
	for _, h := range handlers {
		h(ev)
	}
}

// bodyFetcher returns a lazy accessor; it must not be called from the event
// listener goroutine itself.
func (p *Page) bodyFetcher(id network.RequestID) func(context.Context) ([]byte, error) {
	return func(ctx context.Context) ([]byte, error) {
		bodyCtx, cancel := context.WithTimeout(p.ctx, bodyFetchTimeout)
		defer cancel()
		stop := context.AfterFunc(ctx, cancel)
		defer stop()

		var body []byte
		err := chromedp.Run(bodyCtx, chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			body, err = network.GetResponseBody(id).Do(ctx)
			return err
		}))
		return body, err
	}
}

func (p *Page) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.cleanupStale(time.Now().Add(-pendingMaxAge))
		case <-p.ctx.Done():
			return
		}
	}
}

func (p *Page) cleanupStale(threshold time.Time) {
	p.pendingMu.Lock()
	defer p.pendingMu.Unlock()
	for id, resp := range p.pending {
		if resp.seen.Before(threshold) {
			delete(p.pending, id)
		}
	}
}

func truncateURL(url string) string {
	if len(url) > 120 {
		return url[:120] + "..."
	}
	return url
}
