package runner

import (
	"context"
	"time"

	"github.com/dgnsrekt/menu_agent/internal/browserctl"
	"github.com/dgnsrekt/menu_agent/internal/menu"
	"github.com/dgnsrekt/menu_agent/internal/types"
)

// Browser is a connected browser that can open pages.
type Browser interface {
	NewPage(ctx context.Context, vp browserctl.Viewport, stepTimeout time.Duration) (Page, error)
	Close() error
}

// Page is a tab the run drives.
type Page interface {
	menu.Page
	OnResponse(h types.ResponseHandler)
	Goto(ctx context.Context, url string) error
	Screenshot(ctx context.Context) ([]byte, error)
	Close() error
}

// Connector attaches to a control endpoint.
type Connector func(ctx context.Context, endpoint string) (Browser, error)

// ConnectChromedp is the default Connector.
func ConnectChromedp(ctx context.Context, endpoint string) (Browser, error) {
	b, err := browserctl.Connect(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	return chromedpBrowser{b}, nil
}

type chromedpBrowser struct {
	*browserctl.Browser
}

func (b chromedpBrowser) NewPage(ctx context.Context, vp browserctl.Viewport, stepTimeout time.Duration) (Page, error) {
	p, err := b.Browser.NewPage(ctx, vp, stepTimeout)
	if err != nil {
		return nil, err
	}
	return p, nil
}
