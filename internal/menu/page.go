// Package menu drives the store page: the address-entry sequence that unlocks
// the menu and the loop that opens and closes every menu item.
package menu

import (
	"context"

	"github.com/dgnsrekt/menu_agent/internal/browserctl"
)

// Page is the subset of browserctl.Page the menu flows need.
type Page interface {
	Count(ctx context.Context, sel browserctl.Selector) (int, error)
	Click(ctx context.Context, sel browserctl.Selector, nth int) error
	Fill(ctx context.Context, sel browserctl.Selector, nth int, value string) error
	SelectOption(ctx context.Context, sel browserctl.Selector, value string) error
}

var _ Page = (*browserctl.Page)(nil)
