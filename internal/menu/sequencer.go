package menu

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/dgnsrekt/menu_agent/internal/browserctl"
	"github.com/dgnsrekt/menu_agent/internal/types"
)

// Address-entry locators.
var (
	enterAddressText   = browserctl.ByText("Enter address")
	addressPlaceholder = browserctl.ByPlaceholder("Address")
	manualEntryButton  = browserctl.CSS("span[data-testid='ManualAddressEntryButton']")
	countryLabel       = browserctl.ByLabel("Country")
	streetLabel        = browserctl.ByLabel("Street Address")
	cityLabel          = browserctl.ByLabel("City")
	provinceLabel      = browserctl.ByLabel("Province/Territory")
	postalCodeLabel    = browserctl.ByLabel("Postal code")
	formSubmitButton   = browserctl.CSS("button[data-testid='manual-address-form-submit']")
	confirmButton      = browserctl.CSS("button[data-testid='manual-address-confirmation-btn']")
	addressSaveButton  = browserctl.CSS("button[data-anchor-id='AddressEditSave']")
	seeMenuText        = browserctl.ByText("See Menu")
)

// step is one UI action of the address-entry sequence.
type step struct {
	name string
	do   func(ctx context.Context, p Page) error
}

// Sequencer enters a delivery address so the store renders its menu. It is
// single-use: the page is in a different state after one run.
type Sequencer struct {
	page  Page
	steps []step
	used  atomic.Bool
}

// NewSequencer builds the address-entry sequence for addr.
func NewSequencer(page Page, addr types.AddressInput) *Sequencer {
	return &Sequencer{page: page, steps: addressSteps(addr)}
}

func addressSteps(addr types.AddressInput) []step {
	click := func(name string, sel browserctl.Selector, nth int) step {
		return step{name: name, do: func(ctx context.Context, p Page) error { return p.Click(ctx, sel, nth) }}
	}
	return []step{
		click("open address picker", enterAddressText, 0),
		{name: "type street address", do: func(ctx context.Context, p Page) error {
			// The first "Address" placeholder is the header search box.
			return p.Fill(ctx, addressPlaceholder, 1, addr.StreetAddress)
		}},
		click("switch to manual entry", manualEntryButton, 0),
		{name: "select country", do: func(ctx context.Context, p Page) error {
			return p.SelectOption(ctx, countryLabel, addr.Country)
		}},
		{name: "fill address form", do: func(ctx context.Context, p Page) error {
			fields := []struct {
				sel   browserctl.Selector
				value string
			}{
				{streetLabel, addr.StreetAddress},
				{cityLabel, addr.City},
				{provinceLabel, addr.Province},
				{postalCodeLabel, addr.PostalCode},
			}
			for _, f := range fields {
				if err := p.Fill(ctx, f.sel, 0, f.value); err != nil {
					return err
				}
			}
			return nil
		}},
		click("submit address form", formSubmitButton, 0),
		click("confirm address", confirmButton, 0),
		click("save address", addressSaveButton, 0),
		click("open menu", seeMenuText, 0),
	}
}

// Run performs every step in order. The first failure aborts the sequence.
func (s *Sequencer) Run(ctx context.Context) error {
	if !s.used.CompareAndSwap(false, true) {
		return types.NewError(types.CodeValidation, "address sequencer already ran", nil)
	}
	for n, st := range s.steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		slog.Info("address step", "step", n+1, "name", st.name)
		if err := st.do(ctx, s.page); err != nil {
			if types.HasCode(err, types.CodeUIElementNotFound) {
				return types.NewUIElementNotFound(fmt.Sprintf("address step %d (%s)", n+1, st.name), err)
			}
			return fmt.Errorf("address step %d (%s): %w", n+1, st.name, err)
		}
	}
	slog.Info("address entered, menu visible")
	return nil
}
