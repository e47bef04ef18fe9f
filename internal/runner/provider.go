package runner

import (
	"fmt"

	"github.com/dgnsrekt/menu_agent/internal/config"
	"github.com/dgnsrekt/menu_agent/internal/session"
	"github.com/dgnsrekt/menu_agent/internal/types"
)

// NewProvider picks the session provider named by cfg.SessionProvider.
func NewProvider(cfg *config.Config) (session.Provider, error) {
	switch cfg.SessionProvider {
	case config.ProviderLocal:
		return session.NewLocalProvider(session.LocalConfig{
			CDPAddress: cfg.CDPAddress,
			CDPPort:    cfg.CDPPort,
			ProfileDir: cfg.ProfileDir,
			WindowSize: fmt.Sprintf("%d,%d", cfg.ViewportWidth, cfg.ViewportHeight),
			Headless:   cfg.Headless,
		}), nil
	case config.ProviderAttach:
		return session.NewAttachProvider(cfg.GetCDPURL()), nil
	case config.ProviderRemote:
		return session.NewRemoteProvider(session.RemoteConfig{
			BaseURL: cfg.SessionAPIURL,
			APIKey:  cfg.SessionAPIKey,
		}, nil), nil
	default:
		return nil, types.NewError(types.CodeValidation, fmt.Sprintf("unknown session provider %q", cfg.SessionProvider), nil)
	}
}
