package session

import (
	"context"
	"log/slog"

	"github.com/dgnsrekt/menu_agent/internal/types"
)

// AttachProvider hands out an already-running browser. Stop leaves it running.
type AttachProvider struct {
	endpoint string
}

func NewAttachProvider(endpoint string) *AttachProvider {
	return &AttachProvider{endpoint: endpoint}
}

func (p *AttachProvider) Name() string { return "attach" }

func (p *AttachProvider) Start(ctx context.Context) (Handle, error) {
	if err := Probe(ctx, p.endpoint); err != nil {
		return nil, types.NewSessionProvision("attach to "+p.endpoint, err)
	}
	slog.Info("attached to running browser", "endpoint", p.endpoint)
	return attachHandle{endpoint: p.endpoint}, nil
}

type attachHandle struct {
	endpoint string
}

func (h attachHandle) ControlEndpoint() string { return h.endpoint }

func (h attachHandle) Stop() error {
	slog.Debug("attached browser left running", "endpoint", h.endpoint)
	return nil
}
