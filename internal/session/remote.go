package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dgnsrekt/menu_agent/internal/types"
)

// RemoteConfig configures a hosted browser provisioning API.
type RemoteConfig struct {
	BaseURL     string
	APIKey      string
	StopTimeout time.Duration
}

// RemoteProvider provisions browsers through a hosted instance API:
//
//	POST /v1/start                         -> {"id": ...}
//	POST /v1/instance/{id}/browser/start   -> {"cdp_url": ...}
//	GET  /v1/instance/{id}/browser/cdp_url -> {"cdp_url": ...}
//	POST /v1/instance/{id}/stop
type RemoteProvider struct {
	cfg    RemoteConfig
	client *http.Client
}

func NewRemoteProvider(cfg RemoteConfig, client *http.Client) *RemoteProvider {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &RemoteProvider{cfg: cfg, client: client}
}

func (p *RemoteProvider) Name() string { return "remote" }

// Start provisions an instance, starts its browser and probes the CDP URL.
// If anything after instance creation fails the instance is stopped again.
func (p *RemoteProvider) Start(ctx context.Context) (Handle, error) {
	var started struct {
		ID string `json:"id"`
	}
	if err := p.call(ctx, http.MethodPost, "/v1/start", map[string]string{"instance_type": "browser"}, &started); err != nil {
		return nil, types.NewSessionProvision("start instance", err)
	}
	if started.ID == "" {
		return nil, types.NewSessionProvision("start instance", fmt.Errorf("empty instance id"))
	}
	slog.Info("remote instance started", "instance_id", started.ID)

	h := &remoteHandle{provider: p, id: started.ID}

	endpoint, err := p.cdpURL(ctx, started.ID)
	if err != nil {
		_ = h.Stop()
		return nil, types.NewSessionProvision("resolve cdp url", err)
	}
	h.endpoint = endpoint

	if err := Probe(ctx, endpoint); err != nil {
		_ = h.Stop()
		return nil, types.NewSessionProvision("probe remote browser", err)
	}
	return h, nil
}

func (p *RemoteProvider) cdpURL(ctx context.Context, id string) (string, error) {
	var out struct {
		CDPURL string `json:"cdp_url"`
	}
	if err := p.call(ctx, http.MethodPost, "/v1/instance/"+id+"/browser/start", nil, &out); err != nil {
		return "", err
	}
	if out.CDPURL != "" {
		return out.CDPURL, nil
	}
	if err := p.call(ctx, http.MethodGet, "/v1/instance/"+id+"/browser/cdp_url", nil, &out); err != nil {
		return "", err
	}
	if out.CDPURL == "" {
		return "", fmt.Errorf("instance %s returned no cdp_url", id)
	}
	return out.CDPURL, nil
}

func (p *RemoteProvider) call(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.cfg.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("x-api-key", p.cfg.APIKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status=%d body=%q", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return fmt.Errorf("%s %s: decode: %w", method, path, err)
	}
	return nil
}

type remoteHandle struct {
	provider *RemoteProvider
	id       string
	endpoint string

	once    sync.Once
	stopErr error
}

func (h *remoteHandle) ControlEndpoint() string { return h.endpoint }

// Stop stops the remote instance once; later calls return the first result.
func (h *remoteHandle) Stop() error {
	h.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), h.provider.cfg.StopTimeout)
		defer cancel()
		slog.Info("stopping remote instance", "instance_id", h.id)
		if err := h.provider.call(ctx, http.MethodPost, "/v1/instance/"+h.id+"/stop", nil, nil); err != nil {
			h.stopErr = fmt.Errorf("stop instance %s: %w", h.id, err)
			slog.Error("remote instance stop failed", "instance_id", h.id, "error", err)
		}
	})
	return h.stopErr
}
