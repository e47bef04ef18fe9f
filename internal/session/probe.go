package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

const probeTimeout = 10 * time.Second

// Probe checks that endpoint speaks CDP by resolving the browser websocket and
// issuing Browser.getVersion over it. It keeps chromedp from hanging on a dead
// or half-provisioned session.
func Probe(ctx context.Context, endpoint string) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	wsURL, err := browserWSURL(ctx, endpoint)
	if err != nil {
		return fmt.Errorf("probe: browser ws url: %w", err)
	}

	conn, _, _, err := ws.Dial(ctx, wsURL)
	if err != nil {
		return fmt.Errorf("probe: dial %s: %w", wsURL, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	req, _ := json.Marshal(map[string]any{"id": 1, "method": "Browser.getVersion"})
	if err := wsutil.WriteClientText(conn, req); err != nil {
		return fmt.Errorf("probe: write: %w", err)
	}

	for {
		data, err := wsutil.ReadServerText(conn)
		if err != nil {
			return fmt.Errorf("probe: read: %w", err)
		}
		var msg struct {
			ID     int64 `json:"id"`
			Result struct {
				Product         string `json:"product"`
				ProtocolVersion string `json:"protocolVersion"`
			} `json:"result"`
			Error *struct {
				Code    int    `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(data, &msg) != nil || msg.ID != 1 {
			continue
		}
		if msg.Error != nil {
			return fmt.Errorf("probe: Browser.getVersion: %s (code %d)", msg.Error.Message, msg.Error.Code)
		}
		slog.Info("browser endpoint ready", "product", msg.Result.Product, "protocol", msg.Result.ProtocolVersion)
		return nil
	}
}

// browserWSURL returns endpoint unchanged when it is already a websocket URL,
// otherwise reads webSocketDebuggerUrl from /json/version.
func browserWSURL(ctx context.Context, endpoint string) (string, error) {
	if strings.HasPrefix(endpoint, "ws://") || strings.HasPrefix(endpoint, "wss://") {
		return endpoint, nil
	}

	versionURL := strings.TrimRight(endpoint, "/") + "/json/version"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, versionURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("GET %s: status %d", versionURL, resp.StatusCode)
	}

	var version struct {
		WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&version); err != nil {
		return "", fmt.Errorf("decode %s: %w", versionURL, err)
	}
	if version.WebSocketDebuggerURL == "" {
		return "", fmt.Errorf("%s has no webSocketDebuggerUrl", versionURL)
	}
	return version.WebSocketDebuggerURL, nil
}
