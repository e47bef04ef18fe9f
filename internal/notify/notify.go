// Package notify posts run notifications to an ntfy-style topic endpoint.
package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Message is a plain-text notification. Title, Tags and Priority map to the
// ntfy headers of the same name and are omitted when empty.
type Message struct {
	Title    string
	Body     string
	Tags     []string
	Priority string
}

// RunCompleted builds the notification for a successful capture run.
func RunCompleted(runID, summary string) Message {
	return Message{
		Title: "menu capture complete",
		Body:  fmt.Sprintf("run %s: %s", runID, summary),
		Tags:  []string{"white_check_mark"},
	}
}

// RunFailed builds the notification for a failed capture run.
func RunFailed(runID string, err error) Message {
	return Message{
		Title:    "menu capture failed",
		Body:     fmt.Sprintf("run %s: %v", runID, err),
		Tags:     []string{"warning"},
		Priority: "high",
	}
}

// Send posts msg to endpoint.
func Send(ctx context.Context, client *http.Client, endpoint string, msg Message) error {
	if strings.TrimSpace(endpoint) == "" {
		return fmt.Errorf("notify: empty endpoint")
	}
	c := client
	if c == nil {
		c = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(msg.Body))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "text/plain")
	if msg.Title != "" {
		req.Header.Set("Title", msg.Title)
	}
	if len(msg.Tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.Tags, ","))
	}
	if msg.Priority != "" {
		req.Header.Set("Priority", msg.Priority)
	}

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy notification failed: status=%d", resp.StatusCode)
	}
	return nil
}
