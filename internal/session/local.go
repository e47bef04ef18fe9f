package session

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/dgnsrekt/menu_agent/internal/types"
)

// LocalConfig holds local browser launch configuration.
type LocalConfig struct {
	CDPAddress string
	CDPPort    int
	ProfileDir string
	WindowSize string
	Headless   bool
	ReadyWait  time.Duration
}

// LocalProvider launches a Chromium with remote debugging on this machine.
type LocalProvider struct {
	cfg        LocalConfig
	lookupPath func(string) (string, error)
	command    func(name string, args ...string) *exec.Cmd
}

// NewLocalProvider creates a provider for a locally launched browser.
func NewLocalProvider(cfg LocalConfig) *LocalProvider {
	if cfg.WindowSize == "" {
		cfg.WindowSize = "1728,9999"
	}
	if cfg.ReadyWait <= 0 {
		cfg.ReadyWait = 15 * time.Second
	}
	return &LocalProvider{cfg: cfg, lookupPath: exec.LookPath, command: exec.Command}
}

func (p *LocalProvider) Name() string { return "local" }

func (p *LocalProvider) endpoint() string {
	return fmt.Sprintf("http://%s:%d", p.cfg.CDPAddress, p.cfg.CDPPort)
}

// detectBrowser finds an available Chrome/Chromium binary.
func (p *LocalProvider) detectBrowser() (string, error) {
	candidates := []string{"chromium-browser", "chromium", "google-chrome"}
	for _, name := range candidates {
		if path, err := p.lookupPath(name); err == nil {
			return path, nil
		}
	}
	if runtime.GOOS == "darwin" {
		macPath := "/Applications/Google Chrome.app/Contents/MacOS/Google Chrome"
		if _, err := os.Stat(macPath); err == nil {
			return macPath, nil
		}
	}
	return "", fmt.Errorf("no supported browser found (tried chromium-browser, chromium, google-chrome)")
}

// isPortInUse checks whether a TCP port is already listening.
func isPortInUse(address string, port int) bool {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("%s:%d", address, port), time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// Start launches the browser unless something already listens on the CDP
// port, in which case that browser is reused and left running on Stop.
func (p *LocalProvider) Start(ctx context.Context) (Handle, error) {
	if isPortInUse(p.cfg.CDPAddress, p.cfg.CDPPort) {
		slog.Info("browser already running, skipping launch",
			"address", p.cfg.CDPAddress, "port", p.cfg.CDPPort)
		return attachHandle{endpoint: p.endpoint()}, nil
	}

	browserPath, err := p.detectBrowser()
	if err != nil {
		return nil, types.NewSessionProvision("detect browser", err)
	}
	slog.Info("detected browser", "path", browserPath)

	if err := os.MkdirAll(p.cfg.ProfileDir, 0o755); err != nil {
		return nil, types.NewSessionProvision("create profile dir", err)
	}

	args := []string{
		fmt.Sprintf("--remote-debugging-port=%d", p.cfg.CDPPort),
		fmt.Sprintf("--remote-debugging-address=%s", p.cfg.CDPAddress),
		fmt.Sprintf("--user-data-dir=%s", p.cfg.ProfileDir),
		"--no-first-run",
		"--no-default-browser-check",
		"--disable-dev-shm-usage",
		"--disable-breakpad",
		"--disable-crash-reporter",
		fmt.Sprintf("--window-size=%s", p.cfg.WindowSize),
	}
	if p.cfg.Headless {
		args = append(args, "--headless=new")
	}
	args = append(args, "about:blank")

	cmd := p.command(browserPath, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return nil, types.NewSessionProvision("start browser", err)
	}
	h := &localHandle{endpoint: p.endpoint(), cmd: cmd}
	slog.Info("browser process started", "pid", cmd.Process.Pid)

	if err := waitForCDP(ctx, p.endpoint(), p.cfg.ReadyWait); err != nil {
		_ = h.Stop()
		return nil, types.NewSessionProvision("waiting for CDP", err)
	}
	slog.Info("CDP endpoint ready", "address", p.cfg.CDPAddress, "port", p.cfg.CDPPort)

	return h, nil
}

// waitForCDP polls the CDP /json/version endpoint until it responds.
func waitForCDP(ctx context.Context, endpoint string, wait time.Duration) error {
	url := endpoint + "/json/version"
	deadline := time.After(wait)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	client := &http.Client{Timeout: time.Second}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return fmt.Errorf("CDP did not become ready within %s at %s", wait, url)
		case <-ticker.C:
			resp, err := client.Get(url)
			if err != nil {
				continue
			}
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
	}
}

type localHandle struct {
	endpoint string
	cmd      *exec.Cmd
	once     sync.Once
}

func (h *localHandle) ControlEndpoint() string { return h.endpoint }

// Stop terminates the browser process with SIGTERM, falling back to SIGKILL.
func (h *localHandle) Stop() error {
	h.once.Do(func() {
		if h.cmd == nil || h.cmd.Process == nil {
			return
		}
		slog.Info("stopping browser", "pid", h.cmd.Process.Pid)
		_ = h.cmd.Process.Signal(syscall.SIGTERM)

		done := make(chan struct{})
		go func() {
			_ = h.cmd.Wait()
			close(done)
		}()

		select {
		case <-done:
			slog.Info("browser stopped gracefully")
		case <-time.After(5 * time.Second):
			slog.Warn("browser did not exit, sending SIGKILL")
			_ = h.cmd.Process.Kill()
			<-done
		}
	})
	return nil
}
