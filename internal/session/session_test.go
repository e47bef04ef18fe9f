package session

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/dgnsrekt/menu_agent/internal/types"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// fakeCDP serves /json/version and a browser websocket answering Browser.getVersion.
func fakeCDP(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/json/version", func(w http.ResponseWriter, r *http.Request) {
		wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/devtools/browser/test"
		_ = json.NewEncoder(w).Encode(map[string]string{
			"Browser":              "Chrome/138.0",
			"webSocketDebuggerUrl": wsURL,
		})
	})
	mux.HandleFunc("/devtools/browser/test", func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			data, err := wsutil.ReadClientText(conn)
			if err != nil {
				return
			}
			var req struct {
				ID     int64  `json:"id"`
				Method string `json:"method"`
			}
			if err := json.Unmarshal(data, &req); err != nil {
				return
			}
			_ = wsutil.WriteServerText(conn, []byte(`{"method":"Target.targetCreated","params":{}}`))
			resp, _ := json.Marshal(map[string]any{
				"id":     req.ID,
				"result": map[string]string{"product": "Chrome/138.0", "protocolVersion": "1.3"},
			})
			if err := wsutil.WriteServerText(conn, resp); err != nil {
				return
			}
		}
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestProbe(t *testing.T) {
	srv := fakeCDP(t)

	t.Run("http_endpoint", func(t *testing.T) {
		if err := Probe(context.Background(), srv.URL); err != nil {
			t.Fatalf("Probe(http) error = %v", err)
		}
	})

	t.Run("ws_endpoint", func(t *testing.T) {
		wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/devtools/browser/test"
		if err := Probe(context.Background(), wsURL); err != nil {
			t.Fatalf("Probe(ws) error = %v", err)
		}
	})

	t.Run("dead_endpoint", func(t *testing.T) {
		dead := httptest.NewServer(http.NotFoundHandler())
		dead.Close()
		if err := Probe(context.Background(), dead.URL); err == nil {
			t.Fatal("Probe(dead) = nil; want error")
		}
	})
}

func TestAttachProvider(t *testing.T) {
	srv := fakeCDP(t)

	h, err := NewAttachProvider(srv.URL).Start(context.Background())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if h.ControlEndpoint() != srv.URL {
		t.Fatalf("ControlEndpoint() = %q; want %q", h.ControlEndpoint(), srv.URL)
	}
	if err := h.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	_, err = NewAttachProvider("http://127.0.0.1:1").Start(context.Background())
	if !types.HasCode(err, types.CodeSessionProvision) {
		t.Fatalf("Start(unreachable) error = %v; want %s", err, types.CodeSessionProvision)
	}
}

type remoteAPI struct {
	srv       *httptest.Server
	stops     atomic.Int32
	cdpURL    string
	failStart bool
}

func newRemoteAPI(t *testing.T, cdpURL string) *remoteAPI {
	t.Helper()
	api := &remoteAPI{cdpURL: cdpURL}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/start", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "secret" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if api.failStart {
			http.Error(w, "capacity", http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "inst-1", "status": "running"})
	})
	mux.HandleFunc("POST /v1/instance/inst-1/browser/start", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"cdp_url": api.cdpURL})
	})
	mux.HandleFunc("POST /v1/instance/inst-1/stop", func(w http.ResponseWriter, r *http.Request) {
		api.stops.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "stopped"})
	})
	api.srv = httptest.NewServer(mux)
	t.Cleanup(api.srv.Close)
	return api
}

func TestRemoteProviderLifecycle(t *testing.T) {
	cdp := fakeCDP(t)
	api := newRemoteAPI(t, cdp.URL)

	p := NewRemoteProvider(RemoteConfig{BaseURL: api.srv.URL + "/", APIKey: "secret"}, nil)
	h, err := p.Start(context.Background())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if h.ControlEndpoint() != cdp.URL {
		t.Fatalf("ControlEndpoint() = %q; want %q", h.ControlEndpoint(), cdp.URL)
	}

	for i := 0; i < 3; i++ {
		if err := h.Stop(); err != nil {
			t.Fatalf("Stop() #%d error = %v", i, err)
		}
	}
	if got := api.stops.Load(); got != 1 {
		t.Fatalf("stop calls = %d; want 1", got)
	}
}

func TestRemoteProviderFailures(t *testing.T) {
	t.Run("bad_key", func(t *testing.T) {
		api := newRemoteAPI(t, "")
		_, err := NewRemoteProvider(RemoteConfig{BaseURL: api.srv.URL, APIKey: "wrong"}, nil).Start(context.Background())
		if !types.HasCode(err, types.CodeSessionProvision) {
			t.Fatalf("Start() error = %v; want %s", err, types.CodeSessionProvision)
		}
		if api.stops.Load() != 0 {
			t.Fatal("stop called for an instance that never started")
		}
	})

	t.Run("probe_failure_stops_instance", func(t *testing.T) {
		api := newRemoteAPI(t, "http://127.0.0.1:1")
		_, err := NewRemoteProvider(RemoteConfig{BaseURL: api.srv.URL, APIKey: "secret"}, nil).Start(context.Background())
		if !types.HasCode(err, types.CodeSessionProvision) {
			t.Fatalf("Start() error = %v; want %s", err, types.CodeSessionProvision)
		}
		if got := api.stops.Load(); got != 1 {
			t.Fatalf("stop calls = %d; want 1 after failed probe", got)
		}
	})
}

func TestLocalProviderReusesRunningBrowser(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	p := NewLocalProvider(LocalConfig{CDPAddress: "127.0.0.1", CDPPort: port, ProfileDir: t.TempDir()})
	p.lookupPath = func(string) (string, error) {
		t.Fatal("browser detection must be skipped when the port is in use")
		return "", nil
	}

	h, err := p.Start(context.Background())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if want := "http://127.0.0.1:" + strconv.Itoa(port); h.ControlEndpoint() != want {
		t.Fatalf("ControlEndpoint() = %q; want %q", h.ControlEndpoint(), want)
	}
	if err := h.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
}

func TestLocalProviderNoBrowser(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()

	p := NewLocalProvider(LocalConfig{CDPAddress: "127.0.0.1", CDPPort: port, ProfileDir: t.TempDir()})
	p.lookupPath = func(name string) (string, error) { return "", &net.AddrError{Err: "not found", Addr: name} }

	if runtime.GOOS == "darwin" {
		t.Skip("detection falls back to the system Chrome bundle on darwin")
	}
	_, err = p.Start(context.Background())
	if !types.HasCode(err, types.CodeSessionProvision) {
		t.Fatalf("Start() error = %v; want %s", err, types.CodeSessionProvision)
	}
}
