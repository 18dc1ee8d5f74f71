package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"gatewatch/pkg/model"
)

func newTestServer(t *testing.T, backendURL string) (*Server, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dataDir := t.TempDir()
	routes := []model.Route{{Host: "svc.example.com", Backend: backendURL}}
	data, err := json.Marshal(routes)
	if err != nil {
		t.Fatal(err)
	}
	routesFile := filepath.Join(dataDir, "proxy-config.json")
	if err := os.WriteFile(routesFile, data, 0644); err != nil {
		t.Fatal(err)
	}

	s, err := NewServer(Config{
		ListenAddr: "127.0.0.1:0",
		DataDir:    dataDir,
		RoutesFile: routesFile,
		DBDriver:   "sqlite",
	})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s, dataDir
}

func TestServer_ProxyRecordsAndPreservesHost(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Seen-Host", r.Host)
		_, _ = w.Write([]byte("backend ok"))
	}))
	defer backend.Close()

	s, dataDir := newTestServer(t, backend.URL)
	handler := s.httpServer.Handler

	// A request to the routed host goes to the backend with its virtual host intact
	req := httptest.NewRequest(http.MethodGet, "/login", nil)
	req.Host = "svc.example.com"
	req.Header.Set("CF-Connecting-IP", "203.0.113.7")
	req.Header.Set("CF-IPCountry", "DE")
	req.Header.Set("User-Agent", "integration-test")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK || w.Body.String() != "backend ok" {
		t.Fatalf("proxy response: %d %q", w.Code, w.Body.String())
	}
	if got := w.Header().Get("X-Seen-Host"); got != "svc.example.com" {
		t.Errorf("backend saw host %q", got)
	}

	// The record is queryable through the API on an unrouted host
	req = httptest.NewRequest(http.MethodGet, "/connections?ip=203.0.113.7", nil)
	req.Host = "gateway.internal"
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("query status=%d", w.Code)
	}
	var rows []model.Connection
	if err := json.Unmarshal(w.Body.Bytes(), &rows); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 record, got %d", len(rows))
	}
	rec := rows[0]
	if rec.Country != "DE" || rec.Host != "svc.example.com" || rec.Path != "/login" || rec.Method != "GET" {
		t.Errorf("record=%+v", rec)
	}

	// The text log carries the same event
	logData, err := os.ReadFile(filepath.Join(dataDir, "connections.log"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(logData), "| 203.0.113.7 | DE | GET /login | svc.example.com | integration-test") {
		t.Errorf("log file missing entry:\n%s", string(logData))
	}
}

func TestServer_APIAndFallback(t *testing.T) {
	backend := httptest.NewServer(http.NotFoundHandler())
	defer backend.Close()

	s, _ := newTestServer(t, backend.URL)
	handler := s.httpServer.Handler

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Host = "gateway.internal"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("/health status=%d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/config", nil)
	req.Host = "gateway.internal"
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	var cfgBody map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &cfgBody); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if cfgBody["svc.example.com"] != backend.URL {
		t.Errorf("config=%v", cfgBody)
	}

	// Dashboard on the bare root
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Host = "gateway.internal"
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if !strings.Contains(w.Body.String(), "<!DOCTYPE html>") {
		t.Errorf("expected dashboard page, got %q", w.Body.String()[:min(80, len(w.Body.String()))])
	}

	// Anything else echoes the visitor identity
	req = httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Host = "gateway.internal"
	req.RemoteAddr = "192.0.2.1:4711"
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if !strings.HasPrefix(w.Body.String(), "Your IP: 192.0.2.1\n") {
		t.Errorf("identity echo: %q", w.Body.String())
	}
}

func TestServer_MissingRoutesFileDegrades(t *testing.T) {
	gin.SetMode(gin.TestMode)
	dataDir := t.TempDir()

	s, err := NewServer(Config{
		ListenAddr: "127.0.0.1:0",
		DataDir:    dataDir,
		RoutesFile: filepath.Join(dataDir, "missing.json"),
		DBDriver:   "sqlite",
	})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	defer s.Shutdown(context.Background())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Host = "anything.example.com"
	w := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("expected query mode to work without routes, status=%d", w.Code)
	}
}
