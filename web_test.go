package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestWebServer(t *testing.T) (*WebServer, *KioskBridge) {
	t.Helper()
	bridge := newTestBridge(t)
	pipeline := NewBridgePrintPipeline(bridge)
	pinGate := NewPinGate(DefaultShutdownPIN, nil, nil)
	return NewWebServer(bridge, pipeline, pinGate), bridge
}

func doJSON(t *testing.T, ws *WebServer, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req, err := http.NewRequest(method, path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ws.router.ServeHTTP(rec, req)
	return rec
}

func TestConfigUpdateReloadsService(t *testing.T) {
	ws, bridge := newTestWebServer(t)
	dbFile := bridge.config.DBFile

	rec := doJSON(t, ws, "PUT", "/api/config",
		`{"agent_url":"http://127.0.0.1:9999","poll_interval":"7","agent_api_key":"secret","machine_port":"5050"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT /api/config = %d: %s", rec.Code, rec.Body.String())
	}

	// The bridge runs on the new values immediately, no restart.
	if bridge.config.AgentURL != "http://127.0.0.1:9999" {
		t.Errorf("agent url = %q, want the updated value", bridge.config.AgentURL)
	}
	if bridge.config.PollInterval != 7*time.Second {
		t.Errorf("poll interval = %v, want 7s", bridge.config.PollInterval)
	}
	if bridge.config.AgentAPIKey != "secret" {
		t.Errorf("agent api key = %q, want %q", bridge.config.AgentAPIKey, "secret")
	}
	if bridge.config.MachinePort != "5050" {
		t.Errorf("machine port = %q, want %q", bridge.config.MachinePort, "5050")
	}

	// Reloading never swaps the database file out from under the bridge.
	if bridge.config.DBFile != dbFile {
		t.Errorf("db file changed across reload: %q -> %q", dbFile, bridge.config.DBFile)
	}
}

func TestConfigUpdateRejectsUnknownKeys(t *testing.T) {
	ws, bridge := newTestWebServer(t)

	rec := doJSON(t, ws, "PUT", "/api/config", `{"printer_name":"DS-RX1"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("operator settings must be rejected on the config endpoint, got %d", rec.Code)
	}

	// Nothing was written.
	got, err := bridge.GetConfigValue(SettingPrinterName)
	if err != nil {
		t.Fatalf("GetConfigValue failed: %v", err)
	}
	if got != "" {
		t.Fatalf("rejected update leaked a write: %q", got)
	}
}

func TestConfigGetReturnsServiceValues(t *testing.T) {
	ws, _ := newTestWebServer(t)

	rec := doJSON(t, ws, "GET", "/api/config", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/config = %d: %s", rec.Code, rec.Body.String())
	}

	var config map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &config); err != nil {
		t.Fatalf("response does not parse: %v", err)
	}
	if config[ConfigKeyAgentURL] != DefaultAgentURL {
		t.Errorf("agent_url = %q, want the seeded default %q", config[ConfigKeyAgentURL], DefaultAgentURL)
	}
}
