package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/CoMPaTech/go-airos/internal/config"
	"github.com/CoMPaTech/go-airos/internal/metrics"
	"github.com/CoMPaTech/go-airos/internal/protocol"
	"github.com/CoMPaTech/go-airos/internal/registry"
)

// Prometheus collectors register globally, so the test binary shares one
// Metrics instance.
var (
	testMetricsOnce sync.Once
	testMetrics     *metrics.Metrics
)

func sharedMetrics() *metrics.Metrics {
	testMetricsOnce.Do(func() {
		testMetrics = metrics.NewMetrics()
	})
	return testMetrics
}

func newTestHTTPServer(t *testing.T) (*HTTPServer, *registry.Registry) {
	t.Helper()

	cfg := config.Default()
	reg := registry.New(testLogger(), nil, time.Minute, time.Minute)
	t.Cleanup(reg.Stop)

	listener := NewUDPListener(&cfg.Listener, testLogger(), nil, nil)
	h := NewHTTPServer(cfg, testLogger(), reg, listener, sharedMetrics())

	return h, reg
}

func getJSON(t *testing.T, h *HTTPServer, path string, out any) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.server.Handler.ServeHTTP(rec, req)

	if rec.Code == http.StatusOK && out != nil {
		if err := json.NewDecoder(rec.Body).Decode(out); err != nil {
			t.Fatalf("Failed to decode %s response: %v", path, err)
		}
	}
	return rec
}

func TestHandleHealth(t *testing.T) {
	h, _ := newTestHTTPServer(t)

	var health map[string]any
	rec := getJSON(t, h, "/health", &health)

	if rec.Code != http.StatusOK {
		t.Fatalf("GET /health: status %d", rec.Code)
	}
	if health["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", health["status"])
	}
}

func TestHandleDevices(t *testing.T) {
	h, reg := newTestHTTPServer(t)

	reg.Record("192.168.1.3:10001", &protocol.DiscoveryPacket{
		MACAddress: "01:23:45:67:89:CD",
		IPAddress:  "192.168.1.3",
	})

	var response struct {
		TotalDevices int               `json:"total_devices"`
		Devices      []registry.Device `json:"devices"`
	}
	rec := getJSON(t, h, "/devices", &response)

	if rec.Code != http.StatusOK {
		t.Fatalf("GET /devices: status %d", rec.Code)
	}
	if response.TotalDevices != 1 || len(response.Devices) != 1 {
		t.Fatalf("got %d devices, want 1", response.TotalDevices)
	}
	if response.Devices[0].MACAddress != "01:23:45:67:89:CD" {
		t.Errorf("MACAddress = %q", response.Devices[0].MACAddress)
	}
}

func TestHandleDeviceDetail(t *testing.T) {
	h, reg := newTestHTTPServer(t)

	reg.Record("192.168.1.3:10001", &protocol.DiscoveryPacket{
		MACAddress: "01:23:45:67:89:CD",
	})

	var device registry.Device
	rec := getJSON(t, h, "/devices/01:23:45:67:89:CD", &device)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /devices/{mac}: status %d", rec.Code)
	}
	if device.MACAddress != "01:23:45:67:89:CD" {
		t.Errorf("MACAddress = %q", device.MACAddress)
	}

	rec = getJSON(t, h, "/devices/FF:FF:FF:FF:FF:FF", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET unknown device: status %d, want 404", rec.Code)
	}
}

func TestHandleStats(t *testing.T) {
	h, _ := newTestHTTPServer(t)

	var stats map[string]any
	rec := getJSON(t, h, "/stats", &stats)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /stats: status %d", rec.Code)
	}
	if _, ok := stats["listener"]; !ok {
		t.Error("stats response missing listener section")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h, _ := newTestHTTPServer(t)

	req := httptest.NewRequest(http.MethodPost, "/devices", nil)
	rec := httptest.NewRecorder()
	h.server.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /devices: status %d, want 405", rec.Code)
	}
}
