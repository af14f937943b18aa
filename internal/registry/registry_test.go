package registry

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/CoMPaTech/go-airos/internal/protocol"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := New(testLogger(), nil, time.Minute, time.Minute)
	t.Cleanup(r.Stop)
	return r
}

func strptr(s string) *string { return &s }

func TestRecordNewDevice(t *testing.T) {
	r := newTestRegistry(t)

	uptime := uint32(265375)
	dev := r.Record("192.168.1.3:10001", &protocol.DiscoveryPacket{
		MACAddress:      "01:23:45:67:89:CD",
		IPAddress:       "192.168.1.3",
		Hostname:        strptr("name"),
		Model:           strptr("NanoStation 5AC loco"),
		FirmwareVersion: strptr("WA.v8.7.17"),
		UptimeSeconds:   &uptime,
	})

	if dev.MACAddress != "01:23:45:67:89:CD" {
		t.Errorf("MACAddress = %q", dev.MACAddress)
	}
	if dev.IPAddress != "192.168.1.3" {
		t.Errorf("IPAddress = %q", dev.IPAddress)
	}
	if dev.Hostname == nil || *dev.Hostname != "name" {
		t.Errorf("Hostname = %v", dev.Hostname)
	}
	if dev.Announcements != 1 {
		t.Errorf("Announcements = %d, want 1", dev.Announcements)
	}
	if dev.FirstSeen.IsZero() || dev.LastSeen.IsZero() {
		t.Error("FirstSeen/LastSeen not set")
	}

	if r.Count() != 1 {
		t.Errorf("Count() = %d, want 1", r.Count())
	}

	got, ok := r.Get("01:23:45:67:89:CD")
	if !ok {
		t.Fatal("Get: device not found")
	}
	if got.MACAddress != dev.MACAddress {
		t.Errorf("Get returned %q, want %q", got.MACAddress, dev.MACAddress)
	}
}

func TestRecordMergesAnnouncements(t *testing.T) {
	r := newTestRegistry(t)

	r.Record("192.168.1.3:10001", &protocol.DiscoveryPacket{
		MACAddress: "01:23:45:67:89:CD",
		Hostname:   strptr("old-name"),
		SSID:       strptr("DemoSSID"),
	})

	// Second announcement updates the hostname but omits the SSID; the
	// earlier SSID must survive.
	dev := r.Record("192.168.1.3:10001", &protocol.DiscoveryPacket{
		MACAddress: "01:23:45:67:89:CD",
		Hostname:   strptr("new-name"),
	})

	if r.Count() != 1 {
		t.Fatalf("Count() = %d, want 1 (announcements must deduplicate)", r.Count())
	}
	if dev.Hostname == nil || *dev.Hostname != "new-name" {
		t.Errorf("Hostname = %v, want new-name", dev.Hostname)
	}
	if dev.SSID == nil || *dev.SSID != "DemoSSID" {
		t.Errorf("SSID = %v, want DemoSSID preserved", dev.SSID)
	}
	if dev.Announcements != 2 {
		t.Errorf("Announcements = %d, want 2", dev.Announcements)
	}
}

func TestRecordEmptySSIDOverwrites(t *testing.T) {
	r := newTestRegistry(t)

	r.Record("a", &protocol.DiscoveryPacket{
		MACAddress: "01:23:45:67:89:CD",
		SSID:       strptr("Visible"),
	})

	// Present-but-empty is a real value, not absence.
	dev := r.Record("a", &protocol.DiscoveryPacket{
		MACAddress: "01:23:45:67:89:CD",
		SSID:       strptr(""),
	})

	if dev.SSID == nil || *dev.SSID != "" {
		t.Errorf("SSID = %v, want present and empty", dev.SSID)
	}
}

func TestRecordWithoutMACKeysBySource(t *testing.T) {
	r := newTestRegistry(t)

	r.Record("192.168.1.7:10001", &protocol.DiscoveryPacket{
		Hostname: strptr("mystery"),
	})

	if r.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", r.Count())
	}
	if _, ok := r.Get("192.168.1.7:10001"); !ok {
		t.Error("device without MAC not reachable under its source address")
	}
}

func TestDevicesSortedByMAC(t *testing.T) {
	r := newTestRegistry(t)

	r.Record("b", &protocol.DiscoveryPacket{MACAddress: "AA:00:00:00:00:02"})
	r.Record("a", &protocol.DiscoveryPacket{MACAddress: "AA:00:00:00:00:01"})
	r.Record("c", &protocol.DiscoveryPacket{MACAddress: "AA:00:00:00:00:03"})

	devices := r.Devices()
	if len(devices) != 3 {
		t.Fatalf("len(Devices()) = %d, want 3", len(devices))
	}
	for i := 1; i < len(devices); i++ {
		if devices[i-1].MACAddress >= devices[i].MACAddress {
			t.Errorf("devices out of order: %q before %q", devices[i-1].MACAddress, devices[i].MACAddress)
		}
	}
}

func TestExpireStale(t *testing.T) {
	r := New(testLogger(), nil, 50*time.Millisecond, time.Minute)
	defer r.Stop()

	r.Record("a", &protocol.DiscoveryPacket{MACAddress: "AA:00:00:00:00:01"})
	r.Record("b", &protocol.DiscoveryPacket{MACAddress: "AA:00:00:00:00:02"})

	// Age only the first device past the timeout.
	r.mu.Lock()
	r.devices["AA:00:00:00:00:01"].LastSeen = time.Now().Add(-time.Second)
	r.mu.Unlock()

	r.expireStale()

	if _, ok := r.Get("AA:00:00:00:00:01"); ok {
		t.Error("stale device still tracked after expiry")
	}
	if _, ok := r.Get("AA:00:00:00:00:02"); !ok {
		t.Error("fresh device expired")
	}
}

func TestSnapshotsAreCopies(t *testing.T) {
	r := newTestRegistry(t)

	r.Record("a", &protocol.DiscoveryPacket{
		MACAddress: "AA:00:00:00:00:01",
		Hostname:   strptr("original"),
	})

	devices := r.Devices()
	devices[0].Hostname = strptr("mutated")

	got, _ := r.Get("AA:00:00:00:00:01")
	if got.Hostname == nil || *got.Hostname != "original" {
		t.Errorf("registry state mutated through snapshot: %v", got.Hostname)
	}
}
