package registry

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/CoMPaTech/go-airos/internal/metrics"
	"github.com/CoMPaTech/go-airos/internal/protocol"
)

// Device is the aggregated view of one discovered device, merged from
// every announcement received for it so far.
type Device struct {
	MACAddress      string    `json:"mac_address,omitempty"`
	IPAddress       string    `json:"ip_address,omitempty"`
	SourceAddr      string    `json:"source_addr"`
	Hostname        *string   `json:"hostname,omitempty"`
	Model           *string   `json:"model,omitempty"`
	FullModelName   *string   `json:"full_model_name,omitempty"`
	SSID            *string   `json:"ssid,omitempty"`
	FirmwareVersion *string   `json:"firmware_version,omitempty"`
	UptimeSeconds   *uint32   `json:"uptime_seconds,omitempty"`
	FirstSeen       time.Time `json:"first_seen"`
	LastSeen        time.Time `json:"last_seen"`
	Announcements   uint64    `json:"announcements"`
}

// Registry deduplicates and aggregates discovery announcements. Devices
// are keyed by MAC address, falling back to the source address for the
// rare announcement that carries no MAC field. Entries expire after the
// configured inactivity timeout.
type Registry struct {
	devices map[string]*Device
	mu      sync.RWMutex
	logger  *slog.Logger
	metrics *metrics.Metrics
	timeout time.Duration

	// Cleanup management
	interval time.Duration
	done     chan struct{}
	cleanup  chan struct{}
}

// New creates a device registry and starts its expiry routine.
func New(logger *slog.Logger, m *metrics.Metrics, timeout, cleanupInterval time.Duration) *Registry {
	r := &Registry{
		devices:  make(map[string]*Device),
		logger:   logger,
		metrics:  m,
		timeout:  timeout,
		interval: cleanupInterval,
		done:     make(chan struct{}),
		cleanup:  make(chan struct{}),
	}

	go r.startCleanupRoutine()

	return r
}

// Record merges one decoded announcement into the registry and returns
// the updated device snapshot.
func (r *Registry) Record(sourceAddr string, pkt *protocol.DiscoveryPacket) Device {
	key := pkt.MACAddress
	if key == "" {
		key = sourceAddr
	}

	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	dev, exists := r.devices[key]
	if !exists {
		dev = &Device{FirstSeen: now}
		r.devices[key] = dev

		if r.metrics != nil {
			r.metrics.RecordDeviceSeen()
			r.metrics.SetDevicesTracked(len(r.devices))
		}

		r.logger.Info("New device discovered",
			slog.String("mac", pkt.MACAddress),
			slog.String("source_addr", sourceAddr),
		)
	}

	dev.SourceAddr = sourceAddr
	dev.LastSeen = now
	dev.Announcements++

	// Field merge is last-wins per announcement, same as the decoder's
	// policy within one packet. Absent fields never clear earlier values.
	if pkt.MACAddress != "" {
		dev.MACAddress = pkt.MACAddress
	}
	if pkt.IPAddress != "" {
		dev.IPAddress = pkt.IPAddress
	}
	if pkt.Hostname != nil {
		dev.Hostname = pkt.Hostname
	}
	if pkt.Model != nil {
		dev.Model = pkt.Model
	}
	if pkt.FullModelName != nil {
		dev.FullModelName = pkt.FullModelName
	}
	if pkt.SSID != nil {
		dev.SSID = pkt.SSID
	}
	if pkt.FirmwareVersion != nil {
		dev.FirmwareVersion = pkt.FirmwareVersion
	}
	if pkt.UptimeSeconds != nil {
		dev.UptimeSeconds = pkt.UptimeSeconds
	}

	if r.metrics != nil {
		r.metrics.RecordAnnouncement()
	}

	return *dev
}

// Get returns the device for a MAC address, if tracked.
func (r *Registry) Get(mac string) (Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	dev, exists := r.devices[mac]
	if !exists {
		return Device{}, false
	}
	return *dev, true
}

// Devices returns a snapshot of all tracked devices, ordered by MAC.
func (r *Registry) Devices() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	devices := make([]Device, 0, len(r.devices))
	for _, dev := range r.devices {
		devices = append(devices, *dev)
	}

	sort.Slice(devices, func(i, j int) bool {
		return devices[i].MACAddress < devices[j].MACAddress
	})

	return devices
}

// Count returns the number of currently tracked devices.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// Stop stops the expiry routine. Tracked devices stay readable.
func (r *Registry) Stop() {
	close(r.done)
	<-r.cleanup

	r.logger.Info("Device registry stopped",
		slog.Int("tracked_devices", r.Count()),
	)
}

// startCleanupRoutine expires devices that have stopped announcing.
func (r *Registry) startCleanupRoutine() {
	defer close(r.cleanup)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Debug("Registry cleanup routine started",
		slog.Duration("timeout", r.timeout),
		slog.Duration("check_interval", r.interval),
	)

	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			r.expireStale()
		}
	}
}

// expireStale removes devices whose last announcement is older than the
// timeout.
func (r *Registry) expireStale() {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	for key, dev := range r.devices {
		if now.Sub(dev.LastSeen) <= r.timeout {
			continue
		}

		delete(r.devices, key)

		if r.metrics != nil {
			r.metrics.RecordDeviceExpired()
			r.metrics.SetDevicesTracked(len(r.devices))
		}

		r.logger.Info("Device expired",
			slog.String("mac", dev.MACAddress),
			slog.String("source_addr", dev.SourceAddr),
			slog.Time("last_seen", dev.LastSeen),
		)
	}
}
