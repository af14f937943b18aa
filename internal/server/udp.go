package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/CoMPaTech/go-airos/internal/config"
	"github.com/CoMPaTech/go-airos/internal/metrics"
	"github.com/CoMPaTech/go-airos/internal/protocol"
)

// PacketHandler receives each successfully decoded announcement together
// with the datagram's source address. Deduplication across announcements
// is the handler's concern, not the listener's.
type PacketHandler func(src *net.UDPAddr, pkt *protocol.DiscoveryPacket)

// UDPListener receives airOS discovery broadcasts and feeds decoded
// packets to a handler. One malformed datagram never stops the scan.
type UDPListener struct {
	conn    *net.UDPConn
	config  *config.ListenerConfig
	logger  *slog.Logger
	metrics *metrics.Metrics
	handler PacketHandler

	// Concurrency management
	ctx      context.Context
	cancel   context.CancelFunc
	recvWG   sync.WaitGroup
	workerWG sync.WaitGroup
	stopOnce sync.Once

	// Datagram processing
	packetChan chan *incomingDatagram

	// Basic counters, also exposed via /stats
	datagramsReceived uint64
	packetsDecoded    uint64
	decodeErrors      uint64
	mu                sync.RWMutex
}

// incomingDatagram is one received UDP datagram with metadata
type incomingDatagram struct {
	data       []byte
	remoteAddr *net.UDPAddr
	timestamp  time.Time
}

// NewUDPListener creates a new discovery listener instance
func NewUDPListener(cfg *config.ListenerConfig, logger *slog.Logger, m *metrics.Metrics, handler PacketHandler) *UDPListener {
	ctx, cancel := context.WithCancel(context.Background())

	return &UDPListener{
		config:     cfg,
		logger:     logger,
		metrics:    m,
		handler:    handler,
		ctx:        ctx,
		cancel:     cancel,
		packetChan: make(chan *incomingDatagram, cfg.QueueSize),
	}
}

// Start binds the discovery port and begins receiving broadcasts. When a
// scan duration is configured, the listener stops itself once it elapses.
func (l *UDPListener) Start() error {
	addr, err := net.ResolveUDPAddr("udp4", fmt.Sprintf("%s:%d", l.config.BindAddress, l.config.Port))
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP: %w", err)
	}

	l.conn = conn

	if err := l.conn.SetReadBuffer(l.config.BufferSize); err != nil {
		l.logger.Warn("Failed to set UDP read buffer size",
			slog.Int("buffer_size", l.config.BufferSize),
			slog.String("error", err.Error()),
		)
	}

	l.logger.Info("Discovery listener started",
		slog.String("address", l.conn.LocalAddr().String()),
		slog.Duration("scan_duration", l.config.GetScanDuration()),
	)

	for i := 0; i < l.config.Workers; i++ {
		l.workerWG.Add(1)
		go l.datagramProcessor(i)
	}

	l.recvWG.Add(1)
	go l.receiveLoop()

	// A configured scan duration is a hard upper bound on the listen
	// window; an explicit Stop still wins if it comes first.
	if d := l.config.GetScanDuration(); d > 0 {
		go func() {
			select {
			case <-l.ctx.Done():
			case <-time.After(d):
				l.logger.Info("Scan window elapsed", slog.Duration("scan_duration", d))
				l.shutdown()
			}
		}()
	}

	return nil
}

// Stop closes the socket and unblocks any pending receive promptly.
func (l *UDPListener) Stop() error {
	l.shutdown()
	return nil
}

// Done is closed once the listener has stopped, whether by Stop or by an
// elapsed scan window.
func (l *UDPListener) Done() <-chan struct{} {
	return l.ctx.Done()
}

// LocalAddr returns the bound address, or nil before Start.
func (l *UDPListener) LocalAddr() net.Addr {
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr()
}

func (l *UDPListener) shutdown() {
	l.stopOnce.Do(func() {
		l.logger.Info("Stopping discovery listener...")

		// Cancel context to signal shutdown
		l.cancel()

		// Close the socket to unblock the receive loop
		if l.conn != nil {
			if err := l.conn.Close(); err != nil {
				l.logger.Warn("Error closing UDP socket", slog.String("error", err.Error()))
			}
		}

		// The queue can only be closed once the receive loop has stopped
		// feeding it; then the workers drain what is left.
		l.recvWG.Wait()
		close(l.packetChan)
		l.workerWG.Wait()

		l.mu.RLock()
		datagramsReceived := l.datagramsReceived
		packetsDecoded := l.packetsDecoded
		decodeErrors := l.decodeErrors
		l.mu.RUnlock()

		l.logger.Info("Discovery listener stopped",
			slog.Uint64("datagrams_received", datagramsReceived),
			slog.Uint64("packets_decoded", packetsDecoded),
			slog.Uint64("decode_errors", decodeErrors),
		)
	})
}

// receiveLoop is the main datagram receiving loop
func (l *UDPListener) receiveLoop() {
	defer l.recvWG.Done()

	buffer := make([]byte, l.config.BufferSize)

	for {
		select {
		case <-l.ctx.Done():
			return
		default:
		}

		// Deadline-poll so the loop observes cancellation even when the
		// network is quiet.
		if err := l.conn.SetReadDeadline(time.Now().Add(1 * time.Second)); err != nil {
			l.logger.Error("Failed to set read deadline", slog.String("error", err.Error()))
			continue
		}

		n, remoteAddr, err := l.conn.ReadFromUDP(buffer)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}

			select {
			case <-l.ctx.Done():
				return
			default:
				l.logger.Error("Failed to read UDP datagram", slog.String("error", err.Error()))
				continue
			}
		}

		l.mu.Lock()
		l.datagramsReceived++
		l.mu.Unlock()
		if l.metrics != nil {
			l.metrics.RecordDatagramReceived()
		}

		// The read buffer is reused, so hand workers a copy.
		data := make([]byte, n)
		copy(data, buffer[:n])

		datagram := &incomingDatagram{
			data:       data,
			remoteAddr: remoteAddr,
			timestamp:  time.Now(),
		}

		select {
		case l.packetChan <- datagram:
			if l.metrics != nil {
				l.metrics.SetQueueSize(len(l.packetChan))
			}
		default:
			if l.metrics != nil {
				l.metrics.RecordQueueDrop()
			}
			l.logger.Warn("Datagram queue full, dropping datagram",
				slog.String("remote_addr", remoteAddr.String()),
				slog.Int("datagram_size", n),
			)
		}
	}
}

// datagramProcessor decodes datagrams from the queue
func (l *UDPListener) datagramProcessor(workerID int) {
	defer l.workerWG.Done()

	l.logger.Debug("Datagram processor started", slog.Int("worker_id", workerID))

	for datagram := range l.packetChan {
		l.handleDatagram(datagram, workerID)
	}

	l.logger.Debug("Datagram processor stopped", slog.Int("worker_id", workerID))
}

// handleDatagram decodes one datagram and hands the result to the
// handler. Decode failures are data errors from whatever happens to
// broadcast on this port; they are counted and logged, never fatal.
func (l *UDPListener) handleDatagram(datagram *incomingDatagram, workerID int) {
	pkt, err := protocol.Decode(datagram.data)
	if err != nil {
		l.mu.Lock()
		l.decodeErrors++
		l.mu.Unlock()
		if l.metrics != nil {
			l.metrics.RecordDecodeError(decodeErrorReason(err))
		}

		l.logger.Warn("Failed to decode discovery datagram",
			slog.String("remote_addr", datagram.remoteAddr.String()),
			slog.Int("datagram_size", len(datagram.data)),
			slog.String("error", err.Error()),
			slog.Int("worker_id", workerID),
		)
		return
	}

	l.mu.Lock()
	l.packetsDecoded++
	l.mu.Unlock()
	if l.metrics != nil {
		l.metrics.RecordPacketDecoded()
	}

	// Unrecognized header identifiers are worth a warning but never a
	// rejection; future firmware may bump them.
	if !pkt.KnownHeader() {
		if l.metrics != nil {
			l.metrics.RecordUnknownHeader()
		}
		l.logger.Warn("Discovery packet with unrecognized header identifiers",
			slog.String("remote_addr", datagram.remoteAddr.String()),
			slog.Int("protocol_id", int(pkt.ProtocolID)),
			slog.Int("version_id", int(pkt.VersionID)),
		)
	}

	l.logger.Debug("Discovery packet decoded",
		slog.String("remote_addr", datagram.remoteAddr.String()),
		slog.String("mac", pkt.MACAddress),
		slog.Int("worker_id", workerID),
	)

	if l.handler != nil {
		l.handler(datagram.remoteAddr, pkt)
	}
}

// GetStatistics returns current listener statistics
func (l *UDPListener) GetStatistics() ListenerStatistics {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return ListenerStatistics{
		DatagramsReceived: l.datagramsReceived,
		PacketsDecoded:    l.packetsDecoded,
		DecodeErrors:      l.decodeErrors,
		QueueSize:         uint64(len(l.packetChan)),
		QueueCapacity:     uint64(cap(l.packetChan)),
	}
}

// ListenerStatistics represents listener performance counters
type ListenerStatistics struct {
	DatagramsReceived uint64 `json:"datagrams_received"`
	PacketsDecoded    uint64 `json:"packets_decoded"`
	DecodeErrors      uint64 `json:"decode_errors"`
	QueueSize         uint64 `json:"queue_size"`
	QueueCapacity     uint64 `json:"queue_capacity"`
}

// decodeErrorReason maps a decode failure to its metric label
func decodeErrorReason(err error) string {
	switch {
	case errors.Is(err, protocol.ErrTruncatedHeader):
		return "truncated_header"
	case errors.Is(err, protocol.ErrTruncatedField):
		return "truncated_field"
	case errors.Is(err, protocol.ErrTrailingBytes):
		return "trailing_bytes"
	case errors.Is(err, protocol.ErrMalformedCombinedField):
		return "malformed_combined_field"
	case errors.Is(err, protocol.ErrFieldEncoding):
		return "field_encoding"
	default:
		return "other"
	}
}
