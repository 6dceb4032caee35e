// Package wstransport implements the wavebus Transport interface over a
// WebSocket connection using gobwas/ws. Outbound frames above a size
// threshold are zstd-compressed and travel as binary WebSocket messages;
// everything else is plain text. Inbound binary messages are decompressed
// transparently.
package wstransport

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	wavebus "github.com/wavebus/wavebus-go-sdk"
)

const (
	defaultDialTimeout = 10 * time.Second
	sendBuffer         = 256

	// Reported to the channel when the connection fails or dies without a
	// close frame. Matches the WebSocket abnormal-closure status.
	abnormalClosure = "1006"
)

var (
	ErrNotConnected = errors.New("wstransport: not connected")
	ErrClosed       = errors.New("wstransport: connection closed")
)

// Config holds connection parameters.
type Config struct {
	Endpoint    string        // WebSocket URL (e.g. "wss://host/socket")
	DialTimeout time.Duration // defaults to 10s
	Logger      *slog.Logger  // defaults to slog.Default()
}

// Socket is a wavebus.Transport over one WebSocket connection at a time.
// Connect may be called again after the previous connection closed.
type Socket struct {
	cfg     Config
	log     *slog.Logger
	handler wavebus.TransportHandler
	zenc    *zstd.Encoder
	zdec    *zstd.Decoder

	mu      sync.Mutex
	dialing bool
	conn    net.Conn
	sendCh  chan []byte
	done    chan struct{}
}

// New creates a disconnected socket.
func New(cfg Config) *Socket {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	zenc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	zdec, _ := zstd.NewReader(nil)
	return &Socket{cfg: cfg, log: log, zenc: zenc, zdec: zdec}
}

// Bind registers the callback target. Must be called before Connect.
func (s *Socket) Bind(h wavebus.TransportHandler) {
	s.handler = h
}

// Connect dials the endpoint in the background and reports the outcome via
// OnOpen or OnClose. While a dial is in flight the call is a no-op (that
// dial will report). When a connection is already up, OnOpen is reconfirmed
// immediately so a caller that re-requests the open state is not left
// waiting for an event that would never come.
func (s *Socket) Connect() {
	s.mu.Lock()
	if s.dialing {
		s.mu.Unlock()
		return
	}
	if s.conn != nil {
		s.mu.Unlock()
		s.handler.OnOpen()
		return
	}
	s.dialing = true
	s.mu.Unlock()

	// One id per physical connection attempt, for log correlation.
	go s.dial(uuid.NewString())
}

func (s *Socket) dial(connID string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.DialTimeout)
	defer cancel()

	conn, _, _, err := ws.Dial(ctx, s.cfg.Endpoint)
	if err != nil {
		s.mu.Lock()
		s.dialing = false
		s.mu.Unlock()
		s.log.Warn("dial failed", "endpoint", s.cfg.Endpoint, "conn_id", connID, "error", err)
		s.handler.OnClose(abnormalClosure)
		return
	}

	s.mu.Lock()
	s.dialing = false
	s.conn = conn
	s.sendCh = make(chan []byte, sendBuffer)
	s.done = make(chan struct{})
	done, sendCh := s.done, s.sendCh
	s.mu.Unlock()

	s.log.Info("connected", "endpoint", s.cfg.Endpoint, "conn_id", connID)

	// Both loops can observe the connection dying; the Once guarantees the
	// channel hears about it exactly once.
	closed := new(sync.Once)
	go s.writeLoop(conn, connID, sendCh, done, closed)
	go s.readLoop(conn, connID, done, closed)

	s.handler.OnOpen()
}

// Disconnect closes the current connection without reporting a close event;
// the shutdown was requested by the caller.
func (s *Socket) Disconnect() {
	s.teardown()
}

// Send hands one text frame to the connection. It never blocks beyond the
// send buffer and fails when no connection is up.
func (s *Socket) Send(text string) error {
	s.mu.Lock()
	sendCh, done := s.sendCh, s.done
	s.mu.Unlock()
	if sendCh == nil {
		return ErrNotConnected
	}
	select {
	case sendCh <- []byte(text):
		return nil
	case <-done:
		return ErrClosed
	}
}

func (s *Socket) writeLoop(conn net.Conn, connID string, sendCh <-chan []byte, done <-chan struct{}, closed *sync.Once) {
	for {
		select {
		case data := <-sendCh:
			payload, compressed := s.compress(data)
			var err error
			if compressed {
				err = wsutil.WriteClientBinary(conn, payload)
			} else {
				err = wsutil.WriteClientText(conn, payload)
			}
			if err != nil {
				s.log.Warn("write error, disconnecting", "conn_id", connID, "error", err)
				s.teardown()
				closed.Do(func() { s.handler.OnClose(abnormalClosure) })
				return
			}
		case <-done:
			return
		}
	}
}

func (s *Socket) readLoop(conn net.Conn, connID string, done <-chan struct{}, closed *sync.Once) {
	for {
		data, op, err := wsutil.ReadServerData(conn)
		if err != nil {
			select {
			case <-done:
				// Caller asked for the shutdown; nothing to report.
			default:
				reason := closeReason(err)
				s.log.Warn("read error, disconnecting", "conn_id", connID, "reason", reason, "error", err)
				s.teardown()
				closed.Do(func() { s.handler.OnClose(reason) })
			}
			return
		}

		if op == ws.OpBinary {
			text, err := s.decompress(data)
			if err != nil {
				s.log.Warn("dropping undecompressable frame", "conn_id", connID, "error", err)
				continue
			}
			data = text
		}
		s.handler.OnText(string(data))
	}
}

// teardown closes the connection exactly once.
func (s *Socket) teardown() {
	s.mu.Lock()
	conn, done := s.conn, s.done
	s.conn, s.sendCh, s.done = nil, nil, nil
	s.mu.Unlock()

	if done != nil {
		close(done)
	}
	if conn != nil {
		conn.Close()
	}
}

// closeReason maps a read error to the reason string reported to the
// channel: the peer's close status code when one was received, the
// abnormal-closure code otherwise.
func closeReason(err error) string {
	var closed wsutil.ClosedError
	if errors.As(err, &closed) {
		return strconv.Itoa(int(closed.Code))
	}
	return abnormalClosure
}
