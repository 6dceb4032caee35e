// Package wavebus multiplexes an ordered request/response protocol over a
// single bidirectional text transport. A Channel correlates
// SubmitRequest/SubmitResponse pairs by sequence number, forwards
// server-push WaveletUpdate envelopes to an attached listener, and queues
// outbound envelopes in FIFO order while the connection is down.
package wavebus

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/wavebus/wavebus-go-sdk/envelope"
	"github.com/wavebus/wavebus-go-sdk/wire"
)

var (
	ErrListenerAttached = errors.New("wavebus: update listener already attached")
	ErrNilListener      = errors.New("wavebus: update listener is nil")
	ErrNilPayload       = errors.New("wavebus: payload is nil")
	ErrNilHandler       = errors.New("wavebus: response handler is nil")
	ErrDisconnected     = errors.New("wavebus: connection closed before response arrived")
)

// connState is the connection lifecycle. Transitions cycle
// DISCONNECTED -> CONNECTING -> CONNECTED -> DISCONNECTED.
type connState int

const (
	stateDisconnected connState = iota
	stateConnecting
	stateConnected
)

// UpdateListener receives server-push wavelet updates.
type UpdateListener func(*wire.WaveletUpdate)

// ResponseHandler receives the response to a submitted request. It is
// invoked at most once. err is non-nil only under FailPendingOnDisconnect,
// when the connection dropped before the response arrived.
type ResponseHandler func(*wire.SubmitResponse, error)

// Channel is the sequenced message channel. All methods are safe for
// concurrent use; transport callbacks and caller operations are serialized
// internally, and user callbacks run outside the channel's lock.
type Channel struct {
	transport Transport
	log       *slog.Logger
	status    StatusSink
	creds     CredentialStore
	policy    PendingPolicy
	onSend    func(envelope.Envelope)
	onReceive func(envelope.Envelope)

	mu             sync.Mutex
	state          connState
	neverConnected bool // no physical connection has succeeded yet
	seq            int64
	listener       UpdateListener
	pending        map[int64]ResponseHandler
	queue          []envelope.Envelope
}

// New creates a channel over the given transport. The channel starts
// disconnected; call Connect to bring it up.
func New(t Transport, opts ...Option) *Channel {
	c := &Channel{
		transport:      t,
		log:            slog.Default(),
		state:          stateDisconnected,
		neverConnected: true,
		pending:        make(map[int64]ResponseHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	t.Bind(transportHook{c})
	return c
}

// AttachListener registers the listener for wavelet updates. At most one
// listener may ever be attached for the lifetime of the channel; updates
// arriving before attachment are dropped.
func (c *Channel) AttachListener(l UpdateListener) error {
	if l == nil {
		return ErrNilListener
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listener != nil {
		return ErrListenerAttached
	}
	c.listener = l
	return nil
}

// Connect opens the connection. Allowed from any state.
func (c *Channel) Connect() {
	c.mu.Lock()
	c.state = stateConnecting
	c.mu.Unlock()
	c.transport.Connect()
}

// Disconnect tears the connection down. When discardPending is true the
// outbound queue is cleared; requests already sent and awaiting a response
// stay registered, subject to the pending policy. Explicit teardown also
// re-arms the first-connection authentication for the next Connect.
func (c *Channel) Disconnect(discardPending bool) {
	c.mu.Lock()
	c.state = stateDisconnected
	c.neverConnected = true
	if discardPending {
		c.queue = nil
	}
	var failed []ResponseHandler
	if c.policy == FailPendingOnDisconnect {
		failed = c.takePendingLocked()
	}
	c.mu.Unlock()

	c.transport.Disconnect()
	for _, fn := range failed {
		fn(nil, ErrDisconnected)
	}
	if c.status != nil {
		c.status(StatusDisconnected)
	}
}

// Submit sends a SubmitRequest and registers fn for its response. The
// request is sent immediately when connected, otherwise queued. Under the
// default LeavePending policy, a response that never arrives leaves fn
// registered indefinitely; callers wanting a bounded wait layer a timer
// that ignores the late response.
func (c *Channel) Submit(req *wire.SubmitRequest, fn ResponseHandler) error {
	if req == nil {
		return ErrNilPayload
	}
	if fn == nil {
		return ErrNilHandler
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	seq := c.nextSeqLocked()
	if err := c.sendLocked(seq, envelope.TypeSubmitRequest, req); err != nil {
		return err
	}
	c.pending[seq] = fn
	return nil
}

// Open sends an OpenRequest, fire-and-forget.
func (c *Channel) Open(req *wire.OpenRequest) error {
	if req == nil {
		return ErrNilPayload
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sendLocked(c.nextSeqLocked(), envelope.TypeOpenRequest, req)
}

// nextSeqLocked allocates the next sequence number. A single counter is
// shared across all envelope kinds, starting at 0.
func (c *Channel) nextSeqLocked() int64 {
	s := c.seq
	c.seq++
	return s
}

// sendLocked wraps payload in an envelope and either transmits it now or
// appends it to the outbound queue. An envelope is never split: it is
// either fully handed to the transport or fully queued.
func (c *Channel) sendLocked(seq int64, msgType string, payload any) error {
	env, err := envelope.New(seq, msgType, payload)
	if err != nil {
		return err
	}
	// A non-empty queue means an earlier envelope is still waiting (a send
	// failed while connected); later envelopes line up behind it so the
	// next drain keeps submission order.
	if c.state != stateConnected || len(c.queue) > 0 {
		c.queue = append(c.queue, env)
		return nil
	}
	c.transmitLocked(env)
	return nil
}

// transmitLocked encodes env and hands it to the transport. On send
// failure the envelope is put back at the head of the queue so FIFO order
// holds across the next reconnect; false is returned to stop any drain in
// progress.
func (c *Channel) transmitLocked(env envelope.Envelope) bool {
	text, err := env.Encode()
	if err != nil {
		c.log.Warn("dropping unencodable envelope", "seq", env.Seq, "type", env.Type, "error", err)
		return true
	}
	if c.onSend != nil {
		c.onSend(env)
	}
	if err := c.transport.Send(text); err != nil {
		c.log.Warn("send failed, requeueing envelope", "seq", env.Seq, "type", env.Type, "error", err)
		c.queue = append([]envelope.Envelope{env}, c.queue...)
		return false
	}
	return true
}

// takePendingLocked removes and returns every pending handler.
func (c *Channel) takePendingLocked() []ResponseHandler {
	if len(c.pending) == 0 {
		return nil
	}
	out := make([]ResponseHandler, 0, len(c.pending))
	for seq, fn := range c.pending {
		delete(c.pending, seq)
		out = append(out, fn)
	}
	return out
}

// transportHook adapts the channel to TransportHandler without exporting
// the callback methods on Channel itself.
type transportHook struct{ c *Channel }

func (h transportHook) OnOpen()               { h.c.handleOpen() }
func (h transportHook) OnClose(reason string) { h.c.handleClose(reason) }
func (h transportHook) OnText(text string)    { h.c.handleText(text) }

func (c *Channel) handleOpen() {
	c.mu.Lock()
	c.state = stateConnected

	// The session credential rides a normal envelope with a fresh sequence
	// number, transmitted directly so it goes out ahead of anything queued.
	drain := true
	if c.neverConnected && c.creds != nil {
		if token, ok := c.creds.SessionToken(); ok {
			env, err := envelope.New(c.nextSeqLocked(), envelope.TypeAuthenticate, &wire.Authenticate{Token: token})
			if err == nil {
				drain = c.transmitLocked(env)
			}
		}
	}
	c.neverConnected = false

	// Drain the queue in FIFO order. A failed send stops the drain; the
	// remainder waits for the next connection.
	for drain && len(c.queue) > 0 && c.state == stateConnected {
		env := c.queue[0]
		c.queue = c.queue[1:]
		if !c.transmitLocked(env) {
			break
		}
	}
	c.mu.Unlock()

	if c.status != nil {
		c.status(StatusConnected)
	}
}

func (c *Channel) handleClose(reason string) {
	c.mu.Lock()
	wasDisconnected := c.state == stateDisconnected
	c.state = stateDisconnected
	var failed []ResponseHandler
	if c.policy == FailPendingOnDisconnect {
		failed = c.takePendingLocked()
	}
	c.mu.Unlock()

	for _, fn := range failed {
		fn(nil, ErrDisconnected)
	}
	if c.status == nil {
		return
	}
	switch {
	case !isCleanClose(reason):
		c.status(StatusServerError)
	case !wasDisconnected:
		c.status(StatusDisconnected)
	}
}

// handleText decodes one inbound frame and dispatches it. Malformed frames
// and unrecognized message types are dropped; the connection stays up.
func (c *Channel) handleText(text string) {
	env, err := envelope.Decode(text)
	if err != nil {
		c.log.Warn("dropping malformed envelope", "error", err)
		return
	}
	if c.onReceive != nil {
		c.onReceive(env)
	}

	switch env.Type {
	case envelope.TypeWaveletUpdate:
		var update wire.WaveletUpdate
		if err := json.Unmarshal(env.Message, &update); err != nil {
			c.log.Warn("dropping malformed wavelet update", "seq", env.Seq, "error", err)
			return
		}
		c.mu.Lock()
		listener := c.listener
		c.mu.Unlock()
		if listener == nil {
			c.log.Debug("dropping wavelet update, no listener attached", "seq", env.Seq)
			return
		}
		listener(&update)

	case envelope.TypeSubmitResponse:
		var resp wire.SubmitResponse
		if err := json.Unmarshal(env.Message, &resp); err != nil {
			c.log.Warn("dropping malformed submit response", "seq", env.Seq, "error", err)
			return
		}
		c.mu.Lock()
		fn, ok := c.pending[env.Seq]
		if ok {
			delete(c.pending, env.Seq)
		}
		c.mu.Unlock()
		if !ok {
			c.log.Debug("dropping uncorrelated submit response", "seq", env.Seq)
			return
		}
		fn(&resp, nil)

	default:
		c.log.Debug("ignoring unrecognized message type", "type", env.Type, "seq", env.Seq)
	}
}
