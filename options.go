package wavebus

import (
	"log/slog"

	"github.com/wavebus/wavebus-go-sdk/envelope"
)

// PendingPolicy controls what happens to registered response handlers when
// the connection drops.
type PendingPolicy int

const (
	// LeavePending keeps handlers registered across disconnects. A handler
	// whose response never arrives is never invoked.
	LeavePending PendingPolicy = iota
	// FailPendingOnDisconnect invokes every pending handler exactly once
	// with ErrDisconnected when the channel leaves the connected state, and
	// clears the table.
	FailPendingOnDisconnect
)

// Option configures a Channel at construction time.
type Option func(*Channel)

// WithLogger sets the channel's logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Channel) {
		if l != nil {
			c.log = l
		}
	}
}

// WithStatusSink registers the sink for connection-status events.
func WithStatusSink(sink StatusSink) Option {
	return func(c *Channel) { c.status = sink }
}

// WithCredentials sets the store consulted for the one-time Authenticate
// envelope on first connection.
func WithCredentials(store CredentialStore) Option {
	return func(c *Channel) { c.creds = store }
}

// WithPendingPolicy sets the disconnect policy for pending calls.
func WithPendingPolicy(p PendingPolicy) Option {
	return func(c *Channel) { c.policy = p }
}

// WithOnSend registers a hook invoked for every envelope handed to the
// transport, in send order. Useful for metrics and timing.
func WithOnSend(fn func(envelope.Envelope)) Option {
	return func(c *Channel) { c.onSend = fn }
}

// WithOnReceive registers a hook invoked for every successfully decoded
// inbound envelope, before dispatch.
func WithOnReceive(fn func(envelope.Envelope)) Option {
	return func(c *Channel) { c.onReceive = fn }
}
