package wavebus

// Transport moves raw text frames over one physical session-oriented
// connection. The channel owns none of the socket mechanics; it only asks
// the transport to connect, disconnect, and send, and reacts to the
// callbacks delivered through the bound TransportHandler.
//
// A transport must deliver at most one callback at a time and must never
// invoke a callback synchronously from within Send.
type Transport interface {
	// Bind registers the callback target. Called once, before Connect.
	Bind(h TransportHandler)
	// Connect asynchronously establishes the physical connection and
	// reports the outcome via OnOpen or OnClose.
	Connect()
	// Disconnect tears the physical connection down.
	Disconnect()
	// Send hands one text frame to the connection without blocking.
	Send(text string) error
}

// TransportHandler receives transport events.
type TransportHandler interface {
	OnOpen()
	OnClose(reason string)
	OnText(text string)
}

// Status is a coarse connection-status notification.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnected
	StatusServerError
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "DISCONNECTED"
	case StatusConnected:
		return "CONNECTED"
	case StatusServerError:
		return "SERVER_ERROR"
	}
	return "UNKNOWN"
}

// StatusSink receives status notifications, fire-and-forget.
type StatusSink func(Status)

// isCleanClose reports whether a close reason denotes a caller-initiated or
// otherwise normal shutdown. The server protocol uses "200"; WebSocket
// transports report "1000" for a normal closure. Anything else (e.g.
// "1006") is an abnormal close and surfaces as StatusServerError.
func isCleanClose(reason string) bool {
	switch reason {
	case "", "200", "1000":
		return true
	}
	return false
}
