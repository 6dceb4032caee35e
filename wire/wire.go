// Package wire defines the JSON payload types for the wavebus protocol.
// Each message type named in package envelope has exactly one payload
// schema here — the registry that couples type tag to schema.
package wire

import (
	"encoding/json"
	"fmt"

	"github.com/wavebus/wavebus-go-sdk/envelope"
)

// Authenticate carries the session credential sent once per channel
// lifetime, on the first successful connection (client -> server).
type Authenticate struct {
	Token string `json:"token"`
}

// HashedVersion identifies a wavelet version together with the hash of its
// history up to that version.
type HashedVersion struct {
	Version     int64  `json:"version"`
	HistoryHash string `json:"historyHash,omitempty"`
}

// Delta is an ordered bundle of operations against a wavelet version. The
// operations themselves are opaque to the channel.
type Delta struct {
	Author        string            `json:"author,omitempty"`
	Operations    []json.RawMessage `json:"operations,omitempty"`
	TargetVersion *HashedVersion    `json:"targetVersion,omitempty"`
}

// OpenRequest subscribes the caller to wavelet updates for a wave
// (client -> server, fire-and-forget).
type OpenRequest struct {
	ParticipantID     string   `json:"participantId"`
	WaveID            string   `json:"waveId"`
	WaveletIDPrefixes []string `json:"waveletIdPrefix,omitempty"`
}

// SubmitRequest submits a delta against a wavelet (client -> server,
// response-correlated by sequence number).
type SubmitRequest struct {
	WaveName  string `json:"waveName"`
	ChannelID string `json:"channelId,omitempty"`
	Delta     *Delta `json:"delta,omitempty"`
}

// SubmitResponse is the server's answer to a SubmitRequest, carried in an
// envelope bearing the request's sequence number.
type SubmitResponse struct {
	OperationsApplied             int32          `json:"operationsApplied"`
	ErrorMessage                  string         `json:"errorMessage,omitempty"`
	HashedVersionAfterApplication *HashedVersion `json:"hashedVersionAfterApplication,omitempty"`
}

// WaveletUpdate is a server push notifying the client of wavelet changes.
// It is never correlated to a request.
type WaveletUpdate struct {
	WaveletName      string         `json:"waveletName"`
	AppliedDeltas    []Delta        `json:"appliedDelta,omitempty"`
	CommitNotice     *HashedVersion `json:"commitNotice,omitempty"`
	ResultingVersion *HashedVersion `json:"resultingVersion,omitempty"`
	Marker           bool           `json:"marker,omitempty"`
}

// UnmarshalPayload decodes raw into the payload schema registered for
// msgType. Unknown message types are an error — callers that want to
// tolerate them check the type tag first.
func UnmarshalPayload(msgType string, raw json.RawMessage) (any, error) {
	var payload any
	switch msgType {
	case envelope.TypeAuthenticate:
		payload = new(Authenticate)
	case envelope.TypeOpenRequest:
		payload = new(OpenRequest)
	case envelope.TypeSubmitRequest:
		payload = new(SubmitRequest)
	case envelope.TypeSubmitResponse:
		payload = new(SubmitResponse)
	case envelope.TypeWaveletUpdate:
		payload = new(WaveletUpdate)
	default:
		return nil, fmt.Errorf("wire: unknown message type %q", msgType)
	}
	if err := json.Unmarshal(raw, payload); err != nil {
		return nil, fmt.Errorf("wire: decode %s payload: %w", msgType, err)
	}
	return payload, nil
}
