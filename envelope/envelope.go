// Package envelope implements the JSON envelope codec for the wavebus
// protocol. Every frame on the wire is a single JSON record with exactly
// three fields:
//
//	{ "sequenceNumber": <int>, "messageType": <string>, "message": <payload> }
//
// The payload schema is selected by the message type; see package wire for
// the schemas. The codec itself is type-agnostic: it carries the payload as
// raw JSON and tolerates message types it has never seen.
package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Message types. The string tags are fixed by the server protocol.
const (
	TypeAuthenticate   = "Authenticate"   // client -> server, session credential
	TypeOpenRequest    = "OpenRequest"    // client -> server, fire-and-forget
	TypeSubmitRequest  = "SubmitRequest"  // client -> server, response-correlated
	TypeSubmitResponse = "SubmitResponse" // server -> client, correlated by sequence number
	TypeWaveletUpdate  = "WaveletUpdate"  // server -> client, push, uncorrelated
)

var (
	ErrMalformedEnvelope = errors.New("envelope: malformed envelope")
	ErrEmptyType         = errors.New("envelope: empty message type")
	ErrNegativeSequence  = errors.New("envelope: negative sequence number")
)

// Envelope is one sequence-numbered, typed frame.
type Envelope struct {
	Seq     int64
	Type    string
	Message json.RawMessage
}

// record is the wire shape. Decoding goes through pointer fields so that a
// missing field is distinguishable from its zero value.
type record struct {
	SequenceNumber int64           `json:"sequenceNumber"`
	MessageType    string          `json:"messageType"`
	Message        json.RawMessage `json:"message"`
}

type recordIn struct {
	SequenceNumber *int64          `json:"sequenceNumber"`
	MessageType    *string         `json:"messageType"`
	Message        json.RawMessage `json:"message"`
}

// New wraps payload into an Envelope, marshalling it to raw JSON.
func New(seq int64, msgType string, payload any) (Envelope, error) {
	if seq < 0 {
		return Envelope{}, ErrNegativeSequence
	}
	if msgType == "" {
		return Envelope{}, ErrEmptyType
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("envelope: marshal payload: %w", err)
	}
	return Envelope{Seq: seq, Type: msgType, Message: body}, nil
}

// Encode serialises an envelope into one wire frame.
func Encode(seq int64, msgType string, payload any) (string, error) {
	env, err := New(seq, msgType, payload)
	if err != nil {
		return "", err
	}
	return env.Encode()
}

// Encode serialises the envelope into one wire frame.
func (e Envelope) Encode() (string, error) {
	if e.Seq < 0 {
		return "", ErrNegativeSequence
	}
	if e.Type == "" {
		return "", ErrEmptyType
	}
	msg := e.Message
	if msg == nil {
		msg = json.RawMessage("null")
	}
	out, err := json.Marshal(record{
		SequenceNumber: e.Seq,
		MessageType:    e.Type,
		Message:        msg,
	})
	if err != nil {
		return "", fmt.Errorf("envelope: encode: %w", err)
	}
	return string(out), nil
}

// Decode parses one wire frame. All three fields must be present; anything
// else fails with ErrMalformedEnvelope.
func Decode(text string) (Envelope, error) {
	var rec recordIn
	if err := json.Unmarshal([]byte(text), &rec); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	switch {
	case rec.SequenceNumber == nil:
		return Envelope{}, fmt.Errorf("%w: missing sequenceNumber", ErrMalformedEnvelope)
	case rec.MessageType == nil:
		return Envelope{}, fmt.Errorf("%w: missing messageType", ErrMalformedEnvelope)
	case rec.Message == nil:
		return Envelope{}, fmt.Errorf("%w: missing message", ErrMalformedEnvelope)
	case *rec.SequenceNumber < 0:
		return Envelope{}, fmt.Errorf("%w: negative sequenceNumber", ErrMalformedEnvelope)
	case *rec.MessageType == "":
		return Envelope{}, fmt.Errorf("%w: empty messageType", ErrMalformedEnvelope)
	}
	return Envelope{
		Seq:     *rec.SequenceNumber,
		Type:    *rec.MessageType,
		Message: rec.Message,
	}, nil
}
