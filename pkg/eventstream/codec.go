package eventstream

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/marmos91/buildcached/pkg/events"
)

// Codec serializes and deserializes an event batch's wire payload. Batch
// metadata (epoch, sender, trace/operation id, sequence number) travels
// alongside the payload in the Batch envelope, not inside the codec.
type Codec interface {
	EncodeBatch(evs []events.Event) ([]byte, error)
	DecodeBatch(raw []byte) ([]events.Event, error)

	// DecodeFrames decodes raw one message at a time, continuing past a
	// malformed individual frame instead of aborting the whole batch the
	// way DecodeBatch does. The subscriber dispatches per-message, and a
	// single corrupt event must only fail that one message (counted,
	// traced, sequence point still advances) — not the rest of the batch.
	DecodeFrames(raw []byte) []FrameResult
}

// FrameResult is one message's outcome from DecodeFrames.
type FrameResult struct {
	Event events.Event
	Err   error
}

// lengthPrefixedCodec is the primary wire codec: each event is a protobuf
// wire-format message (pkg/eventstream/wire.go) framed with a 4-byte
// big-endian length prefix, so the events of one batch can share a single
// payload. Each payload is decoded on its own: a batch is always carried
// whole in one stream message and is not reassembled across messages.
type lengthPrefixedCodec struct{}

// NewCodec returns the length-prefixed protobuf-wire codec.
func NewCodec() Codec {
	return lengthPrefixedCodec{}
}

func (lengthPrefixedCodec) EncodeBatch(evs []events.Event) ([]byte, error) {
	var out []byte
	for _, ev := range evs {
		msg := encodeEvent(nil, ev)
		var lenPrefix [4]byte
		binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(msg)))
		out = append(out, lenPrefix[:]...)
		out = append(out, msg...)
	}
	return out, nil
}

func (lengthPrefixedCodec) DecodeBatch(raw []byte) ([]events.Event, error) {
	var out []events.Event
	for len(raw) > 0 {
		if len(raw) < 4 {
			return nil, fmt.Errorf("eventstream: truncated length prefix")
		}
		n := binary.BigEndian.Uint32(raw[:4])
		raw = raw[4:]
		if uint32(len(raw)) < n {
			return nil, fmt.Errorf("eventstream: truncated frame: want %d bytes, have %d", n, len(raw))
		}
		msg := raw[:n]
		raw = raw[n:]

		ev, err := decodeEvent(msg)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

func (lengthPrefixedCodec) DecodeFrames(raw []byte) []FrameResult {
	var out []FrameResult
	for len(raw) > 0 {
		if len(raw) < 4 {
			out = append(out, FrameResult{Err: fmt.Errorf("eventstream: truncated length prefix")})
			return out
		}
		n := binary.BigEndian.Uint32(raw[:4])
		raw = raw[4:]
		if uint32(len(raw)) < n {
			out = append(out, FrameResult{Err: fmt.Errorf("eventstream: truncated frame: want %d bytes, have %d", n, len(raw))})
			return out
		}
		msg := raw[:n]
		raw = raw[n:]

		ev, err := decodeEvent(msg)
		out = append(out, FrameResult{Event: ev, Err: err})
	}
	return out
}

// legacyCodec is a plain-JSON codec, kept for interop with producers that
// predate the length-prefixed wire format.
type legacyCodec struct{}

// NewLegacyCodec returns the JSON codec.
func NewLegacyCodec() Codec {
	return legacyCodec{}
}

func (legacyCodec) EncodeBatch(evs []events.Event) ([]byte, error) {
	return json.Marshal(evs)
}

func (legacyCodec) DecodeBatch(raw []byte) ([]events.Event, error) {
	var evs []events.Event
	if err := json.Unmarshal(raw, &evs); err != nil {
		return nil, err
	}
	return evs, nil
}

// DecodeFrames has no way to isolate a single malformed element within one
// JSON array without re-parsing token by token, so the legacy codec's
// tolerance is coarser than the length-prefixed codec's: the whole legacy
// payload either decodes as one frame-result-per-event, or, on a parse
// error, as a single failed frame representing the batch.
func (c legacyCodec) DecodeFrames(raw []byte) []FrameResult {
	evs, err := c.DecodeBatch(raw)
	if err != nil {
		return []FrameResult{{Err: err}}
	}
	out := make([]FrameResult, len(evs))
	for i, ev := range evs {
		out[i] = FrameResult{Event: ev}
	}
	return out
}
