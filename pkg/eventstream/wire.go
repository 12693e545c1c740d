package eventstream

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/marmos91/buildcached/pkg/events"
)

// Event field numbers in the hand-maintained wire schema below: there is
// no .proto source for this message (protoc is not run as part of this
// module's build), so the fields are encoded directly with
// google.golang.org/protobuf/encoding/protowire's tag/varint/bytes
// primitives — the same low-level encoder protoc-generated code itself
// calls into, just driven by hand instead of from codegen.
const (
	fieldKind          = 1
	fieldHash          = 2
	fieldSize          = 3
	fieldEpoch         = 4
	fieldSenderMachine = 5
	fieldOperationID   = 6
)

// encodeEvent appends ev's protobuf wire-format encoding to buf.
func encodeEvent(buf []byte, ev events.Event) []byte {
	buf = protowire.AppendTag(buf, fieldKind, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(ev.Kind))

	buf = protowire.AppendTag(buf, fieldHash, protowire.BytesType)
	buf = protowire.AppendBytes(buf, []byte(ev.Hash))

	buf = protowire.AppendTag(buf, fieldSize, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(ev.Size))

	buf = protowire.AppendTag(buf, fieldEpoch, protowire.BytesType)
	buf = protowire.AppendBytes(buf, []byte(ev.Epoch))

	buf = protowire.AppendTag(buf, fieldSenderMachine, protowire.BytesType)
	buf = protowire.AppendBytes(buf, []byte(ev.SenderMachine))

	buf = protowire.AppendTag(buf, fieldOperationID, protowire.BytesType)
	buf = protowire.AppendBytes(buf, []byte(ev.OperationID))

	return buf
}

// decodeEvent parses one event message from buf, which must contain
// exactly one message (no trailing bytes).
func decodeEvent(buf []byte) (events.Event, error) {
	var ev events.Event
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return events.Event{}, fmt.Errorf("eventstream: malformed tag: %w", protowire.ParseError(n))
		}
		buf = buf[n:]

		switch num {
		case fieldKind:
			v, n := protowire.ConsumeVarint(buf)
			if n < 0 {
				return events.Event{}, fmt.Errorf("eventstream: malformed kind field")
			}
			ev.Kind = events.Kind(v)
			buf = buf[n:]
		case fieldHash:
			v, n := protowire.ConsumeBytes(buf)
			if n < 0 {
				return events.Event{}, fmt.Errorf("eventstream: malformed hash field")
			}
			ev.Hash = string(v)
			buf = buf[n:]
		case fieldSize:
			v, n := protowire.ConsumeVarint(buf)
			if n < 0 {
				return events.Event{}, fmt.Errorf("eventstream: malformed size field")
			}
			ev.Size = int64(v)
			buf = buf[n:]
		case fieldEpoch:
			v, n := protowire.ConsumeBytes(buf)
			if n < 0 {
				return events.Event{}, fmt.Errorf("eventstream: malformed epoch field")
			}
			ev.Epoch = string(v)
			buf = buf[n:]
		case fieldSenderMachine:
			v, n := protowire.ConsumeBytes(buf)
			if n < 0 {
				return events.Event{}, fmt.Errorf("eventstream: malformed sender field")
			}
			ev.SenderMachine = string(v)
			buf = buf[n:]
		case fieldOperationID:
			v, n := protowire.ConsumeBytes(buf)
			if n < 0 {
				return events.Event{}, fmt.Errorf("eventstream: malformed operation id field")
			}
			ev.OperationID = string(v)
			buf = buf[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, buf)
			if n < 0 {
				return events.Event{}, fmt.Errorf("eventstream: malformed unknown field %d", num)
			}
			buf = buf[n:]
		}
	}
	return ev, nil
}
