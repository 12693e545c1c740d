package eventstream

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// envelope field numbers, hand-encoded the same way wire.go encodes Event:
// no .proto source exists for this module, so protowire's tag/varint/bytes
// primitives are driven directly instead of from protoc-generated code.
const (
	fieldEnvSender      = 1
	fieldEnvEpoch       = 2
	fieldEnvOpID        = 3
	fieldEnvSeq         = 4
	fieldEnvPayload     = 5
	fieldEnvPublishedAt = 6
)

// encodeEnvelope serializes env for transmission over Transport.
func encodeEnvelope(env envelope) []byte {
	var buf []byte
	buf = protowire.AppendTag(buf, fieldEnvSender, protowire.BytesType)
	buf = protowire.AppendBytes(buf, []byte(env.SenderMachine))

	buf = protowire.AppendTag(buf, fieldEnvEpoch, protowire.BytesType)
	buf = protowire.AppendBytes(buf, []byte(env.Epoch))

	buf = protowire.AppendTag(buf, fieldEnvOpID, protowire.BytesType)
	buf = protowire.AppendBytes(buf, []byte(env.OperationID))

	buf = protowire.AppendTag(buf, fieldEnvSeq, protowire.VarintType)
	buf = protowire.AppendVarint(buf, env.Seq)

	buf = protowire.AppendTag(buf, fieldEnvPayload, protowire.BytesType)
	buf = protowire.AppendBytes(buf, env.Payload)

	buf = protowire.AppendTag(buf, fieldEnvPublishedAt, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(env.PublishedAt.UnixNano()))

	return buf
}

// decodeEnvelope parses an envelope previously produced by encodeEnvelope.
func decodeEnvelope(buf []byte) (envelope, error) {
	var env envelope
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return envelope{}, fmt.Errorf("eventstream: malformed envelope tag: %w", protowire.ParseError(n))
		}
		buf = buf[n:]

		switch num {
		case fieldEnvSender:
			v, n := protowire.ConsumeBytes(buf)
			if n < 0 {
				return envelope{}, fmt.Errorf("eventstream: malformed envelope sender field")
			}
			env.SenderMachine = string(v)
			buf = buf[n:]
		case fieldEnvEpoch:
			v, n := protowire.ConsumeBytes(buf)
			if n < 0 {
				return envelope{}, fmt.Errorf("eventstream: malformed envelope epoch field")
			}
			env.Epoch = string(v)
			buf = buf[n:]
		case fieldEnvOpID:
			v, n := protowire.ConsumeBytes(buf)
			if n < 0 {
				return envelope{}, fmt.Errorf("eventstream: malformed envelope operation id field")
			}
			env.OperationID = string(v)
			buf = buf[n:]
		case fieldEnvSeq:
			v, n := protowire.ConsumeVarint(buf)
			if n < 0 {
				return envelope{}, fmt.Errorf("eventstream: malformed envelope seq field")
			}
			env.Seq = v
			buf = buf[n:]
		case fieldEnvPayload:
			v, n := protowire.ConsumeBytes(buf)
			if n < 0 {
				return envelope{}, fmt.Errorf("eventstream: malformed envelope payload field")
			}
			env.Payload = append([]byte(nil), v...)
			buf = buf[n:]
		case fieldEnvPublishedAt:
			v, n := protowire.ConsumeVarint(buf)
			if n < 0 {
				return envelope{}, fmt.Errorf("eventstream: malformed envelope published_at field")
			}
			env.PublishedAt = time.Unix(0, int64(v)).UTC()
			buf = buf[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, buf)
			if n < 0 {
				return envelope{}, fmt.Errorf("eventstream: malformed unknown envelope field %d", num)
			}
			buf = buf[n:]
		}
	}
	return env, nil
}
