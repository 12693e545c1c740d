package copyclient

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// frameKind discriminates the copyFrame messages multiplexed over the three
// streaming RPCs this package drives. There is no .proto source for the
// copy protocol — these are hand-encoded with protowire directly, the same
// approach pkg/eventstream takes for its envelope.
type frameKind uint64

const (
	frameKindRequest frameKind = 1 // copy_file/push_file/request_copy request
	frameKindHeader  frameKind = 2 // copy_file response header
	frameKindChunk   frameKind = 3 // a body chunk, either direction
	frameKindReject  frameKind = 4 // push_file server pre-rejection
	frameKindAck     frameKind = 5 // push_file/request_copy final response
)

// copyFrame is the single wire message type for the copy protocol. Only the
// fields relevant to its Kind are populated; decode tolerates absent fields
// so a header with no Exception/Message decodes to the zero value for
// those, matching spec.md §6's "absence of headers is treated as
// server-unavailable" (the caller distinguishes "no header frame arrived"
// from "header frame with empty fields" by never receiving one at all).
type copyFrame struct {
	Kind         frameKind
	Hash         string
	Offset       int64
	Compression  bool
	FailFastBusy bool
	Exception    string
	Message      string
	Data         []byte
	SourcePeer   string
	Accepted     bool
}

const (
	fieldFrameKind        = 1
	fieldFrameHash        = 2
	fieldFrameOffset      = 3
	fieldFrameCompression = 4
	fieldFrameFailFast    = 5
	fieldFrameException   = 6
	fieldFrameMessage     = 7
	fieldFrameData        = 8
	fieldFrameSourcePeer  = 9
	fieldFrameAccepted    = 10
)

func encodeFrame(f copyFrame) []byte {
	var buf []byte
	buf = protowire.AppendTag(buf, fieldFrameKind, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(f.Kind))

	if f.Hash != "" {
		buf = protowire.AppendTag(buf, fieldFrameHash, protowire.BytesType)
		buf = protowire.AppendBytes(buf, []byte(f.Hash))
	}
	if f.Offset != 0 {
		buf = protowire.AppendTag(buf, fieldFrameOffset, protowire.VarintType)
		buf = protowire.AppendVarint(buf, uint64(f.Offset))
	}
	if f.Compression {
		buf = protowire.AppendTag(buf, fieldFrameCompression, protowire.VarintType)
		buf = protowire.AppendVarint(buf, 1)
	}
	if f.FailFastBusy {
		buf = protowire.AppendTag(buf, fieldFrameFailFast, protowire.VarintType)
		buf = protowire.AppendVarint(buf, 1)
	}
	if f.Exception != "" {
		buf = protowire.AppendTag(buf, fieldFrameException, protowire.BytesType)
		buf = protowire.AppendBytes(buf, []byte(f.Exception))
	}
	if f.Message != "" {
		buf = protowire.AppendTag(buf, fieldFrameMessage, protowire.BytesType)
		buf = protowire.AppendBytes(buf, []byte(f.Message))
	}
	if len(f.Data) > 0 {
		buf = protowire.AppendTag(buf, fieldFrameData, protowire.BytesType)
		buf = protowire.AppendBytes(buf, f.Data)
	}
	if f.SourcePeer != "" {
		buf = protowire.AppendTag(buf, fieldFrameSourcePeer, protowire.BytesType)
		buf = protowire.AppendBytes(buf, []byte(f.SourcePeer))
	}
	if f.Accepted {
		buf = protowire.AppendTag(buf, fieldFrameAccepted, protowire.VarintType)
		buf = protowire.AppendVarint(buf, 1)
	}
	return buf
}

func decodeFrame(buf []byte) (copyFrame, error) {
	var f copyFrame
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return copyFrame{}, fmt.Errorf("copyclient: malformed frame tag: %w", protowire.ParseError(n))
		}
		buf = buf[n:]

		switch num {
		case fieldFrameKind:
			v, n := protowire.ConsumeVarint(buf)
			if n < 0 {
				return copyFrame{}, fmt.Errorf("copyclient: malformed frame kind")
			}
			f.Kind = frameKind(v)
			buf = buf[n:]
		case fieldFrameHash:
			v, n := protowire.ConsumeBytes(buf)
			if n < 0 {
				return copyFrame{}, fmt.Errorf("copyclient: malformed frame hash")
			}
			f.Hash = string(v)
			buf = buf[n:]
		case fieldFrameOffset:
			v, n := protowire.ConsumeVarint(buf)
			if n < 0 {
				return copyFrame{}, fmt.Errorf("copyclient: malformed frame offset")
			}
			f.Offset = int64(v)
			buf = buf[n:]
		case fieldFrameCompression:
			v, n := protowire.ConsumeVarint(buf)
			if n < 0 {
				return copyFrame{}, fmt.Errorf("copyclient: malformed frame compression")
			}
			f.Compression = v != 0
			buf = buf[n:]
		case fieldFrameFailFast:
			v, n := protowire.ConsumeVarint(buf)
			if n < 0 {
				return copyFrame{}, fmt.Errorf("copyclient: malformed frame fail_fast")
			}
			f.FailFastBusy = v != 0
			buf = buf[n:]
		case fieldFrameException:
			v, n := protowire.ConsumeBytes(buf)
			if n < 0 {
				return copyFrame{}, fmt.Errorf("copyclient: malformed frame exception")
			}
			f.Exception = string(v)
			buf = buf[n:]
		case fieldFrameMessage:
			v, n := protowire.ConsumeBytes(buf)
			if n < 0 {
				return copyFrame{}, fmt.Errorf("copyclient: malformed frame message")
			}
			f.Message = string(v)
			buf = buf[n:]
		case fieldFrameData:
			v, n := protowire.ConsumeBytes(buf)
			if n < 0 {
				return copyFrame{}, fmt.Errorf("copyclient: malformed frame data")
			}
			f.Data = append([]byte(nil), v...)
			buf = buf[n:]
		case fieldFrameSourcePeer:
			v, n := protowire.ConsumeBytes(buf)
			if n < 0 {
				return copyFrame{}, fmt.Errorf("copyclient: malformed frame source_peer")
			}
			f.SourcePeer = string(v)
			buf = buf[n:]
		case fieldFrameAccepted:
			v, n := protowire.ConsumeVarint(buf)
			if n < 0 {
				return copyFrame{}, fmt.Errorf("copyclient: malformed frame accepted")
			}
			f.Accepted = v != 0
			buf = buf[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, buf)
			if n < 0 {
				return copyFrame{}, fmt.Errorf("copyclient: malformed unknown frame field %d", num)
			}
			buf = buf[n:]
		}
	}
	return f, nil
}
