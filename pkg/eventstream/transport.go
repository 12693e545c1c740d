package eventstream

import (
	"context"
	"time"
)

// envelope is what actually crosses the transport: the codec payload plus
// the metadata a consumer needs before it can even decode the payload
// (which codec produced it is assumed fixed per-stream; epoch/sender/seq
// let the subscriber route and order without first decoding events).
type envelope struct {
	SenderMachine string
	Epoch         string
	OperationID   string
	Seq           uint64
	Payload       []byte

	// PublishedAt is the publisher's wall-clock time when the batch was
	// sent, used only to compute the subscriber's lag metric; it plays no
	// role in ordering or correctness.
	PublishedAt time.Time
}

// Transport sends and receives envelopes. grpcTransport (grpc.go)
// implements this over a bidirectional gRPC stream; tests use an
// in-memory channel-backed fake instead of a live network connection.
type Transport interface {
	Send(ctx context.Context, env envelope) error
	Recv(ctx context.Context) (envelope, error)
}
