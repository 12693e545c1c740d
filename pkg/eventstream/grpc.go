package eventstream

import (
	"context"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"
)

// rawFrame is the message type exchanged over the gRPC stream: an already
// protowire-encoded envelope. There is no .proto source for this service —
// encodeEnvelope/decodeEnvelope (envelope_wire.go) are the wire format, and
// rawCodec below just hands their output to grpc's framer untouched,
// rather than marshaling a second time through a generated struct.
type rawFrame []byte

// rawCodecName is registered with grpc's encoding package so ServiceDesc
// below can request it via grpc.CallContentSubtype / grpc.ForceCodec.
const rawCodecName = "buildcached-raw"

type rawCodec struct{}

func (rawCodec) Marshal(v any) ([]byte, error) {
	f, ok := v.(*rawFrame)
	if !ok {
		return nil, status.Errorf(codes.Internal, "eventstream: rawCodec.Marshal got %T, want *rawFrame", v)
	}
	return *f, nil
}

func (rawCodec) Unmarshal(data []byte, v any) error {
	f, ok := v.(*rawFrame)
	if !ok {
		return status.Errorf(codes.Internal, "eventstream: rawCodec.Unmarshal got %T, want *rawFrame", v)
	}
	*f = append((*f)[:0], data...)
	return nil
}

func (rawCodec) Name() string { return rawCodecName }

func init() {
	encoding.RegisterCodec(rawCodec{})
}

// serviceName and streamName identify the bidirectional-streaming RPC this
// transport speaks: one stream of envelopes in each direction, multiplexed
// per connection rather than per batch.
const (
	serviceName = "buildcached.eventstream.v1.EventStream"
	streamName  = "Publish"
)

// serviceDesc is the hand-written equivalent of what protoc-gen-go-grpc
// would generate for a single bidi-streaming method — there is no .proto
// source, so it's authored directly against grpc.ServiceDesc the way the
// framework itself expects generated code to look.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*grpcStreamHandler)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    streamName,
			Handler:       publishStreamHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "pkg/eventstream/grpc.go",
}

// grpcStreamHandler is registered as the ServiceDesc's HandlerType; it is
// never called directly (grpc dispatches through the StreamDesc.Handler
// function instead), but grpc.RegisterService requires a non-nil type to
// assert the server implementation against.
type grpcStreamHandler interface{}

// ServerHandler processes one envelope received over a live stream,
// typically Subscriber.Consume.
type ServerHandler func(ctx context.Context, env envelope) error

var activeServerHandler ServerHandler

// RegisterServer installs h as the handler invoked for every envelope
// received by a grpcTransport server. Intended to be called once during
// process wiring, before grpc.Server.Serve.
func RegisterServer(srv *grpc.Server, h ServerHandler) {
	activeServerHandler = h
	srv.RegisterService(&serviceDesc, nil)
}

func publishStreamHandler(_ any, stream grpc.ServerStream) error {
	for {
		var frame rawFrame
		if err := stream.RecvMsg(&frame); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		env, err := decodeEnvelope(frame)
		if err != nil {
			return status.Errorf(codes.InvalidArgument, "eventstream: %v", err)
		}
		if activeServerHandler != nil {
			if err := activeServerHandler(stream.Context(), env); err != nil {
				return status.Errorf(codes.Internal, "eventstream: handler: %v", err)
			}
		}
	}
}

// grpcTransport implements Transport over a single bidirectional gRPC
// stream. Publishers hold one grpcTransport per peer connection. The
// receiving side does not use one: RegisterServer's handler decodes
// inbound envelopes and hands them to a ServerHandler such as a
// Subscriber.
type grpcTransport struct {
	stream grpc.ClientStream
}

// NewGRPCTransport opens a new Publish stream against conn.
func NewGRPCTransport(ctx context.Context, conn *grpc.ClientConn) (Transport, error) {
	desc := &serviceDesc.Streams[0]
	stream, err := grpc.NewClientStream(ctx, desc, conn, "/"+serviceName+"/"+streamName,
		grpc.CallContentSubtype(rawCodecName))
	if err != nil {
		return nil, err
	}
	return &grpcTransport{stream: stream}, nil
}

func (t *grpcTransport) Send(ctx context.Context, env envelope) error {
	frame := rawFrame(encodeEnvelope(env))
	return t.stream.SendMsg(&frame)
}

func (t *grpcTransport) Recv(ctx context.Context) (envelope, error) {
	var frame rawFrame
	if err := t.stream.RecvMsg(&frame); err != nil {
		return envelope{}, err
	}
	return decodeEnvelope(frame)
}
