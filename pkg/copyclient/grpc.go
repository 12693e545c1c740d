package copyclient

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"
)

// rawFrame carries an already protowire-encoded copyFrame across the wire
// untouched, the same trick pkg/eventstream/grpc.go uses: no .proto source
// exists, so encodeFrame/decodeFrame (wire.go) are the real wire format and
// this codec just hands their bytes to grpc's framer.
type rawFrame []byte

const rawCodecName = "buildcached-raw-copy"

type rawCodec struct{}

func (rawCodec) Marshal(v any) ([]byte, error) {
	f, ok := v.(*rawFrame)
	if !ok {
		return nil, status.Errorf(codes.Internal, "copyclient: rawCodec.Marshal got %T, want *rawFrame", v)
	}
	return *f, nil
}

func (rawCodec) Unmarshal(data []byte, v any) error {
	f, ok := v.(*rawFrame)
	if !ok {
		return status.Errorf(codes.Internal, "copyclient: rawCodec.Unmarshal got %T, want *rawFrame", v)
	}
	*f = append((*f)[:0], data...)
	return nil
}

func (rawCodec) Name() string { return rawCodecName }

func init() {
	encoding.RegisterCodec(rawCodec{})
}

// The copy protocol borrows the bytestream service shape
// (google.golang.org/genproto/googleapis/bytestream): Read streams content
// from the server, Write streams content to the server, and RequestCopy is
// the one-shot "go fetch it from a peer" hint. All three are modeled as
// bidi streams carrying copyFrame messages, since a hand-authored
// ServiceDesc has no generated client/server stub to enforce the
// server-only/client-only streaming direction for us anyway.
const (
	serviceName       = "buildcached.copyclient.v1.ByteStream"
	methodRead        = "Read"
	methodWrite       = "Write"
	methodRequestCopy = "RequestCopy"
)

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*grpcStreamHandler)(nil),
	Streams: []grpc.StreamDesc{
		{StreamName: methodRead, Handler: readStreamHandler, ServerStreams: true, ClientStreams: true},
		{StreamName: methodWrite, Handler: writeStreamHandler, ServerStreams: true, ClientStreams: true},
		{StreamName: methodRequestCopy, Handler: requestCopyStreamHandler, ServerStreams: true, ClientStreams: true},
	},
	Metadata: "pkg/copyclient/grpc.go",
}

type grpcStreamHandler interface{}

// ServerHandlers implements the server side of the copy protocol: serving
// content to Read, accepting content from Write (with the option to
// pre-reject), and acting on RequestCopy hints.
type ServerHandlers interface {
	// ServeRead streams hash starting at req.Offset to send, a function
	// that writes one chunk frame to the client.
	ServeRead(ctx context.Context, req copyFrame, send func(copyFrame) error) error

	// ServeWrite consumes chunks from recv until it returns io.EOF, or
	// may reject the upload immediately after seeing the header frame.
	ServeWrite(ctx context.Context, header copyFrame, recv func() (copyFrame, error)) (accepted bool, reason string, err error)

	// ServeRequestCopy acts on a peer's request-to-pull hint.
	ServeRequestCopy(ctx context.Context, req copyFrame) (accepted bool, reason string, err error)
}

var activeHandlers ServerHandlers

// RegisterServer installs h as the implementation invoked for every stream
// accepted by a grpcServer. Intended to be called once during process
// wiring, before grpc.Server.Serve.
func RegisterServer(srv *grpc.Server, h ServerHandlers) {
	activeHandlers = h
	srv.RegisterService(&serviceDesc, nil)
}

func serverRecvFrame(stream grpc.ServerStream) (copyFrame, error) {
	var raw rawFrame
	if err := stream.RecvMsg(&raw); err != nil {
		return copyFrame{}, err
	}
	return decodeFrame(raw)
}

func serverSendFrame(stream grpc.ServerStream, f copyFrame) error {
	raw := rawFrame(encodeFrame(f))
	return stream.SendMsg(&raw)
}

func readStreamHandler(_ any, stream grpc.ServerStream) error {
	if activeHandlers == nil {
		return status.Error(codes.Unimplemented, "copyclient: no server handlers registered")
	}
	req, err := serverRecvFrame(stream)
	if err != nil {
		return err
	}
	send := func(f copyFrame) error { return serverSendFrame(stream, f) }
	if err := activeHandlers.ServeRead(stream.Context(), req, send); err != nil {
		return status.Errorf(codes.Internal, "copyclient: serve read: %v", err)
	}
	return nil
}

func writeStreamHandler(_ any, stream grpc.ServerStream) error {
	if activeHandlers == nil {
		return status.Error(codes.Unimplemented, "copyclient: no server handlers registered")
	}
	header, err := serverRecvFrame(stream)
	if err != nil {
		return err
	}
	recv := func() (copyFrame, error) { return serverRecvFrame(stream) }
	accepted, reason, err := activeHandlers.ServeWrite(stream.Context(), header, recv)
	if err != nil {
		return status.Errorf(codes.Internal, "copyclient: serve write: %v", err)
	}
	if !accepted {
		return serverSendFrame(stream, copyFrame{Kind: frameKindReject, Message: reason})
	}
	return serverSendFrame(stream, copyFrame{Kind: frameKindAck, Accepted: true})
}

func requestCopyStreamHandler(_ any, stream grpc.ServerStream) error {
	if activeHandlers == nil {
		return status.Error(codes.Unimplemented, "copyclient: no server handlers registered")
	}
	req, err := serverRecvFrame(stream)
	if err != nil {
		return err
	}
	accepted, reason, err := activeHandlers.ServeRequestCopy(stream.Context(), req)
	if err != nil {
		return status.Errorf(codes.Internal, "copyclient: serve request_copy: %v", err)
	}
	return serverSendFrame(stream, copyFrame{Kind: frameKindAck, Accepted: accepted, Message: reason})
}

func newClientStream(ctx context.Context, conn *grpc.ClientConn, method string, idx int) (grpc.ClientStream, error) {
	desc := &serviceDesc.Streams[idx]
	return grpc.NewClientStream(ctx, desc, conn, "/"+serviceName+"/"+method, grpc.CallContentSubtype(rawCodecName))
}
