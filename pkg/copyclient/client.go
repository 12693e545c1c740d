package copyclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/marmos91/buildcached/internal/logger"
	"github.com/marmos91/buildcached/internal/telemetry"
	"github.com/marmos91/buildcached/pkg/cacheerr"
	"github.com/marmos91/buildcached/pkg/hash"
	"github.com/marmos91/buildcached/pkg/metrics"
)

const defaultChunkSize = 64 * 1024

// CopyOptions tunes a single copy_file/push_file call.
type CopyOptions struct {
	// Offset resumes a copy_file from a byte offset into the content.
	Offset int64

	// CompressionHint asks the peer to gzip response/request chunk
	// bodies.
	CompressionHint bool

	// FailFastIfBusy asks the peer to reject immediately, rather than
	// queue, if it's at capacity.
	FailFastIfBusy bool
}

// Client drives the copy protocol against peers reachable through a Pool.
type Client struct {
	cfg     Config
	pool    *Pool
	metrics metrics.CopyClientMetrics
}

// NewClient constructs a Client over an existing connection Pool.
func NewClient(cfg Config, pool *Pool, m metrics.CopyClientMetrics) *Client {
	return &Client{cfg: cfg, pool: pool, metrics: m}
}

// CopyFile pulls content h from peer into dest, enforcing connect,
// time-to-first-byte, and sustained-bandwidth timeouts. It returns the
// number of bytes written to dest.
func (c *Client) CopyFile(ctx context.Context, peer string, h hash.ContentHash, dest io.Writer, opts CopyOptions) (int64, error) {
	ctx, span := telemetry.StartComponentSpan(ctx, "copyclient", "copy_file", telemetry.Peer(peer), telemetry.ContentHash(h.String()))
	defer span.End()

	start := time.Now()
	n, err := c.copyFile(ctx, peer, h, dest, opts)
	metrics.ObserveCopy(c.metrics, peer, n, time.Since(start), err)
	return n, err
}

func (c *Client) copyFile(ctx context.Context, peer string, h hash.ContentHash, dest io.Writer, opts CopyOptions) (int64, error) {
	lease, err := c.pool.Acquire(ctx, peer)
	if err != nil {
		return 0, err
	}
	defer lease.Release()

	stream, err := newClientStream(lease.Ctx, lease.Conn, methodRead, 0)
	if err != nil {
		return 0, cacheerr.NewTransientError("open copy_file stream", peer, err)
	}
	srC := sendRecvCloser(stream)

	req := copyFrame{
		Kind:         frameKindRequest,
		Hash:         h.String(),
		Offset:       opts.Offset,
		Compression:  opts.CompressionHint,
		FailFastBusy: opts.FailFastIfBusy,
	}
	if err := clientSendFrame(srC, req); err != nil {
		return 0, cacheerr.NewTransientError("send copy_file request", peer, err)
	}
	if err := stream.CloseSend(); err != nil {
		return 0, cacheerr.NewTransientError("close copy_file send side", peer, err)
	}

	header, err := recvFrameWithTimeout(ctx, srC, c.cfg.TimeToFirstByteTimeout)
	if err != nil {
		return 0, cacheerr.NewTransientError("peer did not respond to copy_file (server-unavailable)", peer, err)
	}
	if header.Exception != "" {
		return 0, cacheerr.NewTerminalError(header.Exception, header.Message, nil)
	}

	bwCtx, bwCancel := context.WithCancel(lease.Ctx)
	defer bwCancel()
	monitor := newBandwidthMonitor(c.cfg)
	go monitor.run(bwCtx, bwCancel)

	var total int64
	for {
		frame, err := recvFrame(srC)
		if errors.Is(err, io.EOF) {
			monitor.stop()
			return total, nil
		}
		if err != nil {
			if monitor.Stalled() {
				metrics.RecordBandwidthStall(c.metrics, peer)
				return total, cacheerr.NewBandwidthTimeoutError(peer)
			}
			return total, cacheerr.NewTransientError("receive copy_file chunk", peer, err)
		}
		if frame.Kind != frameKindChunk {
			continue
		}

		data := frame.Data
		if header.Compression {
			data, err = gunzipChunk(data)
			if err != nil {
				return total, cacheerr.NewTerminalError("decompress copy_file chunk", peer, err)
			}
		}
		if _, err := dest.Write(data); err != nil {
			return total, cacheerr.NewTerminalError("write copy_file chunk to destination", peer, err)
		}
		total += int64(len(data))
		monitor.Add(len(data))
	}
}

// PushFile streams content h from src to peer. The peer may pre-reject the
// upload (e.g. it already has the content, or is at capacity); the
// rejection is surfaced as a Terminal cacheerr.Error rather than a
// transport failure.
func (c *Client) PushFile(ctx context.Context, peer string, h hash.ContentHash, src io.Reader, size int64, opts CopyOptions) error {
	ctx, span := telemetry.StartComponentSpan(ctx, "copyclient", "push_file", telemetry.Peer(peer), telemetry.ContentHash(h.String()), telemetry.Size(size))
	defer span.End()

	start := time.Now()
	n, err := c.pushFile(ctx, peer, h, src, size, opts)
	metrics.ObserveCopy(c.metrics, peer, n, time.Since(start), err)
	return err
}

func (c *Client) pushFile(ctx context.Context, peer string, h hash.ContentHash, src io.Reader, size int64, opts CopyOptions) (int64, error) {
	lease, err := c.pool.Acquire(ctx, peer)
	if err != nil {
		return 0, err
	}
	defer lease.Release()

	stream, err := newClientStream(lease.Ctx, lease.Conn, methodWrite, 1)
	if err != nil {
		return 0, cacheerr.NewTransientError("open push_file stream", peer, err)
	}
	srC := sendRecvCloser(stream)

	header := copyFrame{Kind: frameKindRequest, Hash: h.String(), Offset: size, Compression: opts.CompressionHint}
	if err := clientSendFrame(srC, header); err != nil {
		return 0, cacheerr.NewTransientError("send push_file header", peer, err)
	}

	final := make(chan copyFrame, 1)
	finalErr := make(chan error, 1)
	go func() {
		f, err := recvFrame(srC)
		if err != nil {
			finalErr <- err
			return
		}
		final <- f
	}()

	bwCtx, bwCancel := context.WithCancel(lease.Ctx)
	defer bwCancel()
	monitor := newBandwidthMonitor(c.cfg)
	go monitor.run(bwCtx, bwCancel)

	buf := make([]byte, defaultChunkSize)
	var total int64
sendLoop:
	for {
		select {
		case rej := <-final:
			if rej.Kind == frameKindReject {
				return total, cacheerr.NewTerminalError("push_file rejected by peer", rej.Message, nil)
			}
			break sendLoop
		case err := <-finalErr:
			return total, cacheerr.NewTransientError("push_file aborted waiting for peer response", peer, err)
		default:
		}

		n, rerr := src.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if opts.CompressionHint {
				var gerr error
				chunk, gerr = gzipChunk(chunk)
				if gerr != nil {
					return total, cacheerr.NewTerminalError("compress push_file chunk", peer, gerr)
				}
			}
			if err := clientSendFrame(srC, copyFrame{Kind: frameKindChunk, Data: chunk}); err != nil {
				if bwCtx.Err() != nil && monitor.Stalled() {
					metrics.RecordBandwidthStall(c.metrics, peer)
					return total, cacheerr.NewBandwidthTimeoutError(peer)
				}
				return total, cacheerr.NewTransientError("send push_file chunk", peer, err)
			}
			total += int64(n)
			monitor.Add(n)
		}
		if errors.Is(rerr, io.EOF) {
			break sendLoop
		}
		if rerr != nil {
			return total, cacheerr.NewTerminalError("read push_file source", peer, rerr)
		}
	}
	monitor.stop()

	if err := srC.CloseSend(); err != nil {
		return total, cacheerr.NewTransientError("close push_file send side", peer, err)
	}

	select {
	case f := <-final:
		if f.Kind == frameKindReject || !f.Accepted {
			return total, cacheerr.NewTerminalError("push_file rejected by peer", f.Message, nil)
		}
		return total, nil
	case err := <-finalErr:
		return total, cacheerr.NewTransientError("push_file response", peer, err)
	case <-ctx.Done():
		return total, cacheerr.NewCancelledError(peer)
	}
}

// RequestCopy asks peer to pull content h from sourcePeer on the caller's
// behalf, a one-shot RPC with no body streaming.
func (c *Client) RequestCopy(ctx context.Context, peer string, h hash.ContentHash, sourcePeer string) (accepted bool, reason string, err error) {
	ctx, span := telemetry.StartComponentSpan(ctx, "copyclient", "request_copy", telemetry.Peer(peer), telemetry.ContentHash(h.String()))
	defer span.End()

	lease, err := c.pool.Acquire(ctx, peer)
	if err != nil {
		return false, "", err
	}
	defer lease.Release()

	stream, err := newClientStream(lease.Ctx, lease.Conn, methodRequestCopy, 2)
	if err != nil {
		return false, "", cacheerr.NewTransientError("open request_copy stream", peer, err)
	}
	srC := sendRecvCloser(stream)

	req := copyFrame{Kind: frameKindRequest, Hash: h.String(), SourcePeer: sourcePeer}
	if err := clientSendFrame(srC, req); err != nil {
		return false, "", cacheerr.NewTransientError("send request_copy", peer, err)
	}
	if err := srC.CloseSend(); err != nil {
		return false, "", cacheerr.NewTransientError("close request_copy send side", peer, err)
	}

	resp, err := recvFrame(srC)
	if err != nil {
		return false, "", cacheerr.NewTransientError("receive request_copy response", peer, err)
	}
	return resp.Accepted, resp.Message, nil
}

// sendRecvCloser is the subset of grpc.ClientStream used by the copy
// protocol's client-side frame helpers below; grpc.ClientStream satisfies
// it directly. Named separately from grpc.ServerStream (used by the
// server-side recvFrame/sendFrame in grpc.go) since the two don't share a
// common grpc interface that includes CloseSend.
type sendRecvCloser interface {
	SendMsg(m any) error
	RecvMsg(m any) error
	CloseSend() error
}

func recvFrame(s sendRecvCloser) (copyFrame, error) {
	var raw rawFrame
	if err := s.RecvMsg(&raw); err != nil {
		return copyFrame{}, err
	}
	return decodeFrame(raw)
}

func clientSendFrame(s sendRecvCloser, f copyFrame) error {
	raw := rawFrame(encodeFrame(f))
	return s.SendMsg(&raw)
}

func recvFrameWithTimeout(ctx context.Context, s sendRecvCloser, timeout time.Duration) (copyFrame, error) {
	type result struct {
		frame copyFrame
		err   error
	}
	done := make(chan result, 1)
	go func() {
		f, err := recvFrame(s)
		done <- result{f, err}
	}()

	if timeout <= 0 {
		r := <-done
		return r.frame, r.err
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case r := <-done:
		return r.frame, r.err
	case <-timer.C:
		return copyFrame{}, fmt.Errorf("copyclient: time-to-first-byte timeout after %s", timeout)
	case <-ctx.Done():
		return copyFrame{}, ctx.Err()
	}
}

func gzipChunk(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gunzipChunk(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := r.Close(); cerr != nil {
			logger.Warn("copyclient: error closing gzip reader", "error", cerr)
		}
	}()
	return io.ReadAll(r)
}
