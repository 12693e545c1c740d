package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/marmos91/buildcached/internal/config"
	"github.com/marmos91/buildcached/internal/logger"
	"github.com/marmos91/buildcached/pkg/blobstore"
	"github.com/marmos91/buildcached/pkg/copyclient"
	"github.com/marmos91/buildcached/pkg/election"
	"github.com/marmos91/buildcached/pkg/events"
	"github.com/marmos91/buildcached/pkg/eventstream"
	"github.com/marmos91/buildcached/pkg/hash"
	"github.com/marmos91/buildcached/pkg/localcas"
	"github.com/marmos91/buildcached/pkg/memo"
	"github.com/marmos91/buildcached/pkg/metrics"
	"github.com/marmos91/buildcached/pkg/remotecas"
	"github.com/marmos91/buildcached/pkg/twolevel"
)

// node owns every long-lived component a buildcached process runs: the
// storage stack (blobstore/local/remote/two-level/memo), the background
// roles (election, event stream, copy client pool), and the gRPC and
// metrics listeners that expose them to peers and to Prometheus.
type node struct {
	cfg *config.Config

	blobs       *blobstore.Store
	local       *localcas.Store
	remote      *remotecas.Session
	two         *twolevel.Session
	memoStore   *memo.Store
	participant *election.Participant
	publisher   *eventstream.Publisher
	subscriber  *eventstream.Subscriber
	copyPool    *copyclient.Pool
	copyClient  *copyclient.Client

	grpcServer    *grpc.Server
	metricsServer *http.Server
}

func newNode(ctx context.Context, cfg *config.Config) (*node, error) {
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
	}

	blobs, err := blobstore.New(ctx, blobstore.Config{
		Region:         cfg.Blobstore.Region,
		Endpoint:       cfg.Blobstore.Endpoint,
		ForcePathStyle: cfg.Blobstore.ForcePathStyle,
		MaxRetries:     cfg.Blobstore.MaxRetries,
		InitialBackoff: cfg.Blobstore.InitialBackoff,
		MaxBackoff:     cfg.Blobstore.MaxBackoff,
	}, metrics.NewBlobstoreMetrics())
	if err != nil {
		return nil, fmt.Errorf("blobstore: %w", err)
	}
	if err := blobs.EnsureContainer(ctx, cfg.Blobstore.Container); err != nil {
		return nil, fmt.Errorf("blobstore: ensure container: %w", err)
	}

	local, err := localcas.Open(localcas.Config{
		RootDir:          cfg.LocalCAS.RootDir,
		MaxSizeBytes:     int64(cfg.LocalCAS.MaxSize),
		GCTargetFraction: cfg.LocalCAS.GCTargetFraction,
		GCInterval:       cfg.LocalCAS.GCInterval,
		TouchThreshold:   localcas.DefaultConfig("", 0).TouchThreshold,
	}, metrics.NewLocalCASMetrics())
	if err != nil {
		return nil, fmt.Errorf("localcas: %w", err)
	}

	memoStore, err := memo.Open(memo.Config{
		Dir:            cfg.Memo.Dir,
		MaxAttempts:    cfg.Memo.MaxAttempts,
		Policy:         parseReplacementPolicy(cfg.Memo.Policy),
		OptimizeWrites: cfg.Memo.OptimizeWrites,
	}, metrics.NewMemoMetrics())
	if err != nil {
		return nil, fmt.Errorf("memo: %w", err)
	}

	eventCfg := eventstream.DefaultConfig(cfg.Identity.Epoch, cfg.Identity.Machine)
	eventCfg.MaxBatchSize = cfg.EventGRPC.MaxBatchSize
	eventCfg.Partitions = cfg.EventGRPC.Partitions
	eventCfg.PartitionCapacity = cfg.EventGRPC.PartitionCapacity
	eventCfg.Validation = parseValidationMode(cfg.EventGRPC.Validation)
	eventCfg.MaxPublishAttempts = cfg.EventGRPC.MaxPublishRetries
	eventCfg.InitialBackoff = cfg.EventGRPC.InitialBackoff
	eventCfg.MaxBackoff = cfg.EventGRPC.MaxBackoff

	transport, err := dialEventPeers(ctx, cfg.EventGRPC.Peers)
	if err != nil {
		return nil, fmt.Errorf("eventstream: dial peers: %w", err)
	}
	codec := eventstream.NewCodec()
	publisher := eventstream.NewPublisher(eventCfg, codec, transport, metrics.NewEventStreamMetrics())

	subscriber := eventstream.NewSubscriber(eventCfg, codec, func(ctx context.Context, ev events.Event) error {
		logger.DebugCtx(ctx, "eventstream: received event", "kind", ev.Kind.String(), "hash", ev.Hash, "sender", ev.SenderMachine)
		return nil
	}, metrics.NewEventStreamMetrics())

	remote := remotecas.New(blobs, cfg.Blobstore.Container, publisher)
	two := twolevel.New(local, remote, twolevel.Config{
		RemoteReadOnly:               cfg.TwoLevel.RemoteReadOnly,
		AlwaysUpdateFromRemote:       cfg.TwoLevel.AlwaysUpdateFromRemote,
		SkipRemotePutIfExistsLocally: cfg.TwoLevel.SkipRemotePutIfExistsLocally,
		ElisionTTL:                   cfg.TwoLevel.ElisionTTL,
		SkipRemotePinOnPut:           cfg.TwoLevel.SkipRemotePinOnPut,
		BatchRemotePinsOnPut:         cfg.TwoLevel.BatchRemotePinsOnPut,
		BatchMaxSize:                 cfg.TwoLevel.BatchMaxSize,
		BatchInterval:                cfg.TwoLevel.BatchInterval,
		BatchParallelism:             cfg.TwoLevel.BatchParallelism,
		TempDir:                      cfg.TwoLevel.TempDir,
	}, metrics.NewLocalCASMetrics())

	participant := election.New(blobs, election.Config{
		Container:         cfg.Election.Container,
		Key:               cfg.Election.Key,
		Me:                cfg.Election.Me,
		Eligible:          cfg.Election.Eligible,
		LeaseExpiry:       cfg.Election.LeaseExpiry,
		HeartbeatInterval: cfg.Election.HeartbeatInterval,
		MaxAttempts:       cfg.Election.MaxAttempts,
	}, metrics.NewElectionMetrics())

	copyMetrics := metrics.NewCopyClientMetrics()
	copyPool := copyclient.NewPool(copyclient.Config{
		MaxConnectionsPerPeer:     cfg.CopyClient.MaxConnectionsPerPeer,
		IdleWindow:                cfg.CopyClient.IdleWindow,
		ConnectTimeout:            cfg.CopyClient.ConnectTimeout,
		TimeToFirstByteTimeout:    cfg.CopyClient.TimeToFirstByteTimeout,
		BandwidthFloorBytesPerSec: cfg.CopyClient.BandwidthFloorBytesPerSec,
		BandwidthCheckInterval:    cfg.CopyClient.BandwidthCheckInterval,
		Compress:                  cfg.CopyClient.Compress,
		ReapInterval:              cfg.CopyClient.ReapInterval,
	}, dialPeer, copyMetrics)
	copyClient := copyclient.NewClient(copyclient.Config{
		TimeToFirstByteTimeout:    cfg.CopyClient.TimeToFirstByteTimeout,
		BandwidthFloorBytesPerSec: cfg.CopyClient.BandwidthFloorBytesPerSec,
		BandwidthCheckInterval:    cfg.CopyClient.BandwidthCheckInterval,
	}, copyPool, copyMetrics)

	grpcServer := grpc.NewServer()
	eventstream.RegisterServer(grpcServer, subscriber.Consume)
	copyclient.RegisterServer(grpcServer, copyclient.NewServerHandlers(local, func(ctx context.Context, h hash.ContentHash, sourcePeer string) error {
		return nil
	}))

	n := &node{
		cfg:         cfg,
		blobs:       blobs,
		local:       local,
		remote:      remote,
		two:         two,
		memoStore:   memoStore,
		participant: participant,
		publisher:   publisher,
		subscriber:  subscriber,
		copyPool:    copyPool,
		copyClient:  copyClient,
		grpcServer:  grpcServer,
	}

	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
		n.metricsServer = &http.Server{Addr: fmt.Sprintf(":%d", cfg.Metrics.Port), Handler: mux}
	}

	return n, nil
}

// Run starts every background loop (gRPC server, metrics server, event
// subscriber, election heartbeat) and blocks until ctx is cancelled, then
// drains them within cfg.ShutdownTimeout.
func (n *node) Run(ctx context.Context) error {
	group, gctx := errgroup.WithContext(ctx)

	listener, err := net.Listen("tcp", n.cfg.EventGRPC.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", n.cfg.EventGRPC.ListenAddr, err)
	}
	group.Go(func() error {
		logger.Info("event/copy grpc server listening", "addr", n.cfg.EventGRPC.ListenAddr)
		if err := n.grpcServer.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return err
		}
		return nil
	})

	if n.metricsServer != nil {
		group.Go(func() error {
			logger.Info("metrics server listening", "addr", n.metricsServer.Addr)
			if err := n.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	n.subscriber.Start(gctx, 0)

	if n.cfg.Election.Eligible {
		group.Go(func() error { return n.runElectionLoop(gctx) })
	}

	<-gctx.Done()
	n.shutdown()
	return group.Wait()
}

func (n *node) runElectionLoop(ctx context.Context) error {
	ticker := time.NewTicker(n.cfg.Election.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), n.cfg.ShutdownTimeout)
			defer cancel()
			return n.participant.ReleaseIfNecessary(shutdownCtx)
		case <-ticker.C:
			loc, role, _, err := n.participant.GetRole(ctx)
			if err != nil {
				logger.WarnCtx(ctx, "election: get_role failed", "error", err)
				continue
			}
			logger.DebugCtx(ctx, "election: role observed", "role", role.String(), "master", string(loc))
		}
	}
}

func (n *node) shutdown() {
	n.subscriber.Stop()
	n.grpcServer.GracefulStop()
	if n.metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), n.cfg.ShutdownTimeout)
		defer cancel()
		_ = n.metricsServer.Shutdown(shutdownCtx)
	}
}

// Close releases every resource newNode acquired, in reverse order of
// acquisition.
func (n *node) Close() {
	n.copyPool.Close()
	if err := n.memoStore.Close(); err != nil {
		logger.Error("memo: close error", "error", err)
	}
	if err := n.local.Close(); err != nil {
		logger.Error("localcas: close error", "error", err)
	}
}

func dialPeer(ctx context.Context, location string) (*grpc.ClientConn, error) {
	return grpc.NewClient(location, grpc.WithTransportCredentials(insecure.NewCredentials()))
}

// dialEventPeers opens one gRPC connection and event-stream transport per
// configured peer and combines them into a single fan-out Transport, so
// the Publisher this process runs broadcasts every batch to the whole
// fleet. An empty peer list yields a Transport that sends to nobody,
// which is valid for a single-node deployment.
func dialEventPeers(ctx context.Context, peers []string) (eventstream.Transport, error) {
	transports := make([]eventstream.Transport, 0, len(peers))
	for _, peer := range peers {
		conn, err := dialPeer(ctx, peer)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", peer, err)
		}
		t, err := eventstream.NewGRPCTransport(ctx, conn)
		if err != nil {
			return nil, fmt.Errorf("open event stream to %s: %w", peer, err)
		}
		transports = append(transports, t)
	}
	return eventstream.NewFanoutTransport(transports), nil
}

func parseReplacementPolicy(s string) memo.ReplacementPolicy {
	switch s {
	case "replace_always":
		return memo.ReplaceAlways
	case "replace_never":
		return memo.ReplaceNever
	case "pin_always":
		return memo.PinAlways
	default:
		return memo.AllowPinElision
	}
}

func parseValidationMode(s string) eventstream.ValidationMode {
	switch s {
	case "off":
		return eventstream.ValidationOff
	case "fail":
		return eventstream.ValidationFail
	default:
		return eventstream.ValidationTrace
	}
}
