//go:build integration

package remotecas_test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/marmos91/buildcached/pkg/blobstore"
	"github.com/marmos91/buildcached/pkg/hash"
	"github.com/marmos91/buildcached/pkg/remotecas"
)

// localstackHelper starts a disposable S3-compatible backend for
// exercising remotecas against real object-storage semantics rather than
// a hand-rolled fake.
type localstackHelper struct {
	container testcontainers.Container
	endpoint  string
	client    *s3.Client
}

func newLocalstackHelper(t *testing.T) *localstackHelper {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "localstack/localstack:3.0",
		ExposedPorts: []string{"4566/tcp"},
		Env: map[string]string{
			"SERVICES":              "s3",
			"DEFAULT_REGION":        "us-east-1",
			"EAGER_SERVICE_LOADING": "1",
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("4566/tcp"),
			wait.ForHTTP("/_localstack/health").WithPort("4566/tcp").WithStartupTimeout(60*time.Second),
		),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "4566")
	require.NoError(t, err)

	helper := &localstackHelper{
		container: container,
		endpoint:  fmt.Sprintf("http://%s:%s", host, port.Port()),
	}

	cfg, err := awsConfig.LoadDefaultConfig(ctx,
		awsConfig.WithRegion("us-east-1"),
		awsConfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("test", "test", "")),
	)
	require.NoError(t, err)

	helper.client = s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = &helper.endpoint
		o.UsePathStyle = true
	})
	return helper
}

func (lh *localstackHelper) cleanup() {
	if lh.container != nil {
		_ = lh.container.Terminate(context.Background())
	}
}

func TestRemoteCAS_PutPinOpenPlace_Integration(t *testing.T) {
	ctx := context.Background()
	helper := newLocalstackHelper(t)
	defer helper.cleanup()

	store := blobstore.NewFromClient(helper.client, blobstore.DefaultConfig(), nil)
	container := "remotecas-test"
	require.NoError(t, store.EnsureContainer(ctx, container))

	session := remotecas.New(store, container, nil)

	content := []byte("distributed build cache payload")
	h, err := hash.NewStreamingHasher(hash.SHA256).HashReader(ctx, bytes.NewReader(content))
	require.NoError(t, err)

	existed, out, err := session.PutStream(ctx, h, int64(len(content)), bytes.NewReader(content))
	require.NoError(t, err)
	require.False(t, existed)
	require.Equal(t, h, out)

	existedAgain, _, err := session.PutStream(ctx, h, int64(len(content)), bytes.NewReader(content))
	require.NoError(t, err)
	require.True(t, existedAgain, "uploading the same content twice must report existed=true and touch instead of re-uploading")

	size, err := session.Pin(ctx, h)
	require.NoError(t, err)
	require.Equal(t, int64(len(content)), size)

	rc, gotSize, err := session.OpenStream(ctx, h)
	require.NoError(t, err)
	defer rc.Close()
	require.Equal(t, int64(len(content)), gotSize)

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, content, got)

	destPath := t.TempDir() + "/placed"
	require.NoError(t, session.PlaceFile(ctx, h, destPath))
}

func TestRemoteCAS_PinMissing_Integration(t *testing.T) {
	ctx := context.Background()
	helper := newLocalstackHelper(t)
	defer helper.cleanup()

	store := blobstore.NewFromClient(helper.client, blobstore.DefaultConfig(), nil)
	container := "remotecas-missing-test"
	require.NoError(t, store.EnsureContainer(ctx, container))

	session := remotecas.New(store, container, nil)
	missing, err := hash.NewStreamingHasher(hash.SHA256).HashReader(ctx, bytes.NewReader([]byte("never uploaded")))
	require.NoError(t, err)

	_, err = session.Pin(ctx, missing)
	require.Error(t, err)

	err = session.PlaceFile(ctx, missing, t.TempDir()+"/placed")
	require.ErrorIs(t, err, remotecas.ErrNotPlacedContentNotFound)
}
