// Package objectstore_test tests the NATS object store implementation.
package objectstore_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/articast/articast/internal/objectstore"
)

// startTestServer starts an in-memory NATS server with JetStream enabled.
func startTestServer(t *testing.T) (*server.Server, *nats.Conn) {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1 // Use a random port
	opts.JetStream = true
	opts.StoreDir = t.TempDir()
	natsServer := test.RunServer(&opts)

	natsConnection, err := nats.Connect(natsServer.ClientURL())
	if err != nil {
		t.Fatalf("Failed to connect to test NATS server: %v", err)
	}

	return natsServer, natsConnection
}

func newTestStore(t *testing.T) (*objectstore.Store, jetstream.JetStream) {
	t.Helper()

	natsServer, natsConnection := startTestServer(t)
	t.Cleanup(natsServer.Shutdown)
	t.Cleanup(natsConnection.Close)

	js, err := jetstream.New(natsConnection)
	require.NoError(t, err)

	store, err := objectstore.New(context.Background(), js, "audio", "https://storage.example.com")
	require.NoError(t, err)

	return store, js
}

func writeTempFile(t *testing.T, data []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "fragment.mp3")

	err := os.WriteFile(path, data, 0o644)
	require.NoError(t, err)

	return path
}

func TestUploadFileReturnsPublicURL(t *testing.T) {
	t.Parallel()

	store, js := newTestStore(t)
	ctx := context.Background()

	localPath := writeTempFile(t, []byte("mp3-bytes"))

	url, err := store.UploadFile(ctx, localPath,
		"articles/a1/audiofiles/f1.mp3", "audio/mpeg",
		map[string]string{"articleId": "a1"})
	require.NoError(t, err)

	assert.Equal(t, "https://storage.example.com/audio/articles/a1/audiofiles/f1.mp3", url)

	bucket, err := js.ObjectStore(ctx, "audio")
	require.NoError(t, err)

	object, err := bucket.Get(ctx, "articles/a1/audiofiles/f1.mp3")
	require.NoError(t, err)

	data, err := io.ReadAll(object)
	require.NoError(t, err)
	require.NoError(t, object.Close())

	assert.Equal(t, []byte("mp3-bytes"), data)

	info, err := bucket.GetInfo(ctx, "articles/a1/audiofiles/f1.mp3")
	require.NoError(t, err)

	assert.Equal(t, "audio/mpeg", info.Headers.Get("Content-Type"))
	assert.Equal(t, "a1", info.Metadata["articleId"])
}

func TestDeleteMissingObjectIsNotAnError(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)

	err := store.Delete(context.Background(), "articles/none/audiofiles/none.mp3")
	require.NoError(t, err)
}

func TestDeletePrefixRemovesOnlyMatchingObjects(t *testing.T) {
	t.Parallel()

	store, js := newTestStore(t)
	ctx := context.Background()

	localPath := writeTempFile(t, []byte("x"))

	keys := []string{
		"articles/a1/audiofiles/f1.mp3",
		"articles/a1/audiofiles/f2.mp3",
		"articles/a2/audiofiles/f3.mp3",
	}

	for _, key := range keys {
		_, err := store.UploadFile(ctx, localPath, key, "audio/mpeg", nil)
		require.NoError(t, err)
	}

	err := store.DeletePrefix(ctx, "articles/a1/")
	require.NoError(t, err)

	bucket, err := js.ObjectStore(ctx, "audio")
	require.NoError(t, err)

	_, err = bucket.GetInfo(ctx, "articles/a1/audiofiles/f1.mp3")
	require.ErrorIs(t, err, jetstream.ErrObjectNotFound)

	_, err = bucket.GetInfo(ctx, "articles/a2/audiofiles/f3.mp3")
	require.NoError(t, err)
}
