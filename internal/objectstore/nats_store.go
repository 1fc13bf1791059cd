// Package objectstore provides a NATS JetStream backed implementation of
// core.ObjectStorage for serving assembled audiofiles.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Static errors for object store failures.
var (
	// ErrUploadFailed indicates an object could not be stored.
	ErrUploadFailed = errors.New("object upload failed")
	// ErrDeleteFailed indicates an object could not be removed.
	ErrDeleteFailed = errors.New("object delete failed")
)

const headerContentType = "Content-Type"

// Store implements core.ObjectStorage on a NATS JetStream object store
// bucket. Uploaded objects are addressable under a public base URL.
type Store struct {
	bucket        jetstream.ObjectStore
	bucketName    string
	publicBaseURL string
}

// New binds to the audio bucket, creating it when it does not exist yet,
// and returns a store whose UploadFile results resolve under
// publicBaseURL.
func New(ctx context.Context, js jetstream.JetStream, bucketName, publicBaseURL string) (*Store, error) {
	bucket, err := js.CreateObjectStore(ctx, jetstream.ObjectStoreConfig{
		Bucket:      bucketName,
		Description: fmt.Sprintf("Storage for the %s bucket.", bucketName),
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		if !errors.Is(err, jetstream.ErrBucketExists) {
			return nil, fmt.Errorf("failed to create object store bucket '%s': %w", bucketName, err)
		}

		bucket, err = js.ObjectStore(ctx, bucketName)
		if err != nil {
			return nil, fmt.Errorf("failed to bind to existing object store bucket '%s': %w", bucketName, err)
		}
	}

	return &Store{
		bucket:        bucket,
		bucketName:    bucketName,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}, nil
}

// UploadFile stores the local file under key and returns its public URL.
func (s *Store) UploadFile(
	ctx context.Context,
	localPath, key, contentType string,
	metadata map[string]string,
) (string, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("%w: failed to open %s: %w", ErrUploadFailed, localPath, err)
	}

	meta := jetstream.ObjectMeta{
		Name:     key,
		Headers:  nats.Header{headerContentType: []string{contentType}},
		Metadata: metadata,
	}

	_, putErr := s.bucket.Put(ctx, meta, file)
	closeErr := file.Close()

	if putErr != nil {
		return "", fmt.Errorf("%w: failed to put object '%s' to bucket '%s': %w",
			ErrUploadFailed, key, s.bucketName, putErr)
	}

	if closeErr != nil {
		return "", fmt.Errorf("%w: failed to close %s: %w", ErrUploadFailed, localPath, closeErr)
	}

	return s.PublicURL(key), nil
}

// Delete removes one object. Deleting a missing object is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	err := s.bucket.Delete(ctx, key)
	if err != nil && !errors.Is(err, jetstream.ErrObjectNotFound) {
		return fmt.Errorf("%w: failed to delete object '%s' from bucket '%s': %w",
			ErrDeleteFailed, key, s.bucketName, err)
	}

	return nil
}

// DeletePrefix removes every object whose key starts with prefix. Used
// when an article is deleted to drop all of its audiofiles.
func (s *Store) DeletePrefix(ctx context.Context, prefix string) error {
	objects, err := s.bucket.List(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoObjectsFound) {
			return nil
		}

		return fmt.Errorf("%w: failed to list bucket '%s': %w", ErrDeleteFailed, s.bucketName, err)
	}

	for _, object := range objects {
		if object.Deleted || !strings.HasPrefix(object.Name, prefix) {
			continue
		}

		err = s.Delete(ctx, object.Name)
		if err != nil {
			return err
		}
	}

	return nil
}

// Bucket returns the name of the backing bucket.
func (s *Store) Bucket() string {
	return s.bucketName
}

// PublicURL resolves an object key to the URL clients download it from.
func (s *Store) PublicURL(key string) string {
	return s.publicBaseURL + "/" + s.bucketName + "/" + key
}
