package blobstore

import (
	"bytes"
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

const gcsPublicHost = "https://storage.googleapis.com"

// GCSStore stores blobs as objects in a Google Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	bucket string
}

// NewGCSStore connects to bucket and verifies it is reachable.
func NewGCSStore(ctx context.Context, bucket string, opts ...option.ClientOption) (*GCSStore, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, fmt.Errorf("gcs bucket is required")
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to gcs: %w", err)
	}
	if _, err := client.Bucket(bucket).Attrs(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("access bucket %s: %w", bucket, err)
	}
	return &GCSStore{client: client, bucket: bucket}, nil
}

// Close releases the underlying client.
func (g *GCSStore) Close() error {
	if g == nil || g.client == nil {
		return nil
	}
	return g.client.Close()
}

// Put writes key only if it does not already exist. An existing object with
// the same MD5 is treated as a completed retry.
func (g *GCSStore) Put(ctx context.Context, key string, r io.Reader) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if r == nil {
		return fmt.Errorf("reader is required")
	}

	obj := g.client.Bucket(g.bucket).Object(key)
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()
	writer := obj.If(storage.Conditions{DoesNotExist: true}).NewWriter(wctx)
	writer.ContentType = MediaTypeForKey(key)

	h := md5.New()
	err := writeObject(writer, cancel, io.TeeReader(r, h))
	if err == nil {
		return nil
	}
	if !isPreconditionFailed(err) {
		return err
	}

	attrs, attrErr := obj.Attrs(ctx)
	if attrErr != nil {
		return attrErr
	}
	if !bytes.Equal(attrs.MD5, h.Sum(nil)) {
		return fmt.Errorf("%w: %s", ErrKeyConflict, key)
	}
	return nil
}

// Exists reports whether key is present in the bucket.
func (g *GCSStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := ValidateKey(key); err != nil {
		return false, err
	}
	_, err := g.client.Bucket(g.bucket).Object(key).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Open returns a reader for key content.
func (g *GCSStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	rc, err := g.client.Bucket(g.bucket).Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, err
	}
	return rc, nil
}

// Delete removes key. Missing objects are ignored.
func (g *GCSStore) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	err := g.client.Bucket(g.bucket).Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return err
	}
	return nil
}

// URLFor returns the public object URL.
func (g *GCSStore) URLFor(key string) string {
	segments := strings.Split(strings.TrimSpace(key), "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return fmt.Sprintf("%s/%s/%s", gcsPublicHost, g.bucket, strings.Join(segments, "/"))
}

// List returns objects under prefix.
func (g *GCSStore) List(ctx context.Context, prefix string) ([]BlobInfo, error) {
	it := g.client.Bucket(g.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	out := []BlobInfo{}
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, BlobInfo{Key: attrs.Name, SizeBytes: attrs.Size, ModifiedAt: attrs.Updated.UTC()})
	}
}

// writeObject copies r into w. A failed copy cancels the upload before Close
// so the object is never committed.
func writeObject(w io.WriteCloser, cancel context.CancelFunc, r io.Reader) error {
	if _, err := io.Copy(w, r); err != nil {
		cancel()
		_ = w.Close()
		return err
	}
	return w.Close()
}

func isPreconditionFailed(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed
}

var (
	_ BlobStore = (*GCSStore)(nil)
	_ Lister    = (*GCSStore)(nil)
)
