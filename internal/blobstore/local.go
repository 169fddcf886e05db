package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

const (
	localTmpDir = "tmp"
	// MediaRoutePrefix is the HTTP path local blobs are served under.
	MediaRoutePrefix = "/media/"
)

// LocalStore stores blob bytes in a local directory tree keyed by name.
type LocalStore struct {
	root    string
	baseURL string
}

// NewLocalStore creates a local store rooted at root. baseURL is the public
// origin that serves MediaRoutePrefix.
func NewLocalStore(root, baseURL string) (*LocalStore, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("local blob root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(abs, localTmpDir), 0o755); err != nil {
		return nil, err
	}
	return &LocalStore{root: abs, baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/")}, nil
}

// Root returns the absolute directory backing the store.
func (c *LocalStore) Root() string {
	return c.root
}

// Put streams bytes to a temp file and links it into place without
// replacing an existing object. Re-putting identical bytes is a no-op.
func (c *LocalStore) Put(ctx context.Context, key string, r io.Reader) error {
	if c == nil {
		return fmt.Errorf("blob store is not configured")
	}
	if r == nil {
		return fmt.Errorf("reader is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	dst, err := c.pathFromKey(key)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Join(c.root, localTmpDir), "put-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	h := sha256.New()
	if _, err := io.Copy(io.MultiWriter(tmp, h), r); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	// Link fails with ErrExist instead of replacing, so concurrent writers
	// to the same key cannot clobber each other.
	if err := os.Link(tmpPath, dst); err != nil {
		if !errors.Is(err, fs.ErrExist) {
			return err
		}
		existing, hashErr := fileSHA256(dst)
		if hashErr != nil {
			return hashErr
		}
		if !bytes.Equal(existing, h.Sum(nil)) {
			return fmt.Errorf("%w: %s", ErrKeyConflict, key)
		}
	}
	return nil
}

// Exists reports whether key is present.
func (c *LocalStore) Exists(ctx context.Context, key string) (bool, error) {
	if c == nil {
		return false, fmt.Errorf("blob store is not configured")
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	path, err := c.pathFromKey(key)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return !info.IsDir(), nil
}

// Open returns a reader for blob key content.
func (c *LocalStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if c == nil {
		return nil, fmt.Errorf("blob store is not configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := c.pathFromKey(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, err
	}
	return f, nil
}

// Delete removes a blob object. Missing files are ignored.
func (c *LocalStore) Delete(ctx context.Context, key string) error {
	if c == nil {
		return fmt.Errorf("blob store is not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := c.pathFromKey(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// URLFor returns the public URL the server exposes for key.
func (c *LocalStore) URLFor(key string) string {
	segments := strings.Split(strings.TrimSpace(key), "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return c.baseURL + MediaRoutePrefix + strings.Join(segments, "/")
}

// List returns every stored key under prefix, skipping in-flight temp files.
func (c *LocalStore) List(ctx context.Context, prefix string) ([]BlobInfo, error) {
	if c == nil {
		return nil, fmt.Errorf("blob store is not configured")
	}
	tmpRoot := filepath.Join(c.root, localTmpDir)
	out := []BlobInfo{}
	err := filepath.WalkDir(c.root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if path == tmpRoot {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(c.root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, BlobInfo{Key: key, SizeBytes: info.Size(), ModifiedAt: info.ModTime().UTC()})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *LocalStore) pathFromKey(key string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	if strings.HasPrefix(key, localTmpDir+"/") {
		return "", fmt.Errorf("invalid blob key")
	}
	return filepath.Join(c.root, filepath.FromSlash(key)), nil
}

func fileSHA256(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}

var (
	_ BlobStore = (*LocalStore)(nil)
	_ Lister    = (*LocalStore)(nil)
)
