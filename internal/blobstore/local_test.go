package blobstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLocalStorePutOpenDelete(t *testing.T) {
	ls, err := NewLocalStore(t.TempDir(), "http://127.0.0.1:7340")
	if err != nil {
		t.Fatalf("new local store: %v", err)
	}
	ctx := context.Background()
	key := "reports/1700000000_abc.jpg"

	if err := ls.Put(ctx, key, bytes.NewBufferString("hello")); err != nil {
		t.Fatalf("put: %v", err)
	}
	exists, err := ls.Exists(ctx, key)
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if !exists {
		t.Fatal("expected blob to exist after put")
	}

	rc, err := ls.Open(ctx, key)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("expected hello, got %q", string(data))
	}

	if err := ls.Delete(ctx, key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := ls.Delete(ctx, key); err != nil {
		t.Fatalf("delete missing should be noop: %v", err)
	}
	exists, err = ls.Exists(ctx, key)
	if err != nil {
		t.Fatalf("exists after delete: %v", err)
	}
	if exists {
		t.Fatal("expected blob to be gone after delete")
	}

	if _, err := ls.Open(ctx, key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound opening deleted key, got %v", err)
	}
}

func TestLocalStorePutSameBytesIsIdempotent(t *testing.T) {
	ls, err := NewLocalStore(t.TempDir(), "")
	if err != nil {
		t.Fatalf("new local store: %v", err)
	}
	ctx := context.Background()
	key := "reports/1_same.png"

	if err := ls.Put(ctx, key, strings.NewReader("payload")); err != nil {
		t.Fatalf("first put: %v", err)
	}
	if err := ls.Put(ctx, key, strings.NewReader("payload")); err != nil {
		t.Fatalf("retry put with same bytes should succeed: %v", err)
	}
}

func TestLocalStorePutConflictFailsClosed(t *testing.T) {
	ls, err := NewLocalStore(t.TempDir(), "")
	if err != nil {
		t.Fatalf("new local store: %v", err)
	}
	ctx := context.Background()
	key := "reports/1_conflict.png"

	if err := ls.Put(ctx, key, strings.NewReader("original")); err != nil {
		t.Fatalf("first put: %v", err)
	}
	err = ls.Put(ctx, key, strings.NewReader("replacement"))
	if !errors.Is(err, ErrKeyConflict) {
		t.Fatalf("expected ErrKeyConflict, got %v", err)
	}

	rc, err := ls.Open(ctx, key)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "original" {
		t.Fatalf("expected original bytes to survive conflict, got %q", string(data))
	}

	entries, err := os.ReadDir(filepath.Join(ls.Root(), localTmpDir))
	if err != nil {
		t.Fatalf("read tmp dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected temp files to be cleaned up, found %d", len(entries))
	}
}

func TestLocalStoreRejectsUnsafeKeys(t *testing.T) {
	ls, err := NewLocalStore(t.TempDir(), "")
	if err != nil {
		t.Fatalf("new local store: %v", err)
	}
	ctx := context.Background()

	for _, key := range []string{"", "/etc/passwd", "../escape.jpg", "reports/../../escape.jpg", "tmp/put-1"} {
		if err := ls.Put(ctx, key, strings.NewReader("x")); err == nil {
			t.Fatalf("expected put to reject key %q", key)
		}
	}
}

func TestLocalStoreURLFor(t *testing.T) {
	ls, err := NewLocalStore(t.TempDir(), "https://reports.example.com/")
	if err != nil {
		t.Fatalf("new local store: %v", err)
	}
	got := ls.URLFor("reports/1_a b.jpg")
	want := "https://reports.example.com/media/reports/1_a%20b.jpg"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestLocalStoreListSkipsTempFiles(t *testing.T) {
	ls, err := NewLocalStore(t.TempDir(), "")
	if err != nil {
		t.Fatalf("new local store: %v", err)
	}
	ctx := context.Background()

	for _, key := range []string{"reports/1_a.jpg", "reports/2_b.png", "other/3_c.gif"} {
		if err := ls.Put(ctx, key, strings.NewReader(key)); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	if err := os.WriteFile(filepath.Join(ls.Root(), localTmpDir, "put-123"), []byte("partial"), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	blobs, err := ls.List(ctx, KeyPrefix)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(blobs) != 2 {
		t.Fatalf("expected 2 blobs under %s, got %#v", KeyPrefix, blobs)
	}
	for _, blob := range blobs {
		if !strings.HasPrefix(blob.Key, KeyPrefix) {
			t.Fatalf("unexpected key %q", blob.Key)
		}
		if blob.ModifiedAt.IsZero() || blob.ModifiedAt.After(time.Now().Add(time.Minute)) {
			t.Fatalf("unexpected modified time %v", blob.ModifiedAt)
		}
	}
}
