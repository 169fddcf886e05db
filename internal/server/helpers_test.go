package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"mime/multipart"
	"net/textproto"
	"path/filepath"
	"sync"
	"testing"

	"sitrep/internal/api"
	"sitrep/internal/blobstore"
	"sitrep/internal/models"
	"sitrep/internal/store"
)

var errInjected = errors.New("injected failure")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func openTestBlobs(t *testing.T, baseURL string) *blobstore.LocalStore {
	t.Helper()
	blobs, err := blobstore.NewLocalStore(t.TempDir(), baseURL)
	if err != nil {
		t.Fatalf("open local blob store: %v", err)
	}
	return blobs
}

func newTestServer(t *testing.T, cfg Config) (*Server, *store.Store, *blobstore.LocalStore) {
	t.Helper()
	st := openTestStore(t)
	blobs := openTestBlobs(t, "http://sitrep.test")
	srv, err := New(st, blobs, cfg, testLogger())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return srv, st, blobs
}

func newTestService(t *testing.T, policy models.WorkflowPolicy) (*ReportService, *store.Store, *blobstore.LocalStore) {
	t.Helper()
	st := openTestStore(t)
	blobs := openTestBlobs(t, "http://sitrep.test")
	workflow, err := models.NewWorkflow(policy)
	if err != nil {
		t.Fatalf("new workflow: %v", err)
	}
	return NewReportService(st, blobs, nil, workflow, testLogger()), st, blobs
}

// jpegBytes returns n bytes that sniff as image/jpeg.
func jpegBytes(n int) []byte {
	header := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}
	out := make([]byte, n)
	copy(out, header)
	for i := len(header); i < n; i++ {
		out[i] = byte(i % 251)
	}
	return out
}

func pngBytes(n int) []byte {
	header := []byte("\x89PNG\r\n\x1a\n")
	out := make([]byte, n)
	copy(out, header)
	return out
}

func jpegUpload(data []byte) *ImageUpload {
	return &ImageUpload{
		Reader:       bytes.NewReader(data),
		DeclaredType: "image/jpeg",
		Filename:     "photo.jpg",
		Size:         int64(len(data)),
	}
}

func validInput(data []byte) SubmitInput {
	return SubmitInput{
		ReporterContact: "a@b.com",
		Category:        "traffic",
		Description:     "truck blocking the bus lane",
		Location:        "5th Ave",
		Image:           jpegUpload(data),
	}
}

type multipartImage struct {
	filename    string
	contentType string
	data        []byte
}

func multipartBody(t *testing.T, fields map[string]string, image *multipartImage) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			t.Fatalf("write field %s: %v", name, err)
		}
	}
	if image != nil {
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", `form-data; name="image"; filename="`+image.filename+`"`)
		header.Set("Content-Type", image.contentType)
		part, err := writer.CreatePart(header)
		if err != nil {
			t.Fatalf("create image part: %v", err)
		}
		if _, err := part.Write(image.data); err != nil {
			t.Fatalf("write image part: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return body, writer.FormDataContentType()
}

// decodeEnvelope decodes a response body, placing data into dst when non-nil.
func decodeEnvelope(t *testing.T, body []byte, dst any) api.Response {
	t.Helper()
	resp := api.Response{Data: dst}
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("decode response: %v (%s)", err, string(body))
	}
	return resp
}

func assertAPIError(t *testing.T, err error, status, errCode int) apiError {
	t.Helper()
	var apiErr apiError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected apiError, got %T: %v", err, err)
	}
	if apiErr.status != status || apiErr.errCode != errCode {
		t.Fatalf("expected status %d error_code %d, got %d/%d (%v)", status, errCode, apiErr.status, apiErr.errCode, err)
	}
	return apiErr
}

// storedBlobKeys lists every image blob in the local store.
func storedBlobKeys(t *testing.T, blobs *blobstore.LocalStore) []string {
	t.Helper()
	infos, err := blobs.List(context.Background(), blobstore.KeyPrefix)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("list blobs: %v", err)
	}
	keys := make([]string, 0, len(infos))
	for _, info := range infos {
		keys = append(keys, info.Key)
	}
	return keys
}

// faultyReportStore wraps a real store and injects failures.
type faultyReportStore struct {
	store.ReportStore
	insertErr error
	deleteErr error
	onInsert  func()
	onGet     func(report *models.Report)
}

func (f *faultyReportStore) InsertReport(ctx context.Context, report *models.Report) error {
	if f.onInsert != nil {
		f.onInsert()
	}
	if f.insertErr != nil {
		return f.insertErr
	}
	return f.ReportStore.InsertReport(ctx, report)
}

func (f *faultyReportStore) GetReport(ctx context.Context, id int64) (*models.Report, error) {
	report, err := f.ReportStore.GetReport(ctx, id)
	if err == nil && f.onGet != nil {
		f.onGet(report)
	}
	return report, err
}

func (f *faultyReportStore) DeleteReport(ctx context.Context, id int64) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.ReportStore.DeleteReport(ctx, id)
}

// recordingBlobStore wraps a real blob store, records written keys and
// injects failures.
type recordingBlobStore struct {
	blobstore.BlobStore
	mu        sync.Mutex
	putKeys   []string
	putErr    error
	deleteErr error
}

func (r *recordingBlobStore) Put(ctx context.Context, key string, rd io.Reader) error {
	r.mu.Lock()
	r.putKeys = append(r.putKeys, key)
	r.mu.Unlock()
	if r.putErr != nil {
		return r.putErr
	}
	return r.BlobStore.Put(ctx, key, rd)
}

func (r *recordingBlobStore) Delete(ctx context.Context, key string) error {
	if r.deleteErr != nil {
		return r.deleteErr
	}
	return r.BlobStore.Delete(ctx, key)
}

func (r *recordingBlobStore) lastPutKey(t *testing.T) string {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.putKeys) == 0 {
		t.Fatal("expected a blob write")
	}
	return r.putKeys[len(r.putKeys)-1]
}
