package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"sitrep/internal/blobstore"
	"sitrep/internal/models"
	"sitrep/internal/store"
)

func newTestPipeline(t *testing.T) (*IntakePipeline, *store.Store, *blobstore.LocalStore) {
	t.Helper()
	st := openTestStore(t)
	blobs := openTestBlobs(t, "http://sitrep.test")
	return NewIntakePipeline(st, blobs, testLogger()), st, blobs
}

func TestIntakeSubmitStoresImageAndReport(t *testing.T) {
	pipeline, st, blobs := newTestPipeline(t)
	data := jpegBytes(1024)

	report, err := pipeline.Submit(context.Background(), validInput(data))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if report.ID <= 0 {
		t.Fatalf("expected positive id, got %d", report.ID)
	}
	if report.Status != models.StatusPending {
		t.Fatalf("expected pending, got %s", report.Status)
	}
	if !strings.HasPrefix(report.ImageReference, blobstore.KeyPrefix) || !strings.HasSuffix(report.ImageReference, ".jpg") {
		t.Fatalf("unexpected image reference %q", report.ImageReference)
	}

	stored, err := st.GetReport(context.Background(), report.ID)
	if err != nil {
		t.Fatalf("get stored report: %v", err)
	}
	if stored.ImageReference != report.ImageReference {
		t.Fatalf("stored reference %q != %q", stored.ImageReference, report.ImageReference)
	}
	if stored.ImageContentType != "image/jpeg" || stored.ImageSizeBytes != int64(len(data)) || stored.ImageFilename != "photo.jpg" {
		t.Fatalf("unexpected image metadata: %+v", stored)
	}
	if stored.Location != "5th Ave" || stored.ReporterContact != "a@b.com" {
		t.Fatalf("unexpected metadata: %+v", stored)
	}

	rc, err := blobs.Open(context.Background(), report.ImageReference)
	if err != nil {
		t.Fatalf("open stored image: %v", err)
	}
	defer rc.Close()
	got := &bytes.Buffer{}
	if _, err := got.ReadFrom(rc); err != nil {
		t.Fatalf("read stored image: %v", err)
	}
	if !bytes.Equal(got.Bytes(), data) {
		t.Fatal("stored image bytes differ from upload")
	}
}

func TestIntakeSubmitUsesSniffedType(t *testing.T) {
	pipeline, st, _ := newTestPipeline(t)
	data := pngBytes(256)
	in := validInput(data)
	in.Image = &ImageUpload{Reader: bytes.NewReader(data), DeclaredType: "application/octet-stream", Filename: "upload.jpg", Size: int64(len(data))}

	report, err := pipeline.Submit(context.Background(), in)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !strings.HasSuffix(report.ImageReference, ".png") {
		t.Fatalf("expected .png key for png content, got %q", report.ImageReference)
	}
	stored, err := st.GetReport(context.Background(), report.ID)
	if err != nil {
		t.Fatalf("get stored report: %v", err)
	}
	if stored.ImageContentType != "image/png" {
		t.Fatalf("expected sniffed image/png, got %q", stored.ImageContentType)
	}
}

func TestIntakeInsertFailureRemovesImage(t *testing.T) {
	st := openTestStore(t)
	local := openTestBlobs(t, "http://sitrep.test")
	blobs := &recordingBlobStore{BlobStore: local}
	reports := &faultyReportStore{ReportStore: st, insertErr: errInjected}
	pipeline := NewIntakePipeline(reports, blobs, testLogger())

	deletedBefore := testutil.ToFloat64(intakeCompensations.WithLabelValues("deleted"))

	_, err := pipeline.Submit(context.Background(), validInput(jpegBytes(512)))
	assertAPIError(t, err, http.StatusInternalServerError, ErrCodeStoreFailure)
	if !errors.Is(err, errInjected) {
		t.Fatalf("expected wrapped insert error, got %v", err)
	}

	key := blobs.lastPutKey(t)
	exists, err := local.Exists(context.Background(), key)
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if exists {
		t.Fatalf("expected compensation to remove %s", key)
	}
	if got := testutil.ToFloat64(intakeCompensations.WithLabelValues("deleted")) - deletedBefore; got != 1 {
		t.Fatalf("expected one compensation, got %v", got)
	}

	reportsList, err := st.ListReports(context.Background(), store.ReportFilter{})
	if err != nil {
		t.Fatalf("list reports: %v", err)
	}
	if len(reportsList) != 0 {
		t.Fatalf("expected no reports, got %d", len(reportsList))
	}
}

func TestIntakeCompensationFailureCountsOrphan(t *testing.T) {
	st := openTestStore(t)
	local := openTestBlobs(t, "http://sitrep.test")
	blobs := &recordingBlobStore{BlobStore: local, deleteErr: errInjected}
	reports := &faultyReportStore{ReportStore: st, insertErr: errInjected}
	pipeline := NewIntakePipeline(reports, blobs, testLogger())

	orphansBefore := testutil.ToFloat64(intakeOrphanedBlobs)
	failedBefore := testutil.ToFloat64(intakeCompensations.WithLabelValues("failed"))

	_, err := pipeline.Submit(context.Background(), validInput(jpegBytes(512)))
	assertAPIError(t, err, http.StatusInternalServerError, ErrCodeStoreFailure)

	if got := testutil.ToFloat64(intakeOrphanedBlobs) - orphansBefore; got != 1 {
		t.Fatalf("expected one orphaned blob, got %v", got)
	}
	if got := testutil.ToFloat64(intakeCompensations.WithLabelValues("failed")) - failedBefore; got != 1 {
		t.Fatalf("expected one failed compensation, got %v", got)
	}

	exists, err := local.Exists(context.Background(), blobs.lastPutKey(t))
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if !exists {
		t.Fatal("expected orphaned blob to remain when compensation fails")
	}
}

func TestIntakeCompensationSurvivesCancelledRequest(t *testing.T) {
	st := openTestStore(t)
	local := openTestBlobs(t, "http://sitrep.test")
	blobs := &recordingBlobStore{BlobStore: local}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reports := &faultyReportStore{ReportStore: st, insertErr: context.Canceled, onInsert: cancel}
	pipeline := NewIntakePipeline(reports, blobs, testLogger())

	_, err := pipeline.Submit(ctx, validInput(jpegBytes(512)))
	if err == nil {
		t.Fatal("expected submit to fail")
	}

	exists, err := local.Exists(context.Background(), blobs.lastPutKey(t))
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if exists {
		t.Fatal("expected compensation to run despite cancelled request")
	}
}

func TestIntakeKeyConflict(t *testing.T) {
	st := openTestStore(t)
	blobs := &recordingBlobStore{
		BlobStore: openTestBlobs(t, "http://sitrep.test"),
		putErr:    fmt.Errorf("%w: reports/x.jpg", blobstore.ErrKeyConflict),
	}
	pipeline := NewIntakePipeline(st, blobs, testLogger())

	_, err := pipeline.Submit(context.Background(), validInput(jpegBytes(128)))
	assertAPIError(t, err, http.StatusInternalServerError, ErrCodeBlobKeyConflict)

	reportsList, err := st.ListReports(context.Background(), store.ReportFilter{})
	if err != nil {
		t.Fatalf("list reports: %v", err)
	}
	if len(reportsList) != 0 {
		t.Fatalf("expected no reports after failed image write, got %d", len(reportsList))
	}
}

func TestIntakeValidation(t *testing.T) {
	textBytes := []byte("hello, this is definitely not an image")

	tests := []struct {
		name       string
		mutate     func(in *SubmitInput)
		maxBytes   int64
		wantFields []string
		wantCode   int
	}{
		{
			name:       "missing contact",
			mutate:     func(in *SubmitInput) { in.ReporterContact = "  " },
			wantFields: []string{"reporter_contact"},
			wantCode:   ErrCodeInvalidContact,
		},
		{
			name:       "malformed contact",
			mutate:     func(in *SubmitInput) { in.ReporterContact = "not-an-email" },
			wantFields: []string{"reporter_contact"},
			wantCode:   ErrCodeInvalidContact,
		},
		{
			name:       "unknown category",
			mutate:     func(in *SubmitInput) { in.Category = "fire" },
			wantFields: []string{"category"},
			wantCode:   ErrCodeInvalidCategory,
		},
		{
			name:       "category in wrong case",
			mutate:     func(in *SubmitInput) { in.Category = "TRAFFIC" },
			wantFields: []string{"category"},
			wantCode:   ErrCodeInvalidCategory,
		},
		{
			name:       "category with surrounding space",
			mutate:     func(in *SubmitInput) { in.Category = " suspicious " },
			wantFields: []string{"category"},
			wantCode:   ErrCodeInvalidCategory,
		},
		{
			name:       "missing image",
			mutate:     func(in *SubmitInput) { in.Image = nil },
			wantFields: []string{"image"},
			wantCode:   ErrCodeInvalidImage,
		},
		{
			name: "empty image",
			mutate: func(in *SubmitInput) {
				in.Image = &ImageUpload{Reader: bytes.NewReader(nil), DeclaredType: "image/jpeg", Filename: "x.jpg"}
			},
			wantFields: []string{"image"},
			wantCode:   ErrCodeInvalidImage,
		},
		{
			name:       "image over limit",
			mutate:     func(in *SubmitInput) {},
			maxBytes:   100,
			wantFields: []string{"image"},
			wantCode:   ErrCodeInvalidImage,
		},
		{
			name:       "image over limit with understated size",
			mutate:     func(in *SubmitInput) { in.Image.Size = 50 },
			maxBytes:   100,
			wantFields: []string{"image"},
			wantCode:   ErrCodeInvalidImage,
		},
		{
			name: "declared type not allowed",
			mutate: func(in *SubmitInput) {
				in.Image.DeclaredType = "text/plain"
			},
			wantFields: []string{"image"},
			wantCode:   ErrCodeInvalidImage,
		},
		{
			name: "content is not an image",
			mutate: func(in *SubmitInput) {
				in.Image = &ImageUpload{Reader: bytes.NewReader(textBytes), DeclaredType: "image/png", Filename: "x.png", Size: int64(len(textBytes))}
			},
			wantFields: []string{"image"},
			wantCode:   ErrCodeInvalidImage,
		},
		{
			name: "every field reported at once",
			mutate: func(in *SubmitInput) {
				in.ReporterContact = ""
				in.Category = ""
				in.Image = nil
			},
			wantFields: []string{"category", "image", "reporter_contact"},
			wantCode:   ErrCodeValidationFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pipeline, st, blobs := newTestPipeline(t)
			if tt.maxBytes > 0 {
				pipeline.ConfigurePolicy(tt.maxBytes, nil)
			}
			in := validInput(jpegBytes(512))
			tt.mutate(&in)

			_, err := pipeline.Submit(context.Background(), in)
			apiErr := assertAPIError(t, err, http.StatusUnprocessableEntity, tt.wantCode)
			if got := sortedKeys(apiErr.fields); strings.Join(got, ",") != strings.Join(tt.wantFields, ",") {
				t.Fatalf("expected fields %v, got %v (%v)", tt.wantFields, got, apiErr.fields)
			}

			if keys := storedBlobKeys(t, blobs); len(keys) != 0 {
				t.Fatalf("expected no blobs written, got %v", keys)
			}
			reportsList, err := st.ListReports(context.Background(), store.ReportFilter{})
			if err != nil {
				t.Fatalf("list reports: %v", err)
			}
			if len(reportsList) != 0 {
				t.Fatalf("expected no reports, got %d", len(reportsList))
			}
		})
	}
}

func TestIntakeCountsImageBytes(t *testing.T) {
	pipeline, st, blobs := newTestPipeline(t)
	pipeline.ConfigurePolicy(1<<20, nil)

	t.Run("records counted size", func(t *testing.T) {
		data := jpegBytes(4096)
		in := validInput(data)
		in.Image.Size = 10

		report, err := pipeline.Submit(context.Background(), in)
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		stored, err := st.GetReport(context.Background(), report.ID)
		if err != nil {
			t.Fatalf("get stored report: %v", err)
		}
		if stored.ImageSizeBytes != int64(len(data)) {
			t.Fatalf("expected recorded size %d, got %d", len(data), stored.ImageSizeBytes)
		}
	})

	t.Run("stream over limit leaves nothing behind", func(t *testing.T) {
		before := storedBlobKeys(t, blobs)
		data := jpegBytes(1<<20 + 512)
		in := validInput(data)
		in.Image.Size = 1024

		_, err := pipeline.Submit(context.Background(), in)
		apiErr := assertAPIError(t, err, http.StatusUnprocessableEntity, ErrCodeInvalidImage)
		if len(apiErr.fields["image"]) == 0 {
			t.Fatalf("expected an image field error, got %v", apiErr.fields)
		}
		if after := storedBlobKeys(t, blobs); len(after) != len(before) {
			t.Fatalf("expected no new blobs, had %v now %v", before, after)
		}
		reportsList, err := st.ListReports(context.Background(), store.ReportFilter{})
		if err != nil {
			t.Fatalf("list reports: %v", err)
		}
		if len(reportsList) != 1 {
			t.Fatalf("expected only the earlier report, got %d", len(reportsList))
		}
	})
}

func TestSizeLimitedReader(t *testing.T) {
	within := &sizeLimitedReader{r: bytes.NewReader(make([]byte, 10)), max: 10}
	if n, err := io.Copy(io.Discard, within); err != nil || n != 10 || within.n != 10 {
		t.Fatalf("expected 10 bytes without error, got n=%d counted=%d err=%v", n, within.n, err)
	}

	over := &sizeLimitedReader{r: bytes.NewReader(make([]byte, 11)), max: 10}
	if _, err := io.Copy(io.Discard, over); !errors.Is(err, errImageTooLarge) {
		t.Fatalf("expected errImageTooLarge, got %v", err)
	}
}

func TestConfigurePolicy(t *testing.T) {
	pipeline, _, _ := newTestPipeline(t)

	pipeline.ConfigurePolicy(0, nil)
	if pipeline.MaxImageBytes() != DefaultMaxImageBytes {
		t.Fatalf("expected default max, got %d", pipeline.MaxImageBytes())
	}
	if !pipeline.allowed("image/gif") {
		t.Fatal("expected default types to include image/gif")
	}

	pipeline.ConfigurePolicy(2048, []string{"image/JPG", " image/png "})
	if pipeline.MaxImageBytes() != 2048 {
		t.Fatalf("expected 2048, got %d", pipeline.MaxImageBytes())
	}
	if !pipeline.allowed("image/jpeg") || !pipeline.allowed("image/png") {
		t.Fatal("expected normalized jpeg and png to be allowed")
	}
	if pipeline.allowed("image/gif") {
		t.Fatal("expected gif to be rejected when not configured")
	}
}

func TestNormalizeMediaType(t *testing.T) {
	tests := map[string]string{
		"":                          "",
		"image/JPEG":                "image/jpeg",
		"image/jpg":                 "image/jpeg",
		"image/pjpeg":               "image/jpeg",
		"text/plain; charset=utf-8": "text/plain",
		"not a media type/":         "",
	}
	for raw, want := range tests {
		if got := normalizeMediaType(raw); got != want {
			t.Fatalf("normalizeMediaType(%q) = %q, want %q", raw, got, want)
		}
	}
}
