package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"sitrep/internal/blobstore"
	"sitrep/internal/models"
	"sitrep/internal/store"
)

const (
	DefaultMaxImageBytes       = 10 << 20 // 10 MiB
	defaultCompensationTimeout = 10 * time.Second
	sniffLen                   = 512
)

// DefaultAllowedMediaTypes are the image types accepted when none are configured.
var DefaultAllowedMediaTypes = []string{"image/jpeg", "image/png", "image/gif"}

var contactValidator = validator.New()

var errImageTooLarge = errors.New("image exceeds size limit")

// fieldErrorCodes narrows error_code when a single field is invalid.
var fieldErrorCodes = map[string]int{
	"reporter_contact": ErrCodeInvalidContact,
	"category":         ErrCodeInvalidCategory,
	"image":            ErrCodeInvalidImage,
}

// ImageUpload is the uploaded file half of a submission.
type ImageUpload struct {
	Reader       io.Reader
	DeclaredType string
	Filename     string
	Size         int64
}

// SubmitInput is one report submission.
type SubmitInput struct {
	ReporterContact string
	Category        string
	Description     string
	Location        string
	Image           *ImageUpload
}

// IntakePipeline validates submissions and stores the image and the report
// row as a pair. A failed insert deletes the image it just wrote.
type IntakePipeline struct {
	reports store.ReportStore
	blobs   blobstore.BlobStore
	logger  *slog.Logger
	now     func() time.Time

	maxImageBytes       int64
	allowedMediaTypes   map[string]struct{}
	compensationTimeout time.Duration
}

// NewIntakePipeline constructs an IntakePipeline with default upload policy.
func NewIntakePipeline(reports store.ReportStore, blobs blobstore.BlobStore, logger *slog.Logger) *IntakePipeline {
	if logger == nil {
		logger = slog.Default()
	}
	p := &IntakePipeline{
		reports:             reports,
		blobs:               blobs,
		logger:              logger,
		now:                 time.Now,
		compensationTimeout: defaultCompensationTimeout,
	}
	p.ConfigurePolicy(DefaultMaxImageBytes, DefaultAllowedMediaTypes)
	return p
}

// ConfigurePolicy overrides the maximum image size and accepted media types.
func (p *IntakePipeline) ConfigurePolicy(maxImageBytes int64, allowedMediaTypes []string) {
	if maxImageBytes <= 0 {
		maxImageBytes = DefaultMaxImageBytes
	}
	p.maxImageBytes = maxImageBytes

	allowed := map[string]struct{}{}
	for _, raw := range allowedMediaTypes {
		if mediaType := normalizeMediaType(raw); mediaType != "" {
			allowed[mediaType] = struct{}{}
		}
	}
	if len(allowed) == 0 {
		for _, mediaType := range DefaultAllowedMediaTypes {
			allowed[mediaType] = struct{}{}
		}
	}
	p.allowedMediaTypes = allowed
}

// MaxImageBytes returns the configured upload limit.
func (p *IntakePipeline) MaxImageBytes() int64 {
	return p.maxImageBytes
}

type validatedSubmission struct {
	contact   string
	category  models.Category
	mediaType string
	filename  string
	content   io.Reader
}

// Submit validates in, writes the image, then inserts the report.
func (p *IntakePipeline) Submit(ctx context.Context, in SubmitInput) (models.Report, error) {
	sub, fields := p.validate(in)
	if len(fields) > 0 {
		intakeRejected.WithLabelValues("validation").Inc()
		return models.Report{}, validationFailed(fields, validationErrorCode(fields))
	}

	now := p.now().UTC()
	key := blobstore.NewKey(now, keyFilename(sub.filename, sub.mediaType), sub.mediaType)

	body := &sizeLimitedReader{r: sub.content, max: p.maxImageBytes}
	if err := p.blobs.Put(ctx, key, body); err != nil {
		if errors.Is(err, errImageTooLarge) {
			p.discardPartial(ctx, key)
			intakeRejected.WithLabelValues("validation").Inc()
			return models.Report{}, validationFailed(map[string][]string{
				"image": {fmt.Sprintf("image must not exceed %d bytes", p.maxImageBytes)},
			}, ErrCodeInvalidImage)
		}
		intakeRejected.WithLabelValues("storage").Inc()
		if errors.Is(err, blobstore.ErrKeyConflict) {
			return models.Report{}, keyConflictFailure(err)
		}
		return models.Report{}, storeFailure(fmt.Errorf("store image: %w", err))
	}

	report := models.Report{
		ReporterContact:  sub.contact,
		Category:         sub.category,
		Description:      strings.TrimSpace(in.Description),
		Location:         strings.TrimSpace(in.Location),
		ImageReference:   key,
		ImageContentType: sub.mediaType,
		ImageSizeBytes:   body.n,
		ImageFilename:    sub.filename,
		Status:           models.StatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := p.reports.InsertReport(ctx, &report); err != nil {
		intakeRejected.WithLabelValues("storage").Inc()
		p.compensate(ctx, key, err)
		return models.Report{}, storeFailure(fmt.Errorf("insert report: %w", err))
	}

	reportsSubmitted.WithLabelValues(string(report.Category)).Inc()
	p.logger.Info("report submitted", "report_id", report.ID, "category", report.Category, "image_bytes", report.ImageSizeBytes)
	return report, nil
}

// discardPartial removes whatever a rejected upload left under key.
func (p *IntakePipeline) discardPartial(ctx context.Context, key string) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.compensationTimeout)
	defer cancel()
	if err := p.blobs.Delete(cctx, key); err != nil {
		p.logger.Error("remove oversized image", "key", key, "error", err)
	}
}

// compensate removes a blob whose report row was never written. It runs on a
// context detached from the request so a cancelled client still gets cleanup.
func (p *IntakePipeline) compensate(ctx context.Context, key string, cause error) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.compensationTimeout)
	defer cancel()

	if err := p.blobs.Delete(cctx, key); err != nil {
		intakeCompensations.WithLabelValues("failed").Inc()
		intakeOrphanedBlobs.Inc()
		p.logger.Error("orphaned image after failed report insert", "key", key, "insert_error", cause, "error", err)
		return
	}
	intakeCompensations.WithLabelValues("deleted").Inc()
	p.logger.Warn("removed image after failed report insert", "key", key, "insert_error", cause)
}

func (p *IntakePipeline) validate(in SubmitInput) (validatedSubmission, map[string][]string) {
	fields := map[string][]string{}
	add := func(field, reason string) {
		fields[field] = append(fields[field], reason)
	}

	var sub validatedSubmission

	contact := strings.TrimSpace(in.ReporterContact)
	switch {
	case contact == "":
		add("reporter_contact", "reporter_contact is required")
	case contactValidator.Var(contact, "email") != nil:
		add("reporter_contact", "reporter_contact must be a valid email address")
	default:
		sub.contact = contact
	}

	if strings.TrimSpace(in.Category) == "" {
		add("category", "category is required")
	} else if category, err := models.ParseCategory(in.Category); err != nil {
		add("category", fmt.Sprintf("category must be one of: %s", joinCategories()))
	} else {
		sub.category = category
	}

	if in.Image == nil || in.Image.Reader == nil {
		add("image", "image is required")
		return sub, fields
	}

	img := in.Image
	if img.Size == 0 {
		add("image", "image is empty")
	}
	if img.Size > p.maxImageBytes {
		add("image", fmt.Sprintf("image must not exceed %d bytes", p.maxImageBytes))
	}

	buffered := bufio.NewReaderSize(img.Reader, sniffLen)
	peek, err := buffered.Peek(sniffLen)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		add("image", "image could not be read")
		return sub, fields
	}
	sniffed := normalizeMediaType(http.DetectContentType(peek))

	declared := normalizeMediaType(img.DeclaredType)
	if declared == "" || declared == "application/octet-stream" {
		declared = sniffed
	}
	if !p.allowed(declared) {
		add("image", fmt.Sprintf("image type %s is not allowed", declared))
	} else if !p.allowed(sniffed) {
		add("image", "image content is not a supported image format")
	}

	sub.mediaType = sniffed
	sub.filename = strings.TrimSpace(img.Filename)
	sub.content = buffered
	return sub, fields
}

func validationErrorCode(fields map[string][]string) int {
	if len(fields) == 1 {
		for field := range fields {
			if code, ok := fieldErrorCodes[field]; ok {
				return code
			}
		}
	}
	return ErrCodeValidationFailed
}

// sizeLimitedReader counts bytes read and fails once more than max arrive.
// The declared upload size is never trusted.
type sizeLimitedReader struct {
	r   io.Reader
	max int64
	n   int64
}

func (l *sizeLimitedReader) Read(b []byte) (int, error) {
	n, err := l.r.Read(b)
	l.n += int64(n)
	if l.n > l.max {
		return n, errImageTooLarge
	}
	return n, err
}

func (p *IntakePipeline) allowed(mediaType string) bool {
	_, ok := p.allowedMediaTypes[mediaType]
	return ok
}

func normalizeMediaType(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(raw)
	if err != nil {
		return ""
	}
	mediaType = strings.ToLower(mediaType)
	if mediaType == "image/jpg" || mediaType == "image/pjpeg" {
		return "image/jpeg"
	}
	return mediaType
}

// keyFilename drops a client filename whose extension disagrees with the
// sniffed content so served Content-Type matches the bytes.
func keyFilename(filename, mediaType string) string {
	if blobstore.MediaTypeForKey(filename) != mediaType {
		return ""
	}
	return filename
}

func joinCategories() string {
	categories := models.Categories()
	names := make([]string, len(categories))
	for i, category := range categories {
		names[i] = string(category)
	}
	return strings.Join(names, ", ")
}
