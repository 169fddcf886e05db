package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"sitrep/internal/auth"
	"sitrep/internal/blobstore"
	"sitrep/internal/models"
	"sitrep/internal/store"
)

const (
	allowRemoteEnvKey      = "SITREP_ALLOW_REMOTE"
	readHeaderTimeout      = 5 * time.Second
	readTimeout            = 60 * time.Second
	writeTimeout           = 60 * time.Second
	idleTimeout            = 60 * time.Second
	submitConcurrencyLimit = 8
	sweepConcurrencyLimit  = 1

	defaultMultipartMemory = 8 << 20 // 8 MiB
	multipartOverhead      = 1 << 20 // room for form fields around the image
)

// Config carries the tunable parts of the server.
type Config struct {
	Addr              string
	BlobBackend       string
	MaxImageBytes     int64
	MultipartMemory   int64
	AllowedMediaTypes []string
	Workflow          *models.Workflow
	AdminTokenHash    string
	SweepGracePeriod  time.Duration
}

type infoStore interface {
	StoreInfo(ctx context.Context) (store.Info, error)
}

// Server wraps HTTP handlers for the sitrep API.
type Server struct {
	addr             string
	store            store.ReportStore
	blobs            blobstore.BlobStore
	blobBackend      string
	intake           *IntakePipeline
	service          *ReportService
	logger           *slog.Logger
	adminTokenHash   string
	multipartMemory  int64
	sweepGracePeriod time.Duration
	submitLimiter    chan struct{}
	sweepLimiter     chan struct{}
}

// New creates a new server instance.
func New(reportStore store.ReportStore, blobs blobstore.BlobStore, cfg Config, logger *slog.Logger) (*Server, error) {
	if reportStore == nil {
		return nil, fmt.Errorf("report store is required")
	}
	if blobs == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	adminTokenHash := strings.TrimSpace(cfg.AdminTokenHash)
	if adminTokenHash != "" {
		if err := auth.ValidateHash(adminTokenHash); err != nil {
			return nil, fmt.Errorf("auth.admin_token_hash: %w", err)
		}
	}

	multipartMemory := cfg.MultipartMemory
	if multipartMemory <= 0 {
		multipartMemory = defaultMultipartMemory
	}
	grace := cfg.SweepGracePeriod
	if grace <= 0 {
		grace = DefaultSweepGracePeriod
	}
	backend := cfg.BlobBackend
	if backend == "" {
		backend = "local"
	}

	intake := NewIntakePipeline(reportStore, blobs, logger)
	intake.ConfigurePolicy(cfg.MaxImageBytes, cfg.AllowedMediaTypes)

	return &Server{
		addr:             cfg.Addr,
		store:            reportStore,
		blobs:            blobs,
		blobBackend:      backend,
		intake:           intake,
		service:          NewReportService(reportStore, blobs, intake, cfg.Workflow, logger),
		logger:           logger,
		adminTokenHash:   adminTokenHash,
		multipartMemory:  multipartMemory,
		sweepGracePeriod: grace,
		submitLimiter:    make(chan struct{}, submitConcurrencyLimit),
		sweepLimiter:     make(chan struct{}, sweepConcurrencyLimit),
	}, nil
}

// Handler returns the full HTTP handler including middleware.
func (s *Server) Handler() http.Handler {
	return s.withRequestLogging(s.routes())
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	s.log().Info("starting server", "addr", s.addr, "blob_backend", s.blobBackend, "workflow_policy", s.service.Workflow().Policy())
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	return server.ListenAndServe()
}

// ListenAddr converts a base API URL into a listen address.
func ListenAddr(apiURL string) (string, error) {
	if apiURL == "" {
		return "", fmt.Errorf("api url is required")
	}
	if u, err := url.Parse(apiURL); err == nil && u.Host != "" {
		host := u.Hostname()
		if !isAllowedListenHost(host) {
			return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
		}
		return u.Host, nil
	}

	host, _, err := net.SplitHostPort(apiURL)
	if err == nil && !isAllowedListenHost(host) {
		return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
	}

	return apiURL, nil
}

func isAllowedListenHost(host string) bool {
	if host == "" {
		return true
	}
	if strings.EqualFold(strings.TrimSpace(os.Getenv(allowRemoteEnvKey)), "true") {
		return true
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (s *Server) acquireLimiter(limiter chan struct{}, w http.ResponseWriter, r *http.Request, name string) bool {
	if limiter == nil {
		return true
	}
	select {
	case limiter <- struct{}{}:
		return true
	default:
		err := apiError{
			status:  http.StatusTooManyRequests,
			code:    "resource_exhausted",
			errCode: ErrCodeResourceExhausted,
			err:     fmt.Errorf("too many concurrent %s requests", name),
		}
		s.writeErrorReq(w, r, http.StatusTooManyRequests, err)
		return false
	}
}

func (s *Server) log() *slog.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

func (s *Server) releaseLimiter(limiter chan struct{}) {
	if limiter == nil {
		return
	}
	select {
	case <-limiter:
	default:
	}
}
