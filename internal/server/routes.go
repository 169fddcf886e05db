package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sitrep/internal/blobstore"
)

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Health check, info and metrics.
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/info", s.handleInfo)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Reports collection.
	mux.HandleFunc("POST /api/reports", s.handleSubmitReport)
	mux.HandleFunc("GET /api/reports", s.handleListReports)

	// Single report.
	mux.HandleFunc("GET /api/reports/{id}", s.handleGetReport)
	mux.HandleFunc("PATCH /api/reports/{id}/status", s.withAdminAuth(s.handleUpdateReportStatus))
	mux.HandleFunc("DELETE /api/reports/{id}", s.withAdminAuth(s.handleDeleteReport))

	// Stored images, only when this process owns the bytes.
	if _, ok := s.blobs.(*blobstore.LocalStore); ok {
		mux.HandleFunc("GET "+blobstore.MediaRoutePrefix+"{key...}", s.handleMedia)
	}

	// Admin.
	mux.HandleFunc("POST /api/admin/blobs/sweep", s.withAdminAuth(s.handleAdminSweepBlobs))

	return mux
}
