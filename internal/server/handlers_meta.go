package server

import (
	"fmt"
	"net/http"

	"sitrep/internal/api"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	source, ok := s.store.(infoStore)
	if !ok {
		s.writeServiceError(w, r, notImplemented(fmt.Errorf("store does not report info")))
		return
	}
	info, err := source.StoreInfo(r.Context())
	if err != nil {
		s.writeServiceError(w, r, storeFailure(err))
		return
	}

	s.writeData(w, http.StatusOK, "", api.InfoResponse{
		SchemaVersion:  info.SchemaVersion,
		StatusCounts:   info.StatusCounts,
		TotalReports:   info.TotalReports,
		BlobBackend:    s.blobBackend,
		WorkflowPolicy: string(s.service.Workflow().Policy()),
	})
}
