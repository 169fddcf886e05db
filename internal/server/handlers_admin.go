package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"sitrep/internal/api"
)

func (s *Server) handleAdminSweepBlobs(w http.ResponseWriter, r *http.Request) {
	s.withLimiter(w, r, s.sweepLimiter, "sweep", func() {
		var req api.BlobSweepRequest
		if !s.decodeJSONReq(w, r, &req) {
			return
		}
		if !req.DryRun && r.Header.Get("X-Confirm") != "true" {
			s.writeServiceError(w, r, badRequestCode(fmt.Errorf("non-dry-run requires X-Confirm: true header"), ErrCodeMissingRequired))
			return
		}

		grace := s.sweepGracePeriod
		if raw := strings.TrimSpace(req.GracePeriod); raw != "" {
			parsed, err := time.ParseDuration(raw)
			if err != nil || parsed <= 0 {
				s.writeServiceError(w, r, badRequestCode(fmt.Errorf("grace_period must be a positive duration"), ErrCodeInvalidArgument))
				return
			}
			grace = parsed
		}

		result, err := s.service.SweepBlobs(r.Context(), grace, !req.DryRun)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}

		s.writeData(w, http.StatusOK, "", api.BlobSweepResponse{
			CandidateCount: result.CandidateCount,
			DeletedCount:   result.DeletedCount,
			FailedCount:    result.FailedCount,
			ReclaimedBytes: result.ReclaimedBytes,
			Keys:           result.Keys,
			DryRun:         result.DryRun,
		})
	})
}
