package server

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"sitrep/internal/api"
	"sitrep/internal/blobstore"
	"sitrep/internal/models"
	"sitrep/internal/store"
)

const imageFormField = "image"

func (s *Server) handleSubmitReport(w http.ResponseWriter, r *http.Request) {
	s.withLimiter(w, r, s.submitLimiter, "submit", func() {
		maxBody := s.intake.MaxImageBytes() + multipartOverhead
		r.Body = http.MaxBytesReader(w, r.Body, maxBody)

		in, cleanup, err := s.parseSubmission(r)
		defer cleanup()
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}

		result, err := s.service.Submit(r.Context(), in)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		s.writeData(w, http.StatusCreated, "Report submitted successfully", result)
	})
}

// parseSubmission reads metadata and the image part. Non-multipart bodies
// are read as plain forms so a missing image is reported by validation.
func (s *Server) parseSubmission(r *http.Request) (SubmitInput, func(), error) {
	noop := func() {}

	err := r.ParseMultipartForm(s.multipartMemory)
	switch {
	case errors.Is(err, http.ErrNotMultipart):
		if err := r.ParseForm(); err != nil {
			return SubmitInput{}, noop, classifyMultipartError(err, s.intake.MaxImageBytes())
		}
	case err != nil:
		return SubmitInput{}, noop, classifyMultipartError(err, s.intake.MaxImageBytes())
	}

	cleanup := func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}

	in := SubmitInput{
		ReporterContact: firstNonEmpty(r.FormValue("reporter_contact"), r.FormValue("user_email")),
		Category:        firstNonEmpty(r.FormValue("category"), r.FormValue("type")),
		Description:     r.FormValue("description"),
		Location:        r.FormValue("location"),
	}

	file, header, err := r.FormFile(imageFormField)
	switch {
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
		return in, cleanup, nil
	case err != nil:
		return in, cleanup, badRequestCode(err, ErrCodeInvalidMultipart)
	}

	prev := cleanup
	cleanup = func() {
		_ = file.Close()
		prev()
	}
	in.Image = imageUploadFromPart(file, header)
	return in, cleanup, nil
}

func imageUploadFromPart(file multipart.File, header *multipart.FileHeader) *ImageUpload {
	return &ImageUpload{
		Reader:       file,
		DeclaredType: header.Header.Get("Content-Type"),
		Filename:     header.Filename,
		Size:         header.Size,
	}
}

func classifyMultipartError(err error, maxImageBytes int64) error {
	if err == nil {
		return nil
	}
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) || strings.Contains(strings.ToLower(err.Error()), "request body too large") {
		return validationFailed(map[string][]string{
			imageFormField: {fmt.Sprintf("image must not exceed %d bytes", maxImageBytes)},
		}, ErrCodeRequestTooLarge)
	}
	return badRequestCode(err, ErrCodeInvalidMultipart)
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	filter, err := parseReportFilter(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	reports, err := s.service.List(r.Context(), filter)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeData(w, http.StatusOK, "", reports)
}

func parseReportFilter(r *http.Request) (store.ReportFilter, error) {
	query := r.URL.Query()
	filter := store.ReportFilter{Query: strings.TrimSpace(query.Get("q"))}

	if raw := strings.TrimSpace(query.Get("category")); raw != "" {
		category, err := models.ParseCategory(raw)
		if err != nil {
			return filter, badRequestCode(err, ErrCodeInvalidCategory)
		}
		filter.Category = category
	}
	if raw := strings.TrimSpace(query.Get("status")); raw != "" {
		status, err := models.ParseReportStatus(raw)
		if err != nil {
			return filter, badRequestCode(err, ErrCodeInvalidStatus)
		}
		filter.Status = status
	}

	// Without limit every matching report is returned; 0 means the same.
	limit, err := queryIntDefault(r, "limit", 0)
	if err != nil {
		return filter, err
	}
	offset, err := queryIntDefault(r, "offset", 0)
	if err != nil {
		return filter, err
	}
	filter.Limit = limit
	filter.Offset = offset
	return filter, nil
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathIDOrBadRequest(w, r)
	if !ok {
		return
	}

	report, err := s.service.Get(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeData(w, http.StatusOK, "", report)
}

func (s *Server) handleUpdateReportStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathIDOrBadRequest(w, r)
	if !ok {
		return
	}

	var req api.StatusUpdateRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}

	report, err := s.service.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeData(w, http.StatusOK, "Status updated successfully", report)
}

func (s *Server) handleDeleteReport(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathIDOrBadRequest(w, r)
	if !ok {
		return
	}

	if err := s.service.Delete(r.Context(), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeData(w, http.StatusOK, "Report deleted successfully", nil)
}

func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if err := blobstore.ValidateKey(key); err != nil || !strings.HasPrefix(key, blobstore.KeyPrefix) {
		s.writeServiceError(w, r, notFoundCode(fmt.Errorf("image not found"), ErrCodeBlobNotFound))
		return
	}

	contentType, err := s.service.ImageContentType(r.Context(), key)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	rc, err := s.blobs.Open(r.Context(), key)
	if errors.Is(err, blobstore.ErrNotFound) {
		s.writeServiceError(w, r, notFoundCode(fmt.Errorf("image not found"), ErrCodeBlobNotFound))
		return
	}
	if err != nil {
		s.writeServiceError(w, r, storeFailure(err))
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	// Keys are never reused, so content behind a key never changes.
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		s.log().Debug("stream image", "key", key, "error", err)
	}
}
