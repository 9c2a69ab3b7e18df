package ingestion

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"

	"github.com/rpattn/unidata/internal/auth"
	"github.com/rpattn/unidata/internal/domain"
)

// multipartOverhead is the request body allowance on top of the file size limit.
const multipartOverhead = 10 << 20

// Handler exposes the pipeline over HTTP.
type Handler struct {
	service *Service
	log     logrus.FieldLogger
}

// NewHTTPHandler wraps the service.
func NewHTTPHandler(service *Service, log logrus.FieldLogger) *Handler {
	return &Handler{service: service, log: log}
}

// Routes mounts the upload and record endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/uploads", func(r chi.Router) {
		r.Post("/", h.upload)
		r.Get("/", h.listLogs)
		r.Get("/statistics", h.statistics)
		r.Delete("/{id}", h.deleteUpload)
	})
	r.Get("/records", h.listRecords)
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.service.cfg.MaxFileSize+multipartOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid form data: %v", err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("file required: %v", err))
		return
	}
	defer file.Close()

	uploaderID, ok := auth.UploaderIDFromContext(r.Context())
	if !ok {
		uploaderID, err = cast.ToInt64E(strings.TrimSpace(r.FormValue("uploaderId")))
		if err != nil || uploaderID <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid uploaderId %q", r.FormValue("uploaderId")))
			return
		}
	}

	replace := true
	if raw := strings.TrimSpace(r.FormValue("replaceExisting")); raw != "" {
		if replace, err = cast.ToBoolE(raw); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid replaceExisting: %v", err))
			return
		}
	}

	// Oversized files are still read only up to the limit; the service rejects them by
	// their declared size and records the failure.
	data, err := io.ReadAll(io.LimitReader(file, h.service.cfg.MaxFileSize+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to read file: %v", err))
		return
	}

	result, err := h.service.Ingest(r.Context(), Request{
		Data:            data,
		Filename:        header.Filename,
		FileSize:        header.Size,
		UploaderID:      uploaderID,
		ContentType:     header.Header.Get("Content-Type"),
		ReplaceExisting: replace,
	})
	if err != nil {
		var failed *domain.IngestionFailedError
		if errors.As(err, &failed) {
			writeJSON(w, statusFor(err), result)
			return
		}
		h.log.WithError(err).Error("ingestion could not start")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

func (h *Handler) listLogs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	var uploaderID *int64
	if raw := query.Get("uploaderId"); raw != "" {
		id, err := cast.ToInt64E(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid uploaderId: %v", err))
			return
		}
		uploaderID = &id
	}

	page, err := h.service.ListLogs(r.Context(), uploaderID, cast.ToInt(query.Get("page")), cast.ToInt(query.Get("limit")))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handler) statistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Statistics(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) deleteUpload(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid upload id: %v", err))
		return
	}

	deleted, err := h.service.DeleteUpload(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "deleted_records": deleted})
}

func (h *Handler) listRecords(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	filter := domain.RecordFilter{
		College:    query.Get("college"),
		Department: query.Get("department"),
		Year:       cast.ToInt(query.Get("year")),
	}
	if raw := query.Get("type"); raw != "" {
		family, err := domain.ParseRecordFamily(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Family = family
	}

	limit := cast.ToInt(query.Get("limit"))
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	records, err := h.service.ListRecords(r.Context(), filter, limit, cast.ToInt(query.Get("offset")))
	if err != nil {
		h.fail(w, err)
		return
	}
	total, err := h.service.CountRecords(r.Context(), filter)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records, "total": total})
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.WithError(err).Error("request failed")
	}
	writeError(w, status, err.Error())
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	var (
		fileErr    *domain.FileValidationError
		formatErr  *domain.UnrecognizedFormatError
		parseErr   *domain.DataParsingError
		invalidErr *domain.RecordValidationError
	)
	switch {
	case errors.As(err, &fileErr):
		return http.StatusBadRequest
	case errors.As(err, &formatErr), errors.As(err, &parseErr), errors.As(err, &invalidErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
