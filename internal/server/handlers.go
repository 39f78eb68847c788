package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/maauso/audio2midi/internal/batch"
	"github.com/maauso/audio2midi/internal/packaging"
	"github.com/maauso/audio2midi/internal/source"
)

// DefaultMaxUploadBytes bounds the in-memory part of a multipart body.
const DefaultMaxUploadBytes = 256 << 20

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	service            *batch.Service
	validator          *validator.Validate
	logger             *slog.Logger
	enableAsyncProcess bool
	maxUploadBytes     int64
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithAsyncProcessing enables or disables background processing.
// When disabled, CreateBatch only creates the batch and returns immediately
// without starting it.
func WithAsyncProcessing(enabled bool) HandlerOption {
	return func(h *Handlers) {
		h.enableAsyncProcess = enabled
	}
}

// WithMaxUploadBytes sets the memory limit for multipart parsing.
func WithMaxUploadBytes(n int64) HandlerOption {
	return func(h *Handlers) {
		if n > 0 {
			h.maxUploadBytes = n
		}
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(service *batch.Service, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		service:            service,
		validator:          validator.New(validator.WithRequiredStructEnabled()),
		logger:             logger,
		enableAsyncProcess: true, // Default to enabled
		maxUploadBytes:     DefaultMaxUploadBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// CreateBatch handles POST /batches requests.
func (h *Handlers) CreateBatch(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		h.logger.Warn("failed to parse multipart body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid multipart body", "INVALID_FORM")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	req := CreateBatchRequest{
		URLs:  r.MultipartForm.Value["urls"],
		Files: len(r.MultipartForm.File["files"]),
	}
	if raw := r.FormValue("settings"); raw != "" {
		dec := json.NewDecoder(strings.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req.Settings); err != nil {
			writeError(w, http.StatusBadRequest, "invalid settings JSON: "+err.Error(), "INVALID_SETTINGS")
			return
		}
	}

	// Validate request
	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	sources, skipped, err := h.collectSources(r.MultipartForm.File["files"], req.URLs)
	if err != nil {
		switch {
		case errors.Is(err, source.ErrNoAudioFiles):
			writeError(w, http.StatusBadRequest, "no audio files found", "NO_AUDIO_FILES")
		case errors.Is(err, source.ErrInvalidURL):
			writeError(w, http.StatusBadRequest, err.Error(), "INVALID_URL")
		case errors.Is(err, errNoSources):
			writeError(w, http.StatusBadRequest, "at least one file or url is required", "NO_SOURCES")
		default:
			writeError(w, http.StatusBadRequest, err.Error(), "INVALID_UPLOAD")
		}
		return
	}

	created, err := h.service.Create(r.Context(), sources, req.Settings)
	if err != nil {
		if errors.Is(err, batch.ErrInvalidConfiguration) {
			writeError(w, http.StatusBadRequest, err.Error(), "INVALID_SETTINGS")
			return
		}
		h.logger.Error("failed to create batch",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to create batch", "BATCH_CREATION_FAILED")
		return
	}

	// Start processing in background with a detached context
	if h.enableAsyncProcess {
		if err := h.service.Start(context.WithoutCancel(r.Context()), created.ID); err != nil {
			h.logger.Error("failed to start batch",
				slog.String("batch_id", created.ID),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to start batch", "BATCH_START_FAILED")
			return
		}
	}

	h.logger.Info("batch created",
		slog.String("batch_id", created.ID),
		slog.Int("sources", len(sources)),
		slog.Int("skipped", skipped),
	)

	writeJSON(w, http.StatusAccepted, CreateBatchResponse{
		ID:      created.ID,
		State:   string(created.State),
		Skipped: skipped,
	})
}

var errNoSources = errors.New("no sources")

// collectSources reads uploads then URLs, in that order.
func (h *Handlers) collectSources(files []*multipart.FileHeader, urls []string) ([]source.AudioSource, int, error) {
	var sources []source.AudioSource
	skipped := 0

	if len(files) > 0 {
		uploads := make([]source.Upload, 0, len(files))
		for _, fh := range files {
			data, err := readPart(fh)
			if err != nil {
				return nil, 0, fmt.Errorf("read %s: %w", fh.Filename, err)
			}
			uploads = append(uploads, source.Upload{
				Name:        fh.Filename,
				ContentType: fh.Header.Get("Content-Type"),
				Data:        data,
			})
		}

		kept, dropped, err := source.FilterUploads(uploads, h.logger)
		skipped = dropped
		if err != nil && len(urls) == 0 {
			return nil, skipped, err
		}
		sources = append(sources, kept...)
	}

	for _, u := range urls {
		src, err := source.FromURL(u)
		if err != nil {
			return nil, skipped, err
		}
		sources = append(sources, src)
	}

	if len(sources) == 0 {
		return nil, skipped, errNoSources
	}
	return sources, skipped, nil
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return io.ReadAll(f)
}

// ListBatches handles GET /batches requests.
func (h *Handlers) ListBatches(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list batches",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list batches", "BATCH_LIST_FAILED")
		return
	}

	resp := make([]BatchResponse, len(jobs))
	for i, j := range jobs {
		resp[i] = newBatchResponse(j)
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetBatch handles GET /batches/{id} requests.
func (h *Handlers) GetBatch(w http.ResponseWriter, r *http.Request) {
	batchID := r.PathValue("id")
	if batchID == "" {
		writeError(w, http.StatusBadRequest, "batch ID is required", "MISSING_BATCH_ID")
		return
	}

	found, err := h.service.Get(r.Context(), batchID)
	if err != nil {
		h.writeLookupError(w, batchID, err)
		return
	}

	writeJSON(w, http.StatusOK, newBatchResponse(found))
}

// CancelBatch handles POST /batches/{id}/cancel requests.
func (h *Handlers) CancelBatch(w http.ResponseWriter, r *http.Request) {
	batchID := r.PathValue("id")

	if err := h.service.Cancel(r.Context(), batchID); err != nil {
		if errors.Is(err, batch.ErrInvalidTransition) {
			writeError(w, http.StatusConflict, "batch already finished", "BATCH_FINISHED")
			return
		}
		h.writeLookupError(w, batchID, err)
		return
	}

	found, err := h.service.Get(r.Context(), batchID)
	if err != nil {
		h.writeLookupError(w, batchID, err)
		return
	}
	writeJSON(w, http.StatusAccepted, CreateBatchResponse{ID: found.ID, State: string(found.State)})
}

// DownloadBatch handles GET /batches/{id}/download requests.
func (h *Handlers) DownloadBatch(w http.ResponseWriter, r *http.Request) {
	batchID := r.PathValue("id")

	artifact, err := h.service.Artifact(r.Context(), batchID)
	if err != nil {
		switch {
		case errors.Is(err, batch.ErrNotFinished):
			writeError(w, http.StatusConflict, "batch not finished", "BATCH_NOT_FINISHED")
		case errors.Is(err, batch.ErrNotSingleArtifact):
			writeError(w, http.StatusConflict, "batch produced several files, use their locations", "MULTIPLE_ARTIFACTS")
		case errors.Is(err, packaging.ErrNothingConverted):
			writeError(w, http.StatusConflict, "no files converted", "NOTHING_CONVERTED")
		default:
			h.writeLookupError(w, batchID, err)
		}
		return
	}

	w.Header().Set("Content-Type", artifact.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": artifact.Name}))
	w.Header().Set("Content-Length", strconv.Itoa(len(artifact.Data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(artifact.Data); err != nil {
		h.logger.Warn("failed to write download",
			slog.String("batch_id", batchID),
			slog.String("error", err.Error()),
		)
	}
}

func (h *Handlers) writeLookupError(w http.ResponseWriter, batchID string, err error) {
	if errors.Is(err, batch.ErrBatchNotFound) {
		writeError(w, http.StatusNotFound, "batch not found", "BATCH_NOT_FOUND")
		return
	}
	h.logger.Error("failed to get batch",
		slog.String("batch_id", batchID),
		slog.String("error", err.Error()),
	)
	writeError(w, http.StatusInternalServerError, "failed to get batch", "BATCH_FETCH_FAILED")
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
