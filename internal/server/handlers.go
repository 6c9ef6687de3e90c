package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/videoreview-api/internal/keytree"
	"github.com/maauso/videoreview-api/internal/metrics"
	"github.com/maauso/videoreview-api/internal/retrieval"
	"github.com/maauso/videoreview-api/internal/staging"
	"github.com/maauso/videoreview-api/internal/upload"
)

const (
	// FileField is the multipart field carrying the video.
	FileField = "videoReview"
	// UserNameField is the multipart field carrying the user name.
	UserNameField = "userName"

	formOverhead  = 1 << 20
	maxFieldBytes = 1 << 10

	submitAck          = "Success"
	invalidTypeMessage = "Error: MP4, MOV, WMV, AVI, MKV or WebM files only!"
)

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	staging   *staging.Store
	uploads   *upload.Service
	tree      *keytree.Builder
	files     *retrieval.Service
	metrics   *metrics.Metrics
	validator *validator.Validate
	logger    *slog.Logger
	apiPrefix string
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithMetrics records request outcomes on m.
func WithMetrics(m *metrics.Metrics) HandlerOption {
	return func(h *Handlers) {
		h.metrics = m
	}
}

// WithAPIPrefix sets the prefix used when building Location headers.
func WithAPIPrefix(prefix string) HandlerOption {
	return func(h *Handlers) {
		h.apiPrefix = prefix
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(
	stage *staging.Store,
	uploads *upload.Service,
	tree *keytree.Builder,
	files *retrieval.Service,
	logger *slog.Logger,
	opts ...HandlerOption,
) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		staging:   stage,
		uploads:   uploads,
		tree:      tree,
		files:     files,
		validator: validator.New(),
		logger:    logger,
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

// Submit handles POST /submit requests. The file part is streamed straight
// into the staging area, relocated into the user's folder and queued for
// the remote upload. The response does not wait for the remote upload.
func (h *Handlers) Submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, h.staging.MaxBytes()+formOverhead)

	mr, err := r.MultipartReader()
	if err != nil {
		h.reject(w, metrics.ReasonInvalidForm, http.StatusBadRequest, "invalid multipart form", err)
		return
	}

	var (
		form     SubmitForm
		userSeen bool
		staged   *staging.StagedFile
	)
	discard := func() {
		if staged != nil {
			_ = h.staging.Remove(context.WithoutCancel(ctx), staged.Path)
		}
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			discard()
			h.rejectStaging(w, err)
			return
		}

		switch part.FormName() {
		case UserNameField:
			value, err := io.ReadAll(io.LimitReader(part, maxFieldBytes))
			if err != nil {
				_ = part.Close()
				discard()
				h.rejectStaging(w, err)
				return
			}
			form.UserName = string(value)
			userSeen = true
		case FileField:
			if staged != nil || part.FileName() == "" {
				break
			}
			if userSeen {
				if err := h.validateUserName(form); err != nil {
					_ = part.Close()
					h.reject(w, metrics.ReasonInvalidForm, http.StatusBadRequest, "invalid userName", err)
					return
				}
			}
			staged, err = h.staging.Stage(ctx, staging.Upload{
				FieldName:    FileField,
				OriginalName: part.FileName(),
				ContentType:  part.Header.Get("Content-Type"),
				Body:         part,
			})
			if err != nil {
				_ = part.Close()
				h.rejectStaging(w, err)
				return
			}
			h.metrics.RecordStaged()
		}
		_ = part.Close()
	}

	if staged == nil {
		h.reject(w, metrics.ReasonInvalidForm, http.StatusInternalServerError, "No file uploaded", nil)
		return
	}

	if err := h.validateUserName(form); err != nil {
		discard()
		h.reject(w, metrics.ReasonInvalidForm, http.StatusBadRequest, "invalid userName", err)
		return
	}

	finalPath, err := h.staging.Relocate(ctx, staged, form.UserName)
	if err != nil {
		if errors.Is(err, staging.ErrInvalidUserName) {
			discard()
			h.reject(w, metrics.ReasonInvalidForm, http.StatusBadRequest, "invalid userName", err)
			return
		}
		h.reject(w, metrics.ReasonStagingError, http.StatusInternalServerError, err.Error(), err)
		return
	}

	queued, err := h.uploads.Submit(ctx, upload.SubmitInput{
		UserName:    form.UserName,
		FileName:    staged.FileName,
		LocalPath:   finalPath,
		ContentType: staged.ContentType,
		Size:        staged.Size,
	})
	if err != nil {
		h.logger.Error("failed to queue upload", slog.String("path", finalPath))
		h.reject(w, metrics.ReasonStagingError, http.StatusInternalServerError, err.Error(), err)
		return
	}

	h.logger.Info("upload accepted",
		slog.String("upload_id", queued.ID),
		slog.String("user", form.UserName),
		slog.String("file", staged.FileName),
		slog.Int64("size", staged.Size),
	)

	w.Header().Set("X-Upload-ID", queued.ID)
	w.Header().Set("Location", h.apiPrefix+"/uploads/"+queued.ID)
	writeText(w, http.StatusOK, submitAck)
}

// validateUserName applies the form tags and the staging path rules.
func (h *Handlers) validateUserName(form SubmitForm) error {
	if err := h.validator.Struct(form); err != nil {
		return err
	}
	return staging.ValidateUserName(form.UserName)
}

// rejectStaging answers every staging failure with a 500, keeping the
// rejection reason for metrics.
func (h *Handlers) rejectStaging(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, staging.ErrInvalidFileType):
		h.reject(w, metrics.ReasonInvalidType, http.StatusInternalServerError, invalidTypeMessage, err)
	case errors.Is(err, staging.ErrPayloadTooLarge), errors.As(err, &tooLarge):
		h.reject(w, metrics.ReasonTooLarge, http.StatusInternalServerError, "File too large", err)
	default:
		h.reject(w, metrics.ReasonStagingError, http.StatusInternalServerError, err.Error(), err)
	}
}

func (h *Handlers) reject(w http.ResponseWriter, reason string, status int, message string, err error) {
	h.metrics.RecordRejected(reason)
	attrs := []any{
		slog.String("reason", reason),
		slog.Int("status", status),
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("submission failed", attrs...)
	} else {
		h.logger.Warn("submission rejected", attrs...)
	}
	writeText(w, status, message)
}

// ShowFiles handles GET /showFiles requests.
func (h *Handlers) ShowFiles(w http.ResponseWriter, r *http.Request) {
	tree, err := h.tree.ListTree(r.Context())
	if err != nil {
		h.logger.Error("failed to list files", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, FailureResponse{
			Success: false,
			Message: "Error fetching files",
			Error:   err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, FilesResponse{Success: true, Data: tree})
}

// Download handles GET /download?filePath= requests. Headers are written
// only after the object has been opened, so a missing key never yields a
// partial body.
func (h *Handlers) Download(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("filePath")

	file, err := h.files.Download(r.Context(), key)
	if err != nil {
		switch {
		case errors.Is(err, retrieval.ErrMissingParameter):
			writeText(w, http.StatusBadRequest, "filePath query parameter is required")
		case errors.Is(err, retrieval.ErrNotFound):
			h.metrics.RecordDownload(metrics.ResultNotFound)
			h.logger.Warn("download of missing key", slog.String("key", key))
			writeText(w, http.StatusInternalServerError, "Error downloading file")
		default:
			h.metrics.RecordDownload(metrics.ResultFailure)
			h.logger.Error("download failed",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
			writeText(w, http.StatusInternalServerError, "Error downloading file")
		}
		return
	}
	defer func() { _ = file.Body.Close() }()

	w.Header().Set("Content-Type", file.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": file.Name}))
	if file.Size >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(file.Size, 10))
	}
	w.WriteHeader(http.StatusOK)

	n, err := io.Copy(w, file.Body)
	if err != nil {
		if r.Context().Err() != nil {
			h.metrics.RecordDownload(metrics.ResultCancelled)
			h.logger.Warn("download cancelled by client",
				slog.String("key", key),
				slog.Int64("bytes", n),
			)
			return
		}
		h.metrics.RecordDownload(metrics.ResultFailure)
		h.logger.Error("download interrupted",
			slog.String("key", key),
			slog.Int64("bytes", n),
			slog.String("error", err.Error()),
		)
		return
	}
	h.metrics.RecordDownload(metrics.ResultSuccess)
}

// GetUpload handles GET /uploads/{id} requests.
func (h *Handlers) GetUpload(w http.ResponseWriter, r *http.Request) {
	uploadID := r.PathValue("id")
	if uploadID == "" {
		writeError(w, http.StatusBadRequest, "upload ID is required", "MISSING_UPLOAD_ID")
		return
	}

	u, err := h.uploads.Get(r.Context(), uploadID)
	if err != nil {
		if errors.Is(err, upload.ErrUploadNotFound) {
			writeError(w, http.StatusNotFound, "upload not found", "UPLOAD_NOT_FOUND")
			return
		}
		h.logger.Error("failed to get upload",
			slog.String("upload_id", uploadID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get upload", "UPLOAD_FETCH_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, newUploadResponse(u))
}

// ListUploads handles GET /uploads requests.
func (h *Handlers) ListUploads(w http.ResponseWriter, r *http.Request) {
	list, err := h.uploads.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list uploads", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list uploads", "UPLOAD_LIST_FAILED")
		return
	}

	resp := UploadListResponse{Uploads: make([]UploadResponse, 0, len(list))}
	for _, u := range list {
		resp.Uploads = append(resp.Uploads, newUploadResponse(u))
	}
	writeJSON(w, http.StatusOK, resp)
}

// NotFound answers every unmatched route.
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "Not Found", "NOT_FOUND")
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

// writeText writes a plain-text response.
func writeText(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, message)
}
