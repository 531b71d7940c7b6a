package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insights/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-insights/pkg/models"
	"github.com/ekaya-inc/ekaya-insights/pkg/services"
)

// multipartOverhead is the slack allowed on top of the file size for multipart
// boundaries and headers.
const multipartOverhead = 1 << 20

// UploadResponse describes a newly created session.
type UploadResponse struct {
	SessionID   string `json:"session_id"`
	Filename    string `json:"filename"`
	RowCount    int64  `json:"row_count"`
	ColumnCount int    `json:"column_count"`
}

// SchemaResponse lists the columns of a session dataset.
type SchemaResponse struct {
	SessionID string                  `json:"session_id"`
	Columns   models.SchemaDescriptor `json:"columns"`
	RowCount  int64                   `json:"row_count"`
}

// DeleteSessionResponse confirms a deleted session.
type DeleteSessionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// SessionsHandler handles dataset upload and session lifecycle endpoints.
type SessionsHandler struct {
	queryService   services.QueryService
	maxUploadBytes int64
	logger         *zap.Logger
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(queryService services.QueryService, maxUploadBytes int64, logger *zap.Logger) *SessionsHandler {
	return &SessionsHandler{
		queryService:   queryService,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

// RegisterRoutes registers the sessions handler's routes on the given mux.
func (h *SessionsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/upload", h.Upload)
	mux.HandleFunc("GET /api/sessions/{sid}/schema", h.Schema)
	mux.HandleFunc("DELETE /api/sessions/{sid}", h.Delete)
}

// Upload handles POST /api/upload.
// Streams the multipart "file" field into a new session without buffering it.
func (h *SessionsHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartOverhead)

	reader, err := r.MultipartReader()
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Expected a multipart/form-data upload")
		return
	}

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			h.writeError(w, http.StatusBadRequest, "missing_file", "Missing file field")
			return
		}
		if err != nil {
			h.writeUploadError(w, err)
			return
		}
		if part.FormName() != "file" {
			_ = part.Close()
			continue
		}

		result, err := h.queryService.Upload(r.Context(), part.FileName(), part)
		_ = part.Close()
		if err != nil {
			h.writeUploadError(w, err)
			return
		}

		h.logger.Info("Dataset uploaded",
			zap.String("session_id", result.SessionID),
			zap.Int64("row_count", result.Info.RowCount),
			zap.Int("column_count", result.Info.ColumnCount))

		response := UploadResponse{
			SessionID:   result.SessionID,
			Filename:    result.Filename,
			RowCount:    result.Info.RowCount,
			ColumnCount: result.Info.ColumnCount,
		}
		if err := WriteJSON(w, http.StatusOK, response); err != nil {
			h.logger.Error("Failed to encode upload response", zap.Error(err))
		}
		return
	}
}

// Schema handles GET /api/sessions/{sid}/schema.
func (h *SessionsHandler) Schema(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := ParseSessionID(w, r, h.logger)
	if !ok {
		return
	}

	info, err := h.queryService.Schema(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "session_not_found", fmt.Sprintf("Session %s not found", sessionID))
			return
		}
		h.logger.Error("Failed to get schema", zap.String("session_id", sessionID), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "schema_failed", err.Error())
		return
	}

	response := SchemaResponse{
		SessionID: sessionID,
		Columns:   info.Columns,
		RowCount:  info.RowCount,
	}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode schema response", zap.Error(err))
	}
}

// Delete handles DELETE /api/sessions/{sid}.
func (h *SessionsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := ParseSessionID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.queryService.DeleteSession(r.Context(), sessionID); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "session_not_found", fmt.Sprintf("Session %s not found", sessionID))
			return
		}
		h.logger.Error("Failed to delete session", zap.String("session_id", sessionID), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "delete_failed", "Failed to delete session")
		return
	}

	response := DeleteSessionResponse{
		Success: true,
		Message: fmt.Sprintf("Session %s deleted successfully", sessionID),
	}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode delete response", zap.Error(err))
	}
}

func (h *SessionsHandler) writeUploadError(w http.ResponseWriter, err error) {
	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.Is(err, apperrors.ErrInvalidFileType):
		h.writeError(w, http.StatusBadRequest, "invalid_file_type", "Only CSV files are allowed")
	case errors.Is(err, apperrors.ErrFileTooLarge), errors.As(err, &maxBytesErr):
		h.writeError(w, http.StatusRequestEntityTooLarge, "file_too_large",
			fmt.Sprintf("File size exceeds %dMB limit", h.maxUploadBytes>>20))
	default:
		h.logger.Error("Failed to process upload", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "upload_failed",
			fmt.Sprintf("Failed to process CSV file: %s", err))
	}
}

func (h *SessionsHandler) writeError(w http.ResponseWriter, status int, code, message string) {
	if err := ErrorResponse(w, status, code, message); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}
