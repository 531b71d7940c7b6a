package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insights/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-insights/pkg/models"
	"github.com/ekaya-inc/ekaya-insights/pkg/services"
)

// QueryRequest is the body of POST /api/query.
type QueryRequest struct {
	SessionID string         `json:"session_id"`
	Question  string         `json:"question"`
	Context   map[string]any `json:"context"`
	// ForceModel bypasses routing: "template", a tier name or a backend identifier.
	ForceModel string `json:"force_model,omitempty"`
}

// QueryResponse is the result of a natural-language question.
// Generation and execution failures are reported in Error with status 200.
type QueryResponse struct {
	SQL              *string                 `json:"sql"`
	Columns          []string                `json:"columns"`
	Rows             []map[string]any        `json:"rows"`
	Truncated        bool                    `json:"truncated,omitempty"`
	AskClarification bool                    `json:"ask_clarification"`
	Clarification    *models.Clarification   `json:"clarification"`
	Explanation      *string                 `json:"explanation"`
	Error            *string                 `json:"error"`
	Routing          *models.RoutingDecision `json:"routing,omitempty"`
}

// ExecuteSQLRequest is the body of POST /api/execute-sql.
type ExecuteSQLRequest struct {
	SessionID string `json:"session_id"`
	SQL       string `json:"sql"`
}

// ExecuteSQLResponse holds the rows of a caller-supplied query.
type ExecuteSQLResponse struct {
	Columns   []string         `json:"columns"`
	Rows      []map[string]any `json:"rows"`
	RowCount  int              `json:"row_count"`
	Truncated bool             `json:"truncated,omitempty"`
}

// QueryHandler handles natural-language and raw SQL query endpoints.
type QueryHandler struct {
	queryService services.QueryService
	logger       *zap.Logger
}

// NewQueryHandler creates a new query handler.
func NewQueryHandler(queryService services.QueryService, logger *zap.Logger) *QueryHandler {
	return &QueryHandler{
		queryService: queryService,
		logger:       logger,
	}
}

// RegisterRoutes registers the query handler's routes on the given mux.
func (h *QueryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/query", h.Query)
	mux.HandleFunc("POST /api/execute-sql", h.ExecuteSQL)
}

// Query handles POST /api/query.
func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.SessionID == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "session_id is required")
		return
	}

	result, err := h.queryService.Ask(r.Context(), services.AskRequest{
		SessionID:  req.SessionID,
		Question:   req.Question,
		Context:    req.Context,
		ForceModel: req.ForceModel,
	})
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			h.writeError(w, http.StatusNotFound, "session_not_found", fmt.Sprintf("Session %s not found", req.SessionID))
		case errors.Is(err, apperrors.ErrEmptyQuestion):
			h.writeError(w, http.StatusBadRequest, "invalid_request", "question is required")
		default:
			h.logger.Error("Failed to answer question", zap.String("session_id", req.SessionID), zap.Error(err))
			message := err.Error()
			h.writeJSON(w, QueryResponse{Error: &message})
		}
		return
	}

	h.writeJSON(w, toQueryResponse(result))
}

// ExecuteSQL handles POST /api/execute-sql.
func (h *QueryHandler) ExecuteSQL(w http.ResponseWriter, r *http.Request) {
	var req ExecuteSQLRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.SessionID == "" || strings.TrimSpace(req.SQL) == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "session_id and sql are required")
		return
	}

	result, err := h.queryService.ExecuteSQL(r.Context(), req.SessionID, req.SQL)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			h.writeError(w, http.StatusNotFound, "session_not_found", fmt.Sprintf("Session %s not found", req.SessionID))
		case errors.Is(err, apperrors.ErrInvalidSQL):
			h.writeError(w, http.StatusBadRequest, "sql_execution_failed", fmt.Sprintf("SQL execution failed: %s", err))
		default:
			h.logger.Error("Failed to execute SQL", zap.String("session_id", req.SessionID), zap.Error(err))
			h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to execute SQL")
		}
		return
	}

	h.writeJSON(w, ExecuteSQLResponse{
		Columns:   result.Columns,
		Rows:      result.Rows,
		RowCount:  result.RowCount,
		Truncated: result.Truncated,
	})
}

// toQueryResponse flattens an AskResult into the response shape.
func toQueryResponse(result *services.AskResult) QueryResponse {
	routing := result.Routing
	resp := QueryResponse{Routing: &routing}

	switch res := result.Result.(type) {
	case models.Executable:
		resp.SQL = &res.SQL
		resp.Explanation = optionalString(res.Explanation)
		if result.Execution != nil {
			resp.Columns = result.Execution.Columns
			resp.Rows = result.Execution.Rows
			resp.Truncated = result.Execution.Truncated
		}
		if result.ExecutionError != "" {
			message := "SQL execution failed: " + result.ExecutionError
			resp.Error = &message
		}
	case models.NeedsClarification:
		clarification := res.Clarification
		resp.AskClarification = true
		resp.Clarification = &clarification
		resp.Explanation = optionalString(res.Explanation)
	case models.Conversational:
		resp.Explanation = optionalString(res.Explanation)
	case models.Failed:
		reason := res.Reason
		resp.Error = &reason
	}

	return resp
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (h *QueryHandler) writeJSON(w http.ResponseWriter, data any) {
	if err := WriteJSON(w, http.StatusOK, data); err != nil {
		h.logger.Error("Failed to encode query response", zap.Error(err))
	}
}

func (h *QueryHandler) writeError(w http.ResponseWriter, status int, code, message string) {
	if err := ErrorResponse(w, status, code, message); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}
