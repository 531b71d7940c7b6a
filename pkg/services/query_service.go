package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insights/pkg/adapters/dataset"
	"github.com/ekaya-inc/ekaya-insights/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-insights/pkg/audit"
	"github.com/ekaya-inc/ekaya-insights/pkg/logging"
	"github.com/ekaya-inc/ekaya-insights/pkg/metrics"
	"github.com/ekaya-inc/ekaya-insights/pkg/models"
)

// AskRequest is a natural-language question about a session dataset.
type AskRequest struct {
	SessionID string
	Question  string
	// Context holds answers to earlier clarifications keyed by clarification id.
	Context map[string]any
	// ForceModel overrides routing: "template", a tier name or a backend identifier.
	ForceModel string
}

// AskResult is the outcome of Ask. Execution is set only when Result is
// Executable and the SQL ran; ExecutionError is set when it did not.
type AskResult struct {
	Result         models.GenerationResult
	Routing        models.RoutingDecision
	Execution      *dataset.QueryResult
	ExecutionError string
}

// UploadResult describes a newly created session.
type UploadResult struct {
	SessionID string
	Filename  string
	Info      *dataset.FileInfo
}

// QueryService answers questions about session datasets.
type QueryService interface {
	// Upload stores a dataset as a new session and reports its shape.
	Upload(ctx context.Context, filename string, content io.Reader) (*UploadResult, error)

	// Schema describes the dataset of a session.
	Schema(ctx context.Context, sessionID string) (*dataset.SchemaInfo, error)

	// Ask routes and generates SQL for a question and runs it when the result is executable.
	// Generation and execution failures are reported inside AskResult; the error
	// return is reserved for unknown sessions, empty questions and schema failures.
	Ask(ctx context.Context, req AskRequest) (*AskResult, error)

	// ExecuteSQL runs caller-supplied SQL after the read-only guard.
	ExecuteSQL(ctx context.Context, sessionID, sqlQuery string) (*dataset.QueryResult, error)

	// DeleteSession removes a session dataset.
	DeleteSession(ctx context.Context, sessionID string) error
}

type queryService struct {
	sessions SessionService
	engine   dataset.QueryEngine
	pipeline QueryPipeline
	auditor  *audit.SecurityAuditor
	logger   *zap.Logger
}

// NewQueryService creates a query service.
// SQL rejected by the read-only guard is reported to auditor.
func NewQueryService(sessions SessionService, engine dataset.QueryEngine, pipeline QueryPipeline, auditor *audit.SecurityAuditor, logger *zap.Logger) QueryService {
	return &queryService{
		sessions: sessions,
		engine:   engine,
		pipeline: pipeline,
		auditor:  auditor,
		logger:   logger.Named("query-service"),
	}
}

var _ QueryService = (*queryService)(nil)

func (s *queryService) Upload(ctx context.Context, filename string, content io.Reader) (*UploadResult, error) {
	sessionID, err := s.sessions.Create(ctx, filename, content)
	if err != nil {
		return nil, err
	}

	path, err := s.sessions.ResolveDatasetPath(sessionID)
	if err != nil {
		return nil, err
	}

	info, err := s.engine.FileInfo(ctx, path)
	if err != nil {
		// An unreadable upload would only fail again on every later request.
		if delErr := s.sessions.Delete(sessionID); delErr != nil {
			s.logger.Error("Failed to remove unreadable upload",
				zap.String("session_id", sessionID),
				zap.Error(delErr))
		}
		return nil, fmt.Errorf("failed to read CSV file: %w", err)
	}

	return &UploadResult{SessionID: sessionID, Filename: filename, Info: info}, nil
}

func (s *queryService) Schema(ctx context.Context, sessionID string) (*dataset.SchemaInfo, error) {
	path, err := s.sessions.ResolveDatasetPath(sessionID)
	if err != nil {
		return nil, err
	}

	info, err := s.engine.Schema(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to get schema: %w", err)
	}
	return info, nil
}

func (s *queryService) Ask(ctx context.Context, req AskRequest) (*AskResult, error) {
	if strings.TrimSpace(req.Question) == "" {
		return nil, apperrors.ErrEmptyQuestion
	}

	path, err := s.sessions.ResolveDatasetPath(req.SessionID)
	if err != nil {
		return nil, err
	}

	schema, err := s.engine.Schema(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to get schema: %w", err)
	}

	result, decision := s.pipeline.RouteAndGenerate(ctx, req.Question, schema.Columns, req.Context, req.ForceModel)
	ask := &AskResult{Result: result, Routing: decision}

	executable, ok := result.(models.Executable)
	if !ok {
		return ask, nil
	}

	execution, err := s.engine.Execute(ctx, path, executable.SQL)
	if err != nil {
		s.observeExecutionError(ctx, req.SessionID, executable.SQL, true, err)
		s.logger.Warn("Generated SQL failed",
			zap.String("session_id", req.SessionID),
			zap.String("backend", decision.Metadata.Backend),
			zap.String("sql", logging.SanitizeQuery(executable.SQL)),
			zap.Error(err))
		ask.ExecutionError = err.Error()
		return ask, nil
	}

	metrics.ObserveQueryExecution(metrics.StatusSuccess)
	ask.Execution = execution
	return ask, nil
}

func (s *queryService) ExecuteSQL(ctx context.Context, sessionID, sqlQuery string) (*dataset.QueryResult, error) {
	path, err := s.sessions.ResolveDatasetPath(sessionID)
	if err != nil {
		return nil, err
	}

	result, err := s.engine.Execute(ctx, path, sqlQuery)
	if err != nil {
		s.observeExecutionError(ctx, sessionID, sqlQuery, false, err)
		return nil, fmt.Errorf("%w: %w", apperrors.ErrInvalidSQL, err)
	}

	metrics.ObserveQueryExecution(metrics.StatusSuccess)
	return result, nil
}

func (s *queryService) DeleteSession(ctx context.Context, sessionID string) error {
	return s.sessions.Delete(sessionID)
}

func (s *queryService) observeExecutionError(ctx context.Context, sessionID, sqlQuery string, generated bool, err error) {
	if errors.Is(err, dataset.ErrQueryRejected) {
		metrics.ObserveQueryExecution(metrics.StatusRejected)
		s.auditor.LogQueryRejected(ctx, sessionID, audit.QueryRejectedDetails{
			SQL:       sqlQuery,
			Reason:    err.Error(),
			Generated: generated,
		})
		return
	}
	metrics.ObserveQueryExecution(metrics.StatusError)
}
