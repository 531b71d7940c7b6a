package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ekaya-inc/ekaya-insights/pkg/adapters/dataset"
	"github.com/ekaya-inc/ekaya-insights/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-insights/pkg/audit"
	"github.com/ekaya-inc/ekaya-insights/pkg/models"
	sqlutil "github.com/ekaya-inc/ekaya-insights/pkg/sql"
)

// mockQueryEngine records executed SQL and returns canned results.
type mockQueryEngine struct {
	fileInfo   *dataset.FileInfo
	fileErr    error
	schema     *dataset.SchemaInfo
	schemaErr  error
	result     *dataset.QueryResult
	executeErr error

	executed []string
	paths    []string
}

func (m *mockQueryEngine) FileInfo(ctx context.Context, path string) (*dataset.FileInfo, error) {
	m.paths = append(m.paths, path)
	if m.fileErr != nil {
		return nil, m.fileErr
	}
	return m.fileInfo, nil
}

func (m *mockQueryEngine) Schema(ctx context.Context, path string) (*dataset.SchemaInfo, error) {
	m.paths = append(m.paths, path)
	if m.schemaErr != nil {
		return nil, m.schemaErr
	}
	return m.schema, nil
}

func (m *mockQueryEngine) Execute(ctx context.Context, path, sqlQuery string) (*dataset.QueryResult, error) {
	m.paths = append(m.paths, path)
	m.executed = append(m.executed, sqlQuery)
	if _, err := sqlutil.PrepareQuery(sqlQuery); err != nil {
		return nil, fmt.Errorf("%w: %w", dataset.ErrQueryRejected, err)
	}
	if m.executeErr != nil {
		return nil, m.executeErr
	}
	return m.result, nil
}

func (m *mockQueryEngine) Version(ctx context.Context) (string, error) {
	return "v1.3.0", nil
}

// mockQueryPipeline returns a fixed result and records its inputs.
type mockQueryPipeline struct {
	result   models.GenerationResult
	decision models.RoutingDecision

	question     string
	schema       models.SchemaDescriptor
	priorAnswers map[string]any
	forced       string
	calls        int
}

func (m *mockQueryPipeline) RouteAndGenerate(ctx context.Context, question string, schema models.SchemaDescriptor, priorAnswers map[string]any, forced string) (models.GenerationResult, models.RoutingDecision) {
	m.calls++
	m.question = question
	m.schema = schema
	m.priorAnswers = priorAnswers
	m.forced = forced
	return m.result, m.decision
}

type queryServiceFixture struct {
	svc       QueryService
	auditLogs *observer.ObservedLogs
	sessions  SessionService
	engine    *mockQueryEngine
	pipeline  *mockQueryPipeline
	sessionID string
}

func newQueryServiceFixture(t *testing.T) *queryServiceFixture {
	t.Helper()

	sessions, err := NewSessionService(SessionConfig{UploadsDir: filepath.Join(t.TempDir(), "uploads")}, zap.NewNop())
	require.NoError(t, err)
	sessionID, err := sessions.Create(context.Background(), "sales.csv", strings.NewReader("country,revenue\nSpain,1\n"))
	require.NoError(t, err)

	engine := &mockQueryEngine{
		fileInfo: &dataset.FileInfo{RowCount: 1, ColumnCount: 2},
		schema:   &dataset.SchemaInfo{Columns: salesSchema, RowCount: 1},
		result: &dataset.QueryResult{
			Columns:  []string{"country"},
			Rows:     []map[string]any{{"country": "Spain"}},
			RowCount: 1,
		},
	}
	pipeline := &mockQueryPipeline{}
	core, auditLogs := observer.New(zap.DebugLevel)

	return &queryServiceFixture{
		svc:       NewQueryService(sessions, engine, pipeline, audit.NewSecurityAuditor(zap.New(core)), zap.NewNop()),
		auditLogs: auditLogs,
		sessions:  sessions,
		engine:    engine,
		pipeline:  pipeline,
		sessionID: sessionID,
	}
}

func TestQueryService_Ask_ExecutesGeneratedSQL(t *testing.T) {
	f := newQueryServiceFixture(t)
	f.pipeline.result = models.Executable{SQL: `SELECT "country" FROM "data"`, Explanation: "Countries"}
	f.pipeline.decision = models.RoutingDecision{Tier: models.TierMedium, Metadata: models.RoutingMetadata{Backend: "gpt-3.5-turbo"}}

	answers := map[string]any{"date_column": "order_date"}
	res, err := f.svc.Ask(context.Background(), AskRequest{
		SessionID:  f.sessionID,
		Question:   "which countries?",
		Context:    answers,
		ForceModel: "gpt-3.5-turbo",
	})
	require.NoError(t, err)

	require.NotNil(t, res.Execution)
	assert.Equal(t, 1, res.Execution.RowCount)
	assert.Empty(t, res.ExecutionError)
	assert.Equal(t, []string{`SELECT "country" FROM "data"`}, f.engine.executed)

	assert.Equal(t, "which countries?", f.pipeline.question)
	assert.Equal(t, salesSchema, f.pipeline.schema)
	assert.Equal(t, answers, f.pipeline.priorAnswers)
	assert.Equal(t, "gpt-3.5-turbo", f.pipeline.forced)
	assert.Equal(t, "gpt-3.5-turbo", res.Routing.Metadata.Backend)
}

func TestQueryService_Ask_DoesNotExecuteNonExecutableResults(t *testing.T) {
	results := []models.GenerationResult{
		models.NeedsClarification{Clarification: models.Clarification{Question: "Which date column?", ID: "date_column"}},
		models.Conversational{Explanation: "Hello!"},
		models.Failed{Reason: "could not generate a query: timeout"},
	}

	for _, result := range results {
		t.Run(string(result.Outcome()), func(t *testing.T) {
			f := newQueryServiceFixture(t)
			f.pipeline.result = result

			res, err := f.svc.Ask(context.Background(), AskRequest{SessionID: f.sessionID, Question: "hi"})
			require.NoError(t, err)

			assert.Equal(t, result, res.Result)
			assert.Nil(t, res.Execution)
			assert.Empty(t, f.engine.executed)
		})
	}
}

func TestQueryService_Ask_ExecutionFailureKeepsSQL(t *testing.T) {
	f := newQueryServiceFixture(t)
	f.pipeline.result = models.Executable{SQL: `SELECT "revenu" FROM "data"`}
	f.engine.executeErr = errors.New(`execute query: Binder Error: column "revenu" not found`)

	res, err := f.svc.Ask(context.Background(), AskRequest{SessionID: f.sessionID, Question: "revenue"})
	require.NoError(t, err)

	assert.Nil(t, res.Execution)
	assert.Contains(t, res.ExecutionError, "Binder Error")
	exec, ok := res.Result.(models.Executable)
	require.True(t, ok)
	assert.Equal(t, `SELECT "revenu" FROM "data"`, exec.SQL)
}

func TestQueryService_Ask_GeneratedMutationIsRejected(t *testing.T) {
	f := newQueryServiceFixture(t)
	f.pipeline.result = models.Executable{SQL: `DELETE FROM "data"`}

	res, err := f.svc.Ask(context.Background(), AskRequest{SessionID: f.sessionID, Question: "remove everything"})
	require.NoError(t, err)

	assert.Nil(t, res.Execution)
	assert.Contains(t, res.ExecutionError, "query rejected")

	entries := f.auditLogs.FilterMessage("Generated SQL rejected").All()
	require.Len(t, entries, 1)
	assert.Equal(t, f.sessionID, entries[0].ContextMap()["session_id"])
	assert.Equal(t, true, entries[0].ContextMap()["generated"])
}

func TestQueryService_Ask_Errors(t *testing.T) {
	f := newQueryServiceFixture(t)

	_, err := f.svc.Ask(context.Background(), AskRequest{SessionID: f.sessionID, Question: "  "})
	assert.True(t, errors.Is(err, apperrors.ErrEmptyQuestion))

	_, err = f.svc.Ask(context.Background(), AskRequest{SessionID: "missing", Question: "count"})
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	f.engine.schemaErr = errors.New("describe dataset: boom")
	_, err = f.svc.Ask(context.Background(), AskRequest{SessionID: f.sessionID, Question: "count"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to get schema")

	assert.Equal(t, 0, f.pipeline.calls)
}

func TestQueryService_ExecuteSQL(t *testing.T) {
	f := newQueryServiceFixture(t)

	result, err := f.svc.ExecuteSQL(context.Background(), f.sessionID, `SELECT "country" FROM "data";`)
	require.NoError(t, err)
	assert.Equal(t, 1, result.RowCount)

	_, err = f.svc.ExecuteSQL(context.Background(), f.sessionID, `DROP TABLE "data"`)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidSQL))
	assert.True(t, errors.Is(err, dataset.ErrQueryRejected))
	assert.Equal(t, 1, f.auditLogs.FilterMessage("Query rejected").Len())

	_, err = f.svc.ExecuteSQL(context.Background(), "missing", `SELECT 1`)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestQueryService_Upload(t *testing.T) {
	f := newQueryServiceFixture(t)

	res, err := f.svc.Upload(context.Background(), "orders.csv", strings.NewReader("id\n1\n"))
	require.NoError(t, err)
	assert.Equal(t, "orders.csv", res.Filename)
	assert.Equal(t, int64(1), res.Info.RowCount)

	_, err = f.sessions.ResolveDatasetPath(res.SessionID)
	assert.NoError(t, err)
}

func TestQueryService_Upload_UnreadableFileIsRemoved(t *testing.T) {
	f := newQueryServiceFixture(t)
	f.engine.fileErr = errors.New("Invalid Input Error: could not sniff CSV")

	_, err := f.svc.Upload(context.Background(), "broken.csv", strings.NewReader("\x00\x01"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read CSV file")

	uploaded := f.engine.paths[len(f.engine.paths)-1]
	_, statErr := f.sessions.ResolveDatasetPath(strings.TrimSuffix(filepath.Base(uploaded), ".csv"))
	assert.True(t, errors.Is(statErr, apperrors.ErrNotFound))
}

func TestQueryService_Upload_InvalidFileType(t *testing.T) {
	f := newQueryServiceFixture(t)

	_, err := f.svc.Upload(context.Background(), "orders.json", strings.NewReader("{}"))
	assert.True(t, errors.Is(err, apperrors.ErrInvalidFileType))
	assert.Empty(t, f.engine.paths)
}

func TestQueryService_SchemaAndDelete(t *testing.T) {
	f := newQueryServiceFixture(t)

	info, err := f.svc.Schema(context.Background(), f.sessionID)
	require.NoError(t, err)
	assert.Equal(t, salesSchema, info.Columns)

	require.NoError(t, f.svc.DeleteSession(context.Background(), f.sessionID))

	_, err = f.svc.Schema(context.Background(), f.sessionID)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}
