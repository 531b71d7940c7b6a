package handlers

import (
	"context"
	"errors"
	"io"

	"github.com/ekaya-inc/ekaya-insights/pkg/adapters/dataset"
	"github.com/ekaya-inc/ekaya-insights/pkg/services"
)

// mockQueryService is a configurable QueryService for handler tests.
type mockQueryService struct {
	uploadResult  *services.UploadResult
	uploadErr     error
	schemaResult  *dataset.SchemaInfo
	schemaErr     error
	askResult     *services.AskResult
	askErr        error
	executeResult *dataset.QueryResult
	executeErr    error
	deleteErr     error

	uploadedName    string
	uploadedContent string
	lastAsk         services.AskRequest
	lastSessionID   string
	lastSQL         string
}

func (m *mockQueryService) Upload(_ context.Context, filename string, content io.Reader) (*services.UploadResult, error) {
	m.uploadedName = filename
	data, err := io.ReadAll(content)
	if err != nil {
		return nil, err
	}
	m.uploadedContent = string(data)
	return m.uploadResult, m.uploadErr
}

func (m *mockQueryService) Schema(_ context.Context, sessionID string) (*dataset.SchemaInfo, error) {
	m.lastSessionID = sessionID
	return m.schemaResult, m.schemaErr
}

func (m *mockQueryService) Ask(_ context.Context, req services.AskRequest) (*services.AskResult, error) {
	m.lastAsk = req
	return m.askResult, m.askErr
}

func (m *mockQueryService) ExecuteSQL(_ context.Context, sessionID, sqlQuery string) (*dataset.QueryResult, error) {
	m.lastSessionID = sessionID
	m.lastSQL = sqlQuery
	return m.executeResult, m.executeErr
}

func (m *mockQueryService) DeleteSession(_ context.Context, sessionID string) error {
	m.lastSessionID = sessionID
	return m.deleteErr
}

var _ services.QueryService = (*mockQueryService)(nil)

// mockVersionProvider reports a fixed engine version.
type mockVersionProvider struct {
	version string
	err     error
}

func (m *mockVersionProvider) Version(_ context.Context) (string, error) {
	return m.version, m.err
}

var errEngineDown = errors.New("duckdb unavailable")
