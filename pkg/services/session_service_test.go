package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insights/pkg/apperrors"
)

func newTestSessionService(t *testing.T, cfg SessionConfig) (SessionService, string) {
	t.Helper()
	if cfg.UploadsDir == "" {
		cfg.UploadsDir = filepath.Join(t.TempDir(), "uploads")
	}
	svc, err := NewSessionService(cfg, zap.NewNop())
	require.NoError(t, err)
	return svc, cfg.UploadsDir
}

func TestNewSessionService_CreatesUploadsDir(t *testing.T) {
	_, dir := newTestSessionService(t, SessionConfig{})

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestNewSessionService_RequiresUploadsDir(t *testing.T) {
	_, err := NewSessionService(SessionConfig{}, zap.NewNop())
	require.Error(t, err)
}

func TestSessionService_CreateAndResolve(t *testing.T) {
	svc, dir := newTestSessionService(t, SessionConfig{})
	content := "country,revenue\nSpain,120.5\n"

	sessionID, err := svc.Create(context.Background(), "sales.CSV", strings.NewReader(content))
	require.NoError(t, err)

	_, err = uuid.Parse(sessionID)
	require.NoError(t, err, "session id should be a UUID")

	path, err := svc.ResolveDatasetPath(sessionID)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, sessionID+".csv"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, content, string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary upload file should be gone")
}

func TestSessionService_CreateRejectsNonCSV(t *testing.T) {
	svc, _ := newTestSessionService(t, SessionConfig{})

	for _, name := range []string{"sales.xlsx", "sales", "sales.csv.exe"} {
		_, err := svc.Create(context.Background(), name, strings.NewReader("a,b\n"))
		assert.True(t, errors.Is(err, apperrors.ErrInvalidFileType), name)
	}
}

func TestSessionService_CreateRejectsOversizedUpload(t *testing.T) {
	svc, dir := newTestSessionService(t, SessionConfig{MaxUploadBytes: 8})

	_, err := svc.Create(context.Background(), "big.csv", strings.NewReader("a,b\n1,2\n3,4\n"))
	assert.True(t, errors.Is(err, apperrors.ErrFileTooLarge))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = svc.Create(context.Background(), "ok.csv", strings.NewReader("a,b\n1,2\n"))
	assert.NoError(t, err, "content exactly at the limit is accepted")
}

func TestSessionService_ResolveUnknownOrInvalidIDs(t *testing.T) {
	svc, dir := newTestSessionService(t, SessionConfig{})

	// a file that exists but must not be reachable through an id
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.csv"), []byte("x"), 0o600))

	for _, id := range []string{
		uuid.New().String(),
		"notes",
		"../uploads/notes",
		"",
		strings.ToUpper(uuid.New().String()),
		"{" + uuid.New().String() + "}",
	} {
		_, err := svc.ResolveDatasetPath(id)
		assert.True(t, errors.Is(err, apperrors.ErrNotFound), "id %q", id)
	}
}

func TestSessionService_Delete(t *testing.T) {
	svc, _ := newTestSessionService(t, SessionConfig{})

	sessionID, err := svc.Create(context.Background(), "sales.csv", strings.NewReader("a\n1\n"))
	require.NoError(t, err)

	require.NoError(t, svc.Delete(sessionID))

	_, err = svc.ResolveDatasetPath(sessionID)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	err = svc.Delete(sessionID)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	err = svc.Delete("../../etc/passwd")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestSessionService_CleanupExpired(t *testing.T) {
	svc, dir := newTestSessionService(t, SessionConfig{TTL: time.Hour})
	ctx := context.Background()

	fresh, err := svc.Create(ctx, "fresh.csv", strings.NewReader("a\n1\n"))
	require.NoError(t, err)
	stale, err := svc.Create(ctx, "stale.csv", strings.NewReader("a\n1\n"))
	require.NoError(t, err)

	stalePath, err := svc.ResolveDatasetPath(stale)
	require.NoError(t, err)
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(stalePath, old, old))

	require.NoError(t, os.Mkdir(filepath.Join(dir, "subdir"), 0o750))

	deleted, err := svc.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	_, err = svc.ResolveDatasetPath(stale)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	_, err = svc.ResolveDatasetPath(fresh)
	assert.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "subdir"))
	assert.NoError(t, err, "directories are left alone")
}

func TestSessionService_CleanupExpired_MissingDir(t *testing.T) {
	svc, dir := newTestSessionService(t, SessionConfig{})
	require.NoError(t, os.RemoveAll(dir))

	deleted, err := svc.CleanupExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, deleted)
}

func TestSessionService_RunReaper(t *testing.T) {
	svc, _ := newTestSessionService(t, SessionConfig{TTL: time.Minute})

	sessionID, err := svc.Create(context.Background(), "stale.csv", strings.NewReader("a\n1\n"))
	require.NoError(t, err)
	path, err := svc.ResolveDatasetPath(sessionID)
	require.NoError(t, err)
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(path, old, old))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc.RunReaper(ctx, time.Hour)

	// the first sweep runs immediately
	assert.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return errors.Is(err, os.ErrNotExist)
	}, 2*time.Second, 10*time.Millisecond)
}
