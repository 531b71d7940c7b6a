package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insights/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-insights/pkg/metrics"
)

// Session defaults.
const (
	DefaultSessionTTL      = 2 * time.Hour
	DefaultMaxUploadBytes  = 100 << 20
	DefaultCleanupInterval = time.Hour
)

const datasetExt = ".csv"

// SessionConfig configures the session store.
type SessionConfig struct {
	UploadsDir     string
	TTL            time.Duration
	MaxUploadBytes int64
}

// SessionService maps session identifiers to uploaded dataset files and
// expires them after a TTL.
type SessionService interface {
	// Create stores content as a new session dataset and returns its session id.
	// filename must end in .csv; content larger than the configured maximum
	// returns apperrors.ErrFileTooLarge.
	Create(ctx context.Context, filename string, content io.Reader) (string, error)

	// ResolveDatasetPath returns the dataset file of a session or apperrors.ErrNotFound.
	ResolveDatasetPath(sessionID string) (string, error)

	// Delete removes a session dataset or returns apperrors.ErrNotFound.
	Delete(sessionID string) error

	// CleanupExpired deletes dataset files older than the TTL and returns how many were deleted.
	CleanupExpired(ctx context.Context) (int, error)

	// RunReaper starts a background goroutine that calls CleanupExpired
	// immediately and then every interval. Cancel the context to stop it.
	RunReaper(ctx context.Context, interval time.Duration)

	// MaxUploadBytes returns the upload size limit.
	MaxUploadBytes() int64
}

type sessionService struct {
	config SessionConfig
	logger *zap.Logger
}

// NewSessionService creates the uploads directory if needed.
func NewSessionService(config SessionConfig, logger *zap.Logger) (SessionService, error) {
	if config.UploadsDir == "" {
		return nil, fmt.Errorf("uploads directory is required")
	}
	if config.TTL <= 0 {
		config.TTL = DefaultSessionTTL
	}
	if config.MaxUploadBytes <= 0 {
		config.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if err := os.MkdirAll(config.UploadsDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create uploads directory: %w", err)
	}

	return &sessionService{
		config: config,
		logger: logger.Named("session-service"),
	}, nil
}

var _ SessionService = (*sessionService)(nil)

func (s *sessionService) MaxUploadBytes() int64 {
	return s.config.MaxUploadBytes
}

func (s *sessionService) Create(ctx context.Context, filename string, content io.Reader) (string, error) {
	if !strings.EqualFold(filepath.Ext(filename), datasetExt) {
		return "", apperrors.ErrInvalidFileType
	}

	tmp, err := os.CreateTemp(s.config.UploadsDir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create upload file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	written, err := io.Copy(tmp, io.LimitReader(content, s.config.MaxUploadBytes+1))
	closeErr := tmp.Close()
	if err != nil {
		return "", fmt.Errorf("failed to write upload: %w", err)
	}
	if closeErr != nil {
		return "", fmt.Errorf("failed to write upload: %w", closeErr)
	}
	if written > s.config.MaxUploadBytes {
		return "", apperrors.ErrFileTooLarge
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	sessionID := uuid.New().String()
	if err := os.Rename(tmpPath, s.datasetPath(sessionID)); err != nil {
		return "", fmt.Errorf("failed to store upload: %w", err)
	}

	s.logger.Info("Session created",
		zap.String("session_id", sessionID),
		zap.String("filename", filename),
		zap.Int64("bytes", written))

	return sessionID, nil
}

func (s *sessionService) ResolveDatasetPath(sessionID string) (string, error) {
	path, ok := s.pathFor(sessionID)
	if !ok {
		return "", apperrors.ErrNotFound
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", apperrors.ErrNotFound
		}
		return "", fmt.Errorf("failed to stat session dataset: %w", err)
	}
	if !info.Mode().IsRegular() {
		return "", apperrors.ErrNotFound
	}
	return path, nil
}

func (s *sessionService) Delete(sessionID string) error {
	path, ok := s.pathFor(sessionID)
	if !ok {
		return apperrors.ErrNotFound
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return apperrors.ErrNotFound
		}
		return fmt.Errorf("failed to delete session dataset: %w", err)
	}

	s.logger.Info("Session deleted", zap.String("session_id", sessionID))
	return nil
}

func (s *sessionService) CleanupExpired(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(s.config.UploadsDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to list uploads directory: %w", err)
	}

	cutoff := time.Now().Add(-s.config.TTL)
	deleted := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			return deleted, ctx.Err()
		}
		if !entry.Type().IsRegular() {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			// removed concurrently
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}

		path := filepath.Join(s.config.UploadsDir, entry.Name())
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.Error("Failed to delete expired session file",
				zap.String("file", entry.Name()),
				zap.Error(err))
			continue
		}
		deleted++
		s.logger.Debug("Deleted expired session file", zap.String("file", entry.Name()))
	}

	if deleted > 0 {
		s.logger.Info("Session cleanup completed", zap.Int("deleted", deleted))
	}
	metrics.AddSessionsReaped(deleted)
	return deleted, nil
}

func (s *sessionService) RunReaper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}

	go func() {
		s.logger.Info("Session reaper started",
			zap.Duration("interval", interval),
			zap.Duration("ttl", s.config.TTL))

		// Run immediately on startup, then at each interval
		s.reap(ctx)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info("Session reaper stopped")
				return
			case <-ticker.C:
				s.reap(ctx)
			}
		}
	}()
}

func (s *sessionService) reap(ctx context.Context) {
	if _, err := s.CleanupExpired(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("Session reaper: cleanup failed", zap.Error(err))
	}
}

// pathFor maps a session id to its dataset path. Only canonical UUIDs are
// accepted, so ids can never name a file outside the uploads directory.
func (s *sessionService) pathFor(sessionID string) (string, bool) {
	id, err := uuid.Parse(sessionID)
	if err != nil || id.String() != strings.ToLower(sessionID) {
		return "", false
	}
	return s.datasetPath(id.String()), true
}

func (s *sessionService) datasetPath(sessionID string) string {
	return filepath.Join(s.config.UploadsDir, sessionID+datasetExt)
}
