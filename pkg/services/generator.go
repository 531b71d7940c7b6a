package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insights/pkg/llm"
	"github.com/ekaya-inc/ekaya-insights/pkg/logging"
	"github.com/ekaya-inc/ekaya-insights/pkg/metrics"
	"github.com/ekaya-inc/ekaya-insights/pkg/models"
	"github.com/ekaya-inc/ekaya-insights/pkg/prompts"
)

// Defaults applied when GeneratorConfig leaves a field zero.
const (
	DefaultGenerationTimeout     = 30 * time.Second
	DefaultGenerationTemperature = 0.2
)

// FailedGenerationPrefix starts the reason of every Failed result caused by a backend.
const FailedGenerationPrefix = "could not generate a query"

// GeneratorConfig is the immutable generation policy.
type GeneratorConfig struct {
	Timeout     time.Duration
	Temperature float64
}

// GenerationRequest is one call to a generation backend.
type GenerationRequest struct {
	Question     string
	Schema       models.SchemaDescriptor
	PriorAnswers map[string]any
	Tier         models.Tier
	Backend      string
}

// BackendProvider resolves backend identifiers to clients.
type BackendProvider interface {
	Get(name string) (llm.LLMClient, error)
}

// SQLGenerator sends questions to the backend chosen by routing and validates the reply.
type SQLGenerator interface {
	// Generate performs a single backend call. Backend failures, timeouts and
	// malformed output are returned as models.Failed; it never returns an error.
	Generate(ctx context.Context, req GenerationRequest) models.GenerationResult
}

type sqlGenerator struct {
	backends BackendProvider
	breakers *llm.CircuitBreakers
	config   GeneratorConfig
	logger   *zap.Logger
}

// NewSQLGenerator creates a generator. breakers may be nil to disable fail-fast.
func NewSQLGenerator(backends BackendProvider, breakers *llm.CircuitBreakers, config GeneratorConfig, logger *zap.Logger) SQLGenerator {
	if config.Timeout <= 0 {
		config.Timeout = DefaultGenerationTimeout
	}
	if config.Temperature < 0 {
		config.Temperature = DefaultGenerationTemperature
	}
	return &sqlGenerator{
		backends: backends,
		breakers: breakers,
		config:   config,
		logger:   logger.Named("sql-generator"),
	}
}

var _ SQLGenerator = (*sqlGenerator)(nil)

func (g *sqlGenerator) Generate(ctx context.Context, req GenerationRequest) models.GenerationResult {
	start := time.Now()

	raw, err := g.complete(ctx, req)
	if err != nil {
		g.logger.Error("Generation backend failed",
			zap.String("backend", req.Backend),
			zap.String("tier", req.Tier.String()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("error", logging.SanitizeError(err)))
		metrics.ObserveGeneration(req.Backend, string(models.OutcomeFailed), time.Since(start))
		return models.Failed{Reason: FailedGenerationPrefix + ": " + logging.SanitizeError(err)}
	}

	result := ParseGenerationResponse(raw, g.logger.With(zap.String("backend", req.Backend)))
	metrics.ObserveGeneration(req.Backend, string(result.Outcome()), time.Since(start))

	switch r := result.(type) {
	case models.Executable:
		g.logger.Debug("Generated SQL",
			zap.String("backend", req.Backend),
			zap.String("sql", logging.SanitizeQuery(r.SQL)))
	case models.Failed:
		g.logger.Warn("Generation response rejected",
			zap.String("backend", req.Backend),
			zap.String("reason", r.Reason))
	}
	return result
}

// complete performs the backend call and returns its raw text.
func (g *sqlGenerator) complete(ctx context.Context, req GenerationRequest) (string, error) {
	client, err := g.backends.Get(req.Backend)
	if err != nil {
		return "", err
	}

	userMessage, err := prompts.BuildUserMessage(req.Question, req.Schema, req.PriorAnswers)
	if err != nil {
		return "", err
	}

	var breaker *llm.CircuitBreaker
	if g.breakers != nil {
		breaker = g.breakers.For(req.Backend)
		if allowed, err := breaker.Allow(); !allowed {
			return "", err
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	resp, err := client.GenerateResponse(callCtx, userMessage, prompts.SystemPrompt(req.Tier), g.config.Temperature)
	if err == nil && callCtx.Err() != nil {
		// A client that ignores cancellation still counts as timed out.
		err = callCtx.Err()
	}
	if err != nil {
		classified := llm.ClassifyError(err)
		if breaker != nil {
			if errors.Is(err, context.Canceled) {
				breaker.RecordCancelled()
			} else {
				breaker.RecordFailure()
			}
		}
		if classified.Type == llm.ErrorTypeTimeout {
			return "", fmt.Errorf("backend %s did not respond within %s: %w", req.Backend, g.config.Timeout, classified)
		}
		return "", classified
	}

	if breaker != nil {
		breaker.RecordSuccess()
	}
	return resp.Content, nil
}
