package services

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insights/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-insights/pkg/audit"
	"github.com/ekaya-inc/ekaya-insights/pkg/metrics"
	"github.com/ekaya-inc/ekaya-insights/pkg/models"
	"github.com/ekaya-inc/ekaya-insights/pkg/routing"
	sqlutil "github.com/ekaya-inc/ekaya-insights/pkg/sql"
)

// QueryPipeline turns a question into a GenerationResult.
type QueryPipeline interface {
	// RouteAndGenerate routes question and, unless a template answers it,
	// generates SQL with the backend the routing decision names. priorAnswers
	// holds the caller's answers to earlier clarifications keyed by clarification
	// id. forced may be empty, "template", a tier name or a backend identifier.
	// Every path ends in one of the four GenerationResult variants.
	RouteAndGenerate(ctx context.Context, question string, schema models.SchemaDescriptor, priorAnswers map[string]any, forced string) (models.GenerationResult, models.RoutingDecision)
}

type queryPipeline struct {
	router    *routing.Router
	generator SQLGenerator
	auditor   *audit.SecurityAuditor
	logger    *zap.Logger
}

// NewQueryPipeline creates a pipeline over router and generator.
// Flagged clarification answers are reported to auditor.
func NewQueryPipeline(router *routing.Router, generator SQLGenerator, auditor *audit.SecurityAuditor, logger *zap.Logger) QueryPipeline {
	return &queryPipeline{
		router:    router,
		generator: generator,
		auditor:   auditor,
		logger:    logger.Named("query-pipeline"),
	}
}

var _ QueryPipeline = (*queryPipeline)(nil)

func (p *queryPipeline) RouteAndGenerate(
	ctx context.Context,
	question string,
	schema models.SchemaDescriptor,
	priorAnswers map[string]any,
	forced string,
) (models.GenerationResult, models.RoutingDecision) {
	question = strings.TrimSpace(question)
	if question == "" {
		return models.Failed{Reason: apperrors.ErrEmptyQuestion.Error()}, models.RoutingDecision{}
	}

	if flagged := sqlutil.CheckClarificationAnswers(priorAnswers); len(flagged) > 0 {
		p.auditor.LogInjectionAttempt(ctx, audit.SQLInjectionDetails{
			AnswerKey:   flagged[0].Key,
			AnswerValue: flagged[0].Value,
			Fingerprint: flagged[0].Fingerprint,
		})
		return models.Failed{Reason: "clarification answer rejected: " + flagged[0].Key}, models.RoutingDecision{}
	}

	decision := p.router.Route(question, schema, forced)
	metrics.ObserveRoutingDecision(decision.Tier.String(), decision.Metadata.Strategy)

	if decision.Template != nil {
		return *decision.Template, decision
	}
	if decision.Metadata.Strategy == models.StrategyTemplate {
		// forced template with no matching pattern
		return models.Failed{Reason: "no template matched the question"}, decision
	}

	result := p.generator.Generate(ctx, GenerationRequest{
		Question:     question,
		Schema:       schema,
		PriorAnswers: priorAnswers,
		Tier:         decision.Tier,
		Backend:      decision.Metadata.Backend,
	})
	return result, decision
}
