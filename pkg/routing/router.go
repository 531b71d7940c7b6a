package routing

import (
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insights/pkg/models"
)

// Policy is the immutable routing configuration.
type Policy struct {
	// Enabled turns tiered routing on. When false every question goes to
	// DefaultBackend at MEDIUM tier.
	Enabled bool
	// Backends maps MEDIUM and COMPLEX tiers to backend identifiers.
	Backends map[models.Tier]string
	// DefaultBackend is used when routing is disabled or a tier has no backend.
	DefaultBackend string
}

// BackendFor returns the backend identifier for tier.
func (p Policy) BackendFor(tier models.Tier) string {
	if name, ok := p.Backends[tier]; ok && name != "" {
		return name
	}
	return p.DefaultBackend
}

// BackendNames returns the distinct backend identifiers named by the policy.
func (p Policy) BackendNames() []string {
	seen := make(map[string]bool)
	var names []string
	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	add(p.BackendFor(models.TierMedium))
	add(p.BackendFor(models.TierComplex))
	add(p.DefaultBackend)
	return names
}

// tierForBackend reports which tier a backend identifier serves.
// COMPLEX wins when one backend serves both tiers.
func (p Policy) tierForBackend(name string) (models.Tier, bool) {
	if name == "" {
		return 0, false
	}
	if p.BackendFor(models.TierComplex) == name {
		return models.TierComplex, true
	}
	if p.BackendFor(models.TierMedium) == name {
		return models.TierMedium, true
	}
	return 0, false
}

// Router composes the template matcher and the analyzer into a routing decision.
type Router struct {
	policy    Policy
	templates *TemplateMatcher
	analyzer  *Analyzer
	logger    *zap.Logger
}

// NewRouter creates a router. policy.Backends is copied.
func NewRouter(policy Policy, templates *TemplateMatcher, logger *zap.Logger) *Router {
	backends := make(map[models.Tier]string, len(policy.Backends))
	for tier, name := range policy.Backends {
		backends[tier] = name
	}
	policy.Backends = backends

	return &Router{
		policy:    policy,
		templates: templates,
		analyzer:  NewAnalyzer(templates),
		logger:    logger.Named("router"),
	}
}

// Policy returns the routing policy.
func (r *Router) Policy() Policy {
	return r.policy
}

// Route decides how question is answered. forced may be empty, "template",
// a tier name or a backend identifier from the policy.
func (r *Router) Route(question string, schema models.SchemaDescriptor, forced string) models.RoutingDecision {
	forced = strings.TrimSpace(forced)
	if forced != "" {
		if decision, ok := r.routeForced(question, schema, forced); ok {
			return decision
		}
		r.logger.Warn("Unknown forced routing target, routing normally",
			zap.String("forced", forced))
	}

	if !r.policy.Enabled {
		return models.RoutingDecision{
			Tier: models.TierMedium,
			Metadata: models.RoutingMetadata{
				WordCount:      len(strings.Fields(question)),
				HasColumnNames: schema.MentionsColumn(question),
				Reason:         "Routing disabled",
				Strategy:       r.policy.DefaultBackend,
				Backend:        r.policy.DefaultBackend,
			},
		}
	}

	tier, meta := r.analyzer.Analyze(question, schema)

	if tier == models.TierSimple {
		if tmpl := r.templates.Match(question); tmpl != nil {
			meta.Strategy = models.StrategyTemplate
			r.logger.Debug("Routed to template",
				zap.Int("word_count", meta.WordCount),
				zap.String("reason", meta.Reason))
			return models.RoutingDecision{Tier: models.TierSimple, Template: tmpl, Metadata: meta}
		}
		tier = models.TierMedium
		meta.Upgraded = true
		meta.Reason = "No template match, upgraded to " + r.policy.BackendFor(models.TierMedium)
	}

	backend := r.policy.BackendFor(tier)
	meta.Backend = backend
	meta.Strategy = backend

	r.logger.Debug("Routed to backend",
		zap.String("tier", tier.String()),
		zap.String("backend", backend),
		zap.Int("word_count", meta.WordCount),
		zap.String("reason", meta.Reason))

	return models.RoutingDecision{Tier: tier, Metadata: meta}
}

func (r *Router) routeForced(question string, schema models.SchemaDescriptor, forced string) (models.RoutingDecision, bool) {
	meta := models.RoutingMetadata{
		WordCount:      len(strings.Fields(question)),
		HasColumnNames: schema.MentionsColumn(question),
		Forced:         true,
	}

	if strings.EqualFold(forced, models.StrategyTemplate) || strings.EqualFold(forced, models.TierSimple.String()) {
		meta.Strategy = models.StrategyTemplate
		meta.Reason = "Forced template"
		return models.RoutingDecision{
			Tier:     models.TierSimple,
			Template: r.templates.Match(question),
			Metadata: meta,
		}, true
	}

	if tier, ok := r.policy.tierForBackend(forced); ok {
		meta.Backend = forced
		meta.Strategy = forced
		meta.Reason = "Forced backend " + forced
		return models.RoutingDecision{Tier: tier, Metadata: meta}, true
	}

	if tier, ok := models.ParseTier(forced); ok {
		backend := r.policy.BackendFor(tier)
		meta.Backend = backend
		meta.Strategy = backend
		meta.Reason = "Forced " + tier.String() + " tier"
		return models.RoutingDecision{Tier: tier, Metadata: meta}, true
	}

	return models.RoutingDecision{}, false
}
