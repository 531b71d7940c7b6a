package models

// Routing strategies recorded in RoutingMetadata.Strategy besides backend names.
const (
	StrategyTemplate = "template"
)

// RoutingMetadata holds the diagnostics of one routing decision.
type RoutingMetadata struct {
	WordCount       int    `json:"word_count"`
	HasColumnNames  bool   `json:"has_column_names"`
	ComplexityScore int    `json:"complexity_score"`
	ComplexMatches  int    `json:"complex_matches,omitempty"`
	MediumMatches   int    `json:"medium_matches,omitempty"`
	HasDateTime     bool   `json:"has_datetime,omitempty"`
	Reason          string `json:"reason,omitempty"`
	Strategy        string `json:"strategy,omitempty"`
	Backend         string `json:"backend,omitempty"`
	Forced          bool   `json:"forced,omitempty"`
	Upgraded        bool   `json:"upgraded,omitempty"`
}

// RoutingDecision is the Router's verdict for one question.
// Template is non-nil only when a template produced ready-to-run SQL.
type RoutingDecision struct {
	Tier     Tier            `json:"tier"`
	Template *Executable     `json:"-"`
	Metadata RoutingMetadata `json:"metadata"`
}
