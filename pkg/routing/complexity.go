package routing

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ekaya-inc/ekaya-insights/pkg/models"
)

// PatternCategory groups lexical patterns by the SQL feature they hint at.
type PatternCategory string

const (
	CategoryBoolean     PatternCategory = "boolean"
	CategoryNested      PatternCategory = "nested"
	CategoryWindow      PatternCategory = "window"
	CategoryAggregate   PatternCategory = "aggregate"
	CategoryJoin        PatternCategory = "join"
	CategoryTemporalSQL PatternCategory = "temporal_sql"
	CategoryDateTime    PatternCategory = "datetime"
	CategoryMembership  PatternCategory = "membership"
	CategoryExclusion   PatternCategory = "exclusion"
	CategoryGrouping    PatternCategory = "grouping"
	CategoryOrdering    PatternCategory = "ordering"
	CategoryFiltering   PatternCategory = "filtering"
)

// KeywordPattern is one entry of a keyword table.
type KeywordPattern struct {
	Pattern  *regexp.Regexp
	Category PatternCategory
}

func kw(category PatternCategory, expr string) KeywordPattern {
	return KeywordPattern{Pattern: regexp.MustCompile(expr), Category: category}
}

// ComplexPatterns mark questions that need the most capable backend.
// Patterns are matched against the lower-cased question.
var ComplexPatterns = []KeywordPattern{
	kw(CategoryBoolean, `\band\b`),
	kw(CategoryBoolean, `\bor\b`),
	kw(CategoryBoolean, `\bnot\b`),

	kw(CategoryNested, `\bwith\b.*\bas\b`),
	kw(CategoryNested, `\bselect\b.*\bfrom\b.*\bselect\b`),

	kw(CategoryWindow, `\bover\b.*\bpartition\b`),
	kw(CategoryWindow, `\brow_number\b`),
	kw(CategoryWindow, `\brank\b`),
	kw(CategoryWindow, `\blead\b`),
	kw(CategoryWindow, `\blag\b`),

	kw(CategoryAggregate, `\bhaving\b`),
	kw(CategoryAggregate, `\bcase\b.*\bwhen\b`),
	kw(CategoryAggregate, `\bcoalesce\b`),

	kw(CategoryJoin, `\bjoin\b.*\bjoin\b`),

	kw(CategoryTemporalSQL, `\bdate_trunc\b`),
	kw(CategoryTemporalSQL, `\binterval\b`),
	kw(CategoryTemporalSQL, `\bextract\b`),

	kw(CategoryDateTime, `\blast\s+(week|month|year|quarter|day)\b`),
	kw(CategoryDateTime, `\bthis\s+(week|month|year|quarter)\b`),
	kw(CategoryDateTime, `\byesterday\b`),
	kw(CategoryDateTime, `\btoday\b`),
	kw(CategoryDateTime, `\btomorrow\b`),
	kw(CategoryDateTime, `\bpast\s+\d+\s+(days?|weeks?|months?|years?)\b`),
	kw(CategoryDateTime, `\bnext\s+\d+\s+(days?|weeks?|months?|years?)\b`),

	kw(CategoryMembership, `\bbetween\b.*\band\b`),
	kw(CategoryMembership, `\bin\b\s*\(.*,.*,.*\)`),

	kw(CategoryExclusion, `\bexcluding\b`),
	kw(CategoryExclusion, `\bexcept\b`),
	kw(CategoryExclusion, `\bnot\s+in\b`),
}

// MediumPatterns mark single-operation questions.
var MediumPatterns = []KeywordPattern{
	kw(CategoryAggregate, `\bavg\b`),
	kw(CategoryAggregate, `\b(average|mean)\b`),
	kw(CategoryAggregate, `\bsum\b`),
	kw(CategoryAggregate, `\btotal\b`),
	kw(CategoryAggregate, `\bcount\b`),
	kw(CategoryAggregate, `\bmax\b`),
	kw(CategoryAggregate, `\bmin\b`),

	kw(CategoryGrouping, `\bgroup\s+by\b`),
	kw(CategoryGrouping, `\bper\b`),

	kw(CategoryJoin, `\bjoin\b`),

	kw(CategoryOrdering, `\border\s+by\b`),
	kw(CategoryOrdering, `\bsort(ed)?\s+by\b`),
	kw(CategoryOrdering, `\btop\b`),
	kw(CategoryOrdering, `\bbottom\b`),

	kw(CategoryFiltering, `\bwhere\b`),
	kw(CategoryFiltering, `\bfilter\b`),
	kw(CategoryFiltering, `\bgreater\b`),
	kw(CategoryFiltering, `\bless\b`),
}

const (
	shortQuestionWords   = 3
	longQuestionWords    = 15
	mediumQuestionWords  = 8
	complexPatternsLimit = 2
	longMediumMatches    = 2
)

// Reasons recorded in RoutingMetadata.Reason.
const (
	ReasonTemplate       = "Matches simple template"
	ReasonDateTime       = "Contains date/time reference (requires clarification handling)"
	ReasonShort          = "Very short question"
	ReasonLongMulti      = "Long question with multiple operations"
	ReasonMedium         = "Contains aggregation/grouping/filtering"
	ReasonMediumLength   = "Question length suggests multiple conditions"
	ReasonSimple         = "Simple query"
	reasonMultiplePrefix = "Multiple complex patterns"
)

// Analyzer scores the linguistic complexity of a question.
// Analyze is a pure function of its inputs; Analyzer is safe for concurrent use.
type Analyzer struct {
	templates *TemplateMatcher
	complex   []KeywordPattern
	medium    []KeywordPattern
}

// NewAnalyzer creates an analyzer using the built-in keyword tables.
func NewAnalyzer(templates *TemplateMatcher) *Analyzer {
	return NewAnalyzerWithPatterns(templates, ComplexPatterns, MediumPatterns)
}

// NewAnalyzerWithPatterns creates an analyzer over custom keyword tables.
func NewAnalyzerWithPatterns(templates *TemplateMatcher, complexPatterns, mediumPatterns []KeywordPattern) *Analyzer {
	return &Analyzer{
		templates: templates,
		complex:   append([]KeywordPattern(nil), complexPatterns...),
		medium:    append([]KeywordPattern(nil), mediumPatterns...),
	}
}

// Analyze assigns a tier to question. schema may be nil.
//
// Rules, first applicable wins:
//  1. a template matches: SIMPLE
//  2. a relative date/time phrase is present: COMPLEX
//  3. three words or fewer: SIMPLE
//  4. two or more complex patterns: COMPLEX
//  5. more than 15 words and two or more medium patterns: COMPLEX
//  6. any medium pattern, or at least 8 words: MEDIUM
//  7. otherwise SIMPLE
//
// Rule 2 runs before rule 3: a date/time phrase is COMPLEX regardless of word
// count, so "sales last month" still reaches a backend that can ask which date
// column to use.
func (a *Analyzer) Analyze(question string, schema models.SchemaDescriptor) (models.Tier, models.RoutingMetadata) {
	lower := strings.ToLower(question)
	meta := models.RoutingMetadata{
		WordCount:      len(strings.Fields(question)),
		HasColumnNames: schema.MentionsColumn(question),
	}

	if a.templates != nil && a.templates.Match(question) != nil {
		meta.ComplexityScore = 0
		meta.Reason = ReasonTemplate
		return models.TierSimple, meta
	}

	complexMatches, hasDateTime := a.scanComplex(lower)
	meta.ComplexMatches = complexMatches
	meta.HasDateTime = hasDateTime

	if hasDateTime {
		meta.ComplexityScore = 3
		meta.Reason = ReasonDateTime
		return models.TierComplex, meta
	}

	if meta.WordCount <= shortQuestionWords {
		meta.ComplexityScore = 1
		meta.Reason = ReasonShort
		return models.TierSimple, meta
	}

	if complexMatches >= complexPatternsLimit {
		meta.ComplexityScore = 3
		meta.Reason = fmt.Sprintf("%s (%d)", reasonMultiplePrefix, complexMatches)
		return models.TierComplex, meta
	}

	mediumMatches := countMatches(a.medium, lower)
	meta.MediumMatches = mediumMatches

	if meta.WordCount > longQuestionWords && mediumMatches >= longMediumMatches {
		meta.ComplexityScore = 3
		meta.Reason = ReasonLongMulti
		return models.TierComplex, meta
	}

	if mediumMatches >= 1 {
		meta.ComplexityScore = 2
		meta.Reason = ReasonMedium
		return models.TierMedium, meta
	}
	if meta.WordCount >= mediumQuestionWords {
		meta.ComplexityScore = 2
		meta.Reason = ReasonMediumLength
		return models.TierMedium, meta
	}

	meta.ComplexityScore = 1
	meta.Reason = ReasonSimple
	return models.TierSimple, meta
}

func (a *Analyzer) scanComplex(lower string) (matches int, hasDateTime bool) {
	for _, p := range a.complex {
		if p.Pattern.MatchString(lower) {
			matches++
			if p.Category == CategoryDateTime {
				hasDateTime = true
			}
		}
	}
	return matches, hasDateTime
}

func countMatches(patterns []KeywordPattern, lower string) int {
	n := 0
	for _, p := range patterns {
		if p.Pattern.MatchString(lower) {
			n++
		}
	}
	return n
}
