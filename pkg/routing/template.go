// Package routing decides how a natural-language question is answered:
// by a zero-cost SQL template or by a generation backend of a given tier.
package routing

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/ekaya-inc/ekaya-insights/pkg/models"
)

const (
	// DefaultRowLimit caps "show all" style templates.
	DefaultRowLimit = 50
	// DefaultTopLimit is used when a "first N" template cannot parse N.
	DefaultTopLimit = 10

	limitPlaceholder = "{limit}"
)

var (
	selectAllSQL = `SELECT * FROM "` + models.DatasetRelation + `" LIMIT ` + strconv.Itoa(DefaultRowLimit)
	selectNSQL   = `SELECT * FROM "` + models.DatasetRelation + `" LIMIT ` + limitPlaceholder
	countSQL     = `SELECT COUNT(*) as count FROM "` + models.DatasetRelation + `"`

	selectAllExplanation = "Showing first " + strconv.Itoa(DefaultRowLimit) + " rows of all data"
	countExplanation     = "Counting total rows in the dataset"
)

// Template maps a surface pattern to a fixed SQL skeleton.
// When LimitGroup is non-zero, the submatch at that index is substituted for
// {limit} in SQL and Explanation, falling back to DefaultTopLimit.
type Template struct {
	Name        string
	Pattern     *regexp.Regexp
	SQL         string
	Explanation string
	LimitGroup  int
}

// DefaultTemplates is the built-in template table. Order matters: the first
// matching entry wins.
var DefaultTemplates = []Template{
	{
		Name:        "show_all",
		Pattern:     regexp.MustCompile(`(?i)(show|display|get|select)\s+(all|everything|entire)`),
		SQL:         selectAllSQL,
		Explanation: selectAllExplanation,
	},
	{
		Name:        "all",
		Pattern:     regexp.MustCompile(`(?i)^(all|everything)$`),
		SQL:         selectAllSQL,
		Explanation: selectAllExplanation,
	},
	{
		Name:        "first_n",
		Pattern:     regexp.MustCompile(`(?i)(show|display|get|select)\s+(first|top)\s+(\d+)(\s+rows?)?`),
		SQL:         selectNSQL,
		Explanation: "Showing first " + limitPlaceholder + " rows",
		LimitGroup:  3,
	},
	{
		Name:        "first_n_rows",
		Pattern:     regexp.MustCompile(`(?i)^(first|top)\s+(\d+)\s+(rows?|records?)$`),
		SQL:         selectNSQL,
		Explanation: "Showing first " + limitPlaceholder + " rows",
		LimitGroup:  2,
	},
	{
		Name:        "count_rows",
		Pattern:     regexp.MustCompile(`(?i)(count|total|how\s+many)\s+(all|rows?|records?)`),
		SQL:         countSQL,
		Explanation: countExplanation,
	},
	{
		Name:        "count",
		Pattern:     regexp.MustCompile(`(?i)^count$`),
		SQL:         countSQL,
		Explanation: countExplanation,
	},
}

// TemplateMatcher evaluates an ordered template table, first match wins.
// It holds no mutable state and is safe for concurrent use.
type TemplateMatcher struct {
	templates []Template
}

// NewTemplateMatcher creates a matcher over templates. The slice is copied.
func NewTemplateMatcher(templates []Template) *TemplateMatcher {
	return &TemplateMatcher{templates: append([]Template(nil), templates...)}
}

// NewDefaultTemplateMatcher creates a matcher over DefaultTemplates.
func NewDefaultTemplateMatcher() *TemplateMatcher {
	return NewTemplateMatcher(DefaultTemplates)
}

// Match returns ready-to-run SQL for the first template matching question,
// or nil when no template applies.
func (m *TemplateMatcher) Match(question string) *models.Executable {
	result, _ := m.MatchNamed(question)
	return result
}

// MatchNamed is Match that also returns the name of the matching template.
func (m *TemplateMatcher) MatchNamed(question string) (*models.Executable, string) {
	question = strings.TrimSpace(question)
	for _, tmpl := range m.templates {
		groups := tmpl.Pattern.FindStringSubmatch(question)
		if groups == nil {
			continue
		}
		if tmpl.LimitGroup == 0 {
			return &models.Executable{SQL: tmpl.SQL, Explanation: tmpl.Explanation}, tmpl.Name
		}

		limit := DefaultTopLimit
		if tmpl.LimitGroup < len(groups) {
			if n, err := strconv.Atoi(groups[tmpl.LimitGroup]); err == nil && n >= 0 {
				limit = n
			}
		}
		value := strconv.Itoa(limit)
		return &models.Executable{
			SQL:         strings.ReplaceAll(tmpl.SQL, limitPlaceholder, value),
			Explanation: strings.ReplaceAll(tmpl.Explanation, limitPlaceholder, value),
		}, tmpl.Name
	}
	return nil, ""
}
