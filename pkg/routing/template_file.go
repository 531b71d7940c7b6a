package routing

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	sqlutil "github.com/ekaya-inc/ekaya-insights/pkg/sql"
)

// templateFile is the YAML shape of a custom template table:
//
//	templates:
//	  - name: top_countries
//	    pattern: '(?i)^top (\d+) countries$'
//	    sql: 'SELECT country, COUNT(*) AS n FROM "data" GROUP BY country ORDER BY n DESC LIMIT {limit}'
//	    explanation: 'Top {limit} countries by row count'
//	    limit_group: 1
type templateFile struct {
	Templates []templateEntry `yaml:"templates"`
}

type templateEntry struct {
	Name        string `yaml:"name"`
	Pattern     string `yaml:"pattern"`
	SQL         string `yaml:"sql"`
	Explanation string `yaml:"explanation"`
	LimitGroup  int    `yaml:"limit_group"`
}

// LoadTemplateFile reads custom templates from a YAML file.
// Every template must compile, and its SQL (with {limit} filled in) must pass
// the read-only guard.
func LoadTemplateFile(path string) ([]Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template file: %w", err)
	}
	return ParseTemplates(data)
}

// ParseTemplates parses a YAML template table. See LoadTemplateFile.
func ParseTemplates(data []byte) ([]Template, error) {
	var file templateFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse template file: %w", err)
	}

	templates := make([]Template, 0, len(file.Templates))
	seen := make(map[string]bool, len(file.Templates))
	for i, entry := range file.Templates {
		tmpl, err := entry.compile()
		if err != nil {
			return nil, fmt.Errorf("template %d (%q): %w", i, entry.Name, err)
		}
		if seen[tmpl.Name] {
			return nil, fmt.Errorf("template %d: duplicate name %q", i, tmpl.Name)
		}
		seen[tmpl.Name] = true
		templates = append(templates, tmpl)
	}
	return templates, nil
}

func (e templateEntry) compile() (Template, error) {
	name := strings.TrimSpace(e.Name)
	if name == "" {
		return Template{}, fmt.Errorf("name is required")
	}
	if strings.TrimSpace(e.SQL) == "" {
		return Template{}, fmt.Errorf("sql is required")
	}

	if e.Pattern == "" {
		return Template{}, fmt.Errorf("pattern is required")
	}
	pattern, err := regexp.Compile(e.Pattern)
	if err != nil {
		return Template{}, fmt.Errorf("invalid pattern: %w", err)
	}
	if e.LimitGroup < 0 || e.LimitGroup > pattern.NumSubexp() {
		return Template{}, fmt.Errorf("limit_group %d out of range, pattern has %d groups", e.LimitGroup, pattern.NumSubexp())
	}

	sample := strings.ReplaceAll(e.SQL, limitPlaceholder, "1")
	if _, err := sqlutil.PrepareQuery(sample); err != nil {
		return Template{}, fmt.Errorf("sql rejected: %w", err)
	}

	return Template{
		Name:        name,
		Pattern:     pattern,
		SQL:         e.SQL,
		Explanation: e.Explanation,
		LimitGroup:  e.LimitGroup,
	}, nil
}
