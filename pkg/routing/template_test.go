package routing

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplateMatcher_ShowAll(t *testing.T) {
	m := NewDefaultTemplateMatcher()

	for _, q := range []string{"show all", "SHOW ALL", "  display everything  ", "get entire table"} {
		result := m.Match(q)
		require.NotNil(t, result, q)
		assert.Equal(t, `SELECT * FROM "data" LIMIT 50`, result.SQL, q)
		assert.Contains(t, result.Explanation, "50")
	}
}

func TestTemplateMatcher_BareAll(t *testing.T) {
	m := NewDefaultTemplateMatcher()

	result, name := m.MatchNamed("everything")
	require.NotNil(t, result)
	assert.Equal(t, "all", name)
	assert.Equal(t, `SELECT * FROM "data" LIMIT 50`, result.SQL)
}

func TestTemplateMatcher_TopNRows(t *testing.T) {
	m := NewDefaultTemplateMatcher()

	result, name := m.MatchNamed("top 10 rows")
	require.NotNil(t, result)
	assert.Equal(t, "first_n_rows", name)
	assert.Equal(t, `SELECT * FROM "data" LIMIT 10`, result.SQL)
	assert.Equal(t, "Showing first 10 rows", result.Explanation)

	result, name = m.MatchNamed("show first 5 rows")
	require.NotNil(t, result)
	assert.Equal(t, "first_n", name)
	assert.Equal(t, `SELECT * FROM "data" LIMIT 5`, result.SQL)
}

func TestTemplateMatcher_LimitFallsBackToDefault(t *testing.T) {
	m := NewDefaultTemplateMatcher()

	// does not fit in an int
	result := m.Match("show top 99999999999999999999999 rows")
	require.NotNil(t, result)
	assert.Equal(t, `SELECT * FROM "data" LIMIT 10`, result.SQL)
}

func TestTemplateMatcher_ZeroLimitIsKept(t *testing.T) {
	m := NewDefaultTemplateMatcher()

	result := m.Match("show first 0 rows")
	require.NotNil(t, result)
	assert.Equal(t, `SELECT * FROM "data" LIMIT 0`, result.SQL)
	assert.Equal(t, "Showing first 0 rows", result.Explanation)
}

func TestTemplateMatcher_Count(t *testing.T) {
	m := NewDefaultTemplateMatcher()

	for _, q := range []string{"count", "Count", "how many rows are there", "total records", "count all"} {
		result := m.Match(q)
		require.NotNil(t, result, q)
		assert.Equal(t, `SELECT COUNT(*) as count FROM "data"`, result.SQL, q)
	}
}

func TestTemplateMatcher_NoMatch(t *testing.T) {
	m := NewDefaultTemplateMatcher()

	for _, q := range []string{"", "hi", "what is the average revenue", "total revenue per country", "count by region"} {
		assert.Nil(t, m.Match(q), q)
	}
}

func TestTemplateMatcher_FirstMatchWins(t *testing.T) {
	m := NewDefaultTemplateMatcher()

	_, name := m.MatchNamed("show all and count rows")
	assert.Equal(t, "show_all", name)

	custom := NewTemplateMatcher([]Template{
		{Name: "first", Pattern: regexp.MustCompile(`(?i)rows`), SQL: "SELECT 1"},
		{Name: "second", Pattern: regexp.MustCompile(`(?i)rows`), SQL: "SELECT 2"},
	})
	result, name := custom.MatchNamed("rows")
	require.NotNil(t, result)
	assert.Equal(t, "first", name)
	assert.Equal(t, "SELECT 1", result.SQL)
}

func TestTemplateMatcher_CopiesTable(t *testing.T) {
	table := []Template{{Name: "a", Pattern: regexp.MustCompile(`^a$`), SQL: "SELECT 'a'"}}
	m := NewTemplateMatcher(table)

	table[0] = Template{Name: "b", Pattern: regexp.MustCompile(`^b$`), SQL: "SELECT 'b'"}

	assert.NotNil(t, m.Match("a"))
	assert.Nil(t, m.Match("b"))
}
