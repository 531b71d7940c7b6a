package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSchemaDescriptor_Render(t *testing.T) {
	schema := SchemaDescriptor{
		{Name: "country", Type: "VARCHAR", Sample: "France"},
		{Name: "revenue", Type: "DOUBLE", Sample: 12.5},
		{Name: "notes", Type: "VARCHAR"},
	}

	expected := "- country (VARCHAR) e.g. France\n" +
		"- revenue (DOUBLE) e.g. 12.5\n" +
		"- notes (VARCHAR)"
	assert.Equal(t, expected, schema.Render())
}

func TestSchemaDescriptor_MentionsColumn(t *testing.T) {
	schema := SchemaDescriptor{{Name: "Revenue", Type: "DOUBLE"}}

	assert.True(t, schema.MentionsColumn("average revenue by country"))
	assert.False(t, schema.MentionsColumn("how many rows"))
	assert.False(t, SchemaDescriptor(nil).MentionsColumn("revenue"))
}

func TestSchemaDescriptor_ColumnNames(t *testing.T) {
	schema := SchemaDescriptor{{Name: "a"}, {Name: "b"}}
	assert.Equal(t, []string{"a", "b"}, schema.ColumnNames())
}

func TestGenerationResult_Outcomes(t *testing.T) {
	results := map[Outcome]GenerationResult{
		OutcomeExecutable:     Executable{SQL: "SELECT 1"},
		OutcomeClarification:  NeedsClarification{},
		OutcomeConversational: Conversational{},
		OutcomeFailed:         Failed{Reason: "boom"},
	}
	for want, result := range results {
		assert.Equal(t, want, result.Outcome())
	}
}
