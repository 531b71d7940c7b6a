package services

import (
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insights/pkg/jsonutil"
	"github.com/ekaya-inc/ekaya-insights/pkg/llm"
	"github.com/ekaya-inc/ekaya-insights/pkg/logging"
	"github.com/ekaya-inc/ekaya-insights/pkg/models"
)

// Keys every generation response must carry.
const (
	keySQL              = "sql"
	keyAskClarification = "ask_clarification"
	keyClarification    = "clarification"
	keyExplanation      = "explanation"
	keyError            = "error"
)

// clarificationPayload is the clarification object as backends send it.
// Fields are raw so that numbers or single strings are tolerated.
type clarificationPayload struct {
	Question json.RawMessage `json:"question"`
	ID       json.RawMessage `json:"id"`
	Kind     json.RawMessage `json:"kind"`
	Options  json.RawMessage `json:"options"`
}

// ParseGenerationResponse turns the free-form text of a generation backend
// into a GenerationResult. It never returns SQL that did not come from a
// well-formed response, and malformed output becomes Failed rather than an error.
// The SQL itself is not checked here; the dataset engine guards execution.
func ParseGenerationResponse(raw string, logger *zap.Logger) models.GenerationResult {
	fields, err := decodeResponseObject(raw)
	if err != nil {
		logger.Warn("Malformed generation response",
			zap.Error(err),
			zap.String("response", logging.TruncateString(raw, 500)))
		return models.Failed{Reason: "failed to parse generation response: " + err.Error()}
	}

	askClarification, ok := jsonutil.FlexibleBoolValue(fields[keyAskClarification])
	if !ok && string(fields[keyAskClarification]) != "null" {
		return models.Failed{Reason: fmt.Sprintf("failed to parse generation response: %q must be a boolean", keyAskClarification)}
	}

	sqlText, err := decodeSQL(fields[keySQL])
	if err != nil {
		return models.Failed{Reason: "failed to parse generation response: " + err.Error()}
	}
	explanation := jsonutil.FlexibleStringValue(fields[keyExplanation])

	if askClarification {
		if sqlText != "" {
			logger.Warn("Generation response asked for clarification and returned SQL; discarding SQL",
				zap.String("sql", logging.SanitizeQuery(sqlText)))
		}
		return parseClarification(fields[keyClarification], explanation)
	}

	if sqlText != "" {
		return models.Executable{SQL: sqlText, Explanation: explanation}
	}

	if backendErr := jsonutil.FlexibleStringValue(fields[keyError]); strings.TrimSpace(backendErr) != "" {
		return models.Failed{Reason: backendErr}
	}

	return models.Conversational{Explanation: explanation}
}

// decodeResponseObject locates the JSON object in raw and checks the required keys.
func decodeResponseObject(raw string) (map[string]json.RawMessage, error) {
	span, err := llm.LocateJSONObject(raw)
	if err != nil {
		return nil, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(span), &fields); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	for _, key := range []string{keySQL, keyAskClarification} {
		if _, ok := fields[key]; !ok {
			return nil, fmt.Errorf("missing required key %q", key)
		}
	}
	return fields, nil
}

// decodeSQL accepts a string or null. Whitespace-only SQL counts as absent;
// otherwise the text is returned unchanged.
func decodeSQL(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var sqlText string
	if err := json.Unmarshal(raw, &sqlText); err != nil {
		return "", fmt.Errorf("%q must be a string or null", keySQL)
	}
	if strings.TrimSpace(sqlText) == "" {
		return "", nil
	}
	return sqlText, nil
}

func parseClarification(raw json.RawMessage, explanation string) models.GenerationResult {
	if len(raw) == 0 || string(raw) == "null" {
		return models.Failed{Reason: "generation response asked for clarification without a clarification object"}
	}

	var payload clarificationPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return models.Failed{Reason: fmt.Sprintf("failed to parse generation response: invalid %q object: %v", keyClarification, err)}
	}

	question := strings.TrimSpace(jsonutil.FlexibleStringValue(payload.Question))
	if question == "" {
		return models.Failed{Reason: "generation response asked for clarification without a question"}
	}

	kind := models.ClarificationKind(jsonutil.FlexibleStringValue(payload.Kind))
	if kind == "" {
		kind = models.ClarificationFreeText
	}

	return models.NeedsClarification{
		Clarification: models.Clarification{
			Question: question,
			ID:       jsonutil.FlexibleStringValue(payload.ID),
			Kind:     kind,
			Options:  jsonutil.FlexibleStringSlice(payload.Options),
		},
		Explanation: explanation,
	}
}
