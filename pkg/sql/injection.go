package sql

import (
	"fmt"
	"sort"

	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionCheckResult contains the result of an injection check on an answer value.
type InjectionCheckResult struct {
	IsSQLi      bool   // True if SQL injection pattern detected
	Fingerprint string // libinjection fingerprint of the detected pattern
	Key         string // Clarification id whose answer failed the check
	Value       string // The string that was checked
}

// CheckValueForInjection uses libinjection to detect SQL injection patterns in
// one clarification answer.
//
// Strings are checked directly and lists are checked element by element.
// Numbers, booleans and other types cannot carry an injection and return nil.
//
// Example:
//
//	result := CheckValueForInjection("date_column", "order_date")
//	// result == nil
//
//	result = CheckValueForInjection("region", "'; DROP TABLE users--")
//	// result.IsSQLi == true
//	// result.Key == "region"
func CheckValueForInjection(key string, value any) *InjectionCheckResult {
	switch v := value.(type) {
	case string:
		if isSQLi, fingerprint := libinjection.IsSQLi(v); isSQLi {
			return &InjectionCheckResult{
				IsSQLi:      true,
				Fingerprint: string(fingerprint),
				Key:         key,
				Value:       v,
			}
		}
	case []string:
		for i, item := range v {
			if result := CheckValueForInjection(fmt.Sprintf("%s[%d]", key, i), item); result != nil {
				return result
			}
		}
	case []any:
		for i, item := range v {
			if result := CheckValueForInjection(fmt.Sprintf("%s[%d]", key, i), item); result != nil {
				return result
			}
		}
	case map[string]any:
		if results := CheckClarificationAnswers(v); len(results) > 0 {
			nested := *results[0]
			nested.Key = key + "." + nested.Key
			return &nested
		}
	}
	return nil
}

// CheckClarificationAnswers validates every answer the caller sent back for
// earlier clarification questions. Answers are echoed into generation
// prompts, so an answer that looks like SQL is rejected before generation.
//
// Returns one result per failing key, ordered by key.
func CheckClarificationAnswers(answers map[string]any) []*InjectionCheckResult {
	keys := make([]string, 0, len(answers))
	for key := range answers {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var results []*InjectionCheckResult
	for _, key := range keys {
		if result := CheckValueForInjection(key, answers[key]); result != nil {
			results = append(results, result)
		}
	}
	return results
}
