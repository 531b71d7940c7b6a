// Package logging redacts secrets and bounds the size of values before they
// reach structured logs.
package logging

import (
	"regexp"
)

const (
	// MaxQueryLogLength is the maximum length of a query or question to log
	MaxQueryLogLength = 100
	// RedactedText is the replacement text for sensitive data
	RedactedText = "[REDACTED]"
)

var (
	// Matches: password=xxx, pwd=xxx, pass=xxx (until next delimiter)
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// Pattern to match bearer tokens
	bearerPattern = regexp.MustCompile(`Bearer\s+[A-Za-z0-9\-_.]+`)

	// Pattern to match api_key=... style parameters
	apiKeyPattern = regexp.MustCompile(`(?i)(api[_-]?key|apikey|key)=[A-Za-z0-9\-_]{20,}`)

	// OpenAI (sk-..., sk-proj-...) and Anthropic (sk-ant-...) secret keys
	providerKeyPattern = regexp.MustCompile(`sk-[A-Za-z0-9\-_]{16,}`)

	// Anthropic header echoed in some error bodies
	headerKeyPattern = regexp.MustCompile(`(?i)(x-api-key:\s*)\S+`)

	// Pattern to match credentials embedded in URLs (user:pass@host format)
	urlCredentialsPattern = regexp.MustCompile(`://[^:/\s]+:[^@/\s]+@`)
)

// SanitizeError sanitizes error messages that might contain sensitive data.
// Use this before logging any error returned by a generation backend.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return sanitizeSecrets(err.Error())
}

// SanitizeQuery truncates and sanitizes a SQL query or question for logging.
func SanitizeQuery(query string) string {
	if query == "" {
		return ""
	}
	return sanitizeSecrets(TruncateString(query, MaxQueryLogLength))
}

func sanitizeSecrets(s string) string {
	s = passwordPattern.ReplaceAllString(s, "${1}="+RedactedText)
	s = bearerPattern.ReplaceAllString(s, "Bearer "+RedactedText)
	s = apiKeyPattern.ReplaceAllString(s, "${1}="+RedactedText)
	s = providerKeyPattern.ReplaceAllString(s, RedactedText)
	s = headerKeyPattern.ReplaceAllString(s, "${1}"+RedactedText)
	s = urlCredentialsPattern.ReplaceAllString(s, "://"+RedactedText+"@")
	return s
}

// TruncateString truncates a string to maxLen and adds ellipsis if needed
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
