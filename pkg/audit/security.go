// Package audit provides security audit logging for SIEM consumption.
// It logs security-relevant events in structured JSON format for easy parsing
// and integration with security information and event management systems.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insights/pkg/logging"
	"github.com/ekaya-inc/ekaya-insights/pkg/middleware"
)

// SecurityEventType categorizes security-relevant events for filtering and alerting.
type SecurityEventType string

const (
	// EventSQLInjectionAttempt is logged when libinjection flags a clarification answer.
	EventSQLInjectionAttempt SecurityEventType = "sql_injection_attempt"
	// EventQueryRejected is logged when SQL fails the read-only guard.
	EventQueryRejected SecurityEventType = "query_rejected"
)

// maxAuditValueLength bounds user-supplied values copied into audit events.
const maxAuditValueLength = 200

// SecurityEvent represents an auditable security event with all relevant context
// for SIEM ingestion and analysis.
type SecurityEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType SecurityEventType `json:"event_type"`
	RequestID string            `json:"request_id,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	Details   any               `json:"details"`
	Severity  string            `json:"severity"` // info, warning, critical
}

// SQLInjectionDetails contains specifics of a flagged clarification answer.
type SQLInjectionDetails struct {
	AnswerKey   string `json:"answer_key"`
	AnswerValue string `json:"answer_value"`
	Fingerprint string `json:"fingerprint"` // libinjection fingerprint for pattern analysis
}

// QueryRejectedDetails describes SQL stopped by the read-only guard.
type QueryRejectedDetails struct {
	SQL       string `json:"sql"`
	Reason    string `json:"reason"`
	Generated bool   `json:"generated"` // true when a backend produced the SQL
}

// SecurityAuditor logs security events for SIEM consumption.
// Events are logged in structured JSON format with appropriate severity levels.
type SecurityAuditor struct {
	logger *zap.Logger
}

// NewSecurityAuditor creates a new security auditor with a dedicated logger namespace.
// The logger is automatically configured with "security_audit" namespace for easy
// filtering in SIEM systems.
func NewSecurityAuditor(logger *zap.Logger) *SecurityAuditor {
	return &SecurityAuditor{logger: logger.Named("security_audit")}
}

// LogInjectionAttempt records a clarification answer that libinjection flagged.
// This is logged at ERROR level with "critical" severity for immediate alerting.
// The request ID is taken from ctx when the request logger set one.
//
// Example usage:
//
//	auditor.LogInjectionAttempt(ctx, audit.SQLInjectionDetails{
//	    AnswerKey:   "region",
//	    AnswerValue: "'; DROP TABLE data--",
//	    Fingerprint: "s&1c",
//	})
func (a *SecurityAuditor) LogInjectionAttempt(ctx context.Context, details SQLInjectionDetails) {
	details.AnswerValue = logging.TruncateString(details.AnswerValue, maxAuditValueLength)
	requestID := middleware.RequestIDFromContext(ctx)

	event := SecurityEvent{
		Timestamp: time.Now().UTC(),
		EventType: EventSQLInjectionAttempt,
		RequestID: requestID,
		Details:   details,
		Severity:  "critical",
	}

	// Ignoring error as marshaling known types should never fail
	eventJSON, _ := json.Marshal(event)

	a.logger.Error("SQL injection attempt detected",
		zap.String("event_json", string(eventJSON)),
		zap.String("request_id", requestID),
		zap.String("answer_key", details.AnswerKey),
		zap.String("fingerprint", details.Fingerprint),
		zap.String("severity", "critical"),
	)
}

// LogQueryRejected records SQL that failed the read-only guard.
// Caller-supplied SQL is logged at WARN with "warning" severity since it is
// usually a user error; generated SQL is unexpected and logged at ERROR.
func (a *SecurityAuditor) LogQueryRejected(ctx context.Context, sessionID string, details QueryRejectedDetails) {
	details.SQL = logging.SanitizeQuery(details.SQL)
	requestID := middleware.RequestIDFromContext(ctx)

	severity := "warning"
	if details.Generated {
		severity = "critical"
	}

	event := SecurityEvent{
		Timestamp: time.Now().UTC(),
		EventType: EventQueryRejected,
		RequestID: requestID,
		SessionID: sessionID,
		Details:   details,
		Severity:  severity,
	}

	eventJSON, _ := json.Marshal(event)

	fields := []zap.Field{
		zap.String("event_json", string(eventJSON)),
		zap.String("request_id", requestID),
		zap.String("session_id", sessionID),
		zap.String("reason", details.Reason),
		zap.Bool("generated", details.Generated),
		zap.String("severity", severity),
	}
	if details.Generated {
		a.logger.Error("Generated SQL rejected", fields...)
		return
	}
	a.logger.Warn("Query rejected", fields...)
}
