// Package security records security events observed while serving requests
// and derives metrics, dashboards and a health score from them.
package security

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/tracechain/tracechain/internal/auth"
)

// EventType classifies a security event.
type EventType string

const (
	EventAuthFailure        EventType = "AUTH_FAILURE"
	EventUnauthorizedAccess EventType = "UNAUTHORIZED_ACCESS"
	EventRateLimitExceeded  EventType = "RATE_LIMIT_EXCEEDED"
	EventSQLInjection       EventType = "SQL_INJECTION_ATTEMPT"
	EventXSS                EventType = "XSS_ATTEMPT"
	EventSuspiciousActivity EventType = "SUSPICIOUS_ACTIVITY"
	EventBlockedRequest     EventType = "BLOCKED_REQUEST"
	EventInvalidAPIKey      EventType = "INVALID_API_KEY"
)

var allEventTypes = []EventType{
	EventAuthFailure, EventUnauthorizedAccess, EventRateLimitExceeded, EventSQLInjection,
	EventXSS, EventSuspiciousActivity, EventBlockedRequest, EventInvalidAPIKey,
}

// EventTypes returns every known event type.
func EventTypes() []EventType {
	out := make([]EventType, len(allEventTypes))
	copy(out, allEventTypes)
	return out
}

// ParseEventType parses s case-insensitively.
func ParseEventType(s string) (EventType, bool) {
	candidate := EventType(strings.ToUpper(strings.TrimSpace(s)))
	for _, t := range allEventTypes {
		if t == candidate {
			return t, true
		}
	}
	return "", false
}

// Severity ranks a security event.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var allSeverities = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

// Severities returns every severity from lowest to highest.
func Severities() []Severity {
	out := make([]Severity, len(allSeverities))
	copy(out, allSeverities)
	return out
}

// ParseSeverity parses s case-insensitively.
func ParseSeverity(s string) (Severity, bool) {
	candidate := Severity(strings.ToLower(strings.TrimSpace(s)))
	for _, sev := range allSeverities {
		if sev == candidate {
			return sev, true
		}
	}
	return "", false
}

// penalty is the health-score cost of one event in the last 24h.
func (s Severity) penalty() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 5
	case SeverityHigh:
		return 15
	case SeverityCritical:
		return 30
	default:
		return 0
	}
}

func (s Severity) elevated() bool {
	return s == SeverityHigh || s == SeverityCritical
}

// RequestInfo is the request context captured with an event.
type RequestInfo struct {
	SourceIP  string
	UserAgent string
	UserID    string
	Endpoint  string
	Method    string
}

// RequestInfoFromHTTP captures the event context of r. The authenticated
// principal, if any, supplies the user id.
func RequestInfoFromHTTP(r *http.Request) RequestInfo {
	if r == nil {
		return RequestInfo{}
	}
	info := RequestInfo{
		SourceIP:  ClientIP(r),
		UserAgent: r.UserAgent(),
		Method:    r.Method,
	}
	if r.URL != nil {
		info.Endpoint = r.URL.Path
	}
	if principal, ok := auth.PrincipalFromContext(r.Context()); ok {
		info.UserID = principal.ID
	}
	return info
}

// ClientIP returns the remote address without its port. RemoteAddr is only
// rewritten from proxy headers for requests arriving through a trusted proxy.
func ClientIP(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return strings.Trim(addr, "[]")
}

// RequestID returns chi's request id for r, if any.
func RequestID(r *http.Request) string {
	if r == nil {
		return ""
	}
	return middleware.GetReqID(r.Context())
}

// Event is one recorded security occurrence.
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	SourceIP  string         `json:"sourceIp"`
	UserAgent string         `json:"userAgent"`
	UserID    string         `json:"userId,omitempty"`
	Endpoint  string         `json:"endpoint"`
	Method    string         `json:"method"`
	Severity  Severity       `json:"severity"`
	Details   map[string]any `json:"details,omitempty"`
	// Resolved is reserved for an operator acknowledgement workflow; nothing
	// sets it yet.
	Resolved bool `json:"resolved"`
}

// Metrics is a snapshot of the running security counters.
type Metrics struct {
	TotalRequests        int64     `json:"totalRequests"`
	BlockedRequests      int64     `json:"blockedRequests"`
	SuspiciousActivity   int64     `json:"suspiciousActivity"`
	FailedAuthAttempts   int64     `json:"failedAuthAttempts"`
	RateLimitHits        int64     `json:"rateLimitHits"`
	SQLInjectionAttempts int64     `json:"sqlInjectionAttempts"`
	XSSAttempts          int64     `json:"xssAttempts"`
	SuspiciousIPs        []string  `json:"suspiciousIPs"`
	LastUpdated          time.Time `json:"lastUpdated"`
}

// EventQuery filters Events. Zero values mean "no filter".
type EventQuery struct {
	Limit    int
	Severity Severity
	Type     EventType
}

// Dashboard aggregates recent activity for operators.
type Dashboard struct {
	Last24h       int               `json:"last24h"`
	Last7d        int               `json:"last7d"`
	ByType        map[EventType]int `json:"byType"`
	BySeverity    map[Severity]int  `json:"bySeverity"`
	SuspiciousIPs []string          `json:"suspiciousIPs"`
	RecentEvents  []Event           `json:"recentEvents"`
	Metrics       Metrics           `json:"metrics"`
	HealthScore   int               `json:"healthScore"`
	GeneratedAt   time.Time         `json:"generatedAt"`
}
