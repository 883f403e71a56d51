package security

import (
	"bytes"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/tracechain/tracechain/internal/platform/httpx"
)

// maxInspectedBody bounds how much of a request body is scanned.
const maxInspectedBody = 64 << 10

type inputRule struct {
	eventType EventType
	severity  Severity
	name      string
	pattern   *regexp.Regexp
}

var inputRules = []inputRule{
	{EventSQLInjection, SeverityCritical, "union_select", regexp.MustCompile(`(?i)\bunion\b[\s/*]+(all[\s/*]+)?select\b`)},
	{EventSQLInjection, SeverityCritical, "tautology", regexp.MustCompile(`(?i)['"]\s*(or|and)\s+['"]?\w+['"]?\s*=\s*['"]?\w+`)},
	{EventSQLInjection, SeverityCritical, "stacked_query", regexp.MustCompile(`(?i);\s*(drop|delete|insert|update|alter|truncate|exec)\b`)},
	// A closing quote followed by a comment that ends the value, as in admin'--.
	{EventSQLInjection, SeverityCritical, "comment_terminator", regexp.MustCompile(`'\s*\)*\s*(--|#|/\*)\s*("|&|$)`)},
	{EventSQLInjection, SeverityCritical, "time_based", regexp.MustCompile(`(?i)\b(sleep|pg_sleep|benchmark|waitfor\s+delay)\s*\(`)},
	{EventXSS, SeverityHigh, "script_tag", regexp.MustCompile(`(?i)<\s*/?\s*script\b`)},
	{EventXSS, SeverityHigh, "event_handler", regexp.MustCompile(`(?i)<[^>]+\bon[a-z]+\s*=`)},
	{EventXSS, SeverityHigh, "javascript_uri", regexp.MustCompile(`(?i)javascript\s*:`)},
	{EventXSS, SeverityHigh, "embedded_frame", regexp.MustCompile(`(?i)<\s*(iframe|object|embed|svg)\b`)},
}

// Finding is one rule match from Inspect.
type Finding struct {
	Type     EventType
	Severity Severity
	Rule     string
	Location string
}

// Inspect scans values for injection patterns and returns the first match
// per value.
func Inspect(location string, values ...string) []Finding {
	var findings []Finding
	for _, v := range values {
		if v == "" {
			continue
		}
		for _, rule := range inputRules {
			if rule.pattern.MatchString(v) {
				findings = append(findings, Finding{Type: rule.eventType, Severity: rule.severity, Rule: rule.name, Location: location})
				break
			}
		}
	}
	return findings
}

// Inspector rejects requests whose path, query string or body look like
// SQL injection or XSS attempts. Each finding is recorded, followed by a
// BLOCKED_REQUEST event, and the request is answered with 400.
func Inspector(recorder *Recorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			findings := inspectRequest(r)
			if len(findings) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			if recorder != nil {
				info := RequestInfoFromHTTP(r)
				for _, f := range findings {
					recorder.Log(f.Type, info, f.Severity, map[string]any{"rule": f.Rule, "location": f.Location})
				}
				recorder.Log(EventBlockedRequest, info, SeverityHigh, map[string]any{"reason": "malicious_input", "findings": len(findings)})
				MarkRecorded(r.Context())
			}
			httpx.Error(w, r, http.StatusBadRequest, "Malicious input detected")
		})
	}
}

func inspectRequest(r *http.Request) []Finding {
	var findings []Finding
	if r.URL != nil {
		if path, err := url.PathUnescape(r.URL.EscapedPath()); err == nil {
			findings = append(findings, Inspect("path", path)...)
		}
		for key, values := range r.URL.Query() {
			findings = append(findings, Inspect("query:"+key, values...)...)
		}
	}
	if body := readBody(r); body != "" {
		findings = append(findings, Inspect("body", body)...)
	}
	return findings
}

// readBody returns the bounded body prefix for JSON and form requests and
// restores r.Body so handlers can read it in full.
func readBody(r *http.Request) string {
	if r.Body == nil || r.Body == http.NoBody {
		return ""
	}
	ct := strings.ToLower(r.Header.Get("Content-Type"))
	if !strings.Contains(ct, "json") && !strings.Contains(ct, "x-www-form-urlencoded") {
		return ""
	}
	prefix, err := io.ReadAll(io.LimitReader(r.Body, maxInspectedBody))
	r.Body = readCloser{Reader: io.MultiReader(bytes.NewReader(prefix), r.Body), Closer: r.Body}
	if err != nil {
		return ""
	}
	text := string(prefix)
	if strings.Contains(ct, "x-www-form-urlencoded") {
		if decoded, err := url.QueryUnescape(text); err == nil {
			text = decoded
		}
	}
	return text
}

type readCloser struct {
	io.Reader
	io.Closer
}
