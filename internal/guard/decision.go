package guard

import (
	"context"
	"net/http"

	"github.com/tracechain/tracechain/internal/security"
)

// Decision is the outcome of a stage. The zero value denies.
type Decision struct {
	allow    bool
	Status   int
	Message  string
	Event    security.EventType
	Severity security.Severity
	Headers  http.Header
}

// Proceed lets the request continue.
func Proceed() Decision {
	return Decision{allow: true}
}

// Deny stops the chain with status and message.
func Deny(status int, message string) Decision {
	return Decision{Status: status, Message: message}
}

// Allowed reports whether the decision lets the request continue.
func (d Decision) Allowed() bool {
	return d.allow
}

// WithEvent overrides the security event recorded for a denial.
func (d Decision) WithEvent(eventType security.EventType, severity security.Severity) Decision {
	d.Event = eventType
	d.Severity = severity
	return d
}

// WithHeader adds an advisory response header.
func (d Decision) WithHeader(key, value string) Decision {
	if d.Headers == nil {
		d.Headers = make(http.Header)
	} else {
		d.Headers = d.Headers.Clone()
	}
	d.Headers.Add(key, value)
	return d
}

// normalized fills in the status, message and event for a denial.
func (d Decision) normalized() Decision {
	if d.allow {
		return d
	}
	if d.Status == 0 {
		d.Status = http.StatusForbidden
	}
	if d.Message == "" {
		d.Message = http.StatusText(d.Status)
	}
	if d.Event == "" {
		switch {
		case d.Status == http.StatusUnauthorized:
			d.Event, d.Severity = security.EventAuthFailure, security.SeverityMedium
		case d.Status >= http.StatusInternalServerError:
			// Internal faults stay below high so a datastore blip does not
			// mark the caller's address as suspicious.
			d.Event, d.Severity = security.EventSuspiciousActivity, security.SeverityMedium
		default:
			d.Event, d.Severity = security.EventUnauthorizedAccess, security.SeverityMedium
		}
	}
	if d.Severity == "" {
		d.Severity = security.SeverityMedium
	}
	return d
}

// Stage is one composable authorization check.
type Stage interface {
	Name() string
	Check(ctx context.Context, req *Request) Decision
}

// Finisher is implemented by stages that act after the downstream handler
// has written its response.
type Finisher interface {
	Finish(ctx context.Context, req *Request, status int)
}

type stageFunc struct {
	name  string
	check func(ctx context.Context, req *Request) Decision
}

func (s stageFunc) Name() string { return s.name }

func (s stageFunc) Check(ctx context.Context, req *Request) Decision {
	return s.check(ctx, req)
}

// StageFunc adapts a function into a Stage.
func StageFunc(name string, check func(ctx context.Context, req *Request) Decision) Stage {
	return stageFunc{name: name, check: check}
}
