package security

import (
	"log/slog"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultRetention is how long events are kept before Cleanup drops them.
	DefaultRetention = 30 * 24 * time.Hour
	// DefaultEventLimit applies when an EventQuery has no positive limit.
	DefaultEventLimit = 100

	dashboardSuspiciousIPs = 10
	dashboardRecentEvents  = 20
)

// Forwarder receives a copy of every logged event. Forward must not block.
type Forwarder interface {
	Forward(event Event)
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithLogger sets the logger used for the per-event warning line.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}

// WithRetention sets the Cleanup horizon.
func WithRetention(d time.Duration) Option {
	return func(r *Recorder) {
		if d > 0 {
			r.retention = d
		}
	}
}

// WithIDGenerator overrides event id generation.
func WithIDGenerator(gen func() string) Option {
	return func(r *Recorder) {
		if gen != nil {
			r.newID = gen
		}
	}
}

// WithForwarder forwards every logged event to f.
func WithForwarder(f Forwarder) Option {
	return func(r *Recorder) {
		if f != nil {
			r.forwarders = append(r.forwarders, f)
		}
	}
}

// Recorder is the in-memory, append-only security event log. It is safe
// for concurrent use.
type Recorder struct {
	logger     *slog.Logger
	now        func() time.Time
	newID      func() string
	retention  time.Duration
	forwarders []Forwarder

	mu         sync.RWMutex
	events     []Event
	metrics    Metrics
	suspicious map[string]struct{}
}

// NewRecorder constructs an empty Recorder.
func NewRecorder(opts ...Option) *Recorder {
	r := &Recorder{
		logger:     slog.Default(),
		now:        time.Now,
		newID:      newEventID,
		retention:  DefaultRetention,
		suspicious: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func newEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Retention returns the configured retention horizon.
func (r *Recorder) Retention() time.Duration {
	return r.retention
}

// Log appends an event and updates the counters. It never fails; problems
// in forwarding are logged and swallowed.
func (r *Recorder) Log(eventType EventType, info RequestInfo, severity Severity, details map[string]any) {
	if r == nil {
		return
	}
	now := r.now().UTC()
	event := Event{
		ID:        r.newID(),
		Type:      eventType,
		Timestamp: now,
		SourceIP:  info.SourceIP,
		UserAgent: info.UserAgent,
		UserID:    info.UserID,
		Endpoint:  info.Endpoint,
		Method:    info.Method,
		Severity:  severity,
		Details:   maps.Clone(details),
	}

	r.mu.Lock()
	r.events = append(r.events, event)
	r.metrics.TotalRequests++
	switch eventType {
	case EventAuthFailure:
		r.metrics.FailedAuthAttempts++
	case EventRateLimitExceeded:
		r.metrics.RateLimitHits++
	case EventSQLInjection:
		r.metrics.SQLInjectionAttempts++
	case EventXSS:
		r.metrics.XSSAttempts++
	case EventSuspiciousActivity:
		r.metrics.SuspiciousActivity++
	case EventBlockedRequest:
		r.metrics.BlockedRequests++
	}
	if severity.elevated() && info.SourceIP != "" {
		r.suspicious[info.SourceIP] = struct{}{}
	}
	r.metrics.LastUpdated = now
	r.mu.Unlock()

	r.logger.Warn("security_event",
		slog.String("event_id", event.ID),
		slog.String("type", string(event.Type)),
		slog.String("severity", string(event.Severity)),
		slog.String("ip", event.SourceIP),
		slog.String("user_id", event.UserID),
		slog.String("method", event.Method),
		slog.String("endpoint", event.Endpoint),
		slog.String("user_agent", event.UserAgent),
		slog.Any("details", event.Details),
	)

	for _, f := range r.forwarders {
		r.forward(f, cloneEvent(event))
	}
}

func (r *Recorder) forward(f Forwarder, event Event) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("security event forwarder panicked", slog.Any("panic", rec), slog.String("event_id", event.ID))
		}
	}()
	f.Forward(event)
}

// Metrics returns a snapshot of the counters.
func (r *Recorder) Metrics() Metrics {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.metricsLocked()
}

func (r *Recorder) metricsLocked() Metrics {
	m := r.metrics
	m.SuspiciousIPs = make([]string, 0, len(r.suspicious))
	for ip := range r.suspicious {
		m.SuspiciousIPs = append(m.SuspiciousIPs, ip)
	}
	sort.Strings(m.SuspiciousIPs)
	return m
}

// Events returns matching events newest first. Events logged with equal
// timestamps are returned most recently logged first.
func (r *Recorder) Events(q EventQuery) []Event {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultEventLimit
	}
	r.mu.RLock()
	out := make([]Event, 0, min(limit, len(r.events)))
	matched := make([]Event, 0, len(r.events))
	for i := len(r.events) - 1; i >= 0; i-- {
		e := r.events[i]
		if q.Severity != "" && e.Severity != q.Severity {
			continue
		}
		if q.Type != "" && e.Type != q.Type {
			continue
		}
		matched = append(matched, e)
	}
	r.mu.RUnlock()

	sortNewestFirst(matched)
	for _, e := range matched {
		if len(out) == limit {
			break
		}
		out = append(out, cloneEvent(e))
	}
	return out
}

// Dashboard aggregates the last 24h and 7d of activity.
func (r *Recorder) Dashboard() Dashboard {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := r.now().UTC()
	dayAgo := now.Add(-24 * time.Hour)
	weekAgo := now.Add(-7 * 24 * time.Hour)

	d := Dashboard{
		ByType:      make(map[EventType]int),
		BySeverity:  make(map[Severity]int),
		Metrics:     r.metricsLocked(),
		GeneratedAt: now,
	}
	recent := make([]Event, 0, len(r.events))
	for i := len(r.events) - 1; i >= 0; i-- {
		e := r.events[i]
		if !e.Timestamp.Before(weekAgo) {
			d.Last7d++
		}
		if !e.Timestamp.Before(dayAgo) {
			d.Last24h++
			d.ByType[e.Type]++
			d.BySeverity[e.Severity]++
		}
		recent = append(recent, e)
	}
	sortNewestFirst(recent)
	d.RecentEvents = make([]Event, 0, min(dashboardRecentEvents, len(recent)))
	for _, e := range recent[:min(dashboardRecentEvents, len(recent))] {
		d.RecentEvents = append(d.RecentEvents, cloneEvent(e))
	}
	d.SuspiciousIPs = slices.Clone(d.Metrics.SuspiciousIPs[:min(dashboardSuspiciousIPs, len(d.Metrics.SuspiciousIPs))])
	d.HealthScore = r.healthScoreLocked(now)
	return d
}

// HealthScore is a heuristic 0..100 summary of the last 24h: each event
// costs 1/5/15/30 points by severity, and a blocked-request ratio above
// 1%, 5% or 10% costs a further 5, 10 or 20.
func (r *Recorder) HealthScore() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.healthScoreLocked(r.now().UTC())
}

func (r *Recorder) healthScoreLocked(now time.Time) int {
	score := 100
	dayAgo := now.Add(-24 * time.Hour)
	for _, e := range r.events {
		if !e.Timestamp.Before(dayAgo) {
			score -= e.Severity.penalty()
		}
	}
	total := max(r.metrics.TotalRequests, 1)
	blockedRatio := float64(r.metrics.BlockedRequests) / float64(total) * 100
	switch {
	case blockedRatio > 10:
		score -= 20
	case blockedRatio > 5:
		score -= 10
	case blockedRatio > 1:
		score -= 5
	}
	return max(0, min(100, score))
}

// Cleanup drops events older than the retention horizon and returns how
// many were removed. Counters are not rewound.
func (r *Recorder) Cleanup() int {
	return r.CleanupBefore(r.now().UTC().Add(-r.retention))
}

// CleanupBefore drops events recorded before cutoff.
func (r *Recorder) CleanupBefore(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.events[:0]
	removed := 0
	for _, e := range r.events {
		if e.Timestamp.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	clear(r.events[len(kept):])
	r.events = kept
	return removed
}

// Len returns the number of stored events.
func (r *Recorder) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.events)
}

func sortNewestFirst(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.After(events[j].Timestamp)
	})
}

func cloneEvent(e Event) Event {
	e.Details = maps.Clone(e.Details)
	return e
}
