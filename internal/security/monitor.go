package security

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// DefaultSlowThreshold is the response time above which Monitor records
// SUSPICIOUS_ACTIVITY.
const DefaultSlowThreshold = 5 * time.Second

// MonitorOptions tunes Monitor. A negative SlowThreshold disables the
// slow-response check.
type MonitorOptions struct {
	SlowThreshold time.Duration
	Now           func() time.Time
}

// Monitor records security events from completed responses: 401, 403 and
// 429 statuses and slow responses. Responses a guard chain already recorded
// are skipped.
func Monitor(recorder *Recorder, opts MonitorOptions) func(http.Handler) http.Handler {
	threshold := opts.SlowThreshold
	if threshold == 0 {
		threshold = DefaultSlowThreshold
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return func(next http.Handler) http.Handler {
		if recorder == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := now()
			r = r.WithContext(WithRecordedMarker(r.Context()))
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			elapsed := now().Sub(start)
			info := RequestInfoFromHTTP(r)
			details := map[string]any{
				"statusCode": status,
				"durationMs": elapsed.Milliseconds(),
			}
			if id := RequestID(r); id != "" {
				details["requestId"] = id
			}

			if !Recorded(r.Context()) {
				switch status {
				case http.StatusUnauthorized:
					recorder.Log(EventAuthFailure, info, SeverityMedium, details)
				case http.StatusForbidden:
					recorder.Log(EventUnauthorizedAccess, info, SeverityMedium, details)
				case http.StatusTooManyRequests:
					recorder.Log(EventRateLimitExceeded, info, SeverityMedium, details)
				}
			}
			if threshold > 0 && elapsed > threshold {
				slow := map[string]any{
					"reason":      "slow_response",
					"statusCode":  status,
					"durationMs":  elapsed.Milliseconds(),
					"thresholdMs": threshold.Milliseconds(),
				}
				recorder.Log(EventSuspiciousActivity, info, SeverityLow, slow)
			}
		})
	}
}
