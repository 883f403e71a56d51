package securityhttp

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/tracechain/tracechain/internal/platform/httpx"
	"github.com/tracechain/tracechain/internal/security"
)

// Purger removes persisted events older than a cutoff.
type Purger interface {
	Purge(ctx context.Context, cutoff time.Time) (int64, error)
}

// SharedView exposes cluster-wide state kept outside the process.
type SharedView interface {
	SuspiciousIPs(ctx context.Context) ([]string, error)
}

// Handler serves the security monitoring endpoints.
type Handler struct {
	logger    *slog.Logger
	recorder  *security.Recorder
	purger    Purger
	shared    SharedView
	validator *validator.Validate
	now       func() time.Time
}

// NewHandler constructs a Handler. purger and shared may be nil.
func NewHandler(logger *slog.Logger, recorder *security.Recorder, purger Purger, shared SharedView) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		recorder:  recorder,
		purger:    purger,
		shared:    shared,
		validator: validator.New(),
		now:       time.Now,
	}
}

type eventsQuery struct {
	Limit    int    `validate:"omitempty,min=1,max=1000"`
	Severity string `validate:"omitempty,oneof=low medium high critical"`
	Type     string `validate:"omitempty,oneof=AUTH_FAILURE UNAUTHORIZED_ACCESS RATE_LIMIT_EXCEEDED SQL_INJECTION_ATTEMPT XSS_ATTEMPT SUSPICIOUS_ACTIVITY BLOCKED_REQUEST INVALID_API_KEY"`
}

func (h *Handler) handleMetrics(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, h.recorder.Metrics())
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := eventsQuery{
		Severity: strings.ToLower(strings.TrimSpace(r.URL.Query().Get("severity"))),
		Type:     strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("type"))),
	}
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			httpx.Error(w, r, http.StatusBadRequest, "Invalid limit")
			return
		}
		q.Limit = limit
	}
	if err := h.validator.Struct(q); err != nil {
		httpx.Error(w, r, http.StatusBadRequest, "Invalid event filter")
		return
	}
	events := h.recorder.Events(security.EventQuery{
		Limit:    q.Limit,
		Severity: security.Severity(q.Severity),
		Type:     security.EventType(q.Type),
	})
	httpx.JSON(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, h.recorder.Dashboard())
}

func (h *Handler) handleSuspiciousIPs(w http.ResponseWriter, r *http.Request) {
	ips := h.recorder.Metrics().SuspiciousIPs
	source := "local"
	if h.shared != nil {
		shared, err := h.shared.SuspiciousIPs(r.Context())
		if err != nil {
			h.logger.Warn("load shared suspicious ips", slog.Any("error", err))
		} else {
			ips = mergeSorted(ips, shared)
			source = "cluster"
		}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"suspiciousIPs": ips,
		"source":        source,
	})
}

type cleanupResult struct {
	Removed int   `json:"removed"`
	Purged  int64 `json:"purged"`
}

func (h *Handler) handleCleanup(w http.ResponseWriter, r *http.Request) {
	result := cleanupResult{Removed: h.recorder.Cleanup()}
	if h.purger != nil {
		purged, err := h.purger.Purge(r.Context(), h.now().UTC().Add(-h.recorder.Retention()))
		if err != nil {
			h.logger.Error("purge security events", slog.Any("error", err))
			httpx.Error(w, r, http.StatusInternalServerError, "Internal server error")
			return
		}
		result.Purged = purged
	}
	h.logger.Info("security events cleaned up", slog.Int("removed", result.Removed), slog.Int64("purged", result.Purged))
	httpx.JSON(w, http.StatusOK, result)
}

func mergeSorted(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, ip := range list {
			if _, ok := seen[ip]; ok {
				continue
			}
			seen[ip] = struct{}{}
			out = append(out, ip)
		}
	}
	slices.Sort(out)
	return out
}
