package audithttp

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/tracechain/tracechain/internal/auth"
	"github.com/tracechain/tracechain/internal/platform/httpx"
)

const rateLimit = 10
const rateWindow = time.Minute

// MountRoutes registers the audit timeline and CSV export endpoints. protect
// is applied to every route and is expected to enforce audit access.
func (h *Handler) MountRoutes(r chi.Router, protect func(http.Handler) http.Handler) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(rateLimit, rateWindow,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Error(w, r, http.StatusTooManyRequests, "Too many requests")
		}),
	)
	r.Group(func(gr chi.Router) {
		if protect != nil {
			gr.Use(protect)
		}
		gr.Get("/audit/records", h.handleTimeline)
		gr.With(limiter).Get("/audit/records.csv", h.handleExport)
	})
}

func rateLimitKey(r *http.Request) (string, error) {
	if principal, ok := auth.PrincipalFromContext(r.Context()); ok {
		if id := strings.TrimSpace(principal.ID); id != "" {
			return "user:" + id, nil
		}
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
