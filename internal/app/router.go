package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	audithttp "github.com/tracechain/tracechain/internal/audit/http"
	"github.com/tracechain/tracechain/internal/auth"
	"github.com/tracechain/tracechain/internal/guard"
	"github.com/tracechain/tracechain/internal/observability"
	"github.com/tracechain/tracechain/internal/platform/httpx"
	"github.com/tracechain/tracechain/internal/products"
	"github.com/tracechain/tracechain/internal/rbac"
	"github.com/tracechain/tracechain/internal/security"
	securityhttp "github.com/tracechain/tracechain/internal/security/http"
	"github.com/tracechain/tracechain/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	Recorder        *security.Recorder
	Tokens          auth.Verifier
	Auditor         *guard.Auditor
	AuthHandler     *auth.Handler
	ProductsHandler *products.Handler
	SecurityHandler *securityhttp.Handler
	AuditHandler    *audithttp.Handler
	JobHandler      *jobs.Handler
	Metrics         *observability.Metrics
}

// NewRouter constructs the chi.Router with TraceChain defaults.
func NewRouter(params RouterParams) http.Handler {
	if params.Logger == nil {
		params.Logger = slog.Default()
	}
	if params.Config == nil {
		params.Config = &Config{}
	}
	if params.Auditor == nil {
		params.Auditor = guard.NewAuditor(params.Logger, nil)
	}
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:   params.Logger,
		Config:   params.Config,
		Recorder: params.Recorder,
		Tokens:   params.Tokens,
		Metrics:  params.Metrics,
	}) {
		r.Use(mw)
	}

	if !InTestMode() {
		r.Use(chimw.Logger)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Error(w, r, http.StatusNotFound, "Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.Error(w, r, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	base := guard.New(nil, guard.WithRecorder(params.Recorder), guard.WithLogger(params.Logger))
	signedIn := base.With(guard.AuthPresence())

	if params.AuthHandler != nil {
		r.Route("/auth", func(r chi.Router) {
			params.AuthHandler.MountRoutes(r, signedIn.Middleware)
		})
	}
	if params.ProductsHandler != nil {
		params.ProductsHandler.MountRoutes(r, base, params.Auditor)
	}
	if params.SecurityHandler != nil {
		view := signedIn.With(
			guard.RequireResourcePermission(rbac.ResourceSystem, rbac.PermAudit),
			guard.RequireMFA(),
		)
		manage := signedIn.With(
			guard.RequireRole(rbac.RoleAdmin),
			guard.RequireMFA(),
		)
		params.SecurityHandler.MountRoutes(r, view.Middleware, manage.Middleware)
	}
	if params.AuditHandler != nil {
		auditors := signedIn.With(guard.RequireResourcePermission(rbac.ResourceAudit, rbac.PermAudit))
		params.AuditHandler.MountRoutes(r, auditors.Middleware)
	}

	allow, block := params.Config.IPLists()
	if params.JobHandler != nil {
		internal := base.With(guard.APIKey(params.Config.APIKeys), guard.IPAccess(allow, block))
		r.Route("/internal", func(r chi.Router) {
			r.Use(internal.Middleware)
			params.JobHandler.MountRoutes(r)
		})
	}

	admin := adminChain(signedIn, params.Config)
	r.Route("/admin", func(r chi.Router) {
		r.Use(admin.Middleware)
		r.Get("/guards", func(w http.ResponseWriter, r *http.Request) {
			httpx.JSON(w, http.StatusOK, guardSummary(params.Config))
		})
	})

	return r
}

func adminChain(signedIn *guard.Chain, cfg *Config) *guard.Chain {
	stages := []guard.Stage{guard.RequireRole(rbac.RoleAdmin)}
	if hours := cfg.AdminHourRanges(); len(hours) > 0 {
		stages = append(stages, guard.TimeWindow(cfg.AdminLocation(), hours...))
	}
	stages = append(stages, guard.GeoAccess(cfg.AllowedCountries, guard.GeoOptions{
		Header:         cfg.GeoHeader,
		DefaultCountry: cfg.GeoDefaultCountry,
	}))
	return signedIn.With(stages...)
}

type guardSettings struct {
	AdminHours       []string `json:"adminHours"`
	AdminTimezone    string   `json:"adminTimezone"`
	AllowedCountries []string `json:"allowedCountries"`
	AllowedIPs       int      `json:"allowedIps"`
	BlockedIPs       int      `json:"blockedIps"`
	APIKeys          int      `json:"apiKeys"`
	RateLimit        int      `json:"rateLimitPerMinute"`
}

func guardSummary(cfg *Config) guardSettings {
	allow, block := cfg.IPLists()
	hours := make([]string, 0, len(cfg.AdminHourRanges()))
	for _, h := range cfg.AdminHourRanges() {
		hours = append(hours, h.String())
	}
	countries := cfg.AllowedCountries
	if countries == nil {
		countries = []string{}
	}
	return guardSettings{
		AdminHours:       hours,
		AdminTimezone:    cfg.AdminLocation().String(),
		AllowedCountries: countries,
		AllowedIPs:       allow.Len(),
		BlockedIPs:       block.Len(),
		APIKeys:          len(cfg.APIKeys),
		RateLimit:        cfg.RateLimitPerMinute,
	}
}
