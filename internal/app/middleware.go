package app

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"github.com/tracechain/tracechain/internal/auth"
	"github.com/tracechain/tracechain/internal/guard"
	"github.com/tracechain/tracechain/internal/observability"
	"github.com/tracechain/tracechain/internal/platform/httpx"
	"github.com/tracechain/tracechain/internal/security"
)

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Logger   *slog.Logger
	Config   *Config
	Recorder *security.Recorder
	Tokens   auth.Verifier
	Metrics  *observability.Metrics
}

// MiddlewareStack installs the TraceChain middleware chain. Monitor wraps
// everything that can produce a 401, 403 or 429 so those responses become
// security events.
func MiddlewareStack(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	secureMiddleware := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		FeaturePolicy:         "none",
		ContentSecurityPolicy: "default-src 'self'",
		STSSeconds:            31536000,
		STSIncludeSubdomains:  true,
		SSLRedirect:           cfg.Config.IsProduction(),
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
		IsDevelopment:         !cfg.Config.IsProduction(),
	})

	timeout := 30 * time.Second
	limit := 100
	slow := security.DefaultSlowThreshold
	var origins []string
	if cfg.Config != nil {
		if cfg.Config.AppRequestTimeout > 0 {
			timeout = cfg.Config.AppRequestTimeout
		}
		if cfg.Config.RateLimitPerMinute > 0 {
			limit = cfg.Config.RateLimitPerMinute
		}
		if cfg.Config.SlowRequestThreshold != 0 {
			slow = cfg.Config.SlowRequestThreshold
		}
		origins = cfg.Config.CORSOrigins
	}

	middlewares := []func(http.Handler) http.Handler{
		trustedRealIP(cfg.Config.TrustedProxyList()),
		middleware.RequestID,
		middleware.Recoverer,
		func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if err := secureMiddleware.Process(w, r); err != nil {
					logger.Warn("secure headers blocked request", slog.Any("error", err))
					httpx.Error(w, r, http.StatusBadRequest, "Request blocked")
					return
				}
				next.ServeHTTP(w, r)
			})
		},
		corsMiddleware(origins),
	}
	if cfg.Metrics != nil {
		middlewares = append(middlewares, cfg.Metrics.Middleware)
	}
	middlewares = append(middlewares,
		security.Monitor(cfg.Recorder, security.MonitorOptions{SlowThreshold: slow}),
		middleware.Timeout(timeout),
		middleware.Compress(5),
	)
	if cfg.Tokens != nil {
		middlewares = append(middlewares, auth.Middleware(cfg.Tokens, logger))
	}
	middlewares = append(middlewares,
		RateLimiter(cfg.Recorder, limit, time.Minute),
		security.Inspector(cfg.Recorder),
	)
	return middlewares
}

// RateLimiter is the global per-IP limiter. Rejections are recorded as
// RATE_LIMIT_EXCEEDED and answered with the JSON error envelope.
func RateLimiter(recorder *security.Recorder, limit int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(limit, window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			recorder.Log(security.EventRateLimitExceeded, security.RequestInfoFromHTTP(r), security.SeverityMedium, map[string]any{
				"limit":  limit,
				"window": window.String(),
			})
			security.MarkRecorded(r.Context())
			httpx.Error(w, r, http.StatusTooManyRequests, "Too many requests, please try again later")
		}),
	)
}

func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-Id"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Policy", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}

// trustedRealIP applies chi's RealIP only when the direct peer is a trusted
// proxy. Forwarding headers from anyone else are ignored so clients cannot
// choose the address seen by IP lists, rate limits and security events.
func trustedRealIP(proxies guard.IPList) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if proxies.Len() == 0 {
			return next
		}
		rewrite := middleware.RealIP(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if proxies.Contains(security.ClientIP(r)) {
				rewrite.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
