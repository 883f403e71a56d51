package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/tracechain/tracechain/internal/platform/httpx"
)

// Verifier validates bearer tokens.
type Verifier interface {
	Verify(token string) (Principal, error)
}

// Middleware attaches the principal carried by an `Authorization: Bearer`
// header. Requests without a header pass through anonymously; a header that
// fails verification is rejected with 401.
func Middleware(tokens Verifier, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := strings.TrimSpace(r.Header.Get("Authorization"))
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}
			scheme, token, found := strings.Cut(header, " ")
			if !found || !strings.EqualFold(scheme, "Bearer") {
				httpx.Error(w, r, http.StatusUnauthorized, "Invalid authorization header")
				return
			}
			principal, err := tokens.Verify(token)
			if err != nil {
				logger.Debug("reject bearer token", slog.String("path", r.URL.Path), slog.Any("error", err))
				httpx.Error(w, r, http.StatusUnauthorized, "Invalid or expired token")
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), principal)))
		})
	}
}
