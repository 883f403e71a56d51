package guard

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/tracechain/tracechain/internal/rbac"
)

const (
	msgAuthRequired    = "Authentication required"
	msgForbidden       = "Insufficient permissions"
	msgMFARequired     = "Multi-factor authentication required"
	msgOwnershipFailed = "Ownership verification failed"
	msgNotOwner        = "Access denied: not the resource owner"
)

// AuthPresence denies requests without an authenticated principal.
func AuthPresence() Stage {
	return StageFunc("auth", func(_ context.Context, req *Request) Decision {
		if req.Principal == nil {
			return Deny(http.StatusUnauthorized, msgAuthRequired)
		}
		return Proceed()
	})
}

// RequirePermission denies principals whose role lacks permission.
func RequirePermission(permission rbac.Permission) Stage {
	return StageFunc("permission:"+string(permission), func(_ context.Context, req *Request) Decision {
		if req.Principal == nil {
			return Deny(http.StatusUnauthorized, msgAuthRequired)
		}
		if !rbac.HasPermission(req.Principal.Role, permission) {
			return Deny(http.StatusForbidden, msgForbidden)
		}
		return Proceed()
	})
}

// RequireResource denies principals whose role may not touch resource.
func RequireResource(resource rbac.Resource) Stage {
	return StageFunc("resource:"+string(resource), func(_ context.Context, req *Request) Decision {
		if req.Principal == nil {
			return Deny(http.StatusUnauthorized, msgAuthRequired)
		}
		if !rbac.CanAccessResource(req.Principal.Role, resource) {
			return Deny(http.StatusForbidden, msgForbidden)
		}
		return Proceed()
	})
}

// RequireResourcePermission denies unless the role may access resource
// and holds permission.
func RequireResourcePermission(resource rbac.Resource, permission rbac.Permission) Stage {
	name := fmt.Sprintf("resource_permission:%s:%s", resource, permission)
	return StageFunc(name, func(_ context.Context, req *Request) Decision {
		if req.Principal == nil {
			return Deny(http.StatusUnauthorized, msgAuthRequired)
		}
		if !rbac.HasResourcePermission(req.Principal.Role, resource, permission) {
			return Deny(http.StatusForbidden, msgForbidden)
		}
		return Proceed()
	})
}

// RequireRole denies principals whose role is not listed.
func RequireRole(roles ...rbac.Role) Stage {
	allowed := slices.Clone(roles)
	names := make([]string, len(allowed))
	for i, r := range allowed {
		names[i] = string(r)
	}
	return StageFunc("role:"+strings.Join(names, ","), func(_ context.Context, req *Request) Decision {
		if req.Principal == nil {
			return Deny(http.StatusUnauthorized, msgAuthRequired)
		}
		if !slices.Contains(allowed, req.Principal.Role) {
			return Deny(http.StatusForbidden, "Insufficient role")
		}
		return Proceed()
	})
}

// RequireMFA denies principals that enrolled MFA but have not completed it
// for this session.
func RequireMFA() Stage {
	return StageFunc("mfa", func(_ context.Context, req *Request) Decision {
		if req.Principal == nil {
			return Deny(http.StatusUnauthorized, msgAuthRequired)
		}
		if req.Principal.MFAEnabled && !req.Principal.MFAVerified {
			return Deny(http.StatusForbidden, msgMFARequired)
		}
		return Proceed()
	})
}

// OwnerResolver returns the id of the user owning the resource addressed by
// req.
type OwnerResolver func(ctx context.Context, req *Request) (string, error)

// Ownership lets admins through unconditionally and otherwise requires the
// principal to own the addressed resource. Resolver errors and panics deny
// with 500.
func Ownership(resolve OwnerResolver, logger *slog.Logger) Stage {
	if logger == nil {
		logger = slog.Default()
	}
	return StageFunc("ownership", func(ctx context.Context, req *Request) (decision Decision) {
		if req.Principal == nil {
			return Deny(http.StatusUnauthorized, msgAuthRequired)
		}
		if req.Principal.Role == rbac.RoleAdmin {
			return Proceed()
		}
		if resolve == nil {
			return Deny(http.StatusInternalServerError, msgOwnershipFailed)
		}
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("ownership resolver panicked", slog.Any("panic", rec), slog.String("path", req.Path))
				decision = Deny(http.StatusInternalServerError, msgOwnershipFailed)
			}
		}()
		ownerID, err := resolve(ctx, req)
		if err != nil {
			logger.Error("resolve resource owner", slog.Any("error", err), slog.String("path", req.Path))
			return Deny(http.StatusInternalServerError, msgOwnershipFailed)
		}
		if ownerID == "" || ownerID != req.Principal.ID {
			return Deny(http.StatusForbidden, msgNotOwner)
		}
		return Proceed()
	})
}

// RoleRateLimit always proceeds and advertises the role's request budget.
// Enforcement is left to the rate limiter.
func RoleRateLimit() Stage {
	return StageFunc("role_rate_limit", func(_ context.Context, req *Request) Decision {
		limit := rbac.AnonymousRateLimit
		if req.Principal != nil {
			limit = rbac.RateLimitFor(req.Principal.Role)
		}
		return Proceed().
			WithHeader("X-RateLimit-Limit", strconv.Itoa(limit)).
			WithHeader("X-RateLimit-Policy", fmt.Sprintf("%d;w=60", limit))
	})
}
