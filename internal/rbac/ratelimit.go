package rbac

// AnonymousRateLimit applies to requests without a recognised role.
const AnonymousRateLimit = 30

var roleRateLimits = map[Role]int{
	RoleAdmin:        1000,
	RoleModerator:    500,
	RoleManufacturer: 300,
	RoleDistributor:  300,
	RoleRetailer:     200,
	RoleAuditor:      200,
	RoleConsumer:     100,
	RoleViewer:       50,
}

// RateLimitFor returns the advisory requests-per-minute budget for role.
// Enforcement is left to the HTTP rate limiter.
func RateLimitFor(role Role) int {
	if limit, ok := roleRateLimits[role]; ok {
		return limit
	}
	return AnonymousRateLimit
}
