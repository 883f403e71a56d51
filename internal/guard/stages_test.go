package guard

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracechain/tracechain/internal/auth"
	"github.com/tracechain/tracechain/internal/rbac"
	"github.com/tracechain/tracechain/internal/security"
)

func principal(id string, role rbac.Role) *auth.Principal {
	return &auth.Principal{ID: id, Email: id + "@example.com", Role: role}
}

func requestAs(p *auth.Principal) *Request {
	return &Request{Principal: p, Method: http.MethodGet, Path: "/products/1", Header: http.Header{}, Params: map[string]string{"id": "1"}}
}

func assertDenied(t *testing.T, d Decision, status int) {
	t.Helper()
	require.False(t, d.Allowed(), "expected denial")
	assert.Equal(t, status, d.Status)
}

func TestAuthPresence(t *testing.T) {
	ctx := context.Background()
	assertDenied(t, AuthPresence().Check(ctx, requestAs(nil)), http.StatusUnauthorized)
	assert.Equal(t, msgAuthRequired, AuthPresence().Check(ctx, requestAs(nil)).Message)
	assert.True(t, AuthPresence().Check(ctx, requestAs(principal("u", rbac.RoleViewer))).Allowed())
}

func TestPermissionAndResourceStages(t *testing.T) {
	ctx := context.Background()
	consumer := requestAs(principal("c", rbac.RoleConsumer))

	assert.True(t, RequirePermission(rbac.PermRead).Check(ctx, consumer).Allowed())
	assertDenied(t, RequirePermission(rbac.PermWrite).Check(ctx, consumer), http.StatusForbidden)

	assert.True(t, RequireResource(rbac.ResourceNFT).Check(ctx, consumer).Allowed())
	assertDenied(t, RequireResource(rbac.ResourceSystem).Check(ctx, consumer), http.StatusForbidden)

	assert.True(t, RequireResourcePermission(rbac.ResourceProduct, rbac.PermRead).Check(ctx, consumer).Allowed())
	assertDenied(t, RequireResourcePermission(rbac.ResourceSystem, rbac.PermRead).Check(ctx, consumer), http.StatusForbidden)

	for _, stage := range []Stage{RequirePermission(rbac.PermRead), RequireResource(rbac.ResourceProduct), RequireResourcePermission(rbac.ResourceProduct, rbac.PermRead), RequireRole(rbac.RoleAdmin), RequireMFA()} {
		assertDenied(t, stage.Check(ctx, requestAs(nil)), http.StatusUnauthorized)
	}

	unknown := requestAs(&auth.Principal{ID: "x", Role: rbac.Role("superuser")})
	assertDenied(t, RequireResourcePermission(rbac.ResourceProduct, rbac.PermRead).Check(ctx, unknown), http.StatusForbidden)
}

func TestRequireRole(t *testing.T) {
	ctx := context.Background()
	stage := RequireRole(rbac.RoleAdmin, rbac.RoleAuditor)
	assert.True(t, stage.Check(ctx, requestAs(principal("a", rbac.RoleAuditor))).Allowed())
	assertDenied(t, stage.Check(ctx, requestAs(principal("m", rbac.RoleModerator))), http.StatusForbidden)
	assert.Equal(t, "role:admin,auditor", stage.Name())
}

func TestRequireMFA(t *testing.T) {
	ctx := context.Background()
	p := principal("u", rbac.RoleAdmin)
	assert.True(t, RequireMFA().Check(ctx, requestAs(p)).Allowed(), "mfa not enrolled")

	p.MFAEnabled = true
	d := RequireMFA().Check(ctx, requestAs(p))
	assertDenied(t, d, http.StatusForbidden)
	assert.Equal(t, "Multi-factor authentication required", d.Message)

	p.MFAVerified = true
	assert.True(t, RequireMFA().Check(ctx, requestAs(p)).Allowed())
}

func TestOwnership(t *testing.T) {
	ctx := context.Background()
	owner := func(id string) OwnerResolver {
		return func(_ context.Context, req *Request) (string, error) {
			return id, nil
		}
	}

	assert.True(t, Ownership(owner("u-1"), nil).Check(ctx, requestAs(principal("u-1", rbac.RoleManufacturer))).Allowed())
	d := Ownership(owner("u-2"), nil).Check(ctx, requestAs(principal("u-1", rbac.RoleManufacturer)))
	assertDenied(t, d, http.StatusForbidden)

	failing := func(context.Context, *Request) (string, error) { return "", errors.New("db down") }
	d = Ownership(failing, nil).Check(ctx, requestAs(principal("u-1", rbac.RoleRetailer)))
	assertDenied(t, d, http.StatusInternalServerError)
	assert.Equal(t, "Ownership verification failed", d.Message)

	panicking := func(context.Context, *Request) (string, error) { panic("nil map") }
	d = Ownership(panicking, nil).Check(ctx, requestAs(principal("u-1", rbac.RoleRetailer)))
	assertDenied(t, d, http.StatusInternalServerError)

	assertDenied(t, Ownership(owner(""), nil).Check(ctx, requestAs(principal("", rbac.RoleViewer))), http.StatusForbidden)
}

func TestOwnershipAdminBypass(t *testing.T) {
	ctx := context.Background()
	called := false
	resolvers := []OwnerResolver{
		func(context.Context, *Request) (string, error) { called = true; return "someone-else", nil },
		func(context.Context, *Request) (string, error) { called = true; return "", errors.New("boom") },
		func(context.Context, *Request) (string, error) { called = true; panic("boom") },
		nil,
	}
	for _, resolve := range resolvers {
		d := Ownership(resolve, nil).Check(ctx, requestAs(principal("admin-1", rbac.RoleAdmin)))
		assert.True(t, d.Allowed())
	}
	assert.False(t, called, "resolver must not run for admins")
}

func TestAPIKey(t *testing.T) {
	ctx := context.Background()
	stage := APIKey([]string{"key-one", " key-two "})

	req := requestAs(nil)
	d := stage.Check(ctx, req)
	assertDenied(t, d, http.StatusUnauthorized)
	assert.Equal(t, "API key required", d.Message)
	assert.Equal(t, security.EventInvalidAPIKey, d.Event)

	req.Header.Set(APIKeyHeader, "key-three")
	d = stage.Check(ctx, req)
	assertDenied(t, d, http.StatusUnauthorized)
	assert.Equal(t, "Invalid API key", d.Message)

	req.Header.Set(APIKeyHeader, "key-two")
	assert.True(t, stage.Check(ctx, req).Allowed())

	req.Header.Set(APIKeyHeader, "anything")
	assertDenied(t, APIKey(nil).Check(ctx, req), http.StatusUnauthorized)
}

func TestIPAccess(t *testing.T) {
	ctx := context.Background()
	allow, err := ParseIPList([]string{"10.0.0.0/8", "192.168.1.10"})
	require.NoError(t, err)
	block, err := ParseIPList([]string{"10.0.0.66"})
	require.NoError(t, err)
	stage := IPAccess(allow, block)

	check := func(ip string) Decision {
		req := requestAs(nil)
		req.SourceIP = ip
		return stage.Check(ctx, req)
	}

	assert.True(t, check("10.1.2.3").Allowed())
	assert.True(t, check("192.168.1.10").Allowed())
	assert.True(t, check("::ffff:10.1.2.3").Allowed())
	assertDenied(t, check("192.168.1.11"), http.StatusForbidden)
	assertDenied(t, check("not-an-ip"), http.StatusForbidden)

	blocked := check("10.0.0.66")
	assertDenied(t, blocked, http.StatusForbidden)
	assert.Equal(t, security.EventBlockedRequest, blocked.Event)
	assert.Equal(t, security.SeverityHigh, blocked.Severity)

	open := IPAccess(IPList{}, block)
	req := requestAs(nil)
	req.SourceIP = "8.8.8.8"
	assert.True(t, open.Check(ctx, req).Allowed())

	_, err = ParseIPList([]string{"10.0.0.0/33"})
	assert.Error(t, err)
	_, err = ParseIPList([]string{"nope"})
	assert.Error(t, err)
}

func TestTimeWindowWrapsMidnight(t *testing.T) {
	ctx := context.Background()
	stage := TimeWindow(time.UTC, HourRange{Start: 22, End: 6})
	for hour := 0; hour < 24; hour++ {
		req := requestAs(nil)
		req.ReceivedAt = time.Date(2024, 5, 1, hour, 30, 0, 0, time.UTC)
		d := stage.Check(ctx, req)
		want := hour >= 22 || hour < 6
		assert.Equal(t, want, d.Allowed(), "hour %d", hour)
		if !want {
			assert.Equal(t, http.StatusForbidden, d.Status)
		}
	}
}

func TestTimeWindowRanges(t *testing.T) {
	ctx := context.Background()
	ranges, err := ParseHourRanges("9-17, 20-21")
	require.NoError(t, err)
	stage := TimeWindow(time.UTC, ranges...)

	at := func(hour int) *Request {
		req := requestAs(nil)
		req.ReceivedAt = time.Date(2024, 5, 1, hour, 0, 0, 0, time.UTC)
		return req
	}
	assert.True(t, stage.Check(ctx, at(9)).Allowed())
	assert.True(t, stage.Check(ctx, at(16)).Allowed())
	assert.False(t, stage.Check(ctx, at(17)).Allowed())
	assert.True(t, stage.Check(ctx, at(20)).Allowed())
	assert.False(t, stage.Check(ctx, at(21)).Allowed())

	empty := TimeWindow(time.UTC, HourRange{Start: 5, End: 5})
	for hour := 0; hour < 24; hour++ {
		assert.False(t, empty.Check(ctx, at(hour)).Allowed())
	}

	loc := time.FixedZone("UTC+3", 3*60*60)
	shifted := TimeWindow(loc, HourRange{Start: 9, End: 10})
	assert.True(t, shifted.Check(ctx, at(6)).Allowed())
}

func TestParseHourRangesErrors(t *testing.T) {
	for _, in := range []string{"9", "a-5", "9-24", "-1-5"} {
		_, err := ParseHourRanges(in)
		assert.Error(t, err, in)
	}
	ranges, err := ParseHourRanges("")
	require.NoError(t, err)
	assert.Empty(t, ranges)
}

func TestGeoAccess(t *testing.T) {
	ctx := context.Background()
	withCountry := func(header, country string) *Request {
		req := requestAs(nil)
		if country != "" {
			req.Header.Set(header, country)
		}
		return req
	}

	stage := GeoAccess([]string{"us", "DE"}, GeoOptions{})
	assert.True(t, stage.Check(ctx, withCountry(DefaultGeoHeader, "US")).Allowed())
	assert.True(t, stage.Check(ctx, withCountry(DefaultGeoHeader, "de")).Allowed())
	assertDenied(t, stage.Check(ctx, withCountry(DefaultGeoHeader, "FR")), http.StatusForbidden)
	assert.True(t, stage.Check(ctx, withCountry(DefaultGeoHeader, "")).Allowed(), "no signal proceeds")
	assert.True(t, stage.Check(ctx, withCountry(DefaultGeoHeader, "XX")).Allowed(), "unknown country proceeds")

	withDefault := GeoAccess([]string{"US"}, GeoOptions{Header: "X-Country", DefaultCountry: "FR"})
	assertDenied(t, withDefault.Check(ctx, withCountry("X-Country", "")), http.StatusForbidden)
	assert.True(t, withDefault.Check(ctx, withCountry("X-Country", "US")).Allowed())

	open := GeoAccess(nil, GeoOptions{})
	assert.True(t, open.Check(ctx, withCountry(DefaultGeoHeader, "KP")).Allowed())
}

func TestRoleRateLimit(t *testing.T) {
	ctx := context.Background()
	d := RoleRateLimit().Check(ctx, requestAs(principal("a", rbac.RoleAdmin)))
	require.True(t, d.Allowed())
	assert.Equal(t, "1000", d.Headers.Get("X-RateLimit-Limit"))
	assert.Equal(t, "1000;w=60", d.Headers.Get("X-RateLimit-Policy"))

	d = RoleRateLimit().Check(ctx, requestAs(nil))
	assert.Equal(t, "30", d.Headers.Get("X-RateLimit-Limit"))
}

func TestDecisionNormalization(t *testing.T) {
	var zero Decision
	n := zero.normalized()
	assert.False(t, n.Allowed())
	assert.Equal(t, http.StatusForbidden, n.Status)
	assert.Equal(t, security.EventUnauthorizedAccess, n.Event)

	n = Deny(http.StatusUnauthorized, "").normalized()
	assert.Equal(t, security.EventAuthFailure, n.Event)
	assert.Equal(t, "Unauthorized", n.Message)

	n = Deny(http.StatusInternalServerError, "x").normalized()
	assert.Equal(t, security.EventSuspiciousActivity, n.Event)
	assert.Equal(t, security.SeverityMedium, n.Severity)
}
