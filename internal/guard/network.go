package guard

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"net/netip"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/tracechain/tracechain/internal/security"
)

// APIKeyHeader carries the service API key.
const APIKeyHeader = "X-API-Key"

// APIKey requires a configured key in the X-API-Key header. With no keys
// configured every request is rejected.
func APIKey(keys []string) Stage {
	valid := make([][]byte, 0, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			valid = append(valid, []byte(k))
		}
	}
	return StageFunc("api_key", func(_ context.Context, req *Request) Decision {
		presented := strings.TrimSpace(req.Header.Get(APIKeyHeader))
		if presented == "" {
			return Deny(http.StatusUnauthorized, "API key required").
				WithEvent(security.EventInvalidAPIKey, security.SeverityMedium)
		}
		match := 0
		for _, k := range valid {
			match |= subtle.ConstantTimeCompare([]byte(presented), k)
		}
		if match != 1 {
			return Deny(http.StatusUnauthorized, "Invalid API key").
				WithEvent(security.EventInvalidAPIKey, security.SeverityMedium)
		}
		return Proceed()
	})
}

// IPList matches addresses against exact entries and CIDR prefixes.
type IPList struct {
	prefixes []netip.Prefix
}

// ParseIPList parses entries such as "10.0.0.1" or "10.0.0.0/8".
func ParseIPList(entries []string) (IPList, error) {
	var list IPList
	for _, raw := range entries {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				return IPList{}, fmt.Errorf("guard: parse ip prefix %q: %w", entry, err)
			}
			list.prefixes = append(list.prefixes, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return IPList{}, fmt.Errorf("guard: parse ip %q: %w", entry, err)
		}
		addr = addr.Unmap()
		list.prefixes = append(list.prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return list, nil
}

// Len returns the number of entries.
func (l IPList) Len() int { return len(l.prefixes) }

// Contains reports whether ip matches an entry. Unparseable input never
// matches.
func (l IPList) Contains(ip string) bool {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range l.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// IPAccess denies block-listed addresses, then, when the allow-list is not
// empty, any address outside it.
func IPAccess(allow, block IPList) Stage {
	return StageFunc("ip_access", func(_ context.Context, req *Request) Decision {
		if block.Contains(req.SourceIP) {
			return Deny(http.StatusForbidden, "Access denied from this IP address").
				WithEvent(security.EventBlockedRequest, security.SeverityHigh)
		}
		if allow.Len() > 0 && !allow.Contains(req.SourceIP) {
			return Deny(http.StatusForbidden, "Access denied from this IP address")
		}
		return Proceed()
	})
}

// HourRange is a half-open [Start, End) range of hours. Start > End wraps
// past midnight; Start == End matches no hour.
type HourRange struct {
	Start int
	End   int
}

// Contains reports whether hour falls in the range.
func (h HourRange) Contains(hour int) bool {
	switch {
	case h.Start < h.End:
		return hour >= h.Start && hour < h.End
	case h.Start > h.End:
		return hour >= h.Start || hour < h.End
	default:
		return false
	}
}

func (h HourRange) String() string {
	return fmt.Sprintf("%d-%d", h.Start, h.End)
}

// ParseHourRanges parses "22-6,9-17" style lists. Hours must be 0..23.
func ParseHourRanges(s string) ([]HourRange, error) {
	var ranges []HourRange
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		startStr, endStr, ok := strings.Cut(part, "-")
		if !ok {
			return nil, fmt.Errorf("guard: hour range %q: expected start-end", part)
		}
		start, err := parseHour(startStr)
		if err != nil {
			return nil, fmt.Errorf("guard: hour range %q: %w", part, err)
		}
		end, err := parseHour(endStr)
		if err != nil {
			return nil, fmt.Errorf("guard: hour range %q: %w", part, err)
		}
		ranges = append(ranges, HourRange{Start: start, End: end})
	}
	return ranges, nil
}

func parseHour(s string) (int, error) {
	h, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid hour %q", s)
	}
	if h < 0 || h > 23 {
		return 0, fmt.Errorf("hour %d out of range 0-23", h)
	}
	return h, nil
}

// TimeWindow allows requests whose arrival hour, in loc, falls in one of
// ranges. A nil loc uses the server's local zone.
func TimeWindow(loc *time.Location, ranges ...HourRange) Stage {
	if loc == nil {
		loc = time.Local
	}
	allowed := slices.Clone(ranges)
	return StageFunc("time_window", func(_ context.Context, req *Request) Decision {
		at := req.ReceivedAt
		if at.IsZero() {
			at = time.Now()
		}
		hour := at.In(loc).Hour()
		for _, r := range allowed {
			if r.Contains(hour) {
				return Proceed()
			}
		}
		return Deny(http.StatusForbidden, "Access not allowed at this time")
	})
}

// DefaultGeoHeader is the country header set by Cloudflare.
const DefaultGeoHeader = "CF-IPCountry"

// GeoOptions configures GeoAccess.
type GeoOptions struct {
	// Header carrying the ISO country code; DefaultGeoHeader when empty.
	Header string
	// DefaultCountry is assumed when the header is absent. Empty means no
	// signal, and the request proceeds.
	DefaultCountry string
}

// GeoAccess denies requests whose country is known and not in countries.
// An empty allow-list admits every country.
func GeoAccess(countries []string, opts GeoOptions) Stage {
	header := opts.Header
	if header == "" {
		header = DefaultGeoHeader
	}
	allowed := make(map[string]struct{}, len(countries))
	for _, c := range countries {
		if c = normalizeCountry(c); c != "" {
			allowed[c] = struct{}{}
		}
	}
	fallback := normalizeCountry(opts.DefaultCountry)
	return StageFunc("geo_access", func(_ context.Context, req *Request) Decision {
		country := normalizeCountry(req.Header.Get(header))
		// Cloudflare reports XX when the country is unknown.
		if country == "" || country == "XX" {
			country = fallback
		}
		if country == "" || len(allowed) == 0 {
			return Proceed()
		}
		if _, ok := allowed[country]; !ok {
			return Deny(http.StatusForbidden, "Access not allowed from this location")
		}
		return Proceed()
	})
}

func normalizeCountry(c string) string {
	return strings.ToUpper(strings.TrimSpace(c))
}
