package security

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisPrefix  = "tracechain:security"
	defaultRecentLength = 500
	suspiciousIPTTL     = 7 * 24 * time.Hour
)

// RedisSink shares recent events and the suspicious-IP set across
// instances.
type RedisSink struct {
	client    redis.UniversalClient
	prefix    string
	maxRecent int64
}

// NewRedisSink constructs a RedisSink. An empty prefix uses the default.
func NewRedisSink(client redis.UniversalClient, prefix string) *RedisSink {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisSink{client: client, prefix: prefix, maxRecent: defaultRecentLength}
}

func (s *RedisSink) recentKey() string     { return s.prefix + ":events" }
func (s *RedisSink) suspiciousKey() string { return s.prefix + ":suspicious_ips" }

// Publish pushes event onto the shared recent list and, for elevated
// severities, adds the source IP to the shared suspicious set.
func (s *RedisSink) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("security: encode event: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, s.recentKey(), payload)
	pipe.LTrim(ctx, s.recentKey(), 0, s.maxRecent-1)
	if event.Severity.elevated() && event.SourceIP != "" {
		pipe.SAdd(ctx, s.suspiciousKey(), event.SourceIP)
		pipe.Expire(ctx, s.suspiciousKey(), suspiciousIPTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("security: redis publish: %w", err)
	}
	return nil
}

// Recent returns up to limit events from the shared list, newest first.
func (s *RedisSink) Recent(ctx context.Context, limit int64) ([]Event, error) {
	if limit <= 0 {
		limit = DefaultEventLimit
	}
	raw, err := s.client.LRange(ctx, s.recentKey(), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("security: redis recent: %w", err)
	}
	events := make([]Event, 0, len(raw))
	for _, item := range raw {
		var e Event
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			continue
		}
		events = append(events, e)
	}
	return events, nil
}

// SuspiciousIPs returns the shared suspicious set, sorted.
func (s *RedisSink) SuspiciousIPs(ctx context.Context) ([]string, error) {
	ips, err := s.client.SMembers(ctx, s.suspiciousKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("security: redis suspicious ips: %w", err)
	}
	sort.Strings(ips)
	return ips, nil
}

var _ Sink = (*RedisSink)(nil)
