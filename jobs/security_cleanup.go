package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/tracechain/tracechain/internal/jobs"
	"github.com/tracechain/tracechain/internal/security"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// Purger removes persisted security events older than cutoff.
type Purger interface {
	Purge(ctx context.Context, cutoff time.Time) (int64, error)
}

// SecurityCleanupJob applies the event retention window. Sweep trims the
// in-process recorder; Handle purges the persisted store from the worker.
type SecurityCleanupJob struct {
	Recorder  *security.Recorder
	Purger    Purger
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	Retention time.Duration
	clock     func() time.Time
}

// NewSecurityCleanupJob initialises the cleanup handler. Either recorder or
// purger may be nil.
func NewSecurityCleanupJob(recorder *security.Recorder, purger Purger, logger *slog.Logger, metrics *jobmetrics.Metrics) *SecurityCleanupJob {
	retention := security.DefaultRetention
	if recorder != nil {
		retention = recorder.Retention()
	}
	return &SecurityCleanupJob{
		Recorder:  recorder,
		Purger:    purger,
		Logger:    logger,
		Metrics:   metrics,
		Retention: retention,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Sweep removes events older than the recorder's retention and returns how
// many were dropped.
func (j *SecurityCleanupJob) Sweep() int {
	if j == nil || j.Recorder == nil {
		return 0
	}
	return j.sweep(j.Recorder.Cleanup)
}

func (j *SecurityCleanupJob) sweep(cleanup func() int) int {
	if j.Recorder == nil {
		return 0
	}
	tracker := j.metrics().Track("security:sweep")
	removed := cleanup()
	j.metrics().AddRemoved("memory", int64(removed))
	_ = tracker.End(nil)
	if removed > 0 {
		j.logger().Info("expired security events removed",
			slog.Int("removed", removed),
			slog.Int("remaining", j.Recorder.Len()),
		)
	}
	return removed
}

// RunSweeper calls Sweep every interval until ctx is cancelled.
func (j *SecurityCleanupJob) RunSweeper(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return errors.New("security cleanup: sweep interval must be positive")
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			j.Sweep()
		}
	}
}

// Handle executes TaskSecurityCleanup.
func (j *SecurityCleanupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("security cleanup: handler not configured")
	}
	var payload SecurityCleanupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	retention := payload.Retention()
	if retention <= 0 {
		retention = j.Retention
	}
	if retention <= 0 {
		retention = security.DefaultRetention
	}

	tracker := j.metrics().Track(TaskSecurityCleanup)
	logger := j.logger().With(slog.Duration("retention", retention))
	start := j.now()
	cutoff := start.Add(-retention)

	j.sweep(func() int { return j.Recorder.CleanupBefore(cutoff) })
	if j.Purger == nil {
		return tracker.End(nil)
	}
	purged, err := j.Purger.Purge(ctx, cutoff)
	if err != nil {
		logger.Error("purge security events", slog.Any("error", err))
		return tracker.End(err)
	}
	j.metrics().AddRemoved("postgres", purged)
	logger.Info("completed security cleanup",
		slog.Int64("purged", purged),
		slog.Duration("duration", j.now().Sub(start)),
	)
	return tracker.End(nil)
}

func (j *SecurityCleanupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskSecurityCleanup))
	}
	return slog.Default().With(slog.String("job", TaskSecurityCleanup))
}

func (j *SecurityCleanupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *SecurityCleanupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
