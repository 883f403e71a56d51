package guard

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/tracechain/tracechain/internal/platform/httpx"
	"github.com/tracechain/tracechain/internal/security"
)

// Chain evaluates stages in order and stops at the first denial.
type Chain struct {
	stages   []Stage
	recorder *security.Recorder
	logger   *slog.Logger
}

// ChainOption configures a Chain.
type ChainOption func(*Chain)

// WithRecorder records a security event for every denial.
func WithRecorder(recorder *security.Recorder) ChainOption {
	return func(c *Chain) {
		c.recorder = recorder
	}
}

// WithLogger sets the chain logger.
func WithLogger(logger *slog.Logger) ChainOption {
	return func(c *Chain) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New builds a chain from stages.
func New(stages []Stage, opts ...ChainOption) *Chain {
	c := &Chain{stages: append([]Stage(nil), stages...), logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// With returns a new chain with extra stages appended. Options carry over.
func (c *Chain) With(stages ...Stage) *Chain {
	next := *c
	next.stages = append(append([]Stage(nil), c.stages...), stages...)
	return &next
}

// Evaluate runs the stages until one denies. It returns the final decision
// and the name of the stage that denied, or "" when every stage proceeded.
// Headers from proceeding stages are merged into the returned decision.
func (c *Chain) Evaluate(ctx context.Context, req *Request) (Decision, string) {
	result := Proceed()
	for _, stage := range c.stages {
		d := stage.Check(ctx, req)
		if !d.Allowed() {
			return d.normalized(), stage.Name()
		}
		for key, values := range d.Headers {
			for _, v := range values {
				result = result.WithHeader(key, v)
			}
		}
	}
	return result, ""
}

// Middleware guards next with the chain. Denials are answered with the
// JSON error envelope and recorded as security events.
func (c *Chain) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := NewRequest(r)
		decision, stage := c.Evaluate(r.Context(), req)
		if !decision.Allowed() {
			c.deny(w, r, req, decision, stage)
			return
		}
		for key, values := range decision.Headers {
			for _, v := range values {
				w.Header().Add(key, v)
			}
		}
		finishers := c.finishers()
		if len(finishers) == 0 {
			next.ServeHTTP(w, r)
			return
		}
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		for _, f := range finishers {
			f.Finish(r.Context(), req, status)
		}
	})
}

func (c *Chain) deny(w http.ResponseWriter, r *http.Request, req *Request, d Decision, stage string) {
	c.logger.Info("guard denied request",
		slog.String("stage", stage),
		slog.Int("status", d.Status),
		slog.String("method", req.Method),
		slog.String("path", req.Path),
		slog.String("ip", req.SourceIP),
	)
	if c.recorder != nil {
		c.recorder.Log(d.Event, req.requestInfo(), d.Severity, map[string]any{
			"stage":      stage,
			"statusCode": d.Status,
			"reason":     d.Message,
		})
		security.MarkRecorded(r.Context())
	}
	httpx.Error(w, r, d.Status, d.Message)
}

func (c *Chain) finishers() []Finisher {
	var out []Finisher
	for _, s := range c.stages {
		if f, ok := s.(Finisher); ok {
			out = append(out, f)
		}
	}
	return out
}
