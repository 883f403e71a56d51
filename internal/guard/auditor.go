package guard

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tracechain/tracechain/internal/audit"
	"github.com/tracechain/tracechain/internal/rbac"
)

const defaultAuditWriteTimeout = 5 * time.Second

// Auditor emits audit records for guarded operations to the log and,
// asynchronously, to a sink.
type Auditor struct {
	logger  *slog.Logger
	sink    audit.Sink
	timeout time.Duration
	now     func() time.Time
	wg      sync.WaitGroup
}

// NewAuditor constructs an Auditor. sink may be nil.
func NewAuditor(logger *slog.Logger, sink audit.Sink) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{logger: logger, sink: sink, timeout: defaultAuditWriteTimeout, now: time.Now}
}

// Wait blocks until pending sink writes have finished.
func (a *Auditor) Wait() {
	a.wg.Wait()
}

// Stage returns an always-proceeding stage that audits operation on
// resource once the response is complete.
func (a *Auditor) Stage(operation string, resource rbac.Resource) Stage {
	return &auditStage{auditor: a, operation: operation, resource: resource}
}

type auditStage struct {
	auditor   *Auditor
	operation string
	resource  rbac.Resource
}

func (s *auditStage) Name() string { return "audit:" + s.operation }

func (s *auditStage) Check(context.Context, *Request) Decision { return Proceed() }

func (s *auditStage) Finish(ctx context.Context, req *Request, status int) {
	a := s.auditor
	record := audit.Record{
		ID:        uuid.NewString(),
		Operation: s.operation,
		Resource:  string(s.resource),
		Method:    req.Method,
		URL:       req.URL,
		IP:        req.SourceIP,
		Status:    status,
		UserAgent: req.UserAgent,
		At:        a.now().UTC(),
	}
	if req.Principal != nil {
		record.UserID = req.Principal.ID
		record.Role = string(req.Principal.Role)
	}
	a.logger.Info("audit",
		slog.String("audit_id", record.ID),
		slog.String("user_id", record.UserID),
		slog.String("role", record.Role),
		slog.String("operation", record.Operation),
		slog.String("resource", record.Resource),
		slog.String("method", record.Method),
		slog.String("url", record.URL),
		slog.String("ip", record.IP),
		slog.Int("status", record.Status),
		slog.String("user_agent", record.UserAgent),
		slog.Time("timestamp", record.At),
	)
	if a.sink == nil {
		return
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
		defer cancel()
		if err := a.sink.Write(wctx, record); err != nil {
			a.logger.Error("write audit record", slog.String("audit_id", record.ID), slog.Any("error", err))
		}
	}()
}

var _ Finisher = (*auditStage)(nil)
