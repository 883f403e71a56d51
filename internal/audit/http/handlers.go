package audithttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tracechain/tracechain/internal/audit"
	"github.com/tracechain/tracechain/internal/platform/httpx"
)

const (
	defaultPageSize   = 20
	maxPageSize       = 50
	defaultDateRange  = 7 * 24 * time.Hour
	maxDateRangeHours = 24 * 90
)

// TimelineService defines the business contract for timeline data.
type TimelineService interface {
	Timeline(ctx context.Context, filters audit.TimelineFilters) (audit.Result, error)
	Export(ctx context.Context, filters audit.TimelineFilters) ([]audit.Record, error)
}

// Handler serves audit timeline requests.
type Handler struct {
	logger  *slog.Logger
	service TimelineService
	now     func() time.Time
}

// NewHandler creates a new audit handler.
func NewHandler(logger *slog.Logger, service TimelineService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:  logger,
		service: service,
		now:     time.Now,
	}
}

func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		httpx.Error(w, r, http.StatusNotImplemented, "Audit timeline unavailable")
		return
	}
	filters, err := h.parseFilters(r)
	if err != nil {
		h.handleFilterError(w, r, err)
		return
	}
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.handleServerError(w, r, "load audit timeline", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		httpx.Error(w, r, http.StatusNotImplemented, "Audit timeline unavailable")
		return
	}
	filters, err := h.parseFilters(r)
	if err != nil {
		h.handleFilterError(w, r, err)
		return
	}
	rows, err := h.service.Export(r.Context(), filters)
	if err != nil {
		h.handleServerError(w, r, "export audit timeline", err)
		return
	}
	csvBytes, err := audit.WriteCSV(rows)
	if err != nil {
		h.handleServerError(w, r, "encode csv", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=\"audit-records.csv\"")
	if _, err := w.Write(csvBytes); err != nil {
		h.logger.Warn("write csv", slog.Any("error", err))
	}
}

func (h *Handler) parseFilters(r *http.Request) (audit.TimelineFilters, error) {
	now := h.now().UTC()
	toStr := strings.TrimSpace(r.URL.Query().Get("to"))
	if toStr == "" {
		toStr = now.Format("2006-01-02")
	}
	toTime, err := time.Parse("2006-01-02", toStr)
	if err != nil {
		return audit.TimelineFilters{}, validationError{field: "to"}
	}
	fromStr := strings.TrimSpace(r.URL.Query().Get("from"))
	if fromStr == "" {
		fromStr = toTime.Add(-defaultDateRange).Format("2006-01-02")
	}
	fromTime, err := time.Parse("2006-01-02", fromStr)
	if err != nil {
		return audit.TimelineFilters{}, validationError{field: "from"}
	}
	if fromTime.After(toTime) {
		return audit.TimelineFilters{}, validationError{field: "range"}
	}
	if toTime.Sub(fromTime) > maxDateRangeHours*time.Hour {
		return audit.TimelineFilters{}, validationError{field: "range"}
	}

	page := 1
	if v := strings.TrimSpace(r.URL.Query().Get("page")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return audit.TimelineFilters{}, validationError{field: "page"}
		}
		page = parsed
	}
	pageSize := defaultPageSize
	if v := strings.TrimSpace(r.URL.Query().Get("page_size")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return audit.TimelineFilters{}, validationError{field: "page_size"}
		}
		if parsed > maxPageSize {
			parsed = maxPageSize
		}
		pageSize = parsed
	}

	// The "to" day is inclusive.
	return audit.TimelineFilters{
		From:      fromTime,
		To:        toTime.Add(24 * time.Hour),
		Actor:     strings.TrimSpace(r.URL.Query().Get("actor")),
		Resource:  strings.TrimSpace(r.URL.Query().Get("resource")),
		Operation: strings.TrimSpace(r.URL.Query().Get("operation")),
		Page:      page,
		PageSize:  pageSize,
	}, nil
}

func (h *Handler) handleFilterError(w http.ResponseWriter, r *http.Request, err error) {
	var v validationError
	if errors.As(err, &v) {
		httpx.Error(w, r, http.StatusBadRequest, "Invalid filter: "+v.field)
		return
	}
	h.handleServerError(w, r, "validate filters", err)
}

func (h *Handler) handleServerError(w http.ResponseWriter, r *http.Request, message string, err error) {
	if h.logger != nil {
		h.logger.Error(message, slog.Any("error", err))
	}
	httpx.Error(w, r, http.StatusInternalServerError, "Internal server error")
}

type validationError struct {
	field string
}

func (validationError) Error() string {
	return "validation failed"
}
