package audit

import (
	"context"
	"fmt"
)

// Repository provides read access to stored audit records.
type Repository interface {
	ListRecords(ctx context.Context, params ListParams) ([]Record, error)
}

// Service coordinates audit timeline retrieval.
type Service struct {
	repo Repository
}

// NewService creates a new audit timeline service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Timeline loads one page of audit records.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 50 {
		pageSize = 50
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize
	rows, err := s.repo.ListRecords(ctx, ListParams{
		From:      filters.From,
		To:        filters.To,
		Actor:     filters.Actor,
		Resource:  filters.Resource,
		Operation: filters.Operation,
		Offset:    offset,
		Limit:     pageSize + 1,
	})
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	if rows == nil {
		rows = []Record{}
	}
	return Result{Rows: rows, Paging: paging}, nil
}

// Export loads every record matching the filters without paging.
func (s *Service) Export(ctx context.Context, filters TimelineFilters) ([]Record, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("audit: repository not configured")
	}
	return s.repo.ListRecords(ctx, ListParams{
		From:      filters.From,
		To:        filters.To,
		Actor:     filters.Actor,
		Resource:  filters.Resource,
		Operation: filters.Operation,
	})
}
