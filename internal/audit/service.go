package audit

import (
	"context"
	"fmt"

	"github.com/198cad/orcish-dashboard/internal/shared"
)

const exportPageSize = 500

// QueryRepository provides windowed read access to the audit trail.
type QueryRepository interface {
	Window(ctx context.Context, f Filters, limit, offset int) ([]Log, error)
}

// Service coordinates audit trail reads.
type Service struct {
	repo QueryRepository
}

// NewService builds a query service.
func NewService(repo QueryRepository) *Service {
	return &Service{repo: repo}
}

// Query returns one page of audit rows, newest first. It fetches one row past
// the page boundary to detect whether a next page exists.
func (s *Service) Query(ctx context.Context, filters Filters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	win := shared.ClampPage(filters.Page, filters.PageSize)

	rows, err := s.repo.Window(ctx, filters, win.PageSize+1, win.Offset)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > win.PageSize
	if hasNext {
		rows = rows[:win.PageSize]
	}
	paging := PagingInfo{Page: win.Page, PageSize: win.PageSize, HasNext: hasNext}
	if win.Page > 1 {
		paging.PrevPage = win.Page - 1
	}
	if hasNext {
		paging.NextPage = win.Page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}

// Export streams every matching row in descending timestamp order.
func (s *Service) Export(ctx context.Context, filters Filters) ([]Log, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("audit: repository not configured")
	}
	var all []Log
	offset := 0
	for {
		rows, err := s.repo.Window(ctx, filters, exportPageSize, offset)
		if err != nil {
			return nil, err
		}
		all = append(all, rows...)
		if len(rows) < exportPageSize {
			return all, nil
		}
		offset += exportPageSize
	}
}
