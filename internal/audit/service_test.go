package audit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/198cad/orcish-dashboard/internal/shared"
)

type stubQueryRepo struct {
	rows       []Log
	lastLimit  int
	lastOffset int
	calls      int
}

func (s *stubQueryRepo) Window(ctx context.Context, f Filters, limit, offset int) ([]Log, error) {
	s.calls++
	s.lastLimit = limit
	s.lastOffset = offset
	if offset >= len(s.rows) {
		return nil, nil
	}
	end := offset + limit
	if end > len(s.rows) {
		end = len(s.rows)
	}
	return s.rows[offset:end], nil
}

func mockLogs(n int) []Log {
	logs := make([]Log, 0, n)
	base := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		logs = append(logs, Log{
			ID:       int64(n - i),
			Action:   ActionUpdate,
			Entity:   "users",
			EntityID: fmt.Sprintf("record-%d", i),
			At:       base.Add(-time.Duration(i) * time.Hour),
		})
	}
	return logs
}

func TestQueryPaging(t *testing.T) {
	repo := &stubQueryRepo{rows: mockLogs(3)}
	svc := NewService(repo)

	result, err := svc.Query(context.Background(), Filters{Page: 1, PageSize: 2})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(result.Rows))
	}
	if !result.Paging.HasNext {
		t.Fatalf("expected hasNext true")
	}
	if result.Paging.NextPage != 2 {
		t.Fatalf("expected next page 2, got %d", result.Paging.NextPage)
	}
	if repo.lastLimit != 3 {
		t.Fatalf("expected limit 3 (page size + 1), got %d", repo.lastLimit)
	}
	if repo.lastOffset != 0 {
		t.Fatalf("expected offset 0, got %d", repo.lastOffset)
	}
}

func TestQueryClampsPageSize(t *testing.T) {
	repo := &stubQueryRepo{rows: mockLogs(1)}
	svc := NewService(repo)

	result, err := svc.Query(context.Background(), Filters{PageSize: 500})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if result.Paging.PageSize != shared.MaxPageSize {
		t.Fatalf("expected page size clamped to %d, got %d", shared.MaxPageSize, result.Paging.PageSize)
	}
	if result.Paging.HasNext {
		t.Fatalf("expected hasNext false")
	}
}

func TestQueryDefaultsPage(t *testing.T) {
	repo := &stubQueryRepo{rows: mockLogs(1)}
	svc := NewService(repo)

	result, err := svc.Query(context.Background(), Filters{Page: -4})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if result.Paging.Page != 1 {
		t.Fatalf("expected page 1, got %d", result.Paging.Page)
	}
	if result.Paging.PrevPage != 0 {
		t.Fatalf("expected no prev page, got %d", result.Paging.PrevPage)
	}
}

func TestExportDrainsAllPages(t *testing.T) {
	repo := &stubQueryRepo{rows: mockLogs(exportPageSize + 25)}
	svc := NewService(repo)

	rows, err := svc.Export(context.Background(), Filters{})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(rows) != exportPageSize+25 {
		t.Fatalf("expected %d rows, got %d", exportPageSize+25, len(rows))
	}
	if repo.calls != 2 {
		t.Fatalf("expected 2 window calls, got %d", repo.calls)
	}
}
