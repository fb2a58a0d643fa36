package shared

// Paging bounds shared by list endpoints.
const (
	DefaultPageSize = 20
	MaxPageSize     = 50
)

// PageWindow is a clamped page request ready to translate into LIMIT/OFFSET.
type PageWindow struct {
	Page     int
	PageSize int
	Offset   int
}

// ClampPage normalises a raw page and page size into a usable window.
func ClampPage(page, pageSize int) PageWindow {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	if page <= 0 {
		page = 1
	}
	return PageWindow{Page: page, PageSize: pageSize, Offset: (page - 1) * pageSize}
}
