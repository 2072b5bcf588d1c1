package search

// Page size bounds.
const (
	DefaultPageSize = 12
	MaxPageSize     = 50
)

// Pagination describes one page of a result set.
type Pagination struct {
	CurrentPage   int  `json:"current_page"`
	TotalPages    int  `json:"total_pages"`
	PageSize      int  `json:"page_size"`
	TotalProducts int  `json:"total_products"`
	HasNext       bool `json:"has_next"`
	HasPrev       bool `json:"has_prev"`
}

// Paginate clamps page and pageSize against total matches.
//
//   - pageSize <= 0 means unset and becomes DefaultPageSize; above MaxPageSize
//     it is clamped down.
//   - page is clamped to [1, TotalPages]; TotalPages is at least 1 even when
//     total is zero, so a request past the end lands on the last page.
func Paginate(total, page, pageSize int) Pagination {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	totalPages := (total + pageSize - 1) / pageSize
	if totalPages < 1 {
		totalPages = 1
	}

	if page < 1 {
		page = 1
	}
	if page > totalPages {
		page = totalPages
	}

	return Pagination{
		CurrentPage:   page,
		TotalPages:    totalPages,
		PageSize:      pageSize,
		TotalProducts: total,
		HasNext:       page < totalPages,
		HasPrev:       page > 1,
	}
}

// Bounds returns the [start, end) slice bounds of the current page.
func (p Pagination) Bounds() (start, end int) {
	start = (p.CurrentPage - 1) * p.PageSize
	end = start + p.PageSize
	if start > p.TotalProducts {
		start = p.TotalProducts
	}
	if end > p.TotalProducts {
		end = p.TotalProducts
	}
	return start, end
}
