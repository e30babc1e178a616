package shared

import "math"

// DefaultPerPage matches the list page size used across the portal.
const DefaultPerPage = 20

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// NewPagination computes pagination metadata.
func NewPagination(page, perPage, total int) Pagination {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if page <= 0 {
		page = 1
	}
	totalPages := int(math.Ceil(float64(total) / float64(perPage)))
	return Pagination{Page: page, PerPage: perPage, Total: total, TotalPages: totalPages}
}

// Normalize clamps page and size into sane bounds.
func Normalize(page, perPage int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if perPage > 200 {
		perPage = 200
	}
	return page, perPage
}

// Offset returns the row offset for page/perPage.
func Offset(page, perPage int) int {
	page, perPage = Normalize(page, perPage)
	return (page - 1) * perPage
}
