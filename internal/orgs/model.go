package orgs

import (
	"errors"
	"fmt"
	"time"

	"github.com/ncompliance/ncompliance/internal/platform/httpx"
)

var (
	ErrCompanyNotFound    = fmt.Errorf("company %w", httpx.ErrNotFound)
	ErrDepartmentNotFound = fmt.Errorf("department %w", httpx.ErrNotFound)
	ErrDuplicateCode      = fmt.Errorf("code already in use: %w", httpx.ErrDuplicate)
	// ErrDepartmentCycle rejects a parent assignment that would loop the tree.
	ErrDepartmentCycle = fmt.Errorf("department parent would create a cycle: %w", httpx.ErrValidation)
	errBrokenTree      = errors.New("department tree exceeds its own size")
)

// PathSeparator joins department names from root to leaf.
const PathSeparator = " > "

// Company is a legal entity (법인).
type Company struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code" validate:"required,max=20"`
	Name      string    `json:"name" validate:"required,max=100"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Department is a node in the organisation tree.
type Department struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code" validate:"required,max=20"`
	Name      string    `json:"name" validate:"required,max=100"`
	CompanyID *int64    `json:"company_id,omitempty"`
	ParentID  *int64    `json:"parent_id,omitempty"`
	IsActive  bool      `json:"is_active"`
	FullPath  string    `json:"full_path,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListFilters represents standard list page filters.
type ListFilters struct {
	Page     int
	Limit    int
	Search   string
	SortBy   string
	SortDir  string
	IsActive *bool
}
