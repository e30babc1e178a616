// Package reports flattens the catalog and the version ledger into fixed
// column tables and renders them as spreadsheets.
package reports

import (
	"fmt"
	"time"

	"github.com/ncompliance/ncompliance/internal/platform/httpx"

	"github.com/ncompliance/ncompliance/internal/regulations"
)

// Table is a rendered report: a header row followed by data rows in the
// report's stated sort order.
type Table struct {
	Sheet   string    `json:"sheet"`
	Headers []string  `json:"headers"`
	Widths  []float64 `json:"-"`
	Accent  string    `json:"-"`
	Rows    [][]any   `json:"rows"`

	// Stats holds named count maps served beside the rows as JSON.
	Stats map[string]map[string]int `json:"-"`
}

// CatalogFilters narrows the catalog report.
type CatalogFilters struct {
	Category     regulations.Category
	Status       regulations.Status
	DepartmentID *int64
}

// DepartmentCount is an active department with the number of regulations it
// is responsible for that the reader may see.
type DepartmentCount struct {
	ID          int64  `json:"id"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	Regulations int    `json:"regulation_count"`
}

// DepartmentReport ranks departments by regulation count. Selected and
// Regulations are set when a department was asked for.
type DepartmentReport struct {
	Departments []DepartmentCount `json:"departments"`
	Selected    *DepartmentCount  `json:"selected_department,omitempty"`
	Regulations *Table            `json:"regulations,omitempty"`
}

// HistoryFilters narrows the change history report. Since and Until bound
// created_at as a half-open interval.
type HistoryFilters struct {
	Since      *time.Time
	Until      *time.Time
	ChangeType regulations.ChangeType
}

// HistoryEntry is a ledger row joined with its regulation.
type HistoryEntry struct {
	regulations.Version
	Code  string
	Title string
}

// ErrDepartmentNotFound is returned when the department report is asked for
// an unknown or inactive department.
var ErrDepartmentNotFound = fmt.Errorf("department not found: %w", httpx.ErrNotFound)

const (
	accentBlue   = "2E75B6"
	accentOrange = "C65911"

	// DefaultExpiryDays is the look-ahead window of the expiry report.
	DefaultExpiryDays = 30
	reasonLimit       = 50
)

var (
	catalogHeaders = []string{"No.", "사규코드", "사규명", "분류", "상태", "의무준수", "적용범위", "책임부서", "현재버전", "시행일", "정기검토예정일"}
	catalogWidths  = []float64{6, 15, 40, 15, 10, 10, 12, 20, 10, 12, 15}

	historyHeaders = []string{"No.", "사규코드", "사규명", "버전", "변경유형", "변경사유", "작성자", "승인자", "승인일", "등록일"}
	historyWidths  = []float64{6, 15, 40, 10, 10, 50, 15, 15, 12, 18}

	departmentHeaders = []string{"No.", "부서코드", "부서명", "사규수"}
	departmentWidths  = []float64{6, 15, 30, 10}

	expiryHeaders = []string{"No.", "사규코드", "사규명", "분류", "책임부서", "정기검토예정일", "남은일수"}
	expiryWidths  = []float64{6, 15, 40, 15, 20, 15, 10}
)
