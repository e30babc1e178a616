package reports

import (
	"strconv"
	"time"

	"github.com/ncompliance/ncompliance/internal/regulations"
)

// CatalogTable flattens regulations, already sorted by category and code,
// into the 사규 현황 layout.
func CatalogTable(regs []regulations.Regulation) Table {
	t := Table{Sheet: "사규 현황", Headers: catalogHeaders, Widths: catalogWidths, Accent: accentBlue, Rows: make([][]any, 0, len(regs))}
	categories := make(map[string]int)
	statuses := make(map[string]int)
	for i, reg := range regs {
		categories[string(reg.Category)]++
		statuses[string(reg.Status)]++
		t.Rows = append(t.Rows, []any{
			i + 1,
			reg.Code,
			reg.Title,
			reg.Category.Label(),
			reg.Status.Label(),
			regulations.MandatoryLabel(reg.IsMandatory),
			reg.Scope.Label(),
			reg.ResponsibleDeptName,
			reg.CurrentVersion,
			formatDate(reg.EffectiveDate),
			formatDate(reg.ExpiryDate),
		})
	}
	t.Stats = map[string]map[string]int{"category_stats": categories, "status_stats": statuses}
	return t
}

// DepartmentTable flattens department counts in the order given.
func DepartmentTable(counts []DepartmentCount) Table {
	t := Table{Sheet: "부서별 현황", Headers: departmentHeaders, Widths: departmentWidths, Accent: accentBlue, Rows: make([][]any, 0, len(counts))}
	for i, c := range counts {
		t.Rows = append(t.Rows, []any{i + 1, c.Code, c.Name, c.Regulations})
	}
	return t
}

// HistoryTable flattens ledger entries, newest first, into the 제개정 이력
// layout. Timestamps are rendered in loc.
func HistoryTable(entries []HistoryEntry, loc *time.Location) Table {
	if loc == nil {
		loc = time.UTC
	}
	t := Table{Sheet: "제개정 이력", Headers: historyHeaders, Widths: historyWidths, Accent: accentBlue, Rows: make([][]any, 0, len(entries))}
	for i, e := range entries {
		approvedAt := ""
		if e.ApprovedAt != nil {
			approvedAt = e.ApprovedAt.In(loc).Format(time.DateOnly)
		}
		t.Rows = append(t.Rows, []any{
			i + 1,
			e.Code,
			e.Title,
			"v" + e.VersionNumber,
			e.ChangeType.Label(),
			truncate(e.ChangeReason, reasonLimit),
			e.CreatorName,
			e.ApproverName,
			approvedAt,
			e.CreatedAt.In(loc).Format("2006-01-02 15:04"),
		})
	}
	return t
}

// ExpiryTable flattens regulations sorted by expiry date into the 만료예정
// layout, counting remaining days from today.
func ExpiryTable(regs []regulations.Regulation, today time.Time) Table {
	t := Table{Sheet: "만료예정 사규", Headers: expiryHeaders, Widths: expiryWidths, Accent: accentOrange, Rows: make([][]any, 0, len(regs))}
	for i, reg := range regs {
		left := ""
		if reg.ExpiryDate != nil {
			left = strconv.Itoa(daysBetween(today, *reg.ExpiryDate)) + "일"
		}
		t.Rows = append(t.Rows, []any{
			i + 1,
			reg.Code,
			reg.Title,
			reg.Category.Label(),
			reg.ResponsibleDeptName,
			formatDate(reg.ExpiryDate),
			left,
		})
	}
	return t
}

func formatDate(d *time.Time) string {
	if d == nil {
		return ""
	}
	return d.Format(time.DateOnly)
}

// daysBetween counts calendar days from a to b, ignoring clock and zone.
func daysBetween(a, b time.Time) int {
	ca := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	cb := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(cb.Sub(ca).Hours() / 24)
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}
