package reports

import (
	"context"
	"strings"
	"time"

	"github.com/ncompliance/ncompliance/internal/platform/httpx"
	"github.com/ncompliance/ncompliance/internal/rbac"
	"github.com/ncompliance/ncompliance/internal/regulations"
)

// Config carries the optional collaborators of Service.
type Config struct {
	Location *time.Location
	Now      func() time.Time
}

// Service assembles report tables. It never mutates state.
type Service struct {
	repo Repository
	loc  *time.Location
	now  func() time.Time
}

// NewService builds Service instance.
func NewService(repo Repository, cfg Config) *Service {
	s := &Service{repo: repo, loc: cfg.Location, now: cfg.Now}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// HistoryQuery is the raw history filter; dates are YYYY-MM-DD and both
// bounds are inclusive.
type HistoryQuery struct {
	From       string
	To         string
	ChangeType string
}

// Catalog returns the 사규 현황 table ordered by category then code.
func (s *Service) Catalog(ctx context.Context, actor rbac.Actor, f CatalogFilters) (Table, error) {
	if err := rbac.Authorize(actor, rbac.ActionReportExport, nil); err != nil {
		return Table{}, err
	}
	regs, err := s.repo.Catalog(ctx, actor, f)
	if err != nil {
		return Table{}, err
	}
	return CatalogTable(regs), nil
}

// History returns the 제개정 이력 table, newest first. A DEPT_MANAGER only
// sees the regulations they manage.
func (s *Service) History(ctx context.Context, actor rbac.Actor, q HistoryQuery) (Table, error) {
	if err := rbac.Authorize(actor, rbac.ActionReportExport, nil); err != nil {
		return Table{}, err
	}
	var f HistoryFilters
	if q.From != "" {
		day, err := time.ParseInLocation(time.DateOnly, strings.TrimSpace(q.From), s.loc)
		if err != nil {
			return Table{}, httpx.Invalid("start_date", "날짜 형식이 올바르지 않습니다 (YYYY-MM-DD).")
		}
		f.Since = &day
	}
	if q.To != "" {
		day, err := time.ParseInLocation(time.DateOnly, strings.TrimSpace(q.To), s.loc)
		if err != nil {
			return Table{}, httpx.Invalid("end_date", "날짜 형식이 올바르지 않습니다 (YYYY-MM-DD).")
		}
		until := day.AddDate(0, 0, 1)
		f.Until = &until
	}
	if q.ChangeType != "" {
		ct := regulations.ChangeType(strings.ToUpper(strings.TrimSpace(q.ChangeType)))
		if !ct.Valid() {
			return Table{}, httpx.Invalid("change_type", "허용되지 않는 변경유형입니다.")
		}
		f.ChangeType = ct
	}
	entries, err := s.repo.History(ctx, actor, f)
	if err != nil {
		return Table{}, err
	}
	return HistoryTable(entries, s.loc), nil
}

// Expiry returns active regulations whose review date falls within the next
// days days, soonest first.
func (s *Service) Expiry(ctx context.Context, actor rbac.Actor, days int) (Table, error) {
	if err := rbac.Authorize(actor, rbac.ActionReportExport, nil); err != nil {
		return Table{}, err
	}
	if days <= 0 {
		days = DefaultExpiryDays
	}
	days = min(days, 366)
	today := s.Today()
	regs, err := s.repo.Expiring(ctx, actor, today, today.AddDate(0, 0, days))
	if err != nil {
		return Table{}, err
	}
	return ExpiryTable(regs, today), nil
}

// Department ranks active departments by how many accessible regulations
// they are responsible for. With deptID set it also returns that
// department's regulations in catalog order.
func (s *Service) Department(ctx context.Context, actor rbac.Actor, deptID *int64) (DepartmentReport, error) {
	if err := rbac.Authorize(actor, rbac.ActionReportExport, nil); err != nil {
		return DepartmentReport{}, err
	}
	counts, err := s.repo.Departments(ctx, actor)
	if err != nil {
		return DepartmentReport{}, err
	}
	rep := DepartmentReport{Departments: counts}
	if rep.Departments == nil {
		rep.Departments = []DepartmentCount{}
	}
	if deptID == nil {
		return rep, nil
	}
	for i := range counts {
		if counts[i].ID == *deptID {
			rep.Selected = &counts[i]
			break
		}
	}
	if rep.Selected == nil {
		return DepartmentReport{}, ErrDepartmentNotFound
	}
	regs, err := s.repo.Catalog(ctx, actor, CatalogFilters{DepartmentID: deptID})
	if err != nil {
		return DepartmentReport{}, err
	}
	table := CatalogTable(regs)
	rep.Regulations = &table
	return rep, nil
}

// Today is midnight of the current day in the configured zone.
func (s *Service) Today() time.Time {
	now := s.now().In(s.loc)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
}

// Filename stamps a report base name with the local time.
func (s *Service) Filename(base, ext string) string {
	return base + "_" + s.now().In(s.loc).Format("20060102_150405") + "." + ext
}
