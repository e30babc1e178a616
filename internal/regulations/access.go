package regulations

import (
	"slices"
	"strings"

	"github.com/ncompliance/ncompliance/internal/platform/sqlq"
	"github.com/ncompliance/ncompliance/internal/rbac"
)

// CanAccess decides whether actor may see reg. The checks run in priority
// order and the first decisive one wins:
//
//  1. superusers, ADMIN and COMPLIANCE see everything;
//  2. the actor's effective company must be in reg.AllowedCompanies;
//  3. a DEPT_MANAGER of the responsible department is allowed;
//  4. access_level ALL allows, DEPARTMENTS and USERS consult the allow-lists.
//
// AccessClause must stay equivalent.
func CanAccess(actor rbac.Actor, reg Regulation) bool {
	if actor.Privileged() {
		return true
	}
	if actor.CompanyID == nil || !slices.Contains(reg.AllowedCompanies, *actor.CompanyID) {
		return false
	}
	if actor.Role == rbac.RoleDeptManager && actor.InDepartment(reg.ResponsibleDeptID) {
		return true
	}
	switch reg.AccessLevel {
	case AccessAll:
		return true
	case AccessDepartments:
		return actor.DepartmentID != nil && slices.Contains(reg.AllowedDepartments, *actor.DepartmentID)
	case AccessUsers:
		return slices.Contains(reg.AllowedUsers, actor.ID)
	}
	return false
}

// VisibleTo implements rbac.Viewable.
func (r Regulation) VisibleTo(actor rbac.Actor) bool {
	return CanAccess(actor, r)
}

// AccessClause renders CanAccess as a boolean SQL expression over the
// regulations row aliased as alias, binding values into args.
func AccessClause(actor rbac.Actor, args *sqlq.Args, alias string) string {
	if actor.Privileged() {
		return "1=1"
	}
	if actor.CompanyID == nil {
		return "1=0"
	}
	company := `EXISTS (SELECT 1 FROM regulation_allowed_companies ac WHERE ac.regulation_id = ` + alias +
		`.id AND ac.company_id = ` + args.Add(*actor.CompanyID) + `)`

	var alts []string
	if actor.Role == rbac.RoleDeptManager && actor.DepartmentID != nil {
		alts = append(alts, alias+`.responsible_dept_id = `+args.Add(*actor.DepartmentID))
	}
	alts = append(alts, alias+`.access_level = 'ALL'`)
	if actor.DepartmentID != nil {
		alts = append(alts, `(`+alias+`.access_level = 'DEPARTMENTS' AND EXISTS (SELECT 1 FROM regulation_allowed_departments ad WHERE ad.regulation_id = `+
			alias+`.id AND ad.department_id = `+args.Add(*actor.DepartmentID)+`))`)
	}
	alts = append(alts, `(`+alias+`.access_level = 'USERS' AND EXISTS (SELECT 1 FROM regulation_allowed_users au WHERE au.regulation_id = `+
		alias+`.id AND au.user_id = `+args.Add(actor.ID)+`))`)

	return company + ` AND (` + strings.Join(alts, ` OR `) + `)`
}

// ManagerClause narrows a DEPT_MANAGER listing to regulations of their
// department or naming them as manager. It returns "" for everyone else.
func ManagerClause(actor rbac.Actor, args *sqlq.Args, alias string) string {
	if !actor.ScopedManager() {
		return ""
	}
	clause := alias + `.responsible_dept_id = ` + args.Add(*actor.DepartmentID)
	if strings.TrimSpace(actor.FullName) == "" {
		return clause
	}
	name := sqlq.Like(strings.TrimSpace(actor.FullName))
	return clause + ` OR ` + alias + `.manager ILIKE ` + args.Add(name) +
		` OR ` + alias + `.manager_primary ILIKE ` + args.Add(name)
}

// ManagedBy is the in-memory form of ManagerClause.
func ManagedBy(actor rbac.Actor, reg Regulation) bool {
	if !actor.ScopedManager() {
		return true
	}
	if actor.InDepartment(reg.ResponsibleDeptID) {
		return true
	}
	name := strings.ToLower(strings.TrimSpace(actor.FullName))
	if name == "" {
		return false
	}
	return strings.Contains(strings.ToLower(reg.Manager), name) ||
		strings.Contains(strings.ToLower(reg.ManagerPrimary), name)
}
