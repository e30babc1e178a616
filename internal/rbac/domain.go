// Package rbac holds the portal's roles, the acting principal, and the
// explicit (actor, action, resource) permission predicate.
package rbac

import "strings"

// Role is the coarse user classification stored on each account.
type Role string

const (
	RoleGeneral     Role = "GENERAL"
	RoleDeptManager Role = "DEPT_MANAGER"
	RoleCompliance  Role = "COMPLIANCE"
	RoleAdmin       Role = "ADMIN"
)

var roleLabels = map[Role]string{
	RoleGeneral:     "일반사용자",
	RoleDeptManager: "책임부서담당",
	RoleCompliance:  "준법지원인",
	RoleAdmin:       "시스템관리자",
}

// Roles lists every role in display order.
func Roles() []Role {
	return []Role{RoleGeneral, RoleDeptManager, RoleCompliance, RoleAdmin}
}

// ParseRole normalises raw input into a Role.
func ParseRole(raw string) (Role, bool) {
	r := Role(strings.ToUpper(strings.TrimSpace(raw)))
	_, ok := roleLabels[r]
	return r, ok
}

// Label returns the Korean display name.
func (r Role) Label() string {
	if l, ok := roleLabels[r]; ok {
		return l
	}
	return string(r)
}

// Actor is the authenticated user every predicate and service call receives
// explicitly. CompanyID is the effective company: the user's own, else the
// company of their department.
type Actor struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	FullName     string `json:"full_name"`
	Email        string `json:"email"`
	Role         Role   `json:"role"`
	IsSuperuser  bool   `json:"is_superuser"`
	IsActive     bool   `json:"is_active"`
	CompanyID    *int64 `json:"company_id,omitempty"`
	DepartmentID *int64 `json:"department_id,omitempty"`

	// DepartmentName is the name of DepartmentID, "" when unassigned.
	DepartmentName string `json:"department_name,omitempty"`
}

// IsAdmin reports superusers and ADMIN role holders.
func (a Actor) IsAdmin() bool {
	return a.IsSuperuser || a.Role == RoleAdmin
}

// Privileged reports actors that see the whole catalog.
func (a Actor) Privileged() bool {
	return a.IsAdmin() || a.Role == RoleCompliance
}

// CanManageRegulations reports roles allowed to author regulations.
func (a Actor) CanManageRegulations() bool {
	return a.Privileged() || a.Role == RoleDeptManager
}

// InDepartment reports whether the actor belongs to department id.
func (a Actor) InDepartment(id int64) bool {
	return a.DepartmentID != nil && *a.DepartmentID == id
}

// InCompany reports whether the actor's effective company is id.
func (a Actor) InCompany(id int64) bool {
	return a.CompanyID != nil && *a.CompanyID == id
}

// ScopedManager reports a DEPT_MANAGER with a department, whose listings are
// narrowed to their own regulations.
func (a Actor) ScopedManager() bool {
	return a.Role == RoleDeptManager && a.DepartmentID != nil && !a.IsSuperuser
}
