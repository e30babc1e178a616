package rbac

import (
	"fmt"

	"github.com/ncompliance/ncompliance/internal/platform/httpx"
)

// Action names an operation subject to authorization.
type Action string

const (
	ActionRegulationView   Action = "regulation.view"
	ActionRegulationCreate Action = "regulation.create"
	ActionRegulationUpdate Action = "regulation.update"
	ActionRegulationDelete Action = "regulation.delete"
	ActionVersionCreate    Action = "version.create"
	ActionVersionApprove   Action = "version.approve"
	ActionCodeManage       Action = "code.manage"
	ActionNotifyBroadcast  Action = "notification.broadcast"
	ActionReportExport     Action = "report.export"
	ActionUserManage       Action = "user.manage"
	ActionOrgManage        Action = "org.manage"
)

// Resource is anything owned by a responsible department.
type Resource interface {
	ResponsibleDepartment() int64
}

// Viewable resources decide their own visibility.
type Viewable interface {
	Resource
	VisibleTo(Actor) bool
}

// Decision is the outcome of Decide.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision             { return Decision{Allowed: true} }
func deny(reason string) Decision { return Decision{Reason: reason} }

// Err converts a denial into an error wrapping httpx.ErrForbidden.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return fmt.Errorf("%w: %s", httpx.ErrForbidden, d.Reason)
}

// Decide evaluates whether actor may perform action on res. res may be nil
// for actions that are not tied to a specific record.
func Decide(actor Actor, action Action, res Resource) Decision {
	if actor.ID == 0 {
		return deny("not authenticated")
	}
	if !actor.IsActive {
		return deny("inactive account")
	}
	if actor.IsAdmin() {
		return allow()
	}

	switch action {
	case ActionRegulationView:
		if res == nil {
			return allow()
		}
		if v, ok := res.(Viewable); ok && !v.VisibleTo(actor) {
			return deny("regulation not visible")
		}
		return allow()
	case ActionReportExport:
		return allow()
	case ActionRegulationCreate:
		if actor.CanManageRegulations() {
			return allow()
		}
		return deny("role cannot author regulations")
	case ActionRegulationUpdate, ActionVersionCreate:
		if actor.Role == RoleCompliance {
			return allow()
		}
		if actor.Role == RoleDeptManager {
			if res != nil && actor.InDepartment(res.ResponsibleDepartment()) {
				return allow()
			}
			return deny("not the responsible department")
		}
		return deny("role cannot modify regulations")
	case ActionRegulationDelete, ActionVersionApprove:
		if actor.Role == RoleCompliance {
			return allow()
		}
		return deny("compliance or admin only")
	case ActionCodeManage, ActionNotifyBroadcast, ActionUserManage, ActionOrgManage:
		return deny("admin only")
	}
	return deny("unknown action")
}

// Can is shorthand for Decide(...).Allowed.
func Can(actor Actor, action Action, res Resource) bool {
	return Decide(actor, action, res).Allowed
}

// Authorize returns nil or an ErrForbidden-wrapped error.
func Authorize(actor Actor, action Action, res Resource) error {
	return Decide(actor, action, res).Err()
}
