package rbac

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ncompliance/ncompliance/internal/platform/httpx"
)

type stubResource struct {
	dept    int64
	visible bool
}

func (s stubResource) ResponsibleDepartment() int64 { return s.dept }
func (s stubResource) VisibleTo(Actor) bool         { return s.visible }

func ptr(v int64) *int64 { return &v }

func TestDecideMatrix(t *testing.T) {
	admin := Actor{ID: 1, Role: RoleAdmin, IsActive: true}
	super := Actor{ID: 2, Role: RoleGeneral, IsSuperuser: true, IsActive: true}
	compliance := Actor{ID: 3, Role: RoleCompliance, IsActive: true}
	manager := Actor{ID: 4, Role: RoleDeptManager, IsActive: true, DepartmentID: ptr(10)}
	general := Actor{ID: 5, Role: RoleGeneral, IsActive: true, DepartmentID: ptr(10)}
	inactive := Actor{ID: 6, Role: RoleAdmin, IsActive: false}

	own := stubResource{dept: 10, visible: true}
	other := stubResource{dept: 20, visible: true}
	hidden := stubResource{dept: 20, visible: false}

	cases := []struct {
		name   string
		actor  Actor
		action Action
		res    Resource
		want   bool
	}{
		{"admin deletes", admin, ActionRegulationDelete, other, true},
		{"superuser manages codes", super, ActionCodeManage, nil, true},
		{"inactive admin denied", inactive, ActionRegulationView, nil, false},
		{"anonymous denied", Actor{IsActive: true}, ActionRegulationView, nil, false},
		{"compliance updates any", compliance, ActionRegulationUpdate, other, true},
		{"compliance approves", compliance, ActionVersionApprove, other, true},
		{"compliance cannot manage users", compliance, ActionUserManage, nil, false},
		{"compliance cannot broadcast", compliance, ActionNotifyBroadcast, nil, false},
		{"manager creates", manager, ActionRegulationCreate, nil, true},
		{"manager versions own dept", manager, ActionVersionCreate, own, true},
		{"manager blocked on other dept", manager, ActionRegulationUpdate, other, false},
		{"manager update without resource", manager, ActionRegulationUpdate, nil, false},
		{"manager cannot delete", manager, ActionRegulationDelete, own, false},
		{"manager cannot approve", manager, ActionVersionApprove, own, false},
		{"general cannot create", general, ActionRegulationCreate, nil, false},
		{"general cannot version own dept", general, ActionVersionCreate, own, false},
		{"general exports", general, ActionReportExport, nil, true},
		{"general views visible", general, ActionRegulationView, other, true},
		{"general blocked on hidden", general, ActionRegulationView, hidden, false},
		{"unknown action", general, Action("bogus"), nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := Decide(tc.actor, tc.action, tc.res)
			require.Equal(t, tc.want, d.Allowed, d.Reason)
			if !tc.want {
				require.NotEmpty(t, d.Reason)
				require.True(t, errors.Is(d.Err(), httpx.ErrForbidden))
			} else {
				require.NoError(t, d.Err())
			}
		})
	}
}

func TestParseRole(t *testing.T) {
	r, ok := ParseRole(" dept_manager ")
	require.True(t, ok)
	require.Equal(t, RoleDeptManager, r)
	require.Equal(t, "책임부서담당", r.Label())

	_, ok = ParseRole("root")
	require.False(t, ok)
}

func TestActorPredicates(t *testing.T) {
	a := Actor{Role: RoleDeptManager, DepartmentID: ptr(3), CompanyID: ptr(9)}
	require.True(t, a.CanManageRegulations())
	require.False(t, a.Privileged())
	require.True(t, a.ScopedManager())
	require.True(t, a.InDepartment(3))
	require.False(t, a.InCompany(1))
}
