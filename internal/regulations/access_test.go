package regulations

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/ncompliance/ncompliance/internal/platform/sqlq"
	"github.com/ncompliance/ncompliance/internal/rbac"
)

const accessFixtureSchema = `
CREATE TABLE regulations (
    id INTEGER PRIMARY KEY,
    responsible_dept_id INTEGER NOT NULL,
    access_level TEXT NOT NULL
);
CREATE TABLE regulation_allowed_companies (regulation_id INTEGER NOT NULL, company_id INTEGER NOT NULL);
CREATE TABLE regulation_allowed_departments (regulation_id INTEGER NOT NULL, department_id INTEGER NOT NULL);
CREATE TABLE regulation_allowed_users (regulation_id INTEGER NOT NULL, user_id INTEGER NOT NULL)`

func ptr(v int64) *int64 { return &v }

// accessFixtures enumerates every combination of access level, company list,
// responsible department and department/user allow-lists.
func accessFixtures() []Regulation {
	var regs []Regulation
	var id int64
	for _, level := range []AccessLevel{AccessAll, AccessDepartments, AccessUsers} {
		for _, companies := range [][]int64{nil, {1}, {1, 2}} {
			for _, dept := range []int64{10, 20} {
				for _, depts := range [][]int64{nil, {10}} {
					for _, users := range [][]int64{nil, {3}} {
						id++
						regs = append(regs, Regulation{
							ID:                 id,
							ResponsibleDeptID:  dept,
							AccessLevel:        level,
							AllowedCompanies:   companies,
							AllowedDepartments: depts,
							AllowedUsers:       users,
						})
					}
				}
			}
		}
	}
	return regs
}

func accessActors() []rbac.Actor {
	return []rbac.Actor{
		{ID: 1, Role: rbac.RoleAdmin, IsActive: true},
		{ID: 2, Role: rbac.RoleCompliance, IsActive: true},
		{ID: 3, Role: rbac.RoleGeneral, IsActive: true, CompanyID: ptr(1), DepartmentID: ptr(11)},
		{ID: 4, Role: rbac.RoleGeneral, IsActive: true, CompanyID: ptr(1), DepartmentID: ptr(10)},
		{ID: 5, Role: rbac.RoleGeneral, IsActive: true, CompanyID: ptr(2), DepartmentID: ptr(20)},
		{ID: 6, Role: rbac.RoleDeptManager, IsActive: true, CompanyID: ptr(1), DepartmentID: ptr(10)},
		{ID: 7, Role: rbac.RoleDeptManager, IsActive: true, CompanyID: ptr(2), DepartmentID: ptr(20)},
		{ID: 8, Role: rbac.RoleGeneral, IsActive: true},
		{ID: 9, Role: rbac.RoleGeneral, IsActive: true, DepartmentID: ptr(10)},
		{ID: 10, Role: rbac.RoleDeptManager, IsActive: true, CompanyID: ptr(1)},
		{ID: 11, Role: rbac.RoleGeneral, IsSuperuser: true, IsActive: true},
		{ID: 12, Role: rbac.RoleGeneral, IsActive: true, CompanyID: ptr(1)},
	}
}

func loadAccessFixtures(t *testing.T, regs []Regulation) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	for _, stmt := range strings.Split(accessFixtureSchema, ";") {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
	for _, r := range regs {
		_, err := db.Exec(`INSERT INTO regulations (id, responsible_dept_id, access_level) VALUES (?, ?, ?)`,
			r.ID, r.ResponsibleDeptID, string(r.AccessLevel))
		require.NoError(t, err)
		for _, c := range r.AllowedCompanies {
			_, err := db.Exec(`INSERT INTO regulation_allowed_companies VALUES (?, ?)`, r.ID, c)
			require.NoError(t, err)
		}
		for _, d := range r.AllowedDepartments {
			_, err := db.Exec(`INSERT INTO regulation_allowed_departments VALUES (?, ?)`, r.ID, d)
			require.NoError(t, err)
		}
		for _, u := range r.AllowedUsers {
			_, err := db.Exec(`INSERT INTO regulation_allowed_users VALUES (?, ?)`, r.ID, u)
			require.NoError(t, err)
		}
	}
	return db
}

func TestAccessClauseMatchesCanAccess(t *testing.T) {
	regs := accessFixtures()
	db := loadAccessFixtures(t, regs)

	for _, actor := range accessActors() {
		t.Run(fmt.Sprintf("actor_%d_%s", actor.ID, actor.Role), func(t *testing.T) {
			args := sqlq.NewArgs(sqlq.Question)
			query := `SELECT r.id FROM regulations r WHERE ` + AccessClause(actor, args, "r") + ` ORDER BY r.id`
			rows, err := db.Query(query, args.Values()...)
			require.NoError(t, err)
			defer rows.Close()

			var fromSQL []int64
			for rows.Next() {
				var id int64
				require.NoError(t, rows.Scan(&id))
				fromSQL = append(fromSQL, id)
			}
			require.NoError(t, rows.Err())

			var inMemory []int64
			for _, r := range regs {
				if CanAccess(actor, r) {
					inMemory = append(inMemory, r.ID)
				}
			}
			sort.Slice(inMemory, func(i, j int) bool { return inMemory[i] < inMemory[j] })
			require.Equal(t, inMemory, fromSQL)
		})
	}
}

func TestCanAccessPriorityChain(t *testing.T) {
	base := Regulation{ResponsibleDeptID: 10, AllowedCompanies: []int64{1}}

	compliance := rbac.Actor{ID: 2, Role: rbac.RoleCompliance}
	require.True(t, CanAccess(compliance, Regulation{AccessLevel: AccessUsers}))

	outsider := rbac.Actor{ID: 5, Role: rbac.RoleGeneral, CompanyID: ptr(2), DepartmentID: ptr(10)}
	open := base
	open.AccessLevel = AccessAll
	require.False(t, CanAccess(outsider, open), "company gate runs before access level")

	noCompany := rbac.Actor{ID: 9, Role: rbac.RoleGeneral, DepartmentID: ptr(10)}
	require.False(t, CanAccess(noCompany, open))

	manager := rbac.Actor{ID: 6, Role: rbac.RoleDeptManager, CompanyID: ptr(1), DepartmentID: ptr(10)}
	restricted := base
	restricted.AccessLevel = AccessUsers
	require.True(t, CanAccess(manager, restricted), "responsible manager bypasses allow-lists")

	general := rbac.Actor{ID: 4, Role: rbac.RoleGeneral, CompanyID: ptr(1), DepartmentID: ptr(10)}
	require.False(t, CanAccess(general, restricted))
	restricted.AllowedUsers = []int64{4}
	require.True(t, CanAccess(general, restricted))

	byDept := base
	byDept.AccessLevel = AccessDepartments
	byDept.AllowedDepartments = []int64{10}
	require.True(t, CanAccess(general, byDept))
	require.False(t, CanAccess(rbac.Actor{ID: 3, CompanyID: ptr(1), DepartmentID: ptr(11)}, byDept))
}

func TestManagedBy(t *testing.T) {
	manager := rbac.Actor{ID: 6, Role: rbac.RoleDeptManager, FullName: "홍길동", DepartmentID: ptr(10)}
	require.True(t, ManagedBy(manager, Regulation{ResponsibleDeptID: 10}))
	require.True(t, ManagedBy(manager, Regulation{ResponsibleDeptID: 20, ManagerPrimary: "팀장 홍길동"}))
	require.False(t, ManagedBy(manager, Regulation{ResponsibleDeptID: 20, Manager: "김철수"}))
	require.True(t, ManagedBy(rbac.Actor{Role: rbac.RoleGeneral}, Regulation{ResponsibleDeptID: 20}))
}
