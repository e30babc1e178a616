package users

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ncompliance/ncompliance/internal/platform/httpx"
	"github.com/ncompliance/ncompliance/internal/rbac"
)

type memoryRepo struct {
	users  map[int64]User
	nextID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{users: map[int64]User{}}
}

func (m *memoryRepo) ListUsers(ctx context.Context, filters ListFilters) ([]User, int, error) {
	var out []User
	for _, u := range m.users {
		out = append(out, u)
	}
	return out, len(out), nil
}

func (m *memoryRepo) GetUser(ctx context.Context, id int64) (User, error) {
	u, ok := m.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (m *memoryRepo) CreateUser(ctx context.Context, u User) (User, error) {
	for _, existing := range m.users {
		if existing.Username == u.Username {
			return User{}, ErrDuplicateUsername
		}
	}
	m.nextID++
	u.ID = m.nextID
	m.users[u.ID] = u
	return u, nil
}

func (m *memoryRepo) UpdateUser(ctx context.Context, u User) error {
	current, ok := m.users[u.ID]
	if !ok {
		return ErrUserNotFound
	}
	if u.PasswordHash == "" {
		u.PasswordHash = current.PasswordHash
	}
	m.users[u.ID] = u
	return nil
}

func (m *memoryRepo) LoadActor(ctx context.Context, id int64) (rbac.Actor, error) {
	u, ok := m.users[id]
	if !ok {
		return rbac.Actor{}, ErrUserNotFound
	}
	return rbac.Actor{ID: u.ID, Username: u.Username, FullName: u.FullName(), Role: u.Role, IsActive: u.IsActive,
		IsSuperuser: u.IsSuperuser, DepartmentID: u.DepartmentID, DepartmentName: u.DepartmentName, CompanyID: u.CompanyID}, nil
}

func newTestService() (*Service, *memoryRepo) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	svc.cost = bcrypt.MinCost
	return svc, repo
}

var admin = rbac.Actor{ID: 100, Username: "admin", Role: rbac.RoleAdmin, IsActive: true}

func TestCreateUserHashesPassword(t *testing.T) {
	svc, repo := newTestService()
	created, err := svc.CreateUser(context.Background(), admin, CreateInput{
		Username:  "hong",
		Password:  "s3cretpass",
		FirstName: "길동",
		LastName:  "홍",
		Role:      "dept_manager",
	})
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleDeptManager, created.Role)
	assert.True(t, created.IsActive)
	assert.Equal(t, "홍길동", created.FullName())

	stored := repo.users[created.ID]
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("s3cretpass")))
}

func TestCreateUserRequiresAdmin(t *testing.T) {
	svc, _ := newTestService()
	manager := rbac.Actor{ID: 5, Role: rbac.RoleCompliance, IsActive: true}
	_, err := svc.CreateUser(context.Background(), manager, CreateInput{Username: "x", Password: "longenough", Role: "GENERAL"})
	require.ErrorIs(t, err, httpx.ErrForbidden)
}

func TestCreateUserValidation(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.CreateUser(context.Background(), admin, CreateInput{Username: "x", Password: "short", Role: "BOSS"})
	var verr *httpx.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "password")
	assert.Contains(t, verr.Fields, "role")
}

func TestUpdateUserCannotDeactivateSelf(t *testing.T) {
	svc, repo := newTestService()
	repo.users[admin.ID] = User{ID: admin.ID, Username: "admin", Role: rbac.RoleAdmin, IsActive: true}

	_, err := svc.UpdateUser(context.Background(), admin, admin.ID, UpdateInput{Role: "ADMIN", IsActive: false})
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestUpdateUserKeepsPasswordWhenBlank(t *testing.T) {
	svc, repo := newTestService()
	created, err := svc.CreateUser(context.Background(), admin, CreateInput{Username: "kim", Password: "originalpw", Role: "GENERAL"})
	require.NoError(t, err)

	updated, err := svc.UpdateUser(context.Background(), admin, created.ID, UpdateInput{Role: "COMPLIANCE", IsActive: true})
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleCompliance, updated.Role)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.users[created.ID].PasswordHash), []byte("originalpw")))
}

func TestUpdateProfileLeavesRoleAlone(t *testing.T) {
	svc, repo := newTestService()
	repo.users[7] = User{ID: 7, Username: "lee", Role: rbac.RoleGeneral, IsActive: true, PasswordHash: "x"}
	self := rbac.Actor{ID: 7, Role: rbac.RoleGeneral, IsActive: true}

	updated, err := svc.UpdateProfile(context.Background(), self, ProfileInput{Email: "lee@example.com", Phone: "010-0000-0000"})
	require.NoError(t, err)
	assert.Equal(t, "lee@example.com", updated.Email)
	assert.Equal(t, rbac.RoleGeneral, updated.Role)
	assert.Equal(t, "x", repo.users[7].PasswordHash)
}

func TestFullNameFallsBackToUsername(t *testing.T) {
	assert.Equal(t, "jdoe", User{Username: "jdoe"}.FullName())
	assert.Equal(t, "김철수", FullName("김", "철수", "kcs"))
}
