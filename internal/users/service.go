package users

import (
	"context"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/ncompliance/ncompliance/internal/platform/httpx"
	"github.com/ncompliance/ncompliance/internal/rbac"
	"github.com/ncompliance/ncompliance/internal/shared"
)

// Service handles user business logic.
type Service struct {
	repo  RepositoryPort
	audit shared.AuditRecorder
	cost  int
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, audit shared.AuditRecorder) *Service {
	if audit == nil {
		audit = shared.NopAudit{}
	}
	return &Service{repo: repo, audit: audit, cost: bcrypt.DefaultCost}
}

// LoadActor implements rbac.Directory.
func (s *Service) LoadActor(ctx context.Context, id int64) (rbac.Actor, error) {
	return s.repo.LoadActor(ctx, id)
}

// ListUsers returns a page of users.
func (s *Service) ListUsers(ctx context.Context, actor rbac.Actor, filters ListFilters) ([]User, int, error) {
	if err := rbac.Authorize(actor, rbac.ActionUserManage, nil); err != nil {
		return nil, 0, err
	}
	return s.repo.ListUsers(ctx, filters)
}

// GetUser returns one user. Users may always read themselves.
func (s *Service) GetUser(ctx context.Context, actor rbac.Actor, id int64) (User, error) {
	if actor.ID != id {
		if err := rbac.Authorize(actor, rbac.ActionUserManage, nil); err != nil {
			return User{}, err
		}
	}
	return s.repo.GetUser(ctx, id)
}

// CreateUser registers a new account with a bcrypt password hash.
func (s *Service) CreateUser(ctx context.Context, actor rbac.Actor, in CreateInput) (User, error) {
	if err := rbac.Authorize(actor, rbac.ActionUserManage, nil); err != nil {
		return User{}, err
	}
	in.Username = strings.TrimSpace(in.Username)
	in.Role = strings.ToUpper(strings.TrimSpace(in.Role))
	if in.Role == "" {
		in.Role = string(rbac.RoleGeneral)
	}
	if err := shared.ValidateStruct(in); err != nil {
		return User{}, err
	}
	hash, err := s.hash(in.Password)
	if err != nil {
		return User{}, err
	}
	role, _ := rbac.ParseRole(in.Role)
	created, err := s.repo.CreateUser(ctx, User{
		Username:     in.Username,
		Email:        strings.TrimSpace(in.Email),
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		EmployeeID:   strings.TrimSpace(in.EmployeeID),
		CompanyID:    in.CompanyID,
		DepartmentID: in.DepartmentID,
		Role:         role,
		Position:     strings.TrimSpace(in.Position),
		Phone:        strings.TrimSpace(in.Phone),
		IsSuperuser:  in.IsSuperuser && actor.IsSuperuser,
		IsActive:     true,
	})
	if err != nil {
		return User{}, err
	}
	s.record(ctx, actor, "create", created.ID, map[string]any{"username": created.Username, "role": created.Role})
	return created, nil
}

// UpdateUser applies an admin edit.
func (s *Service) UpdateUser(ctx context.Context, actor rbac.Actor, id int64, in UpdateInput) (User, error) {
	if err := rbac.Authorize(actor, rbac.ActionUserManage, nil); err != nil {
		return User{}, err
	}
	in.Role = strings.ToUpper(strings.TrimSpace(in.Role))
	if err := shared.ValidateStruct(in); err != nil {
		return User{}, err
	}
	if id == actor.ID && !in.IsActive {
		return User{}, httpx.Invalid("is_active", "본인 계정은 비활성화할 수 없습니다.")
	}
	current, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return User{}, err
	}
	hash := ""
	if in.Password != "" {
		if hash, err = s.hash(in.Password); err != nil {
			return User{}, err
		}
	}
	role, _ := rbac.ParseRole(in.Role)
	current.Email = strings.TrimSpace(in.Email)
	current.PasswordHash = hash
	current.FirstName = strings.TrimSpace(in.FirstName)
	current.LastName = strings.TrimSpace(in.LastName)
	current.EmployeeID = strings.TrimSpace(in.EmployeeID)
	current.CompanyID = in.CompanyID
	current.DepartmentID = in.DepartmentID
	current.Role = role
	current.Position = strings.TrimSpace(in.Position)
	current.Phone = strings.TrimSpace(in.Phone)
	if actor.IsSuperuser {
		current.IsSuperuser = in.IsSuperuser
	}
	current.IsActive = in.IsActive
	if err := s.repo.UpdateUser(ctx, current); err != nil {
		return User{}, err
	}
	s.record(ctx, actor, "update", id, map[string]any{"role": current.Role, "is_active": current.IsActive})
	return s.repo.GetUser(ctx, id)
}

// UpdateProfile lets an actor edit their own contact details and password.
func (s *Service) UpdateProfile(ctx context.Context, actor rbac.Actor, in ProfileInput) (User, error) {
	if err := shared.ValidateStruct(in); err != nil {
		return User{}, err
	}
	current, err := s.repo.GetUser(ctx, actor.ID)
	if err != nil {
		return User{}, err
	}
	hash := ""
	if in.Password != "" {
		if hash, err = s.hash(in.Password); err != nil {
			return User{}, err
		}
	}
	current.Email = strings.TrimSpace(in.Email)
	current.FirstName = strings.TrimSpace(in.FirstName)
	current.LastName = strings.TrimSpace(in.LastName)
	current.Position = strings.TrimSpace(in.Position)
	current.Phone = strings.TrimSpace(in.Phone)
	current.PasswordHash = hash
	if err := s.repo.UpdateUser(ctx, current); err != nil {
		return User{}, err
	}
	return s.repo.GetUser(ctx, actor.ID)
}

func (s *Service) hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (s *Service) record(ctx context.Context, actor rbac.Actor, action string, id int64, meta map[string]any) {
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.ID,
		Action:   action,
		Entity:   shared.AuditEntityUser,
		EntityID: shared.EntityID(id),
		Meta:     meta,
	})
}

var _ rbac.Directory = (*Service)(nil)
