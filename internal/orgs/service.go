package orgs

import (
	"context"
	"errors"
	"strings"

	"github.com/ncompliance/ncompliance/internal/platform/httpx"
	"github.com/ncompliance/ncompliance/internal/shared"
)

// Service applies organisation rules on top of Repository.
type Service struct {
	repo Repository
}

// NewService constructs a Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) ListCompanies(ctx context.Context, filters ListFilters) ([]Company, int, error) {
	return s.repo.ListCompanies(ctx, filters)
}

func (s *Service) GetCompany(ctx context.Context, id int64) (Company, error) {
	if id <= 0 {
		return Company{}, ErrCompanyNotFound
	}
	return s.repo.GetCompany(ctx, id)
}

func (s *Service) CreateCompany(ctx context.Context, c Company) (Company, error) {
	c.Code = strings.TrimSpace(c.Code)
	c.Name = strings.TrimSpace(c.Name)
	if err := shared.ValidateStruct(c); err != nil {
		return Company{}, err
	}
	return s.repo.CreateCompany(ctx, c)
}

func (s *Service) UpdateCompany(ctx context.Context, id int64, c Company) error {
	if id <= 0 {
		return ErrCompanyNotFound
	}
	c.Code = strings.TrimSpace(c.Code)
	c.Name = strings.TrimSpace(c.Name)
	if err := shared.ValidateStruct(c); err != nil {
		return err
	}
	return s.repo.UpdateCompany(ctx, id, c)
}

// ListDepartments returns every department with FullPath populated.
func (s *Service) ListDepartments(ctx context.Context, activeOnly bool) ([]Department, error) {
	all, err := s.repo.ListDepartments(ctx)
	if err != nil {
		return nil, err
	}
	tree := NewTree(all)
	out := make([]Department, 0, len(all))
	for _, d := range all {
		if activeOnly && !d.IsActive {
			continue
		}
		d.FullPath = tree.FullPath(d.ID)
		out = append(out, d)
	}
	return out, nil
}

// GetDepartment loads one department with its path.
func (s *Service) GetDepartment(ctx context.Context, id int64) (Department, error) {
	all, err := s.repo.ListDepartments(ctx)
	if err != nil {
		return Department{}, err
	}
	tree := NewTree(all)
	d, ok := tree[id]
	if !ok {
		return Department{}, ErrDepartmentNotFound
	}
	d.FullPath = tree.FullPath(id)
	return d, nil
}

func (s *Service) CreateDepartment(ctx context.Context, d Department) (Department, error) {
	if err := s.validateDepartment(ctx, 0, &d); err != nil {
		return Department{}, err
	}
	created, err := s.repo.CreateDepartment(ctx, d)
	if err != nil {
		return Department{}, err
	}
	return s.GetDepartment(ctx, created.ID)
}

func (s *Service) UpdateDepartment(ctx context.Context, id int64, d Department) (Department, error) {
	if id <= 0 {
		return Department{}, ErrDepartmentNotFound
	}
	if err := s.validateDepartment(ctx, id, &d); err != nil {
		return Department{}, err
	}
	if err := s.repo.UpdateDepartment(ctx, id, d); err != nil {
		return Department{}, err
	}
	return s.GetDepartment(ctx, id)
}

func (s *Service) validateDepartment(ctx context.Context, id int64, d *Department) error {
	d.Code = strings.TrimSpace(d.Code)
	d.Name = strings.TrimSpace(d.Name)
	if err := shared.ValidateStruct(*d); err != nil {
		return err
	}
	if d.CompanyID != nil {
		if _, err := s.repo.GetCompany(ctx, *d.CompanyID); err != nil {
			if errors.Is(err, httpx.ErrNotFound) {
				return httpx.Invalid("company_id", "법인을 찾을 수 없습니다.")
			}
			return err
		}
	}
	all, err := s.repo.ListDepartments(ctx)
	if err != nil {
		return err
	}
	tree := NewTree(all)
	if id != 0 {
		if _, ok := tree[id]; !ok {
			return ErrDepartmentNotFound
		}
	}
	if err := tree.CheckParent(id, d.ParentID); err != nil {
		if errors.Is(err, ErrDepartmentNotFound) {
			return httpx.Invalid("parent_id", "상위 부서를 찾을 수 없습니다.")
		}
		return err
	}
	return nil
}
