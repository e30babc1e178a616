package orgs

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ncompliance/ncompliance/internal/platform/db"
	"github.com/ncompliance/ncompliance/internal/platform/sqlq"
)

// Repository persists companies and departments.
type Repository interface {
	ListCompanies(ctx context.Context, filters ListFilters) ([]Company, int, error)
	GetCompany(ctx context.Context, id int64) (Company, error)
	CreateCompany(ctx context.Context, c Company) (Company, error)
	UpdateCompany(ctx context.Context, id int64, c Company) error

	ListDepartments(ctx context.Context) ([]Department, error)
	GetDepartment(ctx context.Context, id int64) (Department, error)
	CreateDepartment(ctx context.Context, d Department) (Department, error)
	UpdateDepartment(ctx context.Context, id int64, d Department) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a pgx backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

// ListCompanies uses a dynamic query due to filter complexity.
func (r *repository) ListCompanies(ctx context.Context, filters ListFilters) ([]Company, int, error) {
	args := sqlq.NewArgs(sqlq.Dollar)
	var where sqlq.Where
	if filters.Search != "" {
		p := args.Add(sqlq.Like(filters.Search))
		where.And(`name ILIKE ` + p + ` OR code ILIKE ` + p)
	}
	if filters.IsActive != nil {
		where.And(`is_active = ` + args.Add(*filters.IsActive))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM companies WHERE `+where.String(), args.Values()...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT id, code, name, is_active, created_at, updated_at FROM companies WHERE ` + where.String() +
		` ORDER BY ` + sortOrder(filters.SortBy, filters.SortDir)
	if filters.Limit > 0 {
		page := filters.Page
		if page < 1 {
			page = 1
		}
		query += ` LIMIT ` + args.Add(filters.Limit) + ` OFFSET ` + args.Add((page-1)*filters.Limit)
	}

	rows, err := r.pool.Query(ctx, query, args.Values()...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var companies []Company
	for rows.Next() {
		var c Company
		if err := rows.Scan(&c.ID, &c.Code, &c.Name, &c.IsActive, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, 0, err
		}
		companies = append(companies, c)
	}
	return companies, total, rows.Err()
}

func (r *repository) GetCompany(ctx context.Context, id int64) (Company, error) {
	var c Company
	err := r.pool.QueryRow(ctx, `SELECT id, code, name, is_active, created_at, updated_at FROM companies WHERE id = $1`, id).
		Scan(&c.ID, &c.Code, &c.Name, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Company{}, ErrCompanyNotFound
	}
	return c, err
}

func (r *repository) CreateCompany(ctx context.Context, c Company) (Company, error) {
	now := time.Now()
	err := r.pool.QueryRow(ctx, `INSERT INTO companies (code, name, is_active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $4) RETURNING id`, c.Code, c.Name, c.IsActive, now).Scan(&c.ID)
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return Company{}, ErrDuplicateCode
		}
		return Company{}, err
	}
	c.CreatedAt, c.UpdatedAt = now, now
	return c, nil
}

func (r *repository) UpdateCompany(ctx context.Context, id int64, c Company) error {
	tag, err := r.pool.Exec(ctx, `UPDATE companies SET code = $1, name = $2, is_active = $3, updated_at = NOW() WHERE id = $4`,
		c.Code, c.Name, c.IsActive, id)
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return ErrDuplicateCode
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCompanyNotFound
	}
	return nil
}

const departmentColumns = `id, code, name, company_id, parent_id, is_active, created_at, updated_at`

func scanDepartment(row pgx.Row) (Department, error) {
	var d Department
	err := row.Scan(&d.ID, &d.Code, &d.Name, &d.CompanyID, &d.ParentID, &d.IsActive, &d.CreatedAt, &d.UpdatedAt)
	return d, err
}

func (r *repository) ListDepartments(ctx context.Context) ([]Department, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+departmentColumns+` FROM departments ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Department
	for rows.Next() {
		d, err := scanDepartment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *repository) GetDepartment(ctx context.Context, id int64) (Department, error) {
	d, err := scanDepartment(r.pool.QueryRow(ctx, `SELECT `+departmentColumns+` FROM departments WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Department{}, ErrDepartmentNotFound
	}
	return d, err
}

func (r *repository) CreateDepartment(ctx context.Context, d Department) (Department, error) {
	now := time.Now()
	err := r.pool.QueryRow(ctx, `INSERT INTO departments (code, name, company_id, parent_id, is_active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $6) RETURNING id`, d.Code, d.Name, d.CompanyID, d.ParentID, d.IsActive, now).Scan(&d.ID)
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return Department{}, ErrDuplicateCode
		}
		return Department{}, err
	}
	d.CreatedAt, d.UpdatedAt = now, now
	return d, nil
}

func (r *repository) UpdateDepartment(ctx context.Context, id int64, d Department) error {
	tag, err := r.pool.Exec(ctx, `UPDATE departments SET code = $1, name = $2, company_id = $3, parent_id = $4, is_active = $5, updated_at = NOW()
WHERE id = $6`, d.Code, d.Name, d.CompanyID, d.ParentID, d.IsActive, id)
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return ErrDuplicateCode
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDepartmentNotFound
	}
	return nil
}

func sortOrder(sortBy, sortDir string) string {
	dir := "ASC"
	if sortDir == "desc" {
		dir = "DESC"
	}
	switch sortBy {
	case "code":
		return "code " + dir
	case "created_at":
		return "created_at " + dir
	default:
		return "name " + dir
	}
}
