package users

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ncompliance/ncompliance/internal/platform/db"
	"github.com/ncompliance/ncompliance/internal/platform/sqlq"
	"github.com/ncompliance/ncompliance/internal/rbac"
	"github.com/ncompliance/ncompliance/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context, filters ListFilters) ([]User, int, error)
	GetUser(ctx context.Context, id int64) (User, error)
	CreateUser(ctx context.Context, u User) (User, error)
	UpdateUser(ctx context.Context, u User) error
	LoadActor(ctx context.Context, id int64) (rbac.Actor, error)
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `u.id, u.username, u.email, u.password_hash, u.first_name, u.last_name, u.employee_id,
u.company_id, u.department_id, COALESCE(d.name, ''), u.role, u.position, u.phone, u.is_superuser, u.is_active,
u.created_at, u.updated_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	var role string
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.EmployeeID,
		&u.CompanyID, &u.DepartmentID, &u.DepartmentName, &role, &u.Position, &u.Phone, &u.IsSuperuser, &u.IsActive,
		&u.CreatedAt, &u.UpdatedAt)
	u.Role = rbac.Role(role)
	return u, err
}

// ListUsers returns a page of users matching filters.
func (r *Repository) ListUsers(ctx context.Context, filters ListFilters) ([]User, int, error) {
	args := sqlq.NewArgs(sqlq.Dollar)
	var where sqlq.Where
	if filters.Search != "" {
		p := args.Add(sqlq.Like(filters.Search))
		where.And(`u.username ILIKE ` + p + ` OR u.first_name ILIKE ` + p + ` OR u.last_name ILIKE ` + p +
			` OR u.email ILIKE ` + p + ` OR u.employee_id ILIKE ` + p)
	}
	if filters.Role != "" {
		where.And(`u.role = ` + args.Add(string(filters.Role)))
	}
	if filters.DepartmentID != nil {
		where.And(`u.department_id = ` + args.Add(*filters.DepartmentID))
	}
	if filters.ActiveOnly {
		where.And(`u.is_active`)
	}

	from := ` FROM users u LEFT JOIN departments d ON d.id = u.department_id WHERE ` + where.String()
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*)`+from, args.Values()...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page, perPage := shared.Normalize(filters.Page, filters.PerPage)
	query := `SELECT ` + userColumns + from + ` ORDER BY u.username LIMIT ` + args.Add(perPage) +
		` OFFSET ` + args.Add(shared.Offset(page, perPage))
	rows, err := r.pool.Query(ctx, query, args.Values()...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, u)
	}
	return out, total, rows.Err()
}

// GetUser loads one user.
func (r *Repository) GetUser(ctx context.Context, id int64) (User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+`
FROM users u LEFT JOIN departments d ON d.id = u.department_id WHERE u.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	return u, err
}

// CreateUser inserts a user; PasswordHash must already be set.
func (r *Repository) CreateUser(ctx context.Context, u User) (User, error) {
	now := time.Now()
	err := r.pool.QueryRow(ctx, `INSERT INTO users (username, email, password_hash, first_name, last_name, employee_id,
company_id, department_id, role, position, phone, is_superuser, is_active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14) RETURNING id`,
		u.Username, u.Email, u.PasswordHash, u.FirstName, u.LastName, u.EmployeeID,
		u.CompanyID, u.DepartmentID, string(u.Role), u.Position, u.Phone, u.IsSuperuser, u.IsActive, now,
	).Scan(&u.ID)
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return User{}, ErrDuplicateUsername
		}
		return User{}, err
	}
	u.CreatedAt, u.UpdatedAt = now, now
	return u, nil
}

// UpdateUser overwrites mutable columns. An empty PasswordHash keeps the
// stored hash.
func (r *Repository) UpdateUser(ctx context.Context, u User) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET email = $1, first_name = $2, last_name = $3, employee_id = $4,
company_id = $5, department_id = $6, role = $7, position = $8, phone = $9, is_superuser = $10, is_active = $11,
password_hash = COALESCE(NULLIF($12, ''), password_hash), updated_at = NOW()
WHERE id = $13`,
		u.Email, u.FirstName, u.LastName, u.EmployeeID, u.CompanyID, u.DepartmentID, string(u.Role),
		u.Position, u.Phone, u.IsSuperuser, u.IsActive, u.PasswordHash, u.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// LoadActor resolves the principal with its effective company.
func (r *Repository) LoadActor(ctx context.Context, id int64) (rbac.Actor, error) {
	var a rbac.Actor
	var first, last, role string
	err := r.pool.QueryRow(ctx, `SELECT u.id, u.username, u.first_name, u.last_name, u.email, u.role,
u.is_superuser, u.is_active, u.department_id, COALESCE(d.name, ''), COALESCE(u.company_id, d.company_id)
FROM users u LEFT JOIN departments d ON d.id = u.department_id WHERE u.id = $1`, id).
		Scan(&a.ID, &a.Username, &first, &last, &a.Email, &role, &a.IsSuperuser, &a.IsActive, &a.DepartmentID,
			&a.DepartmentName, &a.CompanyID)
	if errors.Is(err, pgx.ErrNoRows) {
		return rbac.Actor{}, ErrUserNotFound
	}
	if err != nil {
		return rbac.Actor{}, err
	}
	a.Role = rbac.Role(role)
	a.FullName = FullName(last, first, a.Username)
	return a, nil
}

var _ RepositoryPort = (*Repository)(nil)
