package commoncodes

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ncompliance/ncompliance/internal/platform/db"
	"github.com/ncompliance/ncompliance/internal/platform/sqlq"
)

const uniqueTypeCode = "common_codes_type_code_key"

// Repository defines common code persistence.
type Repository interface {
	List(ctx context.Context, f Filters) ([]CommonCode, error)
	Get(ctx context.Context, id int64) (CommonCode, error)
	Exists(ctx context.Context, t Type, code string, excludeID int64) (bool, error)
	Insert(ctx context.Context, c CommonCode) (CommonCode, error)
	Update(ctx context.Context, c CommonCode) error
	Delete(ctx context.Context, id int64) error
	Choices(ctx context.Context, t Type) ([]Choice, error)
	// InsertMissing adds c unless (type, code) already exists and reports
	// whether a row was written.
	InsertMissing(ctx context.Context, c CommonCode) (bool, error)
}

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a pgx backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

const codeColumns = `id, code_type, code, name, description, sort_order, is_active, is_system, parent_id, created_at, updated_at`

func scanCode(row pgx.Row) (CommonCode, error) {
	var c CommonCode
	var t string
	err := row.Scan(&c.ID, &t, &c.Code, &c.Name, &c.Description, &c.SortOrder, &c.IsActive, &c.IsSystem,
		&c.ParentID, &c.CreatedAt, &c.UpdatedAt)
	c.Type = Type(t)
	c.TypeLabel = c.Type.Label()
	return c, err
}

func (r *pgRepository) List(ctx context.Context, f Filters) ([]CommonCode, error) {
	args := sqlq.NewArgs(sqlq.Dollar)
	var where sqlq.Where
	if f.Type != "" {
		where.And("code_type = " + args.Add(string(f.Type)))
	}
	switch f.Active {
	case "true":
		where.And("is_active")
	case "false":
		where.And("NOT is_active")
	}
	if f.Keyword != "" {
		p := args.Add(sqlq.Like(f.Keyword))
		where.And("(code ILIKE " + p + " OR name ILIKE " + p + " OR description ILIKE " + p + ")")
	}
	rows, err := r.pool.Query(ctx, `SELECT `+codeColumns+` FROM common_codes WHERE `+where.String()+
		` ORDER BY code_type, sort_order, code`, args.Values()...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CommonCode
	for rows.Next() {
		c, err := scanCode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *pgRepository) Get(ctx context.Context, id int64) (CommonCode, error) {
	c, err := scanCode(r.pool.QueryRow(ctx, `SELECT `+codeColumns+` FROM common_codes WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return CommonCode{}, ErrCodeNotFound
	}
	return c, err
}

func (r *pgRepository) Exists(ctx context.Context, t Type, code string, excludeID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM common_codes WHERE code_type = $1 AND code = $2 AND id <> $3)`,
		string(t), code, excludeID).Scan(&exists)
	return exists, err
}

func (r *pgRepository) Insert(ctx context.Context, c CommonCode) (CommonCode, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO common_codes (code_type, code, name, description, sort_order, is_active, is_system, parent_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id, created_at, updated_at`,
		string(c.Type), c.Code, c.Name, c.Description, c.SortOrder, c.IsActive, c.IsSystem, c.ParentID).
		Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if db.IsUniqueViolation(err, uniqueTypeCode) {
		return CommonCode{}, ErrDuplicateCode
	}
	return c, err
}

func (r *pgRepository) Update(ctx context.Context, c CommonCode) error {
	tag, err := r.pool.Exec(ctx, `UPDATE common_codes SET code_type = $1, code = $2, name = $3, description = $4,
sort_order = $5, is_active = $6, parent_id = $7, updated_at = NOW() WHERE id = $8`,
		string(c.Type), c.Code, c.Name, c.Description, c.SortOrder, c.IsActive, c.ParentID, c.ID)
	if db.IsUniqueViolation(err, uniqueTypeCode) {
		return ErrDuplicateCode
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCodeNotFound
	}
	return nil
}

func (r *pgRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM common_codes WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCodeNotFound
	}
	return nil
}

func (r *pgRepository) Choices(ctx context.Context, t Type) ([]Choice, error) {
	rows, err := r.pool.Query(ctx, `SELECT code, name FROM common_codes WHERE code_type = $1 AND is_active
ORDER BY sort_order, name`, string(t))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Choice{}
	for rows.Next() {
		var c Choice
		if err := rows.Scan(&c.Code, &c.Name); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *pgRepository) InsertMissing(ctx context.Context, c CommonCode) (bool, error) {
	tag, err := r.pool.Exec(ctx, `INSERT INTO common_codes (code_type, code, name, description, sort_order, is_active, is_system)
VALUES ($1, $2, $3, $4, $5, $6, $7) ON CONFLICT ON CONSTRAINT `+uniqueTypeCode+` DO NOTHING`,
		string(c.Type), c.Code, c.Name, c.Description, c.SortOrder, c.IsActive, c.IsSystem)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
