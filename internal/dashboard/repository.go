package dashboard

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ncompliance/ncompliance/internal/platform/sqlq"
	"github.com/ncompliance/ncompliance/internal/rbac"
	"github.com/ncompliance/ncompliance/internal/regulations"
)

// Scope selects the regulations a dashboard query considers.
type Scope struct {
	// Published limits to is_public AND is_mandatory rows.
	Published bool
	// Category filters to one category; empty excludes MANUAL.
	Category regulations.Category
}

// Repository loads dashboard data. Every query applies
// regulations.AccessClause for the actor.
type Repository interface {
	Regulations(ctx context.Context, actor rbac.Actor, scope Scope) ([]regulations.Regulation, error)
	CategoryCounts(ctx context.Context, actor rbac.Actor, published bool) (map[regulations.Category]int, error)
	FavoriteIDs(ctx context.Context, userID int64) ([]int64, error)
}

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a pgx backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

func baseWhere(actor rbac.Actor, published bool, args *sqlq.Args) *sqlq.Where {
	var where sqlq.Where
	where.And(regulations.AccessClause(actor, args, "r"))
	if published {
		where.And("r.is_public AND r.is_mandatory")
	}
	return &where
}

func (r *pgRepository) Regulations(ctx context.Context, actor rbac.Actor, scope Scope) ([]regulations.Regulation, error) {
	args := sqlq.NewArgs(sqlq.Dollar)
	where := baseWhere(actor, scope.Published, args)
	if scope.Category != "" {
		where.And("r.category = " + args.Add(string(scope.Category)))
	} else {
		where.And("r.category <> 'MANUAL'")
	}
	rows, err := r.pool.Query(ctx, `SELECT `+regulations.RegulationColumns+regulations.RegulationFrom+
		` WHERE `+where.String()+` ORDER BY r.group_name, r.category, r.title`, args.Values()...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []regulations.Regulation
	for rows.Next() {
		reg, err := regulations.ScanRegulation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, reg)
	}
	return out, rows.Err()
}

func (r *pgRepository) CategoryCounts(ctx context.Context, actor rbac.Actor, published bool) (map[regulations.Category]int, error) {
	args := sqlq.NewArgs(sqlq.Dollar)
	where := baseWhere(actor, published, args)
	rows, err := r.pool.Query(ctx, `SELECT r.category, COUNT(*) FROM regulations r WHERE `+where.String()+
		` GROUP BY r.category`, args.Values()...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[regulations.Category]int)
	for rows.Next() {
		var cat string
		var n int
		if err := rows.Scan(&cat, &n); err != nil {
			return nil, err
		}
		out[regulations.Category(cat)] = n
	}
	return out, rows.Err()
}

func (r *pgRepository) FavoriteIDs(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT regulation_id FROM favorites WHERE user_id = $1 ORDER BY regulation_id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
