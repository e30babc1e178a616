package reports

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ncompliance/ncompliance/internal/platform/sqlq"
	"github.com/ncompliance/ncompliance/internal/rbac"
	"github.com/ncompliance/ncompliance/internal/regulations"
)

// Repository reads report row sets. Every query applies
// regulations.AccessClause for the actor.
type Repository interface {
	Catalog(ctx context.Context, actor rbac.Actor, f CatalogFilters) ([]regulations.Regulation, error)
	History(ctx context.Context, actor rbac.Actor, f HistoryFilters) ([]HistoryEntry, error)
	Expiring(ctx context.Context, actor rbac.Actor, from, to time.Time) ([]regulations.Regulation, error)
	Departments(ctx context.Context, actor rbac.Actor) ([]DepartmentCount, error)
}

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a pgx backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

func (r *pgRepository) Catalog(ctx context.Context, actor rbac.Actor, f CatalogFilters) ([]regulations.Regulation, error) {
	args := sqlq.NewArgs(sqlq.Dollar)
	var where sqlq.Where
	where.And(regulations.AccessClause(actor, args, "r"))
	if f.Category != "" {
		where.And("r.category = " + args.Add(string(f.Category)))
	}
	if f.Status != "" {
		where.And("r.status = " + args.Add(string(f.Status)))
	}
	if f.DepartmentID != nil {
		where.And("r.responsible_dept_id = " + args.Add(*f.DepartmentID))
	}
	rows, err := r.pool.Query(ctx, `SELECT `+regulations.RegulationColumns+regulations.RegulationFrom+
		` WHERE `+where.String()+` ORDER BY r.category, r.code`, args.Values()...)
	return collectRegulations(rows, err)
}

func (r *pgRepository) History(ctx context.Context, actor rbac.Actor, f HistoryFilters) ([]HistoryEntry, error) {
	args := sqlq.NewArgs(sqlq.Dollar)
	var where sqlq.Where
	where.And(regulations.AccessClause(actor, args, "r"))
	where.And(regulations.ManagerClause(actor, args, "r"))
	if f.Since != nil {
		where.And("v.created_at >= " + args.Add(*f.Since))
	}
	if f.Until != nil {
		where.And("v.created_at < " + args.Add(*f.Until))
	}
	if f.ChangeType != "" {
		where.And("v.change_type = " + args.Add(string(f.ChangeType)))
	}
	rows, err := r.pool.Query(ctx, `SELECT `+regulations.VersionColumns+`, r.code, r.title`+regulations.VersionFrom+`
JOIN regulations r ON r.id = v.regulation_id
WHERE `+where.String()+` ORDER BY v.created_at DESC, v.id DESC`, args.Values()...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var change string
		if err := rows.Scan(&e.ID, &e.RegulationID, &e.VersionNumber, &change, &e.ChangeReason, &e.ChangeSummary,
			&e.ContentFile, &e.ContentSnapshot, &e.ApprovedBy, &e.ApproverName, &e.ApprovedAt, &e.CreatedBy,
			&e.CreatorName, &e.CreatedAt, &e.Code, &e.Title); err != nil {
			return nil, err
		}
		e.ChangeType = regulations.ChangeType(change)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *pgRepository) Expiring(ctx context.Context, actor rbac.Actor, from, to time.Time) ([]regulations.Regulation, error) {
	args := sqlq.NewArgs(sqlq.Dollar)
	var where sqlq.Where
	where.And(regulations.AccessClause(actor, args, "r"))
	where.And(regulations.ManagerClause(actor, args, "r"))
	where.And("r.status = 'ACTIVE'")
	where.And("r.expiry_date >= " + args.Add(from.Format(time.DateOnly)) + "::date")
	where.And("r.expiry_date <= " + args.Add(to.Format(time.DateOnly)) + "::date")
	rows, err := r.pool.Query(ctx, `SELECT `+regulations.RegulationColumns+regulations.RegulationFrom+
		` WHERE `+where.String()+` ORDER BY r.expiry_date, r.code`, args.Values()...)
	return collectRegulations(rows, err)
}

func (r *pgRepository) Departments(ctx context.Context, actor rbac.Actor) ([]DepartmentCount, error) {
	args := sqlq.NewArgs(sqlq.Dollar)
	rows, err := r.pool.Query(ctx, departmentCountsQuery(actor, args), args.Values()...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []DepartmentCount
	for rows.Next() {
		var c DepartmentCount
		if err := rows.Scan(&c.ID, &c.Code, &c.Name, &c.Regulations); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// departmentCountsQuery counts, per active department, the regulations it is
// responsible for that actor can access. Departments without any still
// appear with zero.
func departmentCountsQuery(actor rbac.Actor, args *sqlq.Args) string {
	return `SELECT d.id, d.code, d.name, COUNT(r.id)
FROM departments d
LEFT JOIN regulations r ON r.responsible_dept_id = d.id AND (` + regulations.AccessClause(actor, args, "r") + `)
WHERE d.is_active
GROUP BY d.id, d.code, d.name
ORDER BY COUNT(r.id) DESC, d.name, d.id`
}

func collectRegulations(rows pgx.Rows, err error) ([]regulations.Regulation, error) {
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
