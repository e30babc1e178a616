package regulations

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ncompliance/ncompliance/internal/platform/db"
	"github.com/ncompliance/ncompliance/internal/platform/sqlq"
	"github.com/ncompliance/ncompliance/internal/rbac"
	"github.com/ncompliance/ncompliance/internal/shared"
)

// Repository defines regulation data access. Every listing method that
// takes an actor applies AccessClause.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error

	List(ctx context.Context, actor rbac.Actor, filters ListFilters) ([]Regulation, int, error)
	CategoryCounts(ctx context.Context, actor rbac.Actor) (map[Category]int, error)
	Get(ctx context.Context, id int64) (Regulation, error)
	ListRelated(ctx context.Context, actor rbac.Actor, id int64) ([]Regulation, error)
	ListChildren(ctx context.Context, actor rbac.Actor, id int64) ([]Regulation, error)
	LastCode(ctx context.Context, category Category) (string, error)
	Delete(ctx context.Context, id int64) error
	SetOriginalFile(ctx context.Context, id int64, key string) error

	ListVersions(ctx context.Context, regulationID int64) ([]Version, error)
	GetVersion(ctx context.Context, id int64) (Version, error)
	ApproveVersion(ctx context.Context, id, approverID int64, at time.Time) error
	LogDownload(ctx context.Context, log DownloadLog) error

	ToggleFavorite(ctx context.Context, userID, regulationID int64) (bool, error)
	IsFavorite(ctx context.Context, userID, regulationID int64) (bool, error)
	ListFavorites(ctx context.Context, actor rbac.Actor) ([]Regulation, error)

	ListTags(ctx context.Context, actor rbac.Actor) ([]TagCount, error)
	ListByTag(ctx context.Context, actor rbac.Actor, name string) ([]Regulation, error)
}

// TxRepository defines operations within a transaction.
type TxRepository interface {
	LockRegulation(ctx context.Context, id int64) (Regulation, error)
	InsertRegulation(ctx context.Context, reg Regulation) (int64, error)
	UpdateRegulation(ctx context.Context, reg Regulation) error
	ReplaceLinks(ctx context.Context, reg Regulation) error
	InsertVersion(ctx context.Context, v Version) (Version, error)
	ApplyChange(ctx context.Context, regulationID int64, change ChangeType, versionNumber string, day time.Time) error
}

var (
	_ Repository   = (*pgRepository)(nil)
	_ TxRepository = (*pgTxRepository)(nil)
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgRepository struct {
	pool *pgxpool.Pool
}

type pgTxRepository struct {
	tx pgx.Tx
}

// NewRepository returns a pgx backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

func (r *pgRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTxRepository{tx: tx})
	})
}

// RegulationColumns selects a Regulation from alias r joined with departments d.
const RegulationColumns = `r.id, r.code, r.title, r.category, r.description, r.is_mandatory, r.scope, r.status,
r.responsible_dept_id, COALESCE(d.name, ''), r.manager, r.manager_primary, r.group_name, r.current_version,
r.effective_date, r.expiry_date, r.abolished_date, r.parent_id, r.access_level, r.is_public, r.reference_url,
r.content, r.original_file, r.created_by, r.created_at, r.updated_at`

// RegulationFrom joins the responsible department for RegulationColumns.
const RegulationFrom = ` FROM regulations r LEFT JOIN departments d ON d.id = r.responsible_dept_id`

// ScanRegulation reads one row selected with RegulationColumns.
func ScanRegulation(row pgx.Row) (Regulation, error) {
	var reg Regulation
	var category, scope, status, access string
	err := row.Scan(&reg.ID, &reg.Code, &reg.Title, &category, &reg.Description, &reg.IsMandatory, &scope, &status,
		&reg.ResponsibleDeptID, &reg.ResponsibleDeptName, &reg.Manager, &reg.ManagerPrimary, &reg.GroupName, &reg.CurrentVersion,
		&reg.EffectiveDate, &reg.ExpiryDate, &reg.AbolishedDate, &reg.ParentID, &access, &reg.IsPublic, &reg.ReferenceURL,
		&reg.Content, &reg.OriginalFile, &reg.CreatedBy, &reg.CreatedAt, &reg.UpdatedAt)
	reg.Category = Category(category)
	reg.Scope = Scope(scope)
	reg.Status = Status(status)
	reg.AccessLevel = AccessLevel(access)
	return reg, err
}

func collectRegulations(rows pgx.Rows, err error) ([]Regulation, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Regulation
	for rows.Next() {
		reg, err := ScanRegulation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, reg)
	}
	return out, rows.Err()
}

// FilterClause renders the catalog search filters, including access and
// DEPT_MANAGER narrowing, as a WHERE body over alias r.
func FilterClause(actor rbac.Actor, f ListFilters, args *sqlq.Args) string {
	var where sqlq.Where
	where.And(AccessClause(actor, args, "r"))
	where.And(ManagerClause(actor, args, "r"))
	if f.Keyword != "" {
		p := args.Add(sqlq.Like(f.Keyword))
		where.And(`r.code ILIKE ` + p + ` OR r.title ILIKE ` + p + ` OR r.description ILIKE ` + p +
			` OR r.manager ILIKE ` + p + ` OR r.group_name ILIKE ` + p)
	}
	if f.Category != "" {
		where.And(`r.category = ` + args.Add(string(f.Category)))
	}
	if f.Status != "" {
		where.And(`r.status = ` + args.Add(string(f.Status)))
	}
	switch f.Mandatory {
	case "mandatory":
		where.And(`r.is_mandatory`)
	case "non_mandatory", "not_applicable":
		where.And(`NOT r.is_mandatory`)
	}
	if f.ResponsibleDeptID != nil {
		where.And(`r.responsible_dept_id = ` + args.Add(*f.ResponsibleDeptID))
	}
	if f.Group != "" {
		where.And(`r.group_name ILIKE ` + args.Add(sqlq.Like(f.Group)))
	}
	if f.Manager != "" {
		where.And(`r.manager ILIKE ` + args.Add(sqlq.Like(f.Manager)))
	}
	switch f.Publicity {
	case "all":
		where.And(`r.is_public AND r.access_level = 'ALL'`)
	case "executive":
		where.And(`r.is_public AND r.access_level <> 'ALL'`)
	case "private":
		where.And(`NOT r.is_public`)
	}
	return where.String()
}

func (r *pgRepository) List(ctx context.Context, actor rbac.Actor, f ListFilters) ([]Regulation, int, error) {
	args := sqlq.NewArgs(sqlq.Dollar)
	where := FilterClause(actor, f, args)

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM regulations r WHERE `+where, args.Values()...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page, perPage := shared.Normalize(f.Page, f.PerPage)
	query := `SELECT ` + RegulationColumns + RegulationFrom + ` WHERE ` + where +
		` ORDER BY r.category, r.code LIMIT ` + args.Add(perPage) + ` OFFSET ` + args.Add(shared.Offset(page, perPage))
	regs, err := collectRegulations(r.pool.Query(ctx, query, args.Values()...))
	return regs, total, err
}

func (r *pgRepository) CategoryCounts(ctx context.Context, actor rbac.Actor) (map[Category]int, error) {
	args := sqlq.NewArgs(sqlq.Dollar)
	rows, err := r.pool.Query(ctx, `SELECT r.category, COUNT(*) FROM regulations r WHERE `+
		AccessClause(actor, args, "r")+` GROUP BY r.category`, args.Values()...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[Category]int)
	for rows.Next() {
		var category string
		var n int
		if err := rows.Scan(&category, &n); err != nil {
			return nil, err
		}
		counts[Category(category)] = n
	}
	return counts, rows.Err()
}

func (r *pgRepository) Get(ctx context.Context, id int64) (Regulation, error) {
	return getRegulation(ctx, r.pool, id, "")
}

func getRegulation(ctx context.Context, q querier, id int64, suffix string) (Regulation, error) {
	reg, err := ScanRegulation(q.QueryRow(ctx, `SELECT `+RegulationColumns+RegulationFrom+` WHERE r.id = $1`+suffix, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Regulation{}, ErrRegulationNotFound
	}
	if err != nil {
		return Regulation{}, err
	}
	if err := loadLinks(ctx, q, &reg); err != nil {
		return Regulation{}, err
	}
	return reg, nil
}

func loadLinks(ctx context.Context, q querier, reg *Regulation) error {
	var err error
	if reg.AllowedCompanies, err = collectIDs(ctx, q, `SELECT company_id FROM regulation_allowed_companies WHERE regulation_id = $1 ORDER BY company_id`, reg.ID); err != nil {
		return err
	}
	if reg.AllowedDepartments, err = collectIDs(ctx, q, `SELECT department_id FROM regulation_allowed_departments WHERE regulation_id = $1 ORDER BY department_id`, reg.ID); err != nil {
		return err
	}
	if reg.AllowedUsers, err = collectIDs(ctx, q, `SELECT user_id FROM regulation_allowed_users WHERE regulation_id = $1 ORDER BY user_id`, reg.ID); err != nil {
		return err
	}
	if reg.RelatedIDs, err = collectIDs(ctx, q, `SELECT related_id FROM regulation_related WHERE regulation_id = $1 ORDER BY related_id`, reg.ID); err != nil {
		return err
	}
	rows, err := q.Query(ctx, `SELECT t.name FROM regulation_tags t
JOIN regulation_tag_links l ON l.tag_id = t.id WHERE l.regulation_id = $1 ORDER BY t.name`, reg.ID)
	if err != nil {
		return err
	}
	reg.Tags, err = pgx.CollectRows(rows, pgx.RowTo[string])
	return err
}

func collectIDs(ctx context.Context, q querier, sql string, id int64) ([]int64, error) {
	rows, err := q.Query(ctx, sql, id)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

func (r *pgRepository) ListRelated(ctx context.Context, actor rbac.Actor, id int64) ([]Regulation, error) {
	args := sqlq.NewArgs(sqlq.Dollar)
	p := args.Add(id)
	query := `SELECT ` + RegulationColumns + RegulationFrom + `
JOIN regulation_related rr ON rr.related_id = r.id
WHERE rr.regulation_id = ` + p + ` AND ` + AccessClause(actor, args, "r") + ` ORDER BY r.category, r.code`
	return collectRegulations(r.pool.Query(ctx, query, args.Values()...))
}

func (r *pgRepository) ListChildren(ctx context.Context, actor rbac.Actor, id int64) ([]Regulation, error) {
	args := sqlq.NewArgs(sqlq.Dollar)
	p := args.Add(id)
	query := `SELECT ` + RegulationColumns + RegulationFrom + ` WHERE r.parent_id = ` + p +
		` AND ` + AccessClause(actor, args, "r") + ` ORDER BY r.category, r.code`
	return collectRegulations(r.pool.Query(ctx, query, args.Values()...))
}

func (r *pgRepository) LastCode(ctx context.Context, category Category) (string, error) {
	var code string
	err := r.pool.QueryRow(ctx, `SELECT code FROM regulations WHERE category = $1 ORDER BY code DESC LIMIT 1`, string(category)).Scan(&code)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return code, err
}

func (r *pgRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM regulations WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRegulationNotFound
	}
	return nil
}

func (r *pgRepository) SetOriginalFile(ctx context.Context, id int64, key string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE regulations SET original_file = $1, updated_at = NOW() WHERE id = $2`, key, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRegulationNotFound
	}
	return nil
}

// VersionColumns selects a Version from alias v with creator and approver names.
const VersionColumns = `v.id, v.regulation_id, v.version_number, v.change_type, v.change_reason, v.change_summary,
v.content_file, v.content_snapshot, v.approved_by,
COALESCE(NULLIF(TRIM(au.last_name || au.first_name), ''), au.username, ''), v.approved_at, v.created_by,
COALESCE(NULLIF(TRIM(cu.last_name || cu.first_name), ''), cu.username, ''), v.created_at`

// VersionFrom joins the users named by VersionColumns.
const VersionFrom = ` FROM regulation_versions v
LEFT JOIN users au ON au.id = v.approved_by
LEFT JOIN users cu ON cu.id = v.created_by`

// ScanVersion reads one row selected with VersionColumns.
func ScanVersion(row pgx.Row) (Version, error) {
	var v Version
	var change string
	err := row.Scan(&v.ID, &v.RegulationID, &v.VersionNumber, &change, &v.ChangeReason, &v.ChangeSummary,
		&v.ContentFile, &v.ContentSnapshot, &v.ApprovedBy, &v.ApproverName, &v.ApprovedAt, &v.CreatedBy,
		&v.CreatorName, &v.CreatedAt)
	v.ChangeType = ChangeType(change)
	return v, err
}

func (r *pgRepository) ListVersions(ctx context.Context, regulationID int64) ([]Version, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+VersionColumns+VersionFrom+`
WHERE v.regulation_id = $1 ORDER BY v.created_at DESC, v.id DESC`, regulationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Version
	for rows.Next() {
		v, err := ScanVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (r *pgRepository) GetVersion(ctx context.Context, id int64) (Version, error) {
	v, err := ScanVersion(r.pool.QueryRow(ctx, `SELECT `+VersionColumns+VersionFrom+` WHERE v.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Version{}, ErrVersionNotFound
	}
	return v, err
}

func (r *pgRepository) ApproveVersion(ctx context.Context, id, approverID int64, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE regulation_versions SET approved_by = $1, approved_at = $2 WHERE id = $3`, approverID, at, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionNotFound
	}
	return nil
}

func (r *pgRepository) LogDownload(ctx context.Context, log DownloadLog) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO regulation_download_logs (regulation_id, version_id, user_id, ip_address)
VALUES ($1, $2, $3, NULLIF($4, ''))`, log.RegulationID, log.VersionID, log.UserID, log.IPAddress)
	return err
}

func (r *pgRepository) ToggleFavorite(ctx context.Context, userID, regulationID int64) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM favorites WHERE user_id = $1 AND regulation_id = $2`, userID, regulationID)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() > 0 {
		return false, nil
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO favorites (user_id, regulation_id) VALUES ($1, $2)
ON CONFLICT ON CONSTRAINT favorites_user_regulation_key DO NOTHING`, userID, regulationID)
	return err == nil, err
}

func (r *pgRepository) IsFavorite(ctx context.Context, userID, regulationID int64) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM favorites WHERE user_id = $1 AND regulation_id = $2)`,
		userID, regulationID).Scan(&ok)
	return ok, err
}

func (r *pgRepository) ListFavorites(ctx context.Context, actor rbac.Actor) ([]Regulation, error) {
	args := sqlq.NewArgs(sqlq.Dollar)
	p := args.Add(actor.ID)
	query := `SELECT ` + RegulationColumns + RegulationFrom + `
JOIN favorites f ON f.regulation_id = r.id
WHERE f.user_id = ` + p + ` AND ` + AccessClause(actor, args, "r") + ` ORDER BY f.created_at DESC`
	return collectRegulations(r.pool.Query(ctx, query, args.Values()...))
}

func (r *pgRepository) ListTags(ctx context.Context, actor rbac.Actor) ([]TagCount, error) {
	args := sqlq.NewArgs(sqlq.Dollar)
	var where sqlq.Where
	where.And(AccessClause(actor, args, "r"))
	where.And(ManagerClause(actor, args, "r"))
	rows, err := r.pool.Query(ctx, `SELECT t.name, COUNT(r.id) FROM regulation_tags t
JOIN regulation_tag_links l ON l.tag_id = t.id
JOIN regulations r ON r.id = l.regulation_id
WHERE `+where.String()+` GROUP BY t.name ORDER BY COUNT(r.id) DESC, t.name`, args.Values()...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TagCount
	for rows.Next() {
		var tc TagCount
		if err := rows.Scan(&tc.Name, &tc.Count); err != nil {
			return nil, err
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}

func (r *pgRepository) ListByTag(ctx context.Context, actor rbac.Actor, name string) ([]Regulation, error) {
	var tagID int64
	err := r.pool.QueryRow(ctx, `SELECT id FROM regulation_tags WHERE name = $1`, name).Scan(&tagID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTagNotFound
	}
	if err != nil {
		return nil, err
	}
	args := sqlq.NewArgs(sqlq.Dollar)
	var where sqlq.Where
	where.And(`l.tag_id = ` + args.Add(tagID))
	where.And(AccessClause(actor, args, "r"))
	where.And(ManagerClause(actor, args, "r"))
	query := `SELECT ` + RegulationColumns + RegulationFrom + `
JOIN regulation_tag_links l ON l.regulation_id = r.id
WHERE ` + where.String() + ` ORDER BY r.category, r.code`
	return collectRegulations(r.pool.Query(ctx, query, args.Values()...))
}

func (t *pgTxRepository) LockRegulation(ctx context.Context, id int64) (Regulation, error) {
	return getRegulation(ctx, t.tx, id, ` FOR UPDATE OF r`)
}

func (t *pgTxRepository) InsertRegulation(ctx context.Context, reg Regulation) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO regulations (code, title, category, description, is_mandatory, scope, status,
responsible_dept_id, manager, manager_primary, group_name, current_version, effective_date, expiry_date, parent_id,
access_level, is_public, reference_url, content, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20) RETURNING id`,
		reg.Code, reg.Title, string(reg.Category), reg.Description, reg.IsMandatory, string(reg.Scope), string(reg.Status),
		reg.ResponsibleDeptID, reg.Manager, reg.ManagerPrimary, reg.GroupName, reg.CurrentVersion, reg.EffectiveDate,
		reg.ExpiryDate, reg.ParentID, string(reg.AccessLevel), reg.IsPublic, reg.ReferenceURL, reg.Content, reg.CreatedBy,
	).Scan(&id)
	if db.IsUniqueViolation(err, "regulations_code_key") {
		return 0, ErrDuplicateCode
	}
	return id, err
}

func (t *pgTxRepository) UpdateRegulation(ctx context.Context, reg Regulation) error {
	tag, err := t.tx.Exec(ctx, `UPDATE regulations SET title = $1, category = $2, description = $3, is_mandatory = $4,
scope = $5, responsible_dept_id = $6, manager = $7, manager_primary = $8, group_name = $9, effective_date = $10,
expiry_date = $11, parent_id = $12, access_level = $13, is_public = $14, reference_url = $15, content = $16,
updated_at = NOW() WHERE id = $17`,
		reg.Title, string(reg.Category), reg.Description, reg.IsMandatory, string(reg.Scope), reg.ResponsibleDeptID,
		reg.Manager, reg.ManagerPrimary, reg.GroupName, reg.EffectiveDate, reg.ExpiryDate, reg.ParentID,
		string(reg.AccessLevel), reg.IsPublic, reg.ReferenceURL, reg.Content, reg.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRegulationNotFound
	}
	return nil
}

func (t *pgTxRepository) ReplaceLinks(ctx context.Context, reg Regulation) error {
	links := []struct {
		table  string
		column string
		ids    []int64
	}{
		{"regulation_allowed_companies", "company_id", reg.AllowedCompanies},
		{"regulation_allowed_departments", "department_id", reg.AllowedDepartments},
		{"regulation_allowed_users", "user_id", reg.AllowedUsers},
		{"regulation_related", "related_id", reg.RelatedIDs},
	}
	for _, l := range links {
		if _, err := t.tx.Exec(ctx, `DELETE FROM `+l.table+` WHERE regulation_id = $1`, reg.ID); err != nil {
			return err
		}
		if len(l.ids) == 0 {
			continue
		}
		if _, err := t.tx.Exec(ctx, `INSERT INTO `+l.table+` (regulation_id, `+l.column+`)
SELECT $1, unnest($2::bigint[]) ON CONFLICT DO NOTHING`, reg.ID, l.ids); err != nil {
			return err
		}
	}

	if _, err := t.tx.Exec(ctx, `DELETE FROM regulation_tag_links WHERE regulation_id = $1`, reg.ID); err != nil {
		return err
	}
	for _, name := range reg.Tags {
		var tagID int64
		if err := t.tx.QueryRow(ctx, `INSERT INTO regulation_tags (name) VALUES ($1)
ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name RETURNING id`, name).Scan(&tagID); err != nil {
			return err
		}
		if _, err := t.tx.Exec(ctx, `INSERT INTO regulation_tag_links (regulation_id, tag_id) VALUES ($1, $2)
ON CONFLICT DO NOTHING`, reg.ID, tagID); err != nil {
			return err
		}
	}
	return nil
}

func (t *pgTxRepository) InsertVersion(ctx context.Context, v Version) (Version, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO regulation_versions (regulation_id, version_number, change_type, change_reason,
change_summary, content_file, content_snapshot, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		v.RegulationID, v.VersionNumber, string(v.ChangeType), v.ChangeReason, v.ChangeSummary, v.ContentFile,
		v.ContentSnapshot, v.CreatedBy, v.CreatedAt,
	).Scan(&v.ID)
	if db.IsUniqueViolation(err, "regulation_versions_number_key") {
		return Version{}, ErrDuplicateVersion
	}
	return v, err
}

func (t *pgTxRepository) ApplyChange(ctx context.Context, regulationID int64, change ChangeType, versionNumber string, day time.Time) error {
	var err error
	var tag pgconn.CommandTag
	switch change {
	case ChangeCreate:
		tag, err = t.tx.Exec(ctx, `UPDATE regulations SET status = 'ACTIVE', current_version = $1, updated_at = NOW() WHERE id = $2`,
			versionNumber, regulationID)
	case ChangeRevise:
		tag, err = t.tx.Exec(ctx, `UPDATE regulations SET current_version = $1, updated_at = NOW() WHERE id = $2`,
			versionNumber, regulationID)
	case ChangeAbolish:
		tag, err = t.tx.Exec(ctx, `UPDATE regulations SET status = 'ABOLISHED', abolished_date = $1, current_version = $2,
updated_at = NOW() WHERE id = $3`, day, versionNumber, regulationID)
	default:
		return errors.New("regulations: unknown change type " + string(change))
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRegulationNotFound
	}
	return nil
}
