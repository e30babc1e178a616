package notifications

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ncompliance/ncompliance/internal/platform/sqlq"
	"github.com/ncompliance/ncompliance/internal/regulations"
	"github.com/ncompliance/ncompliance/internal/shared"
)

// Repository defines notification persistence.
type Repository interface {
	Recipients(ctx context.Context, q RecipientQuery) ([]Recipient, error)
	InsertMany(ctx context.Context, rows []Notification) (int64, error)

	List(ctx context.Context, userID int64, page, perPage int) ([]Notification, int, error)
	UnreadCount(ctx context.Context, userID int64) (int, error)
	Get(ctx context.Context, id int64) (Notification, error)
	MarkRead(ctx context.Context, userID, id int64, at time.Time) error
	MarkAllRead(ctx context.Context, userID int64, at time.Time) (int64, error)
	Delete(ctx context.Context, id int64) (Notification, error)

	GetSetting(ctx context.Context, userID int64) (Setting, error)
	SaveSetting(ctx context.Context, s Setting) error

	ExpiringOn(ctx context.Context, day time.Time) ([]regulations.Regulation, error)
}

var _ Repository = (*pgRepository)(nil)

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a pgx backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

func (r *pgRepository) Recipients(ctx context.Context, q RecipientQuery) ([]Recipient, error) {
	args := sqlq.NewArgs(sqlq.Dollar)
	var where sqlq.Where
	where.And(`u.is_active`)
	if q.DepartmentID != nil {
		where.And(`u.department_id = ` + args.Add(*q.DepartmentID))
	}
	if len(q.Roles) > 0 {
		roles := make([]string, len(q.Roles))
		for i, role := range q.Roles {
			roles[i] = string(role)
		}
		where.And(`u.role = ANY(` + args.Add(roles) + `::text[])`)
	}
	if len(q.UserIDs) > 0 {
		where.And(`u.id = ANY(` + args.Add(q.UserIDs) + `::bigint[])`)
	}
	if q.ExcludeUserID != 0 {
		where.And(`u.id <> ` + args.Add(q.ExcludeUserID))
	}
	rows, err := r.pool.Query(ctx, `SELECT u.id, u.email,
COALESCE(s.receive_change, TRUE), COALESCE(s.receive_expiry, TRUE),
COALESCE(s.receive_review, TRUE), COALESCE(s.email_notification, FALSE)
FROM users u LEFT JOIN notification_settings s ON s.user_id = u.id
WHERE `+where.String()+` ORDER BY u.id`, args.Values()...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Recipient
	for rows.Next() {
		var rc Recipient
		s := &rc.Setting
		if err := rows.Scan(&rc.UserID, &rc.Email, &s.ReceiveChange, &s.ReceiveExpiry, &s.ReceiveReview, &s.EmailNotification); err != nil {
			return nil, err
		}
		s.UserID = rc.UserID
		out = append(out, rc)
	}
	return out, rows.Err()
}

// InsertMany writes all rows with a single COPY.
func (r *pgRepository) InsertMany(ctx context.Context, rows []Notification) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	return r.pool.CopyFrom(ctx,
		pgx.Identifier{"notifications"},
		[]string{"user_id", "regulation_id", "notification_type", "title", "message", "created_at"},
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			n := rows[i]
			return []any{n.UserID, n.RegulationID, string(n.Type), n.Title, n.Message, n.CreatedAt}, nil
		}),
	)
}

const notificationColumns = `id, user_id, regulation_id, notification_type, title, message, is_read, read_at, created_at`

func scanNotification(row pgx.Row) (Notification, error) {
	var n Notification
	var kind string
	err := row.Scan(&n.ID, &n.UserID, &n.RegulationID, &kind, &n.Title, &n.Message, &n.IsRead, &n.ReadAt, &n.CreatedAt)
	n.Type = Type(kind)
	return n, err
}

func (r *pgRepository) List(ctx context.Context, userID int64, page, perPage int) ([]Notification, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}
	page, perPage = shared.Normalize(page, perPage)
	rows, err := r.pool.Query(ctx, `SELECT `+notificationColumns+` FROM notifications
WHERE user_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`, userID, perPage, shared.Offset(page, perPage))
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, n)
	}
	return out, total, rows.Err()
}

func (r *pgRepository) UnreadCount(ctx context.Context, userID int64) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND NOT is_read`, userID).Scan(&n)
	return n, err
}

func (r *pgRepository) Get(ctx context.Context, id int64) (Notification, error) {
	n, err := scanNotification(r.pool.QueryRow(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Notification{}, ErrNotificationNotFound
	}
	return n, err
}

func (r *pgRepository) MarkRead(ctx context.Context, userID, id int64, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE notifications SET is_read = TRUE, read_at = COALESCE(read_at, $3)
WHERE id = $1 AND user_id = $2`, id, userID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

func (r *pgRepository) MarkAllRead(ctx context.Context, userID int64, at time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE notifications SET is_read = TRUE, read_at = $2
WHERE user_id = $1 AND NOT is_read`, userID, at)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *pgRepository) Delete(ctx context.Context, id int64) (Notification, error) {
	n, err := scanNotification(r.pool.QueryRow(ctx, `DELETE FROM notifications WHERE id = $1 RETURNING `+notificationColumns, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Notification{}, ErrNotificationNotFound
	}
	return n, err
}

// GetSetting returns the stored row, creating the default one first.
func (r *pgRepository) GetSetting(ctx context.Context, userID int64) (Setting, error) {
	if _, err := r.pool.Exec(ctx, `INSERT INTO notification_settings (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, userID); err != nil {
		return Setting{}, err
	}
	s := Setting{UserID: userID}
	err := r.pool.QueryRow(ctx, `SELECT receive_change, receive_expiry, receive_review, email_notification
FROM notification_settings WHERE user_id = $1`, userID).Scan(&s.ReceiveChange, &s.ReceiveExpiry, &s.ReceiveReview, &s.EmailNotification)
	return s, err
}

func (r *pgRepository) SaveSetting(ctx context.Context, s Setting) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO notification_settings (user_id, receive_change, receive_expiry, receive_review, email_notification)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (user_id) DO UPDATE SET receive_change = EXCLUDED.receive_change, receive_expiry = EXCLUDED.receive_expiry,
receive_review = EXCLUDED.receive_review, email_notification = EXCLUDED.email_notification`,
		s.UserID, s.ReceiveChange, s.ReceiveExpiry, s.ReceiveReview, s.EmailNotification)
	return err
}

func (r *pgRepository) ExpiringOn(ctx context.Context, day time.Time) ([]regulations.Regulation, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+regulations.RegulationColumns+regulations.RegulationFrom+`
WHERE r.status = 'ACTIVE' AND r.expiry_date = $1 ORDER BY r.code`, day.Format(time.DateOnly))
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
