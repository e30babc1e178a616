package shared

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ApprovalAction enumerates approval log actions.
type ApprovalAction string

const (
	// ApprovalSubmit marks a submit action.
	ApprovalSubmit ApprovalAction = "SUBMIT"
	// ApprovalApprove marks an approve action.
	ApprovalApprove ApprovalAction = "APPROVE"
	// ApprovalReject marks a reject action.
	ApprovalReject ApprovalAction = "REJECT"
)

// ApprovalModuleVersion scopes approval rows that reference regulation_versions.
const ApprovalModuleVersion = "regulation_version"

// ApprovalLog represents a single approval record.
type ApprovalLog struct {
	ID      int64          `json:"id"`
	Module  string         `json:"module"`
	RefID   int64          `json:"ref_id"`
	ActorID int64          `json:"actor_id"`
	Action  ApprovalAction `json:"action"`
	Note    string         `json:"note"`
	At      time.Time      `json:"at"`
}

// ApprovalStore is the persistence contract used by services.
type ApprovalStore interface {
	Record(ctx context.Context, log ApprovalLog) error
	List(ctx context.Context, module string, ref int64) ([]ApprovalLog, error)
}

// ApprovalRecorder persists approval history.
type ApprovalRecorder struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewApprovalRecorder constructs ApprovalRecorder.
func NewApprovalRecorder(pool *pgxpool.Pool, logger *slog.Logger) *ApprovalRecorder {
	return &ApprovalRecorder{pool: pool, logger: logger}
}

// Record writes approval entry to database.
func (r *ApprovalRecorder) Record(ctx context.Context, log ApprovalLog) error {
	if r == nil {
		return errors.New("approval recorder not initialised")
	}
	if err := log.validate(); err != nil {
		return err
	}
	var at *time.Time
	if !log.At.IsZero() {
		at = &log.At
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO approvals (module, ref_id, actor_id, action, note, at)
VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))`, log.Module, log.RefID, log.ActorID, string(log.Action), log.Note, at)
	if err != nil {
		if r.logger != nil {
			r.logger.Error("record approval", slog.Any("error", err))
		}
		return err
	}
	return nil
}

// List returns approvals for module/ref.
func (r *ApprovalRecorder) List(ctx context.Context, module string, ref int64) ([]ApprovalLog, error) {
	if r == nil {
		return nil, errors.New("approval recorder not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT id, module, ref_id, actor_id, action, note, at
FROM approvals WHERE module=$1 AND ref_id=$2 ORDER BY at ASC, id ASC`, module, ref)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var logs []ApprovalLog
	for rows.Next() {
		var l ApprovalLog
		var action string
		if err := rows.Scan(&l.ID, &l.Module, &l.RefID, &l.ActorID, &action, &l.Note, &l.At); err != nil {
			return nil, err
		}
		l.Action = ApprovalAction(action)
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func (l ApprovalLog) validate() error {
	switch {
	case l.Module == "":
		return errors.New("approval module required")
	case l.ActorID == 0:
		return errors.New("approval actor required")
	case l.RefID == 0:
		return errors.New("approval ref id required")
	case l.Action == "":
		return errors.New("approval action required")
	}
	return nil
}
