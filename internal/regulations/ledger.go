package regulations

import (
	"context"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/ncompliance/ncompliance/internal/platform/httpx"
	"github.com/ncompliance/ncompliance/internal/rbac"
	"github.com/ncompliance/ncompliance/internal/shared"
)

// ChangeEvent describes a committed ledger append.
type ChangeEvent struct {
	Regulation Regulation
	Version    Version
	ActorID    int64
}

// ChangeNotifier is told about every committed ledger append. Failures are
// logged by the ledger and never undo the append.
type ChangeNotifier interface {
	RegulationChanged(ctx context.Context, ev ChangeEvent) error
}

// LedgerConfig wires the ledger's collaborators. Zero values fall back to
// no-op implementations.
type LedgerConfig struct {
	Storage        Storage
	Notifier       ChangeNotifier
	Audit          shared.AuditRecorder
	Approvals      shared.ApprovalStore
	Logger         *slog.Logger
	Location       *time.Location
	MaxUploadBytes int64
	Now            func() time.Time
}

// Ledger appends versions to regulations. Each append and its regulation
// update commit together.
type Ledger struct {
	repo      Repository
	storage   Storage
	notifier  ChangeNotifier
	audit     shared.AuditRecorder
	approvals shared.ApprovalStore
	logger    *slog.Logger
	loc       *time.Location
	maxBytes  int64
	now       func() time.Time
}

// NewLedger constructs a Ledger.
func NewLedger(repo Repository, cfg LedgerConfig) *Ledger {
	l := &Ledger{
		repo:      repo,
		storage:   cfg.Storage,
		notifier:  cfg.Notifier,
		audit:     cfg.Audit,
		approvals: cfg.Approvals,
		logger:    cfg.Logger,
		loc:       cfg.Location,
		maxBytes:  cfg.MaxUploadBytes,
		now:       cfg.Now,
	}
	if l.audit == nil {
		l.audit = shared.NopAudit{}
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	if l.loc == nil {
		l.loc = time.UTC
	}
	if l.maxBytes <= 0 {
		l.maxBytes = DefaultMaxUploadBytes
	}
	if l.now == nil {
		l.now = time.Now
	}
	return l
}

// SetNotifier replaces the change notifier. It exists so the notification
// service, which depends on this package, can be attached after both are built.
func (l *Ledger) SetNotifier(n ChangeNotifier) {
	l.notifier = n
}

// Today returns midnight of the current day in the configured zone.
func (l *Ledger) Today() time.Time {
	n := l.now().In(l.loc)
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, l.loc)
}

// Append records a CREATE, REVISE or ABOLISH event. The attachment, if any,
// is validated before anything is written and removed again if the
// transaction fails. Fan-out runs after commit.
func (l *Ledger) Append(ctx context.Context, actor rbac.Actor, regulationID int64, in AppendInput) (Version, error) {
	reg, err := l.repo.Get(ctx, regulationID)
	if err != nil {
		return Version{}, err
	}
	if err := rbac.Authorize(actor, rbac.ActionVersionCreate, reg); err != nil {
		return Version{}, err
	}

	in.VersionNumber = strings.TrimSpace(in.VersionNumber)
	in.ChangeType = strings.ToUpper(strings.TrimSpace(in.ChangeType))
	in.ChangeReason = strings.TrimSpace(in.ChangeReason)
	if err := shared.ValidateStruct(in); err != nil {
		return Version{}, err
	}

	key := ""
	if in.Attachment != nil {
		if err := ValidateAttachment(*in.Attachment, l.maxBytes); err != nil {
			return Version{}, err
		}
		if l.storage == nil {
			return Version{}, httpx.Invalid("file", "첨부파일 저장소가 설정되지 않았습니다.")
		}
		if key, err = l.storage.Save(path.Join("regulations", reg.Code), *in.Attachment); err != nil {
			return Version{}, err
		}
	}

	var version Version
	var updated Regulation
	err = l.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		locked, err := tx.LockRegulation(ctx, regulationID)
		if err != nil {
			return err
		}
		version, err = l.appendTx(ctx, tx, actor, locked, in, key)
		if err != nil {
			return err
		}
		updated = applyChange(locked, version.ChangeType, version.VersionNumber, l.Today())
		return nil
	})
	if err != nil {
		if key != "" {
			if rmErr := l.storage.Remove(key); rmErr != nil {
				l.logger.Warn("remove orphaned attachment", slog.String("key", key), slog.Any("error", rmErr))
			}
		}
		return Version{}, err
	}

	l.afterCommit(ctx, actor, updated, version)
	return version, nil
}

func (l *Ledger) appendTx(ctx context.Context, tx TxRepository, actor rbac.Actor, reg Regulation, in AppendInput, key string) (Version, error) {
	change := ChangeType(in.ChangeType)
	actorID := actor.ID
	v, err := tx.InsertVersion(ctx, Version{
		RegulationID:    reg.ID,
		VersionNumber:   in.VersionNumber,
		ChangeType:      change,
		ChangeReason:    in.ChangeReason,
		ChangeSummary:   strings.TrimSpace(in.ChangeSummary),
		ContentFile:     key,
		ContentSnapshot: reg.Content,
		CreatedBy:       &actorID,
		CreatedAt:       l.now(),
	})
	if err != nil {
		return Version{}, err
	}
	if err := tx.ApplyChange(ctx, reg.ID, change, v.VersionNumber, l.Today()); err != nil {
		return Version{}, err
	}
	v.CreatorName = actor.FullName
	return v, nil
}

// applyChange mirrors ApplyChange on an in-memory copy.
func applyChange(reg Regulation, change ChangeType, versionNumber string, day time.Time) Regulation {
	reg.CurrentVersion = versionNumber
	switch change {
	case ChangeCreate:
		reg.Status = StatusActive
	case ChangeAbolish:
		reg.Status = StatusAbolished
		reg.AbolishedDate = &day
	}
	return reg
}

func (l *Ledger) afterCommit(ctx context.Context, actor rbac.Actor, reg Regulation, v Version) {
	if err := l.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.ID,
		Action:   "version." + strings.ToLower(string(v.ChangeType)),
		Entity:   shared.AuditEntityVersion,
		EntityID: shared.EntityID(v.ID),
		Meta:     map[string]any{"regulation_id": reg.ID, "version_number": v.VersionNumber},
	}); err != nil {
		l.logger.Warn("audit version append", slog.Int64("version_id", v.ID), slog.Any("error", err))
	}
	if l.approvals != nil {
		if err := l.approvals.Record(ctx, shared.ApprovalLog{
			Module:  shared.ApprovalModuleVersion,
			RefID:   v.ID,
			ActorID: actor.ID,
			Action:  shared.ApprovalSubmit,
			Note:    v.ChangeReason,
		}); err != nil {
			l.logger.Warn("record version submission", slog.Int64("version_id", v.ID), slog.Any("error", err))
		}
	}
	if l.notifier != nil {
		if err := l.notifier.RegulationChanged(ctx, ChangeEvent{Regulation: reg, Version: v, ActorID: actor.ID}); err != nil {
			l.logger.Warn("notification fan-out failed",
				slog.Int64("regulation_id", reg.ID),
				slog.Int64("version_id", v.ID),
				slog.Any("error", err),
			)
		}
	}
}

// Approve stamps approver and time on a version.
func (l *Ledger) Approve(ctx context.Context, actor rbac.Actor, versionID int64, note string) (Version, error) {
	v, err := l.repo.GetVersion(ctx, versionID)
	if err != nil {
		return Version{}, err
	}
	reg, err := l.repo.Get(ctx, v.RegulationID)
	if err != nil {
		return Version{}, err
	}
	if err := rbac.Authorize(actor, rbac.ActionVersionApprove, reg); err != nil {
		return Version{}, err
	}
	if err := l.repo.ApproveVersion(ctx, versionID, actor.ID, l.now()); err != nil {
		return Version{}, err
	}
	if l.approvals != nil {
		if err := l.approvals.Record(ctx, shared.ApprovalLog{
			Module:  shared.ApprovalModuleVersion,
			RefID:   versionID,
			ActorID: actor.ID,
			Action:  shared.ApprovalApprove,
			Note:    note,
		}); err != nil {
			l.logger.Warn("record version approval", slog.Int64("version_id", versionID), slog.Any("error", err))
		}
	}
	_ = l.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.ID,
		Action:   "version.approve",
		Entity:   shared.AuditEntityVersion,
		EntityID: shared.EntityID(versionID),
	})
	return l.repo.GetVersion(ctx, versionID)
}

// Approvals lists the submission and approval trail of a version.
func (l *Ledger) Approvals(ctx context.Context, actor rbac.Actor, versionID int64) ([]shared.ApprovalLog, error) {
	v, err := l.repo.GetVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}
	reg, err := l.repo.Get(ctx, v.RegulationID)
	if err != nil {
		return nil, err
	}
	if err := rbac.Authorize(actor, rbac.ActionRegulationView, reg); err != nil {
		return nil, err
	}
	if l.approvals == nil {
		return nil, nil
	}
	return l.approvals.List(ctx, shared.ApprovalModuleVersion, versionID)
}

// History returns the ledger newest first.
func (l *Ledger) History(ctx context.Context, actor rbac.Actor, regulationID int64) ([]Version, error) {
	reg, err := l.repo.Get(ctx, regulationID)
	if err != nil {
		return nil, err
	}
	if err := rbac.Authorize(actor, rbac.ActionRegulationView, reg); err != nil {
		return nil, err
	}
	return l.repo.ListVersions(ctx, regulationID)
}

// DiffChunk is one run of a content diff.
type DiffChunk struct {
	Op   string `json:"op"`
	Text string `json:"text"`
}

// DiffResult compares the content snapshots of two versions.
type DiffResult struct {
	From   string      `json:"from"`
	To     string      `json:"to"`
	Chunks []DiffChunk `json:"chunks"`
	Patch  string      `json:"patch"`
}

// Diff compares the content captured by two versions of one regulation.
func (l *Ledger) Diff(ctx context.Context, actor rbac.Actor, regulationID int64, from, to string) (DiffResult, error) {
	versions, err := l.History(ctx, actor, regulationID)
	if err != nil {
		return DiffResult{}, err
	}
	a, okA := findVersion(versions, from)
	b, okB := findVersion(versions, to)
	if !okA || !okB {
		return DiffResult{}, ErrVersionNotFound
	}

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(a.ContentSnapshot, b.ContentSnapshot, false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	res := DiffResult{From: a.VersionNumber, To: b.VersionNumber}
	for _, d := range diffs {
		op := "equal"
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			op = "insert"
		case diffmatchpatch.DiffDelete:
			op = "delete"
		}
		res.Chunks = append(res.Chunks, DiffChunk{Op: op, Text: d.Text})
	}
	res.Patch = dmp.PatchToText(dmp.PatchMake(a.ContentSnapshot, diffs))
	return res, nil
}

func findVersion(versions []Version, number string) (Version, bool) {
	number = strings.TrimPrefix(strings.TrimSpace(number), "v")
	for _, v := range versions {
		if v.VersionNumber == number {
			return v, true
		}
	}
	return Version{}, false
}
