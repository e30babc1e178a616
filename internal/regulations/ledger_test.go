package regulations

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ncompliance/ncompliance/internal/platform/httpx"
	"github.com/ncompliance/ncompliance/internal/rbac"
	"github.com/ncompliance/ncompliance/internal/shared"
)

var kst = time.FixedZone("KST", 9*60*60)

type ledgerFixture struct {
	repo      *memoryRepo
	notifier  *recordingNotifier
	approvals *memoryApprovals
	audit     *memoryAudit
	root      string
	clock     time.Time
	ledger    *Ledger
	service   *Service

	compliance   rbac.Actor
	manager      rbac.Actor
	otherManager rbac.Actor
	general      rbac.Actor
}

func newLedgerFixture(t *testing.T) *ledgerFixture {
	t.Helper()
	f := &ledgerFixture{
		repo:      newMemoryRepo(),
		notifier:  &recordingNotifier{},
		approvals: &memoryApprovals{},
		audit:     &memoryAudit{},
		root:      t.TempDir(),
		// 2024-04-01 01:00 in Seoul, still March 31 in UTC.
		clock: time.Date(2024, 3, 31, 16, 0, 0, 0, time.UTC),

		compliance:   rbac.Actor{ID: 1, Username: "compliance", FullName: "준법지원", Role: rbac.RoleCompliance, IsActive: true},
		manager:      rbac.Actor{ID: 2, Username: "kim", FullName: "김부장", Role: rbac.RoleDeptManager, IsActive: true, DepartmentID: ptr(10), CompanyID: ptr(1)},
		otherManager: rbac.Actor{ID: 4, Username: "lee", FullName: "이부장", Role: rbac.RoleDeptManager, IsActive: true, DepartmentID: ptr(20), CompanyID: ptr(1)},
		general:      rbac.Actor{ID: 3, Username: "park", FullName: "박사원", Role: rbac.RoleGeneral, IsActive: true, DepartmentID: ptr(10), CompanyID: ptr(1)},
	}
	f.ledger = NewLedger(f.repo, LedgerConfig{
		Storage:   NewLocalStorage(f.root),
		Notifier:  f.notifier,
		Audit:     f.audit,
		Approvals: f.approvals,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Location:  kst,
		Now:       func() time.Time { return f.clock },
	})
	f.service = NewService(f.repo, f.ledger)
	return f
}

func (f *ledgerFixture) seedRegulation() Regulation {
	return f.repo.seed(Regulation{
		Code:              "REG0001",
		Title:             "윤리 규정",
		Category:          CategoryRegulation,
		Scope:             ScopeAll,
		ResponsibleDeptID: 10,
		CurrentVersion:    "1.0",
		AllowedCompanies:  []int64{1},
		Content:           "제1조 목적\n제2조 정의",
	})
}

func storedFiles(t *testing.T, root string) []string {
	t.Helper()
	var files []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			files = append(files, p)
		}
		return nil
	})
	require.NoError(t, err)
	return files
}

func TestLedgerReviseAdvancesCurrentVersion(t *testing.T) {
	f := newLedgerFixture(t)
	reg := f.seedRegulation()

	v, err := f.ledger.Append(context.Background(), f.compliance, reg.ID, AppendInput{
		VersionNumber: "2.0",
		ChangeType:    "revise",
		ChangeReason:  "법령 개정 반영",
	})
	require.NoError(t, err)
	require.Equal(t, ChangeRevise, v.ChangeType)
	require.Equal(t, reg.Content, v.ContentSnapshot)

	got, err := f.repo.Get(context.Background(), reg.ID)
	require.NoError(t, err)
	require.Equal(t, "2.0", got.CurrentVersion)
	require.Equal(t, StatusActive, got.Status)
	require.Nil(t, got.AbolishedDate)

	require.Len(t, f.notifier.events, 1)
	require.Equal(t, "2.0", f.notifier.events[0].Regulation.CurrentVersion)
	require.Equal(t, f.compliance.ID, f.notifier.events[0].ActorID)

	require.Len(t, f.approvals.logs, 1)
	require.Equal(t, shared.ApprovalSubmit, f.approvals.logs[0].Action)
	require.Equal(t, v.ID, f.approvals.logs[0].RefID)

	require.Len(t, f.audit.logs, 1)
	require.Equal(t, "version.revise", f.audit.logs[0].Action)
}

func TestLedgerAbolishStampsDateInConfiguredZone(t *testing.T) {
	f := newLedgerFixture(t)
	reg := f.seedRegulation()

	_, err := f.ledger.Append(context.Background(), f.compliance, reg.ID, AppendInput{
		VersionNumber: "3.0",
		ChangeType:    string(ChangeAbolish),
		ChangeReason:  "통합 규정으로 대체",
	})
	require.NoError(t, err)

	got, err := f.repo.Get(context.Background(), reg.ID)
	require.NoError(t, err)
	require.Equal(t, StatusAbolished, got.Status)
	require.Equal(t, "3.0", got.CurrentVersion)
	require.NotNil(t, got.AbolishedDate)
	require.Equal(t, "2024-04-01", got.AbolishedDate.Format(time.DateOnly))
}

func TestLedgerCreateReactivates(t *testing.T) {
	f := newLedgerFixture(t)
	reg := f.repo.seed(Regulation{Code: "POL0001", Category: CategoryPolicy, ResponsibleDeptID: 10, Status: StatusAbolished})

	_, err := f.ledger.Append(context.Background(), f.compliance, reg.ID, AppendInput{
		VersionNumber: "1.0",
		ChangeType:    string(ChangeCreate),
		ChangeReason:  "재제정",
	})
	require.NoError(t, err)

	got, err := f.repo.Get(context.Background(), reg.ID)
	require.NoError(t, err)
	require.Equal(t, StatusActive, got.Status)
	require.Equal(t, "1.0", got.CurrentVersion)
}

func TestLedgerDuplicateVersionRollsBackAndRemovesFile(t *testing.T) {
	f := newLedgerFixture(t)
	reg := f.seedRegulation()
	ctx := context.Background()

	_, err := f.ledger.Append(ctx, f.compliance, reg.ID, AppendInput{VersionNumber: "2.0", ChangeType: "REVISE", ChangeReason: "개정"})
	require.NoError(t, err)

	_, err = f.ledger.Append(ctx, f.compliance, reg.ID, AppendInput{
		VersionNumber: "2.0",
		ChangeType:    "ABOLISH",
		ChangeReason:  "중복",
		Attachment:    &Attachment{Filename: "rev.pdf", Data: []byte("%PDF-1.4")},
	})
	require.ErrorIs(t, err, ErrDuplicateVersion)
	require.ErrorIs(t, err, httpx.ErrDuplicate)

	versions, err := f.repo.ListVersions(ctx, reg.ID)
	require.NoError(t, err)
	require.Len(t, versions, 1)

	got, err := f.repo.Get(ctx, reg.ID)
	require.NoError(t, err)
	require.Equal(t, StatusActive, got.Status)
	require.Empty(t, storedFiles(t, f.root))
	require.Len(t, f.notifier.events, 1)
}

func TestLedgerRejectsAttachmentBeforeWriting(t *testing.T) {
	f := newLedgerFixture(t)
	reg := f.seedRegulation()

	_, err := f.ledger.Append(context.Background(), f.compliance, reg.ID, AppendInput{
		VersionNumber: "2.0",
		ChangeType:    "REVISE",
		ChangeReason:  "개정",
		Attachment:    &Attachment{Filename: "macro.exe", Data: []byte("MZ")},
	})
	require.ErrorIs(t, err, httpx.ErrValidation)

	versions, err := f.repo.ListVersions(context.Background(), reg.ID)
	require.NoError(t, err)
	require.Empty(t, versions)
	require.Empty(t, storedFiles(t, f.root))
}

func TestLedgerValidatesInput(t *testing.T) {
	f := newLedgerFixture(t)
	reg := f.seedRegulation()

	_, err := f.ledger.Append(context.Background(), f.compliance, reg.ID, AppendInput{ChangeType: "RENAME"})
	var verr *httpx.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Fields, "versionnumber")
	require.Contains(t, verr.Fields, "changetype")
	require.Contains(t, verr.Fields, "changereason")
}

func TestLedgerNotifierFailureDoesNotFailAppend(t *testing.T) {
	f := newLedgerFixture(t)
	f.notifier.err = errors.New("smtp unavailable")
	reg := f.seedRegulation()

	v, err := f.ledger.Append(context.Background(), f.compliance, reg.ID, AppendInput{VersionNumber: "2.0", ChangeType: "REVISE", ChangeReason: "개정"})
	require.NoError(t, err)
	require.NotZero(t, v.ID)

	versions, err := f.repo.ListVersions(context.Background(), reg.ID)
	require.NoError(t, err)
	require.Len(t, versions, 1)
}

func TestLedgerAppendAuthorization(t *testing.T) {
	f := newLedgerFixture(t)
	reg := f.seedRegulation()
	ctx := context.Background()
	in := AppendInput{VersionNumber: "2.0", ChangeType: "REVISE", ChangeReason: "개정"}

	_, err := f.ledger.Append(ctx, f.otherManager, reg.ID, in)
	require.ErrorIs(t, err, httpx.ErrForbidden)
	_, err = f.ledger.Append(ctx, f.general, reg.ID, in)
	require.ErrorIs(t, err, httpx.ErrForbidden)

	_, err = f.ledger.Append(ctx, f.manager, reg.ID, in)
	require.NoError(t, err)

	_, err = f.ledger.Append(ctx, f.compliance, 999, in)
	require.ErrorIs(t, err, ErrRegulationNotFound)
}

func TestLedgerApprove(t *testing.T) {
	f := newLedgerFixture(t)
	reg := f.seedRegulation()
	ctx := context.Background()

	v, err := f.ledger.Append(ctx, f.manager, reg.ID, AppendInput{VersionNumber: "2.0", ChangeType: "REVISE", ChangeReason: "개정"})
	require.NoError(t, err)

	_, err = f.ledger.Approve(ctx, f.manager, v.ID, "")
	require.ErrorIs(t, err, httpx.ErrForbidden)

	approved, err := f.ledger.Approve(ctx, f.compliance, v.ID, "확인")
	require.NoError(t, err)
	require.NotNil(t, approved.ApprovedBy)
	require.Equal(t, f.compliance.ID, *approved.ApprovedBy)
	require.True(t, approved.ApprovedAt.Equal(f.clock))

	trail, err := f.ledger.Approvals(ctx, f.general, v.ID)
	require.NoError(t, err)
	require.Len(t, trail, 2)
	require.Equal(t, shared.ApprovalSubmit, trail[0].Action)
	require.Equal(t, shared.ApprovalApprove, trail[1].Action)
	require.Equal(t, "확인", trail[1].Note)
}

func TestLedgerHistoryNewestFirst(t *testing.T) {
	f := newLedgerFixture(t)
	reg := f.seedRegulation()
	ctx := context.Background()

	for _, number := range []string{"2.0", "2.1", "3.0"} {
		_, err := f.ledger.Append(ctx, f.compliance, reg.ID, AppendInput{VersionNumber: number, ChangeType: "REVISE", ChangeReason: "개정"})
		require.NoError(t, err)
		f.clock = f.clock.Add(time.Hour)
	}

	history, err := f.ledger.History(ctx, f.general, reg.ID)
	require.NoError(t, err)
	var numbers []string
	for _, v := range history {
		numbers = append(numbers, v.VersionNumber)
	}
	require.Equal(t, []string{"3.0", "2.1", "2.0"}, numbers)
}

func TestLedgerDiff(t *testing.T) {
	f := newLedgerFixture(t)
	reg := f.seedRegulation()
	ctx := context.Background()

	_, err := f.ledger.Append(ctx, f.compliance, reg.ID, AppendInput{VersionNumber: "2.0", ChangeType: "REVISE", ChangeReason: "개정"})
	require.NoError(t, err)

	updated := reg
	updated.Content = "제1조 목적\n제2조 용어의 정의\n제3조 적용범위"
	f.repo.regs[reg.ID] = updated
	f.clock = f.clock.Add(time.Minute)
	_, err = f.ledger.Append(ctx, f.compliance, reg.ID, AppendInput{VersionNumber: "3.0", ChangeType: "REVISE", ChangeReason: "개정"})
	require.NoError(t, err)

	res, err := f.ledger.Diff(ctx, f.general, reg.ID, "v2.0", "3.0")
	require.NoError(t, err)
	require.Equal(t, "2.0", res.From)
	require.Equal(t, "3.0", res.To)
	require.NotEmpty(t, res.Patch)

	var before, after strings.Builder
	inserted := false
	for _, c := range res.Chunks {
		switch c.Op {
		case "equal":
			before.WriteString(c.Text)
			after.WriteString(c.Text)
		case "delete":
			before.WriteString(c.Text)
		case "insert":
			inserted = true
			after.WriteString(c.Text)
		}
	}
	require.True(t, inserted)
	require.Equal(t, reg.Content, before.String())
	require.Equal(t, updated.Content, after.String())

	_, err = f.ledger.Diff(ctx, f.general, reg.ID, "2.0", "9.9")
	require.ErrorIs(t, err, ErrVersionNotFound)
}
