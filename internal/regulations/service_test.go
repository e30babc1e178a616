package regulations

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ncompliance/ncompliance/internal/platform/httpx"
)

func TestNextCode(t *testing.T) {
	cases := []struct {
		category Category
		last     string
		want     string
	}{
		{CategoryRegulation, "", "REG0001"},
		{CategoryRegulation, "REG0006", "REG0007"},
		{CategoryPolicy, "POL0099", "POL0100"},
		{CategoryManual, "LEGACY-7", "MAN0001"},
		{CategoryGuideline, "GUI9999", "GUI10000"},
	}
	for _, tc := range cases {
		t.Run(tc.want, func(t *testing.T) {
			require.Equal(t, tc.want, NextCode(tc.category, tc.last))
		})
	}
}

func TestCreateAssignsCodeAndInitialVersion(t *testing.T) {
	f := newLedgerFixture(t)
	f.repo.seed(Regulation{Code: "REG0006", Category: CategoryRegulation, ResponsibleDeptID: 10})
	ctx := context.Background()

	reg, err := f.service.Create(ctx, f.compliance, RegulationInput{
		Title:             " 개인정보 보호 규정 ",
		Category:          "regulation",
		ResponsibleDeptID: 10,
		AllowedCompanies:  []int64{1},
		EffectiveDate:     "2024-04-01",
		Tags:              []string{"개인정보", " 개인정보 ", ""},
	})
	require.NoError(t, err)
	require.Equal(t, "REG0007", reg.Code)
	require.Equal(t, "개인정보 보호 규정", reg.Title)
	require.Equal(t, StatusActive, reg.Status)
	require.Equal(t, "1.0", reg.CurrentVersion)
	require.Equal(t, ScopeAll, reg.Scope)
	require.Equal(t, AccessAll, reg.AccessLevel)
	require.Equal(t, []string{"개인정보"}, reg.Tags)
	require.Equal(t, "2024-04-01", reg.EffectiveDate.Format("2006-01-02"))
	require.Equal(t, f.compliance.ID, *reg.CreatedBy)

	versions, err := f.repo.ListVersions(ctx, reg.ID)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	require.Equal(t, ChangeCreate, versions[0].ChangeType)
	require.Equal(t, "1.0", versions[0].VersionNumber)

	require.Len(t, f.notifier.events, 1)
	require.Equal(t, reg.ID, f.notifier.events[0].Regulation.ID)
}

func TestCreateByDeptManagerUsesOwnDepartment(t *testing.T) {
	f := newLedgerFixture(t)

	reg, err := f.service.Create(context.Background(), f.manager, RegulationInput{
		Title:             "출장 지침",
		Category:          "GUIDELINE",
		ResponsibleDeptID: 20,
		CurrentVersion:    "0.9",
	})
	require.NoError(t, err)
	require.Equal(t, int64(10), reg.ResponsibleDeptID)
	require.Equal(t, "김부장", reg.Manager)
	require.Equal(t, "GUI0001", reg.Code)
	require.Equal(t, "0.9", reg.CurrentVersion)
}

func TestCreateRejections(t *testing.T) {
	f := newLedgerFixture(t)
	f.seedRegulation()
	ctx := context.Background()

	_, err := f.service.Create(ctx, f.general, RegulationInput{Title: "x", Category: "POLICY", ResponsibleDeptID: 10})
	require.ErrorIs(t, err, httpx.ErrForbidden)

	_, err = f.service.Create(ctx, f.compliance, RegulationInput{Category: "POLICY", ResponsibleDeptID: 10})
	var verr *httpx.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Fields, "title")

	_, err = f.service.Create(ctx, f.compliance, RegulationInput{Title: "x", Category: "POLICY"})
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Fields, "responsible_dept_id")

	_, err = f.service.Create(ctx, f.compliance, RegulationInput{Code: "reg0001", Title: "x", Category: "REGULATION", ResponsibleDeptID: 10})
	require.ErrorIs(t, err, httpx.ErrDuplicate)
	require.Empty(t, f.notifier.events)
	require.Len(t, f.repo.regs, 1)
	require.Empty(t, f.repo.versions)
}

func TestUpdateKeepsLedgerFields(t *testing.T) {
	f := newLedgerFixture(t)
	reg := f.seedRegulation()

	updated, err := f.service.Update(context.Background(), f.manager, reg.ID, RegulationInput{
		Code:              "HACK0001",
		Title:             "윤리 강령",
		Category:          "POLICY",
		ResponsibleDeptID: 20,
		AllowedCompanies:  []int64{1, 2},
	})
	require.NoError(t, err)
	require.Equal(t, "REG0001", updated.Code)
	require.Equal(t, "1.0", updated.CurrentVersion)
	require.Equal(t, StatusActive, updated.Status)
	require.Equal(t, int64(10), updated.ResponsibleDeptID)
	require.Equal(t, CategoryPolicy, updated.Category)
	require.Equal(t, []int64{1, 2}, updated.AllowedCompanies)

	_, err = f.service.Update(context.Background(), f.otherManager, reg.ID, RegulationInput{Title: "x", Category: "POLICY"})
	require.ErrorIs(t, err, httpx.ErrForbidden)
}

func TestUpdateRejectsParentCycle(t *testing.T) {
	f := newLedgerFixture(t)
	root := f.repo.seed(Regulation{Code: "POL0001", Category: CategoryPolicy, ResponsibleDeptID: 10})
	child := f.repo.seed(Regulation{Code: "REG0001", Category: CategoryRegulation, ResponsibleDeptID: 10, ParentID: ptr(root.ID)})

	_, err := f.service.Update(context.Background(), f.compliance, root.ID, RegulationInput{
		Title:    "기본 방침",
		Category: "POLICY",
		ParentID: ptr(child.ID),
	})
	var verr *httpx.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Fields, "parent_id")

	_, err = f.service.Update(context.Background(), f.compliance, root.ID, RegulationInput{
		Title:    "기본 방침",
		Category: "POLICY",
		ParentID: ptr(root.ID),
	})
	require.ErrorAs(t, err, &verr)
}

func TestDeleteRemovesFiles(t *testing.T) {
	f := newLedgerFixture(t)
	reg := f.seedRegulation()
	ctx := context.Background()

	_, err := f.ledger.Append(ctx, f.compliance, reg.ID, AppendInput{
		VersionNumber: "2.0",
		ChangeType:    "REVISE",
		ChangeReason:  "개정",
		Attachment:    &Attachment{Filename: "rev.docx", Data: []byte("PK")},
	})
	require.NoError(t, err)
	_, err = f.service.UploadOriginal(ctx, f.compliance, reg.ID, Attachment{Filename: "원본.hwp", Data: []byte("HWP")})
	require.NoError(t, err)
	require.Len(t, storedFiles(t, f.root), 2)

	require.ErrorIs(t, f.service.Delete(ctx, f.manager, reg.ID), httpx.ErrForbidden)
	require.NoError(t, f.service.Delete(ctx, f.compliance, reg.ID))
	require.Empty(t, storedFiles(t, f.root))

	_, err = f.repo.Get(ctx, reg.ID)
	require.ErrorIs(t, err, ErrRegulationNotFound)
}

func TestUploadOriginalReplacesPreviousFile(t *testing.T) {
	f := newLedgerFixture(t)
	reg := f.seedRegulation()
	ctx := context.Background()

	first, err := f.service.UploadOriginal(ctx, f.manager, reg.ID, Attachment{Filename: "a.pdf", Data: []byte("1")})
	require.NoError(t, err)
	second, err := f.service.UploadOriginal(ctx, f.manager, reg.ID, Attachment{Filename: "b.pdf", Data: []byte("2")})
	require.NoError(t, err)
	require.NotEqual(t, first.OriginalFile, second.OriginalFile)
	require.Len(t, storedFiles(t, f.root), 1)

	_, err = f.service.UploadOriginal(ctx, f.manager, reg.ID, Attachment{Filename: "c.zip", Data: []byte("3")})
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestOpenAttachment(t *testing.T) {
	f := newLedgerFixture(t)
	reg := f.seedRegulation()
	ctx := context.Background()

	v, err := f.ledger.Append(ctx, f.compliance, reg.ID, AppendInput{
		VersionNumber: "2.0",
		ChangeType:    "REVISE",
		ChangeReason:  "개정",
		Attachment:    &Attachment{Filename: "윤리규정 개정안.pdf", Data: []byte("%PDF")},
	})
	require.NoError(t, err)

	dl, err := f.service.OpenAttachment(ctx, f.general, v.ID, "10.0.0.7")
	require.NoError(t, err)
	body, err := io.ReadAll(dl.Body)
	require.NoError(t, dl.Body.Close())
	require.NoError(t, err)
	require.Equal(t, "%PDF", string(body))
	require.Equal(t, "REG0001_v2.0.pdf", dl.Filename)
	require.Len(t, f.repo.downloads, 1)
	require.Equal(t, "10.0.0.7", f.repo.downloads[0].IPAddress)
	require.Equal(t, f.general.ID, f.repo.downloads[0].UserID)

	outsider := f.general
	outsider.ID = 9
	outsider.CompanyID = ptr(2)
	_, err = f.service.OpenAttachment(ctx, outsider, v.ID, "")
	require.ErrorIs(t, err, httpx.ErrForbidden)
	require.Len(t, f.repo.downloads, 1)

	plain, err := f.ledger.Append(ctx, f.compliance, reg.ID, AppendInput{VersionNumber: "3.0", ChangeType: "REVISE", ChangeReason: "개정"})
	require.NoError(t, err)
	_, err = f.service.OpenAttachment(ctx, f.general, plain.ID, "")
	require.ErrorIs(t, err, ErrAttachmentMissing)
}

func TestFavoritesAndTags(t *testing.T) {
	f := newLedgerFixture(t)
	reg := f.seedRegulation()
	hidden := f.repo.seed(Regulation{Code: "REG0002", Category: CategoryRegulation, ResponsibleDeptID: 20, AllowedCompanies: []int64{2}, Tags: []string{"보안"}})
	ctx := context.Background()

	on, err := f.service.ToggleFavorite(ctx, f.general, reg.ID)
	require.NoError(t, err)
	require.True(t, on)
	favs, err := f.service.Favorites(ctx, f.general)
	require.NoError(t, err)
	require.Len(t, favs, 1)

	on, err = f.service.ToggleFavorite(ctx, f.general, reg.ID)
	require.NoError(t, err)
	require.False(t, on)

	_, err = f.service.ToggleFavorite(ctx, f.general, hidden.ID)
	require.ErrorIs(t, err, httpx.ErrForbidden)

	tags, err := f.service.Tags(ctx, f.general)
	require.NoError(t, err)
	require.Empty(t, tags)

	regs, err := f.service.ByTag(ctx, f.general, "보안")
	require.NoError(t, err)
	require.Empty(t, regs)
	_, err = f.service.ByTag(ctx, f.general, "없는태그")
	require.ErrorIs(t, err, ErrTagNotFound)
}

func TestDetailAndCategoryCounts(t *testing.T) {
	f := newLedgerFixture(t)
	reg := f.seedRegulation()
	child := f.repo.seed(Regulation{Code: "GUI0001", Category: CategoryGuideline, ResponsibleDeptID: 10, ParentID: ptr(reg.ID), AllowedCompanies: []int64{1}})
	f.repo.seed(Regulation{Code: "GUI0002", Category: CategoryGuideline, ResponsibleDeptID: 10, ParentID: ptr(reg.ID), AllowedCompanies: []int64{2}})
	ctx := context.Background()

	d, err := f.service.Detail(ctx, f.general, reg.ID)
	require.NoError(t, err)
	require.Equal(t, reg.ID, d.Regulation.ID)
	require.Len(t, d.Children, 1)
	require.Equal(t, child.ID, d.Children[0].ID)
	require.False(t, d.Favorite)

	counts, err := f.service.CategoryCounts(ctx, f.general)
	require.NoError(t, err)
	require.Equal(t, []CategoryCount{
		{Category: CategoryPolicy, Label: "정책/방침", Count: 0},
		{Category: CategoryRegulation, Label: "규정", Count: 1},
		{Category: CategoryGuideline, Label: "지침", Count: 1},
		{Category: CategoryManual, Label: "매뉴얼/가이드라인", Count: 0},
	}, counts)
}
