package dashboard

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ncompliance/ncompliance/internal/rbac"
	"github.com/ncompliance/ncompliance/internal/regulations"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestOrderExactMatchThenAliasThenRest(t *testing.T) {
	order := NewOrder(DefaultGroupOrder, DefaultAliases)
	names := []string{NoGroup, "총무", "개인정보보호", "인사", "인사 운영", "정보보호", "이사회", "ESG", "감사"}

	order.Sort(names)

	// "인사 운영" is not an alias key, and "정보보호" does not capture
	// "개인정보보호".
	assert.Equal(t, []string{"이사회", "인사", "정보보호", "개인정보보호", "ESG", "감사", "인사 운영", "총무", NoGroup}, names)
}

func TestOrderRanks(t *testing.T) {
	order := NewOrder([]string{" 재무 ", "", "HR", "HR"}, map[string]string{"회계": "재무", "기타": "없는그룹"})
	assert.Equal(t, 0, order.Rank("재무"))
	assert.Equal(t, 1, order.Rank("HR"))
	assert.Equal(t, 0, order.Rank("회계"))
	assert.Equal(t, 2, order.Rank("기타"))
	assert.Equal(t, 2, order.Rank("재무팀"))
	assert.Equal(t, 3, order.Rank(NoGroup))
}

func reg(id int64, group string, cat regulations.Category, title string) regulations.Regulation {
	return regulations.Regulation{ID: id, Code: string(cat)[:3], GroupName: group, Category: cat, Title: title}
}

func TestBuildTreeFavoritesFirstAndTitleSort(t *testing.T) {
	regs := []regulations.Regulation{
		reg(1, "HR", regulations.CategoryRegulation, "취업 규칙"),
		reg(2, "HR", regulations.CategoryPolicy, "인사 방침"),
		reg(3, "HR", regulations.CategoryRegulation, "급여 규정"),
		reg(4, "", regulations.CategoryGuideline, "기타 지침"),
		reg(5, "이사회", regulations.CategoryRegulation, "이사회 규정"),
	}
	tree := BuildTree(regs, map[int64]bool{3: true}, NewOrder(DefaultGroupOrder, nil))

	require.Len(t, tree, 4)
	assert.Equal(t, "즐겨찾기", tree[0].Name)
	assert.True(t, tree[0].IsFavorite)
	assert.Equal(t, 1, tree[0].Total)

	assert.Equal(t, "이사회", tree[1].Name)
	assert.Equal(t, "HR", tree[2].Name)
	assert.Equal(t, NoGroup, tree[3].Name)

	hr := tree[2]
	assert.Equal(t, 3, hr.Total)
	require.Len(t, hr.Buckets, 2)
	assert.Equal(t, regulations.CategoryPolicy, hr.Buckets[0].Category)
	assert.Equal(t, "정책/방침", hr.Buckets[0].Label)
	assert.Equal(t, regulations.CategoryRegulation, hr.Buckets[1].Category)
	titles := []string{hr.Buckets[1].Regulations[0].Title, hr.Buckets[1].Regulations[1].Title}
	assert.Equal(t, []string{"급여 규정", "취업 규칙"}, titles)
	assert.True(t, hr.Buckets[1].Regulations[0].IsFavorite)
}

func TestBuildTreeHasNoManualBucket(t *testing.T) {
	regs := []regulations.Regulation{
		reg(1, "HR", regulations.CategoryManual, "급여 시스템 매뉴얼"),
		reg(2, "HR", regulations.CategoryGuideline, "재택근무 지침"),
		reg(3, "재무", regulations.CategoryManual, "전표 입력 매뉴얼"),
	}
	tree := BuildTree(regs, map[int64]bool{1: true}, NewOrder(DefaultGroupOrder, nil))

	require.Len(t, tree, 2)
	assert.Equal(t, "HR", tree[0].Name)
	assert.False(t, tree[0].IsFavorite)
	assert.Equal(t, 1, tree[0].Total)
	require.Len(t, tree[0].Buckets, 1)
	assert.Equal(t, regulations.CategoryGuideline, tree[0].Buckets[0].Category)

	assert.Equal(t, "재무", tree[1].Name)
	assert.Zero(t, tree[1].Total)
	assert.Empty(t, tree[1].Buckets)
}

type stubRepo struct {
	regs      []regulations.Regulation
	counts    map[regulations.Category]int
	favorites []int64
	gotScope  Scope
	gotPub    bool
	err       error
}

func (s *stubRepo) Regulations(ctx context.Context, _ rbac.Actor, scope Scope) ([]regulations.Regulation, error) {
	s.gotScope = scope
	return s.regs, s.err
}

func (s *stubRepo) CategoryCounts(ctx context.Context, _ rbac.Actor, published bool) (map[regulations.Category]int, error) {
	s.gotPub = published
	return s.counts, nil
}

func (s *stubRepo) FavoriteIDs(ctx context.Context, _ int64) ([]int64, error) {
	return s.favorites, nil
}

func TestBuildViewCountsAndScope(t *testing.T) {
	repo := &stubRepo{
		regs: []regulations.Regulation{reg(1, "HR", regulations.CategoryPolicy, "인사 방침")},
		counts: map[regulations.Category]int{
			regulations.CategoryPolicy:     2,
			regulations.CategoryRegulation: 5,
			regulations.CategoryManual:     4,
		},
	}
	svc := NewService(repo, NewOrder(DefaultGroupOrder, DefaultAliases))
	general := rbac.Actor{ID: 9, Role: rbac.RoleGeneral, IsActive: true}

	view, err := svc.Build(context.Background(), general, "")
	require.NoError(t, err)
	assert.Equal(t, 7, view.TotalCount)
	assert.True(t, repo.gotScope.Published)
	assert.True(t, repo.gotPub)
	assert.Empty(t, repo.gotScope.Category)
	require.Len(t, view.CategoryCounts, 4)
	assert.Equal(t, 4, view.CategoryCounts[3].Count)
	assert.NotNil(t, view.FavoriteIDs)

	officer := rbac.Actor{ID: 2, Role: rbac.RoleCompliance, IsActive: true}
	view, err = svc.Build(context.Background(), officer, "manual")
	require.NoError(t, err)
	assert.False(t, repo.gotScope.Published)
	assert.Equal(t, regulations.CategoryManual, repo.gotScope.Category)
	assert.Equal(t, regulations.CategoryManual, view.CurrentCategory)

	_, err = svc.Build(context.Background(), officer, "memo")
	require.Error(t, err)
}

func TestBuildPropagatesLoadErrors(t *testing.T) {
	boom := errors.New("query failed")
	svc := NewService(&stubRepo{err: boom}, NewOrder(nil, nil))
	_, err := svc.Build(context.Background(), rbac.Actor{ID: 1, IsActive: true}, "")
	require.ErrorIs(t, err, boom)
}
