package orgs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func id(v int64) *int64 { return &v }

func sampleTree() Tree {
	return NewTree([]Department{
		{ID: 1, Name: "경영지원본부"},
		{ID: 2, Name: "인사팀", ParentID: id(1)},
		{ID: 3, Name: "채용파트", ParentID: id(2)},
		{ID: 4, Name: "준법지원팀"},
	})
}

func TestFullPathWalksToRoot(t *testing.T) {
	tree := sampleTree()
	require.Equal(t, "경영지원본부 > 인사팀 > 채용파트", tree.FullPath(3))
	require.Equal(t, "준법지원팀", tree.FullPath(4))
	require.Equal(t, "", tree.FullPath(99))
}

func TestCheckParentRejectsCycles(t *testing.T) {
	tree := sampleTree()

	require.NoError(t, tree.CheckParent(4, id(3)))
	require.NoError(t, tree.CheckParent(0, id(1)))
	require.NoError(t, tree.CheckParent(2, nil))

	require.ErrorIs(t, tree.CheckParent(2, id(2)), ErrDepartmentCycle)
	require.ErrorIs(t, tree.CheckParent(1, id(3)), ErrDepartmentCycle)
	require.ErrorIs(t, tree.CheckParent(2, id(42)), ErrDepartmentNotFound)
}

func TestAncestryBoundedOnCorruptData(t *testing.T) {
	tree := NewTree([]Department{
		{ID: 1, Name: "A", ParentID: id(2)},
		{ID: 2, Name: "B", ParentID: id(1)},
	})
	_, err := tree.Ancestry(1)
	require.Error(t, err)
	require.Equal(t, "A", tree.FullPath(1))
	require.ErrorIs(t, tree.CheckParent(3, id(1)), ErrDepartmentCycle)
}

func TestDescendants(t *testing.T) {
	require.ElementsMatch(t, []int64{2, 3}, sampleTree().Descendants(1))
	require.Empty(t, sampleTree().Descendants(4))
}
