package orgs

import "strings"

// Tree indexes departments by id for walk-to-root queries.
type Tree map[int64]Department

// NewTree indexes the given departments.
func NewTree(depts []Department) Tree {
	t := make(Tree, len(depts))
	for _, d := range depts {
		t[d.ID] = d
	}
	return t
}

// Ancestry returns ids from id up to the root, id first. Walks are bounded by
// the tree size so corrupted data cannot loop forever.
func (t Tree) Ancestry(id int64) ([]int64, error) {
	var chain []int64
	cur, ok := t[id]
	for ok {
		chain = append(chain, cur.ID)
		if len(chain) > len(t) {
			return nil, errBrokenTree
		}
		if cur.ParentID == nil {
			break
		}
		cur, ok = t[*cur.ParentID]
	}
	return chain, nil
}

// FullPath renders "root > ... > leaf" for id.
func (t Tree) FullPath(id int64) string {
	chain, err := t.Ancestry(id)
	if err != nil || len(chain) == 0 {
		if d, ok := t[id]; ok {
			return d.Name
		}
		return ""
	}
	names := make([]string, 0, len(chain))
	for i := len(chain) - 1; i >= 0; i-- {
		names = append(names, t[chain[i]].Name)
	}
	return strings.Join(names, PathSeparator)
}

// CheckParent validates that making parentID the parent of id keeps the tree
// acyclic. id may be zero for a department that does not exist yet.
func (t Tree) CheckParent(id int64, parentID *int64) error {
	if parentID == nil {
		return nil
	}
	if id != 0 && *parentID == id {
		return ErrDepartmentCycle
	}
	if _, ok := t[*parentID]; !ok {
		return ErrDepartmentNotFound
	}
	chain, err := t.Ancestry(*parentID)
	if err != nil {
		return ErrDepartmentCycle
	}
	for _, ancestor := range chain {
		if ancestor == id {
			return ErrDepartmentCycle
		}
	}
	return nil
}

// Descendants returns every department below id.
func (t Tree) Descendants(id int64) []int64 {
	children := make(map[int64][]int64, len(t))
	for _, d := range t {
		if d.ParentID != nil {
			children[*d.ParentID] = append(children[*d.ParentID], d.ID)
		}
	}
	var out []int64
	seen := map[int64]bool{id: true}
	queue := []int64{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, c := range children[cur] {
			if seen[c] {
				continue
			}
			seen[c] = true
			out = append(out, c)
			queue = append(queue, c)
		}
	}
	return out
}
