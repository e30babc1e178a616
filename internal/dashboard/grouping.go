// Package dashboard builds the group → category → regulation tree shown on
// the landing page.
package dashboard

import (
	"slices"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/ncompliance/ncompliance/internal/regulations"
)

const (
	// NoGroup labels regulations with an empty group name.
	NoGroup       = "(그룹 없음)"
	favoriteGroup = "즐겨찾기"
)

// DefaultGroupOrder is the display order of well-known groups.
var DefaultGroupOrder = []string{"이사회", "HR", "재무", "구매", "준법", "반부패", "정보보호", "개인정보보호", "안전보건", "ESG"}

// DefaultAliases maps free-text group names onto a configured group. Only
// exact keys are consulted.
var DefaultAliases = map[string]string{
	"인사":     "HR",
	"인사/노무":  "HR",
	"재무/회계":  "재무",
	"회계":     "재무",
	"구매/조달":  "구매",
	"컴플라이언스": "준법",
	"정보보안":   "정보보호",
	"개인정보":   "개인정보보호",
	"안전":     "안전보건",
}

// treeCategories are the buckets shown inside each group, in order. MANUAL
// never gets a bucket, even under a MANUAL category filter.
var treeCategories = []regulations.Category{
	regulations.CategoryPolicy,
	regulations.CategoryRegulation,
	regulations.CategoryGuideline,
}

// Order ranks group names: configured names by position on an exact match,
// then names reached through the alias table, then every other name, and
// NoGroup last.
type Order struct {
	index   map[string]int
	aliases map[string]string
	size    int
}

// NewOrder builds an Order. Blank entries are ignored.
func NewOrder(names []string, aliases map[string]string) Order {
	o := Order{index: make(map[string]int, len(names)), aliases: make(map[string]string, len(aliases))}
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, dup := o.index[n]; !dup {
			o.index[n] = o.size
			o.size++
		}
	}
	for k, v := range aliases {
		o.aliases[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return o
}

// Rank returns the sort rank of a group name.
func (o Order) Rank(name string) int {
	if name == NoGroup {
		return o.size + 1
	}
	if i, ok := o.index[name]; ok {
		return i
	}
	if canonical, ok := o.aliases[name]; ok {
		if i, ok := o.index[canonical]; ok {
			return i
		}
	}
	return o.size
}

// Sort orders group names by rank, breaking ties with Korean collation.
func (o Order) Sort(names []string) {
	col := collate.New(language.Korean)
	slices.SortStableFunc(names, func(a, b string) int {
		if ra, rb := o.Rank(a), o.Rank(b); ra != rb {
			return ra - rb
		}
		return col.CompareString(a, b)
	})
}

// Bucket is one category inside a group.
type Bucket struct {
	Category    regulations.Category `json:"category"`
	Label       string               `json:"label"`
	Regulations []Entry              `json:"regulations"`
}

// Entry is the tree leaf.
type Entry struct {
	ID         int64  `json:"id"`
	Code       string `json:"code"`
	Title      string `json:"title"`
	IsFavorite bool   `json:"is_favorite"`
}

// Group is one top-level tree node.
type Group struct {
	Name       string   `json:"name"`
	Buckets    []Bucket `json:"categories"`
	Total      int      `json:"total"`
	IsFavorite bool     `json:"is_favorite_group"`
}

// BuildTree groups regs by group name and category. Favourites are
// collected into a leading group when any exist.
func BuildTree(regs []regulations.Regulation, favorites map[int64]bool, order Order) []Group {
	col := collate.New(language.Korean)
	byGroup := make(map[string][]regulations.Regulation)
	var favs []regulations.Regulation
	for _, reg := range regs {
		name := strings.TrimSpace(reg.GroupName)
		if name == "" {
			name = NoGroup
		}
		byGroup[name] = append(byGroup[name], reg)
		if favorites[reg.ID] {
			favs = append(favs, reg)
		}
	}

	var out []Group
	if len(favs) > 0 {
		g := buildGroup(favoriteGroup, favs, favorites, col)
		g.IsFavorite = true
		if g.Total > 0 {
			out = append(out, g)
		}
	}
	names := make([]string, 0, len(byGroup))
	for name := range byGroup {
		names = append(names, name)
	}
	order.Sort(names)
	for _, name := range names {
		out = append(out, buildGroup(name, byGroup[name], favorites, col))
	}
	return out
}

func buildGroup(name string, regs []regulations.Regulation, favorites map[int64]bool, col *collate.Collator) Group {
	g := Group{Name: name}
	for _, cat := range treeCategories {
		var entries []Entry
		for _, reg := range regs {
			if reg.Category == cat {
				entries = append(entries, Entry{ID: reg.ID, Code: reg.Code, Title: reg.Title, IsFavorite: favorites[reg.ID]})
			}
		}
		if len(entries) == 0 {
			continue
		}
		slices.SortStableFunc(entries, func(a, b Entry) int {
			return col.CompareString(a.Title, b.Title)
		})
		g.Buckets = append(g.Buckets, Bucket{Category: cat, Label: cat.Label(), Regulations: entries})
		g.Total += len(entries)
	}
	return g
}
