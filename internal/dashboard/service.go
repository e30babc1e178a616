package dashboard

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ncompliance/ncompliance/internal/platform/httpx"
	"github.com/ncompliance/ncompliance/internal/rbac"
	"github.com/ncompliance/ncompliance/internal/regulations"
)

// View is the dashboard payload.
type View struct {
	TotalCount      int                         `json:"total_count"`
	CategoryCounts  []regulations.CategoryCount `json:"category_counts"`
	CurrentCategory regulations.Category        `json:"current_category"`
	Groups          []Group                     `json:"grouped_regulations"`
	FavoriteIDs     []int64                     `json:"favorite_regulation_ids"`
}

// Service assembles the dashboard.
type Service struct {
	repo  Repository
	order Order
}

// NewService builds Service instance.
func NewService(repo Repository, order Order) *Service {
	return &Service{repo: repo, order: order}
}

// Build loads the actor's accessible regulations, per-category counts and
// favourites concurrently and arranges them into the group tree.
// Non-privileged users only see public, mandatory regulations. Without a
// category filter MANUAL is left out of both the tree and the total.
func (s *Service) Build(ctx context.Context, actor rbac.Actor, category string) (View, error) {
	if err := rbac.Authorize(actor, rbac.ActionRegulationView, nil); err != nil {
		return View{}, err
	}
	cat := regulations.Category(strings.ToUpper(strings.TrimSpace(category)))
	if cat != "" && !cat.Valid() {
		return View{}, httpx.Invalid("category", "알 수 없는 분류입니다.")
	}
	published := !actor.Privileged()

	var (
		regs   []regulations.Regulation
		counts map[regulations.Category]int
		favIDs []int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		regs, err = s.repo.Regulations(gctx, actor, Scope{Published: published, Category: cat})
		return err
	})
	g.Go(func() error {
		var err error
		counts, err = s.repo.CategoryCounts(gctx, actor, published)
		return err
	})
	g.Go(func() error {
		var err error
		favIDs, err = s.repo.FavoriteIDs(gctx, actor.ID)
		return err
	})
	if err := g.Wait(); err != nil {
		return View{}, err
	}

	favorites := make(map[int64]bool, len(favIDs))
	for _, id := range favIDs {
		favorites[id] = true
	}
	view := View{
		CurrentCategory: cat,
		Groups:          BuildTree(regs, favorites, s.order),
		FavoriteIDs:     favIDs,
	}
	if view.FavoriteIDs == nil {
		view.FavoriteIDs = []int64{}
	}
	for _, c := range regulations.Categories() {
		view.CategoryCounts = append(view.CategoryCounts, regulations.CategoryCount{Category: c, Label: c.Label(), Count: counts[c]})
		if c != regulations.CategoryManual {
			view.TotalCount += counts[c]
		}
	}
	return view, nil
}
