package regulations

import (
	"context"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ncompliance/ncompliance/internal/rbac"
	"github.com/ncompliance/ncompliance/internal/shared"
)

// memoryRepo keeps regulations and versions in maps. WithTx snapshots both
// and restores them when fn fails.
type memoryRepo struct {
	mu        sync.Mutex
	regs      map[int64]Regulation
	versions  map[int64]Version
	favorites map[[2]int64]bool
	downloads []DownloadLog
	nextReg   int64
	nextVer   int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		regs:      map[int64]Regulation{},
		versions:  map[int64]Version{},
		favorites: map[[2]int64]bool{},
	}
}

func (m *memoryRepo) seed(reg Regulation) Regulation {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextReg++
	reg.ID = m.nextReg
	if reg.Status == "" {
		reg.Status = StatusActive
	}
	if reg.AccessLevel == "" {
		reg.AccessLevel = AccessAll
	}
	m.regs[reg.ID] = reg
	return reg
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	regs := maps.Clone(m.regs)
	versions := maps.Clone(m.versions)
	nextReg, nextVer := m.nextReg, m.nextVer
	if err := fn(ctx, &memoryTx{m: m}); err != nil {
		m.regs, m.versions = regs, versions
		m.nextReg, m.nextVer = nextReg, nextVer
		return err
	}
	return nil
}

func (m *memoryRepo) visible(actor rbac.Actor) []Regulation {
	var out []Regulation
	for _, r := range m.regs {
		if CanAccess(actor, r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Code < out[j].Code
	})
	return out
}

func (m *memoryRepo) List(ctx context.Context, actor rbac.Actor, f ListFilters) ([]Regulation, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Regulation
	for _, r := range m.visible(actor) {
		if f.Category != "" && r.Category != f.Category {
			continue
		}
		if !ManagedBy(actor, r) {
			continue
		}
		out = append(out, r)
	}
	return out, len(out), nil
}

func (m *memoryRepo) CategoryCounts(ctx context.Context, actor rbac.Actor) (map[Category]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[Category]int{}
	for _, r := range m.visible(actor) {
		counts[r.Category]++
	}
	return counts, nil
}

func (m *memoryRepo) Get(ctx context.Context, id int64) (Regulation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.regs[id]
	if !ok {
		return Regulation{}, ErrRegulationNotFound
	}
	return r, nil
}

func (m *memoryRepo) ListRelated(ctx context.Context, actor rbac.Actor, id int64) ([]Regulation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Regulation
	for _, rid := range m.regs[id].RelatedIDs {
		if r, ok := m.regs[rid]; ok && CanAccess(actor, r) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memoryRepo) ListChildren(ctx context.Context, actor rbac.Actor, id int64) ([]Regulation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Regulation
	for _, r := range m.visible(actor) {
		if r.ParentID != nil && *r.ParentID == id {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memoryRepo) LastCode(ctx context.Context, category Category) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	last := ""
	for _, r := range m.regs {
		if r.Category == category && strings.HasPrefix(r.Code, categoryPrefixes[category]) && r.Code > last {
			last = r.Code
		}
	}
	return last, nil
}

func (m *memoryRepo) Delete(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.regs[id]; !ok {
		return ErrRegulationNotFound
	}
	delete(m.regs, id)
	for vid, v := range m.versions {
		if v.RegulationID == id {
			delete(m.versions, vid)
		}
	}
	return nil
}

func (m *memoryRepo) SetOriginalFile(ctx context.Context, id int64, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.regs[id]
	if !ok {
		return ErrRegulationNotFound
	}
	r.OriginalFile = key
	m.regs[id] = r
	return nil
}

func (m *memoryRepo) ListVersions(ctx context.Context, regulationID int64) ([]Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Version
	for _, v := range m.versions {
		if v.RegulationID == regulationID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (m *memoryRepo) GetVersion(ctx context.Context, id int64) (Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.versions[id]
	if !ok {
		return Version{}, ErrVersionNotFound
	}
	return v, nil
}

func (m *memoryRepo) ApproveVersion(ctx context.Context, id, approverID int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.versions[id]
	if !ok {
		return ErrVersionNotFound
	}
	v.ApprovedBy = &approverID
	v.ApprovedAt = &at
	m.versions[id] = v
	return nil
}

func (m *memoryRepo) LogDownload(ctx context.Context, log DownloadLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.downloads = append(m.downloads, log)
	return nil
}

func (m *memoryRepo) ToggleFavorite(ctx context.Context, userID, regulationID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := [2]int64{userID, regulationID}
	if m.favorites[key] {
		delete(m.favorites, key)
		return false, nil
	}
	m.favorites[key] = true
	return true, nil
}

func (m *memoryRepo) IsFavorite(ctx context.Context, userID, regulationID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.favorites[[2]int64{userID, regulationID}], nil
}

func (m *memoryRepo) ListFavorites(ctx context.Context, actor rbac.Actor) ([]Regulation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Regulation
	for _, r := range m.visible(actor) {
		if m.favorites[[2]int64{actor.ID, r.ID}] {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memoryRepo) ListTags(ctx context.Context, actor rbac.Actor) ([]TagCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[string]int{}
	for _, r := range m.visible(actor) {
		for _, t := range r.Tags {
			counts[t]++
		}
	}
	var out []TagCount
	for _, name := range slices.Sorted(maps.Keys(counts)) {
		out = append(out, TagCount{Name: name, Count: counts[name]})
	}
	return out, nil
}

func (m *memoryRepo) ListByTag(ctx context.Context, actor rbac.Actor, name string) ([]Regulation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	known := false
	var out []Regulation
	for _, r := range m.regs {
		if !slices.Contains(r.Tags, name) {
			continue
		}
		known = true
		if CanAccess(actor, r) {
			out = append(out, r)
		}
	}
	if !known {
		return nil, ErrTagNotFound
	}
	return out, nil
}

// memoryTx runs with memoryRepo.mu held.
type memoryTx struct {
	m *memoryRepo
}

func (t *memoryTx) LockRegulation(ctx context.Context, id int64) (Regulation, error) {
	r, ok := t.m.regs[id]
	if !ok {
		return Regulation{}, ErrRegulationNotFound
	}
	return r, nil
}

func (t *memoryTx) InsertRegulation(ctx context.Context, reg Regulation) (int64, error) {
	for _, r := range t.m.regs {
		if r.Code == reg.Code {
			return 0, ErrDuplicateCode
		}
	}
	t.m.nextReg++
	reg.ID = t.m.nextReg
	t.m.regs[reg.ID] = reg
	return reg.ID, nil
}

func (t *memoryTx) UpdateRegulation(ctx context.Context, reg Regulation) error {
	if _, ok := t.m.regs[reg.ID]; !ok {
		return ErrRegulationNotFound
	}
	t.m.regs[reg.ID] = reg
	return nil
}

func (t *memoryTx) ReplaceLinks(ctx context.Context, reg Regulation) error {
	r := t.m.regs[reg.ID]
	r.AllowedCompanies = reg.AllowedCompanies
	r.AllowedDepartments = reg.AllowedDepartments
	r.AllowedUsers = reg.AllowedUsers
	r.RelatedIDs = reg.RelatedIDs
	r.Tags = reg.Tags
	t.m.regs[reg.ID] = r
	return nil
}

func (t *memoryTx) InsertVersion(ctx context.Context, v Version) (Version, error) {
	for _, existing := range t.m.versions {
		if existing.RegulationID == v.RegulationID && existing.VersionNumber == v.VersionNumber {
			return Version{}, ErrDuplicateVersion
		}
	}
	t.m.nextVer++
	v.ID = t.m.nextVer
	t.m.versions[v.ID] = v
	return v, nil
}

func (t *memoryTx) ApplyChange(ctx context.Context, regulationID int64, change ChangeType, versionNumber string, day time.Time) error {
	r, ok := t.m.regs[regulationID]
	if !ok {
		return ErrRegulationNotFound
	}
	t.m.regs[regulationID] = applyChange(r, change, versionNumber, day)
	return nil
}

type recordingNotifier struct {
	events []ChangeEvent
	err    error
}

func (n *recordingNotifier) RegulationChanged(ctx context.Context, ev ChangeEvent) error {
	n.events = append(n.events, ev)
	return n.err
}

type memoryApprovals struct {
	logs []shared.ApprovalLog
}

func (a *memoryApprovals) Record(ctx context.Context, log shared.ApprovalLog) error {
	log.ID = int64(len(a.logs) + 1)
	a.logs = append(a.logs, log)
	return nil
}

func (a *memoryApprovals) List(ctx context.Context, module string, ref int64) ([]shared.ApprovalLog, error) {
	var out []shared.ApprovalLog
	for _, l := range a.logs {
		if l.Module == module && l.RefID == ref {
			out = append(out, l)
		}
	}
	return out, nil
}

type memoryAudit struct {
	logs []shared.AuditLog
}

func (a *memoryAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}
