package regulations

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/ncompliance/ncompliance/internal/platform/httpx"
	"github.com/ncompliance/ncompliance/internal/rbac"
	"github.com/ncompliance/ncompliance/internal/shared"
)

const (
	defaultVersion   = "1.0"
	maxParentDepth   = 64
	initialChangeMsg = "최초 제정"
)

// ReviewRequester asks the compliance team to review a regulation.
type ReviewRequester interface {
	RequestReview(ctx context.Context, requester rbac.Actor, reg Regulation) (int, error)
}

// Service exposes catalog operations.
type Service struct {
	repo     Repository
	ledger   *Ledger
	storage  Storage
	audit    shared.AuditRecorder
	logger   *slog.Logger
	reviewer ReviewRequester
}

// NewService builds a catalog Service sharing the ledger's storage and audit.
func NewService(repo Repository, ledger *Ledger) *Service {
	return &Service{
		repo:    repo,
		ledger:  ledger,
		storage: ledger.storage,
		audit:   ledger.audit,
		logger:  ledger.logger,
	}
}

// SetReviewer attaches the review request channel.
func (s *Service) SetReviewer(r ReviewRequester) {
	s.reviewer = r
}

// RequestReview notifies reviewers about a regulation the actor may modify
// and returns the number of notices sent.
func (s *Service) RequestReview(ctx context.Context, actor rbac.Actor, id int64) (int, error) {
	reg, err := s.repo.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	if err := rbac.Authorize(actor, rbac.ActionRegulationUpdate, reg); err != nil {
		return 0, err
	}
	if s.reviewer == nil {
		return 0, nil
	}
	n, err := s.reviewer.RequestReview(ctx, actor, reg)
	if err != nil {
		return 0, err
	}
	s.record(ctx, actor, "review_request", id, map[string]any{"recipients": n})
	return n, nil
}

// List returns a page of accessible regulations.
func (s *Service) List(ctx context.Context, actor rbac.Actor, f ListFilters) ([]Regulation, int, error) {
	if err := rbac.Authorize(actor, rbac.ActionRegulationView, nil); err != nil {
		return nil, 0, err
	}
	return s.repo.List(ctx, actor, f)
}

// CategoryCounts returns one row per category in catalog order.
func (s *Service) CategoryCounts(ctx context.Context, actor rbac.Actor) ([]CategoryCount, error) {
	counts, err := s.repo.CategoryCounts(ctx, actor)
	if err != nil {
		return nil, err
	}
	out := make([]CategoryCount, 0, len(Categories()))
	for _, c := range Categories() {
		out = append(out, CategoryCount{Category: c, Label: c.Label(), Count: counts[c]})
	}
	return out, nil
}

// Detail returns an accessible regulation with its ledger and links.
func (s *Service) Detail(ctx context.Context, actor rbac.Actor, id int64) (Detail, error) {
	reg, err := s.repo.Get(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	if err := rbac.Authorize(actor, rbac.ActionRegulationView, reg); err != nil {
		return Detail{}, err
	}
	d := Detail{Regulation: reg}
	if d.Versions, err = s.repo.ListVersions(ctx, id); err != nil {
		return Detail{}, err
	}
	if d.Related, err = s.repo.ListRelated(ctx, actor, id); err != nil {
		return Detail{}, err
	}
	if d.Children, err = s.repo.ListChildren(ctx, actor, id); err != nil {
		return Detail{}, err
	}
	if d.Favorite, err = s.repo.IsFavorite(ctx, actor.ID, id); err != nil {
		return Detail{}, err
	}
	return d, nil
}

// Create registers a regulation together with its initial CREATE version.
func (s *Service) Create(ctx context.Context, actor rbac.Actor, in RegulationInput) (Regulation, error) {
	if err := rbac.Authorize(actor, rbac.ActionRegulationCreate, nil); err != nil {
		return Regulation{}, err
	}
	reg, err := fromInput(in)
	if err != nil {
		return Regulation{}, err
	}
	if actor.ScopedManager() {
		reg.ResponsibleDeptID = *actor.DepartmentID
		if reg.Manager == "" {
			reg.Manager = actor.FullName
		}
	}
	if reg.ResponsibleDeptID == 0 {
		return Regulation{}, httpx.Invalid("responsible_dept_id", "책임부서를 선택하세요.")
	}
	if reg.Code == "" {
		last, err := s.repo.LastCode(ctx, reg.Category)
		if err != nil {
			return Regulation{}, err
		}
		reg.Code = NextCode(reg.Category, last)
	}
	if reg.CurrentVersion == "" {
		reg.CurrentVersion = defaultVersion
	}
	if reg.ParentID != nil {
		if _, err := s.repo.Get(ctx, *reg.ParentID); err != nil {
			if errors.Is(err, ErrRegulationNotFound) {
				return Regulation{}, httpx.Invalid("parent_id", "상위 사규를 찾을 수 없습니다.")
			}
			return Regulation{}, err
		}
	}
	actorID := actor.ID
	reg.CreatedBy = &actorID
	reg.Status = StatusActive

	var version Version
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertRegulation(ctx, reg)
		if err != nil {
			return err
		}
		reg.ID = id
		if err := tx.ReplaceLinks(ctx, reg); err != nil {
			return err
		}
		version, err = s.ledger.appendTx(ctx, tx, actor, reg, AppendInput{
			VersionNumber: reg.CurrentVersion,
			ChangeType:    string(ChangeCreate),
			ChangeReason:  initialChangeMsg,
		}, "")
		return err
	})
	if err != nil {
		return Regulation{}, err
	}

	s.record(ctx, actor, "create", reg.ID, map[string]any{"code": reg.Code})
	s.ledger.afterCommit(ctx, actor, reg, version)
	return s.repo.Get(ctx, reg.ID)
}

// Update edits descriptive fields. Code, status and current version are
// owned by the ledger and never change here.
func (s *Service) Update(ctx context.Context, actor rbac.Actor, id int64, in RegulationInput) (Regulation, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return Regulation{}, err
	}
	if err := rbac.Authorize(actor, rbac.ActionRegulationUpdate, current); err != nil {
		return Regulation{}, err
	}
	reg, err := fromInput(in)
	if err != nil {
		return Regulation{}, err
	}
	reg.ID = current.ID
	reg.Code = current.Code
	reg.Status = current.Status
	reg.CurrentVersion = current.CurrentVersion
	reg.AbolishedDate = current.AbolishedDate
	reg.OriginalFile = current.OriginalFile
	reg.CreatedBy = current.CreatedBy
	if actor.ScopedManager() || reg.ResponsibleDeptID == 0 {
		reg.ResponsibleDeptID = current.ResponsibleDeptID
	}
	if err := s.checkParent(ctx, id, reg.ParentID); err != nil {
		return Regulation{}, err
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateRegulation(ctx, reg); err != nil {
			return err
		}
		return tx.ReplaceLinks(ctx, reg)
	})
	if err != nil {
		return Regulation{}, err
	}
	s.record(ctx, actor, "update", id, nil)
	return s.repo.Get(ctx, id)
}

// Delete removes a regulation and, best-effort, its stored files.
func (s *Service) Delete(ctx context.Context, actor rbac.Actor, id int64) error {
	reg, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := rbac.Authorize(actor, rbac.ActionRegulationDelete, reg); err != nil {
		return err
	}
	versions, err := s.repo.ListVersions(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	keys := []string{reg.OriginalFile}
	for _, v := range versions {
		keys = append(keys, v.ContentFile)
	}
	for _, key := range keys {
		s.removeFile(key)
	}
	s.record(ctx, actor, "delete", id, map[string]any{"code": reg.Code})
	return nil
}

// UploadOriginal stores the source document of a regulation, replacing any
// previous one.
func (s *Service) UploadOriginal(ctx context.Context, actor rbac.Actor, id int64, a Attachment) (Regulation, error) {
	reg, err := s.repo.Get(ctx, id)
	if err != nil {
		return Regulation{}, err
	}
	if err := rbac.Authorize(actor, rbac.ActionRegulationUpdate, reg); err != nil {
		return Regulation{}, err
	}
	if err := ValidateAttachment(a, s.ledger.maxBytes); err != nil {
		return Regulation{}, err
	}
	if s.storage == nil {
		return Regulation{}, httpx.Invalid("file", "첨부파일 저장소가 설정되지 않았습니다.")
	}
	key, err := s.storage.Save(path.Join("regulations", "original"), a)
	if err != nil {
		return Regulation{}, err
	}
	if err := s.repo.SetOriginalFile(ctx, id, key); err != nil {
		s.removeFile(key)
		return Regulation{}, err
	}
	s.removeFile(reg.OriginalFile)
	s.record(ctx, actor, "upload_original", id, map[string]any{"filename": a.Filename})
	return s.repo.Get(ctx, id)
}

// ToggleFavorite flips the actor's bookmark and returns the new state.
func (s *Service) ToggleFavorite(ctx context.Context, actor rbac.Actor, id int64) (bool, error) {
	reg, err := s.repo.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if err := rbac.Authorize(actor, rbac.ActionRegulationView, reg); err != nil {
		return false, err
	}
	return s.repo.ToggleFavorite(ctx, actor.ID, id)
}

// Favorites lists the actor's accessible bookmarks.
func (s *Service) Favorites(ctx context.Context, actor rbac.Actor) ([]Regulation, error) {
	return s.repo.ListFavorites(ctx, actor)
}

// Tags lists tags used by accessible regulations.
func (s *Service) Tags(ctx context.Context, actor rbac.Actor) ([]TagCount, error) {
	return s.repo.ListTags(ctx, actor)
}

// ByTag lists accessible regulations carrying a tag.
func (s *Service) ByTag(ctx context.Context, actor rbac.Actor, name string) ([]Regulation, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrTagNotFound
	}
	return s.repo.ListByTag(ctx, actor, name)
}

// Download is an opened version attachment.
type Download struct {
	Body     io.ReadCloser
	Filename string
}

// OpenAttachment opens a version's file for an actor that may see the
// regulation and records the download.
func (s *Service) OpenAttachment(ctx context.Context, actor rbac.Actor, versionID int64, ip string) (Download, error) {
	v, err := s.repo.GetVersion(ctx, versionID)
	if err != nil {
		return Download{}, err
	}
	reg, err := s.repo.Get(ctx, v.RegulationID)
	if err != nil {
		return Download{}, err
	}
	if err := rbac.Authorize(actor, rbac.ActionRegulationView, reg); err != nil {
		return Download{}, err
	}
	if v.ContentFile == "" || s.storage == nil {
		return Download{}, ErrAttachmentMissing
	}
	body, err := s.storage.Open(v.ContentFile)
	if err != nil {
		return Download{}, err
	}
	if err := s.repo.LogDownload(ctx, DownloadLog{
		RegulationID: reg.ID,
		VersionID:    &v.ID,
		UserID:       actor.ID,
		IPAddress:    ip,
	}); err != nil {
		s.logger.Warn("log download", slog.Int64("version_id", v.ID), slog.Any("error", err))
	}
	return Download{Body: body, Filename: DownloadName(reg.Code, v.VersionNumber, v.ContentFile)}, nil
}

// NextCode returns the code following last within category, e.g. REG0007
// after REG0006. A blank or foreign last code starts at 0001.
func NextCode(category Category, last string) string {
	prefix := categoryPrefixes[category]
	n := 0
	if rest, ok := strings.CutPrefix(last, prefix); ok {
		if parsed, err := strconv.Atoi(rest); err == nil {
			n = parsed
		}
	}
	return fmt.Sprintf("%s%04d", prefix, n+1)
}

func (s *Service) checkParent(ctx context.Context, id int64, parentID *int64) error {
	if parentID == nil {
		return nil
	}
	next := *parentID
	for depth := 0; depth < maxParentDepth; depth++ {
		if next == id {
			return httpx.Invalid("parent_id", "상위 사규 지정이 순환을 만듭니다.")
		}
		parent, err := s.repo.Get(ctx, next)
		if err != nil {
			if errors.Is(err, ErrRegulationNotFound) {
				return httpx.Invalid("parent_id", "상위 사규를 찾을 수 없습니다.")
			}
			return err
		}
		if parent.ParentID == nil {
			return nil
		}
		next = *parent.ParentID
	}
	return httpx.Invalid("parent_id", "상위 사규 계층이 너무 깊습니다.")
}

func (s *Service) removeFile(key string) {
	if key == "" || s.storage == nil {
		return
	}
	if err := s.storage.Remove(key); err != nil && !errors.Is(err, ErrAttachmentMissing) {
		s.logger.Warn("remove stored file", slog.String("key", key), slog.Any("error", err))
	}
}

func (s *Service) record(ctx context.Context, actor rbac.Actor, action string, id int64, meta map[string]any) {
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.ID,
		Action:   "regulation." + action,
		Entity:   shared.AuditEntityRegulation,
		EntityID: shared.EntityID(id),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit regulation", slog.String("action", action), slog.Any("error", err))
	}
}

func fromInput(in RegulationInput) (Regulation, error) {
	in.Code = strings.ToUpper(strings.TrimSpace(in.Code))
	in.Title = strings.TrimSpace(in.Title)
	in.Category = strings.ToUpper(strings.TrimSpace(in.Category))
	in.Scope = strings.ToUpper(strings.TrimSpace(in.Scope))
	in.AccessLevel = strings.ToUpper(strings.TrimSpace(in.AccessLevel))
	in.EffectiveDate = strings.TrimSpace(in.EffectiveDate)
	in.ExpiryDate = strings.TrimSpace(in.ExpiryDate)
	in.ReferenceURL = strings.TrimSpace(in.ReferenceURL)
	if err := shared.ValidateStruct(in); err != nil {
		return Regulation{}, err
	}

	reg := Regulation{
		Code:               in.Code,
		Title:              in.Title,
		Category:           Category(in.Category),
		Description:        strings.TrimSpace(in.Description),
		IsMandatory:        in.IsMandatory,
		Scope:              Scope(in.Scope),
		ResponsibleDeptID:  in.ResponsibleDeptID,
		Manager:            strings.TrimSpace(in.Manager),
		ManagerPrimary:     strings.TrimSpace(in.ManagerPrimary),
		GroupName:          strings.TrimSpace(in.GroupName),
		CurrentVersion:     strings.TrimSpace(in.CurrentVersion),
		ParentID:           in.ParentID,
		RelatedIDs:         in.RelatedIDs,
		AccessLevel:        AccessLevel(in.AccessLevel),
		AllowedCompanies:   in.AllowedCompanies,
		AllowedDepartments: in.AllowedDepartments,
		AllowedUsers:       in.AllowedUsers,
		IsPublic:           in.IsPublic,
		ReferenceURL:       in.ReferenceURL,
		Content:            in.Content,
		Tags:               normalizeTags(in.Tags),
	}
	if reg.Scope == "" {
		reg.Scope = ScopeAll
	}
	if reg.AccessLevel == "" {
		reg.AccessLevel = AccessAll
	}
	var err error
	if reg.EffectiveDate, err = parseDate("effective_date", in.EffectiveDate); err != nil {
		return Regulation{}, err
	}
	if reg.ExpiryDate, err = parseDate("expiry_date", in.ExpiryDate); err != nil {
		return Regulation{}, err
	}
	return reg, nil
}

func parseDate(field, raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, httpx.Invalid(field, "날짜 형식이 올바르지 않습니다.")
	}
	return &t, nil
}

func normalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
