package commoncodes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/ncompliance/ncompliance/internal/platform/httpx"
	"github.com/ncompliance/ncompliance/internal/rbac"
	"github.com/ncompliance/ncompliance/internal/shared"
)

// Service handles common code business logic. Mutations are ADMIN only;
// Choices is open to every authenticated user.
type Service struct {
	repo   Repository
	cache  *Cache
	audit  shared.AuditRecorder
	logger *slog.Logger
}

// NewService builds Service instance.
func NewService(repo Repository, cache *Cache, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.NopAudit{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, audit: audit, logger: logger}
}

// List returns codes ordered by type, sort order and code.
func (s *Service) List(ctx context.Context, actor rbac.Actor, f Filters) ([]CommonCode, error) {
	if err := rbac.Authorize(actor, rbac.ActionCodeManage, nil); err != nil {
		return nil, err
	}
	f.Keyword = strings.TrimSpace(f.Keyword)
	return s.repo.List(ctx, f)
}

// Get returns one code.
func (s *Service) Get(ctx context.Context, actor rbac.Actor, id int64) (CommonCode, error) {
	if err := rbac.Authorize(actor, rbac.ActionCodeManage, nil); err != nil {
		return CommonCode{}, err
	}
	return s.repo.Get(ctx, id)
}

// Create registers a new code. A (type, code) pair already in use is
// rejected with ErrDuplicateCode.
func (s *Service) Create(ctx context.Context, actor rbac.Actor, in Input) (CommonCode, error) {
	if err := rbac.Authorize(actor, rbac.ActionCodeManage, nil); err != nil {
		return CommonCode{}, err
	}
	c, err := fromInput(in)
	if err != nil {
		return CommonCode{}, err
	}
	if err := s.checkParent(ctx, 0, c.ParentID); err != nil {
		return CommonCode{}, err
	}
	if err := s.ensureUnique(ctx, c, 0); err != nil {
		return CommonCode{}, err
	}
	created, err := s.repo.Insert(ctx, c)
	if err != nil {
		return CommonCode{}, duplicateMessage(err, c.Code)
	}
	s.changed(ctx, actor, "create", created)
	return created, nil
}

// Update replaces the editable fields of a code. is_system is kept.
func (s *Service) Update(ctx context.Context, actor rbac.Actor, id int64, in Input) (CommonCode, error) {
	if err := rbac.Authorize(actor, rbac.ActionCodeManage, nil); err != nil {
		return CommonCode{}, err
	}
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return CommonCode{}, err
	}
	c, err := fromInput(in)
	if err != nil {
		return CommonCode{}, err
	}
	c.ID = id
	c.IsSystem = current.IsSystem
	c.CreatedAt = current.CreatedAt
	if err := s.checkParent(ctx, id, c.ParentID); err != nil {
		return CommonCode{}, err
	}
	if err := s.ensureUnique(ctx, c, id); err != nil {
		return CommonCode{}, err
	}
	if err := s.repo.Update(ctx, c); err != nil {
		return CommonCode{}, duplicateMessage(err, c.Code)
	}
	s.changed(ctx, actor, "update", c)
	return s.repo.Get(ctx, id)
}

// Delete removes a non-system code.
func (s *Service) Delete(ctx context.Context, actor rbac.Actor, id int64) error {
	if err := rbac.Authorize(actor, rbac.ActionCodeManage, nil); err != nil {
		return err
	}
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if c.IsSystem {
		return fmt.Errorf("%w: 시스템 코드 '%s'은(는) 삭제할 수 없습니다.", ErrSystemCode, c.Name)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.changed(ctx, actor, "delete", c)
	return nil
}

// Choices returns the active (code, name) pairs of one type ordered by
// sort order then name, served from the cache when possible.
func (s *Service) Choices(ctx context.Context, t Type) ([]Choice, error) {
	t = Type(strings.ToUpper(strings.TrimSpace(string(t))))
	if !t.Valid() {
		return nil, httpx.Invalid("code_type", "알 수 없는 코드유형입니다.")
	}
	key, err := s.cache.BuildKey(ctx, "choices", string(t))
	if err != nil {
		s.logger.Warn("code cache unavailable", slog.Any("error", err))
		return s.repo.Choices(ctx, t)
	}
	var out []Choice
	err = s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
		return s.repo.Choices(ctx, t)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) ensureUnique(ctx context.Context, c CommonCode, excludeID int64) error {
	exists, err := s.repo.Exists(ctx, c.Type, c.Code, excludeID)
	if err != nil {
		return err
	}
	if exists {
		return duplicateMessage(ErrDuplicateCode, c.Code)
	}
	return nil
}

func (s *Service) checkParent(ctx context.Context, id int64, parentID *int64) error {
	if parentID == nil {
		return nil
	}
	if *parentID == id {
		return httpx.Invalid("parent_id", "자기 자신을 상위코드로 지정할 수 없습니다.")
	}
	if _, err := s.repo.Get(ctx, *parentID); err != nil {
		if errors.Is(err, ErrCodeNotFound) {
			return httpx.Invalid("parent_id", "상위코드를 찾을 수 없습니다.")
		}
		return err
	}
	return nil
}

// changed bumps the cache version and records the audit trail. Neither
// failure undoes the mutation.
func (s *Service) changed(ctx context.Context, actor rbac.Actor, action string, c CommonCode) {
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("bump code cache", slog.Any("error", err))
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.ID,
		Action:   "common_code." + action,
		Entity:   shared.AuditEntityCode,
		EntityID: strconv.FormatInt(c.ID, 10),
		Meta:     map[string]any{"code_type": string(c.Type), "code": c.Code},
	})
	if err != nil {
		s.logger.Warn("audit common code", slog.String("action", action), slog.Any("error", err))
	}
}

func duplicateMessage(err error, code string) error {
	if errors.Is(err, ErrDuplicateCode) {
		return fmt.Errorf("%w: 동일한 코드유형에 '%s' 코드가 이미 존재합니다.", ErrDuplicateCode, code)
	}
	return err
}

func fromInput(in Input) (CommonCode, error) {
	in.CodeType = strings.ToUpper(strings.TrimSpace(in.CodeType))
	in.Code = strings.TrimSpace(in.Code)
	in.Name = strings.TrimSpace(in.Name)
	if err := shared.ValidateStruct(in); err != nil {
		return CommonCode{}, err
	}
	c := CommonCode{
		Type:        Type(in.CodeType),
		Code:        in.Code,
		Name:        in.Name,
		Description: strings.TrimSpace(in.Description),
		SortOrder:   in.SortOrder,
		IsActive:    true,
		ParentID:    in.ParentID,
	}
	c.TypeLabel = c.Type.Label()
	if in.IsActive != nil {
		c.IsActive = *in.IsActive
	}
	return c, nil
}
