package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ncompliance/ncompliance/internal/platform/httpx"
	"github.com/ncompliance/ncompliance/internal/rbac"
	"github.com/ncompliance/ncompliance/internal/regulations"
	"github.com/ncompliance/ncompliance/internal/shared"
)

// Mail is one outbound email.
type Mail struct {
	To      string
	Subject string
	Body    string
}

// Mailer hands mail to a delivery queue. Implementations must not block on
// SMTP.
type Mailer interface {
	Send(ctx context.Context, m Mail) error
}

// Metrics receives delivery counters.
type Metrics interface {
	NotificationsCreated(kind string, count int)
	NotificationFailed(kind string)
}

type nopMetrics struct{}

func (nopMetrics) NotificationsCreated(string, int) {}
func (nopMetrics) NotificationFailed(string)        {}

// Config wires optional collaborators.
type Config struct {
	Cache    *UnreadCache
	Mailer   Mailer
	Metrics  Metrics
	Logger   *slog.Logger
	Location *time.Location
	Now      func() time.Time
}

// Service implements notification delivery and the inbox.
type Service struct {
	repo    Repository
	cache   *UnreadCache
	mailer  Mailer
	metrics Metrics
	logger  *slog.Logger
	loc     *time.Location
	now     func() time.Time
}

// NewService constructs the notification Service.
func NewService(repo Repository, cfg Config) *Service {
	s := &Service{
		repo:    repo,
		cache:   cfg.Cache,
		mailer:  cfg.Mailer,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
		loc:     cfg.Location,
		now:     cfg.Now,
	}
	if s.metrics == nil {
		s.metrics = nopMetrics{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

var _ regulations.ChangeNotifier = (*Service)(nil)

// RegulationChanged fans a ledger append out to the regulation's audience:
// every active user for scope ALL, else the responsible department. The
// acting user and users who opted out of change notices are skipped.
func (s *Service) RegulationChanged(ctx context.Context, ev regulations.ChangeEvent) error {
	q := RecipientQuery{ExcludeUserID: ev.ActorID}
	if ev.Regulation.Scope != regulations.ScopeAll {
		dept := ev.Regulation.ResponsibleDeptID
		q.DepartmentID = &dept
	}
	title, message := changeMessage(ev.Regulation, ev.Version, s.loc)
	_, err := s.deliver(ctx, TypeChange, &ev.Regulation.ID, title, message, q, true)
	return err
}

// RequestReview notifies active COMPLIANCE and ADMIN users that reg needs
// review. It satisfies regulations.ReviewRequester.
func (s *Service) RequestReview(ctx context.Context, requester rbac.Actor, reg regulations.Regulation) (int, error) {
	dept := "-"
	if requester.DepartmentName != "" {
		dept = requester.DepartmentName
	}
	title := "[검토요청] " + reg.Title
	message := fmt.Sprintf("사규 검토 요청이 접수되었습니다.\n\n- 사규코드: %s\n- 사규명: %s\n- 요청자: %s (%s)\n- 요청일: %s\n\n검토 후 승인 또는 반려 처리를 진행해 주세요.",
		reg.Code, reg.Title, requester.FullName, dept, s.now().In(s.loc).Format("2006-01-02 15:04"))
	q := RecipientQuery{Roles: []rbac.Role{rbac.RoleCompliance, rbac.RoleAdmin}}
	return s.deliver(ctx, TypeReview, &reg.ID, title, message, q, true)
}

// Broadcast sends an admin notice. Broadcasts ignore opt-outs.
func (s *Service) Broadcast(ctx context.Context, actor rbac.Actor, in BroadcastInput) (int, error) {
	if err := rbac.Authorize(actor, rbac.ActionNotifyBroadcast, nil); err != nil {
		return 0, err
	}
	in.Title = strings.TrimSpace(in.Title)
	in.Message = strings.TrimSpace(in.Message)
	in.Type = strings.ToUpper(strings.TrimSpace(in.Type))
	if in.Type == "" {
		in.Type = string(TypeSystem)
	}
	if err := shared.ValidateStruct(in); err != nil {
		return 0, err
	}

	var q RecipientQuery
	switch in.Target {
	case TargetRole:
		role, ok := rbac.ParseRole(in.Role)
		if !ok {
			return 0, httpx.Invalid("target_role", "대상 역할을 선택하세요.")
		}
		q.Roles = []rbac.Role{role}
	case TargetUser:
		if len(in.UserIDs) == 0 {
			return 0, httpx.Invalid("target_users", "대상 사용자를 선택하세요.")
		}
		q.UserIDs = in.UserIDs
	}
	n, err := s.deliver(ctx, Type(in.Type), nil, in.Title, in.Message, q, false)
	if err != nil {
		return 0, err
	}
	s.logger.Info("notification broadcast", slog.Int64("actor_id", actor.ID), slog.Int("recipients", n))
	return n, nil
}

// deliver resolves recipients, writes one row each in a single bulk insert
// and queues email for users who asked for it.
func (s *Service) deliver(ctx context.Context, kind Type, regulationID *int64, title, message string, q RecipientQuery, honourSettings bool) (int, error) {
	recipients, err := s.repo.Recipients(ctx, q)
	if err != nil {
		s.metrics.NotificationFailed(string(kind))
		return 0, fmt.Errorf("notifications: resolve %s recipients: %w", kind, err)
	}

	now := s.now()
	rows := make([]Notification, 0, len(recipients))
	userIDs := make([]int64, 0, len(recipients))
	var mail []string
	for _, rc := range recipients {
		if honourSettings && !rc.Setting.Accepts(kind) {
			continue
		}
		rows = append(rows, Notification{
			UserID:       rc.UserID,
			RegulationID: regulationID,
			Type:         kind,
			Title:        title,
			Message:      message,
			CreatedAt:    now,
		})
		userIDs = append(userIDs, rc.UserID)
		if rc.Setting.EmailNotification && rc.Email != "" {
			mail = append(mail, rc.Email)
		}
	}
	if len(rows) == 0 {
		return 0, nil
	}

	n, err := s.repo.InsertMany(ctx, rows)
	if err != nil {
		s.metrics.NotificationFailed(string(kind))
		return 0, fmt.Errorf("notifications: insert %s: %w", kind, err)
	}
	s.metrics.NotificationsCreated(string(kind), int(n))
	if err := s.cache.Invalidate(ctx, userIDs...); err != nil {
		s.logger.Warn("invalidate unread counts", slog.Any("error", err))
	}
	s.sendMail(ctx, mail, title, message)
	return int(n), nil
}

func (s *Service) sendMail(ctx context.Context, to []string, subject, body string) {
	if s.mailer == nil {
		return
	}
	for _, addr := range to {
		if err := s.mailer.Send(ctx, Mail{To: addr, Subject: subject, Body: body}); err != nil {
			s.logger.Warn("queue notification email", slog.String("to", addr), slog.Any("error", err))
		}
	}
}

// List returns a page of the actor's inbox, newest first, and their unread count.
func (s *Service) List(ctx context.Context, actor rbac.Actor, page int) ([]Notification, int, int, error) {
	items, total, err := s.repo.List(ctx, actor.ID, page, shared.DefaultPerPage)
	if err != nil {
		return nil, 0, 0, err
	}
	unread, err := s.UnreadCount(ctx, actor)
	if err != nil {
		return nil, 0, 0, err
	}
	return items, total, unread, nil
}

// UnreadCount returns the actor's unread count, cached in redis.
func (s *Service) UnreadCount(ctx context.Context, actor rbac.Actor) (int, error) {
	if n, ok, err := s.cache.Get(ctx, actor.ID); err != nil {
		s.logger.Warn("read unread count cache", slog.Any("error", err))
	} else if ok {
		return n, nil
	}
	n, err := s.repo.UnreadCount(ctx, actor.ID)
	if err != nil {
		return 0, err
	}
	if err := s.cache.Set(ctx, actor.ID, n); err != nil {
		s.logger.Warn("write unread count cache", slog.Any("error", err))
	}
	return n, nil
}

// Detail returns one of the actor's notifications and marks it read.
func (s *Service) Detail(ctx context.Context, actor rbac.Actor, id int64) (Notification, error) {
	n, err := s.repo.Get(ctx, id)
	if err != nil {
		return Notification{}, err
	}
	if n.UserID != actor.ID {
		return Notification{}, ErrNotificationNotFound
	}
	if !n.IsRead {
		at := s.now()
		if err := s.MarkRead(ctx, actor, id); err != nil {
			return Notification{}, err
		}
		n.IsRead = true
		n.ReadAt = &at
	}
	return n, nil
}

// MarkRead flags one of the actor's notifications as read.
func (s *Service) MarkRead(ctx context.Context, actor rbac.Actor, id int64) error {
	if err := s.repo.MarkRead(ctx, actor.ID, id, s.now()); err != nil {
		return err
	}
	s.invalidate(ctx, actor.ID)
	return nil
}

// MarkAllRead flags every unread notification of the actor.
func (s *Service) MarkAllRead(ctx context.Context, actor rbac.Actor) (int64, error) {
	n, err := s.repo.MarkAllRead(ctx, actor.ID, s.now())
	if err != nil {
		return 0, err
	}
	s.invalidate(ctx, actor.ID)
	return n, nil
}

// Delete removes any notification. Admin only.
func (s *Service) Delete(ctx context.Context, actor rbac.Actor, id int64) error {
	if err := rbac.Authorize(actor, rbac.ActionNotifyBroadcast, nil); err != nil {
		return err
	}
	n, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	s.invalidate(ctx, n.UserID)
	return nil
}

// Settings returns the actor's settings, creating the defaults on first use.
func (s *Service) Settings(ctx context.Context, actor rbac.Actor) (Setting, error) {
	return s.repo.GetSetting(ctx, actor.ID)
}

// UpdateSettings replaces the actor's settings.
func (s *Service) UpdateSettings(ctx context.Context, actor rbac.Actor, in SettingInput) (Setting, error) {
	setting := Setting{
		UserID:            actor.ID,
		ReceiveChange:     in.ReceiveChange,
		ReceiveExpiry:     in.ReceiveExpiry,
		ReceiveReview:     in.ReceiveReview,
		EmailNotification: in.EmailNotification,
	}
	if err := s.repo.SaveSetting(ctx, setting); err != nil {
		return Setting{}, err
	}
	return setting, nil
}

func (s *Service) invalidate(ctx context.Context, userID int64) {
	if err := s.cache.Invalidate(ctx, userID); err != nil {
		s.logger.Warn("invalidate unread count", slog.Int64("user_id", userID), slog.Any("error", err))
	}
}

func changeMessage(reg regulations.Regulation, v regulations.Version, loc *time.Location) (string, string) {
	label := v.ChangeType.Label()
	if !v.ChangeType.Valid() {
		label = "변경"
	}
	title := fmt.Sprintf("[%s] %s", label, reg.Title)
	message := fmt.Sprintf("사규가 %s되었습니다.\n\n- 사규코드: %s\n- 사규명: %s\n- 버전: v%s\n- 변경사유: %s\n- %s일: %s",
		label, reg.Code, reg.Title, v.VersionNumber, v.ChangeReason, label, v.CreatedAt.In(loc).Format(time.DateOnly))
	return title, message
}

func expiryMessage(reg regulations.Regulation, days int) (string, string) {
	expiry := ""
	if reg.ExpiryDate != nil {
		expiry = reg.ExpiryDate.Format(time.DateOnly)
	}
	title := "[정기검토예정] " + reg.Title
	message := fmt.Sprintf("정기검토 예정일이 %d일 남았습니다.\n\n- 사규코드: %s\n- 사규명: %s\n- 정기검토예정일: %s\n\n해당 사규의 유효성을 검토하고, 필요시 개정을 진행해 주세요.",
		days, reg.Code, reg.Title, expiry)
	return title, message
}
