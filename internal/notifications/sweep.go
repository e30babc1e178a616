package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ncompliance/ncompliance/internal/rbac"
	"github.com/ncompliance/ncompliance/internal/regulations"
)

// DefaultAlertDays are the lead times, in days, of expiry notices.
var DefaultAlertDays = []int{30, 7}

var expiryRoles = []rbac.Role{rbac.RoleDeptManager, rbac.RoleCompliance, rbac.RoleAdmin}

// Sweeper creates expiry notices for ACTIVE regulations whose expiry date is
// exactly today plus one of the alert days. Runs are not deduplicated:
// running twice on one day notifies twice, so callers serialise runs.
type Sweeper struct {
	repo    Repository
	service *Service
	days    []int
	logger  *slog.Logger
}

// NewSweeper builds a Sweeper. Empty days fall back to DefaultAlertDays.
func NewSweeper(service *Service, days []int) *Sweeper {
	if len(days) == 0 {
		days = DefaultAlertDays
	}
	return &Sweeper{repo: service.repo, service: service, days: days, logger: service.logger}
}

// Today returns the current date in the service's zone.
func (s *Sweeper) Today() time.Time {
	n := s.service.now().In(s.service.loc)
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, s.service.loc)
}

// Run sweeps relative to today. A failure on one regulation is logged and
// does not stop the others; all failures are returned joined.
func (s *Sweeper) Run(ctx context.Context, today time.Time) (SweepResult, error) {
	var res SweepResult
	var errs []error
	for _, d := range s.days {
		target := today.AddDate(0, 0, d)
		regs, err := s.repo.ExpiringOn(ctx, target)
		if err != nil {
			errs = append(errs, fmt.Errorf("notifications: expiring on %s: %w", target.Format(time.DateOnly), err))
			continue
		}
		for _, reg := range regs {
			res.Regulations++
			dept := reg.ResponsibleDeptID
			title, message := expiryMessage(reg, d)
			n, err := s.service.deliver(ctx, TypeExpiry, &reg.ID, title, message, RecipientQuery{
				DepartmentID: &dept,
				Roles:        expiryRoles,
			}, true)
			if err != nil {
				s.logger.Warn("expiry notice failed", slog.Int64("regulation_id", reg.ID), slog.Any("error", err))
				errs = append(errs, err)
				continue
			}
			res.Notifications += n
		}
	}
	s.logger.Info("expiry sweep finished",
		slog.String("day", today.Format(time.DateOnly)),
		slog.Int("regulations", res.Regulations),
		slog.Int("notifications", res.Notifications),
	)
	return res, errors.Join(errs...)
}

// Due is one regulation a sweep would notify about.
type Due struct {
	Regulation regulations.Regulation `json:"regulation"`
	DaysLeft   int                    `json:"days_left"`
}

// Preview lists what Run would notify about for today without writing
// anything.
func (s *Sweeper) Preview(ctx context.Context, today time.Time) ([]Due, error) {
	var out []Due
	for _, d := range s.days {
		regs, err := s.repo.ExpiringOn(ctx, today.AddDate(0, 0, d))
		if err != nil {
			return nil, fmt.Errorf("notifications: preview %d days: %w", d, err)
		}
		for _, reg := range regs {
			out = append(out, Due{Regulation: reg, DaysLeft: d})
		}
	}
	return out, nil
}
