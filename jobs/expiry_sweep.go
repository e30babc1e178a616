package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	jobmetrics "github.com/ncompliance/ncompliance/internal/jobs"
	"github.com/ncompliance/ncompliance/internal/notifications"
	"github.com/ncompliance/ncompliance/internal/shared"
)

// TaskExpirySweep creates expiry notices for regulations nearing review.
const TaskExpirySweep = "notifications:expiry_sweep"

// ExpirySweepPayload optionally pins the sweep to a date.
type ExpirySweepPayload struct {
	Date string `json:"date,omitempty"`
}

// NewExpirySweepTask builds the sweep task. An empty date sweeps "today" in
// the worker's zone when the task runs.
func NewExpirySweepTask(date string) (*asynq.Task, error) {
	if date != "" {
		if _, err := time.Parse(time.DateOnly, date); err != nil {
			return nil, fmt.Errorf("jobs: sweep date %q: %w", date, err)
		}
	}
	body, err := json.Marshal(ExpirySweepPayload{Date: date})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskExpirySweep, body), nil
}

// ExpirySweepOptions are the enqueue options for every sweep. Runs are not
// deduplicated downstream, so the task is unique for an hour and never
// retried.
func ExpirySweepOptions() []asynq.Option {
	return []asynq.Option{
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(0),
		asynq.Unique(time.Hour),
		asynq.Timeout(15 * time.Minute),
	}
}

// Sweeper is the part of notifications.Sweeper the job drives.
type Sweeper interface {
	Today() time.Time
	Run(ctx context.Context, today time.Time) (notifications.SweepResult, error)
}

// DayLocker serializes sweeps of the same day across processes. It returns
// shared.ErrLockHeld when another sweep of day is running.
type DayLocker func(ctx context.Context, day time.Time) (unlock func(context.Context) error, err error)

// RedisDayLocker locks a day with a redis key that expires after ttl.
func RedisDayLocker(client *redis.Client, ttl time.Duration) DayLocker {
	return func(ctx context.Context, day time.Time) (func(context.Context) error, error) {
		lock, err := shared.AcquireLock(ctx, client, shared.SweepLockKey(day), ttl)
		if err != nil {
			return nil, err
		}
		return lock.Unlock, nil
	}
}

// ExpirySweepJob runs the expiry sweep from the scheduler or a manual trigger.
type ExpirySweepJob struct {
	sweeper Sweeper
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
	lock    DayLocker
}

// NewExpirySweepJob builds the sweep handler.
func NewExpirySweepJob(sweeper Sweeper, logger *slog.Logger, metrics *jobmetrics.Metrics) *ExpirySweepJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExpirySweepJob{sweeper: sweeper, logger: logger, metrics: metrics}
}

// WithLock makes Handle skip a day another process is already sweeping.
func (j *ExpirySweepJob) WithLock(lock DayLocker) *ExpirySweepJob {
	j.lock = lock
	return j
}

// Handle executes one sweep. Partial failures are reported but not retried:
// a retry would notify again everyone the first attempt already reached.
func (j *ExpirySweepJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	tracker := j.metrics.Track(TaskExpirySweep)
	defer func() { err = tracker.End(err) }()

	var payload ExpirySweepPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("jobs: decode sweep payload: %w", asynq.SkipRetry)
		}
	}
	today := j.sweeper.Today()
	if payload.Date != "" {
		day, err := time.ParseInLocation(time.DateOnly, payload.Date, today.Location())
		if err != nil {
			return fmt.Errorf("jobs: sweep date %q: %w", payload.Date, asynq.SkipRetry)
		}
		today = day
	}

	if j.lock != nil {
		unlock, err := j.lock(ctx, today)
		if errors.Is(err, shared.ErrLockHeld) {
			j.logger.Warn("expiry sweep already running", slog.String("day", today.Format(time.DateOnly)))
			return nil
		}
		if err != nil {
			return fmt.Errorf("jobs: lock sweep: %w", err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				j.logger.Warn("release sweep lock", slog.Any("error", err))
			}
		}()
	}

	res, err := j.sweeper.Run(ctx, today)
	if err != nil {
		j.logger.Error("expiry sweep incomplete",
			slog.String("day", today.Format(time.DateOnly)),
			slog.Int("notifications", res.Notifications),
			slog.Any("error", err),
		)
		return fmt.Errorf("jobs: expiry sweep: %v: %w", err, asynq.SkipRetry)
	}
	return nil
}
