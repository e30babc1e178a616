package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/hibiken/asynq"

	"github.com/ncompliance/ncompliance/internal/notifications"
	"github.com/ncompliance/ncompliance/jobs"
)

// QueueInspector is the part of *asynq.Inspector the CLI reads.
type QueueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
	ListScheduledTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
}

// JobsCLI wraps manual management helpers for Asynq jobs.
type JobsCLI struct {
	client    *jobs.Client
	inspector QueueInspector
}

// NewJobsCLI builds the helpers on top of a job client and inspector.
func NewJobsCLI(client *jobs.Client, inspector QueueInspector) *JobsCLI {
	return &JobsCLI{client: client, inspector: inspector}
}

// TriggerOptions carries per-job arguments.
type TriggerOptions struct {
	// Date pins an expiry sweep to a day (YYYY-MM-DD).
	Date string
	// To receives a test email.
	To string
}

// Trigger enqueues a supported job by task type.
func (c *JobsCLI) Trigger(ctx context.Context, name string, opts TriggerOptions) (string, error) {
	if c == nil || c.client == nil {
		return "", errors.New("jobs cli: client not configured")
	}
	switch name {
	case jobs.TaskExpirySweep:
		info, err := c.client.EnqueueExpirySweep(ctx, opts.Date)
		if err != nil {
			return "", err
		}
		return info.ID, nil
	case jobs.TaskTypeSendEmail:
		err := c.client.Send(ctx, notifications.Mail{
			To:      opts.To,
			Subject: "[nCompliance] 메일 발송 테스트",
			Body:    "nCompliance 알림 메일 설정이 정상입니다.",
		})
		return "", err
	default:
		return "", fmt.Errorf("jobs cli: unsupported job %s", name)
	}
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string
	Pending   int
	Active    int
	Scheduled int
	Retry     int
	Archived  int
}

// InspectQueues reports the metrics for every queue the worker serves.
// Queues that were never written to report zeros.
func (c *JobsCLI) InspectQueues(ctx context.Context) ([]QueueStats, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	var out []QueueStats
	for _, name := range []string{jobs.QueueDefault, jobs.QueueMail} {
		stats := QueueStats{Queue: name}
		info, err := c.inspector.GetQueueInfo(name)
		if err != nil && !errors.Is(err, asynq.ErrQueueNotFound) {
			return nil, fmt.Errorf("jobs cli: queue %s: %w", name, err)
		}
		if info != nil {
			stats.Pending = info.Pending
			stats.Active = info.Active
			stats.Scheduled = info.Scheduled
			stats.Retry = info.Retry
			stats.Archived = info.Archived
		}
		out = append(out, stats)
	}
	return out, nil
}

// ListScheduled returns scheduled task infos on the default queue.
func (c *JobsCLI) ListScheduled(ctx context.Context, size int) ([]*asynq.TaskInfo, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	if size <= 0 {
		size = 10
	}
	return c.inspector.ListScheduledTasks(jobs.QueueDefault, asynq.PageSize(size), asynq.Page(1))
}

// PrintQueueStats renders stats as an aligned table.
func PrintQueueStats(w io.Writer, stats []QueueStats) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "QUEUE\tPENDING\tACTIVE\tSCHEDULED\tRETRY\tARCHIVED")
	for _, s := range stats {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\n", s.Queue, s.Pending, s.Active, s.Scheduled, s.Retry, s.Archived)
	}
	return tw.Flush()
}
