package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/ncompliance/ncompliance/internal/jobs"
	"github.com/ncompliance/ncompliance/internal/notifications"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueMail carries outbound email so a slow SMTP relay never delays sweeps.
	QueueMail = "mail"
	// TaskTypeSendEmail is the task type for sending notification emails.
	TaskTypeSendEmail = "mail:send"

	mailMaxRetry = 5
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	if strings.TrimSpace(payload.To) == "" {
		return nil, errors.New("jobs: email recipient required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data), nil
}

// MailSender delivers one message synchronously.
type MailSender interface {
	Send(ctx context.Context, msg SendEmailPayload) error
}

// MailJob handles TaskTypeSendEmail tasks.
type MailJob struct {
	sender  MailSender
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewMailJob builds the mail:send handler.
func NewMailJob(sender MailSender, logger *slog.Logger, metrics *jobmetrics.Metrics) *MailJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &MailJob{sender: sender, logger: logger, metrics: metrics}
}

// Handle sends the email. Malformed payloads are dropped without retry.
func (j *MailJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	tracker := j.metrics.Track(TaskTypeSendEmail)
	defer func() { err = tracker.End(err) }()

	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.To == "" {
		j.logger.Warn("drop malformed email task", slog.Any("error", err))
		return fmt.Errorf("jobs: decode email payload: %w", asynq.SkipRetry)
	}
	if j.sender == nil {
		return errors.New("jobs: mail sender not configured")
	}
	if err := j.sender.Send(ctx, payload); err != nil {
		return fmt.Errorf("jobs: send email to %s: %w", payload.To, err)
	}
	j.logger.Info("email sent", slog.String("to", payload.To), slog.String("subject", payload.Subject))
	return nil
}

// Enqueuer is the part of *asynq.Client the job client needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Client submits jobs to the queue.
type Client struct {
	enqueuer Enqueuer
	closer   func() error
}

// NewClient constructs a Client backed by a real asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) *Client {
	client := asynq.NewClient(redisOpts)
	return &Client{enqueuer: client, closer: client.Close}
}

// NewClientWith wraps an existing enqueuer.
func NewClientWith(enqueuer Enqueuer) *Client {
	return &Client{enqueuer: enqueuer}
}

var _ notifications.Mailer = (*Client)(nil)

// Send queues a notification email on QueueMail.
func (c *Client) Send(ctx context.Context, m notifications.Mail) error {
	task, err := NewSendEmailTask(SendEmailPayload{To: m.To, Subject: m.Subject, Body: m.Body})
	if err != nil {
		return err
	}
	_, err = c.enqueuer.EnqueueContext(ctx, task, asynq.Queue(QueueMail), asynq.MaxRetry(mailMaxRetry))
	return err
}

// EnqueueExpirySweep queues a sweep for date (YYYY-MM-DD, empty for today).
func (c *Client) EnqueueExpirySweep(ctx context.Context, date string) (*asynq.TaskInfo, error) {
	task, err := NewExpirySweepTask(date)
	if err != nil {
		return nil, err
	}
	return c.enqueuer.EnqueueContext(ctx, task, ExpirySweepOptions()...)
}

// Close releases client resources.
func (c *Client) Close() error {
	if c == nil || c.closer == nil {
		return nil
	}
	return c.closer()
}
