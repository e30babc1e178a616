package jobs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ncompliance/ncompliance/internal/notifications"
	"github.com/ncompliance/ncompliance/internal/shared"
	_ "github.com/ncompliance/ncompliance/internal/testing/guard"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type recordingEnqueuer struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
	err   error
}

func (r *recordingEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.tasks = append(r.tasks, task)
	r.opts = append(r.opts, opts)
	return &asynq.TaskInfo{ID: "t1", Type: task.Type()}, nil
}

func optionValue(opts []asynq.Option, kind asynq.OptionType) (any, bool) {
	for _, o := range opts {
		if o.Type() == kind {
			return o.Value(), true
		}
	}
	return nil, false
}

func TestClientSendQueuesMailTask(t *testing.T) {
	rec := &recordingEnqueuer{}
	client := NewClientWith(rec)

	err := client.Send(context.Background(), notifications.Mail{To: "kim@example.com", Subject: "[개정] 인사규정", Body: "본문"})
	require.NoError(t, err)
	require.Len(t, rec.tasks, 1)
	assert.Equal(t, TaskTypeSendEmail, rec.tasks[0].Type())

	var payload SendEmailPayload
	require.NoError(t, json.Unmarshal(rec.tasks[0].Payload(), &payload))
	assert.Equal(t, SendEmailPayload{To: "kim@example.com", Subject: "[개정] 인사규정", Body: "본문"}, payload)

	queue, ok := optionValue(rec.opts[0], asynq.QueueOpt)
	require.True(t, ok)
	assert.Equal(t, QueueMail, queue)
	assert.NoError(t, client.Close())
}

func TestClientSendRejectsBlankRecipient(t *testing.T) {
	rec := &recordingEnqueuer{}
	require.Error(t, NewClientWith(rec).Send(context.Background(), notifications.Mail{To: " "}))
	assert.Empty(t, rec.tasks)
}

func TestEnqueueExpirySweepIsUnique(t *testing.T) {
	rec := &recordingEnqueuer{}
	client := NewClientWith(rec)

	_, err := client.EnqueueExpirySweep(context.Background(), "2024-04-01")
	require.NoError(t, err)
	_, ok := optionValue(rec.opts[0], asynq.UniqueOpt)
	assert.True(t, ok)
	retry, _ := optionValue(rec.opts[0], asynq.MaxRetryOpt)
	assert.Equal(t, 0, retry)

	_, err = client.EnqueueExpirySweep(context.Background(), "01/04/2024")
	require.Error(t, err)
	assert.Len(t, rec.tasks, 1)
}

type fakeSender struct {
	sent []SendEmailPayload
	err  error
}

func (f *fakeSender) Send(ctx context.Context, msg SendEmailPayload) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func TestMailJobHandle(t *testing.T) {
	sender := &fakeSender{}
	job := NewMailJob(sender, quiet, nil)

	task, err := NewSendEmailTask(SendEmailPayload{To: "lee@example.com", Subject: "s", Body: "b"})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, sender.sent, 1)

	err = job.Handle(context.Background(), asynq.NewTask(TaskTypeSendEmail, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	sender.err = errors.New("relay refused")
	err = job.Handle(context.Background(), task)
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

type stubSweeper struct {
	today  time.Time
	gotDay time.Time
	res    notifications.SweepResult
	err    error
}

func (s *stubSweeper) Today() time.Time { return s.today }

func (s *stubSweeper) Run(ctx context.Context, today time.Time) (notifications.SweepResult, error) {
	s.gotDay = today
	return s.res, s.err
}

func TestExpirySweepJobUsesTodayOrPinnedDate(t *testing.T) {
	kst := time.FixedZone("KST", 9*60*60)
	sweeper := &stubSweeper{today: time.Date(2024, 4, 1, 0, 0, 0, 0, kst)}
	job := NewExpirySweepJob(sweeper, quiet, nil)

	task, err := NewExpirySweepTask("")
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, sweeper.today, sweeper.gotDay)

	task, err = NewExpirySweepTask("2024-05-10")
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, time.Date(2024, 5, 10, 0, 0, 0, 0, kst), sweeper.gotDay)
}

func TestExpirySweepJobNeverRetries(t *testing.T) {
	sweeper := &stubSweeper{today: time.Now(), err: errors.New("one regulation failed")}
	job := NewExpirySweepJob(sweeper, quiet, nil)

	task, err := NewExpirySweepTask("")
	require.NoError(t, err)
	err = job.Handle(context.Background(), task)
	require.ErrorIs(t, err, asynq.SkipRetry)
	assert.Contains(t, err.Error(), "one regulation failed")

	err = job.Handle(context.Background(), asynq.NewTask(TaskExpirySweep, []byte(`{"date":"soon"}`)))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestExpirySweepJobSkipsLockedDay(t *testing.T) {
	sweeper := &stubSweeper{today: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)}
	var locked []time.Time
	held := false
	unlocked := 0
	job := NewExpirySweepJob(sweeper, quiet, nil).WithLock(func(ctx context.Context, day time.Time) (func(context.Context) error, error) {
		locked = append(locked, day)
		if held {
			return nil, shared.ErrLockHeld
		}
		return func(context.Context) error { unlocked++; return nil }, nil
	})

	task, err := NewExpirySweepTask("")
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, sweeper.today, sweeper.gotDay)
	assert.Equal(t, 1, unlocked)

	held = true
	sweeper.gotDay = time.Time{}
	require.NoError(t, job.Handle(context.Background(), task))
	assert.True(t, sweeper.gotDay.IsZero())
	assert.Len(t, locked, 2)
	assert.Equal(t, 1, unlocked)
}

func TestBuildMessageEncodesKorean(t *testing.T) {
	at := time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)
	body := strings.Repeat("사규가 개정되었습니다. ", 10)
	raw := string(buildMessage("no-reply@ncompliance.local", SendEmailPayload{To: "a@b.c", Subject: "[개정] 인사규정", Body: body}, at))

	head, encoded, found := strings.Cut(raw, "\r\n\r\n")
	require.True(t, found)
	assert.Contains(t, head, "Subject: =?UTF-8?b?")
	assert.Contains(t, head, "To: a@b.c")
	assert.Contains(t, head, "Content-Transfer-Encoding: base64")
	for _, line := range strings.Split(strings.TrimRight(encoded, "\r\n"), "\r\n") {
		assert.LessOrEqual(t, len(line), 76)
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(encoded, "\r\n", ""))
	require.NoError(t, err)
	assert.Equal(t, body, string(decoded))
}

type stubInspector map[string]*asynq.QueueInfo

func (s stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	info, ok := s[queue]
	if !ok {
		return nil, asynq.ErrQueueNotFound
	}
	return info, nil
}

func TestHealthReportsEveryQueue(t *testing.T) {
	h := NewHandler(stubInspector{QueueDefault: {Queue: QueueDefault, Pending: 3, Retry: 1}}, quiet)
	rr := httptest.NewRecorder()
	h.health(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Queues []QueueHealth `json:"queues"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, []QueueHealth{
		{Queue: QueueDefault, Pending: 3, Retry: 1},
		{Queue: QueueMail},
	}, body.Queues)
}
