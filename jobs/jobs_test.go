package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/portcullis-nac/portcullis/internal/compiler"
	jobmetrics "github.com/portcullis-nac/portcullis/internal/jobs"
	"github.com/portcullis-nac/portcullis/internal/lifecycle"
)

func TestTaskConstructors(t *testing.T) {
	task, err := NewCompileTask(CompilePayload{Force: true})
	require.NoError(t, err)
	require.Equal(t, TaskRadiusCompile, task.Type())
	var payload CompilePayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.True(t, payload.Force)

	for _, name := range TaskTypes() {
		task, err := NewTaskByName(name, time.Now())
		require.NoError(t, err)
		require.Equal(t, name, task.Type())
	}
	_, err = NewTaskByName("inventory:revaluation", time.Now())
	require.Error(t, err)
}

type recordingSender struct {
	msgs []SendEmailPayload
	err  error
}

func (s *recordingSender) Send(_ context.Context, msg SendEmailPayload) error {
	s.msgs = append(s.msgs, msg)
	return s.err
}

func TestMailJob(t *testing.T) {
	sender := &recordingSender{}
	job := &MailJob{Sender: sender}

	task, err := NewSendEmailTask(SendEmailPayload{To: "a@example.org", Subject: "hi", Body: "body"})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, sender.msgs, 1)
	require.Equal(t, "a@example.org", sender.msgs[0].To)

	err = job.Handle(context.Background(), asynq.NewTask(TaskTypeSendEmail, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	empty, err := NewSendEmailTask(SendEmailPayload{Subject: "x"})
	require.NoError(t, err)
	require.ErrorIs(t, job.Handle(context.Background(), empty), asynq.SkipRetry)

	sender.err = errors.New("relay down")
	require.ErrorContains(t, job.Handle(context.Background(), task), "relay down")
}

func TestBuildMessageStripsHeaderBreaks(t *testing.T) {
	rcpt, data, err := buildMessage("noc@portcullis.local", SendEmailPayload{
		To:      "alice@example.org",
		Subject: "Your key expires\r\nBcc: mallory@example.org",
		Body:    "line one\nline two",
	})
	require.NoError(t, err)
	require.Equal(t, "alice@example.org", rcpt)

	msg := string(data)
	head, body, ok := strings.Cut(msg, "\r\n\r\n")
	require.True(t, ok)
	require.Equal(t, "line one\r\nline two", body)
	require.NotContains(t, head, "\r\nBcc:")
	require.Contains(t, head, "To: <alice@example.org>\r\n")
	for _, line := range strings.Split(head, "\r\n") {
		require.NotContains(t, line, "\n")
		require.NotContains(t, line, "\r")
	}

	_, _, err = buildMessage("noc@portcullis.local", SendEmailPayload{To: "alice@example.org\r\nBcc: mallory@example.org"})
	require.Error(t, err)
}

type stubCompiler struct {
	got compiler.Request
	err error
}

func (s *stubCompiler) Compile(_ context.Context, req compiler.Request) (compiler.Result, error) {
	s.got = req
	return compiler.Result{Success: true, Message: "compiled 0 artifacts, none changed"}, s.err
}

func TestRadiusCompileJob(t *testing.T) {
	stub := &stubCompiler{}
	job := NewRadiusCompileJob(stub, nil)

	task, err := NewCompileTask(CompilePayload{Force: true, Reload: true})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, compiler.Request{Force: true, Reload: true}, stub.got)

	stub.err = compiler.ErrCompileInProgress
	require.NoError(t, job.Handle(context.Background(), task))

	stub.err = errors.New("db down")
	require.Error(t, job.Handle(context.Background(), task))
}

type stubMonitor struct {
	calls []string
	err   error
}

func (s *stubMonitor) SweepExpired(context.Context) (lifecycle.SweepResult, error) {
	s.calls = append(s.calls, "expire")
	return lifecycle.SweepResult{Scanned: 2, Expired: 1}, s.err
}

func (s *stubMonitor) WarnExpiring(context.Context) (lifecycle.SweepResult, error) {
	s.calls = append(s.calls, "warn")
	return lifecycle.SweepResult{Scanned: 2, Warned: 1}, s.err
}

func (s *stubMonitor) ProbeNADs(context.Context) (lifecycle.ProbeSummary, error) {
	s.calls = append(s.calls, "probe")
	return lifecycle.ProbeSummary{Probed: 1, Reachable: 1}, s.err
}

func TestLifecycleJobHandlers(t *testing.T) {
	monitor := &stubMonitor{}
	job := NewLifecycleJob(monitor, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	handlers := job.Handlers()
	require.Len(t, handlers, 3)
	for _, h := range handlers {
		task, err := NewSweepTask(h.Type, time.Now())
		require.NoError(t, err)
		require.NoError(t, h.Handler(context.Background(), task))
	}
	require.Equal(t, []string{"expire", "warn", "probe"}, monitor.calls)

	monitor.err = errors.New("store down")
	require.Error(t, job.HandleExpirySweep(context.Background(), nil))
}

func TestJobsHealthWithoutInspector(t *testing.T) {
	h := NewHandler(nil, nil)
	rec := httptest.NewRecorder()
	h.health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"queue":"default","pending":0}`, rec.Body.String())
}
