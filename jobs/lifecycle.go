package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/portcullis-nac/portcullis/internal/jobs"
	"github.com/portcullis-nac/portcullis/internal/lifecycle"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// Lifecycle is the sweep surface of lifecycle.Monitor.
type Lifecycle interface {
	SweepExpired(ctx context.Context) (lifecycle.SweepResult, error)
	WarnExpiring(ctx context.Context) (lifecycle.SweepResult, error)
	ProbeNADs(ctx context.Context) (lifecycle.ProbeSummary, error)
}

// LifecycleJob handles the credential and NAD-health sweeps.
type LifecycleJob struct {
	Monitor Lifecycle
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewLifecycleJob wires the sweep handlers.
func NewLifecycleJob(monitor Lifecycle, logger *slog.Logger, metrics *jobmetrics.Metrics) *LifecycleJob {
	return &LifecycleJob{Monitor: monitor, Logger: logger, Metrics: metrics}
}

// HandleExpirySweep expires overdue credentials.
func (j *LifecycleJob) HandleExpirySweep(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.Monitor == nil {
		return errors.New("expiry sweep: handler not configured")
	}
	tracker := j.metrics().Track(TaskCredentialExpirySweep)
	defer func() { err = tracker.End(err) }()

	start := time.Now()
	res, err := j.Monitor.SweepExpired(ctx)
	if err != nil {
		j.logger(TaskCredentialExpirySweep).Error("expiry sweep failed", slog.Any("error", err))
		return err
	}
	j.logger(TaskCredentialExpirySweep).Info("completed expiry sweep",
		slog.Int("scanned", res.Scanned),
		slog.Int("expired", res.Expired),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

// HandleExpiryWarn sends expiry warnings.
func (j *LifecycleJob) HandleExpiryWarn(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.Monitor == nil {
		return errors.New("expiry warn: handler not configured")
	}
	tracker := j.metrics().Track(TaskCredentialExpiryWarn)
	defer func() { err = tracker.End(err) }()

	start := time.Now()
	res, err := j.Monitor.WarnExpiring(ctx)
	if err != nil {
		j.logger(TaskCredentialExpiryWarn).Error("warning pass failed", slog.Any("error", err))
		return err
	}
	j.logger(TaskCredentialExpiryWarn).Info("completed warning pass",
		slog.Int("scanned", res.Scanned),
		slog.Int("warned", res.Warned),
		slog.Int("failed", res.Failed),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

// HandleNadHealth probes every active NAD.
func (j *LifecycleJob) HandleNadHealth(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.Monitor == nil {
		return errors.New("nad health: handler not configured")
	}
	tracker := j.metrics().Track(TaskNadHealth)
	defer func() { err = tracker.End(err) }()

	start := time.Now()
	res, err := j.Monitor.ProbeNADs(ctx)
	if err != nil {
		j.logger(TaskNadHealth).Error("nad health sweep failed", slog.Any("error", err))
		return err
	}
	j.logger(TaskNadHealth).Info("completed nad health sweep",
		slog.Int("probed", res.Probed),
		slog.Int("unreachable", res.Unreachable),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

// Handlers returns the task registrations for the worker.
func (j *LifecycleJob) Handlers() []TaskHandler {
	return []TaskHandler{
		{Type: TaskCredentialExpirySweep, Handler: j.HandleExpirySweep},
		{Type: TaskCredentialExpiryWarn, Handler: j.HandleExpiryWarn},
		{Type: TaskNadHealth, Handler: j.HandleNadHealth},
	}
}

func (j *LifecycleJob) logger(task string) *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", task))
	}
	return slog.Default().With(slog.String("job", task))
}

func (j *LifecycleJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
