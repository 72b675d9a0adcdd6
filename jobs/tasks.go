package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
	// TaskRadiusCompile compiles the policy store into daemon configuration.
	TaskRadiusCompile = "radius:compile"
	// TaskCredentialExpirySweep expires credentials past their expiry.
	TaskCredentialExpirySweep = "ipsk:expiry_sweep"
	// TaskCredentialExpiryWarn warns owners of credentials nearing expiry.
	TaskCredentialExpiryWarn = "ipsk:expiry_warn"
	// TaskNadHealth probes every active NAD.
	TaskNadHealth = "nad:health"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// CompilePayload carries the administrative compile flags.
type CompilePayload struct {
	Force  bool `json:"force"`
	Reload bool `json:"reload"`
}

// SweepPayload carries scheduling metadata for lifecycle sweeps.
type SweepPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data, asynq.MaxRetry(5)), nil
}

// NewCompileTask constructs a compile task. Compiles never retry: a failed
// section is reported in the result and the next trigger recompiles anyway.
func NewCompileTask(payload CompilePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRadiusCompile, data, asynq.Queue(QueueDefault), asynq.MaxRetry(0)), nil
}

// NewSweepTask constructs one of the lifecycle sweep tasks.
func NewSweepTask(taskType string, at time.Time) (*asynq.Task, error) {
	switch taskType {
	case TaskCredentialExpirySweep, TaskCredentialExpiryWarn, TaskNadHealth:
	default:
		return nil, fmt.Errorf("jobs: unknown sweep task %q", taskType)
	}
	body, err := json.Marshal(SweepPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, body, asynq.Queue(QueueDefault), asynq.MaxRetry(1)), nil
}

// TaskTypes lists the task names accepted by the trigger surface.
func TaskTypes() []string {
	return []string{TaskRadiusCompile, TaskCredentialExpirySweep, TaskCredentialExpiryWarn, TaskNadHealth}
}

// NewTaskByName builds a task for name with default payload.
func NewTaskByName(name string, now time.Time) (*asynq.Task, error) {
	if name == TaskRadiusCompile {
		return NewCompileTask(CompilePayload{})
	}
	return NewSweepTask(name, now)
}
