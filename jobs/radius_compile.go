package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/portcullis-nac/portcullis/internal/compiler"
)

// Compiler runs one compile.
type Compiler interface {
	Compile(ctx context.Context, req compiler.Request) (compiler.Result, error)
}

// RadiusCompileJob runs queued compiles. Run metrics are recorded by the
// compiler itself.
type RadiusCompileJob struct {
	Compiler Compiler
	Logger   *slog.Logger
}

// NewRadiusCompileJob wires the compile handler.
func NewRadiusCompileJob(c Compiler, logger *slog.Logger) *RadiusCompileJob {
	return &RadiusCompileJob{Compiler: c, Logger: logger}
}

// Handle executes one compile. A compile already running elsewhere is not
// an error: that run will pick up the same store state.
func (j *RadiusCompileJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Compiler == nil {
		return errors.New("radius compile: handler not configured")
	}
	var payload CompilePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	logger := j.logger().With(slog.Bool("force", payload.Force), slog.Bool("reload", payload.Reload))

	res, err := j.Compiler.Compile(ctx, compiler.Request{Force: payload.Force, Reload: payload.Reload})
	if errors.Is(err, compiler.ErrCompileInProgress) {
		logger.Info("compile already in progress")
		return nil
	}
	if err != nil {
		logger.Error("compile failed", slog.Any("error", err))
		return err
	}
	for _, e := range res.Errors {
		logger.Warn("artifact failed", slog.String("artifact", e.Artifact), slog.String("error", e.Error))
	}
	logger.Info(res.Message, slog.String("run_id", res.RunID.String()), slog.Bool("skipped", res.Skipped))
	return nil
}

func (j *RadiusCompileJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskRadiusCompile))
	}
	return slog.Default().With(slog.String("job", TaskRadiusCompile))
}
