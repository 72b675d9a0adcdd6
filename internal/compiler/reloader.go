package compiler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Reloader tells the daemon to pick up new artifacts.
type Reloader interface {
	Reload(ctx context.Context) error
}

// CommandReloader runs a fixed command, e.g. "systemctl reload freeradius".
type CommandReloader struct {
	Args    []string
	Timeout time.Duration
}

// NewCommandReloader splits command on whitespace. An empty command yields nil.
func NewCommandReloader(command string, timeout time.Duration) *CommandReloader {
	args := strings.Fields(command)
	if len(args) == 0 {
		return nil
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &CommandReloader{Args: args, Timeout: timeout}
}

// Reload runs the command and reports its combined output on failure.
func (r *CommandReloader) Reload(ctx context.Context) error {
	if r == nil || len(r.Args) == 0 {
		return errors.New("compiler: reload command not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, r.Args[0], r.Args[1:]...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("compiler: reload %q: %w: %s", strings.Join(r.Args, " "), err, strings.TrimSpace(out.String()))
	}
	return nil
}
