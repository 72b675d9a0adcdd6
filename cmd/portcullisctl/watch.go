package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

var watchFlags compileOptions

var watchCmd = &cobra.Command{
	Use:   "watch <file>",
	Short: "Recompile whenever a trigger file is written",
	Long: `Watch a trigger file and run a compile each time it is written or
recreated. Provisioning scripts touch the file after bulk edits to the policy
store so that the compile runs once the edits are complete.

Example:
  portcullisctl watch /run/portcullis/compile --reload`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		cfg, logger, err := loadRuntime()
		if err != nil {
			return err
		}
		svc, cleanup, err := buildCompiler(ctx, cfg, logger, watchFlags)
		if err != nil {
			return err
		}
		defer cleanup()

		compile := func() error {
			return runCompileWith(ctx, svc, watchFlags, cmd.OutOrStdout())
		}
		return watchTrigger(ctx, args[0], logger, cmd.ErrOrStderr(), compile)
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().BoolVar(&watchFlags.Force, "force", false, "Write artifacts even if the policy fingerprint is unchanged")
	watchCmd.Flags().BoolVar(&watchFlags.Reload, "reload", false, "Reload FreeRADIUS after each successful compile")
	watchCmd.Flags().StringVar(&watchFlags.Snapshot, "snapshot", "", "Compile from a YAML snapshot file instead of the database")
	watchCmd.Flags().StringVar(&watchFlags.OutDir, "out", "", "Output root (defaults to RADIUS_CONFIG_DIR)")
}

// watchTrigger calls compile on every write or create of filename until ctx
// is cancelled. Compile failures are reported and watching continues.
func watchTrigger(ctx context.Context, filename string, logger *slog.Logger, errOut io.Writer, compile func() error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(filename); err != nil {
		return fmt.Errorf("watch %s: %w", filename, err)
	}
	logger.Info("watching trigger file", slog.String("file", filename))

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			logger.Info("trigger file changed, compiling", slog.String("op", event.Op.String()))
			if err := compile(); err != nil {
				fmt.Fprintf(errOut, "compile failed: %v\n", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", slog.Any("error", err))
		case <-ctx.Done():
			return nil
		}
	}
}
