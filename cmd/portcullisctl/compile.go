package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/portcullis-nac/portcullis/internal/app"
	"github.com/portcullis-nac/portcullis/internal/compiler"
	"github.com/portcullis-nac/portcullis/internal/platform/cache"
	"github.com/portcullis-nac/portcullis/internal/platform/db"
	"github.com/portcullis-nac/portcullis/internal/policy"
)

// compileOptions mirrors the compile flags.
type compileOptions struct {
	Force    bool
	Reload   bool
	Snapshot string
	OutDir   string
}

var compileFlags compileOptions

var compileCmd = &cobra.Command{
	Use:   "compile",
	Short: "Compile the policy store into FreeRADIUS configuration",
	Long: `Compile the policy store into FreeRADIUS configuration.

By default the snapshot is read from PostgreSQL and artifacts are written to
RADIUS_CONFIG_DIR. With --snapshot the policy is read from a YAML file
instead; no database or Redis is needed and the reload is never run.

Example:
  portcullisctl compile --force --reload
  portcullisctl compile --snapshot policy.yaml --out ./build`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		cfg, logger, err := loadRuntime()
		if err != nil {
			return err
		}
		return runCompile(ctx, cfg, logger, compileFlags, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(compileCmd)
	compileCmd.Flags().BoolVar(&compileFlags.Force, "force", false, "Write artifacts even if the policy fingerprint is unchanged")
	compileCmd.Flags().BoolVar(&compileFlags.Reload, "reload", false, "Reload FreeRADIUS after a successful compile")
	compileCmd.Flags().StringVar(&compileFlags.Snapshot, "snapshot", "", "Compile from a YAML snapshot file instead of the database")
	compileCmd.Flags().StringVar(&compileFlags.OutDir, "out", "", "Output root (defaults to RADIUS_CONFIG_DIR)")
}

// runCompile performs one compile and prints the result as JSON.
func runCompile(ctx context.Context, cfg *app.Config, logger *slog.Logger, opts compileOptions, out io.Writer) error {
	svc, cleanup, err := buildCompiler(ctx, cfg, logger, opts)
	if err != nil {
		return err
	}
	defer cleanup()
	return runCompileWith(ctx, svc, opts, out)
}

func runCompileWith(ctx context.Context, svc *compiler.Service, opts compileOptions, out io.Writer) error {
	res, err := svc.Compile(ctx, compiler.Request{Force: opts.Force, Reload: opts.Reload && opts.Snapshot == ""})
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("compile finished with %d error(s)", len(res.Errors))
	}
	return nil
}

func buildCompiler(ctx context.Context, cfg *app.Config, logger *slog.Logger, opts compileOptions) (*compiler.Service, func(), error) {
	if opts.Snapshot != "" {
		if _, err := os.Stat(opts.Snapshot); err != nil {
			return nil, nil, fmt.Errorf("snapshot: %w", err)
		}
		svc, err := app.NewCompiler(cfg, app.CompilerDeps{
			Source:   policy.FileSource{Path: opts.Snapshot},
			Logger:   logger,
			OutDir:   opts.OutDir,
			NoReload: true,
		})
		return svc, func() {}, err
	}

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return nil, nil, err
	}
	redisClient, err := cache.New(ctx, cfg.Redis())
	if err != nil {
		logger.Warn("redis unavailable, compiling without shared lock", slog.Any("error", err))
	}
	cleanup := func() {
		if redisClient != nil {
			_ = redisClient.Close()
		}
		pool.Close()
	}
	svc, err := app.NewCompiler(cfg, app.CompilerDeps{
		Source: policy.NewRepository(pool),
		Redis:  redisClient,
		Logger: logger,
		OutDir: opts.OutDir,
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return svc, cleanup, nil
}
