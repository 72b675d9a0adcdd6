package app

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/portcullis-nac/portcullis/internal/compiler"
	jobmetrics "github.com/portcullis-nac/portcullis/internal/jobs"
	"github.com/portcullis-nac/portcullis/internal/lifecycle"
	"github.com/portcullis-nac/portcullis/internal/radiusconf"
)

// NewGenerator builds the section generator for outDir. Templates come from
// RADIUS_TEMPLATE_DIR when set, otherwise from the embedded set.
func NewGenerator(cfg *Config, outDir string) (*radiusconf.Generator, error) {
	var (
		renderer *radiusconf.Renderer
		err      error
	)
	if cfg.RadiusTemplateDir != "" {
		renderer, err = radiusconf.NewRendererFS(os.DirFS(cfg.RadiusTemplateDir), "*.tmpl")
	} else {
		renderer, err = radiusconf.NewRenderer()
	}
	if err != nil {
		return nil, fmt.Errorf("app: load templates: %w", err)
	}
	if outDir == "" {
		outDir = cfg.RadiusConfigDir
	}
	return radiusconf.NewGenerator(radiusconf.DefaultLayout(outDir), renderer, radiusconf.WithServerID(cfg.RadiusServerID)), nil
}

// CompilerDeps are the runtime pieces a compiler service needs beyond config.
type CompilerDeps struct {
	Source  compiler.SnapshotSource
	Redis   *redis.Client
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	OutDir  string
	// NoReload leaves the reload command unset, e.g. for offline compiles.
	NoReload bool
}

// NewCompiler wires a compiler service from configuration.
func NewCompiler(cfg *Config, deps CompilerDeps) (*compiler.Service, error) {
	generator, err := NewGenerator(cfg, deps.OutDir)
	if err != nil {
		return nil, err
	}
	var reloader compiler.Reloader
	if !deps.NoReload {
		if r := compiler.NewCommandReloader(cfg.RadiusReloadCommand, cfg.RadiusReloadTimeout); r != nil {
			reloader = r
		}
	}
	return compiler.NewService(compiler.Config{
		Source:    deps.Source,
		Generator: generator,
		State:     compiler.NewScopedState(deps.Redis, cfg.RadiusServerID),
		Reloader:  reloader,
		Logger:    deps.Logger,
		Metrics:   deps.Metrics,
		LockTTL:   cfg.CompileLockTTL,
	})
}

// NewMonitor wires the lifecycle monitor from configuration. A nil mailer
// disables expiry warnings.
func NewMonitor(cfg *Config, store lifecycle.Store, mailer lifecycle.Mailer, logger *slog.Logger, metrics *jobmetrics.Metrics) (*lifecycle.Monitor, error) {
	var notifier lifecycle.Notifier
	if mailer != nil {
		notifier = lifecycle.NewEmailNotifier(mailer)
	}
	return lifecycle.NewMonitor(lifecycle.Config{
		Store:    store,
		Notifier: notifier,
		Prober: lifecycle.NewProber(lifecycle.ProberConfig{
			Port:        cfg.NadProbePort,
			Timeout:     cfg.NadProbeTimeout,
			Concurrency: cfg.NadProbeConcurrency,
		}),
		Logger:      logger,
		Metrics:     metrics,
		WarningDays: cfg.ExpiryWarningDays,
		Rearm:       cfg.ExpiryRearm,
	})
}
