// Package compiler runs every section emitter against one policy snapshot,
// writes the artifacts and optionally reloads the daemon.
package compiler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	jobmetrics "github.com/portcullis-nac/portcullis/internal/jobs"
	"github.com/portcullis-nac/portcullis/internal/policy"
	"github.com/portcullis-nac/portcullis/internal/radiusconf"
)

const (
	defaultLockTTL = 2 * time.Minute
	reloadName     = "reload"
	jobName        = "radius_compile"
)

// SnapshotSource loads one consistent view of the policy store.
type SnapshotSource interface {
	Snapshot(ctx context.Context) (policy.Snapshot, error)
}

// Request carries the administrative compile flags.
type Request struct {
	Force  bool `json:"force"`
	Reload bool `json:"reload"`
}

// ArtifactError records one failed section, artifact write or reload.
type ArtifactError struct {
	Artifact string `json:"artifact"`
	Error    string `json:"error"`
}

// Counts summarises the compiled entities.
type Counts struct {
	Clients        int `json:"clients"`
	Policies       int `json:"policies"`
	EAPMethods     int `json:"eap_methods"`
	MacBypassLists int `json:"mac_bypass_lists"`
	UDNAssignments int `json:"udn_assignments"`
}

// Result is the outcome of one compile. Artifacts maps artifact name to path
// for every artifact that was produced, whether or not its content changed.
type Result struct {
	RunID     uuid.UUID         `json:"run_id"`
	Success   bool              `json:"success"`
	Skipped   bool              `json:"skipped"`
	Artifacts map[string]string `json:"artifacts"`
	Changed   []string          `json:"changed"`
	Errors    []ArtifactError   `json:"errors,omitempty"`
	Warnings  []string          `json:"warnings,omitempty"`
	Counts    Counts            `json:"counts"`
	Reloaded  bool              `json:"reloaded"`
	Message   string            `json:"message"`
}

// Config wires the compiler dependencies. Generator and Source are required.
type Config struct {
	Source    SnapshotSource
	Generator *radiusconf.Generator
	Writer    *ArtifactWriter
	State     State
	Reloader  Reloader
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	LockTTL   time.Duration
}

// Service orchestrates compiles. It keeps no state between runs apart from
// the fingerprint held by State.
type Service struct {
	source    SnapshotSource
	generator *radiusconf.Generator
	writer    *ArtifactWriter
	state     State
	reloader  Reloader
	log       *slog.Logger
	metrics   *jobmetrics.Metrics
	lockTTL   time.Duration
	group     singleflight.Group
}

// NewService constructs a compiler service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Source == nil || cfg.Generator == nil {
		return nil, errors.New("compiler: source and generator required")
	}
	s := &Service{
		source:    cfg.Source,
		generator: cfg.Generator,
		writer:    cfg.Writer,
		state:     cfg.State,
		reloader:  cfg.Reloader,
		log:       cfg.Logger,
		metrics:   cfg.Metrics,
		lockTTL:   cfg.LockTTL,
	}
	if r, ok := s.reloader.(*CommandReloader); ok && r == nil {
		s.reloader = nil
	}
	if s.writer == nil {
		s.writer = NewArtifactWriter()
	}
	if s.state == nil {
		s.state = NewState(nil)
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.lockTTL <= 0 {
		s.lockTTL = defaultLockTTL
	}
	return s, nil
}

// Compile runs one compile. Concurrent calls with the same flags share a run.
// A failing section or write never stops the others; their errors are
// reported in the result and the returned error stays nil.
func (s *Service) Compile(ctx context.Context, req Request) (Result, error) {
	if s == nil {
		return Result{}, errors.New("compiler: service not configured")
	}
	key := fmt.Sprintf("compile:%t:%t", req.Force, req.Reload)
	ch := s.group.DoChan(key, func() (interface{}, error) {
		return s.compile(context.WithoutCancel(ctx), req)
	})
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Result{}, res.Err
		}
		return res.Val.(Result), nil
	}
}

func (s *Service) compile(ctx context.Context, req Request) (res Result, err error) {
	tracker := s.metrics.Track(jobName)
	defer func() { err = tracker.End(err) }()

	res = Result{RunID: uuid.New(), Artifacts: map[string]string{}}
	logger := s.log.With(slog.String("run_id", res.RunID.String()), slog.Bool("force", req.Force))

	release, err := s.state.Acquire(ctx, s.lockTTL)
	if err != nil {
		return Result{}, err
	}
	defer release(ctx)

	snap, err := s.source.Snapshot(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("compiler: load snapshot: %w", err)
	}
	res.Counts = countSnapshot(snap)

	fp, err := s.fingerprint(snap)
	if err != nil {
		return Result{}, err
	}
	if !req.Force {
		previous, err := s.state.Fingerprint(ctx)
		if err != nil {
			logger.Warn("fingerprint unavailable, compiling", slog.Any("error", err))
		} else if previous == fp {
			res.Success = true
			res.Skipped = true
			res.Message = "no changes detected"
			logger.Info("compile skipped", slog.String("fingerprint", fp))
			return res, nil
		}
	}

	for _, section := range s.generator.Sections() {
		artifacts, err := section.Emit(snap)
		if err != nil {
			logger.Warn("section failed", slog.String("section", section.Name), slog.Any("error", err))
			res.Errors = append(res.Errors, ArtifactError{Artifact: section.Name, Error: err.Error()})
			s.metrics.AddArtifact(section.Name, "failed")
			continue
		}
		for _, a := range artifacts {
			for _, w := range a.Warnings {
				logger.Warn("artifact warning", slog.String("artifact", a.Name), slog.String("detail", w))
				res.Warnings = append(res.Warnings, a.Name+": "+w)
			}
			changed, err := s.writer.Write(a)
			if err != nil {
				logger.Error("artifact write failed", slog.String("artifact", a.Name), slog.Any("error", err))
				res.Errors = append(res.Errors, ArtifactError{Artifact: a.Name, Error: err.Error()})
				s.metrics.AddArtifact(a.Name, "failed")
				continue
			}
			res.Artifacts[a.Name] = a.Path
			if changed {
				res.Changed = append(res.Changed, a.Name)
				s.metrics.AddArtifact(a.Name, "written")
			} else {
				s.metrics.AddArtifact(a.Name, "unchanged")
			}
		}
	}
	sort.Strings(res.Changed)

	if len(res.Errors) == 0 {
		if err := s.state.SetFingerprint(ctx, fp); err != nil {
			logger.Warn("fingerprint not stored", slog.Any("error", err))
		}
	}

	if req.Reload && (len(res.Changed) > 0 || req.Force) {
		if s.reloader == nil {
			res.Errors = append(res.Errors, ArtifactError{Artifact: reloadName, Error: "reload requested but no reload command configured"})
		} else if err := s.reloader.Reload(ctx); err != nil {
			logger.Error("daemon reload failed", slog.Any("error", err))
			res.Errors = append(res.Errors, ArtifactError{Artifact: reloadName, Error: err.Error()})
		} else {
			res.Reloaded = true
		}
	}

	res.Success = len(res.Errors) == 0
	res.Message = summary(res)
	logger.Info("compile finished",
		slog.Int("artifacts", len(res.Artifacts)),
		slog.Int("changed", len(res.Changed)),
		slog.Int("errors", len(res.Errors)),
		slog.Bool("reloaded", res.Reloaded),
	)
	return res, nil
}

func (s *Service) fingerprint(snap policy.Snapshot) (string, error) {
	raw, err := json.Marshal(struct {
		Layout    radiusconf.Layout `json:"layout"`
		ServerID  string            `json:"server_id"`
		Templates string            `json:"templates"`
		Snapshot  policy.Snapshot   `json:"snapshot"`
	}{s.generator.Layout(), s.generator.ServerID(), s.generator.TemplateDigest(), snap})
	if err != nil {
		return "", fmt.Errorf("compiler: fingerprint: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

func countSnapshot(snap policy.Snapshot) Counts {
	c := Counts{
		Clients:        len(policy.ActiveClients(snap.Clients)),
		Policies:       len(policy.ActivePolicies(snap.Policies)),
		MacBypassLists: len(policy.ActiveMacBypass(snap.MacBypass)),
		UDNAssignments: len(policy.ActiveUDN(snap.UDN)),
	}
	if snap.EAP != nil && snap.EAP.IsActive {
		c.EAPMethods = len(radiusconf.PlanEAP(*snap.EAP).Methods)
	}
	return c
}

func summary(res Result) string {
	switch {
	case len(res.Errors) > 0:
		return fmt.Sprintf("compiled %d artifacts with %d errors", len(res.Artifacts), len(res.Errors))
	case len(res.Changed) == 0:
		return fmt.Sprintf("compiled %d artifacts, none changed", len(res.Artifacts))
	case res.Reloaded:
		return fmt.Sprintf("compiled %d artifacts, %d changed, daemon reloaded", len(res.Artifacts), len(res.Changed))
	default:
		return fmt.Sprintf("compiled %d artifacts, %d changed", len(res.Artifacts), len(res.Changed))
	}
}
