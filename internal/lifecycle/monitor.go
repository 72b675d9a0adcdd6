package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	jobmetrics "github.com/portcullis-nac/portcullis/internal/jobs"
	"github.com/portcullis-nac/portcullis/internal/policy"
)

const defaultRearm = 24 * time.Hour

// DefaultWarningDays are the day-thresholds that trigger an expiry warning.
var DefaultWarningDays = []int{7, 3, 1}

// Config wires the monitor dependencies. Store is required.
type Config struct {
	Store       Store
	Notifier    Notifier
	Prober      *Prober
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
	WarningDays []int
	Rearm       time.Duration
	Now         func() time.Time
}

// Monitor runs the credential and NAD-health sweeps. Each sweep reads once,
// computes in memory and commits its mutations as one batch.
type Monitor struct {
	store      Store
	notifier   Notifier
	prober     *Prober
	log        *slog.Logger
	metrics    *jobmetrics.Metrics
	thresholds map[int]struct{}
	rearm      time.Duration
	now        func() time.Time
}

// SweepResult summarises one credential pass.
type SweepResult struct {
	Scanned int `json:"scanned"`
	Expired int `json:"expired"`
	Warned  int `json:"warned"`
	Failed  int `json:"failed"`
}

// NewMonitor constructs a monitor.
func NewMonitor(cfg Config) (*Monitor, error) {
	if cfg.Store == nil {
		return nil, errors.New("lifecycle: store required")
	}
	m := &Monitor{
		store:    cfg.Store,
		notifier: cfg.Notifier,
		prober:   cfg.Prober,
		log:      cfg.Logger,
		metrics:  cfg.Metrics,
		rearm:    cfg.Rearm,
		now:      cfg.Now,
	}
	days := cfg.WarningDays
	if len(days) == 0 {
		days = DefaultWarningDays
	}
	m.thresholds = make(map[int]struct{}, len(days))
	for _, d := range days {
		if d > 0 {
			m.thresholds[d] = struct{}{}
		}
	}
	if m.prober == nil {
		m.prober = NewProber(ProberConfig{})
	}
	if m.log == nil {
		m.log = slog.Default()
	}
	if m.rearm <= 0 {
		m.rearm = defaultRearm
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m, nil
}

// SweepExpired moves every active credential whose expiry has passed to
// expired and stamps ExpiredAt.
func (m *Monitor) SweepExpired(ctx context.Context) (SweepResult, error) {
	creds, err := m.store.ActiveExpiring(ctx)
	if err != nil {
		return SweepResult{}, err
	}
	now := m.now().UTC()
	res := SweepResult{Scanned: len(creds)}
	var changed []policy.Credential
	for _, c := range creds {
		if c.Status != policy.CredentialActive || c.ExpiresAt == nil || c.ExpiresAt.After(now) {
			continue
		}
		c.Status = policy.CredentialExpired
		at := now
		c.ExpiredAt = &at
		changed = append(changed, c)
	}
	if err := m.store.SaveCredentials(context.WithoutCancel(ctx), changed); err != nil {
		return res, fmt.Errorf("lifecycle: commit expiry sweep: %w", err)
	}
	res.Expired = len(changed)
	m.metrics.AddTransitions("expired", res.Expired)
	m.log.Info("credential expiry sweep finished", slog.Int("scanned", res.Scanned), slog.Int("expired", res.Expired))
	return res, nil
}

// WarnExpiring notifies owners whose credential is exactly a threshold
// number of days from expiry. A record is notified at most once per re-arm
// interval; LastNotifiedAt is committed in the same batch.
func (m *Monitor) WarnExpiring(ctx context.Context) (SweepResult, error) {
	creds, err := m.store.ActiveExpiring(ctx)
	if err != nil {
		return SweepResult{}, err
	}
	now := m.now().UTC()
	res := SweepResult{Scanned: len(creds)}
	var changed []policy.Credential
	for _, c := range creds {
		if c.Status != policy.CredentialActive || c.ExpiresAt == nil || !c.ExpiresAt.After(now) {
			continue
		}
		days := DaysLeft(now, *c.ExpiresAt)
		if _, ok := m.thresholds[days]; !ok {
			continue
		}
		if c.LastNotifiedAt != nil && now.Sub(*c.LastNotifiedAt) < m.rearm {
			continue
		}
		if c.Email == "" {
			m.log.Debug("expiring credential has no contact", slog.Int64("credential_id", c.ID))
			continue
		}
		if m.notifier == nil {
			continue
		}
		if err := m.notifier.NotifyExpiring(ctx, c, days); err != nil {
			res.Failed++
			m.log.Warn("expiry notification failed", slog.Int64("credential_id", c.ID), slog.Any("error", err))
			continue
		}
		at := now
		c.LastNotifiedAt = &at
		changed = append(changed, c)
	}
	if err := m.store.SaveCredentials(context.WithoutCancel(ctx), changed); err != nil {
		return res, fmt.Errorf("lifecycle: commit warning pass: %w", err)
	}
	res.Warned = len(changed)
	m.metrics.AddTransitions("warned", res.Warned)
	m.log.Info("credential warning pass finished", slog.Int("scanned", res.Scanned), slog.Int("warned", res.Warned), slog.Int("failed", res.Failed))
	return res, nil
}

// Extend returns a credential to active with a new expiry. Revoked
// credentials stay revoked.
func (m *Monitor) Extend(ctx context.Context, id int64, until time.Time) (policy.Credential, error) {
	now := m.now().UTC()
	if !until.After(now) {
		return policy.Credential{}, ErrInvalidExpiry
	}
	c, err := m.store.Credential(ctx, id)
	if err != nil {
		return policy.Credential{}, err
	}
	if c.Status == policy.CredentialRevoked {
		return policy.Credential{}, ErrCredentialRevoked
	}
	wasExpired := c.Status == policy.CredentialExpired
	until = until.UTC()
	c.Status = policy.CredentialActive
	c.ExpiresAt = &until
	c.ExpiredAt = nil
	c.LastNotifiedAt = nil
	if err := m.store.SaveCredentials(context.WithoutCancel(ctx), []policy.Credential{c}); err != nil {
		return policy.Credential{}, fmt.Errorf("lifecycle: extend credential %d: %w", id, err)
	}
	if wasExpired {
		m.metrics.AddTransitions("reactivated", 1)
	}
	m.log.Info("credential extended", slog.Int64("credential_id", id), slog.Time("expires_at", until))
	return c, nil
}

// Credential loads one credential from the store.
func (m *Monitor) Credential(ctx context.Context, id int64) (policy.Credential, error) {
	return m.store.Credential(ctx, id)
}

// NadHealth lists the recorded health per client ordered by client name.
func (m *Monitor) NadHealth(ctx context.Context) ([]policy.NadHealth, error) {
	byID, err := m.store.NadHealth(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]policy.NadHealth, 0, len(byID))
	for _, h := range byID {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ClientName != out[j].ClientName {
			return out[i].ClientName < out[j].ClientName
		}
		return out[i].ClientID < out[j].ClientID
	})
	return out, nil
}

// DaysLeft rounds the remaining time up to whole days.
func DaysLeft(now, expires time.Time) int {
	return int(math.Ceil(expires.Sub(now).Hours() / 24))
}
