package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/portcullis-nac/portcullis/internal/policy"
)

const (
	defaultProbePort        = 1812
	defaultProbeTimeout     = 3 * time.Second
	defaultProbeConcurrency = 8

	ewmaWeight = 0.3
)

// ProberConfig tunes reachability probes.
type ProberConfig struct {
	Port        int
	Timeout     time.Duration
	Concurrency int
}

// Prober dials NADs over TCP. A refused connection proves the host is up and
// is reported as reachable.
type Prober struct {
	port        int
	timeout     time.Duration
	concurrency int
	dial        func(ctx context.Context, network, address string) (net.Conn, error)
}

// ProbeResult is the outcome of one dial.
type ProbeResult struct {
	Address   string  `json:"address"`
	Reachable bool    `json:"reachable"`
	LatencyMs float64 `json:"latency_ms"`
	Error     string  `json:"error,omitempty"`

	// aborted is set when the caller's context ended before the dial
	// finished. Such a result says nothing about the device.
	aborted bool
}

// NewProber applies defaults to cfg.
func NewProber(cfg ProberConfig) *Prober {
	p := &Prober{port: cfg.Port, timeout: cfg.Timeout, concurrency: cfg.Concurrency}
	if p.port <= 0 {
		p.port = defaultProbePort
	}
	if p.timeout <= 0 {
		p.timeout = defaultProbeTimeout
	}
	if p.concurrency <= 0 {
		p.concurrency = defaultProbeConcurrency
	}
	dialer := &net.Dialer{Timeout: p.timeout}
	p.dial = dialer.DialContext
	return p
}

// Probe dials address on the configured port. The error is never returned;
// it is folded into the result.
func (p *Prober) Probe(ctx context.Context, address string) ProbeResult {
	res := ProbeResult{Address: address}
	dialCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	target := net.JoinHostPort(address, strconv.Itoa(p.port))
	start := time.Now()
	conn, err := p.dial(dialCtx, "tcp", target)
	res.LatencyMs = float64(time.Since(start).Microseconds()) / 1000
	switch {
	case err == nil:
		_ = conn.Close()
		res.Reachable = true
	case errors.Is(err, syscall.ECONNREFUSED):
		res.Reachable = true
	case ctx.Err() != nil || errors.Is(err, context.Canceled):
		res.Error = err.Error()
		res.aborted = true
	default:
		res.Error = err.Error()
	}
	return res
}

// ProbeSummary counts one NAD-health pass.
type ProbeSummary struct {
	Probed      int `json:"probed"`
	Reachable   int `json:"reachable"`
	Unreachable int `json:"unreachable"`
	Skipped     int `json:"skipped"`
}

// ProbeNADs probes every active client with a single address and commits the
// updated health records in one batch. One failing device never aborts the pass.
// Cancelling ctx stops scheduling; dials cut short by the cancellation are
// dropped so that stored health is left as it was.
func (m *Monitor) ProbeNADs(ctx context.Context) (ProbeSummary, error) {
	clients, err := m.store.ActiveClients(ctx)
	if err != nil {
		return ProbeSummary{}, err
	}
	previous, err := m.store.NadHealth(ctx)
	if err != nil {
		return ProbeSummary{}, err
	}

	var (
		summary ProbeSummary
		mu      sync.Mutex
		records []policy.NadHealth
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.prober.concurrency)
	for _, c := range clients {
		if ctx.Err() != nil {
			break
		}
		if !c.IsActive || c.Address == "" || policy.IsCIDR(c.Address) {
			summary.Skipped++
			continue
		}
		c := c
		g.Go(func() error {
			result := m.prober.Probe(gctx, c.Address)
			if result.aborted {
				return nil
			}
			m.metrics.AddProbe(result.Reachable)
			mu.Lock()
			defer mu.Unlock()
			prev, ok := previous[c.ID]
			h := nextHealth(prev, ok, c, result, m.now().UTC())
			records = append(records, h)
			summary.Probed++
			if h.Reachable {
				summary.Reachable++
			} else {
				summary.Unreachable++
				m.log.Warn("nad unreachable", slog.String("client", c.Name), slog.String("address", c.Address), slog.String("error", result.Error))
			}
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		m.log.Warn("nad health sweep interrupted", slog.Int("probed", summary.Probed), slog.Any("error", ctx.Err()))
	}
	if len(records) == 0 {
		return summary, nil
	}
	if err := m.store.SaveNadHealth(context.WithoutCancel(ctx), records); err != nil {
		return summary, fmt.Errorf("lifecycle: commit nad health: %w", err)
	}
	m.log.Info("nad health sweep finished",
		slog.Int("probed", summary.Probed),
		slog.Int("reachable", summary.Reachable),
		slog.Int("unreachable", summary.Unreachable),
		slog.Int("skipped", summary.Skipped),
	)
	return summary, nil
}

// Probe runs one ad-hoc probe without touching the store.
func (m *Monitor) Probe(ctx context.Context, address string) ProbeResult {
	return m.prober.Probe(ctx, address)
}

func nextHealth(prev policy.NadHealth, hasPrev bool, c policy.Client, r ProbeResult, now time.Time) policy.NadHealth {
	h := policy.NadHealth{
		ClientID:   c.ID,
		ClientName: c.Name,
		Reachable:  r.Reachable,
		CheckedAt:  now,
	}
	if !r.Reachable {
		h.LatencyMs = prev.LatencyMs
		h.AvgLatencyMs = prev.AvgLatencyMs
		h.ConsecutiveFailures = prev.ConsecutiveFailures + 1
		h.LastError = r.Error
		return h
	}
	h.LatencyMs = r.LatencyMs
	h.AvgLatencyMs = SmoothLatency(prev.AvgLatencyMs, r.LatencyMs, hasPrev && prev.AvgLatencyMs > 0)
	return h
}

// SmoothLatency folds sample into the running average. Without history the
// sample becomes the average.
func SmoothLatency(avg, sample float64, hasHistory bool) float64 {
	if !hasHistory {
		return sample
	}
	return (1-ewmaWeight)*avg + ewmaWeight*sample
}
