package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/portcullis-nac/portcullis/internal/policy"
)

type memoryStore struct {
	mu      sync.Mutex
	creds   map[int64]policy.Credential
	clients []policy.Client
	health  map[int64]policy.NadHealth
	saves   int
	saveErr error
}

func newMemoryStore(creds ...policy.Credential) *memoryStore {
	s := &memoryStore{creds: map[int64]policy.Credential{}, health: map[int64]policy.NadHealth{}}
	for _, c := range creds {
		s.creds[c.ID] = c
	}
	return s
}

func (s *memoryStore) ActiveExpiring(context.Context) ([]policy.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []policy.Credential
	for _, c := range s.creds {
		if c.Status == policy.CredentialActive && c.ExpiresAt != nil {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *memoryStore) Credential(_ context.Context, id int64) (policy.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.creds[id]
	if !ok {
		return policy.Credential{}, policy.ErrNotFound
	}
	return c, nil
}

func (s *memoryStore) SaveCredentials(_ context.Context, creds []policy.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	for _, c := range creds {
		s.creds[c.ID] = c
	}
	return nil
}

func (s *memoryStore) ActiveClients(context.Context) ([]policy.Client, error) {
	return s.clients, nil
}

func (s *memoryStore) NadHealth(context.Context) (map[int64]policy.NadHealth, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int64]policy.NadHealth, len(s.health))
	for k, v := range s.health {
		out[k] = v
	}
	return out, nil
}

func (s *memoryStore) SaveNadHealth(_ context.Context, records []policy.NadHealth) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	for _, h := range records {
		s.health[h.ClientID] = h
	}
	return nil
}

type recordingNotifier struct {
	sent []int64
	days []int
	err  error
}

func (n *recordingNotifier) NotifyExpiring(_ context.Context, c policy.Credential, days int) error {
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, c.ID)
	n.days = append(n.days, days)
	return nil
}

func at(t time.Time) *time.Time { return &t }

var fixedNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestMonitor(t *testing.T, store Store, notifier Notifier) *Monitor {
	t.Helper()
	m, err := NewMonitor(Config{Store: store, Notifier: notifier, Now: func() time.Time { return fixedNow }})
	require.NoError(t, err)
	return m
}

func TestSweepExpiredThenExtend(t *testing.T) {
	store := newMemoryStore(
		policy.Credential{ID: 1, Status: policy.CredentialActive, ExpiresAt: at(fixedNow.Add(-time.Hour))},
		policy.Credential{ID: 2, Status: policy.CredentialActive, ExpiresAt: at(fixedNow.Add(48 * time.Hour))},
		policy.Credential{ID: 3, Status: policy.CredentialActive, ExpiresAt: at(fixedNow)},
	)
	m := newTestMonitor(t, store, nil)
	ctx := context.Background()

	res, err := m.SweepExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, res.Expired)
	require.Equal(t, 1, store.saves)

	expired := store.creds[1]
	require.Equal(t, policy.CredentialExpired, expired.Status)
	require.NotNil(t, expired.ExpiredAt)
	require.True(t, expired.ExpiredAt.Equal(fixedNow))
	require.Equal(t, policy.CredentialExpired, store.creds[3].Status)
	require.Equal(t, policy.CredentialActive, store.creds[2].Status)

	until := fixedNow.Add(30 * 24 * time.Hour)
	extended, err := m.Extend(ctx, 1, until)
	require.NoError(t, err)
	require.Equal(t, policy.CredentialActive, extended.Status)
	require.Nil(t, extended.ExpiredAt)
	require.Equal(t, policy.CredentialActive, store.creds[1].Status)
	require.Nil(t, store.creds[1].ExpiredAt)
	require.True(t, store.creds[1].ExpiresAt.Equal(until))

	again, err := m.SweepExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, again.Expired)
}

func TestExtendRefusals(t *testing.T) {
	store := newMemoryStore(
		policy.Credential{ID: 1, Status: policy.CredentialRevoked},
		policy.Credential{ID: 2, Status: policy.CredentialExpired},
	)
	m := newTestMonitor(t, store, nil)
	ctx := context.Background()

	_, err := m.Extend(ctx, 1, fixedNow.Add(time.Hour))
	require.ErrorIs(t, err, ErrCredentialRevoked)

	_, err = m.Extend(ctx, 2, fixedNow)
	require.ErrorIs(t, err, ErrInvalidExpiry)

	_, err = m.Extend(ctx, 99, fixedNow.Add(time.Hour))
	require.ErrorIs(t, err, policy.ErrNotFound)
	require.Equal(t, 0, store.saves)
}

func TestSweepCommitErrorSurfaces(t *testing.T) {
	store := newMemoryStore(policy.Credential{ID: 1, Status: policy.CredentialActive, ExpiresAt: at(fixedNow.Add(-time.Minute))})
	store.saveErr = errors.New("tx aborted")
	m := newTestMonitor(t, store, nil)

	_, err := m.SweepExpired(context.Background())
	require.ErrorContains(t, err, "tx aborted")
}

func TestWarnExpiringThresholdsAndRearm(t *testing.T) {
	store := newMemoryStore(
		policy.Credential{ID: 1, Email: "a@example.org", Status: policy.CredentialActive, ExpiresAt: at(fixedNow.Add(7 * 24 * time.Hour))},
		policy.Credential{ID: 2, Email: "b@example.org", Status: policy.CredentialActive, ExpiresAt: at(fixedNow.Add(5 * 24 * time.Hour))},
		policy.Credential{ID: 3, Email: "c@example.org", Status: policy.CredentialActive, ExpiresAt: at(fixedNow.Add(20 * time.Hour)),
			LastNotifiedAt: at(fixedNow.Add(-2 * time.Hour))},
		policy.Credential{ID: 4, Status: policy.CredentialActive, ExpiresAt: at(fixedNow.Add(3 * 24 * time.Hour))},
		policy.Credential{ID: 5, Email: "e@example.org", Status: policy.CredentialActive, ExpiresAt: at(fixedNow.Add(2*24*time.Hour + time.Hour)),
			LastNotifiedAt: at(fixedNow.Add(-25 * time.Hour))},
	)
	notifier := &recordingNotifier{}
	m := newTestMonitor(t, store, notifier)
	ctx := context.Background()

	res, err := m.WarnExpiring(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, res.Warned)
	require.ElementsMatch(t, []int64{1, 5}, notifier.sent)
	require.ElementsMatch(t, []int{7, 3}, notifier.days)
	require.True(t, store.creds[1].LastNotifiedAt.Equal(fixedNow))
	require.Nil(t, store.creds[2].LastNotifiedAt)
	require.Nil(t, store.creds[4].LastNotifiedAt)

	res, err = m.WarnExpiring(ctx)
	require.NoError(t, err)
	require.Zero(t, res.Warned)
	require.Len(t, notifier.sent, 2)
}

func TestWarnExpiringNotifierFailureLeavesRecordArmed(t *testing.T) {
	store := newMemoryStore(policy.Credential{ID: 1, Email: "a@example.org", Status: policy.CredentialActive, ExpiresAt: at(fixedNow.Add(24 * time.Hour))})
	m := newTestMonitor(t, store, &recordingNotifier{err: errors.New("queue full")})

	res, err := m.WarnExpiring(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.Failed)
	require.Nil(t, store.creds[1].LastNotifiedAt)
}

func TestDaysLeftRoundsUp(t *testing.T) {
	require.Equal(t, 1, DaysLeft(fixedNow, fixedNow.Add(time.Minute)))
	require.Equal(t, 1, DaysLeft(fixedNow, fixedNow.Add(24*time.Hour)))
	require.Equal(t, 2, DaysLeft(fixedNow, fixedNow.Add(25*time.Hour)))
	require.Equal(t, 0, DaysLeft(fixedNow, fixedNow))
}

type stubMailer struct {
	to, subject, body string
}

func (s *stubMailer) Mail(_ context.Context, to, subject, body string) error {
	s.to, s.subject, s.body = to, subject, body
	return nil
}

func TestEmailNotifier(t *testing.T) {
	mailer := &stubMailer{}
	n := NewEmailNotifier(mailer)
	cred := policy.Credential{ID: 1, Email: "a@example.org", Identifier: "alice-phone", ExpiresAt: at(fixedNow)}

	require.NoError(t, n.NotifyExpiring(context.Background(), cred, 1))
	require.Equal(t, "a@example.org", mailer.to)
	require.Equal(t, "Your Wi-Fi key expires in 1 day", mailer.subject)
	require.Contains(t, mailer.body, `"alice-phone"`)
	require.Contains(t, mailer.body, "2026-03-10 12:00 UTC")

	cred.Email = ""
	require.Error(t, n.NotifyExpiring(context.Background(), cred, 3))
}
