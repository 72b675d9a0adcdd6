package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/portcullis-nac/portcullis/internal/platform/db"
	"github.com/portcullis-nac/portcullis/internal/policy"
)

// Repository implements Store on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository wrapper.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const credentialColumns = `c.id, c.user_id, COALESCE(u.email, ''), c.identifier, c.passphrase,
    c.expires_at, c.ipsk_status, c.expired_at, c.last_notified_at`

func scanCredential(row pgx.Row) (policy.Credential, error) {
	var (
		c      policy.Credential
		status string
	)
	err := row.Scan(&c.ID, &c.UserID, &c.Email, &c.Identifier, &c.Passphrase, &c.ExpiresAt, &status, &c.ExpiredAt, &c.LastNotifiedAt)
	c.Status = policy.CredentialStatus(status)
	return c, err
}

// ActiveExpiring returns active credentials that carry an expiry.
func (r *Repository) ActiveExpiring(ctx context.Context) ([]policy.Credential, error) {
	if r == nil || r.pool == nil {
		return nil, policy.ErrRepositoryNotInit
	}
	var out []policy.Credential
	err := db.WithSnapshot(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT `+credentialColumns+`
FROM ipsk_credentials c
LEFT JOIN users u ON u.id = c.user_id
WHERE c.ipsk_status = 'active' AND c.expires_at IS NOT NULL
ORDER BY c.expires_at, c.id`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			c, err := scanCredential(rows)
			if err != nil {
				return err
			}
			out = append(out, c)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("lifecycle: list expiring credentials: %w", err)
	}
	return out, nil
}

// Credential loads one credential.
func (r *Repository) Credential(ctx context.Context, id int64) (policy.Credential, error) {
	if r == nil || r.pool == nil {
		return policy.Credential{}, policy.ErrRepositoryNotInit
	}
	c, err := scanCredential(r.pool.QueryRow(ctx, `SELECT `+credentialColumns+`
FROM ipsk_credentials c
LEFT JOIN users u ON u.id = c.user_id
WHERE c.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return policy.Credential{}, policy.ErrNotFound
	}
	if err != nil {
		return policy.Credential{}, fmt.Errorf("lifecycle: load credential %d: %w", id, err)
	}
	return c, nil
}

// SaveCredentials writes lifecycle fields for every credential in one batch.
func (r *Repository) SaveCredentials(ctx context.Context, creds []policy.Credential) error {
	if r == nil || r.pool == nil {
		return policy.ErrRepositoryNotInit
	}
	if len(creds) == 0 {
		return nil
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, c := range creds {
			batch.Queue(`UPDATE ipsk_credentials
SET ipsk_status = $2, expires_at = $3, expired_at = $4, last_notified_at = $5
WHERE id = $1`, c.ID, string(c.Status), c.ExpiresAt, c.ExpiredAt, c.LastNotifiedAt)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("lifecycle: save credentials: %w", err)
		}
		return nil
	})
}

// ActiveClients returns the active NAD clients.
func (r *Repository) ActiveClients(ctx context.Context) ([]policy.Client, error) {
	if r == nil || r.pool == nil {
		return nil, policy.ErrRepositoryNotInit
	}
	rows, err := r.pool.Query(ctx, `SELECT id, name, address, secret, vendor, radsec, coa, ipv6, is_active, created_at
FROM nas_clients WHERE is_active ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: list clients: %w", err)
	}
	defer rows.Close()
	var out []policy.Client
	for rows.Next() {
		var c policy.Client
		if err := rows.Scan(&c.ID, &c.Name, &c.Address, &c.Secret, &c.Vendor, &c.RadSec, &c.CoA, &c.IPv6, &c.IsActive, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// NadHealth returns the last recorded health per client id.
func (r *Repository) NadHealth(ctx context.Context) (map[int64]policy.NadHealth, error) {
	if r == nil || r.pool == nil {
		return nil, policy.ErrRepositoryNotInit
	}
	rows, err := r.pool.Query(ctx, `SELECT h.client_id, n.name, h.reachable, h.latency_ms, h.avg_latency_ms,
    h.checked_at, h.consecutive_failures, h.last_error
FROM nad_health h
JOIN nas_clients n ON n.id = h.client_id`)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: list nad health: %w", err)
	}
	defer rows.Close()
	out := make(map[int64]policy.NadHealth)
	for rows.Next() {
		var h policy.NadHealth
		if err := rows.Scan(&h.ClientID, &h.ClientName, &h.Reachable, &h.LatencyMs, &h.AvgLatencyMs, &h.CheckedAt, &h.ConsecutiveFailures, &h.LastError); err != nil {
			return nil, err
		}
		out[h.ClientID] = h
	}
	return out, rows.Err()
}

// SaveNadHealth upserts health records in one batch.
func (r *Repository) SaveNadHealth(ctx context.Context, records []policy.NadHealth) error {
	if r == nil || r.pool == nil {
		return policy.ErrRepositoryNotInit
	}
	if len(records) == 0 {
		return nil
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, h := range records {
			batch.Queue(`INSERT INTO nad_health (client_id, reachable, latency_ms, avg_latency_ms, checked_at, consecutive_failures, last_error)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (client_id) DO UPDATE SET
    reachable = EXCLUDED.reachable,
    latency_ms = EXCLUDED.latency_ms,
    avg_latency_ms = EXCLUDED.avg_latency_ms,
    checked_at = EXCLUDED.checked_at,
    consecutive_failures = EXCLUDED.consecutive_failures,
    last_error = EXCLUDED.last_error`,
				h.ClientID, h.Reachable, h.LatencyMs, h.AvgLatencyMs, h.CheckedAt, h.ConsecutiveFailures, h.LastError)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("lifecycle: save nad health: %w", err)
		}
		return nil
	})
}
