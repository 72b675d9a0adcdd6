package policy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/portcullis-nac/portcullis/internal/platform/db"
)

const uniqueViolation = "23505"

// Repository reads policy records from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository wrapper.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Snapshot loads every record the compiler needs inside one read-only
// RepeatableRead transaction.
func (r *Repository) Snapshot(ctx context.Context) (Snapshot, error) {
	if r == nil || r.pool == nil {
		return Snapshot{}, ErrRepositoryNotInit
	}
	var snap Snapshot
	err := db.WithSnapshot(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		if snap.Clients, err = listClients(ctx, tx); err != nil {
			return fmt.Errorf("policy: load clients: %w", err)
		}
		if snap.Policies, err = listPolicies(ctx, tx); err != nil {
			return fmt.Errorf("policy: load policies: %w", err)
		}
		if snap.EAP, err = activeEapConfig(ctx, tx); err != nil {
			return fmt.Errorf("policy: load eap config: %w", err)
		}
		if snap.MacBypass, err = listMacBypass(ctx, tx); err != nil {
			return fmt.Errorf("policy: load mac bypass: %w", err)
		}
		if snap.SQL, err = activeSQLBackend(ctx, tx); err != nil {
			return fmt.Errorf("policy: load sql backend: %w", err)
		}
		if snap.UDN, err = listUDN(ctx, tx); err != nil {
			return fmt.Errorf("policy: load udn assignments: %w", err)
		}
		if snap.RadSec, err = radSecConfig(ctx, tx); err != nil {
			return fmt.Errorf("policy: load radsec config: %w", err)
		}
		return nil
	})
	if err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// CreateUDNAssignment stores a new assignment. UDN ids are globally unique.
func (r *Repository) CreateUDNAssignment(ctx context.Context, a UdnAssignment) (UdnAssignment, error) {
	if r == nil || r.pool == nil {
		return UdnAssignment{}, ErrRepositoryNotInit
	}
	if err := a.Validate(); err != nil {
		return UdnAssignment{}, err
	}
	if a.MAC != "" {
		a.MAC = NormalizeMAC(a.MAC)
	}
	const insert = `INSERT INTO udn_assignments (udn_id, user_id, mac, ipsk_identifier, passphrase, is_active)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, created_at`
	err := r.pool.QueryRow(ctx, insert, a.UDNID, a.UserID, a.MAC, a.IPSKIdentifier, a.Passphrase, a.IsActive).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return UdnAssignment{}, fmt.Errorf("%w: %d", ErrUDNInUse, a.UDNID)
		}
		return UdnAssignment{}, err
	}
	return a, nil
}

func listClients(ctx context.Context, q pgx.Tx) ([]Client, error) {
	rows, err := q.Query(ctx, `SELECT id, name, address, secret, vendor, radsec, coa, ipv6, is_active, created_at
FROM nas_clients ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Client
	for rows.Next() {
		var c Client
		if err := rows.Scan(&c.ID, &c.Name, &c.Address, &c.Secret, &c.Vendor, &c.RadSec, &c.CoA, &c.IPv6, &c.IsActive, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func listPolicies(ctx context.Context, q pgx.Tx) ([]AuthorizationPolicy, error) {
	rows, err := q.Query(ctx, `SELECT id, name, description, priority, is_active, created_at,
    username_pattern, mac_pattern, nas_identifier_pattern, nas_ip_pattern,
    check_attributes, reply_attributes, time_restriction,
    vlan_id, bandwidth_up_kbps, bandwidth_down_kbps, session_timeout, idle_timeout, simultaneous_use,
    decision, psk_validation_required, psk, mac_matching_enabled, match_on_psk_only,
    group_policy_vendor, group_policy, splash_url, redirect_acl, sgt, sgt_name, include_udn
FROM authorization_policies
ORDER BY priority, created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AuthorizationPolicy
	for rows.Next() {
		var (
			p                  AuthorizationPolicy
			checkRaw, replyRaw []byte
			decision           string
		)
		if err := rows.Scan(
			&p.ID, &p.Name, &p.Description, &p.Priority, &p.IsActive, &p.CreatedAt,
			&p.UsernamePattern, &p.MACPattern, &p.NASIdentifierPattern, &p.NASIPPattern,
			&checkRaw, &replyRaw, &p.TimeRestriction,
			&p.VLANID, &p.BandwidthUpKbps, &p.BandwidthDownKbps, &p.SessionTimeout, &p.IdleTimeout, &p.SimultaneousUse,
			&decision, &p.PSKValidationRequired, &p.PSK, &p.MACMatchingEnabled, &p.MatchOnPSKOnly,
			&p.GroupPolicyVendor, &p.GroupPolicy, &p.SplashURL, &p.RedirectACL, &p.SGT, &p.SGTName, &p.IncludeUDN,
		); err != nil {
			return nil, err
		}
		p.Decision = Decision(decision)
		if err := decodeTriples(checkRaw, &p.CheckAttributes); err != nil {
			return nil, fmt.Errorf("policy %d check attributes: %w", p.ID, err)
		}
		if err := decodeTriples(replyRaw, &p.ReplyAttributes); err != nil {
			return nil, fmt.Errorf("policy %d reply attributes: %w", p.ID, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func decodeTriples(raw []byte, dest *[]AttributeTriple) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dest)
}

func activeEapConfig(ctx context.Context, q pgx.Tx) (*EapConfig, error) {
	var (
		cfg        EapConfig
		defaultRaw string
		enabled    []string
	)
	err := q.QueryRow(ctx, `SELECT id, name, default_eap_type, enabled_methods,
    tls_certificate_file, tls_private_key_file, tls_private_key_password, tls_ca_file, tls_dh_file,
    tls_cipher_list, tls_min_version, tls_max_version, is_active
FROM eap_configs WHERE is_active ORDER BY id LIMIT 1`).Scan(
		&cfg.ID, &cfg.Name, &defaultRaw, &enabled,
		&cfg.TLS.CertificateFile, &cfg.TLS.PrivateKeyFile, &cfg.TLS.PrivateKeyPassword, &cfg.TLS.CAFile, &cfg.TLS.DHFile,
		&cfg.TLS.CipherList, &cfg.TLS.MinVersion, &cfg.TLS.MaxVersion, &cfg.IsActive,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	cfg.DefaultEAPType = EAPType(defaultRaw)
	for _, m := range enabled {
		cfg.EnabledMethods = append(cfg.EnabledMethods, EAPType(m))
	}

	rows, err := q.Query(ctx, `SELECT type, inner_eap_type FROM eap_methods WHERE eap_config_id = $1 ORDER BY type`, cfg.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var typ, inner string
		if err := rows.Scan(&typ, &inner); err != nil {
			return nil, err
		}
		cfg.Methods = append(cfg.Methods, EapMethod{Type: EAPType(typ), InnerEAPType: EAPType(inner)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func listMacBypass(ctx context.Context, q pgx.Tx) ([]MacBypassConfig, error) {
	rows, err := q.Query(ctx, `SELECT id, name, macs, mode, is_active FROM mac_bypass_configs ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []MacBypassConfig
	for rows.Next() {
		var (
			c    MacBypassConfig
			mode string
		)
		if err := rows.Scan(&c.ID, &c.Name, &c.MACs, &mode, &c.IsActive); err != nil {
			return nil, err
		}
		c.Mode = BypassMode(mode)
		out = append(out, c)
	}
	return out, rows.Err()
}

func activeSQLBackend(ctx context.Context, q pgx.Tx) (*SqlBackendConfig, error) {
	var cfg SqlBackendConfig
	err := q.QueryRow(ctx, `SELECT url, read_clients, pool_min, pool_max
FROM sql_backend_configs WHERE is_active ORDER BY id DESC LIMIT 1`).Scan(&cfg.URL, &cfg.ReadClients, &cfg.PoolMin, &cfg.PoolMax)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func listUDN(ctx context.Context, q pgx.Tx) ([]UdnAssignment, error) {
	rows, err := q.Query(ctx, `SELECT a.id, a.udn_id, a.user_id, COALESCE(u.username, ''), a.mac, a.ipsk_identifier,
    a.passphrase, a.is_active, a.created_at
FROM udn_assignments a
LEFT JOIN users u ON u.id = a.user_id
ORDER BY a.udn_id, a.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []UdnAssignment
	for rows.Next() {
		var a UdnAssignment
		if err := rows.Scan(&a.ID, &a.UDNID, &a.UserID, &a.Username, &a.MAC, &a.IPSKIdentifier, &a.Passphrase, &a.IsActive, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func radSecConfig(ctx context.Context, q pgx.Tx) (*RadSecConfig, error) {
	var cfg RadSecConfig
	err := q.QueryRow(ctx, `SELECT enabled, port, min_tls_version, max_tls_version, cipher_list,
    certificate_file, private_key_file, ca_file, verify_depth, require_client_cert, check_crl, ocsp
FROM radsec_configs ORDER BY id LIMIT 1`).Scan(
		&cfg.Enabled, &cfg.Port, &cfg.MinTLSVersion, &cfg.MaxTLSVersion, &cfg.CipherList,
		&cfg.CertificateFile, &cfg.PrivateKeyFile, &cfg.CAFile, &cfg.VerifyDepth, &cfg.RequireClientCert, &cfg.CheckCRL, &cfg.OCSP,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}
