// Package lifecycle keeps iPSK credentials and NAD health records current:
// it expires credentials, warns owners ahead of expiry and probes clients.
package lifecycle

import (
	"context"
	"errors"

	"github.com/portcullis-nac/portcullis/internal/policy"
)

var (
	// ErrCredentialRevoked is returned when extending a revoked credential.
	ErrCredentialRevoked = errors.New("lifecycle: credential revoked")
	// ErrInvalidExpiry is returned when an extension date is not in the future.
	ErrInvalidExpiry = errors.New("lifecycle: expiry must be in the future")
)

// Store is the persistence surface the monitor needs. Save methods apply the
// whole batch in one transaction.
type Store interface {
	ActiveExpiring(ctx context.Context) ([]policy.Credential, error)
	Credential(ctx context.Context, id int64) (policy.Credential, error)
	SaveCredentials(ctx context.Context, creds []policy.Credential) error
	ActiveClients(ctx context.Context) ([]policy.Client, error)
	NadHealth(ctx context.Context) (map[int64]policy.NadHealth, error)
	SaveNadHealth(ctx context.Context, records []policy.NadHealth) error
}
