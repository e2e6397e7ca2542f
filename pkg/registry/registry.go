// Package registry owns the mapping from account pairings to issued
// scoped credentials.
package registry

import (
	"context"
	"encoding/base64"
	"errors"
	"maps"
	"time"

	"github.com/ldclabs/cose/key"

	"github.com/go-ctap/scopedcred/pkg/webauthntypes"
)

var (
	ErrNotFound          = errors.New("registry: credential not found")
	ErrDuplicate         = errors.New("registry: credential already registered")
	ErrCounterRegression = errors.New("registry: sign count must increase")
)

// Record is one issued scoped credential. For resident credentials Key
// holds the full private COSE key; non-resident credentials live
// entirely inside their key handle and never reach the registry.
type Record struct {
	CredentialID []byte
	RPID         string
	UserID       string
	UserName     string
	Key          key.Key
	SignCount    uint32
	CreatedAt    time.Time
	Transports   []webauthntypes.Transport
}

// Descriptor names the record the way an allowList or excludeList does.
func (r *Record) Descriptor() webauthntypes.ScopedCredentialDescriptor {
	return webauthntypes.ScopedCredentialDescriptor{
		Type:       webauthntypes.ScopedCredentialTypeScopedCred,
		ID:         r.CredentialID,
		Transports: r.Transports,
	}
}

func (r *Record) clone() *Record {
	c := *r
	c.Key = maps.Clone(r.Key)
	c.CredentialID = append([]byte(nil), r.CredentialID...)
	c.Transports = append([]webauthntypes.Transport(nil), r.Transports...)
	return &c
}

// Store persists issued credentials. Implementations are safe for
// concurrent use. Sign counts only move forward.
type Store interface {
	// Put registers a new credential. Credential IDs are unique across
	// the whole store.
	Put(ctx context.Context, record *Record) error
	// Get returns the credential with the given ID.
	Get(ctx context.Context, credentialID []byte) (*Record, error)
	// List returns all credentials issued to the account pairing,
	// oldest first.
	List(ctx context.Context, rpID string, userID string) ([]*Record, error)
	// ListRP returns all credentials issued under a relying party
	// scope, oldest first.
	ListRP(ctx context.Context, rpID string) ([]*Record, error)
	// Bump stores a new sign count for the credential.
	Bump(ctx context.Context, credentialID []byte, signCount uint32) error
	// Delete removes the credential.
	Delete(ctx context.Context, credentialID []byte) error
}

func storeKey(credentialID []byte) string {
	return base64.RawURLEncoding.EncodeToString(credentialID)
}
