// Package challenge issues and verifies the server-side nonces bound
// into credential-creation and assertion ceremonies. A challenge
// verifies at most once.
package challenge

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/go-ctap/scopedcred/pkg/options"
)

const Size = 32

var (
	ErrEmptyChallenge   = errors.New("challenge: empty challenge")
	ErrUnknownChallenge = errors.New("challenge: unknown or already used challenge")
	ErrExpiredChallenge = errors.New("challenge: challenge expired")
	ErrScopeMismatch    = errors.New("challenge: challenge issued for a different scope")
)

// Verifier validates that a supplied challenge matches an outstanding
// server-issued challenge for the given relying party scope and
// consumes it on success.
type Verifier interface {
	Verify(ctx context.Context, scope string, challenge []byte) error
}

type outstanding struct {
	scope     string
	expiresAt time.Time
}

// Issuer hands out random challenges and verifies them back. The
// backing store is a bounded expirable LRU, so an unconsumed challenge
// disappears either at its TTL or under memory pressure; both read as
// unknown on verify.
type Issuer struct {
	logger *slog.Logger
	ttl    time.Duration
	store  *expirable.LRU[string, outstanding]
}

func NewIssuer(opts ...options.Option) *Issuer {
	oo := options.NewOptions(opts...)

	return &Issuer{
		logger: oo.Logger,
		ttl:    oo.ChallengeTTL,
		store:  expirable.NewLRU[string, outstanding](oo.ChallengeStoreSize, nil, oo.ChallengeTTL),
	}
}

// Issue mints a fresh random challenge bound to scope.
func (i *Issuer) Issue(ctx context.Context, scope string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	challenge := make([]byte, Size)
	if _, err := rand.Read(challenge); err != nil {
		return nil, err
	}

	expiresAt := time.Now().Add(i.ttl)
	i.store.Add(storeKey(challenge), outstanding{
		scope:     scope,
		expiresAt: expiresAt,
	})
	i.logger.Debug("issued challenge",
		"scope", scope,
		"challenge", storeKey(challenge),
		"expiresAt", expiresAt,
	)

	return challenge, nil
}

func (i *Issuer) Verify(ctx context.Context, scope string, challenge []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(challenge) == 0 {
		return ErrEmptyChallenge
	}

	key := storeKey(challenge)
	entry, ok := i.store.Get(key)
	if !ok {
		return ErrUnknownChallenge
	}

	// Consume regardless of outcome below: a challenge gets exactly
	// one verification attempt.
	i.store.Remove(key)

	if entry.scope != scope {
		return ErrScopeMismatch
	}
	if time.Now().After(entry.expiresAt) {
		return ErrExpiredChallenge
	}

	i.logger.Debug("verified challenge", "scope", scope, "challenge", key)
	return nil
}

// Outstanding reports how many unconsumed challenges are held.
func (i *Issuer) Outstanding() int {
	return i.store.Len()
}

func storeKey(challenge []byte) string {
	return base64.RawURLEncoding.EncodeToString(challenge)
}
