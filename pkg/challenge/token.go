package challenge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrShortTokenSecret = errors.New("challenge: token secret must be at least 32 bytes")
	ErrInvalidToken     = errors.New("challenge: invalid challenge token")
	ErrReplayedToken    = errors.New("challenge: challenge token already used")
)

// TokenIssuer mints stateless challenges: HMAC-signed tokens carrying
// their own scope and expiry, so the server holds no per-challenge
// state between issue and verify.
type TokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

func NewTokenIssuer(secret []byte, issuer string, ttl time.Duration) (*TokenIssuer, error) {
	if len(secret) < 32 {
		return nil, ErrShortTokenSecret
	}

	return &TokenIssuer{
		secret: secret,
		issuer: issuer,
		ttl:    ttl,
	}, nil
}

func (i *TokenIssuer) Issue(ctx context.Context, scope string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Issuer:    i.issuer,
		Audience:  jwt.ClaimStrings{scope},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
	})

	signed, err := token.SignedString(i.secret)
	if err != nil {
		return nil, fmt.Errorf("cannot sign challenge token: %w", err)
	}

	return []byte(signed), nil
}

// TokenVerifier checks stateless challenge tokens. The replay checker
// makes each token single-use despite the verifier being stateless
// about issuance.
type TokenVerifier struct {
	secret []byte
	issuer string
	replay ReplayChecker
}

func NewTokenVerifier(secret []byte, issuer string, replay ReplayChecker) (*TokenVerifier, error) {
	if len(secret) < 32 {
		return nil, ErrShortTokenSecret
	}

	return &TokenVerifier{
		secret: secret,
		issuer: issuer,
		replay: replay,
	}, nil
}

func (v *TokenVerifier) Verify(ctx context.Context, scope string, challenge []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(challenge) == 0 {
		return ErrEmptyChallenge
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(
		string(challenge),
		claims,
		func(*jwt.Token) (any, error) { return v.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(scope),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.ID == "" {
		return ErrInvalidToken
	}

	if v.replay.Seen(ctx, claims.ID, claims.ExpiresAt.Time) {
		return ErrReplayedToken
	}

	return nil
}
