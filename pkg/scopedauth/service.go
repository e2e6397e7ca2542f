// Package scopedauth exposes the scoped credential API: two
// asynchronous operations, makeCredential and getAssertion, over a
// challenge verifier, a credential registry and an assertion signer.
package scopedauth

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/go-ctap/scopedcred/pkg/authenticator"
	"github.com/go-ctap/scopedcred/pkg/challenge"
	"github.com/go-ctap/scopedcred/pkg/options"
	"github.com/go-ctap/scopedcred/pkg/webauthntypes"
)

const hashAlgorithm = "S256"

var errNoScope = errors.New("scopedauth: no relying party scope configured")

type Service struct {
	logger        *slog.Logger
	rpID          string
	origin        string
	authenticator *authenticator.Authenticator
	challenges    challenge.Verifier
}

// New wires the service over an authenticator and a challenge
// verifier. The options' RPID and Origin become the defaults for calls
// that carry no rpId of their own.
func New(auth *authenticator.Authenticator, challenges challenge.Verifier, opts ...options.Option) *Service {
	oo := options.NewOptions(opts...)

	return &Service{
		logger:        oo.Logger,
		rpID:          oo.RPID,
		origin:        oo.Origin,
		authenticator: auth,
		challenges:    challenges,
	}
}

// MakeCredential creates a new scoped credential bound to the account,
// using the most preferred supported parameter set. The attestation
// challenge must be an outstanding server-issued challenge; it is
// consumed by this call.
func (s *Service) MakeCredential(
	ctx context.Context,
	account webauthntypes.Account,
	cryptoParameters []webauthntypes.ScopedCredentialParameters,
	attestationChallenge []byte,
	opts *webauthntypes.ScopedCredentialOptions,
) (*webauthntypes.ScopedCredentialInfo, error) {
	const op = "MakeCredential"

	if opts == nil {
		opts = &webauthntypes.ScopedCredentialOptions{}
	}
	rpID := s.scope(opts.RPID)
	if rpID == "" {
		return nil, newAuthError(op, SecurityError, errNoScope)
	}

	ctx, cancel := s.deadline(ctx, opts.Timeout)
	defer cancel()

	if err := s.challenges.Verify(ctx, rpID, attestationChallenge); err != nil {
		return nil, newAuthError(op, NotAllowedError, err)
	}

	_, clientDataHash, err := s.clientData(attestationChallenge)
	if err != nil {
		return nil, newAuthError(op, UnknownError, err)
	}

	result, err := s.authenticator.MakeCredential(ctx, &authenticator.MakeCredentialRequest{
		Account:        account,
		RPID:           rpID,
		ClientDataHash: clientDataHash,
		Parameters:     cryptoParameters,
		ExcludeList:    opts.ExcludeList,
		ResidentKey:    opts.ResidentKey,
	})
	if err != nil {
		return nil, newAuthError(op, classify(err), err)
	}

	s.logger.Debug("makeCredential succeeded",
		"rpId", rpID,
		"userId", account.ID,
		"credentialId", base64.RawURLEncoding.EncodeToString(result.Credential.ID),
	)

	return &webauthntypes.ScopedCredentialInfo{
		Credential:        result.Credential,
		PublicKey:         result.PublicKey,
		AttestationObject: result.AttestationObject,
	}, nil
}

// GetAssertion produces a signed assertion over the challenge using a
// previously registered credential. When several credentials are
// eligible the most preferred one is used; Assertions exposes the rest.
func (s *Service) GetAssertion(
	ctx context.Context,
	assertionChallenge []byte,
	opts *webauthntypes.AssertionOptions,
) (*webauthntypes.WebAuthnAssertion, error) {
	const op = "GetAssertion"

	for assertion, err := range s.Assertions(ctx, assertionChallenge, opts) {
		if err != nil {
			return nil, err
		}
		return assertion, nil
	}

	return nil, newAuthError(op, NotAllowedError, authenticator.ErrNoCredentials)
}

// Assertions yields one assertion per eligible credential, most
// preferred first. The challenge is verified, and consumed, once.
func (s *Service) Assertions(
	ctx context.Context,
	assertionChallenge []byte,
	opts *webauthntypes.AssertionOptions,
) iter.Seq2[*webauthntypes.WebAuthnAssertion, error] {
	const op = "GetAssertion"

	return func(yield func(*webauthntypes.WebAuthnAssertion, error) bool) {
		o := opts
		if o == nil {
			o = &webauthntypes.AssertionOptions{}
		}
		rpID := s.scope(o.RPID)
		if rpID == "" {
			yield(nil, newAuthError(op, SecurityError, errNoScope))
			return
		}

		ctx, cancel := s.deadline(ctx, o.Timeout)
		defer cancel()

		if err := s.challenges.Verify(ctx, rpID, assertionChallenge); err != nil {
			yield(nil, newAuthError(op, NotAllowedError, err))
			return
		}

		clientDataRaw, clientDataHash, err := s.clientData(assertionChallenge)
		if err != nil {
			yield(nil, newAuthError(op, UnknownError, err))
			return
		}

		for result, err := range s.authenticator.GetAssertion(ctx, &authenticator.GetAssertionRequest{
			RPID:           rpID,
			ClientDataHash: clientDataHash,
			AllowList:      o.AllowList,
		}) {
			if err != nil {
				yield(nil, newAuthError(op, classify(err), err))
				return
			}

			s.logger.Debug("getAssertion succeeded",
				"rpId", rpID,
				"credentialId", base64.RawURLEncoding.EncodeToString(result.Credential.ID),
				"signCount", result.SignCount,
			)

			if !yield(&webauthntypes.WebAuthnAssertion{
				Credential:        result.Credential,
				ClientData:        clientDataRaw,
				AuthenticatorData: result.AuthData,
				Signature:         result.Signature,
			}, nil) {
				return
			}
		}
	}
}

func (s *Service) scope(rpID string) string {
	if rpID != "" {
		return rpID
	}
	return s.rpID
}

func (s *Service) deadline(ctx context.Context, timeout uint) (context.Context, context.CancelFunc) {
	if timeout == 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
}

func (s *Service) clientData(ch []byte) ([]byte, []byte, error) {
	raw, err := json.Marshal(webauthntypes.ClientData{
		Challenge:     base64.RawURLEncoding.EncodeToString(ch),
		Origin:        s.origin,
		HashAlgorithm: hashAlgorithm,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("cannot marshal client data: %w", err)
	}

	hash := sha256.Sum256(raw)
	return raw, hash[:], nil
}
