package scopedauth

import (
	"context"

	"github.com/samber/mo"

	"github.com/go-ctap/scopedcred/pkg/webauthntypes"
)

// MakeCredentialAsync is the promise-shaped form of MakeCredential:
// the returned channel delivers exactly one settled result and closes.
func (s *Service) MakeCredentialAsync(
	ctx context.Context,
	account webauthntypes.Account,
	cryptoParameters []webauthntypes.ScopedCredentialParameters,
	attestationChallenge []byte,
	opts *webauthntypes.ScopedCredentialOptions,
) <-chan mo.Result[*webauthntypes.ScopedCredentialInfo] {
	ch := make(chan mo.Result[*webauthntypes.ScopedCredentialInfo], 1)

	go func() {
		defer close(ch)

		info, err := s.MakeCredential(ctx, account, cryptoParameters, attestationChallenge, opts)
		if err != nil {
			ch <- mo.Err[*webauthntypes.ScopedCredentialInfo](err)
			return
		}
		ch <- mo.Ok(info)
	}()

	return ch
}

// GetAssertionAsync is the promise-shaped form of GetAssertion.
func (s *Service) GetAssertionAsync(
	ctx context.Context,
	assertionChallenge []byte,
	opts *webauthntypes.AssertionOptions,
) <-chan mo.Result[*webauthntypes.WebAuthnAssertion] {
	ch := make(chan mo.Result[*webauthntypes.WebAuthnAssertion], 1)

	go func() {
		defer close(ch)

		assertion, err := s.GetAssertion(ctx, assertionChallenge, opts)
		if err != nil {
			ch <- mo.Err[*webauthntypes.WebAuthnAssertion](err)
			return
		}
		ch <- mo.Ok(assertion)
	}()

	return ch
}
