package scopedauth

import (
	"testing"

	"github.com/ldclabs/cose/iana"
	"github.com/ldclabs/cose/key"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-ctap/scopedcred/pkg/authenticator"
	"github.com/go-ctap/scopedcred/pkg/challenge"
	"github.com/go-ctap/scopedcred/pkg/options"
	"github.com/go-ctap/scopedcred/pkg/registry"
	"github.com/go-ctap/scopedcred/pkg/webauthntypes"
)

const (
	testRPID   = "login.example.com"
	testOrigin = "https://login.example.com"
)

var testAccount = webauthntypes.Account{
	RelyingPartyDisplayName: "Example",
	DisplayName:             "Alice Example",
	ID:                      "user-1",
	Name:                    "alice",
}

var es256Params = []webauthntypes.ScopedCredentialParameters{
	{Type: webauthntypes.ScopedCredentialTypeScopedCred, Algorithm: key.Alg(iana.AlgorithmES256)},
}

func newService(t *testing.T) (*Service, *challenge.Issuer) {
	t.Helper()

	auth, err := authenticator.New(
		registry.NewMemoryStore(),
		options.WithMasterSecret([]byte("0123456789abcdef0123456789abcdef")),
	)
	require.NoError(t, err)

	issuer := challenge.NewIssuer()
	svc := New(auth, issuer,
		options.WithRPID(testRPID),
		options.WithOrigin(testOrigin),
	)

	return svc, issuer
}

func TestMakeCredentialGetAssertionRoundTrip(t *testing.T) {
	svc, issuer := newService(t)

	attChallenge, err := issuer.Issue(t.Context(), testRPID)
	require.NoError(t, err)

	info, err := svc.MakeCredential(t.Context(), testAccount, es256Params, attChallenge,
		&webauthntypes.ScopedCredentialOptions{ResidentKey: true})
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, webauthntypes.ScopedCredentialTypeScopedCred, info.Credential.Type)
	assert.NotEmpty(t, info.AttestationObject)

	asrtChallenge, err := issuer.Issue(t.Context(), testRPID)
	require.NoError(t, err)

	assertion, err := svc.GetAssertion(t.Context(), asrtChallenge, nil)
	require.NoError(t, err)
	assert.Equal(t, info.Credential, assertion.Credential)

	verified, err := VerifyAssertion(info.PublicKey, testRPID, testOrigin, asrtChallenge, assertion)
	require.NoError(t, err)
	assert.True(t, verified.Flags.UserPresent())
	assert.Equal(t, uint32(1), verified.SignCount)
}

func TestMakeCredentialConsumesChallenge(t *testing.T) {
	svc, issuer := newService(t)

	attChallenge, err := issuer.Issue(t.Context(), testRPID)
	require.NoError(t, err)

	_, err = svc.MakeCredential(t.Context(), testAccount, es256Params, attChallenge,
		&webauthntypes.ScopedCredentialOptions{ResidentKey: true})
	require.NoError(t, err)

	_, err = svc.MakeCredential(t.Context(), testAccount, es256Params, attChallenge,
		&webauthntypes.ScopedCredentialOptions{ResidentKey: true})
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, NotAllowedError, authErr.Name)
	assert.ErrorIs(t, err, challenge.ErrUnknownChallenge)
}

func TestMakeCredentialUnknownChallenge(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.MakeCredential(t.Context(), testAccount, es256Params, []byte("forged"), nil)
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, NotAllowedError, authErr.Name)
}

func TestMakeCredentialNoSupportedAlgorithm(t *testing.T) {
	svc, issuer := newService(t)

	attChallenge, err := issuer.Issue(t.Context(), testRPID)
	require.NoError(t, err)

	params := []webauthntypes.ScopedCredentialParameters{
		{Type: webauthntypes.ScopedCredentialTypeScopedCred, Algorithm: key.Alg(iana.AlgorithmRS256)},
	}
	_, err = svc.MakeCredential(t.Context(), testAccount, params, attChallenge, nil)
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, NotSupportedError, authErr.Name)
	assert.ErrorIs(t, err, authenticator.ErrNoSupportedAlgorithm)
}

func TestMakeCredentialExcludeList(t *testing.T) {
	svc, issuer := newService(t)

	attChallenge, err := issuer.Issue(t.Context(), testRPID)
	require.NoError(t, err)
	info, err := svc.MakeCredential(t.Context(), testAccount, es256Params, attChallenge,
		&webauthntypes.ScopedCredentialOptions{ResidentKey: true})
	require.NoError(t, err)

	attChallenge, err = issuer.Issue(t.Context(), testRPID)
	require.NoError(t, err)
	_, err = svc.MakeCredential(t.Context(), testAccount, es256Params, attChallenge,
		&webauthntypes.ScopedCredentialOptions{
			ResidentKey: true,
			ExcludeList: []webauthntypes.ScopedCredentialDescriptor{{
				Type: webauthntypes.ScopedCredentialTypeScopedCred,
				ID:   info.Credential.ID,
			}},
		})
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, InvalidStateError, authErr.Name)
}

func TestGetAssertionNoCredentials(t *testing.T) {
	svc, issuer := newService(t)

	asrtChallenge, err := issuer.Issue(t.Context(), testRPID)
	require.NoError(t, err)

	_, err = svc.GetAssertion(t.Context(), asrtChallenge, nil)
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, NotAllowedError, authErr.Name)
	assert.ErrorIs(t, err, authenticator.ErrNoCredentials)
}

func TestNoScopeConfigured(t *testing.T) {
	auth, err := authenticator.New(registry.NewMemoryStore())
	require.NoError(t, err)
	svc := New(auth, challenge.NewIssuer())

	_, err = svc.MakeCredential(t.Context(), testAccount, es256Params, []byte("x"), nil)
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, SecurityError, authErr.Name)
}

func TestAssertionsIterateAllCredentials(t *testing.T) {
	svc, issuer := newService(t)

	for _, userID := range []string{"user-1", "user-2"} {
		account := testAccount
		account.ID = userID

		attChallenge, err := issuer.Issue(t.Context(), testRPID)
		require.NoError(t, err)
		_, err = svc.MakeCredential(t.Context(), account, es256Params, attChallenge,
			&webauthntypes.ScopedCredentialOptions{ResidentKey: true})
		require.NoError(t, err)
	}

	asrtChallenge, err := issuer.Issue(t.Context(), testRPID)
	require.NoError(t, err)

	count := 0
	for assertion, err := range svc.Assertions(t.Context(), asrtChallenge, nil) {
		require.NoError(t, err)
		require.NotNil(t, assertion)
		count++
	}
	assert.Equal(t, 2, count)
}

func TestAsyncOperations(t *testing.T) {
	svc, issuer := newService(t)

	attChallenge, err := issuer.Issue(t.Context(), testRPID)
	require.NoError(t, err)

	result := <-svc.MakeCredentialAsync(t.Context(), testAccount, es256Params, attChallenge,
		&webauthntypes.ScopedCredentialOptions{ResidentKey: true})
	info, err := result.Get()
	require.NoError(t, err)

	asrtChallenge, err := issuer.Issue(t.Context(), testRPID)
	require.NoError(t, err)

	asrtResult := <-svc.GetAssertionAsync(t.Context(), asrtChallenge, nil)
	assertion, err := asrtResult.Get()
	require.NoError(t, err)
	assert.Equal(t, info.Credential, assertion.Credential)

	// A rejected promise settles with the error.
	rejected := <-svc.GetAssertionAsync(t.Context(), []byte("forged"), nil)
	_, err = rejected.Get()
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, NotAllowedError, authErr.Name)
}

func TestVerifyAssertionRejectsTampering(t *testing.T) {
	svc, issuer := newService(t)

	attChallenge, err := issuer.Issue(t.Context(), testRPID)
	require.NoError(t, err)
	info, err := svc.MakeCredential(t.Context(), testAccount, es256Params, attChallenge,
		&webauthntypes.ScopedCredentialOptions{ResidentKey: true})
	require.NoError(t, err)

	asrtChallenge, err := issuer.Issue(t.Context(), testRPID)
	require.NoError(t, err)
	assertion, err := svc.GetAssertion(t.Context(), asrtChallenge, nil)
	require.NoError(t, err)

	_, err = VerifyAssertion(info.PublicKey, testRPID, testOrigin, []byte("other"), assertion)
	assert.ErrorIs(t, err, ErrChallengeMismatch)

	_, err = VerifyAssertion(info.PublicKey, testRPID, "https://evil.example.com", asrtChallenge, assertion)
	assert.ErrorIs(t, err, ErrOriginMismatch)

	_, err = VerifyAssertion(info.PublicKey, "evil.example.com", testOrigin, asrtChallenge, assertion)
	assert.ErrorIs(t, err, ErrRPIDMismatch)

	tampered := *assertion
	tampered.Signature = append([]byte(nil), assertion.Signature...)
	tampered.Signature[0] ^= 0xff
	_, err = VerifyAssertion(info.PublicKey, testRPID, testOrigin, asrtChallenge, &tampered)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}
