package scopedauth

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/ldclabs/cose/key"

	"github.com/go-ctap/scopedcred/pkg/crypto"
	"github.com/go-ctap/scopedcred/pkg/webauthntypes"
)

var (
	ErrChallengeMismatch = errors.New("scopedauth: client data challenge mismatch")
	ErrOriginMismatch    = errors.New("scopedauth: client data origin mismatch")
	ErrRPIDMismatch      = errors.New("scopedauth: assertion issued for a different relying party")
	ErrInvalidSignature  = errors.New("scopedauth: invalid assertion signature")
)

// VerifiedAssertion carries the authenticator state extracted from a
// successfully verified assertion.
type VerifiedAssertion struct {
	Flags     webauthntypes.AuthDataFlag
	SignCount uint32
}

// VerifyAssertion performs the relying-party check of an assertion:
// the client data must bind the expected challenge and origin, the
// authenticator data must bind the relying party scope, and the
// signature over authenticatorData‖SHA-256(clientData) must verify
// under the credential's public key.
func VerifyAssertion(
	publicKey key.Key,
	rpID string,
	origin string,
	expectedChallenge []byte,
	assertion *webauthntypes.WebAuthnAssertion,
) (*VerifiedAssertion, error) {
	var clientData webauthntypes.ClientData
	if err := json.Unmarshal(assertion.ClientData, &clientData); err != nil {
		return nil, fmt.Errorf("cannot parse client data: %w", err)
	}

	gotChallenge, err := base64.RawURLEncoding.DecodeString(clientData.Challenge)
	if err != nil {
		return nil, fmt.Errorf("cannot decode client data challenge: %w", err)
	}
	if !bytes.Equal(gotChallenge, expectedChallenge) {
		return nil, ErrChallengeMismatch
	}
	if clientData.Origin != origin {
		return nil, ErrOriginMismatch
	}

	authData, err := webauthntypes.ParseAuthData(assertion.AuthenticatorData)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(authData.RPIDHash, webauthntypes.HashRPID(rpID)) {
		return nil, ErrRPIDMismatch
	}

	verifier, err := crypto.NewVerifier(publicKey)
	if err != nil {
		return nil, err
	}
	clientDataHash := sha256.Sum256(assertion.ClientData)
	if err := verifier.Verify(
		slices.Concat(assertion.AuthenticatorData, clientDataHash[:]),
		assertion.Signature,
	); err != nil {
		return nil, ErrInvalidSignature
	}

	return &VerifiedAssertion{
		Flags:     authData.Flags,
		SignCount: authData.SignCount,
	}, nil
}
