package webauthntypes

import (
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/ldclabs/cose/iana"
	"github.com/ldclabs/cose/key/ecdsa"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthDataEncodeParseRoundTrip(t *testing.T) {
	encMode, err := cbor.CTAP2EncOptions().EncMode()
	require.NoError(t, err)

	privateKey, err := ecdsa.GenerateKey(iana.AlgorithmES256)
	require.NoError(t, err)
	publicKey, err := ecdsa.ToPublicKey(privateKey)
	require.NoError(t, err)

	in := &AuthData{
		RPIDHash:  HashRPID("login.example.com"),
		Flags:     AuthDataFlagUserPresent | AuthDataFlagUserVerified,
		SignCount: 42,
		AttestedCredentialData: &AttestedCredentialData{
			AAGUID:              uuid.MustParse("01020304-0506-0708-090a-0b0c0d0e0f10"),
			CredentialID:        []byte("credential-id-0123456789"),
			CredentialPublicKey: publicKey,
		},
	}

	raw, err := in.Encode(encMode)
	require.NoError(t, err)

	out, err := ParseAuthData(raw)
	require.NoError(t, err)
	assert.Equal(t, in.RPIDHash, out.RPIDHash)
	assert.Equal(t, uint32(42), out.SignCount)
	assert.True(t, out.Flags.UserPresent())
	assert.True(t, out.Flags.UserVerified())
	assert.True(t, out.Flags.AttestedCredentialDataIncluded())
	require.NotNil(t, out.AttestedCredentialData)
	assert.Equal(t, in.AttestedCredentialData.AAGUID, out.AttestedCredentialData.AAGUID)
	assert.Equal(t, in.AttestedCredentialData.CredentialID, out.AttestedCredentialData.CredentialID)
	assert.Equal(t, publicKey, out.AttestedCredentialData.CredentialPublicKey)
}

func TestAuthDataEncodeWithoutAttestedCredentialData(t *testing.T) {
	encMode, err := cbor.CTAP2EncOptions().EncMode()
	require.NoError(t, err)

	in := &AuthData{
		RPIDHash:  HashRPID("login.example.com"),
		Flags:     AuthDataFlagUserPresent,
		SignCount: 7,
	}

	raw, err := in.Encode(encMode)
	require.NoError(t, err)
	assert.Len(t, raw, 37)

	out, err := ParseAuthData(raw)
	require.NoError(t, err)
	assert.Nil(t, out.AttestedCredentialData)
	assert.False(t, out.Flags.AttestedCredentialDataIncluded())
	assert.Equal(t, uint32(7), out.SignCount)
}

func TestParseAuthDataTooShort(t *testing.T) {
	_, err := ParseAuthData([]byte{0x01, 0x02})
	assert.ErrorIs(t, err, ErrShortAuthData)
}

func TestEncodeRequiresRPIDHash(t *testing.T) {
	encMode, err := cbor.CTAP2EncOptions().EncMode()
	require.NoError(t, err)

	_, err = (&AuthData{RPIDHash: []byte("short")}).Encode(encMode)
	assert.Error(t, err)
}
