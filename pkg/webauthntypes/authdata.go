package webauthntypes

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/ldclabs/cose/key"
)

type AuthDataFlag byte

const (
	AuthDataFlagUserPresent AuthDataFlag = 1 << iota
	_
	AuthDataFlagUserVerified
	_
	_
	_
	AuthDataFlagAttestedCredentialDataIncluded
	AuthDataFlagExtensionDataIncluded
)

func (f AuthDataFlag) UserPresent() bool {
	return f&AuthDataFlagUserPresent != 0
}
func (f AuthDataFlag) UserVerified() bool {
	return f&AuthDataFlagUserVerified != 0
}
func (f AuthDataFlag) AttestedCredentialDataIncluded() bool {
	return f&AuthDataFlagAttestedCredentialDataIncluded != 0
}
func (f AuthDataFlag) ExtensionDataIncluded() bool {
	return f&AuthDataFlagExtensionDataIncluded != 0
}

type AttestedCredentialData struct {
	AAGUID              uuid.UUID
	CredentialID        []byte
	CredentialPublicKey key.Key
}

// AuthData is the parsed authenticator data structure signed into
// attestations and assertions.
type AuthData struct {
	RPIDHash               []byte
	Flags                  AuthDataFlag
	SignCount              uint32
	AttestedCredentialData *AttestedCredentialData
	Extensions             []byte
}

var ErrShortAuthData = errors.New("webauthntypes: authenticator data too short")

// HashRPID returns the SHA-256 binding of a relying party scope.
func HashRPID(rpID string) []byte {
	hash := sha256.Sum256([]byte(rpID))
	return hash[:]
}

func ParseAuthData(data []byte) (*AuthData, error) {
	if len(data) < 37 {
		return nil, ErrShortAuthData
	}

	d := &AuthData{
		RPIDHash:  data[:32],
		Flags:     AuthDataFlag(data[32]),
		SignCount: binary.BigEndian.Uint32(data[33:37]),
	}
	offset := 37
	if d.Flags.AttestedCredentialDataIncluded() {
		if len(data) < offset+18 {
			return nil, ErrShortAuthData
		}
		credData := &AttestedCredentialData{
			AAGUID: uuid.UUID(data[offset : offset+16]),
		}
		offset += 16

		// Credential ID
		length := binary.BigEndian.Uint16(data[offset : offset+2])
		offset += 2
		if len(data) < offset+int(length) {
			return nil, ErrShortAuthData
		}
		credData.CredentialID = data[offset : offset+int(length)]
		offset += int(length)

		// Credential Public Key
		dec := cbor.NewDecoder(bytes.NewReader(data[offset:]))
		if err := dec.Decode(&credData.CredentialPublicKey); err != nil {
			return nil, err
		}
		offset += dec.NumBytesRead()

		d.AttestedCredentialData = credData
	}

	if d.Flags.ExtensionDataIncluded() {
		d.Extensions = data[offset:]
	}

	return d, nil
}

// Encode serializes authenticator data into its wire layout:
// rpIdHash | flags | signCount | attestedCredentialData | extensions.
func (d *AuthData) Encode(encMode cbor.EncMode) ([]byte, error) {
	if len(d.RPIDHash) != sha256.Size {
		return nil, errors.New("webauthntypes: rpIdHash must be 32 bytes")
	}

	buf := bytes.NewBuffer(nil)
	buf.Write(d.RPIDHash)

	flags := d.Flags
	if d.AttestedCredentialData != nil {
		flags |= AuthDataFlagAttestedCredentialDataIncluded
	}
	if len(d.Extensions) > 0 {
		flags |= AuthDataFlagExtensionDataIncluded
	}
	buf.WriteByte(byte(flags))

	signCount := make([]byte, 4)
	binary.BigEndian.PutUint32(signCount, d.SignCount)
	buf.Write(signCount)

	if credData := d.AttestedCredentialData; credData != nil {
		buf.Write(credData.AAGUID[:])

		length := make([]byte, 2)
		binary.BigEndian.PutUint16(length, uint16(len(credData.CredentialID)))
		buf.Write(length)
		buf.Write(credData.CredentialID)

		keyBytes, err := encMode.Marshal(credData.CredentialPublicKey)
		if err != nil {
			return nil, err
		}
		buf.Write(keyBytes)
	}

	if len(d.Extensions) > 0 {
		buf.Write(d.Extensions)
	}

	return buf.Bytes(), nil
}
