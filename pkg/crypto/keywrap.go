// Package crypto seals credential private keys into opaque key
// handles. A sealed handle doubles as the credential ID of a
// non-resident scoped credential: the authenticator keeps no state and
// recovers the key by unsealing the ID presented in an allowList.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/fxamacker/cbor/v2"
	"github.com/ldclabs/cose/key"
	"golang.org/x/crypto/hkdf"
)

var (
	ErrShortSecret   = errors.New("crypto: master secret must be at least 32 bytes")
	ErrInvalidHandle = errors.New("crypto: invalid key handle")
)

type KeyWrapper struct {
	masterSecret []byte
	encMode      cbor.EncMode
}

func NewKeyWrapper(masterSecret []byte) (*KeyWrapper, error) {
	if len(masterSecret) < 32 {
		return nil, ErrShortSecret
	}

	encMode, err := cbor.CTAP2EncOptions().EncMode()
	if err != nil {
		return nil, err
	}

	return &KeyWrapper{
		masterSecret: masterSecret,
		encMode:      encMode,
	}, nil
}

// KDF derives the per-scope wrapping key. Distinct relying party
// scopes never share a wrapping key.
func (w *KeyWrapper) KDF(rpID string) ([]byte, error) {
	salt := make([]byte, 32)

	wrappingKey := make([]byte, 32)
	if _, err := io.ReadFull(
		hkdf.New(sha256.New, w.masterSecret, salt, slices.Concat([]byte("scopedcred key wrap/"), []byte(rpID))),
		wrappingKey,
	); err != nil {
		return nil, fmt.Errorf("calculating wrapping key using HKDF failed: %w", err)
	}

	return wrappingKey, nil
}

// Seal encrypts a COSE private key into a key handle bound to rpID.
func (w *KeyWrapper) Seal(rpID string, privateKey key.Key) ([]byte, error) {
	wrappingKey, err := w.KDF(rpID)
	if err != nil {
		return nil, err
	}

	plaintext, err := w.encMode.Marshal(privateKey)
	if err != nil {
		return nil, fmt.Errorf("cannot marshal COSE_Key: %w", err)
	}

	block, err := aes.NewCipher(wrappingKey)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	rpIDHash := sha256.Sum256([]byte(rpID))
	ciphertext := gcm.Seal(nil, nonce, plaintext, rpIDHash[:])

	return slices.Concat(nonce, ciphertext), nil
}

// Open recovers the COSE private key from a key handle. It fails for
// handles sealed to a different scope or a different master secret;
// the caller treats that as "not our credential".
func (w *KeyWrapper) Open(rpID string, handle []byte) (key.Key, error) {
	wrappingKey, err := w.KDF(rpID)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(wrappingKey)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(handle) < gcm.NonceSize() {
		return nil, ErrInvalidHandle
	}
	nonce := handle[:gcm.NonceSize()]
	ciphertext := handle[gcm.NonceSize():]

	rpIDHash := sha256.Sum256([]byte(rpID))
	plaintext, err := gcm.Open(nil, nonce, ciphertext, rpIDHash[:])
	if err != nil {
		return nil, ErrInvalidHandle
	}

	var privateKey key.Key
	if err := cbor.Unmarshal(plaintext, &privateKey); err != nil {
		return nil, ErrInvalidHandle
	}

	return privateKey, nil
}
