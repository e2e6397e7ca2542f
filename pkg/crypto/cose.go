package crypto

import (
	"errors"

	"github.com/ldclabs/cose/iana"
	"github.com/ldclabs/cose/key"
	"github.com/ldclabs/cose/key/ecdsa"
	"github.com/ldclabs/cose/key/ed25519"
)

var ErrUnsupportedAlgorithm = errors.New("crypto: unsupported algorithm")

// SupportedAlgorithm reports whether credentials can be minted for alg.
func SupportedAlgorithm(alg key.Alg) bool {
	switch int(alg) {
	case iana.AlgorithmES256, iana.AlgorithmES384, iana.AlgorithmES512, iana.AlgorithmEdDSA:
		return true
	default:
		return false
	}
}

// GenerateKey creates a fresh COSE private key for alg.
func GenerateKey(alg key.Alg) (key.Key, error) {
	switch int(alg) {
	case iana.AlgorithmES256, iana.AlgorithmES384, iana.AlgorithmES512:
		return ecdsa.GenerateKey(int(alg))
	case iana.AlgorithmEdDSA:
		return ed25519.GenerateKey()
	default:
		return nil, ErrUnsupportedAlgorithm
	}
}

func NewSigner(privateKey key.Key) (key.Signer, error) {
	switch int(privateKey.Alg()) {
	case iana.AlgorithmES256, iana.AlgorithmES384, iana.AlgorithmES512:
		return ecdsa.NewSigner(privateKey)
	case iana.AlgorithmEdDSA:
		return ed25519.NewSigner(privateKey)
	default:
		return nil, ErrUnsupportedAlgorithm
	}
}

func NewVerifier(publicKey key.Key) (key.Verifier, error) {
	switch int(publicKey.Alg()) {
	case iana.AlgorithmES256, iana.AlgorithmES384, iana.AlgorithmES512:
		return ecdsa.NewVerifier(publicKey)
	case iana.AlgorithmEdDSA:
		return ed25519.NewVerifier(publicKey)
	default:
		return nil, ErrUnsupportedAlgorithm
	}
}

// ToPublicKey strips the private parameters from a COSE key.
func ToPublicKey(privateKey key.Key) (key.Key, error) {
	switch int(privateKey.Alg()) {
	case iana.AlgorithmES256, iana.AlgorithmES384, iana.AlgorithmES512:
		return ecdsa.ToPublicKey(privateKey)
	case iana.AlgorithmEdDSA:
		return ed25519.ToPublicKey(privateKey)
	default:
		return nil, ErrUnsupportedAlgorithm
	}
}
