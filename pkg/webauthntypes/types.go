package webauthntypes

import "github.com/ldclabs/cose/key"

type (
	// ScopedCredentialType defines the valid credential types.
	ScopedCredentialType string
	// Transport defines hints as to how clients might communicate
	// with a particular authenticator holding a scoped credential.
	Transport string
)

const (
	ScopedCredentialTypeScopedCred ScopedCredentialType = "ScopedCred"
)

const (
	TransportUSB Transport = "usb"
	TransportNFC Transport = "nfc"
	TransportBLE Transport = "ble"
)

// Account supplies the user account attributes a new scoped credential
// is bound to. ID is the relying party's stable account identifier and
// the only field used for credential lookup.
type Account struct {
	RelyingPartyDisplayName string `cbor:"rpDisplayName" json:"rpDisplayName"`
	DisplayName             string `cbor:"displayName" json:"displayName"`
	ID                      string `cbor:"id" json:"id"`
	Name                    string `cbor:"name,omitempty" json:"name,omitempty"`
	ImageURL                string `cbor:"imageURL,omitempty" json:"imageURL,omitempty"`
}

// ScopedCredentialParameters is one candidate type/algorithm pair for
// credential creation. Candidates are supplied in descending order of
// preference.
type ScopedCredentialParameters struct {
	Type      ScopedCredentialType `cbor:"type" json:"type"`
	Algorithm key.Alg              `cbor:"algorithm" json:"algorithm"`
}

// ScopedCredentialDescriptor identifies a specific scoped credential.
type ScopedCredentialDescriptor struct {
	Type       ScopedCredentialType `cbor:"type" json:"type"`
	ID         []byte               `cbor:"id" json:"id"`
	Transports []Transport          `cbor:"transports,omitempty" json:"transports,omitempty"`
}

// ScopedCredentialInfo is the result of a successful credential
// creation. It is immutable once issued.
type ScopedCredentialInfo struct {
	Credential ScopedCredentialInstance `cbor:"credential"`
	PublicKey  key.Key                  `cbor:"publicKey"`
	// AttestationObject carries the CBOR-encoded attestation the
	// relying party may validate out of band.
	AttestationObject []byte `cbor:"attestationObject"`
}

// ScopedCredentialInstance is the type/id pair naming an issued credential.
type ScopedCredentialInstance struct {
	Type ScopedCredentialType `cbor:"type" json:"type"`
	ID   []byte               `cbor:"id" json:"id"`
}

// WebAuthnAssertion is the result of a successful assertion. A fresh
// value is produced per call and never persisted.
type WebAuthnAssertion struct {
	Credential        ScopedCredentialInstance `cbor:"credential"`
	ClientData        []byte                   `cbor:"clientData"`
	AuthenticatorData []byte                   `cbor:"authenticatorData"`
	Signature         []byte                   `cbor:"signature"`
}

// ClientData is the contextual binding signed into every assertion and
// attestation. HashAlgorithm names the hash applied to the serialized
// structure before signing.
type ClientData struct {
	Challenge     string `json:"challenge"`
	Origin        string `json:"origin"`
	HashAlgorithm string `json:"hashAlg"`
}

// AuthenticationExtensions carries client extension inputs keyed by
// extension identifier. Unrecognized extensions are ignored.
type AuthenticationExtensions map[string]any

// ScopedCredentialOptions customizes a makeCredential call.
type ScopedCredentialOptions struct {
	Timeout     uint                         `cbor:"timeoutSeconds,omitempty" json:"timeoutSeconds,omitempty"`
	RPID        string                       `cbor:"rpId,omitempty" json:"rpId,omitempty"`
	ExcludeList []ScopedCredentialDescriptor `cbor:"excludeList,omitempty" json:"excludeList,omitempty"`
	ResidentKey bool                         `cbor:"residentKey,omitempty" json:"residentKey,omitempty"`
	Extensions  AuthenticationExtensions     `cbor:"extensions,omitempty" json:"extensions,omitempty"`
}

// AssertionOptions customizes a getAssertion call.
type AssertionOptions struct {
	Timeout    uint                         `cbor:"timeoutSeconds,omitempty" json:"timeoutSeconds,omitempty"`
	RPID       string                       `cbor:"rpId,omitempty" json:"rpId,omitempty"`
	AllowList  []ScopedCredentialDescriptor `cbor:"allowList,omitempty" json:"allowList,omitempty"`
	Extensions AuthenticationExtensions     `cbor:"extensions,omitempty" json:"extensions,omitempty"`
}

// PackedAttestationStatement is the packed attestation statement
// format. X509Chain is absent for self-attestation.
type PackedAttestationStatement struct {
	Algorithm key.Alg  `cbor:"alg"`
	Signature []byte   `cbor:"sig"`
	X509Chain [][]byte `cbor:"x5c,omitempty"`
}

// AttestationObject is the CBOR structure wrapping authenticator data
// and its attestation statement.
type AttestationObject struct {
	Format               string                     `cbor:"fmt"`
	AuthData             []byte                     `cbor:"authData"`
	AttestationStatement PackedAttestationStatement `cbor:"attStmt"`
}

const (
	AttestationFormatPacked = "packed"
	AttestationFormatNone   = "none"
)
