package authenticator

import "errors"

var (
	ErrNoSupportedAlgorithm = errors.New("authenticator: no supported algorithm among candidate parameters")
	ErrCredentialExcluded   = errors.New("authenticator: a credential from the exclude list already exists")
	ErrNoCredentials        = errors.New("authenticator: no eligible credential for this scope")
	ErrNoResidentSupport    = errors.New("authenticator: no registry configured for resident credentials")
	ErrNoWrapperSupport     = errors.New("authenticator: no master secret configured for non-resident credentials")
)
