// Package httpapi serves the scoped credential operations over HTTP.
// Binary fields travel base64-encoded inside JSON bodies.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/fxamacker/cbor/v2"
	"github.com/gorilla/mux"

	"github.com/go-ctap/scopedcred/pkg/challenge"
	"github.com/go-ctap/scopedcred/pkg/options"
	"github.com/go-ctap/scopedcred/pkg/scopedauth"
	"github.com/go-ctap/scopedcred/pkg/webauthntypes"
)

type API struct {
	logger  *slog.Logger
	encMode cbor.EncMode
	svc     *scopedauth.Service
	issuer  *challenge.Issuer
	rpID    string
}

func New(svc *scopedauth.Service, issuer *challenge.Issuer, opts ...options.Option) *API {
	oo := options.NewOptions(opts...)

	return &API{
		logger:  oo.Logger,
		encMode: oo.EncMode,
		svc:     svc,
		issuer:  issuer,
		rpID:    oo.RPID,
	}
}

// Register mounts the API on a router.
func (a *API) Register(r *mux.Router) {
	r.HandleFunc("/challenge", a.challengeHandler).Methods(http.MethodPost)
	r.HandleFunc("/makeCredential", a.makeCredentialHandler).Methods(http.MethodPost)
	r.HandleFunc("/getAssertion", a.getAssertionHandler).Methods(http.MethodPost)
}

type challengeRequest struct {
	Scope string `json:"scope,omitempty"`
}

type challengeResponse struct {
	Challenge []byte `json:"challenge"`
}

func (a *API) challengeHandler(rw http.ResponseWriter, r *http.Request) {
	var req challengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(rw, http.StatusBadRequest, err)
		return
	}
	scope := req.Scope
	if scope == "" {
		scope = a.rpID
	}

	ch, err := a.issuer.Issue(r.Context(), scope)
	if err != nil {
		httpError(rw, http.StatusInternalServerError, err)
		return
	}

	writeJSON(rw, http.StatusOK, &challengeResponse{Challenge: ch})
}

type makeCredentialRequest struct {
	Account              webauthntypes.Account                      `json:"accountInformation"`
	CryptoParameters     []webauthntypes.ScopedCredentialParameters `json:"cryptoParameters"`
	AttestationChallenge []byte                                     `json:"attestationChallenge"`
	Options              *webauthntypes.ScopedCredentialOptions     `json:"options,omitempty"`
}

type scopedCredentialInfoResponse struct {
	Credential        webauthntypes.ScopedCredentialInstance `json:"credential"`
	PublicKey         []byte                                 `json:"publicKey"`
	AttestationObject []byte                                 `json:"attestationObject"`
}

func (a *API) makeCredentialHandler(rw http.ResponseWriter, r *http.Request) {
	var req makeCredentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(rw, http.StatusBadRequest, err)
		return
	}

	info, err := a.svc.MakeCredential(r.Context(), req.Account, req.CryptoParameters, req.AttestationChallenge, req.Options)
	if err != nil {
		a.operationError(rw, err)
		return
	}

	// COSE keys do not survive JSON; ship the CBOR encoding.
	publicKey, err := a.encMode.Marshal(info.PublicKey)
	if err != nil {
		httpError(rw, http.StatusInternalServerError, err)
		return
	}

	writeJSON(rw, http.StatusOK, &scopedCredentialInfoResponse{
		Credential:        info.Credential,
		PublicKey:         publicKey,
		AttestationObject: info.AttestationObject,
	})
}

type getAssertionRequest struct {
	AssertionChallenge []byte                          `json:"assertionChallenge"`
	Options            *webauthntypes.AssertionOptions `json:"options,omitempty"`
}

type assertionResponse struct {
	Credential        webauthntypes.ScopedCredentialInstance `json:"credential"`
	ClientData        []byte                                 `json:"clientData"`
	AuthenticatorData []byte                                 `json:"authenticatorData"`
	Signature         []byte                                 `json:"signature"`
}

func (a *API) getAssertionHandler(rw http.ResponseWriter, r *http.Request) {
	var req getAssertionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(rw, http.StatusBadRequest, err)
		return
	}

	assertion, err := a.svc.GetAssertion(r.Context(), req.AssertionChallenge, req.Options)
	if err != nil {
		a.operationError(rw, err)
		return
	}

	writeJSON(rw, http.StatusOK, &assertionResponse{
		Credential:        assertion.Credential,
		ClientData:        assertion.ClientData,
		AuthenticatorData: assertion.AuthenticatorData,
		Signature:         assertion.Signature,
	})
}

type errorResponse struct {
	Error string `json:"error"`
	Name  string `json:"name,omitempty"`
}

func (a *API) operationError(rw http.ResponseWriter, err error) {
	var authErr *scopedauth.AuthError
	if !errors.As(err, &authErr) {
		httpError(rw, http.StatusInternalServerError, err)
		return
	}

	status := http.StatusInternalServerError
	switch authErr.Name {
	case scopedauth.NotAllowedError:
		status = http.StatusForbidden
	case scopedauth.NotSupportedError, scopedauth.SecurityError:
		status = http.StatusBadRequest
	case scopedauth.InvalidStateError:
		status = http.StatusConflict
	}

	a.logger.Debug("operation rejected", "op", authErr.Op, "name", authErr.Name, "error", authErr.Err)
	writeJSON(rw, status, &errorResponse{
		Error: authErr.Error(),
		Name:  string(authErr.Name),
	})
}

func httpError(rw http.ResponseWriter, status int, err error) {
	writeJSON(rw, status, &errorResponse{Error: err.Error()})
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}
