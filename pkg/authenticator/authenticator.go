// Package authenticator implements the software authenticator behind
// the scoped credential service: it mints credentials and signs
// assertions. Resident credentials live in a registry; non-resident
// credentials are sealed into their own credential IDs.
package authenticator

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/ldclabs/cose/key"
	"github.com/samber/lo"

	"github.com/go-ctap/scopedcred/pkg/crypto"
	"github.com/go-ctap/scopedcred/pkg/options"
	"github.com/go-ctap/scopedcred/pkg/registry"
	"github.com/go-ctap/scopedcred/pkg/webauthntypes"
)

const credentialIDSize = 32

type Authenticator struct {
	logger  *slog.Logger
	encMode cbor.EncMode
	aaguid  uuid.UUID
	store   registry.Store
	wrapper *crypto.KeyWrapper
}

// New builds an authenticator over a credential registry. A master
// secret in the options additionally enables non-resident credentials.
func New(store registry.Store, opts ...options.Option) (*Authenticator, error) {
	oo := options.NewOptions(opts...)

	a := &Authenticator{
		logger:  oo.Logger,
		encMode: oo.EncMode,
		aaguid:  oo.AAGUID,
		store:   store,
	}

	if oo.MasterSecret != nil {
		wrapper, err := crypto.NewKeyWrapper(oo.MasterSecret)
		if err != nil {
			return nil, err
		}
		a.wrapper = wrapper
	}

	return a, nil
}

type MakeCredentialRequest struct {
	Account        webauthntypes.Account
	RPID           string
	ClientDataHash []byte
	Parameters     []webauthntypes.ScopedCredentialParameters
	ExcludeList    []webauthntypes.ScopedCredentialDescriptor
	ResidentKey    bool
}

type MakeCredentialResult struct {
	Credential        webauthntypes.ScopedCredentialInstance
	PublicKey         key.Key
	AuthData          []byte
	AttestationObject []byte
}

func (a *Authenticator) MakeCredential(ctx context.Context, req *MakeCredentialRequest) (*MakeCredentialResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	candidates := lo.Filter(req.Parameters, func(p webauthntypes.ScopedCredentialParameters, _ int) bool {
		return p.Type == webauthntypes.ScopedCredentialTypeScopedCred && crypto.SupportedAlgorithm(p.Algorithm)
	})
	if len(candidates) == 0 {
		return nil, ErrNoSupportedAlgorithm
	}
	// Candidates arrive in descending order of preference.
	alg := candidates[0].Algorithm

	if err := a.checkExcludeList(ctx, req.RPID, req.ExcludeList); err != nil {
		return nil, err
	}

	privateKey, err := crypto.GenerateKey(alg)
	if err != nil {
		return nil, err
	}
	publicKey, err := crypto.ToPublicKey(privateKey)
	if err != nil {
		return nil, err
	}

	var credentialID []byte
	switch {
	case req.ResidentKey:
		if a.store == nil {
			return nil, ErrNoResidentSupport
		}
		credentialID = make([]byte, credentialIDSize)
		if _, err := rand.Read(credentialID); err != nil {
			return nil, err
		}
	default:
		if a.wrapper == nil {
			return nil, ErrNoWrapperSupport
		}
		credentialID, err = a.wrapper.Seal(req.RPID, privateKey)
		if err != nil {
			return nil, fmt.Errorf("cannot seal key handle: %w", err)
		}
	}

	authData := &webauthntypes.AuthData{
		RPIDHash:  webauthntypes.HashRPID(req.RPID),
		Flags:     webauthntypes.AuthDataFlagUserPresent | webauthntypes.AuthDataFlagUserVerified,
		SignCount: 0,
		AttestedCredentialData: &webauthntypes.AttestedCredentialData{
			AAGUID:              a.aaguid,
			CredentialID:        credentialID,
			CredentialPublicKey: publicKey,
		},
	}
	authDataRaw, err := authData.Encode(a.encMode)
	if err != nil {
		return nil, fmt.Errorf("cannot encode authenticator data: %w", err)
	}

	// Packed self-attestation: the freshly minted key signs its own
	// creation.
	signer, err := crypto.NewSigner(privateKey)
	if err != nil {
		return nil, err
	}
	sig, err := signer.Sign(slices.Concat(authDataRaw, req.ClientDataHash))
	if err != nil {
		return nil, fmt.Errorf("cannot sign attestation: %w", err)
	}

	attObj, err := a.encMode.Marshal(&webauthntypes.AttestationObject{
		Format:   webauthntypes.AttestationFormatPacked,
		AuthData: authDataRaw,
		AttestationStatement: webauthntypes.PackedAttestationStatement{
			Algorithm: alg,
			Signature: sig,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("cannot marshal attestation object: %w", err)
	}

	if req.ResidentKey {
		if err := a.store.Put(ctx, &registry.Record{
			CredentialID: credentialID,
			RPID:         req.RPID,
			UserID:       req.Account.ID,
			UserName:     req.Account.Name,
			Key:          privateKey,
			SignCount:    0,
			CreatedAt:    time.Now().UTC(),
		}); err != nil {
			return nil, err
		}
	}

	a.logger.Debug("minted scoped credential",
		"rpId", req.RPID,
		"userId", req.Account.ID,
		"alg", alg,
		"resident", req.ResidentKey,
		"credentialId", base64.RawURLEncoding.EncodeToString(credentialID),
	)

	return &MakeCredentialResult{
		Credential: webauthntypes.ScopedCredentialInstance{
			Type: webauthntypes.ScopedCredentialTypeScopedCred,
			ID:   credentialID,
		},
		PublicKey:         publicKey,
		AuthData:          authDataRaw,
		AttestationObject: attObj,
	}, nil
}

func (a *Authenticator) checkExcludeList(ctx context.Context, rpID string, excludeList []webauthntypes.ScopedCredentialDescriptor) error {
	for _, desc := range excludeList {
		if desc.Type != webauthntypes.ScopedCredentialTypeScopedCred {
			continue
		}

		if a.store != nil {
			record, err := a.store.Get(ctx, desc.ID)
			if err == nil && record.RPID == rpID {
				return ErrCredentialExcluded
			}
		}
		if a.wrapper != nil {
			if _, err := a.wrapper.Open(rpID, desc.ID); err == nil {
				return ErrCredentialExcluded
			}
		}
	}

	return nil
}

type GetAssertionRequest struct {
	RPID           string
	ClientDataHash []byte
	AllowList      []webauthntypes.ScopedCredentialDescriptor
}

type GetAssertionResult struct {
	Credential          webauthntypes.ScopedCredentialInstance
	AuthData            []byte
	Signature           []byte
	UserID              string
	SignCount           uint32
	NumberOfCredentials uint
}

type candidate struct {
	credentialID []byte
	privateKey   key.Key
	userID       string
	resident     bool
	signCount    uint32
}

// GetAssertion yields one signed assertion per eligible credential,
// most preferred first. Callers that only want a single assertion stop
// after the first yield.
func (a *Authenticator) GetAssertion(ctx context.Context, req *GetAssertionRequest) iter.Seq2[*GetAssertionResult, error] {
	return func(yield func(*GetAssertionResult, error) bool) {
		if err := ctx.Err(); err != nil {
			yield(nil, err)
			return
		}

		candidates, err := a.collectCandidates(ctx, req)
		if err != nil {
			yield(nil, err)
			return
		}
		if len(candidates) == 0 {
			yield(nil, ErrNoCredentials)
			return
		}

		for _, cand := range candidates {
			result, err := a.sign(ctx, req, cand, uint(len(candidates)))
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(result, nil) {
				return
			}
		}
	}
}

func (a *Authenticator) collectCandidates(ctx context.Context, req *GetAssertionRequest) ([]*candidate, error) {
	// An empty allowList means "any resident credential for this scope".
	if len(req.AllowList) == 0 {
		if a.store == nil {
			return nil, nil
		}
		records, err := a.store.ListRP(ctx, req.RPID)
		if err != nil {
			return nil, err
		}
		return lo.Map(records, func(r *registry.Record, _ int) *candidate {
			return &candidate{
				credentialID: r.CredentialID,
				privateKey:   r.Key,
				userID:       r.UserID,
				resident:     true,
				signCount:    r.SignCount,
			}
		}), nil
	}

	candidates := make([]*candidate, 0, len(req.AllowList))
	for _, desc := range req.AllowList {
		if desc.Type != webauthntypes.ScopedCredentialTypeScopedCred {
			continue
		}

		if a.store != nil {
			record, err := a.store.Get(ctx, desc.ID)
			if err == nil {
				if record.RPID != req.RPID {
					continue
				}
				candidates = append(candidates, &candidate{
					credentialID: record.CredentialID,
					privateKey:   record.Key,
					userID:       record.UserID,
					resident:     true,
					signCount:    record.SignCount,
				})
				continue
			}
			if !errors.Is(err, registry.ErrNotFound) {
				return nil, err
			}
		}

		if a.wrapper != nil {
			privateKey, err := a.wrapper.Open(req.RPID, desc.ID)
			if err != nil {
				// Not sealed by us, or sealed for another scope.
				continue
			}
			candidates = append(candidates, &candidate{
				credentialID: desc.ID,
				privateKey:   privateKey,
			})
		}
	}

	return candidates, nil
}

func (a *Authenticator) sign(ctx context.Context, req *GetAssertionRequest, cand *candidate, total uint) (*GetAssertionResult, error) {
	signCount := uint32(0)
	if cand.resident {
		signCount = cand.signCount + 1
		if err := a.store.Bump(ctx, cand.credentialID, signCount); err != nil {
			return nil, err
		}
	}

	authData := &webauthntypes.AuthData{
		RPIDHash:  webauthntypes.HashRPID(req.RPID),
		Flags:     webauthntypes.AuthDataFlagUserPresent | webauthntypes.AuthDataFlagUserVerified,
		SignCount: signCount,
	}
	authDataRaw, err := authData.Encode(a.encMode)
	if err != nil {
		return nil, fmt.Errorf("cannot encode authenticator data: %w", err)
	}

	signer, err := crypto.NewSigner(cand.privateKey)
	if err != nil {
		return nil, err
	}
	sig, err := signer.Sign(slices.Concat(authDataRaw, req.ClientDataHash))
	if err != nil {
		return nil, fmt.Errorf("cannot sign assertion: %w", err)
	}

	a.logger.Debug("signed assertion",
		"rpId", req.RPID,
		"credentialId", base64.RawURLEncoding.EncodeToString(cand.credentialID),
		"signCount", signCount,
	)

	return &GetAssertionResult{
		Credential: webauthntypes.ScopedCredentialInstance{
			Type: webauthntypes.ScopedCredentialTypeScopedCred,
			ID:   cand.credentialID,
		},
		AuthData:            authDataRaw,
		Signature:           sig,
		UserID:              cand.userID,
		SignCount:           signCount,
		NumberOfCredentials: total,
	}, nil
}
