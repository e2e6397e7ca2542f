package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"os"

	"github.com/ldclabs/cose/iana"
	"github.com/ldclabs/cose/key"

	"github.com/go-ctap/scopedcred/pkg/authenticator"
	"github.com/go-ctap/scopedcred/pkg/challenge"
	"github.com/go-ctap/scopedcred/pkg/options"
	"github.com/go-ctap/scopedcred/pkg/registry"
	"github.com/go-ctap/scopedcred/pkg/scopedauth"
	"github.com/go-ctap/scopedcred/pkg/webauthntypes"
)

const (
	rpID   = "login.example.com"
	origin = "https://login.example.com"
)

func main() {
	lvl := new(slog.LevelVar)
	lvl.Set(slog.LevelDebug)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: lvl,
	}))

	masterSecret := make([]byte, 32)
	if _, err := rand.Read(masterSecret); err != nil {
		panic(err)
	}

	auth, err := authenticator.New(
		registry.NewMemoryStore(),
		options.WithLogger(logger),
		options.WithMasterSecret(masterSecret),
	)
	if err != nil {
		panic(err)
	}

	issuer := challenge.NewIssuer(options.WithLogger(logger))
	svc := scopedauth.New(auth, issuer,
		options.WithLogger(logger),
		options.WithRPID(rpID),
		options.WithOrigin(origin),
	)

	ctx := context.Background()

	attChallenge, err := issuer.Issue(ctx, rpID)
	if err != nil {
		panic(err)
	}

	info, err := svc.MakeCredential(ctx,
		webauthntypes.Account{
			RelyingPartyDisplayName: "Example Corp",
			DisplayName:             "Alice Example",
			ID:                      "alice@example.com",
			Name:                    "alice",
		},
		[]webauthntypes.ScopedCredentialParameters{
			{Type: webauthntypes.ScopedCredentialTypeScopedCred, Algorithm: key.Alg(iana.AlgorithmES256)},
			{Type: webauthntypes.ScopedCredentialTypeScopedCred, Algorithm: key.Alg(iana.AlgorithmEdDSA)},
		},
		attChallenge,
		&webauthntypes.ScopedCredentialOptions{ResidentKey: true},
	)
	if err != nil {
		panic(err)
	}
	fmt.Printf("Created credential: %x\n", info.Credential.ID)

	asrtChallenge, err := issuer.Issue(ctx, rpID)
	if err != nil {
		panic(err)
	}

	// Promise-shaped call: the channel settles with the assertion.
	result := <-svc.GetAssertionAsync(ctx, asrtChallenge, nil)
	assertion, err := result.Get()
	if err != nil {
		panic(err)
	}
	fmt.Printf("Assertion signature: %x\n", assertion.Signature)

	verified, err := scopedauth.VerifyAssertion(info.PublicKey, rpID, origin, asrtChallenge, assertion)
	if err != nil {
		panic(err)
	}
	fmt.Printf("Verified assertion, sign count: %d\n", verified.SignCount)
}
