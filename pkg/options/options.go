package options

import (
	"log/slog"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

type Options struct {
	Logger             *slog.Logger
	EncMode            cbor.EncMode
	AAGUID             uuid.UUID
	RPID               string
	Origin             string
	ChallengeTTL       time.Duration
	ChallengeStoreSize int
	MasterSecret       []byte
}

type Option func(*Options)

func WithLogger(logger *slog.Logger) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

func WithEncMode(encMode cbor.EncMode) Option {
	return func(opts *Options) {
		opts.EncMode = encMode
	}
}

// WithAAGUID sets the authenticator model identifier embedded into
// attested credential data.
func WithAAGUID(aaguid uuid.UUID) Option {
	return func(opts *Options) {
		opts.AAGUID = aaguid
	}
}

// WithRPID sets the default relying party scope used when a call
// supplies no rpId of its own.
func WithRPID(rpID string) Option {
	return func(opts *Options) {
		opts.RPID = rpID
	}
}

// WithOrigin sets the origin recorded in signed client data.
func WithOrigin(origin string) Option {
	return func(opts *Options) {
		opts.Origin = origin
	}
}

func WithChallengeTTL(ttl time.Duration) Option {
	return func(opts *Options) {
		opts.ChallengeTTL = ttl
	}
}

func WithChallengeStoreSize(size int) Option {
	return func(opts *Options) {
		opts.ChallengeStoreSize = size
	}
}

// WithMasterSecret enables non-resident credentials by providing the
// secret that key handles are sealed to.
func WithMasterSecret(secret []byte) Option {
	return func(opts *Options) {
		opts.MasterSecret = secret
	}
}

func NewOptions(opts ...Option) *Options {
	encMode, _ := cbor.CTAP2EncOptions().EncMode()
	oo := &Options{
		Logger:             slog.Default(),
		EncMode:            encMode,
		ChallengeTTL:       5 * time.Minute,
		ChallengeStoreSize: 1024,
	}

	for _, opt := range opts {
		opt(oo)
	}

	return oo
}
