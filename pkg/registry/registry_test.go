package registry

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/ldclabs/cose/iana"
	"github.com/ldclabs/cose/key/ecdsa"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-ctap/scopedcred/pkg/webauthntypes"
)

func newRecord(t *testing.T, credentialID string, userID string) *Record {
	t.Helper()

	k, err := ecdsa.GenerateKey(iana.AlgorithmES256)
	require.NoError(t, err)

	return &Record{
		CredentialID: []byte(credentialID),
		RPID:         "login.example.com",
		UserID:       userID,
		UserName:     "alice",
		Key:          k,
		SignCount:    0,
		CreatedAt:    time.Now().UTC().Truncate(time.Millisecond),
		Transports:   []webauthntypes.Transport{webauthntypes.TransportUSB},
	}
}

func stores(t *testing.T) map[string]Store {
	t.Helper()

	fileStore, err := NewFileStore(filepath.Join(t.TempDir(), "credentials.json"))
	require.NoError(t, err)

	return map[string]Store{
		"memory": NewMemoryStore(),
		"file":   fileStore,
	}
}

func TestPutGet(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			record := newRecord(t, "cred-1", "user-1")
			require.NoError(t, store.Put(t.Context(), record))

			got, err := store.Get(t.Context(), record.CredentialID)
			require.NoError(t, err)
			assert.Equal(t, record.RPID, got.RPID)
			assert.Equal(t, record.UserID, got.UserID)
			assert.Equal(t, record.Key, got.Key)
			assert.Equal(t, record.Transports, got.Transports)

			err = store.Put(t.Context(), record)
			assert.ErrorIs(t, err, ErrDuplicate)
		})
	}
}

func TestGetUnknown(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Get(t.Context(), []byte("missing"))
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestListScopesToAccountPairing(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Put(t.Context(), newRecord(t, "cred-1", "user-1")))
			require.NoError(t, store.Put(t.Context(), newRecord(t, "cred-2", "user-1")))
			require.NoError(t, store.Put(t.Context(), newRecord(t, "cred-3", "user-2")))

			records, err := store.List(t.Context(), "login.example.com", "user-1")
			require.NoError(t, err)
			assert.Len(t, records, 2)

			records, err = store.List(t.Context(), "other.example.com", "user-1")
			require.NoError(t, err)
			assert.Empty(t, records)
		})
	}
}

func TestBumpMonotonic(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			record := newRecord(t, "cred-1", "user-1")
			require.NoError(t, store.Put(t.Context(), record))

			require.NoError(t, store.Bump(t.Context(), record.CredentialID, 1))
			require.NoError(t, store.Bump(t.Context(), record.CredentialID, 5))

			err := store.Bump(t.Context(), record.CredentialID, 5)
			assert.ErrorIs(t, err, ErrCounterRegression)
			err = store.Bump(t.Context(), record.CredentialID, 2)
			assert.ErrorIs(t, err, ErrCounterRegression)

			got, err := store.Get(t.Context(), record.CredentialID)
			require.NoError(t, err)
			assert.Equal(t, uint32(5), got.SignCount)

			err = store.Bump(t.Context(), []byte("missing"), 1)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestDelete(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			record := newRecord(t, "cred-1", "user-1")
			require.NoError(t, store.Put(t.Context(), record))
			require.NoError(t, store.Delete(t.Context(), record.CredentialID))

			_, err := store.Get(t.Context(), record.CredentialID)
			assert.ErrorIs(t, err, ErrNotFound)

			err = store.Delete(t.Context(), record.CredentialID)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	record := newRecord(t, "cred-1", "user-1")
	require.NoError(t, store.Put(t.Context(), record))

	got, err := store.Get(t.Context(), record.CredentialID)
	require.NoError(t, err)
	got.UserName = "mallory"
	got.CredentialID[0] ^= 0xff

	again, err := store.Get(t.Context(), record.CredentialID)
	require.NoError(t, err)
	assert.Equal(t, "alice", again.UserName)
}
