package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/ldclabs/cose/key"

	"github.com/go-ctap/scopedcred/pkg/webauthntypes"
)

// FileStore persists credentials to a single JSON file. COSE keys are
// kept as CBOR inside the JSON document since their integer map keys
// do not survive a JSON round trip.
type FileStore struct {
	mu      sync.Mutex
	path    string
	encMode cbor.EncMode
}

type fileRecord struct {
	CredentialID []byte                    `json:"credentialId"`
	RPID         string                    `json:"rpId"`
	UserID       string                    `json:"userId"`
	UserName     string                    `json:"userName,omitempty"`
	KeyCBOR      []byte                    `json:"key"`
	SignCount    uint32                    `json:"signCount"`
	CreatedAt    time.Time                 `json:"createdAt"`
	Transports   []webauthntypes.Transport `json:"transports,omitempty"`
}

func NewFileStore(path string) (*FileStore, error) {
	encMode, err := cbor.CTAP2EncOptions().EncMode()
	if err != nil {
		return nil, err
	}

	return &FileStore{
		path:    path,
		encMode: encMode,
	}, nil
}

func (s *FileStore) loadAll() ([]*fileRecord, error) {
	all := make([]*fileRecord, 0)
	data, err := os.ReadFile(s.path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &all); err != nil {
			return nil, fmt.Errorf("cannot decode credential file: %w", err)
		}
		return all, nil
	case os.IsNotExist(err):
		return all, nil
	default:
		return nil, err
	}
}

func (s *FileStore) saveAll(all []*fileRecord) error {
	data, err := json.Marshal(all)
	if err != nil {
		return err
	}

	return os.WriteFile(s.path, data, 0o600)
}

func (s *FileStore) toRecord(fr *fileRecord) (*Record, error) {
	var k key.Key
	if err := cbor.Unmarshal(fr.KeyCBOR, &k); err != nil {
		return nil, fmt.Errorf("cannot decode COSE_Key: %w", err)
	}

	return &Record{
		CredentialID: fr.CredentialID,
		RPID:         fr.RPID,
		UserID:       fr.UserID,
		UserName:     fr.UserName,
		Key:          k,
		SignCount:    fr.SignCount,
		CreatedAt:    fr.CreatedAt,
		Transports:   fr.Transports,
	}, nil
}

func (s *FileStore) fromRecord(record *Record) (*fileRecord, error) {
	keyCBOR, err := s.encMode.Marshal(record.Key)
	if err != nil {
		return nil, fmt.Errorf("cannot encode COSE_Key: %w", err)
	}

	return &fileRecord{
		CredentialID: record.CredentialID,
		RPID:         record.RPID,
		UserID:       record.UserID,
		UserName:     record.UserName,
		KeyCBOR:      keyCBOR,
		SignCount:    record.SignCount,
		CreatedAt:    record.CreatedAt,
		Transports:   record.Transports,
	}, nil
}

func (s *FileStore) Put(ctx context.Context, record *Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.loadAll()
	if err != nil {
		return err
	}
	k := storeKey(record.CredentialID)
	for _, fr := range all {
		if storeKey(fr.CredentialID) == k {
			return ErrDuplicate
		}
	}

	fr, err := s.fromRecord(record)
	if err != nil {
		return err
	}

	return s.saveAll(append(all, fr))
}

func (s *FileStore) Get(ctx context.Context, credentialID []byte) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.loadAll()
	if err != nil {
		return nil, err
	}
	k := storeKey(credentialID)
	for _, fr := range all {
		if storeKey(fr.CredentialID) == k {
			return s.toRecord(fr)
		}
	}

	return nil, ErrNotFound
}

func (s *FileStore) List(ctx context.Context, rpID string, userID string) ([]*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.loadAll()
	if err != nil {
		return nil, err
	}

	records := make([]*Record, 0)
	for _, fr := range all {
		if fr.RPID != rpID || fr.UserID != userID {
			continue
		}
		record, err := s.toRecord(fr)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	return records, nil
}

func (s *FileStore) ListRP(ctx context.Context, rpID string) ([]*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.loadAll()
	if err != nil {
		return nil, err
	}

	records := make([]*Record, 0)
	for _, fr := range all {
		if fr.RPID != rpID {
			continue
		}
		record, err := s.toRecord(fr)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	return records, nil
}

func (s *FileStore) Bump(ctx context.Context, credentialID []byte, signCount uint32) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.loadAll()
	if err != nil {
		return err
	}
	k := storeKey(credentialID)
	for _, fr := range all {
		if storeKey(fr.CredentialID) != k {
			continue
		}
		if signCount <= fr.SignCount {
			return ErrCounterRegression
		}
		fr.SignCount = signCount
		return s.saveAll(all)
	}

	return ErrNotFound
}

func (s *FileStore) Delete(ctx context.Context, credentialID []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.loadAll()
	if err != nil {
		return err
	}
	k := storeKey(credentialID)
	for i, fr := range all {
		if storeKey(fr.CredentialID) == k {
			return s.saveAll(append(all[:i], all[i+1:]...))
		}
	}

	return ErrNotFound
}
