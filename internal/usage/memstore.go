package usage

import (
	"context"
	"fmt"
	"sync"
	"time"
)

var _ Store = (*MemStore)(nil)

// MemStore is an in-memory [Store] for tests and deployments without a
// database. Safe for concurrent use. Records are lost on restart.
type MemStore struct {
	mu      sync.Mutex
	keys    map[string]APIKey // by secret hash
	records map[int64]*Record
	nextKey int64
	nextRec int64
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		keys:    make(map[string]APIKey),
		records: make(map[int64]*Record),
	}
}

// AddKey registers a secret for organisation and returns the stored key.
func (m *MemStore) AddKey(organisation, secret string) APIKey {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextKey++
	key := APIKey{
		ID:           m.nextKey,
		Organisation: organisation,
		Prefix:       keyPrefix(secret),
		Active:       true,
		Created:      time.Now(),
	}
	m.keys[HashSecret(secret)] = key
	return key
}

// Credential is a plain organisation/secret pair, for seeding the store from
// static configuration.
type Credential struct {
	Organisation string
	Secret       string
}

// SetKeys replaces the credential set wholesale. Keys whose secret survives
// the swap keep their ID, so usage records stay attributable across a
// configuration reload.
func (m *MemStore) SetKeys(creds []Credential) {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make(map[string]APIKey, len(creds))
	for _, c := range creds {
		hash := HashSecret(c.Secret)
		if key, ok := m.keys[hash]; ok {
			key.Organisation = c.Organisation
			key.Active = true
			keys[hash] = key
			continue
		}
		m.nextKey++
		keys[hash] = APIKey{
			ID:           m.nextKey,
			Organisation: c.Organisation,
			Prefix:       keyPrefix(c.Secret),
			Active:       true,
			Created:      time.Now(),
		}
	}
	m.keys = keys
}

// Deactivate marks a key inactive so [MemStore.Authenticate] rejects it.
func (m *MemStore) Deactivate(keyID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for hash, key := range m.keys {
		if key.ID == keyID {
			key.Active = false
			m.keys[hash] = key
		}
	}
}

// Authenticate implements [Store].
func (m *MemStore) Authenticate(ctx context.Context, secret string) (APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key, ok := m.keys[HashSecret(secret)]
	if !ok || !key.Active {
		return APIKey{}, ErrUnauthorized
	}
	return key, nil
}

// Begin implements [Store].
func (m *MemStore) Begin(ctx context.Context, keyID int64, method string, sourceSize int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextRec++
	m.records[m.nextRec] = &Record{
		ID:         m.nextRec,
		KeyID:      keyID,
		Method:     method,
		SourceSize: sourceSize,
		Status:     StatusInProgress,
		Created:    time.Now(),
	}
	return m.nextRec, nil
}

// Finish implements [Store].
func (m *MemStore) Finish(ctx context.Context, recordID int64, status Status, correctedSize int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[recordID]
	if !ok {
		return fmt.Errorf("usage store: finish record: no record with id %d", recordID)
	}
	rec.Status = status
	rec.CorrectedSize = correctedSize
	return nil
}

// Records returns a snapshot of all usage records, for tests and
// inspection.
func (m *MemStore) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Record, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, *rec)
	}
	return out
}

// Close implements [Store].
func (m *MemStore) Close() {}
