package sessions

import (
	"context"
	"sync"

	"github.com/AtRiskMedia/leaddesk-go/internal/domain/session"
)

// MemoryStorage keeps encoded records in process memory. Records do not
// survive a restart.
type MemoryStorage struct {
	mu      sync.RWMutex
	records map[string][]byte
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{records: make(map[string][]byte)}
}

func (m *MemoryStorage) Load(_ context.Context, sessionID string) (*session.Record, error) {
	m.mu.RLock()
	payload, ok := m.records[sessionID]
	m.mu.RUnlock()
	if !ok {
		return nil, session.ErrRecordNotFound
	}
	return decodeRecord(payload)
}

func (m *MemoryStorage) Save(_ context.Context, sessionID string, record session.Record) error {
	payload, err := encodeRecord(record)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.records[sessionID] = payload
	m.mu.Unlock()
	return nil
}

func (m *MemoryStorage) Clear(_ context.Context, sessionID string) error {
	m.mu.Lock()
	delete(m.records, sessionID)
	m.mu.Unlock()
	return nil
}

// PutRaw stores bytes as-is, bypassing encoding.
func (m *MemoryStorage) PutRaw(sessionID string, payload []byte) {
	m.mu.Lock()
	m.records[sessionID] = payload
	m.mu.Unlock()
}

// Len returns the number of stored records.
func (m *MemoryStorage) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func (m *MemoryStorage) Close() error { return nil }
