package journal

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

type memStore struct {
	log     *zap.SugaredLogger
	mu      sync.Mutex
	entries []Entry
	max     int
}

// NewMemoryStore keeps the last max runs of this process.
func NewMemoryStore(log *zap.SugaredLogger, max int) Store {
	if max <= 0 {
		max = 500
	}
	return &memStore{log: log, max: max}
}

func (m *memStore) Record(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	if len(m.entries) > m.max {
		m.entries = m.entries[len(m.entries)-m.max:]
	}
	return nil
}

func (m *memStore) Recent(_ context.Context, tenantID string, limit int) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Entry
	for i := len(m.entries) - 1; i >= 0; i-- {
		if tenantID != "" && m.entries[i].TenantID != tenantID {
			continue
		}
		out = append(out, m.entries[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
