package store

import (
	"context"
	"sync"

	"geekship/internal/dispute/models"
	"geekship/pkg/domain"
)

// Memory is the authoritative store for tests and single-node deployments.
type Memory struct {
	mu       sync.RWMutex
	disputes map[domain.RequestID]*models.Dispute
}

func NewMemory() *Memory {
	return &Memory{disputes: make(map[domain.RequestID]*models.Dispute)}
}

func (m *Memory) Create(_ context.Context, d *models.Dispute) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.disputes[d.RequestID]; ok {
		return ErrDuplicate
	}
	m.disputes[d.RequestID] = clone(d)
	return nil
}

func (m *Memory) Find(_ context.Context, id domain.RequestID) (*models.Dispute, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.disputes[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(d), nil
}

func (m *Memory) Update(_ context.Context, d *models.Dispute) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.disputes[d.RequestID]; !ok {
		return ErrNotFound
	}
	m.disputes[d.RequestID] = clone(d)
	return nil
}

func (m *Memory) ListOpen(_ context.Context) ([]*models.Dispute, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Dispute
	for _, d := range m.disputes {
		if !d.Resolved {
			out = append(out, clone(d))
		}
	}
	return out, nil
}

func clone(d *models.Dispute) *models.Dispute {
	stored := *d
	stored.Votes = make(map[domain.UserID]models.VoteChoice, len(d.Votes))
	for uid, v := range d.Votes {
		stored.Votes[uid] = v
	}
	return &stored
}
