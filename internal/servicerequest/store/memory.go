package store

import (
	"context"
	"sync"

	"geekship/internal/servicerequest/models"
	"geekship/pkg/domain"
)

// Memory is the authoritative store for tests and single-node deployments.
type Memory struct {
	mu       sync.RWMutex
	requests []*models.ServiceRequest
}

func NewMemory() *Memory {
	return &Memory{}
}

// Create assigns the next sequence ID.
func (m *Memory) Create(_ context.Context, sr *models.ServiceRequest) (domain.RequestID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sr.ID = domain.RequestID(len(m.requests))
	m.requests = append(m.requests, clone(sr))
	return sr.ID, nil
}

func (m *Memory) Find(_ context.Context, id domain.RequestID) (*models.ServiceRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if int(id) >= len(m.requests) {
		return nil, ErrNotFound
	}
	return clone(m.requests[id]), nil
}

func (m *Memory) Update(_ context.Context, sr *models.ServiceRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if int(sr.ID) >= len(m.requests) {
		return ErrNotFound
	}
	m.requests[sr.ID] = clone(sr)
	return nil
}

func (m *Memory) List(_ context.Context) ([]*models.ServiceRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.ServiceRequest, 0, len(m.requests))
	for _, sr := range m.requests {
		out = append(out, clone(sr))
	}
	return out, nil
}

func (m *Memory) ListByStatus(_ context.Context, status models.Status) ([]*models.ServiceRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.ServiceRequest
	for _, sr := range m.requests {
		if sr.Status == status {
			out = append(out, clone(sr))
		}
	}
	return out, nil
}

// ListByParticipant returns requests where uid is the shipper, receiver, or
// assigned driver.
func (m *Memory) ListByParticipant(_ context.Context, uid domain.UserID) ([]*models.ServiceRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.ServiceRequest
	for _, sr := range m.requests {
		if sr.IsParty(uid) {
			out = append(out, clone(sr))
		}
	}
	return out, nil
}

func clone(sr *models.ServiceRequest) *models.ServiceRequest {
	stored := *sr
	if sr.Bid != nil {
		bid := *sr.Bid
		stored.Bid = &bid
	}
	return &stored
}
