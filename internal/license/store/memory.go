// Package store persists driving-license tokens.
package store

import (
	"context"
	"errors"
	"sync"

	"geekship/internal/license/models"
	"geekship/pkg/domain"
)

var ErrNotFound = errors.New("not found")

type Memory struct {
	mu     sync.RWMutex
	tokens []*models.DrivingLicense
}

func NewMemory() *Memory {
	return &Memory{}
}

// Create assigns the next token ID.
func (m *Memory) Create(_ context.Context, token *models.DrivingLicense) (domain.TokenID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token.TokenID = domain.TokenID(len(m.tokens))
	stored := *token
	m.tokens = append(m.tokens, &stored)
	return token.TokenID, nil
}

func (m *Memory) Find(_ context.Context, id domain.TokenID) (*models.DrivingLicense, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if int(id) >= len(m.tokens) {
		return nil, ErrNotFound
	}
	stored := *m.tokens[id]
	return &stored, nil
}

func (m *Memory) Update(_ context.Context, token *models.DrivingLicense) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if int(token.TokenID) >= len(m.tokens) {
		return ErrNotFound
	}
	stored := *token
	m.tokens[token.TokenID] = &stored
	return nil
}

func (m *Memory) ListByOwner(_ context.Context, owner domain.UserID) ([]*models.DrivingLicense, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.DrivingLicense
	for _, token := range m.tokens {
		if token.OwnerUID == owner {
			stored := *token
			out = append(out, &stored)
		}
	}
	return out, nil
}

// CountActiveByOwner counts non-burned tokens; the eligibility predicate is
// count >= 1.
func (m *Memory) CountActiveByOwner(_ context.Context, owner domain.UserID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, token := range m.tokens {
		if token.OwnerUID == owner && !token.Burned {
			count++
		}
	}
	return count, nil
}
