package store

import (
	"context"
	"sync"

	"geekship/internal/identity/models"
	"geekship/pkg/domain"
)

// Memory is the authoritative store for tests and single-node deployments.
type Memory struct {
	mu       sync.RWMutex
	users    map[domain.UserID]*models.User
	requests []*models.RoleRequest
}

func NewMemory() *Memory {
	return &Memory{users: make(map[domain.UserID]*models.User)}
}

func (m *Memory) CreateUser(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.UID]; ok {
		return ErrDuplicate
	}
	m.users[user.UID] = cloneUser(user)
	return nil
}

func (m *Memory) FindUser(_ context.Context, uid domain.UserID) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	user, ok := m.users[uid]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneUser(user), nil
}

func (m *Memory) UpdateUser(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.UID]; !ok {
		return ErrNotFound
	}
	m.users[user.UID] = cloneUser(user)
	return nil
}

// CreateRoleRequest assigns the next sequence ID.
func (m *Memory) CreateRoleRequest(_ context.Context, req *models.RoleRequest) (domain.RequestID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req.ID = domain.RequestID(len(m.requests))
	stored := *req
	m.requests = append(m.requests, &stored)
	return req.ID, nil
}

func (m *Memory) FindRoleRequest(_ context.Context, id domain.RequestID) (*models.RoleRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if int(id) >= len(m.requests) {
		return nil, ErrNotFound
	}
	stored := *m.requests[id]
	return &stored, nil
}

func (m *Memory) UpdateRoleRequest(_ context.Context, req *models.RoleRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if int(req.ID) >= len(m.requests) {
		return ErrNotFound
	}
	stored := *req
	m.requests[req.ID] = &stored
	return nil
}

// HasPendingRoleRequest reports an unresolved request for the same
// applicant and role.
func (m *Memory) HasPendingRoleRequest(_ context.Context, uid domain.UserID, role models.Role) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, req := range m.requests {
		if req.ApplicantUID == uid && req.Role == role && req.Status == models.RequestPending {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) ListRoleRequests(_ context.Context) ([]*models.RoleRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.RoleRequest, 0, len(m.requests))
	for _, req := range m.requests {
		stored := *req
		out = append(out, &stored)
	}
	return out, nil
}

func cloneUser(u *models.User) *models.User {
	clone := *u
	clone.Roles = make(map[models.Role]bool, len(u.Roles))
	for role, ok := range u.Roles {
		clone.Roles[role] = ok
	}
	return &clone
}
