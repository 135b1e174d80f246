package memstore

import (
	"context"
	"sort"
	"strings"

	"ovenbook/internal/model"
)

func cloneUser(u *model.User) *model.User {
	cp := *u
	return &cp
}

// GetUser returns the user or (nil, nil).
func (s *Store) GetUser(_ context.Context, id string) (*model.User, error) {
	s.usersMu.RLock()
	defer s.usersMu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	return cloneUser(u), nil
}

// GetUserByEmail looks a user up by case-insensitive email.
func (s *Store) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	s.usersMu.RLock()
	defer s.usersMu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return cloneUser(u), nil
		}
	}
	return nil, nil
}

func (s *Store) CreateUser(_ context.Context, u *model.User) error {
	s.usersMu.Lock()
	defer s.usersMu.Unlock()
	if _, exists := s.users[u.ID]; exists {
		return ErrDuplicate
	}
	for _, other := range s.users {
		if u.Email != "" && strings.EqualFold(other.Email, u.Email) {
			return ErrDuplicate
		}
	}
	s.users[u.ID] = cloneUser(u)
	return nil
}

func (s *Store) UpdateUser(_ context.Context, u *model.User) error {
	s.usersMu.Lock()
	defer s.usersMu.Unlock()
	if _, ok := s.users[u.ID]; !ok {
		return ErrNotFound
	}
	s.users[u.ID] = cloneUser(u)
	return nil
}

// ListUsers returns users with the given status, or all users when status
// is empty, ordered by creation time.
func (s *Store) ListUsers(_ context.Context, status model.UserStatus) ([]*model.User, error) {
	s.usersMu.RLock()
	defer s.usersMu.RUnlock()
	var out []*model.User
	for _, u := range s.users {
		if status == "" || u.Status == status {
			out = append(out, cloneUser(u))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
