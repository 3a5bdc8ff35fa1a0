package auth

import (
	"sort"
	"sync"
)

// User is a game host allowed to run /start_game when hosting is restricted.
type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

type Repository interface {
	LoadAll() ([]User, error)
	Upsert(user User) error
	Remove(userID int64) error
}

type Service struct {
	repo Repository

	mu    sync.RWMutex
	hosts map[int64]User
}

// NewWithRepo preloads hosts from repo and merges the initial IDs coming
// from the environment. A failing repo load is returned to the caller.
func NewWithRepo(repo Repository, initial []int64) (*Service, error) {
	s := &Service{repo: repo, hosts: make(map[int64]User)}
	if repo != nil {
		users, err := repo.LoadAll()
		if err != nil {
			return nil, err
		}
		for _, u := range users {
			s.hosts[u.ID] = u
		}
	}
	for _, id := range initial {
		if _, ok := s.hosts[id]; !ok {
			s.hosts[id] = User{ID: id}
		}
	}
	return s, nil
}

func (s *Service) IsAllowed(userID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.hosts[userID]
	return ok
}

func (s *Service) Upsert(user User) error {
	s.mu.Lock()
	s.hosts[user.ID] = user
	s.mu.Unlock()
	if s.repo != nil {
		return s.repo.Upsert(user)
	}
	return nil
}

func (s *Service) Remove(userID int64) error {
	s.mu.Lock()
	delete(s.hosts, userID)
	s.mu.Unlock()
	if s.repo != nil {
		return s.repo.Remove(userID)
	}
	return nil
}

// List returns hosts ordered by ID.
func (s *Service) List() []User {
	s.mu.RLock()
	out := make([]User, 0, len(s.hosts))
	for _, u := range s.hosts {
		out = append(out, u)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
