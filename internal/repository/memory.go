package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"nexus/internal/model"
)

// MemoryStore keeps projects and users in mutex-guarded maps. Values are
// deep-copied on the way in and out so callers never share state.
type MemoryStore struct {
	mu       sync.RWMutex
	projects map[string]*model.Project
	users    map[string]*model.User
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		projects: make(map[string]*model.Project),
		users:    make(map[string]*model.User),
	}
}

// Users exposes the same store through the UserStore interface.
func (m *MemoryStore) Users() UserStore {
	return memoryUsers{m}
}

func (m *MemoryStore) Create(_ context.Context, p *model.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.projects[p.ID]; ok {
		return fmt.Errorf("project %s: %w", p.ID, model.ErrConflict)
	}
	p.Version = 1
	m.projects[p.ID] = cloneProject(p)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*model.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.projects[id]
	if !ok {
		return nil, fmt.Errorf("project %s: %w", id, model.ErrNotFound)
	}
	return cloneProject(p), nil
}

func (m *MemoryStore) ListForUser(_ context.Context, userID, email string) ([]*model.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*model.Project
	for _, p := range m.projects {
		if p.IsOwner(userID) || p.IsMember(userID, email) {
			out = append(out, cloneProject(p))
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (m *MemoryStore) FindByRepo(_ context.Context, owner, name string) ([]*model.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*model.Project
	for _, p := range m.projects {
		if p.GitHub != nil &&
			strings.EqualFold(p.GitHub.RepoOwner, owner) &&
			strings.EqualFold(p.GitHub.RepoName, name) {
			out = append(out, cloneProject(p))
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (m *MemoryStore) Save(_ context.Context, p *model.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.projects[p.ID]
	if !ok {
		return fmt.Errorf("project %s: %w", p.ID, model.ErrNotFound)
	}
	if cur.Version != p.Version {
		return fmt.Errorf("project %s at version %d, have %d: %w", p.ID, cur.Version, p.Version, model.ErrVersionConflict)
	}

	next := cloneProject(p)
	next.Version = cur.Version + 1
	next.ExecutiveBrief = cur.ExecutiveBrief
	m.projects[p.ID] = next
	p.Version = next.Version
	return nil
}

func (m *MemoryStore) SaveBrief(_ context.Context, id string, brief model.ExecutiveBrief) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.projects[id]
	if !ok {
		return fmt.Errorf("project %s: %w", id, model.ErrNotFound)
	}
	b := brief
	b.Content = append(json.RawMessage(nil), brief.Content...)
	cur.ExecutiveBrief = &b
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.projects[id]; !ok {
		return fmt.Errorf("project %s: %w", id, model.ErrNotFound)
	}
	delete(m.projects, id)
	return nil
}

func (m *MemoryStore) Ping(context.Context) error {
	return nil
}

type memoryUsers struct {
	m *MemoryStore
}

func (s memoryUsers) Create(_ context.Context, u *model.User) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	for _, existing := range s.m.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return fmt.Errorf("email %s: %w", u.Email, model.ErrConflict)
		}
	}
	cp := *u
	s.m.users[u.ID] = &cp
	return nil
}

func (s memoryUsers) GetByID(_ context.Context, id string) (*model.User, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()

	u, ok := s.m.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, model.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (s memoryUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()

	for _, u := range s.m.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("user %s: %w", email, model.ErrNotFound)
}

func (s memoryUsers) Update(_ context.Context, u *model.User) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	if _, ok := s.m.users[u.ID]; !ok {
		return fmt.Errorf("user %s: %w", u.ID, model.ErrNotFound)
	}
	cp := *u
	s.m.users[u.ID] = &cp
	return nil
}

func cloneProject(p *model.Project) *model.Project {
	data, err := json.Marshal(p)
	if err != nil {
		panic(fmt.Sprintf("clone project: %v", err))
	}
	var out model.Project
	if err := json.Unmarshal(data, &out); err != nil {
		panic(fmt.Sprintf("clone project: %v", err))
	}
	return &out
}

func sortNewestFirst(ps []*model.Project) {
	sort.Slice(ps, func(i, j int) bool {
		return ps[i].CreatedAt.After(ps[j].CreatedAt)
	})
}
