package session

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Info describes one registered session.
type Info struct {
	ID          string
	Principal   string
	LastRequest time.Time
	Expired     bool
}

// Registry tracks the sessions of each principal.
type Registry interface {
	Register(ctx context.Context, sessionID, principal string) error
	// Sessions returns the non-expired sessions of the principal, least
	// recently used first.
	Sessions(ctx context.Context, principal string) ([]Info, error)
	// Info returns nil for unknown sessions.
	Info(ctx context.Context, sessionID string) (*Info, error)
	Refresh(ctx context.Context, sessionID string) error
	Expire(ctx context.Context, sessionID string) error
	Remove(ctx context.Context, sessionID string) error
}

// MemoryRegistry keeps sessions in process memory.
type MemoryRegistry struct {
	mu          sync.Mutex
	sessions    map[string]*Info
	byPrincipal map[string]map[string]struct{}
	now         func() time.Time
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		sessions:    make(map[string]*Info),
		byPrincipal: make(map[string]map[string]struct{}),
		now:         time.Now,
	}
}

func (m *MemoryRegistry) Register(_ context.Context, sessionID, principal string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(sessionID)
	m.sessions[sessionID] = &Info{ID: sessionID, Principal: principal, LastRequest: m.now()}
	if m.byPrincipal[principal] == nil {
		m.byPrincipal[principal] = make(map[string]struct{})
	}
	m.byPrincipal[principal][sessionID] = struct{}{}
	return nil
}

func (m *MemoryRegistry) Sessions(_ context.Context, principal string) ([]Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var infos []Info
	for id := range m.byPrincipal[principal] {
		if info := m.sessions[id]; info != nil && !info.Expired {
			infos = append(infos, *info)
		}
	}
	sortByLastRequest(infos)
	return infos, nil
}

func (m *MemoryRegistry) Info(_ context.Context, sessionID string) (*Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	c := *info
	return &c, nil
}

func (m *MemoryRegistry) Refresh(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if info, ok := m.sessions[sessionID]; ok {
		info.LastRequest = m.now()
	}
	return nil
}

func (m *MemoryRegistry) Expire(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if info, ok := m.sessions[sessionID]; ok {
		info.Expired = true
	}
	return nil
}

func (m *MemoryRegistry) Remove(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(sessionID)
	return nil
}

func (m *MemoryRegistry) removeLocked(sessionID string) {
	info, ok := m.sessions[sessionID]
	if !ok {
		return
	}
	delete(m.sessions, sessionID)
	if ids := m.byPrincipal[info.Principal]; ids != nil {
		delete(ids, sessionID)
		if len(ids) == 0 {
			delete(m.byPrincipal, info.Principal)
		}
	}
}

func sortByLastRequest(infos []Info) {
	sort.SliceStable(infos, func(i, j int) bool {
		if infos[i].LastRequest.Equal(infos[j].LastRequest) {
			return infos[i].ID < infos[j].ID
		}
		return infos[i].LastRequest.Before(infos[j].LastRequest)
	})
}
