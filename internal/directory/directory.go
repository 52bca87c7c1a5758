package directory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/example/ride-dispatch/internal/models"
)

var ErrNotFound = errors.New("user not found")

// Directory is the user/driver lookup used by dispatch and the lifecycle manager.
type Directory interface {
	// ListEligibleDrivers returns only drivers that are active, available and located.
	ListEligibleDrivers(ctx context.Context) ([]models.User, error)
	GetUser(ctx context.Context, id string) (models.User, error)
	UpdateLocation(ctx context.Context, id string, c models.Coord) error
}

// MemoryDirectory is an in-process Directory for local runs and tests.
type MemoryDirectory struct {
	mu    sync.RWMutex
	users map[string]models.User
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{users: make(map[string]models.User)}
}

func (m *MemoryDirectory) Upsert(u models.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = clone(u)
}

func (m *MemoryDirectory) ListEligibleDrivers(ctx context.Context) ([]models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.User, 0, len(m.users))
	for _, u := range m.users {
		if u.Eligible() {
			out = append(out, clone(u))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryDirectory) GetUser(ctx context.Context, id string) (models.User, error) {
	if err := ctx.Err(); err != nil {
		return models.User{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return models.User{}, ErrNotFound
	}
	return clone(u), nil
}

func (m *MemoryDirectory) UpdateLocation(ctx context.Context, id string, c models.Coord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Location = &c
	m.users[id] = u
	return nil
}

// clone detaches the Location pointer from the stored record.
func clone(u models.User) models.User {
	if u.Location != nil {
		loc := *u.Location
		u.Location = &loc
	}
	return u
}
