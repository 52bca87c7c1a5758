package storage

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/example/ride-dispatch/internal/models"
)

var (
	ErrNotFound = errors.New("ride not found")
	// ErrCapacityExceeded is returned by CreateRide and SaveRide when the
	// driver already holds the active ride limit at write time.
	ErrCapacityExceeded = errors.New("driver at capacity")
	// ErrStaleRide is returned by SaveRide when the stored version moved on.
	ErrStaleRide = errors.New("stale ride version")
)

// RideFilter selects rides for CountRides. An empty DriverID matches all drivers.
type RideFilter struct {
	DriverID string
	Statuses []models.RideStatus
}

// RideStore defines persistence operations for rides.
type RideStore interface {
	CountRides(ctx context.Context, f RideFilter) (int, error)
	// CreateRide inserts r only if r.DriverID has fewer than maxActive rides
	// in an active status at write time. maxActive <= 0 disables the check.
	CreateRide(ctx context.Context, r *models.Ride, maxActive int) error
	GetRide(ctx context.Context, id string) (*models.Ride, error)
	// SaveRide persists r if the stored version equals r.Version and bumps it.
	// When r moves into an active status, the driver's other active rides
	// are re-counted in the same critical section and must stay below
	// maxActive. maxActive <= 0 disables the check.
	SaveRide(ctx context.Context, r *models.Ride, maxActive int) error
}

type MemoryStore struct {
	mu    sync.RWMutex
	rides map[string]*models.Ride
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rides: make(map[string]*models.Ride)}
}

func (m *MemoryStore) CountRides(ctx context.Context, f RideFilter) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.countLocked(f), nil
}

func (m *MemoryStore) countLocked(f RideFilter) int {
	n := 0
	for _, r := range m.rides {
		if f.DriverID != "" && r.DriverID != f.DriverID {
			continue
		}
		if len(f.Statuses) > 0 && !hasStatus(f.Statuses, r.Status) {
			continue
		}
		n++
	}
	return n
}

func (m *MemoryStore) CreateRide(ctx context.Context, r *models.Ride, maxActive int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.rides[r.ID]; exists {
		return errors.New("ride id already exists")
	}
	if maxActive > 0 && m.countLocked(RideFilter{DriverID: r.DriverID, Statuses: models.ActiveStatuses}) >= maxActive {
		return ErrCapacityExceeded
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	r.UpdatedAt = r.CreatedAt
	r.Version = 1
	cp := *r
	m.rides[r.ID] = &cp
	return nil
}

func (m *MemoryStore) GetRide(ctx context.Context, id string) (*models.Ride, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) SaveRide(ctx context.Context, r *models.Ride, maxActive int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.rides[r.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != r.Version {
		return ErrStaleRide
	}
	if maxActive > 0 && becomesActive(cur.Status, r.Status) &&
		m.countLocked(RideFilter{DriverID: r.DriverID, Statuses: models.ActiveStatuses}) >= maxActive {
		return ErrCapacityExceeded
	}
	r.Version++
	r.UpdatedAt = time.Now().UTC()
	cp := *r
	m.rides[r.ID] = &cp
	return nil
}

// becomesActive reports a move from a status that does not occupy capacity
// into one that does. The ride itself is then not part of the recount.
func becomesActive(from, to models.RideStatus) bool {
	return !hasStatus(models.ActiveStatuses, from) && hasStatus(models.ActiveStatuses, to)
}

func hasStatus(set []models.RideStatus, s models.RideStatus) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
