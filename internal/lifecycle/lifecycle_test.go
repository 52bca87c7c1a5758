package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/ride-dispatch/internal/directory"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/storage"
)

var fixedNow = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

type recordingSink struct {
	mu     sync.Mutex
	events []models.Event
	users  []string
}

func (r *recordingSink) Notify(_ context.Context, userID string, e models.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users = append(r.users, userID)
	r.events = append(r.events, e)
}

func newManager(t *testing.T, status models.RideStatus) (*Manager, *storage.MemoryStore, *directory.MemoryDirectory) {
	t.Helper()
	store := storage.NewMemoryStore()
	dir := directory.NewMemoryDirectory()
	r := &models.Ride{ID: "ride_1", RiderID: "rider_1", DriverID: "driver_1", Status: status}
	if err := store.CreateRide(context.Background(), r, 0); err != nil {
		t.Fatalf("seed ride: %v", err)
	}
	m := &Manager{Store: store, Directory: dir, Now: func() time.Time { return fixedNow }}
	return m, store, dir
}

func TestCanTransitionTable(t *testing.T) {
	all := []models.RideStatus{models.StatusPending, models.StatusAccepted, models.StatusInProgress, models.StatusCompleted, models.StatusCancelled}
	allowed := map[[2]models.RideStatus]bool{
		{models.StatusPending, models.StatusAccepted}:     true,
		{models.StatusPending, models.StatusCancelled}:    true,
		{models.StatusAccepted, models.StatusInProgress}:  true,
		{models.StatusAccepted, models.StatusCancelled}:   true,
		{models.StatusInProgress, models.StatusCompleted}: true,
		{models.StatusInProgress, models.StatusCancelled}: true,
	}
	for _, from := range all {
		for _, to := range all {
			if got := CanTransition(from, to); got != allowed[[2]models.RideStatus{from, to}] {
				t.Errorf("%s -> %s: got %v", from, to, got)
			}
		}
	}
}

func TestUpdateStatusHappyPath(t *testing.T) {
	m, store, _ := newManager(t, models.StatusPending)
	sink := &recordingSink{}
	m.Notifier = sink
	steps := []models.RideStatus{models.StatusAccepted, models.StatusInProgress, models.StatusCompleted}
	for _, to := range steps {
		r, err := m.UpdateStatus(context.Background(), "ride_1", to, "driver_1")
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", to, err)
		}
		if r.Status != to {
			t.Fatalf("expected %s, got %s", to, r.Status)
		}
	}
	r, _ := store.GetRide(context.Background(), "ride_1")
	if r.Version != 4 {
		t.Fatalf("expected version 4, got %d", r.Version)
	}
	if r.AcceptedAt == nil || r.StartedAt == nil || r.CompletedAt == nil || r.CancelledAt != nil {
		t.Fatalf("unexpected timestamps %+v", r)
	}
	if !r.CompletedAt.Equal(fixedNow) {
		t.Fatalf("expected completed at %v, got %v", fixedNow, r.CompletedAt)
	}
	if len(sink.events) != 6 {
		t.Fatalf("expected 6 notifications, got %d", len(sink.events))
	}
	last := sink.events[5]
	if last.Type != models.EventRideStatusChanged || last.FromStatus != models.StatusInProgress || last.ToStatus != models.StatusCompleted {
		t.Fatalf("unexpected event %+v", last)
	}
	if sink.users[4] != "rider_1" || sink.users[5] != "driver_1" {
		t.Fatalf("expected rider then driver, got %v", sink.users[4:])
	}
}

func TestUpdateStatusFromCompletedAlwaysFails(t *testing.T) {
	for _, to := range []models.RideStatus{models.StatusPending, models.StatusAccepted, models.StatusInProgress, models.StatusCancelled, models.StatusCompleted} {
		m, _, _ := newManager(t, models.StatusCompleted)
		if _, err := m.UpdateStatus(context.Background(), "ride_1", to, ""); !errors.Is(err, models.ErrInvalidTransition) {
			t.Fatalf("completed -> %s: expected invalid transition, got %v", to, err)
		}
	}
}

func TestUpdateStatusUnknownStatus(t *testing.T) {
	m, _, _ := newManager(t, models.StatusPending)
	if _, err := m.UpdateStatus(context.Background(), "ride_1", "teleported", ""); !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestUpdateStatusErrorPrecedence(t *testing.T) {
	m, _, _ := newManager(t, models.StatusCompleted)
	if _, err := m.UpdateStatus(context.Background(), "missing", models.StatusAccepted, "other"); !errors.Is(err, models.ErrRideNotFound) {
		t.Fatalf("expected ride not found, got %v", err)
	}
	// wrong actor is reported before the illegal edge
	if _, err := m.UpdateStatus(context.Background(), "ride_1", models.StatusAccepted, "other"); !errors.Is(err, models.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestUpdateStatusUnauthorizedLeavesRide(t *testing.T) {
	m, store, _ := newManager(t, models.StatusPending)
	if _, err := m.UpdateStatus(context.Background(), "ride_1", models.StatusAccepted, "driver_2"); !errors.Is(err, models.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	r, _ := store.GetRide(context.Background(), "ride_1")
	if r.Status != models.StatusPending || r.Version != 1 {
		t.Fatalf("ride changed: %+v", r)
	}
}

func TestUpdateStatusConcurrentOnlyOneWins(t *testing.T) {
	m, store, _ := newManager(t, models.StatusPending)
	targets := []models.RideStatus{models.StatusAccepted, models.StatusCancelled, models.StatusAccepted, models.StatusCancelled}
	var wg sync.WaitGroup
	start := make(chan struct{})
	errs := make([]error, len(targets))
	for i, to := range targets {
		wg.Add(1)
		go func(i int, to models.RideStatus) {
			defer wg.Done()
			<-start
			_, errs[i] = m.UpdateStatus(context.Background(), "ride_1", to, "")
		}(i, to)
	}
	close(start)
	wg.Wait()
	wins := 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, models.ErrConflict), errors.Is(err, models.ErrInvalidTransition):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins < 1 {
		t.Fatal("expected at least one winner")
	}
	r, _ := store.GetRide(context.Background(), "ride_1")
	if r.Version != 1+wins {
		t.Fatalf("version %d does not match %d successful writes", r.Version, wins)
	}
}

func TestUpdateStatusAcceptBlockedAtDriverLimit(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	seed := []*models.Ride{
		{ID: "busy1", RiderID: "r", DriverID: "driver_1", Status: models.StatusInProgress},
		{ID: "busy2", RiderID: "r", DriverID: "driver_1", Status: models.StatusAccepted},
		{ID: "next", RiderID: "r", DriverID: "driver_1", Status: models.StatusPending},
	}
	for _, r := range seed {
		if err := store.CreateRide(ctx, r, 0); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	sink := &recordingSink{}
	m := &Manager{Store: store, Notifier: sink, MaxActive: 2}
	if _, err := m.UpdateStatus(ctx, "next", models.StatusAccepted, "driver_1"); !errors.Is(err, models.ErrDriverAtCapacity) {
		t.Fatalf("expected driver at capacity, got %v", err)
	}
	r, _ := store.GetRide(ctx, "next")
	if r.Status != models.StatusPending || r.AcceptedAt != nil {
		t.Fatalf("rejected accept changed the ride: %+v", r)
	}
	if len(sink.events) != 0 {
		t.Fatalf("no event expected, got %d", len(sink.events))
	}
	// cancelling is still allowed when the driver is full
	if _, err := m.UpdateStatus(ctx, "next", models.StatusCancelled, "driver_1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	// finishing a ride frees a slot
	if _, err := m.UpdateStatus(ctx, "busy1", models.StatusCompleted, "driver_1"); err != nil {
		t.Fatalf("complete: %v", err)
	}
}

type flakyStore struct {
	*storage.MemoryStore
}

func (flakyStore) GetRide(context.Context, string) (*models.Ride, error) {
	return nil, errors.New("pg down")
}

func TestUpdateStatusCollaboratorFailure(t *testing.T) {
	m := &Manager{Store: flakyStore{storage.NewMemoryStore()}}
	_, err := m.UpdateStatus(context.Background(), "ride_1", models.StatusAccepted, "")
	if !errors.Is(err, models.ErrCollaborator) {
		t.Fatalf("expected collaborator error, got %v", err)
	}
}

func TestUpdateDriverLocation(t *testing.T) {
	m, _, dir := newManager(t, models.StatusPending)
	dir.Upsert(models.User{ID: "driver_1", Role: models.RoleDriver, Status: models.UserActive, Available: true})
	dir.Upsert(models.User{ID: "rider_1", Role: models.RoleRider, Status: models.UserActive})
	ctx := context.Background()
	c := models.Coord{Lat: 33.77, Lon: -84.39}

	if err := m.UpdateDriverLocation(ctx, "driver_1", c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.UpdateDriverLocation(ctx, "driver_1", c); err != nil {
		t.Fatalf("repeat update should be a no-op, got %v", err)
	}
	u, _ := dir.GetUser(ctx, "driver_1")
	if u.Location == nil || *u.Location != c {
		t.Fatalf("unexpected location %+v", u.Location)
	}

	if err := m.UpdateDriverLocation(ctx, "rider_1", c); !errors.Is(err, models.ErrNotADriver) {
		t.Fatalf("expected not a driver, got %v", err)
	}
	if err := m.UpdateDriverLocation(ctx, "ghost", c); !errors.Is(err, models.ErrDriverNotFound) {
		t.Fatalf("expected driver not found, got %v", err)
	}
	if err := m.UpdateDriverLocation(ctx, "driver_1", models.Coord{Lat: 91}); !errors.Is(err, models.ErrInvalidCoordinate) {
		t.Fatalf("expected invalid coordinate, got %v", err)
	}
}

// countingDirectory records writes so idempotence can be asserted.
type countingDirectory struct {
	*directory.MemoryDirectory
	writes int
}

func (c *countingDirectory) UpdateLocation(ctx context.Context, id string, coord models.Coord) error {
	c.writes++
	return c.MemoryDirectory.UpdateLocation(ctx, id, coord)
}

func TestUpdateDriverLocationSameCoordSkipsWrite(t *testing.T) {
	dir := &countingDirectory{MemoryDirectory: directory.NewMemoryDirectory()}
	dir.Upsert(models.User{ID: "driver_1", Role: models.RoleDriver, Status: models.UserActive})
	m := &Manager{Store: storage.NewMemoryStore(), Directory: dir}
	c := models.Coord{Lat: 1, Lon: 2}
	for i := 0; i < 3; i++ {
		if err := m.UpdateDriverLocation(context.Background(), "driver_1", c); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if dir.writes != 1 {
		t.Fatalf("expected 1 write, got %d", dir.writes)
	}
}
