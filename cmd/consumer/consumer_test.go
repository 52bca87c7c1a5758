package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/example/ride-dispatch/internal/directory"
	"github.com/example/ride-dispatch/internal/ingest"
	"github.com/example/ride-dispatch/internal/lifecycle"
	"github.com/example/ride-dispatch/internal/models"
)

// fakeApplier fails the first `fail` calls with err.
type fakeApplier struct {
	fail  int
	err   error
	calls int
}

func (f *fakeApplier) UpdateDriverLocation(context.Context, string, models.Coord) error {
	f.calls++
	if f.calls <= f.fail {
		return f.err
	}
	return nil
}

var update = ingest.LocationUpdate{DriverID: "d1", Location: models.Coord{Lat: 1, Lon: 2}}

func TestApplyWithRetry_SucceedsAfterRetries(t *testing.T) {
	f := &fakeApplier{fail: 2, err: models.Collaborator("update location", errors.New("redis timeout"))}
	start := time.Now()
	if err := applyWithRetry(context.Background(), f, update, 3, 10*time.Millisecond); err != nil {
		t.Fatalf("expected success, got err=%v", err)
	}
	if f.calls != 3 {
		t.Fatalf("expected 3 calls, got %d", f.calls)
	}
	if time.Since(start) < 30*time.Millisecond {
		t.Fatalf("expected doubling backoff between attempts")
	}
}

func TestApplyWithRetry_FailsWhenExhausted(t *testing.T) {
	f := &fakeApplier{fail: 5, err: models.Collaborator("update location", errors.New("redis timeout"))}
	if err := applyWithRetry(context.Background(), f, update, 3, time.Millisecond); !errors.Is(err, models.ErrCollaborator) {
		t.Fatalf("expected collaborator error after retries, got %v", err)
	}
	if f.calls != 3 {
		t.Fatalf("expected 3 calls, got %d", f.calls)
	}
}

func TestApplyWithRetry_PermanentErrorsNotRetried(t *testing.T) {
	f := &fakeApplier{fail: 5, err: models.ErrNotADriver}
	if err := applyWithRetry(context.Background(), f, update, 3, time.Millisecond); !isPermanent(err) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if f.calls != 1 {
		t.Fatalf("expected a single call, got %d", f.calls)
	}
}

func TestApplyWithRetry_AppliesToRedisDirectory(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rc.Close()
	dir := directory.NewRedisDirectory(rc, "test:")
	ctx := context.Background()
	if err := dir.Upsert(ctx, models.User{ID: "d1", Role: models.RoleDriver, Status: models.UserActive, Available: true}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	m := &lifecycle.Manager{Directory: dir}
	if err := applyWithRetry(ctx, m, update, 3, time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	u, err := dir.GetUser(ctx, "d1")
	if err != nil || u.Location == nil || *u.Location != update.Location {
		t.Fatalf("location not applied: %+v %v", u.Location, err)
	}
	ghost := ingest.LocationUpdate{DriverID: "ghost", Location: update.Location}
	if err := applyWithRetry(ctx, m, ghost, 3, time.Millisecond); !errors.Is(err, models.ErrDriverNotFound) {
		t.Fatalf("expected driver not found, got %v", err)
	}
}

func TestSleepCtxStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	if sleepCtx(ctx, 30*time.Second) {
		t.Fatal("expected sleep to be interrupted")
	}
	if time.Since(start) > time.Second {
		t.Fatalf("cancelled sleep took %s", time.Since(start))
	}
	if !sleepCtx(context.Background(), time.Millisecond) {
		t.Fatal("expected uninterrupted sleep to complete")
	}
}

func TestApplyWithRetry_StopsWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := &fakeApplier{fail: 5, err: models.Collaborator("update location", errors.New("redis timeout"))}
	cancel()
	if err := applyWithRetry(ctx, f, update, 3, 10*time.Second); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if f.calls != 1 {
		t.Fatalf("expected 1 call before giving up, got %d", f.calls)
	}
}
