// Package lifecycle owns every ride status write and driver location update.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/ride-dispatch/internal/directory"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/notify"
	"github.com/example/ride-dispatch/internal/observability"
	"github.com/example/ride-dispatch/internal/storage"
)

type Manager struct {
	Store     storage.RideStore
	Directory directory.Directory
	Notifier  notify.Sink // optional
	Logger    *slog.Logger
	Now       func() time.Time
	// MaxActive caps a driver's accepted and in-progress rides; 0 means
	// models.MaxActiveRides.
	MaxActive int
}

// UpdateStatus moves a ride to status to. A non-empty actingDriverID must be
// the ride's driver. Checks run in order: existence, actor, transition.
func (m *Manager) UpdateStatus(ctx context.Context, rideID string, to models.RideStatus, actingDriverID string) (*models.Ride, error) {
	r, err := m.Store.GetRide(ctx, rideID)
	if errors.Is(err, storage.ErrNotFound) {
		m.countTransition(to, "not_found")
		return nil, models.ErrRideNotFound
	}
	if err != nil {
		m.countTransition(to, "error")
		return nil, models.Collaborator("get ride", err)
	}
	if actingDriverID != "" && actingDriverID != r.DriverID {
		m.countTransition(to, "unauthorized")
		return nil, models.ErrUnauthorized
	}
	from := r.Status
	if !CanTransition(from, to) {
		m.countTransition(to, "invalid")
		return nil, fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, from, to)
	}

	now := m.now()
	r.Status = to
	switch to {
	case models.StatusAccepted:
		r.AcceptedAt = &now
	case models.StatusInProgress:
		r.StartedAt = &now
	case models.StatusCompleted:
		r.CompletedAt = &now
	case models.StatusCancelled:
		r.CancelledAt = &now
	}
	if err := m.Store.SaveRide(ctx, r, m.maxActive()); err != nil {
		switch {
		case errors.Is(err, storage.ErrCapacityExceeded):
			m.countTransition(to, "capacity")
			m.logger().WarnContext(ctx, "ride_status_rejected_capacity", "ride_id", r.ID, "driver_id", r.DriverID, "to", string(to), "max_active", m.maxActive())
			return nil, models.ErrDriverAtCapacity
		case errors.Is(err, storage.ErrStaleRide):
			m.countTransition(to, "conflict")
			return nil, models.ErrConflict
		case errors.Is(err, storage.ErrNotFound):
			m.countTransition(to, "not_found")
			return nil, models.ErrRideNotFound
		}
		m.countTransition(to, "error")
		return nil, models.Collaborator("save ride", err)
	}
	m.countTransition(to, "ok")
	m.logger().InfoContext(ctx, "ride_status_updated", "ride_id", r.ID, "driver_id", r.DriverID, "from", string(from), "to", string(to), "version", r.Version)

	if m.Notifier != nil {
		e := models.Event{Type: models.EventRideStatusChanged, RideID: r.ID, FromStatus: from, ToStatus: to, At: now}
		m.Notifier.Notify(ctx, r.RiderID, e)
		m.Notifier.Notify(ctx, r.DriverID, e)
	}
	return r, nil
}

// UpdateDriverLocation overwrites a driver's coordinate. Writing the
// coordinate the driver already has is a no-op.
func (m *Manager) UpdateDriverLocation(ctx context.Context, driverID string, c models.Coord) error {
	if err := models.ValidateCoord(c); err != nil {
		observability.LocationUpdatesTotal.WithLabelValues("invalid").Inc()
		return err
	}
	u, err := m.Directory.GetUser(ctx, driverID)
	if errors.Is(err, directory.ErrNotFound) {
		observability.LocationUpdatesTotal.WithLabelValues("not_found").Inc()
		return models.ErrDriverNotFound
	}
	if err != nil {
		observability.LocationUpdatesTotal.WithLabelValues("error").Inc()
		return models.Collaborator("get user", err)
	}
	if u.Role != models.RoleDriver {
		observability.LocationUpdatesTotal.WithLabelValues("not_a_driver").Inc()
		return models.ErrNotADriver
	}
	if u.Location != nil && *u.Location == c {
		observability.LocationUpdatesTotal.WithLabelValues("unchanged").Inc()
		return nil
	}
	if err := m.Directory.UpdateLocation(ctx, driverID, c); err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			observability.LocationUpdatesTotal.WithLabelValues("not_found").Inc()
			return models.ErrDriverNotFound
		}
		observability.LocationUpdatesTotal.WithLabelValues("error").Inc()
		return models.Collaborator("update location", err)
	}
	observability.LocationUpdatesTotal.WithLabelValues("ok").Inc()
	m.logger().DebugContext(ctx, "driver_location_updated", "driver_id", driverID, "lat", c.Lat, "lon", c.Lon)
	return nil
}

func (m *Manager) countTransition(to models.RideStatus, result string) {
	label := string(to)
	if !to.Valid() {
		label = "unknown"
	}
	observability.StatusTransitionsTotal.WithLabelValues(label, result).Inc()
}

func (m *Manager) maxActive() int {
	if m.MaxActive > 0 {
		return m.MaxActive
	}
	return models.MaxActiveRides
}

func (m *Manager) now() time.Time {
	if m.Now != nil {
		return m.Now().UTC()
	}
	return time.Now().UTC()
}

func (m *Manager) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}
