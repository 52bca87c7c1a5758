// Package matcher locates drivers near a pickup and assigns a ride to the
// nearest one with spare capacity.
package matcher

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/example/ride-dispatch/internal/eta"
	"github.com/example/ride-dispatch/internal/fare"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/notify"
	"github.com/example/ride-dispatch/internal/observability"
	"github.com/example/ride-dispatch/internal/storage"
)

type Service struct {
	Locator  *Locator
	Gate     *Gate
	Store    storage.RideStore
	Fare     *fare.Calculator
	ETA      *eta.Estimator // optional
	Notifier notify.Sink    // optional
	Logger   *slog.Logger
	NewID    func() string
}

// Dispatch matches riderID to the nearest driver with capacity and persists
// a pending ride. Selection is greedy nearest-first; no load balancing.
// Either a complete ride is stored or nothing is.
func (s *Service) Dispatch(ctx context.Context, riderID string, origin, destination models.Coord) (models.DispatchResult, error) {
	start := time.Now()
	res, outcome, err := s.dispatch(ctx, riderID, origin, destination)
	observability.DispatchTotal.WithLabelValues(outcome).Inc()
	observability.DispatchLatency.Observe(time.Since(start).Seconds())
	logger := s.logger()
	if err != nil {
		if errors.Is(err, models.ErrNoDriversAvailable) {
			logger.InfoContext(ctx, "dispatch_no_driver", "rider_id", riderID, "reason", outcome)
		} else {
			logger.ErrorContext(ctx, "dispatch_failed", "rider_id", riderID, "error", err)
		}
		return models.DispatchResult{}, err
	}
	logger.InfoContext(ctx, "dispatch_matched",
		"ride_id", res.Ride.ID,
		"rider_id", riderID,
		"driver_id", res.Driver.ID,
		"distance_km", res.Driver.DistanceKm,
		"surge", res.Fare.SurgeMultiplier,
		"fare", res.Fare.FinalFare,
	)
	s.notify(ctx, &res.Ride)
	return res, nil
}

func (s *Service) dispatch(ctx context.Context, riderID string, origin, destination models.Coord) (models.DispatchResult, string, error) {
	cands, err := s.Locator.FindCandidates(ctx, origin, 0)
	if err != nil {
		return models.DispatchResult{}, observability.OutcomeError, err
	}
	observability.CandidateDrivers.Set(float64(len(cands)))
	if len(cands) == 0 {
		return models.DispatchResult{}, observability.OutcomeNoCandidates, models.ErrNoCandidates
	}

	// system-wide load, not scoped to the pickup area
	active, err := s.Store.CountRides(ctx, storage.RideFilter{Statuses: models.ActiveStatuses})
	if err != nil {
		return models.DispatchResult{}, observability.OutcomeError, models.Collaborator("count active rides", err)
	}
	quote := s.Fare.Quote(origin, destination, active, len(cands))
	observability.SurgeMultiplier.Set(quote.SurgeMultiplier)

	for _, c := range cands {
		ok, err := s.Gate.HasCapacity(ctx, c.Driver.ID)
		if err != nil {
			return models.DispatchResult{}, observability.OutcomeError, err
		}
		if !ok {
			continue
		}
		ride := &models.Ride{
			ID:                s.newID(),
			RiderID:           riderID,
			DriverID:          c.Driver.ID,
			Status:            models.StatusPending,
			Origin:            origin,
			Destination:       destination,
			EstimatedDistance: quote.DistanceKm,
			EstimatedDuration: quote.DurationMinutes,
			EstimatedFare:     quote.FinalFare,
			SurgeMultiplier:   quote.SurgeMultiplier,
		}
		err = s.Store.CreateRide(ctx, ride, s.Gate.Limit())
		if errors.Is(err, storage.ErrCapacityExceeded) {
			// lost the last slot to a concurrent dispatch
			continue
		}
		if err != nil {
			return models.DispatchResult{}, observability.OutcomeError, models.Collaborator("create ride", err)
		}
		return models.DispatchResult{
			Ride:   *ride,
			Driver: s.summary(ctx, c, origin),
			Fare:   quote,
		}, observability.OutcomeMatched, nil
	}
	return models.DispatchResult{}, observability.OutcomeNoCapacity, models.ErrNoCapacity
}

func (s *Service) summary(ctx context.Context, c Candidate, pickup models.Coord) models.DriverSummary {
	d := c.Driver
	sum := models.DriverSummary{
		ID:         d.ID,
		FirstName:  d.FirstName,
		LastName:   d.LastName,
		Phone:      d.Phone,
		Vehicle:    d.Vehicle,
		DistanceKm: c.DistanceKm,
	}
	est := s.ETA
	if est == nil {
		est = &eta.Estimator{}
	}
	sum.PickupETASecs = est.Pickup(ctx, *d.Location, pickup)
	return sum
}

func (s *Service) notify(ctx context.Context, r *models.Ride) {
	if s.Notifier == nil {
		return
	}
	e := models.Event{Type: models.EventRideCreated, RideID: r.ID, ToStatus: r.Status, At: r.CreatedAt}
	s.Notifier.Notify(ctx, r.RiderID, e)
	s.Notifier.Notify(ctx, r.DriverID, e)
}

func (s *Service) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}

func (s *Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
