package matcher

import (
	"context"

	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/storage"
)

const DefaultMaxActiveRides = models.MaxActiveRides

// Gate is a point-in-time capacity check. It reserves nothing; the store's
// CreateRide re-validates at write time.
type Gate struct {
	Store     storage.RideStore
	MaxActive int
}

func (g *Gate) HasCapacity(ctx context.Context, driverID string) (bool, error) {
	n, err := g.Store.CountRides(ctx, storage.RideFilter{DriverID: driverID, Statuses: models.ActiveStatuses})
	if err != nil {
		return false, models.Collaborator("count driver rides", err)
	}
	return n < g.Limit(), nil
}

// Limit is the configured cap or DefaultMaxActiveRides.
func (g *Gate) Limit() int {
	if g.MaxActive > 0 {
		return g.MaxActive
	}
	return DefaultMaxActiveRides
}
