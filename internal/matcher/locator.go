package matcher

import (
	"context"
	"sort"

	"github.com/example/ride-dispatch/internal/directory"
	"github.com/example/ride-dispatch/internal/geo"
	"github.com/example/ride-dispatch/internal/models"
)

// DefaultRadiusKm is used when FindCandidates is called with a radius <= 0.
const DefaultRadiusKm = 5.0

// Candidate is an eligible driver together with its distance to the pickup.
type Candidate struct {
	Driver     models.User
	DistanceKm float64
}

type Locator struct {
	Directory       directory.Directory
	DefaultRadiusKm float64
}

// FindCandidates returns eligible drivers within radiusKm of pickup ordered
// by ascending distance, ties broken by driver id. An empty result is not an error.
func (l *Locator) FindCandidates(ctx context.Context, pickup models.Coord, radiusKm float64) ([]Candidate, error) {
	if radiusKm <= 0 {
		radiusKm = l.defaultRadius()
	}
	drivers, err := l.Directory.ListEligibleDrivers(ctx)
	if err != nil {
		return nil, models.Collaborator("list eligible drivers", err)
	}
	out := make([]Candidate, 0, len(drivers))
	for _, d := range drivers {
		if !d.Eligible() {
			continue
		}
		dist := geo.DistanceKm(pickup, *d.Location)
		// NaN never satisfies <=
		if !(dist <= radiusKm) {
			continue
		}
		out = append(out, Candidate{Driver: d, DistanceKm: dist})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DistanceKm != out[j].DistanceKm {
			return out[i].DistanceKm < out[j].DistanceKm
		}
		return out[i].Driver.ID < out[j].Driver.ID
	})
	return out, nil
}

func (l *Locator) defaultRadius() float64 {
	if l.DefaultRadiusKm > 0 {
		return l.DefaultRadiusKm
	}
	return DefaultRadiusKm
}
