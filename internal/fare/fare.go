// Package fare prices a trip from its distance and the current demand
// pressure. Quote is pure: the same inputs always give the same quote.
package fare

import (
	"math"

	"github.com/example/ride-dispatch/internal/geo"
	"github.com/example/ride-dispatch/internal/models"
)

const (
	DefaultBaseFare     = 2.50
	DefaultPerKm        = 1.50
	DefaultAvgSpeedKmh  = 30.0
	DefaultMaxSurge     = 3.0
	DefaultSurgePerUnit = 0.25
)

// Config holds the tuning constants of the calculator.
type Config struct {
	BaseFare    float64
	PerKm       float64
	AvgSpeedKmh float64
	// MaxSurge caps the multiplier; it also applies when no driver is available.
	MaxSurge float64
	// SurgePerUnit is added to the multiplier for every unit of pressure above 1.
	SurgePerUnit float64
}

func DefaultConfig() Config {
	return Config{
		BaseFare:     DefaultBaseFare,
		PerKm:        DefaultPerKm,
		AvgSpeedKmh:  DefaultAvgSpeedKmh,
		MaxSurge:     DefaultMaxSurge,
		SurgePerUnit: DefaultSurgePerUnit,
	}
}

type Calculator struct {
	cfg Config
}

func NewCalculator(cfg Config) *Calculator {
	d := DefaultConfig()
	if cfg.AvgSpeedKmh <= 0 {
		cfg.AvgSpeedKmh = d.AvgSpeedKmh
	}
	if cfg.MaxSurge < 1 {
		cfg.MaxSurge = d.MaxSurge
	}
	if cfg.SurgePerUnit < 0 {
		cfg.SurgePerUnit = d.SurgePerUnit
	}
	return &Calculator{cfg: cfg}
}

func (c *Calculator) Config() Config { return c.cfg }

// Quote prices a trip from origin to destination. activeRides is the number
// of rides currently accepted or in progress, availableDrivers the size of
// the candidate pool.
func (c *Calculator) Quote(origin, destination models.Coord, activeRides, availableDrivers int) models.FareQuote {
	dist := geo.DistanceKm(origin, destination)
	distanceFare := dist * c.cfg.PerKm
	surge := c.Surge(activeRides, availableDrivers)
	return models.FareQuote{
		DistanceKm:      dist,
		DurationMinutes: c.DurationMinutes(dist),
		BaseFare:        c.cfg.BaseFare,
		DistanceFare:    distanceFare,
		SurgeMultiplier: surge,
		FinalFare:       roundCents((c.cfg.BaseFare + distanceFare) * surge),
	}
}

// DurationMinutes estimates trip time at the configured average speed.
func (c *Calculator) DurationMinutes(distanceKm float64) float64 {
	return distanceKm / c.cfg.AvgSpeedKmh * 60
}

// Surge maps demand pressure (active rides per available driver) onto
// [1, MaxSurge]. It is non-decreasing in activeRides and non-increasing in
// availableDrivers.
func (c *Calculator) Surge(activeRides, availableDrivers int) float64 {
	if availableDrivers <= 0 {
		return c.cfg.MaxSurge
	}
	if activeRides < 0 {
		activeRides = 0
	}
	pressure := float64(activeRides) / float64(availableDrivers)
	surge := 1 + math.Max(0, pressure-1)*c.cfg.SurgePerUnit
	return math.Min(surge, c.cfg.MaxSurge)
}

// roundCents is the only rounding applied to a quote.
func roundCents(v float64) float64 { return math.Round(v*100) / 100 }
