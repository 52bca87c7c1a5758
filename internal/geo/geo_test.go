package geo

import (
	"math"
	"testing"

	"github.com/example/ride-dispatch/internal/models"
)

func TestHaversineZero(t *testing.T) {
	d := Haversine(0, 0, 0, 0)
	if d != 0 {
		t.Fatalf("expected 0, got %f", d)
	}
}

func TestDistanceKmSymmetricAndZero(t *testing.T) {
	pts := []models.Coord{
		{Lat: 33.77, Lon: -84.39},
		{Lat: 33.75, Lon: -84.40},
		{Lat: -33.8688, Lon: 151.2093},
		{Lat: 51.5074, Lon: -0.1278},
		{Lat: 0, Lon: 179.9},
		{Lat: 0, Lon: -179.9},
	}
	for _, a := range pts {
		if d := DistanceKm(a, a); d != 0 {
			t.Errorf("DistanceKm(%v, %v) = %f, want 0", a, a, d)
		}
		for _, b := range pts {
			if ab, ba := DistanceKm(a, b), DistanceKm(b, a); ab != ba {
				t.Errorf("asymmetric distance %v<->%v: %f vs %f", a, b, ab, ba)
			}
		}
	}
}

func TestDistanceKmKnownValues(t *testing.T) {
	cases := []struct {
		name     string
		a, b     models.Coord
		min, max float64
	}{
		{"atlanta midtown to downtown", models.Coord{Lat: 33.77, Lon: -84.39}, models.Coord{Lat: 33.75, Lon: -84.40}, 2.3, 2.5},
		{"one degree of latitude", models.Coord{Lat: 0, Lon: 0}, models.Coord{Lat: 1, Lon: 0}, 111.1, 111.3},
		{"across the antimeridian", models.Coord{Lat: 0, Lon: 179.9}, models.Coord{Lat: 0, Lon: -179.9}, 22.1, 22.4},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := DistanceKm(tc.a, tc.b)
			if d < tc.min || d > tc.max {
				t.Fatalf("got %f, want within [%f, %f]", d, tc.min, tc.max)
			}
		})
	}
}

func TestDistanceKmPropagatesNaN(t *testing.T) {
	d := DistanceKm(models.Coord{Lat: math.NaN(), Lon: 0}, models.Coord{Lat: 1, Lon: 1})
	if !math.IsNaN(d) {
		t.Fatalf("expected NaN, got %f", d)
	}
}
