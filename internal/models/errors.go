package models

import (
	"errors"
	"fmt"
)

var (
	ErrNoDriversAvailable = errors.New("no drivers available")
	ErrRideNotFound       = errors.New("ride not found")
	ErrDriverNotFound     = errors.New("driver not found")
	ErrNotADriver         = errors.New("user is not a driver")
	ErrUnauthorized       = errors.New("unauthorized to update this ride")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrConflict           = errors.New("ride was modified concurrently")
	ErrDriverAtCapacity   = errors.New("driver has reached the active ride limit")
	ErrInvalidCoordinate  = errors.New("invalid coordinate")
	ErrCollaborator       = errors.New("collaborator failure")
)

// Both satisfy errors.Is(err, ErrNoDriversAvailable) but stay distinguishable.
var (
	ErrNoCandidates = fmt.Errorf("%w: no drivers in your area", ErrNoDriversAvailable)
	ErrNoCapacity   = fmt.Errorf("%w: no driver can accept your ride", ErrNoDriversAvailable)
)

// CollaboratorError wraps a failure from the directory, ride store or any
// other external dependency.
type CollaboratorError struct {
	Op  string
	Err error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }

func (e *CollaboratorError) Is(target error) bool { return target == ErrCollaborator }

func Collaborator(op string, err error) error {
	if err == nil {
		return nil
	}
	return &CollaboratorError{Op: op, Err: err}
}

// ValidateCoord rejects out of range or NaN coordinates.
func ValidateCoord(c Coord) error {
	// NaN fails both comparisons.
	if !(c.Lat >= -90 && c.Lat <= 90) || !(c.Lon >= -180 && c.Lon <= 180) {
		return fmt.Errorf("%w: lat=%v lon=%v", ErrInvalidCoordinate, c.Lat, c.Lon)
	}
	return nil
}
