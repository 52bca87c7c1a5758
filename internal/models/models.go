package models

import "time"

type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type Role string

const (
	RoleDriver Role = "driver"
	RoleRider  Role = "rider"
)

// UserStatus is the operational status of a directory record.
type UserStatus string

const (
	UserActive    UserStatus = "active"
	UserSuspended UserStatus = "suspended"
	UserInactive  UserStatus = "inactive"
)

type Vehicle struct {
	Make         string `json:"make"`
	Model        string `json:"model"`
	Color        string `json:"color"`
	LicensePlate string `json:"license_plate"`
}

// User is a directory record. Drivers without a Location cannot be discovered.
type User struct {
	ID        string     `json:"id"`
	Role      Role       `json:"role"`
	FirstName string     `json:"first_name"`
	LastName  string     `json:"last_name"`
	Phone     string     `json:"phone_number"`
	Location  *Coord     `json:"location,omitempty"`
	Vehicle   Vehicle    `json:"vehicle"`
	Available bool       `json:"is_available"`
	Status    UserStatus `json:"status"`
}

// Eligible reports whether u can be matched against a pickup.
func (u User) Eligible() bool {
	return u.Role == RoleDriver && u.Status == UserActive && u.Available && u.Location != nil
}

type RideRequest struct {
	RiderID     string `json:"rider_id"`
	Origin      Coord  `json:"origin"`
	Destination Coord  `json:"destination"`
}

type FareQuote struct {
	DistanceKm      float64 `json:"distance_km"`
	DurationMinutes float64 `json:"duration_minutes"`
	BaseFare        float64 `json:"base_fare"`
	DistanceFare    float64 `json:"distance_fare"`
	SurgeMultiplier float64 `json:"surge_multiplier"`
	FinalFare       float64 `json:"final_fare"`
}

type RideStatus string

const (
	StatusPending    RideStatus = "pending"
	StatusAccepted   RideStatus = "accepted"
	StatusInProgress RideStatus = "in_progress"
	StatusCompleted  RideStatus = "completed"
	StatusCancelled  RideStatus = "cancelled"
)

// MaxActiveRides is the default cap on a driver's accepted and in-progress rides.
const MaxActiveRides = 3

// ActiveStatuses are the statuses that occupy a driver's capacity.
var ActiveStatuses = []RideStatus{StatusAccepted, StatusInProgress}

// Terminal reports whether no further transition may leave s.
func (s RideStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func (s RideStatus) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

type Ride struct {
	ID                string     `json:"id"`
	RiderID           string     `json:"rider_id"`
	DriverID          string     `json:"driver_id"`
	Status            RideStatus `json:"status"`
	Origin            Coord      `json:"origin"`
	Destination       Coord      `json:"destination"`
	EstimatedDistance float64    `json:"estimated_distance_km"`
	EstimatedDuration float64    `json:"estimated_duration_minutes"`
	EstimatedFare     float64    `json:"estimated_fare"`
	SurgeMultiplier   float64    `json:"surge_multiplier"`
	// Version is bumped on every successful save.
	Version     int        `json:"version"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	AcceptedAt  *time.Time `json:"accepted_at,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
}

// DriverSummary is the driver-facing part of a dispatch result.
type DriverSummary struct {
	ID            string  `json:"id"`
	FirstName     string  `json:"first_name"`
	LastName      string  `json:"last_name"`
	Phone         string  `json:"phone_number"`
	Vehicle       Vehicle `json:"vehicle"`
	DistanceKm    float64 `json:"distance_km"`
	PickupETASecs float64 `json:"pickup_eta_seconds"`
}

type DispatchResult struct {
	Ride   Ride          `json:"ride"`
	Driver DriverSummary `json:"driver"`
	Fare   FareQuote     `json:"fare"`
}

type EventType string

const (
	EventRideCreated       EventType = "ride_created"
	EventRideStatusChanged EventType = "ride_status_changed"
)

type Event struct {
	Type       EventType  `json:"type"`
	RideID     string     `json:"ride_id"`
	FromStatus RideStatus `json:"from_status,omitempty"`
	ToStatus   RideStatus `json:"to_status"`
	At         time.Time  `json:"at"`
}
