package models

import "time"

type RideStatus string

const (
	StatusRequested       RideStatus = "REQUESTED"
	StatusAccepted        RideStatus = "ACCEPTED"
	StatusInProgress      RideStatus = "IN_PROGRESS"
	StatusAwaitingPayment RideStatus = "AWAITING_PAYMENT"
	StatusPaid            RideStatus = "PAID"
	StatusCancelled       RideStatus = "CANCELLED"
)

// RideStatuses lists every status the platform can report, in lifecycle order.
var RideStatuses = []RideStatus{
	StatusRequested,
	StatusAccepted,
	StatusInProgress,
	StatusAwaitingPayment,
	StatusPaid,
	StatusCancelled,
}

type Role string

const (
	RoleRider  Role = "RIDER"
	RoleDriver Role = "DRIVER"
)

// Party describes the counterpart shown in the tracking view (the driver for
// a rider, the rider for a driver). Read-only display data.
type Party struct {
	Name        string  `json:"name"`
	Phone       string  `json:"phone,omitempty"`
	Rating      float64 `json:"rating,omitempty"`
	TripCount   int     `json:"tripCount,omitempty"`
	MemberSince string  `json:"memberSince,omitempty"`
}

// Ride is the booking snapshot held by the client. The platform backend owns
// it; the client never mutates fields, it only swaps the whole snapshot for
// whatever the backend returned last. JSON keys follow the platform API.
type Ride struct {
	ID                  string     `json:"id"`
	Status              RideStatus `json:"status"`
	Fare                *float64   `json:"fare,omitempty"`
	PickupLocationName  string     `json:"pickupLocationName"`
	DropoffLocationName string     `json:"dropoffLocationName"`
	Driver              *Party     `json:"driver,omitempty"`
	Rider               *Party     `json:"rider,omitempty"`
	RequestedAt         time.Time  `json:"requestedAt,omitempty"`
	UpdatedAt           time.Time  `json:"updatedAt,omitempty"`
}

// Counterpart returns the other side of the ride for the given role.
func (r *Ride) Counterpart(role Role) *Party {
	if r == nil {
		return nil
	}
	if role == RoleDriver {
		return r.Rider
	}
	return r.Driver
}

// Terminal reports whether no further lifecycle actions apply for the role.
// CANCELLED is terminal for everyone; PAID ends the ride on the driver side
// (the rider still gets the rating view).
func (r *Ride) Terminal(role Role) bool {
	if r == nil {
		return true
	}
	switch r.Status {
	case StatusCancelled:
		return true
	case StatusPaid:
		return role == RoleDriver
	default:
		return false
	}
}

// RideHistoryEntry is a finished ride as returned by the history endpoint.
type RideHistoryEntry struct {
	ID                  string     `json:"id"`
	Status              RideStatus `json:"status"`
	Fare                *float64   `json:"fare,omitempty"`
	PickupLocationName  string     `json:"pickupLocationName"`
	DropoffLocationName string     `json:"dropoffLocationName"`
	CompletedAt         time.Time  `json:"completedAt"`
}

// Wallet is the rider's balance view.
type Wallet struct {
	Balance  float64 `json:"balance"`
	Currency string  `json:"currency"`
}

// Profile is the signed-in user's platform profile.
type Profile struct {
	Name        string  `json:"name"`
	Role        Role    `json:"role"`
	Phone       string  `json:"phone,omitempty"`
	Rating      float64 `json:"rating,omitempty"`
	TripCount   int     `json:"tripCount,omitempty"`
	MemberSince string  `json:"memberSince,omitempty"`
}
