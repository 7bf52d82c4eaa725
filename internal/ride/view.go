package ride

import "cabbot/internal/models"

// ViewMode selects which of the four mutually exclusive screens a booking is
// rendered into. Derived purely from (role, status); never from local state.
type ViewMode string

const (
	ViewTracking ViewMode = "tracking"
	ViewPayment  ViewMode = "payment"
	ViewRating   ViewMode = "rating"
	ViewNone     ViewMode = "none"
)

// TrackingState is the sub-state shown inside the tracking view.
type TrackingState string

const (
	TrackingConnecting TrackingState = "connecting"
	TrackingEnRoute    TrackingState = "en_route"
	TrackingInProgress TrackingState = "in_progress"
	TrackingCancelled  TrackingState = "cancelled"
)

// Action is a lifecycle operation a user may trigger from a view.
type Action string

const (
	ActionStart       Action = "start"
	ActionCancel      Action = "cancel"
	ActionComplete    Action = "complete"
	ActionPay         Action = "pay"
	ActionConfirmCash Action = "confirm_cash"
	ActionRate        Action = "rate"
)

// ViewFor maps a status to a view mode for the role. Total over the whole
// status enum; anything unrecognized falls through to ViewNone.
func ViewFor(role models.Role, status models.RideStatus) ViewMode {
	switch status {
	case models.StatusRequested, models.StatusAccepted, models.StatusInProgress, models.StatusCancelled:
		return ViewTracking
	case models.StatusAwaitingPayment:
		return ViewPayment
	case models.StatusPaid:
		if role == models.RoleRider {
			return ViewRating
		}
		return ViewNone
	default:
		return ViewNone
	}
}

// TrackingStateFor maps a status to its tracking sub-state. Only meaningful
// when ViewFor returned ViewTracking.
func TrackingStateFor(status models.RideStatus) TrackingState {
	switch status {
	case models.StatusRequested:
		return TrackingConnecting
	case models.StatusAccepted:
		return TrackingEnRoute
	case models.StatusCancelled:
		return TrackingCancelled
	default:
		return TrackingInProgress
	}
}

// ActionsFor returns the lifecycle buttons offered inside the tracking view,
// gated by role AND status. Pairs outside the table get no actions at all:
// showing nothing is always safer than showing the wrong button.
func ActionsFor(role models.Role, status models.RideStatus) []Action {
	switch role {
	case models.RoleDriver:
		switch status {
		case models.StatusAccepted:
			return []Action{ActionCancel, ActionStart}
		case models.StatusInProgress:
			return []Action{ActionComplete}
		}
	case models.RoleRider:
		switch status {
		case models.StatusRequested, models.StatusAccepted:
			return []Action{ActionCancel}
		}
	}
	return nil
}

// PaymentActionFor returns the single settlement action the payment view
// offers: wallet payment for the rider, cash confirmation for the driver.
func PaymentActionFor(role models.Role) Action {
	if role == models.RoleDriver {
		return ActionConfirmCash
	}
	return ActionPay
}
