package ride

import (
	"testing"

	"cabbot/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestViewFor(t *testing.T) {
	tests := []struct {
		role   models.Role
		status models.RideStatus
		want   ViewMode
	}{
		{models.RoleRider, models.StatusRequested, ViewTracking},
		{models.RoleRider, models.StatusAccepted, ViewTracking},
		{models.RoleRider, models.StatusInProgress, ViewTracking},
		{models.RoleRider, models.StatusCancelled, ViewTracking},
		{models.RoleRider, models.StatusAwaitingPayment, ViewPayment},
		{models.RoleRider, models.StatusPaid, ViewRating},
		{models.RoleDriver, models.StatusRequested, ViewTracking},
		{models.RoleDriver, models.StatusAccepted, ViewTracking},
		{models.RoleDriver, models.StatusInProgress, ViewTracking},
		{models.RoleDriver, models.StatusCancelled, ViewTracking},
		{models.RoleDriver, models.StatusAwaitingPayment, ViewPayment},
		{models.RoleDriver, models.StatusPaid, ViewNone},
	}

	for _, tt := range tests {
		t.Run(string(tt.role)+"_"+string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, ViewFor(tt.role, tt.status))
		})
	}
}

func TestViewFor_UnknownStatus(t *testing.T) {
	assert.Equal(t, ViewNone, ViewFor(models.RoleRider, models.RideStatus("DISPUTED")))
	assert.Equal(t, ViewNone, ViewFor(models.RoleDriver, models.RideStatus("")))
}

func TestTrackingStateFor(t *testing.T) {
	assert.Equal(t, TrackingConnecting, TrackingStateFor(models.StatusRequested))
	assert.Equal(t, TrackingEnRoute, TrackingStateFor(models.StatusAccepted))
	assert.Equal(t, TrackingInProgress, TrackingStateFor(models.StatusInProgress))
	assert.Equal(t, TrackingCancelled, TrackingStateFor(models.StatusCancelled))
}

func TestActionsFor(t *testing.T) {
	assert.Equal(t, []Action{ActionCancel, ActionStart}, ActionsFor(models.RoleDriver, models.StatusAccepted))
	assert.Equal(t, []Action{ActionComplete}, ActionsFor(models.RoleDriver, models.StatusInProgress))
	assert.Equal(t, []Action{ActionCancel}, ActionsFor(models.RoleRider, models.StatusRequested))
	assert.Equal(t, []Action{ActionCancel}, ActionsFor(models.RoleRider, models.StatusAccepted))
}

// Every (role, status) pair outside the four entries above must offer
// nothing. The table is exhaustive by construction, so enumerate it.
func TestActionsFor_EmptyOutsideTable(t *testing.T) {
	allowed := map[models.Role]map[models.RideStatus]bool{
		models.RoleDriver: {models.StatusAccepted: true, models.StatusInProgress: true},
		models.RoleRider:  {models.StatusRequested: true, models.StatusAccepted: true},
	}

	for _, role := range []models.Role{models.RoleRider, models.RoleDriver} {
		for _, status := range models.RideStatuses {
			if allowed[role][status] {
				continue
			}
			assert.Empty(t, ActionsFor(role, status), "role=%s status=%s", role, status)
		}
	}
}

func TestPaymentActionFor(t *testing.T) {
	assert.Equal(t, ActionPay, PaymentActionFor(models.RoleRider))
	assert.Equal(t, ActionConfirmCash, PaymentActionFor(models.RoleDriver))
}

func TestSessionReplaceIsWholesale(t *testing.T) {
	fare := 420.0
	s := NewSession(models.RoleRider)
	s.Replace(&models.Ride{ID: "r1", Status: models.StatusAwaitingPayment, Fare: &fare})

	// Server response without a fare drops the fare: the snapshot is never
	// merged with what was held before.
	prev := s.Replace(&models.Ride{ID: "r1", Status: models.StatusAwaitingPayment})

	assert.NotNil(t, prev.Fare)
	assert.Nil(t, s.Current().Fare)
}
