package ride

import (
	"context"
	"errors"
	"sync/atomic"

	"cabbot/internal/models"

	"github.com/rs/zerolog"
)

// ErrActionInFlight is returned when an action is submitted while a previous
// one is still waiting on the platform.
var ErrActionInFlight = errors.New("ride: action already in flight")

// Dispatcher submits lifecycle actions for the session's ride. At most one
// action runs at a time; extra submissions fail fast with ErrActionInFlight
// instead of queueing. A successful action replaces the snapshot wholesale
// with whatever the platform returned; a failed one leaves it untouched.
type Dispatcher struct {
	api     Backend
	session *Session
	busy    atomic.Bool
	logger  zerolog.Logger

	// onApplied fires after the snapshot was replaced by a non-terminal
	// action. onEnded fires instead when the action closed the ride out.
	onApplied func(ride *models.Ride)
	onEnded   func()
}

func NewDispatcher(api Backend, session *Session, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{api: api, session: session, logger: logger}
}

// OnApplied sets the callback for non-terminal action results.
func (d *Dispatcher) OnApplied(fn func(ride *models.Ride)) { d.onApplied = fn }

// OnEnded sets the callback for terminal actions.
func (d *Dispatcher) OnEnded(fn func()) { d.onEnded = fn }

// Busy reports whether an action is currently awaiting the platform.
func (d *Dispatcher) Busy() bool { return d.busy.Load() }

func (d *Dispatcher) Start(ctx context.Context) error {
	return d.do(ctx, ActionStart, false, d.api.StartRide)
}

func (d *Dispatcher) Complete(ctx context.Context) error {
	return d.do(ctx, ActionComplete, false, d.api.CompleteRide)
}

func (d *Dispatcher) Pay(ctx context.Context) error {
	return d.do(ctx, ActionPay, false, d.api.PayRide)
}

func (d *Dispatcher) Cancel(ctx context.Context, reason string) error {
	return d.do(ctx, ActionCancel, true, func(ctx context.Context, rideID string) (*models.Ride, error) {
		return d.api.CancelRide(ctx, rideID, reason)
	})
}

func (d *Dispatcher) ConfirmCash(ctx context.Context) error {
	return d.do(ctx, ActionConfirmCash, true, d.api.ConfirmCashPayment)
}

func (d *Dispatcher) Rate(ctx context.Context, rating int, feedback string) error {
	return d.do(ctx, ActionRate, true, func(ctx context.Context, rideID string) (*models.Ride, error) {
		return d.api.RateRide(ctx, rideID, rating, feedback)
	})
}

func (d *Dispatcher) do(ctx context.Context, action Action, terminal bool, call func(ctx context.Context, rideID string) (*models.Ride, error)) error {
	current := d.session.Current()
	if current == nil {
		return errors.New("ride: no active ride")
	}
	if !d.busy.CompareAndSwap(false, true) {
		return ErrActionInFlight
	}
	defer d.busy.Store(false)

	updated, err := call(ctx, current.ID)
	if err != nil {
		d.logger.Warn().Err(err).Str("action", string(action)).Str("ride_id", current.ID).Msg("ride action failed")
		return err
	}

	d.session.Replace(updated)
	d.logger.Info().
		Str("action", string(action)).
		Str("ride_id", updated.ID).
		Str("status", string(updated.Status)).
		Msg("ride action applied")

	if terminal {
		if d.onEnded != nil {
			d.onEnded()
		}
		return nil
	}
	if d.onApplied != nil {
		d.onApplied(updated)
	}
	return nil
}
