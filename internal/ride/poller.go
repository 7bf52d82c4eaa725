package ride

import (
	"context"
	"errors"
	"time"

	"cabbot/internal/backend"
	"cabbot/internal/models"

	"github.com/rs/zerolog"
)

// Backend is the slice of the platform API the tracking core needs.
// *backend.UserClient implements it.
type Backend interface {
	ActiveRide(ctx context.Context, role models.Role) (*models.Ride, error)
	StartRide(ctx context.Context, rideID string) (*models.Ride, error)
	CancelRide(ctx context.Context, rideID, reason string) (*models.Ride, error)
	CompleteRide(ctx context.Context, rideID string) (*models.Ride, error)
	PayRide(ctx context.Context, rideID string) (*models.Ride, error)
	ConfirmCashPayment(ctx context.Context, rideID string) (*models.Ride, error)
	RateRide(ctx context.Context, rideID string, rating int, feedback string) (*models.Ride, error)
}

// Hooks receive poller results. All callbacks are invoked from the poller
// goroutine, one at a time.
type Hooks struct {
	// OnUpdate fires after every successful fetch with the fresh snapshot.
	OnUpdate func(ride *models.Ride)
	// OnEnded fires exactly once when the platform reports no active ride.
	OnEnded func()
	// OnError fires on transient fetch failures; the cycle keeps going.
	OnError func(err error)
}

// Poller keeps the session snapshot fresh by re-fetching the active ride on
// a fixed interval. Fetches are strictly sequential: the next delay starts
// only after the previous call resolved, so two polls never overlap.
type Poller struct {
	api      Backend
	session  *Session
	interval time.Duration
	hooks    Hooks
	logger   zerolog.Logger
}

func NewPoller(api Backend, session *Session, interval time.Duration, hooks Hooks, logger zerolog.Logger) *Poller {
	if interval <= 0 {
		interval = models.DefaultPollIntervalSeconds * time.Second
	}
	return &Poller{
		api:      api,
		session:  session,
		interval: interval,
		hooks:    hooks,
		logger:   logger,
	}
}

// Run blocks until the ride ends, the initial fetch fails, or ctx is
// cancelled. Callers run it in its own goroutine and cancel the context to
// tear the cycle down; cancellation is the only way to stop a healthy loop.
func (p *Poller) Run(ctx context.Context) {
	// Immediate first fetch. The periodic cycle starts only once a snapshot
	// is held: with nothing to track there is nothing to refresh.
	if !p.tick(ctx, true) {
		return
	}

	timer := time.NewTimer(p.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			if !p.tick(ctx, false) {
				return
			}
			timer.Reset(p.interval)
		}
	}
}

// tick performs one fetch and reports whether the cycle should continue.
func (p *Poller) tick(ctx context.Context, initial bool) bool {
	fetched, err := p.api.ActiveRide(ctx, p.session.Role())
	if err != nil {
		if errors.Is(err, backend.ErrNoActiveRide) {
			// Terminal, expected: the ride is over or was never there.
			p.logger.Debug().Msg("no active ride, polling stops")
			if p.hooks.OnEnded != nil {
				p.hooks.OnEnded()
			}
			return false
		}
		if ctx.Err() != nil {
			return false
		}

		p.logger.Warn().Err(err).Msg("poll tick failed")
		if p.hooks.OnError != nil {
			p.hooks.OnError(err)
		}
		// A transient failure before the first snapshot means the cycle
		// never starts; afterwards the next tick simply tries again.
		return !initial
	}

	p.session.Replace(fetched)
	if p.hooks.OnUpdate != nil {
		p.hooks.OnUpdate(fetched)
	}
	return true
}
