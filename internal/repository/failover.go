package repository

import (
	"context"
	"sync/atomic"
	"time"

	"cabbot/internal/domain"
	"cabbot/internal/models"

	"github.com/rs/zerolog"
)

const recoveryProbeInterval = time.Minute

// FailoverStateRepository routes state operations through Redis and drops to
// the in-memory repository when Redis misbehaves. After a failure the
// primary is probed again no more often than once a minute.
type FailoverStateRepository struct {
	primary  domain.StateRepository
	fallback domain.StateRepository
	logger   *zerolog.Logger

	isDown    atomic.Bool
	lastCheck atomic.Int64
}

func NewFailoverStateRepository(primary, fallback domain.StateRepository, logger *zerolog.Logger) *FailoverStateRepository {
	return &FailoverStateRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

// Degraded reports whether the repository currently serves from fallback.
func (r *FailoverStateRepository) Degraded() bool {
	return r.isDown.Load()
}

func (r *FailoverStateRepository) markDown(err error) {
	r.logger.Error().Err(err).Msg("state repository primary failed, switching to memory fallback")
	r.isDown.Store(true)
	r.lastCheck.Store(time.Now().UnixNano())
}

// shouldProbe rations recovery attempts so a dead Redis does not add a
// timeout to every single update.
func (r *FailoverStateRepository) shouldProbe() bool {
	return time.Since(time.Unix(0, r.lastCheck.Load())) > recoveryProbeInterval
}

func (r *FailoverStateRepository) GetState(ctx context.Context, userID int64) (*models.UserState, error) {
	if !r.isDown.Load() {
		state, err := r.primary.GetState(ctx, userID)
		if err == nil {
			return state, nil
		}
		r.markDown(err)
	} else if r.shouldProbe() {
		r.lastCheck.Store(time.Now().UnixNano())
		if state, err := r.primary.GetState(ctx, userID); err == nil {
			r.isDown.Store(false)
			r.logger.Info().Msg("state repository primary recovered")
			return state, nil
		}
	}
	return r.fallback.GetState(ctx, userID)
}

func (r *FailoverStateRepository) SetState(ctx context.Context, state *models.UserState) error {
	if !r.isDown.Load() {
		if err := r.primary.SetState(ctx, state); err == nil {
			return nil
		} else {
			r.markDown(err)
		}
	}
	return r.fallback.SetState(ctx, state)
}

func (r *FailoverStateRepository) ClearState(ctx context.Context, userID int64) error {
	if !r.isDown.Load() {
		if err := r.primary.ClearState(ctx, userID); err == nil {
			return nil
		} else {
			r.markDown(err)
		}
	}
	return r.fallback.ClearState(ctx, userID)
}

func (r *FailoverStateRepository) CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error) {
	if !r.isDown.Load() {
		allowed, err := r.primary.CheckRateLimit(ctx, userID, limit, window)
		if err == nil {
			return allowed, nil
		}
		r.markDown(err)
	}
	return r.fallback.CheckRateLimit(ctx, userID, limit, window)
}
