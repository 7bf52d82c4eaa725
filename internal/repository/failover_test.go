package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"cabbot/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// brokenStateRepository fails every call.
type brokenStateRepository struct{}

var errRepoDown = errors.New("connection refused")

func (brokenStateRepository) GetState(ctx context.Context, userID int64) (*models.UserState, error) {
	return nil, errRepoDown
}

func (brokenStateRepository) SetState(ctx context.Context, state *models.UserState) error {
	return errRepoDown
}

func (brokenStateRepository) ClearState(ctx context.Context, userID int64) error {
	return errRepoDown
}

func (brokenStateRepository) CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error) {
	return false, errRepoDown
}

func TestFailoverSwitchesToFallback(t *testing.T) {
	logger := zerolog.Nop()
	fallback := NewMemoryStateRepository(time.Hour)
	repo := NewFailoverStateRepository(brokenStateRepository{}, fallback, &logger)
	ctx := context.Background()

	state := &models.UserState{UserID: 1, CurrentStep: models.StateSelectPickup}
	require.NoError(t, repo.SetState(ctx, state))
	assert.True(t, repo.Degraded())

	got, err := repo.GetState(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.StateSelectPickup, got.CurrentStep)
}

func TestFailoverPrefersHealthyPrimary(t *testing.T) {
	logger := zerolog.Nop()
	primary := NewMemoryStateRepository(time.Hour)
	fallback := NewMemoryStateRepository(time.Hour)
	repo := NewFailoverStateRepository(primary, fallback, &logger)
	ctx := context.Background()

	require.NoError(t, repo.SetState(ctx, &models.UserState{UserID: 2, CurrentStep: models.StateConfirmRequest}))
	assert.False(t, repo.Degraded())

	// Written through the primary, invisible to the fallback.
	got, err := primary.GetState(ctx, 2)
	require.NoError(t, err)
	assert.NotNil(t, got)

	got, err = fallback.GetState(ctx, 2)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFailoverRateLimit(t *testing.T) {
	logger := zerolog.Nop()
	repo := NewFailoverStateRepository(brokenStateRepository{}, NewMemoryStateRepository(time.Hour), &logger)
	ctx := context.Background()

	allowed, err := repo.CheckRateLimit(ctx, 3, 1, time.Second)
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = repo.CheckRateLimit(ctx, 3, 1, time.Second)
	require.NoError(t, err)
	assert.False(t, allowed)
}
