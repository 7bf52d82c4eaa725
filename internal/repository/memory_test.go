package repository

import (
	"context"
	"testing"
	"time"

	"cabbot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStateRepository(t *testing.T) {
	repo := NewMemoryStateRepository(time.Hour)
	ctx := context.Background()

	state := &models.UserState{
		UserID:      42,
		CurrentStep: models.StateConfirmRequest,
		TempData:    map[string]interface{}{"dropoff": "Вокзал"},
	}
	require.NoError(t, repo.SetState(ctx, state))

	got, err := repo.GetState(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.StateConfirmRequest, got.CurrentStep)
	assert.Equal(t, "Вокзал", got.GetString("dropoff"))

	require.NoError(t, repo.ClearState(ctx, 42))
	got, err = repo.GetState(ctx, 42)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryRateLimit(t *testing.T) {
	repo := NewMemoryStateRepository(time.Hour)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := repo.CheckRateLimit(ctx, 7, 3, 50*time.Millisecond)
		require.NoError(t, err)
		assert.True(t, allowed, "request %d within limit", i+1)
	}

	allowed, err := repo.CheckRateLimit(ctx, 7, 3, 50*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, allowed)

	time.Sleep(60 * time.Millisecond)
	allowed, err = repo.CheckRateLimit(ctx, 7, 3, 50*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, allowed)
}
