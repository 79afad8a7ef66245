package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdrv/python-game/internal/profile"
	"github.com/mdrv/python-game/internal/storage"
)

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Init(ctx, storage.Config{}))
	assert.True(t, s.IsInitialized())

	p := profile.New("Sari", 8, "id", time.Now())
	p.Story.Choices["ch1-scene6"] = "choice1"
	p.Story.MarkCompleted(1)

	res := s.Put(ctx, p)
	require.True(t, res.Success, res.Error)
	assert.False(t, res.Timestamp.IsZero())

	got, err := s.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p, got)

	// Mutating the loaded copy must not leak into the store.
	got.Story.Choices["ch1-scene6"] = "choice3"
	again, err := s.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "choice1", again.Story.Choices["ch1-scene6"])
}

func TestGetUnknownReturnsNil(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Init(ctx, storage.Config{}))

	got, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestOperationsBeforeInit(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.Get(ctx, "x")
	assert.True(t, errors.Is(err, storage.ErrNotInitialized))

	var serr *storage.Error
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "get", serr.Op)

	res := s.Put(ctx, profile.New("A", 7, "id", time.Now()))
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "not initialized")
}

func TestDeleteAndList(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Init(ctx, storage.Config{}))

	a := profile.New("A", 7, "id", time.Now())
	b := profile.New("B", 9, "en", time.Now())
	require.True(t, s.Put(ctx, a).Success)
	require.True(t, s.Put(ctx, b).Success)

	all, err := s.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, s.Delete(ctx, a.ID))
	got, err := s.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestInitRejectsBadStoreName(t *testing.T) {
	err := New().Init(context.Background(), storage.Config{Store: "kid profiles; drop"})
	assert.Error(t, err)
}
