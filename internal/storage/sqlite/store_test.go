package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdrv/python-game/internal/profile"
	"github.com/mdrv/python-game/internal/storage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s := New(filepath.Join(t.TempDir(), "bearcu.db"))
	require.NoError(t, s.Init(context.Background(), storage.Config{}))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveLoadIdentity(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	p := profile.New("Budi", 9, "id", time.Now())
	p.Story.CurrentScene = "ch1-scene2"
	p.Story.CurrentDialogueIndex = 3
	p.Story.Choices["ch1-scene6"] = "choice2"
	p.Story.CodeSubmissions["challenge1-1"] = `print("Halo Dunia")`
	p.Achievements = append(p.Achievements, "first-print")

	res := s.Put(ctx, p)
	require.True(t, res.Success, res.Error)

	got, err := s.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestPutOverwrites(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	p := profile.New("Budi", 9, "id", time.Now())
	require.True(t, s.Put(ctx, p).Success)

	p.Name = "Budi S."
	p.Story.MarkCompleted(1)
	require.True(t, s.Put(ctx, p).Success)

	got, err := s.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Budi S.", got.Name)
	assert.Equal(t, []int{1}, got.Story.CompletedChapters)

	all, err := s.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestListAllOrdersByLastPlayed(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	older := profile.New("Older", 7, "id", base)
	newer := profile.New("Newer", 8, "id", base.Add(time.Hour))
	require.True(t, s.Put(ctx, older).Success)
	require.True(t, s.Put(ctx, newer).Success)

	all, err := s.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, newer.ID, all[0].ID)
	assert.Equal(t, older.ID, all[1].ID)
}

func TestGetMissingAndDelete(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	got, err := s.Get(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, got)

	p := profile.New("Tmp", 6, "en", time.Now())
	require.True(t, s.Put(ctx, p).Success)
	require.NoError(t, s.Delete(ctx, p.ID))

	got, err = s.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestNotInitialized(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "x.db"))
	assert.False(t, s.IsInitialized())

	_, err := s.Get(context.Background(), "a")
	assert.True(t, errors.Is(err, storage.ErrNotInitialized))

	res := s.Put(context.Background(), profile.New("A", 7, "id", time.Now()))
	assert.False(t, res.Success)
}

func TestInitUnavailable(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "missing-dir", "nested", "x.db"))
	err := s.Init(context.Background(), storage.Config{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, storage.ErrUnavailable))
	assert.False(t, s.IsInitialized())
}
