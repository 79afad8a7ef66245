package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdrv/python-game/internal/profile"
	"github.com/mdrv/python-game/internal/storage"
)

func TestDSNFromEnv(t *testing.T) {
	t.Setenv("PGHOST", "db.local")
	t.Setenv("PGPORT", "6543")
	t.Setenv("PGUSER", "kid")
	t.Setenv("PGDATABASE", "games")
	t.Setenv("PGPASSWORD", "hunter2")
	t.Setenv("PGPASSWORD_FILE", "")
	t.Setenv("PGSSLMODE", "require")

	dsn, err := DSNFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "host=db.local port=6543 user=kid password=hunter2 dbname=games sslmode=require", dsn)
}

func TestDSNFromEnvNoPassword(t *testing.T) {
	t.Setenv("PGHOST", "")
	t.Setenv("PGPASSWORD", "")
	t.Setenv("PGPASSWORD_FILE", "")

	dsn, err := DSNFromEnv()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(dsn, "host=127.0.0.1 "))
	assert.NotContains(t, dsn, "password=")
}

func TestNotInitialized(t *testing.T) {
	c := New("host=127.0.0.1", "test")
	assert.False(t, c.IsInitialized())

	_, err := c.Get(context.Background(), "x")
	assert.True(t, errors.Is(err, storage.ErrNotInitialized))

	err = c.AppendEvent(time.Now(), "info", "story.chapter_loaded", "", nil)
	assert.True(t, errors.Is(err, storage.ErrNotInitialized))
}

func TestInitRejectsBadStoreName(t *testing.T) {
	c := New("host=127.0.0.1", "test")
	err := c.Init(context.Background(), storage.Config{Store: "kid-profiles; DROP"})
	require.Error(t, err)
	assert.False(t, c.IsInitialized())
}

// The tests below need a reachable database and run only when PGHOST is set.
func liveClient(t *testing.T) *Client {
	t.Helper()
	if os.Getenv("PGHOST") == "" {
		t.Skip("PGHOST not set")
	}
	dsn, err := DSNFromEnv()
	require.NoError(t, err)

	c := New(dsn, fmt.Sprintf("test-%d", time.Now().UnixNano()))
	store := fmt.Sprintf("kid_profiles_test_%d", time.Now().UnixNano())
	require.NoError(t, c.Init(context.Background(), storage.Config{Store: store}))
	t.Cleanup(func() {
		c.db.Exec(`DROP TABLE IF EXISTS ` + store)
		c.db.Exec(`DELETE FROM story_events WHERE game_id = $1`, c.gameID)
		c.Close()
	})
	return c
}

func TestLiveProfileRoundTrip(t *testing.T) {
	c := liveClient(t)
	ctx := context.Background()

	p := profile.New("Sari", 10, "id", time.Now())
	p.Story.Choices["ch1-scene6"] = "choice1"
	require.True(t, c.Put(ctx, p).Success)

	got, err := c.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, p.Story, got.Story)
	assert.True(t, p.LastPlayedAt.Equal(got.LastPlayedAt))

	require.NoError(t, c.Delete(ctx, p.ID))
	got, err = c.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestLiveJournal(t *testing.T) {
	c := liveClient(t)

	require.NoError(t, c.AppendEvent(time.Now(), "info", "story.chapter_completed", "done",
		map[string]interface{}{"profile_id": "p1", "chapter_id": 1}))
	require.NoError(t, c.AppendEvent(time.Now(), "info", "story.chapter_loaded", "",
		map[string]interface{}{"profile_id": "p2"}))

	rows, err := c.QueryEvents(context.Background(), "p1", 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "story.chapter_completed", rows[0].Event)
	require.NotNil(t, rows[0].ProfileID)
	assert.Equal(t, "p1", *rows[0].ProfileID)
}

func TestLiveJournalSameTimestampOrder(t *testing.T) {
	c := liveClient(t)
	ts := time.Now()

	for _, name := range []string{"story.scene_started", "story.dialogue_advanced", "story.chapter_completed"} {
		require.NoError(t, c.AppendEvent(ts, "info", name, "", map[string]interface{}{"profile_id": "p1"}))
	}

	evs, err := c.JournalEvents(context.Background(), "p1", 10)
	require.NoError(t, err)
	require.Len(t, evs, 3)
	assert.Equal(t, "story.chapter_completed", evs[0].Name, "ties on ts must resolve newest insert first")
	assert.Equal(t, "story.dialogue_advanced", evs[1].Name)
	assert.Equal(t, "story.scene_started", evs[2].Name)
}

func TestToEvents(t *testing.T) {
	msg := "done"
	ts := time.Date(2026, 5, 4, 8, 0, 0, 0, time.FixedZone("WIB", 7*3600))
	got := toEvents([]EventRow{
		{EventID: 2, Timestamp: ts, Level: "info", Event: "story.chapter_completed", Message: &msg,
			Fields: map[string]interface{}{"chapter_id": float64(1)}},
		{EventID: 1, Timestamp: ts, Level: "info", Event: "story.chapter_loaded"},
	})

	require.Len(t, got, 2)
	assert.Equal(t, "2026-05-04T01:00:00Z", got[0].Timestamp)
	assert.Equal(t, "story.chapter_completed", got[0].Name)
	assert.Equal(t, "done", got[0].Message)
	assert.Equal(t, float64(1), got[0].Fields["chapter_id"])
	assert.Equal(t, "", got[1].Message)
	assert.Nil(t, got[1].Fields)
}
