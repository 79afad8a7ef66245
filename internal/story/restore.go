package story

import (
	"context"

	"github.com/mdrv/python-game/internal/events"
	"github.com/mdrv/python-game/internal/profile"
)

// DefaultReplayLimit is the default number of journal events read for a replay.
const DefaultReplayLimit = 1000

// EventSource reads journaled story events, newest first.
type EventSource interface {
	JournalEvents(ctx context.Context, profileID string, limit int) ([]events.Event, error)
}

// ReplayJournal rebuilds a profile's StoryState from its journaled story
// events. It returns nil if src is nil or holds no story events for the
// profile. The int result is the number of rows read.
func ReplayJournal(ctx context.Context, src EventSource, profileID string, limit int) (*profile.StoryState, int, error) {
	if src == nil {
		return nil, 0, nil
	}
	if limit <= 0 {
		limit = DefaultReplayLimit
	}

	rows, err := src.JournalEvents(ctx, profileID, limit)
	if err != nil {
		return nil, 0, err
	}
	if len(rows) == 0 {
		return nil, 0, nil
	}

	// newest first
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}

	st := profile.NewStoryState()
	seen := false
	for _, row := range rows {
		f := row.Fields
		switch row.Name {
		case "story.chapter_loaded":
			seen = true
			if id, ok := intField(f, "chapter_id"); ok {
				st.CurrentChapter = id
			}
			st.CurrentScene = ""
			st.CurrentDialogueIndex = 0
			st.Choices = map[string]string{}

		case "story.scene_started":
			seen = true
			if id, ok := f["scene_id"].(string); ok {
				st.CurrentScene = id
				st.CurrentDialogueIndex = 0
			}

		case "story.dialogue_advanced":
			seen = true
			if idx, ok := intField(f, "index"); ok {
				st.CurrentDialogueIndex = idx
			}

		case "story.chapter_completed":
			seen = true
			if id, ok := intField(f, "chapter_id"); ok {
				st.MarkCompleted(id)
			}

		case "story.choice_recorded":
			seen = true
			sceneID, _ := f["scene_id"].(string)
			choiceID, _ := f["choice_id"].(string)
			if sceneID != "" {
				st.Choices[sceneID] = choiceID
			}

		case "story.code_submitted":
			seen = true
			challengeID, _ := f["challenge_id"].(string)
			code, _ := f["code"].(string)
			if challengeID != "" {
				st.CodeSubmissions[challengeID] = code
			}

		case "story.resumed":
			seen = true
			if id, ok := intField(f, "chapter_id"); ok {
				st.CurrentChapter = id
			}
			if id, ok := f["scene_id"].(string); ok {
				st.CurrentScene = id
			}
			if idx, ok := intField(f, "index"); ok {
				st.CurrentDialogueIndex = idx
			}

		case "story.reset":
			seen = true
			st = profile.NewStoryState()
		}
	}

	if !seen {
		return nil, len(rows), nil
	}
	return &st, len(rows), nil
}

// intField reads a numeric field. Values decoded from JSON arrive as float64.
func intField(f map[string]interface{}, key string) (int, bool) {
	switch v := f[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case int64:
		return int(v), true
	}
	return 0, false
}
