package events

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	initial := SubscriberCount()

	sub1 := Subscribe()
	sub2 := Subscribe()
	if SubscriberCount() != initial+2 {
		t.Errorf("expected %d subscribers, got %d", initial+2, SubscriberCount())
	}

	Unsubscribe(sub1)
	if SubscriberCount() != initial+1 {
		t.Errorf("expected %d subscribers after unsubscribe, got %d", initial+1, SubscriberCount())
	}

	Unsubscribe(sub2)
	if SubscriberCount() != initial {
		t.Errorf("expected %d subscribers after all unsubscribed, got %d", initial, SubscriberCount())
	}

	// Unsubscribing twice must not panic on a closed channel.
	Unsubscribe(sub2)
}

func TestBroadcastToSubscribers(t *testing.T) {
	sub := Subscribe()
	defer Unsubscribe(sub)

	Emit("info", "story.scene_started", "", map[string]interface{}{"scene_id": "ch1-scene1"})

	select {
	case e := <-sub:
		if e.Name != "story.scene_started" {
			t.Errorf("expected event name 'story.scene_started', got '%s'", e.Name)
		}
		if e.Fields["scene_id"] != "ch1-scene1" {
			t.Errorf("expected scene_id 'ch1-scene1', got '%v'", e.Fields["scene_id"])
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("timeout waiting for broadcast event")
	}
}

func TestEmitRejectsUnknownEvent(t *testing.T) {
	if _, err := Emit("info", "node.started", "", nil); err == nil {
		t.Error("expected unknown event to be rejected")
	}
}

func TestRecentEvents(t *testing.T) {
	Clear()

	for i := 0; i < 10; i++ {
		Emit("info", "story.dialogue_advanced", "", map[string]interface{}{"i": i})
	}

	recent := RecentEvents(5)
	if len(recent) != 5 {
		t.Errorf("expected 5 recent events, got %d", len(recent))
	}
	if recent[0].Fields["i"] != 5 {
		t.Errorf("expected first recent event i=5, got %v", recent[0].Fields["i"])
	}

	if all := RecentEvents(100); len(all) != 10 {
		t.Errorf("expected 10 events when requesting 100, got %d", len(all))
	}
	if zero := RecentEvents(0); len(zero) != 10 {
		t.Errorf("expected 10 events when requesting 0, got %d", len(zero))
	}
}

func TestCloseAllSubscribers(t *testing.T) {
	CloseAllSubscribers()

	sub1 := Subscribe()
	sub2 := Subscribe()

	CloseAllSubscribers()

	_, ok1 := <-sub1
	_, ok2 := <-sub2
	if ok1 || ok2 {
		t.Error("expected all channels to be closed")
	}
	if SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers after CloseAllSubscribers, got %d", SubscriberCount())
	}
}

type recordingJournal struct {
	mu     sync.Mutex
	names  []string
	failed bool
}

func (j *recordingJournal) AppendEvent(_ time.Time, _, event, _ string, _ map[string]interface{}) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.failed {
		return errors.New("journal down")
	}
	j.names = append(j.names, event)
	return nil
}

func TestJournalReceivesEvents(t *testing.T) {
	j := &recordingJournal{}
	SetJournal(j)
	defer SetJournal(nil)

	Emit("info", "profile.created", "", map[string]interface{}{"profile_id": "p1"})

	if len(j.names) != 1 || j.names[0] != "profile.created" {
		t.Errorf("expected journal to record profile.created, got %v", j.names)
	}
}

func TestJournalFailureLoggedOnce(t *testing.T) {
	Clear()
	SetJournal(&recordingJournal{failed: true})
	defer SetJournal(nil)

	Emit("info", "story.reset", "", nil)
	Emit("info", "story.reset", "", nil)

	errorsSeen := 0
	for _, e := range Snapshot() {
		if e.Name == "system.error" {
			errorsSeen++
		}
	}
	if errorsSeen != 1 {
		t.Errorf("expected exactly one system.error, got %d", errorsSeen)
	}
}
