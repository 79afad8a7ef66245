package mqtt

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mdrv/python-game/internal/events"
)

// MockPublisher records published messages.
type MockPublisher struct {
	mu       sync.Mutex
	messages map[string][][]byte
	err      error
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{messages: make(map[string][][]byte)}
}

func (m *MockPublisher) Publish(topic string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.messages[topic] = append(m.messages[topic], payload)
	return nil
}

func (m *MockPublisher) Messages(topic string) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.messages[topic]...)
}

func (m *MockPublisher) Total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, msgs := range m.messages {
		n += len(msgs)
	}
	return n
}

func event(name string, fields map[string]interface{}) events.Event {
	return events.Event{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     "info",
		Name:      name,
		Fields:    fields,
	}
}

func TestNotifierForwardsSelectedEvents(t *testing.T) {
	pub := NewMockPublisher()
	n := NewNotifier(pub, "bearcu")

	ok, err := n.Handle(event("profile.created", map[string]interface{}{"profile_id": "p1"}))
	if err != nil || !ok {
		t.Fatalf("expected profile.created published, got %v %v", ok, err)
	}

	// story events without an explicit profile id use the tracked one
	ok, _ = n.Handle(event("story.chapter_completed", map[string]interface{}{"chapter_id": 1}))
	if !ok {
		t.Error("expected chapter completion published")
	}

	ok, _ = n.Handle(event("story.dialogue_advanced", map[string]interface{}{"index": 2}))
	if ok {
		t.Error("dialogue advances are not forwarded")
	}

	ok, _ = n.Handle(event("autosave.status", map[string]interface{}{"status": "saving", "profile_id": "p1"}))
	if ok {
		t.Error("non-error auto-save status is not forwarded")
	}
	ok, _ = n.Handle(event("autosave.status", map[string]interface{}{"status": "error", "profile_id": "p1"}))
	if !ok {
		t.Error("expected auto-save error forwarded")
	}

	msgs := pub.Messages("bearcu/p1/events")
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages on bearcu/p1/events, got %d", len(msgs))
	}

	var note Notification
	if err := json.Unmarshal(msgs[1], &note); err != nil {
		t.Fatalf("invalid payload: %v", err)
	}
	if note.Event != "story.chapter_completed" || note.ProfileID != "p1" {
		t.Errorf("unexpected notification: %+v", note)
	}
	if note.Fields["chapter_id"] != float64(1) {
		t.Errorf("expected chapter_id 1, got %v", note.Fields["chapter_id"])
	}
}

func TestNotifierNeedsProfile(t *testing.T) {
	pub := NewMockPublisher()
	n := NewNotifier(pub, "bearcu")

	ok, err := n.Handle(event("story.chapter_completed", map[string]interface{}{"chapter_id": 1}))
	if ok || err != nil {
		t.Errorf("expected nothing published without a profile, got %v %v", ok, err)
	}

	n.Handle(event("profile.loaded", map[string]interface{}{"profile_id": "p2", "found": true}))
	n.Handle(event("profile.cleared", map[string]interface{}{"profile_id": "p2"}))
	ok, _ = n.Handle(event("story.chapter_completed", map[string]interface{}{"chapter_id": 1}))
	if ok {
		t.Error("expected nothing published after the profile was cleared")
	}

	n.Handle(event("profile.loaded", map[string]interface{}{"profile_id": "p3", "found": false}))
	ok, _ = n.Handle(event("story.chapter_completed", map[string]interface{}{"chapter_id": 1}))
	if ok {
		t.Error("a profile that was not found must not become active")
	}
	if pub.Total() != 0 {
		t.Errorf("expected no messages, got %d", pub.Total())
	}
}

func TestNotifierPublishError(t *testing.T) {
	pub := NewMockPublisher()
	pub.err = &PublishTimeoutError{Topic: "bearcu/p1/events"}
	n := NewNotifier(pub, "bearcu")

	ok, err := n.Handle(event("profile.created", map[string]interface{}{"profile_id": "p1"}))
	if ok {
		t.Error("expected publish to fail")
	}
	var timeout *PublishTimeoutError
	if !errors.As(err, &timeout) || timeout.Topic != "bearcu/p1/events" {
		t.Errorf("expected publish timeout error, got %v", err)
	}
}

func TestNotifierFollowsEventStream(t *testing.T) {
	pub := NewMockPublisher()
	n := NewNotifier(pub, "classroom")
	n.Start()
	defer n.Stop()

	events.Emit("info", "profile.created", "", map[string]interface{}{"profile_id": "kid-7"})
	events.Emit("info", "story.chapter_completed", "", map[string]interface{}{"chapter_id": 1, "profile_id": "kid-7"})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(pub.Messages("classroom/kid-7/events")) == 2 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected 2 messages, got %d", len(pub.Messages("classroom/kid-7/events")))
}

func TestNotifierStopTwice(t *testing.T) {
	n := NewNotifier(NewMockPublisher(), "classroom")
	n.Start()
	n.Stop()
	n.Stop()

	unstarted := NewNotifier(NewMockPublisher(), "classroom")
	unstarted.Stop()
	unstarted.Stop()
}
