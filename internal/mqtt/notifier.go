package mqtt

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/mdrv/python-game/internal/events"
)

// Publisher sends a payload to a topic. *Client satisfies it.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// Notification is the JSON body published for a forwarded event.
type Notification struct {
	Event     string                 `json:"event"`
	Timestamp string                 `json:"ts"`
	ProfileID string                 `json:"profile_id"`
	Message   string                 `json:"msg,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Notifier forwards selected events for the active profile to
// <prefix>/<profile_id>/events.
type Notifier struct {
	pub    Publisher
	prefix string

	mu        sync.Mutex
	profileID string

	sub      events.Subscriber
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewNotifier(pub Publisher, prefix string) *Notifier {
	return &Notifier{
		pub:    pub,
		prefix: prefix,
		stopCh: make(chan struct{}),
	}
}

// Topic returns the event topic for a profile.
func (n *Notifier) Topic(profileID string) string {
	return fmt.Sprintf("%s/%s/events", n.prefix, profileID)
}

// Start subscribes to the event stream and forwards in the background.
func (n *Notifier) Start() {
	n.sub = events.Subscribe()
	n.wg.Add(1)
	go n.loop(n.sub)
}

// Stop unsubscribes and waits for the forwarding goroutine to exit.
func (n *Notifier) Stop() {
	n.stopOnce.Do(func() {
		close(n.stopCh)
		if n.sub != nil {
			events.Unsubscribe(n.sub)
		}
	})
	n.wg.Wait()
}

func (n *Notifier) loop(sub events.Subscriber) {
	defer n.wg.Done()
	for {
		select {
		case <-n.stopCh:
			return
		case e, ok := <-sub:
			if !ok {
				return
			}
			if _, err := n.Handle(e); err != nil {
				log.Printf("mqtt: failed to publish %s: %v", e.Name, err)
			}
		}
	}
}

// Handle tracks the active profile and publishes e if it is forwarded.
// It reports whether a message was published.
func (n *Notifier) Handle(e events.Event) (bool, error) {
	id, _ := e.Fields["profile_id"].(string)

	n.mu.Lock()
	switch e.Name {
	case "profile.created", "profile.loaded":
		if found, ok := e.Fields["found"].(bool); ok && !found {
			n.profileID = ""
		} else if id != "" {
			n.profileID = id
		}
	case "profile.cleared", "profile.deleted":
		if id == n.profileID {
			n.profileID = ""
		}
	}
	if id == "" {
		id = n.profileID
	}
	n.mu.Unlock()

	if !forwarded(e) || id == "" {
		return false, nil
	}

	payload, err := json.Marshal(Notification{
		Event:     e.Name,
		Timestamp: e.Timestamp,
		ProfileID: id,
		Message:   e.Message,
		Fields:    e.Fields,
	})
	if err != nil {
		return false, err
	}

	topic := n.Topic(id)
	if err := n.pub.Publish(topic, payload); err != nil {
		return false, err
	}
	events.Emit("info", "notify.published", "", map[string]interface{}{
		"topic": topic,
		"event": e.Name,
	})
	return true, nil
}

func forwarded(e events.Event) bool {
	switch e.Name {
	case "story.chapter_completed", "profile.created":
		return true
	case "autosave.status":
		return e.Fields["status"] == "error"
	}
	return false
}
