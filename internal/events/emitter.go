// Package events is the player's structured event log: every story, profile
// and auto-save transition is emitted here, kept in a ring buffer, fanned out
// to subscribers and optionally appended to a durable journal.
package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Journal persists emitted events. The postgres gateway implements it.
type Journal interface {
	AppendEvent(ts time.Time, level, event, msg string, fields map[string]interface{}) error
}

var buffer = NewRingBuffer(256)

var (
	journal            Journal
	journalMu          sync.RWMutex
	journalErrorLogged bool
)

// SetJournal sets the durable journal. A nil journal disables persistence.
func SetJournal(j Journal) {
	journalMu.Lock()
	journal = j
	journalErrorLogged = false
	journalMu.Unlock()
}

type Event struct {
	Timestamp string                 `json:"ts"`
	Level     string                 `json:"level"`
	Name      string                 `json:"event"`
	Message   string                 `json:"msg,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

func Emit(level, name, msg string, fields map[string]interface{}) ([]byte, error) {
	if err := Validate(name); err != nil {
		return nil, err
	}

	ts := time.Now().UTC()
	e := Event{
		Timestamp: ts.Format(time.RFC3339Nano),
		Level:     level,
		Name:      name,
		Message:   msg,
		Fields:    fields,
	}

	buffer.Add(e)
	broadcast(e)

	journalMu.RLock()
	j := journal
	journalMu.RUnlock()

	if j != nil {
		if err := j.AppendEvent(ts, level, name, msg, fields); err != nil {
			// Reported once, straight into the buffer: going through Emit
			// again would recurse while the journal keeps failing.
			journalMu.Lock()
			first := !journalErrorLogged
			journalErrorLogged = true
			journalMu.Unlock()
			if first {
				buffer.Add(Event{
					Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
					Level:     "error",
					Name:      "system.error",
					Message:   "journal append failed",
					Fields:    map[string]interface{}{"error": err.Error()},
				})
			}
		}
	}

	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	return b, nil
}

func Snapshot() []Event {
	return buffer.Snapshot()
}

// Clear resets the event buffer. Used for testing.
func Clear() {
	buffer.Clear()
}
