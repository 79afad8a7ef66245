package events

import "fmt"

var allowedEvents = map[string]struct{}{
	// story
	"story.chapter_loaded":    {},
	"story.scene_started":     {},
	"story.dialogue_advanced": {},
	"story.chapter_completed": {},
	"story.choice_recorded":   {},
	"story.code_submitted":    {},
	"story.terminal":          {},
	"story.reset":             {},
	"story.resumed":           {},

	// profile
	"profile.created": {},
	"profile.loaded":  {},
	"profile.updated": {},
	"profile.cleared": {},
	"profile.deleted": {},

	// autosave
	"autosave.status": {},

	// storage
	"storage.unavailable": {},
	"storage.error":       {},

	// notify
	"notify.published": {},

	// system
	"system.startup":  {},
	"system.shutdown": {},
	"system.error":    {},
}

func Validate(event string) error {
	if _, ok := allowedEvents[event]; !ok {
		return fmt.Errorf("unknown event: %s", event)
	}
	return nil
}
