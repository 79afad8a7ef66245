package profile

import "time"

// Update is a shallow, top-level partial update of a profile. Nil fields are
// left untouched. The id and creation time are never updated.
type Update struct {
	Name         *string
	Age          *int
	LastPlayedAt *time.Time
	Story        *StoryState
	Achievements *[]string
	Settings     *Settings
}

func (u Update) apply(p *KidProfile) {
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.Age != nil {
		p.Age = *u.Age
	}
	if u.LastPlayedAt != nil {
		p.LastPlayedAt = u.LastPlayedAt.UTC().Round(0)
	}
	if u.Story != nil {
		p.Story = u.Story.Clone()
	}
	if u.Achievements != nil {
		p.Achievements = append([]string{}, (*u.Achievements)...)
	}
	if u.Settings != nil {
		p.Settings = *u.Settings
	}
}

// StoryUpdate is a shallow partial update of a StoryState. Scalar fields are
// set when non-nil; slices and maps replace the stored value when non-nil.
type StoryUpdate struct {
	CurrentChapter       *int
	CurrentScene         *string
	CurrentDialogueIndex *int
	CompletedChapters    []int
	Choices              map[string]string
	CodeSubmissions      map[string]string
}

// Apply merges u into s.
func (u StoryUpdate) Apply(s *StoryState) {
	if u.CurrentChapter != nil {
		s.CurrentChapter = *u.CurrentChapter
	}
	if u.CurrentScene != nil {
		s.CurrentScene = *u.CurrentScene
	}
	if u.CurrentDialogueIndex != nil {
		s.CurrentDialogueIndex = *u.CurrentDialogueIndex
	}
	if u.CompletedChapters != nil {
		s.CompletedChapters = cloneInts(u.CompletedChapters)
	}
	if u.Choices != nil {
		s.Choices = cloneMap(u.Choices)
	}
	if u.CodeSubmissions != nil {
		s.CodeSubmissions = cloneMap(u.CodeSubmissions)
	}
}

// Ptr returns a pointer to v, for filling update fields.
func Ptr[T any](v T) *T {
	return &v
}
