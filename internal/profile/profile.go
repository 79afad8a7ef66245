// Package profile owns the kid profile: the persisted save record, typed
// partial updates, and the Manager that schedules auto-saves.
package profile

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/mdrv/python-game/internal/storage"
)

// Gateway is the durable key-value store for profiles, keyed by profile id.
// Get returns (nil, nil) when the id is unknown.
type Gateway interface {
	Init(ctx context.Context, cfg storage.Config) error
	Get(ctx context.Context, id string) (*KidProfile, error)
	Put(ctx context.Context, p *KidProfile) storage.SaveResult
	Delete(ctx context.Context, id string) error
	ListAll(ctx context.Context) ([]*KidProfile, error)
	Close() error
	IsInitialized() bool
}

// StoryState is the progress coordinates embedded in a profile.
// An empty CurrentScene means the engine is not yet positioned.
type StoryState struct {
	CurrentChapter       int               `json:"currentChapter"`
	CurrentScene         string            `json:"currentScene"`
	CurrentDialogueIndex int               `json:"currentDialogueIndex"`
	CompletedChapters    []int             `json:"completedChapters"`
	Choices              map[string]string `json:"choices"`
	CodeSubmissions      map[string]string `json:"codeSubmissions"`
}

// NewStoryState returns the initial state: chapter 1, not positioned.
func NewStoryState() StoryState {
	return StoryState{
		CurrentChapter:    1,
		CompletedChapters: []int{},
		Choices:           map[string]string{},
		CodeSubmissions:   map[string]string{},
	}
}

// HasCompleted reports whether chapterID is in CompletedChapters.
func (s *StoryState) HasCompleted(chapterID int) bool {
	for _, id := range s.CompletedChapters {
		if id == chapterID {
			return true
		}
	}
	return false
}

// MarkCompleted adds chapterID once, keeping the list sorted.
// It reports whether the chapter was newly added.
func (s *StoryState) MarkCompleted(chapterID int) bool {
	if s.HasCompleted(chapterID) {
		return false
	}
	s.CompletedChapters = append(s.CompletedChapters, chapterID)
	sort.Ints(s.CompletedChapters)
	return true
}

func (s StoryState) Clone() StoryState {
	out := s
	out.CompletedChapters = cloneInts(s.CompletedChapters)
	out.Choices = cloneMap(s.Choices)
	out.CodeSubmissions = cloneMap(s.CodeSubmissions)
	return out
}

type Settings struct {
	SoundEnabled bool   `json:"soundEnabled"`
	MusicEnabled bool   `json:"musicEnabled"`
	Language     string `json:"language"`
}

// KidProfile is the unit of persistence.
type KidProfile struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Age          int        `json:"age"`
	CreatedAt    time.Time  `json:"createdAt"`
	LastPlayedAt time.Time  `json:"lastPlayedAt"`
	Story        StoryState `json:"story"`
	Achievements []string   `json:"achievements"`
	Settings     Settings   `json:"settings"`
}

// New builds a fresh profile with a generated id and default settings.
func New(name string, age int, language string, now time.Time) *KidProfile {
	ts := now.UTC().Round(0)
	return &KidProfile{
		ID:           uuid.NewString(),
		Name:         name,
		Age:          age,
		CreatedAt:    ts,
		LastPlayedAt: ts,
		Story:        NewStoryState(),
		Achievements: []string{},
		Settings: Settings{
			SoundEnabled: true,
			MusicEnabled: true,
			Language:     language,
		},
	}
}

func (p *KidProfile) Clone() *KidProfile {
	if p == nil {
		return nil
	}
	out := *p
	out.Story = p.Story.Clone()
	if p.Achievements != nil {
		out.Achievements = append([]string{}, p.Achievements...)
	}
	return &out
}

func cloneInts(in []int) []int {
	if in == nil {
		return nil
	}
	return append([]int{}, in...)
}

func cloneMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
