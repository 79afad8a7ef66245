// Package story is the progression engine: it walks a player through the
// chapters, scenes and dialogue nodes of a content catalog and records the
// choices, code submissions and completed chapters along the way.
package story

import (
	"fmt"

	"github.com/mdrv/python-game/internal/content"
	"github.com/mdrv/python-game/internal/events"
	"github.com/mdrv/python-game/internal/profile"
)

// Lookup failures raised during play. Each wraps content.ErrNotFound.
var (
	ErrNoScene            = &lookupError{msg: "no scene loaded"}
	ErrDialogueOutOfRange = &lookupError{msg: "dialogue index out of range"}
	ErrChoiceNotFound     = &lookupError{msg: "choice not found"}
)

type lookupError struct{ msg string }

func (e *lookupError) Error() string { return e.msg }
func (e *lookupError) Unwrap() error { return content.ErrNotFound }

// Step is the transition taken by NextDialogue.
type Step int

const (
	StepAdvanced Step = iota
	StepSceneChanged
	StepChapterCompleted
	StepTerminal
)

func (s Step) String() string {
	switch s {
	case StepAdvanced:
		return "advanced"
	case StepSceneChanged:
		return "scene_changed"
	case StepChapterCompleted:
		return "chapter_completed"
	case StepTerminal:
		return "terminal"
	default:
		return fmt.Sprintf("Step(%d)", int(s))
	}
}

// ProgressSink receives every position change. The profile Manager
// satisfies it.
type ProgressSink interface {
	UpdateStoryProgress(u profile.StoryUpdate) error
}

// Engine is the story state machine. Its state is the StoryState tuple;
// the current scene and dialogue are derived from it. An Engine is not safe
// for concurrent use.
type Engine struct {
	catalog   *content.Catalog
	sink      ProgressSink
	profileID string

	state    profile.StoryState
	scene    *content.Scene
	dialogue *content.DialogueNode
}

// NewEngine returns an engine in the initial state. sink may be nil.
func NewEngine(catalog *content.Catalog, sink ProgressSink) *Engine {
	return &Engine{
		catalog: catalog,
		sink:    sink,
		state:   profile.NewStoryState(),
	}
}

// SetProfileID tags emitted events with the player's profile id.
func (e *Engine) SetProfileID(id string) {
	e.profileID = id
}

// LoadChapter makes chapterID current and clears the scene position and
// the choice record. An unknown chapter leaves the state unchanged.
func (e *Engine) LoadChapter(chapterID int) error {
	if _, err := e.catalog.Chapter(chapterID); err != nil {
		return err
	}

	e.state.CurrentChapter = chapterID
	e.state.CurrentScene = ""
	e.state.CurrentDialogueIndex = 0
	e.state.Choices = map[string]string{}
	e.scene = nil
	e.dialogue = nil

	e.emit("story.chapter_loaded", map[string]interface{}{"chapter_id": chapterID})
	e.push(profile.StoryUpdate{
		CurrentChapter:       profile.Ptr(chapterID),
		CurrentScene:         profile.Ptr(""),
		CurrentDialogueIndex: profile.Ptr(0),
		Choices:              map[string]string{},
	})
	return nil
}

// LoadScene finds sceneID in scenes, makes it current and positions on its
// first dialogue. An unknown scene leaves the state unchanged.
func (e *Engine) LoadScene(sceneID string, scenes []content.Scene) error {
	scene, err := content.FindScene(scenes, sceneID)
	if err != nil {
		return err
	}

	e.scene = scene
	e.state.CurrentScene = sceneID
	e.state.CurrentDialogueIndex = 0
	e.dialogue = nil
	if len(scene.Dialogues) > 0 {
		e.dialogue = &scene.Dialogues[0]
	}

	e.emit("story.scene_started", map[string]interface{}{
		"chapter_id": e.state.CurrentChapter,
		"scene_id":   sceneID,
	})
	e.push(profile.StoryUpdate{
		CurrentScene:         profile.Ptr(sceneID),
		CurrentDialogueIndex: profile.Ptr(0),
	})
	return nil
}

// LoadDialogue positions on dialogue index of the current scene.
// Out-of-range requests leave the state unchanged.
func (e *Engine) LoadDialogue(index int) error {
	if e.scene == nil {
		return ErrNoScene
	}
	if index < 0 || index >= len(e.scene.Dialogues) {
		return fmt.Errorf("%w: %d of %d in %s", ErrDialogueOutOfRange, index, len(e.scene.Dialogues), e.scene.ID)
	}

	e.state.CurrentDialogueIndex = index
	e.dialogue = &e.scene.Dialogues[index]

	e.emit("story.dialogue_advanced", map[string]interface{}{
		"scene_id":    e.scene.ID,
		"index":       index,
		"dialogue_id": e.dialogue.ID,
	})
	e.push(profile.StoryUpdate{CurrentDialogueIndex: profile.Ptr(index)})
	return nil
}

// NextDialogue takes the first applicable transition: the next dialogue of
// the scene, then the current node's scene edge, then completion of an
// end-of-chapter scene. With none left it reports StepTerminal and changes
// nothing.
func (e *Engine) NextDialogue() (Step, error) {
	if e.scene == nil {
		return StepTerminal, ErrNoScene
	}

	if next := e.state.CurrentDialogueIndex + 1; next < len(e.scene.Dialogues) {
		if err := e.LoadDialogue(next); err != nil {
			return StepTerminal, err
		}
		return StepAdvanced, nil
	}

	if e.dialogue != nil && e.dialogue.NextSceneID != "" {
		ch, err := e.catalog.Chapter(e.state.CurrentChapter)
		if err != nil {
			return StepTerminal, err
		}
		if err := e.LoadScene(e.dialogue.NextSceneID, ch.Scenes); err != nil {
			return StepTerminal, err
		}
		return StepSceneChanged, nil
	}

	if e.scene.IsEndOfChapter {
		e.CompleteChapter()
		return StepChapterCompleted, nil
	}

	e.emit("story.terminal", map[string]interface{}{
		"scene_id": e.scene.ID,
		"index":    e.state.CurrentDialogueIndex,
	})
	return StepTerminal, nil
}

// CompleteChapter marks the current chapter complete. It reports whether
// the chapter was newly added.
func (e *Engine) CompleteChapter() bool {
	if !e.state.MarkCompleted(e.state.CurrentChapter) {
		return false
	}
	e.emit("story.chapter_completed", map[string]interface{}{"chapter_id": e.state.CurrentChapter})
	e.push(profile.StoryUpdate{CompletedChapters: e.state.CompletedChapters})
	return true
}

// RecordChoice stores choiceID as the selection made in sceneID,
// overwriting any earlier one. It does not change scene.
func (e *Engine) RecordChoice(sceneID, choiceID string) {
	if e.state.Choices == nil {
		e.state.Choices = map[string]string{}
	}
	e.state.Choices[sceneID] = choiceID

	e.emit("story.choice_recorded", map[string]interface{}{
		"scene_id":  sceneID,
		"choice_id": choiceID,
	})
	e.push(profile.StoryUpdate{Choices: e.state.Choices})
}

// RecordCodeSubmission stores the latest code submitted for a challenge.
func (e *Engine) RecordCodeSubmission(challengeID, code string) {
	if e.state.CodeSubmissions == nil {
		e.state.CodeSubmissions = map[string]string{}
	}
	e.state.CodeSubmissions[challengeID] = code

	e.emit("story.code_submitted", map[string]interface{}{
		"challenge_id": challengeID,
		"code":         code,
	})
	e.push(profile.StoryUpdate{CodeSubmissions: e.state.CodeSubmissions})
}

// Choose records choiceID on the current choice node and moves to the
// scene it targets.
func (e *Engine) Choose(choiceID string) error {
	if e.scene == nil {
		return ErrNoScene
	}
	if e.dialogue == nil {
		return fmt.Errorf("%w: %s", ErrChoiceNotFound, choiceID)
	}
	choice, ok := e.dialogue.Choice(choiceID)
	if !ok {
		return fmt.Errorf("%w: %s on %s", ErrChoiceNotFound, choiceID, e.dialogue.ID)
	}
	ch, err := e.catalog.Chapter(e.state.CurrentChapter)
	if err != nil {
		return err
	}
	if _, err := ch.Scene(choice.NextSceneID); err != nil {
		return err
	}

	e.RecordChoice(e.scene.ID, choiceID)
	return e.LoadScene(choice.NextSceneID, ch.Scenes)
}

// StartChapter loads chapterID and positions on its start scene.
func (e *Engine) StartChapter(chapterID int) error {
	if err := e.LoadChapter(chapterID); err != nil {
		return err
	}
	ch, err := e.catalog.Chapter(chapterID)
	if err != nil {
		return err
	}
	start := ch.StartScene()
	if start == nil {
		return fmt.Errorf("%w: chapter %d has no scenes", content.ErrSceneNotFound, chapterID)
	}
	return e.LoadScene(start.ID, ch.Scenes)
}

// ResetStory restores the initial state and clears the derived position.
func (e *Engine) ResetStory() {
	e.state = profile.NewStoryState()
	e.scene = nil
	e.dialogue = nil

	e.emit("story.reset", nil)
	e.push(profile.StoryUpdate{
		CurrentChapter:       profile.Ptr(e.state.CurrentChapter),
		CurrentScene:         profile.Ptr(""),
		CurrentDialogueIndex: profile.Ptr(0),
		CompletedChapters:    []int{},
		Choices:              map[string]string{},
		CodeSubmissions:      map[string]string{},
	})
}

// Resume adopts a saved StoryState and re-derives the current scene and
// dialogue from it. Nothing is pushed to the sink. On error the engine
// keeps its previous state.
func (e *Engine) Resume(saved profile.StoryState) error {
	st := saved.Clone()
	if st.CompletedChapters == nil {
		st.CompletedChapters = []int{}
	}
	if st.Choices == nil {
		st.Choices = map[string]string{}
	}
	if st.CodeSubmissions == nil {
		st.CodeSubmissions = map[string]string{}
	}

	var scene *content.Scene
	var dialogue *content.DialogueNode
	if st.CurrentScene != "" {
		ch, err := e.catalog.Chapter(st.CurrentChapter)
		if err != nil {
			return err
		}
		scene, err = ch.Scene(st.CurrentScene)
		if err != nil {
			return err
		}
		if st.CurrentDialogueIndex < 0 || st.CurrentDialogueIndex >= len(scene.Dialogues) {
			return fmt.Errorf("%w: %d of %d in %s", ErrDialogueOutOfRange, st.CurrentDialogueIndex, len(scene.Dialogues), scene.ID)
		}
		dialogue = &scene.Dialogues[st.CurrentDialogueIndex]
	} else {
		st.CurrentDialogueIndex = 0
	}

	e.state = st
	e.scene = scene
	e.dialogue = dialogue

	e.emit("story.resumed", map[string]interface{}{
		"chapter_id": st.CurrentChapter,
		"scene_id":   st.CurrentScene,
		"index":      st.CurrentDialogueIndex,
	})
	return nil
}

// State returns a copy of the current StoryState.
func (e *Engine) State() profile.StoryState {
	return e.state.Clone()
}

// CurrentScene returns the loaded scene, or nil.
func (e *Engine) CurrentScene() *content.Scene {
	return e.scene
}

// CurrentDialogue returns the node at the current index, or nil.
func (e *Engine) CurrentDialogue() *content.DialogueNode {
	return e.dialogue
}

// IsChapterComplete reports whether the current chapter has been completed.
func (e *Engine) IsChapterComplete() bool {
	return e.state.HasCompleted(e.state.CurrentChapter)
}

// ActiveChapter returns the current chapter, or nil if the catalog lacks it.
func (e *Engine) ActiveChapter() *content.Chapter {
	ch, err := e.catalog.Chapter(e.state.CurrentChapter)
	if err != nil {
		return nil
	}
	return ch
}

// CurrentChallenge returns the code challenge on the current node and the
// last code submitted for it.
func (e *Engine) CurrentChallenge() (*content.CodeChallenge, string, bool) {
	if e.dialogue == nil || e.dialogue.Type != content.DialogueCodeChallenge || e.dialogue.CodeChallenge == nil {
		return nil, "", false
	}
	c := e.dialogue.CodeChallenge
	return c, e.state.CodeSubmissions[c.ID], true
}

func (e *Engine) emit(name string, fields map[string]interface{}) {
	if e.profileID != "" {
		if fields == nil {
			fields = map[string]interface{}{}
		}
		fields["profile_id"] = e.profileID
	}
	events.Emit("info", name, "", fields)
}

// push forwards a delta to the sink. The sink reports its own failures.
func (e *Engine) push(u profile.StoryUpdate) {
	if e.sink == nil {
		return
	}
	_ = e.sink.UpdateStoryProgress(u)
}
