// Package content holds the authored story catalog: chapters, scenes and
// dialogue nodes. Content is loaded once and is read-only during play.
package content

import (
	"encoding/json"
	"fmt"
)

// DialogueType discriminates the payload carried by a DialogueNode.
type DialogueType string

const (
	DialogueText          DialogueType = "dialogue"
	DialogueCodeChallenge DialogueType = "codeChallenge"
	DialogueChoice        DialogueType = "choice"
)

type Expression string

const (
	ExpressionNeutral  Expression = "neutral"
	ExpressionHappy    Expression = "happy"
	ExpressionThinking Expression = "thinking"
	ExpressionExcited  Expression = "excited"
	ExpressionConfused Expression = "confused"
	ExpressionProud    Expression = "proud"
)

type Animation string

const (
	AnimationBounce Animation = "bounce"
	AnimationShake  Animation = "shake"
	AnimationNod    Animation = "nod"
	AnimationIdle   Animation = "idle"
)

type Position string

const (
	PositionLeft   Position = "left"
	PositionCenter Position = "center"
	PositionRight  Position = "right"
)

// CharacterState tells the presentation layer how to show the speaker.
type CharacterState struct {
	CharacterID string     `json:"characterId"`
	Expression  Expression `json:"expression"`
	Position    Position   `json:"position"`
	Animation   Animation  `json:"animation,omitempty"`
	Visible     bool       `json:"visible"`
}

// Choice is a player-selectable edge to another scene of the same chapter.
type Choice struct {
	ID          string `json:"id"`
	Text        string `json:"text"`
	NextSceneID string `json:"nextSceneId"`
}

// ExpectMode is how a code challenge's output is judged.
type ExpectMode int

const (
	ExpectExact ExpectMode = iota // single expected string
	ExpectLines                   // ordered expected output lines
	ExpectAny                     // any non-empty output
)

// Expectation is the expectedOutput of a challenge: either a single string
// or an ordered list of lines.
type Expectation struct {
	Text  string
	Lines []string
	list  bool
}

func (e *Expectation) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*e = Expectation{Text: text}
		return nil
	}
	var lines []string
	if err := json.Unmarshal(data, &lines); err != nil {
		return fmt.Errorf("expectedOutput must be a string or list of strings: %w", err)
	}
	*e = Expectation{Lines: lines, list: true}
	return nil
}

func (e Expectation) MarshalJSON() ([]byte, error) {
	if e.list {
		return json.Marshal(e.Lines)
	}
	return json.Marshal(e.Text)
}

// IsList reports whether the expectation was authored as a list of lines.
func (e Expectation) IsList() bool {
	return e.list
}

// CodeChallenge is an exercise graded by an external judge.
type CodeChallenge struct {
	ID             string      `json:"id"`
	Title          string      `json:"title"`
	Description    string      `json:"description"`
	StarterCode    string      `json:"starterCode"`
	ExpectedOutput Expectation `json:"expectedOutput"`
	AllowAnyOutput bool        `json:"allowAnyOutput,omitempty"`
	Hints          []string    `json:"hints"`
	MaxAttempts    int         `json:"maxAttempts,omitempty"`
}

// Mode returns how the judge should compare output.
func (c *CodeChallenge) Mode() ExpectMode {
	switch {
	case c.AllowAnyOutput:
		return ExpectAny
	case c.ExpectedOutput.IsList():
		return ExpectLines
	default:
		return ExpectExact
	}
}

type DialogueNode struct {
	ID            string          `json:"id"`
	Type          DialogueType    `json:"type"`
	Speaker       string          `json:"speaker,omitempty"`
	Text          string          `json:"text"`
	Character     *CharacterState `json:"character,omitempty"`
	NextSceneID   string          `json:"nextSceneId,omitempty"`
	Choices       []Choice        `json:"choices,omitempty"`
	CodeChallenge *CodeChallenge  `json:"codeChallenge,omitempty"`
}

// Choice returns the choice with the given id on this node.
func (d *DialogueNode) Choice(choiceID string) (*Choice, bool) {
	for i := range d.Choices {
		if d.Choices[i].ID == choiceID {
			return &d.Choices[i], true
		}
	}
	return nil, false
}

type Scene struct {
	ID               string         `json:"id"`
	ChapterID        int            `json:"chapterId"`
	SceneNumber      int            `json:"sceneNumber"`
	Background       string         `json:"background"`
	Dialogues        []DialogueNode `json:"dialogues"`
	IsStartOfChapter bool           `json:"isStartOfChapter,omitempty"`
	IsEndOfChapter   bool           `json:"isEndOfChapter,omitempty"`
}

type Chapter struct {
	ID              int     `json:"id"`
	Title           string  `json:"title"`
	Description     string  `json:"description"`
	LearningConcept string  `json:"learningConcept"`
	Scenes          []Scene `json:"scenes"`
}

// Scene looks up a scene of this chapter by id.
func (c *Chapter) Scene(sceneID string) (*Scene, error) {
	return FindScene(c.Scenes, sceneID)
}

// StartScene returns the first scene flagged as chapter start, or the first
// scene when none is flagged. It returns nil for a chapter without scenes.
func (c *Chapter) StartScene() *Scene {
	for i := range c.Scenes {
		if c.Scenes[i].IsStartOfChapter {
			return &c.Scenes[i]
		}
	}
	if len(c.Scenes) > 0 {
		return &c.Scenes[0]
	}
	return nil
}

// FindScene looks up sceneID in an ordered scene list.
func FindScene(scenes []Scene, sceneID string) (*Scene, error) {
	for i := range scenes {
		if scenes[i].ID == sceneID {
			return &scenes[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrSceneNotFound, sceneID)
}
