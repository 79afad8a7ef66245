package content

import (
	"errors"
	"strings"
)

// ErrNotFound is wrapped by every lookup failure against the catalog.
var ErrNotFound = errors.New("content not found")

var (
	ErrChapterNotFound = &notFound{what: "chapter not found"}
	ErrSceneNotFound   = &notFound{what: "scene not found"}
)

type notFound struct{ what string }

func (e *notFound) Error() string { return e.what }
func (e *notFound) Unwrap() error { return ErrNotFound }

// ValidationError lists every authoring problem found when loading content.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid content: " + strings.Join(e.Problems, "; ")
}
