package content

import (
	"fmt"
	"sort"
)

// Catalog is the in-memory content repository. It is populated before play
// and only read afterwards, so lookups take no lock.
type Catalog struct {
	chapters map[int]*Chapter
	order    []int
}

func NewCatalog() *Catalog {
	return &Catalog{chapters: make(map[int]*Chapter)}
}

// SetChapter registers or replaces a chapter.
func (c *Catalog) SetChapter(ch Chapter) {
	if _, ok := c.chapters[ch.ID]; !ok {
		c.order = append(c.order, ch.ID)
		sort.Ints(c.order)
	}
	stored := ch
	c.chapters[ch.ID] = &stored
}

// Chapter returns the chapter with the given id.
func (c *Catalog) Chapter(id int) (*Chapter, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: %d", ErrChapterNotFound, id)
	}
	ch, ok := c.chapters[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrChapterNotFound, id)
	}
	return ch, nil
}

// Chapters returns chapter ids in ascending order.
func (c *Catalog) Chapters() []int {
	return append([]int(nil), c.order...)
}

// Validate checks every chapter's internal references. Dangling scene edges
// are authoring errors and are reported here rather than during play.
func (c *Catalog) Validate() error {
	var problems []string
	for _, id := range c.order {
		problems = append(problems, validateChapter(c.chapters[id])...)
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func validateChapter(ch *Chapter) []string {
	var problems []string
	add := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf("chapter %d: ", ch.ID)+fmt.Sprintf(format, args...))
	}

	if len(ch.Scenes) == 0 {
		add("has no scenes")
		return problems
	}

	sceneIDs := make(map[string]struct{}, len(ch.Scenes))
	for _, s := range ch.Scenes {
		if s.ID == "" {
			add("scene %d has empty id", s.SceneNumber)
			continue
		}
		if _, dup := sceneIDs[s.ID]; dup {
			add("duplicate scene id %s", s.ID)
		}
		sceneIDs[s.ID] = struct{}{}
	}

	resolves := func(target string) bool {
		_, ok := sceneIDs[target]
		return ok
	}

	for _, s := range ch.Scenes {
		if s.ChapterID != ch.ID {
			add("scene %s belongs to chapter %d", s.ID, s.ChapterID)
		}
		if len(s.Dialogues) == 0 {
			add("scene %s has no dialogues", s.ID)
		}
		for _, d := range s.Dialogues {
			if d.NextSceneID != "" && !resolves(d.NextSceneID) {
				add("dialogue %s: nextSceneId %s does not exist", d.ID, d.NextSceneID)
			}
			switch d.Type {
			case DialogueText:
			case DialogueChoice:
				if len(d.Choices) == 0 {
					add("choice dialogue %s has no choices", d.ID)
				}
				for _, choice := range d.Choices {
					if !resolves(choice.NextSceneID) {
						add("dialogue %s: choice %s targets missing scene %s", d.ID, choice.ID, choice.NextSceneID)
					}
				}
			case DialogueCodeChallenge:
				if d.CodeChallenge == nil {
					add("code challenge dialogue %s has no challenge", d.ID)
				} else if d.CodeChallenge.ID == "" {
					add("code challenge dialogue %s has challenge without id", d.ID)
				}
			default:
				add("dialogue %s has unknown type %q", d.ID, d.Type)
			}
		}
	}
	return problems
}
