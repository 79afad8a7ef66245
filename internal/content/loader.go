package content

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// ChapterFile is the on-disk envelope of one chapter.
type ChapterFile struct {
	Version int     `json:"version"`
	Chapter Chapter `json:"chapter"`
}

// LoadChapter loads a single chapter from a JSON file.
func LoadChapter(path string) (*Chapter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read chapter file: %w", err)
	}

	var cf ChapterFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("failed to parse chapter JSON %s: %w", filepath.Base(path), err)
	}

	if cf.Version != 1 {
		return nil, fmt.Errorf("unsupported chapter file version: %d", cf.Version)
	}

	return &cf.Chapter, nil
}

// LoadCatalog loads every *.json chapter in dir and validates the result.
func LoadCatalog(dir string) (*Catalog, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to list chapters: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no chapter files in %s", dir)
	}
	sort.Strings(paths)

	cat := NewCatalog()
	for _, p := range paths {
		ch, err := LoadChapter(p)
		if err != nil {
			return nil, err
		}
		if _, err := cat.Chapter(ch.ID); err == nil {
			return nil, fmt.Errorf("duplicate chapter id %d in %s", ch.ID, filepath.Base(p))
		}
		cat.SetChapter(*ch)
	}

	if err := cat.Validate(); err != nil {
		return nil, err
	}
	return cat, nil
}
