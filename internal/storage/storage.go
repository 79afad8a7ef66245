// Package storage defines the persistence gateway's configuration, results
// and error taxonomy shared by every backend.
package storage

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

var (
	// ErrUnavailable means the platform has no usable durable storage.
	// Story playback continues without saving.
	ErrUnavailable = errors.New("storage unavailable")

	// ErrNotInitialized is returned by operations issued before Init.
	ErrNotInitialized = errors.New("storage not initialized")
)

// Error is a failed read, write or delete. It is recoverable: the next
// scheduled auto-save or a forced save retries it.
type Error struct {
	Op  string
	ID  string
	Err error
}

func (e *Error) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.ID, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Config names the database and the profile store inside it.
type Config struct {
	Name    string
	Version int
	Store   string
}

var identRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// WithDefaults fills unset fields with bearcu-vn / 1 / kid_profiles.
func (c Config) WithDefaults() Config {
	if c.Name == "" {
		c.Name = "bearcu-vn"
	}
	if c.Version <= 0 {
		c.Version = 1
	}
	if c.Store == "" {
		c.Store = "kid_profiles"
	}
	return c
}

// Validate rejects store names that cannot be used as SQL identifiers.
func (c Config) Validate() error {
	if !identRe.MatchString(c.Store) {
		return fmt.Errorf("invalid store name %q", c.Store)
	}
	return nil
}

// SaveResult is the outcome of a put. Timestamp is stamped by the gateway.
type SaveResult struct {
	Success   bool
	Error     string
	Timestamp time.Time
}

// Saved returns a successful result stamped now.
func Saved() SaveResult {
	return SaveResult{Success: true, Timestamp: time.Now().UTC()}
}

// Failed returns a failed result carrying err's message.
func Failed(err error) SaveResult {
	return SaveResult{Error: err.Error(), Timestamp: time.Now().UTC()}
}
