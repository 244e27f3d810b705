// Package flow drives one generation cycle per user action and keeps the
// per-session composer state the UI renders from.
package flow

import (
	"strings"

	"github.com/BTreeMap/PostCraft/internal/models"
)

// UserErrorMessage is the only failure text ever shown to the user.
const UserErrorMessage = "Failed to generate post. Please try again."

// State is the composer state of one UI session.
type State struct {
	Prompt     string
	Platform   models.Platform
	Generating bool
	Post       *models.Post
	Error      string
}

// CanSubmit reports whether the submit control is enabled.
func (s State) CanSubmit() bool {
	return s.Prompt != "" && s.Platform != "" && !s.Generating
}

// Begin marks a generation cycle as in flight and clears the previous outcome.
func (s *State) Begin() {
	s.Generating = true
	s.Error = ""
	s.Post = nil
}

// Finish records the outcome of a generation cycle.
func (s *State) Finish(post *models.Post, err error) {
	s.Generating = false
	if err != nil {
		s.Error = UserErrorMessage
		s.Post = nil
		return
	}
	s.Error = ""
	s.Post = post
}

// SetInput updates the composer fields. Unknown platforms clear the selection.
func (s *State) SetInput(prompt, platform string) {
	s.Prompt = strings.TrimSpace(prompt)
	p, err := models.ParsePlatform(platform)
	if err != nil {
		s.Platform = ""
		return
	}
	s.Platform = p
}

// Clone returns a copy safe to hand outside the session lock.
func (s State) Clone() State {
	if s.Post != nil {
		p := *s.Post
		s.Post = &p
	}
	return s
}
