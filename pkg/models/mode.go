package models

import (
	"strings"

	"github.com/pkg/errors"
)

// ErrUnknownMode is returned when a review mode name cannot be parsed.
var ErrUnknownMode = errors.New("models: unknown review mode")

// ReviewMode is an independent skill track for the same Item.
type ReviewMode int

const (
	// Recognition is the multiple-choice meaning quiz
	Recognition ReviewMode = iota
	// Speaking is pronunciation checked by the assessor
	Speaking
	// Translation is a typed meaning
	Translation
)

// ReviewModes lists every mode in declaration order.
var ReviewModes = []ReviewMode{Recognition, Speaking, Translation}

func (m ReviewMode) String() string {
	switch m {
	case Recognition:
		return "recognition"
	case Speaking:
		return "speaking"
	case Translation:
		return "translation"
	}
	return "unknown"
}

// Valid reports whether m is one of the declared modes.
func (m ReviewMode) Valid() bool {
	return m >= Recognition && m <= Translation
}

// ParseReviewMode converts a mode name (case-insensitive) back to a ReviewMode.
// "quiz" is accepted as an alias for recognition.
func ParseReviewMode(s string) (ReviewMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "recognition", "quiz":
		return Recognition, nil
	case "speaking":
		return Speaking, nil
	case "translation":
		return Translation, nil
	}
	return Recognition, errors.Wrapf(ErrUnknownMode, "%q", s)
}
