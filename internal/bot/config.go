package bot

import (
	"time"

	"github.com/example/vocabreview/internal/quiz"
	"github.com/example/vocabreview/internal/spaced_repetition"
)

// Config represents the configuration for the bot
type Config struct {
	// Number of wrong options in a recognition question
	DistractorCount int
	// Pool and window tuning passed to the selector
	ReviewedSubsetThreshold int
	WindowFactor            int
	// Time allowed to download and grade a voice message
	VoiceTimeout time.Duration
	// Number of past sessions listed by /stats
	HistoryLimit int
	// Urgency at which a reviewed item counts as due in /stats
	DueUrgency float64
	// Users silent for IdleTimeout are dropped from memory, checked every EvictInterval.
	// Zero disables eviction.
	IdleTimeout   time.Duration
	EvictInterval time.Duration
}

// DefaultConfig returns the default bot configuration
func DefaultConfig() *Config {
	return &Config{
		DistractorCount:         quiz.DefaultDistractorCount,
		ReviewedSubsetThreshold: spaced_repetition.DefaultReviewedSubsetThreshold,
		WindowFactor:            spaced_repetition.DefaultWindowFactor,
		VoiceTimeout:            30 * time.Second,
		HistoryLimit:            5,
		DueUrgency:              60,
		IdleTimeout:             6 * time.Hour,
		EvictInterval:           10 * time.Minute,
	}
}
