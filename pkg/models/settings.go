package models

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrInvalidSessionSize is returned for session sizes that are neither "ALL" nor a positive integer.
var ErrInvalidSessionSize = errors.New("models: invalid session size")

// SessionSize is a number of items per session or SessionSizeAll.
type SessionSize int

// SessionSizeAll asks for every eligible item of the level.
const SessionSizeAll SessionSize = -1

// DefaultSessionSize is the number of items in a session unless configured otherwise.
const DefaultSessionSize SessionSize = 20

// IsAll reports whether s is the "ALL" sentinel.
func (s SessionSize) IsAll() bool {
	return s == SessionSizeAll
}

func (s SessionSize) String() string {
	if s.IsAll() {
		return "ALL"
	}
	return strconv.Itoa(int(s))
}

// ParseSessionSize accepts "ALL" (any case) or a positive integer.
func ParseSessionSize(v string) (SessionSize, error) {
	v = strings.TrimSpace(v)
	if strings.EqualFold(v, "all") {
		return SessionSizeAll, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, errors.Wrapf(ErrInvalidSessionSize, "%q", v)
	}
	return SessionSize(n), nil
}

// SessionConfig is the caller-supplied session setup.
type SessionConfig struct {
	SessionSize         SessionSize `json:"session_size"`
	HideRecentlyCorrect bool        `json:"hide_recently_correct"`
	Mode                ReviewMode  `json:"mode"`
}

// DefaultSessionConfig returns the configuration used for users without saved settings.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		SessionSize:         DefaultSessionSize,
		HideRecentlyCorrect: false,
		Mode:                Recognition,
	}
}

// UserSettings is what a user last chose, stored per user.
type UserSettings struct {
	UserID              int64
	Level               int
	SessionSize         SessionSize
	HideRecentlyCorrect bool
	Mode                ReviewMode
	NotifyEnabled       bool
}

// SessionConfig extracts the session part of the settings.
func (s UserSettings) SessionConfig() SessionConfig {
	return SessionConfig{
		SessionSize:         s.SessionSize,
		HideRecentlyCorrect: s.HideRecentlyCorrect,
		Mode:                s.Mode,
	}
}

// DefaultUserSettings returns the settings of a user that never changed anything.
func DefaultUserSettings(userID int64) UserSettings {
	cfg := DefaultSessionConfig()
	return UserSettings{
		UserID:              userID,
		Level:               1,
		SessionSize:         cfg.SessionSize,
		HideRecentlyCorrect: cfg.HideRecentlyCorrect,
		Mode:                cfg.Mode,
		NotifyEnabled:       true,
	}
}
