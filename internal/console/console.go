// Package console reaches the interactive desktop from an isolated service
// process. A background service runs outside the console user's session and
// cannot see or drive the interactive desktop directly; the Switcher
// temporarily adopts the console user's security context and attaches the
// calling thread to the active input desktop for the duration of one
// operation.
package console

import (
	"errors"

	"github.com/openctrol/agent/internal/logging"
)

var log = logging.L("console")

// ErrContextUnavailable is returned when no interactive session exists or the
// console user's security context cannot be obtained. The call performs no
// partial mutation when it fails with this error.
var ErrContextUnavailable = errors.New("console: interactive desktop context unavailable")

// State describes what is currently shown on the physical console.
type State int

const (
	StateUnlocked State = iota
	StateLoginScreen
	StateLocked
)

func (s State) String() string {
	switch s {
	case StateUnlocked:
		return "unlocked"
	case StateLoginScreen:
		return "login-screen"
	case StateLocked:
		return "locked"
	default:
		return "unknown"
	}
}

// Switcher acquires a scoped desktop context for the calling goroutine.
//
// Context adoption is thread-scoped on Windows, so With pins the goroutine to
// its OS thread, applies the context, runs fn, and releases everything on all
// exit paths. Different goroutines may call With concurrently (nothing is
// shared), but With must not be called reentrantly from within fn.
type Switcher interface {
	// With runs fn with the console user's context applied to the calling
	// thread. Returns ErrContextUnavailable (possibly wrapped) when the
	// context cannot be acquired; otherwise returns fn's error.
	With(state State, fn func() error) error

	// Detect resolves the current console state (login screen, locked, or
	// unlocked desktop).
	Detect() State
}

// NewSwitcher returns the platform switcher. On platforms without session
// isolation it is a passthrough that runs fn directly.
func NewSwitcher() Switcher {
	return newPlatformSwitcher()
}
