package desktop

import (
	"errors"
	"image"
	"time"
)

// ErrCaptureUnsupported is returned when screen capture is not available on
// this platform.
var ErrCaptureUnsupported = errors.New("desktop: screen capture not supported on this platform")

// ScreenCapturer grabs pixel regions of the virtual desktop. Implementations
// keep their capture surfaces (device contexts, bitmaps, pixel buffers)
// alive across calls; Close releases them. A capturer is owned by a single
// goroutine and is not safe for concurrent use.
type ScreenCapturer interface {
	// CaptureRegion captures the given virtual-desktop rectangle. It may
	// return (nil, nil) when no frame is momentarily obtainable; the caller
	// skips that frame and tries again on the next tick. A failure that
	// persists past the grace window is returned as an error instead.
	CaptureRegion(x, y, width, height int) (*image.RGBA, error)

	// Close releases capture surfaces.
	Close() error
}

// NewScreenCapturer creates the platform capturer.
func NewScreenCapturer() (ScreenCapturer, error) {
	return newPlatformCapturer()
}

// Capture fails transiently around secure-desktop transitions, so the first
// few consecutive failures are absorbed as frame skips. Past the grace count
// the failure is no longer plausibly transient and must surface as an error,
// which feeds the engine's degraded accounting.
const (
	captureFailureGrace = 3
	failureLogInterval  = 2 * time.Second
)

// failureGate tracks consecutive capture failures and decides, per failure,
// whether to keep skipping or to surface an error, and whether to log it
// (throttled to failureLogInterval).
type failureGate struct {
	consecutive int
	lastLog     time.Time
}

func (g *failureGate) success() { g.consecutive = 0 }

func (g *failureGate) fail(now time.Time) (surface, logIt bool) {
	g.consecutive++
	if g.consecutive == 1 || now.Sub(g.lastLog) >= failureLogInterval {
		g.lastLog = now
		logIt = true
	}
	return g.consecutive > captureFailureGrace, logIt
}
