package desktop

import (
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/openctrol/agent/internal/console"
)

// degradedThreshold is the number of consecutive capture failures after which
// the engine reports itself degraded. A single success clears it.
const degradedThreshold = 5

var (
	ErrEngineRunning = errors.New("desktop: engine already running")
	ErrEngineStopped = errors.New("desktop: engine stopped")
)

// EngineConfig configures the capture engine.
type EngineConfig struct {
	TargetFPS   int // frames per second the loop paces to (1-60)
	JPEGQuality int // 1-100
}

// Status is a point-in-time snapshot of the engine.
type Status struct {
	Running         bool      `json:"running"`
	Degraded        bool      `json:"degraded"`
	ConsoleState    string    `json:"console_state"`
	CurrentMonitor  string    `json:"current_monitor"`
	FramesPublished uint64    `json:"frames_published"`
	Subscribers     int       `json:"subscribers"`
	LastFrameAt     time.Time `json:"last_frame_at,omitempty"`
}

// Engine drives the capture loop: it resolves the selected monitor, acquires
// the right console context for the frame, captures and encodes it, and
// publishes the result to the distributor. One engine serves all sessions.
type Engine struct {
	registry *Registry
	capturer ScreenCapturer
	switcher console.Switcher
	dist     *Distributor

	targetFPS int
	quality   atomic.Int32

	running  atomic.Bool
	degraded atomic.Bool

	framesPublished atomic.Uint64
	lastFrame       atomic.Int64 // unix nanos, 0 = never
	lastState       atomic.Int32 // console.State of the most recent frame

	mu      sync.Mutex // guards start/stop transitions
	stopped bool       // Stop closed the capturer; the engine cannot restart
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewEngine wires the engine from its collaborators. Any of capturer and
// switcher may come from platform constructors or test fakes.
func NewEngine(cfg EngineConfig, reg *Registry, cap ScreenCapturer, sw console.Switcher, dist *Distributor) *Engine {
	fps := cfg.TargetFPS
	if fps < 1 {
		fps = 15
	}
	if fps > 60 {
		fps = 60
	}
	e := &Engine{
		registry:  reg,
		capturer:  cap,
		switcher:  sw,
		dist:      dist,
		targetFPS: fps,
	}
	q := cfg.JPEGQuality
	if q < 1 || q > 100 {
		q = 70
	}
	e.quality.Store(int32(q))
	return e
}

// Start launches the capture loop. It is an error to start a running engine,
// and a stopped engine cannot be restarted.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return ErrEngineStopped
	}
	if e.running.Load() {
		return ErrEngineRunning
	}
	e.done = make(chan struct{})
	e.running.Store(true)
	e.wg.Add(1)
	go e.captureLoop(e.done)
	log.Info("capture engine started", "fps", e.targetFPS, "quality", e.quality.Load())
	return nil
}

// Stop signals the capture loop, waits for it to exit, and clears every
// registered subscriber so sessions observe the shutdown. Safe to call on a
// stopped engine; the engine cannot be started again afterwards.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running.Load() {
		e.mu.Unlock()
		return
	}
	close(e.done)
	e.running.Store(false)
	e.stopped = true
	e.mu.Unlock()
	e.wg.Wait()
	if e.capturer != nil {
		e.capturer.Close()
	}
	e.dist.Reset()
	log.Info("capture engine stopped", "frames", e.framesPublished.Load())
}

func (e *Engine) captureLoop(done <-chan struct{}) {
	defer e.wg.Done()

	interval := time.Second / time.Duration(e.targetFPS)
	failures := 0

	for {
		select {
		case <-done:
			return
		default:
		}

		start := time.Now()
		err := e.captureOne()
		if err != nil {
			failures++
			if failures >= degradedThreshold && !e.degraded.Load() {
				e.degraded.Store(true)
				log.Warn("capture degraded after repeated failures",
					"consecutive", failures, "error", err.Error())
			}
		} else {
			failures = 0
			if e.degraded.Swap(false) {
				log.Info("capture recovered")
			}
		}

		// Pace to the target rate; a slow frame just starts the next one
		// immediately.
		sleep := interval - time.Since(start)
		if sleep > 0 {
			select {
			case <-done:
				return
			case <-time.After(sleep):
			}
		}
	}
}

// captureOne produces and publishes a single frame. A (nil, nil) captured
// image means no frame was available; that is a skip, not a failure.
func (e *Engine) captureOne() error {
	mon, ok := e.registry.Current()
	if !ok {
		return ErrMonitorNotFound
	}

	state := e.switcher.Detect()
	e.lastState.Store(int32(state))

	var img *image.RGBA
	err := e.switcher.With(state, func() error {
		var cerr error
		img, cerr = e.capturer.CaptureRegion(mon.X, mon.Y, mon.Width, mon.Height)
		return cerr
	})
	if err != nil {
		return err
	}
	if img == nil {
		return nil
	}

	// Encode outside the console context; compression does not need the
	// impersonated thread state.
	payload, err := EncodeJPEG(img, int(e.quality.Load()))
	captureImagePool.Put(img)
	if err != nil {
		return err
	}

	now := time.Now()
	seq := e.framesPublished.Add(1)
	e.dist.Publish(&Frame{
		Seq:       seq,
		Timestamp: now,
		Width:     mon.Width,
		Height:    mon.Height,
		Format:    FormatJPEG,
		Payload:   payload,
	})
	e.lastFrame.Store(now.UnixNano())
	return nil
}

// SelectMonitor switches the capture target. Takes effect on the next frame.
func (e *Engine) SelectMonitor(id string) error {
	return e.registry.Select(id)
}

// Monitors returns the registry's current monitor snapshot.
func (e *Engine) Monitors() []Monitor { return e.registry.Monitors() }

// CurrentMonitorID returns the id of the monitor being captured.
func (e *Engine) CurrentMonitorID() string { return e.registry.CurrentID() }

// RefreshMonitors re-enumerates displays.
func (e *Engine) RefreshMonitors() error { return e.registry.Refresh() }

// SetQuality adjusts JPEG quality for subsequent frames. Out-of-range values
// are clamped.
func (e *Engine) SetQuality(q int) {
	if q < 1 {
		q = 1
	}
	if q > 100 {
		q = 100
	}
	e.quality.Store(int32(q))
	log.Info("quality adjusted", "quality", q)
}

// Quality returns the current JPEG quality.
func (e *Engine) Quality() int { return int(e.quality.Load()) }

// Status reports the engine's current condition.
func (e *Engine) Status() Status {
	st := Status{
		Running:         e.running.Load(),
		Degraded:        e.degraded.Load(),
		ConsoleState:    console.State(e.lastState.Load()).String(),
		CurrentMonitor:  e.registry.CurrentID(),
		FramesPublished: e.framesPublished.Load(),
		Subscribers:     e.dist.Count(),
	}
	if ns := e.lastFrame.Load(); ns != 0 {
		st.LastFrameAt = time.Unix(0, ns)
	}
	return st
}
