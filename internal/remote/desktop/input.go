package desktop

import (
	"errors"
	"fmt"

	"github.com/openctrol/agent/internal/console"
)

// ErrInputUnsupported is returned on platforms without an injector.
var ErrInputUnsupported = errors.New("desktop: input injection not supported on this platform")

// Injector performs the actual OS-level input synthesis. Coordinates passed
// to MoveAbsolute are normalized to [0, 65535] over the full virtual desktop.
type Injector interface {
	MoveAbsolute(nx, ny int) error
	MoveRelative(dx, dy int) error
	Button(button string, down bool) error
	Wheel(deltaX, deltaY int) error
	Key(keyCode int, down bool) error
	Text(s string) error
}

// NewInjector returns the platform injector.
func NewInjector() (Injector, error) {
	return newPlatformInjector()
}

// Dispatcher translates parsed input commands into injector calls. Viewer
// coordinates are normalized over the selected monitor; the dispatcher maps
// them through the monitor's position on the virtual desktop before
// re-normalizing for the injector. Every injection runs inside a console
// context so it reaches the login and lock screens too.
type Dispatcher struct {
	injector Injector
	switcher console.Switcher
	registry *Registry
}

func NewDispatcher(inj Injector, sw console.Switcher, reg *Registry) *Dispatcher {
	return &Dispatcher{injector: inj, switcher: sw, registry: reg}
}

// Dispatch executes one input command. Non-input commands (monitor_select,
// quality, unknown) are not the dispatcher's business and are rejected.
func (d *Dispatcher) Dispatch(cmd Command) error {
	if d.injector == nil {
		return ErrInputUnsupported
	}
	switch c := cmd.(type) {
	case PointerMoveCmd:
		return d.pointerMove(c)
	case PointerButtonCmd:
		down := c.Action == "down"
		return d.inject(func() error { return d.injector.Button(c.Button, down) })
	case PointerWheelCmd:
		dx := clampDelta(c.DeltaX)
		dy := clampDelta(c.DeltaY)
		return d.inject(func() error { return d.injector.Wheel(dx, dy) })
	case KeyCmd:
		return d.key(c)
	case TextCmd:
		return d.text(c)
	default:
		return fmt.Errorf("not an input command: %T", cmd)
	}
}

func (d *Dispatcher) pointerMove(c PointerMoveCmd) error {
	if !c.Absolute {
		dx := clampDelta(c.DX)
		dy := clampDelta(c.DY)
		return d.inject(func() error { return d.injector.MoveRelative(dx, dy) })
	}
	nx, ny, err := d.mapAbsolute(c.X, c.Y)
	if err != nil {
		return err
	}
	return d.inject(func() error { return d.injector.MoveAbsolute(nx, ny) })
}

// mapAbsolute converts viewer coordinates (normalized over the selected
// monitor) into coordinates normalized over the virtual desktop:
// monitor-normalized -> monitor pixel -> virtual-desktop pixel -> re-normalized.
func (d *Dispatcher) mapAbsolute(x, y int) (int, int, error) {
	mon, ok := d.registry.Current()
	if !ok {
		return 0, 0, ErrMonitorNotFound
	}
	vx, vy, vw, vh := d.registry.VirtualBounds()
	if mon.Width <= 0 || mon.Height <= 0 || vw <= 0 || vh <= 0 {
		return 0, 0, fmt.Errorf("degenerate monitor geometry")
	}

	x = clampNormalized(x)
	y = clampNormalized(y)

	px := mon.X + x*(mon.Width-1)/65535
	py := mon.Y + y*(mon.Height-1)/65535

	nx := (px - vx) * 65535 / maxInt(vw-1, 1)
	ny := (py - vy) * 65535 / maxInt(vh-1, 1)
	return clampNormalized(nx), clampNormalized(ny), nil
}

// key presses the requested modifiers, injects the key action, then releases
// the modifiers in reverse order. All of it happens in one console context so
// a mid-sequence desktop switch cannot strand a held modifier.
func (d *Dispatcher) key(c KeyCmd) error {
	mods := modifierCodes(c.Mods)
	down := c.Action == "down"
	return d.inject(func() error {
		for _, m := range mods {
			if err := d.injector.Key(m, true); err != nil {
				return err
			}
		}
		err := d.injector.Key(c.KeyCode, down)
		for i := len(mods) - 1; i >= 0; i-- {
			if rerr := d.injector.Key(mods[i], false); rerr != nil && err == nil {
				err = rerr
			}
		}
		return err
	})
}

// text types the string with any requested modifiers held for its whole
// duration, released in reverse order afterwards.
func (d *Dispatcher) text(c TextCmd) error {
	if c.Text == "" {
		return nil
	}
	mods := modifierCodes(c.Mods)
	return d.inject(func() error {
		for _, m := range mods {
			if err := d.injector.Key(m, true); err != nil {
				return err
			}
		}
		err := d.injector.Text(c.Text)
		for i := len(mods) - 1; i >= 0; i-- {
			if rerr := d.injector.Key(mods[i], false); rerr != nil && err == nil {
				err = rerr
			}
		}
		return err
	})
}

func (d *Dispatcher) inject(fn func() error) error {
	state := d.switcher.Detect()
	return d.switcher.With(state, fn)
}

// Virtual-key codes for the modifier flags.
const (
	vkShift   = 0x10
	vkControl = 0x11
	vkMenu    = 0x12
	vkLWin    = 0x5B
)

func modifierCodes(m Modifiers) []int {
	var codes []int
	if m.Ctrl {
		codes = append(codes, vkControl)
	}
	if m.Alt {
		codes = append(codes, vkMenu)
	}
	if m.Shift {
		codes = append(codes, vkShift)
	}
	if m.Win {
		codes = append(codes, vkLWin)
	}
	return codes
}

func clampNormalized(v int) int {
	if v < 0 {
		return 0
	}
	if v > 65535 {
		return 65535
	}
	return v
}

func clampDelta(v int) int {
	if v < -32767 {
		return -32767
	}
	if v > 32767 {
		return 32767
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
