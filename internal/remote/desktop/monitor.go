package desktop

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/openctrol/agent/internal/logging"
)

var log = logging.L("desktop")

// ErrMonitorNotFound is returned by Registry.Select for an id that is not in
// the current snapshot.
var ErrMonitorNotFound = errors.New("desktop: monitor not found")

// Monitor describes a connected display output. Values are enumerated, never
// mutated; re-enumeration replaces the whole set. X/Y are the monitor's
// origin on the virtual desktop.
type Monitor struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	X         int    `json:"x"`
	Y         int    `json:"y"`
	IsPrimary bool   `json:"is_primary"`
}

// ListFunc enumerates the currently connected displays.
type ListFunc func() ([]Monitor, error)

// registrySnapshot is the immutable state the Registry publishes. Readers get
// either the old or the new snapshot, never a partially updated one.
type registrySnapshot struct {
	monitors  []Monitor
	currentID string
}

// Registry holds the enumerated displays and the currently selected monitor.
// Reads are lock-free against an atomically swapped snapshot; writes
// (Refresh, Select) serialize on a mutex.
type Registry struct {
	list ListFunc
	mu   sync.Mutex
	snap atomic.Pointer[registrySnapshot]
}

// NewRegistry creates a registry using the given enumerator. A nil list uses
// the platform enumerator.
func NewRegistry(list ListFunc) *Registry {
	if list == nil {
		list = listDisplays
	}
	r := &Registry{list: list}
	r.snap.Store(&registrySnapshot{})
	return r
}

// Refresh re-enumerates displays and swaps in a new snapshot. The current
// selection is retained when its id is still present; otherwise the primary
// monitor (or the first one) becomes current. On enumeration failure the
// previous snapshot is kept.
func (r *Registry) Refresh() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	monitors, err := r.list()
	if err != nil {
		return fmt.Errorf("enumerate displays: %w", err)
	}

	currentID := r.snap.Load().currentID
	if _, ok := findMonitor(monitors, currentID); !ok {
		currentID = ""
		for _, m := range monitors {
			if m.IsPrimary {
				currentID = m.ID
				break
			}
		}
		if currentID == "" && len(monitors) > 0 {
			currentID = monitors[0].ID
		}
	}

	r.snap.Store(&registrySnapshot{monitors: monitors, currentID: currentID})
	return nil
}

// Monitors returns the current snapshot's displays.
func (r *Registry) Monitors() []Monitor {
	snap := r.snap.Load()
	out := make([]Monitor, len(snap.monitors))
	copy(out, snap.monitors)
	return out
}

// Current returns the selected monitor. ok is false when nothing is selected
// (no displays enumerated yet).
func (r *Registry) Current() (Monitor, bool) {
	snap := r.snap.Load()
	return findMonitor(snap.monitors, snap.currentID)
}

// CurrentID returns the selected monitor's id, or "".
func (r *Registry) CurrentID() string {
	return r.snap.Load().currentID
}

// Select makes the monitor with the given id current. The swap is atomic:
// concurrent readers observe either the previous or the new selection.
func (r *Registry) Select(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := r.snap.Load()
	if _, ok := findMonitor(snap.monitors, id); !ok {
		return fmt.Errorf("%w: %q", ErrMonitorNotFound, id)
	}

	r.snap.Store(&registrySnapshot{monitors: snap.monitors, currentID: id})
	log.Info("monitor selected", logging.KeyMonitorID, id)
	return nil
}

// VirtualBounds returns the bounding rectangle spanning all monitors.
func (r *Registry) VirtualBounds() (x, y, width, height int) {
	snap := r.snap.Load()
	if len(snap.monitors) == 0 {
		return 0, 0, 0, 0
	}

	minX, minY := snap.monitors[0].X, snap.monitors[0].Y
	maxX := snap.monitors[0].X + snap.monitors[0].Width
	maxY := snap.monitors[0].Y + snap.monitors[0].Height
	for _, m := range snap.monitors[1:] {
		if m.X < minX {
			minX = m.X
		}
		if m.Y < minY {
			minY = m.Y
		}
		if m.X+m.Width > maxX {
			maxX = m.X + m.Width
		}
		if m.Y+m.Height > maxY {
			maxY = m.Y + m.Height
		}
	}
	return minX, minY, maxX - minX, maxY - minY
}

func findMonitor(monitors []Monitor, id string) (Monitor, bool) {
	if id == "" {
		return Monitor{}, false
	}
	for _, m := range monitors {
		if m.ID == id {
			return m, true
		}
	}
	return Monitor{}, false
}

// displayBounds is what the geometry enumerator reports for one display.
type displayBounds struct {
	Device  string
	X, Y    int
	Width   int
	Height  int
	Primary bool
}

// displayDevice is what the device enumerator reports for one adapter output.
type displayDevice struct {
	Device      string
	Description string
	Active      bool
}

// mergeDisplays joins the two enumeration results by device identifier. The
// geometry enumeration is authoritative for which displays exist and where;
// the device enumeration contributes the human-readable name. A display with
// no matching device entry keeps its device identifier as its name.
func mergeDisplays(bounds []displayBounds, devices []displayDevice) []Monitor {
	names := make(map[string]string, len(devices))
	for _, d := range devices {
		if d.Active && d.Description != "" {
			names[d.Device] = d.Description
		}
	}

	monitors := make([]Monitor, 0, len(bounds))
	for _, b := range bounds {
		id := displayID(b.Device)
		name := names[b.Device]
		if name == "" {
			name = id
		}
		monitors = append(monitors, Monitor{
			ID:        id,
			Name:      name,
			Width:     b.Width,
			Height:    b.Height,
			X:         b.X,
			Y:         b.Y,
			IsPrimary: b.Primary,
		})
	}
	return monitors
}

// displayID strips the `\\.\` device-namespace prefix, turning
// `\\.\DISPLAY1` into the stable id `DISPLAY1`.
func displayID(device string) string {
	const prefix = `\\.\`
	if len(device) > len(prefix) && device[:len(prefix)] == prefix {
		return device[len(prefix):]
	}
	return device
}
