package desktop

import (
	"sync"
	"testing"
)

// fakeInjector records injections as a flat op log.
type injectorOp struct {
	kind string // "abs", "rel", "button", "wheel", "key", "text"
	a, b int
	s    string
	down bool
}

type fakeInjector struct {
	mu  sync.Mutex
	ops []injectorOp
}

func (f *fakeInjector) record(op injectorOp) error {
	f.mu.Lock()
	f.ops = append(f.ops, op)
	f.mu.Unlock()
	return nil
}

func (f *fakeInjector) MoveAbsolute(nx, ny int) error {
	return f.record(injectorOp{kind: "abs", a: nx, b: ny})
}
func (f *fakeInjector) MoveRelative(dx, dy int) error {
	return f.record(injectorOp{kind: "rel", a: dx, b: dy})
}
func (f *fakeInjector) Button(button string, down bool) error {
	return f.record(injectorOp{kind: "button", s: button, down: down})
}
func (f *fakeInjector) Wheel(dx, dy int) error {
	return f.record(injectorOp{kind: "wheel", a: dx, b: dy})
}
func (f *fakeInjector) Key(code int, down bool) error {
	return f.record(injectorOp{kind: "key", a: code, down: down})
}
func (f *fakeInjector) Text(s string) error {
	return f.record(injectorOp{kind: "text", s: s})
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *fakeInjector, *fakeSwitcher) {
	t.Helper()
	reg := newTestRegistry(t, twoMonitors())
	inj := &fakeInjector{}
	sw := &fakeSwitcher{}
	return NewDispatcher(inj, sw, reg), inj, sw
}

func (f *fakeInjector) opList() []injectorOp {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]injectorOp, len(f.ops))
	copy(out, f.ops)
	return out
}

func TestDispatch_AbsoluteMoveOnPrimaryMonitor(t *testing.T) {
	d, inj, _ := newTestDispatcher(t)

	// Primary is 1920x1080 at (0,0); virtual desktop spans x 0..3200, y -200..1080.
	if err := d.Dispatch(PointerMoveCmd{Absolute: true, X: 0, Y: 0}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	ops := inj.opList()
	if len(ops) != 1 || ops[0].kind != "abs" {
		t.Fatalf("ops = %+v", ops)
	}
	// Monitor (0,0) pixel sits at virtual pixel (0, 0); virtual y origin is
	// -200, so 200 pixels down the 1280-tall virtual desktop.
	if ops[0].a != 0 {
		t.Fatalf("nx = %d, want 0", ops[0].a)
	}
	wantY := 200 * 65535 / 1279
	if ops[0].b != wantY {
		t.Fatalf("ny = %d, want %d", ops[0].b, wantY)
	}
}

func TestDispatch_AbsoluteMoveOnOffsetMonitor(t *testing.T) {
	d, inj, _ := newTestDispatcher(t)
	reg := d.registry
	if err := reg.Select("DISPLAY2"); err != nil {
		t.Fatalf("Select: %v", err)
	}

	// Bottom-right of DISPLAY2 (1280x1024 at 1920,-200): virtual pixel
	// (3199, 823) on a 3200x1280 desktop rooted at (0,-200).
	if err := d.Dispatch(PointerMoveCmd{Absolute: true, X: 65535, Y: 65535}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	ops := inj.opList()
	if len(ops) != 1 {
		t.Fatalf("ops = %+v", ops)
	}
	if ops[0].a != 65535 {
		t.Fatalf("nx = %d, want 65535", ops[0].a)
	}
	wantY := (823 + 200) * 65535 / 1279
	if ops[0].b != wantY {
		t.Fatalf("ny = %d, want %d", ops[0].b, wantY)
	}
}

func TestDispatch_AbsoluteMoveClampsInput(t *testing.T) {
	d, inj, _ := newTestDispatcher(t)
	if err := d.Dispatch(PointerMoveCmd{Absolute: true, X: -50, Y: 999999}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	ops := inj.opList()
	if ops[0].a < 0 || ops[0].a > 65535 || ops[0].b < 0 || ops[0].b > 65535 {
		t.Fatalf("unclamped output %+v", ops[0])
	}
}

func TestDispatch_RelativeMoveClampsDeltas(t *testing.T) {
	d, inj, _ := newTestDispatcher(t)
	if err := d.Dispatch(PointerMoveCmd{DX: 100000, DY: -100000}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	ops := inj.opList()
	if ops[0].kind != "rel" || ops[0].a != 32767 || ops[0].b != -32767 {
		t.Fatalf("ops = %+v", ops)
	}
}

func TestDispatch_WheelOneNotch(t *testing.T) {
	d, inj, _ := newTestDispatcher(t)
	if err := d.Dispatch(PointerWheelCmd{DeltaY: 120}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	ops := inj.opList()
	if ops[0].kind != "wheel" || ops[0].b != 120 {
		t.Fatalf("ops = %+v", ops)
	}
}

func TestDispatch_KeyModifierOrdering(t *testing.T) {
	d, inj, _ := newTestDispatcher(t)
	cmd := KeyCmd{KeyCode: 0x41, Action: "down", Mods: Modifiers{Ctrl: true, Shift: true}}
	if err := d.Dispatch(cmd); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	ops := inj.opList()
	want := []injectorOp{
		{kind: "key", a: vkControl, down: true},
		{kind: "key", a: vkShift, down: true},
		{kind: "key", a: 0x41, down: true},
		{kind: "key", a: vkShift, down: false},
		{kind: "key", a: vkControl, down: false},
	}
	if len(ops) != len(want) {
		t.Fatalf("got %d ops: %+v", len(ops), ops)
	}
	for i := range want {
		if ops[i] != want[i] {
			t.Fatalf("op %d = %+v, want %+v", i, ops[i], want[i])
		}
	}
}

func TestDispatch_TextHoldsModifiers(t *testing.T) {
	d, inj, _ := newTestDispatcher(t)
	cmd := TextCmd{Text: "v", Mods: Modifiers{Ctrl: true, Win: true}}
	if err := d.Dispatch(cmd); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	ops := inj.opList()
	want := []injectorOp{
		{kind: "key", a: vkControl, down: true},
		{kind: "key", a: vkLWin, down: true},
		{kind: "text", s: "v"},
		{kind: "key", a: vkLWin, down: false},
		{kind: "key", a: vkControl, down: false},
	}
	if len(ops) != len(want) {
		t.Fatalf("got %d ops: %+v", len(ops), ops)
	}
	for i := range want {
		if ops[i] != want[i] {
			t.Fatalf("op %d = %+v, want %+v", i, ops[i], want[i])
		}
	}
}

func TestDispatch_RunsInsideConsoleContext(t *testing.T) {
	d, _, sw := newTestDispatcher(t)
	if err := d.Dispatch(PointerButtonCmd{Button: "left", Action: "down"}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	sw.mu.Lock()
	n := len(sw.states)
	sw.mu.Unlock()
	if n != 1 {
		t.Fatalf("injection ran outside console context (with calls = %d)", n)
	}
}

func TestDispatch_RejectsNonInputCommands(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	if err := d.Dispatch(MonitorSelectCmd{MonitorID: "DISPLAY1"}); err == nil {
		t.Fatal("monitor_select accepted by input dispatcher")
	}
	if err := d.Dispatch(UnknownCmd{Type: "mystery"}); err == nil {
		t.Fatal("unknown command accepted by input dispatcher")
	}
}

func TestDispatch_EmptyTextIsNoop(t *testing.T) {
	d, inj, _ := newTestDispatcher(t)
	if err := d.Dispatch(TextCmd{}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(inj.opList()) != 0 {
		t.Fatal("empty text produced injections")
	}
}
