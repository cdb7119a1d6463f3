//go:build windows

package desktop

import (
	"fmt"
	"unicode/utf16"
	"unsafe"
)

var procSendInput = modUser32.NewProc("SendInput")

const (
	inputMouse    = 0
	inputKeyboard = 1

	mouseeventfMove        = 0x0001
	mouseeventfLeftDown    = 0x0002
	mouseeventfLeftUp      = 0x0004
	mouseeventfRightDown   = 0x0008
	mouseeventfRightUp     = 0x0010
	mouseeventfMiddleDown  = 0x0020
	mouseeventfMiddleUp    = 0x0040
	mouseeventfWheel       = 0x0800
	mouseeventfHWheel      = 0x1000
	mouseeventfVirtualDesk = 0x4000
	mouseeventfAbsolute    = 0x8000

	keyeventfKeyUp   = 0x0002
	keyeventfUnicode = 0x0004
)

type mouseInput struct {
	dx          int32
	dy          int32
	mouseData   uint32
	dwFlags     uint32
	time        uint32
	_           uint32
	dwExtraInfo uintptr
}

type keybdInput struct {
	wVk         uint16
	wScan       uint16
	dwFlags     uint32
	time        uint32
	_           uint32
	dwExtraInfo uintptr
	_           [8]byte // pad the union to MOUSEINPUT size
}

type mouseInputEvent struct {
	inputType uint32
	_         uint32
	mi        mouseInput
}

type keybdInputEvent struct {
	inputType uint32
	_         uint32
	ki        keybdInput
}

// sendInputInjector synthesizes input through SendInput. MOUSEEVENTF_ABSOLUTE
// with VIRTUALDESK interprets coordinates as 0-65535 over the whole virtual
// desktop, which matches what the dispatcher produces.
type sendInputInjector struct{}

func newPlatformInjector() (Injector, error) {
	return &sendInputInjector{}, nil
}

func sendMouse(mi mouseInput) error {
	ev := mouseInputEvent{inputType: inputMouse, mi: mi}
	n, _, err := procSendInput.Call(1, uintptr(unsafe.Pointer(&ev)), unsafe.Sizeof(ev))
	if n == 0 {
		return fmt.Errorf("SendInput mouse: %w", err)
	}
	return nil
}

func sendKey(ki keybdInput) error {
	ev := keybdInputEvent{inputType: inputKeyboard, ki: ki}
	n, _, err := procSendInput.Call(1, uintptr(unsafe.Pointer(&ev)), unsafe.Sizeof(ev))
	if n == 0 {
		return fmt.Errorf("SendInput keyboard: %w", err)
	}
	return nil
}

func (sendInputInjector) MoveAbsolute(nx, ny int) error {
	return sendMouse(mouseInput{
		dx:      int32(nx),
		dy:      int32(ny),
		dwFlags: mouseeventfMove | mouseeventfAbsolute | mouseeventfVirtualDesk,
	})
}

func (sendInputInjector) MoveRelative(dx, dy int) error {
	return sendMouse(mouseInput{
		dx:      int32(dx),
		dy:      int32(dy),
		dwFlags: mouseeventfMove,
	})
}

func (sendInputInjector) Button(button string, down bool) error {
	var flags uint32
	switch button {
	case "left":
		if down {
			flags = mouseeventfLeftDown
		} else {
			flags = mouseeventfLeftUp
		}
	case "right":
		if down {
			flags = mouseeventfRightDown
		} else {
			flags = mouseeventfRightUp
		}
	case "middle":
		if down {
			flags = mouseeventfMiddleDown
		} else {
			flags = mouseeventfMiddleUp
		}
	default:
		return fmt.Errorf("unknown button %q", button)
	}
	return sendMouse(mouseInput{dwFlags: flags})
}

func (sendInputInjector) Wheel(deltaX, deltaY int) error {
	if deltaY != 0 {
		err := sendMouse(mouseInput{
			mouseData: uint32(int32(deltaY)),
			dwFlags:   mouseeventfWheel,
		})
		if err != nil {
			return err
		}
	}
	if deltaX != 0 {
		return sendMouse(mouseInput{
			mouseData: uint32(int32(deltaX)),
			dwFlags:   mouseeventfHWheel,
		})
	}
	return nil
}

func (sendInputInjector) Key(keyCode int, down bool) error {
	ki := keybdInput{wVk: uint16(keyCode)}
	if !down {
		ki.dwFlags = keyeventfKeyUp
	}
	return sendKey(ki)
}

// Text injects literal characters via KEYEVENTF_UNICODE so the result does
// not depend on the console session's keyboard layout. Runes outside the BMP
// are sent as surrogate pairs.
func (sendInputInjector) Text(s string) error {
	for _, unit := range utf16.Encode([]rune(s)) {
		down := keybdInput{wScan: unit, dwFlags: keyeventfUnicode}
		if err := sendKey(down); err != nil {
			return err
		}
		up := keybdInput{wScan: unit, dwFlags: keyeventfUnicode | keyeventfKeyUp}
		if err := sendKey(up); err != nil {
			return err
		}
	}
	return nil
}

var _ Injector = sendInputInjector{}
