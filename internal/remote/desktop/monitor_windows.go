//go:build windows

package desktop

import (
	"fmt"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	modUser32 = windows.NewLazySystemDLL("user32.dll")

	procEnumDisplayMonitors = modUser32.NewProc("EnumDisplayMonitors")
	procGetMonitorInfoW     = modUser32.NewProc("GetMonitorInfoW")
	procEnumDisplayDevicesW = modUser32.NewProc("EnumDisplayDevicesW")
)

const (
	monitorinfofPrimary         = 0x1
	displayDeviceActive         = 0x1
	displayDeviceMirroringDriver = 0x8
)

type rect struct {
	Left, Top, Right, Bottom int32
}

// MONITORINFOEXW: MONITORINFO + szDevice[32].
type monitorInfoEx struct {
	CbSize    uint32
	Monitor   rect
	WorkArea  rect
	Flags     uint32
	SzDevice  [32]uint16
}

// DISPLAY_DEVICEW
type displayDeviceW struct {
	Cb           uint32
	DeviceName   [32]uint16
	DeviceString [128]uint16
	StateFlags   uint32
	DeviceID     [128]uint16
	DeviceKey    [128]uint16
}

// listDisplays enumerates displays through two independent mechanisms and
// merges them: EnumDisplayMonitors/GetMonitorInfoW for geometry and the
// primary flag, EnumDisplayDevicesW for adapter descriptions.
func listDisplays() ([]Monitor, error) {
	bounds, err := enumMonitorGeometry()
	if err != nil {
		return nil, err
	}
	if len(bounds) == 0 {
		return nil, fmt.Errorf("no displays attached to the desktop")
	}
	return mergeDisplays(bounds, enumDisplayDevices()), nil
}

// enumMonitorGeometry walks the display monitors and queries each one's
// bounds and device name.
func enumMonitorGeometry() ([]displayBounds, error) {
	var out []displayBounds

	cb := syscall.NewCallback(func(hMonitor, hdc uintptr, lprc *rect, lparam uintptr) uintptr {
		var info monitorInfoEx
		info.CbSize = uint32(unsafe.Sizeof(info))
		ret, _, _ := procGetMonitorInfoW.Call(hMonitor, uintptr(unsafe.Pointer(&info)))
		if ret == 0 {
			return 1 // continue enumeration
		}
		out = append(out, displayBounds{
			Device:  windows.UTF16ToString(info.SzDevice[:]),
			X:       int(info.Monitor.Left),
			Y:       int(info.Monitor.Top),
			Width:   int(info.Monitor.Right - info.Monitor.Left),
			Height:  int(info.Monitor.Bottom - info.Monitor.Top),
			Primary: info.Flags&monitorinfofPrimary != 0,
		})
		return 1
	})

	ret, _, err := procEnumDisplayMonitors.Call(0, 0, cb, 0)
	if ret == 0 {
		return nil, fmt.Errorf("EnumDisplayMonitors: %v", err)
	}
	return out, nil
}

// enumDisplayDevices walks display adapters for their descriptions. Failures
// here only cost friendly names, so errors are not propagated.
func enumDisplayDevices() []displayDevice {
	var out []displayDevice

	for i := uint32(0); ; i++ {
		var dev displayDeviceW
		dev.Cb = uint32(unsafe.Sizeof(dev))
		ret, _, _ := procEnumDisplayDevicesW.Call(0, uintptr(i), uintptr(unsafe.Pointer(&dev)), 0)
		if ret == 0 {
			break
		}
		if dev.StateFlags&displayDeviceMirroringDriver != 0 {
			continue
		}
		out = append(out, displayDevice{
			Device:      windows.UTF16ToString(dev.DeviceName[:]),
			Description: windows.UTF16ToString(dev.DeviceString[:]),
			Active:      dev.StateFlags&displayDeviceActive != 0,
		})
	}
	return out
}
