//go:build windows

package desktop

import (
	"fmt"
	"image"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	modGdi32 = windows.NewLazySystemDLL("gdi32.dll")

	procSetProcessDPIAware = modUser32.NewProc("SetProcessDPIAware")
	procGetDC              = modUser32.NewProc("GetDC")
	procReleaseDC          = modUser32.NewProc("ReleaseDC")

	procCreateDCW              = modGdi32.NewProc("CreateDCW")
	procCreateCompatibleDC     = modGdi32.NewProc("CreateCompatibleDC")
	procCreateCompatibleBitmap = modGdi32.NewProc("CreateCompatibleBitmap")
	procSelectObject           = modGdi32.NewProc("SelectObject")
	procBitBlt                 = modGdi32.NewProc("BitBlt")
	procDeleteDC               = modGdi32.NewProc("DeleteDC")
	procDeleteObject           = modGdi32.NewProc("DeleteObject")
	procGetDIBits              = modGdi32.NewProc("GetDIBits")
)

const (
	srcCopy      = 0x00CC0020
	captureBlt   = 0x40000000
	biRGB        = 0
	dibRGBColors = 0
)

type bitmapInfoHeader struct {
	BiSize          uint32
	BiWidth         int32
	BiHeight        int32
	BiPlanes        uint16
	BiBitCount      uint16
	BiCompression   uint32
	BiSizeImage     uint32
	BiXPelsPerMeter int32
	BiYPelsPerMeter int32
	BiClrUsed       uint32
	BiClrImportant  uint32
}

type bitmapInfo struct {
	BmiHeader bitmapInfoHeader
	BmiColors [1]uint32
}

// displayDeviceName is L"DISPLAY" as a UTF-16 null-terminated string.
var displayDeviceName = syscall.StringToUTF16Ptr("DISPLAY")

// gdiCapturer implements ScreenCapturer using Windows GDI. Handles and the
// pixel buffer are created once per region size and reused across frames.
type gdiCapturer struct {
	screenDC      uintptr
	screenDCOwned bool // created via CreateDC (must use DeleteDC)
	memDC         uintptr
	hBitmap       uintptr
	oldBitmap     uintptr
	bi            bitmapInfo
	width         int
	height        int
	inited        bool

	// Reusable pixel buffer (BGRA from GetDIBits)
	pixBuf []byte

	// Skip-vs-error decisions across secure-desktop transitions.
	gate failureGate
}

func init() {
	if procSetProcessDPIAware.Find() == nil {
		procSetProcessDPIAware.Call()
	}
}

func newPlatformCapturer() (ScreenCapturer, error) {
	return &gdiCapturer{}, nil
}

// ensureHandles creates or recreates GDI handles sized to the requested
// region.
func (c *gdiCapturer) ensureHandles(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid capture region %dx%d", width, height)
	}
	if c.inited && c.width == width && c.height == height {
		return nil
	}

	c.releaseHandles()

	// CreateDC("DISPLAY") creates a DC for the physical display directly,
	// bypassing the window/desktop association. GetDC(0) fails on the
	// Winlogon desktop; this works on all desktops.
	hdc, _, _ := procCreateDCW.Call(uintptr(unsafe.Pointer(displayDeviceName)), 0, 0, 0)
	owned := true
	if hdc == 0 {
		hdc, _, _ = procGetDC.Call(0)
		if hdc == 0 {
			return fmt.Errorf("both CreateDC and GetDC failed")
		}
		owned = false
	}

	memDC, _, _ := procCreateCompatibleDC.Call(hdc)
	if memDC == 0 {
		releaseScreenDC(hdc, owned)
		return fmt.Errorf("CreateCompatibleDC failed")
	}

	hBitmap, _, _ := procCreateCompatibleBitmap.Call(hdc, uintptr(width), uintptr(height))
	if hBitmap == 0 {
		procDeleteDC.Call(memDC)
		releaseScreenDC(hdc, owned)
		return fmt.Errorf("CreateCompatibleBitmap failed")
	}

	oldBitmap, _, _ := procSelectObject.Call(memDC, hBitmap)
	if oldBitmap == 0 {
		procDeleteObject.Call(hBitmap)
		procDeleteDC.Call(memDC)
		releaseScreenDC(hdc, owned)
		return fmt.Errorf("SelectObject failed")
	}

	c.screenDC = hdc
	c.screenDCOwned = owned
	c.memDC = memDC
	c.hBitmap = hBitmap
	c.oldBitmap = oldBitmap
	c.width = width
	c.height = height
	c.inited = true

	c.pixBuf = make([]byte, width*height*4)
	c.bi = bitmapInfo{
		BmiHeader: bitmapInfoHeader{
			BiSize:        uint32(unsafe.Sizeof(bitmapInfoHeader{})),
			BiWidth:       int32(width),
			BiHeight:      -int32(height), // negative = top-down
			BiPlanes:      1,
			BiBitCount:    32,
			BiCompression: biRGB,
		},
	}
	return nil
}

func releaseScreenDC(hdc uintptr, owned bool) {
	if owned {
		procDeleteDC.Call(hdc)
	} else {
		procReleaseDC.Call(0, hdc)
	}
}

func (c *gdiCapturer) releaseHandles() {
	if !c.inited {
		return
	}
	if c.oldBitmap != 0 && c.memDC != 0 {
		procSelectObject.Call(c.memDC, c.oldBitmap)
	}
	if c.hBitmap != 0 {
		procDeleteObject.Call(c.hBitmap)
	}
	if c.memDC != 0 {
		procDeleteDC.Call(c.memDC)
	}
	if c.screenDC != 0 {
		releaseScreenDC(c.screenDC, c.screenDCOwned)
	}
	c.inited = false
	c.screenDC = 0
	c.screenDCOwned = false
	c.memDC = 0
	c.hBitmap = 0
	c.oldBitmap = 0
}

func (c *gdiCapturer) captureOnce(x, y int) (*image.RGBA, error) {
	ret, _, _ := procBitBlt.Call(c.memDC, 0, 0, uintptr(c.width), uintptr(c.height),
		c.screenDC, uintptr(x), uintptr(y), srcCopy|captureBlt)
	if ret == 0 {
		// Some secure-desktop transitions reject CAPTUREBLT. Retry plain.
		ret, _, _ = procBitBlt.Call(c.memDC, 0, 0, uintptr(c.width), uintptr(c.height),
			c.screenDC, uintptr(x), uintptr(y), srcCopy)
		if ret == 0 {
			return nil, fmt.Errorf("BitBlt failed")
		}
	}

	ret, _, _ = procGetDIBits.Call(
		c.memDC,
		c.hBitmap,
		0,
		uintptr(c.height),
		uintptr(unsafe.Pointer(&c.pixBuf[0])),
		uintptr(unsafe.Pointer(&c.bi)),
		dibRGBColors,
	)
	if ret == 0 {
		return nil, fmt.Errorf("GetDIBits failed")
	}

	img := captureImagePool.Get(c.width, c.height)
	bgraToRGBA(c.pixBuf, img.Pix, c.width*c.height)
	return img, nil
}

// CaptureRegion captures a virtual-desktop rectangle using the persistent
// GDI handles. The first few failures around secure-desktop transitions are
// reported as (nil, nil) with throttled logging, so the capture loop skips
// the frame without flooding the log; a persistent failure surfaces as an
// error so the engine can report itself degraded.
func (c *gdiCapturer) CaptureRegion(x, y, width, height int) (*image.RGBA, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt == 1 {
			c.releaseHandles()
		}
		if err := c.ensureHandles(width, height); err != nil {
			lastErr = err
			continue
		}
		img, err := c.captureOnce(x, y)
		if err == nil {
			c.gate.success()
			return img, nil
		}
		lastErr = err
	}

	surface, logIt := c.gate.fail(time.Now())
	if logIt {
		log.Warn("GDI capture unavailable",
			"error", lastErr.Error(),
			"consecutive", c.gate.consecutive)
	}
	if surface {
		return nil, fmt.Errorf("gdi capture failing persistently: %w", lastErr)
	}
	return nil, nil
}

// Close releases persistent GDI handles.
func (c *gdiCapturer) Close() error {
	c.releaseHandles()
	return nil
}

var _ ScreenCapturer = (*gdiCapturer)(nil)
