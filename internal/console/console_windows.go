//go:build windows

package console

import (
	"fmt"
	"runtime"
	"strings"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	modKernel32 = windows.NewLazySystemDLL("kernel32.dll")
	modWtsapi32 = windows.NewLazySystemDLL("wtsapi32.dll")
	modAdvapi32 = windows.NewLazySystemDLL("advapi32.dll")
	modUser32   = windows.NewLazySystemDLL("user32.dll")

	procWTSGetActiveConsoleSessionId = modKernel32.NewProc("WTSGetActiveConsoleSessionId")
	procWTSQueryUserToken            = modWtsapi32.NewProc("WTSQueryUserToken")
	procImpersonateLoggedOnUser      = modAdvapi32.NewProc("ImpersonateLoggedOnUser")

	procOpenInputDesktop          = modUser32.NewProc("OpenInputDesktop")
	procSetThreadDesktop          = modUser32.NewProc("SetThreadDesktop")
	procCloseDesktop              = modUser32.NewProc("CloseDesktop")
	procGetThreadDesktop          = modUser32.NewProc("GetThreadDesktop")
	procGetCurrentThreadId        = modKernel32.NewProc("GetCurrentThreadId")
	procGetUserObjectInformationW = modUser32.NewProc("GetUserObjectInformationW")
)

const (
	invalidSessionID  = 0xFFFFFFFF
	desktopGenericAll = 0x10000000
	uoiName           = 2
)

type windowsSwitcher struct{}

func newPlatformSwitcher() Switcher {
	return &windowsSwitcher{}
}

// With acquires the console user's context for the calling thread, runs fn,
// and releases the context. Impersonation and desktop attachment are both
// thread-scoped, so the goroutine is pinned to its OS thread for the scope.
//
// On the login screen there is no user token to adopt; the thread still
// attaches to the input desktop (Winlogon), which is what capture and input
// need there. A service running as LocalSystem already has the access rights
// for the secure desktop.
func (s *windowsSwitcher) With(state State, fn func() error) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	impersonating := false
	if state != StateLoginScreen {
		token, err := activeConsoleUserToken()
		if err != nil {
			return err
		}
		r1, _, callErr := procImpersonateLoggedOnUser.Call(uintptr(token))
		token.Close()
		if r1 == 0 {
			return fmt.Errorf("%w: ImpersonateLoggedOnUser: %v", ErrContextUnavailable, callErr)
		}
		impersonating = true
	}
	defer func() {
		if impersonating {
			if err := windows.RevertToSelf(); err != nil {
				log.Error("RevertToSelf failed", "error", err)
			}
		}
	}()

	restore, err := attachInputDesktop()
	if err != nil {
		return err
	}
	defer restore()

	return fn()
}

// Detect resolves the console state from the active session and the name of
// the current input desktop ("Default" normally, "Winlogon" for the login
// screen, lock screen, and UAC prompts).
func (s *windowsSwitcher) Detect() State {
	sessionID, _, _ := procWTSGetActiveConsoleSessionId.Call()
	if uint32(sessionID) == invalidSessionID {
		return StateLoginScreen
	}

	name := inputDesktopName()
	if name == "" || strings.EqualFold(name, "Default") {
		return StateUnlocked
	}

	// Secure desktop is active. If no user token exists for the console
	// session, nobody is logged in yet.
	token, err := activeConsoleUserToken()
	if err != nil {
		return StateLoginScreen
	}
	token.Close()
	return StateLocked
}

// activeConsoleUserToken obtains the logged-on console user's primary token.
// Requires SE_TCB_PRIVILEGE (LocalSystem).
func activeConsoleUserToken() (windows.Token, error) {
	sessionID, _, _ := procWTSGetActiveConsoleSessionId.Call()
	if uint32(sessionID) == invalidSessionID {
		return 0, fmt.Errorf("%w: no active console session", ErrContextUnavailable)
	}

	var token windows.Token
	r1, _, err := procWTSQueryUserToken.Call(sessionID, uintptr(unsafe.Pointer(&token)))
	if r1 == 0 {
		return 0, fmt.Errorf("%w: WTSQueryUserToken(session=%d): %v", ErrContextUnavailable, uint32(sessionID), err)
	}
	return token, nil
}

// attachInputDesktop switches the calling thread to the currently active
// input desktop and returns a restore func that switches back and closes the
// handle. The caller must hold the OS thread.
func attachInputDesktop() (restore func(), err error) {
	threadID, _, _ := procGetCurrentThreadId.Call()
	prevDesk, _, _ := procGetThreadDesktop.Call(threadID)

	hDesk, _, callErr := procOpenInputDesktop.Call(0, 0, uintptr(desktopGenericAll))
	if hDesk == 0 {
		return nil, fmt.Errorf("%w: OpenInputDesktop: %v", ErrContextUnavailable, callErr)
	}

	r1, _, callErr := procSetThreadDesktop.Call(hDesk)
	if r1 == 0 {
		procCloseDesktop.Call(hDesk)
		// ERROR_INVALID_PARAMETER means the thread is already on this
		// desktop; treat that as attached.
		if errno, ok := callErr.(syscall.Errno); ok && errno == syscall.Errno(windows.ERROR_INVALID_PARAMETER) {
			return func() {}, nil
		}
		return nil, fmt.Errorf("%w: SetThreadDesktop: %v", ErrContextUnavailable, callErr)
	}

	return func() {
		if prevDesk != 0 {
			procSetThreadDesktop.Call(prevDesk)
		}
		procCloseDesktop.Call(hDesk)
	}, nil
}

// inputDesktopName returns the name of the active input desktop, or "" if it
// cannot be determined.
func inputDesktopName() string {
	hDesk, _, _ := procOpenInputDesktop.Call(0, 0, uintptr(desktopGenericAll))
	if hDesk == 0 {
		return ""
	}
	defer procCloseDesktop.Call(hDesk)

	var buf [128]uint16
	var needed uint32
	r1, _, _ := procGetUserObjectInformationW.Call(
		hDesk,
		uoiName,
		uintptr(unsafe.Pointer(&buf[0])),
		uintptr(len(buf)*2),
		uintptr(unsafe.Pointer(&needed)),
	)
	if r1 == 0 {
		return ""
	}
	return windows.UTF16ToString(buf[:])
}
