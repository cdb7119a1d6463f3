//go:build !windows

package desktop

func newPlatformCapturer() (ScreenCapturer, error) {
	return nil, ErrCaptureUnsupported
}
