//go:build !windows

package desktop

// listDisplays is not implemented off Windows; the engine targets the
// Windows console session. Callers inject their own ListFunc in tests.
func listDisplays() ([]Monitor, error) {
	return nil, ErrCaptureUnsupported
}
