//go:build !windows

package desktop

func newPlatformInjector() (Injector, error) {
	return nil, ErrInputUnsupported
}
