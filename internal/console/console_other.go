//go:build !windows

package console

// passthroughSwitcher is used on platforms without session isolation between
// services and the interactive desktop. It applies no context and runs the
// operation directly.
type passthroughSwitcher struct{}

func newPlatformSwitcher() Switcher {
	return passthroughSwitcher{}
}

func (passthroughSwitcher) With(state State, fn func() error) error {
	return fn()
}

func (passthroughSwitcher) Detect() State {
	return StateUnlocked
}
