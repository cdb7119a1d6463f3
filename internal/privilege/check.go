// Package privilege answers whether the agent runs with enough rights to
// reach the secure desktop. Capture and input at the login or lock screen
// require an elevated service context; an unprivileged agent still works on
// the user's own desktop.
package privilege

// IsElevated reports whether the process has administrative rights (an
// elevated token on Windows, UID 0 elsewhere).
func IsElevated() bool {
	return isElevated()
}
