//go:build !windows

package privilege

import "os"

func isElevated() bool {
	return os.Getuid() == 0
}
