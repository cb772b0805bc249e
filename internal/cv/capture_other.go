//go:build !windows

package cv

import "fmt"

func newWindowCapturer(title string) (Capturer, error) {
	return nil, fmt.Errorf("window capture of %q is only supported on windows", title)
}
