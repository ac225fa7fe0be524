//go:build !linux

package initproc

import (
	"fmt"
	"io"
)

func run(stdin io.Reader) error {
	return fmt.Errorf("sandbox helper is only supported on linux")
}
