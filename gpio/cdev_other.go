//go:build !linux

package gpio

import "errors"

// CdevPort is only available on Linux.
type CdevPort struct {
	SimulatedPort
}

func NewCdevPort(opts Options) (*CdevPort, error) {
	return nil, errors.New("gpio: cdev backend requires linux")
}
