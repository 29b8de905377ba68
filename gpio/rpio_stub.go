//go:build nogpio

package gpio

import "errors"

// RpioPort is not compiled into nogpio builds.
type RpioPort struct {
	SimulatedPort
}

func NewRpioPort(opts Options) (*RpioPort, error) {
	return nil, errors.New("gpio: rpio backend excluded by the nogpio build tag")
}
