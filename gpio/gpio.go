// Package gpio drives the LED pins. Port is the only thing the pattern
// engine knows about; the backends map it onto real hardware, the log, or
// an in-memory recorder for tests.
package gpio

import (
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var glog zerolog.Logger

func init() {
	glog = log.With().Str("component", "gpio").Logger()
}

// PwmRange is the full-scale PWM duty value.
const PwmRange = 1024

var (
	ErrPWMUnsupported = errors.New("pwm output not supported by this backend")
	ErrPwmValue       = errors.New("pwm value out of range")
	ErrUnknownPin     = errors.New("pin not configured")
	ErrClosed         = errors.New("port closed")
)

// Port is the hardware capability consumed by the pattern engine.
// WriteDigital takes the logical LED state; the backend translates it to
// an electrical level according to its polarity.
type Port interface {
	SetOutput(pin int) error
	SetPwmOutput(pin int) error
	WriteDigital(pin int, active bool) error
	WritePwm(pin int, value int) error
	Sleep(d time.Duration)
	SupportsPWM() bool
	Close() error
}

// Backend names a Port implementation.
type Backend string

const (
	BackendRpio      Backend = "rpio"
	BackendCdev      Backend = "cdev"
	BackendSimulated Backend = "simulated"
)

// Options configure a backend when it is opened.
type Options struct {
	Pins      []int
	PwmPin    int
	ActiveLow bool
	Chip      string
}

// Open opens the named backend and puts every pin into output mode with
// the LED off.
func Open(backend Backend, opts Options) (Port, error) {
	switch backend {
	case BackendRpio, "":
		p, err := NewRpioPort(opts)
		if err != nil {
			return nil, err
		}
		return p, nil
	case BackendCdev:
		p, err := NewCdevPort(opts)
		if err != nil {
			return nil, err
		}
		return p, nil
	case BackendSimulated:
		return NewSimulatedPort(opts), nil
	default:
		return nil, errors.New("unknown gpio backend: " + string(backend))
	}
}

// level converts a logical state into the electrical high/low for the
// given polarity.
func level(active, activeLow bool) bool {
	return active != activeLow
}

func checkPwm(value int) error {
	if value < 0 || value > PwmRange {
		return ErrPwmValue
	}
	return nil
}
