//go:build !nogpio

package gpio

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/stianeikeland/go-rpio/v4"
)

// pwmClockHz is the PWM clock; with a range of PwmRange this gives a
// carrier of roughly 1.2kHz, well above visible flicker.
const pwmClockHz = 1200000

// RpioPort drives pins through /dev/gpiomem using go-rpio. Pin numbers
// are BCM. Hardware PWM is available on the PWM-capable pins (12, 13, 18, 19).
type RpioPort struct {
	mu        sync.Mutex
	pins      []int
	activeLow bool
	closed    bool
}

func NewRpioPort(opts Options) (*RpioPort, error) {
	if err := rpio.Open(); err != nil {
		return nil, errors.Wrapf(err, "failed to open gpio for pins %v", opts.Pins)
	}

	p := &RpioPort{
		pins:      opts.Pins,
		activeLow: opts.ActiveLow,
	}
	for _, n := range p.pins {
		if n < 0 || n > 255 {
			rpio.Close()
			return nil, errors.Errorf("pin %d out of range (rpio takes uint8 pin)", n)
		}
		pin := rpio.Pin(n)
		pin.Output()
		p.write(pin, false)
	}

	glog.Info().Ints("pins", p.pins).Bool("active_low", p.activeLow).Msg("rpio backend ready")
	return p, nil
}

func (p *RpioPort) write(pin rpio.Pin, active bool) {
	if level(active, p.activeLow) {
		pin.High()
	} else {
		pin.Low()
	}
}

func (p *RpioPort) check(n int) error {
	if p.closed {
		return ErrClosed
	}
	if n < 0 || n > 255 {
		return errors.Wrapf(ErrUnknownPin, "pin %d", n)
	}
	return nil
}

func (p *RpioPort) SetOutput(n int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.check(n); err != nil {
		return err
	}
	rpio.Pin(n).Output()
	return nil
}

func (p *RpioPort) SetPwmOutput(n int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.check(n); err != nil {
		return err
	}
	switch n {
	case 12, 13, 18, 19:
	default:
		return errors.Wrapf(ErrPWMUnsupported, "pin %d has no hardware pwm", n)
	}

	pin := rpio.Pin(n)
	pin.Mode(rpio.Pwm)
	pin.Freq(pwmClockHz)
	pin.DutyCycle(0, PwmRange)
	return nil
}

func (p *RpioPort) WriteDigital(n int, active bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.check(n); err != nil {
		return err
	}
	p.write(rpio.Pin(n), active)
	return nil
}

func (p *RpioPort) WritePwm(n int, value int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.check(n); err != nil {
		return err
	}
	if err := checkPwm(value); err != nil {
		return errors.Wrapf(err, "pin %d value %d", n, value)
	}
	rpio.Pin(n).DutyCycle(uint32(value), PwmRange)
	return nil
}

func (p *RpioPort) Sleep(d time.Duration) {
	time.Sleep(d)
}

func (p *RpioPort) SupportsPWM() bool {
	return true
}

// Close switches every LED off and unmaps the GPIO registers.
func (p *RpioPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	for _, n := range p.pins {
		p.write(rpio.Pin(n), false)
	}
	p.closed = true
	glog.Debug().Msg("rpio backend closing")
	return rpio.Close()
}
