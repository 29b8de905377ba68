//go:build linux

package gpio

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/warthog618/go-gpiocdev"
)

// CdevPort drives lines the kernel has already exported through the GPIO
// character device. There is no hardware PWM in this mode.
type CdevPort struct {
	mu     sync.Mutex
	chip   *gpiocdev.Chip
	lines  map[int]*gpiocdev.Line
	order  []int
	closed bool
}

func NewCdevPort(opts Options) (*CdevPort, error) {
	name := opts.Chip
	if name == "" {
		name = "gpiochip0"
	}

	chip, err := gpiocdev.NewChip(name)
	if err != nil {
		return nil, errors.Wrapf(err, "open gpio chip %s", name)
	}

	reqOpts := []gpiocdev.LineReqOption{gpiocdev.AsOutput(0), gpiocdev.WithConsumer("eightled")}
	if opts.ActiveLow {
		reqOpts = append(reqOpts, gpiocdev.AsActiveLow)
	}

	p := &CdevPort{
		chip:  chip,
		lines: make(map[int]*gpiocdev.Line, len(opts.Pins)),
	}
	for _, offset := range opts.Pins {
		line, err := chip.RequestLine(offset, reqOpts...)
		if err != nil {
			p.release()
			return nil, errors.Wrapf(err, "request line %d", offset)
		}
		p.lines[offset] = line
		p.order = append(p.order, offset)
	}

	glog.Info().Str("chip", name).Ints("lines", p.order).Msg("cdev backend ready")
	return p, nil
}

func (p *CdevPort) line(n int) (*gpiocdev.Line, error) {
	if p.closed {
		return nil, ErrClosed
	}
	l, ok := p.lines[n]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownPin, "line %d", n)
	}
	return l, nil
}

func (p *CdevPort) SetOutput(n int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	l, err := p.line(n)
	if err != nil {
		return err
	}
	return errors.Wrapf(l.Reconfigure(gpiocdev.AsOutput(0)), "reconfigure line %d", n)
}

func (p *CdevPort) SetPwmOutput(n int) error {
	return errors.Wrapf(ErrPWMUnsupported, "line %d", n)
}

// WriteDigital relies on the line's active-low flag, so active maps
// straight to 1.
func (p *CdevPort) WriteDigital(n int, active bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	l, err := p.line(n)
	if err != nil {
		return err
	}
	v := 0
	if active {
		v = 1
	}
	return errors.Wrapf(l.SetValue(v), "set line %d", n)
}

func (p *CdevPort) WritePwm(n int, value int) error {
	return errors.Wrapf(ErrPWMUnsupported, "line %d", n)
}

func (p *CdevPort) Sleep(d time.Duration) {
	time.Sleep(d)
}

func (p *CdevPort) SupportsPWM() bool {
	return false
}

// Close switches the LEDs off, reverts the lines to inputs and releases
// the chip.
func (p *CdevPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	var errs []error
	for _, n := range p.order {
		l := p.lines[n]
		if err := l.SetValue(0); err != nil {
			errs = append(errs, errors.Wrapf(err, "switch off line %d", n))
		}
		if err := l.Reconfigure(gpiocdev.AsInput); err != nil {
			errs = append(errs, errors.Wrapf(err, "reconfigure line %d", n))
		}
	}
	if err := p.release(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errors.Errorf("close errors: %v", errs)
	}
	return nil
}

func (p *CdevPort) release() error {
	for _, l := range p.lines {
		l.Close()
	}
	return p.chip.Close()
}
