package gpio

import (
	"sync"
	"time"
)

// Op identifies a Port method in a Fake's call log.
type Op string

const (
	OpSetOutput    Op = "set_output"
	OpSetPwmOutput Op = "set_pwm_output"
	OpWrite        Op = "write"
	OpWritePwm     Op = "write_pwm"
	OpSleep        Op = "sleep"
)

// Call is one recorded Port call.
type Call struct {
	Op       Op
	Pin      int
	Active   bool
	Value    int
	Duration time.Duration
}

// Fake is a test double that records every call instead of touching
// hardware. Sleep returns immediately. The zero value is usable, with no
// PWM.
type Fake struct {
	mu sync.Mutex

	// Pins fixes the order of the pins in Frames.
	Pins []int

	// PWM reports whether the fake advertises hardware PWM.
	PWM bool

	// Calls is the full call log.
	Calls []Call

	// Frames holds a snapshot of Pins taken at every Sleep.
	Frames [][]bool

	// AfterSleep, if set, runs after every Sleep with the number of sleeps
	// so far. Tests use it to cancel a pattern at a known point.
	AfterSleep func(n int)

	// Fail, if set, is consulted before each call is applied; a non-nil
	// result is returned to the caller and the call is not applied.
	Fail func(c Call) error

	// Closed tracks if Close was called
	Closed bool

	state   map[int]bool
	pwmMode map[int]bool
	sleeps  int
}

// NewFake creates a Fake for the given pins with PWM available.
func NewFake(pins ...int) *Fake {
	return &Fake{
		Pins:    pins,
		PWM:     true,
		state:   make(map[int]bool),
		pwmMode: make(map[int]bool),
	}
}

func (f *Fake) record(c Call) error {
	if f.Fail != nil {
		if err := f.Fail(c); err != nil {
			return err
		}
	}
	if f.state == nil {
		f.state = make(map[int]bool)
		f.pwmMode = make(map[int]bool)
	}
	f.Calls = append(f.Calls, c)
	return nil
}

func (f *Fake) SetOutput(pin int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record(Call{Op: OpSetOutput, Pin: pin}); err != nil {
		return err
	}
	delete(f.pwmMode, pin)
	return nil
}

func (f *Fake) SetPwmOutput(pin int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.PWM {
		return ErrPWMUnsupported
	}
	if err := f.record(Call{Op: OpSetPwmOutput, Pin: pin}); err != nil {
		return err
	}
	f.pwmMode[pin] = true
	return nil
}

func (f *Fake) WriteDigital(pin int, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record(Call{Op: OpWrite, Pin: pin, Active: active}); err != nil {
		return err
	}
	f.state[pin] = active
	return nil
}

func (f *Fake) WritePwm(pin int, value int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.pwmMode[pin] {
		return ErrPWMUnsupported
	}
	if err := checkPwm(value); err != nil {
		return err
	}
	return f.record(Call{Op: OpWritePwm, Pin: pin, Value: value})
}

func (f *Fake) Sleep(d time.Duration) {
	f.mu.Lock()
	f.Calls = append(f.Calls, Call{Op: OpSleep, Duration: d})
	frame := make([]bool, len(f.Pins))
	for i, pin := range f.Pins {
		frame[i] = f.state[pin]
	}
	f.Frames = append(f.Frames, frame)
	f.sleeps++
	n := f.sleeps
	hook := f.AfterSleep
	f.mu.Unlock()

	if hook != nil {
		hook(n)
	}
}

func (f *Fake) SupportsPWM() bool {
	return f.PWM
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Closed = true
	return nil
}

// State returns the last logical level written to pin.
func (f *Fake) State(pin int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.state[pin]
}

// IsPwm reports whether pin is currently in PWM mode.
func (f *Fake) IsPwm(pin int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.pwmMode[pin]
}

// Count returns how many calls of the given kind were recorded.
func (f *Fake) Count(op Op) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, c := range f.Calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Sleeps returns the durations passed to Sleep, in order.
func (f *Fake) Sleeps() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()

	var ds []time.Duration
	for _, c := range f.Calls {
		if c.Op == OpSleep {
			ds = append(ds, c.Duration)
		}
	}
	return ds
}

// PwmValues returns every duty value written to pin, in order.
func (f *Fake) PwmValues(pin int) []int {
	f.mu.Lock()
	defer f.mu.Unlock()

	var vs []int
	for _, c := range f.Calls {
		if c.Op == OpWritePwm && c.Pin == pin {
			vs = append(vs, c.Value)
		}
	}
	return vs
}

// Reset clears the call log and frames but keeps the pin states.
func (f *Fake) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Calls = nil
	f.Frames = nil
	f.sleeps = 0
}
