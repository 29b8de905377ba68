package gpio

import (
	"sync"
	"time"
)

// SimulatedPort prints the pin states to the debug log instead of driving
// hardware. It sleeps for real so a dry run looks like the real thing.
type SimulatedPort struct {
	mu     sync.Mutex
	pins   []int
	states map[int]bool
	pwm    map[int]int
}

func NewSimulatedPort(opts Options) *SimulatedPort {
	glog.Debug().Ints("pins", opts.Pins).Msg("GPIO will be simulated")

	s := &SimulatedPort{
		pins:   opts.Pins,
		states: make(map[int]bool, len(opts.Pins)),
		pwm:    make(map[int]int),
	}
	return s
}

func (s *SimulatedPort) printStates() {
	var str string
	for _, pin := range s.pins {
		if s.states[pin] {
			str += "#"
		} else {
			str += " "
		}
	}
	glog.Debug().Str("pins", str).Msg("GPIO")
}

func (s *SimulatedPort) SetOutput(pin int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.pwm, pin)
	return nil
}

func (s *SimulatedPort) SetPwmOutput(pin int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pwm[pin] = 0
	return nil
}

func (s *SimulatedPort) WriteDigital(pin int, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.states[pin] = active
	return nil
}

func (s *SimulatedPort) WritePwm(pin int, value int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := checkPwm(value); err != nil {
		return err
	}
	if _, ok := s.pwm[pin]; !ok {
		return ErrPWMUnsupported
	}
	s.pwm[pin] = value
	return nil
}

// Sleep logs the frame that is about to be held, then waits.
func (s *SimulatedPort) Sleep(d time.Duration) {
	s.mu.Lock()
	if len(s.pwm) > 0 {
		glog.Trace().Interface("pwm", s.pwm).Msg("GPIO")
	} else {
		s.printStates()
	}
	s.mu.Unlock()

	time.Sleep(d)
}

func (s *SimulatedPort) SupportsPWM() bool {
	return true
}

func (s *SimulatedPort) Close() error {
	glog.Debug().Msg("Simulated GPIO closing")
	return nil
}
