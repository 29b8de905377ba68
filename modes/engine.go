// Package modes is the pattern engine: a fixed set of timed LED animations
// driven through a gpio.Port. Every pattern blocks until its Token is
// cancelled (or, for AllBlink, until the repeats are done), checking the
// token once per iteration.
package modes

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"gregoryjjb/eightled/gpio"
)

var mlog zerolog.Logger

func init() {
	mlog = log.With().Str("component", "engine").Logger()
}

const (
	// MaxPins is the widest Pin Set the binary counter can represent.
	MaxPins = 31

	// RolloverRepeat is how often all LEDs flash when the counter wraps.
	RolloverRepeat = 3

	DefaultBlinkRepeat = 3

	// DefaultPwmPin is BCM 18, the Pi's PWM0 pin (wiringPi 1).
	DefaultPwmPin = 18

	// FadeInterval is the fixed step time of the breathing fade.
	FadeInterval = 5 * time.Millisecond

	// PwmMax is the top of the breathing fade's duty range.
	PwmMax = gpio.PwmRange
)

var (
	ErrNoPins           = errors.New("pin set is empty")
	ErrTooManyPins      = fmt.Errorf("pin set is wider than %d pins", MaxPins)
	ErrTooFewPins       = errors.New("flowing light needs at least 2 pins")
	ErrInvalidDelay     = errors.New("delay must be positive")
	ErrInvalidRepeat    = errors.New("repeat must be positive")
	ErrNoToken          = errors.New("no cancellation token")
	ErrInterruptInstall = errors.New("cannot install interrupt handler")
	ErrUnknownPattern   = errors.New("unknown pattern")
)

// PinSet is an ordered list of pins. Index i is bit i of the binary
// counter and position i of the flowing light.
type PinSet []int

func (ps PinSet) validate() error {
	if len(ps) == 0 {
		return ErrNoPins
	}
	if len(ps) > MaxPins {
		return ErrTooManyPins
	}
	return nil
}

type EventKind string

const (
	EventStarted   EventKind = "started"
	EventIteration EventKind = "iteration"
	EventBlink     EventKind = "blink"
	EventStopped   EventKind = "stopped"
	EventFailed    EventKind = "failed"
)

// Event reports engine progress to an Observer. Iteration counts loop
// iterations completed so far; Repeat is set on blink events.
type Event struct {
	Kind      EventKind
	Pattern   Pattern
	Iteration int
	Repeat    int
	Err       error
}

// Observer is called synchronously from the pattern loop, so it must not
// block.
type Observer func(Event)

type Engine struct {
	port         gpio.Port
	interrupts   Interrupts
	observer     Observer
	blinkRepeat  int
	outro        bool
	pwmPin       int
	fadeInterval time.Duration
	log          zerolog.Logger
}

type Option func(*Engine)

// WithInterrupts installs the engine's stop handler on src for the
// duration of every pattern call.
func WithInterrupts(src Interrupts) Option {
	return func(e *Engine) { e.interrupts = src }
}

func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithBlinkRepeat sets the flowing light's intro flourish length.
func WithBlinkRepeat(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.blinkRepeat = n
		}
	}
}

// WithOutro replays the intro flourish after the flowing light stops.
func WithOutro(enabled bool) Option {
	return func(e *Engine) { e.outro = enabled }
}

func WithPwmPin(pin int) Option {
	return func(e *Engine) { e.pwmPin = pin }
}

// WithFadeInterval overrides FadeInterval; only tests should need this.
func WithFadeInterval(d time.Duration) Option {
	return func(e *Engine) { e.fadeInterval = d }
}

func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

func New(port gpio.Port, opts ...Option) *Engine {
	e := &Engine{
		port:         port,
		blinkRepeat:  DefaultBlinkRepeat,
		pwmPin:       DefaultPwmPin,
		fadeInterval: FadeInterval,
		log:          mlog,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SupportsPWM reports whether BreathingFade can run on this engine's port.
func (e *Engine) SupportsPWM() bool {
	return e.port.SupportsPWM()
}

// Available lists the patterns this engine can run.
func (e *Engine) Available() []Pattern {
	var ps []Pattern
	for _, p := range Patterns {
		if p.NeedsPWM() && !e.SupportsPWM() {
			continue
		}
		ps = append(ps, p)
	}
	return ps
}

func (e *Engine) emit(ev Event) {
	if e.observer != nil {
		e.observer(ev)
	}
}

// session brackets a single pattern call. It installs the interrupt
// handler, runs body, then always runs cleanup, resets the token and
// restores the previous handler. A cleanup error only surfaces when body
// succeeded.
func (e *Engine) session(tok *Token, p Pattern, body func() error, cleanup func() error) (err error) {
	if tok == nil {
		return ErrNoToken
	}

	restore := func() {}
	if e.interrupts != nil {
		r, ierr := e.interrupts.OnInterrupt(func() { tok.Cancel() })
		if ierr != nil {
			return fmt.Errorf("%s: %w: %w", p, ErrInterruptInstall, ierr)
		}
		restore = r
	}

	e.emit(Event{Kind: EventStarted, Pattern: p})

	defer func() {
		if cleanup != nil {
			if cerr := cleanup(); cerr != nil {
				if err == nil {
					err = fmt.Errorf("%s cleanup: %w", p, cerr)
				} else {
					e.log.Warn().Err(cerr).Str("pattern", string(p)).Msg("Cleanup failed")
				}
			}
		}
		tok.Reset()
		restore()

		if err != nil {
			e.emit(Event{Kind: EventFailed, Pattern: p, Err: err})
		} else {
			e.emit(Event{Kind: EventStopped, Pattern: p})
		}
	}()

	return body()
}

// setAll drives every pin in ps to the same state.
func (e *Engine) setAll(ps PinSet, active bool) error {
	for _, pin := range ps {
		if err := e.port.WriteDigital(pin, active); err != nil {
			return fmt.Errorf("write pin %d: %w", pin, err)
		}
	}
	return nil
}

// allOff is the common cleanup: every LED off, all attempted even if one
// fails.
func (e *Engine) allOff(ps PinSet) func() error {
	return func() error {
		var errs []error
		for _, pin := range ps {
			if err := e.port.WriteDigital(pin, false); err != nil {
				errs = append(errs, fmt.Errorf("write pin %d: %w", pin, err))
			}
		}
		return errors.Join(errs...)
	}
}

// Request describes one pattern call for Run.
type Request struct {
	Pattern Pattern
	Pins    PinSet
	Delay   time.Duration
	Repeat  int
}

// Run dispatches req to the matching pattern and blocks until it returns.
func (e *Engine) Run(tok *Token, req Request) error {
	switch req.Pattern {
	case PatternBinaryCounter:
		return e.BinaryCounter(tok, req.Pins, req.Delay)
	case PatternFlowingLight:
		return e.FlowingLight(tok, req.Pins, req.Delay)
	case PatternBreathingFade:
		return e.BreathingFade(tok)
	case PatternAllBlink:
		repeat := req.Repeat
		if repeat == 0 {
			repeat = e.blinkRepeat
		}
		return e.AllBlink(tok, req.Pins, req.Delay, repeat)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownPattern, req.Pattern)
	}
}
