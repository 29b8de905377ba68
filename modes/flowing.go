package modes

import (
	"fmt"
	"time"
)

// FlowingLight sweeps a single lit LED back and forth across pins. The
// end pins are lit once per pass, never twice in a row.
func (e *Engine) FlowingLight(tok *Token, pins PinSet, delay time.Duration) error {
	if err := pins.validate(); err != nil {
		return err
	}
	if len(pins) < 2 {
		return ErrTooFewPins
	}
	if delay <= 0 {
		return ErrInvalidDelay
	}

	return e.session(tok, PatternFlowingLight, func() error {
		if err := e.allBlink(PatternFlowingLight, pins, delay, e.blinkRepeat); err != nil {
			return fmt.Errorf("flowing light intro: %w", err)
		}

		e.log.Info().Int("pins", len(pins)).Dur("delay", delay).Msg("Looping")

		position, direction := 0, 1
		for n := 1; tok.Running(); n++ {
			pin := pins[position]
			if err := e.port.WriteDigital(pin, true); err != nil {
				return fmt.Errorf("flowing light at %d: write pin %d: %w", position, pin, err)
			}
			e.port.Sleep(delay)
			if err := e.port.WriteDigital(pin, false); err != nil {
				return fmt.Errorf("flowing light at %d: write pin %d: %w", position, pin, err)
			}

			position, direction = bounce(position+direction, direction, len(pins))
			e.emit(Event{Kind: EventIteration, Pattern: PatternFlowingLight, Iteration: n})
		}

		if e.outro {
			if err := e.allBlink(PatternFlowingLight, pins, delay, e.blinkRepeat); err != nil {
				return fmt.Errorf("flowing light outro: %w", err)
			}
		}
		return nil
	}, e.allOff(pins))
}

// bounce turns the sweep around at either end of n positions.
func bounce(position, direction, n int) (int, int) {
	if position >= n {
		return n - 2, -1
	}
	if position < 0 {
		return 1, 1
	}
	return position, direction
}
