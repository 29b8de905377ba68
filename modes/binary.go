package modes

import (
	"fmt"
	"time"
)

// BinaryCounter shows an incrementing counter in binary across pins,
// wrapping at 2^N. Just before the all-ones value is shown, every LED
// flashes RolloverRepeat times.
func (e *Engine) BinaryCounter(tok *Token, pins PinSet, delay time.Duration) error {
	if err := pins.validate(); err != nil {
		return err
	}
	if delay <= 0 {
		return ErrInvalidDelay
	}

	mask := 1<<len(pins) - 1

	return e.session(tok, PatternBinaryCounter, func() error {
		e.log.Info().Int("pins", len(pins)).Dur("delay", delay).Msg("Counting")

		counter := 0
		for n := 1; tok.Running(); n++ {
			if err := e.showBinary(pins, counter); err != nil {
				return fmt.Errorf("binary counter at %d: %w", counter, err)
			}
			e.port.Sleep(delay)

			counter = (counter + 1) & mask
			if counter == mask {
				if err := e.allBlink(PatternBinaryCounter, pins, delay, RolloverRepeat); err != nil {
					return fmt.Errorf("binary counter rollover: %w", err)
				}
			}

			e.emit(Event{Kind: EventIteration, Pattern: PatternBinaryCounter, Iteration: n})
		}
		return nil
	}, e.allOff(pins))
}

// showBinary lights pin i iff bit i of value is set.
func (e *Engine) showBinary(pins PinSet, value int) error {
	for i, pin := range pins {
		if err := e.port.WriteDigital(pin, value&(1<<i) != 0); err != nil {
			return fmt.Errorf("write pin %d: %w", pin, err)
		}
	}
	return nil
}
