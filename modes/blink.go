package modes

import (
	"fmt"
	"time"
)

// AllBlink flashes every pin on and off repeat times. It is not
// cancellable part way; a stop request is only seen once it returns, so
// the worst-case stop latency inside a blink is 2*repeat*delay.
func (e *Engine) AllBlink(tok *Token, pins PinSet, delay time.Duration, repeat int) error {
	if err := pins.validate(); err != nil {
		return err
	}
	if delay <= 0 {
		return ErrInvalidDelay
	}
	if repeat <= 0 {
		return ErrInvalidRepeat
	}

	return e.session(tok, PatternAllBlink, func() error {
		return e.allBlink(PatternAllBlink, pins, delay, repeat)
	}, nil)
}

// allBlink is the flourish shared by every pattern; p is the pattern
// showing it.
func (e *Engine) allBlink(p Pattern, pins PinSet, delay time.Duration, repeat int) error {
	e.log.Debug().Int("repeat", repeat).Msg("All LEDs are blinking")

	for i := 0; i < repeat; i++ {
		if err := e.setAll(pins, true); err != nil {
			return fmt.Errorf("blink: %w", err)
		}
		e.port.Sleep(delay)

		if err := e.setAll(pins, false); err != nil {
			return fmt.Errorf("blink: %w", err)
		}
		e.port.Sleep(delay)
	}

	e.emit(Event{Kind: EventBlink, Pattern: p, Repeat: repeat})
	return nil
}
