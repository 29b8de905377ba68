package modes

import (
	"errors"
	"fmt"

	"gregoryjjb/eightled/gpio"
)

// BreathingFade ramps the PWM pin's duty between 0 and PwmMax and back,
// one step every FadeInterval. The pin is returned to plain digital
// output when the fade stops.
func (e *Engine) BreathingFade(tok *Token) error {
	pin := e.pwmPin
	if !e.port.SupportsPWM() {
		return fmt.Errorf("breathing fade: pin %d: %w", pin, gpio.ErrPWMUnsupported)
	}

	return e.session(tok, PatternBreathingFade, func() error {
		if err := e.port.SetPwmOutput(pin); err != nil {
			return fmt.Errorf("breathing fade: pwm mode on pin %d: %w", pin, err)
		}

		e.log.Info().Int("pin", pin).Msg("Breathing")

		level, direction := 0, 1
		for n := 1; tok.Running(); n++ {
			if err := e.port.WritePwm(pin, level); err != nil {
				return fmt.Errorf("breathing fade at %d: pwm pin %d: %w", level, pin, err)
			}
			e.port.Sleep(e.fadeInterval)

			level, direction = reflectLevel(level+direction, direction)
			e.emit(Event{Kind: EventIteration, Pattern: PatternBreathingFade, Iteration: n})
		}
		return nil
	}, func() error {
		return errors.Join(
			e.port.SetOutput(pin),
			e.port.WriteDigital(pin, false),
		)
	})
}

// reflectLevel bounces level off the ends of [0, PwmMax], landing one step
// inside the bound in the new direction: PwmMax+1 becomes PwmMax-1 and
// -1 becomes 1.
func reflectLevel(level, direction int) (int, int) {
	if level > PwmMax {
		direction = -1
		level = PwmMax + direction
	}
	if level < 0 {
		direction = 1
		level = 0 + direction
	}
	return level, direction
}
