package modes

import (
	"fmt"
	"strings"
)

// Pattern names one of the built-in animations.
type Pattern string

const (
	PatternBinaryCounter Pattern = "binary"
	PatternFlowingLight  Pattern = "flowing"
	PatternBreathingFade Pattern = "breathing"
	PatternAllBlink      Pattern = "blink"
)

// Patterns is the menu order.
var Patterns = []Pattern{
	PatternBinaryCounter,
	PatternFlowingLight,
	PatternBreathingFade,
	PatternAllBlink,
}

func ParsePattern(s string) (Pattern, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, p := range Patterns {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPattern, s)
}

// NeedsPWM reports whether the pattern needs a hardware PWM pin.
func (p Pattern) NeedsPWM() bool {
	return p == PatternBreathingFade
}

// Endless reports whether the pattern runs until cancelled.
func (p Pattern) Endless() bool {
	return p != PatternAllBlink
}

func (p Pattern) Title() string {
	switch p {
	case PatternBinaryCounter:
		return "binary counter"
	case PatternFlowingLight:
		return "flowing lights"
	case PatternBreathingFade:
		return "breathing LED"
	case PatternAllBlink:
		return "blink all"
	}
	return string(p)
}
