package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"gregoryjjb/eightled/modes"
)

var ErrNoSuchMode = errors.New("mode does not exist")

// Menu is the interactive text selector: it lists the modes, reads a
// choice and a delay, then runs the pattern in the foreground.
type Menu struct {
	engine *modes.Engine
	pins   modes.PinSet
	delays DelayBounds
	in     *bufio.Scanner
	out    io.Writer
}

func NewMenu(engine *modes.Engine, config *Config, in io.Reader, out io.Writer) *Menu {
	return &Menu{
		engine: engine,
		pins:   config.Pinout(),
		delays: config.Delay(),
		in:     bufio.NewScanner(in),
		out:    out,
	}
}

func (m *Menu) readLine() (string, bool) {
	if !m.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(m.in.Text()), true
}

// SelectMode prints the modes this port can run and reads a choice.
func (m *Menu) SelectMode() (modes.Pattern, error) {
	available := m.engine.Available()

	fmt.Fprintln(m.out, "Modes:")
	for i, p := range available {
		fmt.Fprintf(m.out, "\t%d: %s\n", i+1, p.Title())
	}
	fmt.Fprint(m.out, "Select: ")

	line, ok := m.readLine()
	if !ok {
		return "", ErrNoSuchMode
	}
	n, err := strconv.Atoi(line)
	if err != nil || n < 1 || n > len(available) {
		return "", fmt.Errorf("%w: %q", ErrNoSuchMode, line)
	}
	return available[n-1], nil
}

// ReadDelay reads a delay in milliseconds. Unparseable or out of range
// input falls back to the default delay with a message.
func (m *Menu) ReadDelay() time.Duration {
	fmt.Fprint(m.out, "Delay [ms]: ")

	line, ok := m.readLine()
	ms, err := strconv.Atoi(line)
	if !ok || err != nil {
		fmt.Fprintln(m.out, "Input error!")
		return m.delays.DefaultDelay()
	}

	delay, inBounds := m.delays.Clamp(ms)
	if !inBounds {
		fmt.Fprintf(m.out, "Delay value out of bounds: %d <= DELAY <= %d\n", m.delays.Min, m.delays.Max)
		fmt.Fprintf(m.out, "Using default delay: %d ms\n", m.delays.Default)
	}
	return delay
}

// Run asks for a mode and its delay, then blocks in the pattern until tok
// is cancelled.
func (m *Menu) Run(tok *modes.Token) error {
	p, err := m.SelectMode()
	if err != nil {
		fmt.Fprintln(m.out, "Mode does not exist.")
		return err
	}

	req := modes.Request{Pattern: p, Pins: m.pins}
	if p != modes.PatternBreathingFade {
		req.Delay = m.ReadDelay()
	}

	if p.Endless() {
		fmt.Fprintf(m.out, "Running %s, press Ctrl+C to stop\n", p.Title())
	}
	return m.engine.Run(tok, req)
}
