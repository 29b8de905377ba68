package modes

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gregoryjjb/eightled/gpio"
)

const testDelay = 10 * time.Millisecond

var eightPins = PinSet{4, 25, 24, 23, 22, 27, 18, 17}

type fakeInterrupts struct {
	handler  func()
	installs int
	restores int
	err      error
}

func (f *fakeInterrupts) OnInterrupt(h func()) (func(), error) {
	if f.err != nil {
		return nil, f.err
	}
	prev := f.handler
	f.handler = h
	f.installs++
	return func() {
		f.handler = prev
		f.restores++
	}, nil
}

func (f *fakeInterrupts) fire() {
	if f.handler != nil {
		f.handler()
	}
}

// stopAfterIterations returns an observer that cancels tok once the
// pattern has completed n iterations.
func stopAfterIterations(tok *Token, n int) Observer {
	return func(ev Event) {
		if ev.Kind == EventIteration && ev.Iteration == n {
			tok.Cancel()
		}
	}
}

func frameValue(frame []bool) int {
	v := 0
	for i, on := range frame {
		if on {
			v |= 1 << i
		}
	}
	return v
}

func litPositions(frame []bool) []int {
	var lit []int
	for i, on := range frame {
		if on {
			lit = append(lit, i)
		}
	}
	return lit
}

func assertAllOff(t *testing.T, f *gpio.Fake, pins PinSet) {
	t.Helper()
	for _, pin := range pins {
		assert.False(t, f.State(pin), "pin %d left on", pin)
	}
}

func TestBinaryCounter(t *testing.T) {
	t.Run("ShowsEveryValueOncePerWrap", func(t *testing.T) {
		for n := 1; n <= 6; n++ {
			pins := eightPins[:n]
			f := gpio.NewFake(pins...)
			tok := NewToken()
			wrap := 1 << n

			var blinkEnds []int
			var blinkRepeats []int
			stop := stopAfterIterations(tok, 2*wrap)
			e := New(f, WithObserver(func(ev Event) {
				if ev.Kind == EventBlink {
					blinkEnds = append(blinkEnds, len(f.Frames))
					blinkRepeats = append(blinkRepeats, ev.Repeat)
				}
				stop(ev)
			}))

			require.NoError(t, e.BinaryCounter(tok, pins, testDelay))

			// Drop the rollover flashes; what remains is the counter.
			var values []int
			skip := map[int]bool{}
			for _, end := range blinkEnds {
				for i := end - 2*RolloverRepeat; i < end; i++ {
					skip[i] = true
				}
			}
			for i, frame := range f.Frames {
				if !skip[i] {
					values = append(values, frameValue(frame))
				}
			}

			var want []int
			for cycle := 0; cycle < 2; cycle++ {
				for v := 0; v < wrap; v++ {
					want = append(want, v)
				}
			}
			assert.Equal(t, want, values, "n=%d", n)
			assert.Equal(t, []int{RolloverRepeat, RolloverRepeat}, blinkRepeats, "one rollover blink per wrap, n=%d", n)
			assertAllOff(t, f, pins)
			assert.True(t, tok.Running())
		}
	})

	t.Run("RolloverBlinkPrecedesAllOnes", func(t *testing.T) {
		pins := eightPins[:3]
		f := gpio.NewFake(pins...)
		tok := NewToken()
		f.AfterSleep = func(n int) {
			if n == 14 {
				tok.Cancel()
			}
		}

		require.NoError(t, New(f).BinaryCounter(tok, pins, testDelay))

		on := []bool{true, true, true}
		off := []bool{false, false, false}
		want := [][]bool{
			{false, false, false},
			{true, false, false},
			{false, true, false},
			{true, true, false},
			{false, false, true},
			{true, false, true},
			{false, true, true},
			on, off, on, off, on, off,
			{true, true, true},
		}
		assert.Equal(t, want, f.Frames)
		for _, d := range f.Sleeps() {
			assert.Equal(t, testDelay, d)
		}
	})

	t.Run("CancelledBeforeStart", func(t *testing.T) {
		f := gpio.NewFake(eightPins...)
		tok := NewToken()
		tok.Cancel()

		require.NoError(t, New(f).BinaryCounter(tok, eightPins, testDelay))

		assert.Empty(t, f.Frames)
		assert.True(t, tok.Running())
	})
}

func TestFlowingLight(t *testing.T) {
	t.Run("BouncesWithoutRepeatingEnds", func(t *testing.T) {
		f := gpio.NewFake(eightPins...)
		tok := NewToken()
		e := New(f, WithObserver(stopAfterIterations(tok, 14)))

		require.NoError(t, e.FlowingLight(tok, eightPins, testDelay))

		intro := 2 * DefaultBlinkRepeat
		require.Len(t, f.Frames, intro+14)

		var positions []int
		for _, frame := range f.Frames[intro:] {
			lit := litPositions(frame)
			require.Len(t, lit, 1)
			positions = append(positions, lit[0])
		}
		assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 6, 5, 4, 3, 2, 1}, positions)
		assertAllOff(t, f, eightPins)
	})

	t.Run("IntroFlourish", func(t *testing.T) {
		pins := eightPins[:4]
		f := gpio.NewFake(pins...)
		tok := NewToken()
		e := New(f, WithBlinkRepeat(5), WithObserver(stopAfterIterations(tok, 1)))

		require.NoError(t, e.FlowingLight(tok, pins, testDelay))

		require.Len(t, f.Frames, 11)
		for i := 0; i < 10; i++ {
			want := i%2 == 0
			assert.Equal(t, []bool{want, want, want, want}, f.Frames[i], "intro frame %d", i)
		}
	})

	t.Run("Outro", func(t *testing.T) {
		pins := eightPins[:2]
		f := gpio.NewFake(pins...)
		tok := NewToken()
		e := New(f, WithOutro(true), WithObserver(stopAfterIterations(tok, 3)))

		require.NoError(t, e.FlowingLight(tok, pins, testDelay))

		assert.Len(t, f.Frames, 2*DefaultBlinkRepeat+3+2*DefaultBlinkRepeat)
	})

	t.Run("NeverLeavesThePinSet", func(t *testing.T) {
		for n := 2; n <= 9; n++ {
			pins := make(PinSet, n)
			for i := range pins {
				pins[i] = 100 + i
			}
			f := gpio.NewFake(pins...)
			tok := NewToken()
			e := New(f, WithObserver(stopAfterIterations(tok, 500)))

			require.NoError(t, e.FlowingLight(tok, pins, testDelay))

			prev := -1
			for _, frame := range f.Frames[2*DefaultBlinkRepeat:] {
				lit := litPositions(frame)
				require.Len(t, lit, 1, "n=%d", n)
				assert.NotEqual(t, prev, lit[0], "n=%d lit the same pin twice", n)
				prev = lit[0]
			}
			for _, c := range f.Calls {
				if c.Op == gpio.OpWrite {
					assert.GreaterOrEqual(t, c.Pin, 100)
					assert.Less(t, c.Pin, 100+n)
				}
			}
		}
	})

	t.Run("CancelledBeforeStartShowsIntroOnly", func(t *testing.T) {
		pins := eightPins[:3]
		f := gpio.NewFake(pins...)
		tok := NewToken()
		tok.Cancel()

		require.NoError(t, New(f).FlowingLight(tok, pins, testDelay))

		assert.Len(t, f.Frames, 2*DefaultBlinkRepeat)
		assert.True(t, tok.Running())
	})

	t.Run("TooFewPins", func(t *testing.T) {
		f := gpio.NewFake(1)
		assert.ErrorIs(t, New(f).FlowingLight(NewToken(), PinSet{1}, testDelay), ErrTooFewPins)
		assert.Empty(t, f.Calls)
	})
}

func TestBounce(t *testing.T) {
	tests := []struct {
		name          string
		position, dir int
		n             int
		wantPos       int
		wantDir       int
	}{
		{name: "inside", position: 3, dir: 1, n: 8, wantPos: 3, wantDir: 1},
		{name: "off high end", position: 8, dir: 1, n: 8, wantPos: 6, wantDir: -1},
		{name: "off low end", position: -1, dir: -1, n: 8, wantPos: 1, wantDir: 1},
		{name: "two pins high", position: 2, dir: 1, n: 2, wantPos: 0, wantDir: -1},
		{name: "two pins low", position: -1, dir: -1, n: 2, wantPos: 1, wantDir: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pos, dir := bounce(tt.position, tt.dir, tt.n)
			assert.Equal(t, tt.wantPos, pos)
			assert.Equal(t, tt.wantDir, dir)
		})
	}
}

func TestBreathingFade(t *testing.T) {
	t.Run("ReflectsAtBothBounds", func(t *testing.T) {
		f := gpio.NewFake(eightPins...)
		tok := NewToken()
		e := New(f, WithObserver(stopAfterIterations(tok, 3000)))

		require.NoError(t, e.BreathingFade(tok))

		levels := f.PwmValues(DefaultPwmPin)
		require.Len(t, levels, 3000)
		for i, l := range levels {
			require.GreaterOrEqual(t, l, 0, "step %d", i)
			require.LessOrEqual(t, l, PwmMax, "step %d", i)
		}

		assert.Equal(t, 0, levels[0])
		assert.Equal(t, 1023, levels[1023])
		assert.Equal(t, 1024, levels[1024])
		assert.Equal(t, 1023, levels[1025])
		assert.Equal(t, 1022, levels[1026])
		assert.Equal(t, 0, levels[2048])
		assert.Equal(t, 1, levels[2049])
		assert.Equal(t, 2, levels[2050])

		for _, d := range f.Sleeps() {
			assert.Equal(t, FadeInterval, d)
		}
	})

	t.Run("RestoresDigitalMode", func(t *testing.T) {
		f := gpio.NewFake(eightPins...)
		tok := NewToken()
		e := New(f, WithPwmPin(13), WithObserver(stopAfterIterations(tok, 10)))

		require.NoError(t, e.BreathingFade(tok))

		assert.Equal(t, gpio.OpSetPwmOutput, f.Calls[0].Op)
		assert.Equal(t, 13, f.Calls[0].Pin)
		assert.False(t, f.IsPwm(13))
		assert.False(t, f.State(13))
		assert.Equal(t, 1, f.Count(gpio.OpSetOutput))
	})

	t.Run("NoPwm", func(t *testing.T) {
		f := gpio.NewFake(eightPins...)
		f.PWM = false

		err := New(f).BreathingFade(NewToken())

		assert.ErrorIs(t, err, gpio.ErrPWMUnsupported)
		assert.Empty(t, f.Calls)
	})
}

func TestReflectLevel(t *testing.T) {
	tests := []struct {
		name           string
		level, dir     int
		wantLvl, wantD int
	}{
		{name: "rising", level: 500, dir: 1, wantLvl: 500, wantD: 1},
		{name: "top", level: 1024, dir: 1, wantLvl: 1024, wantD: 1},
		{name: "past top", level: 1025, dir: 1, wantLvl: 1023, wantD: -1},
		{name: "bottom", level: 0, dir: -1, wantLvl: 0, wantD: -1},
		{name: "past bottom", level: -1, dir: -1, wantLvl: 1, wantD: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, d := reflectLevel(tt.level, tt.dir)
			assert.Equal(t, tt.wantLvl, l)
			assert.Equal(t, tt.wantD, d)
		})
	}
}

func TestAllBlink(t *testing.T) {
	pins := PinSet{1, 2, 3, 4}
	f := gpio.NewFake(pins...)
	tok := NewToken()

	require.NoError(t, New(f).AllBlink(tok, pins, testDelay, 3))

	assert.Equal(t, 6*len(pins), f.Count(gpio.OpWrite))
	assert.Equal(t, []time.Duration{testDelay, testDelay, testDelay, testDelay, testDelay, testDelay}, f.Sleeps())

	on := []bool{true, true, true, true}
	off := []bool{false, false, false, false}
	assert.Equal(t, [][]bool{on, off, on, off, on, off}, f.Frames)
	assert.True(t, tok.Running())
}

func TestBlinkEventsNameTheirPattern(t *testing.T) {
	pins := eightPins[:2]
	f := gpio.NewFake(pins...)
	tok := NewToken()

	var blinks []Pattern
	stop := stopAfterIterations(tok, 4)
	e := New(f, WithOutro(true), WithObserver(func(ev Event) {
		if ev.Kind == EventBlink {
			blinks = append(blinks, ev.Pattern)
		}
		stop(ev)
	}))

	require.NoError(t, e.BinaryCounter(tok, pins, testDelay))
	assert.Equal(t, []Pattern{PatternBinaryCounter}, blinks)

	blinks = nil
	stop = stopAfterIterations(tok, 1)
	require.NoError(t, e.FlowingLight(tok, pins, testDelay))
	assert.Equal(t, []Pattern{PatternFlowingLight, PatternFlowingLight}, blinks)

	blinks = nil
	require.NoError(t, e.AllBlink(tok, pins, testDelay, 1))
	assert.Equal(t, []Pattern{PatternAllBlink}, blinks)
}

func TestAllBlinkIgnoresCancelMidway(t *testing.T) {
	pins := PinSet{1, 2}
	f := gpio.NewFake(pins...)
	tok := NewToken()
	f.AfterSleep = func(n int) {
		if n == 1 {
			tok.Cancel()
		}
	}

	require.NoError(t, New(f).AllBlink(tok, pins, testDelay, 3))

	assert.Len(t, f.Sleeps(), 6)
	assert.True(t, tok.Running())
}

func TestCancellation(t *testing.T) {
	t.Run("Idempotent", func(t *testing.T) {
		pins := eightPins[:2]
		f := gpio.NewFake(pins...)
		tok := NewToken()
		var first, second bool
		f.AfterSleep = func(n int) {
			if n == 2 {
				first = tok.Cancel()
				second = tok.Cancel()
			}
		}

		require.NoError(t, New(f).BinaryCounter(tok, pins, testDelay))

		assert.True(t, first)
		assert.False(t, second)
		assert.Len(t, f.Frames, 2)
		assert.True(t, tok.Running())
	})

	t.Run("ViaInterruptSource", func(t *testing.T) {
		pins := eightPins[:4]
		f := gpio.NewFake(pins...)
		irq := &fakeInterrupts{}
		tok := NewToken()
		f.AfterSleep = func(n int) {
			if n == 20 {
				irq.fire()
				irq.fire()
			}
		}

		require.NoError(t, New(f, WithInterrupts(irq)).FlowingLight(tok, pins, testDelay))

		assert.Len(t, f.Frames, 20)
		assert.Equal(t, 1, irq.installs)
		assert.Equal(t, 1, irq.restores)
		assert.Nil(t, irq.handler)
		assert.True(t, tok.Running())
	})

	t.Run("RestoresPreviousHandler", func(t *testing.T) {
		pins := eightPins[:2]
		f := gpio.NewFake(pins...)
		prevCalled := false
		irq := &fakeInterrupts{handler: func() { prevCalled = true }}

		require.NoError(t, New(f, WithInterrupts(irq)).AllBlink(NewToken(), pins, testDelay, 1))

		require.NotNil(t, irq.handler)
		irq.fire()
		assert.True(t, prevCalled)
	})

	t.Run("InstallFailure", func(t *testing.T) {
		f := gpio.NewFake(eightPins...)
		irq := &fakeInterrupts{err: errors.New("no signals here")}

		err := New(f, WithInterrupts(irq)).BinaryCounter(NewToken(), eightPins, testDelay)

		assert.ErrorIs(t, err, ErrInterruptInstall)
		assert.Empty(t, f.Calls)
	})

	t.Run("ConsecutiveCallsNeedNoReset", func(t *testing.T) {
		pins := eightPins[:3]
		f := gpio.NewFake(pins...)
		tok := NewToken()
		f.AfterSleep = func(n int) {
			if n == 5 {
				tok.Cancel()
			}
		}
		e := New(f)

		require.NoError(t, e.BinaryCounter(tok, pins, testDelay))
		assert.True(t, tok.Running())

		f.AfterSleep = nil
		f.Reset()
		e = New(f, WithObserver(stopAfterIterations(tok, 4)))
		require.NoError(t, e.FlowingLight(tok, pins, testDelay))

		assert.Len(t, f.Frames, 2*DefaultBlinkRepeat+4)
		assert.True(t, tok.Running())
	})

	t.Run("FromAnotherGoroutine", func(t *testing.T) {
		pins := eightPins[:4]
		f := gpio.NewFake(pins...)
		f.AfterSleep = func(int) { time.Sleep(time.Millisecond) }
		tok := NewToken()

		go func() {
			time.Sleep(20 * time.Millisecond)
			tok.Cancel()
		}()

		done := make(chan error, 1)
		go func() { done <- New(f).BinaryCounter(tok, pins, testDelay) }()

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("pattern did not stop")
		}
		assert.True(t, tok.Running())
	})
}

func TestGPIOFailure(t *testing.T) {
	pins := eightPins[:4]
	f := gpio.NewFake(pins...)
	boom := errors.New("boom")
	writes := 0
	f.Fail = func(c gpio.Call) error {
		if c.Op == gpio.OpWrite {
			writes++
			if writes == 10 {
				return boom
			}
		}
		return nil
	}
	tok := NewToken()
	var events []EventKind
	e := New(f, WithObserver(func(ev Event) { events = append(events, ev.Kind) }))

	err := e.BinaryCounter(tok, pins, testDelay)

	require.ErrorIs(t, err, boom)
	assertAllOff(t, f, pins)
	assert.True(t, tok.Running())
	assert.Equal(t, EventStarted, events[0])
	assert.Equal(t, EventFailed, events[len(events)-1])
}

func TestValidation(t *testing.T) {
	tooMany := make(PinSet, MaxPins+1)
	tests := []struct {
		name string
		run  func(e *Engine) error
		want error
	}{
		{name: "no pins", run: func(e *Engine) error { return e.BinaryCounter(NewToken(), nil, testDelay) }, want: ErrNoPins},
		{name: "too many pins", run: func(e *Engine) error { return e.BinaryCounter(NewToken(), tooMany, testDelay) }, want: ErrTooManyPins},
		{name: "zero delay", run: func(e *Engine) error { return e.FlowingLight(NewToken(), eightPins, 0) }, want: ErrInvalidDelay},
		{name: "negative delay", run: func(e *Engine) error { return e.AllBlink(NewToken(), eightPins, -time.Second, 1) }, want: ErrInvalidDelay},
		{name: "zero repeat", run: func(e *Engine) error { return e.AllBlink(NewToken(), eightPins, testDelay, 0) }, want: ErrInvalidRepeat},
		{name: "nil token", run: func(e *Engine) error { return e.BinaryCounter(nil, eightPins, testDelay) }, want: ErrNoToken},
		{name: "unknown pattern", run: func(e *Engine) error { return e.Run(NewToken(), Request{Pattern: "disco"}) }, want: ErrUnknownPattern},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := gpio.NewFake(eightPins...)
			assert.ErrorIs(t, tt.run(New(f)), tt.want)
			assert.Empty(t, f.Calls)
		})
	}
}

func TestRun(t *testing.T) {
	t.Run("BlinkUsesDefaultRepeat", func(t *testing.T) {
		f := gpio.NewFake(eightPins...)
		e := New(f, WithBlinkRepeat(4))

		require.NoError(t, e.Run(NewToken(), Request{Pattern: PatternAllBlink, Pins: eightPins, Delay: testDelay}))

		assert.Len(t, f.Sleeps(), 8)
	})

	t.Run("Dispatches", func(t *testing.T) {
		f := gpio.NewFake(eightPins...)
		tok := NewToken()
		var started []Pattern
		e := New(f, WithObserver(func(ev Event) {
			if ev.Kind == EventStarted {
				started = append(started, ev.Pattern)
			}
			if ev.Kind == EventIteration {
				tok.Cancel()
			}
		}))

		for _, p := range []Pattern{PatternBinaryCounter, PatternFlowingLight, PatternBreathingFade} {
			require.NoError(t, e.Run(tok, Request{Pattern: p, Pins: eightPins, Delay: testDelay}))
		}
		assert.Equal(t, []Pattern{PatternBinaryCounter, PatternFlowingLight, PatternBreathingFade}, started)
	})
}

func TestAvailable(t *testing.T) {
	f := gpio.NewFake(eightPins...)
	assert.Equal(t, Patterns, New(f).Available())

	f.PWM = false
	assert.NotContains(t, New(f).Available(), PatternBreathingFade)
}

func TestParsePattern(t *testing.T) {
	p, err := ParsePattern(" Flowing ")
	require.NoError(t, err)
	assert.Equal(t, PatternFlowingLight, p)

	_, err = ParsePattern("strobe")
	assert.ErrorIs(t, err, ErrUnknownPattern)
}
