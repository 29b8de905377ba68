package gpio

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevel(t *testing.T) {
	tests := []struct {
		name      string
		active    bool
		activeLow bool
		want      bool
	}{
		{name: "active high on", active: true, activeLow: false, want: true},
		{name: "active high off", active: false, activeLow: false, want: false},
		{name: "active low on", active: true, activeLow: true, want: false},
		{name: "active low off", active: false, activeLow: true, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, level(tt.active, tt.activeLow))
		})
	}
}

func TestFake(t *testing.T) {
	t.Run("RecordsFramesAtSleep", func(t *testing.T) {
		f := NewFake(3, 5)

		require.NoError(t, f.WriteDigital(3, true))
		f.Sleep(10 * time.Millisecond)
		require.NoError(t, f.WriteDigital(5, true))
		require.NoError(t, f.WriteDigital(3, false))
		f.Sleep(20 * time.Millisecond)

		assert.Equal(t, [][]bool{{true, false}, {false, true}}, f.Frames)
		assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, f.Sleeps())
		assert.Equal(t, 3, f.Count(OpWrite))
	})

	t.Run("ZeroValue", func(t *testing.T) {
		f := &Fake{Pins: []int{7}}

		require.NoError(t, f.SetOutput(7))
		require.NoError(t, f.WriteDigital(7, true))
		f.Sleep(time.Millisecond)

		assert.True(t, f.State(7))
		assert.Equal(t, [][]bool{{true}}, f.Frames)
		assert.False(t, f.SupportsPWM())
		assert.ErrorIs(t, f.SetPwmOutput(7), ErrPWMUnsupported)
	})

	t.Run("AfterSleepHook", func(t *testing.T) {
		f := NewFake(1)
		var seen []int
		f.AfterSleep = func(n int) { seen = append(seen, n) }

		f.Sleep(time.Millisecond)
		f.Sleep(time.Millisecond)

		assert.Equal(t, []int{1, 2}, seen)
	})

	t.Run("PwmRequiresPwmMode", func(t *testing.T) {
		f := NewFake(18)

		assert.ErrorIs(t, f.WritePwm(18, 10), ErrPWMUnsupported)

		require.NoError(t, f.SetPwmOutput(18))
		assert.True(t, f.IsPwm(18))
		require.NoError(t, f.WritePwm(18, 10))
		assert.ErrorIs(t, f.WritePwm(18, PwmRange+1), ErrPwmValue)

		require.NoError(t, f.SetOutput(18))
		assert.False(t, f.IsPwm(18))
		assert.Equal(t, []int{10}, f.PwmValues(18))
	})

	t.Run("NoPwm", func(t *testing.T) {
		f := NewFake(18)
		f.PWM = false

		assert.False(t, f.SupportsPWM())
		assert.ErrorIs(t, f.SetPwmOutput(18), ErrPWMUnsupported)
	})

	t.Run("Fail", func(t *testing.T) {
		f := NewFake(1, 2)
		boom := errors.New("boom")
		f.Fail = func(c Call) error {
			if c.Op == OpWrite && c.Pin == 2 {
				return boom
			}
			return nil
		}

		require.NoError(t, f.WriteDigital(1, true))
		assert.ErrorIs(t, f.WriteDigital(2, true), boom)
		assert.False(t, f.State(2))
	})

	t.Run("Reset", func(t *testing.T) {
		f := NewFake(1)
		require.NoError(t, f.WriteDigital(1, true))
		f.Sleep(time.Millisecond)

		f.Reset()

		assert.Empty(t, f.Calls)
		assert.Empty(t, f.Frames)
		assert.True(t, f.State(1))
	})
}

func TestSimulatedPort(t *testing.T) {
	s := NewSimulatedPort(Options{Pins: []int{1, 2}})

	assert.True(t, s.SupportsPWM())
	assert.ErrorIs(t, s.WritePwm(2, 5), ErrPWMUnsupported)
	require.NoError(t, s.SetPwmOutput(2))
	require.NoError(t, s.WritePwm(2, 5))
	assert.ErrorIs(t, s.WritePwm(2, -1), ErrPwmValue)
	require.NoError(t, s.WriteDigital(1, true))
	s.Sleep(0)
	require.NoError(t, s.Close())
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open("bogus", Options{})
	assert.Error(t, err)
}
