//go:build unix

package modes

import (
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("handler was not called")
	}
}

func TestSignalInterrupts(t *testing.T) {
	s := NewSignalInterrupts(syscall.SIGUSR1)
	t.Cleanup(s.Close)

	outer := make(chan struct{}, 4)
	restoreOuter, err := s.OnInterrupt(func() { outer <- struct{}{} })
	require.NoError(t, err)

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGUSR1))
	waitFor(t, outer)

	inner := make(chan struct{}, 4)
	restoreInner, err := s.OnInterrupt(func() { inner <- struct{}{} })
	require.NoError(t, err)

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGUSR1))
	waitFor(t, inner)
	assert.Empty(t, outer)

	restoreInner()
	restoreInner()

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGUSR1))
	waitFor(t, outer)

	restoreOuter()

	s.Close()
	_, err = s.OnInterrupt(func() {})
	assert.Error(t, err)
}

func TestSignalInterruptsCancelToken(t *testing.T) {
	s := NewSignalInterrupts(syscall.SIGUSR2)
	t.Cleanup(s.Close)

	tok := NewToken()
	restore, err := s.OnInterrupt(func() { tok.Cancel() })
	require.NoError(t, err)
	defer restore()

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGUSR2))
	assert.Eventually(t, func() bool { return !tok.Running() }, 2*time.Second, 5*time.Millisecond)
}
