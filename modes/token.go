package modes

import "sync/atomic"

// Token is the cancellation flag shared between a pattern loop and
// whoever wants it stopped. The zero value is ready to use and running.
//
// Patterns reset the token when they return, never when they start. A
// Cancel that lands before a pattern begins is therefore honoured: the
// pattern runs no iterations (FlowingLight still shows its intro) and
// returns with the token running again. A stop issued from another
// goroutine just after starting a pattern can never be lost.
type Token struct {
	stopped atomic.Bool
}

func NewToken() *Token {
	return &Token{}
}

// Cancel asks the running pattern to stop after its current iteration.
// It reports whether this call was the one that flipped the flag.
func (t *Token) Cancel() bool {
	return t.stopped.CompareAndSwap(false, true)
}

// Running reports whether the loop should keep going.
func (t *Token) Running() bool {
	return !t.stopped.Load()
}

// Reset puts the token back into the running state.
func (t *Token) Reset() {
	t.stopped.Store(false)
}
