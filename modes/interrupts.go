package modes

import (
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// Interrupts is a source of asynchronous stop requests. OnInterrupt
// installs handler and returns a func that reinstates whatever handler
// was installed before. Handlers must only flip a flag.
type Interrupts interface {
	OnInterrupt(handler func()) (restore func(), err error)
}

var errInterruptsClosed = errors.New("interrupt source closed")

// SignalInterrupts delivers OS signals (SIGINT and SIGTERM by default) to
// the most recently installed handler. While no handler is installed the
// signals keep their default behaviour.
type SignalInterrupts struct {
	mu      sync.Mutex
	signals []os.Signal
	handler func()
	ch      chan os.Signal
	done    chan struct{}
	closed  bool
}

func NewSignalInterrupts(signals ...os.Signal) *SignalInterrupts {
	if len(signals) == 0 {
		signals = []os.Signal{os.Interrupt, syscall.SIGTERM}
	}
	return &SignalInterrupts{signals: signals}
}

func (s *SignalInterrupts) OnInterrupt(handler func()) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errInterruptsClosed
	}

	prev := s.handler
	s.handler = handler
	if s.ch == nil {
		s.listen()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()

			s.handler = prev
			if prev == nil && s.ch != nil {
				s.stop()
			}
		})
	}, nil
}

// Close stops listening; further OnInterrupt calls fail.
func (s *SignalInterrupts) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.handler = nil
	if s.ch != nil {
		s.stop()
	}
}

func (s *SignalInterrupts) listen() {
	ch := make(chan os.Signal, 1)
	done := make(chan struct{})
	signal.Notify(ch, s.signals...)
	s.ch, s.done = ch, done

	go func() {
		for {
			select {
			case sig := <-ch:
				s.mu.Lock()
				h := s.handler
				s.mu.Unlock()

				mlog.Info().Str("signal", sig.String()).Msg("Interrupt signal caught")
				if h != nil {
					h()
				}
			case <-done:
				return
			}
		}
	}()
}

func (s *SignalInterrupts) stop() {
	signal.Stop(s.ch)
	close(s.done)
	s.ch, s.done = nil, nil
}
