package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"gregoryjjb/eightled/circularbuffer"
	"gregoryjjb/eightled/gpio"
	"gregoryjjb/eightled/modes"
	"gregoryjjb/eightled/pubsub"
)

var rlog zerolog.Logger

func init() {
	rlog = log.With().Str("component", "runner").Logger()
}

// HistorySize is how many finished runs the runner remembers.
const HistorySize = 32

var (
	ErrPatternUnavailable = errors.New("pattern not available on this gpio backend")
	ErrRepeatOutOfRange   = errors.New("repeat out of range")
)

type RunnerState string

const (
	StateIdle    RunnerState = "idle"
	StateRunning RunnerState = "running"
)

// RunnerEvent is published whenever a pattern starts or ends.
type RunnerEvent struct {
	State   RunnerState   `json:"state"`
	Pattern modes.Pattern `json:"pattern,omitempty"`
	DelayMs int64         `json:"delay_ms,omitempty"`
	Error   string        `json:"error,omitempty"`
	Time    time.Time     `json:"time"`
}

// RunRecord is one entry in the run history.
type RunRecord struct {
	Pattern    modes.Pattern `json:"pattern"`
	DelayMs    int64         `json:"delay_ms"`
	StartedAt  time.Time     `json:"started_at"`
	EndedAt    *time.Time    `json:"ended_at,omitempty"`
	Iterations int64         `json:"iterations"`
	Error      string        `json:"error,omitempty"`
}

// RunRequest asks for a pattern. A zero DelayMs means the configured
// default; an out-of-range one is replaced by the default. Repeat must be
// within [0, max_repeat], with 0 meaning blink_repeat.
type RunRequest struct {
	Pattern modes.Pattern `json:"pattern"`
	DelayMs int           `json:"delay_ms"`
	Repeat  int           `json:"repeat"`
}

type Status struct {
	State      RunnerState   `json:"state"`
	Pattern    modes.Pattern `json:"pattern,omitempty"`
	DelayMs    int64         `json:"delay_ms,omitempty"`
	StartedAt  *time.Time    `json:"started_at,omitempty"`
	Iterations int64         `json:"iterations"`
	// Selected is the pattern Next advances from.
	Selected modes.Pattern `json:"selected,omitempty"`
}

type activeRun struct {
	req        modes.Request
	startedAt  time.Time
	iterations atomic.Int64
	done       chan struct{}
}

// Runner owns the engine and its token for the long-running surfaces
// (HTTP, MQTT). It runs at most one pattern at a time: starting a new one
// stops the current one first.
type Runner struct {
	engine    *modes.Engine
	token     *modes.Token
	pins      modes.PinSet
	delays    DelayBounds
	maxRepeat int

	// mu serializes Start and Stop, which may wait out a whole blink.
	// Readers never take it.
	mu sync.Mutex

	current   atomic.Pointer[activeRun]
	lastDelay atomic.Int64

	ps      *pubsub.Pubsub[RunnerEvent]
	history *circularbuffer.CircularBuffer[RunRecord]
	cycle   *CircularList[modes.Pattern]
}

func NewRunner(ctx context.Context, config *Config, port gpio.Port, opts ...modes.Option) *Runner {
	r := &Runner{
		token:     modes.NewToken(),
		pins:      config.Pinout(),
		delays:    config.Delay(),
		maxRepeat: config.MaxRepeat(),
		ps:        pubsub.New[RunnerEvent](),
		history:   circularbuffer.New[RunRecord](HistorySize),
	}

	opts = append(engineOptions(config), opts...)
	opts = append(opts, modes.WithObserver(r.observe))
	r.engine = modes.New(port, opts...)
	r.cycle = NewCircularList(r.engine.Available())

	go func() {
		<-ctx.Done()
		rlog.Info().Msg("Stopping runner")
		r.Stop()
		r.ps.Close()
	}()

	return r
}

func (r *Runner) observe(ev modes.Event) {
	recordMetrics(ev)

	if ev.Kind == modes.EventIteration {
		if run := r.current.Load(); run != nil {
			run.iterations.Store(int64(ev.Iteration))
		}
	}
}

// Available lists the patterns the runner will accept.
func (r *Runner) Available() []modes.Pattern {
	return r.engine.Available()
}

// Start stops whatever is running and starts req in the background.
func (r *Runner) Start(req RunRequest) error {
	pattern, err := modes.ParsePattern(string(req.Pattern))
	if err != nil {
		return err
	}
	if pattern.NeedsPWM() && !r.engine.SupportsPWM() {
		return fmt.Errorf("%w: %s", ErrPatternUnavailable, pattern)
	}
	if req.Repeat < 0 || req.Repeat > r.maxRepeat {
		return fmt.Errorf("%w: %d not in [0, %d]", ErrRepeatOutOfRange, req.Repeat, r.maxRepeat)
	}

	delay := r.delays.DefaultDelay()
	if req.DelayMs != 0 {
		var ok bool
		delay, ok = r.delays.Clamp(req.DelayMs)
		if !ok {
			rlog.Warn().
				Int("requested_ms", req.DelayMs).
				Int("min_ms", r.delays.Min).
				Int("max_ms", r.delays.Max).
				Dur("using", delay).
				Msg("Delay value out of bounds, using default")
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.stopLocked()

	run := &activeRun{
		req: modes.Request{
			Pattern: pattern,
			Pins:    r.pins,
			Delay:   delay,
			Repeat:  req.Repeat,
		},
		startedAt: time.Now(),
		done:      make(chan struct{}),
	}
	r.current.Store(run)
	r.lastDelay.Store(delay.Milliseconds())
	r.cycle.Seek(pattern)

	r.history.Push(RunRecord{
		Pattern:   pattern,
		DelayMs:   delay.Milliseconds(),
		StartedAt: run.startedAt,
	})
	r.ps.Publish(RunnerEvent{
		State:   StateRunning,
		Pattern: pattern,
		DelayMs: delay.Milliseconds(),
		Time:    run.startedAt,
	})

	rlog.Info().Str("pattern", string(pattern)).Dur("delay", delay).Msg("Starting pattern")
	go r.execute(run)
	return nil
}

func (r *Runner) execute(run *activeRun) {
	err := r.engine.Run(r.token, run.req)
	ended := time.Now()

	event := RunnerEvent{
		State:   StateIdle,
		Pattern: run.req.Pattern,
		Time:    ended,
	}
	if err != nil {
		rlog.Err(err).Str("pattern", string(run.req.Pattern)).Msg("Pattern failed")
		event.Error = err.Error()
	} else {
		rlog.Info().Str("pattern", string(run.req.Pattern)).Msg("Pattern stopped")
	}

	r.history.Update(func(rec *RunRecord) {
		rec.EndedAt = &ended
		rec.Iterations = run.iterations.Load()
		if err != nil {
			rec.Error = err.Error()
		}
	})
	r.ps.Publish(event)

	close(run.done)
}

// stopLocked cancels the active run and waits for its loop to return.
// r.mu must be held.
func (r *Runner) stopLocked() bool {
	run := r.current.Load()
	if run == nil {
		return false
	}

	stopped := false
	select {
	case <-run.done:
	default:
		r.token.Cancel()
		<-run.done
		// The loop may have ended on its own just before Cancel; make sure
		// the next pattern does not inherit a stale stop request.
		r.token.Reset()
		stopped = true
	}

	r.current.CompareAndSwap(run, nil)
	return stopped
}

// Stop cancels the running pattern and waits for it to finish. It
// reports whether anything was running.
func (r *Runner) Stop() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.stopLocked()
}

// Next starts the pattern after the current one, reusing the last delay.
func (r *Runner) Next() (modes.Pattern, error) {
	p := r.cycle.Advance()
	if p == "" {
		return "", ErrPatternUnavailable
	}
	return p, r.Start(RunRequest{Pattern: p, DelayMs: int(r.lastDelay.Load())})
}

// Wait blocks until the active run, if any, has finished on its own.
func (r *Runner) Wait(ctx context.Context) error {
	run := r.current.Load()
	if run == nil {
		return nil
	}
	select {
	case <-run.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status reports the active run. It does not wait for a pending Stop.
func (r *Runner) Status() Status {
	selected := r.cycle.Current()

	run := r.current.Load()
	if run == nil {
		return Status{State: StateIdle, Selected: selected}
	}
	select {
	case <-run.done:
		return Status{State: StateIdle, Selected: selected}
	default:
	}

	started := run.startedAt
	return Status{
		State:      StateRunning,
		Pattern:    run.req.Pattern,
		DelayMs:    run.req.Delay.Milliseconds(),
		StartedAt:  &started,
		Iterations: run.iterations.Load(),
		Selected:   selected,
	}
}

func (r *Runner) History() []RunRecord {
	return r.history.Snapshot()
}

func (r *Runner) Subscribe() (func(), <-chan RunnerEvent) {
	handle, ch := r.ps.Subscribe(pubsub.DefaultBuffer)
	rlog.Debug().Int("subscribers", r.ps.Len()).Msg("Event subscriber added")
	return func() {
		r.ps.Unsubscribe(handle)
	}, ch
}
