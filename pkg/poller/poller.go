// Package poller implements a cancellable fixed-interval polling watcher for
// long-running provider jobs. One watcher owns one job: it queries status on
// a jittered ticker, collapses transport hiccups into a bounded retry budget
// and settles exactly once into a terminal state.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	jitterbug "github.com/lthibault/jitterbug/v2"

	"github.com/acta-labs/minutero/pkg/logging"
)

type State string

const (
	StateIdle      State = "idle"
	StateStarting  State = "starting"
	StatePolling   State = "polling"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

var (
	ErrCanceled    = errors.New("polling canceled")
	ErrStatusCheck = errors.New("status check failed")
	ErrDeadline    = errors.New("no terminal state before deadline")
)

// Outcome is the result of one status query. Done marks a terminal provider
// state; Err on a done outcome carries the provider's own failure.
type Outcome[T any] struct {
	Done  bool
	Value T
	Err   error
}

// PollFunc issues a single status query. Returning a non-nil error signals a
// transport failure, which counts against the retry budget; the next
// scheduled tick serves as the retry.
type PollFunc[T any] func(ctx context.Context) (Outcome[T], error)

const (
	defaultInterval   = 5 * time.Second
	defaultMaxRetries = 3
	defaultMaxWait    = 30 * time.Minute
)

type Option func(*settings)

type settings struct {
	interval   time.Duration
	maxRetries int
	maxWait    time.Duration
}

func WithInterval(interval time.Duration) Option {
	return func(s *settings) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

// WithMaxRetries bounds how many consecutive transport failures are absorbed
// before the watcher fails. The bound counts failures tolerated, so the
// watcher fails on failure maxRetries+1.
func WithMaxRetries(maxRetries int) Option {
	return func(s *settings) {
		if maxRetries >= 0 {
			s.maxRetries = maxRetries
		}
	}
}

// WithMaxWait bounds the total wall-clock time spent polling. Zero disables
// the bound.
func WithMaxWait(maxWait time.Duration) Option {
	return func(s *settings) {
		s.maxWait = maxWait
	}
}

type Watcher[T any] struct {
	poll     PollFunc[T]
	settings settings

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
	value  T
	err    error
}

func NewWatcher[T any](poll PollFunc[T], opts ...Option) *Watcher[T] {
	s := settings{
		interval:   defaultInterval,
		maxRetries: defaultMaxRetries,
		maxWait:    defaultMaxWait,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}

	return &Watcher[T]{
		poll:     poll,
		settings: s,
		state:    StateIdle,
		done:     make(chan struct{}),
	}
}

// Start begins polling. Calling Start more than once is a no-op.
func (w *Watcher[T]) Start(ctx context.Context) {
	w.mu.Lock()
	if w.state != StateIdle {
		w.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.state = StateStarting
	w.mu.Unlock()

	go w.run(ctx)
}

// Cancel stops the watcher. Canceling an already-terminal watcher is a no-op,
// and Cancel is safe to call any number of times.
func (w *Watcher[T]) Cancel() {
	w.mu.Lock()
	cancel := w.cancel
	terminal := w.state == StateCompleted || w.state == StateFailed
	w.mu.Unlock()

	if terminal || cancel == nil {
		return
	}
	cancel()
}

func (w *Watcher[T]) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Done is closed once the watcher reaches Completed or Failed.
func (w *Watcher[T]) Done() <-chan struct{} {
	return w.done
}

// Result returns the terminal value and error. It is only meaningful after
// Done is closed.
func (w *Watcher[T]) Result() (T, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.value, w.err
}

// Wait blocks until the watcher settles or ctx expires.
func (w *Watcher[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-w.done:
		return w.Result()
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (w *Watcher[T]) run(ctx context.Context) {
	log := logging.NewLogger(ctx)

	w.mu.Lock()
	w.state = StatePolling
	w.mu.Unlock()

	// Stdev well under the period keeps ticks near the nominal interval
	// while spreading simultaneous watchers apart.
	ticker := jitterbug.New(w.settings.interval, &jitterbug.Norm{Stdev: w.settings.interval / 20})
	defer ticker.Stop()
	defer func() {
		w.mu.Lock()
		cancel := w.cancel
		w.mu.Unlock()
		if cancel != nil {
			cancel()
		}
	}()

	var deadline time.Time
	if w.settings.maxWait > 0 {
		deadline = time.Now().Add(w.settings.maxWait)
	}

	var zero T
	retries := 0
	for {
		select {
		case <-ctx.Done():
			w.settle(zero, ErrCanceled, StateFailed)
			return
		case <-ticker.C:
		}

		if !deadline.IsZero() && time.Now().After(deadline) {
			w.settle(zero, fmt.Errorf("%w (waited %s)", ErrDeadline, w.settings.maxWait), StateFailed)
			return
		}

		// The poll runs synchronously on the tick loop, so there is never
		// more than one status query in flight; a slow query simply delays
		// the next tick.
		outcome, err := w.poll(ctx)
		if ctx.Err() != nil {
			// A late result must not supersede a cancellation.
			w.settle(zero, ErrCanceled, StateFailed)
			return
		}
		if err != nil {
			retries++
			log.Warnf("status query failed (attempt %d of %d): %v", retries, w.settings.maxRetries+1, err)
			if retries > w.settings.maxRetries {
				w.settle(zero, fmt.Errorf("%w after %d attempts: %v", ErrStatusCheck, retries, err), StateFailed)
				return
			}
			continue
		}
		retries = 0

		if !outcome.Done {
			continue
		}
		if outcome.Err != nil {
			w.settle(zero, outcome.Err, StateFailed)
			return
		}
		w.settle(outcome.Value, nil, StateCompleted)
		return
	}
}

func (w *Watcher[T]) settle(value T, err error, state State) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state == StateCompleted || w.state == StateFailed {
		return
	}
	w.value = value
	w.err = err
	w.state = state
	close(w.done)
}
