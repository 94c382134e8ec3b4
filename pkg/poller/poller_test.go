package poller

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type PollerSuite struct {
	suite.Suite
}

func TestPollerSuite(t *testing.T) {
	suite.Run(t, new(PollerSuite))
}

func (s *PollerSuite) TestCompletesOnTerminalOutcome() {
	var calls atomic.Int32
	poll := func(ctx context.Context) (Outcome[string], error) {
		if calls.Add(1) < 2 {
			return Outcome[string]{}, nil
		}
		return Outcome[string]{Done: true, Value: "transcript"}, nil
	}

	w := NewWatcher(poll, WithInterval(5*time.Millisecond))
	w.Start(context.Background())

	value, err := w.Wait(context.Background())
	s.NoError(err)
	s.Equal("transcript", value)
	s.Equal(StateCompleted, w.State())

	// The ticker must be torn down: no further status calls after terminal.
	settled := calls.Load()
	time.Sleep(50 * time.Millisecond)
	s.Equal(settled, calls.Load())
}

func (s *PollerSuite) TestProviderErrorPropagatedVerbatim() {
	providerErr := errors.New("audio url is unreachable")
	poll := func(ctx context.Context) (Outcome[string], error) {
		return Outcome[string]{Done: true, Err: providerErr}, nil
	}

	w := NewWatcher(poll, WithInterval(5*time.Millisecond))
	w.Start(context.Background())

	_, err := w.Wait(context.Background())
	s.ErrorIs(err, providerErr)
	s.Equal(StateFailed, w.State())
}

func (s *PollerSuite) TestBoundedRetryFailsOnFourthFailure() {
	var calls atomic.Int32
	poll := func(ctx context.Context) (Outcome[string], error) {
		calls.Add(1)
		return Outcome[string]{}, errors.New("connection reset")
	}

	w := NewWatcher(poll, WithInterval(2*time.Millisecond), WithMaxRetries(3))
	w.Start(context.Background())

	_, err := w.Wait(context.Background())
	s.ErrorIs(err, ErrStatusCheck)
	s.Equal(int32(4), calls.Load())
}

func (s *PollerSuite) TestTransientFailureRecoversOnNextTick() {
	var calls atomic.Int32
	poll := func(ctx context.Context) (Outcome[int], error) {
		switch calls.Add(1) {
		case 1, 3:
			return Outcome[int]{}, errors.New("timeout")
		case 2:
			return Outcome[int]{}, nil
		default:
			return Outcome[int]{Done: true, Value: 42}, nil
		}
	}

	w := NewWatcher(poll, WithInterval(2*time.Millisecond), WithMaxRetries(3))
	w.Start(context.Background())

	value, err := w.Wait(context.Background())
	s.NoError(err)
	s.Equal(42, value)
}

func (s *PollerSuite) TestCancelStopsPolling() {
	var calls atomic.Int32
	poll := func(ctx context.Context) (Outcome[string], error) {
		calls.Add(1)
		return Outcome[string]{}, nil
	}

	w := NewWatcher(poll, WithInterval(2*time.Millisecond))
	w.Start(context.Background())
	time.Sleep(10 * time.Millisecond)
	w.Cancel()

	_, err := w.Wait(context.Background())
	s.ErrorIs(err, ErrCanceled)
	s.Equal(StateFailed, w.State())

	settled := calls.Load()
	time.Sleep(20 * time.Millisecond)
	s.Equal(settled, calls.Load())
}

func (s *PollerSuite) TestCancelAfterTerminalIsNoOp() {
	poll := func(ctx context.Context) (Outcome[string], error) {
		return Outcome[string]{Done: true, Value: "done"}, nil
	}

	w := NewWatcher(poll, WithInterval(2*time.Millisecond))
	w.Start(context.Background())

	value, err := w.Wait(context.Background())
	s.NoError(err)
	s.Equal("done", value)

	w.Cancel()
	w.Cancel()

	value, err = w.Result()
	s.NoError(err)
	s.Equal("done", value)
	s.Equal(StateCompleted, w.State())
}

func (s *PollerSuite) TestCancelBeforeStartIsNoOp() {
	w := NewWatcher(func(ctx context.Context) (Outcome[string], error) {
		return Outcome[string]{}, nil
	})
	w.Cancel()
	s.Equal(StateIdle, w.State())
}

func (s *PollerSuite) TestStartTwiceIsNoOp() {
	var calls atomic.Int32
	poll := func(ctx context.Context) (Outcome[string], error) {
		calls.Add(1)
		return Outcome[string]{Done: true}, nil
	}

	w := NewWatcher(poll, WithInterval(5*time.Millisecond))
	w.Start(context.Background())
	w.Start(context.Background())

	_, err := w.Wait(context.Background())
	s.NoError(err)
	s.Equal(int32(1), calls.Load())
}

func (s *PollerSuite) TestDeadlineFailsJobThatNeverFinishes() {
	poll := func(ctx context.Context) (Outcome[string], error) {
		return Outcome[string]{}, nil
	}

	w := NewWatcher(poll, WithInterval(2*time.Millisecond), WithMaxWait(10*time.Millisecond))
	w.Start(context.Background())

	_, err := w.Wait(context.Background())
	s.ErrorIs(err, ErrDeadline)
}
