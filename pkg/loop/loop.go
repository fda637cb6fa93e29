package loop

import (
	"context"
	"fmt"
	"time"
)

type Next struct {
	// if not nil, breaks with error
	err error

	// if quit == true and err == nil, breaks without error
	quit bool

	// otherwise, continue loop with interval.
	interval time.Duration
}

func (n Next) String() string {
	if n.err != nil {
		return fmt.Sprintf("[break] with error: %v", n.err)
	}
	if n.quit {
		return "[break] without error"
	}

	return fmt.Sprintf("[continue] interval: %s", n.interval)
}

// continue loop.
//
// args:
//
// - interval: sleep before starting next task.
func Continue(interval time.Duration) Next {
	return Next{interval: interval}
}

// break loop.
//
// args:
//
// - err: If you break loop with error, set non nil value.
func Break(err error) Next {
	return Next{quit: true, err: err}
}

// Task runs once per loop cycle.
//
// It receives the value returned from the previous cycle, and returns the
// value for the next one together with a Next deciding whether to go on.
type Task[T any] func(context.Context, T) (T, Next)

// Start task in loop.
//
// The task should return 2 values:
//
// - T: any value the task needs to carry between cycles.
// It can be a cursor, statistics, or something else.
//
// - next: Continue(time.Duration) or Break(error).
// To run one more time, return Continue(d); the task is called again with the
// last T after d (can be 0). To stop, return Break(err) (err may be nil).
// The zero value (Next{}) equals Continue(0): "go next ASAP".
//
// Example: sweep experiments until there is nothing left to stop.
//
//	Start(ctx, cursor, func(ctx context.Context, c Cursor) (Cursor, Next) {
//		c, stopped, err := sweepOnce(ctx, c)
//		if err != nil {
//			return c, Break(err)
//		}
//		if !stopped {
//			return c, Continue(30 * time.Second)
//		}
//		return c, Continue(0)
//	})
//
// Args:
//
// - ctx: when it is Done, the loop breaks with ctx.Err().
//
// - init: the task is called as task(ctx, init) the first time.
//
// - task: task receiving (context, last value), returning (new value, Next).
//
// - options: options for the loop.
//
// Returns:
//
// - T: the T the task returned last.
// This value is always returned whether or not error is non-nil.
//
// - error: error in Break(error). Nil when the loop breaks with Break(nil).
func Start[T any](ctx context.Context, init T, task Task[T], options ...LoopOption) (T, error) {
	select {
	case <-ctx.Done():
		return init, ctx.Err()
	default:
	}

	value := init
	for {
		interval := 0 * time.Nanosecond

		lc := &loopConfig{ctx: ctx}
		for _, opt := range options {
			lc = opt(lc)
		}

		v, n := func() (T, Next) {
			ctx := lc.ctx
			if lc.deferred != nil {
				defer lc.deferred()
			}
			return task(ctx, value)
		}()

		if n.err != nil {
			return v, n.err
		} else if n.quit {
			return v, nil
		} else {
			value = v
			interval = n.interval
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			// shutting down is the priority. it should come first, checking timer later.
			if !timer.Stop() {
				<-timer.C // drain. see: time.Timer.Stop's document
			}
			return value, ctx.Err()

		case <-timer.C:
			continue
		}
	}
}

type loopConfig struct {
	ctx      context.Context
	deferred func()
}

type LoopOption func(*loopConfig) *loopConfig

// set timeout per loop cycle.
//
// this timeout is set on the context.Context passed to the task.
func WithTimeout(d time.Duration) LoopOption {
	return func(lc *loopConfig) *loopConfig {
		ctx, cancel := context.WithTimeout(lc.ctx, d)
		return &loopConfig{
			ctx: ctx,
			deferred: func() {
				if lc.deferred != nil {
					defer lc.deferred()
				}
				cancel()
			},
		}
	}
}
