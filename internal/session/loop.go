package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/remote-cue-control/backend/internal/logging"
	"github.com/remote-cue-control/backend/internal/model"
)

// Timer is a scheduled continuation that can be cancelled.
type Timer interface {
	// Stop prevents the continuation from running. It reports false when the
	// timer already fired or was stopped.
	Stop() bool
}

// Dispatcher delivers continuations onto the controller's execution context.
type Dispatcher interface {
	// Post queues fn to run on the execution context.
	Post(fn func())

	// AfterFunc queues fn to run on the execution context after d.
	AfterFunc(d time.Duration, fn func()) Timer
}

// Loop is a single-goroutine execution context. Every closure posted to it
// runs to completion before the next one starts, so state touched only from
// the loop needs no locking. Posting never blocks.
type Loop struct {
	mu     sync.Mutex
	queue  []func()
	closed bool

	wake chan struct{}
	done chan struct{}

	log *logging.Logger
}

// NewLoop creates a loop. Nothing runs until Run is called.
func NewLoop(logger *logging.Logger) *Loop {
	return &Loop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
		log:  logger.Named("loop"),
	}
}

// Post queues fn. Closures posted after the loop stopped are dropped.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// AfterFunc posts fn once d has elapsed.
func (l *Loop) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, func() {
		l.Post(fn)
	})
}

// Do runs fn on the loop and waits for it to finish. It must not be called
// from the loop itself.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return model.ErrLoopClosed
	}

	finished := make(chan struct{})
	l.Post(func() {
		defer close(finished)
		fn()
	})

	select {
	case <-finished:
		return nil
	case <-l.done:
		// The loop may have finished our closure right before stopping.
		select {
		case <-finished:
			return nil
		default:
			return model.ErrLoopClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drains the queue until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	defer l.shutdown()

	for {
		for {
			fn := l.next()
			if fn == nil {
				break
			}
			l.invoke(fn)
		}

		select {
		case <-ctx.Done():
			return
		case <-l.wake:
		}
	}
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) next() func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.queue) == 0 {
		return nil
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return fn
}

func (l *Loop) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("recovered panic on controller loop", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	fn()
}

func (l *Loop) shutdown() {
	l.mu.Lock()
	l.closed = true
	l.queue = nil
	l.mu.Unlock()
	close(l.done)
}
