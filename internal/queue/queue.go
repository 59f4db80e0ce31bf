// Package queue provides a FIFO mutex with ordered admission.
//
// Jobs run one at a time on a single worker goroutine, in the order they were
// enqueued. A job runs to completion before the next one starts, even when it
// blocks on I/O, so a read-modify-write sequence inside one job is atomic with
// respect to every other job on the same queue.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrClosed is returned for jobs enqueued after Close.
var ErrClosed = errors.New("queue closed")

type job struct {
	ctx  context.Context
	fn   func(context.Context) error
	done chan error
}

// Queue serializes jobs. The zero value is not usable; call New.
type Queue struct {
	jobs chan *job

	mu     sync.RWMutex
	closed bool

	stopped chan struct{}
}

// New starts a queue with its worker goroutine.
// backlog is the number of admitted jobs that may wait without blocking
// their callers' admission.
func New(backlog int) *Queue {
	if backlog < 0 {
		backlog = 0
	}
	q := &Queue{
		jobs:    make(chan *job, backlog),
		stopped: make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *Queue) run() {
	defer close(q.stopped)
	for j := range q.jobs {
		j.done <- execute(j)
	}
}

// execute runs one job, converting a panic into an error for its caller.
func execute(j *job) (err error) {
	// The caller stopped waiting before this job's turn came up.
	if err := j.ctx.Err(); err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("queued operation panicked: %v", r)
		}
	}()
	return j.fn(j.ctx)
}

// enqueue admits a job. Admission order is the execution order.
func (q *Queue) enqueue(ctx context.Context, fn func(context.Context) error) (*job, error) {
	j := &job{ctx: ctx, fn: fn, done: make(chan error, 1)}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return nil, ErrClosed
	}

	select {
	case q.jobs <- j:
		return j, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Do runs fn after every previously admitted job has settled and waits for
// its result. A failing job only affects its own caller.
//
// If ctx is cancelled while fn is running, Do still waits for fn to return,
// so that no two jobs ever overlap. If ctx is cancelled before fn starts,
// fn is skipped.
func (q *Queue) Do(ctx context.Context, fn func(context.Context) error) error {
	j, err := q.enqueue(ctx, fn)
	if err != nil {
		return err
	}
	return <-j.done
}

// Run is Do for jobs that produce a value.
func Run[T any](ctx context.Context, q *Queue, fn func(context.Context) (T, error)) (T, error) {
	var result T
	err := q.Do(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}

// Synchronize returns once every job admitted before the call has settled.
// Jobs admitted afterwards are not waited on.
func (q *Queue) Synchronize(ctx context.Context) error {
	return q.Do(ctx, func(context.Context) error { return nil })
}

// Close stops admitting jobs, lets the admitted ones finish and stops the
// worker. It is safe to call more than once.
func (q *Queue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()
	<-q.stopped
}
