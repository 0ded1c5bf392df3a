// Package queue serialises requests onto a single handler owned by a
// dedicated worker goroutine.
//
// The handler is only ever called from the worker, which is locked to its
// own OS thread, so handlers may hold state that must not be shared or
// moved between threads. Requests are processed strictly in submission
// order. A handler error is fatal: the worker exits and every request still
// waiting fails with a *DeliveryError.
package queue

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/samcharles93/glow/internal/logger"
)

// Handler processes one request at a time.
type Handler[Req, Resp any] interface {
	Handle(Req) (Resp, error)
}

// HandlerFunc adapts a function to a Handler.
type HandlerFunc[Req, Resp any] func(Req) (Resp, error)

func (f HandlerFunc[Req, Resp]) Handle(r Req) (Resp, error) { return f(r) }

type Option func(*options)

type options struct {
	name string
	log  logger.Logger
}

func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.log = l }
}

type result[Resp any] struct {
	resp Resp
}

// replySlot carries at most one response. Closing it without a value means
// the entry was dropped; reason and err are set before the close.
type replySlot[Resp any] struct {
	ch        chan result[Resp]
	abandoned atomic.Bool
	reason    Reason
	err       error
}

type entry[Req, Resp any] struct {
	id         uuid.UUID
	enqueuedAt time.Time
	req        Req
	reply      *replySlot[Resp]
}

// command is either an entry to process or a stop marker.
type command[Req, Resp any] struct {
	entry *entry[Req, Resp]
}

// Queue is the producer handle. It is safe for concurrent use.
type Queue[Req, Resp any] struct {
	name string
	log  logger.Logger

	mu      sync.Mutex
	pending []command[Req, Resp]
	closed  bool
	err     error

	wake chan struct{}
	done chan struct{}
}

// New starts a worker that owns h. If h implements io.Closer it is closed
// when the worker exits.
func New[Req, Resp any](h Handler[Req, Resp], opts ...Option) *Queue[Req, Resp] {
	o := options{name: "queue-" + uuid.NewString(), log: logger.Discard()}
	for _, opt := range opts {
		opt(&o)
	}
	q := &Queue[Req, Resp]{
		name: o.name,
		log:  o.log.With("queue", o.name),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go q.run(h)
	return q
}

// Name returns the queue name used in logs and errors.
func (q *Queue[Req, Resp]) Name() string { return q.name }

// Submit enqueues req without blocking. It fails once the queue is shut
// down or its worker has died.
func (q *Queue[Req, Resp]) Submit(req Req) (*Future[Resp], error) {
	e := &entry[Req, Resp]{
		id:         uuid.New(),
		enqueuedAt: time.Now(),
		req:        req,
		reply:      &replySlot[Resp]{ch: make(chan result[Resp], 1)},
	}

	q.mu.Lock()
	if q.closed {
		err := q.refusal()
		q.mu.Unlock()
		return nil, err
	}
	q.pending = append(q.pending, command[Req, Resp]{entry: e})
	q.mu.Unlock()

	q.signal()
	return &Future[Resp]{id: e.id, queue: q.name, reply: e.reply}, nil
}

// Do submits req and waits for its response.
func (q *Queue[Req, Resp]) Do(ctx context.Context, req Req) (Resp, error) {
	f, err := q.Submit(req)
	if err != nil {
		var zero Resp
		return zero, err
	}
	return f.Wait(ctx)
}

// Shutdown asks the worker to stop after every request submitted before
// it. It does not wait; use Done for that. Repeated calls are no-ops.
func (q *Queue[Req, Resp]) Shutdown() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.pending = append(q.pending, command[Req, Resp]{})
	q.mu.Unlock()
	q.signal()
}

// Done is closed when the worker has exited.
func (q *Queue[Req, Resp]) Done() <-chan struct{} { return q.done }

// Closed reports whether the queue has stopped accepting requests.
func (q *Queue[Req, Resp]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Err returns the handler error that killed the worker, or nil.
func (q *Queue[Req, Resp]) Err() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.err
}

// Len returns the number of requests waiting to be processed.
func (q *Queue[Req, Resp]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, c := range q.pending {
		if c.entry != nil {
			n++
		}
	}
	return n
}

func (q *Queue[Req, Resp]) refusal() error {
	if q.err != nil {
		return &DeliveryError{Queue: q.name, Reason: ReasonWorkerDied, Err: q.err}
	}
	return &DeliveryError{Queue: q.name, Reason: ReasonClosed, Err: ErrClosed}
}

func (q *Queue[Req, Resp]) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue[Req, Resp]) next() command[Req, Resp] {
	for {
		q.mu.Lock()
		if len(q.pending) > 0 {
			cmd := q.pending[0]
			q.pending[0] = command[Req, Resp]{}
			q.pending = q.pending[1:]
			q.mu.Unlock()
			return cmd
		}
		q.mu.Unlock()
		<-q.wake
	}
}

func (q *Queue[Req, Resp]) run(h Handler[Req, Resp]) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(q.done)

	q.log.Debug("queue worker started")
	for {
		cmd := q.next()
		e := cmd.entry
		if e == nil {
			q.log.Info("stopping queue worker")
			q.finish(h, nil, nil)
			return
		}

		q.log.Trace("processing entry", "id", e.id, "queued", time.Since(e.enqueuedAt))
		resp, err := safeHandle(h, e.req)
		if err != nil {
			q.log.Error("handler failed, stopping queue worker", "id", e.id, "error", err)
			q.finish(h, err, e.reply)
			return
		}

		if e.reply.abandoned.Load() {
			q.log.Error("failed to deliver response, caller abandoned entry", "id", e.id)
			continue
		}
		e.reply.ch <- result[Resp]{resp: resp}
		q.log.Trace("delivered response", "id", e.id)
	}
}

// finish closes the queue and drops everything still pending, starting with
// failed. Callers observe Closed before any reply is dropped.
func (q *Queue[Req, Resp]) finish(h Handler[Req, Resp], cause error, failed *replySlot[Resp]) {
	q.mu.Lock()
	q.closed = true
	q.err = cause
	rest := q.pending
	q.pending = nil
	q.mu.Unlock()

	reason, err := ReasonClosed, ErrClosed
	if cause != nil {
		reason, err = ReasonWorkerDied, cause
	}
	if failed != nil {
		failed.drop(reason, err)
	}
	for _, c := range rest {
		if c.entry != nil {
			c.entry.reply.drop(reason, err)
		}
	}
	if len(rest) > 0 {
		q.log.Warn("dropped pending entries", "count", len(rest), "reason", reason.String())
	}

	if c, ok := h.(io.Closer); ok {
		if err := c.Close(); err != nil {
			q.log.Error("close handler", "error", err)
		}
	}
}

func (r *replySlot[Resp]) drop(reason Reason, err error) {
	r.reason, r.err = reason, err
	close(r.ch)
}

func safeHandle[Req, Resp any](h Handler[Req, Resp], req Req) (resp Resp, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in handler: %v", rec)
		}
	}()
	return h.Handle(req)
}

// Future is the caller side of one submitted request.
type Future[Resp any] struct {
	id    uuid.UUID
	queue string
	reply *replySlot[Resp]

	mu      sync.Mutex
	settled bool
	resp    Resp
	err     error
}

// ID returns the entry id, also used in queue logs.
func (f *Future[Resp]) ID() uuid.UUID { return f.id }

// Wait blocks until the response arrives or ctx is done. Giving up marks
// the entry abandoned and settles the future; the worker still processes
// the entry and discards the response. Once settled, Wait keeps returning
// the same outcome without blocking.
func (f *Future[Resp]) Wait(ctx context.Context) (Resp, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.settled {
		return f.resp, f.err
	}

	var zero Resp
	select {
	case r, ok := <-f.reply.ch:
		f.settled = true
		if !ok {
			f.err = &DeliveryError{Queue: f.queue, ID: f.id, Reason: f.reply.reason, Err: f.reply.err}
			return zero, f.err
		}
		f.resp = r.resp
		return f.resp, nil
	case <-ctx.Done():
		f.reply.abandoned.Store(true)
		f.settled = true
		f.err = &DeliveryError{Queue: f.queue, ID: f.id, Reason: ReasonAbandoned, Err: ctx.Err()}
		return zero, f.err
	}
}
