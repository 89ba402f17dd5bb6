package scheduler

import (
	"context"
	"fmt"
	"sync"
)

// Work is a unit of work run by a worker. It should honor ctx cancellation.
type Work[T any] func(ctx context.Context) (T, error)

type Result[T any] struct {
	Data T
	Err  error
}

// Future holds the result of a work item once a worker has run it.
type Future[T any] struct {
	c      chan Result[T]
	cancel context.CancelFunc
}

func newFuture[T any](cancel context.CancelFunc) *Future[T] {
	return &Future[T]{c: make(chan Result[T], 1), cancel: cancel}
}

// C delivers exactly one result.
func (f *Future[T]) C() <-chan Result[T] {
	return f.c
}

// Wait blocks until the result is available or ctx is done.
func (f *Future[T]) Wait(ctx context.Context) Result[T] {
	select {
	case r := <-f.c:
		return r
	case <-ctx.Done():
		return Result[T]{Err: ctx.Err()}
	}
}

// Stop cancels the context handed to the work.
func (f *Future[T]) Stop() {
	f.cancel()
}

type request[T any] struct {
	work   Work[T]
	ctx    context.Context
	future *Future[T]
}

// Scheduler runs work items on a fixed number of workers in FIFO order.
type Scheduler[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []request[T]
	closed bool

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func NewScheduler[T any](workers int) *Scheduler[T] {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler[T]{ctx: ctx, cancel: cancel}
	s.cond = sync.NewCond(&s.mu)

	for range max(workers, 1) {
		s.wg.Add(1)
		go s.worker()
	}
	return s
}

// AddWork queues w. Once the scheduler is closed the future resolves with
// context.Canceled without running w.
func (s *Scheduler[T]) AddWork(w Work[T]) *Future[T] {
	ctx, cancel := context.WithCancel(s.ctx)
	f := newFuture[T](cancel)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		cancel()
		f.c <- Result[T]{Err: context.Canceled}
		return f
	}
	s.queue = append(s.queue, request[T]{work: w, ctx: ctx, future: f})
	s.cond.Signal()
	return f
}

// Close cancels running work, resolves queued work with context.Canceled and
// waits for the workers to return.
func (s *Scheduler[T]) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		pending := s.queue
		s.queue = nil
		s.cond.Broadcast()
		s.mu.Unlock()

		s.cancel()
		for _, r := range pending {
			r.future.c <- Result[T]{Err: context.Canceled}
		}
		s.wg.Wait()
	})
}

func (s *Scheduler[T]) worker() {
	defer s.wg.Done()
	for {
		r, ok := s.next()
		if !ok {
			return
		}
		r.future.c <- run(r)
		r.future.cancel()
	}
}

func (s *Scheduler[T]) next() (request[T], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.queue) == 0 && !s.closed {
		s.cond.Wait()
	}
	if s.closed {
		return request[T]{}, false
	}
	r := s.queue[0]
	s.queue = s.queue[1:]
	return r, true
}

func run[T any](r request[T]) (res Result[T]) {
	defer func() {
		if p := recover(); p != nil {
			res = Result[T]{Err: fmt.Errorf("worker panicked: %v", p)}
		}
	}()
	v, err := r.work(r.ctx)
	return Result[T]{Data: v, Err: err}
}
