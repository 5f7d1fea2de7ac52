package dispatch

import (
	"errors"
	"log/slog"
	"runtime"
	"sync"

	"github.com/panjf2000/ants/v2"
)

// ErrClosed is returned when submitting to a released context.
var ErrClosed = errors.New("dispatch: context closed")

// Context is an execution context tasks can be submitted to.
type Context interface {
	// Name identifies the context in logs.
	Name() string
	// Submit schedules task to run asynchronously.
	Submit(task func()) error
}

// Serial runs tasks one at a time in FIFO order on a dedicated goroutine.
type Serial struct {
	name   string
	logger *slog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func()
	closed  bool
	stopped chan struct{}
}

var _ Context = (*Serial)(nil)

// NewSerial starts a serial context.
func NewSerial(name string) *Serial {
	s := &Serial{
		name:    name,
		logger:  slog.Default(),
		stopped: make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	go s.run()
	return s
}

// Name returns the name given to NewSerial.
func (s *Serial) Name() string { return s.name }

// Submit queues task behind everything already submitted. It returns
// ErrClosed once Close has been called.
func (s *Serial) Submit(task func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.queue = append(s.queue, task)
	s.cond.Signal()
	return nil
}

func (s *Serial) run() {
	defer close(s.stopped)
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.queue) == 0 && s.closed {
			s.mu.Unlock()
			return
		}
		task := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		s.mu.Unlock()

		s.invoke(task)
	}
}

func (s *Serial) invoke(task func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("task panicked", "context", s.name, "panic", r)
		}
	}()
	task()
}

// Close drains queued tasks and stops the goroutine.
func (s *Serial) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.stopped
		return
	}
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()
	<-s.stopped
}

// Pool runs tasks concurrently on an ants worker pool.
type Pool struct {
	name string
	pool *ants.Pool
}

var _ Context = (*Pool)(nil)

// NewPool creates a pool context. A size below 1 defaults to runtime.NumCPU().
func NewPool(name string, size int) (*Pool, error) {
	if size < 1 {
		size = runtime.NumCPU()
	}
	pool, err := ants.NewPool(size)
	if err != nil {
		return nil, err
	}
	return &Pool{name: name, pool: pool}, nil
}

// Name returns the name given to NewPool.
func (p *Pool) Name() string { return p.name }

// Submit hands task to a free worker, blocking while all are busy. It
// returns ErrClosed after Release.
func (p *Pool) Submit(task func()) error {
	if err := p.pool.Submit(task); err != nil {
		if errors.Is(err, ants.ErrPoolClosed) {
			return ErrClosed
		}
		return err
	}
	return nil
}

// Release stops accepting tasks and frees idle workers.
func (p *Pool) Release() {
	p.pool.Release()
}

// Sync blocks until every task submitted to ctx before the call has run.
// Only meaningful for serial contexts.
func Sync(ctx Context) error {
	done := make(chan struct{})
	if err := ctx.Submit(func() { close(done) }); err != nil {
		return err
	}
	<-done
	return nil
}
