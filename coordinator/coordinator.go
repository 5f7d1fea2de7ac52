package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/poiesic/sdstore/storage"
	"github.com/poiesic/sdstore/txn"
)

var (
	// ErrTerminalState is returned by Advance from a state with no successor.
	ErrTerminalState = errors.New("coordinator: state cannot advance")
	// ErrInvalidState is returned for a State outside the declared set.
	ErrInvalidState = errors.New("coordinator: invalid state")
)

// Coordinator routes transactions to the backend the current State names.
type Coordinator struct {
	legacy     txn.Backend
	relational txn.Backend
	logger     *slog.Logger
	strictness Strictness
	debug      bool
	onAdvance  []func(from, to State) error
	notifier   *CrossProcess

	// Held shared by writes, exclusively by Advance. state is only stored
	// under the exclusive lock but loads never take mu, so code running
	// inside a write can read it while an Advance is queued.
	mu    sync.RWMutex
	state atomic.Int32
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithStrictness sets the misroute policy. Default is StrictFailDebug.
func WithStrictness(s Strictness) Option {
	return func(c *Coordinator) { c.strictness = s }
}

// WithDebug marks a debug build for StrictFailDebug.
func WithDebug(debug bool) Option {
	return func(c *Coordinator) { c.debug = debug }
}

// WithOnAdvance registers fn to run inside Advance before the new state is
// published. An error aborts the transition.
func WithOnAdvance(fn func(from, to State) error) Option {
	return func(c *Coordinator) {
		if fn != nil {
			c.onAdvance = append(c.onAdvance, fn)
		}
	}
}

// WithCrossProcess posts a cross-process notice after every committed write.
func WithCrossProcess(n *CrossProcess) Option {
	return func(c *Coordinator) { c.notifier = n }
}

// New returns a Coordinator in initial.
func New(legacy, relational txn.Backend, initial State, opts ...Option) (*Coordinator, error) {
	if !initial.valid() {
		return nil, fmt.Errorf("%w: %v", ErrInvalidState, initial)
	}
	if legacy == nil || legacy.Kind() != storage.BackendLegacy {
		return nil, errors.New("coordinator: legacy backend required")
	}
	if relational == nil || relational.Kind() != storage.BackendRelational {
		return nil, errors.New("coordinator: relational backend required")
	}
	c := &Coordinator{
		legacy:     legacy,
		relational: relational,
		logger:     slog.Default(),
		strictness: StrictFailDebug,
	}
	c.state.Store(int32(initial))
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// State returns the current state.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// Advance moves to the successor state. It blocks until in-flight writes
// routed through the coordinator have finished. Calling Advance from inside
// a Write deadlocks.
func (c *Coordinator) Advance() (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	from := c.State()
	to, ok := from.next()
	if !ok {
		return from, fmt.Errorf("%w: %s", ErrTerminalState, from)
	}
	for _, fn := range c.onAdvance {
		if err := fn(from, to); err != nil {
			return from, fmt.Errorf("advance %s -> %s: %w", from, to, err)
		}
	}
	c.state.Store(int32(to))
	c.logger.Info("storage coordinator advanced", "from", from, "to", to)
	return to, nil
}

// AdvanceTo advances until target is reached. Targets behind the current
// state fail with ErrTerminalState.
func (c *Coordinator) AdvanceTo(target State) error {
	if !target.valid() {
		return fmt.Errorf("%w: %v", ErrInvalidState, target)
	}
	for {
		current := c.State()
		if current == target {
			return nil
		}
		if _, err := c.Advance(); err != nil {
			return fmt.Errorf("advance to %s: %w", target, err)
		}
	}
}

// CanRead reports whether kind serves reads in the current state.
func (c *Coordinator) CanRead(kind storage.BackendKind) bool {
	return c.State().ReadBackend() == kind
}

// CanWrite reports whether kind takes writes in the current state.
func (c *Coordinator) CanWrite(kind storage.BackendKind) bool {
	return c.State().WriteBackend() == kind
}

func (c *Coordinator) backend(kind storage.BackendKind) txn.Backend {
	if kind == storage.BackendRelational {
		return c.relational
	}
	return c.legacy
}

// Read runs fn on the read backend.
func (c *Coordinator) Read(ctx context.Context, fn func(txn.ReadTx) error) error {
	return c.backend(c.State().ReadBackend()).Read(ctx, fn)
}

// UIRead runs fn on the read backend at the snapshot observers last saw.
func (c *Coordinator) UIRead(ctx context.Context, fn func(txn.ReadTx) error) error {
	return c.backend(c.State().ReadBackend()).UIRead(ctx, fn)
}

// Write runs fn on the write backend. The state cannot change until the
// write returns.
func (c *Coordinator) Write(ctx context.Context, fn func(txn.WriteTx) error) error {
	c.mu.RLock()
	kind := c.State().WriteBackend()
	err := c.backend(kind).Write(ctx, fn)
	c.mu.RUnlock()
	if err != nil {
		return err
	}
	if c.notifier != nil {
		c.notifier.DidCommitWrite()
	}
	return nil
}

// guard applies the strictness policy to an operation on kind.
func (c *Coordinator) guard(op string, kind storage.BackendKind, state State, allowed bool) error {
	if allowed {
		return nil
	}
	err := &storage.MisrouteError{Op: op, Backend: kind, State: state.String()}
	switch {
	case c.strictness == StrictFail, c.strictness == StrictFailDebug && c.debug:
		c.logger.Error("storage misroute", "op", op, "backend", kind, "state", state)
		return err
	default:
		c.logger.Warn("storage misroute", "op", op, "backend", kind, "state", state)
		return nil
	}
}

// Backend returns a view of one backend that checks every transaction
// against the routing table.
func (c *Coordinator) Backend(kind storage.BackendKind) txn.Backend {
	return &guarded{c: c, kind: kind}
}

type guarded struct {
	c    *Coordinator
	kind storage.BackendKind
}

func (g *guarded) Kind() storage.BackendKind { return g.kind }

func (g *guarded) Read(ctx context.Context, fn func(txn.ReadTx) error) error {
	state := g.c.State()
	if err := g.c.guard("read", g.kind, state, state.ReadBackend() == g.kind); err != nil {
		return err
	}
	return g.c.backend(g.kind).Read(ctx, fn)
}

func (g *guarded) UIRead(ctx context.Context, fn func(txn.ReadTx) error) error {
	state := g.c.State()
	if err := g.c.guard("read", g.kind, state, state.ReadBackend() == g.kind); err != nil {
		return err
	}
	return g.c.backend(g.kind).UIRead(ctx, fn)
}

func (g *guarded) Write(ctx context.Context, fn func(txn.WriteTx) error) error {
	g.c.mu.RLock()
	state := g.c.State()
	if err := g.c.guard("write", g.kind, state, state.WriteBackend() == g.kind); err != nil {
		g.c.mu.RUnlock()
		return err
	}
	err := g.c.backend(g.kind).Write(ctx, fn)
	g.c.mu.RUnlock()
	if err == nil && g.c.notifier != nil {
		g.c.notifier.DidCommitWrite()
	}
	return err
}
