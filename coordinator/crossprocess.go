package coordinator

import (
	"log/slog"
	"sync"
)

// CrossProcess tells sibling processes about committed writes. While the
// host app is inactive, posts collapse into one that goes out on
// DidBecomeActive.
type CrossProcess struct {
	post     func()
	onRemote func()
	logger   *slog.Logger

	mu      sync.Mutex
	active  bool
	pending bool
	posted  uint64
}

// NewCrossProcess returns a notifier that calls post to signal siblings.
// onRemote, if set, runs for every notice received from a sibling.
func NewCrossProcess(active bool, post, onRemote func(), logger *slog.Logger) *CrossProcess {
	if logger == nil {
		logger = slog.Default()
	}
	if post == nil {
		post = func() {}
	}
	return &CrossProcess{post: post, onRemote: onRemote, logger: logger, active: active}
}

// DidCommitWrite posts now if active and marks a pending post otherwise.
func (n *CrossProcess) DidCommitWrite() {
	n.mu.Lock()
	if !n.active {
		n.pending = true
		n.mu.Unlock()
		return
	}
	n.posted++
	n.mu.Unlock()
	n.post()
}

// DidBecomeActive flushes a pending post.
func (n *CrossProcess) DidBecomeActive() {
	n.mu.Lock()
	n.active = true
	flush := n.pending
	n.pending = false
	if flush {
		n.posted++
	}
	n.mu.Unlock()
	if flush {
		n.logger.Debug("posting deferred cross-process notice")
		n.post()
	}
}

// DidResignActive starts deferring posts.
func (n *CrossProcess) DidResignActive() {
	n.mu.Lock()
	n.active = false
	n.mu.Unlock()
}

// Pending reports whether a post is waiting for activation.
func (n *CrossProcess) Pending() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.pending
}

// Posted counts posts sent.
func (n *CrossProcess) Posted() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.posted
}

// HandleRemote is called when a sibling posted.
func (n *CrossProcess) HandleRemote() {
	if n.onRemote != nil {
		n.onRemote()
	}
}
