package observation

import (
	"errors"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/poiesic/sdstore/dispatch"
	"github.com/poiesic/sdstore/storage/sqlite"
)

// Domain is what a subscription is interested in.
type Domain int

const (
	// DomainConversation covers the interactions of one thread.
	DomainConversation Domain = iota + 1
	// DomainConversationList covers thread ordering and previews.
	DomainConversationList
	// DomainFullTextIndex covers searchable threads and interactions.
	DomainFullTextIndex
	// DomainAll receives every commit, including commits with no changes.
	DomainAll
)

func (d Domain) String() string {
	switch d {
	case DomainConversation:
		return "conversation"
	case DomainConversationList:
		return "conversationList"
	case DomainFullTextIndex:
		return "fullTextIndex"
	case DomainAll:
		return "all"
	default:
		return "unknown"
	}
}

// Update is what one commit changed, or an external change notice.
type Update struct {
	Snapshot uint64
	// External marks a change committed by another process. The id lists
	// are empty; subscribers reload everything they show.
	External bool

	InteractionIDs    []string
	InteractionRowIDs []int64
	ThreadIDs         []string
	Tables            []string

	// interactionThreads parallels InteractionIDs.
	interactionThreads []string
}

// HasThread reports whether threadID is among the touched threads.
func (u Update) HasThread(threadID string) bool {
	return slices.Contains(u.ThreadIDs, threadID)
}

// ErrNoUIContext is returned by NewPipeline without a delivery context.
var ErrNoUIContext = errors.New("observation: nil UI context")

// Pipeline turns commits into Updates. It implements sqlite.CommitObserver.
type Pipeline struct {
	ui     dispatch.Context
	logger *slog.Logger

	mu     sync.Mutex
	latest uint64
	subs   map[uint64]*subscription
	nextID uint64
}

var _ sqlite.CommitObserver = (*Pipeline)(nil)

type subscription struct {
	domain   Domain
	threadID string
	fn       func(Update)
	active   atomic.Bool
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewPipeline creates a pipeline delivering on ui.
func NewPipeline(ui dispatch.Context, opts ...Option) (*Pipeline, error) {
	if ui == nil {
		return nil, ErrNoUIContext
	}
	p := &Pipeline{
		ui:     ui,
		logger: slog.Default(),
		subs:   make(map[uint64]*subscription),
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// LatestSnapshot returns the newest snapshot delivered.
func (p *Pipeline) LatestSnapshot() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latest
}

// DidCommit records a commit and schedules delivery. Snapshots older than
// the latest one are ignored.
func (p *Pipeline) DidCommit(snapshot uint64, changes []sqlite.Change) {
	update := collect(snapshot, changes)

	p.mu.Lock()
	defer p.mu.Unlock()
	if snapshot <= p.latest {
		p.logger.Warn("ignoring stale snapshot", "snapshot", snapshot, "latest", p.latest)
		return
	}
	p.latest = snapshot
	p.deliverLocked(update)
}

// DidChangeExternally tells every subscriber that another process wrote to
// the store.
func (p *Pipeline) DidChangeExternally() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deliverLocked(Update{Snapshot: p.latest, External: true})
}

// deliverLocked submits per-subscription views of update in subscription
// order. Submitting under p.mu keeps commits in order on serial contexts.
func (p *Pipeline) deliverLocked(update Update) {
	ids := make([]uint64, 0, len(p.subs))
	for id := range p.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	for _, id := range ids {
		sub := p.subs[id]
		view, ok := sub.view(update)
		if !ok {
			continue
		}
		err := p.ui.Submit(func() {
			if sub.active.Load() {
				sub.fn(view)
			}
		})
		if err != nil {
			p.logger.Error("dropping change notification", "domain", sub.domain, "snapshot", update.Snapshot, "err", err)
		}
	}
}

func (s *subscription) view(u Update) (Update, bool) {
	if u.External {
		return u, true
	}
	switch s.domain {
	case DomainAll:
		return u, true
	case DomainConversationList:
		return u, len(u.ThreadIDs) > 0
	case DomainFullTextIndex:
		searchable := slices.Contains(u.Tables, sqlite.TableInteractions) || slices.Contains(u.Tables, sqlite.TableThreads)
		return u, searchable
	case DomainConversation:
		if !u.HasThread(s.threadID) {
			return Update{}, false
		}
		return u.forThread(s.threadID), true
	default:
		return Update{}, false
	}
}

func (p *Pipeline) subscribe(sub *subscription) func() {
	sub.active.Store(true)
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.subs[id] = sub
	p.mu.Unlock()

	return func() {
		sub.active.Store(false)
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}
}

// ObserveConversation subscribes to changes in threadID. The returned func
// cancels the subscription; notifications already queued are dropped.
func (p *Pipeline) ObserveConversation(threadID string, fn func(Update)) func() {
	return p.subscribe(&subscription{domain: DomainConversation, threadID: threadID, fn: fn})
}

// ObserveConversationList subscribes to changes to any thread.
func (p *Pipeline) ObserveConversationList(fn func(Update)) func() {
	return p.subscribe(&subscription{domain: DomainConversationList, fn: fn})
}

// ObserveFullTextIndex subscribes to changes to searchable records.
func (p *Pipeline) ObserveFullTextIndex(fn func(Update)) func() {
	return p.subscribe(&subscription{domain: DomainFullTextIndex, fn: fn})
}

// Observe subscribes to every commit.
func (p *Pipeline) Observe(fn func(Update)) func() {
	return p.subscribe(&subscription{domain: DomainAll, fn: fn})
}
