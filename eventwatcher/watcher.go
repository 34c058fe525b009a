// Package eventwatcher implements a finality-delayed, subscriber-driven,
// deduplicated poller over an anchor chain's events, built around a single
// cooperative polling loop that starts lazily on first subscription.
package eventwatcher

import (
	"context"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/nikeshnazareth/plasma-core/types"
)

var log = logrus.WithField("prefix", "eventwatcher")

// AnchorClient is the subset of anchor-chain access EventWatcher needs:
// current head height and a ranged event query. RPC transport is the
// caller's concern — this is an interface the caller implements.
type AnchorClient interface {
	HeadBlock(ctx context.Context) (*big.Int, error)
	GetEvents(ctx context.Context, name string, from, to *big.Int) ([]*types.AnchorEvent, error)
}

// CursorStore is the subset of synccursor.Store EventWatcher needs.
type CursorStore interface {
	GetLastLoggedEventBlock(ctx context.Context, name string) (*big.Int, error)
	SetLastLoggedEventBlock(ctx context.Context, name string, block *big.Int) error
	AddEvents(ctx context.Context, events []*types.AnchorEvent) error
	HasEvent(ctx context.Context, e *types.AnchorEvent) (bool, error)
}

// Listener receives a finalised, deduplicated, ordered batch of events for
// one event name. Panics inside a Listener are isolated: they are
// recovered and logged, and never abort delivery to other listeners.
type Listener func(events []*types.AnchorEvent)

// Watcher is the EventWatcher service.
type Watcher struct {
	anchor        AnchorClient
	cursors       CursorStore
	finalityDepth *big.Int
	pollInterval  time.Duration

	mu        sync.Mutex
	listeners map[string][]subscription
	nextSubID uint64
	started   bool
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// subscription pairs a Listener with a subscription-lifetime id so
// Unsubscribe can find it by identity rather than by slice position,
// which shifts as sibling listeners come and go.
type subscription struct {
	id       uint64
	listener Listener
}

// New builds a Watcher. It does not start polling until the first
// subscription.
func New(anchor AnchorClient, cursors CursorStore, finalityDepth int64, pollInterval time.Duration) *Watcher {
	return &Watcher{
		anchor:        anchor,
		cursors:       cursors,
		finalityDepth: big.NewInt(finalityDepth),
		pollInterval:  pollInterval,
		listeners:     make(map[string][]subscription),
	}
}

// Dependencies satisfies the ServiceGraph service contract: EventWatcher
// has none — it only needs its anchor/cursor collaborators, which are
// supplied at construction, not discovered through the registry.
func (w *Watcher) Dependencies() []string { return nil }

// Started reports whether the polling loop is currently running.
func (w *Watcher) Started() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.started
}

// Subscribe registers listener for event name, starting the poll loop if
// this is the first subscription of any name. The returned func
// unsubscribes; unsubscribing the last listener for name disables polling
// for it until resubscribed.
func (w *Watcher) Subscribe(name string, listener Listener) (unsubscribe func()) {
	w.mu.Lock()
	w.nextSubID++
	id := w.nextSubID
	w.listeners[name] = append(w.listeners[name], subscription{id: id, listener: listener})
	needStart := !w.started
	if needStart {
		w.started = true
		w.stopCh = make(chan struct{})
		w.doneCh = make(chan struct{})
	}
	w.mu.Unlock()

	if needStart {
		go w.loop()
	}

	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		ls := w.listeners[name]
		for i, sub := range ls {
			if sub.id == id {
				w.listeners[name] = append(ls[:i], ls[i+1:]...)
				return
			}
		}
	}
}

// Start is a no-op beyond what Subscribe already does; it exists so
// Watcher satisfies the ServiceGraph Service contract symmetrically with
// Stop. Calling it before any subscription is a harmless no-op.
func (w *Watcher) Start() error { return nil }

// Stop cancels the poll loop and waits for it to exit.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return nil
	}
	w.started = false
	stopCh, doneCh := w.stopCh, w.doneCh
	w.mu.Unlock()

	close(stopCh)
	<-doneCh
	return nil
}

func (w *Watcher) loop() {
	defer close(w.doneCh)
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		w.pollAll(context.Background())
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
		}
	}
}

// subscribedNames returns a defensive snapshot of currently subscribed
// event names, skipping any with no remaining listeners.
func (w *Watcher) subscribedNames() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	names := make([]string, 0, len(w.listeners))
	for name, ls := range w.listeners {
		if len(ls) > 0 {
			names = append(names, name)
		}
	}
	return names
}

func (w *Watcher) listenersFor(name string) []Listener {
	w.mu.Lock()
	defer w.mu.Unlock()
	subs := w.listeners[name]
	out := make([]Listener, len(subs))
	for i, sub := range subs {
		out[i] = sub.listener
	}
	return out
}

// pollAll advances the head-to-finalized window and polls every currently
// subscribed event name within it.
func (w *Watcher) pollAll(ctx context.Context) {
	head, err := w.anchor.HeadBlock(ctx)
	if err != nil {
		log.WithError(err).Warn("failed to fetch anchor head block")
		return
	}
	finalHead := new(big.Int).Sub(head, w.finalityDepth)
	if finalHead.Sign() < 0 {
		finalHead = big.NewInt(0)
	}

	for _, name := range w.subscribedNames() {
		if err := w.pollOne(ctx, name, finalHead); err != nil {
			log.WithError(err).WithField("event", name).Warn("poll iteration failed")
		}
	}
}

func (w *Watcher) pollOne(ctx context.Context, name string, finalHead *big.Int) error {
	last, err := w.cursors.GetLastLoggedEventBlock(ctx, name)
	if err != nil {
		return errors.Wrap(err, "reading cursor")
	}
	from := new(big.Int).Add(last, big.NewInt(1))
	if from.Cmp(finalHead) > 0 {
		return nil
	}

	events, err := w.anchor.GetEvents(ctx, name, from, finalHead)
	if err != nil {
		return errors.Wrap(err, "querying anchor events")
	}

	survivors := make([]*types.AnchorEvent, 0, len(events))
	for _, e := range events {
		seen, err := w.cursors.HasEvent(ctx, e)
		if err != nil {
			return errors.Wrap(err, "checking seen set")
		}
		if !seen {
			survivors = append(survivors, e)
		}
	}

	sort.Slice(survivors, func(i, j int) bool {
		if c := survivors[i].BlockNumber.Cmp(survivors[j].BlockNumber); c != 0 {
			return c < 0
		}
		return survivors[i].LogIndex.Cmp(survivors[j].LogIndex) < 0
	})

	if len(survivors) > 0 {
		if err := w.cursors.AddEvents(ctx, survivors); err != nil {
			return errors.Wrap(err, "marking events seen")
		}
		w.deliver(name, survivors)
	}

	return w.cursors.SetLastLoggedEventBlock(ctx, name, finalHead)
}

func (w *Watcher) deliver(name string, events []*types.AnchorEvent) {
	for _, listener := range w.listenersFor(name) {
		w.safeCall(listener, events)
	}
}

func (w *Watcher) safeCall(listener Listener, events []*types.AnchorEvent) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("event listener panicked, isolating and continuing")
		}
	}()
	listener(events)
}
