// Package eventbus implements the engine's in-process publish/subscribe
// hub: fire-and-forget Publish, error-collecting PublishAndWait, and a
// Shutdown that waits for in-flight handlers. The subscriber registry is
// guarded by a short sync.RWMutex critical section, with handler
// invocation happening outside the lock.
package eventbus

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Handler processes one event. An error returned from a handler never
// affects other handlers.
type Handler func(ctx context.Context, ev Event) error

// Token identifies a subscription for later Unsubscribe.
type Token int64

type subscriberEntry struct {
	token   Token
	handler Handler
}

// Bus is the in-process event hub.
type Bus struct {
	mu   sync.RWMutex
	subs map[EventType][]subscriberEntry

	nextToken atomic.Int64
	wg        sync.WaitGroup
}

// New builds an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[EventType][]subscriberEntry)}
}

// Subscribe registers handler for eventType and returns a token that
// later identifies it to Unsubscribe. Function values are not
// comparable, so the token stands in for the handler identity.
func (b *Bus) Subscribe(eventType EventType, handler Handler) Token {
	token := Token(b.nextToken.Add(1))

	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[eventType] = append(b.subs[eventType], subscriberEntry{token: token, handler: handler})
	return token
}

// Unsubscribe removes the subscription identified by token from
// eventType.
func (b *Bus) Unsubscribe(eventType EventType, token Token) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entries := b.subs[eventType]
	for i, e := range entries {
		if e.token == token {
			b.subs[eventType] = append(entries[:i], entries[i+1:]...)
			return
		}
	}
}

func (b *Bus) snapshot(eventType EventType) []subscriberEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	entries := b.subs[eventType]
	out := make([]subscriberEntry, len(entries))
	copy(out, entries)
	return out
}

// Publish schedules each subscribed handler concurrently and returns
// immediately. A handler that errors or panics does not affect the
// others; its failure is discarded.
func (b *Bus) Publish(ev Event) {
	for _, e := range b.snapshot(ev.Type) {
		e := e
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			defer func() { recover() }()
			_ = e.handler(context.Background(), ev)
		}()
	}
}

// PublishAndWait schedules all handlers, awaits all, and returns every
// error they returned. Uses errgroup.Group to launch and
// track the handler goroutines; errors are collected into a
// mutex-guarded slice rather than relying on errgroup's fail-fast
// Wait(), since the caller needs every handler's error, not just the
// first.
func (b *Bus) PublishAndWait(ctx context.Context, ev Event) []error {
	entries := b.snapshot(ev.Type)

	var g errgroup.Group
	var mu sync.Mutex
	var errs []error

	for _, e := range entries {
		e := e
		g.Go(func() error {
			if err := e.handler(ctx, ev); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()
	return errs
}

// Shutdown awaits completion of all in-flight Publish handler goroutines,
// or returns ctx's error if it is canceled first.
func (b *Bus) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
