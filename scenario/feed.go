package scenario

import (
	"context"
	"sync"
)

// =============================================================================
// FEED - Keyed change notification for store subscriptions
// =============================================================================

// Feed fans change signals out to subscribers of a key. Stores call Notify
// after each committed write; each subscriber reloads the latest state on
// its own goroutine.
//
// Signals coalesce: a subscriber that is busy loading when several writes
// land reloads once more afterwards, never once per write. Since every
// reload reads the committed state, deliveries are never older than the
// previous one.
type Feed[T any] struct {
	mu   sync.Mutex
	subs map[string]map[*feedSub]struct{}
}

type feedSub struct {
	signal chan struct{}
	cancel context.CancelFunc
}

// NewFeed creates an empty feed.
func NewFeed[T any]() *Feed[T] {
	return &Feed[T]{subs: make(map[string]map[*feedSub]struct{})}
}

// Subscribe delivers load's result to onUpdate now and after every Notify of
// key. If load fails, onError is called once and the subscription ends.
func (f *Feed[T]) Subscribe(ctx context.Context, key string, load func(context.Context) (T, error), onUpdate func(T), onError func(error)) (unsubscribe func()) {
	ctx, cancel := context.WithCancel(ctx)
	sub := &feedSub{signal: make(chan struct{}, 1), cancel: cancel}

	f.mu.Lock()
	if f.subs[key] == nil {
		f.subs[key] = make(map[*feedSub]struct{})
	}
	f.subs[key][sub] = struct{}{}
	f.mu.Unlock()

	sub.signal <- struct{}{}
	go func() {
		defer f.remove(key, sub)
		for {
			select {
			case <-ctx.Done():
				return
			case <-sub.signal:
			}
			v, err := load(ctx)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				if onError != nil {
					onError(err)
				}
				return
			}
			onUpdate(v)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(cancel)
	}
}

// Notify wakes every subscriber of key.
func (f *Feed[T]) Notify(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for sub := range f.subs[key] {
		select {
		case sub.signal <- struct{}{}:
		default:
		}
	}
}

// Close ends every subscription.
func (f *Feed[T]) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, set := range f.subs {
		for sub := range set {
			sub.cancel()
		}
	}
}

// Subscribers returns the number of live subscriptions on key.
func (f *Feed[T]) Subscribers(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs[key])
}

func (f *Feed[T]) remove(key string, sub *feedSub) {
	sub.cancel()
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subs[key], sub)
	if len(f.subs[key]) == 0 {
		delete(f.subs, key)
	}
}
