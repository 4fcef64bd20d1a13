package kvmirror

import "sync"

// Listener receives the new value of a key. Removals deliver the absent
// Value.
type Listener func(value Value)

// Subscription is a registered listener. Remove detaches it.
type Subscription struct {
	key  string
	fn   Listener
	once bool
	em   *emitter

	mu      sync.Mutex
	removed bool
}

// Key returns the logical key the subscription listens to.
func (s *Subscription) Key() string { return s.key }

// Remove detaches the listener. It is safe to call more than once.
func (s *Subscription) Remove() {
	if s == nil || s.em == nil {
		return
	}
	s.em.remove(s)
}

// claim marks the subscription removed and reports whether this call did
// so. One-shot listeners use it to fire exactly once.
func (s *Subscription) claim() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removed {
		return false
	}
	s.removed = true
	return true
}

func (s *Subscription) active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.removed
}

// emitter dispatches per-key notifications. Each Store owns one.
type emitter struct {
	mu   sync.Mutex
	subs map[string][]*Subscription
}

func newEmitter() *emitter {
	return &emitter{subs: make(map[string][]*Subscription)}
}

func (e *emitter) add(key string, fn Listener, once bool) *Subscription {
	s := &Subscription{key: key, fn: fn, once: once, em: e}
	e.mu.Lock()
	e.subs[key] = append(e.subs[key], s)
	e.mu.Unlock()
	return s
}

func (e *emitter) remove(s *Subscription) {
	s.mu.Lock()
	s.removed = true
	s.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.detach(s)
}

func (e *emitter) detach(s *Subscription) {
	list := e.subs[s.key]
	for i, cur := range list {
		if cur == s {
			next := make([]*Subscription, 0, len(list)-1)
			next = append(next, list[:i]...)
			next = append(next, list[i+1:]...)
			if len(next) == 0 {
				delete(e.subs, s.key)
			} else {
				e.subs[s.key] = next
			}
			return
		}
	}
}

func (e *emitter) removeAll(key string) {
	e.mu.Lock()
	list := e.subs[key]
	delete(e.subs, key)
	e.mu.Unlock()

	for _, s := range list {
		s.mu.Lock()
		s.removed = true
		s.mu.Unlock()
	}
}

func (e *emitter) count(key string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subs[key])
}

// emit calls the listeners of key in registration order. It works on a
// snapshot, so listeners may subscribe, unsubscribe or write to the store.
func (e *emitter) emit(key string, v Value) {
	e.mu.Lock()
	snapshot := append([]*Subscription(nil), e.subs[key]...)
	e.mu.Unlock()

	for _, s := range snapshot {
		if s.once {
			if !s.claim() {
				continue
			}
			e.mu.Lock()
			e.detach(s)
			e.mu.Unlock()
		} else if !s.active() {
			continue
		}
		s.fn(v)
	}
}
