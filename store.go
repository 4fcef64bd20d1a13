package kvmirror

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Pair is a logical key with its value. Absent keys carry the zero Value.
type Pair struct {
	Key   string
	Value Value
}

// Config mirrors the object form of construction. A non-nil OnPreload
// implies Preload.
type Config struct {
	Prefix    string
	Preload   bool
	OnPreload func(s *Store)
}

// Option customizes Store behavior.
type Option func(*Store)

// WithDriver persists the namespace to d instead of a private Memory.
// A nil d is ignored.
func WithDriver(d Driver) Option {
	return func(s *Store) {
		if d != nil {
			s.driver = d
		}
	}
}

// WithLogger routes store diagnostics to logger. Stores are silent by
// default.
func WithLogger(logger Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithLogTag prepends tag to every message the store logs.
func WithLogTag(tag string) Option {
	return func(s *Store) {
		s.logTag = tag
	}
}

// WithPreload toggles the background restore run at construction.
func WithPreload(preload bool) Option {
	return func(s *Store) {
		s.preload = preload
	}
}

// WithOnPreload registers a callback run once the construction-time
// restore succeeds. It enables preload.
func WithOnPreload(fn func(s *Store)) Option {
	return func(s *Store) {
		s.onPreload = fn
		if fn != nil {
			s.preload = true
		}
	}
}

// WithErrorHandler receives every failed backing-store write.
func WithErrorHandler(fn func(error)) Option {
	return func(s *Store) {
		s.persist.onError = fn
	}
}

// WithSyncWrites makes mutating calls wait for the backing store and
// return its errors.
func WithSyncWrites() Option {
	return func(s *Store) {
		s.persist.sync = true
	}
}

// Store is a namespaced view over a Driver with a synchronous in-memory
// mirror and per-key change notification.
type Store struct {
	prefix    string
	driver    Driver
	logger    Logger
	logTag    string
	preload   bool
	onPreload func(s *Store)

	// wmu orders mutations so the backing store sees them in mirror order.
	wmu sync.Mutex

	mu     sync.RWMutex
	mirror *mirror
	// dirty collects keys written while a restore is reading; restored
	// values never overwrite them.
	dirty     map[string]struct{}
	restoring int
	// gen changes on Clear and Release; a restore that started under an
	// older generation drops what it read.
	gen uint64

	events  *emitter
	persist *persister

	ready      chan struct{}
	preloadErr error
}

// New creates a Store whose physical keys are prefix + key.
// It restores the mirror in the background unless WithPreload(false) is
// given. If no driver is provided via WithDriver, NewMemory() is used.
func New(prefix string, opts ...Option) *Store {
	s := &Store{
		prefix:  prefix,
		driver:  NewMemory(),
		logger:  discardLogger{},
		preload: true,
		mirror:  newMirror(),
		events:  newEmitter(),
		persist: &persister{},
		ready:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.persist.logf = s.logf
	s.persist.start()

	if s.preload {
		go s.runPreload()
	} else {
		close(s.ready)
	}
	return s
}

// NewWithConfig creates a Store from the object form of construction.
// Options are applied after cfg.
func NewWithConfig(cfg Config, opts ...Option) *Store {
	base := []Option{WithPreload(cfg.Preload || cfg.OnPreload != nil)}
	if cfg.OnPreload != nil {
		base = append(base, WithOnPreload(cfg.OnPreload))
	}
	return New(cfg.Prefix, append(base, opts...)...)
}

func (s *Store) runPreload() {
	defer close(s.ready)
	ctx := context.Background()
	if err := s.Restore(ctx); err != nil {
		s.preloadErr = err
		s.logf("error", ctx, "preload failed: %v", err)
		if s.persist.onError != nil {
			s.persist.onError(err)
		}
		return
	}
	if s.onPreload != nil {
		s.onPreload(s)
	}
}

// Ready is closed once the construction-time restore has finished.
func (s *Store) Ready() <-chan struct{} { return s.ready }

// WaitReady blocks until Ready is closed and returns the preload error.
func (s *Store) WaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return s.preloadErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Prefix returns the namespace prefix.
func (s *Store) Prefix() string { return s.prefix }

// Driver returns the backing store.
func (s *Store) Driver() Driver { return s.driver }

func (s *Store) key(k string) string { return s.prefix + k }

func (s *Store) unkey(physical string) string { return physical[len(s.prefix):] }

func (s *Store) owns(physical string) bool { return strings.HasPrefix(physical, s.prefix) }

func (s *Store) logf(level string, ctx context.Context, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if s.logTag != "" {
		msg = s.logTag + " " + msg
	}
	switch level {
	case "info":
		s.logger.Info(ctx, "%s", msg)
	case "warn":
		s.logger.Warn(ctx, "%s", msg)
	case "error":
		s.logger.Error(ctx, "%s", msg)
	case "debug":
		s.logger.Debug(ctx, "%s", msg)
	}
}

// markDirty must be called with mu held.
func (s *Store) markDirty(physical string) {
	if s.dirty != nil {
		s.dirty[physical] = struct{}{}
	}
}

// GetItem reads key from the mirror.
func (s *Store) GetItem(key string) (Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mirror.get(s.key(key))
}

// SetItem stores value under key. Setting a value deeply equal to the
// current one does nothing: no write and no notification.
func (s *Store) SetItem(ctx context.Context, key string, value Value) error {
	if err := s.persist.err(); err != nil {
		return err
	}
	if value.IsAbsent() {
		return fmt.Errorf("%w: set %s to absent value", ErrInvalidValue, key)
	}
	raw, err := Marshal(value)
	if err != nil {
		return err
	}
	physical := s.key(key)

	s.wmu.Lock()
	s.mu.Lock()
	if cur, ok := s.mirror.get(physical); ok && cur.Equal(value) {
		s.mu.Unlock()
		s.wmu.Unlock()
		return nil
	}
	s.mirror.set(physical, value)
	s.markDirty(physical)
	s.mu.Unlock()

	err = s.persist.submit(ctx, persistOp{name: "set", keys: []string{physical}, run: func(ctx context.Context) error {
		return s.driver.Set(ctx, physical, raw)
	}})
	s.wmu.Unlock()

	s.logf("debug", ctx, "set %s (%s)", key, value.Kind())
	s.events.emit(key, value)
	return err
}

// Set is SetItem for plain Go values, see ValueOf.
func (s *Store) Set(ctx context.Context, key string, value any) error {
	v, err := ValueOf(value)
	if err != nil {
		return err
	}
	return s.SetItem(ctx, key, v)
}

// MultiSet stores pairs in one batched write. Pairs equal to the current
// value are skipped; the rest are notified in input order.
func (s *Store) MultiSet(ctx context.Context, pairs []Pair) error {
	if err := s.persist.err(); err != nil {
		return err
	}
	encoded := make([][]byte, len(pairs))
	for i, p := range pairs {
		if p.Value.IsAbsent() {
			return fmt.Errorf("%w: set %s to absent value", ErrInvalidValue, p.Key)
		}
		raw, err := Marshal(p.Value)
		if err != nil {
			return fmt.Errorf("encode %s: %w", p.Key, err)
		}
		encoded[i] = raw
	}

	s.wmu.Lock()
	s.mu.Lock()
	changed := make([]Pair, 0, len(pairs))
	batch := make(map[string][]byte, len(pairs))
	for i, p := range pairs {
		physical := s.key(p.Key)
		if cur, ok := s.mirror.get(physical); ok && cur.Equal(p.Value) {
			continue
		}
		s.mirror.set(physical, p.Value)
		s.markDirty(physical)
		batch[physical] = encoded[i]
		changed = append(changed, p)
	}
	s.mu.Unlock()

	var err error
	if len(batch) > 0 {
		keys := make([]string, 0, len(changed))
		for _, p := range changed {
			keys = append(keys, s.key(p.Key))
		}
		err = s.persist.submit(ctx, persistOp{name: "mset", keys: keys, run: func(ctx context.Context) error {
			return s.driver.MSet(ctx, batch)
		}})
	}
	s.wmu.Unlock()

	for _, p := range changed {
		s.events.emit(p.Key, p.Value)
	}
	return err
}

// RemoveItem notifies listeners of key with the absent value, then
// deletes key from the mirror and the backing store.
func (s *Store) RemoveItem(ctx context.Context, key string) error {
	if err := s.persist.err(); err != nil {
		return err
	}
	s.events.emit(key, Value{})

	physical := s.key(key)
	s.wmu.Lock()
	defer s.wmu.Unlock()
	s.mu.Lock()
	s.mirror.delete(physical)
	s.markDirty(physical)
	s.mu.Unlock()

	return s.persist.submit(ctx, persistOp{name: "delete", keys: []string{physical}, run: func(ctx context.Context) error {
		return s.driver.Delete(ctx, physical)
	}})
}

// MultiRemove is RemoveItem for several keys with one batched delete.
func (s *Store) MultiRemove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.persist.err(); err != nil {
		return err
	}
	for _, key := range keys {
		s.events.emit(key, Value{})
	}

	physical := make([]string, len(keys))
	s.wmu.Lock()
	defer s.wmu.Unlock()
	s.mu.Lock()
	for i, key := range keys {
		physical[i] = s.key(key)
		s.mirror.delete(physical[i])
		s.markDirty(physical[i])
	}
	s.mu.Unlock()

	return s.persist.submit(ctx, persistOp{name: "mdel", keys: physical, run: func(ctx context.Context) error {
		return s.driver.MDel(ctx, physical)
	}})
}

// Clear notifies every mirrored key with the absent value, empties the
// mirror and removes every prefixed key from the backing store.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.persist.err(); err != nil {
		return err
	}
	for _, key := range s.GetAllKeys() {
		s.events.emit(key, Value{})
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()
	s.mu.Lock()
	for _, physical := range s.mirror.keys() {
		s.markDirty(physical)
	}
	s.mirror.reset()
	s.gen++
	s.mu.Unlock()

	return s.persist.submit(ctx, persistOp{name: "clear", keys: []string{s.prefix + "*"}, run: func(ctx context.Context) error {
		return s.driver.Clear(ctx, s.prefix)
	}})
}

// GetAllKeys returns every mirrored logical key in insertion order.
func (s *Store) GetAllKeys() []string {
	s.mu.RLock()
	physical := s.mirror.keys()
	s.mu.RUnlock()

	keys := make([]string, len(physical))
	for i, k := range physical {
		keys[i] = s.unkey(k)
	}
	return keys
}

// GetKeys returns the logical keys accepted by pattern. A nil pattern
// returns every key.
func (s *Store) GetKeys(pattern Matcher) []string {
	keys := s.GetAllKeys()
	if pattern == nil {
		return keys
	}
	matched := keys[:0]
	for _, k := range keys {
		if pattern.MatchString(k) {
			matched = append(matched, k)
		}
	}
	return matched
}

// Search returns the mirrored pairs whose keys match pattern, in key
// insertion order.
func (s *Store) Search(pattern Matcher) []Pair {
	return s.MultiGet(s.GetKeys(pattern)...)
}

// MultiGet reads several keys from the mirror. Missing keys yield the
// absent value.
func (s *Store) MultiGet(keys ...string) []Pair {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pairs := make([]Pair, len(keys))
	for i, k := range keys {
		v, _ := s.mirror.get(s.key(k))
		pairs[i] = Pair{Key: k, Value: v}
	}
	return pairs
}

// AddListener calls fn on every accepted change to key.
func (s *Store) AddListener(key string, fn Listener) *Subscription {
	return s.events.add(key, fn, false)
}

// Once calls fn on the next change to key only.
func (s *Store) Once(key string, fn Listener) *Subscription {
	return s.events.add(key, fn, true)
}

// RemoveAllListeners detaches every listener of key.
func (s *Store) RemoveAllListeners(key string) {
	s.events.removeAll(key)
}

// ListenerCount returns the number of listeners registered for key.
func (s *Store) ListenerCount(key string) int {
	return s.events.count(key)
}

// Restore loads every prefixed key of the backing store into the mirror
// without notifying listeners. Keys written while the restore runs keep
// their newer values. Entries that fail to decode are skipped and
// reported in the returned error.
func (s *Store) Restore(ctx context.Context) error {
	if err := s.persist.drain(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	if s.dirty == nil {
		s.dirty = make(map[string]struct{})
	}
	s.restoring++
	gen := s.gen
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.restoring--
		if s.restoring == 0 {
			s.dirty = nil
		}
		s.mu.Unlock()
	}()

	all, err := s.driver.Keys(ctx, s.prefix)
	if err != nil {
		s.logf("error", ctx, "restore keys failed: %v", err)
		return fmt.Errorf("restore keys: %w", err)
	}
	keys := make([]string, 0, len(all))
	for _, k := range all {
		if s.owns(k) {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil
	}

	raw, err := s.driver.MGet(ctx, keys)
	if err != nil {
		s.logf("error", ctx, "restore values failed: %v", err)
		return fmt.Errorf("restore values: %w", err)
	}

	var errs []error
	restored := make([]Pair, 0, len(keys))
	for _, k := range keys {
		data, ok := raw[k]
		if !ok {
			continue
		}
		v, err := Unmarshal(data)
		if err != nil {
			s.logf("warn", ctx, "restore %s skipped: %v", k, err)
			errs = append(errs, fmt.Errorf("restore %s: %w", k, err))
			continue
		}
		if v.IsAbsent() {
			continue
		}
		restored = append(restored, Pair{Key: k, Value: v})
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		s.logf("debug", ctx, "restore discarded: store cleared or released meanwhile")
		return errors.Join(errs...)
	}
	for _, p := range restored {
		if _, written := s.dirty[p.Key]; written {
			continue
		}
		s.mirror.set(p.Key, p.Value)
	}
	s.mu.Unlock()

	s.logf("info", ctx, "restored %d keys", len(restored))
	return errors.Join(errs...)
}

// Release empties the mirror. The backing store is untouched and reads
// return absent until the next Restore.
func (s *Store) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mirror.reset()
	s.gen++
}

// Flush waits for queued backing-store writes and returns the write
// failures seen since the previous Flush.
func (s *Store) Flush(ctx context.Context) error {
	return s.persist.flush(ctx)
}

// Close flushes pending writes and stops the write-behind worker.
// Mutations after Close fail with ErrClosed; reads keep working.
func (s *Store) Close(ctx context.Context) error {
	return s.persist.close(ctx)
}

// Connect describes a binding of keys to props for NewView.
func (s *Store) Connect(keys []string, mapToProps func(values []Value) Props) Binding {
	return Binding{Store: s, Keys: keys, MapToProps: mapToProps}
}
