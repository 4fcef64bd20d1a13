// Package kvmirror provides a namespaced key-value store with a synchronous
// in-memory mirror over a pluggable asynchronous backing store.
//
// # Overview
//
// kvmirror keeps every value of one namespace in memory so reads never wait
// on the backing store. Writes update the mirror immediately, notify
// listeners synchronously and are persisted in the background.
// Values round-trip with their type: numbers (NaN included), strings,
// dates, booleans, null and JSON structures.
//
// # Architecture
//
// The package consists of four parts:
//
// 1. Value and the codec: a closed set of kinds persisted as a
// {"type": ..., "value": ...} JSON envelope.
// 2. Driver: the backing store interface (Memory here, bbolt and sqlite
// in the driver directory).
// 3. Store: prefix math, the mirror, change notification and the
// write-behind persister.
// 4. View: derives props from bound keys and tracks their changes.
//
// Keys are stored as prefix + key; the prefix is used verbatim.
//
// # Quick Start
//
//	store := kvmirror.New("@app:", kvmirror.WithDriver(driver))
//	if err := store.WaitReady(ctx); err != nil {
//	    // restore failed
//	}
//
//	store.SetItem(ctx, "count", kvmirror.Number(1))
//	v, ok := store.GetItem("count")
//
//	sub := store.AddListener("count", func(v kvmirror.Value) {
//	    // v.IsAbsent() after RemoveItem or Clear
//	})
//	defer sub.Remove()
//
// Setting a value deeply equal to the stored one is a no-op: nothing is
// written and no listener runs.
//
// # Persistence
//
// By default backing writes are queued and applied in order by one
// goroutine. Flush waits for them and returns failures; WithErrorHandler
// observes them as they happen. WithSyncWrites makes every mutating call
// wait for the backing store instead.
//
// # Thread Safety
//
// All Store operations are thread-safe. Listeners run on the goroutine
// that made the change, outside the store's locks, so they may read or
// write the store. Driver implementations must also be thread-safe.
//
// # Error Handling
//
// The package defines sentinel errors for common cases:
//
//	if errors.Is(err, kvmirror.ErrClosed) {
//	    // store was closed
//	}
//
// Available errors: ErrNotFound, ErrInvalidValue, ErrInvalidPattern,
// ErrDecode, ErrClosed
package kvmirror
