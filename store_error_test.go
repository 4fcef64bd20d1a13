package kvmirror

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// errorDriver fails every call.
type errorDriver struct{}

var errDriver = errors.New("driver error")

func (*errorDriver) Get(_ context.Context, _ string) ([]byte, error)   { return nil, errDriver }
func (*errorDriver) Set(_ context.Context, _ string, _ []byte) error    { return errDriver }
func (*errorDriver) Delete(_ context.Context, _ string) error           { return errDriver }
func (*errorDriver) MSet(_ context.Context, _ map[string][]byte) error  { return errDriver }
func (*errorDriver) MDel(_ context.Context, _ []string) error           { return errDriver }
func (*errorDriver) Keys(_ context.Context, _ string) ([]string, error) { return nil, errDriver }
func (*errorDriver) Clear(_ context.Context, _ string) error            { return errDriver }
func (*errorDriver) MGet(_ context.Context, _ []string) (map[string][]byte, error) {
	return nil, errDriver
}

func TestErrorPaths_SyncWrites(t *testing.T) {
	s := New("p:", WithDriver(&errorDriver{}), WithPreload(false), WithSyncWrites())
	ctx := context.Background()

	assert.ErrorIs(t, s.SetItem(ctx, "k", Number(1)), errDriver)
	assert.ErrorIs(t, s.MultiSet(ctx, []Pair{{Key: "m", Value: Number(1)}}), errDriver)
	assert.ErrorIs(t, s.RemoveItem(ctx, "k"), errDriver)
	assert.ErrorIs(t, s.MultiRemove(ctx, "k"), errDriver)
	assert.ErrorIs(t, s.Clear(ctx), errDriver)
	assert.ErrorIs(t, s.Restore(ctx), errDriver)

	// The mirror stays authoritative even when persistence fails.
	_, ok := s.GetItem("m")
	assert.True(t, ok)
}

func TestErrorPaths_WriteBehindSurfacesOnFlush(t *testing.T) {
	var mu sync.Mutex
	var handled []error
	s := New("p:", WithDriver(&errorDriver{}), WithPreload(false), WithErrorHandler(func(err error) {
		mu.Lock()
		handled = append(handled, err)
		mu.Unlock()
	}))
	ctx := context.Background()

	require.NoError(t, s.SetItem(ctx, "a", Number(1)), "write-behind returns before persistence")
	require.NoError(t, s.RemoveItem(ctx, "b"))

	err := s.Flush(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, errDriver)
	assert.Contains(t, err.Error(), "set [p:a]")
	assert.Contains(t, err.Error(), "delete [p:b]")

	mu.Lock()
	assert.Len(t, handled, 2)
	mu.Unlock()

	// Errors are reported once.
	assert.NoError(t, s.Flush(ctx))
	require.NoError(t, s.Close(ctx))
}

func TestWriteBehind_PreservesOrder(t *testing.T) {
	mem := NewMemory()
	d := &mockDriver{Memory: mem}
	gate := make(chan struct{})
	var once sync.Once
	d.setFunc = func(ctx context.Context, key string, value []byte) error {
		once.Do(func() { <-gate })
		return mem.Set(ctx, key, value)
	}

	s := New("p:", WithDriver(d), WithPreload(false))
	ctx := context.Background()

	require.NoError(t, s.SetItem(ctx, "k", Number(1)))
	require.NoError(t, s.SetItem(ctx, "k", Number(2)))
	require.NoError(t, s.RemoveItem(ctx, "gone"))
	require.NoError(t, s.SetItem(ctx, "k", Number(3)))

	// The mirror reflects every write before the backing store catches up.
	n, _ := mustGet(t, s, "k").Float()
	assert.Equal(t, 3.0, n)
	assert.Equal(t, 0, mem.Len())

	close(gate)
	require.NoError(t, s.Flush(ctx))

	raw, err := mem.Get(ctx, "p:k")
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"number","value":"3"}`, string(raw))
	require.NoError(t, s.Close(ctx))
}

func TestClose_RejectsWrites(t *testing.T) {
	s := New("p:", WithPreload(false))
	ctx := context.Background()
	require.NoError(t, s.SetItem(ctx, "k", String("v")))
	require.NoError(t, s.Close(ctx))
	require.NoError(t, s.Close(ctx), "close is idempotent")

	assert.ErrorIs(t, s.SetItem(ctx, "k2", String("v")), ErrClosed)
	raw, err := s.Driver().Get(ctx, "p:k")
	require.NoError(t, err, "pending writes flushed on close")
	assert.NotEmpty(t, raw)

	_, ok := s.GetItem("k")
	assert.True(t, ok, "reads keep working after close")
	_, ok = s.GetItem("k2")
	assert.False(t, ok, "rejected writes leave the mirror alone")
	assert.NoError(t, s.Flush(ctx))
}

func TestClose_SyncMode(t *testing.T) {
	s := New("p:", WithPreload(false), WithSyncWrites())
	ctx := context.Background()
	require.NoError(t, s.Close(ctx))
	assert.ErrorIs(t, s.SetItem(ctx, "k", Number(1)), ErrClosed)
}

func TestFlush_ContextCancelled(t *testing.T) {
	mem := NewMemory()
	d := &mockDriver{Memory: mem}
	gate := make(chan struct{})
	d.setFunc = func(ctx context.Context, key string, value []byte) error {
		<-gate
		return mem.Set(ctx, key, value)
	}
	s := New("p:", WithDriver(d), WithPreload(false))
	require.NoError(t, s.SetItem(context.Background(), "k", Number(1)))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Flush(ctx), context.DeadlineExceeded)

	close(gate)
	require.NoError(t, s.Close(context.Background()))
}

func TestPreload_ErrorReported(t *testing.T) {
	errs := make(chan error, 1)
	called := false
	s := New("p:", WithDriver(&errorDriver{}), WithErrorHandler(func(err error) { errs <- err }),
		WithOnPreload(func(*Store) { called = true }))
	defer s.Close(context.Background())

	err := s.WaitReady(context.Background())
	assert.ErrorIs(t, err, errDriver)
	assert.ErrorIs(t, <-errs, errDriver)
	assert.False(t, called, "onPreload only runs after a successful restore")
}

func TestErrorPaths_Logged(t *testing.T) {
	logger := &mockLogger{}
	s := New("p:", WithDriver(&errorDriver{}), WithPreload(false), WithSyncWrites(),
		WithLogger(logger), WithLogTag("[kv]"))

	_ = s.SetItem(context.Background(), "key1", String("v"))
	_ = s.Restore(context.Background())

	assert.True(t, logger.contains(fmt.Sprintf("[kv] persist failed: set [p:key1]: %v", errDriver)))
	assert.True(t, logger.contains("restore keys failed"))
}
