// Package drivertest runs a shared behavior suite against kvmirror.Driver
// implementations.
package drivertest

import (
	"context"
	"errors"
	"testing"

	"code.byted.org/khicago/kvmirror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises d. The driver must start empty.
func Run(t *testing.T, d kvmirror.Driver) {
	t.Helper()
	ctx := context.Background()

	t.Run("GetMissing", func(t *testing.T) {
		_, err := d.Get(ctx, "missing")
		assert.True(t, errors.Is(err, kvmirror.ErrNotFound), "got %v", err)
	})

	t.Run("SetGetDelete", func(t *testing.T) {
		require.NoError(t, d.Set(ctx, "a:1", []byte("one")))
		got, err := d.Get(ctx, "a:1")
		require.NoError(t, err)
		assert.Equal(t, []byte("one"), got)

		require.NoError(t, d.Set(ctx, "a:1", []byte("uno")))
		got, err = d.Get(ctx, "a:1")
		require.NoError(t, err)
		assert.Equal(t, []byte("uno"), got)

		require.NoError(t, d.Delete(ctx, "a:1"))
		_, err = d.Get(ctx, "a:1")
		assert.ErrorIs(t, err, kvmirror.ErrNotFound)
		assert.NoError(t, d.Delete(ctx, "a:1"), "deleting a missing key")
	})

	t.Run("Batch", func(t *testing.T) {
		require.NoError(t, d.MSet(ctx, map[string][]byte{
			"b:1": []byte("1"),
			"b:2": []byte("2"),
			"b:3": []byte("3"),
		}))
		got, err := d.MGet(ctx, []string{"b:1", "b:3", "b:missing"})
		require.NoError(t, err)
		assert.Equal(t, map[string][]byte{"b:1": []byte("1"), "b:3": []byte("3")}, got)

		require.NoError(t, d.MDel(ctx, []string{"b:1", "b:2", "b:missing"}))
		keys, err := d.Keys(ctx, "b:")
		require.NoError(t, err)
		assert.Equal(t, []string{"b:3"}, keys)
		require.NoError(t, d.Clear(ctx, "b:"))
	})

	t.Run("KeysAndClearByPrefix", func(t *testing.T) {
		require.NoError(t, d.MSet(ctx, map[string][]byte{
			"c:x":  []byte("x"),
			"c:y":  []byte("y"),
			"cc:z": []byte("z"),
			"d:w":  []byte("w"),
		}))
		keys, err := d.Keys(ctx, "c:")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"c:x", "c:y"}, keys)

		require.NoError(t, d.Clear(ctx, "c:"))
		keys, err = d.Keys(ctx, "")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"cc:z", "d:w"}, keys)

		require.NoError(t, d.Clear(ctx, ""))
		keys, err = d.Keys(ctx, "")
		require.NoError(t, err)
		assert.Empty(t, keys)
	})

	t.Run("ValuesAreCopied", func(t *testing.T) {
		buf := []byte("abc")
		require.NoError(t, d.Set(ctx, "e:1", buf))
		buf[0] = 'z'
		got, err := d.Get(ctx, "e:1")
		require.NoError(t, err)
		assert.Equal(t, "abc", string(got))
		require.NoError(t, d.Delete(ctx, "e:1"))
	})

	t.Run("WithStore", func(t *testing.T) {
		s := kvmirror.New("@suite:", kvmirror.WithDriver(d), kvmirror.WithPreload(false))
		require.NoError(t, s.SetItem(ctx, "n", kvmirror.Number(7)))
		require.NoError(t, s.SetItem(ctx, "d", kvmirror.String("text")))
		require.NoError(t, s.Close(ctx))

		again := kvmirror.New("@suite:", kvmirror.WithDriver(d))
		require.NoError(t, again.WaitReady(ctx))
		assert.ElementsMatch(t, []string{"n", "d"}, again.GetAllKeys())
		v, ok := again.GetItem("n")
		require.True(t, ok)
		assert.True(t, kvmirror.Number(7).Equal(v))

		require.NoError(t, again.Clear(ctx))
		require.NoError(t, again.Close(ctx))
		keys, err := d.Keys(ctx, "@suite:")
		require.NoError(t, err)
		assert.Empty(t, keys)
	})
}
