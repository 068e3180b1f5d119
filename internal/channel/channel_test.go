//go:build !debug

package channel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuffered_EvictsOldest(t *testing.T) {
	b := NewBuffered[int](2)
	assert.True(t, b.TrySend(1))
	assert.True(t, b.TrySend(2))
	assert.True(t, b.TrySend(3))
	assert.Equal(t, 2, b.Len())

	assert.Equal(t, 2, <-b.Receive())
	assert.Equal(t, 3, <-b.Receive())
}

func TestUnbuffered_DropsWithoutReader(t *testing.T) {
	u := NewUnbuffered[int]()
	assert.False(t, u.TrySend(1))
	assert.Equal(t, 0, u.Len())
}

func TestFanout(t *testing.T) {
	f := NewFanout[string]()
	a := f.Subscribe(1)
	b := f.Subscribe(4)
	require.Equal(t, 2, f.Subscribers())

	assert.True(t, f.TrySend("x"))
	assert.True(t, f.TrySend("y"))

	assert.Equal(t, "y", <-a.Receive(), "size-1 subscriber keeps the latest value")
	assert.Equal(t, "x", <-b.Receive())
	assert.Equal(t, "y", <-b.Receive())

	f.Close()
	_, ok := <-a.Receive()
	assert.False(t, ok)
	assert.False(t, f.TrySend("z"))

	late := f.Subscribe(1)
	_, ok = <-late.Receive()
	assert.False(t, ok)
}
