package numbercache

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func uint64Keyer(k uint64) []byte {
	res := make([]byte, 8)
	binary.LittleEndian.PutUint64(res, k)
	return res
}

func TestCheckAndSet(t *testing.T) {
	c := NewCache[uint64](time.Hour, uint64Keyer)
	defer c.Stop()

	assert.False(t, c.CheckAndSet(1))
	assert.True(t, c.CheckAndSet(1))
	assert.False(t, c.CheckAndSet(2))
	assert.True(t, c.CheckAndSet(2))
	assert.True(t, c.CheckAndSet(1))
}

func TestReset(t *testing.T) {
	c := NewCache[uint64](50*time.Millisecond, uint64Keyer)
	defer c.Stop()

	assert.False(t, c.CheckAndSet(1))
	time.Sleep(120 * time.Millisecond)
	assert.False(t, c.CheckAndSet(1))
}
