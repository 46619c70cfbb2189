package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyedLimiter(t *testing.T) {
	l := NewKeyedLimiter(1, 2)

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))

	assert.True(t, l.Allow("b"))
	assert.Equal(t, 2, l.Len())
}

func TestKeyedLimiter_Disabled(t *testing.T) {
	l := NewKeyedLimiter(0, 0)
	for i := 0; i < 100; i++ {
		assert.True(t, l.Allow("a"))
	}

	var nilLimiter *KeyedLimiter
	assert.True(t, nilLimiter.Allow("a"))
}

func TestKeyedLimiter_Sweep(t *testing.T) {
	l := NewKeyedLimiter(10, 1)
	l.Allow("a")
	l.Allow("b")

	l.Sweep(time.Hour)
	assert.Equal(t, 2, l.Len())

	time.Sleep(5 * time.Millisecond)
	l.Sweep(time.Millisecond)
	assert.Equal(t, 0, l.Len())
}
