package feed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDoubling(t *testing.T) {
	b := Backoff{Base: time.Second, Cap: 30 * time.Second}

	assert.Equal(t, time.Second, b.Delay(0))
	assert.Equal(t, 2*time.Second, b.Delay(1))
	assert.Equal(t, 4*time.Second, b.Delay(2))
	assert.Equal(t, 16*time.Second, b.Delay(4))
}

func TestBackoffCap(t *testing.T) {
	b := Backoff{Base: time.Second, Cap: 10 * time.Second}

	assert.Equal(t, 10*time.Second, b.Delay(4))
	assert.Equal(t, 10*time.Second, b.Delay(20))
	assert.Equal(t, 10*time.Second, b.Delay(1000), "huge attempts never overflow past the cap")
}

func TestBackoffDefaults(t *testing.T) {
	var b Backoff
	assert.Equal(t, time.Second, b.Delay(0))
	assert.Equal(t, 30*time.Second, b.Delay(63))

	assert.Equal(t, time.Second, b.Delay(-1))
}
