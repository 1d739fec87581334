package streammux

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextDeltaPrefixExtension(t *testing.T) {
	delta, reset := NextDelta("Hello", "Hello, world")
	assert.Equal(t, ", world", delta)
	assert.False(t, reset)
}

func TestNextDeltaFromEmpty(t *testing.T) {
	delta, reset := NextDelta("", "Hi")
	assert.Equal(t, "Hi", delta)
	assert.False(t, reset)
}

func TestNextDeltaUnchanged(t *testing.T) {
	delta, reset := NextDelta("same", "same")
	assert.Equal(t, "", delta)
	assert.False(t, reset)
}

func TestNextDeltaNonMonotonicReset(t *testing.T) {
	delta, reset := NextDelta("Hello, world", "Goodbye")
	assert.Equal(t, "Goodbye", delta)
	assert.True(t, reset)
}

func TestNextDeltaShrinkingSnapshotReset(t *testing.T) {
	// A shorter snapshot can never extend a longer one.
	delta, reset := NextDelta("abcdef", "abc")
	assert.Equal(t, "abc", delta)
	assert.True(t, reset)
}

// Concatenating the deltas of any monotonic snapshot sequence must
// reproduce the final snapshot exactly.
func TestNextDeltaConcatenationProperty(t *testing.T) {
	snapshots := []string{"T", "The", "The ans", "The answer", "The answer is 42."}

	previous := ""
	var rebuilt string
	for _, s := range snapshots {
		delta, reset := NextDelta(previous, s)
		assert.False(t, reset)
		rebuilt += delta
		previous = s
	}
	assert.Equal(t, snapshots[len(snapshots)-1], rebuilt)
}
