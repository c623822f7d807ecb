package approval

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSwitch(t *testing.T) {
	t.Parallel()

	s := NewSwitch(false)
	assert.False(t, s.Approved())

	assert.True(t, s.Set(true), "first approval changes the switch")
	assert.True(t, s.Approved())
	assert.False(t, s.Set(true), "repeated approval is not a change")

	assert.True(t, s.Set(false))
	assert.False(t, s.Approved())
}

func TestOpen(t *testing.T) {
	t.Parallel()

	var g Gate = Open{}
	assert.True(t, g.Approved())
}
