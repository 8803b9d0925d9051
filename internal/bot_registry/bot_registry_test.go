package botregistry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistry(t *testing.T) {
	registry := NewRegistry("0xBB", " 0xaa ", "")

	assert.Equal(t, 2, registry.Len())
	assert.True(t, registry.Contains("0xbb"))
	assert.True(t, registry.Contains("0xAA"))
	assert.Equal(t, []string{"0xaa", "0xbb"}, registry.List())

	assert.False(t, registry.Add("0xaa"))
	assert.True(t, registry.Add("0xcc"))
	assert.True(t, registry.Remove("0xCC"))
	assert.False(t, registry.Remove("0xcc"))
	assert.False(t, registry.Contains("0xcc"))
}
