package ext2sim_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmfabritius/ext2sim/ext2sim"
)

func TestSplitPath(t *testing.T) {
	cases := []struct {
		path, parent, child string
		names                []string
	}{
		{"/abc/def/ghi", "/abc/def", "ghi", []string{"abc", "def", "ghi"}},
		{"/abc", "/", "abc", []string{"abc"}},
		{"abc", ".", "abc", []string{"abc"}},
		{"/", "/", "/", nil},
		{"abc/def", "abc", "def", []string{"abc", "def"}},
	}
	for _, c := range cases {
		parent, child, names := ext2sim.SplitPath(c.path)
		assert.Equal(t, c.parent, parent, c.path)
		assert.Equal(t, c.child, child, c.path)
		assert.Equal(t, c.names, names, c.path)
	}
}

func TestSplitPath_Empty(t *testing.T) {
	parent, child, names := ext2sim.SplitPath("")
	assert.Equal(t, "", parent)
	assert.Equal(t, "", child)
	assert.Nil(t, names)
}
