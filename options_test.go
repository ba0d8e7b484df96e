package iomux

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionsDefaults(t *testing.T) {
	o, err := (*Options)(nil).withDefaults()
	require.NoError(t, err)
	assert.Equal(t, runtime.GOMAXPROCS(0), o.Workers)
	assert.Equal(t, DefaultChunkSize, o.ChunkSize)
	assert.Equal(t, EmptyContinue, o.OnEmpty)
	assert.False(t, o.Blocking)
	require.NotNil(t, o.Source)
	assert.Equal(t, "stdin", o.Source.Mode())

	src := Command("true")
	in := &Options{Parallel: true, Workers: 2, ChunkSize: 10, Source: src}
	o, err = in.withDefaults()
	require.NoError(t, err)
	assert.Equal(t, 2, o.Workers)
	assert.Equal(t, 10, o.ChunkSize)
	assert.Same(t, src, o.Source)
	assert.NotSame(t, in, o)
}

func TestOptionsRejectsInvalid(t *testing.T) {
	for _, o := range []*Options{
		{Workers: -1},
		{ChunkSize: -1},
		{RateLimit: -1},
		{OnEmpty: EmptyPolicy(7)},
	} {
		_, err := o.withDefaults()
		assert.Error(t, err)
	}
}

func TestEmptyPolicyString(t *testing.T) {
	assert.Equal(t, "continue", EmptyContinue.String())
	assert.Equal(t, "stop", EmptyStop.String())
	assert.Equal(t, "unknown", EmptyPolicy(9).String())
}
