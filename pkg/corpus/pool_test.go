package corpus

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tpeyrard/hivefuzz/pkg/fuzzing"
)

func TestPoolDedup(t *testing.T) {
	p := NewPool()

	e1, isNew := p.Add([]byte("AAAA"), fuzzing.SeedInput, fuzzing.EngineTriton)
	require.True(t, isNew)
	assert.Equal(t, Digest([]byte("AAAA")), e1.Digest)

	// Re-submission, even with different metadata, changes nothing.
	e2, isNew := p.Add([]byte("AAAA"), fuzzing.SeedCrash, fuzzing.EngineHonggfuzz)
	assert.False(t, isNew)
	assert.Same(t, e1, e2)
	assert.Equal(t, fuzzing.SeedInput, e2.Type)
	assert.Equal(t, fuzzing.EngineTriton, e2.Origin)

	assert.Equal(t, 1, p.Len())
}

func TestPoolInsertionOrder(t *testing.T) {
	p := NewPool()
	for i := 0; i < 10; i++ {
		p.Add([]byte(fmt.Sprintf("seed-%d", i)), fuzzing.SeedInput, fuzzing.EngineTriton)
	}

	var got []string
	p.Each(func(e *Entry) { got = append(got, string(e.Content)) })

	require.Len(t, got, 10)
	for i, content := range got {
		assert.Equal(t, fmt.Sprintf("seed-%d", i), content)
	}
}

func TestPoolCountByType(t *testing.T) {
	p := NewPool()
	p.Add([]byte("a"), fuzzing.SeedInput, fuzzing.EngineTriton)
	p.Add([]byte("b"), fuzzing.SeedInput, fuzzing.EngineTriton)
	p.Add([]byte("c"), fuzzing.SeedCrash, fuzzing.EngineHonggfuzz)

	counts := p.CountByType()
	assert.Equal(t, 2, counts[fuzzing.SeedInput])
	assert.Equal(t, 1, counts[fuzzing.SeedCrash])
	assert.Equal(t, 0, counts[fuzzing.SeedHang])
}

func TestDigestStable(t *testing.T) {
	assert.Equal(t, Digest([]byte("x")), Digest([]byte("x")))
	assert.NotEqual(t, Digest([]byte("x")), Digest([]byte("y")))
	assert.Len(t, Digest([]byte("x")), 32)
}
