package fleet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tpeyrard/hivefuzz/pkg/fuzzing"
	"github.com/tpeyrard/hivefuzz/pkg/transport"
)

func helloBoth() transport.Hello {
	return transport.Hello{
		Engines: []fuzzing.EngineVersion{
			{Engine: fuzzing.EngineTriton, Version: "0.9"},
			{Engine: fuzzing.EngineHonggfuzz, Version: "2.4"},
		},
		Arch:   fuzzing.ArchX8664,
		Cpus:   8,
		Memory: 16 << 30,
	}
}

func TestClientStrID(t *testing.T) {
	c := NewClient(3, "net-3", helloBoth())
	assert.Equal(t, "Cli-3-TTHF", c.StrID())
	assert.Equal(t, "Cli-3-HF", c.SeedStrID(fuzzing.EngineHonggfuzz))
	assert.Equal(t, "Cli-3-TT", c.SeedStrID(fuzzing.EngineTriton))
}

func TestClientSupportsEngine(t *testing.T) {
	c := NewClient(0, "n", transport.Hello{
		Engines: []fuzzing.EngineVersion{{Engine: fuzzing.EngineTriton}},
		Arch:    fuzzing.ArchX8664,
	})
	assert.True(t, c.SupportsEngine(fuzzing.EngineTriton))
	assert.False(t, c.SupportsEngine(fuzzing.EngineHonggfuzz))
}

func TestClientAssignmentLifecycle(t *testing.T) {
	c := NewClient(0, "n", helloBoth())
	assert.False(t, c.IsRunning())

	a := Assignment{
		Engine:       fuzzing.EngineTriton,
		CoverageMode: fuzzing.CovEdge,
		ExecMode:     fuzzing.Persistent,
		CheckMode:    fuzzing.CheckAll,
		Program:      "/targets/demo",
	}
	c.SetRunning(a)
	assert.True(t, c.IsRunning())
	assert.Equal(t, a, c.Assignment())

	c.SetStopped()
	assert.False(t, c.IsRunning())
	assert.Equal(t, Assignment{}, c.Assignment())
}

func TestClientSeedsSentGrowsMonotonically(t *testing.T) {
	c := NewClient(0, "n", helloBoth())
	assert.False(t, c.HasSeed("d1"))

	c.MarkSeedSent("d1")
	c.MarkSeedSent("d2")
	c.MarkSeedSent("d1")
	assert.True(t, c.HasSeed("d1"))
	assert.True(t, c.HasSeed("d2"))
	assert.Equal(t, 2, c.SeedsSent())

	c.RestoreSeedsSent(map[string]struct{}{"d3": {}})
	assert.True(t, c.HasSeed("d3"))
	assert.Equal(t, 3, c.SeedsSent())
}

func TestClientMarkStopSent(t *testing.T) {
	c := NewClient(0, "n", helloBoth())
	assert.True(t, c.MarkStopSent())
	assert.False(t, c.MarkStopSent())
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, 0, r.NewUID())
	assert.Equal(t, 1, r.NewUID())

	a := NewClient(0, "net-a", helloBoth())
	b := NewClient(1, "net-b", helloBoth())
	r.Add(a)
	r.Add(b)

	require.Equal(t, 2, r.Len())
	assert.Same(t, a, r.Get("net-a"))
	assert.Nil(t, r.Get("net-zz"))

	others := r.Others(a)
	require.Len(t, others, 1)
	assert.Same(t, b, others[0])

	assert.Empty(t, r.Running())
	a.SetRunning(Assignment{Engine: fuzzing.EngineTriton})
	running := r.Running()
	require.Len(t, running, 1)
	assert.Same(t, a, running[0])
}
