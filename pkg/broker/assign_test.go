package broker

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tpeyrard/hivefuzz/pkg/binaries"
	"github.com/tpeyrard/hivefuzz/pkg/fleet"
	"github.com/tpeyrard/hivefuzz/pkg/fuzzing"
	"github.com/tpeyrard/hivefuzz/pkg/transport"
)

func dualEngineClient(uid int) *fleet.Client {
	return fleet.NewClient(uid, transport.NetID(fmt.Sprintf("net-%d", uid)), transport.Hello{
		Engines: []fuzzing.EngineVersion{
			{Engine: fuzzing.EngineTriton, Version: "0.9"},
			{Engine: fuzzing.EngineHonggfuzz, Version: "2.4"},
		},
		Arch: fuzzing.ArchX8664,
	})
}

func fullIndex() *binaries.Registry {
	programs := make(map[binaries.Key]string)
	for _, e := range fuzzing.Engines {
		for _, m := range []fuzzing.ExecMode{fuzzing.SingleExec, fuzzing.Persistent} {
			key := binaries.Key{Arch: fuzzing.ArchX8664, Engine: e, ExecMode: m}
			programs[key] = fmt.Sprintf("/targets/%s-%s", e, m)
		}
	}
	return binaries.NewStaticRegistry(programs)
}

// Four dual-engine clients arriving one after the other spread across
// engines first, then across Triton's coverage modes.
func TestAssignmentSpread(t *testing.T) {
	bins := fullIndex()
	var running []*fleet.Client

	expected := []struct {
		engine fuzzing.Engine
		cov    fuzzing.CoverageMode
	}{
		{fuzzing.EngineTriton, fuzzing.CovBlock},
		{fuzzing.EngineHonggfuzz, fuzzing.CovBlock},
		{fuzzing.EngineTriton, fuzzing.CovEdge},
		{fuzzing.EngineHonggfuzz, fuzzing.CovBlock},
	}

	for i, want := range expected {
		c := dualEngineClient(i)
		a, ok := PickAssignment(c, running, bins)
		require.True(t, ok, "client %d should be assignable", i)
		assert.Equal(t, want.engine, a.Engine, "client %d engine", i)
		assert.Equal(t, want.cov, a.CoverageMode, "client %d coverage", i)
		assert.Equal(t, fuzzing.Persistent, a.ExecMode, "persistent binaries are preferred")

		c.SetRunning(a)
		running = append(running, c)
	}
}

// With persistent variants absent, assignment falls back to single-exec.
func TestAssignmentSingleExecFallback(t *testing.T) {
	bins := binaries.NewStaticRegistry(map[binaries.Key]string{
		{Arch: fuzzing.ArchX8664, Engine: fuzzing.EngineTriton, ExecMode: fuzzing.SingleExec}: "/targets/tt",
	})

	a, ok := PickAssignment(dualEngineClient(0), nil, bins)
	require.True(t, ok)
	assert.Equal(t, fuzzing.EngineTriton, a.Engine)
	assert.Equal(t, fuzzing.SingleExec, a.ExecMode)
	assert.Equal(t, "/targets/tt", a.Program)
}

// An engine the client does not support is skipped even when least used.
func TestAssignmentSkipsUnsupportedEngine(t *testing.T) {
	bins := fullIndex()
	c := fleet.NewClient(0, "net-0", transport.Hello{
		Engines: []fuzzing.EngineVersion{{Engine: fuzzing.EngineHonggfuzz}},
		Arch:    fuzzing.ArchX8664,
	})

	a, ok := PickAssignment(c, nil, bins)
	require.True(t, ok)
	assert.Equal(t, fuzzing.EngineHonggfuzz, a.Engine)
	// Honggfuzz has one fixed notion of coverage.
	assert.Equal(t, fuzzing.CovBlock, a.CoverageMode)
}

// The least-used engine wins even when it is later in declaration order.
func TestAssignmentPicksLeastUsedEngine(t *testing.T) {
	bins := fullIndex()

	first := dualEngineClient(0)
	a, ok := PickAssignment(first, nil, bins)
	require.True(t, ok)
	require.Equal(t, fuzzing.EngineTriton, a.Engine)
	first.SetRunning(a)

	second := dualEngineClient(1)
	a2, ok := PickAssignment(second, []*fleet.Client{first}, bins)
	require.True(t, ok)
	assert.Equal(t, fuzzing.EngineHonggfuzz, a2.Engine)
}

// No binary for the client's architecture means no assignment; the HELLO
// is not an error.
func TestAssignmentUnassignable(t *testing.T) {
	bins := fullIndex()
	c := fleet.NewClient(0, "net-0", transport.Hello{
		Engines: []fuzzing.EngineVersion{{Engine: fuzzing.EngineTriton}},
		Arch:    fuzzing.ArchARMv7,
	})

	_, ok := PickAssignment(c, nil, bins)
	assert.False(t, ok)
}

// Coverage spreading only counts clients of the same engine.
func TestCoverageSpreadIgnoresOtherEngines(t *testing.T) {
	bins := fullIndex()

	hf := dualEngineClient(0)
	hf.SetRunning(fleet.Assignment{Engine: fuzzing.EngineHonggfuzz, CoverageMode: fuzzing.CovEdge})

	tt1 := dualEngineClient(1)
	tt1.SetRunning(fleet.Assignment{Engine: fuzzing.EngineTriton, CoverageMode: fuzzing.CovBlock})

	// Triton has one BLOCK runner; the honggfuzz EDGE runner must not
	// push the next Triton client past EDGE on to PATH.
	c := fleet.NewClient(2, "net-2", transport.Hello{
		Engines: []fuzzing.EngineVersion{{Engine: fuzzing.EngineTriton}},
		Arch:    fuzzing.ArchX8664,
	})
	a, ok := PickAssignment(c, []*fleet.Client{hf, tt1}, bins)
	require.True(t, ok)
	assert.Equal(t, fuzzing.CovEdge, a.CoverageMode)
}
