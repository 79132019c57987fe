package fuzzing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineOrder(t *testing.T) {
	// Declaration order is the assignment tie-break; Triton must come
	// first.
	require.Equal(t, []Engine{EngineTriton, EngineHonggfuzz}, Engines)
}

func TestEngineTags(t *testing.T) {
	assert.Equal(t, "TT", EngineTriton.ShortName())
	assert.Equal(t, "HF", EngineHonggfuzz.ShortName())

	e, ok := EngineFromTag("TT")
	require.True(t, ok)
	assert.Equal(t, EngineTriton, e)

	_, ok = EngineFromTag("XX")
	assert.False(t, ok)
}

func TestEngineCoverageStrategies(t *testing.T) {
	assert.True(t, EngineTriton.SupportsCoverageStrategies())
	assert.False(t, EngineHonggfuzz.SupportsCoverageStrategies())
}

func TestCoverageModeOrder(t *testing.T) {
	require.Equal(t, []CoverageMode{CovBlock, CovEdge, CovPath}, CoverageModes)
	assert.Equal(t, "BLOCK", CovBlock.String())
	assert.Equal(t, "EDGE", CovEdge.String())
	assert.Equal(t, "PATH", CovPath.String())
}

func TestParseEngine(t *testing.T) {
	e, err := ParseEngine("HONGGFUZZ")
	require.NoError(t, err)
	assert.Equal(t, EngineHonggfuzz, e)

	_, err = ParseEngine("honggfuzz")
	assert.Error(t, err)
}

func TestParseCheckMode(t *testing.T) {
	m, err := ParseCheckMode("ALERT_ONLY")
	require.NoError(t, err)
	assert.Equal(t, CheckAlertOnly, m)

	_, err = ParseCheckMode("EVERYTHING")
	assert.Error(t, err)
}
