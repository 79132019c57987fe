package broker

import (
	"github.com/tpeyrard/hivefuzz/pkg/binaries"
	"github.com/tpeyrard/hivefuzz/pkg/fleet"
	"github.com/tpeyrard/hivefuzz/pkg/fuzzing"
)

// PickAssignment selects (program, engine, coverage-mode, exec-mode) for
// an arriving or restarted client, given the currently running fleet and
// the binary index. It returns false when no supported engine has a binary
// for the client's architecture.
//
// Engines are tried from least-used to most-used across the running fleet,
// ties broken by declaration order; within the chosen engine, coverage
// modes are spread the same way. Persistent-mode binaries are preferred
// over single-exec ones.
func PickAssignment(c *fleet.Client, running []*fleet.Client, bins *binaries.Registry) (fleet.Assignment, bool) {
	engineLoad := make(map[fuzzing.Engine]int, len(fuzzing.Engines))
	for _, e := range fuzzing.Engines {
		engineLoad[e] = 0
	}
	for _, r := range running {
		engineLoad[r.Assignment().Engine]++
	}

	for _, engine := range byAscendingLoad(fuzzing.Engines, func(e fuzzing.Engine) int { return engineLoad[e] }) {
		if !c.SupportsEngine(engine) {
			continue
		}

		program, ok := bins.Probe(c.Arch, engine, fuzzing.Persistent)
		mode := fuzzing.Persistent
		if !ok {
			program, ok = bins.Probe(c.Arch, engine, fuzzing.SingleExec)
			mode = fuzzing.SingleExec
		}
		if !ok {
			continue
		}

		return fleet.Assignment{
			Engine:       engine,
			CoverageMode: pickCoverageMode(engine, running),
			ExecMode:     mode,
			Program:      program,
		}, true
	}

	return fleet.Assignment{}, false
}

// pickCoverageMode spreads coverage strategies across the running clients
// of one engine. Engines with a single fixed notion of coverage get the
// BLOCK placeholder.
func pickCoverageMode(engine fuzzing.Engine, running []*fleet.Client) fuzzing.CoverageMode {
	if !engine.SupportsCoverageStrategies() {
		return fuzzing.CovBlock
	}

	covLoad := make(map[fuzzing.CoverageMode]int, len(fuzzing.CoverageModes))
	for _, m := range fuzzing.CoverageModes {
		covLoad[m] = 0
	}
	for _, r := range running {
		if r.Assignment().Engine == engine {
			covLoad[r.Assignment().CoverageMode]++
		}
	}

	return byAscendingLoad(fuzzing.CoverageModes, func(m fuzzing.CoverageMode) int { return covLoad[m] })[0]
}

// byAscendingLoad orders values by load, preserving the input order among
// equals. The input order is the enum declaration order, which is the
// normative tie-break.
func byAscendingLoad[T comparable](values []T, load func(T) int) []T {
	out := make([]T, 0, len(values))
	// Insertion sort keeps it stable; the slices involved have a handful
	// of elements.
	for _, v := range values {
		pos := len(out)
		for pos > 0 && load(out[pos-1]) > load(v) {
			pos--
		}
		out = append(out[:pos], append([]T{v}, out[pos:]...)...)
	}
	return out
}
