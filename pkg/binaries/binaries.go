// Package binaries indexes the candidate target executables of a campaign.
//
// A single directory scan classifies every ELF file by (architecture,
// engine, exec-mode) based on the symbols it carries. The broker's
// assignment engine consumes only the resulting index.
package binaries

import (
	"debug/elf"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tpeyrard/hivefuzz/internal/logger"
	"github.com/tpeyrard/hivefuzz/pkg/fuzzing"
)

// Symbol markers the classifier looks for.
const (
	// instrumentationTag must appear in at least one function symbol,
	// otherwise the binary carries no defect-report instrumentation and is
	// useless to the campaign.
	instrumentationTag = "__klocwork"

	// sanitizerTag marks a build for the sanitizer-based engine.
	sanitizerTag = "__sanitizer"

	// persistentImport is the import a persistent-mode harness links against.
	persistentImport = "HF_ITER"
)

// Key identifies one binary variant.
type Key struct {
	Arch     fuzzing.Arch
	Engine   fuzzing.Engine
	ExecMode fuzzing.ExecMode
}

func (k Key) String() string {
	return fmt.Sprintf("[%s, %s, %s]", k.Arch, k.Engine, k.ExecMode)
}

// Registry maps binary variants to filesystem paths. It is immutable after
// construction.
type Registry struct {
	programs map[Key]string
}

// NewRegistry scans dir once and indexes every classifiable executable.
// Files are visited in lexicographic order, so on a key collision the
// first file deterministically wins.
func NewRegistry(dir string) (*Registry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read binaries directory %q: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	r := &Registry{programs: make(map[Key]string)}
	for _, name := range names {
		path := filepath.Join(dir, name)
		key, ok := inspect(path)
		if !ok {
			continue
		}
		if prev, exists := r.programs[key]; exists {
			logger.Warn("binary with same properties already indexed, dropping",
				"key", key.String(), "kept", prev, "dropped", path)
			continue
		}
		r.programs[key] = path
		logger.Info("new binary detected", "key", key.String(), "path", path)
	}
	return r, nil
}

// NewStaticRegistry builds a registry from an explicit variant table,
// bypassing the directory scan. Useful for tests and for embedders that
// classify binaries themselves.
func NewStaticRegistry(programs map[Key]string) *Registry {
	r := &Registry{programs: make(map[Key]string, len(programs))}
	for k, path := range programs {
		r.programs[k] = path
	}
	return r
}

// Probe returns the path of the variant matching key, if any.
func (r *Registry) Probe(arch fuzzing.Arch, engine fuzzing.Engine, mode fuzzing.ExecMode) (string, bool) {
	path, ok := r.programs[Key{Arch: arch, Engine: engine, ExecMode: mode}]
	return path, ok
}

// Count returns the number of indexed variants.
func (r *Registry) Count() int { return len(r.programs) }

// Variants returns the indexed keys, unordered.
func (r *Registry) Variants() []Key {
	keys := make([]Key, 0, len(r.programs))
	for k := range r.programs {
		keys = append(keys, k)
	}
	return keys
}

// inspect opens path as an ELF file, extracts the symbol sets and delegates
// to Classify. Non-ELF files and unknown architectures are dropped with a
// warning.
func inspect(path string) (Key, bool) {
	f, err := elf.Open(path)
	if err != nil {
		logger.Warn("binary not supported, only ELF executables are indexed", "path", path, "error", err)
		return Key{}, false
	}
	defer f.Close()

	if _, ok := archOf(f.Machine); !ok {
		logger.Warn("binary architecture not supported", "path", path, "machine", f.Machine.String())
		return Key{}, false
	}

	functions := functionSymbols(f)
	imports := importedFunctions(f)

	key, ok := Classify(f.Machine, functions, imports)
	if !ok {
		logger.Debug("ignoring binary", "path", path)
		return Key{}, false
	}
	return key, true
}

// Classify decides the variant key of a binary from its machine type and
// symbol names. It is a pure function so it can be exercised without
// fixture executables.
//
// Rules:
//   - at least one function symbol must carry the instrumentation tag,
//     otherwise the binary is rejected;
//   - any sanitizer symbol selects the sanitizer-based engine, absence
//     selects the symbolic-execution engine;
//   - the persistent-mode import switches exec-mode to PERSISTENT;
//   - unknown machine types are rejected.
func Classify(machine elf.Machine, functions, imports []string) (Key, bool) {
	arch, ok := archOf(machine)
	if !ok {
		return Key{}, false
	}

	instrumented := false
	sanitizer := false
	for _, name := range functions {
		if strings.Contains(name, instrumentationTag) {
			instrumented = true
		}
		if strings.Contains(name, sanitizerTag) {
			sanitizer = true
		}
	}
	if !instrumented {
		return Key{}, false
	}

	mode := fuzzing.SingleExec
	for _, name := range imports {
		if name == persistentImport {
			mode = fuzzing.Persistent
			break
		}
	}

	engine := fuzzing.EngineTriton
	if sanitizer {
		engine = fuzzing.EngineHonggfuzz
	}

	return Key{Arch: arch, Engine: engine, ExecMode: mode}, true
}

func archOf(machine elf.Machine) (fuzzing.Arch, bool) {
	switch machine {
	case elf.EM_X86_64:
		return fuzzing.ArchX8664, true
	case elf.EM_386:
		return fuzzing.ArchX86, true
	case elf.EM_ARM:
		return fuzzing.ArchARMv7, true
	case elf.EM_AARCH64:
		return fuzzing.ArchAArch64, true
	default:
		return 0, false
	}
}

// functionSymbols collects the names of every function symbol in both the
// static and dynamic symbol tables. A stripped table is not an error.
func functionSymbols(f *elf.File) []string {
	var names []string
	for _, table := range [][]elf.Symbol{mustSymbols(f.Symbols), mustSymbols(f.DynamicSymbols)} {
		for _, sym := range table {
			if elf.ST_TYPE(sym.Info) == elf.STT_FUNC {
				names = append(names, sym.Name)
			}
		}
	}
	return names
}

// importedFunctions collects the names of undefined dynamic symbols.
func importedFunctions(f *elf.File) []string {
	syms, err := f.ImportedSymbols()
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(syms))
	for _, sym := range syms {
		names = append(names, sym.Name)
	}
	return names
}

func mustSymbols(fn func() ([]elf.Symbol, error)) []elf.Symbol {
	syms, err := fn()
	if err != nil {
		return nil
	}
	return syms
}
