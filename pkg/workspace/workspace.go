// Package workspace manages the on-disk layout of a campaign: the typed
// seed directories, per-client logs, and the results mirror.
//
// Layout under the root:
//
//	corpus/   one file per INPUT seed
//	crashes/  one file per CRASH seed
//	hangs/    one file per HANG seed
//	logs/     per-client log files plus broker.log
//	results.csv
//
// Seed filenames encode discovery time, the discovering client and the
// content digest, so a pool can be rebuilt from the directory alone.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/tpeyrard/hivefuzz/internal/logger"
	"github.com/tpeyrard/hivefuzz/pkg/corpus"
	"github.com/tpeyrard/hivefuzz/pkg/fuzzing"
)

// Fixed subpaths of a workspace.
const (
	CorpusDir  = "corpus"
	CrashDir   = "crashes"
	HangDir    = "hangs"
	LogDir     = "logs"
	ResultsCSV = "results.csv"
	BrokerLog  = "broker.log"
)

// seedNamePattern is the authoritative filename grammar. The capture group
// is the engine tag of the discovering client.
var seedNamePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}_\d{2}:\d{2}:\d{2}_Cli-\d+-+([A-Z]+)_[0-9a-f]+\.cov$`)

const seedTimeLayout = "2006-01-02_15:04:05"

// Workspace is one campaign's directory tree.
type Workspace struct {
	root string
	now  func() time.Time
}

// Open creates the workspace layout under root, reusing whatever already
// exists. An uncreatable root is fatal to the broker.
func Open(root string) (*Workspace, error) {
	w := &Workspace{root: root, now: time.Now}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create workspace root %q: %w", root, err)
	}
	for _, sub := range []string{CorpusDir, CrashDir, HangDir, LogDir} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0755); err != nil {
			return nil, fmt.Errorf("failed to create workspace directory %q: %w", sub, err)
		}
	}
	return w, nil
}

// Root returns the workspace root path.
func (w *Workspace) Root() string { return w.root }

// ResultsPath returns the path of the defect-report CSV mirror.
func (w *Workspace) ResultsPath() string { return filepath.Join(w.root, ResultsCSV) }

// BrokerLogPath returns the path of the broker's own log file.
func (w *Workspace) BrokerLogPath() string { return filepath.Join(w.root, LogDir, BrokerLog) }

// ClientLogPath returns the log file path for a client, named after its
// string identifier.
func (w *Workspace) ClientLogPath(strid string) string {
	return filepath.Join(w.root, LogDir, strid+".log")
}

// SeedDir returns the directory a seed of the given type persists into.
func (w *Workspace) SeedDir(typ fuzzing.SeedType) string {
	switch typ {
	case fuzzing.SeedCrash:
		return filepath.Join(w.root, CrashDir)
	case fuzzing.SeedHang:
		return filepath.Join(w.root, HangDir)
	default:
		return filepath.Join(w.root, CorpusDir)
	}
}

// WriteSeed persists a seed under the type-appropriate directory and
// returns the path written. The filename stamps discovery time, the
// discovering client and the content digest.
func (w *Workspace) WriteSeed(typ fuzzing.SeedType, strid string, content []byte) (string, error) {
	name := fmt.Sprintf("%s_%s_%s.cov", w.now().Format(seedTimeLayout), strid, corpus.Digest(content))
	path := filepath.Join(w.SeedDir(typ), name)
	if err := os.WriteFile(path, content, 0644); err != nil {
		return "", fmt.Errorf("failed to persist seed %q: %w", name, err)
	}
	return path, nil
}

// LoadedSeed is one seed rehydrated from disk.
type LoadedSeed struct {
	Type    fuzzing.SeedType
	Content []byte
	Origin  fuzzing.Engine
}

// LoadSeeds walks the three seed directories and calls fn for every seed
// file found. The origin engine is parsed from the filename; files whose
// name does not match the grammar (or whose tag is unknown) load with the
// fallback engine and a warning.
func (w *Workspace) LoadSeeds(fn func(s LoadedSeed)) error {
	for _, pair := range []struct {
		typ fuzzing.SeedType
		dir string
	}{
		{fuzzing.SeedInput, CorpusDir},
		{fuzzing.SeedCrash, CrashDir},
		{fuzzing.SeedHang, HangDir},
	} {
		dir := filepath.Join(w.root, pair.dir)
		entries, err := os.ReadDir(dir)
		if err != nil {
			return fmt.Errorf("failed to read seed directory %q: %w", dir, err)
		}
		for _, e := range entries {
			if !e.Type().IsRegular() {
				continue
			}
			content, err := os.ReadFile(filepath.Join(dir, e.Name()))
			if err != nil {
				logger.Warn("failed to read seed file, skipping", "file", e.Name(), "error", err)
				continue
			}
			fn(LoadedSeed{
				Type:    pair.typ,
				Content: content,
				Origin:  originOf(e.Name()),
			})
		}
	}
	return nil
}

// originOf recovers the discovering engine from a seed filename.
func originOf(name string) fuzzing.Engine {
	m := seedNamePattern.FindStringSubmatch(name)
	if m == nil {
		logger.Warn("seed filename does not match expected pattern, assuming fallback origin",
			"file", name, "origin", fuzzing.FallbackEngine.String())
		return fuzzing.FallbackEngine
	}
	engine, ok := fuzzing.EngineFromTag(m[1])
	if !ok {
		logger.Warn("seed filename carries unknown engine tag, assuming fallback origin",
			"file", name, "tag", m[1], "origin", fuzzing.FallbackEngine.String())
		return fuzzing.FallbackEngine
	}
	return engine
}
