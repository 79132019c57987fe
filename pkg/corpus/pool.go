// Package corpus holds the content-addressed pool of every seed a campaign
// has seen, whatever its fate on the target.
package corpus

import (
	"crypto/md5"
	"encoding/hex"
	"sync"

	"github.com/tpeyrard/hivefuzz/pkg/fuzzing"
)

// Digest returns the hex md5 of a seed's content. Seed filenames and
// seeds-sent bookkeeping are keyed on it.
func Digest(content []byte) string {
	sum := md5.Sum(content)
	return hex.EncodeToString(sum[:])
}

// Entry describes one pooled seed.
type Entry struct {
	Content []byte
	Digest  string
	Type    fuzzing.SeedType
	Origin  fuzzing.Engine
}

// Pool is the content-addressed seed store. A seed is inserted exactly
// once; re-submissions are reported as duplicates and change nothing.
// Iteration preserves insertion order so a pool replay reaches a late
// joiner in the order the broker first saw the seeds.
type Pool struct {
	mu      sync.Mutex
	entries map[string]*Entry
	order   []*Entry
}

// NewPool creates an empty pool.
func NewPool() *Pool {
	return &Pool{entries: make(map[string]*Entry)}
}

// Add inserts content into the pool and reports whether it was new.
// Duplicate submissions leave the original type and origin untouched.
func (p *Pool) Add(content []byte, typ fuzzing.SeedType, origin fuzzing.Engine) (*Entry, bool) {
	key := string(content)

	p.mu.Lock()
	defer p.mu.Unlock()

	if e, ok := p.entries[key]; ok {
		return e, false
	}
	e := &Entry{
		Content: content,
		Digest:  Digest(content),
		Type:    typ,
		Origin:  origin,
	}
	p.entries[key] = e
	p.order = append(p.order, e)
	return e, true
}

// Contains reports whether content is already pooled.
func (p *Pool) Contains(content []byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.entries[string(content)]
	return ok
}

// Len returns the number of distinct seeds.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Each calls fn for every entry in insertion order.
func (p *Pool) Each(fn func(e *Entry)) {
	p.mu.Lock()
	snapshot := make([]*Entry, len(p.order))
	copy(snapshot, p.order)
	p.mu.Unlock()

	for _, e := range snapshot {
		fn(e)
	}
}

// CountByType returns the number of seeds of each type.
func (p *Pool) CountByType() map[fuzzing.SeedType]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	counts := make(map[fuzzing.SeedType]int)
	for _, e := range p.order {
		counts[e.Type]++
	}
	return counts
}
