// Package fleet tracks the clients connected to a campaign: identity,
// capabilities, current assignment, and the set of seeds each one has
// already been shipped.
package fleet

import (
	"fmt"
	"strings"

	"github.com/tpeyrard/hivefuzz/internal/logger"
	"github.com/tpeyrard/hivefuzz/pkg/fuzzing"
	"github.com/tpeyrard/hivefuzz/pkg/transport"
)

// Assignment is the complete fuzzing order a running client holds.
type Assignment struct {
	Engine       fuzzing.Engine
	CoverageMode fuzzing.CoverageMode
	ExecMode     fuzzing.ExecMode
	CheckMode    fuzzing.CheckMode
	Program      string
}

// Client is one connected fuzzing agent. A client is either idle or holds
// a complete assignment; the seeds-sent set only ever grows.
type Client struct {
	UID    int
	NetID  transport.NetID
	Arch   fuzzing.Arch
	Engine []fuzzing.EngineVersion
	Cpus   int
	Memory uint64

	running    bool
	stopSent   bool
	assignment Assignment
	seen       map[string]struct{}
	sink       *logger.Sink
}

// NewClient builds a client record from a HELLO announcement.
func NewClient(uid int, netid transport.NetID, hello transport.Hello) *Client {
	return &Client{
		UID:    uid,
		NetID:  netid,
		Arch:   hello.Arch,
		Engine: hello.Engines,
		Cpus:   hello.Cpus,
		Memory: hello.Memory,
		seen:   make(map[string]struct{}),
	}
}

// StrID is the human-readable client identifier: Cli-<uid>-<capability
// tags>, e.g. Cli-3-TTHF for a client supporting both engines.
func (c *Client) StrID() string {
	var tags strings.Builder
	for _, ev := range c.Engine {
		tags.WriteString(ev.Engine.ShortName())
	}
	return fmt.Sprintf("Cli-%d-%s", c.UID, tags.String())
}

// SeedStrID is the identifier stamped into seed filenames. It embeds the
// seed's origin engine so a workspace reload recovers the origin from the
// name alone.
func (c *Client) SeedStrID(origin fuzzing.Engine) string {
	return fmt.Sprintf("Cli-%d-%s", c.UID, origin.ShortName())
}

// SupportsEngine reports whether the client advertised the engine.
func (c *Client) SupportsEngine(e fuzzing.Engine) bool {
	for _, ev := range c.Engine {
		if ev.Engine == e {
			return true
		}
	}
	return false
}

// IsRunning reports whether the client currently holds an assignment.
func (c *Client) IsRunning() bool { return c.running }

// Assignment returns the client's current assignment. Only meaningful
// while IsRunning.
func (c *Client) Assignment() Assignment { return c.assignment }

// SetRunning records a complete assignment and flips the client to
// running.
func (c *Client) SetRunning(a Assignment) {
	c.assignment = a
	c.running = true
}

// SetStopped marks the client idle. The assignment is cleared so the
// invariant "idle or completely assigned" holds.
func (c *Client) SetStopped() {
	c.running = false
	c.assignment = Assignment{}
}

// MarkStopSent records that a STOP was dispatched to this client and
// reports whether this is the first one.
func (c *Client) MarkStopSent() bool {
	if c.stopSent {
		return false
	}
	c.stopSent = true
	return true
}

// HasSeed reports whether the seed digest was already shipped to this
// client.
func (c *Client) HasSeed(digest string) bool {
	_, ok := c.seen[digest]
	return ok
}

// MarkSeedSent records that the seed digest was shipped to this client.
func (c *Client) MarkSeedSent(digest string) {
	c.seen[digest] = struct{}{}
}

// RestoreSeedsSent preloads the seeds-sent set, typically from the
// campaign journal when a client with a known identity reconnects.
func (c *Client) RestoreSeedsSent(digests map[string]struct{}) {
	for d := range digests {
		c.seen[d] = struct{}{}
	}
}

// SeedsSent returns the size of the seeds-sent set.
func (c *Client) SeedsSent() int { return len(c.seen) }

// AttachSink connects the client's log file.
func (c *Client) AttachSink(s *logger.Sink) { c.sink = s }

// Log forwards one line to the client's sink. Clients without a sink
// (failed open at HELLO) fall back to the process logger.
func (c *Client) Log(level fuzzing.LogLevel, message string) {
	if c.sink == nil {
		logger.Info(fmt.Sprintf("[%s] %s", c.StrID(), message), "level", level.String())
		return
	}
	c.sink.Log(level.String(), message)
}

// Close releases the client's log sink.
func (c *Client) Close() {
	if c.sink != nil {
		_ = c.sink.Close()
		c.sink = nil
	}
}
