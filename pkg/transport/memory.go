package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MemoryTransport is an in-process Transport implementation. Agents attach
// with Connect and post messages directly; dispatch happens synchronously on
// the caller's goroutine under a single mutex, which satisfies the serial
// dispatch contract without a background loop.
//
// It backs the broker's test-suite and the single-host simulation mode.
type MemoryTransport struct {
	// dispatchMu serialises handler invocations. It is distinct from mu so
	// handlers can send outbound messages without self-deadlocking.
	dispatchMu sync.Mutex

	mu       sync.Mutex
	handlers Handlers
	bound    bool
	agents   map[NetID]*MemoryAgent
}

// NewMemoryTransport creates an empty in-process transport.
func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{agents: make(map[NetID]*MemoryAgent)}
}

// Bind installs the broker handler slots.
func (t *MemoryTransport) Bind(h Handlers) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers = h
	t.bound = true
}

// Run blocks until the context is cancelled. Dispatch itself is synchronous
// so there is nothing to pump here.
func (t *MemoryTransport) Run(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

// Connect attaches a new agent and returns its endpoint.
func (t *MemoryTransport) Connect() *MemoryAgent {
	a := &MemoryAgent{
		id: NetID(uuid.NewString()),
		tr: t,
	}
	t.mu.Lock()
	t.agents[a.id] = a
	t.mu.Unlock()
	return a
}

func (t *MemoryTransport) agent(id NetID) (*MemoryAgent, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	a, ok := t.agents[id]
	if !ok {
		return nil, fmt.Errorf("no connected agent %q", id)
	}
	return a, nil
}

// SendStart delivers a START order to the agent's outbox.
func (t *MemoryTransport) SendStart(id NetID, msg Start) error {
	a, err := t.agent(id)
	if err != nil {
		return err
	}
	a.record(Outbound{Kind: OutStart, Start: &msg})
	return nil
}

// SendSeed delivers a seed to the agent's outbox.
func (t *MemoryTransport) SendSeed(id NetID, msg Seed) error {
	a, err := t.agent(id)
	if err != nil {
		return err
	}
	a.record(Outbound{Kind: OutSeed, Seed: &msg})
	return nil
}

// SendStop delivers a STOP to the agent's outbox. Stops addressed to ids
// the transport has never seen are dropped; the broker stops unknown
// senders as a matter of course and there is nobody to deliver to.
func (t *MemoryTransport) SendStop(id NetID) error {
	a, err := t.agent(id)
	if err != nil {
		return nil
	}
	a.record(Outbound{Kind: OutStop})
	return nil
}

// dispatch runs fn under the dispatch lock, serialising it against every
// other handler invocation.
func (t *MemoryTransport) dispatch(fn func(h Handlers)) {
	t.mu.Lock()
	h := t.handlers
	bound := t.bound
	t.mu.Unlock()
	if !bound {
		return
	}
	t.dispatchMu.Lock()
	defer t.dispatchMu.Unlock()
	fn(h)
}

// OutboundKind discriminates broker-to-agent messages.
type OutboundKind int

const (
	OutStart OutboundKind = iota
	OutSeed
	OutStop
)

// Outbound is one broker-to-agent message as seen by a MemoryAgent.
type Outbound struct {
	Kind  OutboundKind
	Start *Start
	Seed  *Seed
}

// MemoryAgent is the agent-side endpoint of a MemoryTransport.
type MemoryAgent struct {
	id NetID
	tr *MemoryTransport

	mu     sync.Mutex
	outbox []Outbound
}

// ID returns the network identity the transport assigned to this agent.
func (a *MemoryAgent) ID() NetID { return a.id }

func (a *MemoryAgent) record(m Outbound) {
	a.mu.Lock()
	a.outbox = append(a.outbox, m)
	a.mu.Unlock()
}

// Outbox returns a copy of every message the broker sent to this agent, in
// delivery order.
func (a *MemoryAgent) Outbox() []Outbound {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Outbound, len(a.outbox))
	copy(out, a.outbox)
	return out
}

// SendHello posts a HELLO to the broker.
func (a *MemoryAgent) SendHello(msg Hello) {
	a.tr.dispatch(func(h Handlers) {
		if h.Hello != nil {
			h.Hello(a.id, msg)
		}
	})
}

// SendSeed posts a discovered seed to the broker.
func (a *MemoryAgent) SendSeed(msg Seed) {
	a.tr.dispatch(func(h Handlers) {
		if h.Seed != nil {
			h.Seed(a.id, msg)
		}
	})
}

// SendLog posts a log line to the broker.
func (a *MemoryAgent) SendLog(msg Log) {
	a.tr.dispatch(func(h Handlers) {
		if h.Log != nil {
			h.Log(a.id, msg)
		}
	})
}

// SendTelemetry posts a statistics report to the broker.
func (a *MemoryAgent) SendTelemetry(msg Telemetry) {
	a.tr.dispatch(func(h Handlers) {
		if h.Telemetry != nil {
			h.Telemetry(a.id, msg)
		}
	})
}

// SendStopCoverage signals that this agent exhausted its search space.
func (a *MemoryAgent) SendStopCoverage() {
	a.tr.dispatch(func(h Handlers) {
		if h.StopCoverage != nil {
			h.StopCoverage(a.id)
		}
	})
}

// SendData posts an alert update payload to the broker.
func (a *MemoryAgent) SendData(payload []byte) {
	a.tr.dispatch(func(h Handlers) {
		if h.Data != nil {
			h.Data(a.id, payload)
		}
	})
}
