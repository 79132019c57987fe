// Package transport defines the message surface between the broker and its
// fuzzing agents, and the contract any concrete transport has to honor.
//
// Wire framing, routing and authentication are the transport's concern; the
// broker only sees typed messages tagged with an opaque network identity.
// Handler dispatch is serial: a transport must never invoke two handlers
// concurrently.
package transport

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tpeyrard/hivefuzz/pkg/fuzzing"
)

// NetID is the opaque identity a transport assigns to a connected agent.
type NetID string

// Hello announces an agent and its capabilities.
type Hello struct {
	Engines []fuzzing.EngineVersion
	Arch    fuzzing.Arch
	Cpus    int
	Memory  uint64
}

// Seed carries one input discovered by an agent.
type Seed struct {
	Type   fuzzing.SeedType
	Bytes  []byte
	Origin fuzzing.Engine
}

// Log forwards one engine log line to the broker.
type Log struct {
	Level   fuzzing.LogLevel
	Message string
}

// Telemetry is a periodic statistics report. Fields the engine does not
// track are nil.
type Telemetry struct {
	State         *fuzzing.State
	ExecPerSec    *uint64
	TotalExec     *uint64
	Cycle         *uint64
	Timeout       *uint64
	CoverageBlock *uint64
	CoverageEdge  *uint64
	CoveragePath  *uint64
	LastCovUpdate *uint64
}

// AlertUpdate is the payload of a DATA message: an agent reporting progress
// on one defect-report alert.
type AlertUpdate struct {
	ID        int  `json:"id"`
	Covered   bool `json:"covered"`
	Validated bool `json:"validated"`
}

// DecodeAlertUpdate parses the JSON payload of a DATA message.
func DecodeAlertUpdate(data []byte) (AlertUpdate, error) {
	var u AlertUpdate
	if err := json.Unmarshal(data, &u); err != nil {
		return AlertUpdate{}, fmt.Errorf("malformed alert update: %w", err)
	}
	return u, nil
}

// Encode serializes the update for transmission.
func (u AlertUpdate) Encode() []byte {
	data, _ := json.Marshal(u)
	return data
}

// Start is the broker's fuzzing order to one agent.
type Start struct {
	Program      string
	Argv         []string
	ExecMode     fuzzing.ExecMode
	CheckMode    fuzzing.CheckMode
	CoverageMode fuzzing.CoverageMode
	Engine       fuzzing.Engine
	EngineArgs   string
	InjectLoc    fuzzing.SeedInjectLoc
	ReportJSON   []byte
}

// Handlers holds the broker-side callback slots, one per inbound message
// kind. A transport invokes exactly one slot per received message, always
// from a single logical dispatch thread.
type Handlers struct {
	Hello        func(id NetID, msg Hello)
	Seed         func(id NetID, msg Seed)
	Log          func(id NetID, msg Log)
	Telemetry    func(id NetID, msg Telemetry)
	StopCoverage func(id NetID)
	Data         func(id NetID, payload []byte)
}

// Transport is the broker's view of the messaging layer.
type Transport interface {
	// Bind installs the handler slots. Must be called before Run.
	Bind(h Handlers)

	// Run blocks dispatching inbound messages until ctx is cancelled.
	Run(ctx context.Context) error

	// SendStart orders an agent to begin fuzzing.
	SendStart(id NetID, msg Start) error

	// SendSeed ships one seed to an agent.
	SendSeed(id NetID, msg Seed) error

	// SendStop tells an agent to terminate.
	SendStop(id NetID) error
}
