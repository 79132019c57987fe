// Package broker implements the campaign coordinator: it assigns work to
// arriving clients, routes discovered seeds between them, reconciles
// vulnerability updates against the defect report, and decides when the
// campaign is over.
//
// All message handlers run on the transport's serial dispatch thread.
// The broker's own mutex only exists to let the control API read
// consistent snapshots; handlers never contend with each other.
package broker

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/tpeyrard/hivefuzz/internal/bytesize"
	"github.com/tpeyrard/hivefuzz/internal/logger"
	"github.com/tpeyrard/hivefuzz/internal/telemetry"
	"github.com/tpeyrard/hivefuzz/pkg/binaries"
	"github.com/tpeyrard/hivefuzz/pkg/corpus"
	"github.com/tpeyrard/hivefuzz/pkg/fleet"
	"github.com/tpeyrard/hivefuzz/pkg/fuzzing"
	"github.com/tpeyrard/hivefuzz/pkg/journal"
	"github.com/tpeyrard/hivefuzz/pkg/metrics"
	"github.com/tpeyrard/hivefuzz/pkg/report"
	"github.com/tpeyrard/hivefuzz/pkg/stats"
	"github.com/tpeyrard/hivefuzz/pkg/transport"
	"github.com/tpeyrard/hivefuzz/pkg/workspace"
)

// CampaignState is the broker lifecycle.
type CampaignState int

const (
	// Configuring: registries loading, connections refused work.
	Configuring CampaignState = iota
	// Running: start time fixed, arriving clients get assignments.
	Running
	// Stopping: stop orders going out, no new work.
	Stopping
	// Terminated: the campaign is over.
	Terminated
)

func (s CampaignState) String() string {
	switch s {
	case Configuring:
		return "CONFIGURING"
	case Running:
		return "RUNNING"
	case Stopping:
		return "STOPPING"
	case Terminated:
		return "TERMINATED"
	default:
		return fmt.Sprintf("CampaignState(%d)", int(s))
	}
}

// Options configures a Broker.
type Options struct {
	Workspace *workspace.Workspace
	Report    *report.DefectReport
	Binaries  *binaries.Registry
	Transport transport.Transport

	// Journal is optional; without it, seeds-sent sets start empty on
	// every broker restart.
	Journal *journal.Journal

	// Metrics is optional (nil when the metrics registry is disabled).
	Metrics *metrics.BrokerMetrics

	Mode       BrokingMode
	CheckMode  fuzzing.CheckMode
	InjectLoc  fuzzing.SeedInjectLoc
	Argv       []string
	EngineArgs map[fuzzing.Engine]string
}

// Broker is the campaign coordinator.
type Broker struct {
	mu sync.Mutex

	ws      *workspace.Workspace
	rep     *report.DefectReport
	bins    *binaries.Registry
	tr      transport.Transport
	jrnl    *journal.Journal
	brokerM *metrics.BrokerMetrics
	statM   *stats.Manager

	mode       BrokingMode
	checkMode  fuzzing.CheckMode
	injectLoc  fuzzing.SeedInjectLoc
	argv       []string
	engineArgs map[fuzzing.Engine]string

	fleet *fleet.Registry
	pool  *corpus.Pool

	state     CampaignState
	startTime time.Time

	stopOnce    sync.Once
	stopped     chan struct{}
	requestOnce sync.Once
	stopRequest chan struct{}
}

// New builds a broker, binds its handlers to the transport, and reloads
// the seed pool from the workspace.
func New(opts Options) (*Broker, error) {
	if opts.Workspace == nil || opts.Report == nil || opts.Binaries == nil || opts.Transport == nil {
		return nil, fmt.Errorf("workspace, report, binaries and transport are all required")
	}

	b := &Broker{
		ws:          opts.Workspace,
		rep:         opts.Report,
		bins:        opts.Binaries,
		tr:          opts.Transport,
		jrnl:        opts.Journal,
		brokerM:     opts.Metrics,
		statM:       stats.NewManager(opts.Metrics),
		mode:        opts.Mode,
		checkMode:   opts.CheckMode,
		injectLoc:   opts.InjectLoc,
		argv:        opts.Argv,
		engineArgs:  opts.EngineArgs,
		fleet:       fleet.NewRegistry(),
		pool:        corpus.NewPool(),
		state:       Configuring,
		stopped:     make(chan struct{}),
		stopRequest: make(chan struct{}),
	}
	if b.engineArgs == nil {
		b.engineArgs = make(map[fuzzing.Engine]string)
	}

	if !b.rep.HasBinding() {
		logger.Warn("defect report does not carry binary bindings, alerts resolve by raw id")
	}

	if err := b.loadPool(); err != nil {
		return nil, err
	}

	b.tr.Bind(transport.Handlers{
		Hello:        b.handleHello,
		Seed:         b.handleSeed,
		Log:          b.handleLog,
		Telemetry:    b.handleTelemetry,
		StopCoverage: b.handleStopCoverage,
		Data:         b.handleData,
	})

	return b, nil
}

// loadPool rehydrates the seed pool from the workspace directories.
func (b *Broker) loadPool() error {
	loaded := 0
	err := b.ws.LoadSeeds(func(s workspace.LoadedSeed) {
		if _, isNew := b.pool.Add(s.Content, s.Type, s.Origin); isNew {
			loaded++
		}
	})
	if err != nil {
		return fmt.Errorf("failed to load workspace seeds: %w", err)
	}
	if loaded > 0 {
		logger.Info("seed pool reloaded from workspace", "seeds", loaded)
	}
	return nil
}

// Start fixes the campaign start time, moves to RUNNING and assigns every
// already-connected idle client.
func (b *Broker) Start() {
	b.mu.Lock()
	if b.state != Configuring {
		b.mu.Unlock()
		return
	}
	b.state = Running
	b.startTime = time.Now()
	clients := b.fleet.All()
	b.mu.Unlock()

	logger.Info("campaign started", "mode", b.mode.String(), "binaries", b.bins.Count(), "alerts", len(b.rep.Alerts))
	for _, c := range clients {
		if !c.IsRunning() {
			b.startClient(c)
		}
	}
}

// Run starts the campaign and blocks until it terminates or ctx is
// cancelled. In both cases every client is sent a stop and the final CSV
// is written before Run returns.
func (b *Broker) Run(ctx context.Context) error {
	b.Start()

	select {
	case <-ctx.Done():
		logger.Info("operator stop requested")
		b.initiateStop()
	case <-b.stopRequest:
		b.initiateStop()
	case <-b.stopped:
	}

	<-b.stopped
	logger.Info("campaign terminated")
	return nil
}

// Stop initiates campaign shutdown on operator request.
func (b *Broker) Stop() {
	b.initiateStop()
}

// requestStop asks the campaign loop to wind the campaign down without
// doing so on the caller's (handler's) stack.
func (b *Broker) requestStop() {
	b.requestOnce.Do(func() { close(b.stopRequest) })
}

// initiateStop sends a stop to every client that has not had one, writes
// the final CSV, and moves the campaign to TERMINATED.
func (b *Broker) initiateStop() {
	b.stopOnce.Do(func() {
		b.mu.Lock()
		b.state = Stopping
		b.mu.Unlock()

		for _, c := range b.fleet.All() {
			if c.MarkStopSent() {
				logger.Info("sending stop", "client", c.StrID())
				c.SetStopped()
				if err := b.tr.SendStop(c.NetID); err != nil {
					logger.Warn("failed to send stop", "client", c.StrID(), "error", err)
				}
			}
		}

		b.writeCSV()
		b.updateFleetGauges()

		b.mu.Lock()
		b.state = Terminated
		b.mu.Unlock()
		close(b.stopped)
	})
}

// State returns the campaign state.
func (b *Broker) State() CampaignState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// StartTime returns the campaign start time (zero before Start).
func (b *Broker) StartTime() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.startTime
}

// SetEngineArgs overrides the extra command-line arguments passed to one
// engine in START orders.
func (b *Broker) SetEngineArgs(engine fuzzing.Engine, args string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if prev, ok := b.engineArgs[engine]; ok && prev != "" {
		logger.Warn("arguments were already set for engine", "engine", engine.String())
	}
	b.engineArgs[engine] = args
}

// getClient resolves a network id. Unknown senders get a synchronous stop
// so a half-connected engine does not keep fuzzing for nobody.
func (b *Broker) getClient(id transport.NetID) *fleet.Client {
	c := b.fleet.Get(id)
	if c == nil {
		logger.Warn("message from unknown client, sending stop", "netid", string(id))
		if err := b.tr.SendStop(id); err != nil {
			logger.Warn("failed to stop unknown client", "netid", string(id), "error", err)
		}
	}
	return c
}

// handleHello registers an arriving client and, when the campaign is
// already running, puts it to work immediately.
func (b *Broker) handleHello(id transport.NetID, msg transport.Hello) {
	uid := b.fleet.NewUID()
	c := fleet.NewClient(uid, id, msg)

	sink, err := logger.NewSink(b.ws.ClientLogPath(c.StrID()), c.StrID(), uid)
	if err != nil {
		logger.Warn("failed to open client log sink", "client", c.StrID(), "error", err)
	} else {
		c.AttachSink(sink)
	}

	engines := make([]string, 0, len(msg.Engines))
	for _, ev := range msg.Engines {
		engines = append(engines, ev.Engine.String())
	}
	logger.Info("client connected",
		"client", c.StrID(),
		"arch", msg.Arch.String(),
		"engines", strings.Join(engines, ","),
		"cpus", msg.Cpus,
		"memory", bytesize.Format(msg.Memory))

	if b.jrnl != nil {
		if sent, err := b.jrnl.Shipments(c.StrID()); err != nil {
			logger.Warn("failed to restore shipment journal", "client", c.StrID(), "error", err)
		} else if len(sent) > 0 {
			c.RestoreSeedsSent(sent)
			logger.Info("restored seeds-sent set from journal", "client", c.StrID(), "seeds", len(sent))
		}
	}

	b.fleet.Add(c)
	b.updateFleetGauges()

	b.mu.Lock()
	running := b.state == Running
	b.mu.Unlock()
	if !running {
		return
	}

	b.startClient(c)
	if b.mode == Full {
		b.replayPool(c)
	}
}

// replayPool ships the whole existing pool to a late joiner, skipping
// whatever its seeds-sent set already covers.
func (b *Broker) replayPool(c *fleet.Client) {
	b.pool.Each(func(e *corpus.Entry) {
		if c.HasSeed(e.Digest) {
			return
		}
		b.shipSeed(c, e)
	})
}

// shipSeed sends one pool entry to a client and records the shipment.
func (b *Broker) shipSeed(c *fleet.Client, e *corpus.Entry) {
	err := b.tr.SendSeed(c.NetID, transport.Seed{Type: e.Type, Bytes: e.Content, Origin: e.Origin})
	if err != nil {
		logger.Warn("failed to ship seed", "client", c.StrID(), "seed", e.Digest, "error", err)
		return
	}
	c.MarkSeedSent(e.Digest)
	b.brokerM.RecordShipped()
	if b.jrnl != nil {
		if err := b.jrnl.RecordShipment(c.StrID(), e.Digest); err != nil {
			logger.Warn("failed to journal shipment", "client", c.StrID(), "error", err)
		}
	}
}

// handleSeed runs the dedup/persist/re-broadcast pipeline.
func (b *Broker) handleSeed(id transport.NetID, msg transport.Seed) {
	c := b.getClient(id)
	if c == nil {
		return
	}

	ctx, span := telemetry.StartSpan(context.Background(), "broker.seed")
	defer span.End()

	entry, isNew := b.pool.Add(msg.Bytes, msg.Type, msg.Origin)
	telemetry.SetAttributes(ctx,
		attribute.String("seed.type", msg.Type.String()),
		attribute.Bool("seed.new", isNew))
	b.statM.RecordSeed(c.StrID(), msg.Type, isNew)

	if isNew {
		c.Log(fuzzing.LogInfo, fmt.Sprintf("[%s] [SEED] [%s] %s (%s)",
			c.StrID(), msg.Origin.String(), entry.Digest, msg.Type.String()))
		if _, err := b.ws.WriteSeed(msg.Type, c.SeedStrID(msg.Origin), msg.Bytes); err != nil {
			// Persistence failures surface to the operator but never stall
			// the campaign.
			logger.Error("failed to persist seed", "client", c.StrID(), "seed", entry.Digest, "error", err)
		}
	}

	switch b.mode {
	case NoTransmit:
		return
	case Full, CoverageOrdered:
		if !isNew {
			// Every connected peer already got it when it was first seen.
			return
		}
		for _, other := range b.fleet.Others(c) {
			if other.HasSeed(entry.Digest) {
				continue
			}
			if b.mode == CoverageOrdered && !sharesCoverage(c, other) {
				continue
			}
			b.shipSeed(other, entry)
		}
	}
}

// sharesCoverage implements the COVERAGE_ORDERED matching rule: both
// clients must be running and measure progress at the same granularity.
func sharesCoverage(a, bc *fleet.Client) bool {
	if !a.IsRunning() || !bc.IsRunning() {
		return false
	}
	return a.Assignment().CoverageMode == bc.Assignment().CoverageMode
}

// handleLog forwards an engine log line to the client's sink.
func (b *Broker) handleLog(id transport.NetID, msg transport.Log) {
	c := b.getClient(id)
	if c == nil {
		return
	}
	c.Log(msg.Level, msg.Message)
}

// handleTelemetry records a statistics report. Fields the engine did not
// send render as '-' in the client log.
func (b *Broker) handleTelemetry(id transport.NetID, msg transport.Telemetry) {
	c := b.getClient(id)
	if c == nil {
		return
	}

	c.Log(fuzzing.LogInfo, fmt.Sprintf(
		"exec/s:%s tot_exec:%s cycle:%s To:%s CovB:%s CovE:%s CovP:%s last_up:%s",
		orDash(msg.ExecPerSec), orDash(msg.TotalExec), orDash(msg.Cycle), orDash(msg.Timeout),
		orDash(msg.CoverageBlock), orDash(msg.CoverageEdge), orDash(msg.CoveragePath), orDash(msg.LastCovUpdate)))

	// The engine state field is recorded nowhere; the broker takes no
	// decision on it.
	b.statM.RecordTelemetry(c.StrID(), msg)
}

func orDash(v *uint64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *v)
}

// handleStopCoverage reacts to a client that exhausted its input space:
// every other client is stopped, and the campaign winds down. Continuing
// the peers would waste fleet time once an engine has fully explored its
// strategy.
func (b *Broker) handleStopCoverage(id transport.NetID) {
	c := b.getClient(id)
	if c == nil {
		return
	}
	logger.Info("client exhausted coverage", "client", c.StrID())

	for _, other := range b.fleet.Others(c) {
		if other.MarkStopSent() {
			other.SetStopped()
			if err := b.tr.SendStop(other.NetID); err != nil {
				logger.Warn("failed to send stop", "client", other.StrID(), "error", err)
			}
		}
	}
	b.updateFleetGauges()

	// The campaign winds down too: this signal means an engine fully
	// exhausted its input space under its strategy, and the fleet has
	// just been stopped around it. The actual stop-all runs on the
	// campaign loop, not on this handler's stack.
	b.requestStop()
}

// handleData reconciles an alert update against the defect report.
// Transitions are monotone: only false→true is ever applied, anything
// else is ignored.
func (b *Broker) handleData(id transport.NetID, payload []byte) {
	c := b.getClient(id)
	if c == nil {
		return
	}

	ctx, span := telemetry.StartSpan(context.Background(), "broker.alert_update")
	defer span.End()

	upd, err := transport.DecodeAlertUpdate(payload)
	if err != nil {
		telemetry.RecordError(ctx, err)
		logger.Warn("discarding malformed alert update", "client", c.StrID(), "error", err)
		return
	}

	alert, err := b.rep.Resolve(upd.ID)
	if err != nil {
		logger.Warn("alert update refers to no known alert", "client", c.StrID(), "id", upd.ID)
		return
	}

	changed := false
	if !alert.Covered && upd.Covered {
		alert.Covered = true
		changed = true
		logger.Info("first to cover "+alert.String(), "client", c.StrID())
	}
	if !alert.Validated && upd.Validated {
		alert.Validated = true
		alert.Covered = true // validated implies covered
		changed = true
		logger.Info("first to validate "+alert.String(), "client", c.StrID())
	}
	if !changed {
		return
	}

	b.writeCSV()
	b.brokerM.SetAlertProgress(b.rep.CoveredCount(), b.rep.ValidatedCount())

	if b.rep.AllValidated() {
		logger.Info("all alerts validated, stopping campaign")
		b.initiateStop()
	}
}

// writeCSV mirrors the defect report into the workspace. Failures surface
// to the operator log; the broker continues.
func (b *Broker) writeCSV() {
	if err := b.rep.WriteCSV(b.ws.ResultsPath()); err != nil {
		logger.Error("failed to write results mirror", "error", err)
	}
}

// startClient runs the assignment engine for one client and, on success,
// dispatches the START order.
func (b *Broker) startClient(c *fleet.Client) {
	assignment, ok := PickAssignment(c, b.fleet.Running(), b.bins)
	if !ok {
		logger.Error("no suitable engine or binary for client, leaving idle",
			"client", c.StrID(), "arch", c.Arch.String())
		return
	}

	reportJSON, err := b.rep.ToJSON()
	if err != nil {
		logger.Error("failed to serialize defect report for client", "client", c.StrID(), "error", err)
		return
	}

	assignment.CheckMode = b.checkMode
	c.SetRunning(assignment)
	logger.Info("starting client",
		"client", c.StrID(),
		"engine", assignment.Engine.String(),
		"coverage", assignment.CoverageMode.String(),
		"exec", assignment.ExecMode.String(),
		"program", assignment.Program)

	err = b.tr.SendStart(c.NetID, transport.Start{
		Program:      assignment.Program,
		Argv:         b.argv,
		ExecMode:     assignment.ExecMode,
		CheckMode:    assignment.CheckMode,
		CoverageMode: assignment.CoverageMode,
		Engine:       assignment.Engine,
		EngineArgs:   b.engineArgs[assignment.Engine],
		InjectLoc:    b.injectLoc,
		ReportJSON:   reportJSON,
	})
	if err != nil {
		logger.Error("failed to send start, reverting client to idle", "client", c.StrID(), "error", err)
		c.SetStopped()
		return
	}
	b.updateFleetGauges()
}

func (b *Broker) updateFleetGauges() {
	b.brokerM.SetClients(b.fleet.Len(), len(b.fleet.Running()))
}
