// Package engine drives the simulation: a Markov chain over agents
// picks who acts each step, conversations and reflections run against
// the model backend, and affinity-reweighting cycles rebuild the
// transition matrix.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/agorasim/agora/internal/agents"
	"github.com/agorasim/agora/internal/events"
	"github.com/agorasim/agora/internal/llm"
	"github.com/agorasim/agora/internal/markov"
	"github.com/agorasim/agora/internal/session"
	"github.com/agorasim/agora/internal/trade"
)

// ModelBackend is everything the orchestrator needs from the model.
// *llm.Client satisfies this; tests use fakes.
type ModelBackend interface {
	session.Generator
	trade.Extractor
	AffinityScore(req llm.AffinityRequest) (float64, error)
	Reflect(req llm.ReflectRequest) ([]string, error)
	PlanProduction(req llm.PlanRequest) (*llm.ProductionPlan, error)
}

// Config holds simulation parameters.
type Config struct {
	Context          string  // Shared scene, e.g. "a small farmers market".
	TotalSteps       int     // Steps to run.
	SelfProb         float64 // Diagonal of the transition matrix.
	InteractionProb  float64 // Off-diagonal mass per row.
	MaxTurns         int     // Utterance budget per conversation.
	WeightPeriod     int     // Steps per affinity-reweighting cycle.
	ProductionPeriod int     // Steps between production/restocking phases.
	Seed             int64   // RNG seed; 0 means time-based.
}

// networkPeriod is how often (in steps) a network snapshot event is emitted.
const networkPeriod = 5

// Interaction is one completed dialogue recorded in history.
type Interaction struct {
	Step         int    `json:"time_step"`
	Initiator    string `json:"initiator"`
	Partner      string `json:"partner"`
	Turns        int    `json:"turns"`
	TradeCount   int    `json:"trade_count"`
	FailedTrades int    `json:"failed_trades"`
}

// Snapshot is the handoff unit for checkpointing at cycle boundaries.
type Snapshot struct {
	Cycle        int           `json:"cycle"`
	Step         int           `json:"time_step"`
	Weights      [][]float64   `json:"weights"`
	Matrix       [][]float64   `json:"matrix"`
	AgentNames   []string      `json:"agent_names"`
	Interactions []Interaction `json:"interactions"`
	Trades       int           `json:"trades"`
}

// Summary reports the run after it finishes.
type Summary struct {
	Steps         int          `json:"steps"`
	Cycles        int          `json:"cycles"`
	Conversations int          `json:"conversations"`
	Reflections   int          `json:"reflections"`
	Trades        int          `json:"trades"`
	FailedTrades  int          `json:"failed_trades"`
	Leaderboard   []AgentStats `json:"leaderboard"`
}

// Orchestrator owns the run loop and all simulation state. The run
// loop is the single writer; it holds mu for each step, and the HTTP
// layer reads through the RLock-taking accessors.
type Orchestrator struct {
	mu      sync.RWMutex
	cfg     Config
	agents  []*agents.Agent
	index   map[string]int // name -> position in agents
	backend ModelBackend
	queue   *events.Queue

	sessions *session.Manager
	trades   *trade.Engine
	registry *session.Registry

	rng     *rand.Rand
	weights [][]float64 // nil until the first reweighting cycle
	matrix  [][]float64
	current int

	step    int
	cycle   int
	stats   map[string]*AgentStats
	history []Interaction

	tradeCount  int
	failedCount int
	reflections int

	// OnCheckpoint, when set, is called at every reweighting or
	// production boundary with the current snapshot. An error aborts
	// the run.
	OnCheckpoint func(Snapshot) error
}

// New builds an orchestrator over the given roster. The roster needs at
// least two agents: a one-agent chain has no one to talk to.
func New(cfg Config, roster []*agents.Agent, backend ModelBackend, queue *events.Queue) (*Orchestrator, error) {
	if len(roster) < 2 {
		return nil, fmt.Errorf("need at least 2 agents, got %d", len(roster))
	}
	if cfg.TotalSteps < 1 {
		return nil, fmt.Errorf("total steps must be positive, got %d", cfg.TotalSteps)
	}
	if cfg.WeightPeriod < 1 {
		cfg.WeightPeriod = 20
	}
	if cfg.ProductionPeriod < 1 {
		cfg.ProductionPeriod = cfg.WeightPeriod
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	o := &Orchestrator{
		cfg:      cfg,
		agents:   roster,
		index:    make(map[string]int, len(roster)),
		backend:  backend,
		queue:    queue,
		registry: session.NewRegistry(),
		rng:      rand.New(rand.NewSource(seed)),
		stats:    make(map[string]*AgentStats),
	}
	for i, a := range roster {
		o.index[a.Name] = i
		o.stats[a.Name] = &AgentStats{Agent: a.Name}
	}
	o.trades = trade.NewEngine(backend)
	o.sessions = session.NewManager(backend, o.trades, queue, o.registry, cfg.MaxTurns)

	m, err := markov.BuildMatrix(len(roster), cfg.SelfProb, cfg.InteractionProb, nil)
	if err != nil {
		return nil, fmt.Errorf("build transition matrix: %w", err)
	}
	o.matrix = m
	o.current = o.rng.Intn(len(roster))
	return o, nil
}

// Run executes the configured number of steps. Per-step failures are
// logged and skipped; only context cancellation or a checkpoint error
// stops the run early.
func (o *Orchestrator) Run(ctx context.Context) (*Summary, error) {
	slog.Info("simulation starting",
		"agents", len(o.agents),
		"steps", o.cfg.TotalSteps,
		"self_prob", o.cfg.SelfProb,
		"weight_period", o.cfg.WeightPeriod,
	)

	for i := 1; i <= o.cfg.TotalSteps; i++ {
		select {
		case <-ctx.Done():
			slog.Info("simulation interrupted", "step", i)
			return o.summary(), ctx.Err()
		default:
		}

		if err := o.runStep(i); err != nil {
			return o.summary(), err
		}
	}

	s := o.summary()
	slog.Info("simulation finished",
		"steps", s.Steps,
		"cycles", s.Cycles,
		"conversations", s.Conversations,
		"trades", s.Trades,
		"failed_trades", s.FailedTrades,
	)
	return s, nil
}

// runStep executes one simulation step under the write lock, so HTTP
// readers never observe agent state mid-mutation.
func (o *Orchestrator) runStep(step int) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.step = step

	next := markov.Step(o.current, o.matrix, o.rng)
	if next == o.current {
		o.reflect(o.agents[next])
	} else {
		o.converse(o.agents[o.current], o.agents[next])
	}
	o.current = next

	if step%networkPeriod == 0 {
		o.queue.Emit(events.TypeNetworkUpdate, step, o.network())
	}

	boundary := false
	if step%o.cfg.ProductionPeriod == 0 {
		o.runProduction()
		boundary = true
	}
	if step%o.cfg.WeightPeriod == 0 {
		o.endCycle()
		boundary = true
	}
	if boundary && o.OnCheckpoint != nil {
		if err := o.OnCheckpoint(o.snapshot()); err != nil {
			return fmt.Errorf("checkpoint at step %d: %w", step, err)
		}
	}
	return nil
}

// converse runs a full conversation between initiator and partner and
// folds the result into stats and history.
func (o *Orchestrator) converse(initiator, partner *agents.Agent) {
	res := o.sessions.Run(initiator, partner, o.cfg.Context, o.step)

	rec := Interaction{
		Step:      o.step,
		Initiator: initiator.Name,
		Partner:   partner.Name,
		Turns:     res.TurnCount,
	}
	for _, tr := range res.Trades {
		if tr.Executed {
			rec.TradeCount++
			o.tradeCount++
			o.recordTrade(tr)
		} else {
			rec.FailedTrades++
			o.failedCount++
		}
	}
	o.history = append(o.history, rec)
}

// reflect has the agent think alone: the model produces new thoughts
// anchored on the most recent interaction, each stored as a memory.
func (o *Orchestrator) reflect(a *agents.Agent) {
	anchor := ""
	for i := len(o.history) - 1; i >= 0; i-- {
		h := o.history[i]
		if h.Initiator == a.Name || h.Partner == a.Name {
			other := h.Partner
			if other == a.Name {
				other = h.Initiator
			}
			anchor = fmt.Sprintf("my recent conversation with %s", other)
			break
		}
	}

	thoughts, err := o.backend.Reflect(llm.ReflectRequest{
		AgentDesc: a.Describe(""),
		Anchor:    anchor,
		Memories:  a.Memories.RecentContents(10),
	})
	if err != nil || len(thoughts) == 0 {
		if err != nil {
			slog.Warn("reflection failed", "agent", a.Name, "error", err)
		}
		subject := anchor
		if subject == "" {
			subject = "my situation"
		}
		thoughts = []string{fmt.Sprintf("I reflected on %s at step %d.", subject, o.step)}
	}

	for _, th := range thoughts {
		a.Memories.Remember(th, o.step)
	}
	o.reflections++

	o.queue.Emit(events.TypeReflection, o.step, ReflectionPayload{
		Agent:    a.Name,
		Thoughts: thoughts,
	})
}

// endCycle closes a reweighting cycle: refresh the affinity weights and
// rebuild the transition matrix from them.
func (o *Orchestrator) endCycle() {
	o.cycle++
	o.updateWeights()

	m, err := markov.BuildMatrix(len(o.agents), o.cfg.SelfProb, o.cfg.InteractionProb, o.weights)
	if err != nil {
		slog.Error("matrix rebuild failed, keeping previous matrix", "cycle", o.cycle, "error", err)
	} else {
		o.matrix = m
	}

	slog.Info("cycle complete",
		"cycle", o.cycle,
		"step", o.step,
		"conversations", len(o.history),
		"trades", o.tradeCount,
	)
}

// updateWeights refreshes the pairwise affinity weights. A failed score
// keeps that agent's previous row; a nil previous row means the matrix
// rebuild falls back to a uniform split for it.
func (o *Orchestrator) updateWeights() {
	n := len(o.agents)
	if o.weights == nil {
		o.weights = make([][]float64, n)
	}

	for i, a := range o.agents {
		row := make([]float64, n)
		ok := true
		for j, b := range o.agents {
			if i == j {
				continue
			}
			score, err := o.backend.AffinityScore(llm.AffinityRequest{
				AgentDesc: a.Describe(""),
				Candidate: b.Name,
				Memories:  a.Memories.RecentContents(10),
			})
			if err != nil {
				slog.Warn("affinity score failed",
					"agent", a.Name,
					"candidate", b.Name,
					"error", err,
				)
				ok = false
				break
			}
			row[j] = score
		}
		if ok {
			o.weights[i] = row
		}
	}
}

// Snapshot captures the current cycle state for checkpointing.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.snapshot()
}

func (o *Orchestrator) snapshot() Snapshot {
	names := make([]string, len(o.agents))
	for i, a := range o.agents {
		names[i] = a.Name
	}
	return Snapshot{
		Cycle:        o.cycle,
		Step:         o.step,
		Weights:      o.weights,
		Matrix:       o.matrix,
		AgentNames:   names,
		Interactions: append([]Interaction(nil), o.history...),
		Trades:       o.tradeCount,
	}
}

func (o *Orchestrator) summary() *Summary {
	return &Summary{
		Steps:         min(o.step, o.cfg.TotalSteps),
		Cycles:        o.cycle,
		Conversations: len(o.history),
		Reflections:   o.reflections,
		Trades:        o.tradeCount,
		FailedTrades:  o.failedCount,
		Leaderboard:   o.Leaderboard(),
	}
}

// Agents returns the roster.
func (o *Orchestrator) Agents() []*agents.Agent {
	return o.agents
}

// CurrentStep returns the step being processed.
func (o *Orchestrator) CurrentStep() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.step
}

// CurrentCycle returns the number of completed reweighting cycles.
func (o *Orchestrator) CurrentCycle() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.cycle
}

// ActiveSessions returns the number of conversations in flight.
func (o *Orchestrator) ActiveSessions() int { return o.registry.Active() }

// History returns a copy of the interaction history.
func (o *Orchestrator) History() []Interaction {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]Interaction(nil), o.history...)
}
