package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agorasim/agora/internal/agents"
	"github.com/agorasim/agora/internal/events"
	"github.com/agorasim/agora/internal/llm"
	"github.com/agorasim/agora/internal/markov"
)

// fakeBackend is a deterministic ModelBackend for loop tests.
type fakeBackend struct {
	turnCalls    int
	affinity     map[string]float64 // candidate -> score
	failAll      bool
	failAffinity bool
	plans        map[string]float64 // item -> planned quantity
}

func (f *fakeBackend) Utterance(req llm.UtteranceRequest) (llm.TurnResult, error) {
	if f.failAll {
		return llm.TurnResult{}, errors.New("backend down")
	}
	f.turnCalls++
	// End every conversation on the second turn.
	return llm.TurnResult{Utterance: "hello", End: f.turnCalls%2 == 0}, nil
}

func (f *fakeBackend) SummarizeInteraction(req llm.SummaryRequest) (string, error) {
	if f.failAll {
		return "", errors.New("backend down")
	}
	return "I chatted with " + req.Partner + ".", nil
}

func (f *fakeBackend) ExtractTrade(llm.ExtractRequest) (*llm.TradeExtraction, error) {
	return nil, nil
}

func (f *fakeBackend) AffinityScore(req llm.AffinityRequest) (float64, error) {
	if f.failAll || f.failAffinity {
		return 0, errors.New("backend down")
	}
	if f.affinity != nil {
		return f.affinity[req.Candidate], nil
	}
	return 1, nil
}

func (f *fakeBackend) Reflect(llm.ReflectRequest) ([]string, error) {
	if f.failAll {
		return nil, errors.New("backend down")
	}
	return []string{"a quiet thought"}, nil
}

func (f *fakeBackend) PlanProduction(req llm.PlanRequest) (*llm.ProductionPlan, error) {
	if f.failAll {
		return nil, errors.New("backend down")
	}
	qty := 0.0
	if f.plans != nil {
		qty = f.plans[req.Item]
	}
	return &llm.ProductionPlan{Item: req.Item, Quantity: qty}, nil
}

func roster(t *testing.T, names ...string) []*agents.Agent {
	t.Helper()
	out := make([]*agents.Agent, len(names))
	for i, name := range names {
		a := agents.New(name, agents.Persona{SelfDescription: name + " at the market."})
		require.NoError(t, a.Inventory.Credit(100, 0, "", "starting cash"))
		out[i] = a
	}
	return out
}

func testConfig(steps int) Config {
	return Config{
		Context:         "a small farmers market",
		TotalSteps:      steps,
		SelfProb:        0.2,
		InteractionProb: 0.8,
		MaxTurns:        4,
		WeightPeriod:    10,
		Seed:            42,
	}
}

func TestNew_RequiresTwoAgents(t *testing.T) {
	_, err := New(testConfig(10), roster(t, "Solo"), &fakeBackend{}, events.NewQueue(10))
	assert.Error(t, err)
}

func TestRun_CompletesAllSteps(t *testing.T) {
	q := events.NewQueue(1000)
	o, err := New(testConfig(30), roster(t, "A", "B", "C"), &fakeBackend{}, q)
	require.NoError(t, err)

	sum, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 30, sum.Steps)
	assert.Equal(t, 3, sum.Cycles)
	assert.Equal(t, 30, sum.Conversations+sum.Reflections)
	assert.Len(t, sum.Leaderboard, 3)
	require.NoError(t, markov.Validate(o.matrix))
}

func TestRun_BackendFailuresNeverAbort(t *testing.T) {
	q := events.NewQueue(1000)
	o, err := New(testConfig(20), roster(t, "A", "B"), &fakeBackend{failAll: true}, q)
	require.NoError(t, err)

	sum, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 20, sum.Steps)

	// Fallbacks still produce memories: reflection writes a stock thought,
	// conversations consolidate a stock summary.
	for _, a := range o.Agents() {
		assert.NotZero(t, a.Memories.Len())
	}
}

func TestRun_CheckpointFiresAtCycleBoundaries(t *testing.T) {
	q := events.NewQueue(1000)
	o, err := New(testConfig(25), roster(t, "A", "B", "C"), &fakeBackend{}, q)
	require.NoError(t, err)

	var snaps []Snapshot
	o.OnCheckpoint = func(s Snapshot) error {
		snaps = append(snaps, s)
		return nil
	}

	_, err = o.Run(context.Background())
	require.NoError(t, err)

	// WeightPeriod 10 with 25 steps -> boundaries at steps 10 and 20.
	require.Len(t, snaps, 2)
	assert.Equal(t, 1, snaps[0].Cycle)
	assert.Equal(t, 10, snaps[0].Step)
	assert.Equal(t, 2, snaps[1].Cycle)
	assert.Equal(t, 20, snaps[1].Step)
	assert.Equal(t, []string{"A", "B", "C"}, snaps[1].AgentNames)
	require.NoError(t, markov.Validate(snaps[1].Matrix))
}

func TestRun_ProductionBoundaryAlsoCheckpoints(t *testing.T) {
	q := events.NewQueue(1000)
	cfg := testConfig(10)
	cfg.ProductionPeriod = 5
	o, err := New(cfg, roster(t, "A", "B"), &fakeBackend{}, q)
	require.NoError(t, err)

	var snaps []Snapshot
	o.OnCheckpoint = func(s Snapshot) error {
		snaps = append(snaps, s)
		return nil
	}

	_, err = o.Run(context.Background())
	require.NoError(t, err)

	// Production at steps 5 and 10, reweighting only at step 10.
	require.Len(t, snaps, 2)
	assert.Equal(t, 5, snaps[0].Step)
	assert.Equal(t, 0, snaps[0].Cycle)
	assert.Equal(t, 10, snaps[1].Step)
	assert.Equal(t, 1, snaps[1].Cycle)
}

func TestRun_CheckpointErrorAborts(t *testing.T) {
	q := events.NewQueue(1000)
	o, err := New(testConfig(30), roster(t, "A", "B"), &fakeBackend{}, q)
	require.NoError(t, err)

	o.OnCheckpoint = func(Snapshot) error { return errors.New("disk full") }

	_, err = o.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestRun_ConcurrentReadersDoNotRace(t *testing.T) {
	q := events.NewQueue(1000)
	o, err := New(testConfig(200), roster(t, "A", "B", "C"), &fakeBackend{}, q)
	require.NoError(t, err)

	// Hammer every read accessor the HTTP layer uses while the run
	// loop mutates agents, stats, and the matrix.
	done := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				o.CurrentStep()
				o.CurrentCycle()
				o.AgentSummaries()
				o.AgentDetail("A")
				o.Leaderboard()
				o.Network()
				o.Snapshot()
				o.History()
			}
		}()
	}

	_, err = o.Run(context.Background())
	close(done)
	wg.Wait()
	require.NoError(t, err)
}

func TestRun_ContextCancellationStopsEarly(t *testing.T) {
	q := events.NewQueue(1000)
	o, err := New(testConfig(1000), roster(t, "A", "B"), &fakeBackend{}, q)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = o.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUpdateWeights_ScorerErrorKeepsUniformRow(t *testing.T) {
	q := events.NewQueue(1000)
	o, err := New(testConfig(10), roster(t, "A", "B", "C"), &fakeBackend{failAffinity: true}, q)
	require.NoError(t, err)

	_, err = o.Run(context.Background())
	require.NoError(t, err)

	// All rows failed, so the rebuilt matrix stays at the uniform split.
	for i := range o.matrix {
		for j := range o.matrix[i] {
			if i == j {
				assert.InDelta(t, 0.2, o.matrix[i][j], 1e-9)
			} else {
				assert.InDelta(t, 0.4, o.matrix[i][j], 1e-9)
			}
		}
	}
}

func TestUpdateWeights_SkewsMatrixTowardHighAffinity(t *testing.T) {
	q := events.NewQueue(1000)
	backend := &fakeBackend{affinity: map[string]float64{"B": 9, "C": 1}}
	o, err := New(testConfig(10), roster(t, "A", "B", "C"), backend, q)
	require.NoError(t, err)

	_, err = o.Run(context.Background())
	require.NoError(t, err)

	// Row for A: 0.8 split 9:1 between B and C.
	assert.InDelta(t, 0.72, o.matrix[0][1], 1e-9)
	assert.InDelta(t, 0.08, o.matrix[0][2], 1e-9)
	require.NoError(t, markov.Validate(o.matrix))
}

func TestProduction_RestocksSoldItems(t *testing.T) {
	q := events.NewQueue(1000)
	ags := roster(t, "A", "B")
	require.NoError(t, ags[0].Inventory.Add("herbal tea", 5, 0, 15, ""))
	ags[0].Inventory.SetProductionCost("herbal tea", 4)

	backend := &fakeBackend{plans: map[string]float64{"herbal tea": 3}}
	o, err := New(testConfig(10), ags, backend, q)
	require.NoError(t, err)

	// Simulate a sale during the cycle, then run the boundary directly.
	require.True(t, ags[0].Inventory.Sell("herbal tea", 2, 5, "B", ""))
	o.step = 10
	o.runProduction()

	// 3 produced at $4 = $12 out of the $100 stake.
	assert.Equal(t, 6.0, ags[0].Inventory.Quantity("herbal tea"))
	assert.Equal(t, 88.0, ags[0].Cash())
	assert.Equal(t, 15.0, ags[0].Inventory.UnitValue("herbal tea"))
}

func TestProduction_InsufficientFundsRecordsFailure(t *testing.T) {
	q := events.NewQueue(1000)
	ags := roster(t, "A", "B")
	require.NoError(t, ags[0].Inventory.Add("herbal tea", 5, 0, 15, ""))
	ags[0].Inventory.SetProductionCost("herbal tea", 60)

	backend := &fakeBackend{plans: map[string]float64{"herbal tea": 2}}
	o, err := New(testConfig(10), ags, backend, q)
	require.NoError(t, err)

	require.True(t, ags[0].Inventory.Sell("herbal tea", 1, 5, "B", ""))
	o.step = 10
	o.runProduction()

	// 2 units at $60 > $100 cash: nothing produced, failure on the ledger.
	assert.Equal(t, 4.0, ags[0].Inventory.Quantity("herbal tea"))
	assert.Equal(t, 100.0, ags[0].Cash())
	assert.Equal(t, 1, ags[0].Inventory.FailureCount())
}

func TestNetwork_EdgesMatchMatrix(t *testing.T) {
	q := events.NewQueue(1000)
	o, err := New(testConfig(10), roster(t, "A", "B", "C"), &fakeBackend{}, q)
	require.NoError(t, err)

	net := o.Network()
	assert.Len(t, net.Nodes, 3)
	assert.Len(t, net.Edges, 6)
	for _, e := range net.Edges {
		i, j := o.index[e.From], o.index[e.To]
		assert.Equal(t, o.matrix[i][j], e.Probability)
	}
}
