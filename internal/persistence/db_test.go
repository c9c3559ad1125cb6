package persistence

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agorasim/agora/internal/agents"
	"github.com/agorasim/agora/internal/engine"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestAgentsRoundTrip(t *testing.T) {
	db := openTestDB(t)

	a := agents.New("Rowan Greenwood", agents.Persona{
		SelfDescription: "Sells herbal tea.",
		SpeechPattern:   "Warm and slow.",
	})
	require.NoError(t, a.Inventory.Add("herbal tea", 5, 1, 15, "stock"))
	a.Inventory.SetProductionCost("herbal tea", 4)
	require.NoError(t, a.Inventory.Credit(40, 1, "", ""))
	a.Memories.Remember("sold out of chamomile", 2)

	b := agents.New("Jasmine Carter", agents.Persona{SelfDescription: "Buys tea."})
	require.NoError(t, b.Inventory.Credit(100, 1, "", ""))

	has, err := db.HasAgents()
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, db.SaveAgents([]*agents.Agent{a, b}))

	has, err = db.HasAgents()
	require.NoError(t, err)
	assert.True(t, has)

	loaded, err := db.LoadAgents()
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	// Sorted by name: Jasmine first.
	assert.Equal(t, "Jasmine Carter", loaded[0].Name)
	rowan := loaded[1]
	assert.Equal(t, "Rowan Greenwood", rowan.Name)
	assert.Equal(t, "Sells herbal tea.", rowan.Persona.SelfDescription)
	assert.Equal(t, 5.0, rowan.Inventory.Quantity("herbal tea"))
	assert.Equal(t, 4.0, rowan.Inventory.ProductionCost("herbal tea"))
	assert.Equal(t, 40.0, rowan.Cash())
	assert.Equal(t, a.Inventory.RecordCount(), rowan.Inventory.RecordCount())
	assert.Equal(t, []string{"sold out of chamomile"}, rowan.Memories.RecentContents(5))
}

func TestSaveAgents_FullReplace(t *testing.T) {
	db := openTestDB(t)

	a := agents.New("A", agents.Persona{})
	b := agents.New("B", agents.Persona{})
	require.NoError(t, db.SaveAgents([]*agents.Agent{a, b}))
	require.NoError(t, db.SaveAgents([]*agents.Agent{a}))

	loaded, err := db.LoadAgents()
	require.NoError(t, err)
	assert.Len(t, loaded, 1)
}

func TestSnapshotAndMeta(t *testing.T) {
	db := openTestDB(t)

	snap := engine.Snapshot{
		Cycle:      1,
		Step:       20,
		Weights:    [][]float64{{0, 2}, {1, 0}},
		Matrix:     [][]float64{{0.2, 0.8}, {0.8, 0.2}},
		AgentNames: []string{"A", "B"},
		Interactions: []engine.Interaction{
			{Step: 3, Initiator: "A", Partner: "B", Turns: 4, TradeCount: 1},
		},
		Trades: 1,
	}
	require.NoError(t, db.SaveSnapshot(snap))

	require.NoError(t, db.SaveMeta("last_step", "20"))
	require.NoError(t, db.SaveMeta("last_step", "40"))
	v, err := db.GetMeta("last_step")
	require.NoError(t, err)
	assert.Equal(t, "40", v)

	_, err = db.GetMeta("missing")
	assert.Error(t, err)
}

func TestSaveCheckpoint(t *testing.T) {
	db := openTestDB(t)

	a := agents.New("A", agents.Persona{})
	b := agents.New("B", agents.Persona{})
	snap := engine.Snapshot{Cycle: 2, Step: 40, AgentNames: []string{"A", "B"}}

	require.NoError(t, db.SaveCheckpoint(snap, []*agents.Agent{a, b}))

	v, err := db.GetMeta("last_step")
	require.NoError(t, err)
	assert.Equal(t, "40", v)

	loaded, err := db.LoadAgents()
	require.NoError(t, err)
	assert.Len(t, loaded, 2)
}
