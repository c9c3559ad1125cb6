package agents

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStream_RecentOrdering(t *testing.T) {
	ms := NewMemoryStream()
	ms.Remember("opened the stall", 1)
	ms.Remember("sold tea to Jasmine", 5)
	ms.Remember("restocked herbs", 3)

	recent := ms.RecentContents(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "sold tea to Jasmine", recent[0])
	assert.Equal(t, "restocked herbs", recent[1])
}

func TestMemoryStream_CapReplacesLowestImportance(t *testing.T) {
	ms := NewMemoryStream()
	for i := 0; i < MaxMemories; i++ {
		ms.RememberWeighted(fmt.Sprintf("routine %d", i), i, 0.3)
	}
	ms.RememberWeighted("trivial", MaxMemories, 0.1)
	assert.Equal(t, MaxMemories, ms.Len())

	ms.RememberWeighted("a great trade", MaxMemories+1, 0.9)
	assert.Equal(t, MaxMemories, ms.Len())
	assert.Contains(t, ms.RecentContents(1), "a great trade")
}

func TestMemoryStream_JSONRoundTrip(t *testing.T) {
	ms := NewMemoryStream()
	ms.Remember("sold tea", 2)

	data, err := json.Marshal(ms)
	require.NoError(t, err)

	restored := NewMemoryStream()
	require.NoError(t, json.Unmarshal(data, restored))
	assert.Equal(t, ms.RecentContents(5), restored.RecentContents(5))

	empty := NewMemoryStream()
	data, err = json.Marshal(empty)
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(data))
}

func TestWorkingMemory_Lifecycle(t *testing.T) {
	wm := NewWorkingMemory()
	wm.StartInteraction("sess-1", "a small farmers market")
	wm.AddTurn("Rowan Greenwood", "Care for some tea?")
	wm.AddTurn("Jasmine Carter", "How much?")
	wm.AddRecalled("sold tea yesterday")
	wm.AddRecalled("sold tea yesterday")

	assert.Equal(t, "sess-1", wm.InteractionID)
	assert.Equal(t, 2, wm.TurnCount)
	assert.Len(t, wm.Recalled, 1)
	assert.Equal(t, "[Rowan Greenwood]: Care for some tea?\n[Jasmine Carter]: How much?\n", wm.TranscriptText())

	wm.Clear()
	assert.Empty(t, wm.InteractionID)
	assert.Empty(t, wm.Transcript)
	assert.Empty(t, wm.Recalled)
	assert.Zero(t, wm.TurnCount)
}

func TestAgent_DescribeIncludesInventoryAndMemory(t *testing.T) {
	a := New("Rowan Greenwood", Persona{
		SelfDescription: "A calm herbalist who sells tea.",
		SpeechPattern:   "Speaks slowly, with warmth.",
	})
	require.NoError(t, a.Inventory.Add("herbal tea", 5, 1, 15, ""))
	a.Memories.Remember("sold tea to Jasmine", 2)

	desc := a.Describe("Jasmine approaches the stall.")
	assert.Contains(t, desc, "A calm herbalist who sells tea.")
	assert.Contains(t, desc, "herbal tea: 5")
	assert.Contains(t, desc, "sold tea to Jasmine")
	assert.Contains(t, desc, "Jasmine approaches the stall.")
}
