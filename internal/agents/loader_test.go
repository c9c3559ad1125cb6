package agents

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePopulation = `{
  "context": "a quiet market square",
  "agents": [
    {
      "name": "Rowan Greenwood",
      "persona": {
        "self_description": "Sells herbal tea.",
        "speech_pattern": "Warm and slow."
      },
      "memories": ["Sold out of chamomile last week."],
      "inventory": [
        { "item": "herbal tea", "quantity": 5, "value": 15, "cost": 4 },
        { "item": "cash", "quantity": 40, "value": 1 }
      ]
    },
    {
      "name": "Jasmine Carter",
      "persona": { "self_description": "Buys tea." },
      "inventory": [
        { "item": "cash", "quantity": 100, "value": 1 }
      ]
    }
  ]
}`

func writePopulation(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pop.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadPopulation(t *testing.T) {
	pop, err := LoadPopulation(writePopulation(t, samplePopulation))
	require.NoError(t, err)

	assert.Equal(t, "a quiet market square", pop.Context)
	require.Len(t, pop.Agents, 2)

	roster := pop.BuildAll()
	require.Len(t, roster, 2)

	rowan := roster[0]
	assert.Equal(t, "Rowan Greenwood", rowan.Name)
	assert.Equal(t, 5.0, rowan.Inventory.Quantity("herbal tea"))
	assert.Equal(t, 4.0, rowan.Inventory.ProductionCost("herbal tea"))
	assert.Equal(t, 40.0, rowan.Cash())
	assert.Equal(t, 1, rowan.Memories.Len())

	jasmine := roster[1]
	assert.Equal(t, 100.0, jasmine.Cash())
}

func TestLoadPopulation_RejectsTooFewAgents(t *testing.T) {
	_, err := LoadPopulation(writePopulation(t, `{"context": "x", "agents": [{"name": "Solo"}]}`))
	assert.Error(t, err)
}

func TestLoadPopulation_MissingFile(t *testing.T) {
	_, err := LoadPopulation(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestBuildAll_SkipsBadProfiles(t *testing.T) {
	body := `{
  "context": "x",
  "agents": [
    { "name": "", "inventory": [] },
    { "name": "Ok One", "inventory": [{ "item": "cash", "quantity": 10, "value": 1 }] },
    { "name": "Bad Plan", "inventory": [{ "item": "cash", "quantity": -5, "value": 1 }] }
  ]
}`
	pop, err := LoadPopulation(writePopulation(t, body))
	require.NoError(t, err)

	roster := pop.BuildAll()
	require.Len(t, roster, 1)
	assert.Equal(t, "Ok One", roster[0].Name)
}

func TestApplySetupPlan_RequiresItemName(t *testing.T) {
	a := New("Test", Persona{})
	err := ApplySetupPlan(a, []SetupItem{{Item: "", Quantity: 1}})
	assert.Error(t, err)
}
