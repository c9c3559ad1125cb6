package agents

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInventory_AddAndRemove(t *testing.T) {
	inv := NewInventory()

	require.NoError(t, inv.Add("herbal tea", 5, 1, 15, "market stock"))
	assert.Equal(t, 5.0, inv.Quantity("herbal tea"))
	assert.Equal(t, 15.0, inv.UnitValue("herbal tea"))
	assert.Equal(t, 1, inv.RecordCount())

	require.True(t, inv.Remove("herbal tea", 2, 3, "sold"))
	assert.Equal(t, 3.0, inv.Quantity("herbal tea"))
	assert.Equal(t, 2, inv.RecordCount())

	records := inv.Records()
	assert.Equal(t, 0, records[0].ID)
	assert.Equal(t, 1, records[1].ID)
	assert.Equal(t, ActionRemove, records[1].Action)
}

func TestInventory_RemoveInsufficientLeavesNoTrace(t *testing.T) {
	inv := NewInventory()
	require.NoError(t, inv.Add("tea", 3, 1, 10, ""))
	before := inv.RecordCount()

	assert.False(t, inv.Remove("tea", 5, 2, ""))
	assert.False(t, inv.Remove("missing", 1, 2, ""))

	assert.Equal(t, 3.0, inv.Quantity("tea"))
	assert.Equal(t, before, inv.RecordCount())
}

func TestInventory_QuantityNeverNegative(t *testing.T) {
	inv := NewInventory()
	require.Error(t, inv.Add("tea", -1, 1, 10, ""))
	assert.Equal(t, 0, inv.RecordCount())

	require.NoError(t, inv.Add("tea", 2, 1, 10, ""))
	assert.False(t, inv.Remove("tea", -1, 2, ""))

	for _, it := range inv.Items() {
		assert.GreaterOrEqual(t, it.Quantity, 0.0)
	}
}

func TestInventory_WeightedAverageRevaluation(t *testing.T) {
	inv := NewInventory()
	require.NoError(t, inv.Add("tea", 10, 1, 10, ""))
	require.NoError(t, inv.Add("tea", 10, 2, 20, ""))

	// (10×10 + 10×20) / 20 = 15
	assert.InDelta(t, 15.0, inv.UnitValue("tea"), 1e-9)
	assert.Equal(t, 20.0, inv.Quantity("tea"))
}

func TestInventory_ZeroValueAddKeepsExistingValue(t *testing.T) {
	inv := NewInventory()
	require.NoError(t, inv.Add("tea", 5, 1, 15, ""))
	require.NoError(t, inv.Add("tea", 5, 2, 0, ""))

	assert.Equal(t, 15.0, inv.UnitValue("tea"))
	assert.Equal(t, 10.0, inv.Quantity("tea"))
}

func TestInventory_CashHelpers(t *testing.T) {
	inv := NewInventory()
	require.NoError(t, inv.Credit(100, 1, "Jasmine Carter", "payment"))
	assert.Equal(t, 100.0, inv.Quantity(CashItem))
	assert.Equal(t, 1.0, inv.UnitValue(CashItem))

	require.True(t, inv.Debit(30, 2, "Rowan Greenwood", "purchase"))
	assert.Equal(t, 70.0, inv.Quantity(CashItem))
	assert.False(t, inv.Debit(1000, 3, "Rowan Greenwood", ""))
	assert.Equal(t, 70.0, inv.Quantity(CashItem))

	records := inv.Records()
	assert.Equal(t, ActionReceivePayment, records[0].Action)
	assert.Equal(t, ActionMakePayment, records[1].Action)
	assert.Equal(t, "Jasmine Carter", records[0].Counterparty)
}

func TestInventory_RecordFailure(t *testing.T) {
	inv := NewInventory()
	require.NoError(t, inv.Add("tea", 1, 1, 15, ""))
	qtyBefore := inv.Quantity("tea")

	inv.RecordFailure("tea", 4, 2, "Jasmine Carter", "insufficient stock")

	assert.Equal(t, qtyBefore, inv.Quantity("tea"))
	assert.Equal(t, 1, inv.FailureCount())

	records := inv.Records()
	last := records[len(records)-1]
	assert.Equal(t, ActionTradeFailed, last.Action)
	assert.Contains(t, last.Note, "insufficient stock")
	assert.Contains(t, last.Note, "Jasmine Carter")
}

func TestInventory_RecentlySold(t *testing.T) {
	inv := NewInventory()
	require.NoError(t, inv.Add("tea", 10, 1, 15, ""))
	require.NoError(t, inv.Add("ink", 10, 1, 3, ""))

	require.True(t, inv.Sell("tea", 2, 5, "buyer", ""))
	require.True(t, inv.Sell("ink", 1, 8, "buyer", ""))
	require.True(t, inv.Sell("tea", 1, 9, "buyer", ""))

	assert.Equal(t, []string{"tea", "ink"}, inv.RecentlySold(0))
	assert.Equal(t, []string{"ink", "tea"}, inv.RecentlySold(6))
	assert.Empty(t, inv.RecentlySold(10))
}

func TestInventory_JSONRoundTrip(t *testing.T) {
	inv := NewInventory()
	require.NoError(t, inv.Add("tea", 5, 1, 15, "stock"))
	inv.SetProductionCost("tea", 4)
	require.NoError(t, inv.Credit(100, 1, "", ""))
	require.True(t, inv.Sell("tea", 2, 3, "buyer", ""))

	data, err := json.Marshal(inv)
	require.NoError(t, err)

	restored := NewInventory()
	require.NoError(t, json.Unmarshal(data, restored))

	assert.Equal(t, inv.Quantity("tea"), restored.Quantity("tea"))
	assert.Equal(t, inv.ProductionCost("tea"), restored.ProductionCost("tea"))
	assert.Equal(t, inv.RecordCount(), restored.RecordCount())
	assert.Equal(t, inv.Records(), restored.Records())
}
