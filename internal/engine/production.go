package engine

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/agorasim/agora/internal/agents"
	"github.com/agorasim/agora/internal/llm"
)

// runProduction lets every agent restock items sold during the last
// production period. The model decides quantities; settlement is
// deterministic. Insufficient funds leaves the inventory untouched and
// records the failure on the ledger.
func (o *Orchestrator) runProduction() {
	since := o.step - o.cfg.ProductionPeriod
	if since < 0 {
		since = 0
	}

	for _, a := range o.agents {
		sold := a.Inventory.RecentlySold(since)
		for _, item := range sold {
			o.produceItem(a, item, sold)
		}
	}
}

func (o *Orchestrator) produceItem(a *agents.Agent, item string, recentSales []string) {
	cost := a.Inventory.ProductionCost(item)
	if cost <= 0 {
		return
	}
	cash := a.Cash()
	maxAffordable := math.Floor(cash / cost)

	plan, err := o.backend.PlanProduction(llm.PlanRequest{
		AgentName:       a.Name,
		AgentDesc:       a.Describe(""),
		Item:            item,
		AvailableCash:   cash,
		UnitCost:        cost,
		CurrentQuantity: a.Inventory.Quantity(item),
		RecentSales:     recentSales,
		MaxAffordable:   maxAffordable,
	})
	if err != nil {
		slog.Warn("production planning failed", "agent", a.Name, "item", item, "error", err)
		return
	}

	qty := math.Floor(plan.Quantity)
	if qty <= 0 {
		return
	}

	total := qty * cost
	if !a.Inventory.Debit(total, o.step, "", fmt.Sprintf("production of %.0f %s", qty, item)) {
		a.Inventory.RecordFailure(item, qty, o.step, "",
			fmt.Sprintf("insufficient funds for production ($%.2f needed, $%.2f held)", total, cash))
		return
	}

	value := a.Inventory.UnitValue(item)
	if err := a.Inventory.Add(item, qty, o.step, value, "produced"); err != nil {
		slog.Error("production add failed", "agent", a.Name, "item", item, "error", err)
		return
	}

	a.Memories.Remember(
		fmt.Sprintf("I produced %.0f %s for $%.2f.", qty, item, total),
		o.step,
	)
	slog.Info("production",
		"agent", a.Name,
		"item", item,
		"quantity", qty,
		"cost", total,
		"reasoning", plan.Reasoning,
	)
}
