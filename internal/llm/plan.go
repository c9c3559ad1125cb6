// Production planning — deciding how many units of a recently sold item
// an agent should produce, given cash on hand and unit cost.
package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PlanRequest carries the economics of one restocking decision.
type PlanRequest struct {
	AgentName       string
	AgentDesc       string
	Item            string
	AvailableCash   float64
	UnitCost        float64
	CurrentQuantity float64
	RecentSales     []string // Items the agent sold recently.
	MaxAffordable   float64  // floor(cash / unit cost).
}

// ProductionPlan is the model's restocking decision for one item.
type ProductionPlan struct {
	Item      string  `json:"item_name"`
	Quantity  float64 `json:"planned_quantity"`
	Reasoning string  `json:"reasoning"`
}

// PlanProduction asks how many units of req.Item the agent should make.
func (c *Client) PlanProduction(req PlanRequest) (*ProductionPlan, error) {
	system := fmt.Sprintf(
		`You plan production for %s, a seller restocking inventory.

%s

Respond ONLY with a JSON object:
{"item_name": "<name>", "planned_quantity": <number>, "reasoning": "<one sentence>"}

planned_quantity must be a whole number the agent can afford. Use 0 to skip production.`,
		req.AgentName, req.AgentDesc,
	)

	var b strings.Builder
	fmt.Fprintf(&b, "Item: %s\n", req.Item)
	fmt.Fprintf(&b, "Current stock: %.0f units\n", req.CurrentQuantity)
	fmt.Fprintf(&b, "Production cost: $%.2f per unit\n", req.UnitCost)
	fmt.Fprintf(&b, "Available cash: $%.2f (at most %.0f units affordable)\n", req.AvailableCash, req.MaxAffordable)
	if len(req.RecentSales) > 0 {
		fmt.Fprintf(&b, "Recently sold: %s\n", strings.Join(req.RecentSales, ", "))
	}
	fmt.Fprintf(&b, "\nHow many units of %s should %s produce? Respond with the JSON object only.", req.Item, req.AgentName)

	text, err := c.Complete(system, b.String(), 200)
	if err != nil {
		return nil, fmt.Errorf("production plan for %s: %w", req.Item, err)
	}

	obj := firstJSONObject(text)
	if obj == "" {
		return nil, fmt.Errorf("no JSON object in production response")
	}
	var plan ProductionPlan
	if err := json.Unmarshal([]byte(obj), &plan); err != nil {
		return nil, fmt.Errorf("parse production plan: %w", err)
	}
	if plan.Item == "" {
		plan.Item = req.Item
	}
	return &plan, nil
}
