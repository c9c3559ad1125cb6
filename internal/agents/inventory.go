// Inventory ledger — per-agent item holdings backed by an append-only
// mutation record. Quantities are never negative; every accepted mutation
// appends exactly one record with a strictly increasing id.
package agents

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// CashItem is the reserved inventory entry used for payments. Its unit value
// is always 1.
const CashItem = "cash"

// Action is the kind of mutation a ledger record describes.
type Action string

const (
	ActionAdd            Action = "add"
	ActionRemove         Action = "remove"
	ActionSell           Action = "sell_item"
	ActionBuy            Action = "buy_item"
	ActionReceivePayment Action = "receive_payment"
	ActionMakePayment    Action = "make_payment"
	ActionTradeFailed    Action = "trade_failed"
)

// Item is one inventory entry, unique per (agent, name).
type Item struct {
	Name           string  `json:"name"`
	Quantity       float64 `json:"quantity"`
	Value          float64 `json:"value"`                     // unit value
	ProductionCost float64 `json:"production_cost,omitempty"` // unit cost to produce
	Note           string  `json:"note,omitempty"`
	Created        int     `json:"created"`
	LastModified   int     `json:"last_modified"`
}

// TotalValue returns quantity × unit value.
func (it Item) TotalValue() float64 {
	return it.Quantity * it.Value
}

// Record is one immutable ledger entry. Records are only ever appended.
type Record struct {
	ID           int     `json:"record_id"`
	Action       Action  `json:"action"`
	Item         string  `json:"item_name"`
	Quantity     float64 `json:"quantity"`
	Step         int     `json:"time_step"`
	Counterparty string  `json:"counterparty,omitempty"`
	Note         string  `json:"note,omitempty"`
}

// Inventory holds an agent's items and the full mutation history.
type Inventory struct {
	items   map[string]*Item
	records []Record
}

// NewInventory creates an empty inventory.
func NewInventory() *Inventory {
	return &Inventory{items: make(map[string]*Item)}
}

func (inv *Inventory) appendRecord(action Action, item string, qty float64, step int, counterparty, note string) {
	inv.records = append(inv.records, Record{
		ID:           len(inv.records),
		Action:       action,
		Item:         item,
		Quantity:     qty,
		Step:         step,
		Counterparty: counterparty,
		Note:         note,
	})
}

// Add credits qty units of an item. Adding to an existing item with a
// positive unit value recomputes a quantity-weighted average value; a zero or
// unspecified value keeps the existing one. Negative quantities are rejected
// before any state changes.
func (inv *Inventory) Add(name string, qty float64, step int, value float64, note string) error {
	return inv.add(ActionAdd, name, qty, step, value, "", note)
}

func (inv *Inventory) add(action Action, name string, qty float64, step int, value float64, counterparty, note string) error {
	if qty < 0 {
		slog.Error("rejected inventory add with negative quantity",
			"item", name, "quantity", qty, "step", step)
		return fmt.Errorf("add %q: negative quantity %v", name, qty)
	}

	if it, ok := inv.items[name]; ok {
		if value > 0 {
			total := it.Quantity + qty
			if total > 0 {
				it.Value = (it.TotalValue() + qty*value) / total
			}
		}
		it.Quantity += qty
		it.LastModified = step
	} else {
		inv.items[name] = &Item{
			Name:         name,
			Quantity:     qty,
			Value:        value,
			Note:         note,
			Created:      step,
			LastModified: step,
		}
	}

	inv.appendRecord(action, name, qty, step, counterparty, note)
	return nil
}

// Remove debits qty units. It fails without mutating or recording anything
// when the item is missing, the quantity is negative, or the holdings are
// short of the requested amount.
func (inv *Inventory) Remove(name string, qty float64, step int, note string) bool {
	return inv.remove(ActionRemove, name, qty, step, "", note)
}

func (inv *Inventory) remove(action Action, name string, qty float64, step int, counterparty, note string) bool {
	if qty < 0 {
		slog.Error("rejected inventory remove with negative quantity",
			"item", name, "quantity", qty, "step", step)
		return false
	}
	it, ok := inv.items[name]
	if !ok || it.Quantity < qty {
		return false
	}

	it.Quantity -= qty
	it.LastModified = step
	inv.appendRecord(action, name, qty, step, counterparty, note)
	return true
}

// Sell records giving items to a counterparty. Payment is recorded
// separately via Credit.
func (inv *Inventory) Sell(name string, qty float64, step int, buyer, note string) bool {
	return inv.remove(ActionSell, name, qty, step, buyer, note)
}

// Buy records receiving items from a counterparty at the given unit value.
// Payment is recorded separately via Debit.
func (inv *Inventory) Buy(name string, qty float64, step int, seller string, value float64, note string) error {
	return inv.add(ActionBuy, name, qty, step, value, seller, note)
}

// Credit adds cash received from a counterparty.
func (inv *Inventory) Credit(amount float64, step int, payer, note string) error {
	return inv.add(ActionReceivePayment, CashItem, amount, step, 1, payer, note)
}

// Debit removes cash paid to a counterparty. Fails when holdings are short.
func (inv *Inventory) Debit(amount float64, step int, payee, note string) bool {
	return inv.remove(ActionMakePayment, CashItem, amount, step, payee, note)
}

// RecordFailure appends a trade_failed record without touching quantities.
func (inv *Inventory) RecordFailure(name string, qty float64, step int, counterparty, reason string) {
	var b strings.Builder
	fmt.Fprintf(&b, "Failed to trade %v %s", qty, name)
	if counterparty != "" {
		fmt.Fprintf(&b, " with %s", counterparty)
	}
	if reason != "" {
		fmt.Fprintf(&b, ": %s", reason)
	}
	inv.appendRecord(ActionTradeFailed, name, qty, step, counterparty, b.String())
}

// Quantity returns the current holdings of an item, zero when absent.
func (inv *Inventory) Quantity(name string) float64 {
	if it, ok := inv.items[name]; ok {
		return it.Quantity
	}
	return 0
}

// Has reports whether at least min units of an item are held.
func (inv *Inventory) Has(name string, min float64) bool {
	return inv.Quantity(name) >= min
}

// UnitValue returns the per-unit value of an item, zero when absent.
func (inv *Inventory) UnitValue(name string) float64 {
	if it, ok := inv.items[name]; ok {
		return it.Value
	}
	return 0
}

// ProductionCost returns the per-unit production cost of an item, zero when
// absent or never set.
func (inv *Inventory) ProductionCost(name string) float64 {
	if it, ok := inv.items[name]; ok {
		return it.ProductionCost
	}
	return 0
}

// SetProductionCost pins the per-unit production cost for an item that
// already exists.
func (inv *Inventory) SetProductionCost(name string, cost float64) {
	if it, ok := inv.items[name]; ok {
		it.ProductionCost = cost
	}
}

// TotalValue returns the combined value of all holdings.
func (inv *Inventory) TotalValue() float64 {
	var total float64
	for _, it := range inv.items {
		total += it.TotalValue()
	}
	return total
}

// Items returns a snapshot of all entries sorted by name.
func (inv *Inventory) Items() []Item {
	out := make([]Item, 0, len(inv.items))
	for _, it := range inv.items {
		out = append(out, *it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Records returns a copy of the full ledger history in append order.
func (inv *Inventory) Records() []Record {
	out := make([]Record, len(inv.records))
	copy(out, inv.records)
	return out
}

// RecordCount returns the number of ledger records.
func (inv *Inventory) RecordCount() int {
	return len(inv.records)
}

// FailureCount returns the number of trade_failed records.
func (inv *Inventory) FailureCount() int {
	n := 0
	for _, r := range inv.records {
		if r.Action == ActionTradeFailed {
			n++
		}
	}
	return n
}

// RecentlySold returns the distinct item names sold at or after sinceStep,
// in first-sold order. Used to decide what to restock during production.
func (inv *Inventory) RecentlySold(sinceStep int) []string {
	seen := make(map[string]bool)
	var names []string
	for _, r := range inv.records {
		if r.Action != ActionSell || r.Step < sinceStep || seen[r.Item] {
			continue
		}
		seen[r.Item] = true
		names = append(names, r.Item)
	}
	return names
}

// Summary renders holdings as grounding context for trade extraction, e.g.
// "herbal tea: 5 ($15.00/unit)\ncash: 150 ($1.00/unit)".
func (inv *Inventory) Summary() string {
	items := inv.Items()
	if len(items) == 0 {
		return "(nothing)"
	}
	var b strings.Builder
	for _, it := range items {
		fmt.Fprintf(&b, "%s: %v ($%.2f/unit)\n", it.Name, it.Quantity, it.Value)
	}
	return strings.TrimRight(b.String(), "\n")
}

// inventoryState is the serialized shape for persistence.
type inventoryState struct {
	Items   []Item   `json:"items"`
	Records []Record `json:"records"`
}

// MarshalJSON serializes items (sorted) and the full record history.
func (inv *Inventory) MarshalJSON() ([]byte, error) {
	return json.Marshal(inventoryState{Items: inv.Items(), Records: inv.records})
}

// UnmarshalJSON restores an inventory saved by MarshalJSON.
func (inv *Inventory) UnmarshalJSON(data []byte) error {
	var state inventoryState
	if err := json.Unmarshal(data, &state); err != nil {
		return err
	}
	inv.items = make(map[string]*Item, len(state.Items))
	for i := range state.Items {
		it := state.Items[i]
		inv.items[it.Name] = &it
	}
	inv.records = state.Records
	return nil
}
