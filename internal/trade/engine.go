// Package trade turns negotiation transcripts into settled ledger
// movements. Extraction is model-driven; settlement is deterministic
// and all-or-nothing per trade.
package trade

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/agorasim/agora/internal/agents"
	"github.com/agorasim/agora/internal/llm"
)

// Extractor pulls structured trade proposals out of transcripts.
// *llm.Client satisfies this.
type Extractor interface {
	ExtractTrade(req llm.ExtractRequest) (*llm.TradeExtraction, error)
}

// Engine analyzes transcripts and settles the resulting trades.
type Engine struct {
	extractor Extractor
}

// NewEngine creates a trade engine backed by the given extractor.
func NewEngine(extractor Extractor) *Engine {
	return &Engine{extractor: extractor}
}

// Item is one line of a trade proposal.
type Item struct {
	Name     string  `json:"item_name"`
	Quantity float64 `json:"quantity"`
	Value    float64 `json:"value"`
}

// Proposal is a fully resolved trade ready for settlement.
type Proposal struct {
	Seller string `json:"seller"`
	Buyer  string `json:"buyer"`
	Items  []Item `json:"items"`
	Step   int    `json:"time_step"`
}

// TotalValue is the cash the buyer owes for the whole proposal.
func (p *Proposal) TotalValue() float64 {
	total := 0.0
	for _, it := range p.Items {
		total += it.Quantity * it.Value
	}
	return total
}

// Result reports what happened when a proposal was settled.
type Result struct {
	Executed bool      `json:"executed"`
	Proposal *Proposal `json:"proposal"`
	Detail   string    `json:"detail"`
	Warning  string    `json:"warning,omitempty"`
}

// Analyze extracts a trade proposal from a finished transcript. A
// transcript with no concrete agreement returns (nil, nil); that is
// the common case and not an error.
func (e *Engine) Analyze(a, b *agents.Agent, transcript string, step int) (*Proposal, error) {
	ex, err := e.extractor.ExtractTrade(llm.ExtractRequest{
		Transcript: transcript,
		Inventories: map[string]string{
			a.Name: a.Inventory.Summary(),
			b.Name: b.Inventory.Summary(),
		},
		Participants: []string{a.Name, b.Name},
	})
	if err != nil {
		return nil, fmt.Errorf("analyze transcript: %w", err)
	}
	if ex == nil || len(ex.Items) == 0 {
		return nil, nil
	}

	seller := resolveName(ex.Participants.Seller, a.Name, b.Name)
	buyer := resolveName(ex.Participants.Buyer, a.Name, b.Name)
	if seller == "" || buyer == "" || seller == buyer {
		slog.Warn("trade participants did not resolve",
			"seller", ex.Participants.Seller,
			"buyer", ex.Participants.Buyer,
		)
		return nil, nil
	}

	p := &Proposal{Seller: seller, Buyer: buyer, Step: step}
	for _, it := range ex.Items {
		if it.Name == "" || it.Quantity <= 0 || it.Value < 0 {
			continue
		}
		p.Items = append(p.Items, Item{Name: it.Name, Quantity: it.Quantity, Value: it.Value})
	}
	if len(p.Items) == 0 {
		return nil, nil
	}
	return p, nil
}

// Execute settles a proposal against both ledgers. Validation runs
// before any mutation: the seller must hold every item and the buyer
// must hold the full cash total, otherwise neither inventory changes
// and both ledgers record the failure.
func (e *Engine) Execute(seller, buyer *agents.Agent, p *Proposal) *Result {
	total := p.TotalValue()

	// Validate against the aggregate per item: a proposal may list the
	// same item on several lines, and each line must still be covered.
	required := make(map[string]float64, len(p.Items))
	for _, it := range p.Items {
		required[it.Name] += it.Quantity
	}
	checked := make(map[string]bool, len(required))
	for _, it := range p.Items {
		if checked[it.Name] {
			continue
		}
		checked[it.Name] = true
		if !seller.Inventory.Has(it.Name, required[it.Name]) {
			return e.fail(seller, buyer, p, it,
				fmt.Sprintf("%s lacks %.0f %s (has %.0f)",
					seller.Name, required[it.Name], it.Name, seller.Inventory.Quantity(it.Name)))
		}
	}
	if buyer.Cash() < total {
		it := p.Items[0]
		return e.fail(seller, buyer, p, it,
			fmt.Sprintf("%s lacks $%.2f in cash (has $%.2f)",
				buyer.Name, total, buyer.Cash()))
	}

	// Settlement mirrors each seller debit with one buyer credit. A
	// rejected debit can only mean the ledgers desynced after
	// validation; that line is excluded on both sides so no item is
	// created out of thin air.
	settledTotal := 0.0
	for _, it := range p.Items {
		note := fmt.Sprintf("sold %.0f %s to %s", it.Quantity, it.Name, buyer.Name)
		if !seller.Inventory.Sell(it.Name, it.Quantity, p.Step, buyer.Name, note) {
			slog.Error("seller debit rejected after validation, line skipped",
				"item", it.Name,
				"quantity", it.Quantity,
				"seller", seller.Name,
			)
			continue
		}

		note = fmt.Sprintf("bought %.0f %s from %s at $%.2f/unit", it.Quantity, it.Name, seller.Name, it.Value)
		if err := buyer.Inventory.Buy(it.Name, it.Quantity, p.Step, seller.Name, it.Value, note); err != nil {
			slog.Error("trade item credit failed", "item", it.Name, "error", err)
		}
		settledTotal += it.Quantity * it.Value
	}
	total = settledTotal
	seller.Inventory.Credit(total, p.Step, buyer.Name, fmt.Sprintf("payment from %s", buyer.Name))
	buyer.Inventory.Debit(total, p.Step, seller.Name, fmt.Sprintf("payment to %s", seller.Name))

	detail := fmt.Sprintf("%s sold %s to %s for $%.2f", seller.Name, describeItems(p.Items), buyer.Name, total)
	slog.Info("trade executed",
		"seller", seller.Name,
		"buyer", buyer.Name,
		"total", total,
		"step", p.Step,
	)
	return &Result{Executed: true, Proposal: p, Detail: detail}
}

func (e *Engine) fail(seller, buyer *agents.Agent, p *Proposal, it Item, reason string) *Result {
	seller.Inventory.RecordFailure(it.Name, it.Quantity, p.Step, buyer.Name, reason)
	buyer.Inventory.RecordFailure(it.Name, it.Quantity, p.Step, seller.Name, reason)

	warning := fmt.Sprintf("The trade could not be completed: %s.", reason)
	slog.Warn("trade failed",
		"seller", seller.Name,
		"buyer", buyer.Name,
		"reason", reason,
		"step", p.Step,
	)
	return &Result{Executed: false, Proposal: p, Detail: reason, Warning: warning}
}

// AnalyzeAndExecute is the common path after a conversation signals
// trade intent: extract, then settle if a proposal came back.
func (e *Engine) AnalyzeAndExecute(a, b *agents.Agent, transcript string, step int) (*Result, error) {
	p, err := e.Analyze(a, b, transcript, step)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, nil
	}

	seller, buyer := a, b
	if p.Seller == b.Name {
		seller, buyer = b, a
	}
	return e.Execute(seller, buyer, p), nil
}

// resolveName maps a possibly loose model-reported name onto one of the
// two participants. Matching is case-insensitive and tolerates the
// model using only part of a name.
func resolveName(reported, nameA, nameB string) string {
	r := strings.ToLower(strings.TrimSpace(reported))
	if r == "" {
		return ""
	}
	la, lb := strings.ToLower(nameA), strings.ToLower(nameB)
	switch {
	case r == la, strings.Contains(la, r), strings.Contains(r, la):
		return nameA
	case r == lb, strings.Contains(lb, r), strings.Contains(r, lb):
		return nameB
	}
	return ""
}

func describeItems(items []Item) string {
	parts := make([]string, len(items))
	for i, it := range items {
		parts[i] = fmt.Sprintf("%.0f %s", it.Quantity, it.Name)
	}
	return strings.Join(parts, ", ")
}
