// Per-agent trade statistics and the network view of the chain.
package engine

import (
	"sort"

	"github.com/agorasim/agora/internal/agents"
	"github.com/agorasim/agora/internal/trade"
)

// AgentStats accumulates trade outcomes per agent.
type AgentStats struct {
	Agent      string  `json:"agent"`
	Sales      float64 `json:"sales"`      // Cash received as seller.
	Purchases  float64 `json:"purchases"`  // Cash spent as buyer.
	NetValue   float64 `json:"net_value"`  // Sales minus purchases.
	TradeCount int     `json:"trade_count"`
}

// ReflectionPayload is the event payload for a solo reflection.
type ReflectionPayload struct {
	Agent    string   `json:"agent"`
	Thoughts []string `json:"thoughts"`
}

// NetworkNode is one agent in the interaction network.
type NetworkNode struct {
	Name       string  `json:"name"`
	Cash       float64 `json:"cash"`
	TotalValue float64 `json:"total_value"`
	Sales      float64 `json:"sales"`
}

// NetworkEdge is a directed transition probability between two agents.
type NetworkEdge struct {
	From        string  `json:"from"`
	To          string  `json:"to"`
	Probability float64 `json:"probability"`
}

// NetworkData is the payload behind network update events and the
// network endpoint: the current chain plus per-agent standing.
type NetworkData struct {
	Step  int           `json:"time_step"`
	Cycle int           `json:"cycle"`
	Nodes []NetworkNode `json:"nodes"`
	Edges []NetworkEdge `json:"edges"`
}

// AgentSummary is one roster entry as served by the HTTP layer.
type AgentSummary struct {
	Name       string  `json:"name"`
	Cash       float64 `json:"cash"`
	TotalValue float64 `json:"total_value"`
	Records    int     `json:"records"`
	Memories   int     `json:"memories"`
}

// AgentDetail is one agent's full observable state: persona, holdings,
// ledger history, and recent memories.
type AgentDetail struct {
	Name      string          `json:"name"`
	Persona   agents.Persona  `json:"persona"`
	Cash      float64         `json:"cash"`
	Inventory []agents.Item   `json:"inventory"`
	Records   []agents.Record `json:"records"`
	Memories  []agents.Memory `json:"memories"`
}

// AgentSummaries returns a consistent copy of every agent's standing.
func (o *Orchestrator) AgentSummaries() []AgentSummary {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]AgentSummary, 0, len(o.agents))
	for _, a := range o.agents {
		out = append(out, AgentSummary{
			Name:       a.Name,
			Cash:       a.Cash(),
			TotalValue: a.Inventory.TotalValue(),
			Records:    a.Inventory.RecordCount(),
			Memories:   a.Memories.Len(),
		})
	}
	return out
}

// AgentDetail returns a copy of one agent's state, or false when the
// name is unknown.
func (o *Orchestrator) AgentDetail(name string) (AgentDetail, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	i, ok := o.index[name]
	if !ok {
		return AgentDetail{}, false
	}
	a := o.agents[i]
	return AgentDetail{
		Name:      a.Name,
		Persona:   a.Persona,
		Cash:      a.Cash(),
		Inventory: a.Inventory.Items(),
		Records:   a.Inventory.Records(),
		Memories:  a.Memories.Recent(20),
	}, true
}

func (o *Orchestrator) recordTrade(tr *trade.Result) {
	total := tr.Proposal.TotalValue()

	if s, ok := o.stats[tr.Proposal.Seller]; ok {
		s.Sales += total
		s.NetValue += total
		s.TradeCount++
	}
	if b, ok := o.stats[tr.Proposal.Buyer]; ok {
		b.Purchases += total
		b.NetValue -= total
		b.TradeCount++
	}
}

// Leaderboard returns per-agent stats sorted by sales, descending.
func (o *Orchestrator) Leaderboard() []AgentStats {
	o.mu.RLock()
	defer o.mu.RUnlock()
	board := make([]AgentStats, 0, len(o.stats))
	for _, s := range o.stats {
		board = append(board, *s)
	}
	sort.Slice(board, func(i, j int) bool {
		if board[i].Sales != board[j].Sales {
			return board[i].Sales > board[j].Sales
		}
		return board[i].Agent < board[j].Agent
	})
	return board
}

// Network builds the current interaction network: every agent as a
// node, every non-trivial transition probability as a directed edge.
func (o *Orchestrator) Network() NetworkData {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.network()
}

func (o *Orchestrator) network() NetworkData {
	data := NetworkData{Step: o.step, Cycle: o.cycle}
	for i, a := range o.agents {
		data.Nodes = append(data.Nodes, NetworkNode{
			Name:       a.Name,
			Cash:       a.Cash(),
			TotalValue: a.Inventory.TotalValue(),
			Sales:      o.stats[a.Name].Sales,
		})
		for j, b := range o.agents {
			if i == j || o.matrix[i][j] <= 0 {
				continue
			}
			data.Edges = append(data.Edges, NetworkEdge{
				From:        a.Name,
				To:          b.Name,
				Probability: o.matrix[i][j],
			})
		}
	}
	return data
}
