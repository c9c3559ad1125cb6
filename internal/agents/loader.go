// Population loading — agents are seeded from a structured JSON file. The
// inventory setup is a data plan applied by a fixed interpreter, never
// executable configuration.
package agents

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
)

// SetupItem is one entry of an inventory seeding plan.
type SetupItem struct {
	Item     string  `json:"item"`
	Quantity float64 `json:"quantity"`
	Step     int     `json:"step"`
	Value    float64 `json:"value"`
	Cost     float64 `json:"cost,omitempty"` // production cost per unit
	Note     string  `json:"note,omitempty"`
}

// Profile describes one agent in a population file.
type Profile struct {
	Name      string      `json:"name"`
	Persona   Persona     `json:"persona"`
	Memories  []string    `json:"memories,omitempty"`
	Inventory []SetupItem `json:"inventory"`
}

// Population is a parsed population file.
type Population struct {
	Context string    `json:"context"`
	Agents  []Profile `json:"agents"`
}

// LoadPopulation parses a population file.
func LoadPopulation(path string) (*Population, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read population file: %w", err)
	}
	var pop Population
	if err := json.Unmarshal(data, &pop); err != nil {
		return nil, fmt.Errorf("parse population file: %w", err)
	}
	if len(pop.Agents) < 2 {
		return nil, fmt.Errorf("population %q has %d agents, need at least 2", path, len(pop.Agents))
	}
	return &pop, nil
}

// Build constructs the agent described by a profile, seeding memories and
// applying the inventory setup plan.
func (p Profile) Build() (*Agent, error) {
	if p.Name == "" {
		return nil, fmt.Errorf("profile missing name")
	}
	a := New(p.Name, p.Persona)
	for _, m := range p.Memories {
		a.Memories.Remember(m, 0)
	}
	if err := ApplySetupPlan(a, p.Inventory); err != nil {
		return nil, fmt.Errorf("seed inventory for %s: %w", p.Name, err)
	}
	return a, nil
}

// BuildAll constructs every agent in the population. Profiles that fail to
// build are skipped with a log line rather than aborting the load.
func (pop *Population) BuildAll() []*Agent {
	out := make([]*Agent, 0, len(pop.Agents))
	for _, p := range pop.Agents {
		a, err := p.Build()
		if err != nil {
			slog.Error("skipping agent profile", "name", p.Name, "error", err)
			continue
		}
		slog.Info("loaded agent", "name", a.Name, "items", len(a.Inventory.Items()), "cash", a.Cash())
		out = append(out, a)
	}
	return out
}

// ApplySetupPlan seeds an inventory from a structured plan. Each entry is
// applied through the ledger so seeding leaves the same audit trail as any
// other mutation.
func ApplySetupPlan(a *Agent, plan []SetupItem) error {
	for _, s := range plan {
		if s.Item == "" {
			return fmt.Errorf("setup entry missing item name")
		}
		if err := a.Inventory.Add(s.Item, s.Quantity, s.Step, s.Value, s.Note); err != nil {
			return err
		}
		if s.Cost > 0 {
			a.Inventory.SetProductionCost(s.Item, s.Cost)
		}
	}
	return nil
}
