// Package agents provides the agent data model: identity, the inventory
// ledger, per-interaction working memory, and the long-term memory stream.
package agents

import (
	"fmt"
	"strings"
)

// Persona is the profile text used to parametrize generation calls. The
// simulator never interprets it.
type Persona struct {
	SelfDescription string `json:"self_description"`
	SpeechPattern   string `json:"speech_pattern"`
}

// Agent is one simulated actor. Loaded once per run, mutated throughout,
// persisted at checkpoints.
type Agent struct {
	Name      string
	Persona   Persona
	Inventory *Inventory
	Working   *WorkingMemory
	Memories  *MemoryStream
}

// New creates an agent with empty inventory and memories.
func New(name string, persona Persona) *Agent {
	return &Agent{
		Name:      name,
		Persona:   persona,
		Inventory: NewInventory(),
		Working:   NewWorkingMemory(),
		Memories:  NewMemoryStream(),
	}
}

// Cash returns the agent's current cash balance.
func (a *Agent) Cash() float64 {
	return a.Inventory.Quantity(CashItem)
}

// recallCount is how many long-term memories are surfaced per interaction.
const recallCount = 10

// Describe builds the persona description used in generation requests:
// self-description, speech pattern, recalled memories, current holdings, and
// the active conversation context. The anchor keys retrieval; recalled
// memories are cached in working memory for the rest of the interaction.
func (a *Agent) Describe(anchor string) string {
	if len(a.Working.Recalled) == 0 {
		for _, m := range a.Memories.RecentContents(recallCount) {
			a.Working.AddRecalled(m)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Self-description: %s\n", a.Persona.SelfDescription)
	fmt.Fprintf(&b, "Speech pattern: %s\n", a.Persona.SpeechPattern)
	for _, m := range a.Working.Recalled {
		fmt.Fprintf(&b, "Memory: %s\n", m)
	}
	fmt.Fprintf(&b, "\nCurrent inventory:\n%s\n", a.Inventory.Summary())
	if a.Working.Context != "" {
		fmt.Fprintf(&b, "\nConversation context: %s\n", a.Working.Context)
	}
	return b.String()
}
