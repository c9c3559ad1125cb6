// Dialogue turn generation. Each call produces one utterance for the
// speaking agent, plus flags for trade intent and conversation end.
package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// TurnResult is one generated dialogue turn.
type TurnResult struct {
	Utterance   string // What the agent says this turn.
	TradeIntent bool   // The agents appear to have agreed on a trade.
	End         bool   // The speaker wants to end the conversation.
}

// UtteranceRequest carries everything the model needs to speak one turn.
type UtteranceRequest struct {
	AgentDesc  string // Full agent description: persona, memories, inventory.
	Transcript string // Conversation so far, "[name]: text" per line.
	Context    string // Shared scene context, e.g. "a small farmers market".
	Speaker    string // Name of the agent speaking this turn.
}

// rawTurn accepts the key variants models actually emit for the
// trade and end flags.
type rawTurn struct {
	Utterance string `json:"utterance"`
	Sales     *bool  `json:"sales"`
	Trade     *bool  `json:"trade"`
	SalesDone *bool  `json:"sales_done"`
	Ended     *bool  `json:"ended"`
	End       *bool  `json:"end"`
}

// Utterance generates the next dialogue turn for req.Speaker.
func (c *Client) Utterance(req UtteranceRequest) (TurnResult, error) {
	system := fmt.Sprintf(
		`You are roleplaying as %s in a conversation. Stay in character.

%s

Respond ONLY with a JSON object:
- "utterance": what you say next (one or two sentences, in character)
- "sales": true if you and the other party have just agreed on a concrete trade (items, quantities, price), false otherwise
- "ended": true if the conversation has reached a natural close, false otherwise`,
		req.Speaker, req.AgentDesc,
	)

	var b strings.Builder
	fmt.Fprintf(&b, "Setting: %s\n\n", req.Context)
	if req.Transcript == "" {
		b.WriteString("The conversation is just beginning. You speak first.\n")
	} else {
		b.WriteString("Conversation so far:\n")
		b.WriteString(req.Transcript)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\nWhat does %s say next? Respond with the JSON object only.", req.Speaker)

	text, err := c.Complete(system, b.String(), 400)
	if err != nil {
		return TurnResult{}, fmt.Errorf("utterance for %s: %w", req.Speaker, err)
	}
	return parseTurn(text), nil
}

// parseTurn extracts a TurnResult from raw model output. When no JSON
// object can be recovered, the whole response is treated as the
// utterance so a malformed reply never silences the agent.
func parseTurn(text string) TurnResult {
	obj := firstJSONObject(text)
	if obj == "" {
		return TurnResult{Utterance: strings.TrimSpace(text)}
	}

	var raw rawTurn
	if err := json.Unmarshal([]byte(obj), &raw); err != nil || raw.Utterance == "" {
		return TurnResult{Utterance: strings.TrimSpace(text)}
	}

	return TurnResult{
		Utterance:   raw.Utterance,
		TradeIntent: anyTrue(raw.Sales, raw.Trade, raw.SalesDone),
		End:         anyTrue(raw.Ended, raw.End),
	}
}

func anyTrue(flags ...*bool) bool {
	for _, f := range flags {
		if f != nil && *f {
			return true
		}
	}
	return false
}
