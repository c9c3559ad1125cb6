// Trade extraction — turns a finished negotiation transcript into a
// structured proposal: who sells, who buys, which items at what price.
package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractRequest carries a transcript and grounding data for extraction.
type ExtractRequest struct {
	Transcript   string
	Inventories  map[string]string // Agent name -> inventory summary.
	Participants []string
}

// TradeParticipants names the two sides of an extracted trade.
type TradeParticipants struct {
	Seller string `json:"seller"`
	Buyer  string `json:"buyer"`
}

// TradeItem is one line item of an extracted trade.
type TradeItem struct {
	Name     string  `json:"item_name"`
	Quantity float64 `json:"quantity"`
	Value    float64 `json:"value"`
}

// TradeExtraction is the structured result of analyzing a transcript.
type TradeExtraction struct {
	Participants TradeParticipants `json:"participants"`
	Items        []TradeItem       `json:"items"`
}

// ExtractTrade asks the model to pull an agreed trade out of a transcript.
// A transcript with no concrete agreement yields (nil, nil).
func (c *Client) ExtractTrade(req ExtractRequest) (*TradeExtraction, error) {
	system := `You extract agreed trades from conversation transcripts.
A trade counts only if both parties clearly agreed on specific items, quantities, and a total price.

Respond ONLY with a JSON object:
{"participants": {"seller": "<name>", "buyer": "<name>"},
 "items": [{"item_name": "<name>", "quantity": <number>, "value": <unit price>}]}

"value" is the per-unit price in cash. Item names must match the seller's inventory.
If no concrete trade was agreed, respond with exactly: {}`

	var b strings.Builder
	fmt.Fprintf(&b, "Participants: %s\n\n", strings.Join(req.Participants, ", "))
	for _, name := range req.Participants {
		if inv, ok := req.Inventories[name]; ok {
			fmt.Fprintf(&b, "%s's inventory:\n%s\n\n", name, inv)
		}
	}
	b.WriteString("Transcript:\n")
	b.WriteString(req.Transcript)
	b.WriteString("\n\nExtract the agreed trade as JSON.")

	text, err := c.Complete(system, b.String(), 500)
	if err != nil {
		return nil, fmt.Errorf("extract trade: %w", err)
	}
	return parseExtraction(text), nil
}

// parseExtraction tolerates empty objects and malformed output; both
// mean "no trade" rather than an error, since a missed extraction
// should never abort a conversation.
func parseExtraction(text string) *TradeExtraction {
	obj := firstJSONObject(text)
	if obj == "" {
		return nil
	}

	var ex TradeExtraction
	if err := json.Unmarshal([]byte(obj), &ex); err != nil {
		return nil
	}
	if ex.Participants.Seller == "" || ex.Participants.Buyer == "" || len(ex.Items) == 0 {
		return nil
	}
	return &ex
}
