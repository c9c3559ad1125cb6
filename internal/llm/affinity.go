// Affinity scoring — how much one agent wants to talk to another,
// used to reweight the transition matrix between cycles.
package llm

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// AffinityRequest asks for one agent's interest in one candidate partner.
type AffinityRequest struct {
	AgentDesc string   // The judging agent's description.
	Candidate string   // Name of the potential conversation partner.
	Memories  []string // The judging agent's recent memories.
}

// AffinityScore returns a non-negative interest score. Higher means the
// agent is more drawn to talk to the candidate.
func (c *Client) AffinityScore(req AffinityRequest) (float64, error) {
	system := fmt.Sprintf(
		`You judge how interested an agent is in talking to someone.

The agent:
%s

Respond ONLY with a JSON object: {"score": <number between 0 and 10>}.
0 means no interest at all, 10 means eager to talk right now.`,
		req.AgentDesc,
	)

	var b strings.Builder
	fmt.Fprintf(&b, "Candidate partner: %s\n", req.Candidate)
	if len(req.Memories) > 0 {
		b.WriteString("\nThe agent's recent memories:\n")
		for _, m := range req.Memories {
			fmt.Fprintf(&b, "- %s\n", m)
		}
	}
	fmt.Fprintf(&b, "\nHow interested is the agent in talking to %s? Respond with the JSON object only.", req.Candidate)

	text, err := c.Complete(system, b.String(), 100)
	if err != nil {
		return 0, fmt.Errorf("affinity score for %s: %w", req.Candidate, err)
	}

	score, err := parseScore(text)
	if err != nil {
		return 0, fmt.Errorf("affinity score for %s: %w", req.Candidate, err)
	}
	return score, nil
}

func parseScore(text string) (float64, error) {
	if obj := firstJSONObject(text); obj != "" {
		var payload struct {
			Score float64 `json:"score"`
		}
		if err := json.Unmarshal([]byte(obj), &payload); err == nil {
			return clampScore(payload.Score), nil
		}
	}

	// Some responses are just a bare number.
	if v, err := strconv.ParseFloat(strings.TrimSpace(text), 64); err == nil {
		return clampScore(v), nil
	}
	return 0, fmt.Errorf("no score found in response")
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
