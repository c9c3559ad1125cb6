// Interaction summaries and solo reflection. Summaries become long-term
// memories when a conversation ends; reflection produces new thoughts
// from an agent's recent memory.
package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SummaryRequest asks for one participant's first-person account of a
// finished conversation.
type SummaryRequest struct {
	AgentDesc  string
	AgentName  string
	Partner    string
	Transcript string
}

// SummarizeInteraction returns a short first-person summary of the
// conversation from req.AgentName's point of view.
func (c *Client) SummarizeInteraction(req SummaryRequest) (string, error) {
	system := fmt.Sprintf(
		`You write memories for %s. Summarize the conversation below in one or
two first-person sentences from %s's perspective, noting anything that
matters later: deals made, prices discussed, promises, impressions.

%s

Respond with the summary text only, no JSON.`,
		req.AgentName, req.AgentName, req.AgentDesc,
	)

	user := fmt.Sprintf("Conversation with %s:\n%s\n\nSummarize it as a memory.", req.Partner, req.Transcript)

	text, err := c.Complete(system, user, 200)
	if err != nil {
		return "", fmt.Errorf("summarize for %s: %w", req.AgentName, err)
	}
	return strings.TrimSpace(text), nil
}

// ReflectRequest asks for new thoughts grounded in recent memories.
type ReflectRequest struct {
	AgentDesc string
	Anchor    string   // What prompted the reflection, e.g. a recent interaction.
	Memories  []string // Recent memory contents.
}

// Reflect returns 1-3 new first-person thoughts for the agent.
func (c *Client) Reflect(req ReflectRequest) ([]string, error) {
	system := fmt.Sprintf(
		`You generate inner thoughts for an agent reflecting alone.

%s

Respond ONLY with a JSON array of 1-3 strings, each a first-person thought.`,
		req.AgentDesc,
	)

	var b strings.Builder
	if req.Anchor != "" {
		fmt.Fprintf(&b, "On the agent's mind: %s\n\n", req.Anchor)
	}
	if len(req.Memories) > 0 {
		b.WriteString("Recent memories:\n")
		for _, m := range req.Memories {
			fmt.Fprintf(&b, "- %s\n", m)
		}
		b.WriteString("\n")
	}
	b.WriteString("What does the agent think about? Respond with the JSON array only.")

	text, err := c.Complete(system, b.String(), 300)
	if err != nil {
		return nil, fmt.Errorf("reflect: %w", err)
	}

	arr := firstJSONArray(text)
	if arr == "" {
		return nil, fmt.Errorf("no JSON array found in reflection response")
	}
	var thoughts []string
	if err := json.Unmarshal([]byte(arr), &thoughts); err != nil {
		return nil, fmt.Errorf("parse thoughts: %w", err)
	}

	var out []string
	for _, th := range thoughts {
		if th = strings.TrimSpace(th); th != "" {
			out = append(out, th)
		}
	}
	if len(out) > 3 {
		out = out[:3]
	}
	return out, nil
}
