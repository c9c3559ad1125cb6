// Working memory — per-interaction scratch state: the active transcript,
// recalled long-term memories, and an inventory snapshot. Discarded when the
// interaction ends.
package agents

import (
	"fmt"
	"strings"
)

// Utterance is one turn of dialogue.
type Utterance struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// WorkingMemory holds the ephemeral state of one conversation.
type WorkingMemory struct {
	InteractionID string
	Context       string
	Transcript    []Utterance
	Recalled      []string
	Snapshot      map[string]float64 // item name → quantity at interaction start
	TurnCount     int
}

// NewWorkingMemory creates an empty working memory.
func NewWorkingMemory() *WorkingMemory {
	return &WorkingMemory{Snapshot: make(map[string]float64)}
}

// StartInteraction resets the working memory for a new conversation.
func (w *WorkingMemory) StartInteraction(id, context string) {
	w.Clear()
	w.InteractionID = id
	w.Context = context
}

// AddTurn appends one turn to the active transcript.
func (w *WorkingMemory) AddTurn(speaker, text string) {
	w.Transcript = append(w.Transcript, Utterance{Speaker: speaker, Text: text})
	w.TurnCount++
}

// AddRecalled stores a recalled memory, skipping duplicates.
func (w *WorkingMemory) AddRecalled(content string) {
	for _, m := range w.Recalled {
		if m == content {
			return
		}
	}
	w.Recalled = append(w.Recalled, content)
}

// SnapshotInventory records the holdings at interaction start.
func (w *WorkingMemory) SnapshotInventory(inv *Inventory) {
	w.Snapshot = make(map[string]float64)
	for _, it := range inv.Items() {
		w.Snapshot[it.Name] = it.Quantity
	}
}

// TranscriptText renders the transcript as "[speaker]: text" lines.
func (w *WorkingMemory) TranscriptText() string {
	var b strings.Builder
	for _, u := range w.Transcript {
		fmt.Fprintf(&b, "[%s]: %s\n", u.Speaker, u.Text)
	}
	return b.String()
}

// Clear discards all interaction state.
func (w *WorkingMemory) Clear() {
	w.InteractionID = ""
	w.Context = ""
	w.Transcript = nil
	w.Recalled = nil
	w.Snapshot = make(map[string]float64)
	w.TurnCount = 0
}
