// Long-term memory stream — interaction summaries, reflections, and seeded
// biography entries. Bounded; when full the lowest-importance entry is
// dropped to make room.
package agents

import (
	"encoding/json"
	"sort"
)

// MaxMemories bounds the stream size per agent.
const MaxMemories = 200

// Memory is one long-term memory entry.
type Memory struct {
	Step       int     `json:"step"`
	Content    string  `json:"content"`
	Importance float64 `json:"importance"` // 0.0–1.0
}

// MemoryStream is an agent's long-term memory.
type MemoryStream struct {
	entries []Memory
}

// NewMemoryStream creates an empty stream.
func NewMemoryStream() *MemoryStream {
	return &MemoryStream{}
}

// Remember appends a memory with default importance.
func (ms *MemoryStream) Remember(content string, step int) {
	ms.RememberWeighted(content, step, 0.5)
}

// RememberWeighted appends a memory. When the stream is full, the new entry
// replaces the lowest-importance one only if it outranks it.
func (ms *MemoryStream) RememberWeighted(content string, step int, importance float64) {
	m := Memory{Step: step, Content: content, Importance: importance}

	if len(ms.entries) < MaxMemories {
		ms.entries = append(ms.entries, m)
		return
	}

	minIdx := 0
	for i := 1; i < len(ms.entries); i++ {
		if ms.entries[i].Importance < ms.entries[minIdx].Importance {
			minIdx = i
		}
	}
	if m.Importance > ms.entries[minIdx].Importance {
		ms.entries[minIdx] = m
	}
}

// Recent returns up to count entries ordered by step descending.
func (ms *MemoryStream) Recent(count int) []Memory {
	if len(ms.entries) == 0 {
		return nil
	}

	sorted := make([]Memory, len(ms.entries))
	copy(sorted, ms.entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Step > sorted[j].Step
	})

	if count > len(sorted) {
		count = len(sorted)
	}
	return sorted[:count]
}

// RecentContents returns the content strings of Recent(count).
func (ms *MemoryStream) RecentContents(count int) []string {
	recent := ms.Recent(count)
	out := make([]string, len(recent))
	for i, m := range recent {
		out[i] = m.Content
	}
	return out
}

// Len returns the number of stored memories.
func (ms *MemoryStream) Len() int {
	return len(ms.entries)
}

// MarshalJSON serializes the entries in insertion order.
func (ms *MemoryStream) MarshalJSON() ([]byte, error) {
	if ms.entries == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(ms.entries)
}

// UnmarshalJSON restores a stream saved by MarshalJSON.
func (ms *MemoryStream) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &ms.entries)
}
