// Package session runs two-party conversations: strict turn alternation
// with a hard turn budget, model-driven ending, trade dispatch on
// intent, and memory consolidation when the conversation closes.
package session

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/agorasim/agora/internal/agents"
	"github.com/agorasim/agora/internal/events"
	"github.com/agorasim/agora/internal/llm"
	"github.com/agorasim/agora/internal/trade"
)

// Generator produces dialogue turns and end-of-conversation summaries.
// *llm.Client satisfies this.
type Generator interface {
	Utterance(req llm.UtteranceRequest) (llm.TurnResult, error)
	SummarizeInteraction(req llm.SummaryRequest) (string, error)
}

// Session is one live conversation between two agents.
type Session struct {
	ID           string             `json:"id"`
	Participants [2]*agents.Agent   `json:"-"`
	Context      string             `json:"context"`
	Turns        []agents.Utterance `json:"turns"`
	Ended        bool               `json:"ended"`
	EndedBy      string             `json:"ended_by,omitempty"`
}

// TranscriptText renders the turns as "[speaker]: text" lines.
func (s *Session) TranscriptText() string {
	var b strings.Builder
	for _, u := range s.Turns {
		fmt.Fprintf(&b, "[%s]: %s\n", u.Speaker, u.Text)
	}
	return b.String()
}

func (s *Session) addTurn(speaker, text string) {
	s.Turns = append(s.Turns, agents.Utterance{Speaker: speaker, Text: text})
}

// Registry tracks live sessions by ID.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Add registers a live session.
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
}

// Remove drops a session from the registry.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Get returns the session with the given ID, or nil.
func (r *Registry) Get(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[id]
}

// Active returns the number of live sessions.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// UtterancePayload is the event payload for one dialogue turn.
type UtterancePayload struct {
	SessionID string `json:"session_id"`
	Speaker   string `json:"speaker"`
	Listener  string `json:"listener"`
	Text      string `json:"text"`
	Turn      int    `json:"turn"`
}

// TradePayload is the event payload for a settled trade.
type TradePayload struct {
	SessionID string       `json:"session_id"`
	Seller    string       `json:"seller"`
	Buyer     string       `json:"buyer"`
	Items     []trade.Item `json:"items"`
	Total     float64      `json:"total"`
	Detail    string       `json:"detail"`
}

// Manager runs conversations end to end.
type Manager struct {
	gen      Generator
	trades   *trade.Engine
	queue    *events.Queue
	registry *Registry
	maxTurns int
}

// NewManager wires a session manager. maxTurns is the hard budget of
// utterances per conversation, counted across both speakers.
func NewManager(gen Generator, trades *trade.Engine, queue *events.Queue, registry *Registry, maxTurns int) *Manager {
	if maxTurns < 1 {
		maxTurns = 1
	}
	return &Manager{
		gen:      gen,
		trades:   trades,
		queue:    queue,
		registry: registry,
		maxTurns: maxTurns,
	}
}

// Result reports what a finished conversation produced.
type Result struct {
	Session    *Session
	Trades     []*trade.Result
	EndedEarly bool
	TurnCount  int
}

// Run holds a complete conversation between a and b. The initiator a
// speaks first; speakers then strictly alternate. The conversation
// stops when a speaker signals the end or the turn budget runs out.
// Trade intent triggers extraction and settlement against the full
// transcript so far; a failed settlement injects a system warning that
// both agents see on subsequent turns.
func (m *Manager) Run(a, b *agents.Agent, context string, step int) *Result {
	s := &Session{
		ID:           uuid.NewString(),
		Participants: [2]*agents.Agent{a, b},
		Context:      context,
	}
	m.registry.Add(s)
	defer m.registry.Remove(s.ID)

	a.Working.StartInteraction(s.ID, context)
	b.Working.StartInteraction(s.ID, context)
	a.Working.SnapshotInventory(a.Inventory)
	b.Working.SnapshotInventory(b.Inventory)

	slog.Info("conversation started",
		"session", s.ID,
		"initiator", a.Name,
		"partner", b.Name,
		"step", step,
	)

	res := &Result{Session: s}
	for turn := 0; turn < m.maxTurns; turn++ {
		speaker, listener := a, b
		if turn%2 == 1 {
			speaker, listener = b, a
		}

		transcript := s.TranscriptText()
		anchor := fmt.Sprintf("You are talking with %s. %s", listener.Name, context)
		result, err := m.gen.Utterance(llm.UtteranceRequest{
			AgentDesc:  speaker.Describe(anchor),
			Transcript: transcript,
			Context:    context,
			Speaker:    speaker.Name,
		})
		if err != nil {
			// A dead backend ends the conversation, not the simulation.
			slog.Error("utterance generation failed",
				"session", s.ID,
				"speaker", speaker.Name,
				"error", err,
			)
			break
		}

		s.addTurn(speaker.Name, result.Utterance)
		a.Working.AddTurn(speaker.Name, result.Utterance)
		b.Working.AddTurn(speaker.Name, result.Utterance)
		res.TurnCount++

		m.queue.Emit(events.TypeUtterance, step, UtterancePayload{
			SessionID: s.ID,
			Speaker:   speaker.Name,
			Listener:  listener.Name,
			Text:      result.Utterance,
			Turn:      res.TurnCount,
		})

		if result.TradeIntent {
			m.settle(s, a, b, step, res)
		}

		if result.End {
			s.Ended = true
			s.EndedBy = speaker.Name
			res.EndedEarly = res.TurnCount < m.maxTurns
			break
		}
	}

	m.close(s, a, b, step)
	return res
}

// settle runs trade extraction and settlement over the transcript so
// far and routes the outcome back into the conversation.
func (m *Manager) settle(s *Session, a, b *agents.Agent, step int, res *Result) {
	tr, err := m.trades.AnalyzeAndExecute(a, b, s.TranscriptText(), step)
	if err != nil {
		slog.Error("trade settlement failed", "session", s.ID, "error", err)
		return
	}
	if tr == nil {
		return
	}
	res.Trades = append(res.Trades, tr)

	if tr.Executed {
		m.queue.Emit(events.TypeTrade, step, TradePayload{
			SessionID: s.ID,
			Seller:    tr.Proposal.Seller,
			Buyer:     tr.Proposal.Buyer,
			Items:     tr.Proposal.Items,
			Total:     tr.Proposal.TotalValue(),
			Detail:    tr.Detail,
		})
		return
	}

	// Both agents see the failure on their next turn.
	s.addTurn("System", tr.Warning)
	a.Working.AddTurn("System", tr.Warning)
	b.Working.AddTurn("System", tr.Warning)
	slog.Info("trade warning injected", "session", s.ID, "warning", tr.Warning)
}

// close consolidates the conversation into long-term memory for both
// participants and clears their working memory. Runs on every exit
// path, including turn-budget exhaustion and backend failure.
func (m *Manager) close(s *Session, a, b *agents.Agent, step int) {
	transcript := s.TranscriptText()
	pairs := [2][2]*agents.Agent{{a, b}, {b, a}}
	for _, pair := range pairs {
		self, other := pair[0], pair[1]

		summary := ""
		if transcript != "" {
			var err error
			summary, err = m.gen.SummarizeInteraction(llm.SummaryRequest{
				AgentDesc:  self.Describe(""),
				AgentName:  self.Name,
				Partner:    other.Name,
				Transcript: transcript,
			})
			if err != nil {
				slog.Warn("summary generation failed",
					"session", s.ID,
					"agent", self.Name,
					"error", err,
				)
				summary = ""
			}
		}
		if summary == "" {
			summary = fmt.Sprintf("I spoke with %s about %s.", other.Name, s.Context)
		}

		self.Memories.Remember(summary, step)
		self.Working.Clear()
	}

	slog.Info("conversation ended",
		"session", s.ID,
		"turns", len(s.Turns),
		"ended_by", s.EndedBy,
	)
}
