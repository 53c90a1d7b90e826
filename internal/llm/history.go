package llm

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleDeveloper Role = "developer"
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one role/content message.
type Turn struct {
	Role    Role   `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`
}

// History is an ordered conversation. Copies of a History never share
// storage: Clone and Turns return fresh slices, and Append never writes into
// a backing array another copy can see.
type History struct {
	turns []Turn
}

// NewHistory creates a history holding the given turns.
func NewHistory(turns ...Turn) History {
	h := History{turns: make([]Turn, len(turns))}
	copy(h.turns, turns)
	return h
}

// Append adds a turn to the end.
func (h *History) Append(t Turn) {
	next := make([]Turn, len(h.turns), len(h.turns)+1)
	copy(next, h.turns)
	h.turns = append(next, t)
}

// Pop removes and returns the last turn.
func (h *History) Pop() (Turn, bool) {
	if len(h.turns) == 0 {
		return Turn{}, false
	}
	last := h.turns[len(h.turns)-1]
	h.turns = h.turns[:len(h.turns)-1:len(h.turns)-1]
	return last, true
}

// Len returns the number of turns.
func (h History) Len() int { return len(h.turns) }

// Turns returns a copy of the turns.
func (h History) Turns() []Turn {
	out := make([]Turn, len(h.turns))
	copy(out, h.turns)
	return out
}

// Last returns the final turn.
func (h History) Last() (Turn, bool) {
	if len(h.turns) == 0 {
		return Turn{}, false
	}
	return h.turns[len(h.turns)-1], true
}

// Clone returns an independent copy.
func (h History) Clone() History {
	return NewHistory(h.turns...)
}
