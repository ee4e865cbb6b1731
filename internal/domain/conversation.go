package domain

// StatusComplete marks a persisted turn that received an answer.
const StatusComplete = "complete"

// Turn is one completed exchange held in conversation memory.
type Turn struct {
	Input  string
	Output string
}

// Message is a single persisted conversation turn.
type Message struct {
	PK             string
	SK             string
	ConversationID string
	Text           string
	Answer         string
	Tokens         int
	Status         string
	TTL            int64
}

// Turn returns the in-memory view of a completed message.
func (m Message) Turn() Turn {
	return Turn{Input: m.Text, Output: m.Answer}
}

// ConversationMeta stores aggregate conversation state.
type ConversationMeta struct {
	PK             string
	SK             string
	ConversationID string
	LastActivity   string
	Turns          int
	TTL            int64
}
