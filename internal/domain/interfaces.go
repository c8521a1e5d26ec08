package domain

import "context"

// Sender identifies who authored a chat message.
type Sender int

const (
	SenderUser Sender = iota
	SenderAssistant
)

func (s Sender) String() string {
	switch s {
	case SenderUser:
		return "user"
	case SenderAssistant:
		return "assistant"
	default:
		return "unknown"
	}
}

// Message is a single entry of the conversation log.
type Message struct {
	Text   string
	Sender Sender
}

// Passage is a stored text fragment returned by the vector index.
type Passage struct {
	ID       string
	Text     string
	Score    float64
	Metadata map[string]any
}

// IndexInfo describes a remote vector index after a successful connect.
type IndexInfo struct {
	Name      string
	Dimension int
	Host      string
	Status    string
}

// Role values understood by chat-completion APIs.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one role-tagged message sent to a chat model.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Embedder converts free text into a numeric vector representation.
type Embedder interface {
	Name() string
	Embed(ctx context.Context, text string) ([]float64, error)
}

// VectorIndex is a remote index supporting similarity search over stored passages.
type VectorIndex interface {
	// Describe connects to the index and validates that it can serve queries.
	Describe(ctx context.Context) (IndexInfo, error)
	Query(ctx context.Context, vector []float64, topK int) ([]Passage, error)
}

// ChatModel produces a completion for a list of chat messages.
type ChatModel interface {
	Complete(ctx context.Context, messages []ChatMessage) (string, error)
}

// Answerer answers a natural-language question.
type Answerer interface {
	Answer(ctx context.Context, question string) (string, error)
	AnswerWithHistory(ctx context.Context, question string, history []Message) (string, error)
}
