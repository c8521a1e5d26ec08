// Package conversation holds the message log and the submit/answer state machine
// behind the chat view. It has no UI dependency; callers serialise access.
package conversation

import (
	"strings"

	"ragchat/internal/domain"
)

// State is the conversation's position in a request/response cycle.
type State int

const (
	Idle State = iota
	AwaitingResponse
)

func (s State) String() string {
	if s == AwaitingResponse {
		return "awaiting-response"
	}
	return "idle"
}

// Conversation is an append-only message log with at most one question in flight.
// It is not safe for concurrent use.
type Conversation struct {
	messages []domain.Message
	state    State
	// failed marks assistant replies that are fallbacks, by log index.
	failed map[int]bool
}

func New() *Conversation {
	return &Conversation{failed: make(map[int]bool)}
}

func (c *Conversation) State() State { return c.state }

// Submit appends the user's message and moves to AwaitingResponse.
// Blank input, or any input while a question is pending, is ignored and ok is false.
func (c *Conversation) Submit(input string) (question string, ok bool) {
	if c.state != Idle || strings.TrimSpace(input) == "" {
		return "", false
	}
	c.messages = append(c.messages, domain.Message{Text: input, Sender: domain.SenderUser})
	c.state = AwaitingResponse
	return input, true
}

// Resolve appends the assistant's answer. It is a no-op unless a question is pending.
func (c *Conversation) Resolve(answer string) bool {
	if c.state != AwaitingResponse {
		return false
	}
	c.messages = append(c.messages, domain.Message{Text: answer, Sender: domain.SenderAssistant})
	c.state = Idle
	return true
}

// Reject appends domain.FallbackReply in place of an answer. The error itself is not shown.
func (c *Conversation) Reject(err error) bool {
	if c.state != AwaitingResponse {
		return false
	}
	c.failed[len(c.messages)] = true
	c.messages = append(c.messages, domain.Message{Text: domain.FallbackReply, Sender: domain.SenderAssistant})
	c.state = Idle
	return true
}

// Messages returns a copy of the log in display order.
func (c *Conversation) Messages() []domain.Message {
	out := make([]domain.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

func (c *Conversation) Len() int { return len(c.messages) }

// History returns completed exchanges whose answer succeeded, oldest first.
// The pending question and failed exchanges are left out.
func (c *Conversation) History() []domain.Message {
	var out []domain.Message
	for i := 0; i+1 < len(c.messages); i += 2 {
		if c.failed[i+1] {
			continue
		}
		out = append(out, c.messages[i], c.messages[i+1])
	}
	return out
}

// Reset clears the log. It is refused while a question is pending.
func (c *Conversation) Reset() bool {
	if c.state != Idle {
		return false
	}
	c.messages = nil
	c.failed = make(map[int]bool)
	return true
}
