package service

import (
	"context"
	"strings"
	"time"

	"ragchat/internal/domain"
	"ragchat/internal/log"
)

// DefaultSystemPrompt instructs the chat model to answer from the retrieved context only.
const DefaultSystemPrompt = "Use the following pieces of context to answer the user's question.\n" +
	"If you don't know the answer, just say that you don't know, don't try to make up an answer."

// Components are the three remote collaborators an Engine is built from.
type Components struct {
	Embedder domain.Embedder
	Index    domain.VectorIndex
	Chat     domain.ChatModel
}

// EngineOptions tune prompt construction and retrieval.
type EngineOptions struct {
	TopK           int
	SystemPrompt   string
	IncludeHistory bool
}

// Engine is the answer-engine handle. It is immutable once built and safe for concurrent use.
type Engine struct {
	embedder       domain.Embedder
	index          domain.VectorIndex
	chat           domain.ChatModel
	info           domain.IndexInfo
	topK           int
	systemPrompt   string
	includeHistory bool
}

// NewEngine builds an Engine. Bootstrap is the usual caller.
func NewEngine(c Components, info domain.IndexInfo, opts EngineOptions) *Engine {
	if opts.TopK <= 0 {
		opts.TopK = 4
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = DefaultSystemPrompt
	}
	return &Engine{
		embedder:       c.Embedder,
		index:          c.Index,
		chat:           c.Chat,
		info:           info,
		topK:           opts.TopK,
		systemPrompt:   opts.SystemPrompt,
		includeHistory: opts.IncludeHistory,
	}
}

// Index reports the vector index the engine was bound to at bootstrap.
func (e *Engine) Index() domain.IndexInfo { return e.info }

// Answer retrieves context for question and returns the chat model's reply verbatim.
// Any failure is returned as *domain.UpstreamError; nothing is retried.
func (e *Engine) Answer(ctx context.Context, question string) (string, error) {
	return e.AnswerWithHistory(ctx, question, nil)
}

// AnswerWithHistory is Answer with prior turns passed to the chat model.
// History is ignored unless the engine was built with IncludeHistory.
func (e *Engine) AnswerWithHistory(ctx context.Context, question string, history []domain.Message) (string, error) {
	start := time.Now()

	// 1. Embed the question
	vec, err := e.embedder.Embed(ctx, question)
	if err != nil {
		return "", &domain.UpstreamError{Stage: domain.StageEmbed, Err: err}
	}
	embedded := time.Now()

	// 2. Retrieve nearest passages
	passages, err := e.index.Query(ctx, vec, e.topK)
	if err != nil {
		return "", &domain.UpstreamError{Stage: domain.StageRetrieve, Err: err}
	}
	retrieved := time.Now()

	// 3. Complete
	if !e.includeHistory {
		history = nil
	}
	messages := e.buildMessages(question, passages, history)
	answer, err := e.chat.Complete(ctx, messages)
	if err != nil {
		return "", &domain.UpstreamError{Stage: domain.StageComplete, Err: err}
	}

	log.Infow("question answered",
		"passages", len(passages),
		"history", len(history),
		"embed_ms", embedded.Sub(start).Milliseconds(),
		"retrieve_ms", retrieved.Sub(embedded).Milliseconds(),
		"complete_ms", time.Since(retrieved).Milliseconds(),
	)
	return answer, nil
}

func (e *Engine) buildMessages(question string, passages []domain.Passage, history []domain.Message) []domain.ChatMessage {
	msgs := make([]domain.ChatMessage, 0, len(history)+2)
	msgs = append(msgs, domain.ChatMessage{Role: domain.RoleSystem, Content: e.buildSystemMessage(passages)})
	for _, m := range history {
		role := domain.RoleUser
		if m.Sender == domain.SenderAssistant {
			role = domain.RoleAssistant
		}
		msgs = append(msgs, domain.ChatMessage{Role: role, Content: m.Text})
	}
	msgs = append(msgs, domain.ChatMessage{Role: domain.RoleUser, Content: question})
	return msgs
}

func (e *Engine) buildSystemMessage(passages []domain.Passage) string {
	var sb strings.Builder
	sb.WriteString(e.systemPrompt)
	sb.WriteString("\n----------------\n")
	for i, p := range passages {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(p.Text)
	}
	return sb.String()
}
