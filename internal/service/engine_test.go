package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"ragchat/internal/domain"
)

func newTestEngine(emb *mockEmbedder, idx *mockIndex, chat *mockChat, opts EngineOptions) *Engine {
	return NewEngine(Components{Embedder: emb, Index: idx, Chat: chat}, domain.IndexInfo{Name: "docs"}, opts)
}

func TestEngine_ReturnsAnswerVerbatim(t *testing.T) {
	idx := &mockIndex{passages: []domain.Passage{{ID: "a", Text: "Refunds are accepted within 30 days."}}}
	chat := &mockChat{response: "  You can get a refund within 30 days.\n"}
	e := newTestEngine(&mockEmbedder{}, idx, chat, EngineOptions{TopK: 3})

	got, err := e.Answer(context.Background(), "What is the refund policy?")
	if err != nil {
		t.Fatalf("answer failed: %v", err)
	}
	if got != "  You can get a refund within 30 days.\n" {
		t.Errorf("answer must not be post-processed, got %q", got)
	}
	if idx.lastTopK != 3 {
		t.Errorf("expected topK 3, got %d", idx.lastTopK)
	}
}

func TestEngine_PromptCombinesPassagesAndQuestion(t *testing.T) {
	idx := &mockIndex{passages: []domain.Passage{{Text: "first passage"}, {Text: "second passage"}}}
	chat := &mockChat{response: "ok"}
	e := newTestEngine(&mockEmbedder{}, idx, chat, EngineOptions{})

	if _, err := e.Answer(context.Background(), "why?"); err != nil {
		t.Fatal(err)
	}
	if len(chat.last) != 2 {
		t.Fatalf("expected system + user message, got %d", len(chat.last))
	}
	sys := chat.last[0]
	if sys.Role != domain.RoleSystem || !strings.Contains(sys.Content, "first passage\n\nsecond passage") {
		t.Errorf("system message should carry the passages: %q", sys.Content)
	}
	if !strings.HasPrefix(sys.Content, DefaultSystemPrompt) {
		t.Error("system message should start with the default instruction")
	}
	if chat.last[1].Role != domain.RoleUser || chat.last[1].Content != "why?" {
		t.Errorf("unexpected user message: %+v", chat.last[1])
	}
}

func TestEngine_EmptyRetrievalStillCompletes(t *testing.T) {
	chat := &mockChat{response: "I don't know."}
	e := newTestEngine(&mockEmbedder{}, &mockIndex{}, chat, EngineOptions{})

	got, err := e.Answer(context.Background(), "hello")
	if err != nil {
		t.Fatalf("should not fail on empty retrieval: %v", err)
	}
	if got != "I don't know." {
		t.Errorf("unexpected answer: %s", got)
	}
}

func TestEngine_StageErrors(t *testing.T) {
	cause := errors.New("boom")
	tests := []struct {
		name  string
		emb   *mockEmbedder
		idx   *mockIndex
		chat  *mockChat
		stage domain.Stage
	}{
		{"embed", &mockEmbedder{err: cause}, &mockIndex{}, &mockChat{}, domain.StageEmbed},
		{"retrieve", &mockEmbedder{}, &mockIndex{queryErr: cause}, &mockChat{}, domain.StageRetrieve},
		{"complete", &mockEmbedder{}, &mockIndex{}, &mockChat{err: cause}, domain.StageComplete},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(tt.emb, tt.idx, tt.chat, EngineOptions{})
			_, err := e.Answer(context.Background(), "q")

			var up *domain.UpstreamError
			if !errors.As(err, &up) {
				t.Fatalf("expected UpstreamError, got %v", err)
			}
			if up.Stage != tt.stage {
				t.Errorf("expected stage %s, got %s", tt.stage, up.Stage)
			}
			if !errors.Is(err, cause) {
				t.Error("cause should be preserved")
			}
		})
	}
}

func TestEngine_SingleAttempt(t *testing.T) {
	emb := &mockEmbedder{err: errors.New("timeout")}
	e := newTestEngine(emb, &mockIndex{}, &mockChat{}, EngineOptions{})
	_, _ = e.Answer(context.Background(), "q")
	if emb.calls != 1 {
		t.Errorf("expected one embed attempt, got %d", emb.calls)
	}
}

func TestEngine_History(t *testing.T) {
	history := []domain.Message{
		{Text: "hi", Sender: domain.SenderUser},
		{Text: "hello!", Sender: domain.SenderAssistant},
	}

	chat := &mockChat{response: "ok"}
	e := newTestEngine(&mockEmbedder{}, &mockIndex{}, chat, EngineOptions{IncludeHistory: true})
	if _, err := e.AnswerWithHistory(context.Background(), "and then?", history); err != nil {
		t.Fatal(err)
	}
	if len(chat.last) != 4 {
		t.Fatalf("expected system + 2 history + user, got %d", len(chat.last))
	}
	if chat.last[1].Role != domain.RoleUser || chat.last[2].Role != domain.RoleAssistant {
		t.Errorf("history roles not mapped: %+v", chat.last)
	}

	chat = &mockChat{response: "ok"}
	e = newTestEngine(&mockEmbedder{}, &mockIndex{}, chat, EngineOptions{})
	if _, err := e.AnswerWithHistory(context.Background(), "and then?", history); err != nil {
		t.Fatal(err)
	}
	if len(chat.last) != 2 {
		t.Errorf("history should be ignored when disabled, got %d messages", len(chat.last))
	}
}
