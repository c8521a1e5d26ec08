package service

import (
	"context"
	"sync"
	"sync/atomic"

	"ragchat/internal/config"
	"ragchat/internal/domain"
)

// mockEmbedder implements domain.Embedder for testing
type mockEmbedder struct {
	err   error
	calls int32
}

func (m *mockEmbedder) Name() string { return "mock" }

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	atomic.AddInt32(&m.calls, 1)
	if m.err != nil {
		return nil, m.err
	}
	return []float64{0.1, 0.2, 0.3}, nil
}

// mockIndex implements domain.VectorIndex for testing
type mockIndex struct {
	passages     []domain.Passage
	describeErr  error
	queryErr     error
	describes    int32
	block        chan struct{}
	mu           sync.Mutex
	lastTopK     int
	queriedCalls int
}

func (m *mockIndex) Describe(ctx context.Context) (domain.IndexInfo, error) {
	atomic.AddInt32(&m.describes, 1)
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return domain.IndexInfo{}, ctx.Err()
		}
	}
	if m.describeErr != nil {
		return domain.IndexInfo{}, m.describeErr
	}
	return domain.IndexInfo{Name: "docs", Dimension: 3, Status: "Ready"}, nil
}

func (m *mockIndex) Query(ctx context.Context, vector []float64, topK int) ([]domain.Passage, error) {
	m.mu.Lock()
	m.lastTopK = topK
	m.queriedCalls++
	m.mu.Unlock()
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	return m.passages, nil
}

// mockChat implements domain.ChatModel for testing
type mockChat struct {
	response string
	err      error
	mu       sync.Mutex
	last     []domain.ChatMessage
}

func (m *mockChat) Complete(ctx context.Context, messages []domain.ChatMessage) (string, error) {
	m.mu.Lock()
	m.last = messages
	m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	return m.response, nil
}

func validConfig() *config.AppConfig {
	return &config.AppConfig{
		Embedder:  config.EmbedderConfig{Type: "openai", OpenAI: &config.OpenAIConfig{APIKeyEnv: "OPENAI_API_KEY", APIKey: "sk"}},
		ChatModel: config.ChatModelConfig{Type: "openai", OpenAI: &config.OpenAIConfig{APIKeyEnv: "OPENAI_API_KEY", APIKey: "sk"}},
		VectorStore: config.VectorStoreConfig{Type: "pinecone", Pinecone: &config.PineconeConfig{
			APIKeyEnv: "PINECONE_API_KEY", EnvironmentEnv: "PINECONE_ENVIRONMENT", IndexEnv: "PINECONE_INDEX",
			APIKey: "pc", Environment: "gcp", Index: "docs", TextKey: "text",
		}},
		Engine: config.EngineConfig{TopK: 4},
	}
}
