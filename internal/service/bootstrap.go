package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"ragchat/internal/config"
	"ragchat/internal/domain"
	embopenai "ragchat/internal/embedding/openai"
	llmopenai "ragchat/internal/llm/openai"
	"ragchat/internal/log"
	"ragchat/internal/vectorstore"
)

// BuildFunc assembles the remote clients for cfg without touching the network.
type BuildFunc func(cfg *config.AppConfig) (Components, error)

// Bootstrap creates the answer engine once and hands the same handle to every caller.
type Bootstrap struct {
	cfg   *config.AppConfig
	build BuildFunc
	group singleflight.Group

	mu     sync.Mutex
	engine *Engine
}

// NewBootstrap returns a Bootstrap using the clients selected by cfg.
func NewBootstrap(cfg *config.AppConfig) *Bootstrap {
	return NewBootstrapWith(cfg, BuildComponents)
}

// NewBootstrapWith is NewBootstrap with a custom component builder.
func NewBootstrapWith(cfg *config.AppConfig, build BuildFunc) *Bootstrap {
	return &Bootstrap{cfg: cfg, build: build}
}

// Initialize validates configuration, connects to the vector index and returns the engine.
// Once an engine exists it is returned without reconnecting. Concurrent callers share a
// single in-flight attempt. A failed attempt leaves nothing behind, so a later call retries.
//
// The shared attempt ignores cancellation of the caller that started it, so a
// cancelled caller cannot fail the others that joined it.
//
// Errors are *domain.ConfigurationError or *domain.ConnectionError.
func (b *Bootstrap) Initialize(ctx context.Context) (*Engine, error) {
	if e := b.current(); e != nil {
		return e, nil
	}
	v, err, shared := b.group.Do("engine", func() (interface{}, error) {
		if e := b.current(); e != nil {
			return e, nil
		}
		e, err := b.connect(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		b.mu.Lock()
		b.engine = e
		b.mu.Unlock()
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		log.Infof("[bootstrap] joined in-flight initialization")
	}
	return v.(*Engine), nil
}

// Answerer is Initialize typed for callers that only need to ask questions.
func (b *Bootstrap) Answerer(ctx context.Context) (domain.Answerer, error) {
	e, err := b.Initialize(ctx)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Ready reports whether an engine has been created.
func (b *Bootstrap) Ready() bool { return b.current() != nil }

func (b *Bootstrap) current() *Engine {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.engine
}

func (b *Bootstrap) connect(ctx context.Context) (*Engine, error) {
	if err := b.cfg.Validate(); err != nil {
		log.Error("[bootstrap] configuration invalid", err)
		return nil, err
	}
	comps, err := b.build(b.cfg)
	if err != nil {
		log.Error("[bootstrap] building clients failed", err)
		return nil, &domain.ConfigurationError{Err: err}
	}

	target := vectorstore.Describe(b.cfg.VectorStore)
	start := time.Now()
	info, err := comps.Index.Describe(ctx)
	if err != nil {
		log.Error("[bootstrap] vector index unreachable", err)
		return nil, &domain.ConnectionError{Target: target, Err: err}
	}
	log.Infow("[bootstrap] connected",
		"target", target,
		"dimension", info.Dimension,
		"status", info.Status,
		"embedder", comps.Embedder.Name(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	return NewEngine(comps, info, EngineOptions{
		TopK:           b.cfg.Engine.TopK,
		SystemPrompt:   b.cfg.Engine.SystemPrompt,
		IncludeHistory: b.cfg.Engine.IncludeHistory,
	}), nil
}

// BuildComponents is the default BuildFunc.
func BuildComponents(cfg *config.AppConfig) (Components, error) {
	var comps Components

	switch cfg.Embedder.Type {
	case "openai", "":
		if cfg.Embedder.OpenAI == nil {
			return comps, fmt.Errorf("openai embedder config missing")
		}
		o := cfg.Embedder.OpenAI
		emb, err := embopenai.NewClient(embopenai.Config{
			BaseURL: o.BaseURL,
			APIKey:  o.APIKey,
			Model:   o.Model,
			Timeout: time.Duration(o.TimeoutSecs) * time.Second,
		})
		if err != nil {
			return comps, fmt.Errorf("openai embedder init failed: %w", err)
		}
		comps.Embedder = emb
	default:
		return comps, fmt.Errorf("unknown embedder: %s", cfg.Embedder.Type)
	}

	switch cfg.ChatModel.Type {
	case "openai", "":
		if cfg.ChatModel.OpenAI == nil {
			return comps, fmt.Errorf("openai chat model config missing")
		}
		o := cfg.ChatModel.OpenAI
		chat, err := llmopenai.NewClient(llmopenai.Config{
			BaseURL:     o.BaseURL,
			APIKey:      o.APIKey,
			Model:       o.Model,
			Temperature: cfg.ChatModel.Temperature,
			MaxTokens:   cfg.ChatModel.MaxTokens,
			Timeout:     time.Duration(o.TimeoutSecs) * time.Second,
		})
		if err != nil {
			return comps, fmt.Errorf("openai chat model init failed: %w", err)
		}
		comps.Chat = chat
	default:
		return comps, fmt.Errorf("unknown chat model: %s", cfg.ChatModel.Type)
	}

	idx, err := vectorstore.New(cfg.VectorStore)
	if err != nil {
		return comps, err
	}
	comps.Index = idx
	return comps, nil
}
