package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"ragchat/internal/domain"
)

// OpenAIConfig holds configuration shared by the OpenAI-compatible embedder and chat model.
type OpenAIConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`

	// APIKey is resolved from APIKeyEnv at load time and never written back to disk.
	APIKey string `yaml:"-"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type   string        `yaml:"type"`
	OpenAI *OpenAIConfig `yaml:"openai,omitempty"`
}

// ChatModelConfig configures the chat-completion model.
type ChatModelConfig struct {
	Type        string        `yaml:"type"`
	OpenAI      *OpenAIConfig `yaml:"openai,omitempty"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
}

// VectorStoreConfig selects and configures the vector index implementation.
type VectorStoreConfig struct {
	Type     string          `yaml:"type"`
	Pinecone *PineconeConfig `yaml:"pinecone,omitempty"`
	Qdrant   *QdrantConfig   `yaml:"qdrant,omitempty"`
}

// PineconeConfig contains connection details for a Pinecone index.
type PineconeConfig struct {
	APIKeyEnv      string `yaml:"api_key_env"`
	EnvironmentEnv string `yaml:"environment_env"`
	IndexEnv       string `yaml:"index_env"`
	Namespace      string `yaml:"namespace"`
	TextKey        string `yaml:"text_key"`
	ControllerURL  string `yaml:"controller_url,omitempty"`
	Host           string `yaml:"host,omitempty"`
	TimeoutSecs    int    `yaml:"timeout_secs"`

	APIKey      string `yaml:"-"`
	Environment string `yaml:"-"`
	Index       string `yaml:"-"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Collection  string `yaml:"collection"`
	TextKey     string `yaml:"text_key"`
	TimeoutSecs int    `yaml:"timeout_secs"`

	APIKey string `yaml:"-"`
}

// EngineConfig tunes the answer engine and its bootstrap.
type EngineConfig struct {
	TopK           int    `yaml:"top_k"`
	LazyInit       bool   `yaml:"lazy_init"`
	IncludeHistory bool   `yaml:"include_history"`
	SystemPrompt   string `yaml:"system_prompt,omitempty"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Embedder    EmbedderConfig    `yaml:"embedder"`
	ChatModel   ChatModelConfig   `yaml:"chat_model"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Engine      EngineConfig      `yaml:"engine"`
	Log         LogConfig         `yaml:"log"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
// Secrets are always taken from the environment, never from the file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := defaultConfig()
			cfg.resolveEnv()
			return cfg, nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(&cfg)
	cfg.resolveEnv()
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/ragchat/config.yaml.
// If neither exists, it writes defaults to ~/.config/ragchat/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	cfg.resolveEnv()
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate reports every required value that is absent as a single *domain.ConfigurationError.
func (c *AppConfig) Validate() error {
	var missing []string
	if c.Embedder.OpenAI == nil || c.Embedder.OpenAI.APIKey == "" {
		missing = append(missing, envName(c.Embedder.OpenAI))
	}
	// The chat model usually shares the embedder key; report it only when it differs.
	if c.ChatModel.OpenAI == nil || c.ChatModel.OpenAI.APIKey == "" {
		name := envName(c.ChatModel.OpenAI)
		if !contains(missing, name) {
			missing = append(missing, name)
		}
	}
	switch c.VectorStore.Type {
	case "pinecone", "":
		p := c.VectorStore.Pinecone
		if p == nil {
			p = &PineconeConfig{}
			applyPineconeDefaults(p)
		}
		if p.APIKey == "" {
			missing = append(missing, p.APIKeyEnv)
		}
		if p.Environment == "" && p.Host == "" {
			missing = append(missing, p.EnvironmentEnv)
		}
		if p.Index == "" {
			missing = append(missing, p.IndexEnv)
		}
	case "qdrant":
		q := c.VectorStore.Qdrant
		if q == nil || q.URL == "" {
			missing = append(missing, "vector_store.qdrant.url")
		}
		if q == nil || q.Collection == "" {
			missing = append(missing, "vector_store.qdrant.collection")
		}
	default:
		missing = append(missing, "vector_store.type (unknown: "+c.VectorStore.Type+")")
	}
	if len(missing) > 0 {
		return &domain.ConfigurationError{Missing: missing}
	}
	return nil
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "ragchat", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Embedder:    EmbedderConfig{Type: "openai"},
		ChatModel:   ChatModelConfig{Type: "openai"},
		VectorStore: VectorStoreConfig{Type: "pinecone"},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "openai"
	}
	if cfg.Embedder.OpenAI == nil {
		cfg.Embedder.OpenAI = &OpenAIConfig{}
	}
	applyOpenAIDefaults(cfg.Embedder.OpenAI, "text-embedding-ada-002")

	if cfg.ChatModel.Type == "" {
		cfg.ChatModel.Type = "openai"
	}
	if cfg.ChatModel.OpenAI == nil {
		cfg.ChatModel.OpenAI = &OpenAIConfig{}
	}
	applyOpenAIDefaults(cfg.ChatModel.OpenAI, "gpt-3.5-turbo")

	switch cfg.VectorStore.Type {
	case "pinecone", "":
		cfg.VectorStore.Type = "pinecone"
		if cfg.VectorStore.Pinecone == nil {
			cfg.VectorStore.Pinecone = &PineconeConfig{}
		}
		applyPineconeDefaults(cfg.VectorStore.Pinecone)
	case "qdrant":
		if cfg.VectorStore.Qdrant != nil {
			if cfg.VectorStore.Qdrant.APIKeyEnv == "" {
				cfg.VectorStore.Qdrant.APIKeyEnv = "QDRANT_API_KEY"
			}
			if cfg.VectorStore.Qdrant.TextKey == "" {
				cfg.VectorStore.Qdrant.TextKey = "text"
			}
		}
	}

	if cfg.Engine.TopK <= 0 {
		cfg.Engine.TopK = 4
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Log.File == "" {
		cfg.Log.File = "ragchat.log"
	}
}

func applyOpenAIDefaults(c *OpenAIConfig, model string) {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	if c.APIKeyEnv == "" {
		c.APIKeyEnv = "OPENAI_API_KEY"
	}
	if c.Model == "" {
		c.Model = model
	}
}

func applyPineconeDefaults(p *PineconeConfig) {
	if p.APIKeyEnv == "" {
		p.APIKeyEnv = "PINECONE_API_KEY"
	}
	if p.EnvironmentEnv == "" {
		p.EnvironmentEnv = "PINECONE_ENVIRONMENT"
	}
	if p.IndexEnv == "" {
		p.IndexEnv = "PINECONE_INDEX"
	}
	if p.TextKey == "" {
		p.TextKey = "text"
	}
}

// legacyEnv maps the env names used by earlier deployments onto the current ones.
var legacyEnv = map[string][]string{
	"PINECONE_ENVIRONMENT": {"PINECONE_ENV"},
	"PINECONE_INDEX":       {"PINECONE_INDEX_NAME"},
}

func (c *AppConfig) resolveEnv() {
	if c.Embedder.OpenAI != nil {
		c.Embedder.OpenAI.APIKey = lookupEnv(c.Embedder.OpenAI.APIKeyEnv)
	}
	if c.ChatModel.OpenAI != nil {
		c.ChatModel.OpenAI.APIKey = lookupEnv(c.ChatModel.OpenAI.APIKeyEnv)
	}
	if p := c.VectorStore.Pinecone; p != nil {
		p.APIKey = lookupEnv(p.APIKeyEnv)
		p.Environment = lookupEnv(p.EnvironmentEnv)
		p.Index = lookupEnv(p.IndexEnv)
	}
	if q := c.VectorStore.Qdrant; q != nil && q.APIKeyEnv != "" {
		q.APIKey = lookupEnv(q.APIKeyEnv)
	}
}

func lookupEnv(name string) string {
	if name == "" {
		return ""
	}
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	for _, alt := range legacyEnv[name] {
		if v := strings.TrimSpace(os.Getenv(alt)); v != "" {
			return v
		}
	}
	return ""
}

func envName(c *OpenAIConfig) string {
	if c == nil || c.APIKeyEnv == "" {
		return "OPENAI_API_KEY"
	}
	return c.APIKeyEnv
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
