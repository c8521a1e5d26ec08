package vectorstore

import (
	"fmt"
	"time"

	"ragchat/internal/config"
	"ragchat/internal/domain"
	"ragchat/internal/vectorstore/pinecone"
	"ragchat/internal/vectorstore/qdrant"
)

// New builds the vector index client selected by cfg. It does not touch the network.
func New(cfg config.VectorStoreConfig) (domain.VectorIndex, error) {
	switch cfg.Type {
	case "pinecone", "":
		if cfg.Pinecone == nil {
			return nil, fmt.Errorf("pinecone config missing")
		}
		p := cfg.Pinecone
		return pinecone.NewIndex(pinecone.Config{
			APIKey:        p.APIKey,
			Environment:   p.Environment,
			Index:         p.Index,
			Namespace:     p.Namespace,
			TextKey:       p.TextKey,
			ControllerURL: p.ControllerURL,
			Host:          p.Host,
			Timeout:       time.Duration(p.TimeoutSecs) * time.Second,
		}), nil
	case "qdrant":
		if cfg.Qdrant == nil {
			return nil, fmt.Errorf("qdrant config missing")
		}
		q := cfg.Qdrant
		return qdrant.NewStorage(qdrant.Config{
			URL:        q.URL,
			APIKey:     q.APIKey,
			Collection: q.Collection,
			TextKey:    q.TextKey,
			Timeout:    time.Duration(q.TimeoutSecs) * time.Second,
		}), nil
	default:
		return nil, fmt.Errorf("unknown vector store: %s", cfg.Type)
	}
}

// Describe names the index for error messages and logs.
func Describe(cfg config.VectorStoreConfig) string {
	switch cfg.Type {
	case "qdrant":
		if cfg.Qdrant != nil {
			return "qdrant collection " + cfg.Qdrant.Collection
		}
	case "pinecone", "":
		if cfg.Pinecone != nil {
			return "pinecone index " + cfg.Pinecone.Index
		}
	}
	return cfg.Type + " vector store"
}
