package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"ragchat/internal/domain"
)

// Storage is a minimal REST client to an existing Qdrant collection.
// Passage text is read from the payload field named by TextKey.
type Storage struct {
	url        string
	apiKey     string
	collection string
	textKey    string
	client     *http.Client
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	TextKey    string
	Timeout    time.Duration
}

func NewStorage(cfg Config) *Storage {
	textKey := cfg.TextKey
	if textKey == "" {
		textKey = "text"
	}
	return &Storage{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		textKey:    textKey,
		client:     &http.Client{Timeout: cfg.Timeout},
	}
}

// Describe checks that the collection exists and is serving.
func (s *Storage) Describe(ctx context.Context) (domain.IndexInfo, error) {
	var resp struct {
		Result struct {
			Status string `json:"status"`
			Config struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	if err := s.doJSON(ctx, http.MethodGet, fmt.Sprintf("%s/collections/%s", s.url, s.collection), nil, &resp); err != nil {
		return domain.IndexInfo{}, err
	}
	switch resp.Result.Status {
	case "green", "yellow":
	default:
		return domain.IndexInfo{}, fmt.Errorf("qdrant collection %s status %q", s.collection, resp.Result.Status)
	}
	return domain.IndexInfo{
		Name:      s.collection,
		Dimension: resp.Result.Config.Params.Vectors.Size,
		Host:      s.url,
		Status:    resp.Result.Status,
	}, nil
}

func (s *Storage) Query(ctx context.Context, vector []float64, topK int) ([]domain.Passage, error) {
	if topK <= 0 {
		topK = 4
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := s.doJSON(ctx, http.MethodPost, fmt.Sprintf("%s/collections/%s/points/search", s.url, s.collection), req, &resp); err != nil {
		return nil, err
	}
	results := make([]domain.Passage, 0, len(resp.Result))
	for _, r := range resp.Result {
		text, _ := r.Payload[s.textKey].(string)
		if text == "" {
			continue
		}
		results = append(results, domain.Passage{
			ID:       fmt.Sprint(r.ID),
			Text:     text,
			Score:    r.Score,
			Metadata: r.Payload,
		})
	}
	return results, nil
}

func (s *Storage) doJSON(ctx context.Context, method, url string, body any, out any) error {
	var data []byte
	if body != nil {
		var err error
		if data, err = json.Marshal(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant %s %s failed: %s", method, url, resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
