package pinecone

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"ragchat/internal/domain"
)

// Index is a minimal REST client for an existing Pinecone index.
// It never creates, writes or deletes; it only describes and queries.
type Index struct {
	apiKey        string
	name          string
	namespace     string
	textKey       string
	controllerURL string
	client        *http.Client

	mu   sync.RWMutex
	host string
}

type Config struct {
	APIKey      string
	Environment string
	Index       string
	Namespace   string
	// TextKey is the metadata field holding the passage text.
	TextKey string
	// ControllerURL overrides https://controller.{environment}.pinecone.io.
	ControllerURL string
	// Host is used directly, without controller lookup, when Environment and
	// ControllerURL are both empty.
	Host    string
	Timeout time.Duration
}

func NewIndex(cfg Config) *Index {
	textKey := cfg.TextKey
	if textKey == "" {
		textKey = "text"
	}
	controller := cfg.ControllerURL
	if controller == "" && cfg.Environment != "" {
		controller = fmt.Sprintf("https://controller.%s.pinecone.io", cfg.Environment)
	}
	return &Index{
		apiKey:        cfg.APIKey,
		name:          cfg.Index,
		namespace:     cfg.Namespace,
		textKey:       textKey,
		controllerURL: strings.TrimRight(controller, "/"),
		client:        &http.Client{Timeout: cfg.Timeout},
		host:          normalizeHost(cfg.Host),
	}
}

// Describe validates that the index exists and is ready, resolving its data-plane host.
func (x *Index) Describe(ctx context.Context) (domain.IndexInfo, error) {
	if host := x.dataHost(); host != "" && x.controllerURL == "" {
		return x.describeStats(ctx, host)
	}
	if x.controllerURL == "" {
		return domain.IndexInfo{}, errors.New("pinecone environment or host required")
	}

	var resp struct {
		Database struct {
			Name      string `json:"name"`
			Dimension int    `json:"dimension"`
		} `json:"database"`
		Status struct {
			Ready bool   `json:"ready"`
			State string `json:"state"`
			Host  string `json:"host"`
		} `json:"status"`
	}
	url := fmt.Sprintf("%s/databases/%s", x.controllerURL, x.name)
	if err := x.doJSON(ctx, http.MethodGet, url, nil, &resp); err != nil {
		return domain.IndexInfo{}, err
	}
	if !resp.Status.Ready {
		return domain.IndexInfo{}, fmt.Errorf("pinecone index %s not ready (state %q)", x.name, resp.Status.State)
	}
	if resp.Status.Host == "" {
		return domain.IndexInfo{}, fmt.Errorf("pinecone index %s reported no host", x.name)
	}
	host := normalizeHost(resp.Status.Host)
	x.mu.Lock()
	x.host = host
	x.mu.Unlock()
	return domain.IndexInfo{
		Name:      resp.Database.Name,
		Dimension: resp.Database.Dimension,
		Host:      host,
		Status:    resp.Status.State,
	}, nil
}

func (x *Index) describeStats(ctx context.Context, host string) (domain.IndexInfo, error) {
	var resp struct {
		Dimension        int `json:"dimension"`
		TotalVectorCount int `json:"totalVectorCount"`
	}
	if err := x.doJSON(ctx, http.MethodPost, host+"/describe_index_stats", map[string]any{}, &resp); err != nil {
		return domain.IndexInfo{}, err
	}
	return domain.IndexInfo{Name: x.name, Dimension: resp.Dimension, Host: host, Status: "Ready"}, nil
}

// Query returns the topK nearest passages. Matches without text metadata are dropped.
func (x *Index) Query(ctx context.Context, vector []float64, topK int) ([]domain.Passage, error) {
	host := x.dataHost()
	if host == "" {
		return nil, errors.New("pinecone index host unknown; Describe must succeed first")
	}
	if topK <= 0 {
		topK = 4
	}
	req := map[string]any{
		"vector":          vector,
		"topK":            topK,
		"includeMetadata": true,
		"includeValues":   false,
	}
	if x.namespace != "" {
		req["namespace"] = x.namespace
	}
	var resp struct {
		Matches []struct {
			ID       string         `json:"id"`
			Score    float64        `json:"score"`
			Metadata map[string]any `json:"metadata"`
		} `json:"matches"`
	}
	if err := x.doJSON(ctx, http.MethodPost, host+"/query", req, &resp); err != nil {
		return nil, err
	}
	out := make([]domain.Passage, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		text, _ := m.Metadata[x.textKey].(string)
		if text == "" {
			continue
		}
		out = append(out, domain.Passage{ID: m.ID, Text: text, Score: m.Score, Metadata: m.Metadata})
	}
	return out, nil
}

func (x *Index) dataHost() string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.host
}

func (x *Index) doJSON(ctx context.Context, method, url string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Api-Key", x.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := x.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("pinecone %s %s failed: %s", method, url, resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func normalizeHost(h string) string {
	h = strings.TrimRight(strings.TrimSpace(h), "/")
	if h == "" {
		return ""
	}
	if !strings.HasPrefix(h, "http://") && !strings.HasPrefix(h, "https://") {
		h = "https://" + h
	}
	return h
}
