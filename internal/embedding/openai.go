package embedding

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mohammad-safakhou/sopguard/internal/httpjson"
)

const (
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultOpenAIModel   = "text-embedding-3-small"
	defaultBatchSize     = 32
)

// OpenAIConfig configures an OpenAI-compatible /embeddings endpoint.
type OpenAIConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	Dimensions int
	BatchSize  int
	Timeout    time.Duration
	MaxRetries int
}

// OpenAIEmbedder calls an OpenAI-compatible embeddings API and normalises its output.
type OpenAIEmbedder struct {
	cfg  OpenAIConfig
	http *httpjson.Client
}

func NewOpenAIEmbedder(cfg OpenAIConfig) *OpenAIEmbedder {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenAIBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &OpenAIEmbedder{cfg: cfg, http: httpjson.New(cfg.Timeout, cfg.MaxRetries, 0)}
}

func (o *OpenAIEmbedder) Dimensions() int { return o.cfg.Dimensions }
func (o *OpenAIEmbedder) Model() string   { return o.cfg.Model }

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

func (o *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if o.cfg.APIKey == "" {
		return nil, &EmbeddingError{Model: o.cfg.Model, Err: fmt.Errorf("api key not configured")}
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += o.cfg.BatchSize {
		end := start + o.cfg.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := o.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, &EmbeddingError{Model: o.cfg.Model, Err: err}
		}
		out = append(out, batch...)
	}
	return out, nil
}

func (o *OpenAIEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var resp embeddingResponse
	headers := map[string]string{"Authorization": "Bearer " + o.cfg.APIKey}
	req := embeddingRequest{Model: o.cfg.Model, Input: texts, Dimensions: o.cfg.Dimensions}
	if err := o.http.DoJSON(ctx, http.MethodPost, o.cfg.BaseURL+"/embeddings", headers, req, &resp); err != nil {
		return nil, fmt.Errorf("embeddings request: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
	}
	vecs := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		if o.cfg.Dimensions > 0 && len(d.Embedding) != o.cfg.Dimensions {
			return nil, fmt.Errorf("embedding has %d dimensions, want %d", len(d.Embedding), o.cfg.Dimensions)
		}
		vecs[d.Index] = Normalize(d.Embedding)
	}
	return vecs, nil
}
