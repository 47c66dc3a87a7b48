package embedding

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"legalrag/internal/domain"
)

const maxBatch = 100

// OpenAIEmbedder talks to any server exposing the OpenAI embeddings API:
// OpenAI itself, Ollama's /v1 endpoint, or a self-hosted compatible service.
type OpenAIEmbedder struct {
	client    *openai.Client
	model     string
	dimension int
}

// NewOpenAIEmbedder creates an embedder authenticated with the key found in
// the apiKeyEnv environment variable.
func NewOpenAIEmbedder(apiKeyEnv, model, baseURL string, dimension int, timeout time.Duration) (*OpenAIEmbedder, error) {
	apiKey := os.Getenv(apiKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("API key not found in environment variable: %s", apiKeyEnv)
	}
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return newCompatible(apiKey, model, baseURL, dimension, timeout), nil
}

// NewOllamaEmbedder creates an embedder for a local Ollama server. No key is needed.
func NewOllamaEmbedder(model, baseURL string, dimension int, timeout time.Duration) *OpenAIEmbedder {
	if baseURL == "" {
		baseURL = "http://localhost:11434/v1"
	}
	return newCompatible("ollama", model, baseURL, dimension, timeout)
}

func newCompatible(apiKey, model, baseURL string, dimension int, timeout time.Duration) *OpenAIEmbedder {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	cfg.HTTPClient = &http.Client{Timeout: timeout}

	return &OpenAIEmbedder{
		client:    openai.NewClientWithConfig(cfg),
		model:     model,
		dimension: dimension,
	}
}

// Embed returns one vector per text, in input order.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	all := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += maxBatch {
		end := i + maxBatch
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := e.embedBatch(ctx, texts[i:end])
		if err != nil {
			return nil, err
		}
		all = append(all, vecs...)
	}
	return all, nil
}

func (e *OpenAIEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, classify("embed "+e.model, err)
	}

	if len(resp.Data) != len(texts) {
		return nil, &domain.EmbeddingError{
			Op:  "embed " + e.model,
			Err: fmt.Errorf("provider returned %d embeddings for %d inputs", len(resp.Data), len(texts)),
		}
	}

	vecs := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vecs) || vecs[d.Index] != nil {
			return nil, &domain.EmbeddingError{
				Op:  "embed " + e.model,
				Err: fmt.Errorf("provider returned invalid embedding index %d", d.Index),
			}
		}
		vecs[d.Index] = d.Embedding
	}
	return vecs, nil
}

func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}

func (e *OpenAIEmbedder) ModelName() string {
	return e.model
}

// classify wraps a provider failure, marking rate limits, server errors,
// timeouts and connection failures as transient. Caller cancellation is
// passed through unchanged.
func classify(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}

	var (
		apiErr *openai.APIError
		reqErr *openai.RequestError
		netErr net.Error
	)
	transient := false
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		transient = true
	case errors.As(err, &apiErr):
		transient = retryableStatus(apiErr.HTTPStatusCode)
	case errors.As(err, &reqErr):
		transient = retryableStatus(reqErr.HTTPStatusCode)
	case errors.As(err, &netErr):
		transient = true
	}
	return &domain.EmbeddingError{Op: op, Transient: transient, Err: err}
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= 500
}
