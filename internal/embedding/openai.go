package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"github.com/epeers/marketsync/internal/util"
)

// OpenAIClient is an OpenAI-compatible /embeddings client. It also accepts
// Ollama-shaped responses, so a local Ollama server works as a drop-in.
type OpenAIClient struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	retry      util.RetryPolicy
}

// OpenAIConfig configures the OpenAI-compatible embeddings client
type OpenAIConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Retry   util.RetryPolicy
}

// NewOpenAIClient creates a new embeddings client using the provided configuration
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("missing embeddings API key")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	return &OpenAIClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		httpClient: &http.Client{},
		retry:      cfg.Retry,
	}, nil
}

func (c *OpenAIClient) Model() string { return c.model }

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	// OpenAI shape
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	// Ollama /api/embed shape
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed sends all texts in one request and returns the vectors in input order
func (c *OpenAIClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	payload, err := json.Marshal(embeddingsRequest{Model: c.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var out [][]float32
	err = c.retry.Do(ctx, "embeddings", func(ctx context.Context) error {
		body, err := c.post(ctx, payload)
		if err != nil {
			return err
		}
		out, err = decodeEmbeddings(body)
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func decodeEmbeddings(body []byte) ([][]float32, error) {
	var resp embeddingsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal embeddings response: %w", err)
	}

	if len(resp.Data) > 0 {
		sort.SliceStable(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })
		out := make([][]float32, len(resp.Data))
		for i, d := range resp.Data {
			out[i] = d.Embedding
		}
		return out, nil
	}
	if len(resp.Embeddings) > 0 {
		return resp.Embeddings, nil
	}
	return nil, errors.New("no embedding returned")
}

func (c *OpenAIClient) post(ctx context.Context, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := string(body)
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return nil, &util.HTTPStatusError{
			Service:    "embeddings",
			StatusCode: resp.StatusCode,
			Body:       msg,
			RetryAfter: util.ParseRetryAfter(resp.Header),
		}
	}
	return body, nil
}
