package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/finlegal/tenkdraft/config"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// openaiClient implements Provider using OpenAI's API.
type openaiClient struct {
	apiKey          string
	baseURL         string
	completionModel string
	embeddingModel  string
	maxTokens       int
	retries         int
	backoff         time.Duration
	httpClient      *http.Client
}

func newOpenAIClient(cfg config.LLMConfig, timeout time.Duration) *openaiClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return &openaiClient{
		apiKey:          cfg.APIKey,
		baseURL:         baseURL,
		completionModel: cfg.CompletionModel,
		embeddingModel:  cfg.EmbeddingModel,
		maxTokens:       cfg.MaxTokens,
		retries:         retries,
		backoff:         300 * time.Millisecond,
		httpClient:      &http.Client{Timeout: timeout},
	}
}

type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete sends a chat completion request and returns the assistant text.
func (c *openaiClient) Complete(ctx context.Context, messages []Message, temperature float64) (string, error) {
	reqBody := completionRequest{
		Model:       c.completionModel,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   c.maxTokens,
	}

	var resp completionResponse
	if err := c.doJSON(ctx, c.baseURL+"/chat/completions", reqBody, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("malformed completion response: no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// CreateEmbedding generates embedding vectors for the given texts.
func (c *openaiClient) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	reqBody := map[string]interface{}{
		"model": c.embeddingModel,
		"input": texts,
	}
	var resp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
	}
	if err := c.doJSON(ctx, c.baseURL+"/embeddings", reqBody, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("malformed embedding response: got %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	vecs := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vecs) {
			return nil, fmt.Errorf("malformed embedding response: index %d out of range", d.Index)
		}
		vecs[d.Index] = d.Embedding
	}
	return vecs, nil
}

// doJSON posts body as JSON and decodes the response into out, retrying
// transient failures with exponential backoff. 4xx responses fail immediately;
// network errors and 5xx are retried then wrapped as retryable.
func (c *openaiClient) doJSON(ctx context.Context, url string, body interface{}, out interface{}) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	tries := c.retries + 1
	for attempt := 0; attempt < tries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
		} else {
			status := resp.StatusCode
			if status >= 200 && status < 300 {
				err = json.NewDecoder(resp.Body).Decode(out)
				resp.Body.Close()
				if err != nil {
					return fmt.Errorf("failed to parse response: %w", err)
				}
				return nil
			}
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			lastErr = fmt.Errorf("API returned status %d: %s", status, string(b))
			if status >= 400 && status < 500 && status != http.StatusTooManyRequests {
				return lastErr
			}
		}

		if attempt < tries-1 {
			select {
			case <-time.After(c.backoff * time.Duration(1<<attempt)):
			case <-ctx.Done():
				return Retryable(ctx.Err())
			}
		}
	}
	return Retryable(lastErr)
}
