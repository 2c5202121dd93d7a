package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/finlegal/tenkdraft/config"
)

// Client represents different LLM providers.
type Client string

const (
	OpenAI    Client = "openai"
	Anthropic Client = "anthropic"
)

// ErrRetryable marks transient provider failures (network, 5xx, timeout).
// Callers may retry the whole operation or surface a retry hint to the user.
var ErrRetryable = errors.New("retryable provider error")

// Retryable wraps err so callers can branch on errors.Is(err, ErrRetryable).
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrRetryable, err)
}

// IsRetryable reports whether err is a transient provider failure.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRetryable)
}

// Message is one turn of a chat completion request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Provider is the interface all LLM implementations must satisfy.
type Provider interface {
	// Complete sends a chat completion request and returns the assistant text.
	Complete(ctx context.Context, messages []Message, temperature float64) (string, error)

	// CreateEmbedding generates embedding vectors for the given texts.
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

// NewProvider creates an LLM client from config.
func NewProvider(cfg config.LLMConfig) (Provider, error) {
	switch Client(cfg.Provider) {
	case OpenAI, "":
		if cfg.APIKey == "" {
			return nil, errors.New("llm.api_key not set (or OPENAI_API_KEY)")
		}
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 90 * time.Second
		}
		return newOpenAIClient(cfg, timeout), nil
	case Anthropic:
		return nil, errors.New("anthropic client not implemented yet")
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}
