package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"golang.org/x/time/rate"

	"github.com/engramd/engramd/config"
	"github.com/engramd/engramd/pkg/logger"
)

// OpenAIProvider embeds text through the OpenAI embeddings API.
type OpenAIProvider struct {
	client    openai.Client
	model     string
	dimension int
	maxChars  int
	timeout   time.Duration
	attempts  int
	baseDelay time.Duration
	limiter   *rate.Limiter
	log       logger.Logger
}

// NewOpenAIProvider creates a provider from embedding configuration.
func NewOpenAIProvider(cfg config.EmbeddingConfig, log logger.Logger) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai provider requires an API key")
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", cfg.Dimension)
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	var limiter *rate.Limiter
	if cfg.Rate.RPS > 0 {
		burst := cfg.Rate.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.Rate.RPS), burst)
	}

	attempts := cfg.Retry.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	baseDelay := cfg.Retry.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &OpenAIProvider{
		client:    openai.NewClient(opts...),
		model:     cfg.Model,
		dimension: cfg.Dimension,
		maxChars:  cfg.MaxTextChars,
		timeout:   timeout,
		attempts:  attempts,
		baseDelay: baseDelay,
		limiter:   limiter,
		log:       log,
	}, nil
}

// Dimension returns the configured vector dimension.
func (p *OpenAIProvider) Dimension() int {
	return p.dimension
}

// Embed returns the embedding vector for text. Oversized input is rejected
// before any provider call. Transient provider failures are retried with
// exponential backoff.
func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if p.maxChars > 0 && len(text) > p.maxChars {
		return nil, NewError(KindTooLong,
			fmt.Errorf("text length %d exceeds limit %d", len(text), p.maxChars))
	}

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, NewError(KindTimeout, err)
		}
	}

	var lastErr error
	delay := p.baseDelay
	for attempt := 1; attempt <= p.attempts; attempt++ {
		vec, err := p.embedOnce(ctx, text)
		if err == nil {
			return vec, nil
		}
		lastErr = err

		if !isTransientError(err) || attempt == p.attempts {
			break
		}
		if p.log != nil {
			p.log.WarnContext(ctx, "embedding call failed, retrying",
				"attempt", attempt, "delay", delay.String(), "error", err)
		}
		select {
		case <-ctx.Done():
			return nil, NewError(KindTimeout, ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
	}

	return nil, classify(lastErr)
}

func (p *OpenAIProvider) embedOnce(ctx context.Context, text string) ([]float32, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.client.Embeddings.New(callCtx, openai.EmbeddingNewParams{
		Input:      openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model:      openai.EmbeddingModel(p.model),
		Dimensions: openai.Int(int64(p.dimension)),
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("provider returned no embedding data")
	}

	raw := resp.Data[0].Embedding
	if len(raw) != p.dimension {
		return nil, fmt.Errorf("provider returned dimension %d, want %d", len(raw), p.dimension)
	}

	vec := make([]float32, len(raw))
	for i, v := range raw {
		vec[i] = float32(v)
	}
	return vec, nil
}

// classify wraps a raw provider error with a typed kind.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NewError(KindTimeout, err)
	}
	return NewError(KindProviderUnavailable, err)
}

// isTransientError checks if an error is likely transient and worth retrying.
func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	errStr := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection refused",
		"connection reset",
		"timeout",
		"deadline exceeded",
		"temporarily unavailable",
		"unavailable",
		"too many requests",
		"rate limit",
		"429",
		"500",
		"502",
		"503",
		"504",
		"eof",
	}
	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}
