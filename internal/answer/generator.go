package answer

import (
	"context"
	"errors"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/trialscope/trialscope/internal/common"
	"github.com/trialscope/trialscope/internal/llm/providers"
	"github.com/trialscope/trialscope/internal/prompt"
)

var (
	// ErrGeneration is returned when the provider fails for a reason
	// retrying will not fix.
	ErrGeneration = errors.New("answer: generation failed")
	// ErrGenerationTimeout is returned when every attempt ran out of time.
	ErrGenerationTimeout = errors.New("answer: generation timed out")
)

// Config bounds generation attempts.
type Config struct {
	MaxRetries     int
	AttemptTimeout time.Duration
	Backoff        time.Duration
}

// LoadConfig builds a Config from the environment.
func LoadConfig() Config {
	cfg := Config{}
	if raw := os.Getenv("TRIALSCOPE_ANSWER_RETRIES"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			cfg.MaxRetries = parsed
		}
	}
	if raw := os.Getenv("TRIALSCOPE_ANSWER_TIMEOUT"); raw != "" {
		if parsed, err := time.ParseDuration(raw); err == nil {
			cfg.AttemptTimeout = parsed
		}
	}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 2
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 30 * time.Second
	}
	if c.Backoff <= 0 {
		c.Backoff = 500 * time.Millisecond
	}
}

// Result pairs the generated answer with the citations that backed it.
type Result struct {
	Answer    string            `json:"answer"`
	Citations []prompt.Citation `json:"citations"`
}

// Generator produces answers from assembled prompts, retrying transient
// provider failures with exponential backoff.
type Generator struct {
	provider providers.Provider
	cfg      Config
}

// New constructs a Generator.
func New(provider providers.Provider, cfg Config) *Generator {
	cfg.applyDefaults()
	return &Generator{provider: provider, cfg: cfg}
}

// ProviderName reports which provider backs generation.
func (g *Generator) ProviderName() string {
	return g.provider.Name()
}

// Generate sends the prompt to the provider. Each retry resends the identical
// messages so the model sees the same context on every attempt. Transient
// failures (timeouts, rate limits, provider 5xx) are retried up to MaxRetries
// times; anything else fails immediately with ErrGeneration.
func (g *Generator) Generate(ctx context.Context, p prompt.Prompt) (Result, error) {
	logger := common.Logger()
	backoff := g.cfg.Backoff
	var lastErr error
	for attempt := 0; attempt <= g.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			logger.Warn("answer: retrying generation", "attempt", attempt, "backoff", backoff, "error", lastErr)
			select {
			case <-ctx.Done():
				return Result{}, errors.Join(ErrGenerationTimeout, ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		attemptCtx, cancel := context.WithTimeout(ctx, g.cfg.AttemptTimeout)
		text, err := g.provider.Chat(attemptCtx, p.Messages)
		cancel()
		if err == nil {
			return Result{Answer: strings.TrimSpace(text), Citations: p.Citations}, nil
		}
		lastErr = err
		if !transient(err) {
			return Result{}, errors.Join(ErrGeneration, err)
		}
		if ctx.Err() != nil {
			break
		}
	}
	if timedOut(lastErr) || ctx.Err() != nil {
		return Result{}, errors.Join(ErrGenerationTimeout, lastErr)
	}
	return Result{}, errors.Join(ErrGeneration, lastErr)
}

// transient reports whether an error is worth retrying: deadline and network
// timeouts, rate limiting, and provider-side 5xx responses.
func transient(err error) bool {
	if timedOut(err) {
		return true
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func timedOut(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
