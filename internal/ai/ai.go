// Package ai produces short reflective replies for the journaling
// companion.
//
// A Completer is either the OpenAI chat completions client or the static
// Fallback used when no API key is configured.
package ai

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// FallbackReply is returned when no upstream is configured or the upstream
// returns an empty reply.
const FallbackReply = "I hear you. Try capturing one small detail you can control today, and one gentle action you can take next. " +
	"If you want, summarize the moment in one sentence and ask: \"What do I want to remember from this?\""

const (
	DefaultModel   = "gpt-4o-mini"
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultTimeout = 30 * time.Second
)

// Completer turns a user prompt into a reply. An empty reply with a nil
// error means the upstream had nothing to say.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Config selects and configures the Completer built by New.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
	// HTTPClient is the base transport; the API key is layered on top.
	// Nil means http.DefaultClient.
	HTTPClient *http.Client
	// Logger receives upstream failures. Nil means slog.Default().
	Logger *slog.Logger
}

func (c Config) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

// New returns an OpenAI client when cfg carries an API key and the static
// fallback otherwise.
func New(cfg Config) Completer {
	if cfg.APIKey == "" {
		cfg.logger().Info("ai: no API key configured, using fallback replies")
		return Fallback{}
	}
	return NewOpenAI(cfg)
}

// Fallback always returns FallbackReply.
type Fallback struct{}

func (Fallback) Complete(context.Context, string) (string, error) {
	return FallbackReply, nil
}
