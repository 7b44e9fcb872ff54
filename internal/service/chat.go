package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/chronicle/internal/ai"
	"github.com/sakif/chronicle/internal/apperror"
)

// ChatService answers the journaling companion's prompts.
type ChatService struct {
	completer ai.Completer
	recorder  Recorder
	logger    *slog.Logger
}

// NewChatService answers prompts with completer. A nil recorder is
// replaced with a no-op one.
func NewChatService(completer ai.Completer, recorder Recorder, logger *slog.Logger) *ChatService {
	return &ChatService{
		completer: completer,
		recorder:  recorderOrNop(recorder),
		logger:    logger,
	}
}

// Reply returns the companion's answer to prompt. An empty answer from
// the upstream is replaced by ai.FallbackReply; an upstream failure is
// returned as is (an apperror Gateway error).
func (s *ChatService) Reply(ctx context.Context, userID, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", apperror.ValidationFailed("prompt", "Prompt is required")
	}

	text, err := s.completer.Complete(ctx, prompt)
	if err != nil {
		s.recorder.AIReply(AIError)
		s.logger.Warn("ai reply failed",
			slog.String("userID", userID),
			slog.Any("error", err),
		)
		return "", fmt.Errorf("service/chat: %w", err)
	}

	if strings.TrimSpace(text) == "" || text == ai.FallbackReply {
		s.recorder.AIReply(AIFallback)
		return ai.FallbackReply, nil
	}
	s.recorder.AIReply(AIUpstream)
	return text, nil
}
