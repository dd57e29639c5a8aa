// Package chat answers support questions, preferring the locally
// loaded model and falling back to the hosted API.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/deskhand/deskhand/internal/hosted"
	"github.com/deskhand/deskhand/internal/inference"
)

// ErrNoBackend indicates neither the local model nor the hosted API can
// answer right now.
var ErrNoBackend = errors.New("no chat backend available")

const basePrompt = "You are a helpful customer support assistant. " +
	"Answer questions clearly and concisely. If you do not know the " +
	"answer, say so instead of guessing."

// Source identifies which backend produced a reply.
type Source string

const (
	SourceLocal  Source = "local"
	SourceHosted Source = "hosted"
)

// Message is one prior turn of the conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Question is a support question with optional conversation context.
type Question struct {
	Message  string
	History  []Message
	Language string
}

// Reply is a generated answer and where it came from.
type Reply struct {
	Answer string `json:"reply"`
	Source Source `json:"source"`
}

// Service routes questions to the best available backend.
type Service struct {
	inference *inference.Client
	hosted    *hosted.Client
	logger    zerolog.Logger
}

// NewService creates a chat service.
func NewService(inf *inference.Client, hc *hosted.Client, logger zerolog.Logger) *Service {
	return &Service{
		inference: inf,
		hosted:    hc,
		logger:    logger.With().Str("component", "chat").Logger(),
	}
}

// Ask answers a question. The local model is preferred when it has a
// model loaded; otherwise (or when local generation fails) the hosted
// API takes over. ErrNoBackend is returned when neither can serve.
func (s *Service) Ask(ctx context.Context, q Question) (Reply, error) {
	q.Message = strings.TrimSpace(q.Message)
	if q.Message == "" {
		return Reply{}, errors.New("empty question")
	}

	if st := s.inference.Status(ctx); st.Ready {
		answer, err := s.inference.Complete(ctx, localPrompt(q))
		if err == nil {
			return Reply{Answer: strings.TrimSpace(answer), Source: SourceLocal}, nil
		}
		s.logger.Warn().Err(err).Msg("local generation failed, trying hosted fallback")
	}

	if s.hosted.Configured() {
		answer, err := s.hosted.Chat(ctx, hostedMessages(q))
		if err != nil {
			return Reply{}, fmt.Errorf("hosted fallback failed: %w", err)
		}
		return Reply{Answer: strings.TrimSpace(answer), Source: SourceHosted}, nil
	}

	return Reply{}, ErrNoBackend
}

func systemPrompt(language string) string {
	if language = strings.TrimSpace(language); language != "" {
		return basePrompt + " Respond in " + language + "."
	}
	return basePrompt
}

func hostedMessages(q Question) []hosted.ChatMessage {
	messages := make([]hosted.ChatMessage, 0, len(q.History)+2)
	messages = append(messages, hosted.NewSystemMessage(systemPrompt(q.Language)))
	for _, m := range q.History {
		messages = append(messages, hosted.ChatMessage{Role: m.Role, Content: m.Content})
	}
	return append(messages, hosted.NewUserMessage(q.Message))
}

func localPrompt(q Question) string {
	var b strings.Builder
	fmt.Fprintf(&b, "System: %s\n\n", systemPrompt(q.Language))
	for _, m := range q.History {
		switch m.Role {
		case "assistant":
			fmt.Fprintf(&b, "Assistant: %s\n\n", m.Content)
		default:
			fmt.Fprintf(&b, "User: %s\n\n", m.Content)
		}
	}
	fmt.Fprintf(&b, "User: %s\n\nAssistant:", q.Message)
	return b.String()
}
