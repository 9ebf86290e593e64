package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/ghabxph/happy-on-slack/internal/conversation"
)

const (
	// FallbackReply is sent when the model returns no text
	FallbackReply = "Oops, something went wrong on my side! Could you ask me again? 😅"
	// DeflectionReply is sent when the model refuses for safety reasons
	DeflectionReply = "Hmm... that one feels a bit sensitive for me to answer 😅 Let's talk about something else!"
)

var (
	// ErrSafetyBlocked marks a completion rejected by the safety filter
	ErrSafetyBlocked = errors.New("completion blocked by safety filter")
	// ErrMissingAPIKey is returned on every call when no API key was configured
	ErrMissingAPIKey = errors.New("GOOGLE_API_KEY is not set")
)

// safetyFinishReasons are candidate finish reasons that mean the reply was
// withheld by content filtering
var safetyFinishReasons = map[string]bool{
	string(genai.FinishReasonSafety): true,
	"PROHIBITED_CONTENT":             true,
	"BLOCKLIST":                      true,
	"SPII":                           true,
}

// ContentGenerator is the slice of the genai API the bot uses.
// *genai.Models satisfies it.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Options carries the context assembled for one request
type Options struct {
	History        []conversation.Turn
	ChannelContext string
}

// GeminiConfig holds the settings for a Gemini client
type GeminiConfig struct {
	APIKey      string
	Model       string
	Persona     string
	Temperature float64
}

// Gemini generates replies with Google's Gemini models
type Gemini struct {
	models      ContentGenerator
	model       string
	persona     string
	temperature float32
	logger      *zap.Logger
}

// NewGemini creates a Gemini client. A missing API key is not an error
// here; each Generate call fails instead.
func NewGemini(ctx context.Context, cfg GeminiConfig, logger *zap.Logger) (*Gemini, error) {
	if cfg.APIKey == "" {
		logger.Warn("GOOGLE_API_KEY not set, completions will fail until it is configured")
		return NewGeminiWithGenerator(unavailableGenerator{err: ErrMissingAPIKey}, cfg, logger), nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return NewGeminiWithGenerator(client.Models, cfg, logger), nil
}

// NewGeminiWithGenerator creates a Gemini client on top of an existing
// content generator
func NewGeminiWithGenerator(models ContentGenerator, cfg GeminiConfig, logger *zap.Logger) *Gemini {
	return &Gemini{
		models:      models,
		model:       cfg.Model,
		persona:     cfg.Persona,
		temperature: float32(cfg.Temperature),
		logger:      logger,
	}
}

// Generate asks the model for a reply to userMessage. Prior thread turns
// make it a multi-turn request; channel context goes into the system
// instruction. Safety rejections come back as DeflectionReply, not as an
// error.
func (g *Gemini) Generate(ctx context.Context, userMessage string, opts Options) (string, error) {
	temperature := g.temperature
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: BuildSystemPrompt(g.persona, opts.ChannelContext)}},
		},
		Temperature: &temperature,
	}

	contents := append(toContents(opts.History), &genai.Content{
		Role:  "user",
		Parts: []*genai.Part{{Text: userMessage}},
	})

	resp, err := g.models.GenerateContent(ctx, g.model, contents, config)
	if err == nil {
		err = checkBlocked(resp)
	}
	if err != nil {
		if isSafetyError(err) {
			g.logger.Warn("Completion blocked by safety filter", zap.Error(err))
			return DeflectionReply, nil
		}
		g.logger.Error("Gemini API error", zap.String("model", g.model), zap.Error(err))
		return "", fmt.Errorf("gemini API error: %w", err)
	}

	text := responseText(resp)
	if text == "" {
		return FallbackReply, nil
	}

	g.logger.Debug("Completion generated",
		zap.String("model", g.model),
		zap.Int("history_turns", len(opts.History)),
		zap.Int("channel_context_chars", len(opts.ChannelContext)),
		zap.Int("reply_chars", len(text)))

	return text, nil
}

// toContents maps thread turns onto Gemini roles
func toContents(history []conversation.Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history)+1)
	for _, turn := range history {
		role := "user"
		if turn.Role == conversation.RoleAssistant {
			role = "model"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: turn.Content}},
		})
	}
	return contents
}

// checkBlocked turns a filtered response into an ErrSafetyBlocked error
func checkBlocked(resp *genai.GenerateContentResponse) error {
	if resp == nil {
		return nil
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return fmt.Errorf("%w: prompt blocked (%s)", ErrSafetyBlocked, resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0] != nil {
		reason := string(resp.Candidates[0].FinishReason)
		if safetyFinishReasons[reason] {
			return fmt.Errorf("%w: finish reason %s", ErrSafetyBlocked, reason)
		}
	}
	return nil
}

func isSafetyError(err error) bool {
	return errors.Is(err, ErrSafetyBlocked) || strings.Contains(err.Error(), "SAFETY")
}

// responseText joins the text parts of the first candidate, skipping
// thought summaries
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	cand := resp.Candidates[0]
	if cand == nil || cand.Content == nil {
		return ""
	}

	var b strings.Builder
	for _, part := range cand.Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		b.WriteString(part.Text)
	}
	return strings.TrimSpace(b.String())
}

type unavailableGenerator struct {
	err error
}

func (u unavailableGenerator) GenerateContent(context.Context, string, []*genai.Content, *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	return nil, u.err
}
