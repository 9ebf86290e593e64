package slackapi

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"github.com/ghabxph/happy-on-slack/internal/conversation"
)

// Client wraps the Slack Web API calls the bot needs
type Client struct {
	api              *slack.Client
	logger           *zap.Logger
	maxMessageLength int
}

// NewClient creates a new Slack client
func NewClient(api *slack.Client, maxMessageLength int, logger *zap.Logger) *Client {
	return &Client{
		api:              api,
		logger:           logger,
		maxMessageLength: maxMessageLength,
	}
}

// BotUserID asks Slack which user the bot token belongs to
func (c *Client) BotUserID(ctx context.Context) (string, error) {
	resp, err := c.api.AuthTestContext(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to authenticate with Slack: %w", err)
	}
	return resp.UserID, nil
}

// PostMessage sends text to a channel, threaded under threadTS when set.
// Long text is split into several messages.
func (c *Client) PostMessage(ctx context.Context, channelID, text, threadTS string) error {
	for _, chunk := range splitMessage(text, c.maxMessageLength) {
		opts := []slack.MsgOption{slack.MsgOptionText(chunk, false)}
		if threadTS != "" {
			opts = append(opts, slack.MsgOptionTS(threadTS))
		}

		if _, _, err := c.api.PostMessageContext(ctx, channelID, opts...); err != nil {
			return fmt.Errorf("slack API error: %w", err)
		}
	}

	c.logger.Debug("Message posted",
		zap.String("channel_id", channelID),
		zap.String("thread_ts", threadTS),
		zap.Int("length", len(text)))

	return nil
}

// ThreadReplies returns the messages of a thread, oldest first
func (c *Client) ThreadReplies(ctx context.Context, channelID, threadTS string, limit int) ([]conversation.Message, error) {
	params := &slack.GetConversationRepliesParameters{
		ChannelID: channelID,
		Timestamp: threadTS,
		Limit:     limit,
	}

	msgs, _, _, err := c.api.GetConversationRepliesContext(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch thread replies: %w", err)
	}

	return toMessages(msgs), nil
}

// ChannelHistory returns the latest limit messages of a channel, oldest
// first. Slack returns history newest first.
func (c *Client) ChannelHistory(ctx context.Context, channelID string, limit int) ([]conversation.Message, error) {
	params := &slack.GetConversationHistoryParameters{
		ChannelID: channelID,
		Limit:     limit,
	}

	resp, err := c.api.GetConversationHistoryContext(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch channel history: %w", err)
	}

	msgs := toMessages(resp.Messages)
	reverse(msgs)
	return msgs, nil
}

func toMessages(msgs []slack.Message) []conversation.Message {
	out := make([]conversation.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, conversation.Message{
			User:     m.User,
			BotID:    m.BotID,
			Text:     m.Text,
			TS:       m.Timestamp,
			ThreadTS: m.ThreadTimestamp,
		})
	}
	return out
}

func reverse(msgs []conversation.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}

// splitMessage splits long messages into chunks of at most maxLength
// bytes, breaking on spaces where possible. Runes are never split, so a
// limit narrower than one rune yields chunks of that single rune.
func splitMessage(message string, maxLength int) []string {
	if maxLength <= 0 || len(message) <= maxLength {
		return []string{message}
	}

	var messages []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			messages = append(messages, current.String())
			current.Reset()
		}
	}

	for _, word := range strings.Split(message, " ") {
		// A single word longer than the limit is hard-cut
		for len(word) > maxLength {
			flush()
			cut := maxLength
			for cut > 0 && !utf8.RuneStart(word[cut]) {
				cut--
			}
			if cut == 0 {
				_, cut = utf8.DecodeRuneInString(word)
			}
			messages = append(messages, word[:cut])
			word = word[cut:]
		}

		sep := 0
		if current.Len() > 0 {
			sep = 1
		}
		if current.Len()+sep+len(word) > maxLength {
			flush()
			sep = 0
		}

		if sep == 1 {
			current.WriteString(" ")
		}
		current.WriteString(word)
	}
	flush()

	return messages
}
