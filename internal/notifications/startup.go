package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/slack-go/slack"
	"go.uber.org/zap"
)

// MessagePoster posts a message to a channel. *slack.Client satisfies it.
type MessagePoster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

type StartupNotifier struct {
	poster   MessagePoster
	channels []string
	botName  string
	logger   *zap.Logger
}

func NewStartupNotifier(poster MessagePoster, channels []string, botName string, logger *zap.Logger) *StartupNotifier {
	return &StartupNotifier{
		poster:   poster,
		channels: channels,
		botName:  botName,
		logger:   logger,
	}
}

func (n *StartupNotifier) NotifyStartup(ctx context.Context, version string) error {
	return n.SendConcurrentNotifications(ctx, n.FormatStartupMessage(version, time.Now()))
}

func (n *StartupNotifier) FormatStartupMessage(version string, at time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🎉 *%s is online* - v%s\n", n.botName, version)
	fmt.Fprintf(&b, "⏰ Started at: %s\n\n", at.UTC().Format("2006-01-02 15:04:05 UTC"))
	fmt.Fprintf(&b, "Mention me with `@%s` in any channel I'm in and I'll reply in the thread 💬", n.botName)
	return b.String()
}

func (n *StartupNotifier) SendConcurrentNotifications(ctx context.Context, message string) error {
	if len(n.channels) == 0 {
		n.logger.Info("No notification channels configured, skipping startup notification")
		return nil
	}

	type result struct {
		channel string
		err     error
	}
	results := make(chan result, len(n.channels))

	for _, channel := range n.channels {
		go func(ch string) {
			_, _, err := n.poster.PostMessageContext(ctx, ch, slack.MsgOptionText(message, false))
			results <- result{channel: ch, err: err}
		}(channel)
	}

	var errs []error
	for range n.channels {
		res := <-results
		if res.err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", res.channel, res.err))
			n.logger.Error("Failed to send startup notification",
				zap.Error(res.err),
				zap.String("channel", res.channel))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("failed to send notifications to %d channels: %w", len(errs), errors.Join(errs...))
	}

	n.logger.Info("Startup notifications sent successfully",
		zap.Int("channels", len(n.channels)))

	return nil
}
