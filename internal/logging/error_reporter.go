package logging

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/slack-go/slack"
	"go.uber.org/zap"
)

// EphemeralPoster posts a message only the given user can see.
// *slack.Client satisfies it.
type EphemeralPoster interface {
	PostEphemeralContext(ctx context.Context, channelID, userID string, options ...slack.MsgOption) (string, error)
}

// ErrorReporter logs errors to the console and, when enabled, lets the
// user who triggered them know in Slack
type ErrorReporter struct {
	zapLogger *zap.Logger
	botName   string
	poster    EphemeralPoster
	notify    bool
}

// ErrorContext contains context information for error logging
type ErrorContext struct {
	ChannelID string
	UserID    string
	Component string
	Operation string
	EventID   string
}

// NewErrorReporter creates a new error reporter. botName signs the Slack
// notice; poster may be nil when notify is false.
func NewErrorReporter(zapLogger *zap.Logger, botName string, poster EphemeralPoster, notify bool) *ErrorReporter {
	return &ErrorReporter{
		zapLogger: zapLogger,
		botName:   botName,
		poster:    poster,
		notify:    notify && poster != nil,
	}
}

// LogError logs err and, if a channel and user are known, tells the user
func (r *ErrorReporter) LogError(ctx context.Context, errCtx *ErrorContext, err error, message string) {
	r.logToConsole(errCtx, err, message)

	if r.notify && errCtx.ChannelID != "" && errCtx.UserID != "" {
		r.logToSlack(ctx, errCtx, message)
	}
}

func (r *ErrorReporter) logToConsole(errCtx *ErrorContext, err error, message string) {
	r.zapLogger.Error(message,
		zap.String("component", errCtx.Component),
		zap.String("operation", errCtx.Operation),
		zap.String("channel_id", errCtx.ChannelID),
		zap.String("user_id", errCtx.UserID),
		zap.String("event_id", errCtx.EventID),
		zap.Error(err),
		zap.String("stack_trace", string(debug.Stack())))
}

func (r *ErrorReporter) logToSlack(ctx context.Context, errCtx *ErrorContext, message string) {
	_, err := r.poster.PostEphemeralContext(ctx,
		errCtx.ChannelID,
		errCtx.UserID,
		slack.MsgOptionText(FormatSlackMessage(r.botName, errCtx, message, time.Now()), false),
	)

	// Posting failures are only logged to avoid a reporting loop
	if err != nil {
		r.zapLogger.Error("Failed to post error message to Slack",
			zap.String("channel_id", errCtx.ChannelID),
			zap.Error(err))
	}
}

// FormatSlackMessage renders the user-facing error notice. Raw error text
// stays in the server log.
func FormatSlackMessage(botName string, errCtx *ErrorContext, message string, at time.Time) string {
	parts := []string{
		fmt.Sprintf("🚨 *%s ran into a problem* [%s]", botName, at.Format("15:04:05")),
		fmt.Sprintf("*Operation*: %s", errCtx.Operation),
		fmt.Sprintf("*Message*: %s", message),
	}
	if errCtx.EventID != "" {
		parts = append(parts, fmt.Sprintf("*Event*: `%s`", errCtx.EventID))
	}
	parts = append(parts, "", "_Please try mentioning me again in a moment._")

	return strings.Join(parts, "\n")
}
