package bot

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/slack-go/slack/slackevents"
	"go.uber.org/zap"

	"github.com/ghabxph/happy-on-slack/internal/ai"
	"github.com/ghabxph/happy-on-slack/internal/conversation"
	"github.com/ghabxph/happy-on-slack/internal/dedup"
	"github.com/ghabxph/happy-on-slack/internal/logging"
	"github.com/ghabxph/happy-on-slack/internal/repository"
)

// ClarificationReply is sent when a mention carries no text besides the mention itself
const ClarificationReply = "What was that? Say it again! 🤔"

// Messenger is the Slack Web API surface the handler needs
type Messenger interface {
	PostMessage(ctx context.Context, channelID, text, threadTS string) error
	ThreadReplies(ctx context.Context, channelID, threadTS string, limit int) ([]conversation.Message, error)
	ChannelHistory(ctx context.Context, channelID string, limit int) ([]conversation.Message, error)
}

// Generator produces the bot's reply for a user message
type Generator interface {
	Generate(ctx context.Context, userMessage string, opts ai.Options) (string, error)
}

// InteractionRecorder stores an audit row per handled mention
type InteractionRecorder interface {
	Record(ctx context.Context, in *repository.Interaction) error
}

// Response is the JSON body returned to Slack
type Response struct {
	OK        bool   `json:"ok,omitempty"`
	Message   string `json:"message,omitempty"`
	Challenge string `json:"challenge,omitempty"`
}

// HandlerConfig holds the per-bot settings of the event handler
type HandlerConfig struct {
	BotUserID           string
	BotName             string
	ChannelHistoryLimit int
	ThreadHistoryLimit  int
}

// EventHandler processes Slack Events API payloads
type EventHandler struct {
	cfg       HandlerConfig
	messenger Messenger
	generator Generator
	seen      *dedup.Set
	recorder  InteractionRecorder
	reporter  *logging.ErrorReporter
	logger    *zap.Logger
}

// NewEventHandler creates a new event handler. recorder may be nil.
func NewEventHandler(cfg HandlerConfig, messenger Messenger, generator Generator, seen *dedup.Set,
	recorder InteractionRecorder, reporter *logging.ErrorReporter, logger *zap.Logger) *EventHandler {
	return &EventHandler{
		cfg:       cfg,
		messenger: messenger,
		generator: generator,
		seen:      seen,
		recorder:  recorder,
		reporter:  reporter,
		logger:    logger,
	}
}

// SetBotUserID sets the bot identity. It must be called before the
// handler serves requests.
func (h *EventHandler) SetBotUserID(id string) {
	h.cfg.BotUserID = id
}

// HandleEvent processes one Events API payload. Errors mean the event could
// not be handled and should be answered with a server error.
func (h *EventHandler) HandleEvent(ctx context.Context, body []byte) (*Response, error) {
	// ParseEvent drops the envelope (event_id included) when the inner event
	// fails to decode, and it cannot cope with a callback missing its event
	var outer slackevents.EventsAPICallbackEvent
	if err := json.Unmarshal(body, &outer); err != nil {
		return nil, fmt.Errorf("failed to decode event: %w", err)
	}
	if outer.Type == slackevents.CallbackEvent && outer.InnerEvent == nil {
		h.logger.Debug("Callback without inner event", zap.String("event_id", outer.EventID))
		return &Response{OK: true}, nil
	}

	eventsAPIEvent, parseErr := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())

	switch outer.Type {
	case slackevents.URLVerification:
		if parseErr != nil {
			return nil, fmt.Errorf("failed to parse url verification: %w", parseErr)
		}
		if ev, ok := eventsAPIEvent.Data.(*slackevents.EventsAPIURLVerificationEvent); ok && ev.Challenge != "" {
			h.logger.Info("Responded to URL verification challenge")
			return &Response{Challenge: ev.Challenge}, nil
		}
		return &Response{OK: true}, nil
	case slackevents.CallbackEvent:
	default:
		h.logger.Debug("Unhandled event type", zap.String("type", outer.Type))
		return &Response{OK: true}, nil
	}

	if h.seen.CheckAndMark(outer.EventID) {
		h.logger.Info("Duplicate event ignored", zap.String("event_id", outer.EventID))
		return &Response{OK: true, Message: "Duplicate ignored"}, nil
	}

	// Subscribed events without a decoder, or with an unexpected shape,
	// are acknowledged so Slack does not retry them
	if parseErr != nil {
		h.logger.Debug("Ignoring undecodable inner event",
			zap.String("event_id", outer.EventID),
			zap.Error(parseErr))
		return &Response{OK: true}, nil
	}

	switch ev := eventsAPIEvent.InnerEvent.Data.(type) {
	case *slackevents.AppMentionEvent:
		if err := h.handleMention(ctx, outer.EventID, ev); err != nil {
			return nil, err
		}
	default:
		h.logger.Debug("Ignoring inner event", zap.String("type", eventsAPIEvent.InnerEvent.Type))
	}

	return &Response{OK: true}, nil
}

func (h *EventHandler) handleMention(ctx context.Context, eventID string, ev *slackevents.AppMentionEvent) error {
	botUserID := h.cfg.BotUserID

	// Never answer ourselves
	if ev.User == botUserID {
		return nil
	}

	threadTS := ev.ThreadTimeStamp
	if threadTS == "" {
		threadTS = ev.TimeStamp
	}

	rec := &repository.Interaction{
		EventID:   eventID,
		ChannelID: ev.Channel,
		UserID:    ev.User,
		ThreadTS:  threadTS,
	}

	userMessage := conversation.ExtractMessage(ev.Text, botUserID)
	if userMessage == "" {
		if err := h.messenger.PostMessage(ctx, ev.Channel, ClarificationReply, threadTS); err != nil {
			return h.fail(ctx, rec, "send_clarification", err)
		}
		rec.Outcome = repository.OutcomeClarified
		h.record(ctx, rec)
		return nil
	}
	rec.PromptChars = len(userMessage)

	h.logger.Info("Processing message",
		zap.String("event_id", eventID),
		zap.String("user_id", ev.User),
		zap.String("channel_id", ev.Channel),
		zap.Int("chars", len(userMessage)))

	var history []conversation.Turn
	if ev.ThreadTimeStamp != "" {
		msgs, err := h.messenger.ThreadReplies(ctx, ev.Channel, ev.ThreadTimeStamp, h.cfg.ThreadHistoryLimit)
		if err != nil {
			return h.fail(ctx, rec, "fetch_thread", err)
		}
		history = conversation.ToHistory(msgs, botUserID, ev.TimeStamp)
		rec.HistoryTurns = len(history)
		h.logger.Info("Loaded thread history", zap.Int("messages", len(history)))
	}

	channelMsgs, err := h.messenger.ChannelHistory(ctx, ev.Channel, h.cfg.ChannelHistoryLimit)
	if err != nil {
		return h.fail(ctx, rec, "fetch_channel_history", err)
	}
	channelContext := conversation.ToChannelContext(channelMsgs, botUserID, h.cfg.BotName, ev.ThreadTimeStamp)
	h.logger.Info("Loaded channel context", zap.Int("chars", len(channelContext)))

	reply, err := h.generator.Generate(ctx, userMessage, ai.Options{
		History:        history,
		ChannelContext: channelContext,
	})
	if err != nil {
		return h.fail(ctx, rec, "generate_reply", err)
	}

	if err := h.messenger.PostMessage(ctx, ev.Channel, reply, threadTS); err != nil {
		return h.fail(ctx, rec, "send_reply", err)
	}

	rec.ReplyChars = len(reply)
	rec.Outcome = repository.OutcomeReplied
	h.record(ctx, rec)

	h.logger.Info("Response sent", zap.String("channel_id", ev.Channel), zap.String("thread_ts", threadTS))
	return nil
}

// fail reports a handling error and records the failed interaction
func (h *EventHandler) fail(ctx context.Context, rec *repository.Interaction, operation string, err error) error {
	h.reporter.LogError(ctx, &logging.ErrorContext{
		ChannelID: rec.ChannelID,
		UserID:    rec.UserID,
		Component: "bot",
		Operation: operation,
		EventID:   rec.EventID,
	}, err, "Failed to handle app mention")

	rec.Outcome = repository.OutcomeFailed
	h.record(ctx, rec)

	return fmt.Errorf("%s: %w", operation, err)
}

func (h *EventHandler) record(ctx context.Context, rec *repository.Interaction) {
	if h.recorder == nil {
		return
	}
	if err := h.recorder.Record(ctx, rec); err != nil {
		h.logger.Warn("Failed to record interaction", zap.String("event_id", rec.EventID), zap.Error(err))
	}
}
