package bot

import (
	"context"
	"fmt"
	"io"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"github.com/ghabxph/happy-on-slack/internal/ai"
	"github.com/ghabxph/happy-on-slack/internal/config"
	"github.com/ghabxph/happy-on-slack/internal/database"
	"github.com/ghabxph/happy-on-slack/internal/dedup"
	"github.com/ghabxph/happy-on-slack/internal/logging"
	"github.com/ghabxph/happy-on-slack/internal/notifications"
	"github.com/ghabxph/happy-on-slack/internal/repository"
	"github.com/ghabxph/happy-on-slack/internal/slackapi"
)

// NewService builds the Slack, Gemini and optional database clients from
// cfg and wires them into a service
func NewService(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Service, error) {
	slackAPI := slack.New(cfg.SlackBotToken, slack.OptionDebug(cfg.EnableDebug))
	messenger := slackapi.NewClient(slackAPI, cfg.MaxMessageLength, logger.Named("slack"))

	generator, err := ai.NewGemini(ctx, ai.GeminiConfig{
		APIKey:      cfg.GoogleAPIKey,
		Model:       cfg.GeminiModel,
		Persona:     cfg.Persona,
		Temperature: cfg.GeminiTemperature,
	}, logger.Named("gemini"))
	if err != nil {
		return nil, err
	}

	deps := Dependencies{
		Seen:     dedup.NewSet(cfg.DedupWindow, logger.Named("dedup")),
		Identity: messenger,
	}

	// A nil *InteractionRepository must not end up inside the interface
	var recorder InteractionRecorder
	if cfg.EnableDatabasePersistence {
		db, err := database.NewDatabase(ctx, &cfg.Database, logger.Named("database"))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := db.RunMigrations(ctx); err != nil {
			db.Close()
			return nil, err
		}
		recorder = repository.NewInteractionRepository(db, logger.Named("repository"))
		deps.Database = db
		deps.Closers = append(deps.Closers, io.Closer(db))
	}

	if len(cfg.NotificationChannels) > 0 {
		deps.Notifier = notifications.NewStartupNotifier(slackAPI, cfg.NotificationChannels, cfg.BotDisplayName, logger.Named("notifications"))
	}

	reporter := logging.NewErrorReporter(logger, cfg.BotDisplayName, slackAPI, cfg.ReportErrorsToSlack)

	deps.Handler = NewEventHandler(HandlerConfig{
		BotUserID:           cfg.SlackBotUserID,
		BotName:             cfg.BotDisplayName,
		ChannelHistoryLimit: cfg.ChannelHistoryLimit,
		ThreadHistoryLimit:  cfg.ThreadHistoryLimit,
	}, messenger, generator, deps.Seen, recorder, reporter, logger.Named("handler"))

	return New(cfg, logger, deps), nil
}
