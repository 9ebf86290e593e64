package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"github.com/ghabxph/happy-on-slack/internal/config"
	"github.com/ghabxph/happy-on-slack/internal/dedup"
	"github.com/ghabxph/happy-on-slack/internal/version"
)

// maxBodyBytes caps the size of an Events API request body
const maxBodyBytes = 1 << 20

// BotIdentity resolves the bot's own Slack user ID
type BotIdentity interface {
	BotUserID(ctx context.Context) (string, error)
}

// StartupNotifier announces that the bot came online
type StartupNotifier interface {
	NotifyStartup(ctx context.Context, version string) error
}

// HealthChecker reports whether an optional backing store is reachable
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Dependencies are the collaborators the service is built from
type Dependencies struct {
	Handler  *EventHandler
	Seen     *dedup.Set
	Identity BotIdentity
	Notifier StartupNotifier // optional
	Database HealthChecker   // optional
	Closers  []io.Closer
}

// Service represents the main bot service
type Service struct {
	config     *config.Config
	logger     *zap.Logger
	handler    *EventHandler
	seen       *dedup.Set
	identity   BotIdentity
	notifier   StartupNotifier
	database   HealthChecker
	closers    []io.Closer
	httpServer *http.Server
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	botUserID  string
	startTime  time.Time
}

// New creates a bot service from already constructed dependencies
func New(cfg *config.Config, logger *zap.Logger, deps Dependencies) *Service {
	return &Service{
		config:    cfg,
		logger:    logger,
		handler:   deps.Handler,
		seen:      deps.Seen,
		identity:  deps.Identity,
		notifier:  deps.Notifier,
		database:  deps.Database,
		closers:   deps.Closers,
		botUserID: cfg.SlackBotUserID,
		startTime: time.Now(),
	}
}

// Start resolves the bot identity and starts the HTTP server and the
// dedup window in the background
func (s *Service) Start(ctx context.Context) error {
	s.logger.Info("Starting Happy on Slack",
		zap.String("bot_name", s.config.BotDisplayName),
		zap.String("version", version.GetBuildInfo()))

	if s.botUserID == "" && s.identity != nil {
		id, err := s.identity.BotUserID(ctx)
		if err != nil {
			// Mentions still work, but self-mentions can't be told apart
			s.logger.Warn("Could not resolve bot user ID, set SLACK_BOT_USER_ID", zap.Error(err))
		}
		s.botUserID = id
	}
	s.handler.SetBotUserID(s.botUserID)
	s.logger.Info("Bot identity resolved", zap.String("bot_user_id", s.botUserID))

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.httpServer = &http.Server{
		Addr:         s.config.Addr(),
		Handler:      s.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.seen.Run(runCtx)
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info("Starting HTTP server",
			zap.String("addr", s.httpServer.Addr),
			zap.String("events_path", s.config.EventsPath))

		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	if s.notifier != nil {
		if err := s.notifier.NotifyStartup(ctx, version.GetVersion()); err != nil {
			s.logger.Warn("Startup notification failed", zap.Error(err))
		}
	}

	return nil
}

// Stop stops the bot service
func (s *Service) Stop() {
	s.logger.Info("Stopping Happy on Slack")

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}
	if s.cancel != nil {
		s.cancel()
	}

	s.wg.Wait()

	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			s.logger.Warn("Close failed", zap.Error(err))
		}
	}

	s.logger.Info("Bot stopped successfully")
}

// Routes returns the HTTP handler of the service
func (s *Service) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleHome)
	mux.HandleFunc(s.config.EventsPath, s.handleSlackEvents)
	mux.HandleFunc(s.config.HealthCheckPath, s.handleHealth)
	mux.HandleFunc("/version", s.handleVersion)
	return mux
}

// handleSlackEvents handles the Events API endpoint. GET is a liveness
// probe; POST carries event deliveries.
func (s *Service) handleSlackEvents(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":    "ok",
			"message":   fmt.Sprintf("%s is alive! 🎉", s.config.BotDisplayName),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	case http.MethodPost:
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	logger := s.logger.With(zap.String("request_id", uuid.NewString()))

	// Slack redelivers when we answer slowly; the first delivery is
	// already being handled
	if retryNum := r.Header.Get("X-Slack-Retry-Num"); retryNum != "" {
		logger.Info("Slack retry ignored",
			zap.String("attempt", retryNum),
			zap.String("reason", r.Header.Get("X-Slack-Retry-Reason")))
		writeJSON(w, http.StatusOK, Response{OK: true, Message: "Retry ignored"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		logger.Error("Failed to read request body", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Bad request"})
		return
	}
	defer r.Body.Close()

	if s.config.SlackSigningSecret != "" {
		if err := verifySignature(r.Header, body, s.config.SlackSigningSecret); err != nil {
			logger.Warn("Invalid Slack signature", zap.Error(err))
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
			return
		}
	}

	// Keep working if Slack hangs up before we reply
	ctx := context.WithoutCancel(r.Context())

	resp, err := s.handler.HandleEvent(ctx, body)
	if err != nil {
		logger.Error("Error processing Slack event", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func verifySignature(header http.Header, body []byte, secret string) error {
	sv, err := slack.NewSecretsVerifier(header, secret)
	if err != nil {
		return err
	}
	if _, err := sv.Write(body); err != nil {
		return err
	}
	return sv.Ensure()
}

// handleHealth handles health check requests
func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":         "healthy",
		"uptime":         time.Since(s.startTime).String(),
		"bot_user_id":    s.botUserID,
		"tracked_events": s.seen.Len(),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	}

	status := http.StatusOK
	if s.database != nil {
		if err := s.database.Health(r.Context()); err != nil {
			health["status"] = "degraded"
			health["database"] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			health["database"] = "ok"
		}
	}

	writeJSON(w, status, health)
}

// handleVersion handles version requests
func (s *Service) handleVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	info := version.GetVersionInfo()
	info["bot_name"] = s.config.BotDisplayName
	info["model"] = s.config.GeminiModel
	info["uptime"] = time.Since(s.startTime).String()

	writeJSON(w, http.StatusOK, info)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
