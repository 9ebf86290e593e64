package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ghabxph/happy-on-slack/internal/bot"
	"github.com/ghabxph/happy-on-slack/internal/config"
	"github.com/ghabxph/happy-on-slack/internal/logging"
	"github.com/ghabxph/happy-on-slack/internal/version"
)

var (
	envFile string
	port    int
)

var rootCmd = &cobra.Command{
	Use:   "happybot",
	Short: "Happy, a friendly Gemini-backed Slack bot",
	Long:  "happybot answers Slack app mentions in their thread, using the thread and recent channel chatter as context for Gemini.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Slack events webhook server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
	serveCmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (overrides SERVER_PORT)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(interactionsCmd())

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("happybot %s\n", version.GetBuildInfo())
		},
	})
}

// loadConfig reads the dotenv file, then the environment
func loadConfig() (*config.Config, error) {
	// A missing dotenv file is fine; the environment may already be set
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func runServe() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if port != 0 {
		cfg.ServerPort = port
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, err := logging.NewLogger(cfg.LogLevel, cfg.LogFormat, cfg.EnableDebug)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := bot.NewService(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to create bot service", zap.Error(err))
		return err
	}

	if err := svc.Start(ctx); err != nil {
		logger.Error("Failed to start bot service", zap.Error(err))
		return err
	}

	<-ctx.Done()
	logger.Info("Shutdown signal received")
	svc.Stop()

	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
