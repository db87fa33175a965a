// Package main provides the dyschat CLI entry point.
package main

import (
	"fmt"
	"os"

	"dyschat/cmd/dyschat/chat"
	"dyschat/internal/auth"
	"dyschat/internal/backend"
	"dyschat/internal/config"
	"dyschat/internal/logging"
	"dyschat/internal/stream"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	verbose     bool
	backendURL  string
	skipModeStr string

	// Shared state initialized in PersistentPreRunE
	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "dyschat",
	Short: "ChatDys - streaming health assistant for dysautonomia and related conditions",
	Long: `dyschat is the terminal client for ChatDys.

Sign in with your ChatDys account, complete your health profile, and ask
questions about dysautonomia, POTS, ME/CFS, Long-Covid, and related
conditions. Answers stream live in five sections: a quick answer, the
ChatDys knowledge base, medical literature, current information, and a
research summary.

Run without arguments to start the interactive chat interface.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if backendURL != "" {
			cfg.Backend.BaseURL = backendURL
		}
		if skipModeStr != "" {
			switch config.SkipMode(skipModeStr) {
			case config.SkipSuppress, config.SkipPlaceholder:
				cfg.Onboarding.SkipMode = config.SkipMode(skipModeStr)
			default:
				return fmt.Errorf("invalid --skip-mode %q (want suppress or placeholder)", skipModeStr)
			}
		}
		if verbose {
			cfg.Logging.DebugMode = true
		}

		stateDir, err := config.Dir()
		if err != nil {
			return fmt.Errorf("failed to resolve state directory: %w", err)
		}
		if err := logging.Initialize(stateDir, logging.Options{
			DebugMode:  cfg.Logging.DebugMode,
			Level:      cfg.Logging.Level,
			Categories: cfg.Logging.Categories,
		}); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}

		// Skip the structured console logger for interactive mode; the TUI
		// owns the terminal.
		if cmd.Use == "dyschat" && cmd.CalledAs() == "dyschat" {
			return nil
		}

		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return chat.Run(cfg)
	},
}

// components bundles the wired clients shared by the non-interactive
// commands. The TUI does its own wiring in chat.Run.
type components struct {
	provider *auth.Provider
	api      *backend.Client
	queries  *stream.Client
}

func buildComponents() (*components, error) {
	stateDir, err := config.Dir()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve state directory: %w", err)
	}
	return &components{
		provider: auth.NewProvider(cfg.Auth, stateDir),
		api:      backend.NewClient(cfg.Backend),
		queries:  stream.NewClient(cfg.Backend),
	}, nil
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&backendURL, "backend-url", "", "Override the backend base URL")
	rootCmd.PersistentFlags().StringVar(&skipModeStr, "skip-mode", "", "Onboarding skip behavior: suppress or placeholder")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(feedbackCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
