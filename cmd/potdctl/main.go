package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/park285/codeforces-potd-bot/internal/app"
	"github.com/park285/codeforces-potd-bot/internal/config"
	"github.com/park285/codeforces-potd-bot/internal/obslog"
)

// commands annotated with skipApp only need configuration
const skipApp = "skip-app"

var (
	cfg    *config.AppConfig
	botApp *app.App
)

var rootCmd = &cobra.Command{
	Use:           "potdctl",
	Short:         "Operate the Codeforces POTD bot from the shell",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()
		if err := obslog.InitFromEnv(); err != nil {
			return fmt.Errorf("init logging: %w", err)
		}
		c, err := config.Load()
		if err != nil {
			return err
		}
		cfg = c
		if cmd.Annotations[skipApp] != "" {
			return nil
		}
		a, err := app.Build(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		botApp = a
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if botApp != nil {
			if err := botApp.Close(); err != nil {
				obslog.L().Warn("app_close_failed", zap.Error(err))
			}
		}
		obslog.Sync()
	},
}

func init() {
	rootCmd.AddCommand(syncCmd, selectCmd, pollCmd, leaderboardCmd, irisCheckCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
