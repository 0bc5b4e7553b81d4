package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sdgteacher/sdgchat/internal/config"
)

var version = "dev"

var (
	cfg      config.Config
	noColor  bool
	userFlag string
	speakCmd string
)

var rootCmd = &cobra.Command{
	Use:           "sdgchat",
	Short:         "Terminal client for the SDG chat assistant",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return err
		}
		cfg = c
		setupLogging(cfg)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", os.Getenv("NO_COLOR") != "", "disable colored output")
	rootCmd.PersistentFlags().StringVarP(&userFlag, "user", "u", "", "select (or create) this profile before running")
	rootCmd.PersistentFlags().StringVar(&speakCmd, "speak", "", "command that reads replies aloud, e.g. \"espeak\"")

	rootCmd.AddCommand(chatCmd, sendCmd, historyCmd, transcribeCmd)
	rootCmd.AddCommand(captureCmd, profilesCmd, sessionCmd)
	rootCmd.AddCommand(loginCmd, registerCmd, logoutCmd, locketCmd)
	rootCmd.AddCommand(devserverCmd, mcpCmd, configCmd)
}

func setupLogging(c config.Config) {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: c.SlogLevel()})))
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
