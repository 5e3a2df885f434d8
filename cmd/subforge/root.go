package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/subforge/subforge/internal/config"
)

// appContext carries the lazily loaded configuration shared by all
// subcommands.
type appContext struct {
	configPath *string
	cfg        *config.Config
}

// load reads the configuration file named by --config. Without the flag the
// engine runs entirely on defaults.
func (a *appContext) load() error {
	if *a.configPath == "" {
		a.cfg = &config.Config{}
	} else {
		cfg, err := config.Load(*a.configPath)
		if err != nil {
			return err
		}
		a.cfg = cfg
	}
	slog.SetDefault(newLogger(a.cfg.LogLevel))
	return nil
}

func newRootCommand() *cobra.Command {
	var configFlag string
	app := &appContext{configPath: &configFlag}

	rootCmd := &cobra.Command{
		Use:           "subforge",
		Short:         "Segment recognizer word streams into subtitles and realign model rewrites onto the original timeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.load()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "configuration file path")

	rootCmd.AddCommand(newProcessCommand(app))
	rootCmd.AddCommand(newTranslateCommand(app))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the subforge version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), version)
			return nil
		},
	}
}

func newLogger(level config.LogLevel) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level.SlogLevel(),
	}))
}
