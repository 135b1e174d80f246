package main

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"ovenbook/internal/config"
)

// rootOptions holds global flags for all commands.
type rootOptions struct {
	ConfigPath string
	EnvFile    string

	cfg    *config.Config
	logger zerolog.Logger
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "ovenbook",
		Short:         "Lab oven booking service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if opts.EnvFile != "" {
				if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
					return err
				}
			}
			cfg, err := config.Load(opts.ConfigPath)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			opts.logger = newLogger(cfg, os.Stdout)
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to config.yaml (default $OVENBOOK_CONFIG_PATH or "+config.DefaultPath+")")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file loaded before the config")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newSweepCommand(opts))
	cmd.AddCommand(newExportCommand(opts))
	cmd.AddCommand(newMaintenanceCommand(opts))
	return cmd
}

func newLogger(cfg *config.Config, out io.Writer) zerolog.Logger {
	var w io.Writer = out
	if cfg.Logging.Format != "json" {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(cfg.LogLevel()).With().Timestamp().Logger()
}
