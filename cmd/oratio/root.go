package main

import (
	"errors"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/MrWong99/oratio/internal/app"
	"github.com/MrWong99/oratio/internal/config"
)

var version = "dev"

// globals holds the persistent flags and the state they produce.
type globals struct {
	configPath string
	logLevel   string

	cfg   *config.Config
	level *slog.LevelVar
}

func newRootCommand() *cobra.Command {
	g := &globals{level: new(slog.LevelVar)}

	cmd := &cobra.Command{
		Use:   "oratio",
		Short: "Oratio - speech transcript analysis and coaching",
		Long: `Oratio analyses timed speech transcripts.

It detects delivery issues with per-language rule packs, computes pace,
clarity, fluency and engagement metrics, optionally refines the findings
with an LLM, and builds a prioritised practice plan.`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return g.load(cmd)
		},
	}

	cmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "oratio.yaml", "path to the YAML configuration file")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "override server.log_level (debug, info, warn, error)")

	cmd.AddCommand(newAnalyzeCommand(g))
	cmd.AddCommand(newRulesCommand(g))
	cmd.AddCommand(newServeCommand(g))

	return cmd
}

// load reads the config file and installs the default logger. A missing
// config file is fine unless --config was given explicitly.
func (g *globals) load(cmd *cobra.Command) error {
	cfg, err := config.Load(g.configPath)
	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist) && !cmd.Flags().Changed("config"):
		cfg = config.Default()
	default:
		return &InputError{Err: err}
	}

	if g.logLevel != "" {
		lvl := config.LogLevel(g.logLevel)
		if !lvl.IsValid() {
			return &InputError{Err: errors.New("--log-level must be one of debug, info, warn, error")}
		}
		cfg.Server.LogLevel = lvl
	}
	g.cfg = cfg

	g.level.Set(app.ParseLevel(cfg.Server.LogLevel))
	slog.SetDefault(newLogger(cmd.ErrOrStderr(), cfg.Server.LogFormat, g.level))
	return nil
}

func newLogger(w io.Writer, format string, level slog.Leveler) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func execute() error {
	return newRootCommand().Execute()
}
