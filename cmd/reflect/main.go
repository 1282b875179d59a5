// Package main provides the reflect command: it reads Claude Code
// conversation dumps and prints the corrected session metrics report.
package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/roip/claude-reflections/internal/analyze"
	"github.com/roip/claude-reflections/internal/config"
	"github.com/roip/claude-reflections/internal/report"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	// All logging goes to stderr; stdout carries only the report.
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true})

	app := &cli.App{
		Name:      "reflect",
		Usage:     "Corrected session metrics for Claude Code conversation dumps",
		ArgsUsage: "[conversation-file | dump-dir]",
		Version:   Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "root",
				Usage: "Directory searched for dumps when no path is given",
				Value: ".",
			},
			&cli.IntFlag{
				Name:  "idle-gap",
				Usage: "Smallest pause counted as idle time, in seconds",
				Value: config.DefaultIdleGapSeconds,
			},
			&cli.IntFlag{
				Name:  "max-result-lines",
				Usage: "Tool result lines kept per event (negative keeps all)",
				Value: config.DefaultMaxResultLines,
			},
			&cli.IntFlag{
				Name:  "lookback",
				Usage: "Direction-change window in user messages",
				Value: config.DefaultLookback,
			},
			&cli.StringFlag{
				Name:  "rules",
				Usage: "Classifier rule override file",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Emit the report as JSON instead of text",
			},
			&cli.BoolFlag{
				Name:  "no-color",
				Usage: "Disable ANSI colors",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Error().Err(err).Msg("Analysis failed")
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	if c.Bool("debug") {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	// First run scaffolding: the data dir plus a settings template to edit.
	if err := config.EnsureAll(); err != nil {
		log.Warn().Err(err).Msg("Could not create data directory")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load config, using defaults")
		cfg = config.Default()
	}

	// Command-line flags win over settings file and environment.
	if c.IsSet("root") {
		cfg.DumpRoot = c.String("root")
	}
	if c.IsSet("idle-gap") {
		cfg.IdleGapSeconds = c.Int("idle-gap")
	}
	if c.IsSet("max-result-lines") {
		cfg.MaxResultLines = c.Int("max-result-lines")
	}
	if c.IsSet("lookback") {
		cfg.Lookback = c.Int("lookback")
	}
	if c.IsSet("rules") {
		cfg.RulesPath = c.String("rules")
	}

	analyzer, err := analyze.New(analyze.Options{
		IdleGap:        cfg.IdleGap(),
		MaxResultLines: cfg.MaxResultLines,
		Lookback:       cfg.Lookback,
		RulesPath:      cfg.RulesPath,
		Thresholds:     cfg.Thresholds,
	})
	if err != nil {
		return err
	}

	var rep *analyze.Report
	if path := c.Args().First(); path != "" {
		rep, err = analyzer.AnalyzePath(path)
	} else {
		rep, err = analyzer.AnalyzeLatest(cfg.DumpRoot)
	}
	if err != nil {
		return err
	}

	renderer := report.New(os.Stdout, report.Options{
		Color:      !c.Bool("no-color") && report.ColorsEnabled(),
		Thresholds: cfg.Thresholds,
	})
	if c.Bool("json") {
		return renderer.RenderJSON(rep)
	}
	return renderer.Render(rep)
}
