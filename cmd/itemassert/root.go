package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/rendis/itemassert/internal/logging"
)

var (
	cfg    Config
	logger *slog.Logger

	flagLogLevel       string
	flagLogFormat      string
	flagConcurrency    int
	flagContinueOnFail bool
	flagNode           string
)

var rootCmd = &cobra.Command{
	Use:   "itemassert",
	Short: "Assert pipeline items against reference documents",
	Long: `itemassert checks workflow items against expectations.

compare classifies the keys of each item against a reference JSON document
(missing, extra, mismatched) and fails according to the tolerance flags.
binary checks an item attachment's payload and metadata. docs calls the
documents API, and mcp serves all of it as MCP tools over stdio.

Configuration is read from ~/.itemassert/settings.json and ITEMASSERT_* env vars.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagLogLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.StringVar(&flagLogFormat, "log-format", "", "log format (text, json)")
	pf.IntVarP(&flagConcurrency, "concurrency", "c", 0, "items processed in parallel")
	pf.BoolVar(&flagContinueOnFail, "continue-on-fail", false, "report failing items instead of aborting")
	pf.StringVar(&flagNode, "node", "", "node name used in errors and logs")
}

// setup resolves configuration and builds the logger. Flags override every
// other layer.
func setup(cmd *cobra.Command, _ []string) error {
	cfg = loadConfig()

	pf := cmd.Flags()
	if pf.Changed("log-level") {
		cfg.LogLevel = flagLogLevel
	}
	if pf.Changed("log-format") {
		cfg.LogFormat = flagLogFormat
	}
	if pf.Changed("concurrency") && flagConcurrency > 0 {
		cfg.Concurrency = flagConcurrency
	}
	if pf.Changed("continue-on-fail") {
		cfg.ContinueOnFail = flagContinueOnFail
	}

	logger = logging.New(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
	return nil
}
