// Package cli implements the humbbot-memory CLI commands.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/humbrol2/humbbot-memory/internal/config"
	"github.com/humbrol2/humbbot-memory/internal/engine"
	"github.com/humbrol2/humbbot-memory/internal/logging"
)

var (
	dataDir    string
	session    string
	configPath string
	formatFlag string
	logLevel   string
	logFormat  string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "humbbot-memory",
	Short: "Tiered memory and context assembly for conversational agents",
	Long: "Record interaction events, let them age through memory tiers, and assemble a\n" +
		"token-bounded context block for the next turn. SQLite-backed, one directory per session.",
	SilenceUsage: true,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dataDir, "dir", "d", "", "Data directory (default: $HUMBBOT_MEMORY_DIR or ~/.humbbot-memory)")
	RootCmd.PersistentFlags().StringVarP(&session, "session", "s", "", "Session name (default: $HUMBBOT_MEMORY_SESSION or \"default\")")
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: $HUMBBOT_MEMORY_CONFIG or ~/.humbbot-memory/config.yaml)")
	RootCmd.PersistentFlags().StringVarP(&formatFlag, "format", "f", "json", "Output format: json or text")
	RootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (default from config)")
	RootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: json or text (default from config)")
}

// loadConfig reads the config file and applies command-line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	return logging.New(os.Stderr, level, cfg.Log.Format), nil
}

func sessionName() string {
	if session != "" {
		return session
	}
	if env := os.Getenv("HUMBBOT_MEMORY_SESSION"); env != "" {
		return env
	}
	return "default"
}

func openEngine(ctx context.Context) (*engine.Engine, *config.Config) {
	cfg, err := loadConfig()
	if err != nil {
		exitErr("load config", err)
	}
	log, err := newLogger(cfg)
	if err != nil {
		exitErr("logger", err)
	}
	e, err := engine.Open(ctx, engine.Options{Session: sessionName(), Config: cfg, Logger: log})
	if err != nil {
		exitErr("open session", err)
	}
	return e, cfg
}

func textFormat() bool {
	return strings.EqualFold(formatFlag, "text")
}

func printJSON(w io.Writer, v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintln(w, string(b))
}

// readInput returns the joined args, or stdin when no args are given and
// stdin is not a terminal.
func readInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok {
		stat, err := f.Stat()
		if err != nil || stat.Mode()&os.ModeCharDevice != 0 {
			return "", nil
		}
	}
	b, err := io.ReadAll(in)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
