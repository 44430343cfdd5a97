// Package cli implements the civiclens terminal client.
package cli

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/spf13/cobra"

	"github.com/MrEthical07/civiclens"
	"github.com/MrEthical07/civiclens/internal/logging"
)

type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

// NewRootCommand returns the civiclens command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "civiclens",
		Short: "Civic bills client core",
		Long: `civiclens drives the client core from a terminal: it fetches the latest bills
through the candidate endpoint chain and follows the identity stream with the
route guard attached.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "YAML config file (CIVICLENS_* variables override it)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "text or json")

	root.AddCommand(
		newFeedCommand(opts),
		newWatchCommand(opts),
		newConfigCommand(opts),
	)
	return root
}

// ExecuteContext runs the command tree with os.Args.
func ExecuteContext(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

func (o *rootOptions) loadConfig() (civiclens.Config, error) {
	cfg, err := civiclens.LoadConfig(o.configPath)
	if err != nil {
		return civiclens.Config{}, usageError(err)
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Log.Format = o.logFormat
	}
	return cfg, nil
}

func newLogger(cfg civiclens.Config, w io.Writer) *slog.Logger {
	return logging.New(cfg.Log.Level, cfg.Log.Format, w)
}

// lockedWriter serializes writes from the session loop and the command goroutine.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
