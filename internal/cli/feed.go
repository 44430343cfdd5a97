package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrEthical07/civiclens"
	"github.com/MrEthical07/civiclens/fetch"
	"github.com/MrEthical07/civiclens/metrics/export/prometheus"
)

type feedOptions struct {
	endpoints   []string
	path        string
	timeout     time.Duration
	itemsField  string
	showMetrics bool
}

func newFeedCommand(root *rootOptions) *cobra.Command {
	opts := &feedOptions{}
	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Fetch the latest bills through the candidate endpoints",
		Long: `feed tries each candidate endpoint in order until one answers with a JSON
object, then prints the display title of every bill. Per-attempt diagnostics go to
stderr. The exit code is 3 when no candidate answered.`,
		Example: `  civiclens feed
  civiclens feed --endpoint lan=http://192.168.1.20:8000 --endpoint http://localhost:8000
  civiclens feed --path '/bills/latest?limit=10' --timeout 3s`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runFeed(cmd, root, opts)
		},
	}
	cmd.Flags().StringArrayVar(&opts.endpoints, "endpoint", nil, "candidate base URL, optionally label=url (repeatable, replaces configured list)")
	cmd.Flags().StringVar(&opts.path, "path", "", "request path (default from config)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "per-attempt timeout (default from config)")
	cmd.Flags().StringVar(&opts.itemsField, "items-field", "", "collection field of the response object")
	cmd.Flags().BoolVar(&opts.showMetrics, "metrics", false, "print metrics in Prometheus format to stderr")
	return cmd
}

func runFeed(cmd *cobra.Command, root *rootOptions, opts *feedOptions) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	if len(opts.endpoints) > 0 {
		cfg.Fetch.Endpoints = opts.endpoints
	}
	if opts.path != "" {
		cfg.Fetch.Path = opts.path
	}
	if opts.timeout != 0 {
		cfg.Fetch.Timeout = opts.timeout
	}
	if opts.itemsField != "" {
		cfg.Fetch.ItemsField = opts.itemsField
	}

	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()
	client, err := civiclens.New().
		WithConfig(cfg).
		WithLogger(newLogger(cfg, stderr)).
		Build()
	if err != nil {
		return usageError(err)
	}
	defer client.Close()

	view := client.FetchFeed(cmd.Context())
	for _, a := range view.Attempts {
		if a.Failed() {
			fmt.Fprintf(stderr, "attempt %-24s %s (%s)\n", a.String(), a.Detail, a.Duration.Round(time.Millisecond))
		}
	}
	if opts.showMetrics {
		defer func() { fmt.Fprint(stderr, prometheus.NewExporter(client).Render()) }()
	}

	switch view.State {
	case fetch.FeedReady:
		fmt.Fprintf(stderr, "answered by %s\n", view.Endpoint.Name())
		for i, item := range view.Items {
			fmt.Fprintf(stdout, "%d. %s\n", i+1, item.DisplayTitle())
		}
		return nil
	case fetch.FeedEmpty:
		fmt.Fprintf(stderr, "answered by %s\n", view.Endpoint.Name())
		fmt.Fprintln(stdout, "No bills found.")
		return nil
	case fetch.FeedUnreachable:
		fmt.Fprintln(stderr, view.Message)
		return &ExitError{Code: ExitUnreachable, Err: fetch.ErrUnreachable}
	default:
		if err := cmd.Context().Err(); err != nil {
			return err
		}
		return errors.New("feed load did not complete")
	}
}
