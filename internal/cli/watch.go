package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrEthical07/civiclens"
	"github.com/MrEthical07/civiclens/guard"
	"github.com/MrEthical07/civiclens/metrics/export/prometheus"
	"github.com/MrEthical07/civiclens/session"
)

type watchOptions struct {
	stream      string
	initial     string
	metricsAddr string
}

func newWatchCommand(root *rootOptions) *cobra.Command {
	opts := &watchOptions{}
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the identity stream with the route guard attached",
		Long: `watch subscribes to the identity provider, runs the route guard against an
in-memory navigation history and prints every session view and navigation until
interrupted.`,
		Example: `  civiclens watch --stream ws://localhost:9000/identity
  civiclens watch --metrics-addr 127.0.0.1:9464`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd, root, opts)
		},
	}
	cmd.Flags().StringVar(&opts.stream, "stream", "", "identity stream URL (switches to stream mode)")
	cmd.Flags().StringVar(&opts.initial, "initial-route", "/splash", "route the history starts on")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	return cmd
}

func runWatch(cmd *cobra.Command, root *rootOptions, opts *watchOptions) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	if opts.stream != "" {
		cfg.Identity.Mode = civiclens.IdentityStream
		cfg.Identity.StreamURL = opts.stream
	}

	out := &lockedWriter{w: cmd.OutOrStdout()}
	nav := guard.NewHistory(opts.initial)
	nav.OnNavigate(func(op guard.NavOp, current string) {
		fmt.Fprintf(out, "nav    %-7s %s (now %s)\n", op.Kind, op.Route, current)
	})

	client, err := civiclens.New().
		WithConfig(cfg).
		WithLogger(newLogger(cfg, cmd.ErrOrStderr())).
		WithNavigator(nav).
		WithRenderer(func(o guard.Outcome, v session.View) {
			fmt.Fprintln(out, describeView(o, v))
		}).
		Build()
	if err != nil {
		return usageError(err)
	}
	defer client.Close()

	ctx := cmd.Context()
	if opts.metricsAddr != "" {
		stop, err := serveMetrics(ctx, opts.metricsAddr, client, out)
		if err != nil {
			return err
		}
		defer stop()
	}

	if err := client.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

func describeView(o guard.Outcome, v session.View) string {
	s := fmt.Sprintf("view   phase=%s loading=%t transition=%d render=%s", v.Phase, v.Loading, v.Transition, o)
	if v.Session != nil {
		s += fmt.Sprintf(" user=%q", v.Session.Label())
	}
	if v.Notice != "" {
		s += fmt.Sprintf(" notice=%q", v.Notice)
	}
	return s
}

func serveMetrics(ctx context.Context, addr string, client *civiclens.Client, out io.Writer) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen metrics: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", prometheus.NewExporter(client).Handler())
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	fmt.Fprintf(out, "metrics http://%s/metrics\n", ln.Addr())
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(out, "metrics server: %v\n", err)
		}
	}()
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}, nil
}
