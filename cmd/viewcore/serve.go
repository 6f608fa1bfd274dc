package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/vango-dev/viewcore/internal/config"
	"github.com/vango-dev/viewcore/internal/demo"
	"github.com/vango-dev/viewcore/internal/errors"
	"github.com/vango-dev/viewcore/pkg/driver"
	"github.com/vango-dev/viewcore/pkg/element"
	"github.com/vango-dev/viewcore/pkg/journal"
	"github.com/vango-dev/viewcore/pkg/transport"
	"github.com/vango-dev/viewcore/pkg/view"
)

func serveCmd(load func() (*config.Config, error)) *cobra.Command {
	var (
		port   int
		host   string
		record bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the todo demo over WebSocket",
		Long: `Serve the todo demo. Each WebSocket connection on /ws gets its own
driver; /healthz reports the number of sessions and /metrics exposes
Prometheus metrics when enabled.

Examples:
  viewcore serve
  viewcore serve --port=8080 --journal`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if port > 0 {
				cfg.Server.Port = port
			}
			if host != "" {
				cfg.Server.Host = host
			}
			if record {
				cfg.Journal.Enabled = true
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "Port to listen on (default from config)")
	cmd.Flags().StringVarP(&host, "host", "H", "", "Host to bind to (default from config)")
	cmd.Flags().BoolVar(&record, "journal", false, "Record every session's messages and actions")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logger, err := cfg.Log.NewLogger(os.Stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	var (
		gatherer prometheus.Gatherer
		metrics  *driver.Metrics
	)
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics = newMetrics(cfg.Metrics, reg)
		gatherer = reg
	}

	read, write, ping := cfg.Server.Timeouts()
	tc := transport.DefaultConfig()
	tc.ReadTimeout = read
	tc.WriteTimeout = write
	tc.PingInterval = ping
	tc.MaxMessageSize = cfg.Server.MaxMessageSize
	tc.CheckOrigin = checkOrigin(cfg.Server.AllowedOrigins)

	newSession := sessionFactory(cfg, logger, metrics)
	srv := transport.New(newSession,
		transport.WithConfig(tc),
		transport.WithLogger(logger),
		transport.WithGatherer(gatherer),
	)

	ln, err := net.Listen("tcp", cfg.Address())
	if err != nil {
		return errors.New("VC200").WithDetail("Cannot listen on " + cfg.Address()).Wrap(err)
	}
	httpSrv := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.Serve(ln)
	}()
	success("Serving on http://%s", ln.Addr())
	info("WebSocket: ws://%s/ws", ln.Addr())

	select {
	case err := <-errCh:
		return errors.New("VC201").Wrap(err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return srv.Shutdown(shutdownCtx)
}

func newMetrics(mc config.MetricsConfig, reg prometheus.Registerer) *driver.Metrics {
	opts := []driver.MetricsOption{
		driver.WithRegistry(reg),
		driver.WithNamespace(mc.Namespace),
		driver.WithSubsystem(mc.Subsystem),
	}
	if len(mc.Buckets) > 0 {
		opts = append(opts, driver.WithBuckets(mc.Buckets))
	}
	if len(mc.Labels) > 0 {
		opts = append(opts, driver.WithConstLabels(prometheus.Labels(mc.Labels)))
	}
	return driver.NewMetrics(opts...)
}

// sessionFactory returns the constructor of one demo session per
// connection. A nil metrics disables driver metrics.
func sessionFactory(cfg *config.Config, logger *slog.Logger, metrics *driver.Metrics) transport.SessionFunc {
	return func(tree element.Tree) transport.Session {
		app := &demo.App{TickInterval: cfg.Driver.Tick()}
		opts := []driver.Option{
			driver.WithLogger(logger),
			driver.WithQueueSize(cfg.Driver.QueueSize),
			driver.WithMetrics(metrics),
		}
		if cfg.Driver.DebugIDs {
			opts = append(opts, driver.WithViewOptions(view.WithDebugIDs()))
		}

		var w *journal.Writer
		if cfg.Journal.Enabled {
			id := uuid.Must(uuid.NewV7()).String()
			sink, err := openSink(cfg.Journal, id)
			if err != nil {
				logger.Error("journal disabled for session", "error", err)
			} else {
				w = journal.NewWriter(sink,
					journal.WithSegmentSize(cfg.Journal.SegmentSize),
					journal.WithActionCodec(demo.Codec{}),
					journal.WithLogger(logger))
				opts = append(opts, driver.WithJournal(w))
				logger.Info("recording session", "journal", id)
			}
		}

		d := driver.New[demo.State](app, tree, demo.Initial(), opts...)
		app.Dispatch = d.Dispatch
		return &session{Driver: d, journal: w, logger: logger}
	}
}

// session closes the journal writer once its driver stops.
type session struct {
	*driver.Driver[demo.State]
	journal *journal.Writer
	logger  *slog.Logger
}

func (s *session) Run(ctx context.Context) error {
	err := s.Driver.Run(ctx)
	if s.journal != nil {
		if cerr := s.journal.Close(context.Background()); cerr != nil {
			s.logger.Error("journal close failed", "error", cerr)
		}
	}
	return err
}

func checkOrigin(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	if slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}
