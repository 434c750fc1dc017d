package api

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/cors"

	"github.com/netlens/netlens/api/routes"
	"github.com/netlens/netlens/internal/config"
	"github.com/netlens/netlens/internal/db"
	"github.com/netlens/netlens/internal/ingester"
	"github.com/netlens/netlens/internal/leader"
	"github.com/netlens/netlens/internal/retention"
)

// retentionLockKey is the advisory lock key for the retention worker when
// several replicas share one PostgreSQL database.
const retentionLockKey int64 = 0x6e65746c656e73

func RegisterFlags(fs *flag.FlagSet, configFile *string) {
	fs.StringVar(configFile, "config-file", "", "Path to the configuration file, it takes precedence over the command line flags.")
	fs.StringVar(&config.DefaultConfig.Database.Provider, "database-provider", "sqlite", "The provider of database to use for storing request events. Supported values: postgresql, sqlite.")
	fs.StringVar(&config.DefaultConfig.Server.InsecureListenAddress, "insecure-listen-address", ":9091", "The address the netlens HTTP server should listen on.")
	fs.StringVar(&config.DefaultConfig.Upstream.URL, "upstream", "", "The URL of the upstream service whose network activity is recorded.")
	fs.IntVar(&config.DefaultConfig.Insert.BufferSize, "insert-buffer-size", 100, "Buffer size for the insert channel.")
	fs.IntVar(&config.DefaultConfig.Insert.BatchSize, "insert-batch-size", 10, "Batch size for inserting request events into the database.")
	fs.DurationVar(&config.DefaultConfig.Insert.Timeout, "insert-timeout", 1*time.Second, "Timeout to insert a batch of request events into the database.")
	fs.DurationVar(&config.DefaultConfig.Insert.FlushInterval, "insert-flush-interval", 5*time.Second, "Flush interval for inserting request events into the database.")
	fs.DurationVar(&config.DefaultConfig.Insert.GracePeriod, "insert-grace-period", 5*time.Second, "Grace period to insert pending request events after program shutdown.")

	db.RegisterPostGreSQLFlags(fs)
	db.RegisterSqliteFlags(fs)
	config.RegisterTimelineFlags(fs)
	config.RegisterRetentionFlags(fs)
	config.RegisterMemoryLimitFlags(fs)
}

func Run() error {
	upstreamURL, err := url.Parse(config.DefaultConfig.Upstream.URL)
	if err != nil {
		slog.Error("unable to parse upstream", "err", err)
		return fmt.Errorf("parse upstream: %w", err)
	}

	if upstreamURL.Scheme != "http" && upstreamURL.Scheme != "https" {
		slog.Error(fmt.Sprintf("invalid scheme for upstream URL %q, only 'http' and 'https' are supported", config.DefaultConfig.Upstream.URL))
		return fmt.Errorf("invalid upstream scheme: %s", upstreamURL.Scheme)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var g run.Group

	dbProvider, err := db.GetDbProvider(context.Background(), db.DatabaseProvider(config.DefaultConfig.Database.Provider))
	if err != nil {
		slog.Error("unable to create db provider", "err", err)
		return fmt.Errorf("create db provider: %w", err)
	}
	defer func() {
		if err := dbProvider.Close(); err != nil {
			slog.Error("error closing database provider", "err", err)
		}
	}()

	eventIngester := ingester.NewEventIngester(
		reg,
		dbProvider,
		ingester.WithBufferSize(config.DefaultConfig.Insert.BufferSize),
		ingester.WithIngestTimeout(config.DefaultConfig.Insert.Timeout),
		ingester.WithShutdownGracePeriod(config.DefaultConfig.Insert.GracePeriod),
		ingester.WithBatchSize(config.DefaultConfig.Insert.BatchSize),
		ingester.WithBatchFlushInterval(config.DefaultConfig.Insert.FlushInterval),
	)

	{
		ctx, cancel := context.WithCancel(context.Background())
		g.Add(func() error {
			eventIngester.Run(ctx)
			return nil
		}, func(err error) {
			cancel()
		})
	}

	{
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		routesHandler, err := routes.NewRoutes(
			routes.WithProxy(upstreamURL),
			routes.WithDBProvider(dbProvider),
			routes.WithEventIngester(eventIngester),
			routes.WithTargetTickCount(config.DefaultConfig.TickCount()),
			routes.WithDefaultWindow(config.DefaultConfig.Timeline.DefaultWindow),
			routes.WithHandlers(reg, config.DefaultConfig.IsTracingEnabled()),
		)
		if err != nil {
			slog.Error("unable to create routes", "err", err)
			return fmt.Errorf("create routes: %w", err)
		}

		mux := http.NewServeMux()
		mux.Handle("/", routesHandler)

		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("X-XSS-Protection", "1; mode=block")
			mux.ServeHTTP(w, r)
		})

		corsHandler := cors.New(cors.Options{
			AllowedOrigins:   config.DefaultConfig.CORS.AllowedOrigins,
			AllowedMethods:   config.DefaultConfig.CORS.AllowedMethods,
			AllowedHeaders:   config.DefaultConfig.CORS.AllowedHeaders,
			AllowCredentials: config.DefaultConfig.CORS.AllowCredentials,
			MaxAge:           config.DefaultConfig.CORS.MaxAge,
		}).Handler(handler)

		l, err := net.Listen("tcp", config.DefaultConfig.Server.InsecureListenAddress)
		if err != nil {
			slog.Error("failed to listen on address", "err", err)
			return fmt.Errorf("listen: %w", err)
		}

		srv := &http.Server{
			Handler: corsHandler,
		}

		g.Add(func() error {
			slog.Info("listening insecurely", "addr", l.Addr())
			if err := srv.Serve(l); err != nil && err != http.ErrServerClosed {
				slog.Error("server stopped", "err", err)
				return err
			}
			return nil
		}, func(error) {
			slog.Info("stopping HTTP Server")
			cancel()
			if err := srv.Shutdown(ctx); err != nil {
				slog.Error("error shutting down server", "err", err)
			}
		})
	}

	if config.DefaultConfig.Retention.Enabled {
		retWorker, err := retention.NewWorker(dbProvider, config.DefaultConfig, reg)
		if err != nil {
			slog.Error("unable to create retention worker", "err", err)
		} else {
			switch db.DatabaseProvider(config.DefaultConfig.Database.Provider) {
			case db.PostGreSQL:
				dbProvider.WithDB(func(d *sql.DB) {
					ctx, cancel := context.WithCancel(context.Background())
					g.Add(func() error {
						leader.WithPGAdvisoryLeadership(ctx, d, retentionLockKey, retWorker.RunLeaderless)
						return nil
					}, func(err error) { cancel() })
				})
			default:
				ctx, cancel := context.WithCancel(context.Background())
				g.Add(func() error { retWorker.RunLeaderless(ctx); return nil }, func(err error) { cancel() })
			}
		}
	}

	{
		g.Add(run.SignalHandler(context.Background(), syscall.SIGINT, syscall.SIGTERM))
	}

	if err := g.Run(); err != nil {
		if !errors.As(err, &run.SignalError{}) {
			return err
		}
	}
	return nil
}
