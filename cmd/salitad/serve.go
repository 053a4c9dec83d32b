package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	gosundheit "github.com/AppsFlyer/go-sundheit"
	"github.com/AppsFlyer/go-sundheit/checks"
	gosundheithttp "github.com/AppsFlyer/go-sundheit/http"
	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	intconfig "github.com/dorky-robot/salita-mesh/internal/config"
	"github.com/dorky-robot/salita-mesh/internal/logging"
	"github.com/dorky-robot/salita-mesh/internal/nodeidentity"
	"github.com/dorky-robot/salita-mesh/pkg/log"
	"github.com/dorky-robot/salita-mesh/server"
	"github.com/dorky-robot/salita-mesh/storage"
	"github.com/dorky-robot/salita-mesh/storage/memory"
	sqlstorage "github.com/dorky-robot/salita-mesh/storage/sql"
)

type serveOptions struct {
	config string

	webHTTPAddr   string
	telemetryAddr string
}

func commandServe() *cobra.Command {
	options := serveOptions{}

	cmd := &cobra.Command{
		Use:     "serve [flags] [config file]",
		Short:   "Launch salitad",
		Example: "salitad serve config.yaml",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			cmd.SilenceErrors = true

			options.config = args[0]
			return runServe(options)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&options.webHTTPAddr, "web-http-addr", "", "Web HTTP address")
	flags.StringVar(&options.telemetryAddr, "telemetry-addr", "", "Telemetry address (metrics + healthz)")

	return cmd
}

type serverRunner struct {
	name string
	srv  *http.Server

	logger log.Logger
}

func newServerRunner(name string, srv *http.Server, logger log.Logger) *serverRunner {
	return &serverRunner{name: name, srv: srv, logger: logger}
}

func (s *serverRunner) RunAndShutdownGracefully(gr *run.Group) error {
	listener, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listening (%s) on %s: %v", s.name, s.srv.Addr, err)
	}

	gr.Add(func() error {
		s.logger.Infof("listening (%s) on %s", s.name, s.srv.Addr)
		return s.srv.Serve(listener)
	}, func(err error) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		s.logger.Debugf("starting graceful shutdown (%s)", s.name)
		if err := s.srv.Shutdown(ctx); err != nil {
			s.logger.Errorf("graceful shutdown (%s): %v", s.name, err)
		}
	})
	return nil
}

func runServe(options serveOptions) error {
	c, err := intconfig.Load(options.config)
	if err != nil {
		return err
	}
	applyConfigOverrides(options, &c)

	level, err := parseLogLevel(c.Logger.Level)
	if err != nil {
		return fmt.Errorf("invalid config: %v", err)
	}
	slogger, err := logging.New(level, c.Logger.Format)
	if err != nil {
		return fmt.Errorf("invalid config: %v", err)
	}
	logger := log.NewSlogLogger(slogger)
	logger.Infof("config using log level: %s", c.Logger.Level)

	var db storage.Storage
	if c.Storage.InMemory {
		db = memory.New()
		logger.Infof("config storage: in-memory")
	} else {
		conn, err := (sqlstorage.Config{File: filepath.Join(c.Storage.DataDir, "salita.db")}).Open(logger)
		if err != nil {
			return fmt.Errorf("failed to initialize storage: %v", err)
		}
		defer conn.Close()
		db = conn
		logger.Infof("config storage: sqlite at %s", c.Storage.DataDir)
	}

	identity, err := nodeidentity.LoadOrCreate(c.Storage.DataDir, logger)
	if err != nil {
		return fmt.Errorf("failed to load node identity: %v", err)
	}
	logger.Infof("node identity: %s (%s)", identity.Name, identity.ID)

	prometheusRegistry := prometheus.NewRegistry()
	if err := prometheusRegistry.Register(prometheus.NewGoCollector()); err != nil {
		return fmt.Errorf("failed to register Go runtime metrics: %v", err)
	}
	if err := prometheusRegistry.Register(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{})); err != nil {
		return fmt.Errorf("failed to register process metrics: %v", err)
	}

	healthChecker := gosundheit.New()
	now := func() time.Time { return time.Now().UTC() }

	serverConfig := server.Config{
		Storage:            db,
		SessionTTL:         c.Expiry.SessionTTL,
		LocalhostBypass:    c.Web.LocalhostBypass,
		AllowedOrigins:     []string{"https://" + c.WebAuthn.RPID},
		AllowedHeaders:     []string{"Authorization", "Content-Type"},
		Logger:             logger,
		Now:                now,
		PrometheusRegistry: prometheusRegistry,
		HealthChecker:      healthChecker,
		RPID:               c.WebAuthn.RPID,
		RPDisplayName:      c.WebAuthn.RPDisplayName,
		RPOrigins:          c.WebAuthn.RPOrigins,
	}
	serv, err := server.NewServer(context.Background(), serverConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize server: %v", err)
	}

	healthChecker.RegisterCheck(&gosundheit.Config{
		Check: &checks.CustomCheck{
			CheckName: "storage",
			CheckFunc: storageHealthCheck(db, now),
		},
		ExecutionPeriod:  15 * time.Second,
		InitiallyPassing: true,
	})

	telemetryRouter := http.NewServeMux()
	telemetryRouter.Handle("/metrics", promhttp.HandlerFor(prometheusRegistry, promhttp.HandlerOpts{}))
	telemetryRouter.Handle("/healthz", gosundheithttp.HandleHealthJSON(healthChecker))

	var gr run.Group

	if options.telemetryAddr != "" {
		telemetrySrv := &http.Server{Addr: options.telemetryAddr, Handler: telemetryRouter}
		defer telemetrySrv.Close()

		telemetryRunner := newServerRunner("http/telemetry", telemetrySrv, logger)
		if err := telemetryRunner.RunAndShutdownGracefully(&gr); err != nil {
			return err
		}
	}

	httpSrv := &http.Server{Addr: c.Web.HTTP, Handler: serv}
	defer httpSrv.Close()

	httpRunner := newServerRunner("http", httpSrv, logger)
	if err := httpRunner.RunAndShutdownGracefully(&gr); err != nil {
		return err
	}

	// Periodic sweep of expired pairing states, sessions, and device
	// sessions: storage.GarbageCollect is best-effort and meant to run
	// off the request path, per its own doc comment.
	gcCtx, gcCancel := context.WithCancel(context.Background())
	gr.Add(func() error {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-gcCtx.Done():
				return nil
			case <-ticker.C:
				result, err := db.GarbageCollect(gcCtx, now())
				if err != nil {
					logger.Warnf("garbage collection: %v", err)
					continue
				}
				if !result.IsEmpty() {
					logger.Infof("garbage collected %d pairing states, %d sessions, %d device sessions",
						result.PairingStates, result.Sessions, result.DeviceSessions)
				}
			}
		}
	}, func(error) {
		gcCancel()
	})

	gr.Add(run.SignalHandler(context.Background(), os.Interrupt, syscall.SIGTERM))
	if err := gr.Run(); err != nil {
		if _, ok := err.(run.SignalError); !ok {
			return fmt.Errorf("run groups: %w", err)
		}
		logger.Infof("%v, shutdown now", err)
	}
	return nil
}

// storageHealthCheck adapts a storage.Storage round-trip into the
// gosundheit checks.CustomCheck signature, grounded on dex's own
// storage.NewCustomHealthCheckFunc: a GarbageCollect call stands in for
// dex's dedicated ping since this module's storage interface has no
// separate health-check method.
func storageHealthCheck(db storage.Storage, now func() time.Time) func(context.Context) (details interface{}, err error) {
	return func(ctx context.Context) (interface{}, error) {
		if _, err := db.GarbageCollect(ctx, now()); err != nil {
			return nil, err
		}
		return "ok", nil
	}
}

var logLevels = []string{"debug", "info", "warn", "error"}

func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("log level is not one of the supported values (%s): %s", strings.Join(logLevels, ", "), level)
	}
}

func applyConfigOverrides(options serveOptions, config *intconfig.Config) {
	if options.webHTTPAddr != "" {
		config.Web.HTTP = options.webHTTPAddr
	}
}
