package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/humbrol2/humbbot-memory/internal/compact"
	"github.com/humbrol2/humbbot-memory/internal/config"
	"github.com/humbrol2/humbbot-memory/internal/engine"
	"github.com/humbrol2/humbbot-memory/internal/metrics"
)

func init() {
	cmd := &cobra.Command{
		Use:   "compactd",
		Short: "Run scheduled compaction over every session",
		Long: "Compact every session in the data directory on the compaction.schedule cron\n" +
			"expression until interrupted. With --metrics-addr, Prometheus metrics are\n" +
			"served at /metrics.",
		Run: runCompactd,
	}

	cmd.Flags().String("metrics-addr", "", "Listen address for /metrics, e.g. :9464")
	cmd.Flags().Bool("once", false, "Run one pass over all sessions and exit")

	RootCmd.AddCommand(cmd)
}

func runCompactd(cmd *cobra.Command, args []string) {
	addr, _ := cmd.Flags().GetString("metrics-addr")
	once, _ := cmd.Flags().GetBool("once")

	cfg, err := loadConfig()
	if err != nil {
		exitErr("load config", err)
	}
	log, err := newLogger(cfg)
	if err != nil {
		exitErr("logger", err)
	}
	m := metrics.New(nil)

	job := func(ctx context.Context) error {
		return compactAll(ctx, cfg, m, log)
	}

	if once {
		if err := job(cmd.Context()); err != nil {
			exitErr("compact", err)
		}
		return
	}

	sched, err := compact.NewScheduler(cfg.Compaction.Schedule, cfg.Compaction.Timeout, job, log)
	if err != nil {
		exitErr("schedule", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var srv *http.Server
	if addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		srv = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server failed", "addr", addr, "error", err)
				stop()
			}
		}()
		log.Info("serving metrics", "addr", addr)
	}

	sched.Start()
	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sched.Stop(shutdownCtx)
	if srv != nil {
		_ = srv.Shutdown(shutdownCtx)
	}
}

// compactAll opens each session in turn and runs a scheduled compaction.
// One failing session does not stop the others.
func compactAll(ctx context.Context, cfg *config.Config, m *metrics.Metrics, log *slog.Logger) error {
	names, err := engine.ListSessions(cfg.DataDir)
	if err != nil {
		return err
	}
	var errs []error
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := compactSession(ctx, name, cfg, m, log); err != nil {
			log.Error("session compaction failed", "session", name, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func compactSession(ctx context.Context, name string, cfg *config.Config, m *metrics.Metrics, log *slog.Logger) error {
	e, err := engine.Open(ctx, engine.Options{Session: name, Config: cfg, Metrics: m, Logger: log})
	if err != nil {
		return err
	}
	_, err = e.CompactScheduled(ctx)
	return errors.Join(err, e.Close())
}
