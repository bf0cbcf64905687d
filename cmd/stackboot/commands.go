package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/ptdang/stackboot"
	"github.com/ptdang/stackboot/internal/server"
	"github.com/ptdang/stackboot/internal/supervisor"
)

// version is stamped at build time via -ldflags.
var version = "dev"

// Exit codes: 0 clean shutdown, 1 startup or runtime failure, 2 forced
// shutdown after the ceiling fired.
const exitForced = 2

func createUpCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Launch the stack and supervise it until shutdown",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := stackboot.LoadConfig(flags.ConfigPath)
			if err != nil {
				return fmt.Errorf("load config %s: %w", flags.ConfigPath, err)
			}
			logger := cfg.Logger.NewSlogger()

			if cfg.Metrics.Enabled {
				if err := stackboot.RegisterMetrics(prometheus.DefaultRegisterer); err != nil {
					return fmt.Errorf("register metrics: %w", err)
				}
			}

			var sink stackboot.HistorySink
			if cfg.History.Enabled {
				sink, err = stackboot.NewHistorySink(cfg.History.DSN)
				if err != nil {
					return fmt.Errorf("open history sink: %w", err)
				}
				defer func() { _ = sink.Close() }()
			}

			// The API shutdown handler gets cancel, not the NotifyContext stop:
			// stop would also unregister the signal handlers, turning a late
			// SIGTERM into a hard kill mid-teardown.
			runCtx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			ctx, stop := signal.NotifyContext(runCtx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			stack := stackboot.New(cfg, logger, sink)

			var api *http.Server
			if cfg.Server.Enabled {
				router := server.NewRouter(stackView{stack}, cancel, "", cfg.Metrics.Enabled)
				api = server.NewServer(cfg.Server.Listen, router)
				logger.Info("status API listening", "addr", cfg.Server.Listen)
			}

			runErr := stack.Run(ctx)

			if api != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				_ = api.Shutdown(shutdownCtx)
				cancel()
			}

			if runErr != nil {
				if errors.Is(runErr, supervisor.ErrShutdownCeiling) {
					logger.Error("stack terminated forcibly", "error", runErr)
					os.Exit(exitForced)
				}
				return runErr
			}
			return nil
		},
	}
}

func createCheckCommand(flags *GlobalFlags) *cobra.Command {
	var probe bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the config file and optionally probe health endpoints once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := stackboot.LoadConfig(flags.ConfigPath)
			if err != nil {
				return fmt.Errorf("config invalid: %w", err)
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "config ok: %d backends + frontend %q\n", len(cfg.Backends), cfg.Frontend.Name)
			for _, b := range cfg.Backends {
				health := b.HealthURL
				if health == "" {
					health = "(none)"
				}
				_, _ = fmt.Fprintf(out, "  tier %d  %-24s health=%s\n", b.Tier, b.Name, health)
			}
			_, _ = fmt.Fprintf(out, "  tier %d  %-24s (frontend)\n", cfg.Frontend.Tier, cfg.Frontend.Name)
			if !probe {
				return nil
			}
			rep := stackboot.ProbeOnce(cmd.Context(), cfg)
			for _, res := range rep.Results {
				state := "healthy"
				if !res.Healthy {
					state = "unhealthy: " + res.LastError
				}
				_, _ = fmt.Fprintf(out, "probe %-24s %s\n", res.Name, state)
			}
			if !rep.AllHealthy {
				return fmt.Errorf("%d endpoint(s) unhealthy", len(rep.Unhealthy()))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&probe, "probe", false, "issue one probe against each configured health endpoint")
	return cmd
}

func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the stackboot version",
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "stackboot", version)
		},
	}
}

// stackView adapts the public facade to the server's read interface.
type stackView struct{ s *stackboot.Stack }

func (v stackView) Phase() supervisor.Phase              { return v.s.Phase() }
func (v stackView) Statuses() []stackboot.Status         { return v.s.Statuses() }
func (v stackView) HealthReport() stackboot.HealthReport { return v.s.HealthReport() }
