package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aretw0/council"
	"github.com/aretw0/council/internal/config"
	"github.com/aretw0/council/internal/presentation/tui"
	apihttp "github.com/aretw0/council/pkg/adapters/http"
	"github.com/aretw0/council/pkg/domain"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the council HTTP API",
	Long: `Starts the council manager behind the HTTP API. Agents, evidence and synthesis
are served in-process unless AGENT_REGISTRY_URL, EVIDENCE_PROVIDER_URL or
SYNTHESIS_ENGINE_URL point to remote services.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings(cmd)
		if err != nil {
			return err
		}
		if port, _ := cmd.Flags().GetInt("port"); port != 0 {
			s.Port = port
		}
		logger, err := newLogger(s)
		if err != nil {
			return err
		}
		opts, err := buildFlags(cmd)
		if err != nil {
			return err
		}
		if quiet, _ := cmd.Flags().GetBool("quiet"); !quiet {
			tui.PrintBanner(cmd.ErrOrStderr(), council.Version)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, s, logger, opts)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntP("port", "p", 0, "Port to listen on (overrides ORCHESTRATOR_PORT)")
	serveCmd.Flags().BoolP("quiet", "q", false, "Do not print the banner")
	addBuildFlags(serveCmd)
}

func addBuildFlags(cmd *cobra.Command) {
	cmd.Flags().String("agents-file", "", "YAML or JSON file declaring agents run as local commands")
	cmd.Flags().String("evidence-dir", "", "Serve evidence with source \"file\" from this directory")
	cmd.Flags().String("synthesis", string(domain.SynthesisConsensus), "Local synthesis mode: consensus or best")
	cmd.Flags().Duration("archive-ttl", 24*time.Hour, "How long Redis keeps finished councils (0 keeps them)")
}

func buildFlags(cmd *cobra.Command) (buildOptions, error) {
	agentsFile, _ := cmd.Flags().GetString("agents-file")
	dir, _ := cmd.Flags().GetString("evidence-dir")
	mode, _ := cmd.Flags().GetString("synthesis")
	ttl, _ := cmd.Flags().GetDuration("archive-ttl")
	switch domain.SynthesisMode(mode) {
	case domain.SynthesisConsensus, domain.SynthesisBest:
	default:
		return buildOptions{}, fmt.Errorf("unknown synthesis mode %q", mode)
	}
	return buildOptions{AgentsFile: agentsFile, EvidenceDir: dir, SynthesisMode: domain.SynthesisMode(mode), ArchiveTTL: ttl}, nil
}

// serve runs the API until ctx is done, then drains the servers and cancels
// every council still running.
func serve(ctx context.Context, s config.Settings, logger *slog.Logger, opts buildOptions) error {
	st, err := build(ctx, s, logger, opts)
	if err != nil {
		return err
	}

	handler, err := apihttp.NewHandler(st.manager,
		apihttp.WithLogger(logger),
		apihttp.WithStreams(st.streams),
		apihttp.WithAllowedOrigins(s.AllowedOrigins...),
		apihttp.WithMetricsHandler(st.metricsHandler()),
	)
	if err != nil {
		st.close()
		return err
	}

	servers := []*http.Server{{
		Addr:              s.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}}
	if metrics := st.metricsHandler(); metrics != nil && s.MetricsPort != s.Port {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics)
		servers = append(servers, &http.Server{
			Addr:              s.MetricsAddr(),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		})
	}

	// Channel to listen for errors coming from the listeners.
	serverErrors := make(chan error, len(servers))
	for _, srv := range servers {
		go func(srv *http.Server) {
			logger.Info("listening", "address", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErrors <- fmt.Errorf("listen %s: %w", srv.Addr, err)
			}
		}(srv)
	}

	var runErr error
	select {
	case runErr = <-serverErrors:
		logger.Error("server error", "err", runErr)
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// Cancelling the councils first ends their event streams, so the servers can drain.
	if err := st.manager.Shutdown(shutdownCtx); err != nil {
		runErr = errors.Join(runErr, err)
	}
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("graceful shutdown did not complete", "address", srv.Addr, "err", err)
			srv.Close()
		}
	}
	if err := st.close(); err != nil {
		runErr = errors.Join(runErr, err)
	}
	logger.Info("council server stopped")
	return runErr
}
