package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/council/internal/config"
	"github.com/aretw0/council/pkg/adapters/file"
	apihttp "github.com/aretw0/council/pkg/adapters/http"
	"github.com/aretw0/council/pkg/adapters/local"
	"github.com/aretw0/council/pkg/adapters/memory"
	"github.com/aretw0/council/pkg/adapters/process"
	"github.com/aretw0/council/pkg/adapters/redis"
	"github.com/aretw0/council/pkg/adapters/remote"
	"github.com/aretw0/council/pkg/domain"
	"github.com/aretw0/council/pkg/observability"
	"github.com/aretw0/council/pkg/persistence/middleware"
	"github.com/aretw0/council/pkg/ports"
	"github.com/aretw0/council/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// buildOptions are the command-line choices that are not part of the settings.
type buildOptions struct {
	AgentsFile    string
	EvidenceDir   string
	SynthesisMode domain.SynthesisMode
	ArchiveTTL    time.Duration
}

// stack is a fully wired council manager with its supporting services.
type stack struct {
	manager  *session.Manager
	streams  *apihttp.StreamManager
	registry *prometheus.Registry
	archive  ports.ArchiveStore
	closers  []func() error
}

// build wires the manager from settings: remote adapters where URLs are set,
// command-backed agents from an agents file, in-process ones otherwise; a Redis
// archive and lock when REDIS_URL is set, a directory archive when ARCHIVE_DIR is.
func build(ctx context.Context, s config.Settings, logger *slog.Logger, opts buildOptions) (*stack, error) {
	agents, evidence, synth, err := buildAdapters(s, opts)
	if err != nil {
		return nil, err
	}

	archiveMws, err := s.ArchiveMiddleware()
	if err != nil {
		return nil, err
	}

	st := &stack{streams: apihttp.NewStreamManager(logger)}
	managerOpts := []session.Option{session.WithLogger(logger)}

	if s.RedisURL != "" {
		store, err := redis.New(s.RedisURL, redis.WithTTL(opts.ArchiveTTL))
		if err != nil {
			return nil, err
		}
		if err := store.Ping(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("redis unreachable: %w", err)
		}
		st.archive = middleware.Chain(store, archiveMws...)
		st.closers = append(st.closers, store.Close)
		managerOpts = append(managerOpts,
			session.WithArchive(st.archive),
			session.WithLocker(redis.NewLocker(store.Client(), store.Prefix())),
		)
		logger.Info("archiving councils in redis", "ttl", opts.ArchiveTTL, "encrypted", s.ArchiveKey != "")
	} else {
		var store ports.ArchiveStore = memory.NewStore()
		if s.ArchiveDir != "" {
			store = file.New(s.ArchiveDir)
			logger.Info("archiving councils on disk", "dir", s.ArchiveDir, "encrypted", s.ArchiveKey != "")
		}
		st.archive = middleware.Chain(store, archiveMws...)
		managerOpts = append(managerOpts, session.WithArchive(st.archive))
	}

	hooks := []domain.LifecycleHooks{st.streams.Hooks()}
	if s.EnableMetrics {
		st.registry = prometheus.NewRegistry()
		st.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metrics, err := observability.NewMetrics(st.registry)
		if err != nil {
			st.close()
			return nil, err
		}
		hooks = append(hooks, metrics.Hooks())
	}
	managerOpts = append(managerOpts, session.WithLifecycleHooks(observability.Combine(hooks...)))

	st.manager, err = session.NewManager(s.Limits(), agents, evidence, synth, managerOpts...)
	if err != nil {
		st.close()
		return nil, err
	}
	return st, nil
}

func buildAdapters(s config.Settings, opts buildOptions) (ports.AgentAdapter, ports.EvidenceProvider, ports.Synthesizer, error) {
	var (
		agents   ports.AgentAdapter
		evidence ports.EvidenceProvider
		synth    ports.Synthesizer
		err      error
	)

	if s.AgentRegistryURL != "" {
		if agents, err = remote.NewAgents(s.AgentRegistryURL); err != nil {
			return nil, nil, nil, fmt.Errorf("agent registry: %w", err)
		}
	} else if opts.AgentsFile != "" {
		cfg, err := process.LoadAgents(opts.AgentsFile)
		if err != nil {
			return nil, nil, nil, err
		}
		agents = process.NewAgents(cfg)
	} else {
		agents = local.DefaultRoster()
	}

	if s.EvidenceProviderURL != "" {
		if evidence, err = remote.NewEvidence(s.EvidenceProviderURL); err != nil {
			return nil, nil, nil, fmt.Errorf("evidence provider: %w", err)
		}
	} else {
		ev := local.NewEvidence()
		if opts.EvidenceDir != "" {
			files, err := local.Dir(opts.EvidenceDir)
			if err != nil {
				return nil, nil, nil, err
			}
			ev.Handle("file", files)
		}
		evidence = ev
	}

	if s.SynthesisEngineURL != "" {
		if synth, err = remote.NewSynthesizer(s.SynthesisEngineURL); err != nil {
			return nil, nil, nil, fmt.Errorf("synthesis engine: %w", err)
		}
	} else {
		synth = local.NewSynthesizer(opts.SynthesisMode)
	}
	return agents, evidence, synth, nil
}

// metricsHandler serves the registry, or nil when metrics are disabled.
func (st *stack) metricsHandler() http.Handler {
	if st.registry == nil {
		return nil
	}
	return promhttp.HandlerFor(st.registry, promhttp.HandlerOpts{Registry: st.registry})
}

// shutdown cancels the remaining councils and releases external resources.
func (st *stack) shutdown(ctx context.Context) error {
	err := st.manager.Shutdown(ctx)
	return errors.Join(err, st.close())
}

func (st *stack) close() error {
	var errs []error
	for _, c := range st.closers {
		errs = append(errs, c())
	}
	st.closers = nil
	return errors.Join(errs...)
}
