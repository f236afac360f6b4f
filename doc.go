/*
Package council manages the lifecycle of multi-agent councils.

A council is a bounded deliberation: a fixed set of agents is invited, evidence
is gathered, the agents exchange proposals and critiques, and a synthesizer
reduces the discussion into a single recommendation. Every council moves through

	pending -> gathering -> deliberating -> synthesizing -> completed

and may end early as failed, timed_out or cancelled. The overall deadline
preempts every other event.

# Architecture

The lifecycle rules live in a pure state machine (internal/runtime) that turns a
council and an event into a new council plus the effects to perform. The
session manager (pkg/session) owns the councils, serializes events per council,
runs adapter calls and timers, and feeds their outcomes back as events. Agents,
evidence providers and synthesizers are ports (pkg/ports) with in-process
(pkg/adapters/local) and HTTP (pkg/adapters/remote) implementations.

Councils are exposed over HTTP with live SSE diffs (pkg/adapters/http) and over
the Model Context Protocol (pkg/adapters/mcp). Finished councils can be archived
in Redis (pkg/adapters/redis), which also provides a distributed lock for
running several managers against the same archive.

# Usage

	mgr, err := session.NewManager(domain.DefaultLimits(),
		local.DefaultRoster(), local.NewEvidence(), local.NewSynthesizer(domain.SynthesisConsensus))
	if err != nil {
		log.Fatal(err)
	}
	defer mgr.Shutdown(context.Background())

	id, err := mgr.CreateSession(ctx, []string{"architect", "critic"}, domain.SessionConfig{
		Topic:        "Should we split the billing service?",
		SkipEvidence: true,
	})

The cmd/council binary wires the same pieces from environment variables:

	council serve              # HTTP API on ORCHESTRATOR_PORT
	council mcp --transport sse
	council session ls         # councils archived in REDIS_URL
*/
package council
