package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/council/internal/config"
	"github.com/aretw0/council/internal/logging"
	"github.com/aretw0/council/pkg/adapters/local"
	"github.com/aretw0/council/pkg/adapters/process"
	"github.com/aretw0/council/pkg/adapters/remote"
	"github.com/aretw0/council/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaults(t *testing.T) config.Settings {
	t.Helper()
	s, err := config.LoadFrom("", nil)
	require.NoError(t, err)
	return s
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestBuildAdapters(t *testing.T) {
	s := defaults(t)
	agents, evidence, synth, err := buildAdapters(s, buildOptions{EvidenceDir: t.TempDir(), SynthesisMode: domain.SynthesisBest})
	require.NoError(t, err)
	assert.IsType(t, &local.Agents{}, agents)
	assert.IsType(t, &local.Evidence{}, evidence)
	assert.IsType(t, &local.Synthesizer{}, synth)

	s.AgentRegistryURL = "http://registry.internal"
	s.EvidenceProviderURL = "http://evidence.internal"
	s.SynthesisEngineURL = "https://synthesis.internal"
	agents, evidence, synth, err = buildAdapters(s, buildOptions{})
	require.NoError(t, err)
	assert.IsType(t, &remote.Agents{}, agents)
	assert.IsType(t, &remote.Evidence{}, evidence)
	assert.IsType(t, &remote.Synthesizer{}, synth)

	agentsFile := filepath.Join(t.TempDir(), "agents.yaml")
	require.NoError(t, os.WriteFile(agentsFile, []byte("agents:\n  - {name: reviewer, command: echo}\n"), 0o644))
	agents, _, _, err = buildAdapters(defaults(t), buildOptions{AgentsFile: agentsFile})
	require.NoError(t, err)
	assert.IsType(t, &process.Agents{}, agents)

	s.AgentRegistryURL = "registry.internal"
	_, _, _, err = buildAdapters(s, buildOptions{})
	assert.ErrorContains(t, err, "agent registry")

	_, _, _, err = buildAdapters(defaults(t), buildOptions{EvidenceDir: "/does/not/exist"})
	assert.Error(t, err)
}

func TestBuild_RedisArchiveAndMetrics(t *testing.T) {
	mr := miniredis.RunT(t)
	s := defaults(t)
	s.RedisURL = "redis://" + mr.Addr()
	ctx := context.Background()

	st, err := build(ctx, s, logging.NewNop(), buildOptions{SynthesisMode: domain.SynthesisConsensus, ArchiveTTL: time.Hour})
	require.NoError(t, err)

	id, err := st.manager.CreateSession(ctx, []string{"architect", "tester"}, domain.SessionConfig{Topic: "flaky tests", SkipEvidence: true})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		snap, err := st.manager.GetSnapshot(ctx, id)
		return err == nil && snap.Status == domain.StatusCompleted
	}, 2*time.Second, 5*time.Millisecond)

	rec := httptest.NewRecorder()
	st.metricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "council_sessions_created_total 1")

	require.NoError(t, st.manager.Shutdown(ctx))
	archived, err := st.archive.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, archived.Status)
	assert.True(t, mr.Exists("council:session:"+id))
	require.NoError(t, st.close())

	t.Setenv("REDIS_URL", s.RedisURL)
	out, err := execute(t, "session", "ls")
	require.NoError(t, err)
	assert.Contains(t, out, id)

	out, err = execute(t, "session", "inspect", id, "--format", "mermaid")
	require.NoError(t, err)
	assert.Contains(t, out, "synthesizing -- \"synthesized\" --> completed")

	out, err = execute(t, "session", "inspect", id, "--format", "markdown")
	require.NoError(t, err)
	assert.Contains(t, out, "# Council "+id)

	out, err = execute(t, "session", "rm", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Removed council")
	assert.False(t, mr.Exists("council:session:"+id))
}

func TestBuild_EncryptedArchive(t *testing.T) {
	mr := miniredis.RunT(t)
	key := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{7}, 32))
	s := defaults(t)
	s.RedisURL = "redis://" + mr.Addr()
	s.ArchiveKey = key
	s.ArchiveRedact = []string{"token"}
	s.EnableMetrics = false
	ctx := context.Background()

	st, err := build(ctx, s, logging.NewNop(), buildOptions{SynthesisMode: domain.SynthesisBest})
	require.NoError(t, err)
	id, err := st.manager.CreateSession(ctx, []string{"architect"}, domain.SessionConfig{
		Topic:        "secret rollout",
		Context:      map[string]any{"api_token": "abc123"},
		SkipEvidence: true,
	})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		snap, err := st.manager.GetSnapshot(ctx, id)
		return err == nil && snap.Status.IsTerminal()
	}, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, st.shutdown(ctx))

	raw, err := mr.Get("council:session:" + id)
	require.NoError(t, err)
	assert.NotContains(t, raw, "secret rollout")
	assert.NotContains(t, raw, "abc123")

	t.Setenv("REDIS_URL", s.RedisURL)
	t.Setenv("ARCHIVE_KEY", key)
	out, err := execute(t, "session", "inspect", id, "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, "secret rollout")
	assert.Contains(t, out, `"api_token": "***"`)

	t.Setenv("ARCHIVE_KEY", "")
	_, err = execute(t, "session", "inspect", id, "--format", "json")
	assert.ErrorContains(t, err, "encrypted envelope")
}

func TestBuild_DirectoryArchive(t *testing.T) {
	dir := t.TempDir()
	s := defaults(t)
	s.ArchiveDir = dir
	s.EnableMetrics = false
	ctx := context.Background()

	st, err := build(ctx, s, logging.NewNop(), buildOptions{SynthesisMode: domain.SynthesisBest})
	require.NoError(t, err)
	id, err := st.manager.CreateSession(ctx, []string{"architect"}, domain.SessionConfig{Topic: "cache sizing", SkipEvidence: true})
	require.NoError(t, err)
	require.NoError(t, st.shutdown(ctx))
	assert.FileExists(t, filepath.Join(dir, id+".json"))

	t.Setenv("REDIS_URL", "")
	t.Setenv("ARCHIVE_DIR", dir)
	out, err := execute(t, "session", "ls")
	require.NoError(t, err)
	assert.Contains(t, out, id)

	out, err = execute(t, "session", "rm", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Removed council")
	assert.NoFileExists(t, filepath.Join(dir, id+".json"))
}

func TestBuild_RedisUnreachable(t *testing.T) {
	s := defaults(t)
	s.RedisURL = "redis://127.0.0.1:1"
	_, err := build(context.Background(), s, logging.NewNop(), buildOptions{})
	assert.ErrorContains(t, err, "redis unreachable")
}

func TestSessionNeedsArchive(t *testing.T) {
	t.Setenv("REDIS_URL", "")
	t.Setenv("ARCHIVE_DIR", "")
	_, err := execute(t, "session", "ls")
	assert.ErrorContains(t, err, "REDIS_URL")
}

func TestConfigCommand(t *testing.T) {
	t.Setenv("ORCHESTRATOR_PORT", "9001")
	t.Setenv("AGENT_TIMEOUT", "45")

	out, err := execute(t, "config")
	require.NoError(t, err)
	assert.Contains(t, out, "port: 9001")
	assert.Contains(t, out, "agent_timeout: 45s")
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "council version "))
}

func TestServeStopsOnCancel(t *testing.T) {
	s := defaults(t)
	s.Host = "127.0.0.1"
	s.Port = 0
	s.MetricsPort = 0

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- serve(ctx, s, logging.NewNop(), buildOptions{SynthesisMode: domain.SynthesisConsensus})
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancellation")
	}
}
