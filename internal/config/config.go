// Package config loads the orchestrator settings from defaults, an optional
// YAML file and the environment, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"maps"
	"net"
	"os"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/council/internal/logging"
	"github.com/aretw0/council/pkg/domain"
	"github.com/aretw0/council/pkg/persistence/middleware"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Settings is the effective configuration. It is built once by Load and then
// only read; the limits portion is handed to the session manager by value.
type Settings struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`

	CouncilTimeout        time.Duration `mapstructure:"council_timeout"`
	MaxConcurrentCouncils int           `mapstructure:"max_concurrent_councils"`
	AgentTimeout          time.Duration `mapstructure:"agent_timeout"`
	MaxAgentMessages      int           `mapstructure:"max_agent_messages"`
	EvidenceTimeout       time.Duration `mapstructure:"evidence_timeout"`
	MaxEvidenceSize       int64         `mapstructure:"max_evidence_size"`
	MaxParticipants       int           `mapstructure:"max_participants"`
	ResultRetention       time.Duration `mapstructure:"result_retention"`

	RedisURL       string   `mapstructure:"redis_url"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	// ArchiveDir keeps councils as JSON files when no Redis archive is configured.
	ArchiveDir string `mapstructure:"archive_dir"`
	// ArchiveKey is a base64 AES-256 key sealing archived councils.
	ArchiveKey          string   `mapstructure:"archive_key"`
	ArchiveFallbackKeys []string `mapstructure:"archive_fallback_keys"`
	ArchiveRedact       []string `mapstructure:"archive_redact"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	EnableMetrics bool `mapstructure:"enable_metrics"`
	MetricsPort   int  `mapstructure:"metrics_port"`

	AgentRegistryURL    string `mapstructure:"agent_registry_url"`
	EvidenceProviderURL string `mapstructure:"evidence_provider_url"`
	SynthesisEngineURL  string `mapstructure:"synthesis_engine_url"`
}

// envKeys maps environment variables onto settings keys.
var envKeys = map[string]string{
	"ORCHESTRATOR_HOST":       "host",
	"ORCHESTRATOR_PORT":       "port",
	"COUNCIL_TIMEOUT":         "council_timeout",
	"MAX_CONCURRENT_COUNCILS": "max_concurrent_councils",
	"AGENT_TIMEOUT":           "agent_timeout",
	"MAX_AGENT_MESSAGES":      "max_agent_messages",
	"EVIDENCE_TIMEOUT":        "evidence_timeout",
	"MAX_EVIDENCE_SIZE":       "max_evidence_size",
	"MAX_PARTICIPANTS":        "max_participants",
	"RESULT_RETENTION":        "result_retention",
	"REDIS_URL":               "redis_url",
	"ALLOWED_ORIGINS":         "allowed_origins",
	"ARCHIVE_DIR":             "archive_dir",
	"ARCHIVE_KEY":             "archive_key",
	"ARCHIVE_FALLBACK_KEYS":   "archive_fallback_keys",
	"ARCHIVE_REDACT":          "archive_redact",
	"LOG_LEVEL":               "log_level",
	"LOG_FORMAT":              "log_format",
	"ENABLE_METRICS":          "enable_metrics",
	"METRICS_PORT":            "metrics_port",
	"AGENT_REGISTRY_URL":      "agent_registry_url",
	"EVIDENCE_PROVIDER_URL":   "evidence_provider_url",
	"SYNTHESIS_ENGINE_URL":    "synthesis_engine_url",
}

// Defaults returns the historical orchestrator defaults as a settings map.
func Defaults() map[string]any {
	lim := domain.DefaultLimits()
	return map[string]any{
		"host":                    "0.0.0.0",
		"port":                    8000,
		"council_timeout":         lim.CouncilTimeout,
		"max_concurrent_councils": lim.MaxConcurrentCouncils,
		"agent_timeout":           lim.AgentTimeout,
		"max_agent_messages":      lim.MaxAgentMessages,
		"evidence_timeout":        lim.EvidenceTimeout,
		"max_evidence_size":       lim.MaxEvidenceSize,
		"max_participants":        lim.MaxParticipants,
		"result_retention":        lim.ResultRetention,
		"redis_url":               "",
		"allowed_origins":         []string{"http://localhost:3000"},
		"archive_dir":             "",
		"archive_key":             "",
		"archive_fallback_keys":   []string{},
		"archive_redact":          []string{},
		"log_level":               "info",
		"log_format":              "text",
		"enable_metrics":          true,
		"metrics_port":            9090,
	}
}

// Load reads settings from the process environment and, if path is not empty,
// from the YAML file at path.
func Load(path string) (Settings, error) {
	return LoadFrom(path, os.LookupEnv)
}

// LookupFunc resolves an environment variable.
type LookupFunc func(key string) (string, bool)

// LoadFrom is Load with an explicit environment.
func LoadFrom(path string, lookup LookupFunc) (Settings, error) {
	merged := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Settings{}, fmt.Errorf("failed to read config file: %w", err)
		}
		var file map[string]any
		if err := yaml.Unmarshal(data, &file); err != nil {
			return Settings{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		for k := range file {
			if !knownKey(k) {
				return Settings{}, fmt.Errorf("config file %s: unknown key %q", path, k)
			}
		}
		maps.Copy(merged, file)
	}

	if lookup != nil {
		for env, key := range envKeys {
			if v, ok := lookup(env); ok && v != "" {
				merged[key] = v
			}
		}
	}

	var s Settings
	if err := decode(merged, &s); err != nil {
		return Settings{}, err
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func knownKey(k string) bool {
	for _, key := range envKeys {
		if key == k {
			return true
		}
	}
	return false
}

func decode(input map[string]any, out *Settings) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			secondsHook,
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(input); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	for _, list := range [][]string{out.AllowedOrigins, out.ArchiveFallbackKeys, out.ArchiveRedact} {
		for i, v := range list {
			list[i] = strings.TrimSpace(v)
		}
	}
	return nil
}

var bareNumber = regexp.MustCompile(`^\d+(\.\d+)?$`)

// secondsHook accepts plain numbers as seconds for duration fields, so
// COUNCIL_TIMEOUT=600 means ten minutes.
func secondsHook(from, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf(time.Duration(0)) {
		return data, nil
	}
	switch v := data.(type) {
	case string:
		if !bareNumber.MatchString(v) {
			return data, nil
		}
		secs, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, err
		}
		return time.Duration(secs * float64(time.Second)), nil
	case int:
		return time.Duration(v) * time.Second, nil
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	}
	return data, nil
}

// Validate reports the first unusable value.
func (s Settings) Validate() error {
	if err := s.Limits().Validate(); err != nil {
		return err
	}
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("port out of range: %d", s.Port)
	}
	if s.EnableMetrics && (s.MetricsPort <= 0 || s.MetricsPort > 65535) {
		return fmt.Errorf("metrics port out of range: %d", s.MetricsPort)
	}
	if _, err := logging.ParseLevel(s.LogLevel); err != nil {
		return err
	}
	if _, err := logging.ParseFormat(s.LogFormat); err != nil {
		return err
	}
	for _, origin := range s.AllowedOrigins {
		if origin == "" {
			return errors.New("allowed origins must not contain empty entries")
		}
	}
	if len(s.ArchiveFallbackKeys) > 0 && s.ArchiveKey == "" {
		return errors.New("archive fallback keys require an archive key")
	}
	if _, err := s.ArchiveMiddleware(); err != nil {
		return err
	}
	return nil
}

// ArchiveMiddleware builds the archive transformations the settings ask for:
// redaction first, then encryption.
func (s Settings) ArchiveMiddleware() ([]middleware.Middleware, error) {
	var mws []middleware.Middleware
	if len(s.ArchiveRedact) > 0 {
		redact, err := middleware.NewRedactMiddleware(s.ArchiveRedact)
		if err != nil {
			return nil, err
		}
		mws = append(mws, redact)
	}
	if s.ArchiveKey != "" {
		active, err := middleware.ParseKey(s.ArchiveKey)
		if err != nil {
			return nil, err
		}
		cfg := middleware.EncryptionConfig{ActiveKey: active}
		for _, encoded := range s.ArchiveFallbackKeys {
			key, err := middleware.ParseKey(encoded)
			if err != nil {
				return nil, fmt.Errorf("fallback %w", err)
			}
			cfg.FallbackKeys = append(cfg.FallbackKeys, key)
		}
		seal, err := middleware.NewEncryptionMiddleware(cfg)
		if err != nil {
			return nil, err
		}
		mws = append(mws, seal)
	}
	return mws, nil
}

// Limits returns the session manager bounds.
func (s Settings) Limits() domain.Limits {
	return domain.Limits{
		CouncilTimeout:        s.CouncilTimeout,
		MaxConcurrentCouncils: s.MaxConcurrentCouncils,
		AgentTimeout:          s.AgentTimeout,
		MaxAgentMessages:      s.MaxAgentMessages,
		EvidenceTimeout:       s.EvidenceTimeout,
		MaxEvidenceSize:       s.MaxEvidenceSize,
		MaxParticipants:       s.MaxParticipants,
		ResultRetention:       s.ResultRetention,
	}
}

// Addr is the HTTP listen address.
func (s Settings) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// MetricsAddr is the listen address of the metrics endpoint.
func (s Settings) MetricsAddr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.MetricsPort))
}

// YAML renders the settings in config-file form, durations as strings.
func (s Settings) YAML() ([]byte, error) {
	out := make(map[string]any)
	if err := mapstructure.Decode(s, &out); err != nil {
		return nil, err
	}
	for k, v := range out {
		if d, ok := v.(time.Duration); ok {
			out[k] = d.String()
		}
	}
	if s.ArchiveKey != "" {
		out["archive_key"] = middleware.Mask
	}
	if len(s.ArchiveFallbackKeys) > 0 {
		out["archive_fallback_keys"] = []string{middleware.Mask}
	}
	return yaml.Marshal(out)
}
