// Package config loads runtime configuration from environment variables,
// all optional with sane defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Provider identifies which LLM backend model.Client talks to.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderBedrock   Provider = "bedrock"
)

// SessionStoreKind selects the Session Manager's backing store.
type SessionStoreKind string

const (
	SessionStoreMemory SessionStoreKind = "memory"
	SessionStoreRedis  SessionStoreKind = "redis"
)

// TelemetrySinkKind selects the telemetryrecord.Sink implementation.
type TelemetrySinkKind string

const (
	TelemetrySinkStdout TelemetrySinkKind = "stdout"
	TelemetrySinkMongo  TelemetrySinkKind = "mongo"
)

// EventTransportKind selects how stream events reach subscribers.
type EventTransportKind string

const (
	EventTransportChannel EventTransportKind = "channel"
	EventTransportGRPC    EventTransportKind = "grpc"
)

// Config is the fully-resolved runtime configuration.
type Config struct {
	// Provider selection and credentials.
	ModelProvider   Provider
	AnthropicAPIKey string
	OpenAIAPIKey    string
	AWSRegion       string

	// Per-stage model assignment.
	PlannerModel        string
	PlannerTemperature  float64
	JudgeModel          string
	JudgeTemperature    float64
	ExecutorModel       string
	ExecutorTemperature float64

	// Budgets.
	MaxToolCallsPerAct int
	MaxTotalToolCalls  int
	MaxPlanIters       int
	MaxLatency         time.Duration
	MaxTokensPerStage  int

	// Sandbox for file-write tools.
	DesktopDir string

	// Feature flags.
	ToolsEnabled      bool
	RAGEnabled        bool
	UseM3Orchestrator bool
	StrictJSONMode    bool

	// Domain-stack selections.
	SessionStore   SessionStoreKind
	RedisAddr      string
	TelemetrySink  TelemetrySinkKind
	MongoURI       string
	EventTransport EventTransportKind
	EventGRPCAddr  string

	LogLevel string
}

// Load builds a Config from the current process environment, applying
// defaults for everything left unset.
func Load() Config {
	desktop := envOr("DESKTOP_DIR", "~/Desktop/AgentFlow")
	if expanded, err := expandHome(desktop); err == nil {
		desktop = expanded
	}

	return Config{
		ModelProvider:   Provider(envOr("MODEL_PROVIDER", string(ProviderAnthropic))),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		AWSRegion:       envOr("AWS_REGION", "us-east-1"),

		PlannerModel:        envOr("PLANNER_MODEL", "claude-sonnet"),
		PlannerTemperature:  envFloatOr("PLANNER_TEMPERATURE", 0.2),
		JudgeModel:          envOr("JUDGE_MODEL", "claude-sonnet"),
		JudgeTemperature:    envFloatOr("JUDGE_TEMPERATURE", 0.2),
		ExecutorModel:       envOr("EXECUTOR_MODEL", "claude-haiku"),
		ExecutorTemperature: envFloatOr("EXECUTOR_TEMPERATURE", 0.1),

		MaxToolCallsPerAct: envIntOr("MAX_TOOL_CALLS_PER_ACT", 3),
		MaxTotalToolCalls:  envIntOr("MAX_TOTAL_TOOL_CALLS", 6),
		MaxPlanIters:       envIntOr("MAX_PLAN_ITERS", 2),
		MaxLatency:         time.Duration(envIntOr("MAX_LATENCY_MS", 20000)) * time.Millisecond,
		MaxTokensPerStage:  envIntOr("MAX_TOKENS_PER_STAGE", 4000),

		DesktopDir: desktop,

		ToolsEnabled:      envBoolOr("TOOLS_ENABLED", true),
		RAGEnabled:        envBoolOr("RAG_ENABLED", false),
		UseM3Orchestrator: envBoolOr("USE_M3_ORCHESTRATOR", true),
		StrictJSONMode:    envBoolOr("STRICT_JSON_MODE", true),

		SessionStore:   SessionStoreKind(envOr("SESSION_STORE", string(SessionStoreMemory))),
		RedisAddr:      envOr("REDIS_ADDR", "localhost:6379"),
		TelemetrySink:  TelemetrySinkKind(envOr("TELEMETRY_SINK", string(TelemetrySinkStdout))),
		MongoURI:       envOr("MONGO_URI", "mongodb://localhost:27017"),
		EventTransport: EventTransportKind(envOr("EVENT_TRANSPORT", string(EventTransportChannel))),
		EventGRPCAddr:  envOr("EVENT_GRPC_ADDR", ":9091"),

		LogLevel: envOr("LOG_LEVEL", "INFO"),
	}
}

// Validate returns a non-nil error describing every invalid setting found,
// joined, rather than failing on the first one.
func (c Config) Validate() error {
	var errs []error

	switch c.ModelProvider {
	case ProviderAnthropic, ProviderOpenAI, ProviderBedrock:
	default:
		errs = append(errs, fmt.Errorf("invalid MODEL_PROVIDER: %q", c.ModelProvider))
	}

	switch c.ModelProvider {
	case ProviderAnthropic:
		if c.AnthropicAPIKey == "" {
			errs = append(errs, fmt.Errorf("ANTHROPIC_API_KEY is required when MODEL_PROVIDER=anthropic"))
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			errs = append(errs, fmt.Errorf("OPENAI_API_KEY is required when MODEL_PROVIDER=openai"))
		}
	}

	switch c.LogLevel {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL: %q", c.LogLevel))
	}

	switch c.SessionStore {
	case SessionStoreMemory, SessionStoreRedis:
	default:
		errs = append(errs, fmt.Errorf("invalid SESSION_STORE: %q", c.SessionStore))
	}

	switch c.TelemetrySink {
	case TelemetrySinkStdout, TelemetrySinkMongo:
	default:
		errs = append(errs, fmt.Errorf("invalid TELEMETRY_SINK: %q", c.TelemetrySink))
	}

	switch c.EventTransport {
	case EventTransportChannel, EventTransportGRPC:
	default:
		errs = append(errs, fmt.Errorf("invalid EVENT_TRANSPORT: %q", c.EventTransport))
	}

	if c.MaxPlanIters <= 0 {
		errs = append(errs, fmt.Errorf("MAX_PLAN_ITERS must be > 0"))
	}
	if c.MaxTotalToolCalls <= 0 {
		errs = append(errs, fmt.Errorf("MAX_TOTAL_TOOL_CALLS must be > 0"))
	}

	if len(errs) == 0 {
		return nil
	}
	msg := "invalid configuration:"
	for _, e := range errs {
		msg += " " + e.Error() + ";"
	}
	return fmt.Errorf("%s", msg)
}

func expandHome(path string) (string, error) {
	if len(path) == 0 || path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, path[1:]), nil
}

func envOr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envIntOr(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func envFloatOr(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func envBoolOr(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}
