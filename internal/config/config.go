package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName string           `yaml:"runtime_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Bus         BusConfig        `yaml:"bus"`
	Node        NodeConfig       `yaml:"node"`
	EventStore  EventStoreConfig `yaml:"event_store"`
	Media       MediaConfig      `yaml:"media"`
	Session     SessionConfig    `yaml:"session"`
	Encoder     EncoderConfig    `yaml:"encoder"`
	Transcribe  TranscribeConfig `yaml:"transcribe"`
	Feedback    FeedbackConfig   `yaml:"feedback"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type NodeConfig struct {
	ID                string `yaml:"id"`
	Role              string `yaml:"role"`
	HeartbeatInterval int    `yaml:"heartbeat_interval_ms"`
	HeartbeatTimeout  int    `yaml:"heartbeat_timeout_ms"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

// CaptureProfile describes the resolution requested from a capture device.
type CaptureProfile struct {
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	Facing string `yaml:"facing_mode"`
}

type MediaConfig struct {
	Mode           string         `yaml:"mode"` // mock, bus
	AcquireTimeout int            `yaml:"acquire_timeout_ms"`
	Compact        CaptureProfile `yaml:"compact"`
	Wide           CaptureProfile `yaml:"wide"`
}

// Profile resolves a named capture profile, defaulting to wide.
func (m MediaConfig) Profile(name string) CaptureProfile {
	if name == "compact" {
		return m.Compact
	}
	return m.Wide
}

type SessionConfig struct {
	DurationSeconds     int  `yaml:"duration_seconds"`
	FeedbackOnSoftError bool `yaml:"feedback_on_soft_error"`
}

type EncoderConfig struct {
	Mode       string `yaml:"mode"` // ffmpeg, wav
	Command    string `yaml:"command"`
	SampleRate int    `yaml:"sample_rate"`
	Channels   int    `yaml:"channels"`
	Format     string `yaml:"format"`
}

type TranscribeConfig struct {
	Mode      string `yaml:"mode"` // mock, http
	Endpoint  string `yaml:"endpoint"`
	Model     string `yaml:"model"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

type FeedbackConfig struct {
	Mode      string `yaml:"mode"` // mock, http
	Endpoint  string `yaml:"endpoint"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

func Default() Config {
	return Config{
		RuntimeName: "lift-runtime",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Node: NodeConfig{
			ID:                "lift-node-1",
			Role:              "runtime",
			HeartbeatInterval: 2000,
			HeartbeatTimeout:  6000,
		},
		EventStore: EventStoreConfig{
			Path:          "./data/lift-events.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxSessions:   10000,
		},
		Media: MediaConfig{
			Mode:           "bus",
			AcquireTimeout: 5000,
			Compact:        CaptureProfile{Width: 480, Height: 640, Facing: "user"},
			Wide:           CaptureProfile{Width: 1280, Height: 720, Facing: "user"},
		},
		Session: SessionConfig{
			DurationSeconds:     150,
			FeedbackOnSoftError: false,
		},
		Encoder: EncoderConfig{
			Mode:       "ffmpeg",
			Command:    "ffmpeg",
			SampleRate: 16000,
			Channels:   1,
			Format:     "mp3",
		},
		Transcribe: TranscribeConfig{
			Mode:      "http",
			Endpoint:  "http://localhost:9000",
			Model:     "whisper-1",
			TimeoutMS: 60000,
		},
		Feedback: FeedbackConfig{
			Mode:      "http",
			Endpoint:  "http://localhost:9001",
			TimeoutMS: 120000,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "LIFT_RUNTIME_NAME")
	overrideString(&cfg.Environment, "LIFT_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "LIFT_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "LIFT_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "LIFT_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "LIFT_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "LIFT_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "LIFT_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Embedded, "LIFT_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "LIFT_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "LIFT_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "LIFT_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "LIFT_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "LIFT_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "LIFT_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "LIFT_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Node.ID, "LIFT_NODE_ID")
	overrideString(&cfg.Node.Role, "LIFT_NODE_ROLE")
	overrideInt(&cfg.Node.HeartbeatInterval, "LIFT_NODE_HEARTBEAT_INTERVAL_MS")
	overrideInt(&cfg.Node.HeartbeatTimeout, "LIFT_NODE_HEARTBEAT_TIMEOUT_MS")
	overrideString(&cfg.EventStore.Path, "LIFT_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "LIFT_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "LIFT_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxSessions, "LIFT_EVENT_STORE_MAX_SESSIONS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "LIFT_EVENT_STORE_VACUUM_ON_START")
	overrideString(&cfg.Media.Mode, "LIFT_MEDIA_MODE")
	overrideInt(&cfg.Media.AcquireTimeout, "LIFT_MEDIA_ACQUIRE_TIMEOUT_MS")
	overrideInt(&cfg.Session.DurationSeconds, "LIFT_SESSION_DURATION_SECONDS")
	overrideBool(&cfg.Session.FeedbackOnSoftError, "LIFT_SESSION_FEEDBACK_ON_SOFT_ERROR")
	overrideString(&cfg.Encoder.Mode, "LIFT_ENCODER_MODE")
	overrideString(&cfg.Encoder.Command, "LIFT_ENCODER_COMMAND")
	overrideInt(&cfg.Encoder.SampleRate, "LIFT_ENCODER_SAMPLE_RATE")
	overrideInt(&cfg.Encoder.Channels, "LIFT_ENCODER_CHANNELS")
	overrideString(&cfg.Encoder.Format, "LIFT_ENCODER_FORMAT")
	overrideString(&cfg.Transcribe.Mode, "LIFT_TRANSCRIBE_MODE")
	overrideString(&cfg.Transcribe.Endpoint, "LIFT_TRANSCRIBE_ENDPOINT")
	overrideString(&cfg.Transcribe.Model, "LIFT_TRANSCRIBE_MODEL")
	overrideInt(&cfg.Transcribe.TimeoutMS, "LIFT_TRANSCRIBE_TIMEOUT_MS")
	overrideString(&cfg.Feedback.Mode, "LIFT_FEEDBACK_MODE")
	overrideString(&cfg.Feedback.Endpoint, "LIFT_FEEDBACK_ENDPOINT")
	overrideInt(&cfg.Feedback.TimeoutMS, "LIFT_FEEDBACK_TIMEOUT_MS")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.Node.ID == "" {
		return errors.New("node.id must not be empty")
	}
	if cfg.Node.HeartbeatInterval <= 0 {
		return errors.New("node.heartbeat_interval_ms must be positive")
	}
	if cfg.Node.HeartbeatTimeout <= cfg.Node.HeartbeatInterval {
		return errors.New("node.heartbeat_timeout_ms must be greater than heartbeat interval")
	}
	if cfg.EventStore.Path == "" {
		return errors.New("event_store.path must not be empty")
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	switch cfg.Media.Mode {
	case "mock", "bus":
	default:
		return errors.New("media.mode must be one of mock|bus")
	}
	if cfg.Media.AcquireTimeout <= 0 {
		return errors.New("media.acquire_timeout_ms must be positive")
	}
	for _, profile := range []CaptureProfile{cfg.Media.Compact, cfg.Media.Wide} {
		if profile.Width <= 0 || profile.Height <= 0 {
			return errors.New("media capture profiles must have positive dimensions")
		}
	}
	if cfg.Session.DurationSeconds <= 0 {
		return errors.New("session.duration_seconds must be positive")
	}
	switch cfg.Encoder.Mode {
	case "ffmpeg", "wav":
	default:
		return errors.New("encoder.mode must be one of ffmpeg|wav")
	}
	if cfg.Encoder.Mode == "ffmpeg" && cfg.Encoder.Command == "" {
		return errors.New("encoder.command must be set when mode=ffmpeg")
	}
	if cfg.Encoder.SampleRate <= 0 {
		return errors.New("encoder.sample_rate must be positive")
	}
	if cfg.Encoder.Channels <= 0 {
		return errors.New("encoder.channels must be positive")
	}
	switch cfg.Transcribe.Mode {
	case "mock", "http":
	default:
		return errors.New("transcribe.mode must be one of mock|http")
	}
	if cfg.Transcribe.Mode == "http" && cfg.Transcribe.Endpoint == "" {
		return errors.New("transcribe.endpoint must be set when mode=http")
	}
	switch cfg.Feedback.Mode {
	case "mock", "http":
	default:
		return errors.New("feedback.mode must be one of mock|http")
	}
	if cfg.Feedback.Mode == "http" && cfg.Feedback.Endpoint == "" {
		return errors.New("feedback.endpoint must be set when mode=http")
	}
	return nil
}
