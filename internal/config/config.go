package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	MetricsEnabled bool `env:"METRICS_ENABLED" envDefault:"true"`
	MetricsPort    int  `env:"METRICS_PORT" envDefault:"8081"`

	Local bool `env:"LOCAL" envDefault:"false"`

	TracingEnabled    bool    `env:"TRACING_ENABLED" envDefault:"false"`
	TracingSampleRate float64 `env:"TRACING_SAMPLERATE" envDefault:"0.01"`
	TracingService    string  `env:"TRACING_SERVICE" envDefault:"firstaid"`
	TracingVersion    string  `env:"TRACING_VERSION"`

	HTTPHost              string        `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	HTTPPort              int           `env:"HTTP_PORT" envDefault:"8000"`
	HTTPReadHeaderTimeout time.Duration `env:"HTTP_READ_HEADER_TIMEOUT" envDefault:"5s"`
	HTTPShutdownTimeout   time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	CORSAllowedOrigins    []string      `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	MaxUploadBytes        int64         `env:"MAX_UPLOAD_BYTES" envDefault:"33554432"` // 32 MiB
	MaxJSONBytes          int64         `env:"MAX_JSON_BYTES" envDefault:"1048576"`    // 1 MiB
	TempDir               string        `env:"TEMP_DIR"`                               // empty means os.TempDir()
	ResultCacheSize       int           `env:"RESULT_CACHE_SIZE" envDefault:"256"`      // 0 disables
	ResultCacheTTL        time.Duration `env:"RESULT_CACHE_TTL" envDefault:"5m"`

	TranscriptionProvider string `env:"TRANSCRIPTION_PROVIDER" envDefault:"asr"` // asr, openai or google

	ASREndpoint string        `env:"ASR_ENDPOINT" envDefault:"http://localhost:9000/asr"`
	ASRTimeout  time.Duration `env:"ASR_TIMEOUT" envDefault:"60s"`

	OpenAIAPIKey             string        `env:"OPENAI_API_KEY"`
	OpenAIBaseURL            string        `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`
	OpenAITranscriptionModel string        `env:"OPENAI_TRANSCRIPTION_MODEL" envDefault:"whisper-1"`
	OpenAITimeout            time.Duration `env:"OPENAI_TIMEOUT" envDefault:"60s"`

	GoogleSpeechLanguage string `env:"GOOGLE_SPEECH_LANGUAGE" envDefault:"en-US"`

	VisionStrategy      string `env:"VISION_STRATEGY" envDefault:"detector"` // detector or llm
	VisionProvider      string `env:"VISION_PROVIDER" envDefault:"openai"`   // openai or ollama, llm strategy only
	VisionModel         string `env:"VISION_MODEL" envDefault:"gpt-4o-mini"`
	VisionFuzzyDistance int    `env:"VISION_FUZZY_DISTANCE" envDefault:"0"`

	DetectorEndpoint            string        `env:"DETECTOR_ENDPOINT" envDefault:"http://localhost:9001/detect"`
	DetectorTimeout             time.Duration `env:"DETECTOR_TIMEOUT" envDefault:"30s"`
	DetectorConfidenceThreshold float64       `env:"DETECTOR_CONFIDENCE_THRESHOLD" envDefault:"0.5"`

	LLMProvider    string        `env:"LLM_PROVIDER" envDefault:"openai"` // openai (any compatible API) or ollama
	LLMAPIKey      string        `env:"LLM_API_KEY"`
	LLMBaseURL     string        `env:"LLM_BASE_URL" envDefault:"https://api.cerebras.ai/v1"`
	LLMModel       string        `env:"LLM_MODEL" envDefault:"llama3.1-8b"`
	LLMTemperature float32       `env:"LLM_TEMPERATURE" envDefault:"0.3"`
	LLMMaxTokens   int           `env:"LLM_MAX_TOKENS" envDefault:"500"`
	LLMTimeout     time.Duration `env:"LLM_TIMEOUT" envDefault:"30s"`

	OllamaProtocol    string `env:"OLLAMA_PROTOCOL" envDefault:"http"`
	OllamaHost        string `env:"OLLAMA_HOST" envDefault:"localhost:11434"`
	OllamaModel       string `env:"OLLAMA_MODEL" envDefault:"llama3.1:8b"`
	OllamaVisionModel string `env:"OLLAMA_VISION_MODEL" envDefault:"llava"`

	RetellAPIKey  string        `env:"RETELL_API_KEY"`
	RetellBaseURL string        `env:"RETELL_BASE_URL" envDefault:"https://api.retellai.com"`
	RetellAgentID string        `env:"RETELL_AGENT_ID"` // empty means first listed agent
	RetellTimeout time.Duration `env:"RETELL_TIMEOUT" envDefault:"15s"`

	AgentPhoneNumber string `env:"AGENT_PHONE_NUMBER"`
	UserPhoneNumber  string `env:"USER_PHONE_NUMBER"`

	DragonflyEnabled        bool          `env:"DRAGONFLY_ENABLED" envDefault:"false"`
	DragonflyAddress        string        `env:"DRAGONFLY_ADDRESS" envDefault:"localhost:6379"`
	DragonflyPassword       string        `env:"DRAGONFLY_PASSWORD"`
	DragonflyDB             int           `env:"DRAGONFLY_DB" envDefault:"0"`
	DragonflyRequestTimeout time.Duration `env:"DRAGONFLY_REQUEST_TIMEOUT" envDefault:"1s"`
	CallCacheTTL            time.Duration `env:"CALL_CACHE_TTL" envDefault:"1h"`

	PulsarEnabled         bool   `env:"PULSAR_ENABLED" envDefault:"false"`
	PulsarURL             string `env:"PULSAR_URL" envDefault:"pulsar://localhost:6650"`
	PulsarCallEventsTopic string `env:"PULSAR_CALL_EVENTS_TOPIC" envDefault:"call-events"`

	SlackToken     string        `env:"SLACK_TOKEN"`
	SlackChannelID string        `env:"SLACK_CHANNEL_ID"`
	SlackTimeout   time.Duration `env:"SLACK_TIMEOUT" envDefault:"5s"`

	NotifyTimeout time.Duration `env:"NOTIFY_TIMEOUT" envDefault:"10s"`
}

func NewConfig() (*Config, error) {
	var cfg Config

	err := env.Parse(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &cfg, nil
}

// Addr is the listen address of the HTTP service.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.HTTPHost, c.HTTPPort)
}

func (c *Config) SlackEnabled() bool {
	return c.SlackToken != "" && c.SlackChannelID != ""
}
