package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jo-hoe/leafdoctor/internal/common"
)

// ErrMissingAPIKey is returned by Load when the selected provider needs a credential and none was found.
var ErrMissingAPIKey = errors.New("missing api key")

// Config is the root configuration loaded from YAML.
type Config struct {
	Server ServerConfig `yaml:"server"`
	LLM    LLMConfig    `yaml:"llm"`
}

// ServerConfig holds HTTP server and runtime settings.
type ServerConfig struct {
	Addr          string        `yaml:"address"`
	ReadTimeout   time.Duration `yaml:"readTimeout"`
	WriteTimeout  time.Duration `yaml:"writeTimeout"`
	IdleTimeout   time.Duration `yaml:"idleTimeout"`
	MaxUploadSize ByteSize      `yaml:"maxUploadSize"`
	ShutdownGrace time.Duration `yaml:"shutdownGrace"` // time to wait for in-flight requests on shutdown
	RatePerMinute int           `yaml:"ratePerMinute"` // submissions per client IP per minute
	RateBurst     int           `yaml:"rateBurst"`
	LogLevel      string        `yaml:"logLevel"` // debug|info|warn|error
	TrustProxy    bool          `yaml:"trustProxy"` // take the client IP from X-Forwarded-For/X-Real-IP
}

// LLMConfig selects provider and provider-specific options.
type LLMConfig struct {
	Provider string          `yaml:"provider"` // "gemini", "aiproxy" or "mock"
	Timeout  time.Duration   `yaml:"timeout"`  // per-call http timeout
	Prompt   string          `yaml:"prompt"`   // optional override of the diagnosis instruction
	Gemini   GeminiSettings  `yaml:"gemini"`
	AIProxy  AIProxySettings `yaml:"aiproxy"`
	Mock     MockSettings    `yaml:"mock"`
}

// GeminiSettings config for the Google Generative Language API.
type GeminiSettings struct {
	BaseURL         string  `yaml:"baseUrl"`
	APIKey          string  `yaml:"apiKey"` // falls back to GOOGLE_API_KEY
	Model           string  `yaml:"model"`
	Temperature     float32 `yaml:"temperature"`
	MaxOutputTokens int     `yaml:"maxOutputTokens"`
}

// AIProxySettings config for the AI Proxy (OpenAI-compatible) LLM.
type AIProxySettings struct {
	BaseURL      string  `yaml:"baseUrl"`      // e.g. http://localhost:8900
	APIKey       string  `yaml:"apiKey"`       // optional
	Model        string  `yaml:"model"`        // e.g. gpt-5
	SystemPrompt string  `yaml:"systemPrompt"` // optional system message
	Temperature  float32 `yaml:"temperature"`  // optional
	MaxTokens    int     `yaml:"maxTokens"`    // optional
}

// MockSettings config for the mock LLM.
type MockSettings struct {
	Delay  time.Duration `yaml:"delay"`
	Prefix string        `yaml:"prefix"`
}

// ByteSize represents a size in bytes that unmarshals from strings like "10Mi", "20MB", "512KiB", "1024".
type ByteSize uint64

// UnmarshalYAML implements yaml unmarshalling for ByteSize.
func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("invalid bytesize node kind: %v", value.Kind)
	}
	parsed, err := ParseByteSize(strings.TrimSpace(value.Value))
	if err != nil {
		return err
	}
	*b = ByteSize(parsed)
	return nil
}

// Int64 returns the size as int64, capped at math.MaxInt64.
func (b ByteSize) Int64() int64 {
	if b > ByteSize(math.MaxInt64) {
		return math.MaxInt64
	}
	return int64(b) // #nosec G115 - safe cast after explicit upper-bound check
}

var reNumeric = regexp.MustCompile(`^\d+$`)

// ParseByteSize parses a string like "10Mi", "20MB", "512KiB", "1024" into bytes.
// Binary units: Ki, Mi, Gi, KiB, MiB, GiB. Decimal units: KB, MB, GB. Case-insensitive.
func ParseByteSize(s string) (uint64, error) {
	orig := s
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty size")
	}
	if reNumeric.MatchString(s) {
		val, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid size number: %w", err)
		}
		if val > math.MaxInt64 {
			return 0, fmt.Errorf("size out of range: %q", orig)
		}
		return val, nil
	}

	up := strings.ToUpper(s)
	units := []struct {
		suffix string
		value  uint64
	}{
		{"KIB", 1024},
		{"MIB", 1024 * 1024},
		{"GIB", 1024 * 1024 * 1024},
		{"KI", 1024},
		{"MI", 1024 * 1024},
		{"GI", 1024 * 1024 * 1024},
		{"KB", 1000},
		{"MB", 1000 * 1000},
		{"GB", 1000 * 1000 * 1000},
		{"B", 1},
	}
	for _, u := range units {
		if strings.HasSuffix(up, u.suffix) {
			num := strings.TrimSpace(s[:len(s)-len(u.suffix)])
			val, err := strconv.ParseFloat(num, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid size number in %q: %w", orig, err)
			}
			if val < 0 || math.IsNaN(val) || math.IsInf(val, 0) {
				return 0, fmt.Errorf("size must be a non-negative number: %q", orig)
			}
			bytes := val * float64(u.value)
			if bytes >= math.MaxInt64 {
				return 0, fmt.Errorf("size out of range: %q", orig)
			}
			return uint64(bytes), nil
		}
	}
	return 0, fmt.Errorf("unknown size suffix in %q", orig)
}

// Load reads YAML config from path, expands environment variables, applies defaults and validates it.
// If path is empty, it reads LEAFDOCTOR_CONFIG, then defaults to "config.yaml". A missing default
// file is not an error; defaults and environment variables are enough to run.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		if env := os.Getenv(common.EnvConfigPath); env != "" {
			path = env
			explicit = true
		} else {
			path = common.DefaultConfigFile
		}
	}

	var cfg Config
	data, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 - reading sanitized config file path is expected
	switch {
	case err == nil:
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		// run on defaults
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	applyDefaults(&cfg)
	applyEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 2 * time.Minute
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 60 * time.Second
	}
	if cfg.Server.MaxUploadSize == 0 {
		cfg.Server.MaxUploadSize = ByteSize(10 * 1024 * 1024) // 10 MiB default
	}
	if cfg.Server.ShutdownGrace == 0 {
		cfg.Server.ShutdownGrace = 15 * time.Second
	}
	if cfg.Server.RatePerMinute <= 0 {
		cfg.Server.RatePerMinute = 10
	}
	if cfg.Server.RateBurst <= 0 {
		cfg.Server.RateBurst = 3
	}
	if strings.TrimSpace(cfg.Server.LogLevel) == "" {
		cfg.Server.LogLevel = "info"
	}

	cfg.LLM.Provider = strings.ToLower(strings.TrimSpace(cfg.LLM.Provider))
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = common.ProviderGemini
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = 60 * time.Second
	}
	if strings.TrimSpace(cfg.LLM.Gemini.BaseURL) == "" {
		cfg.LLM.Gemini.BaseURL = common.DefaultGeminiBaseURL
	}
	if strings.TrimSpace(cfg.LLM.Gemini.Model) == "" {
		cfg.LLM.Gemini.Model = common.DefaultGeminiModel
	}
	if strings.TrimSpace(cfg.LLM.AIProxy.BaseURL) == "" {
		cfg.LLM.AIProxy.BaseURL = "http://localhost:8900"
	}
	if strings.TrimSpace(cfg.LLM.AIProxy.Model) == "" {
		cfg.LLM.AIProxy.Model = "gpt-5"
	}
	if cfg.LLM.Mock.Prefix == "" {
		cfg.LLM.Mock.Prefix = "Diagnosed by Mock"
	}
}

// applyEnv fills credentials that were not set in the file.
func applyEnv(cfg *Config) {
	if strings.TrimSpace(cfg.LLM.Gemini.APIKey) == "" {
		cfg.LLM.Gemini.APIKey = os.Getenv(common.EnvGoogleAPIKey)
	}
}

func validate(cfg *Config) error {
	if _, err := ParseLogLevel(cfg.Server.LogLevel); err != nil {
		return err
	}
	switch cfg.LLM.Provider {
	case common.ProviderGemini:
		if strings.TrimSpace(cfg.LLM.Gemini.APIKey) == "" {
			return fmt.Errorf("llm.gemini.apiKey or %s is required: %w", common.EnvGoogleAPIKey, ErrMissingAPIKey)
		}
	case common.ProviderAIProxy, common.ProviderMock:
	default:
		return fmt.Errorf("unsupported llm provider %q", cfg.LLM.Provider)
	}
	return nil
}

// ParseLogLevel maps debug|info|warn|error onto slog levels.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("invalid log level %q", s)
}
