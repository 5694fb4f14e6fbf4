// Package config loads server configuration from defaults, an optional YAML
// file, SOLUS_* environment variables and command-line flags, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides: SOLUS_MODEL_NAME sets model.name.
const EnvPrefix = "SOLUS"

// Config is the full server configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Model      ModelConfig      `mapstructure:"model"`
	Embedding  EmbeddingConfig  `mapstructure:"embedding"`
	Generation GenerationConfig `mapstructure:"generation"`
	Memory     MemoryConfig     `mapstructure:"memory"`
	Prompt     PromptConfig     `mapstructure:"prompt"`
	Log        LogConfig        `mapstructure:"log"`

	// Verbose logs per-request timing.
	Verbose bool `mapstructure:"verbose"`
}

// ServerConfig configures the listeners.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`

	// GRPCPort serves grpc.health.v1 when non-zero.
	GRPCPort int `mapstructure:"grpc_port"`

	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns the HTTP listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ModelConfig selects the generation backend.
type ModelConfig struct {
	Backend       string `mapstructure:"backend"` // ollama|openai|anthropic|mock
	Name          string `mapstructure:"name"`
	BaseURL       string `mapstructure:"base_url"`
	APIKey        string `mapstructure:"api_key"`
	ContextSize   int    `mapstructure:"context_size"`
	Threads       int    `mapstructure:"threads"`
	GPULayers     int    `mapstructure:"gpu_layers"`
	CharsPerToken int    `mapstructure:"chars_per_token"`
}

// EmbeddingConfig selects the embedding backend.
type EmbeddingConfig struct {
	Backend           string `mapstructure:"backend"` // ollama|openai|onnx|mock
	Model             string `mapstructure:"model"`
	BaseURL           string `mapstructure:"base_url"`
	APIKey            string `mapstructure:"api_key"`
	ONNXModelPath     string `mapstructure:"onnx_model_path"`
	ONNXTokenizerPath string `mapstructure:"onnx_tokenizer_path"`
	ONNXLibraryPath   string `mapstructure:"onnx_library_path"`

	// CacheSize is the number of cached embeddings; 0 disables the cache.
	CacheSize int `mapstructure:"cache_size"`
}

// GenerationConfig holds sampling parameters.
type GenerationConfig struct {
	Temperature float32 `mapstructure:"temperature"`
	TopP        float32 `mapstructure:"top_p"`
	TopK        int     `mapstructure:"top_k"`
	MaxTokens   int     `mapstructure:"max_tokens"`

	// Accepted but not applied by any backend.
	RepeatLastN   int     `mapstructure:"repeat_last_n"`
	RepeatPenalty float32 `mapstructure:"repeat_penalty"`
}

// MemoryConfig configures the memory store.
type MemoryConfig struct {
	Path string `mapstructure:"path"`

	// Dimension of stored embeddings; 0 uses the embedder's.
	Dimension int    `mapstructure:"dimension"`
	Capacity  int    `mapstructure:"capacity"`
	TopK      int    `mapstructure:"top_k"`
	Index     string `mapstructure:"index"`   // hnsw|chromem
	Entries   string `mapstructure:"entries"` // json|sqlite

	HNSWM        int `mapstructure:"hnsw_m"`
	HNSWEfSearch int `mapstructure:"hnsw_ef_search"`
}

// PromptConfig configures prompt assembly.
type PromptConfig struct {
	// TemplateFile overrides the built-in system template.
	TemplateFile string `mapstructure:"template_file"`
	Format       string `mapstructure:"format"`
	RoleLabel    string `mapstructure:"role_label"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `mapstructure:"level"`

	// File additionally receives all log output when set.
	File string `mapstructure:"file"`
}

// SetDefaults registers every key with its default value.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.grpc_port", 0)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 5*time.Minute)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("model.backend", "ollama")
	v.SetDefault("model.name", "qwen2.5:14b-instruct-q4_K_M")
	v.SetDefault("model.base_url", "")
	v.SetDefault("model.api_key", "")
	v.SetDefault("model.context_size", 4096)
	v.SetDefault("model.threads", 16)
	v.SetDefault("model.gpu_layers", 33)
	v.SetDefault("model.chars_per_token", 4)

	v.SetDefault("embedding.backend", "ollama")
	v.SetDefault("embedding.model", "")
	v.SetDefault("embedding.base_url", "")
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.onnx_model_path", "")
	v.SetDefault("embedding.onnx_tokenizer_path", "")
	v.SetDefault("embedding.onnx_library_path", "")
	v.SetDefault("embedding.cache_size", 1024)

	v.SetDefault("generation.temperature", 0.7)
	v.SetDefault("generation.top_p", 0.9)
	v.SetDefault("generation.top_k", 40)
	v.SetDefault("generation.max_tokens", 1024)
	v.SetDefault("generation.repeat_last_n", 64)
	v.SetDefault("generation.repeat_penalty", 1.1)

	v.SetDefault("memory.path", "./memory_db")
	v.SetDefault("memory.dimension", 0)
	v.SetDefault("memory.capacity", 1000)
	v.SetDefault("memory.top_k", 5)
	v.SetDefault("memory.index", "hnsw")
	v.SetDefault("memory.entries", "json")
	v.SetDefault("memory.hnsw_m", 16)
	v.SetDefault("memory.hnsw_ef_search", 200)

	v.SetDefault("prompt.template_file", "")
	v.SetDefault("prompt.format", "chatml")
	v.SetDefault("prompt.role_label", "Solus")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("verbose", true)
}

// Load reads configuration into v and decodes it. path may be empty.
func Load(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Server.Port > 0 && c.Server.Port < 65536, "server.port %d out of range", c.Server.Port)
	check(c.Server.GRPCPort >= 0 && c.Server.GRPCPort < 65536, "server.grpc_port %d out of range", c.Server.GRPCPort)

	check(oneOf(c.Model.Backend, "ollama", "openai", "anthropic", "mock"), "unknown model.backend %q", c.Model.Backend)
	check(c.Model.Backend == "mock" || c.Model.Name != "", "model.name is required")
	check(c.Model.ContextSize > 0, "model.context_size must be positive")
	check(c.Model.CharsPerToken > 0, "model.chars_per_token must be positive")

	check(oneOf(c.Embedding.Backend, "ollama", "openai", "onnx", "mock"), "unknown embedding.backend %q", c.Embedding.Backend)
	check(c.Embedding.Backend != "onnx" || (c.Embedding.ONNXModelPath != "" && c.Embedding.ONNXTokenizerPath != ""),
		"embedding.onnx_model_path and embedding.onnx_tokenizer_path are required for the onnx backend")
	check(c.Embedding.CacheSize >= 0, "embedding.cache_size must not be negative")

	check(c.Generation.Temperature >= 0, "generation.temperature must not be negative")
	check(c.Generation.TopP > 0 && c.Generation.TopP <= 1, "generation.top_p must be in (0, 1]")
	check(c.Generation.TopK >= 0, "generation.top_k must not be negative")
	check(c.Generation.MaxTokens > 0, "generation.max_tokens must be positive")

	check(c.Memory.Path != "", "memory.path is required")
	check(c.Memory.Dimension >= 0, "memory.dimension must not be negative")
	check(c.Memory.Capacity > 0, "memory.capacity must be positive")
	check(c.Memory.TopK > 0, "memory.top_k must be positive")
	check(oneOf(c.Memory.Index, "hnsw", "chromem"), "unknown memory.index %q", c.Memory.Index)
	check(oneOf(c.Memory.Entries, "json", "sqlite"), "unknown memory.entries %q", c.Memory.Entries)

	check(oneOf(strings.ToLower(c.Prompt.Format), "chatml", "qwen"), "unknown prompt.format %q", c.Prompt.Format)
	check(oneOf(strings.ToLower(c.Log.Level), "debug", "info", "warn", "error"), "unknown log.level %q", c.Log.Level)

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

func oneOf(s string, options ...string) bool {
	for _, o := range options {
		if s == o {
			return true
		}
	}
	return false
}
