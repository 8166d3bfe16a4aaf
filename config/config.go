// Package config loads canvasflow settings.
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("canvasflow.yaml").
//	    Load()
//
// Precedence: defaults, then the YAML file, then CANVASFLOW_* environment
// variables (e.g. CANVASFLOW_STORAGE_DRIVER=sqlite).
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultEnvPrefix = "CANVASFLOW"

type Config struct {
	Server  ServerConfig  `yaml:"server" env:"SERVER"`
	Log     LogConfig     `yaml:"log" env:"LOG"`
	Storage StorageConfig `yaml:"storage" env:"STORAGE"`
	Engine  EngineConfig  `yaml:"engine" env:"ENGINE"`
	HTTP    HTTPConfig    `yaml:"http" env:"HTTP"`
	AI      AIConfig      `yaml:"ai" env:"AI"`
	Sandbox SandboxConfig `yaml:"sandbox" env:"SANDBOX"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr" env:"ADDR"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

type LogConfig struct {
	// debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// json or console
	Format      string   `yaml:"format" env:"FORMAT"`
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
}

type StorageConfig struct {
	// memory, file, sqlite or redis
	Driver         string      `yaml:"driver" env:"DRIVER"`
	DataDir        string      `yaml:"data_dir" env:"DATA_DIR"`
	SQLitePath     string      `yaml:"sqlite_path" env:"SQLITE_PATH"`
	RunLogCapacity int         `yaml:"run_log_capacity" env:"RUN_LOG_CAPACITY"`
	Redis          RedisConfig `yaml:"redis" env:"REDIS"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr" env:"ADDR"`
	Password  string `yaml:"password" env:"PASSWORD"`
	DB        int    `yaml:"db" env:"DB"`
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
}

type EngineConfig struct {
	// 0 disables the bound.
	NodeTimeout time.Duration `yaml:"node_timeout" env:"NODE_TIMEOUT"`
	RunTimeout  time.Duration `yaml:"run_timeout" env:"RUN_TIMEOUT"`
}

type HTTPConfig struct {
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

type AIConfig struct {
	DefaultProvider string        `yaml:"default_provider" env:"DEFAULT_PROVIDER"`
	Timeout         time.Duration `yaml:"timeout" env:"TIMEOUT"`
	OpenAI          OpenAIConfig  `yaml:"openai" env:"OPENAI"`
	Ollama          OllamaConfig  `yaml:"ollama" env:"OLLAMA"`
}

type OpenAIConfig struct {
	APIKey  string `yaml:"api_key" env:"API_KEY"`
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	Model   string `yaml:"model" env:"MODEL"`
}

type OllamaConfig struct {
	Endpoint string `yaml:"endpoint" env:"ENDPOINT"`
	Model    string `yaml:"model" env:"MODEL"`
}

type SandboxConfig struct {
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    5 * time.Minute,
			ShutdownTimeout: 15 * time.Second,
		},
		Log: LogConfig{
			Level:       "info",
			Format:      "json",
			OutputPaths: []string{"stdout"},
		},
		Storage: StorageConfig{
			Driver:         "file",
			DataDir:        "data",
			RunLogCapacity: 50,
			Redis:          RedisConfig{Addr: "localhost:6379", KeyPrefix: "canvasflow:"},
		},
		Engine: EngineConfig{NodeTimeout: 2 * time.Minute},
		HTTP:   HTTPConfig{Timeout: 30 * time.Second},
		AI: AIConfig{
			DefaultProvider: "openai",
			Timeout:         60 * time.Second,
			OpenAI:          OpenAIConfig{Model: "gpt-4o-mini"},
			Ollama:          OllamaConfig{Endpoint: "http://localhost:11434/api/generate", Model: "llama3"},
		},
		Sandbox: SandboxConfig{Timeout: 5 * time.Second},
	}
}

// Validate checks values the loaders cannot type-check.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "memory", "file", "sqlite", "redis":
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	if c.Storage.RunLogCapacity < 0 {
		return fmt.Errorf("run_log_capacity must not be negative")
	}
	switch c.AI.DefaultProvider {
	case "openai", "ollama":
	default:
		return fmt.Errorf("unknown AI provider %q", c.AI.DefaultProvider)
	}
	return nil
}

// Loader builds a Config from defaults, an optional YAML file and the
// environment.
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

func NewLoader() *Loader {
	return &Loader{envPrefix: DefaultEnvPrefix}
}

func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load applies defaults, file and environment, then runs Validate and any
// extra validators. A missing config file is not an error.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()
	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}
	if err := setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix); err != nil {
		return nil, fmt.Errorf("load config from env: %w", err)
	}
	for _, v := range append([]func(*Config) error{(*Config).Validate}, l.validators...) {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
	}
	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		tag := t.Field(i).Tag.Get("env")
		if tag == "" || tag == "-" {
			continue
		}
		key := prefix + "_" + tag
		if field.Kind() == reflect.Struct {
			if err := setFieldsFromEnv(field, key); err != nil {
				return err
			}
			continue
		}
		val, ok := os.LookupEnv(key)
		if !ok || val == "" {
			continue
		}
		if err := setFieldValue(field, val); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
			return nil
		}
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}
	return nil
}
