// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every key when read from the environment,
// e.g. VIT_CLASSIFIER_MODEL or VIT_CLASSIFIER_MODELS_DIR.
const EnvPrefix = "VIT_CLASSIFIER"

// DefaultModel is the model classified against when none is configured. It is
// the ONNX export of google/vit-base-patch16-224 and shares its labels.
const DefaultModel = "Xenova/vit-base-patch16-224"

// Config holds all configuration for a classification run
type Config struct {
	// Model provider
	Model     string `mapstructure:"model"`
	ModelsDir string `mapstructure:"models_dir"`
	HubURL    string `mapstructure:"hub_url"`
	HubToken  string `mapstructure:"hub_token"`
	Revision  string `mapstructure:"revision"`
	Offline   bool   `mapstructure:"offline"`

	// Inference engine
	Device         string `mapstructure:"device"`
	ONNXRuntimeLib string `mapstructure:"onnxruntime_lib"`
	UseMock        bool   `mapstructure:"use_mock"`

	// Result cache (disabled when Redis is empty)
	Redis    string        `mapstructure:"redis"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`

	// Observability sinks, all optional
	Pushgateway string `mapstructure:"pushgateway"`
	MetricsFile string `mapstructure:"metrics_file"`
	Trace       bool   `mapstructure:"trace"`
	LogLevel    string `mapstructure:"log_level"`
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"model":           "model",
	"models-dir":      "models_dir",
	"hub-url":         "hub_url",
	"hub-token":       "hub_token",
	"revision":        "revision",
	"offline":         "offline",
	"device":          "device",
	"onnxruntime-lib": "onnxruntime_lib",
	"mock":            "use_mock",
	"redis":           "redis",
	"cache-ttl":       "cache_ttl",
	"pushgateway":     "pushgateway",
	"metrics-file":    "metrics_file",
	"trace":           "trace",
	"log-level":       "log_level",
}

// RegisterFlags declares every configuration flag on fs. Flag defaults are
// left empty so that unset flags never shadow the environment or a config file.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Path to config file (optional)")
	fs.String("model", "", "Model identifier on the hub (default: "+DefaultModel+")")
	fs.String("models-dir", "", "Local model cache directory")
	fs.String("hub-url", "", "Model hub base URL (default: https://huggingface.co)")
	fs.String("hub-token", "", "Bearer token for the model hub")
	fs.String("revision", "", "Model revision to download (default: main)")
	fs.Bool("offline", false, "Never download, use the local model cache only")
	fs.String("device", "", "Compute device policy: auto, cpu or cuda (default: auto)")
	fs.String("onnxruntime-lib", "", "Path to the onnxruntime shared library")
	fs.Bool("mock", false, "Use mock inference engine (for testing)")
	fs.String("redis", "", "Redis address for the prediction cache (disabled when empty)")
	fs.Duration("cache-ttl", 0, "Prediction cache TTL (default: 24h)")
	fs.String("pushgateway", "", "Prometheus Pushgateway URL to push run metrics to")
	fs.String("metrics-file", "", "Write run metrics in Prometheus text format to this file")
	fs.Bool("trace", false, "Export OpenTelemetry spans to stderr")
	fs.String("log-level", "", "Log level: debug, info, warn, error (default: warn)")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("model", DefaultModel)
	v.SetDefault("models_dir", defaultModelsDir())
	v.SetDefault("hub_url", "https://huggingface.co")
	v.SetDefault("hub_token", "")
	v.SetDefault("revision", "main")
	v.SetDefault("offline", false)
	v.SetDefault("device", "auto")
	v.SetDefault("onnxruntime_lib", "")
	v.SetDefault("use_mock", false)
	v.SetDefault("redis", "")
	v.SetDefault("cache_ttl", 24*time.Hour)
	v.SetDefault("pushgateway", "")
	v.SetDefault("metrics_file", "")
	v.SetDefault("trace", false)
	v.SetDefault("log_level", "warn")
}

func defaultModelsDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(".vit-classifier", "models")
	}
	return filepath.Join(dir, "vit-classifier", "models")
}

// Load loads configuration from flags, environment variables, and optional config file.
// Priority (highest to lowest): flags > env vars > config file > defaults.
// fs may be nil. When configPath is empty the usual locations are searched
// and a missing file is not an error.
func Load(fs *pflag.FlagSet, configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// Environment variable configuration
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configPath, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.vit-classifier")

		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				// Config file was found but another error occurred
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}
	if used := v.ConfigFileUsed(); used != "" {
		logrus.WithField("file", used).Debug("using config file")
	}

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag --%s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("model name is required")
	}
	if c.ModelsDir == "" {
		return fmt.Errorf("models_dir is required")
	}
	if !c.Offline && c.HubURL == "" {
		return fmt.Errorf("hub_url is required unless offline")
	}
	switch strings.ToLower(c.Device) {
	case "auto", "cpu", "cuda":
	default:
		return fmt.Errorf("invalid device %q: want auto, cpu or cuda", c.Device)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	if c.Redis != "" && c.CacheTTL <= 0 {
		return fmt.Errorf("cache_ttl must be positive when redis is set, got %s", c.CacheTTL)
	}
	return nil
}
