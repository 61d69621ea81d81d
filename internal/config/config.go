package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig  `mapstructure:"server"`
	TTS       TTSConfig     `mapstructure:"tts"`
	Metrics   MetricsConfig `mapstructure:"metrics"`
	LogLevel  string        `mapstructure:"log_level"`
	LogFormat string        `mapstructure:"log_format"`
}

type ServerConfig struct {
	ListenAddr      string   `mapstructure:"listen_addr"`
	Path            string   `mapstructure:"path"`
	MaxTextBytes    int      `mapstructure:"max_text_bytes"`
	ReadLimit       int64    `mapstructure:"read_limit"`
	ShutdownTimeout int      `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
}

type TTSConfig struct {
	Backend        string  `mapstructure:"backend"`
	Command        string  `mapstructure:"command"`
	ModelPath      string  `mapstructure:"model_path"`
	VoicesPath     string  `mapstructure:"voices_path"`
	VoicesManifest string  `mapstructure:"voices_manifest"`
	Concurrency    int     `mapstructure:"concurrency"`
	Voice          string  `mapstructure:"voice"`
	Speed          float64 `mapstructure:"speed"`
	Lang           string  `mapstructure:"lang"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			ListenAddr:      "localhost:5050",
			Path:            "/",
			MaxTextBytes:    16384,
			ReadLimit:       65536,
			ShutdownTimeout: 30,
			AllowedOrigins:  []string{"*"},
		},
		TTS: TTSConfig{
			Backend:        BackendExec,
			Command:        "python3 worker/kokoro_worker.py",
			ModelPath:      "kokoro-v1.0.onnx",
			VoicesPath:     "voices-v1.0.bin",
			VoicesManifest: "",
			Concurrency:    1,
			Voice:          "af_sarah",
			Speed:          1.0,
			Lang:           "en-us",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		LogLevel:  "info",
		LogFormat: "json",
	}
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("server-listen-addr", defaults.Server.ListenAddr, "WebSocket/HTTP listen address")
	fs.String("server-path", defaults.Server.Path, "WebSocket endpoint path")
	fs.Int("server-max-text-bytes", defaults.Server.MaxTextBytes, "Maximum request text size in bytes (0 disables the limit)")
	fs.Int64("server-read-limit", defaults.Server.ReadLimit, "Maximum inbound WebSocket message size in bytes")
	fs.Int("server-shutdown-timeout", defaults.Server.ShutdownTimeout, "Graceful shutdown drain period in seconds")
	fs.StringSlice("server-allowed-origins", defaults.Server.AllowedOrigins, "Accepted WebSocket Origin patterns")
	fs.String("tts-backend", defaults.TTS.Backend, "Synthesis backend (exec|tone)")
	fs.String("tts-command", defaults.TTS.Command, "Worker command for the exec backend")
	fs.String("tts-model-path", defaults.TTS.ModelPath, "Path to the synthesis model file")
	fs.String("tts-voices-path", defaults.TTS.VoicesPath, "Path to the voice data file")
	fs.String("tts-voices-manifest", defaults.TTS.VoicesManifest, "Optional JSON voice catalog (defaults to the built-in catalog)")
	fs.Int("tts-concurrency", defaults.TTS.Concurrency, "Max concurrent synthesis streams")
	fs.String("tts-voice", defaults.TTS.Voice, "Default voice when a request omits one")
	fs.Float64("tts-speed", defaults.TTS.Speed, "Default speed when a request omits one")
	fs.String("tts-lang", defaults.TTS.Lang, "Default language when a request omits one")
	fs.Bool("metrics-enabled", defaults.Metrics.Enabled, "Serve Prometheus metrics on /metrics")
	fs.String("log-level", defaults.LogLevel, "Log level (debug|info|warn|error)")
	fs.String("log-format", defaults.LogFormat, "Log format (json|text)")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)
	if opts.Cmd != nil {
		if err := bindFlags(v, opts.Cmd.Flags()); err != nil {
			return Config{}, err
		}
	}

	v.SetEnvPrefix("KOKOROSTREAM")
	replacer := strings.NewReplacer("-", "_", ".", "_", "__", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("kokorostream")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	backend, err := NormalizeBackend(cfg.TTS.Backend)
	if err != nil {
		return Config{}, err
	}
	cfg.TTS.Backend = backend

	return cfg, nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("server.listen_addr", c.Server.ListenAddr)
	v.SetDefault("server.path", c.Server.Path)
	v.SetDefault("server.max_text_bytes", c.Server.MaxTextBytes)
	v.SetDefault("server.read_limit", c.Server.ReadLimit)
	v.SetDefault("server.shutdown_timeout", c.Server.ShutdownTimeout)
	v.SetDefault("server.allowed_origins", c.Server.AllowedOrigins)
	v.SetDefault("tts.backend", c.TTS.Backend)
	v.SetDefault("tts.command", c.TTS.Command)
	v.SetDefault("tts.model_path", c.TTS.ModelPath)
	v.SetDefault("tts.voices_path", c.TTS.VoicesPath)
	v.SetDefault("tts.voices_manifest", c.TTS.VoicesManifest)
	v.SetDefault("tts.concurrency", c.TTS.Concurrency)
	v.SetDefault("tts.voice", c.TTS.Voice)
	v.SetDefault("tts.speed", c.TTS.Speed)
	v.SetDefault("tts.lang", c.TTS.Lang)
	v.SetDefault("metrics.enabled", c.Metrics.Enabled)
	v.SetDefault("log_level", c.LogLevel)
	v.SetDefault("log_format", c.LogFormat)
}

// flagKeys maps config keys to the flag names registered by RegisterFlags.
var flagKeys = []struct{ key, flag string }{
	{"server.listen_addr", "server-listen-addr"},
	{"server.path", "server-path"},
	{"server.max_text_bytes", "server-max-text-bytes"},
	{"server.read_limit", "server-read-limit"},
	{"server.shutdown_timeout", "server-shutdown-timeout"},
	{"server.allowed_origins", "server-allowed-origins"},
	{"tts.backend", "tts-backend"},
	{"tts.command", "tts-command"},
	{"tts.model_path", "tts-model-path"},
	{"tts.voices_path", "tts-voices-path"},
	{"tts.voices_manifest", "tts-voices-manifest"},
	{"tts.concurrency", "tts-concurrency"},
	{"tts.voice", "tts-voice"},
	{"tts.speed", "tts-speed"},
	{"tts.lang", "tts-lang"},
	{"metrics.enabled", "metrics-enabled"},
	{"log_level", "log-level"},
	{"log_format", "log-format"},
}

// bindFlags binds every registered flag to its nested config key. Flags that
// were not registered on fs are skipped so subcommands can bind a subset.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for _, fk := range flagKeys {
		f := fs.Lookup(fk.flag)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(fk.key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", fk.flag, err)
		}
	}
	return nil
}
