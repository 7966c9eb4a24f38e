package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	LogLevel string        `mapstructure:"log_level"`
	Paths    PathsConfig   `mapstructure:"paths"`
	Clone    CloneConfig   `mapstructure:"clone"`
	Server   ServerConfig  `mapstructure:"server"`
}

type PathsConfig struct {
	FFmpegPath string `mapstructure:"ffmpeg_path"`
	RunnerPath string `mapstructure:"runner_path"`
	OutputDir  string `mapstructure:"output_dir"`
}

type CloneConfig struct {
	Model      string  `mapstructure:"model"`
	Language   string  `mapstructure:"language"`
	Device     string  `mapstructure:"device"`
	SilenceSec float64 `mapstructure:"silence_sec"`
}

type ServerConfig struct {
	ListenAddr      string `mapstructure:"listen_addr"`
	RequestTimeout  int    `mapstructure:"request_timeout"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"`
	MaxTextBytes    int    `mapstructure:"max_text_bytes"`
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
		LogLevel: "info",
		Paths: PathsConfig{
			FFmpegPath: "",
			RunnerPath: "",
			OutputDir:  "outputs",
		},
		Clone: CloneConfig{
			Model:      "quality",
			Language:   "Japanese",
			Device:     "auto",
			SilenceSec: 0.25,
		},
		Server: ServerConfig{
			ListenAddr:      "127.0.0.1:7860",
			RequestTimeout:  600,
			ShutdownTimeout: 30,
			MaxTextBytes:    4096,
		},
	}
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("log-level", defaults.LogLevel, "Log level (debug|info|warn|error)")
	fs.String("paths-ffmpeg-path", defaults.Paths.FFmpegPath, "Path to ffmpeg binary (PATH lookup if empty)")
	fs.String("paths-runner-path", defaults.Paths.RunnerPath, "Path to qwen-tts-runner binary (PATH lookup if empty)")
	fs.String("paths-output-dir", defaults.Paths.OutputDir, "Directory for synthesized audio files")
	fs.String("clone-model", defaults.Clone.Model, "Model preset (quality|speed|custom-voice) or a model ID")
	fs.String("clone-language", defaults.Clone.Language, "Synthesis language (Japanese / English / auto)")
	fs.String("clone-device", defaults.Clone.Device, "Device token (auto|mps|cpu|cuda:0)")
	fs.Float64("clone-silence-sec", defaults.Clone.SilenceSec, "Silence between batch lines in seconds")
	fs.String("server-listen-addr", defaults.Server.ListenAddr, "HTTP listen address")
	fs.Int("server-request-timeout", defaults.Server.RequestTimeout, "Per-job synthesis deadline in seconds")
	fs.Int("server-shutdown-timeout", defaults.Server.ShutdownTimeout, "Graceful shutdown drain in seconds")
	fs.Int("server-max-text-bytes", defaults.Server.MaxTextBytes, "Maximum text length accepted by the HTTP surface")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)
	if opts.Cmd != nil {
		if err := v.BindPFlags(opts.Cmd.Flags()); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}
	registerAliases(v)

	v.SetEnvPrefix("VOICECLONE")
	replacer := strings.NewReplacer("-", "_", ".", "_", "__", "_")
	v.SetEnvKeyReplacer(replacer)
	if err := v.BindEnv("paths.ffmpeg_path", "VOICECLONE_FFMPEG", "FFMPEG_PATH"); err != nil {
		return Config{}, fmt.Errorf("bind ffmpeg env vars: %w", err)
	}
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("voiceclone")
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

	return cfg, nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("log_level", c.LogLevel)
	v.SetDefault("paths.ffmpeg_path", c.Paths.FFmpegPath)
	v.SetDefault("paths.runner_path", c.Paths.RunnerPath)
	v.SetDefault("paths.output_dir", c.Paths.OutputDir)
	v.SetDefault("clone.model", c.Clone.Model)
	v.SetDefault("clone.language", c.Clone.Language)
	v.SetDefault("clone.device", c.Clone.Device)
	v.SetDefault("clone.silence_sec", c.Clone.SilenceSec)
	v.SetDefault("server.listen_addr", c.Server.ListenAddr)
	v.SetDefault("server.request_timeout", c.Server.RequestTimeout)
	v.SetDefault("server.shutdown_timeout", c.Server.ShutdownTimeout)
	v.SetDefault("server.max_text_bytes", c.Server.MaxTextBytes)
}

func registerAliases(v *viper.Viper) {
	v.RegisterAlias("log_level", "log-level")
	v.RegisterAlias("paths.ffmpeg_path", "paths-ffmpeg-path")
	v.RegisterAlias("paths.runner_path", "paths-runner-path")
	v.RegisterAlias("paths.output_dir", "paths-output-dir")
	v.RegisterAlias("clone.model", "clone-model")
	v.RegisterAlias("clone.language", "clone-language")
	v.RegisterAlias("clone.device", "clone-device")
	v.RegisterAlias("clone.silence_sec", "clone-silence-sec")
	v.RegisterAlias("server.listen_addr", "server-listen-addr")
	v.RegisterAlias("server.request_timeout", "server-request-timeout")
	v.RegisterAlias("server.shutdown_timeout", "server-shutdown-timeout")
	v.RegisterAlias("server.max_text_bytes", "server-max-text-bytes")
}
