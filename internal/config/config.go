package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type RateLimit struct {
	Events   int           `mapstructure:"events"`
	Interval time.Duration `mapstructure:"interval"`
}

type Quality struct {
	Enabled      bool          `mapstructure:"enabled"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type ScreenShare struct {
	Enabled     bool          `mapstructure:"enabled"`
	ListenAddr  string        `mapstructure:"listen_addr"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
}

type Copilot struct {
	SuggestDelay        time.Duration `mapstructure:"suggest_delay"`
	KeepChunks          int           `mapstructure:"keep_chunks"`
	InterviewServiceURL string        `mapstructure:"interview_service_url"`
	RequestTimeout      time.Duration `mapstructure:"request_timeout"`
	IdleTTL             time.Duration `mapstructure:"idle_ttl"`
}

type WebRTC struct {
	STUNURLs []string `mapstructure:"stun_urls"`
}

type Config struct {
	Mode         string        `mapstructure:"mode"`
	Port         int           `mapstructure:"port"`
	StaticPath   string        `mapstructure:"static_path"`
	Secret       string        `mapstructure:"secret"`
	LogLevel     string        `mapstructure:"log_level"`
	ReadLimit    int64         `mapstructure:"read_limit"`
	PingPeriod   time.Duration `mapstructure:"ping_period"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	SendBuffer   int           `mapstructure:"send_buffer"`
	Backpressure string        `mapstructure:"backpressure"`

	RateLimit   RateLimit   `mapstructure:"rate_limit"`
	Quality     Quality     `mapstructure:"quality"`
	ScreenShare ScreenShare `mapstructure:"screenshare"`
	Copilot     Copilot     `mapstructure:"copilot"`
	WebRTC      WebRTC      `mapstructure:"webrtc"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("secret", "change-me")
	v.SetDefault("log_level", "info")
	v.SetDefault("read_limit", 65536)
	v.SetDefault("ping_period", "30s")
	v.SetDefault("write_timeout", "5s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("backpressure", "drop")

	v.SetDefault("rate_limit.events", 50)
	v.SetDefault("rate_limit.interval", "1s")

	v.SetDefault("quality.enabled", true)
	v.SetDefault("quality.poll_interval", "5s")

	v.SetDefault("screenshare.enabled", false)
	v.SetDefault("screenshare.listen_addr", "127.0.0.1:5004")
	v.SetDefault("screenshare.idle_timeout", "5s")

	v.SetDefault("copilot.suggest_delay", "8s")
	v.SetDefault("copilot.keep_chunks", 2)
	v.SetDefault("copilot.interview_service_url", "http://localhost:3007")
	v.SetDefault("copilot.request_timeout", "15s")
	v.SetDefault("copilot.idle_ttl", "30m")

	v.SetDefault("webrtc.stun_urls", []string{"stun:stun.l.google.com:19302"})
}

// loadDotEnv fills the process environment from a .env file; existing
// variables win and a missing file is fine.
func loadDotEnv() error {
	path := os.Getenv("COPILOT_ENV_FILE")
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	log.Info().Str("module", "config").Str("file", path).Msg("loaded env file")
	return nil
}

func Load() (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)
	v.SetConfigFile(fileName)

	v.SetEnvPrefix("COPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Backpressure != "drop" && cfg.Backpressure != "kick" {
		return nil, fmt.Errorf("backpressure must be drop or kick, got %q", cfg.Backpressure)
	}
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("static", cfg.StaticPath).
		Str("backpressure", cfg.Backpressure).
		Msg("config ready")
	return &cfg, nil
}
