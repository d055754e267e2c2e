package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Mode     string       `mapstructure:"mode"`
	LogLevel string       `mapstructure:"log_level"`
	Server   ServerConfig `mapstructure:"server"`
	Client   ClientConfig `mapstructure:"client"`
}

type ServerConfig struct {
	APIPort       int           `mapstructure:"api_port"`
	RelayPort     int           `mapstructure:"relay_port"`
	OpenAIBaseURL string        `mapstructure:"openai_base_url"`
	OpenAIAPIKey  string        `mapstructure:"openai_api_key"`
	Model         string        `mapstructure:"model"`
	Voice         string        `mapstructure:"voice"`
	Instructions  string        `mapstructure:"instructions"`
	Greeting      string        `mapstructure:"greeting"`
	SDPRateLimit  int           `mapstructure:"sdp_rate_limit"`
	SDPRateWindow time.Duration `mapstructure:"sdp_rate_window"`
	ReadLimit     int64         `mapstructure:"read_limit"`
	PingPeriod    time.Duration `mapstructure:"ping_period"`
	Secret        string        `mapstructure:"secret"`
}

type ClientConfig struct {
	APIURL      string   `mapstructure:"api_url"`
	RelayURL    string   `mapstructure:"relay_url"`
	ICEServers  []string `mapstructure:"ice_servers"`
	CaptureFile string   `mapstructure:"capture_file"`
	CaptureLoop bool     `mapstructure:"capture_loop"`
	RecordFile  string   `mapstructure:"record_file"`
	FrameRate   int      `mapstructure:"frame_rate"`
	Visualizer  bool     `mapstructure:"visualizer"`
}

// flagKeys maps command line flags onto config keys.
var flagKeys = map[string]string{
	"mode":         "mode",
	"log-level":    "log_level",
	"api-port":     "server.api_port",
	"relay-port":   "server.relay_port",
	"model":        "server.model",
	"voice":        "server.voice",
	"api-url":      "client.api_url",
	"relay-url":    "client.relay_url",
	"ice-server":   "client.ice_servers",
	"capture":      "client.capture_file",
	"capture-loop": "client.capture_loop",
	"record":       "client.record_file",
	"fps":          "client.frame_rate",
	"visualizer":   "client.visualizer",
}

type Loader struct {
	v    *viper.Viper
	file string

	mu  sync.RWMutex
	cfg *Config
}

// NewLoader reads config/config.<CONFIG_ENV>.yaml, VOICEBRIDGE_* environment
// variables and the given flags, in increasing precedence.
func NewLoader(flags *pflag.FlagSet) *Loader {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("log_level", "info")

	v.SetDefault("server.api_port", 8080)
	v.SetDefault("server.relay_port", 8081)
	v.SetDefault("server.openai_base_url", "https://api.openai.com/v1")
	v.SetDefault("server.model", "gpt-4o-mini-realtime-preview-2024-12-17")
	v.SetDefault("server.voice", "shimmer")
	v.SetDefault("server.instructions", "You are a helpful voice assistant. Keep answers short.")
	v.SetDefault("server.greeting", "")
	v.SetDefault("server.sdp_rate_limit", 10)
	v.SetDefault("server.sdp_rate_window", "1m")
	v.SetDefault("server.read_limit", 1<<20)
	v.SetDefault("server.ping_period", "54s")
	v.SetDefault("server.secret", "voicebridge-dev-secret")

	v.SetDefault("client.api_url", "http://localhost:8080")
	v.SetDefault("client.relay_url", "ws://localhost:8081/")
	v.SetDefault("client.ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("client.capture_file", "")
	v.SetDefault("client.capture_loop", true)
	v.SetDefault("client.record_file", "")
	v.SetDefault("client.frame_rate", 60)
	v.SetDefault("client.visualizer", true)

	v.SetEnvPrefix("VOICEBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("server.openai_api_key", "VOICEBRIDGE_SERVER_OPENAI_API_KEY", "OPENAI_API_KEY")

	if flags != nil {
		flags.VisitAll(func(f *pflag.Flag) {
			if key, ok := flagKeys[f.Name]; ok {
				_ = v.BindPFlag(key, f)
			}
		})
	}

	return &Loader{v: v, file: fileName}
}

func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", l.file).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", l.file).Msg("loaded config")
	}

	cfg, err := l.decode()
	if err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").
		Str("mode", cfg.Mode).
		Int("api_port", cfg.Server.APIPort).
		Int("relay_port", cfg.Server.RelayPort).
		Msg("config ready")
	return cfg, nil
}

func (l *Loader) decode() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	l.mu.Lock()
	l.cfg = &cfg
	l.mu.Unlock()
	return &cfg, nil
}

// Current is the most recently loaded config.
func (l *Loader) Current() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg
}

// Watch calls fn with the reloaded config whenever the file changes.
func (l *Loader) Watch(fn func(*Config)) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := l.decode()
		if err != nil {
			log.Error().Err(err).Str("module", "config").Msg("reload failed")
			return
		}
		log.Info().Str("module", "config").Str("file", e.Name).Msg("config reloaded")
		fn(cfg)
	})
	l.v.WatchConfig()
}

// Load reads the config once.
func Load(flags *pflag.FlagSet) (*Config, error) {
	return NewLoader(flags).Load()
}

// ClientFlags registers the client command line flags.
func ClientFlags(fs *pflag.FlagSet) {
	fs.String("mode", "release", "gin mode / log verbosity profile")
	fs.String("log-level", "info", "log level")
	fs.String("api-url", "http://localhost:8080", "API server base URL")
	fs.String("relay-url", "ws://localhost:8081/", "relay websocket URL")
	fs.StringSlice("ice-server", nil, "ICE server URL (repeatable)")
	fs.String("capture", "", "16-bit PCM WAV file used as microphone (empty: silence)")
	fs.Bool("capture-loop", true, "loop the capture file")
	fs.String("record", "", "write remote Opus audio to this Ogg file")
	fs.Int("fps", 60, "visualizer frame rate")
	fs.Bool("visualizer", true, "render the spectrum in the terminal")
}

// ServerFlags registers the server command line flags.
func ServerFlags(fs *pflag.FlagSet) {
	fs.String("mode", "release", "gin mode")
	fs.String("log-level", "info", "log level")
	fs.Int("api-port", 8080, "API listen port")
	fs.Int("relay-port", 8081, "relay websocket listen port")
	fs.String("model", "", "realtime model")
	fs.String("voice", "", "assistant voice")
}
