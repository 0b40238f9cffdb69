package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/folkengine/goname"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/tcriess/lightspeed-chat-client/globals"
)

const (
	StatusPolicyMonotonic = "monotonic"
	StatusPolicyOverwrite = "overwrite"

	defaultWebsocketURL = "ws://localhost:5001/ws"
	defaultAPIURL       = "http://localhost:5001"
	defaultRoom         = "general"
)

// Config is the global configuration object which is filled via the configuration file, the environment
// (LSCHAT_ prefix) and the command line.
type Config struct {
	Username        string          `mapstructure:"username"`
	ServerConfig    ServerConfig    `mapstructure:"server"`
	DefaultRoom     string          `mapstructure:"default_room"`
	InitialRooms    []string        `mapstructure:"initial_rooms"`
	ReconnectConfig ReconnectConfig `mapstructure:"reconnect"`
	TimingConfig    TimingConfig    `mapstructure:"timing"`
	StatusPolicy    string          `mapstructure:"status_policy"`
	NotifyFilter    string          `mapstructure:"notify_filter"`
	ResyncSchedule  string          `mapstructure:"resync_schedule"`
	RoomCacheSize   int             `mapstructure:"room_cache_size"`
	LogLevel        string          `mapstructure:"log_level"`
}

// ServerConfig locates the authority. The event channel and the query surface are separate endpoints.
// IdToken and Provider are passed through on dial, the authority verifies them.
type ServerConfig struct {
	WebsocketURL string `mapstructure:"ws_url"`
	APIURL       string `mapstructure:"api_url"`
	IdToken      string `mapstructure:"id_token"`
	Provider     string `mapstructure:"provider"`
}

// ReconnectConfig is handed to the transport: a bounded number of attempts with a fixed delay.
type ReconnectConfig struct {
	Attempts int           `mapstructure:"attempts"`
	Delay    time.Duration `mapstructure:"delay"`
}

type TimingConfig struct {
	TypingTimeout       time.Duration `mapstructure:"typing_timeout"`
	RequestingIndicator time.Duration `mapstructure:"requesting_indicator"`
	RefreshDelay        time.Duration `mapstructure:"refresh_delay"`
	QueryTimeout        time.Duration `mapstructure:"query_timeout"`
}

func GetFlagSet() *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("configuration", pflag.ContinueOnError)
	flagSet.StringP("username", "u", "", "own handle")
	flagSet.String("ws-url", "", "websocket url of the chat server")
	flagSet.String("api-url", "", "base url of the chat server api")
	flagSet.String("log-level", "", "log level (TRACE, DEBUG, INFO, WARN, ERROR)")
	return flagSet
}

// flag name -> config key
var flagKeys = map[string]string{
	"username":  "username",
	"ws-url":    "server.ws_url",
	"api-url":   "server.api_url",
	"log-level": "log_level",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.ws_url", defaultWebsocketURL)
	v.SetDefault("server.api_url", defaultAPIURL)
	v.SetDefault("default_room", defaultRoom)
	v.SetDefault("initial_rooms", []string{"general", "tech", "random"})
	v.SetDefault("reconnect.attempts", 5)
	v.SetDefault("reconnect.delay", time.Second)
	v.SetDefault("timing.typing_timeout", 3*time.Second)
	v.SetDefault("timing.requesting_indicator", 3*time.Second)
	v.SetDefault("timing.refresh_delay", 500*time.Millisecond)
	v.SetDefault("timing.query_timeout", 10*time.Second)
	v.SetDefault("status_policy", StatusPolicyMonotonic)
	v.SetDefault("notify_filter", "Room != CurrentRoom")
	v.SetDefault("resync_schedule", "@every 5m")
	v.SetDefault("room_cache_size", 128)
	v.SetDefault("log_level", "INFO")
}

// ReadConfiguration reads and parses the configuration located at configPath, which can either point to a single TOML
// file or to a directory, in which case all *.toml files in this directory are concatenated. Flags that were set
// on flagSet take precedence over the environment, which takes precedence over the files. flagSet may be nil.
func ReadConfiguration(configPath string, flagSet *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	if flagSet != nil {
		for name, key := range flagKeys {
			if f := flagSet.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					globals.AppLogger.Error("could not bind flag (ignored)", "flag", name, "error", err)
				}
			}
		}
	}
	v.SetEnvPrefix("LSCHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if configPath != "" {
		fi, err := os.Stat(configPath)
		if err != nil {
			return nil, err
		}
		contents := make([]byte, 0)
		files := []string{configPath}
		if fi.IsDir() {
			files, err = filepath.Glob(filepath.Join(configPath, "*.toml"))
			if err != nil {
				return nil, err
			}
		}
		for _, configFile := range files {
			fileContents, err := os.ReadFile(configFile)
			if err != nil {
				return nil, err
			}
			contents = append(contents, fileContents...)
			contents = append(contents, '\n')
		}
		v.SetConfigType("toml")
		if err := v.ReadConfig(bytes.NewBuffer(contents)); err != nil {
			return nil, fmt.Errorf("could not read config: %w", err)
		}
	}
	cfg := Config{}
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("could not unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Username == "" {
		cfg.Username = GuestName()
		globals.AppLogger.Info("no username configured, using guest handle", "username", cfg.Username)
	}

	globals.AppLogger.Debug("config", "cfg", cfg)
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.StatusPolicy {
	case StatusPolicyMonotonic, StatusPolicyOverwrite:
	default:
		return fmt.Errorf("invalid status_policy %q", c.StatusPolicy)
	}
	if c.ReconnectConfig.Attempts < 1 {
		return fmt.Errorf("reconnect.attempts must be at least 1")
	}
	if c.DefaultRoom == "" {
		return fmt.Errorf("default_room must not be empty")
	}
	return nil
}

// GuestName generates a handle for users that did not configure one. Handles end up in
// direct-message room names, so spaces are replaced.
func GuestName() string {
	name := goname.New(goname.FantasyMap).FirstLast()
	return strings.ToLower(strings.ReplaceAll(name, " ", "-")) + "-guest"
}
