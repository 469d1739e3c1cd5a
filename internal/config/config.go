package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type VolumeIndication struct {
	Interval time.Duration `mapstructure:"interval"`
	Smooth   int           `mapstructure:"smooth"`
	VAD      bool          `mapstructure:"vad"`
}

type Log struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type Config struct {
	// GatewayURL selects the remote engine. Empty means replay mode.
	GatewayURL string   `mapstructure:"gateway_url"`
	ICEServers []string `mapstructure:"ice_servers"`
	// Replay is a script path, or "demo" for the built-in script.
	Replay string `mapstructure:"replay"`

	Channel     string `mapstructure:"channel"`
	Profile     string `mapstructure:"profile"`
	Scenario    string `mapstructure:"scenario"`
	Interactive bool   `mapstructure:"interactive"`
	Microphone  bool   `mapstructure:"microphone"`
	PCMOut      string `mapstructure:"pcm_out"`

	VolumeIndication VolumeIndication `mapstructure:"volume_indication"`
	Log              Log              `mapstructure:"log"`
	MetricsAddr      string           `mapstructure:"metrics_addr"`

	// ConfigFile is the file the values were read from, empty when only
	// defaults and environment were used.
	ConfigFile string `mapstructure:"-"`
}

const EnvPrefix = "AUDIOMIX"

func setDefaults(v *viper.Viper) {
	v.SetDefault("gateway_url", "")
	v.SetDefault("ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("replay", "demo")
	v.SetDefault("channel", "")
	v.SetDefault("profile", "default")
	v.SetDefault("scenario", "default")
	v.SetDefault("interactive", true)
	v.SetDefault("microphone", false)
	v.SetDefault("pcm_out", "")
	v.SetDefault("volume_indication.interval", "200ms")
	v.SetDefault("volume_indication.smooth", 3)
	v.SetDefault("volume_indication.vad", false)
	v.SetDefault("log.file", "cli/cli.log")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 2)
	v.SetDefault("log.max_age_days", 3)
	v.SetDefault("log.compress", false)
	v.SetDefault("metrics_addr", "")
}

// Load reads path (yaml), then AUDIOMIX_* environment overrides, on top of
// defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(path)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	var cfg Config
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else {
		cfg.ConfigFile = v.ConfigFileUsed()
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
