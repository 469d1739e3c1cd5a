package audiomix

import (
	"fmt"
	"strings"

	"github.com/bt-bridge/audiomix/shared"
	"github.com/goccy/go-yaml"
)

// SessionConfig is what the setup form hands to a session. It cannot be
// changed after construction.
type SessionConfig struct {
	channel  string
	profile  AudioProfile
	scenario AudioScenario
}

func NewSessionConfig(channel string, profile AudioProfile, scenario AudioScenario) (SessionConfig, error) {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		return SessionConfig{}, shared.ErrEmptyChannel
	}
	if !profile.Valid() {
		return SessionConfig{}, fmt.Errorf("invalid audio profile: %d", int(profile))
	}
	if !scenario.Valid() {
		return SessionConfig{}, fmt.Errorf("invalid audio scenario: %d", int(scenario))
	}
	return SessionConfig{channel: channel, profile: profile, scenario: scenario}, nil
}

func (c SessionConfig) Channel() string         { return c.channel }
func (c SessionConfig) Profile() AudioProfile   { return c.profile }
func (c SessionConfig) Scenario() AudioScenario { return c.scenario }

type sessionConfigYAML struct {
	Channel  string `yaml:"channel"`
	Profile  string `yaml:"profile"`
	Scenario string `yaml:"scenario"`
}

// MarshalYAML renders the config for display.
func (c SessionConfig) MarshalYAML() ([]byte, error) {
	return yaml.Marshal(sessionConfigYAML{
		Channel:  c.channel,
		Profile:  c.profile.String(),
		Scenario: c.scenario.String(),
	})
}

const channelNameSymbols = " !#$%&()+-:;<=.>?@[]^_{}|~,"

// ValidateChannelName checks the engine's channel naming rules: 1 to 64 bytes
// of ASCII letters, digits and a fixed set of symbols.
func ValidateChannelName(name string) error {
	if name == "" {
		return shared.ErrEmptyChannel
	}
	if len(name) > maxChannelNameLen {
		return fmt.Errorf("channel name longer than %d bytes", maxChannelNameLen)
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r < 0x80 && strings.ContainsRune(channelNameSymbols, r):
		default:
			return fmt.Errorf("invalid character %q in channel name", r)
		}
	}
	return nil
}

// ValidateMixingVolume accepts 0 (muted) to 100 (original file volume).
func ValidateMixingVolume(volume int) error {
	if volume < 0 || volume > 100 {
		return fmt.Errorf("mixing volume %d out of range [0,100]", volume)
	}
	return nil
}
