package audiomix

import "fmt"

// AudioProfile selects sample rate, bitrate, channel count and encoding mode.
type AudioProfile int

const (
	AudioProfileDefault AudioProfile = iota
	AudioProfileSpeechStandard
	AudioProfileMusicStandard
	AudioProfileMusicStandardStereo
	AudioProfileMusicHighQuality
	AudioProfileMusicHighQualityStereo
)

var audioProfileNames = map[AudioProfile]string{
	AudioProfileDefault:                "default",
	AudioProfileSpeechStandard:         "speech_standard",
	AudioProfileMusicStandard:          "music_standard",
	AudioProfileMusicStandardStereo:    "music_standard_stereo",
	AudioProfileMusicHighQuality:       "music_high_quality",
	AudioProfileMusicHighQualityStereo: "music_high_quality_stereo",
}

// AllAudioProfiles returns the profiles in picker order.
func AllAudioProfiles() []AudioProfile {
	return []AudioProfile{
		AudioProfileDefault,
		AudioProfileSpeechStandard,
		AudioProfileMusicStandard,
		AudioProfileMusicStandardStereo,
		AudioProfileMusicHighQuality,
		AudioProfileMusicHighQualityStereo,
	}
}

func (p AudioProfile) String() string {
	if s, ok := audioProfileNames[p]; ok {
		return s
	}
	return fmt.Sprintf("audio_profile(%d)", int(p))
}

func (p AudioProfile) Valid() bool {
	_, ok := audioProfileNames[p]
	return ok
}

func ParseAudioProfile(s string) (AudioProfile, error) {
	for p, name := range audioProfileNames {
		if name == s {
			return p, nil
		}
	}
	return AudioProfileDefault, fmt.Errorf("unknown audio profile: %q", s)
}

func (p AudioProfile) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("invalid audio profile: %d", int(p))
	}
	return []byte(p.String()), nil
}

func (p *AudioProfile) UnmarshalText(text []byte) error {
	v, err := ParseAudioProfile(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// AudioScenario tunes the engine's audio processing for a use case.
type AudioScenario int

const (
	AudioScenarioDefault AudioScenario = iota
	AudioScenarioChatRoomEntertainment
	AudioScenarioEducation
	AudioScenarioGameStreaming
	AudioScenarioShowRoom
	AudioScenarioChatRoomGaming
)

var audioScenarioNames = map[AudioScenario]string{
	AudioScenarioDefault:               "default",
	AudioScenarioChatRoomEntertainment: "chatroom_entertainment",
	AudioScenarioEducation:             "education",
	AudioScenarioGameStreaming:         "game_streaming",
	AudioScenarioShowRoom:              "showroom",
	AudioScenarioChatRoomGaming:        "chatroom_gaming",
}

// AllAudioScenarios returns the scenarios in picker order.
func AllAudioScenarios() []AudioScenario {
	return []AudioScenario{
		AudioScenarioDefault,
		AudioScenarioChatRoomEntertainment,
		AudioScenarioEducation,
		AudioScenarioGameStreaming,
		AudioScenarioShowRoom,
		AudioScenarioChatRoomGaming,
	}
}

func (s AudioScenario) String() string {
	if name, ok := audioScenarioNames[s]; ok {
		return name
	}
	return fmt.Sprintf("audio_scenario(%d)", int(s))
}

func (s AudioScenario) Valid() bool {
	_, ok := audioScenarioNames[s]
	return ok
}

func ParseAudioScenario(s string) (AudioScenario, error) {
	for sc, name := range audioScenarioNames {
		if name == s {
			return sc, nil
		}
	}
	return AudioScenarioDefault, fmt.Errorf("unknown audio scenario: %q", s)
}

func (s AudioScenario) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid audio scenario: %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *AudioScenario) UnmarshalText(text []byte) error {
	v, err := ParseAudioScenario(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
