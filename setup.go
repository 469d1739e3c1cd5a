package audiomix

import (
	"sync"

	"github.com/bt-bridge/audiomix/shared"
)

// Setup is the form that precedes a session: a channel name plus the profile
// and scenario pickers. Selecting values has no effect outside the form.
type Setup struct {
	mu       sync.Mutex
	channel  string
	profile  AudioProfile
	scenario AudioScenario
}

func NewSetup() *Setup {
	return &Setup{
		profile:  AudioProfileDefault,
		scenario: AudioScenarioDefault,
	}
}

func (f *Setup) Profiles() []AudioProfile   { return AllAudioProfiles() }
func (f *Setup) Scenarios() []AudioScenario { return AllAudioScenarios() }

func (f *Setup) SetChannel(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channel = name
}

func (f *Setup) SelectProfile(p AudioProfile) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profile = p
}

func (f *Setup) SelectScenario(s AudioScenario) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scenario = s
}

// ProfileLabel and ScenarioLabel are the texts shown on the picker buttons.
func (f *Setup) ProfileLabel() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.profile.String()
}

func (f *Setup) ScenarioLabel() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scenario.String()
}

// Config builds the session configuration from the current form state.
func (f *Setup) Config() (SessionConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return NewSessionConfig(f.channel, f.profile, f.scenario)
}

// Confirm hands the form state to a new, unopened Session. A blank channel
// name returns shared.ErrEmptyChannel.
func (f *Setup) Confirm(engine Engine, opts ...SessionOption) (*Session, error) {
	cfg, err := f.Config()
	if err != nil {
		return nil, err
	}
	if engine == nil {
		return nil, shared.ErrNoEngine
	}
	return NewSession(cfg, engine, opts...)
}
