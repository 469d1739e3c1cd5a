// # Audio mixing session controller
//
// Package audiomix drives a real-time audio session against a media engine: a
// setup form collects the channel name, audio profile and scenario, and a
// Session joins the channel audio-only, exposes the audio-mixing volume
// controls and keeps a roster of participants from the engine's
// notifications. Engines are pluggable; RemoteEngine talks to a media gateway
// over WebRTC and ReplayEngine plays a scripted session.
package audiomix
