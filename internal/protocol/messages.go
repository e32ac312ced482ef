// ABOUTME: Feedback bridge message type definitions
// ABOUTME: JSON envelopes exchanged between the engine and a host UI
package protocol

import "encoding/json"

// Version is the bridge protocol version
const Version = 1

// Message types. Hosts send the first group, the engine the second.
const (
	TypeHostHello     = "host/hello"
	TypeEvent         = "event"
	TypeTelemetry     = "telemetry"
	TypeListener      = "listener"
	TypeVisibility    = "visibility"
	TypeStatusRequest = "status/request"
	TypeSpeakStarted  = "speak/started"
	TypeSpeakEnded    = "speak/ended"
	TypeSpeakError    = "speak/error"

	TypeEngineHello   = "engine/hello"
	TypeEngineError   = "engine/error"
	TypeStatus        = "status"
	TypeVibrate       = "vibrate"
	TypeVibrateCancel = "vibrate/cancel"
	TypeSpeak         = "speak"
	TypeSpeakCancel   = "speak/cancel"
)

// Message is the top-level wrapper for outgoing messages
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Envelope is an incoming message with its payload left undecoded
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Decode unmarshals the payload into v
func (e Envelope) Decode(v any) error {
	if len(e.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(e.Payload, v)
}

// Voice is a synthesizer voice available on the host
type Voice struct {
	Name   string `json:"name"`
	Lang   string `json:"lang"`
	Gender string `json:"gender,omitempty"`
}

// HostHello opens a session. Vibration and Speech declare which
// primitives the host renders for the engine.
type HostHello struct {
	HostID    string  `json:"host_id"`
	Name      string  `json:"name"`
	Version   int     `json:"version"`
	Vibration bool    `json:"vibration"`
	Speech    bool    `json:"speech"`
	Voices    []Voice `json:"voices,omitempty"`
}

// EngineHello answers host/hello
type EngineHello struct {
	EngineID        string `json:"engine_id"`
	Name            string `json:"name"`
	Version         int    `json:"version"`
	SoftwareVersion string `json:"software_version,omitempty"`
}

// EngineError reports a rejected message
type EngineError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Telemetry carries battery and network samples. Absent fields are
// left unchanged.
type Telemetry struct {
	Battery       *float64 `json:"battery,omitempty"`
	DownlinkMbps  *float64 `json:"downlink_mbps,omitempty"`
	EffectiveType string   `json:"effective_type,omitempty"`
}

// ListenerPose moves the listener
type ListenerPose struct {
	Position [3]float64 `json:"position"`
	Forward  [3]float64 `json:"forward"`
	Up       [3]float64 `json:"up"`
}

// Visibility reports whether the host UI is hidden
type Visibility struct {
	Hidden bool `json:"hidden"`
}

// Vibrate asks the host to run an on/off envelope in milliseconds
type Vibrate struct {
	PatternMS []int64 `json:"pattern_ms"`
}

// Speak asks the host to speak one utterance
type Speak struct {
	ID     string  `json:"id"`
	Text   string  `json:"text"`
	Lang   string  `json:"lang"`
	Voice  string  `json:"voice,omitempty"`
	Rate   float64 `json:"rate"`
	Pitch  float64 `json:"pitch"`
	Volume float64 `json:"volume"`
}

// SpeakReply reports progress of a Speak request. Error is set only
// for speak/error.
type SpeakReply struct {
	ID    string `json:"id"`
	Error string `json:"error,omitempty"`
}
