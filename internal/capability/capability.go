// ABOUTME: Device capability model and user-agent based probe
// ABOUTME: Capabilities are probed once and treated as immutable afterwards
package capability

import (
	"regexp"
	"strings"
	"time"
)

// FormFactor classifies the host device
type FormFactor string

const (
	Desktop FormFactor = "desktop"
	Mobile  FormFactor = "mobile"
	Tablet  FormFactor = "tablet"
)

// OSFamily is the coarse operating system family
type OSFamily string

const (
	OSUnknown OSFamily = "unknown"
	OSiOS     OSFamily = "ios"
	OSAndroid OSFamily = "android"
	OSWindows OSFamily = "windows"
	OSMacOS   OSFamily = "macos"
	OSLinux   OSFamily = "linux"
)

// MemoryClass buckets device memory
type MemoryClass string

const (
	MemoryLow    MemoryClass = "low"
	MemoryMedium MemoryClass = "medium"
	MemoryHigh   MemoryClass = "high"
)

const (
	// DefaultDownlinkMbps is assumed when the host reports no connection info
	DefaultDownlinkMbps = 10.0
	defaultRTT          = 100 * time.Millisecond
)

// Connection describes the network as reported by the host
type Connection struct {
	EffectiveType string        `json:"effective_type"`
	DownlinkMbps  float64       `json:"downlink_mbps"`
	RTT           time.Duration `json:"rtt"`
	SaveData      bool          `json:"save_data"`
}

// Capabilities is the probed feature set of the device
type Capabilities struct {
	FormFactor FormFactor `json:"form_factor"`
	OS         OSFamily   `json:"os"`
	Cores      int        `json:"cores"`
	MemoryGB   float64    `json:"memory_gb"`
	Vibration  bool       `json:"vibration"`
	Speech     bool       `json:"speech"`
	Audio      bool       `json:"audio"`
	Connection Connection `json:"connection"`
}

// Hints are the raw signals a host platform provides
type Hints struct {
	UserAgent  string
	Platform   string
	Cores      int
	MemoryGB   float64
	Vibration  bool
	Speech     bool
	Audio      bool
	Connection *Connection
}

var (
	mobileRE  = regexp.MustCompile(`mobile|android|iphone|ipod|blackberry|windows phone`)
	tabletRE  = regexp.MustCompile(`tablet|ipad`)
	appleRE   = regexp.MustCompile(`iphone|ipad|ipod`)
	androidRE = regexp.MustCompile(`android`)
)

// Probe derives capabilities from host hints
func Probe(h Hints) Capabilities {
	ua := strings.ToLower(h.UserAgent)
	platform := strings.ToLower(h.Platform)

	caps := Capabilities{
		OS:        detectOS(ua, platform),
		Cores:     h.Cores,
		MemoryGB:  h.MemoryGB,
		Vibration: h.Vibration,
		Speech:    h.Speech,
		Audio:     h.Audio,
	}

	isMobile := mobileRE.MatchString(ua)
	switch {
	case isMobile:
		caps.FormFactor = Mobile
	case tabletRE.MatchString(ua):
		caps.FormFactor = Tablet
	default:
		caps.FormFactor = Desktop
	}

	// Unknown hardware is treated as the weakest device
	if caps.Cores <= 0 {
		caps.Cores = 1
	}
	if caps.MemoryGB <= 0 {
		caps.MemoryGB = 1
	}

	if h.Connection != nil {
		caps.Connection = *h.Connection
	} else {
		caps.Connection = Connection{
			EffectiveType: "unknown",
			DownlinkMbps:  DefaultDownlinkMbps,
			RTT:           defaultRTT,
		}
	}

	return caps
}

func detectOS(ua, platform string) OSFamily {
	switch {
	case appleRE.MatchString(ua):
		return OSiOS
	case androidRE.MatchString(ua):
		return OSAndroid
	case strings.Contains(platform, "windows") || strings.Contains(platform, "win32"):
		return OSWindows
	case strings.Contains(platform, "mac") || strings.Contains(platform, "darwin"):
		return OSMacOS
	case strings.Contains(platform, "linux"):
		return OSLinux
	}
	return OSUnknown
}

// IsMobile reports whether the device is a phone-class device
func (c Capabilities) IsMobile() bool {
	return c.FormFactor == Mobile
}

// IsTouch reports phones and tablets
func (c Capabilities) IsTouch() bool {
	return c.FormFactor == Mobile || c.FormFactor == Tablet
}

// MemoryClass buckets MemoryGB
func (c Capabilities) MemoryClass() MemoryClass {
	switch {
	case c.MemoryGB < 2:
		return MemoryLow
	case c.MemoryGB < 4:
		return MemoryMedium
	}
	return MemoryHigh
}

// VibrationIntensity estimates how strongly the actuator renders a
// full-scale pulse, in [0,1].
func (c Capabilities) VibrationIntensity() float64 {
	switch {
	case c.OS == OSiOS:
		return 0.8
	case c.OS == OSAndroid:
		return 0.7
	case c.IsTouch():
		return 0.6
	}
	return 0.3
}
