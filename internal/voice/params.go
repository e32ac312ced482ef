// ABOUTME: Speech parameter derivation from context, emphasis and speed tags
// ABOUTME: Also picks a synthesizer voice for a language and gender
package voice

import (
	"math"
	"strings"
)

// Context tags what an utterance is for
type Context string

const (
	ContextEducational Context = "educational"
	ContextNavigation  Context = "navigation"
	ContextFeedback    Context = "feedback"
	ContextDescription Context = "description"
)

type Emphasis string

const (
	EmphasisNormal Emphasis = "normal"
	EmphasisStrong Emphasis = "strong"
	EmphasisGentle Emphasis = "gentle"
)

type Speed string

const (
	SpeedNormal Speed = "normal"
	SpeedSlow   Speed = "slow"
	SpeedFast   Speed = "fast"
)

// DefaultLanguage is used when a request names none
const DefaultLanguage = "pl-PL"

// Params are the prosody values handed to the synthesizer
type Params struct {
	Rate   float64 `json:"rate"`
	Pitch  float64 `json:"pitch"`
	Volume float64 `json:"volume"`
}

// Neutral is used for requests without a context tag
var Neutral = Params{Rate: 1.0, Pitch: 1.0, Volume: 0.8}

// ForContext returns the defaults for a context tag
func ForContext(c Context) Params {
	switch c {
	case ContextEducational:
		return Params{Rate: 0.9, Pitch: 1.0, Volume: 0.8}
	case ContextNavigation:
		return Params{Rate: 1.1, Pitch: 1.1, Volume: 0.7}
	case ContextFeedback:
		return Params{Rate: 1.0, Pitch: 1.2, Volume: 0.8}
	case ContextDescription:
		return Params{Rate: 0.95, Pitch: 1.0, Volume: 0.75}
	}
	return Neutral
}

// Derive applies context defaults, then emphasis, then speed. Later steps
// overwrite values outright.
func Derive(c Context, e Emphasis, s Speed) Params {
	p := ForContext(c)

	switch e {
	case EmphasisStrong:
		p = Params{Rate: 0.8, Pitch: 1.3, Volume: 0.9}
	case EmphasisGentle:
		p = Params{Rate: 1.1, Pitch: 0.9, Volume: 0.6}
	}

	switch s {
	case SpeedSlow:
		p.Rate = 0.7
	case SpeedFast:
		p.Rate = 1.3
	}
	return p
}

// Clamp bounds rate to [0.1,10], pitch to [0,2] and volume to [0,1]
func (p Params) Clamp() Params {
	return Params{
		Rate:   math.Max(0.1, math.Min(10, p.Rate)),
		Pitch:  math.Max(0, math.Min(2, p.Pitch)),
		Volume: math.Max(0, math.Min(1, p.Volume)),
	}
}

// Voice is a synthesizer voice
type Voice struct {
	Name   string `json:"name"`
	Lang   string `json:"lang"`
	Gender string `json:"gender,omitempty"`
}

func (v Voice) generic() bool {
	return strings.Contains(strings.ToLower(v.Name), "generic")
}

func (v Voice) matchesGender(gender string) bool {
	if v.Gender != "" {
		return strings.EqualFold(v.Gender, gender)
	}
	name := strings.ToLower(v.Name)
	switch gender {
	case "female":
		return strings.Contains(name, "female") || strings.Contains(name, "woman") ||
			strings.HasSuffix(name, "ska")
	case "male":
		return !strings.Contains(name, "female") &&
			(strings.Contains(name, "male") || strings.HasSuffix(name, "ski"))
	}
	return true
}

// VoicesForLanguage returns voices whose language starts with lang,
// ignoring case
func VoicesForLanguage(voices []Voice, lang string) []Voice {
	lang = strings.ToLower(lang)
	var out []Voice
	for _, v := range voices {
		if strings.HasPrefix(strings.ToLower(v.Lang), lang) {
			out = append(out, v)
		}
	}
	return out
}

// SelectVoice picks the voice for lang. A gender of "male" or "female"
// is preferred when a matching voice exists. Otherwise the first
// non-generic match wins, then any match. Returns false when nothing
// matches and the synthesizer default should be used.
func SelectVoice(voices []Voice, lang, gender string) (Voice, bool) {
	matches := VoicesForLanguage(voices, lang)
	if len(matches) == 0 {
		return Voice{}, false
	}

	if gender == "male" || gender == "female" {
		for _, v := range matches {
			if v.matchesGender(gender) {
				return v, true
			}
		}
	}

	for _, v := range matches {
		if !v.generic() {
			return v, true
		}
	}
	return matches[0], true
}
