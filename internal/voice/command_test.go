// ABOUTME: Tests for the command synthesizer
// ABOUTME: Checks espeak and say arguments and espeak voice listing
package voice

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEspeakArgs(t *testing.T) {
	c := NewCommandSynthesizer("/usr/bin/espeak-ng")
	args := c.Args(Utterance{
		Text:   "cześć",
		Lang:   "pl-PL",
		Params: Params{Rate: 1, Pitch: 1, Volume: 0.5},
	})
	assert.Equal(t, []string{"-s", "175", "-p", "50", "-a", "100", "-v", "pl", "--", "cześć"}, args)

	args = c.Args(Utterance{Text: "hi", Voice: "Polish", Params: Params{Rate: 2, Pitch: 0, Volume: 1}})
	assert.Equal(t, []string{"-s", "350", "-p", "0", "-a", "200", "-v", "Polish", "--", "hi"}, args)
}

func TestOtherCommandArgs(t *testing.T) {
	assert.Equal(t, []string{"-r", "175", "--", "hi"},
		NewCommandSynthesizer("say").Args(Utterance{Text: "hi", Params: Neutral}))
	assert.Equal(t, []string{"hi"},
		NewCommandSynthesizer("/opt/tts").Args(Utterance{Text: "hi", Params: Neutral}))
}

func TestParseEspeakVoices(t *testing.T) {
	out := []byte(`Pty Language       Age/Gender VoiceName          File                 Other Languages
 5  pl              --/M      Polish             zle/pl
 5  en-gb           --/F      English_(Great_Britain) gmw/en
 5  de              --/-      German             gmw/de
`)
	voices := parseEspeakVoices(out)
	assert.Equal(t, []Voice{
		{Name: "Polish", Lang: "pl", Gender: "male"},
		{Name: "English_(Great_Britain)", Lang: "en-gb", Gender: "female"},
		{Name: "German", Lang: "de"},
	}, voices)
}
