// ABOUTME: Synthesizer that shells out to espeak-ng, espeak or say
// ABOUTME: Cancelling the context kills the child process
package voice

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// espeak's default words per minute at rate 1.0
const espeakBaseWPM = 175

// CommandSynthesizer runs a speech binary per utterance
type CommandSynthesizer struct {
	// Command is a binary name or path. espeak-ng and espeak take
	// prosody flags, anything else only gets the text.
	Command string
}

// NewCommandSynthesizer returns a synthesizer for command
func NewCommandSynthesizer(command string) *CommandSynthesizer {
	return &CommandSynthesizer{Command: command}
}

func (c *CommandSynthesizer) isEspeak() bool {
	base := filepath.Base(c.Command)
	return base == "espeak-ng" || base == "espeak"
}

// Args builds the argument list for u
func (c *CommandSynthesizer) Args(u Utterance) []string {
	p := u.Params.Clamp()
	switch {
	case c.isEspeak():
		args := []string{
			"-s", strconv.Itoa(int(p.Rate * espeakBaseWPM)),
			"-p", strconv.Itoa(int(p.Pitch * 50)),
			"-a", strconv.Itoa(int(p.Volume * 200)),
		}
		switch {
		case u.Voice != "":
			args = append(args, "-v", u.Voice)
		case u.Lang != "":
			args = append(args, "-v", strings.ToLower(strings.SplitN(u.Lang, "-", 2)[0]))
		}
		return append(args, "--", u.Text)
	case filepath.Base(c.Command) == "say":
		args := []string{"-r", strconv.Itoa(int(p.Rate * espeakBaseWPM))}
		if u.Voice != "" {
			args = append(args, "-v", u.Voice)
		}
		return append(args, "--", u.Text)
	}
	return []string{u.Text}
}

// Speak runs the command and waits for it to exit
func (c *CommandSynthesizer) Speak(ctx context.Context, u Utterance) error {
	cmd := exec.CommandContext(ctx, c.Command, c.Args(u)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s: %w: %s", c.Command, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// Voices lists voices. Only espeak variants can enumerate them.
func (c *CommandSynthesizer) Voices(ctx context.Context) ([]Voice, error) {
	if !c.isEspeak() {
		return nil, nil
	}
	out, err := exec.CommandContext(ctx, c.Command, "--voices").Output()
	if err != nil {
		return nil, fmt.Errorf("%s --voices: %w", c.Command, err)
	}
	return parseEspeakVoices(out), nil
}

// parseEspeakVoices reads the table printed by espeak --voices:
//
//	Pty Language       Age/Gender VoiceName          File          Other Languages
//	 5  pl              --/M      Polish             zle/pl
func parseEspeakVoices(out []byte) []Voice {
	var voices []Voice
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 || fields[0] == "Pty" {
			continue
		}
		v := Voice{Lang: fields[1], Name: fields[3]}
		if _, g, ok := strings.Cut(fields[2], "/"); ok {
			switch g {
			case "M":
				v.Gender = "male"
			case "F":
				v.Gender = "female"
			}
		}
		voices = append(voices, v)
	}
	return voices
}
