package codec

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalidRTTTL is returned for any tone-data string that does not
// match the recognized RTTTL grammar.
var ErrInvalidRTTTL = errors.New("mx240a: invalid RTTTL data")

// Ringtone is an immutable decoded ringtone: a flat sequence of
// (duration_ms, note_code) byte pairs, plus the RTTTL text it came from.
type Ringtone struct {
	Text  string
	Bytes []byte
}

// MuteTone is the one-tick-rest byte pair substituted whenever a
// connecting handheld's application doesn't supply a tone for an event.
var MuteTone = Ringtone{Bytes: []byte{0x01, 0x7F}}

var validDurations = map[int]bool{1: true, 2: true, 4: true, 8: true, 16: true, 32: true}
var validOctaves = map[int]bool{4: true, 5: true, 6: true, 7: true}

// noteTable maps "<letter>[#]<octave>" to its device note code.
var noteTable = buildNoteTable()

func buildNoteTable() map[string]byte {
	letters := []string{"c", "c#", "d", "d#", "e", "f", "f#", "g", "g#", "a", "a#", "b"}
	table := make(map[string]byte)
	code := 0x01
	for octave := 4; octave <= 7; octave++ {
		for _, letter := range letters {
			if code == 0x18 {
				// 0x18-0x1F are unused note codes; the sequence resumes at 0x20.
				code = 0x20
			}
			table[letter+strconv.Itoa(octave)] = byte(code)
			code++
		}
	}
	return table
}

var tonePattern = regexp.MustCompile(`^(.*):((?:[dob]=\d+,?)*):(.*)$`)
var notePattern = regexp.MustCompile(`(\d*)([a-gA-Gp])(#?)(\d?)(\.?),?`)

// ParseRTTTL parses a "NAME:d=D,o=O,b=B:NOTES" tone-data string into
// its device byte-pair encoding. An empty string encodes to MuteTone.
func ParseRTTTL(toneData string) (Ringtone, error) {
	if toneData == "" {
		return MuteTone, nil
	}

	duration, octave, bpm := 4, 4, 120

	clean := strings.ReplaceAll(toneData, " ", "")
	m := tonePattern.FindStringSubmatch(clean)
	if m == nil {
		return Ringtone{}, ErrInvalidRTTTL
	}
	args, notes := m[2], m[3]

	for _, arg := range strings.Split(args, ",") {
		if arg == "" {
			continue
		}
		parts := strings.SplitN(arg, "=", 2)
		if len(parts) != 2 {
			return Ringtone{}, ErrInvalidRTTTL
		}
		val, err := strconv.Atoi(parts[1])
		if err != nil {
			return Ringtone{}, ErrInvalidRTTTL
		}
		switch parts[0] {
		case "d":
			if !validDurations[val] {
				return Ringtone{}, ErrInvalidRTTTL
			}
			duration = val
		case "o":
			if !validOctaves[val] {
				return Ringtone{}, ErrInvalidRTTTL
			}
			octave = val
		case "b":
			if val <= 0 {
				return Ringtone{}, ErrInvalidRTTTL
			}
			bpm = val
		}
	}

	var out []byte
	for _, nm := range notePattern.FindAllStringSubmatch(notes, -1) {
		noteDuration := duration
		if nm[1] != "" {
			d, err := strconv.Atoi(nm[1])
			if err != nil || !validDurations[d] {
				return Ringtone{}, ErrInvalidRTTTL
			}
			noteDuration = d
		}

		durationMs := roundDiv(60000, bpm, 4, noteDuration, 16)
		if durationMs < 1 {
			durationMs = 1
		}
		if durationMs > 255 {
			durationMs = 255
		}
		out = append(out, byte(durationMs))

		letter := strings.ToLower(nm[2])
		if letter == "p" {
			out = append(out, 0x7F)
			continue
		}

		noteOctave := octave
		if nm[4] != "" {
			o, err := strconv.Atoi(nm[4])
			if err != nil || !validOctaves[o] {
				return Ringtone{}, ErrInvalidRTTTL
			}
			noteOctave = o
		}
		key := letter + nm[3] + strconv.Itoa(noteOctave)
		code, ok := noteTable[key]
		if !ok {
			return Ringtone{}, ErrInvalidRTTTL
		}
		out = append(out, code)
	}

	if len(out) == 0 {
		return MuteTone, nil
	}
	return Ringtone{Text: toneData, Bytes: out}, nil
}

// roundDiv computes round(a/b * c / d / e) using integer-only
// arithmetic, rounding half away from zero.
func roundDiv(a, b, c, d, e int) int {
	num := a * c
	den := b * d * e
	// round-half-up for positive values
	return (num + den/2) / den
}
