// Package pronunciation compares a learner's spoken pinyin with the expected reading of an item.
package pronunciation

import (
	"strings"
	"unicode"
)

// initials ordered so that two-letter initials match before their one-letter prefix
var initials = []string{"ch", "sh", "zh", "b", "p", "m", "f", "d", "t", "n", "l", "g", "k", "h", "j", "q", "x", "r", "s", "z", "y", "w"}

// Syllable is one pinyin syllable split into its parts. Tone is "" for the neutral tone.
type Syllable struct {
	Initial string
	Final   string
	Tone    string
}

// toneMarks maps a marked vowel to its bare vowel and tone number.
var toneMarks = map[rune]struct {
	base rune
	tone byte
}{
	'ā': {'a', '1'}, 'á': {'a', '2'}, 'ǎ': {'a', '3'}, 'à': {'a', '4'},
	'ē': {'e', '1'}, 'é': {'e', '2'}, 'ě': {'e', '3'}, 'è': {'e', '4'},
	'ī': {'i', '1'}, 'í': {'i', '2'}, 'ǐ': {'i', '3'}, 'ì': {'i', '4'},
	'ō': {'o', '1'}, 'ó': {'o', '2'}, 'ǒ': {'o', '3'}, 'ò': {'o', '4'},
	'ū': {'u', '1'}, 'ú': {'u', '2'}, 'ǔ': {'u', '3'}, 'ù': {'u', '4'},
	'ǖ': {'ü', '1'}, 'ǘ': {'ü', '2'}, 'ǚ': {'ü', '3'}, 'ǜ': {'ü', '4'},
}

// ToNumbered converts one tone-marked syllable to numbered form: "nǐ" -> "ni3".
// Syllables already carrying a digit are returned lowercased. "v" is read as "ü".
func ToNumbered(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}

	var b strings.Builder
	var tone byte
	for _, r := range s {
		if m, ok := toneMarks[r]; ok {
			b.WriteRune(m.base)
			tone = m.tone
			continue
		}
		if r == 'v' {
			r = 'ü'
		}
		b.WriteRune(r)
	}
	out := b.String()
	if tone != 0 && !endsWithDigit(out) {
		out += string(tone)
	}
	return out
}

// Split breaks a pronunciation into numbered syllables. Syllables are separated by
// whitespace, apostrophes or hyphens.
func Split(pronunciation string) []string {
	fields := strings.FieldsFunc(pronunciation, func(r rune) bool {
		return unicode.IsSpace(r) || r == '\'' || r == '’' || r == '-'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if n := ToNumbered(f); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// ParseSyllable splits a numbered syllable. Tones 0 and 5 are read as neutral.
func ParseSyllable(s string) Syllable {
	s = ToNumbered(s)
	if s == "" {
		return Syllable{}
	}

	var syl Syllable
	if endsWithDigit(s) {
		syl.Tone = s[len(s)-1:]
		s = s[:len(s)-1]
		if syl.Tone == "0" || syl.Tone == "5" {
			syl.Tone = ""
		}
	}
	for _, in := range initials {
		if strings.HasPrefix(s, in) {
			syl.Initial = in
			break
		}
	}
	syl.Final = s[len(syl.Initial):]
	return syl
}

func (s Syllable) String() string {
	return s.Initial + s.Final + s.Tone
}

func endsWithDigit(s string) bool {
	return s != "" && s[len(s)-1] >= '0' && s[len(s)-1] <= '9'
}

// CharacterAssessment is the result of comparing one character's reading.
type CharacterAssessment struct {
	Char         string `json:"char"`
	Expected     string `json:"expected"`
	Actual       string `json:"actual"` // "--" when nothing was heard for the character
	Correct      bool   `json:"correct"`
	InitialMatch bool   `json:"initial_match"`
	FinalMatch   bool   `json:"final_match"`
	ToneMatch    bool   `json:"tone_match"`
}

// Compare pairs each character of text with the expected and heard syllable at the same index.
func Compare(text string, expected, actual []string) []CharacterAssessment {
	chars := []rune(text)
	out := make([]CharacterAssessment, 0, len(chars))
	for i, ch := range chars {
		var exp, act string
		if i < len(expected) {
			exp = expected[i]
		}
		if i < len(actual) {
			act = actual[i]
		}

		e, a := ParseSyllable(exp), ParseSyllable(act)
		ca := CharacterAssessment{
			Char:         string(ch),
			Expected:     e.String(),
			Actual:       a.String(),
			InitialMatch: e.Initial == a.Initial,
			FinalMatch:   e.Final == a.Final,
			ToneMatch:    e.Tone == a.Tone,
		}
		ca.Correct = act != "" && ca.Expected == ca.Actual
		if act == "" {
			ca.Actual = "--"
		}
		out = append(out, ca)
	}
	return out
}

// AllCorrect reports whether every character was pronounced correctly.
// An empty assessment is never correct.
func AllCorrect(results []CharacterAssessment) bool {
	if len(results) == 0 {
		return false
	}
	for _, r := range results {
		if !r.Correct {
			return false
		}
	}
	return true
}
