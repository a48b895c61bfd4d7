package moderation

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"

	apperrors "github.com/Zvbcbcv/chat/errors"
)

// Moderator finds banned words in free text. Matching is done on a
// normalized form (lowercase, letters and digits only) so spacing or
// punctuation tricks do not defeat it.
type Moderator struct {
	matcher      *goahocorasick.Machine
	censoredChar rune
}

type textMapping struct {
	normalized []rune
	origIdx    []int
}

// NewModerator builds the Aho-Corasick automaton from the banned word
// list. The list must not be empty.
func NewModerator(bannedWords []string, censoredChar rune) (Moderator, error) {
	if len(bannedWords) == 0 {
		return Moderator{}, apperrors.ErrEmptyWords
	}
	patterns := make([][]rune, 0, len(bannedWords))
	for _, word := range bannedWords {
		normalized := normalize(word).normalized
		if len(normalized) > 0 {
			patterns = append(patterns, normalized)
		}
	}
	if len(patterns) == 0 {
		return Moderator{}, apperrors.ErrEmptyWords
	}

	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return Moderator{}, err
	}
	return Moderator{matcher: m, censoredChar: censoredChar}, nil
}

// Match reports whether the text contains at least one banned word.
func (m *Moderator) Match(text string) bool {
	mapping := normalize(text)
	if len(mapping.normalized) == 0 {
		return false
	}
	return len(m.matcher.MultiPatternSearch(mapping.normalized, false)) > 0
}

// Censor replaces every banned word with the replacement character,
// preserving the length and spacing of the original text. It returns the
// censored text and the normalized words that were found.
func (m *Moderator) Censor(original string) (string, []string) {
	mapping := normalize(original)
	if len(mapping.normalized) == 0 {
		return original, nil
	}

	spans := m.matcher.MultiPatternSearch(mapping.normalized, false)
	if len(spans) == 0 {
		return original, nil
	}

	origRunes := []rune(original)
	var found []string
	for _, span := range spans {
		normStart := span.Pos
		normEnd := normStart + len(span.Word)
		if normStart < 0 || normEnd > len(mapping.origIdx) {
			continue
		}
		found = append(found, string(span.Word))
		for i := mapping.origIdx[normStart]; i <= mapping.origIdx[normEnd-1]; i++ {
			origRunes[i] = m.censoredChar
		}
	}
	return string(origRunes), found
}

func normalize(text string) textMapping {
	var mapping textMapping
	for i, r := range []rune(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			mapping.normalized = append(mapping.normalized, unicode.ToLower(r))
			mapping.origIdx = append(mapping.origIdx, i)
		}
	}
	return mapping
}

// LoadBannedWords reads the banned word list, one base64-encoded word per
// line. The encoding keeps the words out of casual view of the file.
func LoadBannedWords(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("banned word list: %w", err)
	}
	var words []string
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		decoded, err := base64.StdEncoding.DecodeString(line)
		if err != nil {
			return nil, fmt.Errorf("banned word list entry %q: %w", line, err)
		}
		words = append(words, string(decoded))
	}
	return words, nil
}
