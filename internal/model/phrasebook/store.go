package phrasebook

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const defaultNoticeLanguage = "English"

// Store exposes phrase lookups to the gateways and the session.
type Store interface {
	Lookup(text, toLang string) (string, bool)
	IsRepeatRequest(text string) bool
	NoRepeatNotice(lang string) string
}

// MemoryStore implements Store over an in-memory phrasebook. It is read-only
// after construction and safe for concurrent use.
type MemoryStore struct {
	pairs   []Pair
	index   map[string]int
	repeat  map[string]struct{}
	notices map[string]string
}

// NewMemoryStore indexes the supplied phrasebook.
func NewMemoryStore(book Phrasebook) *MemoryStore {
	s := &MemoryStore{
		pairs:   append([]Pair(nil), book.Pairs...),
		index:   make(map[string]int),
		repeat:  make(map[string]struct{}),
		notices: make(map[string]string, len(book.NoRepeatNotice)),
	}

	for i, pair := range s.pairs {
		for _, phrase := range pair {
			key := normalize(phrase)
			if key == "" {
				continue
			}
			if _, exists := s.index[key]; !exists {
				s.index[key] = i
			}
		}
	}

	for _, phrases := range book.Repeat {
		for _, phrase := range phrases {
			if key := normalize(phrase); key != "" {
				s.repeat[key] = struct{}{}
			}
		}
	}

	for lang, notice := range book.NoRepeatNotice {
		s.notices[lang] = notice
	}

	return s
}

// Lookup returns the toLang rendering of text when text matches any phrase of
// a known pair, regardless of the language it was written in.
func (s *MemoryStore) Lookup(text, toLang string) (string, bool) {
	i, ok := s.index[normalize(text)]
	if !ok {
		return "", false
	}
	translated, ok := s.pairs[i][toLang]
	if !ok || translated == "" {
		return "", false
	}
	return translated, true
}

// IsRepeatRequest reports whether text is a recognised repeat phrase in any
// configured language.
func (s *MemoryStore) IsRepeatRequest(text string) bool {
	_, ok := s.repeat[normalize(text)]
	return ok
}

// NoRepeatNotice returns the notice for lang, falling back to English.
func (s *MemoryStore) NoRepeatNotice(lang string) string {
	if notice, ok := s.notices[lang]; ok {
		return notice
	}
	return s.notices[defaultNoticeLanguage]
}

// LoadFile reads a YAML phrasebook. Sections missing from the file keep the
// values from Seed.
func LoadFile(path string) (Phrasebook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Phrasebook{}, fmt.Errorf("read phrasebook: %w", err)
	}

	var book Phrasebook
	if err := yaml.Unmarshal(data, &book); err != nil {
		return Phrasebook{}, fmt.Errorf("parse phrasebook %s: %w", path, err)
	}

	seed := Seed()
	if len(book.Pairs) == 0 {
		book.Pairs = seed.Pairs
	}
	if len(book.Repeat) == 0 {
		book.Repeat = seed.Repeat
	}
	if len(book.NoRepeatNotice) == 0 {
		book.NoRepeatNotice = seed.NoRepeatNotice
	}
	return book, nil
}

func normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}
