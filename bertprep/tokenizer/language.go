package tokenizer

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownLanguage is returned when a language name matches no pretrained variant.
var ErrUnknownLanguage = errors.New("unknown pretrained language")

// Language enumerates the pretrained BERT variants a vocabulary can come from.
type Language int

const (
	English Language = iota
	EnglishCased
	EnglishLarge
	EnglishLargeCased
	Chinese
	Multilingual
)

type languageInfo struct {
	name         string
	pretrainedID string
	uncased      bool
}

var languages = [...]languageInfo{
	English:           {"English", "bert-base-uncased", true},
	EnglishCased:      {"EnglishCased", "bert-base-cased", false},
	EnglishLarge:      {"EnglishLarge", "bert-large-uncased", true},
	EnglishLargeCased: {"EnglishLargeCased", "bert-large-cased", false},
	Chinese:           {"Chinese", "bert-base-chinese", false},
	Multilingual:      {"Multilingual", "bert-base-multilingual-cased", false},
}

// Languages returns every supported variant in declaration order.
func Languages() []Language {
	out := make([]Language, len(languages))
	for i := range languages {
		out[i] = Language(i)
	}
	return out
}

func (l Language) valid() bool { return l >= 0 && int(l) < len(languages) }

// String returns the variant name.
func (l Language) String() string {
	if !l.valid() {
		return fmt.Sprintf("Language(%d)", int(l))
	}
	return languages[l].name
}

// PretrainedID returns the identifier of the pretrained resource, e.g. "bert-base-uncased".
func (l Language) PretrainedID() string {
	if !l.valid() {
		return ""
	}
	return languages[l].pretrainedID
}

// Uncased reports whether the pretrained vocabulary was built from lower-cased text.
func (l Language) Uncased() bool {
	return l.valid() && languages[l].uncased
}

// ParseLanguage accepts a variant name (case-insensitive) or a pretrained identifier.
func ParseLanguage(s string) (Language, error) {
	s = strings.TrimSpace(s)
	for i, info := range languages {
		if strings.EqualFold(s, info.name) || s == info.pretrainedID {
			return Language(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownLanguage, s)
}
