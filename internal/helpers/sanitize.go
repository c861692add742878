package helpers

import (
	"html"
	"strings"
	"sync"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

var (
	strictPolicyOnce sync.Once
	strictPolicy     *bluemonday.Policy
)

// StrictHTMLPolicy returns a singleton bluemonday policy that strips every HTML
// element and attribute.
func StrictHTMLPolicy() *bluemonday.Policy {
	strictPolicyOnce.Do(func() {
		strictPolicy = bluemonday.StrictPolicy()
	})
	return strictPolicy
}

// PromptText reduces user input to plain text: markup is removed, entities
// are decoded back to characters and runs of whitespace collapse to a single
// space. Keywords such as "tienda" survive untouched, so classification sees
// what the user typed.
func PromptText(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	stripped := StrictHTMLPolicy().Sanitize(s)
	return strings.Join(strings.Fields(html.UnescapeString(stripped)), " ")
}

// SafeFilename keeps the last path element of name and drops anything that
// is not a letter, digit, dot, dash or underscore.
func SafeFilename(name string) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	name = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '.', r == '-', r == '_':
			return r
		case r == ' ':
			return '_'
		}
		return -1
	}, name)
	name = strings.TrimLeft(name, ".")
	if name == "" {
		return "file"
	}
	return name
}
