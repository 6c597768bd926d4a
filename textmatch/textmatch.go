// Package textmatch implements the diacritic-insensitive name and phone
// matching used by guest search, both on the server and over a
// scanner's cached snapshot.
package textmatch

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100

	// minPhoneDigits keeps short numeric queries ("12") from matching
	// half the guest list by phone.
	minPhoneDigits = 3
)

// Match scores, highest first.
const (
	scoreExact       = 100
	scorePrefix      = 80
	scoreWordPrefix  = 60
	scoreAllTokens   = 50
	scoreSubstring   = 40
	scorePhoneSuffix = 35
	scorePhone       = 30
)

// Normalize lower-cases s, strips combining marks ("João" -> "joao")
// and collapses whitespace.
func Normalize(s string) string {
	// transform.Chain keeps state, so each call builds its own.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	return strings.Join(strings.Fields(strings.ToLower(stripped)), " ")
}

// Digits returns only the ASCII digits of s.
func Digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Query is a pre-normalized search query.
type Query struct {
	Text   string
	Tokens []string
	Digits string
}

// NewQuery normalizes raw once so it can be scored against many
// candidates.
func NewQuery(raw string) Query {
	text := Normalize(raw)
	return Query{
		Text:   text,
		Tokens: strings.Fields(text),
		Digits: Digits(raw),
	}
}

// Empty reports whether the query has nothing to match on.
func (q Query) Empty() bool {
	return q.Text == "" && q.Digits == ""
}

// Score rates a guest's name and phone against the query. The boolean
// is false when nothing matched.
func (q Query) Score(name, phone string) (float64, bool) {
	var best float64
	n := Normalize(name)

	if q.Text != "" && n != "" {
		switch {
		case n == q.Text:
			best = scoreExact
		case strings.HasPrefix(n, q.Text):
			best = scorePrefix
		case hasWordPrefix(n, q.Text):
			best = scoreWordPrefix
		case len(q.Tokens) > 1 && containsAll(n, q.Tokens):
			best = scoreAllTokens
		case strings.Contains(n, q.Text):
			best = scoreSubstring
		}
	}

	if len(q.Digits) >= minPhoneDigits {
		pd := Digits(phone)
		switch {
		case strings.HasSuffix(pd, q.Digits):
			best = max(best, scorePhoneSuffix)
		case strings.Contains(pd, q.Digits):
			best = max(best, scorePhone)
		}
	}

	return best, best > 0
}

func hasWordPrefix(name, prefix string) bool {
	for _, word := range strings.Fields(name) {
		if strings.HasPrefix(word, prefix) {
			return true
		}
	}
	return false
}

func containsAll(name string, tokens []string) bool {
	for _, token := range tokens {
		if !strings.Contains(name, token) {
			return false
		}
	}
	return true
}

// Before orders two scored candidates: higher score first, then guests
// not yet checked in (the ones an operator is looking for at the door),
// then by normalized name.
func Before(scoreA, scoreB float64, checkedA, checkedB bool, nameA, nameB string) bool {
	if scoreA != scoreB {
		return scoreA > scoreB
	}
	if checkedA != checkedB {
		return !checkedA
	}
	return Normalize(nameA) < Normalize(nameB)
}

// ClampLimit applies the default and the hard cap to a requested limit.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}
