// Package partition splits a "fetch everything" query into disjoint OData
// filter predicates so that each partition stays small enough to page
// through comfortably.
package partition

import (
	"strings"
	"unicode/utf8"
)

// Predicate is an interval over one field. The lower bound is always
// inclusive; the upper bound is exclusive unless UpperInclusive is set.
// A predicate without a lower bound is open towards the start of the
// domain, one without an upper bound towards the end.
type Predicate struct {
	Field string

	Lower    string
	HasLower bool

	Upper          string
	HasUpper       bool
	UpperInclusive bool

	// Quoted renders literals as OData strings ('value').
	// Date literals are rendered bare.
	Quoted bool
}

// String renders the predicate in OData filter syntax.
func (p Predicate) String() string {
	var parts []string
	if p.HasLower {
		parts = append(parts, p.Field+" ge "+p.literal(p.Lower))
	}
	if p.HasUpper {
		op := " lt "
		if p.UpperInclusive {
			op = " le "
		}
		parts = append(parts, p.Field+op+p.literal(p.Upper))
	}
	return strings.Join(parts, " and ")
}

// Matches reports whether value falls inside the predicate using lexical
// ordering.
func (p Predicate) Matches(value string) bool {
	if p.HasLower && value < p.Lower {
		return false
	}
	if p.HasUpper {
		if p.UpperInclusive && value > p.Upper {
			return false
		}
		if !p.UpperInclusive && value >= p.Upper {
			return false
		}
	}
	return true
}

// padRune is the largest code point. Keys are assumed never to contain it.
const padRune = utf8.MaxRune

// below returns the largest string u with u < b under the assumption that
// no key contains padRune, so "v lt b" can be written as "v le u".
// b must not be empty.
func below(b string) string {
	r, size := utf8.DecodeLastRuneInString(b)
	prefix := b[:len(b)-size]
	if r == 0 {
		return prefix
	}
	prev := r - 1
	// Skip the surrogate block, which is not valid in UTF-8.
	if prev >= 0xD800 && prev <= 0xDFFF {
		prev = 0xD7FF
	}
	return prefix + string(prev) + string(padRune)
}

func (p Predicate) literal(v string) string {
	if !p.Quoted {
		return v
	}
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}

// Filters renders every predicate.
func Filters(preds []Predicate) []string {
	out := make([]string, len(preds))
	for i, p := range preds {
		out[i] = p.String()
	}
	return out
}
