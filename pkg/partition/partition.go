package partition

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	// MaxPageSize is the largest $top the Graph API accepts.
	MaxPageSize = 999

	// DefaultAlphabet partitions string keys by their first letter.
	DefaultAlphabet = "abcdefghijklmnopqrstuvwxyz"
)

var (
	// ErrNoBoundaries is returned when a partitioner is given nothing to split on.
	ErrNoBoundaries = errors.New("at least one boundary is required")

	// ErrUnordered is returned when boundaries are not strictly ascending.
	ErrUnordered = errors.New("boundaries must be strictly ascending")

	// ErrEmptyBoundary is returned when a lexicographic boundary is empty.
	ErrEmptyBoundary = errors.New("lexicographic boundaries must not be empty")
)

// Range builds n+1 predicates over field from n ascending boundaries:
//
//	field lt B0
//	field ge B0 and field lt B1
//	...
//	field ge Bn-1
//
// Every value falls into exactly one predicate. Literals are rendered bare,
// which is what the Graph API expects for DateTimeOffset comparisons.
func Range(field string, boundaries []string) ([]Predicate, error) {
	return build(field, boundaries, false)
}

// Lexicographic builds the same n+1 partitions as Range over a string-typed
// key. Boundaries are rendered as quoted OData string literals and only ge
// and le are used, since Graph rejects lt and gt on properties such as
// userPrincipalName:
//
//	field le below(B0)
//	field ge B0 and field le below(B1)
//	...
//	field ge Bn-1
//
// below(B) is the predecessor of B's last character followed by U+10FFFF,
// which keeps the partitions disjoint for every key free of that code point.
func Lexicographic(field string, alphabet []string) ([]Predicate, error) {
	for _, b := range alphabet {
		if b == "" {
			return nil, ErrEmptyBoundary
		}
	}
	preds, err := build(field, alphabet, true)
	if err != nil {
		return nil, err
	}
	for i := range preds {
		if preds[i].HasUpper {
			preds[i].Upper = below(preds[i].Upper)
			preds[i].UpperInclusive = true
		}
	}
	return preds, nil
}

// Alphabet splits s into one boundary per character.
func Alphabet(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

func build(field string, boundaries []string, quoted bool) ([]Predicate, error) {
	if strings.TrimSpace(field) == "" {
		return nil, fmt.Errorf("partition field is required")
	}
	if len(boundaries) == 0 {
		return nil, ErrNoBoundaries
	}
	for i := 1; i < len(boundaries); i++ {
		if boundaries[i-1] >= boundaries[i] {
			return nil, fmt.Errorf("%w: %q >= %q", ErrUnordered, boundaries[i-1], boundaries[i])
		}
	}

	preds := make([]Predicate, 0, len(boundaries)+1)
	preds = append(preds, Predicate{
		Field:    field,
		Upper:    boundaries[0],
		HasUpper: true,
		Quoted:   quoted,
	})

	for i := 0; i < len(boundaries)-1; i++ {
		preds = append(preds, Predicate{
			Field:    field,
			Lower:    boundaries[i],
			HasLower: true,
			Upper:    boundaries[i+1],
			HasUpper: true,
			Quoted:   quoted,
		})
	}

	preds = append(preds, Predicate{
		Field:    field,
		Lower:    boundaries[len(boundaries)-1],
		HasLower: true,
		Quoted:   quoted,
	})

	return preds, nil
}

// TopQuery returns the unpartitioned query: a single capped page request.
func TopQuery(pageSize int) url.Values {
	return url.Values{"$top": []string{strconv.Itoa(clampPageSize(pageSize))}}
}

// Queries turns predicates into one query per partition.
func Queries(preds []Predicate, pageSize int) []url.Values {
	queries := make([]url.Values, len(preds))
	for i, p := range preds {
		q := TopQuery(pageSize)
		q.Set("$filter", p.String())
		queries[i] = q
	}
	return queries
}

func clampPageSize(n int) int {
	if n <= 0 || n > MaxPageSize {
		return MaxPageSize
	}
	return n
}
