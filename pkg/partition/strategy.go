package partition

import (
	"fmt"
	"sort"
	"time"
)

// DateLayout is the literal format used for day boundaries.
const DateLayout = "2006-01-02"

// Strategy produces the partition predicates for one run.
type Strategy interface {
	Predicates(now time.Time) ([]Predicate, error)
}

// DateRange partitions a timestamp field into one bucket per calendar day
// over the last Days days, plus open-ended buckets on either side.
type DateRange struct {
	Field string
	Days  int
}

// Predicates implements Strategy.
func (d DateRange) Predicates(now time.Time) ([]Predicate, error) {
	if d.Days <= 0 {
		return nil, fmt.Errorf("date range for %s: days must be positive (got %d)", d.Field, d.Days)
	}
	return Range(d.Field, DailyBoundaries(now, d.Days))
}

// Prefix partitions a string field by leading character.
type Prefix struct {
	Field    string
	Alphabet string
}

// Predicates implements Strategy.
func (p Prefix) Predicates(time.Time) ([]Predicate, error) {
	alphabet := p.Alphabet
	if alphabet == "" {
		alphabet = DefaultAlphabet
	}
	return Lexicographic(p.Field, Alphabet(alphabet))
}

// DailyBoundaries returns the dates of today and the previous days-1 days
// in ascending order.
func DailyBoundaries(now time.Time, days int) []string {
	out := make([]string, 0, days)
	for i := 0; i < days; i++ {
		out = append(out, now.AddDate(0, 0, -i).Format(DateLayout))
	}
	sort.Strings(out)
	return out
}
