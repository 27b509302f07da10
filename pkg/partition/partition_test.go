package partition

import (
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRange_Filters(t *testing.T) {
	preds, err := Range("createdDateTime", []string{"2024-03-01", "2024-03-02", "2024-03-03"})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"createdDateTime lt 2024-03-01",
		"createdDateTime ge 2024-03-01 and createdDateTime lt 2024-03-02",
		"createdDateTime ge 2024-03-02 and createdDateTime lt 2024-03-03",
		"createdDateTime ge 2024-03-03",
	}, Filters(preds))
}

func TestLexicographic_Filters(t *testing.T) {
	preds, err := Lexicographic("userPrincipalName", Alphabet("abc"))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"userPrincipalName le '`\U0010FFFF'",
		"userPrincipalName ge 'a' and userPrincipalName le 'a\U0010FFFF'",
		"userPrincipalName ge 'b' and userPrincipalName le 'b\U0010FFFF'",
		"userPrincipalName ge 'c'",
	}, Filters(preds))
}

// Graph rejects lt and gt on string keys such as userPrincipalName.
func TestLexicographic_OnlyGeAndLe(t *testing.T) {
	preds, err := Prefix{Field: "userPrincipalName"}.Predicates(time.Now())
	require.NoError(t, err)

	for _, f := range Filters(preds) {
		assert.NotContains(t, f, " lt ", f)
		assert.NotContains(t, f, " gt ", f)
	}

	// The first partition still catches keys sorting before 'a'.
	assert.True(t, preds[0].Matches("_svc@contoso.com"))
	assert.True(t, preds[0].Matches("`"))
	assert.False(t, preds[0].Matches("a"))
	assert.True(t, preds[1].Matches("azure@contoso.com"))
	assert.False(t, preds[1].Matches("b"))
}

func TestLexicographic_EscapesQuotes(t *testing.T) {
	preds, err := Lexicographic("displayName", []string{"o'b"})
	require.NoError(t, err)

	assert.Equal(t, "displayName le 'o''a\U0010FFFF'", preds[0].String())
	assert.Equal(t, "displayName ge 'o''b'", preds[1].String())
}

func TestBelow(t *testing.T) {
	assert.Equal(t, "`\U0010FFFF", below("a"))
	assert.Equal(t, "ab", below("ab\x00"))
	assert.Equal(t, "x\uD7FF\U0010FFFF", below("x\uE000"))
	assert.Less(t, below("ab"), "ab")
	assert.Greater(t, below("ab"), "aazzzz")
}

func TestRange_SingleBoundary(t *testing.T) {
	preds, err := Range("createdDateTime", []string{"2024-03-01"})
	require.NoError(t, err)
	require.Len(t, preds, 2)

	assert.True(t, preds[0].Matches("2024-02-29T23:59:59Z"))
	assert.False(t, preds[0].Matches("2024-03-01T00:00:00Z"))
	assert.True(t, preds[1].Matches("2024-03-01T00:00:00Z"))
}

func TestRange_Validation(t *testing.T) {
	_, err := Range("createdDateTime", nil)
	assert.ErrorIs(t, err, ErrNoBoundaries)

	_, err = Range("createdDateTime", []string{"2024-03-02", "2024-03-01"})
	assert.ErrorIs(t, err, ErrUnordered)

	_, err = Lexicographic("userPrincipalName", []string{"a", "a"})
	assert.ErrorIs(t, err, ErrUnordered)

	_, err = Lexicographic("userPrincipalName", []string{"", "a"})
	assert.ErrorIs(t, err, ErrEmptyBoundary)

	_, err = Range("", []string{"a"})
	assert.Error(t, err)
}

// Every sample value must satisfy exactly one predicate, for many random
// boundary sets.
func TestPredicates_DisjointAndExhaustive(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	letters := []rune("abcdefghijklmnopqrstuvwxyz0123456789@.")

	randomString := func() string {
		n := rng.Intn(4)
		b := make([]rune, n)
		for i := range b {
			b[i] = letters[rng.Intn(len(letters))]
		}
		return string(b)
	}

	for round := 0; round < 200; round++ {
		set := map[string]struct{}{}
		n := 1 + rng.Intn(10)
		for len(set) < n {
			set[randomString()+string(letters[rng.Intn(26)])] = struct{}{}
		}
		boundaries := make([]string, 0, n)
		for b := range set {
			boundaries = append(boundaries, b)
		}
		sort.Strings(boundaries)

		for _, build := range []func(string, []string) ([]Predicate, error){Range, Lexicographic} {
			preds, err := build("k", boundaries)
			require.NoError(t, err)
			require.Len(t, preds, len(boundaries)+1)

			samples := []string{""}
			for _, b := range boundaries {
				samples = append(samples, b, b+"a", b[:len(b)-1])
			}
			for i := 0; i < 50; i++ {
				samples = append(samples, randomString())
			}

			for _, v := range samples {
				hits := 0
				for _, p := range preds {
					if p.Matches(v) {
						hits++
					}
				}
				if hits != 1 {
					t.Fatalf("value %q matched %d predicates for boundaries %v", v, hits, boundaries)
				}
			}
		}
	}
}

func TestDailyBoundaries(t *testing.T) {
	now := time.Date(2024, 3, 2, 15, 4, 5, 0, time.UTC)

	got := DailyBoundaries(now, 3)
	assert.Equal(t, []string{"2024-02-29", "2024-03-01", "2024-03-02"}, got)
}

func TestStrategies(t *testing.T) {
	now := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)

	preds, err := DateRange{Field: "createdDateTime", Days: 30}.Predicates(now)
	require.NoError(t, err)
	assert.Len(t, preds, 31)

	preds, err = Prefix{Field: "userPrincipalName"}.Predicates(now)
	require.NoError(t, err)
	assert.Len(t, preds, 27)

	preds, err = Prefix{Field: "userPrincipalName", Alphabet: "am"}.Predicates(now)
	require.NoError(t, err)
	assert.Len(t, preds, 3)

	_, err = DateRange{Field: "createdDateTime"}.Predicates(now)
	assert.Error(t, err)
}

func TestQueries(t *testing.T) {
	preds, err := Lexicographic("userPrincipalName", Alphabet("ab"))
	require.NoError(t, err)

	queries := Queries(preds, 0)
	require.Len(t, queries, 3)
	for i, q := range queries {
		assert.Equal(t, "999", q.Get("$top"))
		assert.Equal(t, preds[i].String(), q.Get("$filter"))
	}

	assert.Equal(t, "100", TopQuery(100).Get("$top"))
	assert.Equal(t, "999", TopQuery(5000).Get("$top"))
}
