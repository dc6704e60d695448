//go:build property
// +build property

package shortener

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/linkforge/linkforge/internal/domain"
)

var generatedCodePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{3,50}$`)

// TestProperty_GeneratedCodesAreWellFormed verifies that every generated
// code satisfies the short-code alphabet and length bounds and avoids
// the reserved set, for any configured length.
func TestProperty_GeneratedCodesAreWellFormed(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		length := rapid.IntRange(4, 12).Draw(t, "length")
		g := NewCodeGenerator(length, nil)

		code := g.Generate()
		assert.Len(t, code, length, "code length must match configuration")
		assert.True(t, generatedCodePattern.MatchString(code), "code %q must match the allowed alphabet", code)
		assert.False(t, g.IsReserved(code), "generated codes never collide with reserved words")
	})
}

// TestProperty_NormalizeIsIdempotent verifies that a valid alias passes
// normalization unchanged, and normalizing the result again yields the
// same value.
func TestProperty_NormalizeIsIdempotent(t *testing.T) {
	g := NewCodeGenerator(7, nil)

	rapid.Check(t, func(t *rapid.T) {
		alias := rapid.StringMatching(`^[A-Za-z0-9_-]{3,50}$`).Draw(t, "alias")
		if g.IsReserved(alias) {
			t.Skip("reserved draw")
		}

		once, err := g.Normalize(alias)
		require.NoError(t, err)
		assert.Equal(t, alias, once, "valid aliases are case-preserving")

		twice, err := g.Normalize(once)
		require.NoError(t, err)
		assert.Equal(t, once, twice)
	})
}

// TestProperty_NormalizeRejectsOutOfAlphabet verifies that any alias
// containing a character outside the allowed set is rejected with the
// bad_chars kind.
func TestProperty_NormalizeRejectsOutOfAlphabet(t *testing.T) {
	g := NewCodeGenerator(7, nil)

	rapid.Check(t, func(t *rapid.T) {
		prefix := rapid.StringMatching(`^[A-Za-z0-9_-]{1,20}$`).Draw(t, "prefix")
		bad := rapid.SampledFrom([]string{" ", "!", "/", ".", "%", "é", "#", "?"}).Draw(t, "bad")
		suffix := rapid.StringMatching(`^[A-Za-z0-9_-]{1,20}$`).Draw(t, "suffix")

		_, err := g.Normalize(prefix + bad + suffix)
		require.Error(t, err)

		var aliasErr *domain.InvalidAliasError
		require.ErrorAs(t, err, &aliasErr)
		assert.Equal(t, domain.AliasBadChars, aliasErr.Kind)
	})
}

// TestProperty_SuggestionsStayValid verifies that alternatives derived
// from arbitrary taken aliases remain well-formed.
func TestProperty_SuggestionsStayValid(t *testing.T) {
	g := NewCodeGenerator(7, nil)

	rapid.Check(t, func(t *rapid.T) {
		base := rapid.StringMatching(`^[A-Za-z0-9_-]{3,60}$`).Draw(t, "base")
		n := rapid.IntRange(1, 5).Draw(t, "n")

		for _, s := range g.SuggestAlternatives(base, n) {
			assert.True(t, generatedCodePattern.MatchString(s), "suggestion %q must be a valid alias", s)
		}
	})
}
