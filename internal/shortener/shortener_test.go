package shortener

import (
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkforge/linkforge/internal/domain"
)

func TestGenerate(t *testing.T) {
	g := NewCodeGenerator(7, nil)

	code := g.Generate()
	assert.Len(t, code, 7)
	assert.Regexp(t, regexp.MustCompile(`^[0-9A-Za-z]+$`), code)
	assert.False(t, g.IsReserved(code))
}

func TestGenerateLengthClamping(t *testing.T) {
	assert.Equal(t, 6, NewCodeGenerator(2, nil).Length(), "too short clamps up")
	assert.Equal(t, 12, NewCodeGenerator(40, nil).Length(), "too long clamps down")
	assert.Equal(t, 8, NewCodeGenerator(8, nil).Length())
}

func TestGenerateUniqueness(t *testing.T) {
	g := NewCodeGenerator(7, nil)

	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		code := g.Generate()
		assert.False(t, seen[code], "unexpected repeat %q after %d draws", code, i)
		seen[code] = true
	}
}

func TestNormalize(t *testing.T) {
	g := NewCodeGenerator(7, []string{"blocked"})

	tests := []struct {
		name     string
		input    string
		want     string
		wantKind domain.AliasErrorKind
	}{
		{name: "valid alias", input: "my-link_42", want: "my-link_42"},
		{name: "trims whitespace", input: "  promo1  ", want: "promo1"},
		{name: "case preserved", input: "MyLink", want: "MyLink"},
		{name: "minimum length", input: "abc", want: "abc"},
		{name: "too short", input: "ab", wantKind: domain.AliasTooShort},
		{name: "empty", input: "", wantKind: domain.AliasTooShort},
		{name: "too long", input: strings.Repeat("a", 51), wantKind: domain.AliasTooLong},
		{name: "bad characters", input: "has space", wantKind: domain.AliasBadChars},
		{name: "unicode rejected", input: "héllo", wantKind: domain.AliasBadChars},
		{name: "reserved builtin", input: "admin", wantKind: domain.AliasReserved},
		{name: "reserved case-insensitive", input: "API", wantKind: domain.AliasReserved},
		{name: "reserved from config", input: "Blocked", wantKind: domain.AliasReserved},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := g.Normalize(tt.input)
			if tt.wantKind != "" {
				require.Error(t, err)
				assert.True(t, errors.Is(err, domain.ErrInvalidAlias))

				var aliasErr *domain.InvalidAliasError
				require.True(t, errors.As(err, &aliasErr))
				assert.Equal(t, tt.wantKind, aliasErr.Kind)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSuggestAlternatives(t *testing.T) {
	g := NewCodeGenerator(7, nil)

	suggestions := g.SuggestAlternatives("launch01", 3)
	require.Len(t, suggestions, 3)
	for _, s := range suggestions {
		assert.True(t, strings.HasPrefix(s, "launch01-"))
		assert.LessOrEqual(t, len(s), MaxAliasLength)

		normalized, err := g.Normalize(s)
		require.NoError(t, err, "suggestions must themselves be valid aliases")
		assert.Equal(t, s, normalized)
	}

	long := strings.Repeat("x", 60)
	for _, s := range g.SuggestAlternatives(long, 2) {
		assert.LessOrEqual(t, len(s), MaxAliasLength, "long bases are truncated to fit")
	}

	assert.Nil(t, g.SuggestAlternatives("", 3))
	assert.Nil(t, g.SuggestAlternatives("base", 0))
}
