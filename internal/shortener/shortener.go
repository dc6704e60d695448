package shortener

import (
	"crypto/rand"
	"math/big"
	"regexp"
	"strings"

	"github.com/linkforge/linkforge/internal/domain"
)

// Base62 character set (0-9, A-Z, a-z) - 62 characters total
// Using base62 instead of base64 avoids special characters that might cause URL issues
const base62Chars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// Alias length bounds for user-chosen codes
const (
	MinAliasLength = 3
	MaxAliasLength = 50
)

// suggestionSuffixLength is the number of random characters appended
// when deriving alternatives for a taken alias
const suggestionSuffixLength = 4

// aliasPattern is the full allowed alphabet for short codes, generated
// or user-chosen
var aliasPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// defaultReservedWords are codes that clash with system routes or
// common site paths. Compared case-insensitively; extendable via
// configuration, never shrinkable.
var defaultReservedWords = []string{
	"api", "admin", "www", "app", "auth", "login", "logout", "signup",
	"register", "health", "healthz", "metrics", "static", "assets",
	"dashboard", "settings", "profile", "account", "about", "terms",
	"privacy", "help", "docs", "status", "urls", "webhooks", "short",
}

// CodeGenerator mints short codes using cryptographically secure random
// draws and validates user-supplied aliases against the same alphabet
// and the reserved set. Thread-safe; holds no durable state.
type CodeGenerator struct {
	length   int
	reserved map[string]struct{}
}

// NewCodeGenerator creates a generator for codes of the given length.
// Recommended length: 6-8 characters for good collision resistance
// - 6 chars = 62^6 = ~56 billion combinations
// - 7 chars = 62^7 = ~3.5 trillion combinations
// - 8 chars = 62^8 = ~218 trillion combinations
// extraReserved extends the built-in reserved word list.
func NewCodeGenerator(length int, extraReserved []string) *CodeGenerator {
	if length < 4 {
		length = 6 // Minimum safe length
	}
	if length > 12 {
		length = 12 // Maximum reasonable length
	}

	reserved := make(map[string]struct{}, len(defaultReservedWords)+len(extraReserved))
	for _, w := range defaultReservedWords {
		reserved[strings.ToLower(w)] = struct{}{}
	}
	for _, w := range extraReserved {
		w = strings.TrimSpace(strings.ToLower(w))
		if w != "" {
			reserved[w] = struct{}{}
		}
	}

	return &CodeGenerator{
		length:   length,
		reserved: reserved,
	}
}

// Generate creates a random short code using base62 encoding. The code
// is guaranteed to avoid the reserved set. RNG failure is not a
// recoverable condition and panics.
func (g *CodeGenerator) Generate() string {
	for {
		code := g.draw(g.length)
		if !g.IsReserved(code) {
			return code
		}
	}
}

func (g *CodeGenerator) draw(n int) string {
	result := make([]byte, n)
	for i := 0; i < n; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(base62Chars))))
		if err != nil {
			panic("shortener: crypto/rand unavailable: " + err.Error())
		}
		result[i] = base62Chars[num.Int64()]
	}
	return string(result)
}

// Normalize validates a user-supplied alias and returns it in canonical
// form. Codes are case-preserving; the reserved check alone is
// case-insensitive. Rejections carry a kind: too_short, too_long,
// bad_chars or reserved.
func (g *CodeGenerator) Normalize(input string) (string, error) {
	alias := strings.TrimSpace(input)

	if len(alias) < MinAliasLength {
		return "", domain.NewInvalidAliasError(alias, domain.AliasTooShort)
	}
	if len(alias) > MaxAliasLength {
		return "", domain.NewInvalidAliasError(alias, domain.AliasTooLong)
	}
	if !aliasPattern.MatchString(alias) {
		return "", domain.NewInvalidAliasError(alias, domain.AliasBadChars)
	}
	if g.IsReserved(alias) {
		return "", domain.NewInvalidAliasError(alias, domain.AliasReserved)
	}

	return alias, nil
}

// IsReserved reports whether the code clashes with the reserved set,
// ignoring case
func (g *CodeGenerator) IsReserved(code string) bool {
	_, ok := g.reserved[strings.ToLower(code)]
	return ok
}

// SuggestAlternatives derives up to n candidate aliases from a taken
// base by appending a random suffix. Candidates are syntactically valid
// but availability must still be checked against the store.
func (g *CodeGenerator) SuggestAlternatives(base string, n int) []string {
	base = strings.TrimSpace(base)
	if base == "" || n <= 0 {
		return nil
	}

	// Leave room for the separator and suffix within the length cap
	maxBase := MaxAliasLength - suggestionSuffixLength - 1
	if len(base) > maxBase {
		base = base[:maxBase]
	}

	suggestions := make([]string, 0, n)
	for i := 0; i < n; i++ {
		candidate := base + "-" + g.draw(suggestionSuffixLength)
		if g.IsReserved(candidate) {
			continue
		}
		suggestions = append(suggestions, candidate)
	}
	return suggestions
}

// Length returns the configured generated-code length
func (g *CodeGenerator) Length() int {
	return g.length
}
