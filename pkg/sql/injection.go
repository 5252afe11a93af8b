package sql

import (
	"strings"

	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionCheckResult describes a string literal that looks like SQL injection.
type InjectionCheckResult struct {
	Fingerprint string // libinjection fingerprint of the detected pattern
	Literal     string // the unescaped literal value
	Offset      int    // byte offset of the literal in the statement
}

// CheckLiteralsForInjection screens the string literals of a tokenized
// statement with libinjection. Generated queries embed user-supplied names
// as literals, so a payload in the question surfaces here. Only literals
// carrying quote, terminator or comment characters are screened; plain
// names, dates and LIKE patterns cannot break out of a literal.
// Returns nil if every literal is clean.
func CheckLiteralsForInjection(tokens []Token) *InjectionCheckResult {
	for _, t := range tokens {
		if t.Kind != KindString {
			continue
		}
		value := t.Literal()
		if !strings.ContainsAny(value, `'";`) && !strings.Contains(value, "--") && !strings.Contains(value, "/*") {
			continue
		}
		if isSQLi, fingerprint := libinjection.IsSQLi(value); isSQLi {
			return &InjectionCheckResult{
				Fingerprint: string(fingerprint),
				Literal:     value,
				Offset:      t.Start,
			}
		}
	}
	return nil
}
