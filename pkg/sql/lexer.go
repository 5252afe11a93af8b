// Package sql tokenizes and rewrites model-generated T-SQL.
//
// Rewrites work on token spans rather than regular expressions over raw
// text, so keywords inside string literals, bracketed identifiers, comments
// or nested subqueries never move clause boundaries.
package sql

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Kind classifies a token.
type Kind int

const (
	KindSpace Kind = iota
	KindComment
	KindWord    // unquoted identifier or keyword
	KindBracket // [identifier]
	KindQuoted  // "identifier"
	KindString  // 'literal' or N'literal'
	KindNumber
	KindPunct // operators and punctuation
)

// Token is a lexical unit of a statement. Start and End are byte offsets
// into the source; Depth is the parenthesis nesting level the token sits at.
// An opening parenthesis carries the depth outside it, a closing one the
// depth it returns to.
type Token struct {
	Kind  Kind
	Text  string
	Start int
	End   int
	Depth int
}

// Is reports whether the token is the given keyword (case-insensitive).
func (t Token) Is(keyword string) bool {
	return t.Kind == KindWord && strings.EqualFold(t.Text, keyword)
}

// IsPunct reports whether the token is the given punctuation.
func (t Token) IsPunct(p string) bool {
	return t.Kind == KindPunct && t.Text == p
}

// Significant reports whether the token is not whitespace or a comment.
func (t Token) Significant() bool {
	return t.Kind != KindSpace && t.Kind != KindComment
}

// Name returns an identifier without its brackets or quotes.
func (t Token) Name() string {
	switch t.Kind {
	case KindBracket:
		return strings.ReplaceAll(strings.TrimSuffix(strings.TrimPrefix(t.Text, "["), "]"), "]]", "]")
	case KindQuoted:
		return strings.ReplaceAll(strings.TrimSuffix(strings.TrimPrefix(t.Text, `"`), `"`), `""`, `"`)
	default:
		return t.Text
	}
}

// IsIdent reports whether the token can name a column or table.
func (t Token) IsIdent() bool {
	return t.Kind == KindWord || t.Kind == KindBracket || t.Kind == KindQuoted
}

// Literal returns the unescaped content of a string literal.
func (t Token) Literal() string {
	if t.Kind != KindString {
		return ""
	}
	s := t.Text
	if len(s) > 0 && (s[0] == 'N' || s[0] == 'n') {
		s = s[1:]
	}
	s = strings.TrimPrefix(s, "'")
	s = strings.TrimSuffix(s, "'")
	return strings.ReplaceAll(s, "''", "'")
}

// LiteralPrefix returns "N" for national string literals and "" otherwise.
func (t Token) LiteralPrefix() string {
	if t.Kind == KindString && len(t.Text) > 0 && t.Text[0] != '\'' {
		return t.Text[:1]
	}
	return ""
}

// Quote renders s as a single-quoted T-SQL literal.
func Quote(prefix, s string) string {
	return prefix + "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// Tokenize splits src into tokens. It never fails: an unterminated string,
// identifier or comment runs to the end of the input.
func Tokenize(src string) []Token {
	var tokens []Token
	depth := 0
	i := 0

	emit := func(kind Kind, end int) {
		tokens = append(tokens, Token{Kind: kind, Text: src[i:end], Start: i, End: end, Depth: depth})
		i = end
	}

	for i < len(src) {
		c := src[i]
		switch {
		case isSpace(c):
			j := i + 1
			for j < len(src) && isSpace(src[j]) {
				j++
			}
			emit(KindSpace, j)

		case c == '-' && peek(src, i+1) == '-':
			j := strings.IndexByte(src[i:], '\n')
			if j < 0 {
				emit(KindComment, len(src))
			} else {
				emit(KindComment, i+j)
			}

		case c == '/' && peek(src, i+1) == '*':
			j := strings.Index(src[i+2:], "*/")
			if j < 0 {
				emit(KindComment, len(src))
			} else {
				emit(KindComment, i+2+j+2)
			}

		case c == '\'':
			emit(KindString, scanQuoted(src, i+1, '\''))

		case (c == 'N' || c == 'n') && peek(src, i+1) == '\'':
			emit(KindString, scanQuoted(src, i+2, '\''))

		case c == '[':
			emit(KindBracket, scanQuoted(src, i+1, ']'))

		case c == '"':
			emit(KindQuoted, scanQuoted(src, i+1, '"'))

		case isDigit(c) || (c == '.' && isDigit(peek(src, i+1))):
			j := i + 1
			for j < len(src) && (isDigit(src[j]) || src[j] == '.') {
				j++
			}
			if j < len(src) && (src[j] == 'e' || src[j] == 'E') {
				k := j + 1
				if k < len(src) && (src[k] == '+' || src[k] == '-') {
					k++
				}
				if k < len(src) && isDigit(src[k]) {
					j = k
					for j < len(src) && isDigit(src[j]) {
						j++
					}
				}
			}
			emit(KindNumber, j)

		case isWordStart(src, i):
			j := i
			for j < len(src) {
				r, size := utf8.DecodeRuneInString(src[j:])
				if !isWordRune(r) {
					break
				}
				j += size
			}
			emit(KindWord, j)

		case c == '(':
			emit(KindPunct, i+1)
			depth++

		case c == ')':
			if depth > 0 {
				depth--
			}
			emit(KindPunct, i+1)

		default:
			if two := src[i:min(i+2, len(src))]; two == ">=" || two == "<=" || two == "<>" || two == "!=" || two == "!<" || two == "!>" {
				emit(KindPunct, i+2)
				continue
			}
			_, size := utf8.DecodeRuneInString(src[i:])
			emit(KindPunct, i+size)
		}
	}
	return tokens
}

// scanQuoted returns the end offset of a quoted run that started before
// from, treating a doubled closing character as an escape.
func scanQuoted(src string, from int, closing byte) int {
	j := from
	for j < len(src) {
		if src[j] == closing {
			if j+1 < len(src) && src[j+1] == closing {
				j += 2
				continue
			}
			return j + 1
		}
		j++
	}
	return len(src)
}

func peek(src string, i int) byte {
	if i < len(src) {
		return src[i]
	}
	return 0
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v'
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isWordStart(src string, i int) bool {
	r, _ := utf8.DecodeRuneInString(src[i:])
	return r == '_' || r == '@' || r == '#' || unicode.IsLetter(r)
}

func isWordRune(r rune) bool {
	return r == '_' || r == '@' || r == '#' || r == '$' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// nextSignificant returns the index of the first significant token at or
// after i, or len(tokens).
func nextSignificant(tokens []Token, i int) int {
	for i < len(tokens) && !tokens[i].Significant() {
		i++
	}
	return i
}

// prevSignificant returns the index of the last significant token at or
// before i, or -1.
func prevSignificant(tokens []Token, i int) int {
	for i >= 0 && !tokens[i].Significant() {
		i--
	}
	return i
}

// edit replaces src[start:end] with text.
type edit struct {
	start, end int
	text       string
}

// applyEdits applies non-overlapping edits sorted by start offset.
func applyEdits(src string, edits []edit) string {
	if len(edits) == 0 {
		return src
	}
	var b strings.Builder
	b.Grow(len(src))
	last := 0
	for _, e := range edits {
		b.WriteString(src[last:e.start])
		b.WriteString(e.text)
		last = e.end
	}
	b.WriteString(src[last:])
	return b.String()
}
