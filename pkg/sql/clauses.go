package sql

// span is a half-open token index range [start, end).
type span struct {
	start, end int
}

// clauseEnders close a WHERE clause at the same nesting depth.
var clauseEnders = map[string]bool{
	"GROUP":     true,
	"ORDER":     true,
	"HAVING":    true,
	"UNION":     true,
	"EXCEPT":    true,
	"INTERSECT": true,
	"OPTION":    true,
	"WINDOW":    true,
	"FOR":       true,
}

func isClauseEnder(t Token) bool {
	return t.Kind == KindWord && clauseEnders[upper(t.Text)]
}

// clauseEnd returns the index of the token that ends the clause opened by
// tokens[from]: the next clause keyword or ';' at the same depth, a closing
// parenthesis leaving that depth, or len(tokens).
func clauseEnd(tokens []Token, from int, enders func(Token) bool) int {
	depth := tokens[from].Depth
	for j := from + 1; j < len(tokens); j++ {
		t := tokens[j]
		if t.Depth < depth {
			return j
		}
		if t.Depth > depth {
			continue
		}
		if t.IsPunct(";") || enders(t) {
			return j
		}
	}
	return len(tokens)
}

// whereSpans returns every WHERE clause in the statement, including those of
// UNION branches, CTE bodies and subqueries. Each span starts at the WHERE
// keyword. Spans of nested subqueries lie inside their parent's span.
func whereSpans(tokens []Token) []span {
	var spans []span
	for i, t := range tokens {
		if t.Is("WHERE") {
			spans = append(spans, span{start: i, end: clauseEnd(tokens, i, isClauseEnder)})
		}
	}
	return spans
}

// whereMask marks the tokens that belong to any WHERE clause.
func whereMask(tokens []Token) []bool {
	mask := make([]bool, len(tokens))
	for _, s := range whereSpans(tokens) {
		for i := s.start; i < s.end; i++ {
			mask[i] = true
		}
	}
	return mask
}

// trimSpan drops leading and trailing whitespace and comments.
func trimSpan(tokens []Token, s span) span {
	for s.start < s.end && !tokens[s.start].Significant() {
		s.start++
	}
	for s.end > s.start && !tokens[s.end-1].Significant() {
		s.end--
	}
	return s
}

// spanText returns the source text covered by a span.
func spanText(src string, tokens []Token, s span) string {
	if s.start >= s.end {
		return ""
	}
	return src[tokens[s.start].Start:tokens[s.end-1].End]
}

func upper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - 'a' + 'A'
		}
	}
	return string(b)
}
