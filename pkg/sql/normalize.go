package sql

import (
	"strings"
	"unicode"
)

// ProductFilterColumn is the indexed, normalized product column that
// filters must target. Its values are upper-case with whitespace removed.
const ProductFilterColumn = "[Product]"

// NormalizeProductFilters rewrites product-name LIKE predicates inside WHERE
// clauses into the canonical filter form:
//
//	Product_Name LIKE '%zinc ingot%'  ->  [Product] LIKE '%ZINCINGOT%'
//
// SELECT, GROUP BY, ORDER BY and HAVING references are never touched. Every
// WHERE clause is rewritten, including UNION branches and subqueries. A
// table qualifier on the column is kept. The rewrite is idempotent, and SQL
// without a matching predicate is returned unchanged.
func NormalizeProductFilters(src string) string {
	tokens := Tokenize(src)
	mask := whereMask(tokens)

	var edits []edit
	for i := 0; i < len(tokens); i++ {
		if !mask[i] || !isProductColumn(tokens[i]) {
			continue
		}

		j := nextSignificant(tokens, i+1)
		negated := false
		if j < len(tokens) && tokens[j].Is("NOT") {
			negated = true
			j = nextSignificant(tokens, j+1)
		}
		if j >= len(tokens) || !tokens[j].Is("LIKE") {
			continue
		}
		k := nextSignificant(tokens, j+1)
		if k >= len(tokens) || tokens[k].Kind != KindString {
			continue
		}

		value, ok := containsPattern(tokens[k].Literal())
		if !ok {
			continue
		}

		var b strings.Builder
		b.WriteString(ProductFilterColumn)
		if negated {
			b.WriteString(" NOT")
		}
		b.WriteString(" LIKE ")
		b.WriteString(Quote(tokens[k].LiteralPrefix(), "%"+normalizeFilterValue(value)+"%"))

		edits = append(edits, edit{start: tokens[i].Start, end: tokens[k].End, text: b.String()})
		i = k
	}

	return applyEdits(src, edits)
}

func isProductColumn(t Token) bool {
	if !t.IsIdent() {
		return false
	}
	name := t.Name()
	return strings.EqualFold(name, "Product") || strings.EqualFold(name, "Product_Name")
}

// containsPattern extracts v from a '%v%' LIKE pattern.
func containsPattern(literal string) (string, bool) {
	if len(literal) < 3 || !strings.HasPrefix(literal, "%") || !strings.HasSuffix(literal, "%") {
		return "", false
	}
	return literal[1 : len(literal)-1], true
}

// normalizeFilterValue upper-cases v and strips all whitespace.
func normalizeFilterValue(v string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToUpper(r)
	}, v)
}
