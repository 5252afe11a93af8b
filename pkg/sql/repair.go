package sql

import "strings"

// repairableColumns are name columns the model tends to compare with '='
// although stored values rarely match exactly.
var repairableColumns = map[string]bool{
	"IMPORTER_NAME": true,
	"EXPORTER_NAME": true,
	"PRODUCT_NAME":  true,
}

// RepairNameEquality rewrites equality predicates on the known name columns
// into contains-matches:
//
//	Importer_Name = 'Acme'  ->  Importer_Name LIKE '%Acme%'
//
// Nothing else in the statement changes. The bool reports whether any
// predicate was rewritten.
func RepairNameEquality(src string) (string, bool) {
	tokens := Tokenize(src)

	var edits []edit
	for i := 0; i < len(tokens); i++ {
		t := tokens[i]
		if !t.IsIdent() || !repairableColumns[strings.ToUpper(t.Name())] {
			continue
		}
		eq := nextSignificant(tokens, i+1)
		if eq >= len(tokens) || !tokens[eq].IsPunct("=") {
			continue
		}
		lit := nextSignificant(tokens, eq+1)
		if lit >= len(tokens) || tokens[lit].Kind != KindString || tokens[lit].Literal() == "" {
			continue
		}

		value := tokens[lit].Literal()
		edits = append(edits, edit{
			start: t.Start,
			end:   tokens[lit].End,
			text:  t.Text + " LIKE " + Quote(tokens[lit].LiteralPrefix(), "%"+value+"%"),
		})
		i = lit
	}

	if len(edits) == 0 {
		return src, false
	}
	return applyEdits(src, edits), true
}
