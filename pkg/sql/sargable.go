package sql

import (
	"fmt"
	"strconv"
)

// currentDateFuncs may appear inside YEAR(...) as "this year".
var currentDateFuncs = map[string]bool{
	"GETDATE":           true,
	"GETUTCDATE":        true,
	"SYSDATETIME":       true,
	"SYSUTCDATETIME":    true,
	"CURRENT_TIMESTAMP": true,
}

// yearExpr is either a literal year or YEAR(<current date>) plus an offset.
type yearExpr struct {
	literal int    // set when now == ""
	now     string // current-date call text, e.g. "GETDATE()"
	offset  int
}

func (y yearExpr) plus(n int) yearExpr {
	if y.now == "" {
		y.literal += n
	} else {
		y.offset += n
	}
	return y
}

func (y yearExpr) String() string {
	if y.now == "" {
		return strconv.Itoa(y.literal)
	}
	switch {
	case y.offset > 0:
		return fmt.Sprintf("YEAR(%s) + %d", y.now, y.offset)
	case y.offset < 0:
		return fmt.Sprintf("YEAR(%s) - %d", y.now, -y.offset)
	default:
		return fmt.Sprintf("YEAR(%s)", y.now)
	}
}

func yearStart(y yearExpr) string {
	return "DATEFROMPARTS(" + y.String() + ", 1, 1)"
}

// RewriteYearPredicates turns function-wrapped year comparisons inside WHERE
// clauses into index-friendly date ranges:
//
//	YEAR(BE_Date) >= 2023                     ->  BE_Date >= DATEFROMPARTS(2023, 1, 1)
//	YEAR(BE_Date) > 2023                      ->  BE_Date >= DATEFROMPARTS(2024, 1, 1)
//	YEAR(BE_Date) <= 2023                     ->  BE_Date < DATEFROMPARTS(2024, 1, 1)
//	YEAR(BE_Date) < 2023                      ->  BE_Date < DATEFROMPARTS(2023, 1, 1)
//	YEAR(BE_Date) = YEAR(GETDATE()) - 1       ->  (BE_Date >= DATEFROMPARTS(YEAR(GETDATE()) - 1, 1, 1) AND BE_Date < DATEFROMPARTS(YEAR(GETDATE()), 1, 1))
//	YEAR(BE_Date) BETWEEN 2022 AND 2024       ->  (BE_Date >= DATEFROMPARTS(2022, 1, 1) AND BE_Date < DATEFROMPARTS(2025, 1, 1))
//
// Comparisons it cannot prove equivalent (other operators, arithmetic around
// either side, non-year operands) are left as written.
func RewriteYearPredicates(src string) string {
	tokens := Tokenize(src)
	mask := whereMask(tokens)

	var edits []edit
	for i := 0; i < len(tokens); i++ {
		if !mask[i] || !tokens[i].Is("YEAR") {
			continue
		}
		if p := prevSignificant(tokens, i-1); p >= 0 && isArithmetic(tokens[p]) {
			continue
		}

		column, afterCol, ok := parseYearCall(src, tokens, i)
		if !ok {
			continue
		}

		opIdx := nextSignificant(tokens, afterCol)
		if opIdx >= len(tokens) {
			continue
		}
		op := tokens[opIdx]

		var replacement string
		var end int
		switch {
		case op.Is("BETWEEN"):
			lo, next, ok := parseYearExpr(src, tokens, nextSignificant(tokens, opIdx+1))
			if !ok {
				continue
			}
			andIdx := nextSignificant(tokens, next)
			if andIdx >= len(tokens) || !tokens[andIdx].Is("AND") {
				continue
			}
			hi, next, ok := parseYearExpr(src, tokens, nextSignificant(tokens, andIdx+1))
			if !ok || followedByArithmetic(tokens, next) {
				continue
			}
			replacement = fmt.Sprintf("(%s >= %s AND %s < %s)", column, yearStart(lo), column, yearStart(hi.plus(1)))
			end = next

		case op.Kind == KindPunct:
			y, next, ok := parseYearExpr(src, tokens, nextSignificant(tokens, opIdx+1))
			if !ok || followedByArithmetic(tokens, next) {
				continue
			}
			switch op.Text {
			case ">=":
				replacement = fmt.Sprintf("%s >= %s", column, yearStart(y))
			case ">":
				replacement = fmt.Sprintf("%s >= %s", column, yearStart(y.plus(1)))
			case "<":
				replacement = fmt.Sprintf("%s < %s", column, yearStart(y))
			case "<=":
				replacement = fmt.Sprintf("%s < %s", column, yearStart(y.plus(1)))
			case "=":
				replacement = fmt.Sprintf("(%s >= %s AND %s < %s)", column, yearStart(y), column, yearStart(y.plus(1)))
			default:
				continue
			}
			end = next

		default:
			continue
		}

		edits = append(edits, edit{start: tokens[i].Start, end: tokens[end-1].End, text: replacement})
		i = end - 1
	}

	return applyEdits(src, edits)
}

// parseYearCall matches YEAR ( <column reference> ) starting at tokens[i]
// and returns the column text and the index after the closing parenthesis.
func parseYearCall(src string, tokens []Token, i int) (string, int, bool) {
	open := nextSignificant(tokens, i+1)
	if open >= len(tokens) || !tokens[open].IsPunct("(") {
		return "", 0, false
	}
	first := nextSignificant(tokens, open+1)
	last := -1
	j := first
	for j < len(tokens) && tokens[j].IsIdent() {
		last = j
		dot := nextSignificant(tokens, j+1)
		if dot < len(tokens) && tokens[dot].IsPunct(".") {
			j = nextSignificant(tokens, dot+1)
			continue
		}
		j = dot
		break
	}
	if last < 0 || j >= len(tokens) || !tokens[j].IsPunct(")") {
		return "", 0, false
	}
	if currentDateFuncs[upper(tokens[first].Text)] {
		return "", 0, false
	}
	return src[tokens[first].Start:tokens[last].End], j + 1, true
}

// parseYearExpr matches a four-digit year, YEAR(<current date>) with an
// optional +/- integer offset, or either wrapped in one pair of parentheses.
// It returns the index after the expression.
func parseYearExpr(src string, tokens []Token, i int) (yearExpr, int, bool) {
	if i >= len(tokens) {
		return yearExpr{}, 0, false
	}
	t := tokens[i]

	if t.IsPunct("(") {
		inner, next, ok := parseYearExpr(src, tokens, nextSignificant(tokens, i+1))
		if !ok {
			return yearExpr{}, 0, false
		}
		closing := nextSignificant(tokens, next)
		if closing >= len(tokens) || !tokens[closing].IsPunct(")") {
			return yearExpr{}, 0, false
		}
		return inner, closing + 1, true
	}

	if t.Kind == KindNumber {
		if len(t.Text) != 4 {
			return yearExpr{}, 0, false
		}
		n, err := strconv.Atoi(t.Text)
		if err != nil {
			return yearExpr{}, 0, false
		}
		return yearExpr{literal: n}, i + 1, true
	}

	if !t.Is("YEAR") {
		return yearExpr{}, 0, false
	}
	open := nextSignificant(tokens, i+1)
	if open >= len(tokens) || !tokens[open].IsPunct("(") {
		return yearExpr{}, 0, false
	}
	fn := nextSignificant(tokens, open+1)
	if fn >= len(tokens) || !currentDateFuncs[upper(tokens[fn].Text)] {
		return yearExpr{}, 0, false
	}
	now := tokens[fn].Text
	next := nextSignificant(tokens, fn+1)
	if next < len(tokens) && tokens[next].IsPunct("(") {
		closeCall := nextSignificant(tokens, next+1)
		if closeCall >= len(tokens) || !tokens[closeCall].IsPunct(")") {
			return yearExpr{}, 0, false
		}
		now = src[tokens[fn].Start:tokens[closeCall].End]
		next = nextSignificant(tokens, closeCall+1)
	}
	if next >= len(tokens) || !tokens[next].IsPunct(")") {
		return yearExpr{}, 0, false
	}
	y := yearExpr{now: now}
	end := next + 1

	sign := nextSignificant(tokens, end)
	if sign < len(tokens) && (tokens[sign].IsPunct("+") || tokens[sign].IsPunct("-")) {
		num := nextSignificant(tokens, sign+1)
		if num >= len(tokens) || tokens[num].Kind != KindNumber {
			return yearExpr{}, 0, false
		}
		n, err := strconv.Atoi(tokens[num].Text)
		if err != nil {
			return yearExpr{}, 0, false
		}
		if tokens[sign].Text == "-" {
			n = -n
		}
		y.offset = n
		end = num + 1
	}
	return y, end, true
}

func isArithmetic(t Token) bool {
	if t.Kind != KindPunct {
		return false
	}
	switch t.Text {
	case "+", "-", "*", "/", "%":
		return true
	}
	return false
}

func followedByArithmetic(tokens []Token, i int) bool {
	j := nextSignificant(tokens, i)
	return j < len(tokens) && isArithmetic(tokens[j])
}
