package sql

import (
	"fmt"
	"sort"
	"strings"
)

// Name columns the summary can group by, and the label narrated for each.
const (
	CompanyColumn   = "[Importer/Exporter_Name]"
	FormattedColumn = "[Formatted_Name]"
	ProductColumn   = "[Product_Name]"

	EntityCompany = "Company"
	EntityProduct = "Product"

	importDateColumn = "[BE_Date]"
	exportDateColumn = "[SB_Date]"
)

// SummaryQuery is an aggregate query over the same filtered population as a
// generated query. It always returns exactly one row.
type SummaryQuery struct {
	SQL         string
	Table       string
	Alias       string
	Where       string // "WHERE ..." with aliases stripped, or ""
	With        string // CTE definitions the filter reads, or ""
	DateColumn  string
	NameColumn  string
	EntityLabel string
}

// tableAliasStop are words that can follow a table reference but never
// name its alias.
var tableAliasStop = map[string]bool{
	"WHERE": true, "GROUP": true, "ORDER": true, "HAVING": true, "UNION": true,
	"EXCEPT": true, "INTERSECT": true, "OPTION": true, "JOIN": true, "INNER": true,
	"LEFT": true, "RIGHT": true, "FULL": true, "CROSS": true, "OUTER": true,
	"ON": true, "WITH": true, "FOR": true, "PIVOT": true, "UNPIVOT": true,
	"TABLESAMPLE": true, "APPLY": true,
}

// maxCTEHops bounds how many CTE indirections are followed to reach a base table.
const maxCTEHops = 4

// DeriveSummary builds the statistics query for a generated SELECT.
//
// The source table and filter come from the statement's main SELECT: after a
// leading WITH block only the final top-level SELECT is searched, and when it
// reads from one of the CTEs (or a derived table) the search follows into
// that body to find the underlying view and its WHERE clause. CTEs the
// filter reads are declared again ahead of the summary's own. It returns
// false when no FROM clause can be located or when the source joins other
// tables, since the summary would then describe a different population.
func DeriveSummary(src string) (*SummaryQuery, bool) {
	tokens := Tokenize(src)

	ctes, mainSelect := splitWith(tokens)
	if mainSelect < 0 {
		return nil, false
	}

	var sources []selectSource
	for n, sel := range unionBranches(tokens, mainSelect) {
		source, ok := resolveSource(src, tokens, ctes, sel, 0)
		if !ok || (n > 0 && !strings.EqualFold(source.table, sources[0].table)) {
			if n == 0 {
				return nil, false
			}
			sources = sources[:1]
			break
		}
		sources = append(sources, source)
	}
	first := sources[0]

	groupBy := firstGroupBy(src, tokens, mainSelect, tokens[mainSelect].Depth)
	if groupBy == "" {
		groupBy = first.groupBy
	}

	q := &SummaryQuery{
		Table: first.table,
		Alias: first.alias,
		Where: combineFilters(sources),
	}

	with, ok := referencedCTEs(src, tokens, ctes, q.Where)
	if !ok {
		return nil, false
	}
	q.With = with

	if strings.Contains(strings.ToLower(first.table), "import") {
		q.DateColumn = importDateColumn
	} else {
		q.DateColumn = exportDateColumn
	}

	q.NameColumn, q.EntityLabel = nameColumnFor(groupBy)
	q.SQL = renderSummary(q)
	return q, true
}

// combineFilters ORs the WHERE conditions of UNION branches over one table.
// A branch without a filter reads the whole table, so the result is then
// unfiltered too.
func combineFilters(sources []selectSource) string {
	conds := make([]string, 0, len(sources))
	for _, s := range sources {
		if s.where == "" {
			return ""
		}
		cond := RewriteYearPredicates(s.where)
		if s.alias != "" {
			cond = stripQualifier(cond, s.alias)
		}
		cond = strings.TrimSpace(cond[len("WHERE"):])
		if cond == "" {
			return ""
		}
		conds = append(conds, cond)
	}
	if len(conds) == 1 {
		return "WHERE " + conds[0]
	}
	return "WHERE (" + strings.Join(conds, ") OR (") + ")"
}

// unionBranches returns the SELECT keyword index of each UNION branch of the
// statement starting at tokens[sel]. EXCEPT and INTERSECT change the
// population, so their presence limits the result to the first branch.
func unionBranches(tokens []Token, sel int) []int {
	depth := tokens[sel].Depth
	branches := []int{sel}
	for i := sel + 1; i < len(tokens); i++ {
		t := tokens[i]
		if t.Depth < depth || (t.Depth == depth && t.IsPunct(";")) {
			break
		}
		if t.Depth != depth {
			continue
		}
		if t.Is("EXCEPT") || t.Is("INTERSECT") {
			return branches[:1]
		}
		if !t.Is("UNION") {
			continue
		}
		next := nextSignificant(tokens, i+1)
		if next < len(tokens) && tokens[next].Is("ALL") {
			next = nextSignificant(tokens, next+1)
		}
		for next < len(tokens) && tokens[next].IsPunct("(") {
			next = nextSignificant(tokens, next+1)
		}
		if next < len(tokens) && tokens[next].Is("SELECT") {
			branches = append(branches, next)
		}
	}
	return branches
}

// nameColumnFor picks the grouping column from the generated query's
// GROUP BY target. Anything that is not a product or short company name,
// including the combined name column and date groupings, summarizes by company.
func nameColumnFor(groupBy string) (string, string) {
	g := strings.ToLower(groupBy)
	switch {
	case strings.Contains(g, "product"):
		return ProductColumn, EntityProduct
	case strings.Contains(g, "formatted"):
		return FormattedColumn, EntityCompany
	default:
		return CompanyColumn, EntityCompany
	}
}

func renderSummary(q *SummaryQuery) string {
	filter := ""
	if q.Where != "" {
		filter = "\n    " + q.Where
	}
	with := ""
	if q.With != "" {
		with = q.With + ",\n"
	}
	return fmt.Sprintf(`WITH %[5]sTopEntity AS (
    SELECT TOP 1 %[1]s AS EntityName, SUM([Total_Value_INR]) AS TopEntityValue
    FROM %[2]s%[3]s
    GROUP BY %[1]s
    ORDER BY TopEntityValue DESC
),
Aggregates AS (
    SELECT
        COUNT(*) AS TotalRecords,
        COUNT(DISTINCT %[1]s) AS TotalEntities,
        SUM([Total_Value_INR]) AS TotalValue_INR,
        SUM([Quantity_KG]) AS TotalQuantity_KG,
        SUM([Total_Value_INR]) / NULLIF(SUM([Quantity_KG]), 0) AS WeightedAvgPrice_INR,
        MAX([Total_Value_INR]) AS MaxShipmentValue,
        MIN(%[4]s) AS EarliestDate,
        MAX(%[4]s) AS LatestDate,
        COUNT(DISTINCT CAST(%[4]s AS DATE)) AS UniqueDates
    FROM %[2]s%[3]s
)
SELECT a.*, t.EntityName AS TopEntity, t.TopEntityValue
FROM Aggregates a
LEFT JOIN TopEntity t ON 1 = 1`, q.NameColumn, q.Table, filter, q.DateColumn, with)
}

// cte is one common table expression of a leading WITH block.
type cte struct {
	open int  // index of the body's opening parenthesis
	def  span // name through closing parenthesis
}

// splitWith indexes the CTEs of a leading WITH block by upper-cased name and
// returns the index of the main SELECT keyword (-1 if none).
func splitWith(tokens []Token) (map[string]cte, int) {
	first := nextSignificant(tokens, 0)
	for first < len(tokens) && (tokens[first].IsPunct("(") || tokens[first].IsPunct(";")) {
		first = nextSignificant(tokens, first+1)
	}
	if first >= len(tokens) {
		return nil, -1
	}
	if tokens[first].Is("SELECT") {
		return nil, first
	}
	if !tokens[first].Is("WITH") {
		return nil, -1
	}

	ctes := make(map[string]cte)
	depth := tokens[first].Depth
	name := -1
	for i := first + 1; i < len(tokens); i++ {
		t := tokens[i]
		if t.Depth != depth {
			continue
		}
		switch {
		case t.Is("SELECT"):
			return ctes, i
		case t.Is("AS"):
			open := nextSignificant(tokens, i+1)
			if open < len(tokens) && tokens[open].IsPunct("(") && name >= 0 {
				closing := matchingParen(tokens, open)
				ctes[strings.ToUpper(tokens[name].Name())] = cte{
					open: open,
					def:  span{start: name, end: closing + 1},
				}
				i = closing
			}
		case t.IsIdent() && name < 0:
			name = i
		case t.IsPunct(","):
			name = -1
		}
	}
	return ctes, -1
}

// matchingParen returns the index of the parenthesis closing tokens[open],
// or the last index when it is unbalanced.
func matchingParen(tokens []Token, open int) int {
	depth := tokens[open].Depth
	for i := open + 1; i < len(tokens); i++ {
		if tokens[i].Depth == depth && tokens[i].IsPunct(")") {
			return i
		}
	}
	return len(tokens) - 1
}

// summaryCTEs are the names the summary query declares itself.
var summaryCTEs = map[string]bool{"TOPENTITY": true, "AGGREGATES": true}

// referencedCTEs returns the definitions of the CTEs the filter reads,
// including the CTEs those bodies read, in declaration order. It reports
// false when one of them collides with a name the summary declares.
func referencedCTEs(src string, tokens []Token, ctes map[string]cte, filter string) (string, bool) {
	if len(ctes) == 0 || filter == "" {
		return "", true
	}

	used := make(map[string]bool)
	var visit func(toks []Token, self string) bool
	visit = func(toks []Token, self string) bool {
		for _, t := range toks {
			if !t.IsIdent() {
				continue
			}
			name := strings.ToUpper(t.Name())
			c, ok := ctes[name]
			if !ok || name == self || used[name] {
				continue
			}
			if summaryCTEs[name] {
				return false
			}
			used[name] = true
			if !visit(tokens[c.open:c.def.end], name) {
				return false
			}
		}
		return true
	}
	if !visit(Tokenize(filter), "") {
		return "", false
	}
	if len(used) == 0 {
		return "", true
	}

	defs := make([]span, 0, len(used))
	for name := range used {
		defs = append(defs, ctes[name].def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].start < defs[j].start })

	parts := make([]string, len(defs))
	for i, d := range defs {
		parts[i] = spanText(src, tokens, d)
	}
	return strings.Join(parts, ",\n"), true
}

// joinsInFrom reports whether the FROM clause opened by tokens[from] reads
// more than one source. A join restricts the population in ways the summary
// cannot reproduce from a single table.
func joinsInFrom(tokens []Token, from int) bool {
	depth := tokens[from].Depth
	for i := from + 1; i < len(tokens); i++ {
		t := tokens[i]
		if t.Depth < depth {
			return false
		}
		if t.Depth > depth {
			continue
		}
		switch {
		case t.IsPunct(";"), t.Is("WHERE"), isClauseEnder(t):
			return false
		case t.IsPunct(","), t.Is("JOIN"), t.Is("APPLY"), t.Is("PIVOT"), t.Is("UNPIVOT"):
			return true
		}
	}
	return false
}

type selectSource struct {
	table   string
	alias   string
	where   string
	groupBy string
}

// resolveSource finds the FROM source of the SELECT at tokens[sel], following
// CTE references and derived tables down to a base table.
func resolveSource(src string, tokens []Token, ctes map[string]cte, sel, hops int) (selectSource, bool) {
	depth := tokens[sel].Depth
	from := -1
	for i := sel + 1; i < len(tokens); i++ {
		t := tokens[i]
		if t.Depth < depth || (t.Depth == depth && (t.IsPunct(";") || t.Is("UNION") || t.Is("EXCEPT") || t.Is("INTERSECT"))) {
			break
		}
		if t.Depth == depth && t.Is("FROM") {
			from = i
			break
		}
	}
	if from < 0 || joinsInFrom(tokens, from) {
		return selectSource{}, false
	}

	start := nextSignificant(tokens, from+1)
	if start >= len(tokens) {
		return selectSource{}, false
	}

	// Derived table: FROM (SELECT ...) alias
	if tokens[start].IsPunct("(") {
		inner := nextSignificant(tokens, start+1)
		if hops >= maxCTEHops || inner >= len(tokens) || !tokens[inner].Is("SELECT") {
			return selectSource{}, false
		}
		return resolveSource(src, tokens, ctes, inner, hops+1)
	}

	if !tokens[start].IsIdent() || tableAliasStop[upper(tokens[start].Text)] {
		return selectSource{}, false
	}

	end := start
	for {
		dot := nextSignificant(tokens, end+1)
		if dot < len(tokens) && tokens[dot].IsPunct(".") {
			part := nextSignificant(tokens, dot+1)
			if part < len(tokens) && tokens[part].IsIdent() {
				end = part
				continue
			}
		}
		break
	}
	table := src[tokens[start].Start:tokens[end].End]

	if c, ok := ctes[strings.ToUpper(tokens[start].Name())]; ok && start == end {
		inner := nextSignificant(tokens, c.open+1)
		if hops < maxCTEHops && inner < len(tokens) && tokens[inner].Is("SELECT") {
			return resolveSource(src, tokens, ctes, inner, hops+1)
		}
		return selectSource{}, false
	}

	alias := ""
	next := nextSignificant(tokens, end+1)
	if next < len(tokens) && tokens[next].Is("AS") {
		next = nextSignificant(tokens, next+1)
	}
	if next < len(tokens) && tokens[next].Depth == depth && tokens[next].IsIdent() && !tableAliasStop[upper(tokens[next].Text)] {
		alias = tokens[next].Name()
	}

	out := selectSource{table: table, alias: alias}
	for i := end + 1; i < len(tokens); i++ {
		t := tokens[i]
		if t.Depth < depth || (t.Depth == depth && (t.IsPunct(";") || t.Is("UNION") || t.Is("EXCEPT") || t.Is("INTERSECT"))) {
			break
		}
		if t.Depth == depth && t.Is("WHERE") {
			s := trimSpan(tokens, span{start: i, end: clauseEnd(tokens, i, isClauseEnder)})
			out.where = spanText(src, tokens, s)
			break
		}
	}
	out.groupBy = firstGroupBy(src, tokens, sel, depth)
	return out, true
}

// firstGroupBy returns the first grouping expression of the SELECT starting
// at tokens[from], or "".
func firstGroupBy(src string, tokens []Token, from, depth int) string {
	for i := from + 1; i < len(tokens); i++ {
		t := tokens[i]
		if t.Depth < depth || (t.Depth == depth && (t.IsPunct(";") || t.Is("UNION"))) {
			return ""
		}
		if t.Depth != depth || !t.Is("GROUP") {
			continue
		}
		by := nextSignificant(tokens, i+1)
		if by >= len(tokens) || !tokens[by].Is("BY") {
			return ""
		}
		exprStart := nextSignificant(tokens, by+1)
		if exprStart >= len(tokens) {
			return ""
		}
		exprEnd := exprStart
		for j := exprStart; j < len(tokens); j++ {
			tj := tokens[j]
			if tj.Depth < depth || (tj.Depth == depth && (tj.IsPunct(",") || tj.IsPunct(";") || isClauseEnder(tj))) {
				break
			}
			exprEnd = j + 1
		}
		return spanText(src, tokens, trimSpan(tokens, span{start: exprStart, end: exprEnd}))
	}
	return ""
}

// stripQualifier removes "alias." prefixes from column references.
func stripQualifier(src, alias string) string {
	tokens := Tokenize(src)
	var edits []edit
	for i, t := range tokens {
		if !t.IsIdent() || !strings.EqualFold(t.Name(), alias) {
			continue
		}
		if p := prevSignificant(tokens, i-1); p >= 0 && tokens[p].IsPunct(".") {
			continue
		}
		dot := nextSignificant(tokens, i+1)
		if dot < len(tokens) && tokens[dot].IsPunct(".") {
			edits = append(edits, edit{start: t.Start, end: tokens[dot].End})
		}
	}
	return applyEdits(src, edits)
}
