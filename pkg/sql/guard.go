package sql

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/exim-agent/pkg/apperrors"
)

// StatementErrorKind names why a statement was refused.
type StatementErrorKind string

const (
	KindEmpty              StatementErrorKind = "empty"
	KindMultipleStatements StatementErrorKind = "multiple_statements"
	KindNotSelect          StatementErrorKind = "not_select"
	KindModifyingCTE       StatementErrorKind = "modifying_cte"
	KindForbiddenKeyword   StatementErrorKind = "forbidden_keyword"
	KindInjection          StatementErrorKind = "injection"
)

// StatementError is returned for generated SQL that must not reach the database.
type StatementError struct {
	Kind   StatementErrorKind
	Detail string
}

func (e *StatementError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("statement rejected: %s", e.Kind)
	}
	return fmt.Sprintf("statement rejected: %s: %s", e.Kind, e.Detail)
}

// Is lets errors.Is match apperrors.ErrStatementRejected.
func (e *StatementError) Is(target error) bool {
	return target == apperrors.ErrStatementRejected
}

// forbiddenKeywords may not appear anywhere outside literals and quoted
// identifiers of a read-only query.
var forbiddenKeywords = map[string]bool{
	"INSERT": true, "UPDATE": true, "DELETE": true, "MERGE": true,
	"DROP": true, "ALTER": true, "CREATE": true, "TRUNCATE": true,
	"EXEC": true, "EXECUTE": true, "SP_EXECUTESQL": true,
	"GRANT": true, "REVOKE": true, "DENY": true,
	"BULK": true, "BACKUP": true, "RESTORE": true,
	"SHUTDOWN": true, "KILL": true, "DBCC": true, "WAITFOR": true,
	"OPENROWSET": true, "OPENQUERY": true, "OPENDATASOURCE": true, "OPENXML": true,
	"RECONFIGURE": true,
}

// positionalKeywords are forbidden only where they start a clause or a
// statement. Used as a column alias or a qualified name they are allowed.
var positionalKeywords = map[string]bool{
	"INTO": true, "USE": true, "DECLARE": true, "SET": true,
}

var dmlKeywords = map[string]bool{"INSERT": true, "UPDATE": true, "DELETE": true, "MERGE": true}

// Guard checks that src is a single read-only SELECT (optionally led by
// CTEs) and returns it without its trailing terminator. Rejections are
// *StatementError.
func Guard(src string) (string, error) {
	normalized := stripTrailingSemicolon(strings.TrimSpace(src))
	if normalized == "" {
		return "", &StatementError{Kind: KindEmpty}
	}

	tokens := Tokenize(normalized)

	for _, t := range tokens {
		if t.IsPunct(";") {
			return "", &StatementError{Kind: KindMultipleStatements}
		}
	}

	first := nextSignificant(tokens, 0)
	for first < len(tokens) && tokens[first].IsPunct("(") {
		first = nextSignificant(tokens, first+1)
	}
	if first >= len(tokens) || !(tokens[first].Is("SELECT") || tokens[first].Is("WITH")) {
		leading := ""
		if first < len(tokens) {
			leading = upper(tokens[first].Text)
		}
		return "", &StatementError{Kind: KindNotSelect, Detail: leading}
	}

	if tokens[first].Is("WITH") {
		if kw := modifyingCTE(tokens); kw != "" {
			return "", &StatementError{Kind: KindModifyingCTE, Detail: kw}
		}
	}

	for i, t := range tokens {
		if t.Kind != KindWord {
			continue
		}
		word := upper(t.Text)
		if forbiddenKeywords[word] || strings.HasPrefix(word, "XP_") {
			return "", &StatementError{Kind: KindForbiddenKeyword, Detail: word}
		}
		if positionalKeywords[word] && !usedAsName(tokens, i) {
			return "", &StatementError{Kind: KindForbiddenKeyword, Detail: word}
		}
	}

	if hit := CheckLiteralsForInjection(tokens); hit != nil {
		return "", &StatementError{Kind: KindInjection, Detail: hit.Fingerprint}
	}

	return normalized, nil
}

// usedAsName reports whether the word at i is an alias or a qualified name:
// it follows AS or a dot, or nothing but a separator or a clause follows it.
//
//	SELECT Quantity_KG AS Set, v.Use FROM v       -- names
//	SELECT COUNT(*) set FROM v                    -- name
//	SELECT * INTO copy FROM v                     -- keyword
func usedAsName(tokens []Token, i int) bool {
	if p := prevSignificant(tokens, i-1); p >= 0 && (tokens[p].Is("AS") || tokens[p].IsPunct(".")) {
		return true
	}
	n := nextSignificant(tokens, i+1)
	if n >= len(tokens) {
		return true
	}
	next := tokens[n]
	return next.IsPunct(",") || next.IsPunct(")") || next.Is("FROM") || next.Is("WHERE") || isClauseEnder(next)
}

// modifyingCTE returns the DML keyword opening a CTE body, if any.
func modifyingCTE(tokens []Token) string {
	for i, t := range tokens {
		if !t.Is("AS") {
			continue
		}
		open := nextSignificant(tokens, i+1)
		if open >= len(tokens) || !tokens[open].IsPunct("(") {
			continue
		}
		body := nextSignificant(tokens, open+1)
		if body < len(tokens) && dmlKeywords[upper(tokens[body].Text)] && tokens[body].Kind == KindWord {
			return upper(tokens[body].Text)
		}
	}
	return ""
}

// stripTrailingSemicolon removes trailing terminators and the whitespace
// around them.
func stripTrailingSemicolon(s string) string {
	s = strings.TrimRight(s, " \t\n\r")
	for strings.HasSuffix(s, ";") {
		s = strings.TrimRight(strings.TrimSuffix(s, ";"), " \t\n\r")
	}
	return s
}
