// Package sqlcheck vets generated SQL before it is allowed anywhere
// near a database. Validation queries are read-only by contract, so
// the checker allow-lists rather than block-lists: only statements it
// can positively classify as non-modifying reads pass.
package sqlcheck

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	libinjection "github.com/corazawaf/libinjection-go"
)

// Classification is the safety verdict for a single statement.
type Classification string

const (
	// ClassSafe marks a statement positively identified as a read.
	ClassSafe Classification = "safe"
	// ClassUnsafe marks a statement that modifies data or structure.
	ClassUnsafe Classification = "unsafe"
	// ClassUnknown marks a statement the checker cannot classify.
	// Unknown is rejected just like unsafe.
	ClassUnknown Classification = "unknown"
)

var (
	// ErrEmptyStatement indicates the statement is blank after trimming.
	ErrEmptyStatement = errors.New("empty SQL statement")
	// ErrMultipleStatements indicates the statement contains more than
	// one SQL statement; only single statements are permitted.
	ErrMultipleStatements = errors.New("multiple SQL statements not allowed")
)

// UnsafeError reports why a statement was rejected by the classifier.
type UnsafeError struct {
	Class  Classification
	Reason string
}

func (e *UnsafeError) Error() string {
	return fmt.Sprintf("statement rejected (%s): %s", e.Class, e.Reason)
}

// modifyingCTEPattern matches CTEs that contain data-modifying
// operations, e.g. WITH d AS (DELETE FROM t RETURNING *) SELECT ...
var modifyingCTEPattern = regexp.MustCompile(`(?i)\bAS\s*\(\s*(INSERT|UPDATE|DELETE|MERGE)\b`)

// unsafeKeywords are statement-leading keywords that modify data or
// structure, or hand control to something that might.
var unsafeKeywords = []string{
	"INSERT", "UPDATE", "DELETE", "MERGE", "REPLACE",
	"CREATE", "ALTER", "DROP", "TRUNCATE", "RENAME",
	"GRANT", "REVOKE",
	"CALL", "EXEC", "EXECUTE", "DO",
	"BEGIN", "COMMIT", "ROLLBACK", "SAVEPOINT",
	"SET", "USE", "LOCK", "UNLOCK", "VACUUM", "ANALYZE",
	"COPY", "LOAD",
}

// Classify determines whether a single statement is a read. SELECT and
// pure-SELECT CTEs are safe; recognized modifying keywords are unsafe;
// everything else is unknown.
func Classify(sql string) Classification {
	normalized := strings.ToUpper(strings.TrimSpace(sql))
	if normalized == "" {
		return ClassUnknown
	}

	switch {
	case hasLeadingKeyword(normalized, "SELECT"):
		return ClassSafe
	case hasLeadingKeyword(normalized, "WITH"):
		if modifyingCTEPattern.MatchString(sql) {
			return ClassUnsafe
		}
		return ClassSafe
	}

	for _, kw := range unsafeKeywords {
		if hasLeadingKeyword(normalized, kw) {
			return ClassUnsafe
		}
	}
	return ClassUnknown
}

// hasLeadingKeyword reports whether the uppercased statement starts
// with the keyword as a whole word, not merely as a prefix (so that
// "SELECTION" does not pass as "SELECT").
func hasLeadingKeyword(upperSQL, keyword string) bool {
	if !strings.HasPrefix(upperSQL, keyword) {
		return false
	}
	rest := upperSQL[len(keyword):]
	if rest == "" {
		return true
	}
	c := rest[0]
	return !(c >= 'A' && c <= 'Z') && !(c >= '0' && c <= '9') && c != '_'
}

// Normalize trims the statement, strips one trailing semicolon, and
// rejects anything still containing a semicolon outside string
// literals.
func Normalize(sql string) (string, error) {
	sql = strings.TrimSpace(sql)
	if sql == "" {
		return "", ErrEmptyStatement
	}

	normalized := stripTrailingSemicolon(sql)
	if hasSemicolonOutsideStrings(normalized) {
		return "", ErrMultipleStatements
	}
	return normalized, nil
}

// Vet normalizes the statement and rejects anything not positively
// classified as a read. String literals get a second opinion from the
// injection heuristic; a literal that trips it never reaches a
// database, even when the keyword classifier would let the statement
// through.
func Vet(sql string) (string, error) {
	normalized, err := Normalize(sql)
	if err != nil {
		return "", err
	}

	switch class := Classify(normalized); class {
	case ClassSafe:
		// continue
	case ClassUnsafe:
		return "", &UnsafeError{Class: class, Reason: "statement modifies data or structure"}
	default:
		return "", &UnsafeError{Class: class, Reason: "statement type could not be classified as a read"}
	}

	for _, literal := range stringLiterals(normalized) {
		if isSQLi, fingerprint := libinjection.IsSQLi(literal); isSQLi {
			return "", &UnsafeError{
				Class:  ClassUnknown,
				Reason: fmt.Sprintf("injection heuristic flagged string literal (fingerprint %s)", fingerprint),
			}
		}
	}

	return normalized, nil
}

// stringLiterals extracts the contents of single-quoted literals.
// These are the positions where untrusted data ends up in generated
// SQL, so they are the ones worth running the heuristic over.
func stringLiterals(sql string) []string {
	var literals []string
	var current strings.Builder
	inString := false

	for i := 0; i < len(sql); i++ {
		ch := sql[i]
		if !inString {
			if ch == '\'' {
				inString = true
			}
			continue
		}
		switch {
		case ch == '\\' && i+1 < len(sql):
			current.WriteByte(ch)
			current.WriteByte(sql[i+1])
			i++
		case ch == '\'' && i+1 < len(sql) && sql[i+1] == '\'':
			// SQL doubled quote escape stays inside the literal.
			current.WriteByte('\'')
			i++
		case ch == '\'':
			literals = append(literals, current.String())
			current.Reset()
			inString = false
		default:
			current.WriteByte(ch)
		}
	}
	return literals
}

func stripTrailingSemicolon(sql string) string {
	sql = strings.TrimRight(sql, " \t\n\r")
	if strings.HasSuffix(sql, ";") {
		sql = strings.TrimRight(strings.TrimSuffix(sql, ";"), " \t\n\r")
	}
	return sql
}

// hasSemicolonOutsideStrings scans the statement with a small string
// literal state machine. Semicolons inside single or double quoted
// literals do not count as statement separators.
func hasSemicolonOutsideStrings(sql string) bool {
	const (
		stateNormal = iota
		stateSingleQuote
		stateDoubleQuote
	)

	state := stateNormal
	prev := rune(0)

	for _, ch := range sql {
		switch state {
		case stateNormal:
			switch ch {
			case ';':
				return true
			case '\'':
				state = stateSingleQuote
			case '"':
				state = stateDoubleQuote
			}
		case stateSingleQuote:
			// Both backslash escapes and SQL doubled quotes are handled;
			// a doubled quote exits and immediately re-enters the state.
			if ch == '\'' && prev != '\\' {
				state = stateNormal
			}
		case stateDoubleQuote:
			if ch == '"' && prev != '\\' {
				state = stateNormal
			}
		}
		prev = ch
	}
	return false
}
