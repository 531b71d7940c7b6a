// Package sql guards the SQL that reaches the dataset engine.
package sql

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

var (
	// ErrEmptyQuery indicates there is no statement to run.
	ErrEmptyQuery = errors.New("empty SQL query")
	// ErrNotReadOnly indicates the statement is not a plain query.
	ErrNotReadOnly = errors.New("only read-only SELECT queries are allowed")
	// ErrMultipleStatements indicates the query contains multiple SQL statements.
	ErrMultipleStatements = errors.New("multiple SQL statements not allowed; only single statements are permitted")
	// ErrMalformedQuery indicates a literal, quoted identifier or comment the
	// guard cannot delimit with certainty.
	ErrMalformedQuery = errors.New("malformed SQL")
)

// readOnlyLeaders are the statements a dataset query may start with.
var readOnlyLeaders = map[string]bool{
	"SELECT":    true,
	"WITH":      true,
	"VALUES":    true,
	"FROM":      true, // DuckDB FROM-first syntax
	"DESCRIBE":  true,
	"SUMMARIZE": true,
}

// forbiddenKeywords write data, change the catalog or reach outside the dataset.
// Entries must be one bare word.
var forbiddenKeywords = map[string]bool{
	"INSERT":     true,
	"UPDATE":     true,
	"DELETE":     true,
	"MERGE":      true,
	"DROP":       true,
	"CREATE":     true,
	"ALTER":      true,
	"TRUNCATE":   true,
	"ATTACH":     true,
	"DETACH":     true,
	"COPY":       true,
	"EXPORT":     true,
	"IMPORT":     true,
	"PRAGMA":     true,
	"INSTALL":    true,
	"LOAD":       true,
	"SET":        true,
	"RESET":      true,
	"CALL":       true,
	"CHECKPOINT": true,
	"VACUUM":     true,
	"USE":        true,

	// table functions that read files other than the session dataset
	"READ_CSV":       true,
	"READ_CSV_AUTO":  true,
	"READ_PARQUET":   true,
	"PARQUET_SCAN":   true,
	"READ_JSON":      true,
	"READ_JSON_AUTO": true,
	"READ_TEXT":      true,
	"READ_BLOB":      true,
	"GLOB":           true,
	"SNIFF_CSV":      true,
}

// relationKeywords introduce a relation. A string literal after one of them is
// read by DuckDB as a file path.
var relationKeywords = map[string]bool{
	"FROM": true,
	"JOIN": true,
}

type tokenKind int

const (
	tokenWord tokenKind = iota
	tokenString
	tokenIdent
	tokenSemicolon
	tokenOther
)

type token struct {
	kind tokenKind
	// upper-cased for words, unquoted contents for identifiers
	text string
	// rune offset of the first rune of the token
	pos int
}

// PrepareQuery checks that sqlQuery is a single read-only statement and returns
// it with surrounding whitespace and one trailing ';' removed.
//
// Keywords inside string literals, quoted identifiers and comments are ignored,
// so a column named "update" or a filter like 'drop shipping' is allowed.
func PrepareQuery(sqlQuery string) (string, error) {
	runes := []rune(sqlQuery)
	tokens, err := tokenize(runes)
	if err != nil {
		return "", err
	}

	end := len(runes)
	if n := len(tokens); n > 0 && tokens[n-1].kind == tokenSemicolon {
		end = tokens[n-1].pos
		tokens = tokens[:n-1]
	}
	for _, tok := range tokens {
		if tok.kind == tokenSemicolon {
			return "", ErrMultipleStatements
		}
	}

	if err := checkReadOnly(tokens); err != nil {
		return "", err
	}
	return strings.TrimSpace(string(runes[:end])), nil
}

func checkReadOnly(tokens []token) error {
	var words []string
	for _, tok := range tokens {
		if tok.kind == tokenWord {
			words = append(words, tok.text)
		}
	}
	if len(words) == 0 {
		if len(tokens) == 0 {
			return ErrEmptyQuery
		}
		return fmt.Errorf("%w: no statement keyword", ErrNotReadOnly)
	}

	if !readOnlyLeaders[words[0]] {
		return fmt.Errorf("%w: statement starts with %s", ErrNotReadOnly, words[0])
	}
	for _, w := range words[1:] {
		if forbiddenKeywords[w] {
			return fmt.Errorf("%w: found %s", ErrNotReadOnly, w)
		}
	}

	for i := 1; i < len(tokens); i++ {
		prev := tokens[i-1]
		if prev.kind != tokenWord || !relationKeywords[prev.text] {
			continue
		}
		switch tokens[i].kind {
		case tokenString:
			return fmt.Errorf("%w: file reference after %s", ErrNotReadOnly, prev.text)
		case tokenIdent:
			if strings.ContainsAny(tokens[i].text, `/\.:`) {
				return fmt.Errorf("%w: file reference after %s", ErrNotReadOnly, prev.text)
			}
		}
	}
	return nil
}

// tokenize splits a query into words, literals, identifiers, semicolons and
// other punctuation. Whitespace and comments produce no tokens.
//
// It follows DuckDB's lexer: '...' strings treat backslash as an ordinary
// character, E'...' strings treat it as an escape, both accept '' as a quote,
// $tag$...$tag$ strings run to the matching delimiter and /* */ comments nest.
// Unterminated constructs are rejected.
func tokenize(runes []rune) ([]token, error) {
	var tokens []token
	n := len(runes)

	for i := 0; i < n; {
		c := runes[i]
		next := rune(0)
		if i+1 < n {
			next = runes[i+1]
		}

		switch {
		case unicode.IsSpace(c):
			i++

		case c == '-' && next == '-':
			for i < n && runes[i] != '\n' {
				i++
			}

		case c == '/' && next == '*':
			end, ok := skipBlockComment(runes, i)
			if !ok {
				return nil, fmt.Errorf("%w: unterminated comment", ErrMalformedQuery)
			}
			i = end

		case c == '\'':
			end, ok := skipString(runes, i, false)
			if !ok {
				return nil, fmt.Errorf("%w: unterminated string literal", ErrMalformedQuery)
			}
			tokens = append(tokens, token{kind: tokenString, pos: i})
			i = end

		case c == '"':
			end, text, ok := skipIdent(runes, i)
			if !ok {
				return nil, fmt.Errorf("%w: unterminated quoted identifier", ErrMalformedQuery)
			}
			tokens = append(tokens, token{kind: tokenIdent, text: text, pos: i})
			i = end

		case c == '$' && dollarTag(runes, i) != "":
			delim := dollarTag(runes, i)
			closing := indexRunes(runes, i+len([]rune(delim)), delim)
			if closing < 0 {
				return nil, fmt.Errorf("%w: unterminated dollar-quoted string", ErrMalformedQuery)
			}
			tokens = append(tokens, token{kind: tokenString, pos: i})
			i = closing + len([]rune(delim))

		case isWordRune(c):
			start := i
			for i < n && isWordRune(runes[i]) {
				i++
			}
			word := strings.ToUpper(string(runes[start:i]))

			if i < n && runes[i] == '\'' {
				switch {
				case word == "E":
					end, ok := skipString(runes, i, true)
					if !ok {
						return nil, fmt.Errorf("%w: unterminated string literal", ErrMalformedQuery)
					}
					tokens = append(tokens, token{kind: tokenString, pos: start})
					i = end
					continue
				case unicode.IsDigit(runes[start]) && strings.HasSuffix(word, "E"):
					// 1e'...' may lex as an exponent or as an E'...' string
					return nil, fmt.Errorf("%w: ambiguous string prefix %s", ErrMalformedQuery, word)
				}
			}
			tokens = append(tokens, token{kind: tokenWord, text: word, pos: start})

		case c == ';':
			tokens = append(tokens, token{kind: tokenSemicolon, pos: i})
			i++

		default:
			tokens = append(tokens, token{kind: tokenOther, text: string(c), pos: i})
			i++
		}
	}
	return tokens, nil
}

func isWordRune(c rune) bool {
	return unicode.IsLetter(c) || unicode.IsDigit(c) || c == '_'
}

// skipString returns the index after the literal starting at the quote at i.
func skipString(runes []rune, i int, backslashEscapes bool) (int, bool) {
	for j := i + 1; j < len(runes); j++ {
		switch runes[j] {
		case '\\':
			if backslashEscapes {
				j++
			}
		case '\'':
			if j+1 < len(runes) && runes[j+1] == '\'' {
				j++
				continue
			}
			return j + 1, true
		}
	}
	return 0, false
}

func skipIdent(runes []rune, i int) (int, string, bool) {
	var text strings.Builder
	for j := i + 1; j < len(runes); j++ {
		if runes[j] != '"' {
			text.WriteRune(runes[j])
			continue
		}
		if j+1 < len(runes) && runes[j+1] == '"' {
			text.WriteRune('"')
			j++
			continue
		}
		return j + 1, text.String(), true
	}
	return 0, "", false
}

func skipBlockComment(runes []rune, i int) (int, bool) {
	depth := 0
	for j := i; j+1 < len(runes); j++ {
		switch {
		case runes[j] == '/' && runes[j+1] == '*':
			depth++
			j++
		case runes[j] == '*' && runes[j+1] == '/':
			depth--
			j++
			if depth == 0 {
				return j + 1, true
			}
		}
	}
	return 0, false
}

// dollarTag returns the $tag$ delimiter starting at i, or "" when the '$' does
// not open a dollar-quoted string (a $1 parameter, for example).
func dollarTag(runes []rune, i int) string {
	for j := i + 1; j < len(runes); j++ {
		c := runes[j]
		switch {
		case c == '$':
			return string(runes[i : j+1])
		case c == '_' || unicode.IsLetter(c) || (j > i+1 && unicode.IsDigit(c)):
		default:
			return ""
		}
	}
	return ""
}

func indexRunes(runes []rune, from int, s string) int {
	if from > len(runes) {
		return -1
	}
	idx := strings.Index(string(runes[from:]), s)
	if idx < 0 {
		return -1
	}
	return from + len([]rune(string(runes[from:])[:idx]))
}
