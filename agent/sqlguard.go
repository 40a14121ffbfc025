package agent

import (
	"slices"
	"strings"
	"unicode"
)

// InvalidMarker prefixes composed text that must not be executed.
const InvalidMarker = "-- invalid_non_select\n"

// sqlKeywords are never quoted even when a schema object shares the name.
var sqlKeywords = map[string]bool{
	"all": true, "and": true, "any": true, "as": true, "asc": true, "between": true,
	"by": true, "case": true, "cast": true, "cross": true, "current_date": true,
	"desc": true, "distinct": true, "else": true, "end": true, "except": true,
	"exists": true, "extract": true, "false": true, "fetch": true, "filter": true,
	"first": true, "from": true, "full": true, "group": true, "having": true,
	"ilike": true, "in": true, "inner": true, "intersect": true, "interval": true,
	"is": true, "join": true, "last": true, "lateral": true, "left": true,
	"like": true, "limit": true, "not": true, "null": true, "nulls": true,
	"offset": true, "on": true, "only": true, "or": true, "order": true,
	"outer": true, "over": true, "partition": true, "recursive": true,
	"right": true, "rows": true, "select": true, "similar": true, "then": true,
	"true": true, "union": true, "using": true, "when": true, "where": true,
	"window": true, "with": true,
}

type tokenKind int

const (
	tokWord tokenKind = iota
	tokNumber
	tokString
	tokQuoted
	tokComment
	tokSpace
	tokPunct
)

type token struct {
	kind tokenKind
	text string
}

// tokenize splits SQL into words, literals, quoted identifiers, comments,
// whitespace and punctuation. Unterminated literals run to end of input.
func tokenize(sql string) []token {
	var toks []token
	rs := []rune(sql)
	for i := 0; i < len(rs); {
		r := rs[i]
		start := i
		switch {
		case r == '\'':
			i++
			for i < len(rs) {
				if rs[i] == '\'' {
					if i+1 < len(rs) && rs[i+1] == '\'' {
						i += 2
						continue
					}
					i++
					break
				}
				i++
			}
			toks = append(toks, token{tokString, string(rs[start:i])})
		case r == '"':
			i++
			for i < len(rs) {
				if rs[i] == '"' {
					if i+1 < len(rs) && rs[i+1] == '"' {
						i += 2
						continue
					}
					i++
					break
				}
				i++
			}
			toks = append(toks, token{tokQuoted, string(rs[start:i])})
		case r == '$' && dollarTagEnd(rs, i) > 0:
			end := dollarTagEnd(rs, i)
			tag := rs[i:end]
			i = end
			for i < len(rs) && !slices.Equal(rs[i:min(i+len(tag), len(rs))], tag) {
				i++
			}
			i = min(i+len(tag), len(rs))
			toks = append(toks, token{tokString, string(rs[start:i])})
		case r == '-' && i+1 < len(rs) && rs[i+1] == '-':
			for i < len(rs) && rs[i] != '\n' {
				i++
			}
			toks = append(toks, token{tokComment, string(rs[start:i])})
		case r == '/' && i+1 < len(rs) && rs[i+1] == '*':
			i += 2
			for i < len(rs) && !(rs[i] == '*' && i+1 < len(rs) && rs[i+1] == '/') {
				i++
			}
			i = min(i+2, len(rs))
			toks = append(toks, token{tokComment, string(rs[start:i])})
		case unicode.IsSpace(r):
			for i < len(rs) && unicode.IsSpace(rs[i]) {
				i++
			}
			toks = append(toks, token{tokSpace, string(rs[start:i])})
		case unicode.IsDigit(r):
			for i < len(rs) && (unicode.IsDigit(rs[i]) || unicode.IsLetter(rs[i]) || rs[i] == '.') {
				i++
			}
			toks = append(toks, token{tokNumber, string(rs[start:i])})
		case r == '_' || unicode.IsLetter(r):
			for i < len(rs) && (rs[i] == '_' || rs[i] == '$' || unicode.IsLetter(rs[i]) || unicode.IsDigit(rs[i])) {
				i++
			}
			toks = append(toks, token{tokWord, string(rs[start:i])})
		default:
			i++
			toks = append(toks, token{tokPunct, string(r)})
		}
	}
	return toks
}

// dollarTagEnd returns the index just past a dollar-quote opening tag
// ($$ or $name$) starting at i, or 0 when there is none. Positional
// parameters such as $1 are not tags.
func dollarTagEnd(rs []rune, i int) int {
	j := i + 1
	for j < len(rs) && (rs[j] == '_' || unicode.IsLetter(rs[j]) || (j > i+1 && unicode.IsDigit(rs[j]))) {
		j++
	}
	if j < len(rs) && rs[j] == '$' {
		return j + 1
	}
	return 0
}

// firstKeyword returns the lower-cased first word, skipping whitespace,
// comments and opening parentheses.
func firstKeyword(sql string) string {
	for _, t := range tokenize(sql) {
		switch t.kind {
		case tokSpace, tokComment:
			continue
		case tokPunct:
			if t.text == "(" {
				continue
			}
			return t.text
		case tokWord:
			return strings.ToLower(t.text)
		default:
			return t.text
		}
	}
	return ""
}

// splitStatements splits on semicolons outside literals and comments and
// drops empty statements.
func splitStatements(sql string) []string {
	var stmts []string
	var cur strings.Builder
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			stmts = append(stmts, s)
		}
		cur.Reset()
	}
	for _, t := range tokenize(sql) {
		if t.kind == tokPunct && t.text == ";" {
			flush()
			continue
		}
		cur.WriteString(t.text)
	}
	flush()
	return stmts
}

// IsReadOnlyStatement reports whether sql is exactly one statement that
// leads with SELECT or WITH.
func IsReadOnlyStatement(sql string) bool {
	trimmed := strings.TrimSpace(sql)
	if strings.HasPrefix(trimmed, strings.TrimSpace(InvalidMarker)) {
		return false
	}
	if len(splitStatements(trimmed)) != 1 {
		return false
	}
	switch firstKeyword(trimmed) {
	case "select", "with":
		return true
	}
	return false
}

// hasRowLimit reports whether the outermost query already carries LIMIT or
// FETCH. Clauses inside parentheses belong to subqueries and do not count.
func hasRowLimit(sql string) bool {
	depth := 0
	for _, t := range tokenize(sql) {
		switch {
		case t.kind == tokPunct && t.text == "(":
			depth++
		case t.kind == tokPunct && t.text == ")":
			depth = max(depth-1, 0)
		case t.kind == tokWord && depth == 0:
			if strings.EqualFold(t.text, "limit") || strings.EqualFold(t.text, "fetch") {
				return true
			}
		}
	}
	return false
}

// quoteIdentifiers double-quotes bare words that name a table or column in
// the schema, using the schema's spelling. Keywords, function names, type
// casts and typed literals are left alone.
func quoteIdentifiers(sql string, schema *SchemaOverview) string {
	if schema == nil || len(schema.Tables) == 0 {
		return sql
	}
	names := make(map[string]string)
	for _, t := range schema.Tables {
		names[strings.ToLower(t.Name)] = t.Name
		for _, c := range t.Columns {
			if _, dup := names[strings.ToLower(c.Name)]; !dup {
				names[strings.ToLower(c.Name)] = c.Name
			}
		}
	}

	toks := tokenize(sql)
	var sb strings.Builder
	for i, t := range toks {
		if t.kind != tokWord {
			sb.WriteString(t.text)
			continue
		}
		lower := strings.ToLower(t.text)
		canonical, known := names[lower]
		if !known || sqlKeywords[lower] || isCastTarget(toks, i) {
			sb.WriteString(t.text)
			continue
		}
		if next, ok := nextSignificant(toks, i); ok && (next.text == "(" || next.kind == tokString) {
			sb.WriteString(t.text)
			continue
		}
		sb.WriteString(`"` + strings.ReplaceAll(canonical, `"`, `""`) + `"`)
	}
	return sb.String()
}

func nextSignificant(toks []token, i int) (token, bool) {
	for j := i + 1; j < len(toks); j++ {
		if toks[j].kind != tokSpace && toks[j].kind != tokComment {
			return toks[j], true
		}
	}
	return token{}, false
}

// isCastTarget reports whether toks[i] follows a :: cast operator.
func isCastTarget(toks []token, i int) bool {
	j := i - 1
	for j >= 0 && toks[j].kind == tokSpace {
		j--
	}
	return j >= 1 && toks[j].text == ":" && toks[j-1].text == ":"
}
