package query

import (
	"strings"
)

// orSeparator splits a raw search term into independently tokenized groups
// that OR-combine. The separator is matched literally, lowercase only.
const orSeparator = " or "

// stopWords are dropped from tokenized search groups.
var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"by": {}, "for": {}, "from": {}, "in": {}, "is": {}, "it": {}, "of": {},
	"on": {}, "or": {}, "that": {}, "the": {}, "this": {}, "to": {},
	"was": {}, "with": {},
}

// tokenizeSearch splits a raw term into search groups. Within a group, quoted
// exact-phrases and bare words become tokens; stop-words and single-character
// tokens that are not alphanumeric or a dash are dropped. A group with fewer
// than 2 meaningful tokens degrades to one literal phrase, so short or noisy
// queries still match something instead of compiling to a no-op.
func tokenizeSearch(term string) []SearchGroup {
	var groups []SearchGroup
	for _, part := range strings.Split(term, orSeparator) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		tokens := meaningfulTokens(part)
		if len(tokens) < 2 {
			literal := strings.Trim(part, `"`)
			if literal == "" {
				continue
			}
			tokens = []string{literal}
		}
		groups = append(groups, SearchGroup{Tokens: tokens})
	}
	if len(groups) == 0 {
		// A term made only of separators or whitespace must still produce a
		// condition; an empty group list would drop the search filter.
		if literal := strings.Trim(strings.TrimSpace(term), `"`); literal != "" {
			groups = append(groups, SearchGroup{Tokens: []string{literal}})
		}
	}
	return groups
}

// meaningfulTokens extracts quoted phrases and bare words from one group and
// filters out the noise.
func meaningfulTokens(part string) []string {
	var tokens []string
	for _, raw := range splitQuoted(part) {
		tok := strings.TrimSpace(raw)
		if tok == "" {
			continue
		}
		if _, stop := stopWords[strings.ToLower(tok)]; stop {
			continue
		}
		if len(tok) == 1 && !isWordRune(rune(tok[0])) {
			continue
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

// splitQuoted splits on whitespace while keeping double-quoted phrases as
// single tokens (quotes removed).
func splitQuoted(s string) []string {
	var (
		out     []string
		current strings.Builder
		quoted  bool
	)
	flush := func() {
		if current.Len() > 0 {
			out = append(out, current.String())
			current.Reset()
		}
	}
	for _, r := range s {
		switch {
		case r == '"':
			if quoted {
				flush()
			}
			quoted = !quoted
		case !quoted && (r == ' ' || r == '\t'):
			flush()
		default:
			current.WriteRune(r)
		}
	}
	flush()
	return out
}

func isWordRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
		return true
	}
	return false
}
