package postgres

import (
	"errors"
	"fmt"
	"strings"

	"github.com/oakfield/servicelog/internal/query"
)

// searchMetaKey is the external-code metadata key included in free-text
// search alongside the core text columns.
const searchMetaKey = "_external_code"

// whereClause translates a compiled query.Spec into a SQL WHERE fragment and
// its positional args. A spec carrying compiler errors refuses to build: the
// caller must treat the result set as empty rather than run an unfiltered or
// wrongly filtered query.
func whereClause(spec *query.Spec) (string, []any, error) {
	if !spec.Ok() {
		return "", nil, errors.Join(spec.Errors...)
	}

	var (
		clauses []string
		args    []any
		argIdx  int
	)
	nextArg := func(v any) string {
		argIdx++
		args = append(args, v)
		return fmt.Sprintf("$%d", argIdx)
	}

	if spec.MatchNone {
		return " WHERE 1 = 0", nil, nil
	}

	if spec.Type != "" {
		clauses = append(clauses, "record_type = "+nextArg(string(spec.Type)))
	}
	if spec.ParentID > 0 {
		clauses = append(clauses, "parent_id = "+nextArg(spec.ParentID))
	}
	if len(spec.ExcludeIDs) > 0 {
		placeholders := make([]string, len(spec.ExcludeIDs))
		for i, id := range spec.ExcludeIDs {
			placeholders[i] = nextArg(id)
		}
		clauses = append(clauses, "id NOT IN ("+strings.Join(placeholders, ", ")+")")
	}

	for _, fc := range spec.Fields {
		switch fc.Op {
		case query.OpIn:
			placeholders := make([]string, len(fc.Values))
			for i, v := range fc.Values {
				placeholders[i] = nextArg(v)
			}
			clauses = append(clauses, fc.Column+" IN ("+strings.Join(placeholders, ", ")+")")
		case query.OpBetween:
			clauses = append(clauses, fc.Column+" BETWEEN "+nextArg(fc.From)+" AND "+nextArg(fc.To))
		case query.OpEq, query.OpNotEq, query.OpGt, query.OpGte, query.OpLt, query.OpLte:
			clauses = append(clauses, fc.Column+" "+sqlOp(fc.Op)+" "+nextArg(fc.Value))
		default:
			return "", nil, fmt.Errorf("field condition on %s: unsupported op %q", fc.Column, fc.Op)
		}
	}

	for _, mc := range spec.Meta {
		clause, err := metaClause(mc, nextArg)
		if err != nil {
			return "", nil, err
		}
		clauses = append(clauses, clause)
	}

	for _, tc := range spec.Terms {
		if len(tc.Values) == 0 {
			continue
		}
		placeholders := make([]string, len(tc.Values))
		kp := nextArg(tc.Kind)
		for i, v := range tc.Values {
			placeholders[i] = nextArg(v)
		}
		clauses = append(clauses, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM record_terms t WHERE t.record_id = records.id AND t.kind = %s AND t.value IN (%s))",
			kp, strings.Join(placeholders, ", ")))
	}

	if len(spec.Search) > 0 {
		clauses = append(clauses, searchClause(spec.Search, nextArg))
	}

	if spec.Identity != nil && !spec.Identity.MatchNone {
		clauses = append(clauses, identityClause(spec.Identity, nextArg))
	}

	if len(clauses) == 0 {
		return "", args, nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

func sqlOp(op query.Op) string {
	if op == query.OpNotEq {
		return "<>"
	}
	return string(op)
}

// metaClause builds one EXISTS subquery against record_meta. Numeric
// conditions cast the stored value to bigint (meta-stored timestamps).
func metaClause(mc query.MetaCond, nextArg func(any) string) (string, error) {
	kp := nextArg(mc.Key)
	prefix := "EXISTS (SELECT 1 FROM record_meta m WHERE m.record_id = records.id AND m.key = " + kp

	switch mc.Op {
	case query.OpExists:
		return prefix + ")", nil
	case query.OpNotExists:
		return "NOT " + prefix + ")", nil
	case query.OpIn:
		placeholders := make([]string, len(mc.Values))
		for i, v := range mc.Values {
			placeholders[i] = nextArg(v)
		}
		return prefix + " AND m.value IN (" + strings.Join(placeholders, ", ") + "))", nil
	case query.OpEq, query.OpNotEq, query.OpGt, query.OpGte, query.OpLt, query.OpLte:
		column := "m.value"
		if mc.Numeric {
			column = "(m.value)::bigint"
		}
		return fmt.Sprintf("%s AND %s %s %s)", prefix, column, sqlOp(mc.Op), nextArg(mc.Value)), nil
	default:
		return "", fmt.Errorf("meta condition on %s: unsupported op %q", mc.Key, mc.Op)
	}
}

// searchClause ORs the tokenized groups; within a group each token AND-combines
// as a partial match over title, excerpt, body, and the external-code meta.
func searchClause(groups []query.SearchGroup, nextArg func(any) string) string {
	groupClauses := make([]string, 0, len(groups))
	for _, g := range groups {
		tokenClauses := make([]string, 0, len(g.Tokens))
		for _, tok := range g.Tokens {
			p := nextArg(tok)
			tokenClauses = append(tokenClauses, fmt.Sprintf(
				"(title ILIKE '%%' || %[1]s || '%%' OR excerpt ILIKE '%%' || %[1]s || '%%' OR body ILIKE '%%' || %[1]s || '%%' "+
					"OR EXISTS (SELECT 1 FROM record_meta m WHERE m.record_id = records.id AND m.key = '%[2]s' AND m.value ILIKE '%%' || %[1]s || '%%'))",
				p, searchMetaKey))
		}
		groupClauses = append(groupClauses, "("+strings.Join(tokenClauses, " AND ")+")")
	}
	return "(" + strings.Join(groupClauses, " OR ") + ")"
}

// identityClause matches ownership by the owner-id column or the guest-email
// metadata across all tuples.
func identityClause(ic *query.IdentityCond, nextArg func(any) string) string {
	var idPlaceholders, emailPlaceholders []string
	for _, t := range ic.Tuples {
		if t.OwnerID > 0 {
			idPlaceholders = append(idPlaceholders, nextArg(t.OwnerID))
		}
		if t.Email != "" {
			emailPlaceholders = append(emailPlaceholders, nextArg(t.Email))
		}
	}

	var alternatives []string
	if len(idPlaceholders) > 0 {
		alternatives = append(alternatives, "owner_id IN ("+strings.Join(idPlaceholders, ", ")+")")
	}
	if len(emailPlaceholders) > 0 {
		alternatives = append(alternatives,
			"EXISTS (SELECT 1 FROM record_meta m WHERE m.record_id = records.id AND m.key = '_guest_email' AND m.value IN ("+
				strings.Join(emailPlaceholders, ", ")+"))")
	}
	if len(alternatives) == 0 {
		return "1 = 0"
	}
	return "(" + strings.Join(alternatives, " OR ") + ")"
}
