package query

import (
	"fmt"
	"strconv"
	"time"

	"github.com/oakfield/servicelog/internal/model"
)

// legacyAliases renames older filter-key spellings to canonical ones before
// compilation. Applied verbatim; canonical keys win on collision.
var legacyAliases = map[string]string{
	"student":     "owner",
	"student_id":  "owner",
	"date":        "date_created",
	"created":     "date_created",
	"modified":    "date_modified",
	"search_term": "search",
	"exclude_ids": "exclude",
	"task":        "parent",
	"fields":      "projection",
}

// coreDateColumns maps date filter keys to first-class timestamp columns.
var coreDateColumns = map[string]string{
	"date_created":  "created_at",
	"date_modified": "updated_at",
}

// metaDateKeys maps date filter keys to metadata keys holding epoch values.
var metaDateKeys = map[string]string{
	"activity_date": "_activity_date",
}

// internalMetaKeys maps filter keys to the internal metadata key backing a
// core prop's own storage.
var internalMetaKeys = map[string]string{
	"attachment_id": "_attachment_id",
	"image_id":      "_image_id",
	"external_code": "_external_code",
	"subtype":       "_subtype",
	"cost":          "_cost",
	"guest_email":   "_guest_email",
	"duties":        "_duties",
}

// termKinds maps array-valued custom-meta filter keys to term-table kinds.
var termKinds = map[string]string{
	"years":    "year",
	"houses":   "house",
	"category": "category",
	"tag":      "tag",
}

// Wildcard compiles an internal-meta filter into a compound
// "exists AND not empty" condition.
const Wildcard = "*"

// Compile translates a filter bag into a Spec. It never panics on malformed
// input; failures accumulate in Spec.Errors and the caller must then treat
// the result set as empty.
func Compile(filter model.Filter) *Spec {
	spec := &Spec{Args: map[string]any{}}

	for key, value := range filter {
		if canonical, ok := legacyAliases[key]; ok {
			if _, present := filter[canonical]; present {
				continue
			}
			key = canonical
		}
		compileOne(spec, key, value)
	}

	return spec
}

func compileOne(spec *Spec, key string, value any) {
	switch key {
	case "type":
		t, err := toRecordType(value)
		if err != nil {
			spec.addError(err)
			return
		}
		spec.Type = t

	case "status":
		vals, err := toStatusStorageValues(value)
		if err != nil {
			spec.addError(err)
			return
		}
		if len(vals) == 1 {
			spec.Fields = append(spec.Fields, FieldCond{Column: "status", Op: OpEq, Value: vals[0]})
		} else {
			spec.Fields = append(spec.Fields, FieldCond{Column: "status", Op: OpIn, Values: vals})
		}

	case "owner":
		ids, err := toInt64s(value)
		if err != nil {
			spec.addError(fmt.Errorf("owner: %w", err))
			return
		}
		if len(ids) == 1 {
			spec.Fields = append(spec.Fields, FieldCond{Column: "owner_id", Op: OpEq, Value: ids[0]})
		} else {
			spec.Fields = append(spec.Fields, FieldCond{Column: "owner_id", Op: OpIn, Values: anySlice(ids)})
		}

	case "parent":
		id, err := toInt64(value)
		if err != nil {
			spec.addError(fmt.Errorf("parent: %w", err))
			return
		}
		spec.ParentID = id

	case "exclude":
		ids, err := toInt64s(value)
		if err != nil {
			spec.addError(fmt.Errorf("exclude: %w", err))
			return
		}
		spec.ExcludeIDs = ids

	case "limit":
		n, err := toInt64(value)
		if err != nil {
			spec.addError(fmt.Errorf("limit: %w", err))
			return
		}
		spec.Limit = int(n)

	case "projection":
		s, ok := value.(string)
		if !ok {
			spec.addError(fmt.Errorf("projection: expected string, got %T", value))
			return
		}
		spec.Projection = s

	case "identity":
		ids, ok := value.([]model.Identity)
		if !ok {
			spec.addError(fmt.Errorf("identity: expected []model.Identity, got %T", value))
			return
		}
		cond, err := compileIdentities(ids)
		if err != nil {
			spec.addError(err)
			return
		}
		spec.Identity = cond
		if cond.MatchNone {
			spec.MatchNone = true
		}

	case "search":
		s, ok := value.(string)
		if !ok {
			spec.addError(fmt.Errorf("search: expected string, got %T", value))
			return
		}
		spec.Search = tokenizeSearch(s)
		if len(spec.Search) == 0 {
			// A search term that tokenizes to nothing matches no records;
			// dropping the condition would degrade to an unfiltered query.
			spec.MatchNone = true
		}

	default:
		compileKeyed(spec, key, value)
	}
}

// compileKeyed handles date keys, internal-meta keys, array-meta keys, and
// the unknown-key passthrough.
func compileKeyed(spec *Spec, key string, value any) {
	if column, ok := coreDateColumns[key]; ok {
		fc, err := compileDate(column, value)
		if err != nil {
			spec.addError(fmt.Errorf("%s: %w", key, err))
			return
		}
		spec.Fields = append(spec.Fields, fc)
		return
	}

	if metaKey, ok := metaDateKeys[key]; ok {
		fc, err := compileDate("", value)
		if err != nil {
			spec.addError(fmt.Errorf("%s: %w", key, err))
			return
		}
		spec.Meta = append(spec.Meta, metaDateConds(metaKey, fc)...)
		return
	}

	if metaKey, ok := internalMetaKeys[key]; ok {
		spec.Meta = append(spec.Meta, compileInternalMeta(metaKey, value)...)
		return
	}

	if kind, ok := termKinds[key]; ok {
		vals, err := toStringList(value)
		if err != nil {
			spec.addError(fmt.Errorf("%s: %w", key, err))
			return
		}
		spec.Terms = append(spec.Terms, TermCond{Kind: kind, Values: vals})
		return
	}

	// Unknown keys pass through as backend-specific arguments.
	spec.Args[key] = value
}

// compileDate accepts either a compiled expression string or a time.Time
// (absolute instant, second precision, exact match).
func compileDate(column string, value any) (FieldCond, error) {
	switch v := value.(type) {
	case time.Time:
		return FieldCond{Column: column, Op: OpEq, Value: v.Truncate(time.Second)}, nil
	case string:
		return parseDateRange(column, v)
	case int64:
		return FieldCond{Column: column, Op: OpEq, Value: time.Unix(v, 0).UTC()}, nil
	case int:
		return FieldCond{Column: column, Op: OpEq, Value: time.Unix(int64(v), 0).UTC()}, nil
	default:
		return FieldCond{}, fmt.Errorf("unsupported date value %T", value)
	}
}

// compileInternalMeta compiles an internal-meta-backed key: exact equality,
// IN for a list, or the wildcard's compound exists + not-empty pair.
func compileInternalMeta(metaKey string, value any) []MetaCond {
	if s, ok := value.(string); ok && s == Wildcard {
		return []MetaCond{
			{Key: metaKey, Op: OpExists},
			{Key: metaKey, Op: OpNotEq, Value: ""},
		}
	}
	if vals, err := toStringList(value); err == nil && len(vals) > 1 {
		return []MetaCond{{Key: metaKey, Op: OpIn, Values: anyStrings(vals)}}
	}
	return []MetaCond{{Key: metaKey, Op: OpEq, Value: toScalarString(value)}}
}

// compileIdentities builds the ownership OR-matcher. The empty list compiles
// to a sentinel match-nothing condition, never an unrestricted match.
func compileIdentities(ids []model.Identity) (*IdentityCond, error) {
	if err := model.ValidateIdentities(ids); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return &IdentityCond{MatchNone: true}, nil
	}
	return &IdentityCond{Tuples: ids}, nil
}

// Value coercion helpers.

func toRecordType(value any) (model.RecordType, error) {
	switch v := value.(type) {
	case model.RecordType:
		return v, nil
	case string:
		t := model.RecordType(v)
		if !t.IsValid() {
			return "", fmt.Errorf("type: unknown record type %q", v)
		}
		return t, nil
	default:
		return "", fmt.Errorf("type: expected string, got %T", value)
	}
}

func toStatusStorageValues(value any) ([]any, error) {
	statuses, err := toStringList(value)
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	out := make([]any, 0, len(statuses))
	for _, raw := range statuses {
		s := model.Status(raw)
		if !s.IsValid() {
			return nil, fmt.Errorf("status: unknown status %q", raw)
		}
		out = append(out, s.StorageValue())
	}
	return out, nil
}

func toInt64(value any) (int64, error) {
	switch v := value.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("expected integer, got %T", value)
	}
}

func toInt64s(value any) ([]int64, error) {
	switch v := value.(type) {
	case []int64:
		return v, nil
	case []int:
		out := make([]int64, len(v))
		for i, n := range v {
			out[i] = int64(n)
		}
		return out, nil
	default:
		n, err := toInt64(value)
		if err != nil {
			return nil, err
		}
		return []int64{n}, nil
	}
}

func toInt64List(value any) ([]any, error) {
	ids, err := toInt64s(value)
	if err != nil {
		return nil, err
	}
	return anySlice(ids), nil
}

func toStringList(value any) ([]string, error) {
	switch v := value.(type) {
	case string:
		return []string{v}, nil
	case []string:
		return v, nil
	case model.Status:
		return []string{v.String()}, nil
	case []model.Status:
		out := make([]string, len(v))
		for i, s := range v {
			out[i] = s.String()
		}
		return out, nil
	case int, int64:
		n, _ := toInt64(v)
		return []string{strconv.FormatInt(n, 10)}, nil
	case []int:
		out := make([]string, len(v))
		for i, n := range v {
			out[i] = strconv.Itoa(n)
		}
		return out, nil
	case []int64:
		out := make([]string, len(v))
		for i, n := range v {
			out[i] = strconv.FormatInt(n, 10)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected string or list, got %T", value)
	}
}

func toScalarString(value any) string {
	if vals, err := toStringList(value); err == nil && len(vals) > 0 {
		return vals[0]
	}
	return fmt.Sprintf("%v", value)
}

func anySlice(ids []int64) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}

func anyStrings(vals []string) []any {
	out := make([]any, len(vals))
	for i, v := range vals {
		out[i] = v
	}
	return out
}
