package query

import (
	"testing"

	"github.com/oakfield/servicelog/internal/model"
)

func TestCompileAliases(t *testing.T) {
	spec := Compile(model.Filter{"student": 7})
	if len(spec.Fields) != 1 || spec.Fields[0].Column != "owner_id" {
		t.Fatalf("fields = %+v, want owner_id condition", spec.Fields)
	}
	if spec.Fields[0].Value != int64(7) {
		t.Errorf("value = %v", spec.Fields[0].Value)
	}
}

func TestCompileAliasCanonicalWins(t *testing.T) {
	// When both spellings are present, the canonical key wins and the alias
	// is dropped rather than producing two conditions.
	spec := Compile(model.Filter{"student": 7, "owner": 9})
	if !spec.Ok() {
		t.Fatalf("errors = %v", spec.Errors)
	}
	if len(spec.Fields) != 1 {
		t.Fatalf("fields = %+v, want exactly one owner condition", spec.Fields)
	}
	if spec.Fields[0].Value != int64(9) {
		t.Errorf("value = %v, want canonical 9", spec.Fields[0].Value)
	}
}

func TestCompileStatusStorageValues(t *testing.T) {
	spec := Compile(model.Filter{"status": "approved"})
	if len(spec.Fields) != 1 || spec.Fields[0].Value != "svc-approved" {
		t.Fatalf("fields = %+v, want prefixed storage value", spec.Fields)
	}

	spec = Compile(model.Filter{"status": []string{"approved", "pending"}})
	if len(spec.Fields) != 1 || spec.Fields[0].Op != OpIn || len(spec.Fields[0].Values) != 2 {
		t.Fatalf("fields = %+v, want IN condition", spec.Fields)
	}

	spec = Compile(model.Filter{"status": "bogus"})
	if spec.Ok() {
		t.Error("unknown status must collect an error")
	}
}

func TestCompileIdentity(t *testing.T) {
	t.Run("EmptyListMatchesNothing", func(t *testing.T) {
		spec := Compile(model.Filter{"identity": []model.Identity{}})
		if !spec.MatchNone {
			t.Error("empty identity list must compile to match-nothing, never match-all")
		}
		if !spec.Ok() {
			t.Errorf("match-nothing is not an error: %v", spec.Errors)
		}
	})

	t.Run("Tuples", func(t *testing.T) {
		spec := Compile(model.Filter{"identity": []model.Identity{
			{OwnerID: 7},
			{Email: "guest@example.com"},
		}})
		if spec.Identity == nil || len(spec.Identity.Tuples) != 2 {
			t.Fatalf("identity = %+v", spec.Identity)
		}
		if spec.MatchNone {
			t.Error("non-empty tuples must not match nothing")
		}
	})

	t.Run("InvalidTuple", func(t *testing.T) {
		spec := Compile(model.Filter{"identity": []model.Identity{{}}})
		if spec.Ok() {
			t.Error("a tuple with neither id nor email must collect an error")
		}
	})
}

func TestCompileInternalMeta(t *testing.T) {
	t.Run("Exact", func(t *testing.T) {
		spec := Compile(model.Filter{"subtype": "fundraiser"})
		if len(spec.Meta) != 1 || spec.Meta[0].Key != "_subtype" || spec.Meta[0].Op != OpEq {
			t.Fatalf("meta = %+v", spec.Meta)
		}
	})

	t.Run("Wildcard", func(t *testing.T) {
		spec := Compile(model.Filter{"attachment_id": "*"})
		if len(spec.Meta) != 2 {
			t.Fatalf("meta = %+v, want exists + not-empty pair", spec.Meta)
		}
		if spec.Meta[0].Op != OpExists || spec.Meta[1].Op != OpNotEq {
			t.Errorf("meta ops = %s, %s", spec.Meta[0].Op, spec.Meta[1].Op)
		}
	})

	t.Run("List", func(t *testing.T) {
		spec := Compile(model.Filter{"external_code": []string{"A1", "B2"}})
		if len(spec.Meta) != 1 || spec.Meta[0].Op != OpIn {
			t.Fatalf("meta = %+v", spec.Meta)
		}
	})
}

func TestCompileTerms(t *testing.T) {
	spec := Compile(model.Filter{"years": []int{7, 8}, "houses": "North"})
	if len(spec.Terms) != 2 {
		t.Fatalf("terms = %+v", spec.Terms)
	}
	kinds := map[string][]string{}
	for _, tc := range spec.Terms {
		kinds[tc.Kind] = tc.Values
	}
	if len(kinds["year"]) != 2 || kinds["year"][0] != "7" {
		t.Errorf("year terms = %v", kinds["year"])
	}
	if len(kinds["house"]) != 1 || kinds["house"][0] != "North" {
		t.Errorf("house terms = %v", kinds["house"])
	}
}

func TestCompileUnknownKeyPassthrough(t *testing.T) {
	spec := Compile(model.Filter{"page_token": "abc"})
	if !spec.Ok() {
		t.Fatalf("unknown keys are not errors: %v", spec.Errors)
	}
	if spec.Args["page_token"] != "abc" {
		t.Errorf("args = %v", spec.Args)
	}
}

func TestCompileCollectsErrorsDoesNotPanic(t *testing.T) {
	spec := Compile(model.Filter{
		"type":   42,
		"owner":  "not-a-number",
		"date":   "garbage",
		"search": "beach",
	})
	if spec.Ok() {
		t.Fatal("expected collected errors")
	}
	if len(spec.Errors) < 3 {
		t.Errorf("errors = %v, want one per bad key", spec.Errors)
	}
	// The valid key still compiled; the caller decides to discard the spec.
	if len(spec.Search) != 1 {
		t.Errorf("search = %+v", spec.Search)
	}
}

func TestCompileBlankSearchMatchesNothing(t *testing.T) {
	for _, term := range []string{"", "   ", `""`} {
		spec := Compile(model.Filter{"search": term})
		if !spec.MatchNone {
			t.Errorf("search %q: must compile to match-nothing, never unfiltered", term)
		}
	}

	// A separator-only term still carries a literal condition, not MatchNone.
	spec := Compile(model.Filter{"search": " or "})
	if spec.MatchNone || len(spec.Search) != 1 {
		t.Errorf("separator-only search = %+v matchNone=%v", spec.Search, spec.MatchNone)
	}
}

func TestCompileTypeAndProjection(t *testing.T) {
	spec := Compile(model.Filter{"type": "task", "fields": "ids", "limit": 10})
	if spec.Type != model.TypeTask {
		t.Errorf("type = %s", spec.Type)
	}
	if spec.Projection != "ids" {
		t.Errorf("projection = %q", spec.Projection)
	}
	if spec.Limit != 10 {
		t.Errorf("limit = %d", spec.Limit)
	}
}

func TestCompileExclude(t *testing.T) {
	spec := Compile(model.Filter{"exclude_ids": []int64{4, 5}})
	if len(spec.ExcludeIDs) != 2 || spec.ExcludeIDs[0] != 4 {
		t.Errorf("exclude = %v", spec.ExcludeIDs)
	}
}
