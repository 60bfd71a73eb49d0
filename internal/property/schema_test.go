package property

import (
	"errors"
	"testing"

	metaerrors "github.com/arkilian/catalogmeta/internal/errors"
)

func TestNewSchema_SpecificShadowsBase(t *testing.T) {
	base := []Declaration{
		StringOptional("comment", "base comment", false, "", false),
		StringOptional("package", "plugin package", true, "", true),
	}
	specific := []Declaration{
		StringReserved("comment", "table comment", false),
		StringRequired("metastore.uris", "uris", true, false),
	}

	s, err := NewSchema(base, specific)
	if err != nil {
		t.Fatalf("NewSchema: %v", err)
	}

	comment, ok := s.Lookup("comment")
	if !ok || !comment.IsReserved() {
		t.Error("specific comment declaration should shadow the base one")
	}
	if len(s.Entries()) != 3 {
		t.Errorf("got %d entries, want 3", len(s.Entries()))
	}

	names := s.Names()
	want := []string{"comment", "metastore.uris", "package"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("names = %v, want %v", names, want)
		}
	}
}

func TestNewSchema_DuplicateEntries(t *testing.T) {
	dup := []Declaration{
		StringOptional("a", "", false, "", false),
		StringOptional("a", "", false, "", false),
	}
	_, err := NewSchema(nil, dup)
	if !errors.Is(err, metaerrors.ErrDuplicatePropertyEntry) {
		t.Errorf("duplicate specific entries should fail, got %v", err)
	}
	if metaerrors.GetCategory(err) != metaerrors.ErrCategoryConfiguration {
		t.Error("duplicate entries are a configuration error")
	}
	if _, err := NewSchema(dup, nil); !errors.Is(err, metaerrors.ErrDuplicatePropertyEntry) {
		t.Errorf("duplicate base entries should fail, got %v", err)
	}
}

func TestSchema_VisibleAndEntriesCopy(t *testing.T) {
	s, err := NewSchema(nil, []Declaration{
		StringOptional("b", "", false, "", false),
		StringOptional("a", "", false, "", true),
		StringOptional("c", "", false, "", false),
	}, WithStrictUnknownKeys(true))
	if err != nil {
		t.Fatalf("NewSchema: %v", err)
	}
	if !s.Strict() {
		t.Error("strict option not applied")
	}

	visible := s.Visible()
	if len(visible) != 2 || visible[0].Name() != "b" || visible[1].Name() != "c" {
		t.Errorf("visible = %v", visible)
	}

	entries := s.Entries()
	delete(entries, "b")
	if _, ok := s.Lookup("b"); !ok {
		t.Error("mutating Entries() result must not affect the schema")
	}
}
