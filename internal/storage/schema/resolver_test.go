package schema

import "testing"

func TestTableAuthoritativeIsBare(t *testing.T) {
	r := New(ModeAuthoritative)
	if got := r.Table("tm_entries"); got != "tm_entries" {
		t.Errorf("expected bare table name, got %q", got)
	}
}

func TestTableLocalIsPrefixed(t *testing.T) {
	r := New(ModeLocal)
	if got := r.Table("tm_entries"); got != "offline_tm_entries" {
		t.Errorf("expected offline_-prefixed table name, got %q", got)
	}
}

func TestTableUnknownLogicalNamePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for unknown logical table name")
		}
	}()
	New(ModeAuthoritative).Table("not_a_real_table")
}
