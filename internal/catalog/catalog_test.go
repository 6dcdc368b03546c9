package catalog

import (
	"context"
	"testing"
)

func TestEmbeddedStoreLoadsCatalog(t *testing.T) {
	store, err := NewEmbeddedStore()
	if err != nil {
		t.Fatalf("NewEmbeddedStore() error = %v", err)
	}
	defer store.Close()

	records, err := store.Records(context.Background())
	if err != nil {
		t.Fatalf("Records() error = %v", err)
	}
	if len(records) < 2 {
		t.Fatalf("embedded catalog has %d records, want at least 2", len(records))
	}

	seen := make(map[string]bool, len(records))
	for _, r := range records {
		if r.ID == "" || r.Name == "" {
			t.Fatalf("record missing id or name: %+v", r)
		}
		if seen[r.ID] {
			t.Fatalf("duplicate record id %q", r.ID)
		}
		seen[r.ID] = true
	}
}

func TestEmbeddedStoreRejectsEmptyCatalog(t *testing.T) {
	if _, err := newEmbeddedStore([]byte(`{"medicines": []}`)); err != ErrEmptyCatalog {
		t.Fatalf("error = %v, want %v", err, ErrEmptyCatalog)
	}
}

func TestRecordsAreCopies(t *testing.T) {
	store, err := NewEmbeddedStore()
	if err != nil {
		t.Fatalf("NewEmbeddedStore() error = %v", err)
	}

	first, _ := store.Records(context.Background())
	first[0].Attributes["box_primary_color"] = "tampered"

	second, _ := store.Records(context.Background())
	if second[0].Attributes["box_primary_color"] == "tampered" {
		t.Fatalf("mutating a returned record leaked into the store")
	}
}

func TestValueFallsBackToDosageForm(t *testing.T) {
	r := MedicineRecord{
		DosageForm: "tablet",
		Attributes: map[string]string{"box_primary_color": "red"},
	}

	if v, ok := r.Value("box_primary_color"); !ok || v != "red" {
		t.Fatalf("Value(box_primary_color) = %q, %v", v, ok)
	}
	if v, ok := r.Value("dosage_form"); !ok || v != "tablet" {
		t.Fatalf("Value(dosage_form) = %q, %v", v, ok)
	}
	if _, ok := r.Value("tablet_shape"); ok {
		t.Fatalf("Value(tablet_shape) should be absent")
	}
}

func TestSpecsOrderIsStable(t *testing.T) {
	a := Specs()
	b := Specs()
	if len(a) == 0 {
		t.Fatalf("Specs() returned no attributes")
	}
	for i := range a {
		if a[i].Name != b[i].Name {
			t.Fatalf("spec order differs at %d: %q vs %q", i, a[i].Name, b[i].Name)
		}
	}
	if a[0].Name != "dosage_form" {
		t.Fatalf("first declared attribute = %q, want dosage_form", a[0].Name)
	}
}
