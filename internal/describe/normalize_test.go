package describe

import (
	"reflect"
	"testing"
)

// TestVariantsPrecedence verifies the fixed variant order: lowercase,
// underscore, hyphen, non-alphanumeric collapse.
func TestVariantsPrecedence(t *testing.T) {
	got := Variants("ALD Device")
	want := []string{"ald device", "ald_device", "ald-device"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Variants(%q) = %v, want %v", "ALD Device", got, want)
	}
}

func TestVariantsNonAlnum(t *testing.T) {
	got := Variants("Dry-Etching (B)")
	// Whitespace collapse keeps the punctuation; the final variant
	// flattens every non-alphanumeric run.
	want := []string{"dry-etching (b)", "dry-etching_(b)", "dry-etching-(b)", "dry_etching_b"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Variants = %v, want %v", got, want)
	}
}

func TestVariantsEmpty(t *testing.T) {
	if got := Variants("   "); got != nil {
		t.Errorf("Variants(blank) = %v, want nil", got)
	}
}

// TestMappingResolveUnderscoreVariant: mapping {"ald_device": path} hit by
// the box label "ALD Device" through the underscore variant.
func TestMappingResolveUnderscoreVariant(t *testing.T) {
	m := NewMapping(map[string]string{"ald_device": "desc/a.html"}, nil)

	key, path, ok := m.Resolve([]string{"ALD Device"})
	if !ok {
		t.Fatal("Resolve missed, want hit via underscore variant")
	}
	if key != "ald_device" || path != "desc/a.html" {
		t.Errorf("Resolve = (%q, %q), want (ald_device, desc/a.html)", key, path)
	}
}

// TestMappingCandidateOrder verifies the first candidate that hits wins
// over later candidates.
func TestMappingCandidateOrder(t *testing.T) {
	m := NewMapping(map[string]string{
		"sputter": "desc/sputter.html",
		"furnace": "desc/furnace.html",
	}, nil)

	_, path, ok := m.Resolve([]string{"Furnace", "Sputter"})
	if !ok || path != "desc/furnace.html" {
		t.Errorf("Resolve = (%q, %v), want first candidate's path", path, ok)
	}
}

func TestMappingSynonyms(t *testing.T) {
	m := NewMapping(
		map[string]string{"chem_cabinet": "desc/chem.html"},
		map[string][]string{"chem_cabinet": {"Chemical Cabinet"}},
	)

	_, path, ok := m.Resolve([]string{"Chemical Cabinet"})
	if !ok || path != "desc/chem.html" {
		t.Errorf("synonym lookup = (%q, %v), want desc/chem.html", path, ok)
	}
}

func TestMappingMiss(t *testing.T) {
	m := NewMapping(map[string]string{"ald_device": "desc/a.html"}, nil)
	if _, _, ok := m.Resolve([]string{"Unknown Tool"}); ok {
		t.Error("Resolve hit for unmapped name")
	}
	if _, _, ok := m.Resolve(nil); ok {
		t.Error("Resolve hit for no candidates")
	}
}
