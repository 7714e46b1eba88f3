package persona

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()

	write := func(rel, content string) {
		t.Helper()
		path := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0640); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}

	write("base.json", `{"name":"Sophia","tone":"friendly","greeting":"Hi!"}`)
	write("niches/medspa.json", `{"tone":"polished","services":["botox","facials"]}`)
	write("packs/booking.json", `{"booking_enabled":true}`)
	write("niches/broken.json", `[1,2,3]`)

	return NewStore(dir, nil)
}

func str(t *testing.T, raw json.RawMessage) string {
	t.Helper()
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		t.Fatalf("unmarshal %q: %v", raw, err)
	}
	return s
}

func TestDocument_BaseOnly(t *testing.T) {
	s := testStore(t)
	doc := s.Document("", "")

	if str(t, doc["name"]) != "Sophia" || str(t, doc["tone"]) != "friendly" {
		t.Errorf("unexpected base doc: %v", doc)
	}
}

func TestDocument_OverlaysShadowBase(t *testing.T) {
	s := testStore(t)
	doc := s.Document("medspa", "booking")

	if str(t, doc["tone"]) != "polished" {
		t.Errorf("niche overlay must shadow base tone, got %s", doc["tone"])
	}
	if str(t, doc["name"]) != "Sophia" {
		t.Errorf("base keys must survive, got %s", doc["name"])
	}
	if _, ok := doc["services"]; !ok {
		t.Error("expected niche-only key present")
	}
	if string(doc["booking_enabled"]) != "true" {
		t.Errorf("expected pack key, got %s", doc["booking_enabled"])
	}
}

func TestDocument_MissingOverlayOmitted(t *testing.T) {
	s := testStore(t)
	doc := s.Document("nonexistent", "")

	if str(t, doc["tone"]) != "friendly" {
		t.Errorf("missing overlay must leave base intact, got %s", doc["tone"])
	}
}

func TestDocument_InvalidOverlayNameIgnored(t *testing.T) {
	s := testStore(t)
	for _, name := range []string{"../secrets", "UPPER", "a b", "-dash"} {
		doc := s.Document(name, "")
		if str(t, doc["tone"]) != "friendly" {
			t.Errorf("%q: invalid name must be ignored", name)
		}
	}
}

func TestDocument_NonObjectOverlayIgnored(t *testing.T) {
	s := testStore(t)
	doc := s.Document("broken", "")
	if str(t, doc["tone"]) != "friendly" {
		t.Errorf("non-object overlay must be ignored, got %s", doc["tone"])
	}
}

func TestDocument_MissingBaseYieldsEmpty(t *testing.T) {
	s := NewStore(t.TempDir(), nil)
	doc := s.Document("", "")
	if len(doc) != 0 {
		t.Errorf("expected empty doc, got %v", doc)
	}
}
