package locations

import "testing"

func TestResolveExactName(t *testing.T) {
	cat := DefaultCatalog(0.88)

	match, ok := cat.Resolve("Chennai")
	if !ok {
		t.Fatal("expected Chennai to resolve")
	}
	if !match.Exact {
		t.Fatal("expected an exact match")
	}
	if match.Location.ID != "loc-chennai" {
		t.Fatalf("expected loc-chennai, got %s", match.Location.ID)
	}
}

func TestResolveIsCaseAndSpaceInsensitive(t *testing.T) {
	cat := DefaultCatalog(0.88)

	match, ok := cat.Resolve("  cheNNai ")
	if !ok || !match.Exact {
		t.Fatalf("expected exact match for folded name, got ok=%v exact=%v", ok, match.Exact)
	}
}

func TestResolveAlias(t *testing.T) {
	cat := DefaultCatalog(0.88)

	match, ok := cat.Resolve("Bengaluru")
	if !ok {
		t.Fatal("expected alias to resolve")
	}
	if match.Location.ID != "loc-bangalore" {
		t.Fatalf("expected loc-bangalore, got %s", match.Location.ID)
	}
}

func TestResolveTranslatedName(t *testing.T) {
	cat := DefaultCatalog(0.88)

	match, ok := cat.Resolve("வேலூர்")
	if !ok {
		t.Fatal("expected Tamil name to resolve")
	}
	if match.Location.ID != "loc-vellore" {
		t.Fatalf("expected loc-vellore, got %s", match.Location.ID)
	}
}

func TestResolveFuzzyOCRNoise(t *testing.T) {
	cat := DefaultCatalog(0.88)

	match, ok := cat.Resolve("Chennal") // OCR i/l confusion
	if !ok {
		t.Fatal("expected fuzzy match for OCR noise")
	}
	if match.Exact {
		t.Fatal("expected a fuzzy, not exact, match")
	}
	if match.Location.ID != "loc-chennai" {
		t.Fatalf("expected loc-chennai, got %s", match.Location.ID)
	}
	if match.Score >= 1.0 || match.Score < 0.88 {
		t.Fatalf("fuzzy score out of range: %f", match.Score)
	}
}

func TestResolveUnknownName(t *testing.T) {
	cat := DefaultCatalog(0.88)

	if _, ok := cat.Resolve("Xyzzyville"); ok {
		t.Fatal("expected unknown name to fail resolution")
	}
	if _, ok := cat.Resolve("   "); ok {
		t.Fatal("expected blank name to fail resolution")
	}
}
