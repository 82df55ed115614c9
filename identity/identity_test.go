package identity

import (
	"strings"
	"testing"
)

func TestCanonicalURL_StripsQueryAndFragment(t *testing.T) {
	got, err := CanonicalURL("https://re.kufar.by/vi/minsk/snyat/kvartiru/123?rank=5&utm_source=feed#gallery")
	if err != nil {
		t.Fatalf("canonicalize failed: %v", err)
	}
	if got != "https://re.kufar.by/vi/minsk/snyat/kvartiru/123" {
		t.Fatalf("unexpected canonical URL %s", got)
	}
}

func TestCanonicalURL_LowercasesSchemeAndHost(t *testing.T) {
	got, err := CanonicalURL("HTTPS://R.Onliner.BY/ak/apartments/99")
	if err != nil {
		t.Fatalf("canonicalize failed: %v", err)
	}
	if got != "https://r.onliner.by/ak/apartments/99" {
		t.Fatalf("unexpected canonical URL %s", got)
	}
}

func TestCanonicalURL_TrimsTrailingSlash(t *testing.T) {
	a, err := CanonicalURL("https://domovita.by/minsk/flats/rent/123/")
	if err != nil {
		t.Fatalf("canonicalize failed: %v", err)
	}
	b, err := CanonicalURL("https://domovita.by/minsk/flats/rent/123")
	if err != nil {
		t.Fatalf("canonicalize failed: %v", err)
	}
	if a != b {
		t.Fatalf("trailing slash should not change identity: %s vs %s", a, b)
	}
}

func TestCanonicalURL_RejectsRelative(t *testing.T) {
	if _, err := CanonicalURL("/ak/apartments/99"); err == nil {
		t.Fatalf("expected error for relative URL")
	}
	if _, err := CanonicalURL(""); err == nil {
		t.Fatalf("expected error for empty URL")
	}
}

func TestListingID_StableAndDistinct(t *testing.T) {
	a := ListingID("https://re.kufar.by/vi/123")
	b := ListingID("https://re.kufar.by/vi/123")
	c := ListingID("https://re.kufar.by/vi/124")

	if a != b {
		t.Fatalf("same URL must produce same id: %s vs %s", a, b)
	}
	if a == c {
		t.Fatalf("different URLs must produce different ids")
	}
	if len(a) != 32 {
		t.Fatalf("expected 32 hex chars, got %d (%s)", len(a), a)
	}
	if strings.ToLower(a) != a {
		t.Fatalf("expected lowercase hex id, got %s", a)
	}
}

func TestListingID_TrackerVariantsCollapse(t *testing.T) {
	u1, _ := CanonicalURL("https://re.kufar.by/vi/123?utm_campaign=a")
	u2, _ := CanonicalURL("https://re.kufar.by/vi/123?utm_campaign=b#top")
	if ListingID(u1) != ListingID(u2) {
		t.Fatalf("tracker variants must share an id")
	}
}
