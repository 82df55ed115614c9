package filters

import (
	"testing"

	"github.com/Pererenchina/home-monitor-bot/models"
)

func intp(v int) *int                              { return &v }
func floatp(v float64) *float64                    { return &v }
func landlordp(v models.Landlord) *models.Landlord { return &v }

func sampleListing() models.Listing {
	return models.Listing{
		ID:       "abc",
		Source:   "Kufar",
		Address:  "Минск, Немига 5",
		Rooms:    intp(2),
		PriceUSD: floatp(450),
		Landlord: models.LandlordOwner,
		URL:      "https://re.kufar.by/vi/123",
	}
}

func TestMatches_EmptySpecMatchesEverything(t *testing.T) {
	if !Matches(Spec{}, sampleListing()) {
		t.Fatalf("empty spec must match any listing")
	}
	if !Matches(Spec{}, models.Listing{ID: "x", Address: models.AddressUnknown}) {
		t.Fatalf("empty spec must match a bare listing")
	}
}

func TestMatches_RoomsHard(t *testing.T) {
	spec := Spec{Rooms: intp(2)}

	if !Matches(spec, sampleListing()) {
		t.Fatalf("expected 2-room listing to match rooms=2")
	}

	l := sampleListing()
	l.Rooms = intp(3)
	if Matches(spec, l) {
		t.Fatalf("expected 3-room listing to fail rooms=2")
	}

	// Hard predicate: unknown room count fails.
	l.Rooms = nil
	if Matches(spec, l) {
		t.Fatalf("expected listing without room count to fail rooms filter")
	}
}

func TestMatches_PriceSoft(t *testing.T) {
	spec := Spec{MinPriceUSD: floatp(300), MaxPriceUSD: floatp(500)}

	if !Matches(spec, sampleListing()) {
		t.Fatalf("expected 450 USD to pass 300..500")
	}

	l := sampleListing()
	l.PriceUSD = floatp(600)
	if Matches(spec, l) {
		t.Fatalf("expected 600 USD to fail max 500")
	}

	l.PriceUSD = floatp(200)
	if Matches(spec, l) {
		t.Fatalf("expected 200 USD to fail min 300")
	}

	// Soft predicate: missing price passes both bounds.
	l.PriceUSD = nil
	if !Matches(spec, l) {
		t.Fatalf("expected listing without USD price to pass price filters")
	}
}

func TestMatches_LandlordHard(t *testing.T) {
	spec := Spec{Landlord: landlordp(models.LandlordOwner)}

	if !Matches(spec, sampleListing()) {
		t.Fatalf("expected owner listing to match owner filter")
	}

	l := sampleListing()
	l.Landlord = models.LandlordAgency
	if Matches(spec, l) {
		t.Fatalf("expected agency listing to fail owner filter")
	}
}

func TestMatches_SourcesAllowList(t *testing.T) {
	spec := Spec{Sources: []string{"kufar", "onliner"}}

	if !Matches(spec, sampleListing()) {
		t.Fatalf("expected Kufar listing to match allow-list (case-insensitive)")
	}

	l := sampleListing()
	l.Source = "Realt.by"
	if Matches(spec, l) {
		t.Fatalf("expected Realt listing to fail allow-list")
	}
}

func TestMatches_AddressCityAndKeywords(t *testing.T) {
	spec := Spec{City: "минск", AddressKeywords: []string{"немига", "сурганова"}}

	if !Matches(spec, sampleListing()) {
		t.Fatalf("expected address with city and keyword to match")
	}

	l := sampleListing()
	l.Address = "Минск, Тимирязева 67"
	if Matches(spec, l) {
		t.Fatalf("expected address without any keyword to fail")
	}

	l.Address = "Брест, Немига 5"
	if Matches(spec, l) {
		t.Fatalf("expected wrong city to fail")
	}
}

func TestMatches_UnknownAddressSkipsAddressPredicate(t *testing.T) {
	spec := Spec{City: "минск", AddressKeywords: []string{"немига"}}

	l := sampleListing()
	l.Address = models.AddressUnknown
	if !Matches(spec, l) {
		t.Fatalf("expected unknown address to skip the address constraint")
	}

	l.Address = ""
	if !Matches(spec, l) {
		t.Fatalf("expected empty address to skip the address constraint")
	}
}

func TestMatches_BothShapesInOneSpec(t *testing.T) {
	spec := Spec{
		Rooms:           intp(2),
		Sources:         []string{"kufar"},
		City:            "минск",
		AddressKeywords: []string{"немига"},
	}

	if !Matches(spec, sampleListing()) {
		t.Fatalf("expected listing to satisfy combined spec")
	}

	l := sampleListing()
	l.Source = "Onliner"
	if Matches(spec, l) {
		t.Fatalf("expected source mismatch to fail combined spec")
	}
}
