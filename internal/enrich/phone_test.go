package enrich

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/vcard-normalizer/internal/model"
)

func TestLibPhoneFormatter_GBMobile(t *testing.T) {
	f := LibPhoneFormatter{}

	got, ok := f.Format("07980220220", "GB")
	assert.True(t, ok)
	assert.Equal(t, "+44 7980 220 220", got)

	got, ok = f.Format("+447980220220", "US")
	assert.True(t, ok)
	assert.Equal(t, "+44 7980 220 220", got)
}

func TestLibPhoneFormatter_International(t *testing.T) {
	got, ok := LibPhoneFormatter{}.Format("(202) 456-1111", "US")
	assert.True(t, ok)
	assert.Equal(t, "+1 202 456 1111", got)
}

func TestLibPhoneFormatter_InvalidPassesThrough(t *testing.T) {
	for _, in := range []string{"12", "not a number", ""} {
		got, ok := LibPhoneFormatter{}.Format(in, "GB")
		assert.False(t, ok, in)
		assert.Equal(t, in, got)
	}
}

// stubFormatter records the region each call used.
type stubFormatter struct {
	regions []string
}

func (s *stubFormatter) Format(number, region string) (string, bool) {
	s.regions = append(s.regions, region)
	return region + ":" + number, true
}

func TestRegionPrecedence(t *testing.T) {
	stub := &stubFormatter{}
	e := &Enricher{Formatter: stub, DefaultRegion: "GB", InferRegion: true}

	withCountry := &model.Contact{
		Phones:    []model.Phone{{Number: "1"}},
		Addresses: []model.Address{{Locality: "Nowhere"}, {Country: "Ireland"}},
	}
	withoutCountry := &model.Contact{Phones: []model.Phone{{Number: "2"}}}

	stats := e.NormalizePhones([]*model.Contact{withCountry, withoutCountry})

	assert.Equal(t, []string{"IE", "GB"}, stub.regions)
	assert.Equal(t, 1, stats.FallbackRegion)
	assert.Equal(t, 2, stats.Contacts)

	e.InferRegion = false
	stub.regions = nil
	e.NormalizeContact(&model.Contact{
		Phones:    []model.Phone{{Number: "3"}},
		Addresses: []model.Address{{Country: "FR"}},
	})
	assert.Equal(t, []string{"GB"}, stub.regions)
}

func TestNormalizeContact_SingleAuditEntry(t *testing.T) {
	e := New("gb", true)
	c := &model.Contact{Phones: []model.Phone{
		{Number: "07980220220", Type: "CELL"},
		{Number: "+447980220221"},
		{Number: "12"},
	}}

	n, fallback := e.NormalizeContact(c)

	assert.Equal(t, 2, n)
	assert.True(t, fallback)
	require.Len(t, c.Changes, 1)
	assert.True(t, strings.HasPrefix(c.Changes[0], "Phone(s) reformatted: "))
	assert.Contains(t, c.Changes[0], "'07980220220' → '+44 7980 220 220'")
	assert.Contains(t, c.PhoneNumbers(), "+44 7980 220 220")
	assert.Contains(t, c.PhoneNumbers(), "12")
}

func TestNormalizeContact_DedupesAfterFormatting(t *testing.T) {
	c := &model.Contact{Phones: []model.Phone{
		{Number: "07980220220", Type: "CELL"},
		{Number: "+447980220220"},
	}}

	New("GB", true).NormalizeContact(c)

	assert.Equal(t, []model.Phone{{Number: "+44 7980 220 220", Type: "CELL"}}, c.Phones)
}

func TestNormalizeContact_NoChangeNoEntry(t *testing.T) {
	c := &model.Contact{Phones: []model.Phone{{Number: "+44 7980 220 220"}}}
	n, _ := New("GB", true).NormalizeContact(c)
	assert.Zero(t, n)
	assert.Empty(t, c.Changes)
}

func TestRegionForCountry(t *testing.T) {
	assert.Equal(t, "GB", RegionForCountry("UK"))
	assert.Equal(t, "GB", RegionForCountry(" united kingdom "))
	assert.Equal(t, "US", RegionForCountry("USA"))
	assert.Equal(t, "DE", RegionForCountry("de"))
	assert.Equal(t, "", RegionForCountry("ZZ"))
	assert.Equal(t, "", RegionForCountry("Atlantis"))
	assert.Equal(t, "", RegionForCountry(""))
}

func TestInferRegion(t *testing.T) {
	c := &model.Contact{Addresses: []model.Address{{Country: "Atlantis"}, {Country: "Scotland"}}}
	assert.Equal(t, "GB", InferRegion(c))
	assert.Equal(t, "", InferRegion(&model.Contact{}))
}
