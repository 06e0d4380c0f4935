// Package enrich normalises phone numbers and addresses.
package enrich

import (
	"fmt"
	"strings"

	"github.com/nyaruka/phonenumbers"
	"go.uber.org/zap"

	"github.com/sells-group/vcard-normalizer/internal/model"
)

// PhoneFormatter parses a number against a region. It returns the canonical
// international form and true, or the input unchanged and false.
type PhoneFormatter interface {
	Format(number, region string) (string, bool)
}

// LibPhoneFormatter formats with libphonenumber metadata.
type LibPhoneFormatter struct{}

var spacing = strings.NewReplacer("-", " ", "(", "", ")", "")

// Format implements PhoneFormatter.
func (LibPhoneFormatter) Format(number, region string) (string, bool) {
	num, err := phonenumbers.Parse(number, strings.ToUpper(region))
	if err != nil {
		return number, false
	}
	if !phonenumbers.IsPossibleNumber(num) || !phonenumbers.IsValidNumber(num) {
		return number, false
	}

	// GB mobiles read as +44 7XXX XXX XXX.
	nsn := phonenumbers.GetNationalSignificantNumber(num)
	if phonenumbers.GetRegionCodeForNumber(num) == "GB" && len(nsn) == 10 && nsn[0] == '7' {
		return fmt.Sprintf("+44 %s %s %s", nsn[:4], nsn[4:7], nsn[7:]), true
	}

	out := spacing.Replace(phonenumbers.Format(num, phonenumbers.INTERNATIONAL))
	return strings.Join(strings.Fields(out), " "), true
}

// PhoneStats summarises a phone normalisation pass.
type PhoneStats struct {
	Contacts       int `json:"contacts"`
	Reformatted    int `json:"reformatted"`
	FallbackRegion int `json:"fallback_region"`
}

// Enricher normalises phone numbers using an inferred or default region.
type Enricher struct {
	Formatter     PhoneFormatter
	DefaultRegion string
	InferRegion   bool
}

// New creates an Enricher backed by libphonenumber.
func New(defaultRegion string, inferRegion bool) *Enricher {
	return &Enricher{
		Formatter:     LibPhoneFormatter{},
		DefaultRegion: strings.ToUpper(defaultRegion),
		InferRegion:   inferRegion,
	}
}

// Region resolves the region used for a contact's phones and reports
// whether it fell back to the default.
func (e *Enricher) Region(c *model.Contact) (string, bool) {
	if e.InferRegion {
		if r := InferRegion(c); r != "" {
			return r, false
		}
	}
	return e.DefaultRegion, true
}

// NormalizeContact reformats the contact's phones and records one audit
// entry when anything changed. It returns the number of changed phones and
// whether the default region was used.
func (e *Enricher) NormalizeContact(c *model.Contact) (int, bool) {
	if len(c.Phones) == 0 {
		return 0, false
	}
	region, fallback := e.Region(c)

	var changes []string
	phones := make([]model.Phone, 0, len(c.Phones))
	for _, p := range c.Phones {
		formatted, _ := e.Formatter.Format(p.Number, region)
		if formatted != p.Number {
			changes = append(changes, fmt.Sprintf("'%s' → '%s'", p.Number, formatted))
			p.Number = formatted
		}
		phones = append(phones, p)
	}
	if len(changes) == 0 {
		return 0, fallback
	}

	c.SetPhones(phones)
	c.LogChange("Phone(s) reformatted: " + strings.Join(changes, ", "))
	return len(changes), fallback
}

// NormalizePhones reformats every contact's phones.
func (e *Enricher) NormalizePhones(contacts []*model.Contact) PhoneStats {
	var stats PhoneStats
	for _, c := range contacts {
		n, fallback := e.NormalizeContact(c)
		if fallback {
			stats.FallbackRegion++
		}
		if n > 0 {
			stats.Contacts++
			stats.Reformatted += n
		}
	}
	zap.L().Info("enrich: normalised phones",
		zap.Int("contacts", stats.Contacts),
		zap.Int("reformatted", stats.Reformatted),
		zap.Int("fallback_region", stats.FallbackRegion),
		zap.String("default_region", e.DefaultRegion),
	)
	return stats
}
