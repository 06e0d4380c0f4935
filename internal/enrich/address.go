package enrich

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/vcard-normalizer/internal/model"
)

// CountryPrompter supplies a country for an address that has none. An empty
// answer leaves the address unchanged.
type CountryPrompter interface {
	PromptCountry(c *model.Contact, addr model.Address) (string, error)
}

// MissingCountry reports whether any of the contact's addresses lacks a
// country.
func MissingCountry(c *model.Contact) bool {
	for _, a := range c.Addresses {
		if strings.TrimSpace(a.Country) == "" {
			return true
		}
	}
	return false
}

// ContactsMissingCountry returns the contacts with at least one address
// lacking a country.
func ContactsMissingCountry(contacts []*model.Contact) []*model.Contact {
	var out []*model.Contact
	for _, c := range contacts {
		if MissingCountry(c) {
			out = append(out, c)
		}
	}
	return out
}

// FillCountries asks p for each address missing a country and returns how
// many were filled. A prompter error stops the pass; addresses already
// filled keep their value.
func FillCountries(contacts []*model.Contact, p CountryPrompter) (int, error) {
	filled := 0
	for _, c := range ContactsMissingCountry(contacts) {
		for i := range c.Addresses {
			if strings.TrimSpace(c.Addresses[i].Country) != "" {
				continue
			}
			country, err := p.PromptCountry(c, c.Addresses[i])
			if err != nil {
				return filled, eris.Wrap(err, "enrich: prompt country")
			}
			if country = strings.TrimSpace(country); country == "" {
				continue
			}
			c.Addresses[i].Country = country
			c.LogChangef("Country set to '%s' for address: %s", country, c.Addresses[i].String())
			filled++
		}
	}
	return filled, nil
}

// CleanAddresses tidies address casing: all-caps or all-lower text parts are
// title-cased, postcodes are upper-cased, and known country aliases are
// expanded to a display name. Returns the number of contacts changed.
func CleanAddresses(contacts []*model.Contact) int {
	changed := 0
	for _, c := range contacts {
		var diffs []string
		for i, a := range c.Addresses {
			cleaned := CleanAddress(a)
			if cleaned != a {
				diffs = append(diffs, fmt.Sprintf("'%s' → '%s'", a.String(), cleaned.String()))
				c.Addresses[i] = cleaned
			}
		}
		if len(diffs) > 0 {
			c.LogChange("Address(es) cleaned: " + strings.Join(diffs, "; "))
			changed++
		}
	}
	zap.L().Debug("enrich: cleaned addresses", zap.Int("contacts", changed))
	return changed
}

// CleanAddress returns a tidied copy of a.
func CleanAddress(a model.Address) model.Address {
	a.POBox = strings.TrimSpace(a.POBox)
	a.Extended = fixCase(a.Extended)
	a.Street = fixCase(a.Street)
	a.Locality = fixCase(a.Locality)
	a.Region = fixRegionCase(a.Region)
	a.PostalCode = strings.ToUpper(strings.Join(strings.Fields(a.PostalCode), " "))
	if name := CountryName(a.Country); name != "" {
		a.Country = name
	} else {
		a.Country = fixCase(a.Country)
	}
	return a
}

// fixCase title-cases s when its letters are uniformly upper or lower case.
func fixCase(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if !uniformCase(s) {
		return s
	}
	return cases.Title(language.English).String(strings.ToLower(s))
}

// fixRegionCase leaves short codes such as "NY" alone.
func fixRegionCase(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= 3 {
		return s
	}
	return fixCase(s)
}

func uniformCase(s string) bool {
	var upper, lower int
	for _, r := range s {
		switch {
		case unicode.IsUpper(r):
			upper++
		case unicode.IsLower(r):
			lower++
		}
	}
	return (upper > 0 && lower == 0) || (lower > 0 && upper == 0)
}
