package enrich

import (
	"strings"

	"github.com/nyaruka/phonenumbers"

	"github.com/sells-group/vcard-normalizer/internal/model"
)

// countryAliases maps lower-cased country names and informal codes to ISO
// 3166-1 alpha-2 region codes.
var countryAliases = map[string]string{
	"uk":                       "GB",
	"u.k.":                     "GB",
	"united kingdom":           "GB",
	"great britain":            "GB",
	"britain":                  "GB",
	"england":                  "GB",
	"scotland":                 "GB",
	"wales":                    "GB",
	"northern ireland":         "GB",
	"usa":                      "US",
	"u.s.a.":                   "US",
	"u.s.":                     "US",
	"united states":            "US",
	"united states of america": "US",
	"america":                  "US",
	"ireland":                  "IE",
	"republic of ireland":      "IE",
	"eire":                     "IE",
	"france":                   "FR",
	"germany":                  "DE",
	"deutschland":              "DE",
	"spain":                    "ES",
	"españa":                   "ES",
	"italy":                    "IT",
	"italia":                   "IT",
	"netherlands":              "NL",
	"the netherlands":          "NL",
	"holland":                  "NL",
	"belgium":                  "BE",
	"switzerland":              "CH",
	"austria":                  "AT",
	"portugal":                 "PT",
	"sweden":                   "SE",
	"norway":                   "NO",
	"denmark":                  "DK",
	"finland":                  "FI",
	"poland":                   "PL",
	"czech republic":           "CZ",
	"czechia":                  "CZ",
	"greece":                   "GR",
	"canada":                   "CA",
	"mexico":                   "MX",
	"brazil":                   "BR",
	"australia":                "AU",
	"new zealand":              "NZ",
	"south africa":             "ZA",
	"india":                    "IN",
	"japan":                    "JP",
	"china":                    "CN",
	"hong kong":                "HK",
	"singapore":                "SG",
	"united arab emirates":     "AE",
	"uae":                      "AE",
}

// countryNames is the display name used when cleaning addresses.
var countryNames = map[string]string{
	"GB": "United Kingdom",
	"US": "United States",
	"IE": "Ireland",
	"FR": "France",
	"DE": "Germany",
	"ES": "Spain",
	"IT": "Italy",
	"NL": "Netherlands",
	"BE": "Belgium",
	"CH": "Switzerland",
	"AT": "Austria",
	"PT": "Portugal",
	"SE": "Sweden",
	"NO": "Norway",
	"DK": "Denmark",
	"FI": "Finland",
	"PL": "Poland",
	"CZ": "Czech Republic",
	"GR": "Greece",
	"CA": "Canada",
	"MX": "Mexico",
	"BR": "Brazil",
	"AU": "Australia",
	"NZ": "New Zealand",
	"ZA": "South Africa",
	"IN": "India",
	"JP": "Japan",
	"CN": "China",
	"HK": "Hong Kong",
	"SG": "Singapore",
	"AE": "United Arab Emirates",
}

// RegionForCountry resolves a free-text country to a region code. Aliases
// win over two-letter codes so "UK" resolves to GB.
func RegionForCountry(country string) string {
	key := strings.ToLower(strings.TrimSpace(country))
	if key == "" {
		return ""
	}
	if r, ok := countryAliases[key]; ok {
		return r
	}
	if len(key) == 2 {
		code := strings.ToUpper(key)
		if phonenumbers.GetCountryCodeForRegion(code) != 0 {
			return code
		}
	}
	return ""
}

// CountryName returns the display name for a country alias or region code,
// or "" when unknown.
func CountryName(country string) string {
	return countryNames[RegionForCountry(country)]
}

// InferRegion returns the region of the first address with a recognisable
// country, or "".
func InferRegion(c *model.Contact) string {
	for _, a := range c.Addresses {
		if r := RegionForCountry(a.Country); r != "" {
			return r
		}
	}
	return ""
}
