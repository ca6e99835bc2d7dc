package address

import (
	"strings"

	"github.com/pariz/gountries"
)

// query is the ISO 3166 reference data: countries by alpha-2, alpha-3 and
// name, and the subdivisions of each country.
var query = gountries.New()

// countryAliases are common spellings that the reference data does not
// list as names. Keys are lower case, values alpha-2 codes.
var countryAliases = map[string]string{
	"uk":               "GB",
	"great britain":    "GB",
	"england":          "GB",
	"scotland":         "GB",
	"wales":            "GB",
	"northern ireland": "GB",
	"holland":          "NL",
	"czech republic":   "CZ",
	"korea":            "KR",
}

// domesticCountries are the country spellings treated as the home country.
// Keys are lower case.
var domesticCountries = map[string]bool{
	"":                         true,
	"us":                       true,
	"usa":                      true,
	"u.s.":                     true,
	"u.s.a.":                   true,
	"united states":            true,
	"united states of america": true,
}

// US subdivisions, keyed by USPS code and by lower case name. Codes are
// stored without the "US-" prefix.
var (
	usStateCodes = make(map[string]bool)
	usStateNames = make(map[string]string)
)

func init() {
	us, err := query.FindCountryByAlpha("US")
	if err != nil {
		panic("address: reference data has no US entry: " + err.Error())
	}
	for _, s := range us.SubDivisions() {
		code := strings.TrimPrefix(strings.ToUpper(s.Code), "US-")
		usStateCodes[code] = true
		usStateNames[strings.ToLower(s.Name)] = code
	}
}

// LookupCountry returns the common English name of a country given as an
// ISO alpha-2 code, alpha-3 code or name. Matching ignores case.
func LookupCountry(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	if len(s) == 2 || len(s) == 3 {
		if c, err := query.FindCountryByAlpha(strings.ToUpper(s)); err == nil {
			return c.Name.Common, true
		}
	}
	return countryByName(s)
}

// countryByAlpha2 matches an upper case alpha-2 code only.
func countryByAlpha2(code string) (string, bool) {
	if len(code) != 2 || strings.ToUpper(code) != code {
		return "", false
	}
	c, err := query.FindCountryByAlpha(code)
	if err != nil {
		return "", false
	}
	return c.Name.Common, true
}

func countryByName(s string) (string, bool) {
	name := strings.ToLower(strings.TrimSpace(s))
	if code, ok := countryAliases[name]; ok {
		return countryByAlpha2(code)
	}
	c, err := query.FindCountryByName(name)
	if err != nil {
		return "", false
	}
	return c.Name.Common, true
}

// LookupState returns the USPS code of a state, district or territory
// given as a code or a name. Matching ignores case.
func LookupState(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	if len(s) == 2 {
		upper := strings.ToUpper(s)
		if !usStateCodes[upper] {
			return "", false
		}
		return upper, true
	}
	return stateByName(s)
}

func stateByName(s string) (string, bool) {
	code, ok := usStateNames[strings.ToLower(s)]
	return code, ok
}
