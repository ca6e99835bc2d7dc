// =============================================================================
// QBO Sales Receipt Extractor - Address Resolver
// =============================================================================
//
// This module reduces a receipt address block to the single region label
// shown in the report: a US state code for domestic addresses, a country
// name for international ones.
//
// RESOLUTION ORDER:
//   1. Structured fields. Country decides domestic vs international:
//      - domestic (empty, US, USA, United States...): CountrySubDivisionCode,
//        given as a code or a full state name, normalised to the code
//      - international: Country as ISO alpha-2, alpha-3 or name, reported
//        as the common English name. A country that is not recognised is
//        UnknownRegion; the free-text lines are not consulted.
//   2. Domestic addresses without a usable state: the free-text lines
//      Line3..Line5. Line1 and Line2 hold the recipient and street and are
//      never scanned. A line is matched as "City ST 12345", a state name
//      before a ZIP code, a two-word state name at the end, a trailing
//      country code, or a whole-line country name. A state match beats a
//      country match.
//   3. UnknownRegion.
//
// DETAIL STATES:
//   For configured state codes the label is the full "City, ST 12345" line
//   instead of the bare code.
//
// The resolver never fails. When debug is enabled, every address that ended
// as UnknownRegion is recorded as an Ambiguity for the address dump.
//
// =============================================================================

package address

import (
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ginjaninja78/qbo-sales-receipts/internal/types"
)

// Options configures a Resolver.
type Options struct {
	// Debug records unresolved addresses as Ambiguities.
	Debug bool

	// DetailStates are the state codes reported with city and postal code.
	DetailStates []string

	// Logger receives debug messages for unresolved addresses.
	Logger logrus.FieldLogger
}

// Ambiguity is an address that could not be resolved.
type Ambiguity struct {
	ReceiptID string         `json:"receipt_id"`
	Block     string         `json:"block"`
	Reason    string         `json:"reason"`
	Raw       *types.Address `json:"raw"`
}

// Resolver maps address blocks to region labels. One Resolver serves one
// run; it is not safe for concurrent use when Debug is on.
type Resolver struct {
	debug       bool
	detail      map[string]bool
	logger      logrus.FieldLogger
	ambiguities []Ambiguity
}

// NewResolver creates a Resolver.
func NewResolver(opts Options) *Resolver {
	detail := make(map[string]bool, len(opts.DetailStates))
	for _, s := range opts.DetailStates {
		detail[strings.ToUpper(strings.TrimSpace(s))] = true
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Resolver{debug: opts.Debug, detail: detail, logger: opts.Logger}
}

// Ambiguities returns the unresolved addresses recorded so far.
func (r *Resolver) Ambiguities() []Ambiguity {
	return r.ambiguities
}

// Resolve returns the region label of addr. receiptID and block ("ShipAddr",
// "BillAddr") only identify the address in ambiguity records.
func (r *Resolver) Resolve(receiptID, block string, addr *types.Address) types.NormalizedAddress {
	if !addr.HasLocality() {
		return r.unknown(receiptID, block, addr, "no address data")
	}

	country := strings.TrimSpace(addr.Country)
	domestic := domesticCountries[strings.ToLower(country)]

	if !domestic {
		if name, ok := LookupCountry(country); ok {
			return r.resolved(name)
		}
		return r.unknown(receiptID, block, addr, "unrecognised country "+quote(country))
	}

	if code, ok := LookupState(addr.CountrySubDivisionCode); ok {
		return r.resolved(r.stateLabel(code, addr))
	}
	if label, ok := r.scanLines(addr); ok {
		return r.resolved(label)
	}

	if strings.TrimSpace(addr.CountrySubDivisionCode) != "" {
		return r.unknown(receiptID, block, addr, "unrecognised state "+quote(addr.CountrySubDivisionCode))
	}
	return r.unknown(receiptID, block, addr, "no state or country found")
}

func (r *Resolver) resolved(label string) types.NormalizedAddress {
	return types.NormalizedAddress{Label: label, Resolved: true}
}

func (r *Resolver) unknown(receiptID, block string, addr *types.Address, reason string) types.NormalizedAddress {
	if r.debug {
		r.ambiguities = append(r.ambiguities, Ambiguity{
			ReceiptID: receiptID,
			Block:     block,
			Reason:    reason,
			Raw:       addr,
		})
		r.logger.WithFields(logrus.Fields{
			"receipt_id": receiptID,
			"block":      block,
			"reason":     reason,
		}).Debug("address not resolved")
	}
	return types.NormalizedAddress{Label: types.UnknownRegion}
}

// stateLabel returns the label for a structured domestic address.
func (r *Resolver) stateLabel(code string, addr *types.Address) string {
	if !r.detail[code] {
		return code
	}
	var b strings.Builder
	if city := strings.TrimSpace(addr.City); city != "" {
		b.WriteString(city)
		b.WriteString(", ")
	}
	b.WriteString(code)
	if postal := strings.TrimSpace(addr.PostalCode); postal != "" {
		b.WriteString(" ")
		b.WriteString(postal)
	}
	return b.String()
}

// =============================================================================
// FREE-TEXT LINES
// =============================================================================

// scanLines looks for a state or country in Line3..Line5. The first state
// match wins; otherwise the first country match.
func (r *Resolver) scanLines(addr *types.Address) (string, bool) {
	country := ""
	for _, line := range []string{addr.Line3, addr.Line4, addr.Line5} {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if code, ok := stateInLine(line); ok {
			if r.detail[code] {
				return line, true
			}
			return code, true
		}
		if country == "" {
			if name, ok := countryInLine(line); ok {
				country = name
			}
		}
	}
	return country, country != ""
}

// stateInLine matches "City ST 12345", "City State Name 12345" and lines
// ending in a two-word state name ("Albany New York"). A one-word state
// name is only taken when a ZIP code follows it.
func stateInLine(line string) (string, bool) {
	parts := fields(line)
	if len(parts) < 2 {
		return "", false
	}
	if code := parts[len(parts)-2]; strings.ToUpper(code) == code && usStateCodes[code] {
		return code, true
	}
	if isZIP(parts[len(parts)-1]) {
		words := parts[:len(parts)-1]
		for n := 3; n >= 1; n-- {
			if len(words) < n {
				continue
			}
			if code, ok := stateByName(strings.Join(words[len(words)-n:], " ")); ok {
				return code, true
			}
		}
	}
	return stateByName(strings.Join(parts[len(parts)-2:], " "))
}

// countryInLine matches a trailing alpha-2 code or a whole-line country name.
func countryInLine(line string) (string, bool) {
	parts := fields(line)
	if len(parts) >= 2 {
		if name, ok := countryByAlpha2(parts[len(parts)-1]); ok {
			return name, true
		}
	}
	return countryByName(strings.Join(parts, " "))
}

// isZIP reports whether s is a 5 digit or ZIP+4 code.
func isZIP(s string) bool {
	if len(s) != 5 && len(s) != 10 {
		return false
	}
	for i, c := range s {
		if i == 5 && len(s) == 10 {
			if c != '-' {
				return false
			}
			continue
		}
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// fields splits a line into words, dropping separator commas.
func fields(line string) []string {
	parts := strings.Fields(line)
	out := parts[:0]
	for _, p := range parts {
		p = strings.Trim(p, ",")
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func quote(s string) string {
	return "\"" + strings.TrimSpace(s) + "\""
}
