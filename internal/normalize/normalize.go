// Package normalize canonicalizes company names, domains, and email addresses
// into the comparable keys the matching and similarity layers are built on.
// Everything here is pure: same input, same output, no I/O.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/net/idna"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// legalSuffixes are company-form tokens stripped from the end of a name.
// "spa" is deliberately absent: it is a company form in Italy but part of the
// brand in names like "Ikaalinen Spa".
var legalSuffixes = map[string]bool{
	"oy":   true,
	"oyj":  true,
	"ab":   true,
	"as":   true,
	"gmbh": true,
	"ltd":  true,
	"inc":  true,
	"sa":   true,
	"nv":   true,
	"bv":   true,
	"srl":  true,
}

// weakSuffixes are descriptor tokens that rarely distinguish two companies
// ("X Group" vs "X"), stripped after the legal forms.
var weakSuffixes = map[string]bool{
	"group":   true,
	"holding": true,
}

// stopwords are tokens ignored when deciding whether two names share a
// significant word. Without this, "university of the arts helsinki" and
// "university of oslo library" overlap on "university" alone.
var stopwords = map[string]bool{
	"the": true, "of": true, "and": true, "or": true, "for": true,
	"in": true, "at": true, "by": true,

	// legal forms, kept here as a safety net even though name
	// normalization already strips trailing ones
	"oy": true, "oyj": true, "ab": true, "as": true, "gmbh": true,
	"ltd": true, "inc": true, "sa": true, "spa": true, "nv": true,
	"bv": true, "srl": true, "company": true, "co": true, "group": true,

	// generic institution words
	"university": true, "universitetet": true, "universitet": true,
	"college": true, "school": true, "academy": true, "akademi": true,
	"institute": true, "instituutti": true, "institutet": true,
}

// freemailDomains are consumer email providers, useless as company identity
// evidence when deriving a domain from associated contacts.
var freemailDomains = map[string]bool{
	"gmail.com":      true,
	"outlook.com":    true,
	"hotmail.com":    true,
	"live.com":       true,
	"yahoo.com":      true,
	"icloud.com":     true,
	"me.com":         true,
	"msn.com":        true,
	"aol.com":        true,
	"proton.me":      true,
	"protonmail.com": true,
	"mail.com":       true,
	"gmx.com":        true,
}

var stripAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Domain lower-cases a raw domain, trims a trailing dot and a leading "www.",
// and encodes it to its IDNA ASCII (punycode) form so Unicode and ASCII
// spellings of the same domain compare equal. Empty or invalid input returns
// "" and must be excluded from domain matching.
func Domain(raw string) string {
	d := strings.ToLower(strings.TrimSpace(raw))
	d = strings.TrimSuffix(d, ".")
	for strings.HasPrefix(d, "www.") {
		d = d[len("www."):]
	}
	if d == "" {
		return ""
	}
	ascii, err := idna.Lookup.ToASCII(d)
	if err != nil {
		return ""
	}
	return ascii
}

// Name canonicalizes a company name for comparison: lower-case, diacritics
// stripped, whitespace/hyphen/underscore runs collapsed to single spaces,
// other punctuation dropped, and trailing legal-form and weak descriptor
// tokens removed. The result is a space-joined token sequence, possibly "".
// Idempotent: Name(Name(x)) == Name(x).
func Name(raw string) string {
	if raw == "" {
		return ""
	}
	s, _, _ := transform.String(stripAccents, strings.ToLower(raw))

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r) || r == '-' || r == '_':
			b.WriteRune(' ')
		}
	}

	tokens := strings.Fields(b.String())
	// Legal and weak suffixes strip as one set so that a single pass settles:
	// "Example Group Oy" -> "example" whether or not the pass runs again.
	for len(tokens) > 0 {
		last := tokens[len(tokens)-1]
		if !legalSuffixes[last] && !weakSuffixes[last] {
			break
		}
		tokens = tokens[:len(tokens)-1]
	}
	return strings.Join(tokens, " ")
}

// NameKey is the normalized name with token separators removed, the exact-match
// grouping key for the name strategy: "Example Corp Oy" -> "examplecorp".
func NameKey(raw string) string {
	return strings.ReplaceAll(Name(raw), " ", "")
}

// BusinessID canonicalizes an external tax/registration identifier: upper-case
// with spaces, dots, and hyphens removed ("fi 1234567-8" -> "FI12345678").
func BusinessID(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range strings.ToUpper(strings.TrimSpace(raw)) {
		if r == ' ' || r == '.' || r == '-' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Tokens splits a normalized name into its tokens.
func Tokens(normalized string) []string {
	return strings.Fields(normalized)
}

// SignificantTokens returns the deduplicated non-stopword tokens of a
// normalized name, in first-seen order.
func SignificantTokens(normalized string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, t := range strings.Fields(normalized) {
		if stopwords[t] || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// HasSignificantOverlap reports whether two normalized names share at least
// one non-stopword token. When either side has no significant tokens at all,
// it conservatively requires the names to be identical.
func HasSignificantOverlap(norm1, norm2 string) bool {
	sig1 := SignificantTokens(norm1)
	sig2 := SignificantTokens(norm2)
	if len(sig1) == 0 || len(sig2) == 0 {
		return norm1 == norm2
	}
	set := make(map[string]bool, len(sig1))
	for _, t := range sig1 {
		set[t] = true
	}
	for _, t := range sig2 {
		if set[t] {
			return true
		}
	}
	return false
}

// DomainRoot approximates the registered (second-level) label of a domain:
// "audionova.dk" -> "audionova", "no.experis.com" -> "experis",
// "example.co.uk" -> "example". Empty input returns "".
func DomainRoot(domain string) string {
	d := strings.ToLower(strings.TrimSpace(domain))
	if d == "" {
		return ""
	}
	parts := strings.Split(d, ".")
	if len(parts) == 1 {
		return parts[0]
	}
	tld := parts[len(parts)-1]
	sld := parts[len(parts)-2]
	// Common two-level public suffixes like co.uk, ac.uk.
	if tld == "uk" && (sld == "co" || sld == "ac" || sld == "gov" || sld == "org") {
		if len(parts) >= 3 {
			return parts[len(parts)-3]
		}
		return sld
	}
	return sld
}

// EmailDomain extracts and normalizes the domain part of an email address,
// returning "" when there is none.
func EmailDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return ""
	}
	return Domain(email[at+1:])
}

// IsFreemail reports whether a normalized domain belongs to a consumer email
// provider.
func IsFreemail(domain string) bool {
	return freemailDomains[domain]
}
