// Package classify assigns entity kinds and rule-based categories. It is
// deliberately conservative: leaving a field unset is preferred over a
// wrong guess.
package classify

import (
	"regexp"
	"slices"
	"strings"
	"unicode"

	"github.com/sells-group/vcard-normalizer/internal/model"
)

// legalTokens are strong legal-entity markers, matched case-insensitively as
// whole words so that "Vincent" does not read as "Inc".
var legalTokens = []string{
	"ltd", "ltd.", "limited",
	"llc", "l.l.c.",
	"inc", "inc.", "incorporated",
	"corp", "corp.", "corporation",
	"plc", "llp", "gmbh", "pty", "sarl", "s.a.", "s.r.o", "s.r.o.", "oy", "ag", "bv", "b.v.",
	"co.", "company",
}

var reLegal = buildTokenRegexp(legalTokens)

func buildTokenRegexp(tokens []string) *regexp.Regexp {
	quoted := make([]string, len(tokens))
	for i, t := range tokens {
		quoted[i] = regexp.QuoteMeta(t)
	}
	// Longest first so "ltd." wins over "ltd".
	slices.SortFunc(quoted, func(a, b string) int { return len(b) - len(a) })
	return regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}])(` + strings.Join(quoted, "|") + `)(?:$|[^\p{L}\p{N}.])`)
}

const nameWord = `\p{Lu}(?:\p{Ll}+|['’]\p{Lu}\p{Ll}+)(?:-\p{Lu}\p{Ll}+)*`

var rePersonalName = regexp.MustCompile(`^` + nameWord + ` ` + nameWord + `$`)

// businessWords are second words that make a "Capitalised Capitalised" name
// look like a business rather than a person.
var businessWords = map[string]bool{
	"academy": true, "associates": true, "bakery": true, "bank": true,
	"builders": true, "cafe": true, "cars": true, "catering": true,
	"cleaning": true, "clinic": true, "college": true, "construction": true,
	"consulting": true, "dental": true, "design": true, "electrical": true,
	"enterprises": true, "estates": true, "foods": true, "garage": true,
	"group": true, "holdings": true, "hotel": true, "insurance": true,
	"kitchen": true, "lettings": true, "logistics": true, "media": true,
	"motors": true, "partners": true, "pharmacy": true, "plumbing": true,
	"properties": true, "restaurant": true, "salon": true, "school": true,
	"services": true, "solutions": true, "studio": true, "supplies": true,
	"surgery": true, "systems": true, "taxis": true, "technologies": true,
	"trading": true, "travel": true, "university": true,
}

// HasSignal reports whether the contact has a real name, an organization, or
// a phone. Email-only contacts are never classified or tagged.
func HasSignal(c *model.Contact) bool {
	return realName(c) || strings.TrimSpace(c.Org) != "" || len(c.Phones) > 0
}

func realName(c *model.Contact) bool {
	if !c.Name.IsZero() && !looksLikeContactPoint(c.Name.Display()) {
		return true
	}
	fn := strings.TrimSpace(c.FN)
	return fn != "" && !looksLikeContactPoint(fn)
}

// looksLikeContactPoint catches display names that are really an email
// address or a phone number.
func looksLikeContactPoint(s string) bool {
	if strings.Contains(s, "@") {
		return true
	}
	for _, r := range s {
		if unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

// LegalToken returns the first legal-entity token found in s, or "".
func LegalToken(s string) string {
	m := reLegal.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return m[1]
}

// IsPersonalName reports whether s has the strict "Capitalised Capitalised"
// shape and the second word is not a common business word.
func IsPersonalName(s string) bool {
	s = strings.TrimSpace(s)
	if !rePersonalName.MatchString(s) {
		return false
	}
	second := strings.ToLower(strings.Fields(s)[1])
	return !businessWords[second]
}

// ClassifyKind decides a kind for a contact without one. It never overwrites
// an existing kind and returns KindUnset when the evidence is weak.
func ClassifyKind(c *model.Contact) (model.Kind, string) {
	if c.Kind != model.KindUnset || !HasSignal(c) {
		return c.Kind, ""
	}
	for _, s := range []string{c.Org, c.FN} {
		if tok := LegalToken(s); tok != "" {
			return model.KindOrg, "legal-entity token '" + tok + "'"
		}
	}
	if len(c.Phones) > 0 && IsPersonalName(c.FN) {
		return model.KindIndividual, "personal name with phone"
	}
	return model.KindUnset, ""
}

// ApplyKind sets the kind decided by ClassifyKind and logs the change.
func ApplyKind(c *model.Contact) bool {
	if c.Kind != model.KindUnset {
		return false
	}
	kind, reason := ClassifyKind(c)
	if kind == model.KindUnset {
		return false
	}
	c.Kind = kind
	c.LogChangef("Kind set to %s (%s)", kind, reason)
	return true
}
