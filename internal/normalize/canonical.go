package normalize

import (
	"strings"

	"github.com/emersion/go-vcard"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/cases"

	"github.com/sells-group/vcard-normalizer/internal/ingest"
	"github.com/sells-group/vcard-normalizer/internal/model"
)

// Binary properties removed during canonicalisation.
var binaryFields = []string{vcard.FieldPhoto, vcard.FieldLogo, vcard.FieldSound}

// Stats summarises a canonicalisation pass.
type Stats struct {
	Contacts         int `json:"contacts"`
	BinaryStripped   int `json:"binary_stripped"`
	AddressesSkipped int `json:"addresses_skipped"`
}

// CanonicalizeAll converts every record, in order.
func CanonicalizeAll(records []ingest.Record) ([]*model.Contact, Stats) {
	var stats Stats
	out := make([]*model.Contact, 0, len(records))
	for _, rec := range records {
		c, rs := canonicalize(rec)
		stats.BinaryStripped += rs.BinaryStripped
		stats.AddressesSkipped += rs.AddressesSkipped
		out = append(out, c)
	}
	stats.Contacts = len(out)
	zap.L().Info("normalize: canonicalised contacts",
		zap.Int("contacts", stats.Contacts),
		zap.Int("binary_stripped", stats.BinaryStripped),
		zap.Int("addresses_skipped", stats.AddressesSkipped),
	)
	return out, stats
}

// Canonicalize converts one decoded record into a Contact. The record's card
// becomes the contact's raw record and is modified in place.
func Canonicalize(rec ingest.Record) *model.Contact {
	c, _ := canonicalize(rec)
	return c
}

func canonicalize(rec ingest.Record) (*model.Contact, Stats) {
	var stats Stats
	card := rec.Card
	if card == nil {
		card = make(vcard.Card)
	}
	c := &model.Contact{Raw: card}

	c.UID = stripURN(card.Value(vcard.FieldUID))
	c.FN = strings.TrimSpace(card.Value(vcard.FieldFormattedName))
	c.Name = parseName(card)
	if c.FN == "" && !c.Name.IsZero() {
		c.FN = c.Name.Display()
		c.LogChange("Display name derived from structured name")
	}

	c.Emails = emails(card)
	c.SetPhones(phones(card))
	c.Org = org(card.Value(vcard.FieldOrganization))
	c.Title = strings.TrimSpace(card.Value(vcard.FieldTitle))

	for _, f := range card[vcard.FieldAddress] {
		addr, err := ParseAddress(f.Value)
		if err != nil {
			stats.AddressesSkipped++
			zap.L().Debug("normalize: skipping address", zap.String("contact", c.Label()), zap.Error(err))
			continue
		}
		c.Addresses = append(c.Addresses, addr)
	}
	if stats.AddressesSkipped > 0 {
		c.LogChangef("Skipped %d malformed address(es)", stats.AddressesSkipped)
	}

	c.Kind = kind(card)
	c.Categories = Categories(card)
	c.Birthday = model.ParseDate(card.Value(vcard.FieldBirthday))
	c.Anniversary = model.ParseDate(firstValue(card, vcard.FieldAnniversary, "X-ANNIVERSARY"))
	c.Related = relations(card)
	c.Members = members(card)
	c.Note = strings.TrimSpace(card.Value(vcard.FieldNote))
	c.Rev = strings.TrimSpace(card.Value(vcard.FieldRevision))

	for _, k := range binaryFields {
		stats.BinaryStripped += len(card[k])
		delete(card, k)
	}
	if stats.BinaryStripped > 0 {
		c.LogChangef("Stripped %d photo/logo/sound property(ies)", stats.BinaryStripped)
	}

	if restored := card[model.SourceProperty]; len(restored) > 0 {
		for _, f := range restored {
			c.AddSource(strings.TrimSpace(f.Value))
		}
	}
	if len(c.Sources) == 0 {
		c.AddSource(rec.Source)
	}

	return c, stats
}

// parseName prefers the structured N components; a value with escapes is
// split with the escape-aware legacy parser instead.
func parseName(card vcard.Card) model.Name {
	f := card.Get(vcard.FieldName)
	if f == nil {
		return model.Name{}
	}
	if strings.Contains(f.Value, `\`) {
		return model.ParseName(f.Value)
	}
	if n := card.Name(); n != nil {
		return model.Name{
			Prefix:     strings.TrimSpace(n.HonorificPrefix),
			Given:      strings.TrimSpace(n.GivenName),
			Additional: strings.TrimSpace(n.AdditionalName),
			Family:     strings.TrimSpace(n.FamilyName),
			Suffix:     strings.TrimSpace(n.HonorificSuffix),
		}
	}
	return model.ParseName(f.Value)
}

func emails(card vcard.Card) []string {
	fold := cases.Fold()
	var out []string
	for _, f := range card[vcard.FieldEmail] {
		v := strings.TrimSpace(strings.TrimPrefix(f.Value, "mailto:"))
		if v != "" {
			out = append(out, fold.String(v))
		}
	}
	return model.SortedSet(out)
}

// StripSpaces removes every whitespace character from a phone string.
func StripSpaces(s string) string {
	return strings.Join(strings.Fields(s), "")
}

func phones(card vcard.Card) []model.Phone {
	var out []model.Phone
	for _, f := range card[vcard.FieldTelephone] {
		v := strings.TrimPrefix(strings.TrimSpace(f.Value), "tel:")
		if v = StripSpaces(v); v == "" {
			continue
		}
		out = append(out, model.Phone{Number: v, Type: phoneType(f.Params)})
	}
	return out
}

// phoneType returns the first meaningful TYPE value, upper-cased.
func phoneType(p vcard.Params) string {
	for _, raw := range p[vcard.ParamType] {
		for _, t := range strings.Split(raw, ",") {
			t = strings.ToUpper(strings.TrimSpace(t))
			switch t {
			case "", "VOICE", "PREF", "INTERNET":
				continue
			}
			return t
		}
	}
	return ""
}

func org(v string) string {
	var parts []string
	for _, p := range strings.Split(v, ";") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// ParseAddress maps a seven-component ADR value onto an Address. Values with
// too many components or no content are rejected.
func ParseAddress(v string) (model.Address, error) {
	parts := strings.Split(v, ";")
	if len(parts) > 7 {
		return model.Address{}, eris.Errorf("normalize: address has %d components", len(parts))
	}
	for len(parts) < 7 {
		parts = append(parts, "")
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(strings.ReplaceAll(parts[i], "\n", ", "))
	}
	a := model.Address{
		POBox:      parts[0],
		Extended:   parts[1],
		Street:     parts[2],
		Locality:   parts[3],
		Region:     parts[4],
		PostalCode: parts[5],
		Country:    parts[6],
	}
	if a.IsZero() {
		return a, eris.New("normalize: empty address")
	}
	return a, nil
}

func kind(card vcard.Card) model.Kind {
	if k := model.ParseKind(firstValue(card, vcard.FieldKind, "X-ADDRESSBOOKSERVER-KIND")); k != model.KindUnset {
		return k
	}
	if strings.EqualFold(strings.TrimSpace(card.Value("X-ABSHOWAS")), "COMPANY") {
		return model.KindOrg
	}
	return model.KindUnset
}

// Categories reads every CATEGORIES property, accepting both repeated
// properties and comma-separated values. A backslash-escaped comma stays
// inside its label.
func Categories(card vcard.Card) []string {
	var out []string
	for _, f := range card[vcard.FieldCategories] {
		out = append(out, SplitCategories(f.Value)...)
	}
	return model.SortedSet(out)
}

// SplitCategories splits a CATEGORIES value on unescaped commas.
func SplitCategories(v string) []string {
	var (
		out []string
		cur strings.Builder
	)
	for i := 0; i < len(v); i++ {
		switch {
		case v[i] == '\\' && i+1 < len(v) && v[i+1] == ',':
			cur.WriteByte(',')
			i++
		case v[i] == ',':
			out = append(out, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(v[i])
		}
	}
	return append(out, cur.String())
}

// EscapeCategory escapes commas in a label so SplitCategories keeps it whole.
func EscapeCategory(label string) string {
	return strings.ReplaceAll(label, ",", `\,`)
}

func relations(card vcard.Card) []model.Relation {
	var out []model.Relation
	for _, f := range card[vcard.FieldRelated] {
		v := strings.TrimSpace(f.Value)
		if v == "" {
			continue
		}
		rel := model.Relation{Type: "contact"}
		if t := f.Params.Get(vcard.ParamType); t != "" {
			rel.Type = strings.ToLower(strings.TrimSpace(strings.Split(t, ",")[0]))
		}
		if uid, ok := uidFromURN(v); ok {
			rel.UID = uid
		} else {
			rel.Text = v
		}
		out = append(out, rel)
	}
	return out
}

func members(card vcard.Card) []string {
	var out []string
	for _, k := range []string{vcard.FieldMember, "X-ADDRESSBOOKSERVER-MEMBER"} {
		for _, f := range card[k] {
			if v := stripURN(f.Value); v != "" {
				out = append(out, v)
			}
		}
	}
	return model.SortedSet(out)
}

func uidFromURN(v string) (string, bool) {
	const prefix = "urn:uuid:"
	if len(v) > len(prefix) && strings.EqualFold(v[:len(prefix)], prefix) {
		return strings.TrimSpace(v[len(prefix):]), true
	}
	return "", false
}

func stripURN(v string) string {
	v = strings.TrimSpace(v)
	if uid, ok := uidFromURN(v); ok {
		return uid
	}
	return v
}

func firstValue(card vcard.Card, keys ...string) string {
	for _, k := range keys {
		if v := card.Value(k); v != "" {
			return v
		}
	}
	return ""
}
