package model

import (
	"fmt"
	"slices"
	"strings"

	"github.com/emersion/go-vcard"
)

// DeleteSentinel is the reserved category marking a contact for exclusion
// from export.
const DeleteSentinel = "__DELETE__"

// SourceProperty carries provenance labels through checkpoint files.
const SourceProperty = "X-VCARD-NORMALIZER-SOURCE"

// Kind classifies what a contact represents.
type Kind string

const (
	KindUnset      Kind = ""
	KindIndividual Kind = "individual"
	KindOrg        Kind = "org"
	KindGroup      Kind = "group"
	KindLocation   Kind = "location"
)

// ParseKind maps a KIND property value onto a Kind. Unknown values are unset.
func ParseKind(s string) Kind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "individual":
		return KindIndividual
	case "org", "organization":
		return KindOrg
	case "group":
		return KindGroup
	case "location":
		return KindLocation
	default:
		return KindUnset
	}
}

// Phone is a phone number with an optional type label (HOME, WORK, CELL...).
type Phone struct {
	Number string `json:"number"`
	Type   string `json:"type,omitempty"`
}

// Address is a postal address.
type Address struct {
	POBox      string `json:"po_box,omitempty"`
	Extended   string `json:"extended,omitempty"`
	Street     string `json:"street,omitempty"`
	Locality   string `json:"locality,omitempty"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
}

// IsZero reports whether every component is empty.
func (a Address) IsZero() bool {
	return a == Address{}
}

// String renders the non-empty components on one line.
func (a Address) String() string {
	var parts []string
	for _, p := range []string{a.POBox, a.Extended, a.Street, a.Locality, a.Region, a.PostalCode, a.Country} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// Relation is a directed edge to another contact, by UID when known,
// otherwise by free text.
type Relation struct {
	Type string `json:"type"`
	UID  string `json:"uid,omitempty"`
	Text string `json:"text,omitempty"`
}

// Target returns the UID, or the free text when there is no UID.
func (r Relation) Target() string {
	if r.UID != "" {
		return r.UID
	}
	return r.Text
}

// Contact is the canonical normalized record for one person or organization.
type Contact struct {
	UID         string     `json:"uid,omitempty"`
	FN          string     `json:"fn"`
	Name        Name       `json:"name"`
	Emails      []string   `json:"emails,omitempty"`
	Phones      []Phone    `json:"phones,omitempty"`
	Org         string     `json:"org,omitempty"`
	Title       string     `json:"title,omitempty"`
	Addresses   []Address  `json:"addresses,omitempty"`
	Kind        Kind       `json:"kind,omitempty"`
	Categories  []string   `json:"categories,omitempty"`
	Birthday    *Date      `json:"birthday,omitempty"`
	Anniversary *Date      `json:"anniversary,omitempty"`
	Related     []Relation `json:"related,omitempty"`
	Members     []string   `json:"members,omitempty"`
	Note        string     `json:"note,omitempty"`
	Rev         string     `json:"rev,omitempty"`

	// Sources is the provenance set. It only grows.
	Sources []string `json:"sources"`
	// Changes is the append-only audit log.
	Changes []string `json:"changes,omitempty"`

	// Raw is the parsed record the contact was built from. The field
	// stripper edits it; retained extension properties are exported from it.
	Raw vcard.Card `json:"-"`
}

// LogChange appends an entry to the audit log.
func (c *Contact) LogChange(msg string) {
	c.Changes = append(c.Changes, msg)
}

// LogChangef appends a formatted entry to the audit log.
func (c *Contact) LogChangef(format string, args ...any) {
	c.LogChange(fmt.Sprintf(format, args...))
}

// AddSource adds labels to the provenance set, ignoring empties and repeats.
func (c *Contact) AddSource(labels ...string) {
	for _, l := range labels {
		if l == "" || slices.Contains(c.Sources, l) {
			continue
		}
		c.Sources = append(c.Sources, l)
	}
}

// HasCategory reports whether the contact carries the category.
func (c *Contact) HasCategory(cat string) bool {
	return slices.Contains(c.Categories, cat)
}

// AddCategories merges cats into the category set and returns the ones that
// were not already present.
func (c *Contact) AddCategories(cats ...string) []string {
	var added []string
	for _, cat := range cats {
		cat = strings.TrimSpace(cat)
		if cat == "" || c.HasCategory(cat) || slices.Contains(added, cat) {
			continue
		}
		added = append(added, cat)
	}
	if len(added) > 0 {
		c.Categories = SortedSet(append(c.Categories, added...))
	}
	return added
}

// MarkedForDeletion reports whether the contact carries DeleteSentinel.
func (c *Contact) MarkedForDeletion() bool {
	return c.HasCategory(DeleteSentinel)
}

// PhoneNumbers returns the phone number strings.
func (c *Contact) PhoneNumbers() []string {
	out := make([]string, len(c.Phones))
	for i, p := range c.Phones {
		out[i] = p.Number
	}
	return out
}

// SetPhones replaces the phone list, keeping the first entry per number and
// sorting by number.
func (c *Contact) SetPhones(phones []Phone) {
	c.Phones = UniquePhones(phones)
}

// Label is a human-readable name for logs and prompts.
func (c *Contact) Label() string {
	switch {
	case strings.TrimSpace(c.FN) != "":
		return strings.TrimSpace(c.FN)
	case !c.Name.IsZero():
		return c.Name.Display()
	case c.Org != "":
		return c.Org
	case len(c.Emails) > 0:
		return c.Emails[0]
	case len(c.Phones) > 0:
		return c.Phones[0].Number
	default:
		return "(no name)"
	}
}

// Clone returns a deep copy. The raw record is copied field by field.
func (c *Contact) Clone() *Contact {
	out := *c
	out.Emails = slices.Clone(c.Emails)
	out.Phones = slices.Clone(c.Phones)
	out.Addresses = slices.Clone(c.Addresses)
	out.Categories = slices.Clone(c.Categories)
	out.Related = slices.Clone(c.Related)
	out.Members = slices.Clone(c.Members)
	out.Sources = slices.Clone(c.Sources)
	out.Changes = slices.Clone(c.Changes)
	if c.Birthday != nil {
		d := *c.Birthday
		out.Birthday = &d
	}
	if c.Anniversary != nil {
		d := *c.Anniversary
		out.Anniversary = &d
	}
	if c.Raw != nil {
		out.Raw = make(vcard.Card, len(c.Raw))
		for k, fields := range c.Raw {
			cp := make([]*vcard.Field, len(fields))
			for i, f := range fields {
				nf := *f
				if f.Params != nil {
					nf.Params = make(vcard.Params, len(f.Params))
					for pk, pv := range f.Params {
						nf.Params[pk] = slices.Clone(pv)
					}
				}
				cp[i] = &nf
			}
			out.Raw[k] = cp
		}
	}
	return &out
}

// SortedSet trims, drops empties, de-duplicates and sorts.
func SortedSet(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	slices.Sort(out)
	out = slices.Compact(out)
	if len(out) == 0 {
		return nil
	}
	return out
}

// UniquePhones keeps the first occurrence of each number, sorted by number.
// A later duplicate can still contribute a type label the first one lacked.
func UniquePhones(in []Phone) []Phone {
	if len(in) == 0 {
		return nil
	}
	idx := make(map[string]int, len(in))
	out := make([]Phone, 0, len(in))
	for _, p := range in {
		p.Number = strings.TrimSpace(p.Number)
		if p.Number == "" {
			continue
		}
		if i, ok := idx[p.Number]; ok {
			if out[i].Type == "" {
				out[i].Type = p.Type
			}
			continue
		}
		idx[p.Number] = len(out)
		out = append(out, p)
	}
	slices.SortStableFunc(out, func(a, b Phone) int { return strings.Compare(a.Number, b.Number) })
	if len(out) == 0 {
		return nil
	}
	return out
}
