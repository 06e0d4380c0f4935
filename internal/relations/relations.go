// Package relations maintains RELATED links between contacts so that each
// edge has a matching reverse edge.
package relations

import (
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/vcard-normalizer/internal/model"
)

// DefaultType is used when a relation has no type.
const DefaultType = "contact"

var reciprocals = map[string]string{
	"parent":       "child",
	"child":        "parent",
	"spouse":       "spouse",
	"sibling":      "sibling",
	"friend":       "friend",
	"colleague":    "colleague",
	"co-worker":    "co-worker",
	"acquaintance": "acquaintance",
	"contact":      "contact",
	"kin":          "kin",
	"neighbor":     "neighbor",
	"co-resident":  "co-resident",
	"sweetheart":   "sweetheart",
	"date":         "date",
	"crush":        "crush",
	"met":          "met",
	"muse":         "muse",
	"emergency":    "emergency",
	"agent":        "agent",
}

// Reciprocal returns the relation type seen from the other side. Unknown
// types mirror themselves.
func Reciprocal(typ string) string {
	typ = strings.ToLower(strings.TrimSpace(typ))
	if typ == "" {
		return DefaultType
	}
	if r, ok := reciprocals[typ]; ok {
		return r
	}
	return typ
}

// Link records that from is typ of to, and the reciprocal edge on to. Any
// existing edge between the two is replaced. Both contacts need a UID.
func Link(from, to *model.Contact, typ string) error {
	if from == nil || to == nil {
		return eris.New("relations: nil contact")
	}
	if from.UID == "" || to.UID == "" {
		return eris.New("relations: both contacts need a UID")
	}
	if from.UID == to.UID {
		return eris.New("relations: cannot link a contact to itself")
	}
	typ = strings.ToLower(strings.TrimSpace(typ))
	if typ == "" {
		typ = DefaultType
	}

	drop(from, to.UID)
	drop(to, from.UID)
	from.Related = append(from.Related, model.Relation{Type: typ, UID: to.UID})
	to.Related = append(to.Related, model.Relation{Type: Reciprocal(typ), UID: from.UID})
	from.LogChangef("Linked as %s of %s", typ, to.Label())
	to.LogChangef("Linked as %s of %s", Reciprocal(typ), from.Label())
	return nil
}

// Unlink removes edges in both directions. It reports whether anything was
// removed.
func Unlink(a, b *model.Contact) bool {
	if a == nil || b == nil {
		return false
	}
	ra := drop(a, b.UID)
	rb := drop(b, a.UID)
	if ra {
		a.LogChangef("Unlinked from %s", b.Label())
	}
	if rb {
		b.LogChangef("Unlinked from %s", a.Label())
	}
	return ra || rb
}

func drop(c *model.Contact, uid string) bool {
	if uid == "" {
		return false
	}
	kept := c.Related[:0]
	removed := false
	for _, r := range c.Related {
		if r.UID == uid {
			removed = true
			continue
		}
		kept = append(kept, r)
	}
	c.Related = kept
	return removed
}

// Mirror adds missing reverse edges for UID relations whose target is in
// contacts. It returns the number of edges added.
func Mirror(contacts []*model.Contact) int {
	byUID := make(map[string]*model.Contact, len(contacts))
	for _, c := range contacts {
		if c.UID != "" {
			byUID[c.UID] = c
		}
	}

	added := 0
	for _, c := range contacts {
		if c.UID == "" {
			continue
		}
		for _, r := range c.Related {
			target, ok := byUID[r.UID]
			if !ok || target == c || hasEdge(target, c.UID) {
				continue
			}
			rev := Reciprocal(r.Type)
			target.Related = append(target.Related, model.Relation{Type: rev, UID: c.UID})
			target.LogChangef("Added reciprocal relation: %s of %s", rev, c.Label())
			added++
		}
	}
	zap.L().Debug("relations: mirrored", zap.Int("added", added))
	return added
}

func hasEdge(c *model.Contact, uid string) bool {
	for _, r := range c.Related {
		if r.UID == uid {
			return true
		}
	}
	return false
}
