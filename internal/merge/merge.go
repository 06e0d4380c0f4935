// Package merge collapses duplicate clusters into single contacts.
package merge

import (
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/emersion/go-vcard"

	"github.com/sells-group/vcard-normalizer/internal/dedupe"
	"github.com/sells-group/vcard-normalizer/internal/model"
)

// SelectBase returns the index of the richest member: most emails plus
// phones, then the longest display name, then the earliest in the cluster.
func SelectBase(cluster dedupe.Cluster) int {
	best := 0
	for i := 1; i < len(cluster); i++ {
		if richer(cluster[i], cluster[best]) {
			best = i
		}
	}
	return best
}

func richer(a, b *model.Contact) bool {
	ra, rb := len(a.Emails)+len(a.Phones), len(b.Emails)+len(b.Phones)
	if ra != rb {
		return ra > rb
	}
	return utf8.RuneCountInString(strings.TrimSpace(a.FN)) > utf8.RuneCountInString(strings.TrimSpace(b.FN))
}

// MergeClusterAuto merges a cluster onto its richest member. The result is a
// new contact; cluster members are not modified. A single-member cluster
// returns that member unchanged.
func MergeClusterAuto(cluster dedupe.Cluster) *model.Contact {
	if len(cluster) == 0 {
		return nil
	}
	if len(cluster) == 1 {
		return cluster[0]
	}
	base := SelectBase(cluster)
	return combine(cluster, base, fmt.Sprintf("Auto-merged %d duplicate(s)", len(cluster)-1))
}

// Union merges the cluster like MergeClusterAuto, recording that the merge
// was a reviewer's choice.
func Union(cluster dedupe.Cluster) *model.Contact {
	if len(cluster) <= 1 {
		return MergeClusterAuto(cluster)
	}
	base := SelectBase(cluster)
	return combine(cluster, base, fmt.Sprintf("Merged %d duplicate(s) by union", len(cluster)-1))
}

// Keep merges the cluster onto member n (zero-based). Missing scalar fields
// are filled from the others and list fields are unioned, so nothing is
// dropped.
func Keep(cluster dedupe.Cluster, n int) (*model.Contact, error) {
	if n < 0 || n >= len(cluster) {
		return nil, fmt.Errorf("%w: card %d of %d", ErrInvalidDecision, n+1, len(cluster))
	}
	if len(cluster) == 1 {
		return cluster[0], nil
	}
	return combine(cluster, n, fmt.Sprintf("Kept card %d as base, merged %d duplicate(s)", n+1, len(cluster)-1)), nil
}

// Delete unions the cluster and marks the survivor for exclusion from export.
func Delete(cluster dedupe.Cluster) *model.Contact {
	c := Union(cluster)
	if c == nil {
		return nil
	}
	if len(cluster) == 1 {
		c = c.Clone()
	}
	c.AddCategories(model.DeleteSentinel)
	c.LogChangef("Marked for deletion (%d card(s))", len(cluster))
	return c
}

// combine builds the merged contact from a clone of cluster[base].
func combine(cluster dedupe.Cluster, base int, headline string) *model.Contact {
	out := cluster[base].Clone()
	others := make([]*model.Contact, 0, len(cluster)-1)
	for i, c := range cluster {
		if i != base {
			others = append(others, c)
		}
	}

	// Audit history of the absorbed cards stays visible on the survivor.
	for _, o := range others {
		for _, entry := range o.Changes {
			out.LogChangef("[%s] %s", o.Label(), entry)
		}
	}

	var (
		emails = slices.Clone(out.Emails)
		phones = slices.Clone(out.Phones)
	)
	for _, o := range others {
		emails = append(emails, o.Emails...)
		phones = append(phones, o.Phones...)
		adoptScalars(out, o)
		out.Addresses = unionAddresses(out.Addresses, o.Addresses)
		out.Related = unionRelations(out.Related, o.Related)
		out.Members = model.SortedSet(append(out.Members, o.Members...))
		out.Raw = unionExtensions(out.Raw, o.Raw)
		out.AddSource(o.Sources...)
	}
	out.Emails = model.SortedSet(emails)
	out.SetPhones(phones)

	cats, conflict := mergeCategories(cluster)
	added := out.AddCategories(cats...)
	switch {
	case conflict:
		out.LogChange("Categories merged (conflict resolved by union): " + strings.Join(out.Categories, ", "))
	case len(added) > 0:
		out.LogChange("Categories carried over from source: " + strings.Join(added, ", "))
	}

	if sources := dedupe.Cluster(cluster).Sources(); len(sources) > 1 {
		out.LogChange("Merged from sources: " + strings.Join(sources, ", "))
	}

	if aliases := alsoSeenAs(out, others); len(aliases) > 0 {
		headline += " (also seen as: " + strings.Join(aliases, ", ") + ")"
	}
	out.LogChange(headline)

	return out
}

// adoptScalars fills fields empty on dst from src.
func adoptScalars(dst, src *model.Contact) {
	if dst.UID == "" {
		dst.UID = src.UID
	}
	if strings.TrimSpace(dst.FN) == "" {
		dst.FN = src.FN
	}
	if dst.Name.IsZero() {
		dst.Name = src.Name
	}
	if dst.Org == "" {
		dst.Org = src.Org
	}
	if dst.Title == "" {
		dst.Title = src.Title
	}
	if dst.Kind == model.KindUnset {
		dst.Kind = src.Kind
	}
	if dst.Birthday == nil && src.Birthday != nil {
		d := *src.Birthday
		dst.Birthday = &d
	}
	if dst.Anniversary == nil && src.Anniversary != nil {
		d := *src.Anniversary
		dst.Anniversary = &d
	}
	if dst.Note == "" {
		dst.Note = src.Note
	}
}

// mergeCategories unions every member's categories. It reports a conflict
// when members that carry categories disagree on the set.
func mergeCategories(cluster dedupe.Cluster) ([]string, bool) {
	var (
		union    []string
		distinct []string
	)
	for _, c := range cluster {
		set := model.SortedSet(c.Categories)
		if len(set) == 0 {
			continue
		}
		union = append(union, set...)
		key := strings.Join(set, "\x00")
		if !slices.Contains(distinct, key) {
			distinct = append(distinct, key)
		}
	}
	return model.SortedSet(union), len(distinct) > 1
}

func alsoSeenAs(base *model.Contact, others []*model.Contact) []string {
	var names []string
	for _, o := range others {
		fn := strings.TrimSpace(o.FN)
		if fn == "" || strings.EqualFold(fn, strings.TrimSpace(base.FN)) {
			continue
		}
		if !slices.ContainsFunc(names, func(n string) bool { return strings.EqualFold(n, fn) }) {
			names = append(names, fn)
		}
	}
	return names
}

func unionAddresses(dst, src []model.Address) []model.Address {
	for _, a := range src {
		if !slices.Contains(dst, a) {
			dst = append(dst, a)
		}
	}
	return dst
}

func unionRelations(dst, src []model.Relation) []model.Relation {
	for _, r := range src {
		if !slices.ContainsFunc(dst, func(d model.Relation) bool {
			return d.Type == r.Type && d.Target() == r.Target()
		}) {
			dst = append(dst, r)
		}
	}
	return dst
}

// unionExtensions copies retained X- properties from src that dst lacks.
func unionExtensions(dst, src vcard.Card) vcard.Card {
	for name, fields := range src {
		if !strings.HasPrefix(strings.ToUpper(name), "X-") {
			continue
		}
		for _, f := range fields {
			if slices.ContainsFunc(dst[name], func(d *vcard.Field) bool { return d.Value == f.Value }) {
				continue
			}
			if dst == nil {
				dst = make(vcard.Card)
			}
			cp := *f
			dst[name] = append(dst[name], &cp)
		}
	}
	return dst
}
