// Package dedupe scores contact similarity and groups likely duplicates.
package dedupe

import (
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/cases"

	"github.com/sells-group/vcard-normalizer/internal/model"
)

// Scoring weights and thresholds.
const (
	EmailWeight = 60.0
	PhoneWeight = 40.0
	NameWeight  = 0.4
	OrgWeight   = 10.0
	MaxScore    = 100.0

	// ClusterThreshold is the minimum score against a cluster's seed.
	ClusterThreshold = 70.0
	// AutoUnionThreshold is the minimum pairwise score for merging a cluster
	// without asking.
	AutoUnionThreshold = 95.0

	phoneKeyDigits = 9
)

// Cluster is a group of contacts believed to be the same entity. The first
// member is the seed.
type Cluster []*model.Contact

// PhoneKey reduces a phone number to its last nine digits so local and
// international forms of the same number compare equal.
func PhoneKey(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) > phoneKeyDigits {
		return digits[len(digits)-phoneKeyDigits:]
	}
	return digits
}

// features are the comparison inputs derived once per contact.
type features struct {
	uid    string
	fn     string
	org    string
	emails map[string]bool
	phones map[string]bool
}

func extract(c *model.Contact) features {
	fold := cases.Fold()
	f := features{
		uid:    strings.TrimSpace(c.UID),
		fn:     c.FN,
		org:    fold.String(strings.TrimSpace(c.Org)),
		emails: make(map[string]bool, len(c.Emails)),
		phones: make(map[string]bool, len(c.Phones)),
	}
	for _, e := range c.Emails {
		if e = strings.TrimSpace(e); e != "" {
			f.emails[fold.String(e)] = true
		}
	}
	for _, p := range c.Phones {
		if k := PhoneKey(p.Number); k != "" {
			f.phones[k] = true
		}
	}
	return f
}

func intersects(a, b map[string]bool) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for k := range a {
		if b[k] {
			return true
		}
	}
	return false
}

// Scorer computes pairwise similarity.
type Scorer struct {
	Text TextSimilarity
}

// NewScorer returns a Scorer using TokenSortRatio for display names.
func NewScorer() *Scorer {
	return &Scorer{Text: TokenSortRatio{}}
}

// Similarity scores two contacts from 0 to 100. Equal non-empty UIDs score
// 100 outright; otherwise shared emails, shared phone keys, display-name
// similarity, and equal organizations accumulate.
func (s *Scorer) Similarity(a, b *model.Contact) float64 {
	return s.score(extract(a), extract(b))
}

func (s *Scorer) score(a, b features) float64 {
	if a.uid != "" && a.uid == b.uid {
		return MaxScore
	}

	score := 0.0
	if intersects(a.emails, b.emails) {
		score += EmailWeight
	}
	if intersects(a.phones, b.phones) {
		score += PhoneWeight
	}
	score += NameWeight * s.Text.Score(a.fn, b.fn)
	if a.org != "" && a.org == b.org {
		score += OrgWeight
	}

	if score > MaxScore {
		return MaxScore
	}
	return score
}

// FindDuplicateClusters partitions contacts greedily: each unvisited contact
// seeds a cluster and claims every later unvisited contact scoring at least
// ClusterThreshold against the seed. Members are compared with the seed
// only, not with each other. Singletons are included; output order follows
// input order.
func (s *Scorer) FindDuplicateClusters(contacts []*model.Contact) []Cluster {
	feats := make([]features, len(contacts))
	for i, c := range contacts {
		feats[i] = extract(c)
	}

	visited := make([]bool, len(contacts))
	var clusters []Cluster
	for i, seed := range contacts {
		if visited[i] {
			continue
		}
		visited[i] = true
		cluster := Cluster{seed}
		for j := i + 1; j < len(contacts); j++ {
			if visited[j] {
				continue
			}
			if s.score(feats[i], feats[j]) >= ClusterThreshold {
				visited[j] = true
				cluster = append(cluster, contacts[j])
			}
		}
		clusters = append(clusters, cluster)
	}

	dupes := len(Duplicates(clusters))
	zap.L().Info("dedupe: clustered contacts",
		zap.Int("contacts", len(contacts)),
		zap.Int("clusters", len(clusters)),
		zap.Int("duplicate_clusters", dupes),
	)
	return clusters
}

// AllPairsAtLeast reports whether every pair in the cluster scores at least
// threshold.
func (s *Scorer) AllPairsAtLeast(cluster Cluster, threshold float64) bool {
	feats := make([]features, len(cluster))
	for i, c := range cluster {
		feats[i] = extract(c)
	}
	for i := range feats {
		for j := i + 1; j < len(feats); j++ {
			if s.score(feats[i], feats[j]) < threshold {
				return false
			}
		}
	}
	return true
}

// FindDuplicateClusters clusters with the default scorer.
func FindDuplicateClusters(contacts []*model.Contact) []Cluster {
	return NewScorer().FindDuplicateClusters(contacts)
}

// Similarity scores with the default scorer.
func Similarity(a, b *model.Contact) float64 {
	return NewScorer().Similarity(a, b)
}

// Duplicates returns the clusters with more than one member.
func Duplicates(clusters []Cluster) []Cluster {
	var out []Cluster
	for _, c := range clusters {
		if len(c) > 1 {
			out = append(out, c)
		}
	}
	return out
}

// Sources returns the distinct provenance labels across the cluster in first
// seen order.
func (c Cluster) Sources() []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range c {
		for _, s := range m.Sources {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	return out
}

// CrossSource reports whether the cluster draws on more than one source.
func (c Cluster) CrossSource() bool {
	return len(c.Sources()) > 1
}
