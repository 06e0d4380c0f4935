package classify

import (
	"go.uber.org/zap"

	"github.com/sells-group/vcard-normalizer/internal/model"
)

// Stats summarises a classification pass.
type Stats struct {
	Kinds           int `json:"kinds"`
	Tagged          int `json:"tagged"`
	NoSignal        int `json:"no_signal"`
	CategoriesAdded int `json:"categories_added"`
}

// Classifier assigns kinds and, when a Tagger is set, categories.
type Classifier struct {
	Tagger *Tagger
}

// Apply classifies every contact in order.
func (cl *Classifier) Apply(contacts []*model.Contact) Stats {
	var stats Stats
	for _, c := range contacts {
		if !HasSignal(c) {
			stats.NoSignal++
			continue
		}
		if ApplyKind(c) {
			stats.Kinds++
		}
		if cl.Tagger == nil {
			continue
		}
		if added := cl.Tagger.Tag(c); len(added) > 0 {
			stats.Tagged++
			stats.CategoriesAdded += len(added)
		}
	}
	zap.L().Info("classify: classified contacts",
		zap.Int("kinds", stats.Kinds),
		zap.Int("tagged", stats.Tagged),
		zap.Int("no_signal", stats.NoSignal),
	)
	return stats
}
