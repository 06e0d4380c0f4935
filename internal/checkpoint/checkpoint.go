// Package checkpoint saves and restores the in-progress contact set so an
// interrupted review can resume.
package checkpoint

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/vcard-normalizer/internal/export"
	"github.com/sells-group/vcard-normalizer/internal/ingest"
	"github.com/sells-group/vcard-normalizer/internal/model"
	"github.com/sells-group/vcard-normalizer/internal/normalize"
)

// File names inside the work directory.
const (
	CardsFile = "checkpoint.vcf"
	MetaFile  = "checkpoint.json"
)

// Meta is the sidecar record saved next to the cards.
type Meta struct {
	SavedAt           time.Time `json:"saved_at"`
	ReviewIndex       int       `json:"review_index"`
	TotalCards        int       `json:"total_cards"`
	InputCount        int       `json:"input_count"`
	DuplicateClusters int       `json:"duplicate_clusters"`
	SourceFiles       []string  `json:"source_files"`
}

// Checkpoint is a restored contact set with its metadata.
type Checkpoint struct {
	Contacts []*model.Contact
	Meta     Meta
}

// Save writes the contact set and metadata into dir. Contacts marked for
// deletion are kept so a resumed session sees them.
func Save(dir string, contacts []*model.Contact, meta Meta) error {
	if meta.SavedAt.IsZero() {
		meta.SavedAt = time.Now().UTC()
	}
	meta.TotalCards = len(contacts)
	if meta.SourceFiles == nil {
		meta.SourceFiles = []string{}
	}

	res, err := export.WriteVCF(filepath.Join(dir, CardsFile), contacts, export.Options{
		Version:    export.Version4,
		Provenance: true,
		Now:        meta.SavedAt,
	})
	if err != nil {
		return eris.Wrap(err, "checkpoint: write cards")
	}
	if res.Skipped > 0 {
		zap.L().Warn("checkpoint: some contacts could not be saved", zap.Int("skipped", res.Skipped))
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return eris.Wrap(err, "checkpoint: marshal meta")
	}
	if err := export.WriteFileAtomic(filepath.Join(dir, MetaFile), data); err != nil {
		return eris.Wrap(err, "checkpoint: write meta")
	}

	zap.L().Info("checkpoint: saved",
		zap.String("dir", dir),
		zap.Int("cards", res.Written),
		zap.Int("review_index", meta.ReviewIndex),
	)
	return nil
}

// Info returns the saved metadata without loading cards, or nil when there
// is no readable checkpoint.
func Info(dir string) *Meta {
	data, err := os.ReadFile(filepath.Join(dir, MetaFile))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			zap.L().Warn("checkpoint: unreadable meta", zap.Error(err))
		}
		return nil
	}
	var m Meta
	if err := json.Unmarshal(data, &m); err != nil {
		zap.L().Warn("checkpoint: corrupt meta", zap.Error(err))
		return nil
	}
	return &m
}

// Load re-reads a checkpoint through the same path as fresh input. It
// returns nil when either file is missing or unreadable.
func Load(dir string) *Checkpoint {
	meta := Info(dir)
	if meta == nil {
		return nil
	}
	records, _, err := ingest.ReadFile(filepath.Join(dir, CardsFile), "checkpoint")
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			zap.L().Warn("checkpoint: unreadable cards", zap.Error(err))
		}
		return nil
	}
	contacts, _ := normalize.CanonicalizeAll(records)
	return &Checkpoint{Contacts: contacts, Meta: *meta}
}

// Exists reports whether both checkpoint files are present.
func Exists(dir string) bool {
	for _, name := range []string{CardsFile, MetaFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			return false
		}
	}
	return true
}

// Clear removes the checkpoint files. Missing files are not an error.
func Clear(dir string) error {
	for _, name := range []string{CardsFile, MetaFile} {
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return eris.Wrapf(err, "checkpoint: remove %s", name)
		}
	}
	return nil
}
