package ingest

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/emersion/go-vcard"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Record is one decoded card and the label of the file it came from.
type Record struct {
	Card   vcard.Card
	Source string
}

// Stats aggregates what ingestion repaired, skipped, and ignored.
type Stats struct {
	Files           int `json:"files"`
	UnreadableFiles int `json:"unreadable_files"`
	Cards           int `json:"cards"`
	SkippedCards    int `json:"skipped_cards"`
	IgnoredBlocks   int `json:"ignored_blocks"`
	RepairedLines   int `json:"repaired_lines"`
	DroppedLines    int `json:"dropped_lines"`
}

func (s *Stats) add(o Stats) {
	s.Files += o.Files
	s.UnreadableFiles += o.UnreadableFiles
	s.Cards += o.Cards
	s.SkippedCards += o.SkippedCards
	s.IgnoredBlocks += o.IgnoredBlocks
	s.RepairedLines += o.RepairedLines
	s.DroppedLines += o.DroppedLines
}

// Batch is the output of reading a set of sources.
type Batch struct {
	Records []Record
	Sources []Source
	Stats   Stats
}

// SourceLabel derives a provenance label from a file path: the base name
// without extension.
func SourceLabel(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Decode sanitises text and decodes every VCARD block in it. Blocks of other
// types are ignored and blocks the decoder rejects are skipped.
func Decode(text, label string) ([]Record, Stats) {
	var stats Stats

	clean, ss := Sanitize(strings.ToValidUTF8(text, "\uFFFD"))
	stats.RepairedLines = ss.Repaired
	stats.DroppedLines = ss.Dropped

	var records []Record
	for _, b := range SplitBlocks(clean) {
		if b.Type != "VCARD" {
			stats.IgnoredBlocks++
			continue
		}
		card, err := decodeBlock(b.Text)
		if err != nil {
			stats.SkippedCards++
			zap.L().Debug("ingest: skipping unreadable card",
				zap.String("source", label),
				zap.Error(err),
			)
			continue
		}
		records = append(records, Record{Card: card, Source: label})
	}
	stats.Cards = len(records)

	return records, stats
}

func decodeBlock(text string) (vcard.Card, error) {
	card, err := vcard.NewDecoder(strings.NewReader(text)).Decode()
	if err != nil {
		return nil, eris.Wrap(err, "ingest: decode card")
	}
	if len(card) == 0 {
		return nil, eris.New("ingest: empty card")
	}
	return card, nil
}

// ReadFile reads and decodes one file.
func ReadFile(path, label string) ([]Record, Stats, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, Stats{}, eris.Wrapf(err, "ingest: read %s", path)
	}
	records, stats := Decode(string(data), label)
	stats.Files = 1
	return records, stats, nil
}

// Read decodes every source. A file that cannot be read is counted and
// skipped; it never fails the batch.
func Read(sources []Source) *Batch {
	batch := &Batch{Sources: sources}
	for _, src := range sources {
		records, stats, err := ReadFile(src.Path, src.Label)
		if err != nil {
			batch.Stats.UnreadableFiles++
			zap.L().Warn("ingest: skipping unreadable file", zap.String("path", src.Path), zap.Error(err))
			continue
		}
		batch.Records = append(batch.Records, records...)
		batch.Stats.add(stats)
		zap.L().Debug("ingest: read file",
			zap.String("source", src.Label),
			zap.Int("cards", stats.Cards),
			zap.Int("skipped", stats.SkippedCards),
		)
	}
	return batch
}

// SourceCounts counts records per source label.
func SourceCounts(records []Record) map[string]int {
	counts := make(map[string]int)
	for _, r := range records {
		counts[r.Source]++
	}
	return counts
}
