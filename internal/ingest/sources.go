package ingest

import (
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Source is an input file and its provenance label.
type Source struct {
	Path  string `json:"path"`
	Label string `json:"label"`
}

// SourceSet is a discovered set of input files. Close removes anything
// extracted from archives.
type SourceSet struct {
	Sources []Source
	tmpDir  string
}

// Close removes the temporary extraction directory, if any.
func (s *SourceSet) Close() error {
	if s == nil || s.tmpDir == "" {
		return nil
	}
	return os.RemoveAll(s.tmpDir)
}

// Labels returns the source labels in order.
func (s *SourceSet) Labels() []string {
	out := make([]string, len(s.Sources))
	for i, src := range s.Sources {
		out[i] = src.Label
	}
	return out
}

var placeholders = []string{"sample.vcf", "example.vcf", "placeholder.vcf"}

func isCardFile(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".vcf")
}

func isPlaceholder(name string) bool {
	base := strings.ToLower(filepath.Base(name))
	return strings.HasPrefix(base, ".") || slices.Contains(placeholders, base)
}

// Discover lists the .vcf files directly inside dir, plus the .vcf entries of
// any .zip archives there. A missing directory yields an empty set.
func Discover(dir string) (*SourceSet, error) {
	set := &SourceSet{}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return set, nil
		}
		return nil, eris.Wrapf(err, "ingest: list %s", dir)
	}

	for _, e := range entries {
		if e.IsDir() || isPlaceholder(e.Name()) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		switch {
		case isCardFile(e.Name()):
			set.Sources = append(set.Sources, Source{Path: path, Label: SourceLabel(path)})
		case strings.EqualFold(filepath.Ext(e.Name()), ".zip"):
			if err := set.addArchive(path); err != nil {
				zap.L().Warn("ingest: skipping archive", zap.String("path", path), zap.Error(err))
			}
		}
	}

	slices.SortFunc(set.Sources, func(a, b Source) int { return strings.Compare(a.Path, b.Path) })
	return set, nil
}

func (s *SourceSet) addArchive(path string) error {
	if s.tmpDir == "" {
		dir, err := os.MkdirTemp("", "vcard-normalize-*")
		if err != nil {
			return eris.Wrap(err, "ingest: create temp dir")
		}
		s.tmpDir = dir
	}

	archive := SourceLabel(path)
	dest := filepath.Join(s.tmpDir, archive)
	files, err := ExtractCards(path, dest)
	if err != nil {
		return err
	}
	for _, f := range files {
		if isPlaceholder(f) {
			continue
		}
		s.Sources = append(s.Sources, Source{Path: f, Label: archive + "/" + SourceLabel(f)})
	}
	return nil
}

// FromGlobs expands glob patterns into a sorted, de-duplicated set of .vcf
// files.
func FromGlobs(patterns []string) (*SourceSet, error) {
	seen := make(map[string]bool)
	set := &SourceSet{}
	for _, p := range patterns {
		matches, err := filepath.Glob(p)
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: bad pattern %q", p)
		}
		for _, m := range matches {
			if seen[m] || !isCardFile(m) {
				continue
			}
			if fi, err := os.Stat(m); err != nil || fi.IsDir() {
				continue
			}
			seen[m] = true
			set.Sources = append(set.Sources, Source{Path: m, Label: SourceLabel(m)})
		}
	}
	slices.SortFunc(set.Sources, func(a, b Source) int { return strings.Compare(a.Path, b.Path) })
	return set, nil
}

// FromPaths wraps explicit file paths.
func FromPaths(paths ...string) *SourceSet {
	set := &SourceSet{}
	for _, p := range paths {
		set.Sources = append(set.Sources, Source{Path: p, Label: SourceLabel(p)})
	}
	return set
}
