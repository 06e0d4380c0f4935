// Package export writes the final contact set as vCard, CSV, or XLSX.
package export

import (
	"io"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/vcard-normalizer/internal/model"
)

// Result counts the records handled by a writer. Written+Skipped always
// equals the number of records given to it.
type Result struct {
	Path    string `json:"path"`
	Written int    `json:"written"`
	Skipped int    `json:"skipped"`
}

// Total returns Written+Skipped.
func (r Result) Total() int { return r.Written + r.Skipped }

// Prepare drops contacts marked for deletion and sorts the rest by display
// name, then structured name. The sort is stable.
func Prepare(contacts []*model.Contact) ([]*model.Contact, int) {
	out := make([]*model.Contact, 0, len(contacts))
	dropped := 0
	for _, c := range contacts {
		if c.MarkedForDeletion() {
			dropped++
			continue
		}
		out = append(out, c)
	}
	slices.SortStableFunc(out, func(a, b *model.Contact) int {
		if n := strings.Compare(a.FN, b.FN); n != 0 {
			return n
		}
		return strings.Compare(a.Name.SortKey(), b.Name.SortKey())
	})
	if dropped > 0 {
		zap.L().Info("export: dropped contacts marked for deletion", zap.Int("count", dropped))
	}
	return out, dropped
}

// FilterCategories keeps contacts carrying any of cats. An empty cats keeps
// everything.
func FilterCategories(contacts []*model.Contact, cats []string) []*model.Contact {
	if len(cats) == 0 {
		return contacts
	}
	var out []*model.Contact
	for _, c := range contacts {
		if slices.ContainsFunc(cats, c.HasCategory) {
			out = append(out, c)
		}
	}
	return out
}

var reUnsafe = regexp.MustCompile(`[^\p{L}\p{N}._-]+`)

// OutputName builds "YYYY-MM-DD-Contacts-of-<owner>[-<cats>].<ext>".
func OutputName(owner string, cats []string, now time.Time, ext string) string {
	parts := []string{now.Format("2006-01-02"), "Contacts-of", safe(owner, "Owner")}
	for _, c := range cats {
		if s := safe(c, ""); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "-") + "." + strings.TrimPrefix(ext, ".")
}

func safe(s, fallback string) string {
	s = strings.Trim(reUnsafe.ReplaceAllString(strings.TrimSpace(s), "-"), "-")
	if s == "" {
		return fallback
	}
	return s
}

// writeAtomic writes through a temp file in the target directory and renames
// it into place, so a failed write leaves any previous file untouched.
func writeAtomic(path string, write func(w io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "export: create dir %s", dir)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return eris.Wrap(err, "export: create temp file")
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) //nolint:errcheck

	if err := write(tmp); err != nil {
		tmp.Close() //nolint:errcheck
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrap(err, "export: sync")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "export: close")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return eris.Wrapf(err, "export: rename to %s", path)
	}
	return nil
}

// WriteFileAtomic replaces path with data through a temp file and rename.
func WriteFileAtomic(path string, data []byte) error {
	return writeAtomic(path, func(w io.Writer) error {
		_, err := w.Write(data)
		return eris.Wrap(err, "export: write")
	})
}
