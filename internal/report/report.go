// Package report renders end-of-run summaries and per-contact change logs.
package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"

	"github.com/sells-group/vcard-normalizer/internal/export"
	"github.com/sells-group/vcard-normalizer/internal/model"
)

// Audit-log prefixes counted in the summary.
const (
	KeyPhones     = "Phone(s) reformatted"
	KeyStripped   = "Stripped"
	KeyAutoTagged = "Auto-tagged categories"
)

// Summary is the end-of-run report.
type Summary struct {
	SourceCounts      map[string]int
	InputCount        int
	OutputCount       int
	DuplicateClusters int
	CrossSource       int
	Deleted           int
	Written           int
	Skipped           int
	OutputPath        string
	DryRun            bool
	Contacts          []*model.Contact
}

// MergedAway is the number of input contacts absorbed into others.
func (s Summary) MergedAway() int {
	if n := s.InputCount - s.OutputCount - s.Deleted; n > 0 {
		return n
	}
	return 0
}

// CountChanges counts contacts whose audit log has an entry containing
// keyword, case-insensitively.
func CountChanges(contacts []*model.Contact, keyword string) int {
	keyword = strings.ToLower(keyword)
	n := 0
	for _, c := range contacts {
		for _, chg := range c.Changes {
			if strings.Contains(strings.ToLower(chg), keyword) {
				n++
				break
			}
		}
	}
	return n
}

// Print writes the summary as aligned columns.
func (s Summary) Print(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	if len(s.SourceCounts) > 1 {
		fmt.Fprintln(tw, "SOURCE\tCARDS READ")
		labels := make([]string, 0, len(s.SourceCounts))
		for l := range s.SourceCounts {
			labels = append(labels, l)
		}
		sort.Strings(labels)
		for _, l := range labels {
			fmt.Fprintf(tw, "%s\t%d\n", l, s.SourceCounts[l])
		}
		fmt.Fprintln(tw)
	}

	fmt.Fprintf(tw, "Contacts read in\t%d\n", s.InputCount)
	fmt.Fprintf(tw, "Contacts written out\t%d\n", s.OutputCount)
	if n := s.MergedAway(); n > 0 {
		fmt.Fprintf(tw, "Duplicates merged away\t%d\n", n)
	}
	fmt.Fprintf(tw, "Duplicate clusters found\t%d\n", s.DuplicateClusters)
	if s.CrossSource > 0 {
		fmt.Fprintf(tw, "Clusters spanning sources\t%d\n", s.CrossSource)
	}
	if s.Deleted > 0 {
		fmt.Fprintf(tw, "Contacts deleted in review\t%d\n", s.Deleted)
	}
	if n := CountChanges(s.Contacts, KeyPhones); n > 0 {
		fmt.Fprintf(tw, "Contacts with phones reformatted\t%d\n", n)
	}
	if n := CountChanges(s.Contacts, KeyStripped); n > 0 {
		fmt.Fprintf(tw, "Contacts with photos/proprietary stripped\t%d\n", n)
	}
	if n := CountChanges(s.Contacts, KeyAutoTagged); n > 0 {
		fmt.Fprintf(tw, "Contacts auto-tagged with categories\t%d\n", n)
	}
	if s.Skipped > 0 {
		fmt.Fprintf(tw, "Contacts skipped on export\t%d\n", s.Skipped)
	}
	out := s.OutputPath
	if s.DryRun {
		out = "<dry-run>"
	}
	if out != "" {
		fmt.Fprintf(tw, "Output file\t%s\n", out)
	}
	return eris.Wrap(tw.Flush(), "report: flush summary")
}

func changed(contacts []*model.Contact) []*model.Contact {
	var out []*model.Contact
	for _, c := range contacts {
		if len(c.Changes) > 0 {
			out = append(out, c)
		}
	}
	return out
}

func heading(c *model.Contact) string {
	label := c.FN
	if label == "" {
		label = c.Org
	}
	if label == "" {
		label = "Unnamed"
	}
	return label
}

// PrintDiff writes the audit log of every changed contact.
func PrintDiff(w io.Writer, contacts []*model.Contact) error {
	ch := changed(contacts)
	var b strings.Builder
	if len(ch) == 0 {
		b.WriteString("No per-contact changes to show.\n")
	} else {
		fmt.Fprintf(&b, "Changes (%d contact(s))\n", len(ch))
		for _, c := range ch {
			fmt.Fprintf(&b, "  %s", heading(c))
			if len(c.Sources) > 0 {
				fmt.Fprintf(&b, " (from: %s)", strings.Join(c.Sources, ", "))
			}
			b.WriteString("\n")
			for _, chg := range c.Changes {
				fmt.Fprintf(&b, "    · %s\n", chg)
			}
		}
	}
	_, err := io.WriteString(w, b.String())
	return eris.Wrap(err, "report: write diff")
}

// Changelog renders the plain-text change log.
func Changelog(contacts []*model.Contact) string {
	ch := changed(contacts)
	var b strings.Builder
	b.WriteString("vcard-normalizer change log\n")
	b.WriteString(strings.Repeat("=", 40) + "\n")
	fmt.Fprintf(&b, "Contacts modified: %d\n\n", len(ch))
	for _, c := range ch {
		b.WriteString(heading(c) + ":")
		if len(c.Sources) > 0 {
			fmt.Fprintf(&b, "  (sources: %s)", strings.Join(c.Sources, ", "))
		}
		b.WriteString("\n")
		for _, chg := range c.Changes {
			fmt.Fprintf(&b, "  - %s\n", chg)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// ChangelogPath returns the change-log path for an export path:
// "out.vcf" becomes "out.changes.txt".
func ChangelogPath(outputPath string) string {
	if i := strings.LastIndexByte(outputPath, '.'); i > strings.LastIndexAny(outputPath, `/\`) {
		outputPath = outputPath[:i]
	}
	return outputPath + ".changes.txt"
}

// WriteChangelog writes the change log next to the export.
func WriteChangelog(outputPath string, contacts []*model.Contact) (string, error) {
	path := ChangelogPath(outputPath)
	if err := export.WriteFileAtomic(path, []byte(Changelog(contacts))); err != nil {
		return "", eris.Wrap(err, "report: write change log")
	}
	return path, nil
}
