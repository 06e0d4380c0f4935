package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"

	"github.com/sells-group/vcard-normalizer/internal/merge"
	"github.com/sells-group/vcard-normalizer/internal/model"
)

// terminal asks the user to resolve duplicates and fill in missing
// countries. It implements merge.Decider and enrich.CountryPrompter.
type terminal struct {
	in  *bufio.Reader
	out io.Writer
}

func newTerminal(in io.Reader, out io.Writer) *terminal {
	return &terminal{in: bufio.NewReader(in), out: out}
}

func (t *terminal) readLine() (string, error) {
	line, err := t.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", eris.Wrap(err, "read answer")
	}
	return strings.TrimSpace(line), nil
}

// Decide shows the cluster and reads one answer.
func (t *terminal) Decide(_ context.Context, p merge.Prompt) (merge.Decision, error) {
	if p.Retry != nil {
		fmt.Fprintf(t.out, "  %v\n", p.Retry)
	} else {
		t.showCluster(p)
	}
	fmt.Fprintf(t.out, "Keep which? [1-%d] number, (u)nion, (d)elete, (a)bort: ", len(p.Cluster))

	line, err := t.readLine()
	if err != nil {
		return merge.Decision{}, err
	}
	if line == "" {
		line = "u"
	}
	return merge.ParseDecision(line, len(p.Cluster))
}

func (t *terminal) showCluster(p merge.Prompt) {
	fmt.Fprintf(t.out, "\nDuplicate cluster %d of %d\n", p.Index+1, p.Total)
	tw := tabwriter.NewWriter(t.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tNAME\tEMAILS\tPHONES\tORG\tSOURCE\tMATCH")
	for i, c := range p.Cluster {
		score := ""
		if i < len(p.Scores) {
			score = fmt.Sprintf("%.0f%%", p.Scores[i])
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			i+1,
			c.Label(),
			strings.Join(c.Emails, ", "),
			strings.Join(c.PhoneNumbers(), ", "),
			c.Org,
			strings.Join(c.Sources, ", "),
			score,
		)
	}
	_ = tw.Flush()
}

// PromptCountry asks for the country of an address. An empty answer skips.
func (t *terminal) PromptCountry(c *model.Contact, addr model.Address) (string, error) {
	fmt.Fprintf(t.out, "%s: %s\nCountry (blank to skip): ", c.Label(), addr)
	return t.readLine()
}

// confirm asks a yes/no question. A blank answer takes def.
func (t *terminal) confirm(question string, def bool) (bool, error) {
	hint := "y/N"
	if def {
		hint = "Y/n"
	}
	fmt.Fprintf(t.out, "%s [%s] ", question, hint)
	line, err := t.readLine()
	if err != nil {
		return false, err
	}
	switch strings.ToLower(line) {
	case "":
		return def, nil
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
