package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/vcard-normalizer/internal/ingest"
	"github.com/sells-group/vcard-normalizer/internal/pipeline"
)

var (
	mergeFlags runFlags
	mergeDir   string
)

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Merge the contact exports in the drop folder into one clean file",
	Long: `Merge contact exports from iCloud, Proton, Google, etc. into one clean file.

Export contacts from each source as a .vcf file (or a .zip of them), drop
them into the input folder, and run "vcard-normalize merge".`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("merge"); err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		dir := mergeDir
		if dir == "" {
			dir = cfg.Workspace.InputDir
		}
		set, err := ingest.Discover(dir)
		if err != nil {
			return eris.Wrap(err, "merge: discover sources")
		}
		defer set.Close() //nolint:errcheck

		if len(set.Sources) == 0 {
			printNothingToDo(out, dir)
			return pipeline.ErrNoInput
		}

		term := newTerminal(cmd.InOrStdin(), out)
		printSources(out, dir, set, &mergeFlags)

		if !mergeFlags.yes && !mergeFlags.dryRun {
			ok, err := term.confirm("Proceed with merge?", true)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(out, "Aborted.")
				return nil
			}
		}

		return runPipeline(cmd.Context(), out, term, set, &mergeFlags)
	},
}

func init() {
	mergeCmd.Flags().StringVarP(&mergeDir, "dir", "d", "", "folder holding the exported .vcf files (default from config)")
	addRunFlags(mergeCmd, &mergeFlags)
	rootCmd.AddCommand(mergeCmd)
}

func printNothingToDo(w io.Writer, dir string) {
	fmt.Fprintln(w, "Nothing to merge")
	fmt.Fprintln(w, "────────────────")
	fmt.Fprintf(w, "No .vcf files found in %s/\n\n", dir)
	fmt.Fprintln(w, "Drop your exported contact files here and re-run:")
	for _, name := range []string{"icloud.vcf", "protonmail.vcf", "google.vcf"} {
		fmt.Fprintf(w, "  %s\n", filepath.Join(dir, name))
	}
}

func printSources(w io.Writer, dir string, set *ingest.SourceSet, f *runFlags) {
	fmt.Fprintf(w, "\nFound %d source file(s) in %s/\n\n", len(set.Sources), dir)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "SOURCE FILE\tSIZE\tMODIFIED")
	for _, s := range set.Sources {
		size, modified := "-", "-"
		if fi, err := os.Stat(s.Path); err == nil {
			size = fmt.Sprintf("%.1f KB", float64(fi.Size())/1024)
			modified = fi.ModTime().Format("2006-01-02 15:04")
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Label, size, modified)
	}
	_ = tw.Flush()

	mode := "interactive review"
	if !f.interactive() {
		mode = "auto-merge"
	}
	fmt.Fprintf(w, "\n  Owner name  : %s\n", f.ownerName())
	fmt.Fprintf(w, "  Phone region: %s\n", f.defaultRegion())
	fmt.Fprintf(w, "  Mode        : %s\n", mode)
	if f.dryRun {
		fmt.Fprintln(w, "  Dry run, nothing will be written")
	}
	fmt.Fprintln(w)
}
