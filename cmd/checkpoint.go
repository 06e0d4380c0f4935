package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/vcard-normalizer/internal/checkpoint"
	"github.com/sells-group/vcard-normalizer/internal/pipeline"
)

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Inspect, clear, or resume the work-in-progress checkpoint",
}

var checkpointShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the saved checkpoint",
	RunE: func(cmd *cobra.Command, _ []string) error {
		meta := checkpoint.Info(cfg.Workspace.WorkDir)
		if meta == nil {
			cmd.PrintErrln("No checkpoint found.")
			return nil
		}
		formatCheckpoint(cmd.OutOrStdout(), cfg.Workspace.WorkDir, meta)
		return nil
	},
}

var checkpointClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the saved checkpoint",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if !checkpoint.Exists(cfg.Workspace.WorkDir) {
			cmd.PrintErrln("No checkpoint found.")
			return nil
		}
		if err := checkpoint.Clear(cfg.Workspace.WorkDir); err != nil {
			return eris.Wrap(err, "checkpoint clear")
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Checkpoint cleared.")
		return nil
	},
}

var resumeFlags runFlags

var checkpointResumeCmd = &cobra.Command{
	Use:          "resume",
	Short:        "Resume duplicate review from the saved checkpoint and export",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("merge"); err != nil {
			return err
		}
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		cp := checkpoint.Load(cfg.Workspace.WorkDir)
		if cp == nil {
			cmd.PrintErrln("No checkpoint found.")
			return pipeline.ErrNoInput
		}
		fmt.Fprintf(out, "Resuming %d contact(s) saved %s\n",
			len(cp.Contacts), cp.Meta.SavedAt.Local().Format("2006-01-02 15:04"))

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		opts := resumeFlags.options(newTerminal(cmd.InOrStdin(), out))
		p := pipeline.New(st)
		res, err := p.Resume(ctx, cp, opts, progressPrinter(out))
		if err != nil {
			return eris.Wrap(err, "checkpoint resume")
		}
		return finishRun(ctx, out, p, res, &resumeFlags)
	},
}

func init() {
	addRunFlags(checkpointResumeCmd, &resumeFlags)

	checkpointCmd.AddCommand(checkpointShowCmd)
	checkpointCmd.AddCommand(checkpointClearCmd)
	checkpointCmd.AddCommand(checkpointResumeCmd)
	rootCmd.AddCommand(checkpointCmd)
}

func formatCheckpoint(out io.Writer, dir string, m *checkpoint.Meta) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Directory:\t%s\n", dir)
	_, _ = fmt.Fprintf(w, "Saved:\t%s\n", m.SavedAt.Local().Format("2006-01-02 15:04:05"))
	_, _ = fmt.Fprintf(w, "Cards:\t%d\n", m.TotalCards)
	_, _ = fmt.Fprintf(w, "Read in:\t%d\n", m.InputCount)
	_, _ = fmt.Fprintf(w, "Duplicate clusters:\t%d\n", m.DuplicateClusters)
	_, _ = fmt.Fprintf(w, "Reviewed:\t%d\n", m.ReviewIndex)
	for i, src := range m.SourceFiles {
		label := ""
		if i == 0 {
			label = "Sources:"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\n", label, src)
	}
	_ = w.Flush()
}
