package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/vcard-normalizer/internal/ingest"
	"github.com/sells-group/vcard-normalizer/internal/pipeline"
)

var (
	ingestFlags  runFlags
	ingestInputs []string
)

var ingestCmd = &cobra.Command{
	Use:          "ingest",
	Short:        "Normalise and merge .vcf files chosen by glob patterns",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("ingest"); err != nil {
			return err
		}

		set, err := ingest.FromGlobs(ingestInputs)
		if err != nil {
			return eris.Wrap(err, "ingest: expand inputs")
		}
		defer set.Close() //nolint:errcheck

		out := cmd.OutOrStdout()
		if len(set.Sources) == 0 {
			cmd.PrintErrln("No .vcf files found.")
			return pipeline.ErrNoInput
		}

		term := newTerminal(cmd.InOrStdin(), out)
		return runPipeline(cmd.Context(), out, term, set, &ingestFlags)
	},
}

func init() {
	ingestCmd.Flags().StringSliceVarP(&ingestInputs, "input", "i", nil, "glob(s) for .vcf input files (required)")
	_ = ingestCmd.MarkFlagRequired("input")
	addRunFlags(ingestCmd, &ingestFlags)
	rootCmd.AddCommand(ingestCmd)
}
