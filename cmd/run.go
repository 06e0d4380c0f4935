package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/vcard-normalizer/internal/export"
	"github.com/sells-group/vcard-normalizer/internal/ingest"
	"github.com/sells-group/vcard-normalizer/internal/model"
	"github.com/sells-group/vcard-normalizer/internal/pipeline"
	"github.com/sells-group/vcard-normalizer/internal/report"
)

// runFlags are the options shared by merge, ingest and checkpoint resume.
type runFlags struct {
	owner            string
	region           string
	outputDir        string
	version          string
	categories       []string
	noInteractive    bool
	yes              bool
	keepUnknown      bool
	noAutoCategories bool
	dryRun           bool
	diff             bool
	changelog        bool
	csv              bool
	xlsx             bool
	individual       bool
}

func addRunFlags(cmd *cobra.Command, f *runFlags) {
	fs := cmd.Flags()
	fs.StringVarP(&f.owner, "owner-name", "n", "", "owner name for the output filename (default from config)")
	fs.StringVarP(&f.region, "region", "r", "", "default phone region, ISO 3166 alpha-2 (default from config)")
	fs.StringVarP(&f.outputDir, "output-dir", "o", "", "directory for exported files (default from config)")
	fs.StringVar(&f.version, "vcard-version", "", "target vCard version, 3.0 or 4.0 (default from config)")
	fs.StringSliceVar(&f.categories, "categories", nil, "only export contacts in these categories")
	fs.BoolVar(&f.noInteractive, "no-interactive", false, "auto-merge every duplicate cluster")
	fs.BoolVarP(&f.yes, "yes", "y", false, "skip the confirmation prompt")
	fs.BoolVar(&f.keepUnknown, "keep-unknown", false, "keep unknown X- properties")
	fs.BoolVar(&f.noAutoCategories, "no-auto-categories", false, "do not tag categories from name and organisation rules")
	fs.BoolVar(&f.dryRun, "dry-run", false, "preview without writing any files")
	fs.BoolVar(&f.diff, "diff", false, "print the per-contact change log")
	fs.BoolVar(&f.changelog, "write-changelog", false, "write a .changes.txt file next to the export")
	fs.BoolVar(&f.csv, "csv", false, "also export a CSV file")
	fs.BoolVar(&f.xlsx, "xlsx", false, "also export an XLSX workbook")
	fs.BoolVar(&f.individual, "individual", false, "also write one .vcf file per contact")
}

func (f *runFlags) interactive() bool { return !f.noInteractive }

func (f *runFlags) ownerName() string {
	if f.owner != "" {
		return f.owner
	}
	return cfg.OwnerName
}

func (f *runFlags) defaultRegion() string {
	if f.region != "" {
		return f.region
	}
	return cfg.DefaultRegion
}

// options builds pipeline options from config and flags.
func (f *runFlags) options(term *terminal) pipeline.Options {
	opts := pipeline.OptionsFromConfig(cfg)
	opts.DefaultRegion = f.defaultRegion()
	opts.KeepUnknown = opts.KeepUnknown || f.keepUnknown
	opts.AutoCategories = opts.AutoCategories && !f.noAutoCategories
	if f.interactive() {
		opts.Mode = model.RunModeInteractive
		opts.Decider = term
		opts.Countries = term
		opts.CheckpointDir = cfg.Workspace.WorkDir
	}
	return opts
}

func (f *runFlags) exportOptions(now time.Time) pipeline.ExportOptions {
	dir := f.outputDir
	if dir == "" {
		dir = cfg.Workspace.OutputDir
	}
	version := f.version
	if version == "" {
		version = cfg.Pipeline.VCardVersion
	}
	return pipeline.ExportOptions{
		Dir:        dir,
		Owner:      f.ownerName(),
		Version:    version,
		Categories: f.categories,
		CSV:        f.csv,
		XLSX:       f.xlsx,
		Individual: f.individual,
		Changelog:  f.changelog,
		Now:        now,
	}
}

// runPipeline processes the sources and exports the result.
func runPipeline(ctx context.Context, out io.Writer, term *terminal, set *ingest.SourceSet, f *runFlags) error {
	st, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	fmt.Fprintf(out, "\nReading %d file(s)…\n", len(set.Sources))
	for _, s := range set.Sources {
		fmt.Fprintf(out, "  %s\n", s.Label)
	}

	opts := f.options(term)
	opts.Sources = set.Sources

	p := pipeline.New(st)
	res, err := p.Run(ctx, opts, progressPrinter(out))
	if err != nil {
		return eris.Wrap(err, "merge")
	}
	return finishRun(ctx, out, p, res, f)
}

// finishRun reports on res and, unless this is a dry run, exports it.
func finishRun(ctx context.Context, out io.Writer, p *pipeline.Pipeline, res *pipeline.Result, f *runFlags) error {
	fmt.Fprintf(out, "  Parsed %d vCard(s) from %d source file(s)\n", res.InputCount, len(res.SourceCounts))
	if res.DuplicateClusters > 0 {
		fmt.Fprintf(out, "  Duplicate clusters: %d (%d cross-source)\n", res.DuplicateClusters, res.CrossSource)
	}
	if res.Aborted {
		fmt.Fprintf(out, "  Review stopped after %d of %d cluster(s); the rest were kept as separate contacts.\n",
			res.ReviewIndex, res.DuplicateClusters)
		fmt.Fprintln(out, "  Resume later with: vcard-normalize checkpoint resume")
	}
	if res.Deleted > 0 {
		fmt.Fprintf(out, "  Deleted %d contact(s) during review.\n", res.Deleted)
	}

	if f.dryRun {
		if err := p.Complete(ctx, res); err != nil {
			zap.L().Warn("run history not updated", zap.Error(err))
		}
		fmt.Fprintln(out, "\nDry-run mode, no files written.")
		return printReport(out, res, nil, f)
	}

	exp, err := p.Export(ctx, res, f.exportOptions(time.Now()))
	if err != nil {
		return eris.Wrap(err, "export")
	}
	fmt.Fprintf(out, "\nWrote %d contact(s) → %s\n", exp.Cards.Written, exp.Cards.Path)
	for _, extra := range []struct {
		name string
		path string
	}{
		{"CSV", pathOf(exp.CSV)},
		{"XLSX", pathOf(exp.XLSX)},
		{"Cards", pathOf(exp.Individual)},
		{"Change log", exp.Changelog},
	} {
		if extra.path != "" {
			fmt.Fprintf(out, "%s → %s\n", extra.name, extra.path)
		}
	}
	return printReport(out, res, exp, f)
}

func printReport(out io.Writer, res *pipeline.Result, exp *pipeline.ExportResult, f *runFlags) error {
	fmt.Fprintln(out)
	if err := res.Summary(exp).Print(out); err != nil {
		return err
	}
	if f.diff {
		fmt.Fprintln(out)
		return report.PrintDiff(out, res.Contacts)
	}
	return nil
}

func pathOf(r *export.Result) string {
	if r == nil {
		return ""
	}
	return r.Path
}

func progressPrinter(out io.Writer) pipeline.ProgressFunc {
	return func(pct int, msg string) {
		zap.L().Debug("progress", zap.Int("pct", pct), zap.String("msg", msg))
		if pct < 100 {
			fmt.Fprintf(out, "  [%3d%%] %s\n", pct, msg)
		}
	}
}
