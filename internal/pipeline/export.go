package pipeline

import (
	"context"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/vcard-normalizer/internal/export"
	"github.com/sells-group/vcard-normalizer/internal/report"
)

// ExportOptions configures stage 8.
type ExportOptions struct {
	Dir     string
	Owner   string
	Version string
	// Categories limits the export to contacts carrying any of them.
	Categories []string
	CSV        bool
	XLSX       bool
	// Individual additionally writes one file per contact into a
	// timestamped subdirectory of Dir.
	Individual bool
	Changelog  bool
	Now        time.Time
}

// ExportResult reports what stage 8 wrote.
type ExportResult struct {
	Cards      export.Result  `json:"cards"`
	CSV        *export.Result `json:"csv,omitempty"`
	XLSX       *export.Result `json:"xlsx,omitempty"`
	Individual *export.Result `json:"individual,omitempty"`
	Changelog  string         `json:"changelog,omitempty"`
	// Dropped counts sentinel-marked contacts removed before writing.
	Dropped int `json:"dropped"`
}

// Export writes res.Contacts and completes the run record.
func (p *Pipeline) Export(ctx context.Context, res *Result, opts ExportOptions) (*ExportResult, error) {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	version := opts.Version
	if version == "" {
		version = export.Version4
	}
	if !export.ValidVersion(version) {
		return nil, eris.Errorf("pipeline: unsupported vCard version %q", version)
	}

	contacts := export.FilterCategories(res.Contacts, opts.Categories)
	sorted, dropped := export.Prepare(contacts)
	out := &ExportResult{Dropped: dropped}
	vopts := export.Options{Version: version, Now: now}

	path := filepath.Join(opts.Dir, export.OutputName(opts.Owner, opts.Categories, now, "vcf"))
	cards, err := export.WriteVCF(path, sorted, vopts)
	if err != nil {
		p.fail(ctx, res.RunID, err)
		return nil, eris.Wrap(err, "pipeline: export cards")
	}
	out.Cards = cards

	if opts.CSV {
		r, err := export.WriteCSV(filepath.Join(opts.Dir, export.OutputName(opts.Owner, opts.Categories, now, "csv")), sorted)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: export csv")
		}
		out.CSV = &r
	}
	if opts.XLSX {
		r, err := export.WriteXLSX(filepath.Join(opts.Dir, export.OutputName(opts.Owner, opts.Categories, now, "xlsx")), sorted)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: export xlsx")
		}
		out.XLSX = &r
	}
	if opts.Individual {
		dir := filepath.Join(opts.Dir, "cards-"+now.UTC().Format("20060102T150405Z"))
		r, err := export.WriteIndividual(dir, sorted, vopts)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: export individual cards")
		}
		out.Individual = &r
	}
	if opts.Changelog {
		logPath, err := report.WriteChangelog(cards.Path, sorted)
		if err != nil {
			// The export itself succeeded.
			zap.L().Warn("pipeline: change log not written", zap.Error(err))
		} else {
			out.Changelog = logPath
		}
	}

	if err := p.complete(ctx, res, out); err != nil {
		zap.L().Warn("pipeline: run history not updated", zap.String("run_id", res.RunID), zap.Error(err))
	}
	return out, nil
}

// Summary builds the end-of-run report.
func (res *Result) Summary(exp *ExportResult) report.Summary {
	s := report.Summary{
		SourceCounts:      res.SourceCounts,
		InputCount:        res.InputCount,
		OutputCount:       len(res.Contacts),
		DuplicateClusters: res.DuplicateClusters,
		CrossSource:       res.CrossSource,
		Deleted:           res.Deleted,
		Contacts:          res.Contacts,
		DryRun:            exp == nil,
	}
	if exp != nil {
		s.Written = exp.Cards.Written
		s.Skipped = exp.Cards.Skipped
		s.OutputPath = exp.Cards.Path
	}
	return s
}
