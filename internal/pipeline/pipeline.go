// Package pipeline runs the normalisation stages over a set of source files.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/vcard-normalizer/internal/checkpoint"
	"github.com/sells-group/vcard-normalizer/internal/classify"
	"github.com/sells-group/vcard-normalizer/internal/config"
	"github.com/sells-group/vcard-normalizer/internal/dedupe"
	"github.com/sells-group/vcard-normalizer/internal/enrich"
	"github.com/sells-group/vcard-normalizer/internal/ingest"
	"github.com/sells-group/vcard-normalizer/internal/merge"
	"github.com/sells-group/vcard-normalizer/internal/model"
	"github.com/sells-group/vcard-normalizer/internal/normalize"
	"github.com/sells-group/vcard-normalizer/internal/relations"
	"github.com/sells-group/vcard-normalizer/internal/store"
	"github.com/sells-group/vcard-normalizer/internal/strip"
)

// ErrNoInput means there were no source files at all. It is the only
// condition that stops a run before processing.
var ErrNoInput = errors.New("pipeline: nothing to do, no input files found")

// ProgressFunc receives a completion percentage and a status message.
type ProgressFunc func(pct int, msg string)

// Options configures one run.
type Options struct {
	Sources []ingest.Source
	Mode    model.RunMode

	DefaultRegion  string
	InferRegion    bool
	KeepUnknown    bool
	AutoCategories bool
	CleanAddresses bool
	Rules          []classify.Rule

	// Decider resolves duplicate clusters interactively. Nil means every
	// cluster is merged automatically.
	Decider merge.Decider
	// Countries is asked for a country on addresses that lack one. Nil
	// leaves such addresses alone.
	Countries enrich.CountryPrompter
	// CheckpointDir, when set, receives a checkpoint after duplicates are
	// resolved, sentinel-marked contacts included.
	CheckpointDir string
}

// OptionsFromConfig builds run options from configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Mode:           model.RunModeAuto,
		DefaultRegion:  cfg.DefaultRegion,
		InferRegion:    cfg.Pipeline.InferRegion,
		KeepUnknown:    cfg.Pipeline.KeepUnknown,
		AutoCategories: cfg.Pipeline.AutoCategories,
		CleanAddresses: cfg.Pipeline.CleanAddresses,
		Rules:          classify.RulesOrDefault(cfg.Pipeline.RulesFile),
	}
}

// Result is the outcome of stages 1 to 7.
type Result struct {
	RunID        string
	Contacts     []*model.Contact
	SourceCounts map[string]int
	SourceFiles  []string

	Ingest            ingest.Stats
	Normalize         normalize.Stats
	Strip             strip.Stats
	Phones            enrich.PhoneStats
	Classify          classify.Stats
	AddressesCleaned  int
	CountriesFilled   int
	InputCount        int
	DuplicateClusters int
	CrossSource       int
	Deleted           int
	RelationsMirrored int

	// Review is set for interactive runs.
	Review      *merge.ReviewResult
	Aborted     bool
	ReviewIndex int
}

// Pipeline runs the stages and records each run in the run store.
type Pipeline struct {
	store store.Store
}

// New creates a Pipeline. A nil store records nothing.
func New(st store.Store) *Pipeline {
	if st == nil {
		st = store.Nop{}
	}
	return &Pipeline{store: st}
}

// Run executes stages 1 to 7 over opts.Sources. The run record it creates is
// completed by Export or Complete.
func (p *Pipeline) Run(ctx context.Context, opts Options, progress ProgressFunc) (*Result, error) {
	if progress == nil {
		progress = func(int, string) {}
	}
	if len(opts.Sources) == 0 {
		return nil, ErrNoInput
	}

	sources := make([]string, len(opts.Sources))
	for i, s := range opts.Sources {
		sources[i] = s.Label
	}
	mode := opts.Mode
	if mode == "" {
		mode = model.RunModeAuto
	}

	run, err := p.store.CreateRun(ctx, mode, sources)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}
	log := zap.L().With(zap.String("run_id", run.ID))
	log.Info("pipeline: starting run", zap.Int("sources", len(sources)), zap.String("mode", string(mode)))

	res := &Result{RunID: run.ID, SourceFiles: sources}

	// Stage 1: ingest.
	progress(5, "Reading source files…")
	batch := ingest.Read(opts.Sources)
	res.Ingest = batch.Stats
	res.SourceCounts = ingest.SourceCounts(batch.Records)
	res.InputCount = len(batch.Records)
	log.Info("pipeline: ingest complete",
		zap.Int("cards", batch.Stats.Cards),
		zap.Int("skipped_cards", batch.Stats.SkippedCards),
		zap.Int("unreadable_files", batch.Stats.UnreadableFiles),
	)

	// Stage 2: canonicalise.
	progress(15, "Normalising fields…")
	contacts, nstats := normalize.CanonicalizeAll(batch.Records)
	res.Normalize = nstats

	if err := p.process(ctx, contacts, opts, res, progress); err != nil {
		p.fail(ctx, res.RunID, err)
		return nil, err
	}
	return res, nil
}

// Resume continues from a checkpoint: the contacts are re-clustered and
// resolved again, skipping ingest and canonicalisation.
func (p *Pipeline) Resume(ctx context.Context, cp *checkpoint.Checkpoint, opts Options, progress ProgressFunc) (*Result, error) {
	if cp == nil || len(cp.Contacts) == 0 {
		return nil, ErrNoInput
	}
	if progress == nil {
		progress = func(int, string) {}
	}

	mode := opts.Mode
	if mode == "" {
		mode = model.RunModeAuto
	}
	run, err := p.store.CreateRun(ctx, mode, cp.Meta.SourceFiles)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}
	zap.L().Info("pipeline: resuming from checkpoint",
		zap.String("run_id", run.ID),
		zap.Int("contacts", len(cp.Contacts)),
		zap.Time("saved_at", cp.Meta.SavedAt),
	)

	res := &Result{
		RunID:        run.ID,
		SourceFiles:  cp.Meta.SourceFiles,
		SourceCounts: map[string]int{},
		InputCount:   cp.Meta.InputCount,
	}
	if res.InputCount == 0 {
		res.InputCount = len(cp.Contacts)
	}
	for _, c := range cp.Contacts {
		for _, s := range c.Sources {
			res.SourceCounts[s]++
		}
	}

	if err := p.resolve(ctx, cp.Contacts, opts, res, progress); err != nil {
		p.fail(ctx, res.RunID, err)
		return nil, err
	}
	return res, nil
}

// process runs stages 3 to 7 in order.
func (p *Pipeline) process(ctx context.Context, contacts []*model.Contact, opts Options, res *Result, progress ProgressFunc) error {
	// Stage 3: strip proprietary fields.
	progress(30, "Stripping proprietary fields…")
	res.Strip = strip.New(opts.KeepUnknown).StripAll(contacts)

	// Stage 4: phones and addresses.
	progress(45, "Normalising phone numbers…")
	res.Phones = enrich.New(opts.DefaultRegion, opts.InferRegion).NormalizePhones(contacts)

	// Stage 5: classification and tagging.
	progress(55, "Classifying contacts…")
	cl := &classify.Classifier{}
	if opts.AutoCategories {
		rules := opts.Rules
		if rules == nil {
			rules = classify.DefaultRules()
		}
		tagger, err := classify.NewTagger(rules)
		if err != nil {
			zap.L().Warn("pipeline: invalid category rules, using defaults", zap.Error(err))
			tagger, err = classify.NewTagger(classify.DefaultRules())
			if err != nil {
				return eris.Wrap(err, "pipeline: default rules")
			}
		}
		cl.Tagger = tagger
	}
	res.Classify = cl.Apply(contacts)

	if opts.CleanAddresses {
		res.AddressesCleaned = enrich.CleanAddresses(contacts)
	}
	if opts.Countries != nil {
		n, err := enrich.FillCountries(contacts, opts.Countries)
		res.CountriesFilled = n
		if err != nil {
			// A prompter that stops answering leaves the remaining
			// addresses as they are.
			zap.L().Warn("pipeline: country prompt stopped", zap.Error(err))
		}
	}

	return p.resolve(ctx, contacts, opts, res, progress)
}

// resolve runs stages 6 and 7: clustering, then merge resolution.
func (p *Pipeline) resolve(ctx context.Context, contacts []*model.Contact, opts Options, res *Result, progress ProgressFunc) error {
	progress(65, "Finding duplicates…")
	clusters := dedupe.NewScorer().FindDuplicateClusters(contacts)
	dups := dedupe.Duplicates(clusters)
	res.DuplicateClusters = len(dups)
	for _, cl := range dups {
		if cl.CrossSource() {
			res.CrossSource++
		}
	}

	progress(80, "Merging duplicate clusters…")
	var merged []*model.Contact
	if opts.Decider != nil {
		review := merge.NewReviewer(opts.Decider).Review(ctx, clusters)
		res.Review = review
		res.Aborted = review.Aborted
		res.ReviewIndex = review.ReviewIndex
		merged = review.Contacts
	} else {
		merged = make([]*model.Contact, 0, len(clusters))
		for _, cl := range clusters {
			merged = append(merged, merge.MergeClusterAuto(cl))
		}
		res.ReviewIndex = len(dups)
	}

	res.RelationsMirrored = relations.Mirror(merged)

	if opts.CheckpointDir != "" {
		progress(95, "Saving checkpoint…")
		meta := checkpoint.Meta{
			SavedAt:           time.Now().UTC(),
			ReviewIndex:       res.ReviewIndex,
			InputCount:        res.InputCount,
			DuplicateClusters: res.DuplicateClusters,
			SourceFiles:       res.SourceFiles,
		}
		if err := checkpoint.Save(opts.CheckpointDir, merged, meta); err != nil {
			// The in-memory result is still good.
			zap.L().Warn("pipeline: checkpoint save failed", zap.Error(err))
		}
	}

	res.Contacts = make([]*model.Contact, 0, len(merged))
	for _, c := range merged {
		if c.MarkedForDeletion() {
			res.Deleted++
			continue
		}
		res.Contacts = append(res.Contacts, c)
	}

	progress(100, "Done")
	zap.L().Info("pipeline: stages complete",
		zap.String("run_id", res.RunID),
		zap.Int("input", res.InputCount),
		zap.Int("output", len(res.Contacts)),
		zap.Int("clusters", res.DuplicateClusters),
		zap.Int("cross_source", res.CrossSource),
		zap.Int("deleted", res.Deleted),
		zap.Bool("aborted", res.Aborted),
	)
	return nil
}

// RunResult summarises res, plus the export outcome when there was one, for
// the run store.
func (res *Result) RunResult(exp *ExportResult) *model.RunResult {
	out := &model.RunResult{
		InputCount:        res.InputCount,
		OutputCount:       len(res.Contacts),
		DuplicateClusters: res.DuplicateClusters,
		CrossSource:       res.CrossSource,
		Deleted:           res.Deleted,
		Aborted:           res.Aborted,
	}
	if exp != nil {
		out.Written = exp.Cards.Written
		out.Skipped = exp.Cards.Skipped
		out.OutputPath = exp.Cards.Path
	}
	return out
}

// Complete records the run as finished without an export.
func (p *Pipeline) Complete(ctx context.Context, res *Result) error {
	return p.complete(ctx, res, nil)
}

func (p *Pipeline) complete(ctx context.Context, res *Result, exp *ExportResult) error {
	if res.RunID == "" {
		return nil
	}
	if err := p.store.CompleteRun(ctx, res.RunID, res.RunResult(exp)); err != nil {
		return eris.Wrap(err, "pipeline: complete run")
	}
	return nil
}

func (p *Pipeline) fail(ctx context.Context, runID string, cause error) {
	if err := p.store.FailRun(ctx, runID, cause); err != nil {
		zap.L().Warn("pipeline: failed to record run failure", zap.String("run_id", runID), zap.Error(err))
	}
}
