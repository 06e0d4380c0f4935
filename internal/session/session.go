// Package session owns the in-memory contact set behind the review server.
// One background worker may process input at a time; every other operation
// takes the session lock and works on copies.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/vcard-normalizer/internal/checkpoint"
	"github.com/sells-group/vcard-normalizer/internal/ingest"
	"github.com/sells-group/vcard-normalizer/internal/model"
	"github.com/sells-group/vcard-normalizer/internal/pipeline"
)

var (
	// ErrBusy is returned when a run is already in flight.
	ErrBusy = errors.New("session: a run is already in progress")
	// ErrIndex is returned for a card index outside the contact list.
	ErrIndex = errors.New("session: card index out of range")
	// ErrUnknownUID is returned when no card carries the requested UID.
	ErrUnknownUID = errors.New("session: no card with that uid")
)

// State is the lifecycle state reported by Status.
type State string

const (
	StateEmpty      State = "empty"
	StateProcessing State = "processing"
	StateLoaded     State = "loaded"
	StateError      State = "error"
)

// Status is the polled progress of the session.
type Status struct {
	State             State          `json:"state"`
	Progress          int            `json:"progress"`
	Message           string         `json:"message"`
	Total             int            `json:"total"`
	InputCount        int            `json:"input_count"`
	DuplicateClusters int            `json:"duplicate_clusters"`
	SourceCounts      map[string]int `json:"source_counts"`
	RunID             string         `json:"run_id,omitempty"`
	Error             string         `json:"error,omitempty"`
}

// Options configures a Session.
type Options struct {
	// CheckpointDir receives an autosave after every change. Empty disables
	// autosave.
	CheckpointDir string
	DefaultRegion string
}

// Session is the single owner of the working contact set.
type Session struct {
	pipeline *pipeline.Pipeline
	opts     Options

	mu       sync.Mutex
	contacts []*model.Contact
	status   Status
	sources  []string
	running  bool
	wg       sync.WaitGroup
}

// New creates an empty session.
func New(p *pipeline.Pipeline, opts Options) *Session {
	return &Session{
		pipeline: p,
		opts:     opts,
		status:   Status{State: StateEmpty, Message: "No contacts loaded", SourceCounts: map[string]int{}},
	}
}

// LoadCheckpoint replaces the contact set with the checkpoint in
// CheckpointDir, if there is one.
func (s *Session) LoadCheckpoint() bool {
	if s.opts.CheckpointDir == "" {
		return false
	}
	cp := checkpoint.Load(s.opts.CheckpointDir)
	if cp == nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.contacts = dropDeleted(cp.Contacts)
	s.sources = cp.Meta.SourceFiles
	counts := make(map[string]int, len(cp.Meta.SourceFiles))
	for _, src := range cp.Meta.SourceFiles {
		counts[src] = 0
	}
	s.status = Status{
		State:             StateLoaded,
		Progress:          100,
		Message:           "Resumed from checkpoint saved " + cp.Meta.SavedAt.Local().Format("2006-01-02 15:04"),
		Total:             len(s.contacts),
		InputCount:        cp.Meta.InputCount,
		DuplicateClusters: cp.Meta.DuplicateClusters,
		SourceCounts:      counts,
	}
	zap.L().Info("session: loaded checkpoint", zap.Int("contacts", len(s.contacts)))
	return true
}

// StartProcess runs the pipeline over set in the background. Progress is
// reported through Status. The set is closed when the run ends.
func (s *Session) StartProcess(ctx context.Context, set *ingest.SourceSet, opts pipeline.Options) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrBusy
	}
	s.running = true
	s.status.State = StateProcessing
	s.status.Progress = 0
	s.status.Message = "Starting…"
	s.status.Error = ""
	s.wg.Add(1)
	s.mu.Unlock()

	if opts.Mode == "" {
		opts.Mode = model.RunModeServe
	}

	if set != nil {
		opts.Sources = set.Sources
	}

	go func() {
		defer s.wg.Done()
		defer set.Close() //nolint:errcheck
		res, err := s.pipeline.Run(ctx, opts, s.progress)
		s.finish(ctx, res, err)
	}()
	return nil
}

func (s *Session) progress(pct int, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Progress = pct
	s.status.Message = msg
}

func (s *Session) finish(ctx context.Context, res *pipeline.Result, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false

	if err != nil {
		s.status.State = StateError
		s.status.Progress = 0
		s.status.Error = err.Error()
		if errors.Is(err, pipeline.ErrNoInput) {
			s.status.Message = "No .vcf files found"
		} else {
			s.status.Message = "Processing failed"
		}
		zap.L().Error("session: processing failed", zap.Error(err))
		return
	}

	s.contacts = res.Contacts
	s.sources = res.SourceFiles
	s.status = Status{
		State:             StateLoaded,
		Progress:          100,
		Message:           fmt.Sprintf("Processed %d cards into %d contacts", res.InputCount, len(res.Contacts)),
		Total:             len(res.Contacts),
		InputCount:        res.InputCount,
		DuplicateClusters: res.DuplicateClusters,
		SourceCounts:      res.SourceCounts,
		RunID:             res.RunID,
	}
	if err := s.pipeline.Complete(ctx, res); err != nil {
		zap.L().Warn("session: run history not updated", zap.Error(err))
	}
	s.autosave()
}

// Wait blocks until the background worker, if any, has finished.
func (s *Session) Wait() {
	s.wg.Wait()
}

// Status returns a copy of the current status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.status
	st.Total = len(s.contacts)
	st.SourceCounts = make(map[string]int, len(s.status.SourceCounts))
	for k, v := range s.status.SourceCounts {
		st.SourceCounts[k] = v
	}
	return st
}

// Export writes the current contact set.
func (s *Session) Export(ctx context.Context, opts pipeline.ExportOptions) (*pipeline.ExportResult, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	res := &pipeline.Result{
		RunID:             s.status.RunID,
		Contacts:          cloneAll(s.contacts),
		InputCount:        s.status.InputCount,
		DuplicateClusters: s.status.DuplicateClusters,
	}
	s.mu.Unlock()

	return s.pipeline.Export(ctx, res, opts)
}

// autosave writes the checkpoint. The caller holds s.mu.
func (s *Session) autosave() {
	if s.opts.CheckpointDir == "" {
		return
	}
	meta := checkpoint.Meta{
		SavedAt:           time.Now().UTC(),
		InputCount:        s.status.InputCount,
		DuplicateClusters: s.status.DuplicateClusters,
		SourceFiles:       s.sources,
	}
	if err := checkpoint.Save(s.opts.CheckpointDir, s.contacts, meta); err != nil {
		zap.L().Warn("session: autosave failed", zap.Error(err))
	}
}

// mutate runs fn under the lock, rejecting it while a run is in flight, and
// autosaves when fn succeeds.
func (s *Session) mutate(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrBusy
	}
	if err := fn(); err != nil {
		return err
	}
	s.status.Total = len(s.contacts)
	s.autosave()
	return nil
}

func (s *Session) at(idx int) (*model.Contact, error) {
	if idx < 0 || idx >= len(s.contacts) {
		return nil, ErrIndex
	}
	return s.contacts[idx], nil
}

func dropDeleted(contacts []*model.Contact) []*model.Contact {
	out := make([]*model.Contact, 0, len(contacts))
	for _, c := range contacts {
		if !c.MarkedForDeletion() {
			out = append(out, c)
		}
	}
	return out
}

func cloneAll(contacts []*model.Contact) []*model.Contact {
	out := make([]*model.Contact, len(contacts))
	for i, c := range contacts {
		out[i] = c.Clone()
	}
	return out
}
