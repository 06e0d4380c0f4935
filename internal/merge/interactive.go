package merge

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/vcard-normalizer/internal/dedupe"
	"github.com/sells-group/vcard-normalizer/internal/model"
)

var (
	// ErrAbort stops an interactive review. Already resolved clusters are kept.
	ErrAbort = errors.New("merge: review aborted")
	// ErrInvalidDecision is returned for a decision that cannot be applied.
	ErrInvalidDecision = errors.New("merge: invalid decision")
)

// DefaultMaxAttempts bounds re-prompting after invalid decisions.
const DefaultMaxAttempts = 5

// Action is a reviewer's verdict on a cluster.
type Action int

// Review actions.
const (
	ActionKeep Action = iota
	ActionUnion
	ActionDelete
	ActionAbort
)

func (a Action) String() string {
	switch a {
	case ActionKeep:
		return "keep"
	case ActionUnion:
		return "union"
	case ActionDelete:
		return "delete"
	case ActionAbort:
		return "abort"
	default:
		return "unknown"
	}
}

// Decision is one answer for a cluster. Keep is the zero-based index of the
// member kept as base when Action is ActionKeep.
type Decision struct {
	Action Action
	Keep   int
}

// ParseDecision reads a typed answer: a card number or "k N" to keep, "u" to
// union, "d" to delete, "a" or "q" to abort.
func ParseDecision(input string, size int) (Decision, error) {
	s := strings.ToLower(strings.TrimSpace(input))
	switch s {
	case "u", "union":
		return Decision{Action: ActionUnion}, nil
	case "d", "delete":
		return Decision{Action: ActionDelete}, nil
	case "a", "abort", "q", "quit":
		return Decision{Action: ActionAbort}, nil
	}
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(s, "keep"), "k"))
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > size {
		return Decision{}, fmt.Errorf("%w: %q", ErrInvalidDecision, input)
	}
	return Decision{Action: ActionKeep, Keep: n - 1}, nil
}

// Prompt describes the cluster awaiting a decision.
type Prompt struct {
	Cluster dedupe.Cluster
	Index   int // zero-based position among duplicate clusters
	Total   int
	// Scores holds each member's similarity to the seed; Scores[0] is 100.
	Scores []float64
	// Retry is set when the previous answer was invalid.
	Retry error
}

// Decider supplies decisions for duplicate clusters.
type Decider interface {
	Decide(ctx context.Context, p Prompt) (Decision, error)
}

// DeciderFunc adapts a function to Decider.
type DeciderFunc func(ctx context.Context, p Prompt) (Decision, error)

// Decide implements Decider.
func (f DeciderFunc) Decide(ctx context.Context, p Prompt) (Decision, error) { return f(ctx, p) }

// ReviewResult is the outcome of an interactive review.
type ReviewResult struct {
	Contacts   []*model.Contact
	Resolved   int
	AutoUnions int
	Deleted    int
	Unresolved int
	Aborted    bool
	// ReviewIndex is the number of duplicate clusters handled before the
	// review stopped.
	ReviewIndex int
}

// Reviewer walks duplicate clusters asking a Decider how to resolve each.
type Reviewer struct {
	Decider     Decider
	Scorer      *dedupe.Scorer
	MaxAttempts int
}

// NewReviewer returns a Reviewer with the default scorer and attempt limit.
func NewReviewer(d Decider) *Reviewer {
	return &Reviewer{Decider: d, Scorer: dedupe.NewScorer(), MaxAttempts: DefaultMaxAttempts}
}

// Review resolves every multi-member cluster. Singletons pass through. After
// an abort, or a cluster with no valid decision, the members stay as
// separate contacts and no data is lost.
func (r *Reviewer) Review(ctx context.Context, clusters []dedupe.Cluster) *ReviewResult {
	res := &ReviewResult{}
	total := len(dedupe.Duplicates(clusters))
	idx := 0

	for _, cl := range clusters {
		if len(cl) == 1 {
			res.Contacts = append(res.Contacts, cl[0])
			continue
		}
		if res.Aborted {
			res.Contacts = append(res.Contacts, cl...)
			res.Unresolved++
			continue
		}

		merged, auto, err := r.resolve(ctx, cl, idx, total)
		switch {
		case err == nil:
			res.Contacts = append(res.Contacts, merged)
			res.Resolved++
			if auto {
				res.AutoUnions++
			}
			if merged.MarkedForDeletion() {
				res.Deleted++
			}
			idx++
		case errors.Is(err, ErrInvalidDecision):
			zap.L().Warn("merge: no valid decision, cluster left unresolved",
				zap.Int("cluster", idx), zap.Error(err))
			res.Contacts = append(res.Contacts, cl...)
			res.Unresolved++
			idx++
		default:
			if !errors.Is(err, ErrAbort) {
				zap.L().Warn("merge: review stopped", zap.Int("cluster", idx), zap.Error(err))
			}
			res.Aborted = true
			res.ReviewIndex = idx
			res.Contacts = append(res.Contacts, cl...)
			res.Unresolved++
		}
	}
	if !res.Aborted {
		res.ReviewIndex = idx
	}

	zap.L().Info("merge: review finished",
		zap.Int("resolved", res.Resolved),
		zap.Int("auto_unions", res.AutoUnions),
		zap.Int("deleted", res.Deleted),
		zap.Int("unresolved", res.Unresolved),
		zap.Bool("aborted", res.Aborted),
	)
	return res
}

func (r *Reviewer) resolve(ctx context.Context, cl dedupe.Cluster, idx, total int) (*model.Contact, bool, error) {
	scorer := r.Scorer
	if scorer == nil {
		scorer = dedupe.NewScorer()
	}
	if scorer.AllPairsAtLeast(cl, dedupe.AutoUnionThreshold) {
		return MergeClusterAuto(cl), true, nil
	}
	if r.Decider == nil {
		return nil, false, eris.Wrap(ErrAbort, "merge: no decider")
	}

	p := Prompt{Cluster: cl, Index: idx, Total: total, Scores: make([]float64, len(cl))}
	for i, c := range cl {
		p.Scores[i] = scorer.Similarity(cl[0], c)
	}

	attempts := r.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	for range attempts {
		if err := ctx.Err(); err != nil {
			return nil, false, eris.Wrap(err, "merge: review cancelled")
		}
		d, err := r.Decider.Decide(ctx, p)
		if err == nil {
			var c *model.Contact
			c, err = apply(cl, d)
			if err == nil {
				return c, false, nil
			}
		}
		if !errors.Is(err, ErrInvalidDecision) {
			return nil, false, err
		}
		p.Retry = err
	}
	return nil, false, eris.Wrapf(ErrInvalidDecision, "merge: %d invalid attempts", attempts)
}

func apply(cl dedupe.Cluster, d Decision) (*model.Contact, error) {
	switch d.Action {
	case ActionKeep:
		return Keep(cl, d.Keep)
	case ActionUnion:
		return Union(cl), nil
	case ActionDelete:
		return Delete(cl), nil
	case ActionAbort:
		return nil, ErrAbort
	default:
		return nil, fmt.Errorf("%w: action %d", ErrInvalidDecision, d.Action)
	}
}
