package merge

import (
	"context"
	"errors"
	"testing"

	"github.com/emersion/go-vcard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/vcard-normalizer/internal/dedupe"
	"github.com/sells-group/vcard-normalizer/internal/model"
)

func card(fn, source string, emails ...string) *model.Contact {
	return &model.Contact{FN: fn, Emails: emails, Sources: []string{source}}
}

func hasEntry(c *model.Contact, entry string) bool {
	for _, e := range c.Changes {
		if e == entry {
			return true
		}
	}
	return false
}

func TestSelectBase(t *testing.T) {
	a := card("Alice", "a", "a@x.com")
	b := card("Alice Smith", "b", "a@x.com")
	assert.Equal(t, 1, SelectBase(dedupe.Cluster{a, b}), "longer name wins a tie")

	c := card("Al", "c", "a@x.com", "al@y.com")
	assert.Equal(t, 2, SelectBase(dedupe.Cluster{a, b, c}), "more data wins")

	d := card("Bobby", "d")
	e := card("Bobby", "e")
	assert.Equal(t, 0, SelectBase(dedupe.Cluster{d, e}), "first on full tie")
}

func TestMergeClusterAuto_EmailDuplicate(t *testing.T) {
	a := card("Alice", "icloud", "a@x.com")
	b := card("Alice Smith", "google", "a@x.com")

	m := MergeClusterAuto(dedupe.Cluster{a, b})

	require.NotNil(t, m)
	assert.Equal(t, "Alice Smith", m.FN)
	assert.Equal(t, []string{"a@x.com"}, m.Emails)
	assert.Equal(t, []string{"google", "icloud"}, m.Sources)
	assert.True(t, hasEntry(m, "Merged from sources: icloud, google"))
	assert.True(t, hasEntry(m, "Auto-merged 1 duplicate(s) (also seen as: Alice)"))

	// Members are untouched.
	assert.Empty(t, a.Changes)
	assert.Equal(t, []string{"google"}, b.Sources)
}

func TestMergeClusterAuto_Singleton(t *testing.T) {
	a := card("Solo", "s")
	assert.Same(t, a, MergeClusterAuto(dedupe.Cluster{a}))
	assert.Nil(t, MergeClusterAuto(nil))
}

func TestMergeClusterAuto_CategoryConflict(t *testing.T) {
	a := card("Pat", "a", "p@x.com")
	a.Categories = []string{"Work"}
	b := card("Pat", "a", "p@x.com")
	b.Categories = []string{"Family"}

	m := MergeClusterAuto(dedupe.Cluster{a, b})

	assert.Equal(t, []string{"Family", "Work"}, m.Categories)
	assert.True(t, hasEntry(m, "Categories merged (conflict resolved by union): Family, Work"))
	assert.False(t, hasEntry(m, "Merged from sources: a"))
}

func TestMergeClusterAuto_CategoriesCarriedOver(t *testing.T) {
	a := card("Pat Lee", "a", "p@x.com", "q@x.com")
	b := card("Pat", "a", "p@x.com")
	b.Categories = []string{"Friends"}

	m := MergeClusterAuto(dedupe.Cluster{a, b})

	assert.Equal(t, []string{"Friends"}, m.Categories)
	assert.True(t, hasEntry(m, "Categories carried over from source: Friends"))
}

func TestMergeClusterAuto_Lossless(t *testing.T) {
	a := card("Sam Jones", "a", "sam@x.com")
	a.Phones = []model.Phone{{Number: "+44 7700 900 123", Type: "CELL"}}
	a.Changes = []string{"Phone(s) reformatted: '07700900123' → '+44 7700 900 123'"}

	b := card("Sam", "b", "SAM@work.com")
	b.Emails = []string{"sam@work.com", "sam@x.com"}
	b.Phones = []model.Phone{{Number: "+44 7700 900 123"}, {Number: "+44 20 7946 0000", Type: "WORK"}}
	b.Org = "Acme Ltd"
	b.Title = "Engineer"
	b.Birthday = model.ParseDate("--0412")
	b.Addresses = []model.Address{{Locality: "Leeds", Country: "GB"}}
	b.Related = []model.Relation{{Type: "spouse", UID: "u-9"}}
	b.Raw = vcard.Card{"X-PHONETIC-FIRST-NAME": {{Value: "Sam"}}}

	m := MergeClusterAuto(dedupe.Cluster{a, b})

	assert.Equal(t, "Sam", m.FN, "richer member is the base")
	assert.Equal(t, []string{"sam@work.com", "sam@x.com"}, m.Emails)
	assert.Equal(t, []string{"+44 20 7946 0000", "+44 7700 900 123"}, m.PhoneNumbers())
	assert.Equal(t, "Acme Ltd", m.Org)
	assert.Equal(t, "Engineer", m.Title)
	require.NotNil(t, m.Birthday)
	assert.Equal(t, 4, m.Birthday.Month)
	assert.Len(t, m.Addresses, 1)
	assert.Len(t, m.Related, 1)
	assert.Equal(t, "Sam", m.Raw.Value("X-PHONETIC-FIRST-NAME"))
	assert.True(t, hasEntry(m, "[Sam Jones] Phone(s) reformatted: '07700900123' → '+44 7700 900 123'"))
	assert.True(t, hasEntry(m, "Auto-merged 1 duplicate(s) (also seen as: Sam Jones)"))

	// Every input value survives.
	for _, c := range []*model.Contact{a, b} {
		for _, e := range c.Emails {
			assert.Contains(t, m.Emails, e)
		}
		for _, p := range c.Phones {
			assert.Contains(t, m.PhoneNumbers(), p.Number)
		}
		for _, s := range c.Sources {
			assert.Contains(t, m.Sources, s)
		}
	}
}

func TestMergeClusterAuto_AdoptsFromFirstMemberInOrder(t *testing.T) {
	base := card("Base Person", "a", "x@x.com", "y@x.com")
	b := card("B", "a", "x@x.com")
	b.Org = "First Org"
	c := card("C", "a", "x@x.com")
	c.Org = "Second Org"

	m := MergeClusterAuto(dedupe.Cluster{b, base, c})
	assert.Equal(t, "First Org", m.Org)
}

func TestKeep(t *testing.T) {
	a := card("Alice", "a", "a@x.com")
	a.Org = "Acme"
	b := card("Alice Smith", "b", "alice@y.com")

	m, err := Keep(dedupe.Cluster{a, b}, 0)
	require.NoError(t, err)
	assert.Equal(t, "Alice", m.FN)
	assert.Equal(t, []string{"a@x.com", "alice@y.com"}, m.Emails)
	assert.True(t, hasEntry(m, "Kept card 1 as base, merged 1 duplicate(s) (also seen as: Alice Smith)"))

	_, err = Keep(dedupe.Cluster{a, b}, 2)
	assert.ErrorIs(t, err, ErrInvalidDecision)
}

func TestDelete(t *testing.T) {
	a := card("Spam", "a", "s@x.com")
	b := card("Spam Bot", "b", "s@x.com")

	m := Delete(dedupe.Cluster{a, b})
	assert.True(t, m.MarkedForDeletion())
	assert.True(t, hasEntry(m, "Marked for deletion (2 card(s))"))
}

func TestParseDecision(t *testing.T) {
	tests := []struct {
		in   string
		want Decision
		err  bool
	}{
		{"2", Decision{Action: ActionKeep, Keep: 1}, false},
		{"k1", Decision{Action: ActionKeep, Keep: 0}, false},
		{"keep 3", Decision{Action: ActionKeep, Keep: 2}, false},
		{"U", Decision{Action: ActionUnion}, false},
		{"delete", Decision{Action: ActionDelete}, false},
		{"q", Decision{Action: ActionAbort}, false},
		{"4", Decision{}, true},
		{"0", Decision{}, true},
		{"maybe", Decision{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDecision(tt.in, 3)
			if tt.err {
				assert.ErrorIs(t, err, ErrInvalidDecision)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

type scripted struct {
	answers []Decision
	errs    []error
	prompts []Prompt
}

func (s *scripted) Decide(_ context.Context, p Prompt) (Decision, error) {
	s.prompts = append(s.prompts, p)
	i := len(s.prompts) - 1
	if i < len(s.errs) && s.errs[i] != nil {
		return Decision{}, s.errs[i]
	}
	if i >= len(s.answers) {
		return Decision{Action: ActionAbort}, nil
	}
	return s.answers[i], nil
}

func duplicatePairs() []dedupe.Cluster {
	return []dedupe.Cluster{
		{card("Alice", "a", "a@x.com"), card("Alice Smith", "b", "a@x.com")},
		{card("Carol", "a")},
		{card("Bob", "a", "b@x.com"), card("Bobby Jones", "b", "b@x.com")},
	}
}

func TestReview_AutoUnionSkipsPrompt(t *testing.T) {
	same := dedupe.Cluster{
		{UID: "u1", FN: "A", Sources: []string{"a"}},
		{UID: "u1", FN: "B", Sources: []string{"b"}},
	}
	d := &scripted{}

	res := NewReviewer(d).Review(context.Background(), []dedupe.Cluster{same})

	assert.Empty(t, d.prompts)
	require.Len(t, res.Contacts, 1)
	assert.Equal(t, 1, res.AutoUnions)
	assert.Equal(t, 1, res.Resolved)
}

func TestReview_AbortPreservesPartialWork(t *testing.T) {
	d := &scripted{answers: []Decision{{Action: ActionUnion}, {Action: ActionAbort}}}

	res := NewReviewer(d).Review(context.Background(), duplicatePairs())

	assert.True(t, res.Aborted)
	assert.Equal(t, 1, res.Resolved)
	assert.Equal(t, 1, res.ReviewIndex)
	// Merged Alice, Carol, and both Bobs untouched.
	require.Len(t, res.Contacts, 4)
	assert.Equal(t, "Alice Smith", res.Contacts[0].FN)
	assert.Equal(t, "Carol", res.Contacts[1].FN)
	assert.Equal(t, "Bob", res.Contacts[2].FN)
	assert.Equal(t, "Bobby Jones", res.Contacts[3].FN)
}

func TestReview_InvalidDecisionReprompts(t *testing.T) {
	d := &scripted{
		answers: []Decision{{Action: ActionKeep, Keep: 9}, {Action: ActionKeep, Keep: 0}, {Action: ActionDelete}},
		errs:    []error{nil, nil, nil},
	}

	res := NewReviewer(d).Review(context.Background(), duplicatePairs())

	require.Len(t, d.prompts, 3)
	assert.ErrorIs(t, d.prompts[1].Retry, ErrInvalidDecision)
	assert.Equal(t, 2, res.Resolved)
	assert.Equal(t, 1, res.Deleted)
	assert.Equal(t, "Alice", res.Contacts[0].FN)
	assert.True(t, res.Contacts[2].MarkedForDeletion())
	assert.False(t, res.Aborted)
	assert.Equal(t, 2, res.ReviewIndex)
}

func TestReview_ExhaustedAttemptsLeaveClusterUnresolved(t *testing.T) {
	bad := DeciderFunc(func(context.Context, Prompt) (Decision, error) {
		return Decision{}, ErrInvalidDecision
	})
	r := NewReviewer(bad)
	r.MaxAttempts = 2

	res := r.Review(context.Background(), duplicatePairs())

	assert.Equal(t, 0, res.Resolved)
	assert.Equal(t, 2, res.Unresolved)
	assert.Len(t, res.Contacts, 5)
}

func TestReview_DeciderErrorStopsReview(t *testing.T) {
	d := &scripted{errs: []error{errors.New("stdin closed")}}

	res := NewReviewer(d).Review(context.Background(), duplicatePairs())

	assert.True(t, res.Aborted)
	assert.Len(t, res.Contacts, 5)
}

func TestPromptScores(t *testing.T) {
	d := &scripted{answers: []Decision{{Action: ActionUnion}, {Action: ActionUnion}}}
	NewReviewer(d).Review(context.Background(), duplicatePairs())

	require.NotEmpty(t, d.prompts)
	assert.Equal(t, 100.0, d.prompts[0].Scores[0])
	assert.InDelta(t, 85.0, d.prompts[0].Scores[1], 0.001)
	assert.Equal(t, 2, d.prompts[0].Total)
}
