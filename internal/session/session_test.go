package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/vcard-normalizer/internal/checkpoint"
	"github.com/sells-group/vcard-normalizer/internal/ingest"
	"github.com/sells-group/vcard-normalizer/internal/model"
	"github.com/sells-group/vcard-normalizer/internal/pipeline"
)

const cards = `BEGIN:VCARD
VERSION:3.0
FN:Jane Doe
N:Doe;Jane;;;
EMAIL:jane@example.com
BDAY:1980-07-14
END:VCARD
BEGIN:VCARD
VERSION:3.0
FN:Jane Doe
EMAIL:JANE@example.com
TEL:07980 220220
END:VCARD
BEGIN:VCARD
VERSION:3.0
FN:Acme Ltd
ORG:Acme Ltd
CATEGORIES:Work
END:VCARD
`

func newLoaded(t *testing.T, contacts ...*model.Contact) *Session {
	t.Helper()
	s := New(pipeline.New(nil), Options{CheckpointDir: filepath.Join(t.TempDir(), "wip"), DefaultRegion: "GB"})
	s.contacts = contacts
	s.status.State = StateLoaded
	return s
}

func person(fn, family, given, uid string) *model.Contact {
	return &model.Contact{
		UID:     uid,
		FN:      fn,
		Name:    model.Name{Family: family, Given: given},
		Sources: []string{"test"},
	}
}

func TestStartProcess(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "phone.vcf")
	require.NoError(t, os.WriteFile(path, []byte(cards), 0o644))

	wip := filepath.Join(dir, "wip")
	s := New(pipeline.New(nil), Options{CheckpointDir: wip, DefaultRegion: "GB"})
	set := ingest.FromPaths(path)
	opts := pipeline.Options{DefaultRegion: "GB"}

	require.NoError(t, s.StartProcess(context.Background(), set, opts))
	s.Wait()

	st := s.Status()
	assert.Equal(t, StateLoaded, st.State)
	assert.Equal(t, 100, st.Progress)
	assert.Equal(t, 3, st.InputCount)
	assert.Equal(t, 2, st.Total)
	assert.Equal(t, 1, st.DuplicateClusters)
	assert.Equal(t, map[string]int{"phone": 3}, st.SourceCounts)
	assert.True(t, checkpoint.Exists(wip), "processing autosaves")
}

func TestStartProcess_Busy(t *testing.T) {
	s := newLoaded(t)
	s.running = true

	err := s.StartProcess(context.Background(), nil, pipeline.Options{})
	assert.ErrorIs(t, err, ErrBusy)

	_, err = s.DeleteCard(0)
	assert.ErrorIs(t, err, ErrBusy)
	_, err = s.Export(context.Background(), pipeline.ExportOptions{})
	assert.ErrorIs(t, err, ErrBusy)
}

func TestStartProcess_NoInput(t *testing.T) {
	s := New(pipeline.New(nil), Options{})
	require.NoError(t, s.StartProcess(context.Background(), nil, pipeline.Options{}))
	s.Wait()

	st := s.Status()
	assert.Equal(t, StateError, st.State)
	assert.Equal(t, "No .vcf files found", st.Message)
}

func TestLoadCheckpoint(t *testing.T) {
	s := newLoaded(t, person("Jane Doe", "Doe", "Jane", "u1"))
	deleted := person("Old", "", "", "u2")
	deleted.Categories = []string{model.DeleteSentinel}
	require.NoError(t, checkpoint.Save(s.opts.CheckpointDir, []*model.Contact{s.contacts[0], deleted},
		checkpoint.Meta{InputCount: 5, SourceFiles: []string{"icloud"}}))

	fresh := New(pipeline.New(nil), Options{CheckpointDir: s.opts.CheckpointDir})
	require.True(t, fresh.LoadCheckpoint())
	st := fresh.Status()
	assert.Equal(t, StateLoaded, st.State)
	assert.Equal(t, 1, st.Total)
	assert.Equal(t, 5, st.InputCount)

	empty := New(pipeline.New(nil), Options{CheckpointDir: t.TempDir()})
	assert.False(t, empty.LoadCheckpoint())
}

func TestCards_SearchSortPage(t *testing.T) {
	s := newLoaded(t,
		person("Zoe Adams", "Adams", "Zoe", ""),
		person("Amy Young", "Young", "Amy", ""),
		&model.Contact{FN: "Beta Corp", Org: "Beta Corp", Categories: []string{"Work"}},
	)
	s.contacts[1].Emails = []string{"amy@example.com"}

	page := s.Cards(CardQuery{})
	require.Len(t, page.Cards, 3)
	assert.Equal(t, "Zoe Adams", page.Cards[0].Contact.FN)
	assert.Equal(t, "Beta Corp", page.Cards[1].Contact.FN)
	assert.Equal(t, 0, page.Cards[0].Index)

	page = s.Cards(CardQuery{Sort: SortFirstName})
	assert.Equal(t, "Amy Young", page.Cards[0].Contact.FN)

	page = s.Cards(CardQuery{Search: "AMY@"})
	require.Len(t, page.Cards, 1)
	assert.Equal(t, 1, page.Cards[0].Index)

	page = s.Cards(CardQuery{Category: "Work"})
	require.Len(t, page.Cards, 1)
	assert.Equal(t, 2, page.Cards[0].Index)

	page = s.Cards(CardQuery{Page: 2, PerPage: 2})
	assert.Equal(t, 3, page.Total)
	assert.Len(t, page.Cards, 1)

	page = s.Cards(CardQuery{Page: 9})
	assert.Empty(t, page.Cards)

	// Results are copies.
	s.Cards(CardQuery{}).Cards[0].Contact.FN = "changed"
	assert.Equal(t, "Zoe Adams", s.contacts[0].FN)
}

func TestUpdateCard(t *testing.T) {
	s := newLoaded(t, person("Jane Doe", "Doe", "Jane", "u1"))

	fn, org := "Jane Smith", "Acme"
	cats := []string{"Friends", "Family", "Friends"}
	c, err := s.UpdateCard(0, CardUpdate{FN: &fn, Org: &org, Categories: &cats})
	require.NoError(t, err)
	assert.Equal(t, "Jane Smith", c.FN)
	assert.Equal(t, []string{"Family", "Friends"}, c.Categories)
	assert.Contains(t, c.Changes, "Edited display name")
	assert.Contains(t, c.Changes, "Edited organisation")
	assert.True(t, checkpoint.Exists(s.opts.CheckpointDir))

	_, err = s.UpdateCard(4, CardUpdate{FN: &fn})
	assert.ErrorIs(t, err, ErrIndex)
}

func TestDeleteCard(t *testing.T) {
	s := newLoaded(t, person("A", "", "", ""), person("B", "", "", ""))

	removed, err := s.DeleteCard(0)
	require.NoError(t, err)
	assert.Equal(t, "A", removed.FN)
	assert.Equal(t, 1, s.Status().Total)

	_, err = s.DeleteCard(-1)
	assert.ErrorIs(t, err, ErrIndex)
}

func TestMergeCards(t *testing.T) {
	a := person("Jane Doe", "Doe", "Jane", "")
	a.Emails = []string{"jane@example.com"}
	b := person("Other", "", "", "")
	c := person("J. Doe", "", "", "")
	c.Phones = []model.Phone{{Number: "+44 7980 220 220"}}
	c.Sources = []string{"google"}
	s := newLoaded(t, b, a, c)

	pos, merged, err := s.MergeCards([]int{2, 1})
	require.NoError(t, err)
	assert.Equal(t, 1, pos)
	assert.Equal(t, []string{"jane@example.com"}, merged.Emails)
	assert.Len(t, merged.Phones, 1)
	assert.ElementsMatch(t, []string{"test", "google"}, merged.Sources)
	assert.Contains(t, merged.Changes, "Manually merged 2 cards")

	require.Len(t, s.contacts, 2)
	assert.Equal(t, "Other", s.contacts[0].FN)

	_, _, err = s.MergeCards([]int{0})
	assert.Error(t, err)
	_, _, err = s.MergeCards([]int{0, 0})
	assert.Error(t, err)
	_, _, err = s.MergeCards([]int{0, 7})
	assert.ErrorIs(t, err, ErrIndex)
}

func TestLinkUnlink(t *testing.T) {
	s := newLoaded(t, person("Parent", "", "", "p"), person("Kid", "", "", "k"))

	require.NoError(t, s.Link(0, 1, "parent"))
	assert.Equal(t, []model.Relation{{Type: "parent", UID: "k"}}, s.contacts[0].Related)
	assert.Equal(t, []model.Relation{{Type: "child", UID: "p"}}, s.contacts[1].Related)

	require.NoError(t, s.Unlink(0, "k"))
	assert.Empty(t, s.contacts[0].Related)
	assert.Empty(t, s.contacts[1].Related)

	assert.ErrorIs(t, s.Unlink(0, "nobody"), ErrUnknownUID)
	assert.ErrorIs(t, s.Link(0, 5, "friend"), ErrIndex)
	assert.Error(t, s.Link(0, 0, "friend"))
}

func TestAddCard(t *testing.T) {
	s := New(pipeline.New(nil), Options{DefaultRegion: "GB"})

	idx, err := s.AddCard(&model.Contact{
		FN:     "New Person",
		Emails: []string{" New@Example.com "},
		Phones: []model.Phone{{Number: "07980220220"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, idx)

	c, err := s.Card(0)
	require.NoError(t, err)
	assert.Len(t, c.UID, 36)
	assert.Equal(t, []string{ManualSource}, c.Sources)
	assert.Equal(t, []string{"new@example.com"}, c.Emails)
	assert.Equal(t, "+44 7980 220 220", c.Phones[0].Number)
	assert.Equal(t, StateLoaded, s.Status().State)
}

func TestReissueUIDs(t *testing.T) {
	keep := "0b7c2f4e-9d7a-4c1e-8f3a-2b6d5e4f3a21"
	apple := person("Apple", "", "", "ABC-123:ABPerson")
	none := person("None", "", "", "")
	ok := person("Ok", "", "", keep)
	ok.Related = []model.Relation{{Type: "friend", UID: "ABC-123:ABPerson"}}
	group := &model.Contact{FN: "Group", UID: keep[:35] + "0", Members: []string{"ABC-123:ABPerson"}}
	s := newLoaded(t, apple, none, ok, group)

	replaced, assigned, err := s.ReissueUIDs()
	require.NoError(t, err)
	assert.Equal(t, 1, replaced)
	assert.Equal(t, 1, assigned)

	assert.Equal(t, keep, s.contacts[2].UID)
	assert.NotEqual(t, "ABC-123:ABPerson", s.contacts[0].UID)
	assert.Equal(t, s.contacts[0].UID, s.contacts[2].Related[0].UID)
	assert.Equal(t, s.contacts[0].UID, s.contacts[3].Members[0])
	assert.NotEmpty(t, s.contacts[1].UID)
}

func TestBirthdays(t *testing.T) {
	a := person("Ann", "", "", "")
	a.Birthday = model.ParseDate("1990-12-01")
	a.Categories = []string{"Family"}
	b := person("Bob", "", "", "")
	b.Birthday = model.ParseDate("--0305")
	b.Anniversary = model.ParseDate("20100620")
	c := person("Cal", "", "", "")
	c.Birthday = model.ParseDate("sometime")
	s := newLoaded(t, a, b, c)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	events := s.Birthdays(nil, now)
	require.Len(t, events, 3)
	assert.Equal(t, "Bob", events[0].Name)
	assert.Nil(t, events[0].Age)
	assert.Equal(t, "anniversary", events[1].Type)
	require.NotNil(t, events[1].Age)
	assert.Equal(t, 16, *events[1].Age)
	assert.Equal(t, "Ann", events[2].Name)
	assert.Equal(t, 36, *events[2].Age)

	events = s.Birthdays([]string{"family"}, now)
	require.Len(t, events, 1)
	assert.Equal(t, "Ann", events[0].Name)
}
