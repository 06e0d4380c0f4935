package session

import (
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/vcard-normalizer/internal/dedupe"
	"github.com/sells-group/vcard-normalizer/internal/enrich"
	"github.com/sells-group/vcard-normalizer/internal/merge"
	"github.com/sells-group/vcard-normalizer/internal/model"
	"github.com/sells-group/vcard-normalizer/internal/relations"
)

// Sort orders for Cards.
const (
	SortLastName  = "last_name"
	SortFirstName = "first_name"
)

const (
	defaultPerPage = 50
	maxPerPage     = 500
)

// ManualSource labels cards added through the session.
const ManualSource = "manual"

// CardQuery filters and pages the contact list.
type CardQuery struct {
	Search   string
	Category string
	Sort     string
	Page     int
	PerPage  int
}

// IndexedCard pairs a contact copy with its position in the session list.
type IndexedCard struct {
	Index   int            `json:"index"`
	Contact *model.Contact `json:"contact"`
}

// CardPage is one page of Cards.
type CardPage struct {
	Total   int           `json:"total"`
	Page    int           `json:"page"`
	PerPage int           `json:"per_page"`
	Cards   []IndexedCard `json:"cards"`
}

// Cards returns copies of the contacts matching q. Search matches display
// name, organisation, and email case-insensitively.
func (s *Session) Cards(q CardQuery) CardPage {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PerPage < 1 {
		q.PerPage = defaultPerPage
	}
	q.PerPage = min(q.PerPage, maxPerPage)
	search := strings.ToLower(strings.TrimSpace(q.Search))

	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []IndexedCard
	for i, c := range s.contacts {
		if q.Category != "" && !c.HasCategory(q.Category) {
			continue
		}
		if search != "" && !matches(c, search) {
			continue
		}
		matched = append(matched, IndexedCard{Index: i, Contact: c})
	}

	sort.SliceStable(matched, func(i, j int) bool {
		a, b := sortKey(matched[i].Contact, q.Sort), sortKey(matched[j].Contact, q.Sort)
		if a[0] != b[0] {
			return a[0] < b[0]
		}
		return a[1] < b[1]
	})

	page := CardPage{Total: len(matched), Page: q.Page, PerPage: q.PerPage, Cards: []IndexedCard{}}
	start := (q.Page - 1) * q.PerPage
	if start >= len(matched) {
		return page
	}
	end := min(start+q.PerPage, len(matched))
	for _, ic := range matched[start:end] {
		page.Cards = append(page.Cards, IndexedCard{Index: ic.Index, Contact: ic.Contact.Clone()})
	}
	return page
}

func matches(c *model.Contact, search string) bool {
	if strings.Contains(strings.ToLower(c.FN), search) || strings.Contains(strings.ToLower(c.Org), search) {
		return true
	}
	for _, e := range c.Emails {
		if strings.Contains(e, search) {
			return true
		}
	}
	return false
}

func sortKey(c *model.Contact, order string) [2]string {
	fn := strings.ToLower(strings.TrimSpace(c.FN))
	org := strings.ToLower(strings.TrimSpace(c.Org))
	family := strings.ToLower(c.Name.Family)
	given := strings.ToLower(c.Name.Given)

	if order == SortFirstName {
		primary := given
		if primary == "" {
			primary = fn
		}
		if primary == "" {
			primary = org
		}
		return [2]string{primary, family}
	}
	if family != "" {
		return [2]string{family, given}
	}
	if fn != "" {
		return [2]string{fn, ""}
	}
	return [2]string{org, ""}
}

// Card returns a copy of the contact at idx.
func (s *Session) Card(idx int) (*model.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.at(idx)
	if err != nil {
		return nil, err
	}
	return c.Clone(), nil
}

// CardUpdate carries the fields to change. Nil fields are left alone.
type CardUpdate struct {
	FN         *string   `json:"fn,omitempty"`
	Org        *string   `json:"org,omitempty"`
	Title      *string   `json:"title,omitempty"`
	Note       *string   `json:"note,omitempty"`
	Categories *[]string `json:"categories,omitempty"`
}

// UpdateCard applies u to the contact at idx and returns a copy of the
// result. Each changed field gets an audit entry.
func (s *Session) UpdateCard(idx int, u CardUpdate) (*model.Contact, error) {
	var out *model.Contact
	err := s.mutate(func() error {
		c, err := s.at(idx)
		if err != nil {
			return err
		}
		set := func(field string, dst *string, v *string) {
			if v == nil || *dst == strings.TrimSpace(*v) {
				return
			}
			*dst = strings.TrimSpace(*v)
			c.LogChangef("Edited %s", field)
		}
		set("display name", &c.FN, u.FN)
		set("organisation", &c.Org, u.Org)
		set("title", &c.Title, u.Title)
		set("note", &c.Note, u.Note)
		if u.Categories != nil {
			cats := model.SortedSet(*u.Categories)
			if !slices.Equal(cats, c.Categories) {
				c.Categories = cats
				c.LogChangef("Edited categories: %s", strings.Join(cats, ", "))
			}
		}
		out = c.Clone()
		return nil
	})
	return out, err
}

// DeleteCard removes the contact at idx and returns it.
func (s *Session) DeleteCard(idx int) (*model.Contact, error) {
	var removed *model.Contact
	err := s.mutate(func() error {
		c, err := s.at(idx)
		if err != nil {
			return err
		}
		removed = c
		s.contacts = slices.Delete(s.contacts, idx, idx+1)
		return nil
	})
	return removed, err
}

// MergeCards merges the contacts at indices the same way automatic
// duplicate resolution does. The result takes the lowest index; its new
// position is returned.
func (s *Session) MergeCards(indices []int) (int, *model.Contact, error) {
	var (
		pos    int
		merged *model.Contact
	)
	err := s.mutate(func() error {
		if len(indices) < 2 {
			return eris.New("session: need at least two cards to merge")
		}
		seen := make(map[int]bool, len(indices))
		cluster := make(dedupe.Cluster, 0, len(indices))
		for _, i := range indices {
			c, err := s.at(i)
			if err != nil {
				return err
			}
			if seen[i] {
				return eris.Errorf("session: card %d listed twice", i)
			}
			seen[i] = true
			cluster = append(cluster, c)
		}

		merged = merge.MergeClusterAuto(cluster)
		merged.LogChangef("Manually merged %d cards", len(cluster))

		pos = slices.Min(indices)
		kept := make([]*model.Contact, 0, len(s.contacts)-len(indices)+1)
		for i, c := range s.contacts {
			switch {
			case i == pos:
				kept = append(kept, merged)
			case !seen[i]:
				kept = append(kept, c)
			}
		}
		s.contacts = kept
		merged = merged.Clone()
		return nil
	})
	return pos, merged, err
}

// Link records that the card at from is typ of the card at to, with the
// reciprocal edge on the other card.
func (s *Session) Link(from, to int, typ string) error {
	return s.mutate(func() error {
		a, err := s.at(from)
		if err != nil {
			return err
		}
		b, err := s.at(to)
		if err != nil {
			return err
		}
		return relations.Link(a, b, typ)
	})
}

// Unlink removes the edges between the card at from and the card with uid.
func (s *Session) Unlink(from int, uid string) error {
	return s.mutate(func() error {
		a, err := s.at(from)
		if err != nil {
			return err
		}
		for _, b := range s.contacts {
			if b.UID != "" && b.UID == uid {
				relations.Unlink(a, b)
				return nil
			}
		}
		return eris.Wrapf(ErrUnknownUID, "session: unlink %s", uid)
	})
}

// AddCard appends a new contact. It gets a UID when it has none, the
// "manual" source label, and formatted phone numbers. The new index is
// returned.
func (s *Session) AddCard(c *model.Contact) (int, error) {
	if c == nil {
		return 0, eris.New("session: nil card")
	}
	c = c.Clone()
	if c.UID == "" {
		c.UID = uuid.NewString()
	}
	if len(c.Sources) == 0 {
		c.AddSource(ManualSource)
	}
	c.Emails = model.SortedSet(lowerAll(c.Emails))
	c.SetPhones(c.Phones)
	c.Categories = model.SortedSet(c.Categories)
	enrich.New(s.opts.DefaultRegion, true).NormalizeContact(c)
	c.LogChange("Added manually")

	idx := 0
	err := s.mutate(func() error {
		s.contacts = append(s.contacts, c)
		idx = len(s.contacts) - 1
		if s.status.State == StateEmpty {
			s.status.State = StateLoaded
		}
		return nil
	})
	return idx, err
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(strings.TrimSpace(s))
	}
	return out
}

// ReissueUIDs gives every card without a bare UUID a fresh one, and
// rewrites RELATED and MEMBER references to the old values.
func (s *Session) ReissueUIDs() (replaced, assigned int, err error) {
	err = s.mutate(func() error {
		renamed := make(map[string]string)
		for _, c := range s.contacts {
			if isIssuedUID(c.UID) {
				continue
			}
			fresh := uuid.NewString()
			if c.UID == "" {
				c.LogChangef("UID assigned: %s", fresh)
				assigned++
			} else {
				renamed[c.UID] = fresh
				c.LogChangef("UID reissued: %s → %s", c.UID, fresh)
				replaced++
			}
			c.UID = fresh
		}
		if len(renamed) == 0 {
			return nil
		}
		for _, c := range s.contacts {
			for i, r := range c.Related {
				if fresh, ok := renamed[r.UID]; ok {
					c.Related[i].UID = fresh
				}
			}
			for i, m := range c.Members {
				if fresh, ok := renamed[m]; ok {
					c.Members[i] = fresh
				}
			}
		}
		return nil
	})
	return replaced, assigned, err
}

// isIssuedUID reports whether uid is a bare UUID, the only form ReissueUIDs
// leaves alone. Vendor forms such as "<uuid>:ABPerson" are reissued.
func isIssuedUID(uid string) bool {
	if uid == "" {
		return false
	}
	_, err := uuid.Parse(uid)
	return err == nil && len(uid) == 36
}

// Event is a birthday or anniversary occurrence.
type Event struct {
	Index      int      `json:"index"`
	Name       string   `json:"name"`
	Categories []string `json:"categories,omitempty"`
	Type       string   `json:"type"`
	Date       string   `json:"date"`
	Month      int      `json:"month"`
	Day        int      `json:"day,omitempty"`
	Year       int      `json:"year,omitempty"`
	Age        *int     `json:"age,omitempty"`
}

// Birthdays lists birthdays and anniversaries ordered by month and day.
// With categories set, only contacts carrying one of them (case-insensitive)
// are included. Age is computed against now when the year is known.
func (s *Session) Birthdays(categories []string, now time.Time) []Event {
	want := make(map[string]bool, len(categories))
	for _, c := range categories {
		want[strings.ToLower(c)] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	events := []Event{}
	for i, c := range s.contacts {
		if len(want) > 0 && !slices.ContainsFunc(c.Categories, func(cat string) bool { return want[strings.ToLower(cat)] }) {
			continue
		}
		for _, ev := range []struct {
			typ  string
			date *model.Date
		}{{"birthday", c.Birthday}, {"anniversary", c.Anniversary}} {
			d := ev.date
			if d == nil || d.Month < 1 || d.Month > 12 {
				continue
			}
			e := Event{
				Index:      i,
				Name:       c.Label(),
				Categories: slices.Clone(c.Categories),
				Type:       ev.typ,
				Date:       d.Value(),
				Month:      d.Month,
				Day:        d.Day,
				Year:       d.Year,
			}
			if d.Year > 1800 && d.Year <= now.Year() {
				age := now.Year() - d.Year
				e.Age = &age
			}
			events = append(events, e)
		}
	}
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Month != events[j].Month {
			return events[i].Month < events[j].Month
		}
		return events[i].Day < events[j].Day
	})
	return events
}
