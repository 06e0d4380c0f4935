// Package strip removes vendor extension properties from raw records.
package strip

import (
	"regexp"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/vcard-normalizer/internal/model"
)

// Vendor properties stripped regardless of KeepUnknown.
var vendorPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^X-AB`),
	regexp.MustCompile(`(?i)^X-ADDRESSBOOKSERVER`),
	regexp.MustCompile(`(?i)^X-APPLE`),
	regexp.MustCompile(`(?i)^ITEM\d+\.`),
	regexp.MustCompile(`(?i)^X-GOOGLE`),
	regexp.MustCompile(`(?i)^X-PROTONMAIL`),
}

var reExtension = regexp.MustCompile(`(?i)^X-`)

// DefaultAllow lists extension properties that are never stripped.
var DefaultAllow = []string{
	model.SourceProperty,
	"X-PHONETIC-FIRST-NAME",
	"X-PHONETIC-LAST-NAME",
}

// Stats summarises a stripping pass.
type Stats struct {
	Contacts   int `json:"contacts"`
	Properties int `json:"properties"`
}

// Stripper removes extension properties from a contact's raw record.
type Stripper struct {
	KeepUnknown bool
	allow       []string
}

// New creates a Stripper. Extra allow-listed names are added to DefaultAllow.
func New(keepUnknown bool, allow ...string) *Stripper {
	s := &Stripper{KeepUnknown: keepUnknown}
	for _, a := range append(slices.Clone(DefaultAllow), allow...) {
		s.allow = append(s.allow, strings.ToUpper(a))
	}
	return s
}

// ShouldStrip reports whether a property name is removed.
func (s *Stripper) ShouldStrip(name string) bool {
	if slices.Contains(s.allow, strings.ToUpper(name)) {
		return false
	}
	for _, re := range vendorPatterns {
		if re.MatchString(name) {
			return true
		}
	}
	return !s.KeepUnknown && reExtension.MatchString(name)
}

// Strip removes matching properties from c.Raw and returns how many property
// lines were removed. Canonical fields are not touched.
func (s *Stripper) Strip(c *model.Contact) int {
	if c.Raw == nil {
		return 0
	}

	var names []string
	removed := 0
	for name, fields := range c.Raw {
		if !s.ShouldStrip(name) {
			continue
		}
		removed += len(fields)
		names = append(names, name)
		delete(c.Raw, name)
	}
	if removed > 0 {
		slices.Sort(names)
		c.LogChangef("Stripped %d proprietary property(ies): %s", removed, strings.Join(names, ", "))
	}
	return removed
}

// StripAll strips every contact.
func (s *Stripper) StripAll(contacts []*model.Contact) Stats {
	var stats Stats
	for _, c := range contacts {
		if n := s.Strip(c); n > 0 {
			stats.Contacts++
			stats.Properties += n
		}
	}
	zap.L().Info("strip: removed proprietary properties",
		zap.Int("contacts", stats.Contacts),
		zap.Int("properties", stats.Properties),
		zap.Bool("keep_unknown", s.KeepUnknown),
	)
	return stats
}
