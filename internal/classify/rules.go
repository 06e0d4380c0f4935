package classify

import (
	"os"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/vcard-normalizer/internal/model"
)

// RegexPrefix marks a pattern as a regular expression.
const RegexPrefix = "re:"

// Rule tags contacts with Category when any pattern matches.
type Rule struct {
	Category string   `yaml:"category" json:"category"`
	Patterns []string `yaml:"patterns" json:"patterns"`
}

// DefaultRules is the built-in rule set, applied in order.
func DefaultRules() []Rule {
	return []Rule{
		{Category: "Work", Patterns: []string{
			`re:\b(ltd|limited|llc|inc|plc|gmbh|corp)\b`, "consulting", "solutions", "services",
		}},
		{Category: "School", Patterns: []string{
			"school", "academy", "college", "university", `re:\bpta\b`, "nursery",
		}},
		{Category: "Medical", Patterns: []string{
			"surgery", "clinic", "dental", "dentist", "hospital", "pharmacy", "physio", "optician", `re:\bgp\b`,
		}},
		{Category: "Trades", Patterns: []string{
			"plumb", "electrician", "builder", "roofing", "joinery", "carpent", "garage", "mechanic", "locksmith", "glazing",
		}},
		{Category: "Finance", Patterns: []string{
			"bank", "accountant", "insurance", "mortgage", `re:\bifa\b`,
		}},
	}
}

// LoadRules reads a YAML list of rules.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "classify: read rules %s", path)
	}
	var rules []Rule
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, eris.Wrapf(err, "classify: parse rules %s", path)
	}
	for i, r := range rules {
		if strings.TrimSpace(r.Category) == "" || len(r.Patterns) == 0 {
			return nil, eris.Errorf("classify: rule %d needs a category and patterns", i)
		}
	}
	return rules, nil
}

// RulesOrDefault loads path, falling back to DefaultRules when path is empty
// or the file is unusable.
func RulesOrDefault(path string) []Rule {
	if path == "" {
		return DefaultRules()
	}
	rules, err := LoadRules(path)
	if err != nil {
		zap.L().Warn("classify: using built-in rules", zap.Error(err))
		return DefaultRules()
	}
	return rules
}

type matcher struct {
	re  *regexp.Regexp
	sub string
}

func (m matcher) match(text, lower string) bool {
	if m.re != nil {
		return m.re.MatchString(text)
	}
	return strings.Contains(lower, m.sub)
}

type compiledRule struct {
	category string
	matchers []matcher
}

// Tagger applies category rules to contacts.
type Tagger struct {
	rules []compiledRule
}

// NewTagger compiles rules. Regex patterns are case-insensitive. A nil or
// empty rule set uses DefaultRules.
func NewTagger(rules []Rule) (*Tagger, error) {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	t := &Tagger{}
	for _, r := range rules {
		cr := compiledRule{category: strings.TrimSpace(r.Category)}
		for _, p := range r.Patterns {
			if expr, ok := strings.CutPrefix(p, RegexPrefix); ok {
				re, err := regexp.Compile("(?i)" + expr)
				if err != nil {
					return nil, eris.Wrapf(err, "classify: bad pattern %q for %s", p, r.Category)
				}
				cr.matchers = append(cr.matchers, matcher{re: re})
				continue
			}
			if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
				cr.matchers = append(cr.matchers, matcher{sub: p})
			}
		}
		t.rules = append(t.rules, cr)
	}
	return t, nil
}

// tagText is what rules match against. Emails are excluded so transactional
// addresses never drive a category.
func tagText(c *model.Contact) string {
	return strings.Join([]string{c.FN, c.Org, c.Title}, " ")
}

// Match returns the categories whose rules match the contact, in rule order.
func (t *Tagger) Match(c *model.Contact) []string {
	if !HasSignal(c) {
		return nil
	}
	text := tagText(c)
	lower := strings.ToLower(text)

	var out []string
	for _, r := range t.rules {
		for _, m := range r.matchers {
			if m.match(text, lower) {
				out = append(out, r.category)
				break
			}
		}
	}
	return out
}

// Tag adds matching categories the contact does not already carry and logs
// one audit entry for the new set.
func (t *Tagger) Tag(c *model.Contact) []string {
	added := c.AddCategories(t.Match(c)...)
	if len(added) > 0 {
		c.LogChange("Auto-tagged categories: " + strings.Join(added, ", "))
	}
	return added
}
