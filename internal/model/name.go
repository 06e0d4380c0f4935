package model

import "strings"

// Name is the structured five-part personal name.
type Name struct {
	Prefix     string `json:"prefix,omitempty"`
	Given      string `json:"given,omitempty"`
	Additional string `json:"additional,omitempty"`
	Family     string `json:"family,omitempty"`
	Suffix     string `json:"suffix,omitempty"`
}

// IsZero reports whether every component is empty.
func (n Name) IsZero() bool {
	return n == Name{}
}

// Display joins the components in reading order.
func (n Name) Display() string {
	var parts []string
	for _, p := range []string{n.Prefix, n.Given, n.Additional, n.Family, n.Suffix} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// SortKey orders names family-first, matching the wire layout.
func (n Name) SortKey() string {
	return strings.ToLower(strings.Join([]string{n.Family, n.Given, n.Additional, n.Prefix, n.Suffix}, ";"))
}

// ParseName splits a "family;given;additional;prefix;suffix" string. Missing
// trailing components are empty; components past the fifth are folded into
// the suffix. A backslash escapes the following character.
func ParseName(raw string) Name {
	parts := splitEscaped(raw, ';')
	for len(parts) < 5 {
		parts = append(parts, "")
	}
	if len(parts) > 5 {
		parts[4] = strings.Join(parts[4:], " ")
		parts = parts[:5]
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return Name{
		Family:     parts[0],
		Given:      parts[1],
		Additional: parts[2],
		Prefix:     parts[3],
		Suffix:     parts[4],
	}
}

func splitEscaped(s string, sep rune) []string {
	var (
		out     []string
		b       strings.Builder
		escaped bool
	)
	for _, r := range s {
		switch {
		case escaped:
			b.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == sep:
			out = append(out, b.String())
			b.Reset()
		default:
			b.WriteRune(r)
		}
	}
	return append(out, b.String())
}
