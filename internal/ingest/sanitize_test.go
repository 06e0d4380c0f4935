package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitize(t *testing.T) {
	in := strings.Join([]string{
		"BEGIN:VCARD",
		"VERSION:3.0",
		"item1.EMAIL;type=INTERNET:a@x.com",
		"item2..TEL:+44 7980 220220",
		".ADR:;;1 High St;Leeds;;LS1;UK",
		"item1.X-ABLabel:_$!<Other>!$_",
		".X-ABADR:gb",
		"FN:Alice",
		"END:VCARD",
	}, "\n")

	out, stats := Sanitize(in)

	assert.Equal(t, strings.Join([]string{
		"BEGIN:VCARD",
		"VERSION:3.0",
		"EMAIL;type=INTERNET:a@x.com",
		"TEL:+44 7980 220220",
		"ADR:;;1 High St;Leeds;;LS1;UK",
		"FN:Alice",
		"END:VCARD",
	}, "\r\n"), out)
	assert.Equal(t, 3, stats.Repaired)
	assert.Equal(t, 2, stats.Dropped)
}

func TestSanitize_DropsFoldedContinuation(t *testing.T) {
	in := "item1.X-ABLabel:very long\r\n  continued label\r\nFN:Bob\r\n folded name\r\n"

	out, stats := Sanitize(in)

	assert.Equal(t, "FN:Bob\r\n folded name\r\n", out)
	assert.Equal(t, 1, stats.Dropped)
}

func TestSanitize_CaseInsensitivePrefix(t *testing.T) {
	out, stats := Sanitize("ITEM3.URL:https://example.com\nitem4.x-custom:1")
	assert.Equal(t, "URL:https://example.com", out)
	assert.Equal(t, 1, stats.Repaired)
	assert.Equal(t, 1, stats.Dropped)
}

func TestSanitize_LeavesCleanInputAlone(t *testing.T) {
	in := "BEGIN:VCARD\r\nFN:Alice\r\nEND:VCARD"
	out, stats := Sanitize(in)
	assert.Equal(t, in, out)
	assert.Zero(t, stats.Repaired)
	assert.Zero(t, stats.Dropped)
}

func TestSanitize_StripsBOM(t *testing.T) {
	out, _ := Sanitize("\ufeffBEGIN:VCARD")
	assert.Equal(t, "BEGIN:VCARD", out)
}
