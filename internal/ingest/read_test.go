package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/emersion/go-vcard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const twoCards = `BEGIN:VCARD
VERSION:3.0
FN:Alice Smith
N:Smith;Alice;;;
item1.EMAIL;TYPE=INTERNET:alice@example.com
item1.X-ABLabel:home
END:VCARD
BEGIN:VCALENDAR
VERSION:2.0
END:VCALENDAR
BEGIN:VCARD
VERSION:3.0
FN:Bob Jones
TEL;TYPE=CELL:07980 220220
END:VCARD
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestSplitBlocks(t *testing.T) {
	blocks := SplitBlocks(twoCards)
	require.Len(t, blocks, 3)
	assert.Equal(t, "VCARD", blocks[0].Type)
	assert.Equal(t, "VCALENDAR", blocks[1].Type)
	assert.Equal(t, "VCARD", blocks[2].Type)
	assert.Contains(t, blocks[2].Text, "FN:Bob Jones")
}

func TestSplitBlocks_NestedAndUnterminated(t *testing.T) {
	text := "junk\nBEGIN:VCARD\nBEGIN:VCARD\nFN:Inner\nEND:VCARD\nEND:VCARD\nBEGIN:VCARD\nFN:Open"
	blocks := SplitBlocks(text)
	require.Len(t, blocks, 2)
	assert.Contains(t, blocks[0].Text, "FN:Inner")
	assert.Contains(t, blocks[1].Text, "FN:Open")
}

func TestDecode(t *testing.T) {
	records, stats := Decode(twoCards, "icloud")

	require.Len(t, records, 2)
	assert.Equal(t, "icloud", records[0].Source)
	assert.Equal(t, "alice@example.com", records[0].Card.Value(vcard.FieldEmail))
	assert.Nil(t, records[0].Card.Get("X-ABLABEL"))
	assert.Equal(t, "Bob Jones", records[1].Card.Value(vcard.FieldFormattedName))

	assert.Equal(t, 2, stats.Cards)
	assert.Equal(t, 1, stats.IgnoredBlocks)
	assert.Equal(t, 1, stats.RepairedLines)
	assert.Equal(t, 1, stats.DroppedLines)
}

func TestDecode_SkipsUnreadableCard(t *testing.T) {
	text := "BEGIN:VCARD\nVERSION:3.0\nFN:Good\nEND:VCARD\n" +
		"BEGIN:VCARD\nVERSION:3.0\nthis line has no separator\nEND:VCARD\n"

	records, stats := Decode(text, "proton")

	require.Len(t, records, 1)
	assert.Equal(t, "Good", records[0].Card.Value(vcard.FieldFormattedName))
	assert.Equal(t, 1, stats.SkippedCards)
}

func TestDecode_InvalidUTF8Replaced(t *testing.T) {
	records, _ := Decode("BEGIN:VCARD\nVERSION:3.0\nFN:Caf\xe9\nEND:VCARD\n", "google")
	require.Len(t, records, 1)
	assert.Equal(t, "Caf\uFFFD", records[0].Card.Value(vcard.FieldFormattedName))
}

func TestRead_SkipsUnreadableFiles(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "icloud.vcf", twoCards)

	batch := Read([]Source{
		{Path: good, Label: "icloud"},
		{Path: filepath.Join(dir, "missing.vcf"), Label: "missing"},
	})

	assert.Len(t, batch.Records, 2)
	assert.Equal(t, 1, batch.Stats.Files)
	assert.Equal(t, 1, batch.Stats.UnreadableFiles)
	assert.Equal(t, map[string]int{"icloud": 2}, SourceCounts(batch.Records))
}

func TestSourceLabel(t *testing.T) {
	assert.Equal(t, "icloud-2024", SourceLabel("/tmp/in/icloud-2024.vcf"))
	assert.Equal(t, "contacts", SourceLabel("contacts.VCF"))
}
