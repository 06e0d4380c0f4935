package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/vcard-normalizer/internal/checkpoint"
	"github.com/sells-group/vcard-normalizer/internal/config"
	"github.com/sells-group/vcard-normalizer/internal/ingest"
	"github.com/sells-group/vcard-normalizer/internal/pipeline"
	"github.com/sells-group/vcard-normalizer/internal/store"
)

const icloudExport = `BEGIN:VCARD
VERSION:3.0
FN:Jane Doe
N:Doe;Jane;;;
EMAIL:jane@example.com
END:VCARD
BEGIN:VCARD
VERSION:3.0
FN:Bob Jones
TEL;TYPE=CELL:07980 220220
END:VCARD
`

const googleExport = `BEGIN:VCARD
VERSION:3.0
FN:J Doe
EMAIL:JANE@example.com
END:VCARD
`

// setupWorkspace points the global config at a temp workspace holding two
// exports and returns it.
func setupWorkspace(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	c := config.Defaults()
	c.OwnerName = "Sam Owner"
	c.Workspace = config.WorkspaceConfig{
		InputDir:  filepath.Join(root, "cards-in"),
		OutputDir: filepath.Join(root, "cards-out"),
		WorkDir:   filepath.Join(root, "cards-wip"),
		VarDir:    filepath.Join(root, "var"),
	}
	c.Store = config.StoreConfig{Driver: store.DriverNone}

	require.NoError(t, os.MkdirAll(c.Workspace.InputDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(c.Workspace.InputDir, "icloud.vcf"), []byte(icloudExport), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(c.Workspace.InputDir, "google.vcf"), []byte(googleExport), 0o644))

	prev := cfg
	cfg = &c
	t.Cleanup(func() { cfg = prev })
	return &c
}

func discover(t *testing.T, c *config.Config) *ingest.SourceSet {
	t.Helper()
	set, err := ingest.Discover(c.Workspace.InputDir)
	require.NoError(t, err)
	require.Len(t, set.Sources, 2)
	return set
}

func vcfFiles(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "*.vcf"))
	require.NoError(t, err)
	return matches
}

func TestRunPipeline_AutoMerge(t *testing.T) {
	c := setupWorkspace(t)
	f := &runFlags{noInteractive: true, csv: true, changelog: true}

	var out bytes.Buffer
	err := runPipeline(context.Background(), &out, newTerminal(strings.NewReader(""), &out), discover(t, c), f)
	require.NoError(t, err)

	assert.Contains(t, out.String(), "Reading 2 file(s)")
	assert.Contains(t, out.String(), "Wrote 2 contact(s)")
	assert.Contains(t, out.String(), "CSV →")
	assert.Contains(t, out.String(), "Change log →")
	assert.Contains(t, out.String(), "Duplicates merged away")

	files := vcfFiles(t, c.Workspace.OutputDir)
	require.Len(t, files, 1)
	assert.Contains(t, filepath.Base(files[0]), "-Contacts-of-Sam-Owner.vcf")
	assert.False(t, checkpoint.Exists(c.Workspace.WorkDir), "auto-merge does not checkpoint")
}

func TestRunPipeline_DryRun(t *testing.T) {
	c := setupWorkspace(t)
	f := &runFlags{noInteractive: true, dryRun: true, diff: true}

	var out bytes.Buffer
	err := runPipeline(context.Background(), &out, newTerminal(strings.NewReader(""), &out), discover(t, c), f)
	require.NoError(t, err)

	assert.Contains(t, out.String(), "Dry-run mode, no files written.")
	assert.Contains(t, out.String(), "<dry-run>")
	assert.Contains(t, out.String(), "Auto-merged")
	assert.NoDirExists(t, c.Workspace.OutputDir)
}

func TestRunPipeline_InteractiveAbortThenResume(t *testing.T) {
	c := setupWorkspace(t)

	var out bytes.Buffer
	f := &runFlags{dryRun: true}
	err := runPipeline(context.Background(), &out, newTerminal(strings.NewReader("a\n"), &out), discover(t, c), f)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Duplicate cluster 1 of 1")
	assert.Contains(t, out.String(), "Review stopped after 0 of 1 cluster(s)")
	require.True(t, checkpoint.Exists(c.Workspace.WorkDir))

	cp := checkpoint.Load(c.Workspace.WorkDir)
	require.NotNil(t, cp)
	assert.Len(t, cp.Contacts, 3, "unresolved members are kept separate")

	out.Reset()
	resume := &runFlags{yes: true}
	p := pipeline.New(nil)
	res, err := p.Resume(context.Background(), cp, resume.options(newTerminal(strings.NewReader("u\n"), &out)), nil)
	require.NoError(t, err)
	require.NoError(t, finishRun(context.Background(), &out, p, res, resume))

	assert.False(t, res.Aborted)
	assert.Len(t, res.Contacts, 2)
	assert.Contains(t, out.String(), "Wrote 2 contact(s)")
	assert.Len(t, vcfFiles(t, c.Workspace.OutputDir), 1)
}

func TestPrintNothingToDo(t *testing.T) {
	var out bytes.Buffer
	printNothingToDo(&out, "cards-in")

	assert.Contains(t, out.String(), "Nothing to merge")
	assert.Contains(t, out.String(), "No .vcf files found in cards-in/")
	assert.Contains(t, out.String(), filepath.Join("cards-in", "google.vcf"))
}

func TestPrintSources(t *testing.T) {
	c := setupWorkspace(t)
	set := discover(t, c)

	var out bytes.Buffer
	printSources(&out, c.Workspace.InputDir, set, &runFlags{region: "FR", noInteractive: true, dryRun: true})

	assert.Contains(t, out.String(), "Found 2 source file(s)")
	assert.Contains(t, out.String(), "icloud")
	assert.Contains(t, out.String(), "KB")
	assert.Contains(t, out.String(), "Owner name  : Sam Owner")
	assert.Contains(t, out.String(), "Phone region: FR")
	assert.Contains(t, out.String(), "auto-merge")
	assert.Contains(t, out.String(), "Dry run")
}

func TestFormatCheckpoint(t *testing.T) {
	var out bytes.Buffer
	formatCheckpoint(&out, "cards-wip", &checkpoint.Meta{
		TotalCards: 12, InputCount: 20, DuplicateClusters: 4, ReviewIndex: 2,
		SourceFiles: []string{"icloud", "google"},
	})

	assert.Contains(t, out.String(), "cards-wip")
	assert.Contains(t, out.String(), "12")
	assert.Contains(t, out.String(), "Sources:")
	assert.Contains(t, out.String(), "google")
}
