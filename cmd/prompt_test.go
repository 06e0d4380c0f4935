package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/vcard-normalizer/internal/dedupe"
	"github.com/sells-group/vcard-normalizer/internal/merge"
	"github.com/sells-group/vcard-normalizer/internal/model"
)

func testCluster() dedupe.Cluster {
	return dedupe.Cluster{
		{FN: "Jane Doe", Emails: []string{"jane@example.com"}, Sources: []string{"icloud"}},
		{FN: "J Doe", Emails: []string{"jane@example.com"}, Sources: []string{"google"}},
	}
}

func TestTerminal_Decide(t *testing.T) {
	tests := []struct {
		input string
		want  merge.Decision
	}{
		{"2\n", merge.Decision{Action: merge.ActionKeep, Keep: 1}},
		{"u\n", merge.Decision{Action: merge.ActionUnion}},
		{"\n", merge.Decision{Action: merge.ActionUnion}},
		{"d\n", merge.Decision{Action: merge.ActionDelete}},
		{"a", merge.Decision{Action: merge.ActionAbort}},
	}
	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.input), func(t *testing.T) {
			var out bytes.Buffer
			term := newTerminal(strings.NewReader(tt.input), &out)

			got, err := term.Decide(context.Background(), merge.Prompt{
				Cluster: testCluster(), Total: 3, Scores: []float64{100, 90.8},
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Contains(t, out.String(), "Duplicate cluster 1 of 3")
			assert.Contains(t, out.String(), "J Doe")
			assert.Contains(t, out.String(), "91%")
		})
	}
}

func TestTerminal_DecideInvalid(t *testing.T) {
	var out bytes.Buffer
	term := newTerminal(strings.NewReader("7\n"), &out)

	_, err := term.Decide(context.Background(), merge.Prompt{Cluster: testCluster(), Total: 1})
	assert.ErrorIs(t, err, merge.ErrInvalidDecision)
}

func TestTerminal_RetryShowsReason(t *testing.T) {
	var out bytes.Buffer
	term := newTerminal(strings.NewReader("1\n"), &out)

	_, err := term.Decide(context.Background(), merge.Prompt{
		Cluster: testCluster(), Total: 1, Retry: merge.ErrInvalidDecision,
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "invalid decision")
	assert.NotContains(t, out.String(), "Duplicate cluster")
}

func TestTerminal_ClosedInputStopsReview(t *testing.T) {
	term := newTerminal(strings.NewReader(""), &bytes.Buffer{})
	_, err := term.Decide(context.Background(), merge.Prompt{Cluster: testCluster(), Total: 1})
	require.Error(t, err)
	assert.NotErrorIs(t, err, merge.ErrInvalidDecision)
}

func TestTerminal_PromptCountry(t *testing.T) {
	var out bytes.Buffer
	term := newTerminal(strings.NewReader("  France \n"), &out)

	got, err := term.PromptCountry(&model.Contact{FN: "Jane Doe"}, model.Address{Locality: "Paris"})
	require.NoError(t, err)
	assert.Equal(t, "France", got)
	assert.Contains(t, out.String(), "Jane Doe: Paris")
}

func TestTerminal_Confirm(t *testing.T) {
	tests := []struct {
		input string
		def   bool
		want  bool
	}{
		{"\n", true, true},
		{"\n", false, false},
		{"y\n", false, true},
		{"YES\n", false, true},
		{"n\n", true, false},
	}
	for _, tt := range tests {
		term := newTerminal(strings.NewReader(tt.input), &bytes.Buffer{})
		got, err := term.confirm("Proceed?", tt.def)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "input %q", tt.input)
	}
}
