package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metaphorlab/internal/domain"
	"metaphorlab/internal/view"
)

func run(t *testing.T, stdin string, args ...string) string {
	t.Helper()
	t.Chdir(t.TempDir())

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	t.Cleanup(func() { asJSON, service = false, "" })

	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func TestSegmentReadsStdin(t *testing.T) {
	out := run(t, "Time is a thief. The sky is blue!\n\nHope floats", "segment")
	assert.Equal(t, "Time is a thief.\nThe sky is blue!\nHope floats\n", out)
}

func TestRouteJSON(t *testing.T) {
	out := run(t, "", "route", "--json", "create", "a", "metaphor", "about", "love")

	var in domain.Intent
	require.NoError(t, json.Unmarshal([]byte(out), &in))
	assert.Equal(t, domain.ServiceMetaphorCreator, in.Service)
}

func TestRouteForcedService(t *testing.T) {
	out := run(t, "", "route", "-s", "lyrics", "hello")
	assert.Contains(t, out, "service: lyric-generator")
}

func TestAnalyzeConfigParsesFlagsLikeTheAPI(t *testing.T) {
	require.NoError(t, analyzeCmd.Flags().Parse([]string{
		"--label", "Metaphor", "--sort", "Confidence", "--dir", "DESC", "--min", "0.2",
	}))
	t.Cleanup(func() {
		labelFilter, sortKey, sortDir = string(view.FilterAll), string(view.SortOriginal), string(view.Asc)
		minConf = 0
	})

	vc, err := analyzeConfig()
	require.NoError(t, err)
	assert.Equal(t, view.FilterMetaphor, vc.Label)
	assert.Equal(t, view.SortConfidence, vc.SortKey)
	assert.Equal(t, view.Desc, vc.SortDirection)
	assert.Equal(t, 0.2, vc.MinConfidence)

	sortKey = "length"
	_, err = analyzeConfig()
	assert.ErrorIs(t, err, view.ErrInvalidSort)
}
