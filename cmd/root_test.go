package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lotwatch/internal/report"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	cmds := rootCmd.Commands()

	// Collect subcommand names.
	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	// Verify expected subcommands are registered.
	expected := []string{"fetch", "extract", "agent", "analyze", "select", "serve"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "lotwatch", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestFetchCommand_Flags(t *testing.T) {
	flag := fetchCmd.Flags().Lookup("mode")
	require.NotNil(t, flag)
	assert.Equal(t, modeRows, flag.DefValue)

	require.NotNil(t, fetchCmd.Flags().Lookup("format"))
	require.NotNil(t, fetchCmd.Flags().ShorthandLookup("o"))
}

func TestAgentCommand_Flags(t *testing.T) {
	flag := agentCmd.Flags().Lookup("interval")
	require.NotNil(t, flag)
	assert.Equal(t, "0s", flag.DefValue)

	flag = agentCmd.Flags().Lookup("analyze")
	require.NotNil(t, flag)
	assert.Equal(t, "true", flag.DefValue)
}

func TestAnalyzeCommand_Flags(t *testing.T) {
	flag := analyzeCmd.Flags().Lookup("sort")
	require.NotNil(t, flag)
	assert.Equal(t, "probability_desc", flag.DefValue)
	require.NotNil(t, analyzeCmd.Flags().Lookup("selected"))
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestSelectCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range selectCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"list", "toggle", "handoff"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestExtractRecords(t *testing.T) {
	recs, err := extractRecords(searchPage, modeRows, "")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "123-ЗЦП1", recs[0].LotID)

	_, err = extractRecords(searchPage, "pdf", "")
	assert.Error(t, err)
}

func TestExtractCommand_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "page.html")
	require.NoError(t, os.WriteFile(path, []byte(searchPage), 0o600))

	var out bytes.Buffer
	extractCmd.SetOut(&out)
	t.Cleanup(func() { extractCmd.SetOut(nil) })
	extractMode, extractFormat, extractOut = modeRows, string(report.FormatCSV), ""

	require.NoError(t, extractCmd.RunE(extractCmd, []string{path}))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[1], "123-ЗЦП1,"))
}

func TestOpenOutput_BinaryNeedsPath(t *testing.T) {
	_, _, err := openOutput(rootCmd, "", report.FormatXLSX)
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "out.xlsx")
	w, closeOut, err := openOutput(rootCmd, path, report.FormatXLSX)
	require.NoError(t, err)
	require.NotNil(t, w)
	require.NoError(t, closeOut())
	assert.FileExists(t, path)
}
