package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TFMV/ontograph/export"
	apperrors "github.com/TFMV/ontograph/pkg/errors"
)

const zooData = "../ingest/testdata/zoo.json"

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestRenderJSON(t *testing.T) {
	out := filepath.Join(t.TempDir(), "rex.json")
	_, stderr, err := run(t, "render",
		"--data", zooData,
		"--root", "http://example.org/zoo#rex",
		"--format", "json",
		"--iterations", "50",
		"--output", out)
	require.NoError(t, err)
	assert.Contains(t, stderr, "4 nodes, 3 links")
	assert.Contains(t, stderr, "wrote "+out)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var doc struct {
		Nodes    []json.RawMessage `json:"nodes"`
		Links    []json.RawMessage `json:"links"`
		Metadata struct {
			Width float64 `json:"width"`
		} `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Len(t, doc.Nodes, 4)
	assert.Len(t, doc.Links, 3)
	assert.Equal(t, 800.0, doc.Metadata.Width)
}

func TestRenderSVGToStdout(t *testing.T) {
	stdout, _, err := run(t, "render",
		"-d", zooData,
		"-r", "http://example.org/zoo#alice",
		"--kind", "explore",
		"--depth", "2",
		"--width", "500",
		"--height", "400",
		"-n", "20",
		"-o", "-")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stdout, "<?xml"))
	assert.Contains(t, stdout, `viewBox="0 0 500 400"`)
	assert.Contains(t, stdout, "<style>")
}

func TestRenderUML(t *testing.T) {
	stdout, _, err := run(t, "render",
		"-d", zooData,
		"-r", "http://example.org/zoo#Animal",
		"--kind", "uml",
		"--format", "dot",
		"-o", "-")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stdout, "digraph G {"))
	assert.Contains(t, stdout, "shape=record")
}

func TestRenderErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing root", []string{"render", "--data", zooData}},
		{"bad format", []string{"render", "--data", zooData, "--root", "x", "--format", "png"}},
		{"bad kind", []string{"render", "--data", zooData, "--root", "x", "--kind", "tree"}},
		{"bad depth", []string{"render", "--data", zooData, "--root", "x", "--depth", "0"}},
		{"missing data", []string{"render", "--data", "nope.json", "--root", "x"}},
		{"unknown root", []string{"render", "--data", zooData, "--root", "http://example.org/zoo#unicorn", "-o", "-"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := run(t, tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestExport(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.svg")
	svg := `<svg width="20" height="10" _ngcontent-c1=""><rect class="shape" width="5" height="5"/></svg>`
	require.NoError(t, os.WriteFile(input, []byte(svg), 0o644))

	stdout, _, err := run(t, "export", "--input", input)
	require.NoError(t, err)
	uri := strings.TrimSpace(stdout)
	require.True(t, strings.HasPrefix(uri, export.DataURIPrefix))
	doc, err := export.DecodeDataURI(uri)
	require.NoError(t, err)
	assert.NotContains(t, string(doc), "_ngcontent")
	assert.Contains(t, string(doc), "stroke: #555555")

	out := filepath.Join(dir, "out.svg")
	_, stderr, err := run(t, "export", "-i", input, "--svg", "-o", out)
	require.NoError(t, err)
	assert.Contains(t, stderr, "wrote "+out)
	inlined, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(inlined), `style="`)
}

func TestExportWithConfiguredTheme(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dark.css"), []byte("rect { fill: #101010; }"), 0o644))
	cfgPath := filepath.Join(dir, "ontograph.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("theme:\n  stylesheet: dark.css\n"), 0o644))
	input := filepath.Join(dir, "in.svg")
	require.NoError(t, os.WriteFile(input, []byte(`<svg><rect/></svg>`), 0o644))

	stdout, _, err := run(t, "export", "--config", cfgPath, "-i", input, "--svg")
	require.NoError(t, err)
	assert.Contains(t, stdout, "fill: #101010")
}

func TestExportErrors(t *testing.T) {
	_, _, err := run(t, "export")
	assert.Error(t, err)

	_, _, err = run(t, "export", "-i", filepath.Join(t.TempDir(), "missing.svg"))
	assert.Error(t, err)

	input := filepath.Join(t.TempDir(), "page.html")
	require.NoError(t, os.WriteFile(input, []byte("<p>no graph here</p>"), 0o644))
	_, _, err = run(t, "export", "-i", input)
	assert.True(t, apperrors.IsValidation(err))
}

func TestServeNeedsResourceSource(t *testing.T) {
	_, _, err := run(t, "serve")
	assert.True(t, apperrors.IsValidation(err))
}

func TestVersion(t *testing.T) {
	stdout, _, err := run(t, "--version")
	require.NoError(t, err)
	assert.Equal(t, "ontograph "+version+"\n", stdout)
}
