package ui_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/arthur-debert/dotdeploy/pkg/errors"
	"github.com/arthur-debert/dotdeploy/pkg/types"
	"github.com/arthur-debert/dotdeploy/pkg/ui"
)

func sampleStatus() []types.ModuleStatus {
	return []types.ModuleStatus{
		{
			Name:     "shell",
			Reason:   types.ReasonManual,
			Location: "/dots/modules/shell",
			User:     "alice",
			Depends:  []string{"base"},
			Date:     time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
			Files: []types.FileStatus{
				{Target: "/home/alice/.zshrc", Source: "/dots/modules/shell/zshrc", Operation: "link"},
				{Target: "/home/alice/.env", Operation: "create", Drifted: true},
			},
			Packages: []string{"zsh"},
		},
	}
}

func TestNewRenderer(t *testing.T) {
	tests := []struct {
		name        string
		format      ui.Format
		expectError bool
	}{
		{"terminal", ui.FormatTerminal, false},
		{"text", ui.FormatText, false},
		{"json", ui.FormatJSON, false},
		{"yaml", ui.FormatYAML, false},
		{"xml", ui.FormatXML, false},
		{"auto with buffer", ui.FormatAuto, false},
		{"invalid", ui.Format(999), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := ui.NewRenderer(tt.format, &bytes.Buffer{})
			if tt.expectError {
				assert.Error(t, err)
				assert.True(t, errors.IsErrorCode(err, errors.ErrInvalidInput))
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, r)
		})
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input    string
		expected ui.Format
		wantErr  bool
	}{
		{"", ui.FormatAuto, false},
		{"auto", ui.FormatAuto, false},
		{"TERM", ui.FormatTerminal, false},
		{"plain", ui.FormatText, false},
		{"json", ui.FormatJSON, false},
		{"yml", ui.FormatYAML, false},
		{"xml", ui.FormatXML, false},
		{"html", ui.FormatAuto, true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			f, err := ui.ParseFormat(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, f)
		})
	}
	assert.Equal(t, "yaml", ui.FormatYAML.String())
	assert.Equal(t, "unknown", ui.Format(42).String())
}

func TestTextStatus(t *testing.T) {
	var buf bytes.Buffer
	r, err := ui.NewRenderer(ui.FormatText, &buf)
	require.NoError(t, err)

	require.NoError(t, r.RenderStatus(sampleStatus()))
	out := buf.String()
	assert.Contains(t, out, "shell")
	assert.Contains(t, out, "manual")
	assert.Contains(t, out, "depends: base")
	assert.Contains(t, out, "/home/alice/.zshrc <- /dots/modules/shell/zshrc")
	assert.Contains(t, out, "/home/alice/.env (modified)")
	assert.Contains(t, out, "packages: zsh")
	assert.NotContains(t, out, "\x1b[")
}

func TestTextStatusEmpty(t *testing.T) {
	var buf bytes.Buffer
	r, _ := ui.NewRenderer(ui.FormatText, &buf)
	require.NoError(t, r.RenderStatus(nil))
	assert.Equal(t, "No modules deployed.\n", buf.String())
}

func TestJSONStatus(t *testing.T) {
	var buf bytes.Buffer
	r, _ := ui.NewRenderer(ui.FormatJSON, &buf)
	require.NoError(t, r.RenderStatus(sampleStatus()))

	var doc struct {
		Modules []types.ModuleStatus `json:"modules"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	require.Len(t, doc.Modules, 1)
	assert.Equal(t, "shell", doc.Modules[0].Name)
	assert.True(t, doc.Modules[0].Files[1].Drifted)
}

func TestJSONStatusEmptyIsArray(t *testing.T) {
	var buf bytes.Buffer
	r, _ := ui.NewRenderer(ui.FormatJSON, &buf)
	require.NoError(t, r.RenderStatus(nil))
	assert.JSONEq(t, `{"modules": []}`, buf.String())
}

func TestYAMLStatus(t *testing.T) {
	var buf bytes.Buffer
	r, _ := ui.NewRenderer(ui.FormatYAML, &buf)
	require.NoError(t, r.RenderStatus(sampleStatus()))

	var doc struct {
		Modules []types.ModuleStatus `yaml:"modules"`
	}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &doc))
	require.Len(t, doc.Modules, 1)
	assert.Equal(t, types.ReasonManual, doc.Modules[0].Reason)
	assert.Equal(t, []string{"zsh"}, doc.Modules[0].Packages)
}

func TestXMLStatus(t *testing.T) {
	var buf bytes.Buffer
	r, _ := ui.NewRenderer(ui.FormatXML, &buf)
	require.NoError(t, r.RenderStatus(sampleStatus()))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, `<?xml version="1.0" encoding="UTF-8"?>`))
	assert.Contains(t, out, `<module name="shell" reason="manual"`)
	assert.Contains(t, out, `<file operation="create" target="/home/alice/.env" drifted="true"/>`)
	assert.Contains(t, out, `<package>zsh</package>`)
}

func TestRenderChanges(t *testing.T) {
	changes := []types.Change{
		{Module: "shell", Kind: "file", Subject: "/home/alice/.zshrc", Action: "deploy"},
		{Module: "shell", Kind: "package", Subject: "zsh", Action: "install"},
	}

	var buf bytes.Buffer
	r, _ := ui.NewRenderer(ui.FormatText, &buf)
	require.NoError(t, r.RenderChanges(changes))
	assert.Equal(t, 1, strings.Count(buf.String(), "shell\n"))
	assert.Contains(t, buf.String(), "install")

	buf.Reset()
	r, _ = ui.NewRenderer(ui.FormatText, &buf)
	require.NoError(t, r.RenderChanges(nil))
	assert.Equal(t, "Nothing to do.\n", buf.String())
}

func TestRenderMessagesText(t *testing.T) {
	var buf bytes.Buffer
	r, _ := ui.NewRenderer(ui.FormatText, &buf)
	require.NoError(t, r.RenderMessages([]types.Message{
		{Module: "shell", Command: types.CommandDeploy, Text: "Restart your shell.\n"},
	}))
	assert.Equal(t, "## shell\n\nRestart your shell.\n\n", buf.String())
}

func TestRenderError(t *testing.T) {
	err := errors.New(errors.ErrModuleNotFound, "module nope not found")

	var buf bytes.Buffer
	r, _ := ui.NewRenderer(ui.FormatJSON, &buf)
	require.NoError(t, r.RenderError(err))
	assert.JSONEq(t, `{"code":"MODULE_NOT_FOUND","message":"[MODULE_NOT_FOUND] module nope not found"}`, buf.String())

	buf.Reset()
	r, _ = ui.NewRenderer(ui.FormatText, &buf)
	require.NoError(t, r.RenderError(err))
	assert.Equal(t, "Error: [MODULE_NOT_FOUND] module nope not found\n", buf.String())
}

func TestConsoleConfirm(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		assumeYes bool
		expected  bool
	}{
		{"yes", "y\n", false, true},
		{"full yes", "YES\n", false, true},
		{"no", "n\n", false, false},
		{"empty defaults to no", "\n", false, false},
		{"eof defaults to no", "", false, false},
		{"assume yes", "", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			c := &ui.Console{In: strings.NewReader(tt.input), Out: &out, AssumeYes: tt.assumeYes}
			ok, err := c.Confirm("Remove these files?", []string{"/a", "/b"})
			require.NoError(t, err)
			assert.Equal(t, tt.expected, ok)
			assert.Contains(t, out.String(), "/a")
		})
	}
}

func TestConsoleConfirmTruncatesItems(t *testing.T) {
	items := make([]string, 25)
	for i := range items {
		items[i] = "item"
	}
	var out bytes.Buffer
	c := &ui.Console{In: strings.NewReader("n\n"), Out: &out}
	_, err := c.Confirm("Proceed?", items)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "... and 5 more")
}
