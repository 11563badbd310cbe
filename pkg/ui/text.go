package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/arthur-debert/dotdeploy/pkg/logging"
	"github.com/arthur-debert/dotdeploy/pkg/types"
	"github.com/arthur-debert/dotdeploy/pkg/ui/styles"
)

const dateLayout = "2006-01-02 15:04"

// textRenderer writes human readable output, styled when attached to a terminal
type textRenderer struct {
	w      io.Writer
	styled bool
}

func (r *textRenderer) style(name, text string) string {
	if !r.styled {
		return text
	}
	return styles.Default.Render(name, text)
}

// RenderStatus lists each module with its files and packages
func (r *textRenderer) RenderStatus(modules []types.ModuleStatus) error {
	if len(modules) == 0 {
		_, err := fmt.Fprintln(r.w, "No modules deployed.")
		return err
	}

	var sb strings.Builder
	for i, m := range modules {
		if i > 0 {
			sb.WriteString("\n")
		}
		reasonStyle := "Automatic"
		if m.Reason == types.ReasonManual {
			reasonStyle = "Manual"
		}
		fmt.Fprintf(&sb, "%s %s %s\n",
			r.style("Module", pad(m.Name, 28, r.styled)),
			r.style(reasonStyle, pad(string(m.Reason), 11, r.styled)),
			r.style("Location", m.Location))
		fmt.Fprintf(&sb, "  deployed %s by %s\n", m.Date.Local().Format(dateLayout), m.User)
		if len(m.Depends) > 0 {
			fmt.Fprintf(&sb, "  depends: %s\n", strings.Join(m.Depends, ", "))
		}
		for _, f := range m.Files {
			line := fmt.Sprintf("%-9s %s", f.Operation, f.Target)
			if f.Source != "" {
				line += " <- " + f.Source
			}
			if f.Drifted {
				line += " " + r.style("Warning", "(modified)")
			}
			sb.WriteString("  " + line + "\n")
		}
		if len(m.Packages) > 0 {
			fmt.Fprintf(&sb, "  packages: %s\n", strings.Join(m.Packages, " "))
		}
	}
	_, err := io.WriteString(r.w, sb.String())
	return err
}

// RenderChanges lists pending actions grouped by module
func (r *textRenderer) RenderChanges(changes []types.Change) error {
	if len(changes) == 0 {
		_, err := fmt.Fprintln(r.w, "Nothing to do.")
		return err
	}
	var sb strings.Builder
	current := ""
	for _, c := range changes {
		if c.Module != current {
			current = c.Module
			sb.WriteString(r.style("Header", current) + "\n")
		}
		fmt.Fprintf(&sb, "  %-8s %-10s %s\n", c.Kind, c.Action, c.Subject)
	}
	_, err := io.WriteString(r.w, sb.String())
	return err
}

// RenderMessages prints module messages, as markdown on a terminal
func (r *textRenderer) RenderMessages(messages []types.Message) error {
	if len(messages) == 0 {
		return nil
	}
	var md strings.Builder
	for _, msg := range messages {
		fmt.Fprintf(&md, "## %s\n\n%s\n\n", msg.Module, strings.TrimSpace(msg.Text))
	}
	if !r.styled {
		_, err := io.WriteString(r.w, md.String())
		return err
	}

	out, err := renderMarkdown(md.String())
	if err != nil {
		logger := logging.GetLogger("ui.text")
		logger.Debug().Err(err).Msg("markdown rendering failed, printing raw")
		out = md.String()
	}
	_, err = io.WriteString(r.w, out)
	return err
}

// RenderError prints the error, one aggregate member per line
func (r *textRenderer) RenderError(err error) error {
	_, writeErr := fmt.Fprintf(r.w, "%s %s\n", r.style("Error", "Error:"), err.Error())
	return writeErr
}

func renderMarkdown(md string) (string, error) {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		return "", err
	}
	return renderer.Render(md)
}

// pad leaves width handling to lipgloss when styled
func pad(s string, width int, styled bool) string {
	if styled {
		return s
	}
	return fmt.Sprintf("%-*s", width, s)
}
