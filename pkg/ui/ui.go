// Package ui renders dotdeploy's user-facing output.
// It supports terminal (rich), text (plain), JSON, YAML and XML formats.
package ui

import (
	"io"
	"os"

	"github.com/arthur-debert/dotdeploy/pkg/errors"
	"github.com/arthur-debert/dotdeploy/pkg/types"
)

// Renderer is the common interface for all output renderers.
type Renderer interface {
	// RenderStatus renders the deployed modules
	RenderStatus(modules []types.ModuleStatus) error

	// RenderChanges renders the pending actions of a dry run
	RenderChanges(changes []types.Change) error

	// RenderMessages renders module messages
	RenderMessages(messages []types.Message) error

	// RenderError renders an error with appropriate formatting
	RenderError(err error) error
}

// NewRenderer creates a new renderer based on the specified format.
// It detects terminal capabilities when format is Auto.
func NewRenderer(format Format, output io.Writer) (Renderer, error) {
	switch format {
	case FormatAuto:
		if file, ok := output.(*os.File); ok {
			return NewRenderer(DetectFormat(file), output)
		}
		return NewRenderer(FormatTerminal, output)
	case FormatTerminal:
		return &textRenderer{w: output, styled: true}, nil
	case FormatText:
		return &textRenderer{w: output}, nil
	case FormatJSON:
		return &structuredRenderer{w: output, encode: encodeJSON}, nil
	case FormatYAML:
		return &structuredRenderer{w: output, encode: encodeYAML}, nil
	case FormatXML:
		return &xmlRenderer{w: output}, nil
	default:
		return nil, errors.Newf(errors.ErrInvalidInput, "unknown format: %v", format)
	}
}
