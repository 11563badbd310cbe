package render

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"reflect"
	"strings"
	"text/template"
	"time"

	"github.com/arthur-debert/dotdeploy/pkg/elevate"
	"github.com/arthur-debert/dotdeploy/pkg/errors"
	"github.com/arthur-debert/dotdeploy/pkg/logging"
)

// Well-known context keys
const (
	KeyModules       = "DOD_MODULES"
	KeyHostname      = "DOD_HOSTNAME"
	KeyUser          = "DOD_USER"
	KeyHome          = "DOD_HOME"
	KeyRoot          = "DOD_ROOT"
	KeyModulesRoot   = "DOD_MODULES_ROOT"
	KeyHostsRoot     = "DOD_HOSTS_ROOT"
	KeyCurrentModule = "DOD_CURRENT_MODULE"
)

// helperTimeout bounds command_success and command_output
const helperTimeout = 30 * time.Second

// Context holds template variables
type Context map[string]interface{}

// With returns a copy of c extended with vars
func (c Context) With(vars map[string]string) Context {
	out := make(Context, len(c)+len(vars))
	for k, v := range c {
		out[k] = v
	}
	for k, v := range vars {
		out[k] = v
	}
	return out
}

// Strings returns the string-valued entries of c
func (c Context) Strings() map[string]string {
	out := make(map[string]string, len(c))
	for k, v := range c {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

// Renderer expands template text against a context
type Renderer interface {
	Render(text string, ctx Context) (string, error)
}

// TemplateRenderer renders with text/template and the dotdeploy helpers
type TemplateRenderer struct {
	funcs template.FuncMap
}

// New returns a TemplateRenderer
func New() *TemplateRenderer {
	return &TemplateRenderer{funcs: Funcs()}
}

// Render expands text against ctx
func (r *TemplateRenderer) Render(text string, ctx Context) (string, error) {
	tmpl, err := template.New("render").
		Option("missingkey=error").
		Funcs(r.funcs).
		Parse(text)
	if err != nil {
		return "", errors.Wrapf(err, errors.ErrTemplate, "failed to parse template").
			WithDetail("template", text)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, map[string]interface{}(ctx)); err != nil {
		return "", errors.Wrapf(err, errors.ErrTemplate, "failed to render template").
			WithDetail("template", text)
	}
	return buf.String(), nil
}

// EvalCondition renders cond as an if-expression and reports whether it
// produced "true"
func EvalCondition(r Renderer, cond string, ctx Context) (bool, error) {
	out, err := r.Render(fmt.Sprintf("{{if %s}}true{{else}}false{{end}}", cond), ctx)
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) == "true", nil
}

// Funcs returns the helper functions available to templates
func Funcs() template.FuncMap {
	return template.FuncMap{
		"contains":        contains,
		"is_executable":   isExecutable,
		"find_executable": findExecutable,
		"command_success": commandSuccess,
		"command_output":  commandOutput,
		"env":             os.Getenv,
	}
}

// contains reports whether needle is an element of a slice, a key of a
// map or a substring of a string
func contains(needle interface{}, haystack interface{}) bool {
	if haystack == nil {
		return false
	}
	if s, ok := haystack.(string); ok {
		return strings.Contains(s, fmt.Sprint(needle))
	}

	v := reflect.ValueOf(haystack)
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			if equal(v.Index(i).Interface(), needle) {
				return true
			}
		}
	case reflect.Map:
		for _, k := range v.MapKeys() {
			if equal(k.Interface(), needle) {
				return true
			}
		}
	}
	return false
}

func equal(a, b interface{}) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Mode().Perm()&0o111 != 0
}

func findExecutable(name string) string {
	path, err := exec.LookPath(name)
	if err != nil {
		return ""
	}
	return path
}

func runShell(command string) (*elevate.Result, error) {
	ctx, cancel := context.WithTimeout(context.Background(), helperTimeout)
	defer cancel()
	return elevate.Execute(ctx, elevate.Command{
		Name:  "sh",
		Args:  []string{"-c", command},
		Stdin: strings.NewReader(""),
	})
}

func commandSuccess(command string) bool {
	_, err := runShell(command)
	if err != nil {
		logger := logging.GetLogger("render")
		logger.Debug().Err(err).Str("command", command).Msg("command_success is false")
		return false
	}
	return true
}

func commandOutput(command string) string {
	res, err := runShell(command)
	if res == nil || err != nil {
		return ""
	}
	return strings.TrimRight(res.Stdout, "\n")
}
