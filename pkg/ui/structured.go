package ui

import (
	"encoding/json"
	"io"

	"github.com/beevik/etree"
	"gopkg.in/yaml.v3"

	"github.com/arthur-debert/dotdeploy/pkg/types"
)

type encodeFunc func(w io.Writer, v interface{}) error

func encodeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func encodeYAML(w io.Writer, v interface{}) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// structuredRenderer emits machine readable documents
type structuredRenderer struct {
	w      io.Writer
	encode encodeFunc
}

// RenderStatus encodes the module list, never null
func (r *structuredRenderer) RenderStatus(modules []types.ModuleStatus) error {
	if modules == nil {
		modules = []types.ModuleStatus{}
	}
	return r.encode(r.w, map[string]interface{}{"modules": modules})
}

// RenderChanges encodes the pending actions
func (r *structuredRenderer) RenderChanges(changes []types.Change) error {
	if changes == nil {
		changes = []types.Change{}
	}
	return r.encode(r.w, map[string]interface{}{"changes": changes})
}

// RenderMessages encodes module messages
func (r *structuredRenderer) RenderMessages(messages []types.Message) error {
	if len(messages) == 0 {
		return nil
	}
	return r.encode(r.w, map[string]interface{}{"messages": messages})
}

// RenderError encodes the error and its code
func (r *structuredRenderer) RenderError(err error) error {
	return r.encode(r.w, errorDocument(err))
}

// xmlRenderer builds XML documents with etree
type xmlRenderer struct {
	w io.Writer
}

func (r *xmlRenderer) write(doc *etree.Document) error {
	doc.Indent(2)
	_, err := doc.WriteTo(r.w)
	return err
}

func newDocument(root string) (*etree.Document, *etree.Element) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	return doc, doc.CreateElement(root)
}

// RenderStatus writes one module element per deployed module
func (r *xmlRenderer) RenderStatus(modules []types.ModuleStatus) error {
	doc, root := newDocument("modules")
	for _, m := range modules {
		el := root.CreateElement("module")
		el.CreateAttr("name", m.Name)
		el.CreateAttr("reason", string(m.Reason))
		el.CreateAttr("location", m.Location)
		if m.User != "" {
			el.CreateAttr("user", m.User)
		}
		el.CreateAttr("date", m.Date.UTC().Format("2006-01-02T15:04:05Z"))
		for _, dep := range m.Depends {
			el.CreateElement("depends").SetText(dep)
		}
		for _, f := range m.Files {
			fe := el.CreateElement("file")
			fe.CreateAttr("operation", f.Operation)
			fe.CreateAttr("target", f.Target)
			if f.Source != "" {
				fe.CreateAttr("source", f.Source)
			}
			if f.Drifted {
				fe.CreateAttr("drifted", "true")
			}
		}
		for _, p := range m.Packages {
			el.CreateElement("package").SetText(p)
		}
	}
	return r.write(doc)
}

// RenderChanges writes one change element per pending action
func (r *xmlRenderer) RenderChanges(changes []types.Change) error {
	doc, root := newDocument("changes")
	for _, c := range changes {
		el := root.CreateElement("change")
		el.CreateAttr("module", c.Module)
		el.CreateAttr("kind", c.Kind)
		el.CreateAttr("action", c.Action)
		el.SetText(c.Subject)
	}
	return r.write(doc)
}

// RenderMessages writes module messages
func (r *xmlRenderer) RenderMessages(messages []types.Message) error {
	if len(messages) == 0 {
		return nil
	}
	doc, root := newDocument("messages")
	for _, msg := range messages {
		el := root.CreateElement("message")
		el.CreateAttr("module", msg.Module)
		el.CreateAttr("command", string(msg.Command))
		el.SetText(msg.Text)
	}
	return r.write(doc)
}

// RenderError writes an error element
func (r *xmlRenderer) RenderError(err error) error {
	doc, root := newDocument("error")
	ed := errorDocument(err)
	root.CreateAttr("code", ed["code"])
	root.SetText(ed["message"])
	return r.write(doc)
}
