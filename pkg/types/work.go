package types

// PhaseFile is one fully resolved file to reconcile
type PhaseFile struct {
	Module    string
	Source    string
	Target    string
	Content   string
	Operation Operation
	Phase     Phase
	Template  bool
	Owner     string
	Group     string
	// Permissions is an octal mode string such as "0644"
	Permissions string
	// Vars are the template variables of the owning module
	Vars map[string]interface{}
}

// Task is a cached, content-identified command attached to a module
type Task struct {
	Module      string   `json:"module"`
	ModuleDir   string   `json:"module_dir"`
	Description string   `json:"description,omitempty"`
	Shell       string   `json:"shell,omitempty"`
	Exec        string   `json:"exec,omitempty"`
	Args        []string `json:"args,omitempty"`
	ExpandArgs  bool     `json:"expand_args,omitempty"`
	Sudo        bool     `json:"sudo,omitempty"`
	Phase       Phase    `json:"phase"`
	Hook        Hook     `json:"hook"`
}

// Package is a package requested by a module
type Package struct {
	Module string
	Name   string
}

// Generator assembles one target file from snippets found in modules
type Generator struct {
	Module  string
	Target  string
	Source  string
	Prepend string
	Append  string
}

// Message is text shown to the user for a command
type Message struct {
	Module  string  `json:"module" yaml:"module"`
	Command Command `json:"command" yaml:"command"`
	Text    string  `json:"text" yaml:"text"`
}
