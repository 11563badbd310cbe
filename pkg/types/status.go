package types

import "time"

// ModuleStatus summarizes a deployed module for display
type ModuleStatus struct {
	Name     string       `json:"name" yaml:"name"`
	Reason   Reason       `json:"reason" yaml:"reason"`
	Location string       `json:"location" yaml:"location"`
	User     string       `json:"user,omitempty" yaml:"user,omitempty"`
	Depends  []string     `json:"depends,omitempty" yaml:"depends,omitempty"`
	Date     time.Time    `json:"date" yaml:"date"`
	Files    []FileStatus `json:"files,omitempty" yaml:"files,omitempty"`
	Packages []string     `json:"packages,omitempty" yaml:"packages,omitempty"`
}

// FileStatus describes one managed file
type FileStatus struct {
	Target    string `json:"target" yaml:"target"`
	Source    string `json:"source,omitempty" yaml:"source,omitempty"`
	Operation string `json:"operation" yaml:"operation"`
	Drifted   bool   `json:"drifted,omitempty" yaml:"drifted,omitempty"`
}

// Change is one pending action reported by a dry run
type Change struct {
	Module  string `json:"module" yaml:"module"`
	Kind    string `json:"kind" yaml:"kind"`
	Subject string `json:"subject" yaml:"subject"`
	Action  string `json:"action" yaml:"action"`
}
