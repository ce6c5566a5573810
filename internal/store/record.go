package store

import "time"

// CodebaseType identifies how an instance's codebase was obtained.
type CodebaseType string

const (
	// CodebaseLocal is a directory on the host, transferred as-is.
	CodebaseLocal CodebaseType = "local"
	// CodebaseGit is a remote repository cloned at provision time.
	CodebaseGit CodebaseType = "git"
	// CodebaseDemo is the built-in generated sample tree.
	CodebaseDemo CodebaseType = "demo"
)

// RecordFileName is the name of the record file within an instance directory.
const RecordFileName = "record.json"

// Record is the persisted description of one instance. It is written once
// when provisioning succeeds and read by every other command; the live VM
// state is never stored here.
type Record struct {
	Name          string       `json:"name"`
	VMName        string       `json:"vm_name"`
	CodebaseType  CodebaseType `json:"codebase_type"`
	CodebasePath  string       `json:"codebase_path"`
	Port          int          `json:"port"`
	Memory        string       `json:"memory"`
	Disk          string       `json:"disk"`
	CPUs          int          `json:"cpus"`
	UbuntuVersion string       `json:"ubuntu_version"`
	Created       time.Time    `json:"created"`
	GitDepth      int          `json:"git_depth,omitempty"`
	GitBranch     string       `json:"git_branch,omitempty"`
}
