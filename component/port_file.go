package component

import "fmt"

// FilePort declares a filesystem source or sink, such as the cart event
// capture an input reads or the JSONL file a summary output appends to.
type FilePort struct {
	Path    string `json:"path"`
	Pattern string `json:"pattern,omitempty"`
}

// ResourceID identifies the port by path for registry resource tracking.
func (f FilePort) ResourceID() string {
	return fmt.Sprintf("file:%s", f.Path)
}

// IsExclusive returns false; several components may read the same
// capture file concurrently.
func (f FilePort) IsExclusive() bool {
	return false
}

// Type returns the port type identifier.
func (f FilePort) Type() string {
	return "file"
}
