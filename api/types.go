package api

import (
	"strings"
	"time"
)

// RemoteFile is one entry of a project's file manifest, an immutable
// snapshot identified by path within the project. Fetched fresh at the
// start of every sync pass.
type RemoteFile struct {
	ProjectID int64     `json:"project_id"`
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	Created   time.Time `json:"created"`
	Modified  time.Time `json:"modified"`
}

// Project is a remote project as returned by the listing endpoint.
type Project struct {
	ID       int64     `json:"id"`
	Name     string    `json:"name"`
	Created  time.Time `json:"created"`
	Modified time.Time `json:"modified"`
}

// ProjectDetails extends Project with the document paths and the file
// manifest embedded in the single-project endpoint.
type ProjectDetails struct {
	Project
	PathToMarkdown string       `json:"path_to_markdown"`
	PathToDocx     string       `json:"path_to_docx"`
	Files          []RemoteFile `json:"files"`
}

// Requirement describes one auxiliary file the primary document needs
// for rendering. The reconciler only consumes the path keys of the
// requirements map; the value is informational.
type Requirement struct {
	Kind     string `json:"kind,omitempty"`
	Optional bool   `json:"optional,omitempty"`
}

// TokenInfo is the owner record behind an API key.
type TokenInfo struct {
	Owner    string     `json:"owner"`
	Created  time.Time  `json:"created"`
	Modified time.Time  `json:"modified"`
	Expires  *time.Time `json:"expires,omitempty"`
}

// Message is the generic acknowledgement body used by mutation
// endpoints.
type Message struct {
	Message string `json:"message"`
}

// IsOK reports whether the server acknowledged the operation.
func (m Message) IsOK() bool {
	return strings.EqualFold(m.Message, "ok")
}

// BuildResult is the outcome of a render request.
type BuildResult struct {
	Success  bool     `json:"success"`
	Warnings []string `json:"warnings,omitempty"`
	Errors   []string `json:"errors,omitempty"`
}
