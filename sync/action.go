// Package sync implements the reconciliation engine that keeps a
// local project root and its cloud project in agreement. A pass
// validates the project, settles the primary document first, then
// plans one Action per required path and executes the plan through a
// bounded worker pool.
package sync

import "fmt"

// Kind discriminates the planned actions. The set is closed; the
// executor switches over it exhaustively.
type Kind int

const (
	// KindNoOp means both sides already agree.
	KindNoOp Kind = iota
	// KindUpload sends the local file to the cloud.
	KindUpload
	// KindDownload fetches the cloud file into the local root.
	KindDownload
	// KindMovedLocally renames the cloud file to follow a local move.
	KindMovedLocally
)

func (k Kind) String() string {
	switch k {
	case KindNoOp:
		return "noop"
	case KindUpload:
		return "upload"
	case KindDownload:
		return "download"
	case KindMovedLocally:
		return "move"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Action is one planned step against a project file. Path is the
// project-relative slash path the cloud knows. Exactly one Action is
// produced per reconciled path, and it carries everything needed to
// execute it, so a retry needs no replanning.
type Action struct {
	Kind Kind
	Path string

	// NewPath is where the file lives locally now. Set only for
	// KindMovedLocally.
	NewPath string

	// Overwrite permits replacing the cloud copy on upload.
	Overwrite bool

	// OverwriteOK permits replacing the local copy on download.
	OverwriteOK bool
}

func (a Action) String() string {
	switch a.Kind {
	case KindUpload:
		if a.Overwrite {
			return "upload (overwrite) " + a.Path
		}
		return "upload " + a.Path
	case KindDownload:
		if a.OverwriteOK {
			return "download (overwrite) " + a.Path
		}
		return "download " + a.Path
	case KindMovedLocally:
		return fmt.Sprintf("move %s -> %s", a.Path, a.NewPath)
	default:
		return "noop " + a.Path
	}
}
