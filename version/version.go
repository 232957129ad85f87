package version

var (
	// Version is the current mgost version.
	Version = "(untracked)"
	// CommitSHA is the commit this build was made from.
	CommitSHA = "(unknown)"
)
