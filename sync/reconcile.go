package sync

import (
	"context"
	"os"
	"path"
	"path/filepath"

	mgErrors "github.com/mgost/mgost/errors"
)

// Reconcile decides the one action that brings a project-relative
// path into agreement between the local root and the cloud. The
// decision is pure planning; nothing is transferred here. Local state
// is stat'd at call time rather than cached, so a decision is never
// made against a stale view of the disk.
func (r *Runner) Reconcile(ctx context.Context, projectID int64, relPath string) (Action, error) {
	remote, err := r.api.ProjectFiles(ctx, projectID)
	if err != nil {
		return Action{}, err
	}

	local := filepath.Join(r.root, filepath.FromSlash(relPath))
	fi, statErr := os.Lstat(local)
	localExists := statErr == nil && fi.Mode().IsRegular()
	rec, remoteExists := remote[relPath]

	switch {
	case localExists && !remoteExists:
		// 1. Local only: the cloud has never seen it.
		return Action{Kind: KindUpload, Path: relPath}, nil

	case !localExists && remoteExists:
		// 2. Cloud only: the file may have moved locally. Search by
		// name with the cloud record's birth time and size as hints.
		birth, size := rec.Created, rec.Size
		newPath, ok := Search(r.root, Hints{
			Filename:  path.Base(relPath),
			BirthTime: &birth,
			Size:      &size,
		})
		if ok {
			return Action{Kind: KindMovedLocally, Path: relPath, NewPath: newPath}, nil
		}
		return Action{Kind: KindDownload, Path: relPath}, nil

	case localExists && remoteExists:
		// 3. Both: newer side wins. Equality is exact on purpose; a
		// completed transfer leaves both timestamps identical.
		localMod := fi.ModTime()
		switch {
		case rec.Modified.After(localMod):
			return Action{Kind: KindDownload, Path: relPath, OverwriteOK: true}, nil
		case rec.Modified.Before(localMod):
			return Action{Kind: KindUpload, Path: relPath, Overwrite: true}, nil
		default:
			return Action{Kind: KindNoOp, Path: relPath}, nil
		}

	default:
		// 4. Neither: a bare name match is the last chance to locate
		// it. Without one the path is simply gone.
		if newPath, ok := Search(r.root, Hints{Filename: path.Base(relPath)}); ok {
			return Action{Kind: KindMovedLocally, Path: relPath, NewPath: newPath}, nil
		}
		return Action{}, mgErrors.FileNotFound{Path: relPath}
	}
}
