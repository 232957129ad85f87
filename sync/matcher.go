package sync

import (
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/mgost/mgost/fileutils"
	"github.com/mgost/mgost/logging"
)

// variableSuffixes are extensions the build service itself produces
// or rewrites. A bare name match on them additionally requires the
// extension to agree; anything else matches on name alone.
var variableSuffixes = map[string]struct{}{
	"md":   {},
	"docx": {},
	"xlsx": {},
}

// Hints narrow a search when more than the name is known. BirthTime
// and Size usually come from the cloud record of the file being
// looked for.
type Hints struct {
	Filename  string
	BirthTime *time.Time
	Size      *int64
}

// Search walks the tree under root and returns the project-relative
// slash path of the first file matching the hints. Hidden directories
// are never descended into, so the tool's own state directory cannot
// satisfy a match. Used to recover files that moved locally while the
// cloud still lists their old path.
func Search(root string, h Hints) (string, bool) {
	log := logging.Sub("matcher")

	wantName := norm.NFC.String(h.Filename)
	var found string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			// Unreadable subtree; keep looking elsewhere.
			return nil
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !matchEntry(path, d, h, wantName) {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		found = norm.NFC.String(filepath.ToSlash(rel))
		return fs.SkipAll
	})
	if err != nil || found == "" {
		return "", false
	}
	log.Debug("search hit", "filename", h.Filename, "found", found)
	return found, true
}

// matchEntry applies the match rules in order: name, then birth time,
// then size. First rule that fires decides.
func matchEntry(path string, d fs.DirEntry, h Hints, wantName string) bool {
	if wantName != "" && norm.NFC.String(d.Name()) == wantName {
		ext := strings.TrimPrefix(filepath.Ext(d.Name()), ".")
		if _, variable := variableSuffixes[strings.ToLower(ext)]; !variable {
			return true
		}
		return strings.EqualFold(filepath.Ext(d.Name()), filepath.Ext(wantName))
	}

	if h.BirthTime == nil && h.Size == nil {
		return false
	}
	fi, err := d.Info()
	if err != nil {
		return false
	}
	if h.BirthTime != nil && fileutils.BirthTime(path, fi).Equal(*h.BirthTime) {
		return true
	}
	if h.Size != nil && fi.Size() == *h.Size {
		return true
	}
	return false
}
