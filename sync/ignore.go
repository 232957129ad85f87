package sync

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// IgnoreFile is the name of the per-root ignore list.
const IgnoreFile = ".mgostignore"

// Ignore holds patterns from a .mgostignore file. Watch mode skips
// matching entries so editor swap files and build output do not
// trigger passes.
type Ignore struct {
	patterns []ignorePattern
}

type ignorePattern struct {
	pattern string
	dirOnly bool // trailing / in the source line
}

// LoadIgnore reads the ignore file under root. A missing or
// unreadable file means nothing is ignored.
func LoadIgnore(root string) *Ignore {
	ig := &Ignore{}

	f, err := os.Open(filepath.Join(root, IgnoreFile))
	if err != nil {
		return ig
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		p := ignorePattern{pattern: line}
		if strings.HasSuffix(line, "/") {
			p.pattern = strings.TrimSuffix(line, "/")
			p.dirOnly = true
		}
		ig.patterns = append(ig.patterns, p)
	}

	return ig
}

// Match reports whether the entry name matches any pattern. Patterns
// with a trailing slash only match directories.
func (ig *Ignore) Match(name string, isDir bool) bool {
	if ig == nil {
		return false
	}
	for _, p := range ig.patterns {
		if p.dirOnly && !isDir {
			continue
		}
		if matched, _ := filepath.Match(p.pattern, name); matched {
			return true
		}
	}
	return false
}
