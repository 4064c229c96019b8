// Package remotepath normalizes paths for the remote SFTP peer and for the
// local filesystem.
//
// Remote paths are always forward-slash delimited regardless of the platform
// sftpgate runs on. Local paths follow the platform convention.
package remotepath

import (
	"path/filepath"
	"strings"
)

// Current is the canonical form of an empty remote path.
const Current = "./"

// Normalize converts p to canonical remote form: backslashes become forward
// slashes and runs of slashes collapse to one. An empty path yields "./".
func Normalize(p string) string {
	if p == "" {
		return Current
	}
	p = strings.ReplaceAll(p, `\`, "/")
	return collapseSlashes(p)
}

// Join joins remote path segments with "/". Empty and whitespace-only segments
// are dropped, a leading slash on the first surviving segment is preserved, and
// "./" is returned when nothing remains.
func Join(segments ...string) string {
	kept := make([]string, 0, len(segments))
	for _, s := range segments {
		if strings.TrimSpace(s) == "" {
			continue
		}
		kept = append(kept, strings.ReplaceAll(s, `\`, "/"))
	}
	if len(kept) == 0 {
		return Current
	}
	return collapseSlashes(strings.Join(kept, "/"))
}

// IsRoot reports whether p normalizes to "/", "./" or ".".
func IsRoot(p string) bool {
	switch Normalize(p) {
	case "/", "./", ".":
		return true
	}
	return false
}

// ResolveLocal returns the absolute local form of p. If the working directory
// cannot be determined, the cleaned path is returned unchanged.
func ResolveLocal(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return filepath.Clean(p)
	}
	return abs
}

// JoinLocal joins local path segments using the platform separator and
// resolves the result to an absolute path.
func JoinLocal(segments ...string) string {
	return ResolveLocal(filepath.Join(segments...))
}

func collapseSlashes(p string) string {
	if !strings.Contains(p, "//") {
		return p
	}
	var b strings.Builder
	b.Grow(len(p))
	prevSlash := false
	for i := 0; i < len(p); i++ {
		c := p[i]
		if c == '/' {
			if prevSlash {
				continue
			}
			prevSlash = true
		} else {
			prevSlash = false
		}
		b.WriteByte(c)
	}
	return b.String()
}
