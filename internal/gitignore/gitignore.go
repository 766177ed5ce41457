package gitignore

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

// Matcher holds compiled ignore patterns and answers, thread-safely,
// whether a project-relative path should be skipped.
type Matcher struct {
	rules []rule
	mu    sync.RWMutex
}

// rule is a single compiled pattern.
type rule struct {
	raw     string         // pattern as written
	re      *regexp.Regexp // compiled form
	negate  bool           // starts with !
	dirOnly bool           // ends with /
	rooted  bool           // anchored to the base directory
	base    string         // base directory for nested ignore files
}

// New creates an empty Matcher.
func New() *Matcher {
	return &Matcher{}
}

// Default creates a Matcher preloaded with the built-in ignore set.
// Project .gitignore patterns are layered on top by the caller.
func Default() *Matcher {
	m := New()
	for _, p := range DefaultPatterns() {
		m.AddPattern(p)
	}
	return m
}

// DefaultPatterns returns the patterns applied to every project before
// any .gitignore is read: VCS metadata, dependency trees, caches,
// virtualenvs and editor droppings.
func DefaultPatterns() []string {
	return []string{
		".git/",
		"node_modules/",
		"__pycache__/",
		"*.pyc",
		"*.pyo",
		"*.pyd",
		"*.so",
		"build/",
		"dist/",
		"*.egg-info/",
		".env",
		"venv/",
		".venv/",
		".mypy_cache/",
		".pytest_cache/",
		".idea/",
		".vscode/",
		"*.swp",
		"*.swo",
	}
}

// AddPattern adds a single gitignore pattern applying from the project root.
func (m *Matcher) AddPattern(pattern string) {
	m.AddPatternWithBase(pattern, "")
}

// AddPatternWithBase adds a pattern that only applies under base,
// which is how nested .gitignore files scope their rules.
func (m *Matcher) AddPatternWithBase(pattern, base string) {
	r, ok := parse(pattern, base)
	if !ok {
		return
	}

	m.mu.Lock()
	m.rules = append(m.rules, r)
	m.mu.Unlock()
}

// AddFromFile reads patterns from a gitignore-format file. base scopes
// the file's rules the way git scopes a nested .gitignore.
func (m *Matcher) AddFromFile(path, base string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open ignore file: %w", err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		m.AddPatternWithBase(scanner.Text(), base)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read ignore file: %w", err)
	}
	return nil
}

// parse compiles one pattern line. Returns ok=false for blank lines
// and comments.
func parse(pattern, base string) (rule, bool) {
	// A trailing "\ " keeps its space through trimming.
	escapedTrailingSpace := strings.HasSuffix(pattern, `\ `)
	pattern = strings.TrimSpace(pattern)

	if pattern == "" || (strings.HasPrefix(pattern, "#") && !strings.HasPrefix(pattern, `\#`)) {
		return rule{}, false
	}

	r := rule{raw: pattern, base: base}

	switch {
	case strings.HasPrefix(pattern, `\#`), strings.HasPrefix(pattern, `\!`):
		pattern = strings.TrimPrefix(pattern, `\`)
		r.raw = pattern
	case strings.HasPrefix(pattern, "!"):
		r.negate = true
		pattern = strings.TrimPrefix(pattern, "!")
	}

	if escapedTrailingSpace && strings.HasSuffix(pattern, `\`) {
		pattern = strings.TrimSuffix(pattern, `\`) + " "
	}

	if strings.HasSuffix(pattern, "/") {
		r.dirOnly = true
		pattern = strings.TrimSuffix(pattern, "/")
	}

	if strings.HasPrefix(pattern, "/") {
		r.rooted = true
		pattern = strings.TrimPrefix(pattern, "/")
	}

	// A separator anywhere else also anchors the pattern:
	// "doc/frotz" means "/doc/frotz", not "**/doc/frotz".
	if strings.Contains(pattern, "/") && !strings.HasPrefix(pattern, "**/") && !strings.HasPrefix(pattern, "*") {
		r.rooted = true
	}

	r.re = regexp.MustCompile("^" + toRegex(pattern) + "$")
	return r, true
}

// Match reports whether path should be ignored. Path is relative to the
// project root with either separator. Later rules win, so a negation
// after a match un-ignores the path.
func (m *Matcher) Match(path string, isDir bool) bool {
	path = filepath.ToSlash(path)

	m.mu.RLock()
	defer m.mu.RUnlock()

	ignored := false
	for _, r := range m.rules {
		if r.matches(path, isDir) {
			ignored = !r.negate
		}
	}
	return ignored
}

// matches checks one rule against a path. Directory-only patterns also
// match everything inside the directory.
func (r rule) matches(path string, isDir bool) bool {
	if r.base != "" {
		if path == r.base {
			path = filepath.Base(path)
		} else if strings.HasPrefix(path, r.base+"/") {
			path = strings.TrimPrefix(path, r.base+"/")
		} else {
			return false
		}
	}

	parts := strings.Split(path, "/")

	if r.rooted {
		if r.re.MatchString(path) {
			if r.dirOnly {
				return isDir
			}
			return true
		}
		if r.dirOnly {
			// A rooted dir pattern still covers files beneath it.
			for i := range parts[:len(parts)-1] {
				if r.re.MatchString(strings.Join(parts[:i+1], "/")) {
					return true
				}
			}
		}
		return false
	}

	if r.dirOnly {
		for i, part := range parts {
			if r.re.MatchString(part) {
				if i == len(parts)-1 {
					return isDir
				}
				return true
			}
		}
		return false
	}

	// Unanchored file pattern: try the basename, the full path (for **
	// patterns), then each component.
	if r.re.MatchString(parts[len(parts)-1]) {
		return true
	}
	if r.re.MatchString(path) {
		return true
	}
	for _, part := range parts {
		if r.re.MatchString(part) {
			return true
		}
	}
	return false
}

// toRegex converts a gitignore glob to a regular expression body.
// * never crosses a separator, ? matches one non-separator character,
// ** spans directories.
func toRegex(pattern string) string {
	var b strings.Builder

	i := 0
	for i < len(pattern) {
		c := pattern[i]

		switch c {
		case '*':
			if i+1 < len(pattern) && pattern[i+1] == '*' {
				if i+2 < len(pattern) && pattern[i+2] == '/' {
					// "**/" spans zero or more directories
					b.WriteString("(?:.*/)?")
					i += 3
					continue
				}
				if i == 0 || pattern[i-1] == '/' {
					// trailing or mid-path "**"
					b.WriteString(".*")
					i += 2
					continue
				}
			}
			b.WriteString("[^/]*")
			i++

		case '?':
			b.WriteString("[^/]")
			i++

		case '[':
			j := i + 1
			for j < len(pattern) && pattern[j] != ']' {
				j++
			}
			if j < len(pattern) {
				b.WriteString(pattern[i : j+1])
				i = j + 1
			} else {
				b.WriteString(regexp.QuoteMeta(string(c)))
				i++
			}

		case '\\':
			if i+1 < len(pattern) {
				b.WriteString(regexp.QuoteMeta(string(pattern[i+1])))
				i += 2
			} else {
				b.WriteString(regexp.QuoteMeta(string(c)))
				i++
			}

		case '.', '+', '^', '$', '(', ')', '{', '}', '|':
			b.WriteString(regexp.QuoteMeta(string(c)))
			i++

		default:
			b.WriteByte(c)
			i++
		}
	}

	return b.String()
}
