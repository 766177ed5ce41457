// Package gitignore decides which files a project walk should skip.
//
// It implements the gitignore pattern syntax documented at
// https://git-scm.com/docs/gitignore: wildcards (*, ?, **), rooted
// patterns (/build), negations (!keep.log) and directory-only patterns
// (build/). Nested ignore files scope their rules with a base path.
//
// Every project starts from a built-in ignore set covering VCS
// metadata, dependency trees and caches; the project's own .gitignore
// is layered on top:
//
//	m := gitignore.Default()
//	_ = m.AddFromFile(filepath.Join(root, ".gitignore"), "")
//
//	if m.Match("node_modules/left-pad/index.js", false) {
//	    // skipped
//	}
package gitignore
