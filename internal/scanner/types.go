// Package scanner discovers indexable text files in a project tree.
// It applies ignore rules, hides dotfiles, filters known binary
// extensions and oversized files, and reads file content with an
// encoding fallback chain.
package scanner

import (
	"time"
)

// FileInfo describes a discovered candidate file.
type FileInfo struct {
	Path      string    // Relative to the project root
	AbsPath   string    // Absolute path
	Size      int64     // Size in bytes
	ModTime   time.Time // Last modification time
	Extension string    // Lowercased, without the dot
}

// Result is streamed from the scan channel. Exactly one of File and
// Err is set; Err carries walk-level failures, not per-file skips.
type Result struct {
	File *FileInfo
	Err  error
}

// Options configures a scan.
type Options struct {
	// Root is the project directory to walk.
	Root string

	// MaxFileSize caps candidate files in bytes (0 uses the default).
	MaxFileSize int64

	// FollowSymlinks walks through symbolic links (default: skip them).
	FollowSymlinks bool
}

// DefaultMaxFileSize is the fallback per-file size cap (5MB).
const DefaultMaxFileSize = 5 * 1024 * 1024

// binaryExtensions are skipped without opening the file.
var binaryExtensions = map[string]bool{
	// Images
	"png": true, "jpg": true, "jpeg": true, "gif": true, "bmp": true,
	"tiff": true, "webp": true, "ico": true, "svg": true,
	// Audio/Video
	"mp3": true, "wav": true, "ogg": true, "mp4": true, "avi": true,
	"mov": true, "mkv": true, "flv": true, "webm": true,
	// Documents
	"pdf": true, "doc": true, "docx": true, "xls": true, "xlsx": true,
	"ppt": true, "pptx": true,
	// Archives
	"zip": true, "tar": true, "gz": true, "rar": true, "7z": true,
	"jar": true, "war": true,
	// Compiled artifacts
	"exe": true, "dll": true, "so": true, "class": true, "pyc": true,
	"pyo": true, "o": true, "a": true, "lib": true, "bin": true,
	// Data stores
	"dat": true, "db": true, "sqlite": true, "sqlite3": true,
}
