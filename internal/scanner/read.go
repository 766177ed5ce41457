package scanner

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	synerrors "github.com/casheiro/synapstor-go/internal/errors"
)

const (
	// probeSize is how much of the head of a file the binary check reads.
	probeSize = 4096

	// MaxContentChars caps content before chunking. Oversized files are
	// truncated, not rejected.
	MaxContentChars = 100000

	// controlRatio is the non-printable byte share above which content
	// counts as binary.
	controlRatio = 0.3
)

// ReadText reads a file as text. Known binary extensions are rejected
// without opening the file and binary content is rejected after a probe,
// both with a per-file error; legacy encodings are converted to UTF-8;
// content is truncated to MaxContentChars characters.
func ReadText(path string) (string, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if binaryExtensions[ext] {
		return "", synerrors.New(synerrors.ErrCodeFileBinary,
			fmt.Sprintf("binary extension .%s in %s", ext, path), nil)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", synerrors.New(synerrors.ErrCodeFileUnreadable,
			fmt.Sprintf("failed to read %s", path), err)
	}
	if len(data) == 0 {
		return "", nil
	}
	if isBinaryContent(data) {
		return "", synerrors.New(synerrors.ErrCodeFileBinary,
			fmt.Sprintf("binary content in %s", path), nil)
	}
	return truncateChars(decodeText(data), MaxContentChars), nil
}

// isBinaryContent probes the head of the content for null bytes, then
// applies a control-character density check. Valid UTF-8 skips the
// density check so multibyte text is never misread as binary.
func isBinaryContent(data []byte) bool {
	probe := data
	if len(probe) > probeSize {
		probe = probe[:probeSize]
	}

	if bytes.IndexByte(probe, 0) >= 0 {
		return true
	}

	if utf8.Valid(data) {
		return false
	}

	if len(probe) > 50 {
		nonText := 0
		for _, b := range probe {
			if b < 9 || (b > 126 && b != 10 && b != 13) {
				nonText++
			}
		}
		if float64(nonText)/float64(len(probe)) > controlRatio {
			return true
		}
	}

	return false
}

// decodeText converts raw bytes to a UTF-8 string. Valid UTF-8 passes
// through; otherwise Windows-1252 is tried, with Latin-1 as the
// byte-transparent last resort.
func decodeText(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}

	out, err := charmap.Windows1252.NewDecoder().Bytes(data)
	if err != nil {
		out, _ = charmap.ISO8859_1.NewDecoder().Bytes(data)
	}
	return string(out)
}

// truncateChars cuts s after maxChars characters without splitting a rune.
func truncateChars(s string, maxChars int) string {
	count := 0
	for i := range s {
		if count == maxChars {
			return s[:i]
		}
		count++
	}
	return s
}
