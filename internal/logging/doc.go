// Package logging sets up the process logger: structured JSON records
// through log/slog, written to a size-rotated file under
// ~/.synapstor/logs/ or straight to stderr. The CLI picks the
// destination per run; library code only ever talks to slog.
package logging
