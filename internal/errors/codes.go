// Package errors provides structured error handling for synapstor.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors (fatal, detected before any write)
//   - 2XX: File errors (recorded per file, never abort a run)
//   - 3XX: Transport errors (vector store / embedding service unreachable)
//   - 4XX: Embedding errors (per-item failures from a provider)
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryFile indicates per-file read/decode/filter errors.
	CategoryFile Category = "FILE"
	// CategoryTransport indicates network errors against external services.
	CategoryTransport Category = "TRANSPORT"
	// CategoryEmbedding indicates embedding provider failures.
	CategoryEmbedding Category = "EMBEDDING"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but the run can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Configuration errors (100-199)
	ErrCodeConfigInvalid     = "ERR_101_CONFIG_INVALID"
	ErrCodeChunkSpecInvalid  = "ERR_102_CHUNK_SPEC_INVALID"
	ErrCodeDimensionMismatch = "ERR_103_DIMENSION_MISMATCH"
	ErrCodeMissingParameter  = "ERR_104_MISSING_PARAMETER"

	// File errors (200-299)
	ErrCodeFileUnreadable = "ERR_201_FILE_UNREADABLE"
	ErrCodeFileTooLarge   = "ERR_202_FILE_TOO_LARGE"
	ErrCodeFileBinary     = "ERR_203_FILE_BINARY"
	ErrCodeFileIgnored    = "ERR_204_FILE_IGNORED"
	ErrCodeRunLockHeld    = "ERR_205_RUN_LOCK_HELD"
	ErrCodeCatalogFailed  = "ERR_206_CATALOG_FAILED"

	// Transport errors (300-399)
	ErrCodeTransportTimeout     = "ERR_301_TRANSPORT_TIMEOUT"
	ErrCodeTransportUnavailable = "ERR_302_TRANSPORT_UNAVAILABLE"
	ErrCodeTransportProtocol    = "ERR_303_TRANSPORT_PROTOCOL"

	// Embedding errors (400-499)
	ErrCodeEmbeddingFailed        = "ERR_401_EMBEDDING_FAILED"
	ErrCodeEmbeddingEmpty         = "ERR_402_EMBEDDING_EMPTY"
	ErrCodeEmbeddingCountMismatch = "ERR_403_EMBEDDING_COUNT_MISMATCH"
	ErrCodeModelNotFound          = "ERR_404_MODEL_NOT_FOUND"

	// Internal errors (500-599)
	ErrCodeInternal     = "ERR_501_INTERNAL"
	ErrCodeSearchFailed = "ERR_502_SEARCH_FAILED"
	ErrCodeIndexFailed  = "ERR_503_INDEX_FAILED"
	ErrCodeStoreClosed  = "ERR_504_STORE_CLOSED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Numeric portion, e.g. "101" from "ERR_101_CONFIG_INVALID".
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryFile
	case '3':
		return CategoryTransport
	case '4':
		return CategoryEmbedding
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
// Configuration errors abort before any write, so they are fatal.
func severityFromCode(code string) Severity {
	if categoryFromCode(code) == CategoryConfig {
		return SeverityFatal
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a transient failure.
// Only connection-level transport failures qualify; protocol errors and
// everything else surface immediately.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeTransportTimeout, ErrCodeTransportUnavailable:
		return true
	default:
		return false
	}
}
