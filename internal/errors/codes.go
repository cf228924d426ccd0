// Package errors provides structured error handling for rowsearch.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO errors (index, checkpoint, disk)
//   - 3XX: Datasource errors (connect, fetch, stream)
//   - 4XX: Validation errors (queries, row values)
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates index, checkpoint and disk I/O errors.
	CategoryIO Category = "IO"
	// CategoryNetwork indicates datasource errors.
	CategoryNetwork Category = "NETWORK"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
	// SeverityInfo indicates informational only.
	SeverityInfo Severity = "INFO"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// IO errors (200-299)
	ErrCodeFileNotFound  = "ERR_201_FILE_NOT_FOUND"
	ErrCodeCorruptIndex  = "ERR_204_CORRUPT_INDEX"
	ErrCodeIndexOpen     = "ERR_205_INDEX_OPEN"
	ErrCodeIndexLocked   = "ERR_206_INDEX_LOCKED"
	ErrCodeIndexCommit   = "ERR_207_INDEX_COMMIT"
	ErrCodeFieldNotFound = "ERR_208_FIELD_NOT_FOUND"
	ErrCodeCheckpoint    = "ERR_209_CHECKPOINT"

	// Datasource errors (300-399)
	ErrCodeSourceConnect = "ERR_301_SOURCE_CONNECT"
	ErrCodeSourceFetch   = "ERR_302_SOURCE_FETCH"
	ErrCodeSourceStream  = "ERR_303_SOURCE_STREAM"

	// Validation errors (400-499)
	ErrCodeInvalidInput = "ERR_401_INVALID_INPUT"
	ErrCodeInvalidQuery = "ERR_403_INVALID_QUERY"
	ErrCodeQueryCompile = "ERR_404_QUERY_COMPILE"
	ErrCodeQueryTooLong = "ERR_405_QUERY_TOO_LONG"
	ErrCodeInvalidValue = "ERR_406_INVALID_VALUE"
	ErrCodeRateLimited  = "ERR_407_RATE_LIMITED"

	// Internal errors (500-599)
	ErrCodeInternal     = "ERR_501_INTERNAL"
	ErrCodeSearchFailed = "ERR_503_SEARCH_FAILED"
	ErrCodeIndexFailed  = "ERR_505_INDEX_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Extract numeric portion (e.g., "101" from "ERR_101_CONFIG_NOT_FOUND")
	numStr := code[4:7]

	switch numStr[0] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryNetwork
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	// Fatal errors halt startup
	switch code {
	case ErrCodeConfigNotFound, ErrCodeConfigInvalid,
		ErrCodeIndexOpen, ErrCodeIndexLocked, ErrCodeCorruptIndex:
		return SeverityFatal
	}

	// Retryable datasource errors get warning severity
	if isRetryableCode(code) {
		return SeverityWarning
	}

	// Default to error severity
	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeSourceConnect:
		return true
	default:
		return false
	}
}
