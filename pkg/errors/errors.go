package errors

import (
	"errors"
	"fmt"
)

// Common application errors
var (
	// Validation errors
	ErrInvalidInputShape = errors.New("invalid input shape")
	ErrInvalidParameters = errors.New("invalid parameters")
	ErrInvalidDataset    = errors.New("invalid dataset")
	ErrInvalidModelSpec  = errors.New("invalid model specification")
	ErrInvalidFormat     = errors.New("invalid snapshot format")
	ErrEmptyNetwork      = errors.New("network has no layers")
	ErrDimensionMismatch = errors.New("dimension mismatch")
	ErrInvalidOptimizer  = errors.New("invalid optimizer configuration")

	// Training errors
	ErrTrainingFailed    = errors.New("model training failed")
	ErrNonFiniteLoss     = errors.New("objective is not finite")
	ErrTrainingCancelled = errors.New("training cancelled")

	// Generation errors
	ErrGeneratorNotFound = errors.New("generator not found")
	ErrGenerationFailed  = errors.New("dataset generation failed")

	// Serialization errors
	ErrSnapshotCorrupt    = errors.New("model snapshot is corrupt")
	ErrUnknownLayerType   = errors.New("unknown layer type in snapshot")
	ErrUnsupportedVersion = errors.New("unsupported snapshot version")

	// Storage errors
	ErrStorageNotConnected = errors.New("storage backend not connected")
	ErrArtifactNotFound    = errors.New("artifact not found")
	ErrStorageTimeout      = errors.New("storage operation timeout")

	// Registry errors
	ErrModelNotFound   = errors.New("model not found")
	ErrVersionNotFound = errors.New("model version not found")

	// Job errors
	ErrJobNotFound  = errors.New("job not found")
	ErrQueueFull    = errors.New("job queue is full")
	ErrJobCancelled = errors.New("job cancelled")

	// Internal errors
	ErrInternal       = errors.New("internal error")
	ErrNotImplemented = errors.New("not implemented")
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation    ErrorType = "validation"
	ErrorTypeTraining      ErrorType = "training"
	ErrorTypeGeneration    ErrorType = "generation"
	ErrorTypeSerialization ErrorType = "serialization"
	ErrorTypeStorage       ErrorType = "storage"
	ErrorTypeNetwork       ErrorType = "network"
	ErrorTypeJob           ErrorType = "job"
	ErrorTypeInternal      ErrorType = "internal"
)

// AppError represents an application-specific error with additional context
type AppError struct {
	Type       ErrorType              `json:"type"`
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Details    string                 `json:"details,omitempty"`
	Cause      error                  `json:"-"`
	Context    map[string]interface{} `json:"context,omitempty"`
	Retryable  bool                   `json:"retryable"`
	HTTPStatus int                    `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s - %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Code == t.Code
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// NewAppError creates a new application error
func NewAppError(errType ErrorType, code, message string) *AppError {
	return &AppError{
		Type:       errType,
		Code:       code,
		Message:    message,
		Retryable:  false,
		HTTPStatus: getDefaultHTTPStatus(errType),
	}
}

// WrapError wraps an existing error with application context
func WrapError(err error, errType ErrorType, code, message string) *AppError {
	return &AppError{
		Type:       errType,
		Code:       code,
		Message:    message,
		Cause:      err,
		Retryable:  isRetryable(err),
		HTTPStatus: getDefaultHTTPStatus(errType),
	}
}

// NewValidationError creates a validation error
func NewValidationError(code, message string) *AppError {
	return NewAppError(ErrorTypeValidation, code, message)
}

// NewTrainingError creates a training error
func NewTrainingError(code, message string) *AppError {
	return NewAppError(ErrorTypeTraining, code, message)
}

// NewGenerationError creates a generation error
func NewGenerationError(code, message string) *AppError {
	return NewAppError(ErrorTypeGeneration, code, message)
}

// NewSerializationError creates a serialization error
func NewSerializationError(code, message string) *AppError {
	return NewAppError(ErrorTypeSerialization, code, message)
}

// NewStorageError creates a storage error
func NewStorageError(code, message string) *AppError {
	return NewAppError(ErrorTypeStorage, code, message)
}

// NewNetworkError creates a network error
func NewNetworkError(code, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeNetwork,
		Code:       code,
		Message:    message,
		Retryable:  true,
		HTTPStatus: 503,
	}
}

// NewJobError creates a job error
func NewJobError(code, message string) *AppError {
	return NewAppError(ErrorTypeJob, code, message)
}

// NewInternalError creates an internal error
func NewInternalError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       CodeInternalError,
		Message:    message,
		Retryable:  false,
		HTTPStatus: 500,
	}
}

// getDefaultHTTPStatus returns the default HTTP status for an error type
func getDefaultHTTPStatus(errType ErrorType) int {
	switch errType {
	case ErrorTypeValidation:
		return 400
	case ErrorTypeStorage, ErrorTypeJob:
		return 404
	case ErrorTypeTraining, ErrorTypeGeneration, ErrorTypeSerialization, ErrorTypeInternal:
		return 500
	case ErrorTypeNetwork:
		return 503
	default:
		return 500
	}
}

// isRetryable determines if an error is retryable
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	switch {
	case errors.Is(err, ErrStorageTimeout):
		return true
	case errors.Is(err, ErrStorageNotConnected):
		return true
	case errors.Is(err, ErrQueueFull):
		return true
	default:
		return false
	}
}

// AsAppError returns the AppError in err's chain, if any.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether err carries the given application error code.
func HasCode(err error, code string) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}

// ErrorResponse represents an error response for APIs
type ErrorResponse struct {
	Error     *AppError `json:"error"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp string    `json:"timestamp"`
	Path      string    `json:"path,omitempty"`
}

// Error codes for different error scenarios
const (
	// Validation error codes
	CodeInvalidInput      = "INVALID_INPUT"
	CodeInvalidInputShape = "INVALID_INPUT_SHAPE"
	CodeMissingField      = "MISSING_FIELD"
	CodeOutOfRange        = "OUT_OF_RANGE"
	CodeInvalidLayer      = "INVALID_LAYER"
	CodeInvalidGenerator  = "INVALID_GENERATOR"
	CodeInvalidFormat     = "INVALID_FORMAT"

	// Training error codes
	CodeTrainingFailed   = "TRAINING_FAILED"
	CodeNonFiniteLoss    = "NON_FINITE_LOSS"
	CodeTrainingTimeout  = "TRAINING_TIMEOUT"
	CodeInsufficientData = "INSUFFICIENT_DATA"

	// Generation error codes
	CodeGenerationFailed  = "GENERATION_FAILED"
	CodeUnsupportedType   = "UNSUPPORTED_TYPE"
	CodeGeneratorNotFound = "GENERATOR_NOT_FOUND"

	// Serialization error codes
	CodeSnapshotCorrupt  = "SNAPSHOT_CORRUPT"
	CodeUnknownLayerType = "UNKNOWN_LAYER_TYPE"
	CodeEncodeFailed     = "ENCODE_FAILED"
	CodeDecodeFailed     = "DECODE_FAILED"

	// Storage error codes
	CodeStorageError     = "STORAGE_ERROR"
	CodeConnectionFailed = "CONNECTION_FAILED"
	CodeArtifactNotFound = "ARTIFACT_NOT_FOUND"
	CodeWriteFailed      = "WRITE_FAILED"
	CodeReadFailed       = "READ_FAILED"

	// Registry error codes
	CodeModelNotFound   = "MODEL_NOT_FOUND"
	CodeVersionNotFound = "VERSION_NOT_FOUND"

	// Job error codes
	CodeJobNotFound  = "JOB_NOT_FOUND"
	CodeJobFailed    = "JOB_FAILED"
	CodeJobCancelled = "JOB_CANCELLED"
	CodeQueueFull    = "QUEUE_FULL"

	// Internal error codes
	CodeInternalError  = "INTERNAL_ERROR"
	CodeNotImplemented = "NOT_IMPLEMENTED"
)
