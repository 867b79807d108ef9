package models

import "errors"

var (
	// Persistence errors
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrDuplicateKey       = errors.New("submission id already exists")
	ErrSubmissionNotFound = errors.New("submission not found")

	// Validation errors
	ErrValidation          = errors.New("validation failed")
	ErrUnknownQuestion     = errors.New("unknown question")
	ErrIncompleteQuiz      = errors.New("not every question has been answered")
	ErrPatientInfoRequired = errors.New("patient information is required")
	ErrAlreadySubmitted    = errors.New("quiz has already been submitted")
	ErrInvalidCatalog      = errors.New("invalid catalog")

	// Export errors
	ErrExportFailure = errors.New("export failed")
)

// IsStorageError returns true if the error comes from the persistence layer.
// Duplicate keys are reported the same way as an unavailable store.
func IsStorageError(err error) bool {
	return errors.Is(err, ErrStorageUnavailable) ||
		errors.Is(err, ErrDuplicateKey)
}

// IsValidationError returns true if the error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrUnknownQuestion) ||
		errors.Is(err, ErrIncompleteQuiz) ||
		errors.Is(err, ErrPatientInfoRequired) ||
		errors.Is(err, ErrAlreadySubmitted)
}

// IsExportError returns true if a report could not be produced.
func IsExportError(err error) bool {
	return errors.Is(err, ErrExportFailure)
}
