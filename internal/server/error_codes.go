package server

const (
	// Validation (1xxx)
	ErrCodeInvalidArgument  = 1000
	ErrCodeInvalidJSON      = 1001
	ErrCodeRequestTooLarge  = 1002
	ErrCodeInvalidQuery     = 1003
	ErrCodeInvalidID        = 1004
	ErrCodeInvalidStatus    = 1005
	ErrCodeInvalidCategory  = 1006
	ErrCodeInvalidContact   = 1007
	ErrCodeInvalidImage     = 1008
	ErrCodeMissingRequired  = 1009
	ErrCodeValidationFailed = 1010
	ErrCodeInvalidMultipart = 1011

	// Domain state (2xxx)
	ErrCodeReportNotFound    = 2001
	ErrCodeBlobNotFound      = 2002
	ErrCodeInvalidTransition = 2101
	ErrCodeConflict          = 2102

	// Auth & limits (3xxx)
	ErrCodeUnauthorized      = 3001
	ErrCodeForbidden         = 3002
	ErrCodeResourceExhausted = 3003

	// Internal/system (4xxx)
	ErrCodeInternal        = 4001
	ErrCodeStoreFailure    = 4002
	ErrCodeBlobKeyConflict = 4003
	ErrCodeNotImplemented  = 4005
)

func defaultErrorCodeByStatus(status int) int {
	switch status {
	case 400:
		return ErrCodeInvalidArgument
	case 401:
		return ErrCodeUnauthorized
	case 403:
		return ErrCodeForbidden
	case 404:
		return ErrCodeReportNotFound
	case 409:
		return ErrCodeConflict
	case 422:
		return ErrCodeValidationFailed
	case 429:
		return ErrCodeResourceExhausted
	case 500:
		return ErrCodeInternal
	case 501:
		return ErrCodeNotImplemented
	default:
		return 0
	}
}
