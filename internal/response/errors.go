package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired    ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid     ErrCode = "TOKEN_INVALID"
	ErrTokenExpired     ErrCode = "TOKEN_EXPIRED"
	ErrSessionSignedOut ErrCode = "SESSION_SIGNED_OUT"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden     ErrCode = "FORBIDDEN"
	ErrNotQuizAuthor ErrCode = "NOT_QUIZ_AUTHOR"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"
	ErrConflict ErrCode = "CONFLICT"

	// ─── Quiz-specific ─────────────────────────────────────────────────
	ErrNoQuestions      ErrCode = "NO_QUESTIONS"
	ErrNoAnswerKey      ErrCode = "NO_ANSWER_KEY"
	ErrInvalidAnswerKey ErrCode = "INVALID_ANSWER_KEY"
	ErrInvalidQuestions ErrCode = "INVALID_QUESTIONS"
	ErrQuizNotReady     ErrCode = "QUIZ_NOT_READY"
	ErrAttemptNotActive ErrCode = "ATTEMPT_NOT_ACTIVE"
	ErrAttemptSubmitted ErrCode = "ATTEMPT_ALREADY_SUBMITTED"
	ErrPayloadTooLarge  ErrCode = "PAYLOAD_TOO_LARGE"

	// ─── Rate limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "Authentication token is required."
	case ErrTokenInvalid:
		return "Authentication token is invalid."
	case ErrTokenExpired:
		return "Authentication token has expired."
	case ErrSessionSignedOut:
		return "Your session has been signed out."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "You do not have permission to access this resource."
	case ErrNotQuizAuthor:
		return "You are not the owner of this quiz."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."
	case ErrConflict:
		return "Resource already exists."

	// ─── Quiz-specific ─────────────────────────────────────────────────
	case ErrNoQuestions:
		return "This quiz has no questions."
	case ErrNoAnswerKey:
		return "No answer key is available for this quiz."
	case ErrInvalidAnswerKey:
		return "No answers could be read from the answer key."
	case ErrInvalidQuestions:
		return "The question list could not be read."
	case ErrQuizNotReady:
		return "This quiz is not ready to be taken."
	case ErrAttemptNotActive:
		return "There is no active attempt for this quiz."
	case ErrAttemptSubmitted:
		return "This attempt has already been submitted."
	case ErrPayloadTooLarge:
		return "Request body exceeds the size limit."

	// ─── Rate limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}
